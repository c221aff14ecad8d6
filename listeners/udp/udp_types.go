package udp

import (
	"io"
	"net"
	"sync"

	"github.com/go-logr/logr"

	"github.com/achetronic/forwarder/api"
)

const (
	ProtocolUdp = "udp"

	// Info messages
	WaitingMessage     = "Proxy waiting for client datagram(s) ..."
	TerminatingMessage = "Proxy terminating ..."

	// Error messages
	ResolveListenerErrorMessage = "Error resolving listener address"
	ListenErrorMessage          = "Error listening on %s"
)

// UDPProxy represents a live object, created from a listener's config.
// It owns a single session for the whole life of the process
type UDPProxy struct {
	Config *api.Forwarder
	Output io.Writer
	Logger logr.Logger

	readyOnce sync.Once
	ready     chan struct{}
	conn      *net.UDPConn
}
