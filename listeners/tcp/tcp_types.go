package tcp

import (
	"net"
	"sync"

	"github.com/go-logr/logr"
	"go.uber.org/atomic"

	"github.com/achetronic/forwarder/api"
	"github.com/achetronic/forwarder/dump"
)

const (
	ProtocolTcp = "tcp"

	// Info messages
	WaitingMessage     = "Proxy waiting for client connection(s) ..."
	AcceptedMessage    = "Accepted client connection"
	TerminatingMessage = "Proxy terminating ..."

	// Error messages
	ResolveListenerErrorMessage = "Error resolving listener address"
	ListenErrorMessage          = "Error listening on %s"
	AcceptErrorMessage          = "Error accepting client connection"
)

// TCPProxy represents a live object, created from a listener's config
type TCPProxy struct {
	Config   *api.Forwarder
	Recorder *dump.Recorder
	Logger   logr.Logger

	sessionID atomic.Uint64
	sessions  sync.WaitGroup

	// Set once the listener is bound
	readyOnce sync.Once
	ready     chan struct{}
	listener  *net.TCPListener
}
