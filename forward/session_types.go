package forward

import (
	"net"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/achetronic/forwarder/api"
)

const (
	// BufferSize is the capacity of every worker read. A shorter read closes the current burst
	BufferSize = 8192

	// Info messages
	ConnectingMessage = "Connecting to server ..."
	StartedMessage    = "%s connection: %s <--> %s started"
	StoppedMessage    = "%s connection: %s <--> %s stopped"

	// Error messages
	ConnectErrorMessage      = "Failed to initiate %s connection: %s"
	CloseEndpointsMessage    = "Error closing session endpoints"
	DatagramReadErrorMessage = "Error reading datagram"
	DatagramWriteMessage     = "Error writing datagram payload"
)

// ErrSessionClosed is returned when a session is torn down before it could be established
var ErrSessionClosed = errors.New("session already closed")

// SessionState represents the lifecycle of a session: it only ever moves forward
type SessionState uint32

const (
	SessionStateInitial SessionState = iota
	SessionStateActive
	SessionStateClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionStateInitial:
		return "Initial"
	case SessionStateActive:
		return "Active"
	case SessionStateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Session represents the pair of endpoints of one logical connection: two sockets for TCP,
// the receiving socket and the socket towards the remote for UDP
type Session struct {
	ID            uint64
	CorrelationID string
	Protocol      api.Protocol
	Created       time.Time

	state atomic.Uint32

	// Protects the endpoints, which are set while the session is being established
	lock   sync.Mutex
	client net.Conn
	server net.Conn

	log logr.Logger
}

// Direction represents the way bytes flow through a worker
type Direction int

const (
	ClientToServer Direction = iota
	ServerToClient
)

func (d Direction) String() string {
	if d == ServerToClient {
		return "server->client"
	}
	return "client->server"
}
