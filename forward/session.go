package forward

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/achetronic/forwarder/api"
	"github.com/achetronic/forwarder/dump"
)

// Dialer opens the connection towards the remote server
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// NewSession creates a session for the client endpoint. The server endpoint is added by Connect
func NewSession(id uint64, protocol api.Protocol, client net.Conn, log logr.Logger) *Session {
	s := &Session{
		ID:            id,
		CorrelationID: uuid.NewString(),
		Protocol:      protocol,
		Created:       time.Now(),
		client:        client,
	}
	s.log = log.WithValues("Session", id, "CorrelationID", s.CorrelationID)
	return s
}

// State returns the current lifecycle state of the session
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Connect opens the server endpoint and activates the session.
// On failure the session is torn down and the error is returned, there is no retry
func (s *Session) Connect(ctx context.Context, dialer Dialer, address string) error {
	s.log.Info(ConnectingMessage, "Remote", address)

	outgoing, err := dialer.DialContext(ctx, network(s.Protocol), address)
	if err != nil {
		err = errors.Wrapf(err, ConnectErrorMessage, s.Protocol, address)
		s.log.Error(err, "Forwarder failed to start")
		s.ConnectionBroken()
		return err
	}

	setKeepAlive(s.client)
	setKeepAlive(outgoing)

	s.lock.Lock()
	activated := s.state.CompareAndSwap(uint32(SessionStateInitial), uint32(SessionStateActive))
	if activated {
		s.server = outgoing
	}
	s.lock.Unlock()

	if !activated {
		// Torn down while dialing: the endpoint was never published, so it is closed here
		_ = outgoing.Close()
		return ErrSessionClosed
	}

	s.log.Info(fmt.Sprintf(StartedMessage, s.Protocol, s.clientName(), EndpointName(outgoing.RemoteAddr())))
	return nil
}

// ConnectionBroken is the single teardown entry point. It closes both endpoints, and logs the
// stopped line when the session was active. Only the first of any number of concurrent calls has effects
func (s *Session) ConnectionBroken() {
	previous := SessionState(s.state.Swap(uint32(SessionStateClosed)))
	if previous == SessionStateClosed {
		return
	}

	s.lock.Lock()
	client, server := s.client, s.server
	s.lock.Unlock()

	// Best effort: close failures are never surfaced
	if err := multierr.Combine(closeEndpoint(client), closeEndpoint(server)); err != nil {
		s.log.V(1).Info(CloseEndpointsMessage, "Error", err.Error())
	}

	if previous == SessionStateActive {
		s.log.Info(fmt.Sprintf(StoppedMessage, s.Protocol, s.clientName(), serverName(server)))
	}
}

// Forward pumps bytes in both directions of an established TCP session until either side ends.
// It returns once both workers have finished, after publishing their dump blocks
func (s *Session) Forward(ctx context.Context, recorder *dump.Recorder) {
	s.lock.Lock()
	client, server := s.client, s.server
	s.lock.Unlock()

	if server == nil {
		return
	}

	// Closing the sockets is what releases workers blocked on the peers
	stop := context.AfterFunc(ctx, s.ConnectionBroken)
	defer stop()

	workers := []*Worker{
		s.newWorker(ClientToServer, client, server, recorder),
		s.newWorker(ServerToClient, server, client, recorder),
	}

	var wg sync.WaitGroup
	var blocks [2][]dump.Block
	for i, worker := range workers {
		wg.Add(1)
		go func(i int, worker *Worker) {
			defer wg.Done()
			blocks[i] = worker.Run(ctx)
		}(i, worker)
	}
	wg.Wait()

	recorder.Publish(append(blocks[0], blocks[1]...))
}

// Relay runs the datagram worker of an established UDP session until shutdown
func (s *Session) Relay(ctx context.Context, out io.Writer, pollInterval time.Duration) {
	s.lock.Lock()
	client := s.client
	s.lock.Unlock()

	packetConn, ok := client.(net.PacketConn)
	if !ok || s.State() != SessionStateActive {
		s.ConnectionBroken()
		return
	}

	stop := context.AfterFunc(ctx, s.ConnectionBroken)
	defer stop()

	worker := NewDatagramWorker(s, packetConn, out, pollInterval, s.log)
	worker.Run(ctx)
}

// newWorker builds the worker of one direction. Worker ids are derived from the session id,
// so the dump headers of both directions of a session sit next to each other
func (s *Session) newWorker(direction Direction, source, sink net.Conn, recorder *dump.Recorder) *Worker {
	id := s.ID<<1 | uint64(direction)
	trace := recorder.NewTrace(id, EndpointName(source.RemoteAddr()), EndpointName(sink.RemoteAddr()))
	return NewWorker(id, s, direction, source, sink, trace, s.log)
}

// clientName describes the client endpoint: the peer for TCP, the receiving socket for UDP
func (s *Session) clientName() string {
	if s.client == nil {
		return EndpointName(nil)
	}
	if s.Protocol == api.ProtocolUDP {
		return EndpointName(s.client.LocalAddr())
	}
	return EndpointName(s.client.RemoteAddr())
}

func serverName(server net.Conn) string {
	if server == nil {
		return EndpointName(nil)
	}
	return EndpointName(server.RemoteAddr())
}

// EndpointName returns the host:port form of an address
func EndpointName(addr net.Addr) string {
	if addr == nil {
		return "-"
	}
	return addr.String()
}

func closeEndpoint(conn net.Conn) error {
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func setKeepAlive(conn net.Conn) {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetKeepAlive(true)
	}
}

func network(protocol api.Protocol) string {
	if protocol == api.ProtocolUDP {
		return "udp"
	}
	return "tcp"
}
