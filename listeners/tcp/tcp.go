package tcp

import (
	"context"
	"net"
	"os"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/achetronic/forwarder/api"
	"github.com/achetronic/forwarder/dump"
	"github.com/achetronic/forwarder/forward"
)

// NewTCPProxy creates a proxy for the given configuration. The recorder may be nil
func NewTCPProxy(config *api.Forwarder, recorder *dump.Recorder, log logr.Logger) *TCPProxy {
	return &TCPProxy{
		Config:   config,
		Recorder: recorder,
		Logger:   log,
		ready:    make(chan struct{}),
	}
}

// Ready is closed once Launch has bound the listener, or has failed trying to
func (p *TCPProxy) Ready() <-chan struct{} {
	return p.ready
}

// Addr returns the address the proxy is listening on, nil until it is ready
func (p *TCPProxy) Addr() net.Addr {
	select {
	case <-p.ready:
	default:
		return nil
	}
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

// handleRequest connects the accepted client to the backend and forwards until the session ends.
// It returns an error only when the backend could not be reached
func (p *TCPProxy) handleRequest(ctx context.Context, frontendConn *net.TCPConn) error {
	log := p.Logger.WithValues("Client", frontendConn.RemoteAddr().String())
	log.Info(AcceptedMessage)

	session := forward.NewSession(p.sessionID.Inc(), api.ProtocolTCP, frontendConn, log)
	dialer := &net.Dialer{Timeout: p.Config.DialTimeout}

	err := session.Connect(ctx, dialer, getBackendAddress(&p.Config.Backend))
	if err != nil {
		// Dials interrupted by the shutdown are not failures
		if errors.Is(err, forward.ErrSessionClosed) || ctx.Err() != nil {
			return nil
		}
		return err
	}

	session.Forward(ctx, p.Recorder)
	return nil
}

// Launch start a listener loop to forward traffic to backend servers.
// It returns once the context is done, or a backend connection fails, and every session has ended
func (p *TCPProxy) Launch(ctx context.Context) (err error) {
	defer p.markReady(nil)

	// Resolve frontend IP address from config
	frontendHost, err := getTCPAddress(p.Config.Listener.Host, p.Config.Listener.Port)
	if err != nil {
		return errors.Wrap(err, ResolveListenerErrorMessage)
	}

	// Listen for incoming connections, once for the whole life of the proxy
	frontendServer, err := net.ListenTCP(ProtocolTcp, frontendHost)
	if err != nil {
		return errors.Wrapf(err, ListenErrorMessage, frontendHost.String())
	}
	p.markReady(frontendServer)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Closing the listener releases a pending accept
	stop := context.AfterFunc(ctx, func() { _ = frontendServer.Close() })
	defer stop()

	var sessionSlots *semaphore.Weighted
	if p.Config.MaxSessions > 0 {
		sessionSlots = semaphore.NewWeighted(int64(p.Config.MaxSessions))
	}
	release := func() {
		if sessionSlots != nil {
			sessionSlots.Release(1)
		}
	}

	var failure error
	var failureOnce sync.Once

	p.Logger.Info(WaitingMessage, "Address", frontendServer.Addr().String())

	// Handle incoming connections
	for ctx.Err() == nil {
		if sessionSlots != nil {
			if err := sessionSlots.Acquire(ctx, 1); err != nil {
				break
			}
		}

		if p.Config.PollInterval > 0 {
			_ = frontendServer.SetDeadline(time.Now().Add(p.Config.PollInterval))
		}

		frontendConn, err := frontendServer.AcceptTCP()
		if err != nil {
			release()
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				failureOnce.Do(func() { failure = errors.Wrap(err, AcceptErrorMessage) })
			}
			break
		}

		// Process connections in a new goroutine to parallelize them
		p.sessions.Add(1)
		go func() {
			defer p.sessions.Done()
			defer release()

			if err := p.handleRequest(ctx, frontendConn); err != nil {
				failureOnce.Do(func() { failure = err })
				cancel()
			}
		}()
	}

	_ = frontendServer.Close()
	p.sessions.Wait()

	p.Logger.Info(TerminatingMessage)
	return failure
}

// Close stops accepting new clients, as an external stop hook next to the context given to Launch.
// Sessions already established run until their peers leave, then Launch returns
func (p *TCPProxy) Close() (err error) {
	select {
	case <-p.ready:
	default:
		return nil
	}
	if p.listener == nil {
		return nil
	}
	if err = p.listener.Close(); errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (p *TCPProxy) markReady(listener *net.TCPListener) {
	p.readyOnce.Do(func() {
		p.listener = listener
		close(p.ready)
	})
}
