package udp

import (
	"context"
	"io"
	"net"
	"os"
	"strconv"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/achetronic/forwarder/api"
	"github.com/achetronic/forwarder/forward"
)

// NewUDPProxy creates a proxy for the given configuration. Received payloads are printed into out,
// standard output when nil
func NewUDPProxy(config *api.Forwarder, out io.Writer, log logr.Logger) *UDPProxy {
	if out == nil {
		out = os.Stdout
	}
	return &UDPProxy{
		Config: config,
		Output: out,
		Logger: log,
		ready:  make(chan struct{}),
	}
}

// Ready is closed once Launch has bound the receiving socket, or has failed trying to
func (p *UDPProxy) Ready() <-chan struct{} {
	return p.ready
}

// Addr returns the address the proxy is receiving on, nil until it is ready
func (p *UDPProxy) Addr() net.Addr {
	select {
	case <-p.ready:
	default:
		return nil
	}
	if p.conn == nil {
		return nil
	}
	return p.conn.LocalAddr()
}

// Launch binds the local port and runs the single session until the context is done
func (p *UDPProxy) Launch(ctx context.Context) (err error) {
	defer p.markReady(nil)

	frontendHost, err := net.ResolveUDPAddr(ProtocolUdp,
		net.JoinHostPort(p.Config.Listener.Host, strconv.Itoa(p.Config.Listener.Port)))
	if err != nil {
		return errors.Wrap(err, ResolveListenerErrorMessage)
	}

	frontendConn, err := net.ListenUDP(ProtocolUdp, frontendHost)
	if err != nil {
		return errors.Wrapf(err, ListenErrorMessage, frontendHost.String())
	}
	p.markReady(frontendConn)

	session := forward.NewSession(1, api.ProtocolUDP, frontendConn, p.Logger)
	dialer := &net.Dialer{Timeout: p.Config.DialTimeout}
	backend := net.JoinHostPort(p.Config.Backend.Host, strconv.Itoa(p.Config.Backend.Port))

	// A failed connect has already closed the receiving socket
	if err = session.Connect(ctx, dialer, backend); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	p.Logger.Info(WaitingMessage, "Address", frontendConn.LocalAddr().String())
	session.Relay(ctx, p.Output, p.Config.PollInterval)

	p.Logger.Info(TerminatingMessage)
	return nil
}

func (p *UDPProxy) markReady(conn *net.UDPConn) {
	p.readyOnce.Do(func() {
		p.conn = conn
		close(p.ready)
	})
}
