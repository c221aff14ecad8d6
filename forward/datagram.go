package forward

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// DatagramWorker receives the datagrams sent to the local port and prints their payload as text.
// Payloads are not forwarded to the remote endpoint and nothing flows back to the client
type DatagramWorker struct {
	session      *Session
	conn         net.PacketConn
	out          io.Writer
	pollInterval time.Duration
	log          logr.Logger

	Datagrams atomic.Uint64
	BytesRead atomic.Int64
}

func NewDatagramWorker(session *Session, conn net.PacketConn, out io.Writer, pollInterval time.Duration,
	log logr.Logger) *DatagramWorker {
	return &DatagramWorker{
		session:      session,
		conn:         conn,
		out:          out,
		pollInterval: pollInterval,
		log:          log.WithValues("Direction", ClientToServer.String()),
	}
}

// Run receives until the context is done or the socket fails
func (w *DatagramWorker) Run(ctx context.Context) {
	buf := make([]byte, BufferSize)

	for ctx.Err() == nil {
		if w.pollInterval > 0 {
			_ = w.conn.SetReadDeadline(time.Now().Add(w.pollInterval))
		}

		n, from, err := w.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				w.log.Error(err, DatagramReadErrorMessage)
			}
			break
		}

		w.Datagrams.Inc()
		w.BytesRead.Add(int64(n))
		w.log.V(1).Info("Datagram received", "From", EndpointName(from), "Bytes", n)

		if _, err = fmt.Fprintln(w.out, string(buf[:n])); err != nil {
			w.log.Error(err, DatagramWriteMessage)
		}
	}

	w.log.V(1).Info("Datagram worker finished", "Datagrams", w.Datagrams.Load(), "BytesRead", w.BytesRead.Load())

	if w.session != nil {
		w.session.ConnectionBroken()
	}
}
