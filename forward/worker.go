package forward

import (
	"context"
	"io"
	"time"

	"github.com/go-logr/logr"
	"go.uber.org/atomic"

	"github.com/achetronic/forwarder/dump"
)

// Worker copies the bytes of one direction of a session, from its source to its sink
type Worker struct {
	ID        uint64
	Direction Direction

	session *Session
	source  io.Reader
	sink    io.Writer
	trace   *dump.Trace
	log     logr.Logger

	BytesRead    atomic.Int64
	BytesWritten atomic.Int64
}

type flusher interface {
	Flush() error
}

func NewWorker(id uint64, session *Session, direction Direction, source io.Reader, sink io.Writer,
	trace *dump.Trace, log logr.Logger) *Worker {
	return &Worker{
		ID:        id,
		Direction: direction,
		session:   session,
		source:    source,
		sink:      sink,
		trace:     trace,
		log:       log.WithValues("Worker", id, "Direction", direction.String()),
	}
}

// Run copies until the source ends, a write fails or the context is done.
// Whatever stops the loop tears the whole session down. It returns the dump blocks of the worker
func (w *Worker) Run(ctx context.Context) []dump.Block {
	buf := make([]byte, BufferSize)
	var burstStart time.Time
	var runErr error

	for ctx.Err() == nil {
		n, readErr := w.source.Read(buf)
		if n > 0 {
			w.BytesRead.Add(int64(n))
			if burstStart.IsZero() {
				burstStart = time.Now()
			}
			w.trace.Record(burstStart, buf[:n])

			written, writeErr := w.sink.Write(buf[:n])
			w.BytesWritten.Add(int64(written))
			if writeErr == nil {
				if f, ok := w.sink.(flusher); ok {
					writeErr = f.Flush()
				}
			}
			if writeErr != nil {
				runErr = writeErr
				break
			}
		}

		// A read that does not fill the buffer ends the burst
		if n < BufferSize {
			w.trace.EndBurst()
			burstStart = time.Time{}
		}

		if readErr != nil {
			if readErr != io.EOF {
				runErr = readErr
			}
			break
		}
	}

	blocks := w.trace.Finish()

	// Errors here are the normal way a peer leaves, they are not reported
	w.log.V(1).Info("Worker finished",
		"BytesRead", w.BytesRead.Load(), "BytesWritten", w.BytesWritten.Load(), "Reason", reason(runErr))

	if w.session != nil {
		w.session.ConnectionBroken()
	}
	return blocks
}

func reason(err error) string {
	if err == nil {
		return "end of stream"
	}
	return err.Error()
}
