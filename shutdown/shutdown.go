// Package shutdown turns the external termination requests into context cancellation
package shutdown

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
)

const ReadInputErrorMessage = "failed reading termination input"

// ErrTerminationRequested is the cancellation cause set when the operator asks the process to stop
var ErrTerminationRequested = errors.New("termination requested")

// WithSignals returns a context cancelled on SIGINT or SIGTERM
func WithSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// WatchInput blocks until one line is read from r, or r ends, and returns ErrTerminationRequested.
// It returns nil when the context is done first.
//
// The read itself can not be interrupted: it is left pending when the context ends first
func WatchInput(ctx context.Context, r io.Reader) error {
	result := make(chan error, 1)

	go func() {
		_, err := bufio.NewReader(r).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			result <- errors.Wrap(err, ReadInputErrorMessage)
			return
		}
		result <- ErrTerminationRequested
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-result:
		return err
	}
}
