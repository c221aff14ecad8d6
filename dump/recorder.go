package dump

import (
	"context"
	"io"
	"sync"

	"github.com/emirpasic/gods/queues/priorityqueue"
	"github.com/go-logr/logr"
	"github.com/smallnest/chanx"
	"go.uber.org/atomic"
)

// Recorder collects the blocks published by the sessions and prints them, ordered by burst timestamp,
// from a single consumer goroutine.
//
// A disabled recorder hands out nil traces, so recording costs nothing when the dump is not configured.
type Recorder struct {
	enabled bool
	width   int
	out     io.Writer
	log     logr.Logger

	seq     atomic.Uint64
	batches *chanx.UnboundedChan[[]Block]

	lock   sync.Mutex
	closed bool
	done   chan struct{}
}

// NewRecorder creates a recorder writing into out. The width is the number of bytes per row
func NewRecorder(enabled bool, width int, out io.Writer, log logr.Logger) *Recorder {
	r := &Recorder{
		enabled: enabled,
		width:   width,
		out:     out,
		log:     log,
		done:    make(chan struct{}),
	}

	if !enabled {
		close(r.done)
		return r
	}

	// The queue is only stopped by Close, so nothing published during shutdown is lost
	r.batches = chanx.NewUnboundedChan[[]Block](context.Background(), 16)
	go r.consume()

	return r
}

func (r *Recorder) Enabled() bool {
	return r.enabled
}

func (r *Recorder) Width() int {
	return r.width
}

// NewTrace returns the accumulator for one worker, or nil when the recorder is disabled
func (r *Recorder) NewTrace(workerID uint64, source, dest string) *Trace {
	if r == nil || !r.enabled {
		return nil
	}

	return &Trace{
		recorder: r,
		workerID: workerID,
		source:   source,
		dest:     dest,
		width:    r.width,
	}
}

// Publish hands the finished blocks of a session to the consumer
func (r *Recorder) Publish(blocks []Block) {
	if r == nil || !r.enabled || len(blocks) == 0 {
		return
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	if r.closed {
		r.log.V(1).Info("Dump recorder already closed, dropping blocks", "Blocks", len(blocks))
		return
	}
	r.batches.In <- blocks
}

// Close stops accepting blocks and waits until every published block has been printed
func (r *Recorder) Close() {
	if r == nil {
		return
	}

	r.lock.Lock()
	if r.enabled && !r.closed {
		r.closed = true
		close(r.batches.In)
	}
	r.lock.Unlock()

	<-r.done
}

func (r *Recorder) nextSeq() uint64 {
	return r.seq.Inc()
}

func (r *Recorder) consume() {
	defer close(r.done)

	queue := priorityqueue.NewWith(func(a, b interface{}) int {
		blockA, blockB := a.(Block), b.(Block)
		switch {
		case blockA.before(blockB):
			return -1
		case blockB.before(blockA):
			return 1
		default:
			return 0
		}
	})

	enqueue := func(batch []Block) {
		for _, block := range batch {
			queue.Enqueue(block)
		}
	}

	for batch := range r.batches.Out {
		enqueue(batch)

		// Take every batch already waiting, so sessions ending together are printed in one ordered run
	pending:
		for {
			select {
			case more, ok := <-r.batches.Out:
				if !ok {
					break pending
				}
				enqueue(more)
			default:
				break pending
			}
		}

		r.drain(queue)
	}
}

func (r *Recorder) drain(queue *priorityqueue.Queue) {
	for {
		value, ok := queue.Dequeue()
		if !ok {
			return
		}

		block := value.(Block)
		if _, err := io.WriteString(r.out, block.Text); err != nil {
			r.log.Error(err, WriteDumpErrorMessage, "Timestamp", block.Timestamp.Format(TimestampLayout))
		}
	}
}
