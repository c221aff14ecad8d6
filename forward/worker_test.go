package forward

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	"github.com/achetronic/forwarder/dump"
)

func TestWorkerCopiesUntilEOF(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("0123456789"), 2000)
	sink := &flushingWriter{}

	w := NewWorker(2, nil, ClientToServer, bytes.NewReader(payload), sink, nil, logr.Discard())
	blocks := w.Run(context.Background())

	require.Nil(t, blocks)
	require.Equal(t, payload, sink.buf.Bytes())
	require.EqualValues(t, len(payload), w.BytesRead.Load())
	require.EqualValues(t, len(payload), w.BytesWritten.Load())
	require.Positive(t, sink.flushes)
}

func TestWorkerStopsOnWriteError(t *testing.T) {
	t.Parallel()

	w := NewWorker(2, nil, ClientToServer, strings.NewReader("data"), failingWriter{}, nil, logr.Discard())
	w.Run(context.Background())

	require.EqualValues(t, 4, w.BytesRead.Load())
	require.Zero(t, w.BytesWritten.Load())
}

func TestWorkerSkipsCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &flushingWriter{}
	w := NewWorker(2, nil, ClientToServer, strings.NewReader("data"), sink, nil, logr.Discard())
	w.Run(ctx)

	require.Zero(t, sink.buf.Len())
}

func TestWorkerGroupsFullReadsIntoOneBurst(t *testing.T) {
	t.Parallel()

	recorder := dump.NewRecorder(true, 16, io.Discard, logr.Discard())
	t.Cleanup(recorder.Close)

	// Two full reads followed by a short one form a single burst, the next read starts another
	source := &chunkedReader{chunks: [][]byte{
		bytes.Repeat([]byte{'a'}, BufferSize),
		bytes.Repeat([]byte{'b'}, BufferSize),
		[]byte("tail"),
		[]byte("next"),
	}}

	trace := recorder.NewTrace(4, "a:1", "b:2")
	w := NewWorker(4, nil, ServerToClient, source, io.Discard, trace, logr.Discard())
	blocks := w.Run(context.Background())

	require.Len(t, blocks, 2)
	require.Contains(t, blocks[0].Text, "  004000 74 61 69 6C ")
	require.Contains(t, blocks[1].Text, "  000000 6E 65 78 74 ")
	require.NotContains(t, blocks[1].Text, "  000010 ")
}

type chunkedReader struct {
	chunks [][]byte
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if len(r.chunks[0]) == 0 {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

type flushingWriter struct {
	buf     bytes.Buffer
	flushes int
}

func (w *flushingWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *flushingWriter) Flush() error {
	w.flushes++
	return nil
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}
