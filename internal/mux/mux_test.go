package mux

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/streamwire/rsocket/internal/frame"
)

type recordingFramer struct {
	mu      sync.Mutex
	written []frame.Frame
	failAt  int // -1 disables; otherwise the n-th WriteFrame call fails
	calls   int
	failErr error
}

func (f *recordingFramer) WriteFrame(fr frame.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failAt >= 0 && f.calls == f.failAt {
		return f.failErr
	}
	f.written = append(f.written, fr)
	return nil
}

func (f *recordingFramer) ReadFrame() (frame.Frame, error) { return nil, errors.New("unused") }

func (f *recordingFramer) snapshot() []frame.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]frame.Frame, len(f.written))
	copy(out, f.written)
	return out
}

func newReqN(t *testing.T, n uint32) frame.Frame {
	t.Helper()
	f, err := frame.PackRequestN(1, n)
	require.NoError(t, err)
	return f
}

func TestEnqueueWritesAndWaits(t *testing.T) {
	fr := &recordingFramer{failAt: -1}
	m := New(fr, 8)
	go m.Run()
	defer m.Close(nil)

	require.NoError(t, m.Enqueue(newReqN(t, 1)))
	require.NoError(t, m.Enqueue(newReqN(t, 2)))
	require.Len(t, fr.snapshot(), 2)
}

func TestPriorityLaneDrainsFirst(t *testing.T) {
	fr := &recordingFramer{failAt: -1}
	m := New(fr, 64)

	// fill the normal lane without a running reader so frames queue up
	for i := 0; i < 10; i++ {
		require.NoError(t, m.EnqueueAsync(newReqN(t, uint32(i))))
	}
	priorityFrame, err := frame.PackKeepalive(0, nil, false)
	require.NoError(t, err)
	// EnqueuePriority blocks until its frame is written, so it runs on its
	// own goroutine; Run starts only once the frame sits in the priority lane.
	prioErr := make(chan error, 1)
	go func() { prioErr <- m.EnqueuePriority(priorityFrame) }()
	require.Eventually(t, func() bool {
		return len(m.priority) == 1
	}, time.Second, time.Millisecond)

	go m.Run()
	defer m.Close(nil)
	require.NoError(t, <-prioErr)

	require.Eventually(t, func() bool {
		return len(fr.snapshot()) == 11
	}, time.Second, time.Millisecond)

	written := fr.snapshot()
	require.Equal(t, frame.TypeKeepalive, written[0].Type())
}

func TestWriteFailureClosesMux(t *testing.T) {
	boom := errors.New("boom")
	fr := &recordingFramer{failAt: 1, failErr: boom}
	m := New(fr, 8)

	done := make(chan error, 1)
	go func() { done <- m.Run() }()

	require.NoError(t, m.EnqueueAsync(newReqN(t, 1)))

	select {
	case err := <-done:
		require.Equal(t, boom, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after a write error")
	}

	require.ErrorIs(t, m.Enqueue(newReqN(t, 2)), ErrClosed)
}

func TestCloseIsIdempotentAndUnblocksWaiters(t *testing.T) {
	fr := &recordingFramer{failAt: -1}
	m := New(fr, 0) // unbuffered: Enqueue must block until Run (never started) drains it

	errCh := make(chan error, 1)
	go func() { errCh <- m.Enqueue(newReqN(t, 1)) }()

	m.Close(nil)
	m.Close(nil) // must not panic or double-close `done`

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("blocked Enqueue was not released by Close")
	}
}
