// Package mux implements the send multiplexer: many producers (stream
// FSMs, the keepalive loop, lease dispatch) hand frames to one ordered
// sink without a total order across producers, except that lease and
// keepalive frames always jump the line ahead of stream traffic.
package mux

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/streamwire/rsocket/internal/frame"
)

// ErrClosed is returned by Enqueue once the multiplexer has been closed.
var ErrClosed = errors.New("mux: closed")

type writeReq struct {
	f   frame.Frame
	err chan error
}

var errChanPool = sync.Pool{New: func() any { return make(chan error, 1) }}

// Mux serializes outbound frames from many goroutines onto a single
// frame.Framer, preserving per-producer enqueue order. Frames enqueued
// through EnqueuePriority (lease, keepalive) are always drained ahead of
// anything waiting on the normal lane.
type Mux struct {
	framer    frame.Framer
	normal    chan writeReq
	priority  chan writeReq
	done      chan struct{}
	closeOnce uint32
	closeErr  error
	closeMu   sync.Mutex
}

// New creates a Mux that writes to framer once Run is called. queueDepth
// bounds how many pending writes each lane may buffer before Enqueue
// blocks.
func New(framer frame.Framer, queueDepth int) *Mux {
	return &Mux{
		framer:   framer,
		normal:   make(chan writeReq, queueDepth),
		priority: make(chan writeReq, queueDepth),
		done:     make(chan struct{}),
	}
}

// Run drains both lanes onto the framer until Close is called or a write
// fails. It should be started in its own goroutine and returns the error
// that caused it to stop, if any.
func (m *Mux) Run() error {
	for {
		// always prefer the priority lane when both are ready
		select {
		case req := <-m.priority:
			if err := m.write(req); err != nil {
				m.Close(err)
				return err
			}
			continue
		default:
		}

		select {
		case req := <-m.priority:
			if err := m.write(req); err != nil {
				m.Close(err)
				return err
			}
		case req := <-m.normal:
			if err := m.write(req); err != nil {
				m.Close(err)
				return err
			}
		case <-m.done:
			return m.closeErr
		}
	}
}

func (m *Mux) write(req writeReq) error {
	err := m.framer.WriteFrame(req.f)
	if req.err != nil {
		req.err <- err
	}
	return err
}

// Enqueue writes f on the normal lane and blocks until it has been
// written (or the Mux closes).
func (m *Mux) Enqueue(f frame.Frame) error {
	return m.enqueue(m.normal, f, true)
}

// EnqueuePriority writes f on the priority lane, ahead of any pending
// normal-lane traffic.
func (m *Mux) EnqueuePriority(f frame.Frame) error {
	return m.enqueue(m.priority, f, true)
}

// EnqueueAsync enqueues f on the normal lane without waiting for the
// write to complete. The caller must not reuse or release any buffer
// owned by f until it's known to have been sent by other means, since
// this path gives no completion signal.
func (m *Mux) EnqueueAsync(f frame.Frame) error {
	return m.enqueue(m.normal, f, false)
}

func (m *Mux) enqueue(lane chan writeReq, f frame.Frame, wait bool) error {
	var errCh chan error
	if wait {
		errCh = errChanPool.Get().(chan error)
	}
	req := writeReq{f: f, err: errCh}

	select {
	case lane <- req:
	case <-m.done:
		return ErrClosed
	}

	if !wait {
		return nil
	}
	select {
	case err := <-errCh:
		errChanPool.Put(errCh)
		return err
	case <-m.done:
		return ErrClosed
	}
}

// Close idempotently stops Run and causes every blocked or future
// Enqueue call to return ErrClosed. Only the first call's err is
// retained; it is what Run returns (ErrClosed if that err was nil).
func (m *Mux) Close(err error) {
	if !atomic.CompareAndSwapUint32(&m.closeOnce, 0, 1) {
		return
	}
	m.closeMu.Lock()
	if err == nil {
		err = ErrClosed
	}
	m.closeErr = err
	m.closeMu.Unlock()
	close(m.done)
}
