package rsocket

import (
	"sync/atomic"
	"time"

	"github.com/streamwire/rsocket/internal/frame"
)

// keepaliveLoop sends periodic KEEPALIVE frames and terminates the
// connection if the peer falls silent for longer than interval+tolerance,
// directly grounded on the teacher's internal/muxado/heartbeat.go
// Heartbeat.requester/check goroutine pair, minus the resume/session-id
// negotiation those carry (out of scope here: spec.md §1).
type keepaliveLoop struct {
	c *Connection

	// atomically accessed; mirrors Heartbeat's interval/tolerance fields
	interval  int64
	tolerance int64

	mark   chan struct{}
	closed chan struct{}
}

func newKeepaliveLoop(c *Connection, interval, tolerance time.Duration) *keepaliveLoop {
	return &keepaliveLoop{
		c:         c,
		interval:  int64(interval),
		tolerance: int64(tolerance),
		mark:      make(chan struct{}, 1),
		closed:    make(chan struct{}),
	}
}

func (k *keepaliveLoop) start() {
	go k.sender()
	go k.checker()
}

func (k *keepaliveLoop) close() {
	select {
	case <-k.closed:
	default:
		close(k.closed)
	}
}

func (k *keepaliveLoop) durations() (time.Duration, time.Duration) {
	return time.Duration(atomic.LoadInt64(&k.interval)), time.Duration(atomic.LoadInt64(&k.tolerance))
}

// sender periodically enqueues a KEEPALIVE frame with Respond set, asking
// the peer to echo one back; it's the requester-side half of the
// heartbeat.
func (k *keepaliveLoop) sender() {
	interval, _ := k.durations()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f, err := frame.PackKeepalive(0, nil, true)
			if err != nil {
				k.c.sink.Accept(err)
				continue
			}
			if err := k.c.mux.EnqueuePriority(f); err != nil {
				return
			}
		case <-k.closed:
			return
		}
	}
}

// checker terminates the connection if no liveness mark arrives within
// interval+tolerance of the last one; onKeepalive resets the timer on
// every inbound KEEPALIVE.
func (k *keepaliveLoop) checker() {
	interval, tolerance := k.durations()
	t := time.NewTimer(interval + tolerance)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			k.c.terminate(&keepaliveTimeoutError{})
			return
		case <-k.mark:
			if !t.Stop() {
				<-t.C
			}
			interval, tolerance = k.durations()
			t.Reset(interval + tolerance)
		case <-k.closed:
			return
		}
	}
}

// onKeepalive marks liveness and, if the peer asked for a reply, echoes
// one back with Respond unset so the peer doesn't loop the echo forever.
func (k *keepaliveLoop) onKeepalive(fr *frame.Keepalive) {
	select {
	case k.mark <- struct{}{}:
	default:
	}

	if !fr.Respond() {
		return
	}
	f, err := frame.PackKeepalive(fr.LastReceivedPosition(), nil, false)
	if err != nil {
		k.c.sink.Accept(err)
		return
	}
	if err := k.c.mux.EnqueuePriority(f); err != nil {
		k.c.sink.Accept(err)
	}
}

// keepaliveTimeoutError is delivered to Wait and every in-flight stream
// when the peer stops answering keepalives.
type keepaliveTimeoutError struct{}

func (*keepaliveTimeoutError) Error() string { return "rsocket: keepalive timeout" }
