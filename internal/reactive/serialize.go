package reactive

import (
	"sync"

	"github.com/streamwire/rsocket/internal/payload"
)

// serializer runs a sequence of closures one at a time even when they
// are submitted from multiple goroutines, without dedicating a
// goroutine to draining: the first submitter to find the queue idle
// drains it inline (a trampoline), and anyone arriving while a drain is
// in progress just appends and returns. This mirrors the mutex+condvar
// discipline muxado's inbound buffer uses to guard concurrent access,
// adapted from "block until data available" to "run to completion
// without blocking the submitter".
type serializer struct {
	mu      sync.Mutex
	queue   []func()
	running bool
}

func (s *serializer) run(fn func()) {
	s.mu.Lock()
	if s.running {
		s.queue = append(s.queue, fn)
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.drain(fn)
}

func (s *serializer) drain(first func()) {
	next := first
	for {
		next()
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		next = s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
	}
}

// SerializedSubscriber wraps a Subscriber so that OnSubscribe, OnNext,
// OnError, and OnComplete never run concurrently with one another, no
// matter how many goroutines call them. This is what lets a handler's
// producer run on its own goroutine while the connection's single
// dispatch loop also delivers signals (inbound REQUEST_N, CANCEL)
// toward the same stream.
type SerializedSubscriber struct {
	inner Subscriber
	ser   serializer
}

func NewSerializedSubscriber(inner Subscriber) *SerializedSubscriber {
	return &SerializedSubscriber{inner: inner}
}

func (s *SerializedSubscriber) OnSubscribe(sub Subscription) {
	s.ser.run(func() { s.inner.OnSubscribe(sub) })
}

func (s *SerializedSubscriber) OnNext(p *payload.Payload) {
	s.ser.run(func() { s.inner.OnNext(p) })
}

func (s *SerializedSubscriber) OnError(err error) {
	s.ser.run(func() { s.inner.OnError(err) })
}

func (s *SerializedSubscriber) OnComplete() {
	s.ser.run(func() { s.inner.OnComplete() })
}
