package requester

import (
	"sync"

	"github.com/streamwire/rsocket/internal/frame"
	"github.com/streamwire/rsocket/internal/payload"
	"github.com/streamwire/rsocket/internal/reactive"
	"github.com/streamwire/rsocket/internal/rerror"
	"github.com/streamwire/rsocket/internal/streamid"
)

// rsStream tracks one request-stream interaction. No frame is sent until
// the local consumer signals demand for the first time; subsequent demand
// becomes REQUEST_N frames carrying the delta.
type rsStream struct {
	r   *Requester
	p   *payload.Payload
	sub reactive.Subscriber

	mu      sync.Mutex
	id      streamid.Id
	started bool
	done    bool
}

// RequestStream sends p as a REQUEST_STREAM once the consumer first
// signals demand, and delivers the resulting sequence to sub.
func (r *Requester) RequestStream(p *payload.Payload) reactive.Publisher {
	return reactive.PublisherFunc(func(sub reactive.Subscriber) {
		s := &rsStream{r: r, p: p, sub: reactive.NewSerializedSubscriber(sub)}

		if err := validate(r.mtu, p); err != nil {
			p.Release()
			s.sub.OnSubscribe(reactive.NoopSubscription{})
			s.sub.OnError(err)
			return
		}

		s.sub.OnSubscribe(s)
	})
}

func (s *rsStream) Request(n uint64) {
	if n == 0 {
		return
	}

	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	if !s.started {
		s.started = true
		s.mu.Unlock()
		s.start(n)
		return
	}
	id := s.id
	s.mu.Unlock()

	f, err := frame.PackRequestN(frame.StreamId(id), clampU31(n))
	if err != nil {
		s.r.sink.Accept(err)
		return
	}
	if err := s.r.mux.Enqueue(f); err != nil {
		s.fail(err)
	}
}

func (s *rsStream) start(n uint64) {
	id, err := s.r.allocate(s)
	if err != nil {
		s.p.Release()
		s.fail(err)
		return
	}
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()

	f, err := frame.PackRequestStream(frame.StreamId(id), n, s.p.Metadata(), s.p.Data())
	if err != nil {
		s.r.remove(id)
		s.p.Release()
		s.fail(err)
		return
	}
	if err := s.r.mux.Enqueue(f); err != nil {
		s.p.Release()
		s.fail(err)
		return
	}
	s.p.Release()
}

// Cancel emits CANCEL only if a REQUEST_STREAM was actually sent; a
// cancel before any demand was ever signaled has nothing to cancel on the
// wire.
func (s *rsStream) Cancel() {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	started := s.started
	id := s.id
	s.mu.Unlock()

	if !started {
		return
	}
	s.r.remove(id)
	f, err := frame.PackCancel(frame.StreamId(id))
	if err != nil {
		s.r.sink.Accept(err)
		return
	}
	if err := s.r.mux.Enqueue(f); err != nil {
		s.r.sink.Accept(err)
	}
}

func (s *rsStream) fail(err error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	id := s.id
	s.mu.Unlock()
	s.r.remove(id)
	s.sub.OnError(err)
}

func (s *rsStream) handleFrame(f frame.Frame) {
	switch fr := f.(type) {
	case *frame.Payload:
		s.handlePayload(fr)
	case *frame.Error:
		s.fail(rerror.FromFrame(fr))
	}
}

func (s *rsStream) handlePayload(fr *frame.Payload) {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done {
		return
	}

	if fr.Next() {
		s.sub.OnNext(newPayload(fr.Metadata(), fr.Data()))
	}
	if fr.Complete() {
		s.mu.Lock()
		if s.done {
			s.mu.Unlock()
			return
		}
		s.done = true
		id := s.id
		s.mu.Unlock()
		s.r.remove(id)
		s.sub.OnComplete()
	}
}
