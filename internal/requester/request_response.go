package requester

import (
	"sync"

	"github.com/streamwire/rsocket/internal/frame"
	"github.com/streamwire/rsocket/internal/payload"
	"github.com/streamwire/rsocket/internal/reactive"
	"github.com/streamwire/rsocket/internal/rerror"
	"github.com/streamwire/rsocket/internal/streamid"
)

// rrStream tracks one request-response interaction from REQUESTED until a
// terminal payload, an ERROR, or a local cancel. Exactly one of those wins;
// the loser of a race against a racing inbound terminal is dropped.
type rrStream struct {
	r   *Requester
	id  streamid.Id
	sub reactive.Subscriber

	mu   sync.Mutex
	done bool
}

// RequestResponse sends p as a REQUEST_RESPONSE frame and delivers the
// single reply, or an error, to sub.
func (r *Requester) RequestResponse(p *payload.Payload) reactive.Publisher {
	return reactive.PublisherFunc(func(sub reactive.Subscriber) {
		s := &rrStream{r: r, sub: reactive.NewSerializedSubscriber(sub)}

		if err := validate(r.mtu, p); err != nil {
			p.Release()
			s.sub.OnSubscribe(reactive.NoopSubscription{})
			s.sub.OnError(err)
			return
		}

		id, err := r.allocate(s)
		if err != nil {
			p.Release()
			s.sub.OnSubscribe(reactive.NoopSubscription{})
			s.sub.OnError(err)
			return
		}
		s.id = id

		f, err := frame.PackRequestResponse(frame.StreamId(id), p.Metadata(), p.Data())
		if err != nil {
			r.remove(id)
			p.Release()
			s.sub.OnSubscribe(reactive.NoopSubscription{})
			s.sub.OnError(err)
			return
		}

		s.sub.OnSubscribe(s)

		if err := r.mux.Enqueue(f); err != nil {
			p.Release()
			s.fail(err)
			return
		}
		p.Release()
	})
}

// Request is a no-op: request-response carries an implicit demand of one
// and has no incremental demand to signal.
func (s *rrStream) Request(uint64) {}

// Cancel emits CANCEL at most once and removes the table entry. A terminal
// frame that races in afterward is dropped in handlePayload/handleFrame
// without being delivered.
func (s *rrStream) Cancel() {
	if !s.tryFinish() {
		return
	}
	s.r.remove(s.id)
	f, err := frame.PackCancel(frame.StreamId(s.id))
	if err != nil {
		s.r.sink.Accept(err)
		return
	}
	if err := s.r.mux.Enqueue(f); err != nil {
		s.r.sink.Accept(err)
	}
}

// fail is used for connection-level teardown and local send failures: no
// CANCEL is sent, since the transport is already assumed gone or dead.
func (s *rrStream) fail(err error) {
	if !s.tryFinish() {
		return
	}
	s.r.remove(s.id)
	s.sub.OnError(err)
}

func (s *rrStream) tryFinish() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	s.done = true
	return true
}

func (s *rrStream) isDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *rrStream) handleFrame(f frame.Frame) {
	switch fr := f.(type) {
	case *frame.Payload:
		s.handlePayload(fr)
	case *frame.Error:
		if !s.tryFinish() {
			return
		}
		s.r.remove(s.id)
		s.sub.OnError(rerror.FromFrame(fr))
	}
}

func (s *rrStream) handlePayload(fr *frame.Payload) {
	if s.isDone() {
		return
	}
	if fr.Next() {
		s.sub.OnNext(newPayload(fr.Metadata(), fr.Data()))
	}
	if fr.Complete() {
		if s.tryFinish() {
			s.r.remove(s.id)
			s.sub.OnComplete()
		}
	}
}
