package responder

import (
	"math"
	"sync"

	"github.com/streamwire/rsocket/internal/frame"
	"github.com/streamwire/rsocket/internal/payload"
	"github.com/streamwire/rsocket/internal/reactive"
	"github.com/streamwire/rsocket/internal/rerror"
	"github.com/streamwire/rsocket/internal/streamid"
)

// rrResponder drives one request-response interaction's reply: the
// handler's Publisher is subscribed with unbounded demand, and whatever it
// produces is translated into exactly one terminal frame.
type rrResponder struct {
	r  *Responder
	id streamid.Id

	mu   sync.Mutex
	sub  reactive.Subscription
	done bool
}

func (r *Responder) acceptRequestResponse(id streamid.Id, fr *frame.RequestResponse) error {
	s := &rrResponder{r: r, id: id}
	if !r.insert(id, s) {
		return &rerror.InvalidError{Message: "duplicate stream id"}
	}

	p := newPayload(fr.Metadata(), fr.Data())
	r.handler.RequestResponse(p).Subscribe(s)
	return nil
}

func (s *rrResponder) OnSubscribe(sub reactive.Subscription) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		sub.Cancel()
		return
	}
	s.sub = sub
	s.mu.Unlock()
	sub.Request(math.MaxInt64)
}

// OnNext validates the single response payload and, if valid, sends it as
// PAYLOAD(NEXT_COMPLETE) immediately — request-response never waits for a
// separate completion signal once it has a value.
func (s *rrResponder) OnNext(p *payload.Payload) {
	if err := validate(s.r.mtu, p); err != nil {
		p.Release()
		s.invalid(err)
		return
	}
	if !s.tryFinish() {
		p.Release()
		return
	}
	s.r.remove(s.id)
	f, err := frame.PackPayload(frame.StreamId(s.id), p.Metadata(), p.Data(), true, true)
	if err != nil {
		p.Release()
		s.r.sink.Accept(err)
		return
	}
	if err := s.r.mux.Enqueue(f); err != nil {
		p.Release()
		s.r.sink.Accept(err)
		return
	}
	p.Release()
}

// OnComplete fires only when the handler never produced a value: emit
// PAYLOAD(COMPLETE) with no data.
func (s *rrResponder) OnComplete() {
	if !s.tryFinish() {
		return
	}
	s.r.remove(s.id)
	f, err := frame.PackPayload(frame.StreamId(s.id), nil, nil, false, true)
	if err != nil {
		s.r.sink.Accept(err)
		return
	}
	if err := s.r.mux.Enqueue(f); err != nil {
		s.r.sink.Accept(err)
	}
}

func (s *rrResponder) OnError(err error) {
	if !s.tryFinish() {
		return
	}
	s.r.remove(s.id)
	code, msg := rerror.ToWireCode(err)
	s.r.sendError(s.id, code, msg)
}

func (s *rrResponder) invalid(err error) {
	if !s.tryFinish() {
		return
	}
	s.r.remove(s.id)
	s.mu.Lock()
	sub := s.sub
	s.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
	code, msg := rerror.ToWireCode(err)
	s.r.sendError(s.id, code, msg)
}

func (s *rrResponder) tryFinish() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	s.done = true
	return true
}

// fail tears the stream down on connection teardown: no frame is sent
// since the transport is already assumed gone.
func (s *rrResponder) fail(err error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	sub := s.sub
	s.mu.Unlock()
	s.r.remove(s.id)
	if sub != nil {
		sub.Cancel()
	}
}

// handleFrame handles frames the peer sends for this id after the handler
// has been invoked: only CANCEL is meaningful for request-response.
func (s *rrResponder) handleFrame(f frame.Frame) {
	if _, ok := f.(*frame.Cancel); ok {
		if !s.tryFinish() {
			return
		}
		s.r.remove(s.id)
		s.mu.Lock()
		sub := s.sub
		s.mu.Unlock()
		if sub != nil {
			sub.Cancel()
		}
	}
}
