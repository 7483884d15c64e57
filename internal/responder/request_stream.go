package responder

import (
	"sync"

	"github.com/streamwire/rsocket/internal/frame"
	"github.com/streamwire/rsocket/internal/payload"
	"github.com/streamwire/rsocket/internal/reactive"
	"github.com/streamwire/rsocket/internal/rerror"
	"github.com/streamwire/rsocket/internal/streamid"
)

// rsResponder drives one request-stream interaction's reply sequence,
// pacing it by the peer's REQUEST_N frames (after an initial pull of
// initial_request_n).
type rsResponder struct {
	r  *Responder
	id streamid.Id

	mu   sync.Mutex
	sub  reactive.Subscription
	done bool
}

func (r *Responder) acceptRequestStream(id streamid.Id, fr *frame.RequestStream) error {
	s := &rsResponder{r: r, id: id}
	if !r.insert(id, s) {
		return &rerror.InvalidError{Message: "duplicate stream id"}
	}

	p := newPayload(fr.Metadata(), fr.Data())
	initialN := fr.InitialRequestN()
	r.handler.RequestStream(p).Subscribe(&rsStarter{rsResponder: s, initialN: initialN})
	return nil
}

// rsStarter adapts rsResponder to capture the handler-chosen demand hook:
// its only job is to request initial_request_n as soon as the handler
// subscribes, then hand off to rsResponder for everything else.
type rsStarter struct {
	*rsResponder
	initialN uint64
}

func (s *rsStarter) OnSubscribe(sub reactive.Subscription) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		sub.Cancel()
		return
	}
	s.sub = sub
	s.mu.Unlock()
	if s.initialN > 0 {
		sub.Request(s.initialN)
	}
}

func (s *rsResponder) OnNext(p *payload.Payload) {
	if err := validate(s.r.mtu, p); err != nil {
		p.Release()
		s.invalid(err)
		return
	}
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done {
		p.Release()
		return
	}
	f, err := frame.PackPayload(frame.StreamId(s.id), p.Metadata(), p.Data(), true, false)
	if err != nil {
		p.Release()
		s.r.sink.Accept(err)
		return
	}
	if err := s.r.mux.Enqueue(f); err != nil {
		p.Release()
		s.fail(err)
		return
	}
	p.Release()
}

func (s *rsResponder) OnComplete() {
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

func (s *rsResponder) OnError(err error) {
	if !s.tryFinish() {
		return
	}
	s.r.remove(s.id)
	code, msg := rerror.ToWireCode(err)
	s.r.sendError(s.id, code, msg)
}

func (s *rsResponder) invalid(err error) {
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

func (s *rsResponder) tryFinish() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	s.done = true
	return true
}

func (s *rsResponder) fail(err error) {
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

func (s *rsResponder) handleFrame(f frame.Frame) {
	switch f.(type) {
	case *frame.Cancel:
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
	case *frame.RequestN:
		fr := f.(*frame.RequestN)
		s.mu.Lock()
		done := s.done
		sub := s.sub
		s.mu.Unlock()
		if !done && sub != nil {
			sub.Request(uint64(fr.N()))
		}
	}
}
