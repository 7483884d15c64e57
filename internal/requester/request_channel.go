package requester

import (
	"sync"

	"github.com/streamwire/rsocket/internal/frame"
	"github.com/streamwire/rsocket/internal/payload"
	"github.com/streamwire/rsocket/internal/reactive"
	"github.com/streamwire/rsocket/internal/rerror"
	"github.com/streamwire/rsocket/internal/streamid"
)

// rcStream drives one request-channel interaction. It plays two roles at
// once: it is the reactive.Subscription the local inbound consumer (sub)
// holds, and it is the reactive.Subscriber the local outbound producer
// (outP) is subscribed with. The two legs close independently; the stream
// is removed from the table only once both have closed, or immediately
// on an ERROR from either side or a local Cancel. A CANCEL from the peer
// closes only the outbound leg.
type rcStream struct {
	r    *Requester
	outP reactive.Publisher
	sub  reactive.Subscriber

	mu              sync.Mutex
	id              streamid.Id
	started         bool // local consumer has signaled demand at least once
	idAssigned      bool // REQUEST_CHANNEL has actually been sent with a real id
	pendingInitialN uint64
	inDone          bool // inbound leg (peer -> local) closed
	outDone         bool // outbound leg (local -> peer) closed
	removed         bool // table entry has been (or never will be) removed
	outSub          reactive.Subscription
}

// RequestChannel sends the first payload produced by outbound as a
// REQUEST_CHANNEL once the returned Publisher's subscriber first signals
// demand, then relays outbound's remaining production as PAYLOAD frames
// paced by the peer's REQUEST_N, while delivering the peer's inbound
// payloads to the subscriber.
func (r *Requester) RequestChannel(outbound reactive.Publisher) reactive.Publisher {
	return reactive.PublisherFunc(func(sub reactive.Subscriber) {
		s := &rcStream{r: r, outP: outbound, sub: reactive.NewSerializedSubscriber(sub)}
		s.sub.OnSubscribe(s)
	})
}

////////////////////////////////////////////////////////////////////////////
// reactive.Subscription, as seen by the local inbound consumer
////////////////////////////////////////////////////////////////////////////

func (s *rcStream) Request(n uint64) {
	if n == 0 {
		return
	}
	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return
	}
	if !s.started {
		s.started = true
		s.pendingInitialN = n
		s.mu.Unlock()
		s.outP.Subscribe(s)
		return
	}
	id := s.id
	assigned := s.idAssigned
	if !assigned {
		// REQUEST_CHANNEL hasn't gone out yet (still waiting on the first
		// outbound payload); fold this demand into the initial frame.
		s.pendingInitialN = saturatingAdd(s.pendingInitialN, n)
	}
	s.mu.Unlock()
	if !assigned {
		return
	}

	f, err := frame.PackRequestN(frame.StreamId(id), clampU31(n))
	if err != nil {
		s.r.sink.Accept(err)
		return
	}
	if err := s.r.mux.Enqueue(f); err != nil {
		s.r.sink.Accept(err)
	}
}

// Cancel sends CANCEL (if a REQUEST_CHANNEL was ever sent) and also
// cancels the local outbound producer, tearing down both legs at once.
func (s *rcStream) Cancel() {
	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return
	}
	id := s.id
	assigned := s.idAssigned
	outSub := s.outSub
	s.inDone, s.outDone, s.removed = true, true, true
	s.mu.Unlock()

	if outSub != nil {
		outSub.Cancel()
	}
	if !assigned {
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

// fail is used for connection-level teardown and local send failures.
func (s *rcStream) fail(err error) {
	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return
	}
	id := s.id
	outSub := s.outSub
	s.inDone, s.outDone, s.removed = true, true, true
	s.mu.Unlock()

	if outSub != nil {
		outSub.Cancel()
	}
	s.r.remove(id)
	s.sub.OnError(err)
}

////////////////////////////////////////////////////////////////////////////
// reactive.Subscriber, as seen by the local outbound producer
////////////////////////////////////////////////////////////////////////////

func (s *rcStream) OnSubscribe(outSub reactive.Subscription) {
	s.mu.Lock()
	s.outSub = outSub
	s.mu.Unlock()
	outSub.Request(1) // pull exactly the payload REQUEST_CHANNEL will carry
}

func (s *rcStream) OnNext(p *payload.Payload) {
	s.mu.Lock()
	first := !s.idAssigned
	s.mu.Unlock()

	if first {
		s.sendFirst(p)
		return
	}

	if err := validate(s.r.mtu, p); err != nil {
		p.Release()
		s.failInvalidOutbound(err)
		return
	}

	s.mu.Lock()
	id := s.id
	s.mu.Unlock()

	f, err := frame.PackPayload(frame.StreamId(id), p.Metadata(), p.Data(), true, false)
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

func (s *rcStream) sendFirst(p *payload.Payload) {
	if err := validate(s.r.mtu, p); err != nil {
		p.Release()
		// Nothing was ever sent for this id; there's no CANCEL to emit.
		s.sub.OnError(err)
		return
	}

	id, err := s.r.allocate(s)
	if err != nil {
		p.Release()
		s.sub.OnError(err)
		return
	}
	s.mu.Lock()
	cancelled := s.removed
	s.id = id
	s.idAssigned = true
	n := s.pendingInitialN
	s.mu.Unlock()

	f, err := frame.PackRequestChannel(frame.StreamId(id), n, p.Metadata(), p.Data(), false)
	if err != nil {
		s.r.remove(id)
		p.Release()
		s.sub.OnError(err)
		return
	}
	if err := s.r.mux.Enqueue(f); err != nil {
		p.Release()
		if cancelled {
			s.sendCancelAfterOpen(id)
		} else {
			s.fail(err)
		}
		return
	}
	p.Release()

	// A racing Cancel saw idAssigned still false and returned without
	// sending anything; REQUEST_CHANNEL just opened the id, so the
	// follow-up CANCEL it owed is sent now instead.
	if cancelled {
		s.sendCancelAfterOpen(id)
	}
}

// sendCancelAfterOpen emits CANCEL and removes the table entry for a
// stream whose local consumer cancelled before REQUEST_CHANNEL could be
// sent. REQUEST_CHANNEL still had to go out first since it's the only
// frame that can open the id.
func (s *rcStream) sendCancelAfterOpen(id streamid.Id) {
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

func (s *rcStream) OnComplete() {
	s.mu.Lock()
	if !s.idAssigned {
		n := s.pendingInitialN
		s.mu.Unlock()
		s.sendEmptyComplete(n)
		return
	}
	if s.outDone {
		s.mu.Unlock()
		return
	}
	s.outDone = true
	id := s.id
	remove := s.inDone
	if remove {
		s.removed = true
	}
	s.mu.Unlock()

	f, err := frame.PackPayload(frame.StreamId(id), nil, nil, false, true)
	if err != nil {
		s.r.sink.Accept(err)
	} else if werr := s.r.mux.Enqueue(f); werr != nil {
		s.r.sink.Accept(werr)
	}
	if remove {
		s.r.remove(id)
	}
}

// sendEmptyComplete handles an outbound producer that completes before
// ever emitting a payload: REQUEST_CHANNEL must still be sent (it's the
// only frame that can open the stream), carrying no data and its own
// complete flag set.
func (s *rcStream) sendEmptyComplete(n uint64) {
	id, err := s.r.allocate(s)
	if err != nil {
		s.sub.OnError(err)
		return
	}
	s.mu.Lock()
	cancelled := s.removed
	s.id = id
	s.idAssigned = true
	s.outDone = true
	remove := s.inDone
	if remove {
		s.removed = true
	}
	s.mu.Unlock()

	f, err := frame.PackRequestChannel(frame.StreamId(id), n, nil, nil, true)
	if err != nil {
		s.r.remove(id)
		s.sub.OnError(err)
		return
	}
	if werr := s.r.mux.Enqueue(f); werr != nil {
		s.r.sink.Accept(werr)
	}

	// A racing Cancel saw idAssigned still false and returned without
	// sending anything; REQUEST_CHANNEL just opened the id, so the
	// follow-up CANCEL it owed is sent now instead of a plain removal.
	if cancelled {
		s.sendCancelAfterOpen(id)
		return
	}
	if remove {
		s.r.remove(id)
	}
}

func (s *rcStream) OnError(err error) {
	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return
	}
	wasAssigned := s.idAssigned
	id := s.id
	s.inDone, s.outDone, s.removed = true, true, true
	s.mu.Unlock()

	if wasAssigned {
		s.r.remove(id)
		code, msg := rerror.ToWireCode(err)
		f, perr := frame.PackError(frame.StreamId(id), code, []byte(msg))
		if perr != nil {
			s.r.sink.Accept(perr)
		} else if werr := s.r.mux.Enqueue(f); werr != nil {
			s.r.sink.Accept(werr)
		}
	}
	s.sub.OnError(err)
}

// failInvalidOutbound handles an invalid payload produced mid-channel by
// the local outbound: the REQUEST_CHANNEL for this id was already sent, so
// the stream fails with CANCEL rather than silence.
func (s *rcStream) failInvalidOutbound(err error) {
	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return
	}
	id := s.id
	outSub := s.outSub
	s.inDone, s.outDone, s.removed = true, true, true
	s.mu.Unlock()

	if outSub != nil {
		outSub.Cancel()
	}
	s.r.remove(id)
	f, perr := frame.PackCancel(frame.StreamId(id))
	if perr != nil {
		s.r.sink.Accept(perr)
	} else if werr := s.r.mux.Enqueue(f); werr != nil {
		s.r.sink.Accept(werr)
	}
	s.sub.OnError(err)
}

////////////////////////////////////////////////////////////////////////////
// inbound dispatch: frames arriving from the peer for this id
////////////////////////////////////////////////////////////////////////////

func (s *rcStream) handleFrame(f frame.Frame) {
	switch fr := f.(type) {
	case *frame.Payload:
		s.handlePayload(fr)
	case *frame.RequestN:
		s.mu.Lock()
		outSub := s.outSub
		s.mu.Unlock()
		if outSub != nil {
			outSub.Request(uint64(fr.N()))
		}
	case *frame.Cancel:
		s.handleCancel()
	case *frame.Error:
		s.handleError(fr)
	}
}

func (s *rcStream) handlePayload(fr *frame.Payload) {
	s.mu.Lock()
	done := s.inDone
	s.mu.Unlock()
	if done {
		return
	}

	if fr.Next() {
		s.sub.OnNext(newPayload(fr.Metadata(), fr.Data()))
	}
	if fr.Complete() {
		s.mu.Lock()
		if s.inDone {
			s.mu.Unlock()
			return
		}
		s.inDone = true
		remove := s.outDone
		id := s.id
		if remove {
			s.removed = true
		}
		s.mu.Unlock()
		s.sub.OnComplete()
		if remove {
			s.r.remove(id)
		}
	}
}

// handleCancel: the peer no longer wants our outbound payloads. Only the
// outbound leg closes; inbound delivery continues until its own terminal.
func (s *rcStream) handleCancel() {
	s.mu.Lock()
	if s.outDone {
		s.mu.Unlock()
		return
	}
	s.outDone = true
	outSub := s.outSub
	remove := s.inDone
	id := s.id
	if remove {
		s.removed = true
	}
	s.mu.Unlock()

	if outSub != nil {
		outSub.Cancel()
	}
	if remove {
		s.r.remove(id)
	}
}

func (s *rcStream) handleError(fr *frame.Error) {
	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return
	}
	id := s.id
	outSub := s.outSub
	s.inDone, s.outDone, s.removed = true, true, true
	s.mu.Unlock()

	if outSub != nil {
		outSub.Cancel()
	}
	s.r.remove(id)
	s.sub.OnError(rerror.FromFrame(fr))
}
