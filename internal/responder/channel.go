package responder

import (
	"sync"

	"github.com/streamwire/rsocket/internal/frame"
	"github.com/streamwire/rsocket/internal/payload"
	"github.com/streamwire/rsocket/internal/reactive"
	"github.com/streamwire/rsocket/internal/rerror"
	"github.com/streamwire/rsocket/internal/streamid"
)

// channelInbound is the Publisher the handler subscribes to for the
// peer's half of a request-channel: a small buffered pipe fed by push,
// complete, and fail as REQUEST_CHANNEL/PAYLOAD/ERROR frames arrive for
// the stream. It exists independently of the handler's subscription so
// the first payload can be buffered before the handler ever subscribes.
type channelInbound struct {
	requestN func(uint64)
	onCancel func()

	mu               sync.Mutex
	sub              reactive.Subscriber
	demand           uint64
	buf              []*payload.Payload
	completed        bool
	delivered        bool
	err              error
	firstRequestDone bool
	cancelled        bool
}

func newChannelInbound(requestN func(uint64), onCancel func()) *channelInbound {
	return &channelInbound{requestN: requestN, onCancel: onCancel}
}

func (p *channelInbound) Subscribe(sub reactive.Subscriber) {
	p.mu.Lock()
	p.sub = sub
	p.mu.Unlock()
	sub.OnSubscribe(p)
}

// push buffers an inbound payload until the handler has demand for it.
func (p *channelInbound) push(pl *payload.Payload) {
	p.mu.Lock()
	if p.sub == nil || p.demand == 0 {
		p.buf = append(p.buf, pl)
		p.mu.Unlock()
		return
	}
	p.demand--
	sub := p.sub
	p.mu.Unlock()
	sub.OnNext(pl)
}

func (p *channelInbound) complete() {
	p.mu.Lock()
	p.completed = true
	if p.sub == nil || len(p.buf) > 0 || p.delivered {
		p.mu.Unlock()
		return
	}
	p.delivered = true
	sub := p.sub
	p.mu.Unlock()
	sub.OnComplete()
}

func (p *channelInbound) fail(err error) {
	p.mu.Lock()
	if p.delivered {
		p.mu.Unlock()
		return
	}
	p.delivered = true
	p.err = err
	sub := p.sub
	p.mu.Unlock()
	if sub != nil {
		sub.OnError(err)
	}
}

// Request is the reactive.Subscription method the handler calls. The
// very first demand signal is translated to one less than requested on
// the wire, since the initial payload already arrived with
// REQUEST_CHANNEL itself and needs no credit of its own.
func (p *channelInbound) Request(n uint64) {
	if n == 0 {
		return
	}
	p.mu.Lock()
	wire := n
	if !p.firstRequestDone {
		p.firstRequestDone = true
		wire = n - 1
	}
	p.demand += n
	var toDeliver []*payload.Payload
	for p.demand > 0 && len(p.buf) > 0 {
		toDeliver = append(toDeliver, p.buf[0])
		p.buf = p.buf[1:]
		p.demand--
	}
	finishNow := p.completed && len(p.buf) == 0 && !p.delivered
	if finishNow {
		p.delivered = true
	}
	sub := p.sub
	p.mu.Unlock()

	for _, pl := range toDeliver {
		sub.OnNext(pl)
	}
	if finishNow {
		sub.OnComplete()
	}
	if wire > 0 {
		p.requestN(wire)
	}
}

func (p *channelInbound) Cancel() {
	p.mu.Lock()
	if p.cancelled {
		p.mu.Unlock()
		return
	}
	p.cancelled = true
	p.completed = true
	p.delivered = true
	onCancel := p.onCancel
	p.mu.Unlock()
	if onCancel != nil {
		onCancel()
	}
}

// rcResponder drives the handler's output half of a request-channel
// interaction and routes inbound frames either to channelInbound (the
// peer's payloads) or to the handler's output subscription (REQUEST_N,
// CANCEL).
type rcResponder struct {
	r  *Responder
	id streamid.Id
	in *channelInbound
	// initialN is the REQUEST_CHANNEL frame's initial_request_n, requested
	// from the handler's output as soon as it subscribes.
	initialN uint64

	mu      sync.Mutex
	outSub  reactive.Subscription
	inDone  bool
	outDone bool
	removed bool
}

func (r *Responder) acceptRequestChannel(id streamid.Id, fr *frame.RequestChannel) error {
	s := &rcResponder{r: r, id: id, initialN: fr.InitialRequestN()}
	s.in = newChannelInbound(func(n uint64) {
		f, err := frame.PackRequestN(frame.StreamId(id), clampU31(n))
		if err != nil {
			r.sink.Accept(err)
			return
		}
		if err := r.mux.Enqueue(f); err != nil {
			r.sink.Accept(err)
		}
	}, s.cancelInbound)
	if !r.insert(id, s) {
		return &rerror.InvalidError{Message: "duplicate stream id"}
	}

	initial := newPayload(fr.Metadata(), fr.Data())
	s.in.push(initial)
	if fr.Complete() {
		s.mu.Lock()
		s.inDone = true
		s.mu.Unlock()
		s.in.complete()
	}

	r.handler.RequestChannel(s.in).Subscribe(s)
	return nil
}

func (s *rcResponder) OnSubscribe(sub reactive.Subscription) {
	s.mu.Lock()
	if s.outDone {
		s.mu.Unlock()
		sub.Cancel()
		return
	}
	s.outSub = sub
	s.mu.Unlock()
	if s.initialN > 0 {
		sub.Request(s.initialN)
	}
}

func (s *rcResponder) OnNext(p *payload.Payload) {
	if err := validate(s.r.mtu, p); err != nil {
		p.Release()
		s.invalidOutbound(err)
		return
	}
	s.mu.Lock()
	done := s.outDone
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

func (s *rcResponder) OnComplete() {
	s.mu.Lock()
	if s.outDone {
		s.mu.Unlock()
		return
	}
	s.outDone = true
	remove := s.inDone
	if remove {
		s.removed = true
	}
	s.mu.Unlock()

	f, err := frame.PackPayload(frame.StreamId(s.id), nil, nil, false, true)
	if err != nil {
		s.r.sink.Accept(err)
	} else if werr := s.r.mux.Enqueue(f); werr != nil {
		s.r.sink.Accept(werr)
	}
	if remove {
		s.r.remove(s.id)
	}
}

func (s *rcResponder) OnError(err error) {
	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return
	}
	s.inDone, s.outDone, s.removed = true, true, true
	s.mu.Unlock()

	s.in.fail(err)
	s.r.remove(s.id)
	code, msg := rerror.ToWireCode(err)
	s.r.sendError(s.id, code, msg)
}

// invalidOutbound handles a bad payload produced by the handler's output:
// this stream already exists (it was created by REQUEST_CHANNEL), so it
// fails with a stream-level ERROR rather than silence.
func (s *rcResponder) invalidOutbound(err error) {
	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return
	}
	s.inDone, s.outDone, s.removed = true, true, true
	s.mu.Unlock()

	s.in.fail(err)
	s.r.remove(s.id)
	code, msg := rerror.ToWireCode(err)
	s.r.sendError(s.id, code, msg)
}

func (s *rcResponder) fail(err error) {
	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return
	}
	s.inDone, s.outDone, s.removed = true, true, true
	s.mu.Unlock()
	s.r.remove(s.id)
	s.in.fail(err)
}

// cancelInbound tears down the whole interaction when the handler
// cancels its subscription to the channel's inbound processor: once the
// handler has given up reading, nothing will ever deliver more input to
// it, so the output subscription is cancelled and the peer is told the
// stream is gone rather than left believing the channel is still open.
func (s *rcResponder) cancelInbound() {
	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return
	}
	outSub := s.outSub
	s.inDone, s.outDone, s.removed = true, true, true
	s.mu.Unlock()

	if outSub != nil {
		outSub.Cancel()
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

func (s *rcResponder) handleFrame(f frame.Frame) {
	switch fr := f.(type) {
	case *frame.Payload:
		s.handlePayload(fr)
	case *frame.RequestN:
		s.mu.Lock()
		outSub := s.outSub
		done := s.outDone
		s.mu.Unlock()
		if !done && outSub != nil {
			outSub.Request(uint64(fr.N()))
		}
	case *frame.Cancel:
		s.handleCancel()
	case *frame.Error:
		s.handleRemoteError(fr)
	}
}

func (s *rcResponder) handlePayload(fr *frame.Payload) {
	s.mu.Lock()
	done := s.inDone
	s.mu.Unlock()
	if done {
		return
	}
	if fr.Next() {
		s.in.push(newPayload(fr.Metadata(), fr.Data()))
	}
	if fr.Complete() {
		s.mu.Lock()
		if s.inDone {
			s.mu.Unlock()
			return
		}
		s.inDone = true
		remove := s.outDone
		if remove {
			s.removed = true
		}
		s.mu.Unlock()
		s.in.complete()
		if remove {
			s.r.remove(s.id)
		}
	}
}

// handleCancel: the peer no longer wants our output. Only the output
// leg closes; the inbound leg stays open until its own terminal frame.
func (s *rcResponder) handleCancel() {
	s.mu.Lock()
	if s.outDone {
		s.mu.Unlock()
		return
	}
	s.outDone = true
	outSub := s.outSub
	remove := s.inDone
	if remove {
		s.removed = true
	}
	s.mu.Unlock()

	if outSub != nil {
		outSub.Cancel()
	}
	if remove {
		s.r.remove(s.id)
	}
}

func (s *rcResponder) handleRemoteError(fr *frame.Error) {
	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return
	}
	outSub := s.outSub
	s.inDone, s.outDone, s.removed = true, true, true
	s.mu.Unlock()

	if outSub != nil {
		outSub.Cancel()
	}
	s.r.remove(s.id)
	s.in.fail(rerror.FromFrame(fr))
}
