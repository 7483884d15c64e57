package responder

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/streamwire/rsocket/internal/errsink"
	"github.com/streamwire/rsocket/internal/frame"
	"github.com/streamwire/rsocket/internal/mux"
	"github.com/streamwire/rsocket/internal/payload"
	"github.com/streamwire/rsocket/internal/reactive"
)

type recordingFramer struct {
	mu      sync.Mutex
	written []frame.Frame
}

func (f *recordingFramer) WriteFrame(fr frame.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
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

func waitLen(t *testing.T, fr *recordingFramer, n int) []frame.Frame {
	t.Helper()
	require.Eventually(t, func() bool { return len(fr.snapshot()) >= n }, time.Second, time.Millisecond)
	return fr.snapshot()
}

// fakeHandler lets each test supply only the interaction it exercises;
// the rest panic if called, surfacing test bugs immediately.
type fakeHandler struct {
	fnf       func(*payload.Payload) reactive.Publisher
	reqResp   func(*payload.Payload) reactive.Publisher
	reqStream func(*payload.Payload) reactive.Publisher
	reqChan   func(reactive.Publisher) reactive.Publisher
}

func (h *fakeHandler) FireAndForget(p *payload.Payload) reactive.Publisher    { return h.fnf(p) }
func (h *fakeHandler) RequestResponse(p *payload.Payload) reactive.Publisher { return h.reqResp(p) }
func (h *fakeHandler) RequestStream(p *payload.Payload) reactive.Publisher   { return h.reqStream(p) }
func (h *fakeHandler) RequestChannel(in reactive.Publisher) reactive.Publisher {
	return h.reqChan(in)
}
func (h *fakeHandler) MetadataPush(p *payload.Payload) reactive.Publisher { panic("not used") }

func newHarness(t *testing.T, h *fakeHandler) (*Responder, *recordingFramer) {
	t.Helper()
	fr := &recordingFramer{}
	m := mux.New(fr, 16)
	go m.Run()
	t.Cleanup(func() { m.Close(nil) })
	return New(m, 0, errsink.DiscardSink{}, h), fr
}

// single is a Publisher that emits exactly one payload then completes,
// once subscribed and given at least one unit of demand.
type single struct {
	p *payload.Payload
}

func (s *single) Subscribe(sub reactive.Subscriber) {
	sub.OnSubscribe(&singleSub{p: s.p, sub: sub})
}

type singleSub struct {
	mu   sync.Mutex
	p    *payload.Payload
	sub  reactive.Subscriber
	sent bool
}

func (s *singleSub) Request(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent || n == 0 {
		return
	}
	s.sent = true
	sub, p := s.sub, s.p
	sub.OnNext(p)
	sub.OnComplete()
}

func (s *singleSub) Cancel() {}

// empty is a Publisher that completes immediately with no value, once
// subscribed and given at least one unit of demand.
type empty struct{}

func (empty) Subscribe(sub reactive.Subscriber) {
	sub.OnSubscribe(&emptySub{sub: sub})
}

type emptySub struct {
	mu   sync.Mutex
	sub  reactive.Subscriber
	done bool
}

func (s *emptySub) Request(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done || n == 0 {
		return
	}
	s.done = true
	s.sub.OnComplete()
}

func (s *emptySub) Cancel() {}

func TestAcceptFNFInvokesHandlerAndSendsNoFrame(t *testing.T) {
	invoked := make(chan struct{}, 1)
	h := &fakeHandler{fnf: func(p *payload.Payload) reactive.Publisher {
		invoked <- struct{}{}
		p.Release()
		return empty{}
	}}
	r, fr := newHarness(t, h)

	f, err := frame.PackRequestFNF(1, nil, []byte("hi"))
	require.NoError(t, err)
	require.NoError(t, r.Accept(f))

	select {
	case <-invoked:
	case <-time.After(time.Second):
		t.Fatal("handler never invoked")
	}
	time.Sleep(10 * time.Millisecond)
	require.Empty(t, fr.snapshot())
}

func TestAcceptRequestResponseHappyPath(t *testing.T) {
	h := &fakeHandler{reqResp: func(p *payload.Payload) reactive.Publisher {
		require.Equal(t, []byte("ping"), p.Data())
		p.Release()
		return &single{p: payload.New([]byte("pong"), nil, nil)}
	}}
	r, fr := newHarness(t, h)

	f, err := frame.PackRequestResponse(7, nil, []byte("ping"))
	require.NoError(t, err)
	require.NoError(t, r.Accept(f))

	written := waitLen(t, fr, 1)
	require.Equal(t, frame.TypePayload, written[0].Type())
	pf := written[0].(*frame.Payload)
	require.True(t, pf.Next())
	require.True(t, pf.Complete())
	require.Equal(t, []byte("pong"), pf.Data())
	require.EqualValues(t, 7, pf.StreamId())
}

func TestAcceptRequestResponseNoValueSendsEmptyComplete(t *testing.T) {
	h := &fakeHandler{reqResp: func(p *payload.Payload) reactive.Publisher {
		p.Release()
		return empty{}
	}}
	r, fr := newHarness(t, h)

	f, err := frame.PackRequestResponse(3, nil, nil)
	require.NoError(t, err)
	require.NoError(t, r.Accept(f))

	written := waitLen(t, fr, 1)
	pf := written[0].(*frame.Payload)
	require.False(t, pf.Next())
	require.True(t, pf.Complete())
}

func TestAcceptRequestResponseInvalidReplySendsError(t *testing.T) {
	// with mtu 0 a FrameLengthMask-byte payload cannot fit one frame
	big := make([]byte, payload.FrameLengthMask)
	h := &fakeHandler{reqResp: func(p *payload.Payload) reactive.Publisher {
		p.Release()
		return &single{p: payload.New(big, nil, nil)}
	}}
	r, fr := newHarness(t, h)

	f, err := frame.PackRequestResponse(1, nil, nil)
	require.NoError(t, err)
	require.NoError(t, r.Accept(f))

	written := waitLen(t, fr, 1)
	require.Equal(t, frame.TypeError, written[0].Type())
	ef := written[0].(*frame.Error)
	require.Equal(t, frame.ErrorCodeInvalid, ef.ErrorCode())
}

func TestAcceptRequestResponseDuplicateIdRejected(t *testing.T) {
	block := make(chan struct{})
	h := &fakeHandler{reqResp: func(p *payload.Payload) reactive.Publisher {
		p.Release()
		return reactive.PublisherFunc(func(sub reactive.Subscriber) {
			sub.OnSubscribe(reactive.NoopSubscription{})
			go func() { <-block }() // keep the handler "in flight" without blocking Subscribe
		})
	}}
	r, _ := newHarness(t, h)
	defer close(block)

	f, err := frame.PackRequestResponse(9, nil, nil)
	require.NoError(t, err)
	require.NoError(t, r.Accept(f))
	require.Error(t, r.Accept(f))
}

// demandList plays back items according to demand, completing once every
// item has been delivered.
type demandList struct {
	items []*payload.Payload
}

func (d *demandList) Subscribe(sub reactive.Subscriber) {
	sub.OnSubscribe(&demandListSub{items: d.items, sub: sub})
}

type demandListSub struct {
	mu     sync.Mutex
	items  []*payload.Payload
	idx    int
	sub    reactive.Subscriber
	cancel bool
}

func (s *demandListSub) Request(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ; n > 0 && s.idx < len(s.items) && !s.cancel; n-- {
		p := s.items[s.idx]
		s.idx++
		s.sub.OnNext(p)
	}
	if s.idx == len(s.items) && !s.cancel {
		s.sub.OnComplete()
	}
}

func (s *demandListSub) Cancel() { s.cancel = true }

func TestAcceptRequestStreamPullsInitialRequestN(t *testing.T) {
	var gotInitial uint64
	h := &fakeHandler{reqStream: func(p *payload.Payload) reactive.Publisher {
		p.Release()
		return reactive.PublisherFunc(func(sub reactive.Subscriber) {
			s := &demandListSub{items: []*payload.Payload{
				payload.New([]byte("a"), nil, nil),
				payload.New([]byte("b"), nil, nil),
			}, sub: sub}
			sub.OnSubscribe(&capturingSub{demandListSub: s, captured: &gotInitial})
		})
	}}
	r, fr := newHarness(t, h)

	f, err := frame.PackRequestStream(5, 2, nil, nil)
	require.NoError(t, err)
	require.NoError(t, r.Accept(f))

	written := waitLen(t, fr, 3) // PAYLOAD(a), PAYLOAD(b), PAYLOAD(COMPLETE)
	require.EqualValues(t, 2, gotInitial)
	require.True(t, written[0].(*frame.Payload).Next())
	require.True(t, written[1].(*frame.Payload).Next())
	require.True(t, written[2].(*frame.Payload).Complete())
}

type capturingSub struct {
	*demandListSub
	captured *uint64
}

func (c *capturingSub) Request(n uint64) {
	*c.captured = n
	c.demandListSub.Request(n)
}

func TestAcceptRequestStreamInvalidItemSendsErrorAndCancelsHandler(t *testing.T) {
	// with mtu 0 a FrameLengthMask-byte payload cannot fit one frame
	big := make([]byte, payload.FrameLengthMask)
	canceled := make(chan struct{}, 1)
	h := &fakeHandler{reqStream: func(p *payload.Payload) reactive.Publisher {
		p.Release()
		return reactive.PublisherFunc(func(sub reactive.Subscriber) {
			sub.OnSubscribe(&trackingSub{items: []*payload.Payload{payload.New(big, nil, nil)}, sub: sub, onCancel: canceled})
		})
	}}
	r, fr := newHarness(t, h)

	f, err := frame.PackRequestStream(1, 1, nil, nil)
	require.NoError(t, err)
	require.NoError(t, r.Accept(f))

	written := waitLen(t, fr, 1)
	require.Equal(t, frame.TypeError, written[0].Type())
	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("handler subscription never canceled")
	}
}

type trackingSub struct {
	items    []*payload.Payload
	sub      reactive.Subscriber
	onCancel chan struct{}
}

func (s *trackingSub) Request(n uint64) {
	for _, p := range s.items {
		s.sub.OnNext(p)
	}
}

func (s *trackingSub) Cancel() {
	select {
	case s.onCancel <- struct{}{}:
	default:
	}
}

func TestAcceptRequestChannelPushesInitialPayloadBeforeSubscribe(t *testing.T) {
	var received []byte
	gotFirst := make(chan struct{}, 1)
	h := &fakeHandler{reqChan: func(in reactive.Publisher) reactive.Publisher {
		in.Subscribe(reactive.SubscriberFuncs{
			Subscribe: func(sub reactive.Subscription) { sub.Request(1) },
			Next: func(p *payload.Payload) {
				received = append([]byte(nil), p.Data()...)
				p.Release()
				gotFirst <- struct{}{}
			},
		})
		return empty{}
	}}
	r, fr := newHarness(t, h)

	f, err := frame.PackRequestChannel(1, 1, nil, []byte("first"), false)
	require.NoError(t, err)
	require.NoError(t, r.Accept(f))

	select {
	case <-gotFirst:
	case <-time.After(time.Second):
		t.Fatal("handler never received the initial payload")
	}
	require.Equal(t, []byte("first"), received)
	waitLen(t, fr, 1) // empty output completes with PAYLOAD(COMPLETE)
}

func TestAcceptRequestChannelFirstDemandTranslatesToNMinusOneOnWire(t *testing.T) {
	h := &fakeHandler{reqChan: func(in reactive.Publisher) reactive.Publisher {
		in.Subscribe(reactive.SubscriberFuncs{
			Subscribe: func(sub reactive.Subscription) { sub.Request(3) },
			Next:      func(p *payload.Payload) { p.Release() },
		})
		return empty{}
	}}
	r, fr := newHarness(t, h)

	f, err := frame.PackRequestChannel(1, 1, nil, []byte("first"), false)
	require.NoError(t, err)
	require.NoError(t, r.Accept(f))

	// handler asked for 3 total; 1 was satisfied by the payload bundled
	// with REQUEST_CHANNEL itself, so only 2 more should be requested
	// from the peer over the wire.
	written := waitLen(t, fr, 2) // REQUEST_N, PAYLOAD(COMPLETE)
	rn, ok := written[0].(*frame.RequestN)
	require.True(t, ok, "expected REQUEST_N first, got %T", written[0])
	require.EqualValues(t, 2, rn.N())
}

func TestAcceptRequestChannelCancelClosesOutputLegOnly(t *testing.T) {
	outCanceled := make(chan struct{}, 1)
	h := &fakeHandler{reqChan: func(in reactive.Publisher) reactive.Publisher {
		in.Subscribe(reactive.SubscriberFuncs{Subscribe: func(sub reactive.Subscription) { sub.Request(1) }})
		return reactive.PublisherFunc(func(sub reactive.Subscriber) {
			sub.OnSubscribe(&trackingSub{onCancel: outCanceled})
		})
	}}
	r, fr := newHarness(t, h)

	f, err := frame.PackRequestChannel(4, 1, nil, []byte("first"), false)
	require.NoError(t, err)
	require.NoError(t, r.Accept(f))

	cancel, err := frame.PackCancel(4)
	require.NoError(t, err)
	require.True(t, r.Dispatch(cancel))

	select {
	case <-outCanceled:
	case <-time.After(time.Second):
		t.Fatal("output subscription never canceled")
	}
	time.Sleep(10 * time.Millisecond)
	require.Empty(t, fr.snapshot())

	// inbound leg still open: a further inbound payload still routes
	// without panicking, proving the entry wasn't removed yet.
	p, err := frame.PackPayload(4, nil, []byte("more"), true, false)
	require.NoError(t, err)
	require.True(t, r.Dispatch(p))
}

func TestAcceptRequestChannelHandlerCancelInboundTearsDownStream(t *testing.T) {
	outCanceled := make(chan struct{}, 1)
	h := &fakeHandler{reqChan: func(in reactive.Publisher) reactive.Publisher {
		in.Subscribe(reactive.SubscriberFuncs{
			Subscribe: func(sub reactive.Subscription) {
				sub.Request(1)
				sub.Cancel()
			},
			Next: func(p *payload.Payload) { p.Release() },
		})
		return reactive.PublisherFunc(func(sub reactive.Subscriber) {
			sub.OnSubscribe(&trackingSub{onCancel: outCanceled})
		})
	}}
	r, fr := newHarness(t, h)

	f, err := frame.PackRequestChannel(6, 1, nil, []byte("first"), false)
	require.NoError(t, err)
	require.NoError(t, r.Accept(f))

	select {
	case <-outCanceled:
	case <-time.After(time.Second):
		t.Fatal("output subscription never canceled")
	}

	written := waitLen(t, fr, 1)
	require.Equal(t, frame.TypeCancel, written[0].Type())

	// the entry is gone from the channel table: a further inbound payload
	// for the same id no longer routes anywhere.
	p, err := frame.PackPayload(6, nil, []byte("more"), true, false)
	require.NoError(t, err)
	require.False(t, r.Dispatch(p))
}
