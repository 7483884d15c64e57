package rsocket

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/streamwire/rsocket/internal/errsink"
	"github.com/streamwire/rsocket/internal/payload"
	"github.com/streamwire/rsocket/internal/reactive"
)

// fakeConn pairs two io.ReadWriteClosers over in-memory pipes, the same
// fixture shape as internal/muxado/session_test.go's newFakeConnPair.
type fakeConn struct {
	in     *io.PipeReader
	out    *io.PipeWriter
	mu     sync.Mutex
	closed bool
}

func (c *fakeConn) Read(p []byte) (int, error)  { return c.in.Read(p) }
func (c *fakeConn) Write(p []byte) (int, error) { return c.out.Write(p) }
func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.in.Close()
	return c.out.Close()
}

func newFakeConnPair() (client, server io.ReadWriteCloser) {
	c, s := &fakeConn{}, &fakeConn{}
	c.in, s.out = io.Pipe()
	s.in, c.out = io.Pipe()
	return c, s
}

// stubHandler lets each test supply only the interaction it exercises;
// every other method falls back to a trivial default.
type stubHandler struct {
	fnf       func(*payload.Payload) reactive.Publisher
	reqResp   func(*payload.Payload) reactive.Publisher
	reqStream func(*payload.Payload) reactive.Publisher
	reqChan   func(reactive.Publisher) reactive.Publisher
	metaPush  func(*payload.Payload) reactive.Publisher
}

func (h *stubHandler) FireAndForget(p *payload.Payload) reactive.Publisher {
	if h.fnf != nil {
		return h.fnf(p)
	}
	p.Release()
	return completed()
}

func (h *stubHandler) RequestResponse(p *payload.Payload) reactive.Publisher {
	if h.reqResp != nil {
		return h.reqResp(p)
	}
	return single(p)
}

func (h *stubHandler) RequestStream(p *payload.Payload) reactive.Publisher {
	if h.reqStream != nil {
		return h.reqStream(p)
	}
	p.Release()
	return completed()
}

func (h *stubHandler) RequestChannel(in reactive.Publisher) reactive.Publisher {
	if h.reqChan != nil {
		return h.reqChan(in)
	}
	return completed()
}

func (h *stubHandler) MetadataPush(p *payload.Payload) reactive.Publisher {
	if h.metaPush != nil {
		return h.metaPush(p)
	}
	p.Release()
	return completed()
}

func completed() reactive.Publisher {
	return reactive.PublisherFunc(func(sub reactive.Subscriber) {
		sub.OnSubscribe(reactive.NoopSubscription{})
		sub.OnComplete()
	})
}

func single(p *payload.Payload) reactive.Publisher {
	return reactive.PublisherFunc(func(sub reactive.Subscriber) {
		sub.OnSubscribe(&singleSub{p: p, sub: sub})
	})
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

func (s *singleSub) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sent {
		s.sent = true
		s.p.Release()
	}
}

func newPair(t *testing.T, clientHandler, serverHandler Handler) (client, server *Connection) {
	t.Helper()
	cc, sc := newFakeConnPair()
	cfg := &Config{ErrorSink: errsink.DiscardSink{}}
	client = NewClient(cc, clientHandler, cfg)
	server = NewServer(sc, serverHandler, cfg)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestRequestResponseHappyPath(t *testing.T) {
	t.Parallel()
	client, _ := newPair(t, &stubHandler{}, &stubHandler{
		reqResp: func(p *payload.Payload) reactive.Publisher {
			return single(payload.New([]byte("pong"), nil, nil))
		},
	})

	var got *payload.Payload
	done := make(chan struct{})
	client.RequestResponse(payload.New([]byte("ping"), nil, nil)).Subscribe(reactive.SubscriberFuncs{
		Subscribe: func(s reactive.Subscription) { s.Request(1) },
		Next:      func(p *payload.Payload) { got = p },
		Complete:  func() { close(done) },
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
	}
	require.Equal(t, "pong", string(got.Data()))
	got.Release()
}

func TestRequestResponseHandlerError(t *testing.T) {
	t.Parallel()
	client, _ := newPair(t, &stubHandler{}, &stubHandler{
		reqResp: func(p *payload.Payload) reactive.Publisher {
			p.Release()
			return reactive.PublisherFunc(func(sub reactive.Subscriber) {
				sub.OnSubscribe(reactive.NoopSubscription{})
				sub.OnError(errors.New("boom"))
			})
		},
	})

	errCh := make(chan error, 1)
	client.RequestResponse(payload.New(nil, nil, nil)).Subscribe(reactive.SubscriberFuncs{
		Subscribe: func(s reactive.Subscription) { s.Request(1) },
		Err:       func(err error) { errCh <- err },
	})

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error")
	}
}

func TestFireAndForgetReachesHandler(t *testing.T) {
	t.Parallel()
	called := make(chan string, 1)
	client, _ := newPair(t, &stubHandler{}, &stubHandler{
		fnf: func(p *payload.Payload) reactive.Publisher {
			called <- string(p.Data())
			p.Release()
			return completed()
		},
	})

	client.FireAndForget(payload.New([]byte("hi"), nil, nil)).Subscribe(reactive.SubscriberFuncs{})

	select {
	case v := <-called:
		require.Equal(t, "hi", v)
	case <-time.After(2 * time.Second):
		t.Fatal("fire-and-forget never reached handler")
	}
}

func TestMetadataPushReachesHandler(t *testing.T) {
	t.Parallel()
	called := make(chan string, 1)
	client, _ := newPair(t, &stubHandler{}, &stubHandler{
		metaPush: func(p *payload.Payload) reactive.Publisher {
			called <- string(p.Metadata())
			p.Release()
			return completed()
		},
	})

	client.MetadataPush(payload.New(nil, []byte("route-me"), nil)).Subscribe(reactive.SubscriberFuncs{})

	select {
	case v := <-called:
		require.Equal(t, "route-me", v)
	case <-time.After(2 * time.Second):
		t.Fatal("metadata push never reached handler")
	}
}

func TestCloseIsIdempotentAndUnblocksWait(t *testing.T) {
	t.Parallel()
	client, _ := newPair(t, &stubHandler{}, &stubHandler{})

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not unblock Done")
	}
	require.ErrorIs(t, client.Wait(), ErrClosed)
}

func TestLeaseHandlerRejectsWithoutTouchingWire(t *testing.T) {
	t.Parallel()
	leaseErr := errors.New("no lease available")
	cc, sc := newFakeConnPair()
	cfg := &Config{
		ErrorSink: errsink.DiscardSink{},
		Lease:     &fakeLease{allow: false, err: leaseErr},
	}
	client := NewClient(cc, &stubHandler{}, cfg)
	server := NewServer(sc, &stubHandler{
		reqResp: func(p *payload.Payload) reactive.Publisher {
			t.Fatal("handler should never be invoked when the lease rejects the request")
			return completed()
		},
	}, cfg)
	t.Cleanup(func() { client.Close(); server.Close() })

	errCh := make(chan error, 1)
	client.RequestResponse(payload.New(nil, nil, nil)).Subscribe(reactive.SubscriberFuncs{
		Err: func(err error) { errCh <- err },
	})

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, leaseErr)
	case <-time.After(time.Second):
		t.Fatal("lease rejection never reached the caller")
	}
}

type fakeLease struct {
	allow bool
	err   error
}

func (l *fakeLease) UseLease() bool   { return l.allow }
func (l *fakeLease) LeaseError() error { return l.err }
