// Package requester implements the four RSocket interaction types from the
// initiating side: fire-and-forget, request-response, request-stream, and
// request-channel. Each returns a lazy reactive.Publisher; nothing is sent
// on the wire until it is subscribed, and every Subscribe starts an
// independent request with its own stream id.
package requester

import (
	"math"
	"sync"

	"github.com/streamwire/rsocket/internal/errsink"
	"github.com/streamwire/rsocket/internal/frame"
	"github.com/streamwire/rsocket/internal/mux"
	"github.com/streamwire/rsocket/internal/payload"
	"github.com/streamwire/rsocket/internal/rerror"
	"github.com/streamwire/rsocket/internal/streamid"
	"github.com/streamwire/rsocket/internal/streamtable"
)

// entry is what the connection driver needs from any requester-side stream
// to route an inbound frame to it.
type entry interface {
	handleFrame(frame.Frame)
}

// Requester issues interactions and tracks in-flight streams until each
// reaches a terminal frame or is locally cancelled.
type Requester struct {
	mux   *mux.Mux
	table *streamtable.Table[entry]
	ids   *streamid.Allocator
	mtu   int
	sink  errsink.Sink

	// allocMu makes "find a free id" and "install its entry" one step, so
	// no inbound frame can observe the id before the entry exists.
	allocMu sync.Mutex
}

// New builds a Requester that writes through m, allocates ids from ids,
// enforces the mtu-driven payload size limit, and reports orphaned errors
// to sink.
func New(m *mux.Mux, ids *streamid.Allocator, mtu int, sink errsink.Sink) *Requester {
	return &Requester{
		mux:   m,
		table: streamtable.New[entry](),
		ids:   ids,
		mtu:   mtu,
		sink:  sink,
	}
}

// Dispatch routes an inbound frame carrying a non-zero stream id to its
// requester-side stream, if one is registered. It reports whether an entry
// handled the frame so the connection driver can decide what to do with
// frames addressed to ids it doesn't own (e.g. hand them to the responder
// table instead).
func (r *Requester) Dispatch(f frame.Frame) bool {
	e, ok := r.table.Get(streamid.Id(f.StreamId()))
	if !ok {
		return false
	}
	e.handleFrame(f)
	return true
}

// failer is implemented by stream entries that can be torn down from the
// outside, used when the whole connection terminates.
type failer interface {
	fail(error)
}

// CancelAll forcibly fails every in-flight requester stream with err; used
// by the connection driver on transport close or fatal local error.
func (r *Requester) CancelAll(err error) {
	r.table.Each(func(id streamid.Id, e entry) {
		if f, ok := e.(failer); ok {
			f.fail(err)
		}
	})
}

// allocate reserves a fresh id of this connection's parity and installs e
// for it in the same critical section, so a colliding inbound frame can
// never find the id unregistered.
func (r *Requester) allocate(e entry) (streamid.Id, error) {
	r.allocMu.Lock()
	defer r.allocMu.Unlock()

	id, err := r.ids.Next(func(candidate streamid.Id) bool {
		return r.table.Has(candidate)
	})
	if err != nil {
		return 0, err
	}
	r.table.Set(id, e)
	return id, nil
}

// nextId reserves an id without installing a table entry, for
// fire-and-forget where no response is ever routed back to it.
func (r *Requester) nextId() (streamid.Id, error) {
	r.allocMu.Lock()
	defer r.allocMu.Unlock()
	return r.ids.Next(func(candidate streamid.Id) bool {
		return r.table.Has(candidate)
	})
}

func (r *Requester) remove(id streamid.Id) {
	r.table.Delete(id)
}

// validate wraps a payload-size failure as the typed error the spec's
// error taxonomy assigns to locally-detected validation failures.
func validate(mtu int, p *payload.Payload) error {
	if err := payload.Validate(mtu, p); err != nil {
		return &rerror.InvalidError{Message: err.Error()}
	}
	return nil
}

// newPayload wraps inbound frame bytes as a Payload. These bytes aren't
// pooled, so there's no onFree hook to run at zero references.
func newPayload(metadata, data []byte) *payload.Payload {
	return payload.New(data, metadata, nil)
}

func clampU31(n uint64) uint32 {
	const maxU31 = 1<<31 - 1
	if n > maxU31 {
		return maxU31
	}
	return uint32(n)
}

// saturatingAdd combines two demand counters without wrapping around on
// overflow, matching the u63 saturating-demand semantics used throughout
// the engine's credit accounting.
func saturatingAdd(a, b uint64) uint64 {
	sum := a + b
	if sum < a || sum > math.MaxInt64 {
		return math.MaxInt64
	}
	return sum
}
