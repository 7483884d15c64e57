// Package responder implements the four RSocket interaction types from the
// accepting side: a fresh REQUEST_* frame for an unused stream id invokes
// the connection's Handler and drives whatever it produces back to the
// peer as PAYLOAD/ERROR frames, while routing every subsequent inbound
// frame for that id (REQUEST_N, CANCEL, and — for channels — NEXT/
// COMPLETE/ERROR) to the live interaction.
package responder

import (
	"github.com/streamwire/rsocket/internal/errsink"
	"github.com/streamwire/rsocket/internal/frame"
	"github.com/streamwire/rsocket/internal/mux"
	"github.com/streamwire/rsocket/internal/payload"
	"github.com/streamwire/rsocket/internal/reactive"
	"github.com/streamwire/rsocket/internal/rerror"
	"github.com/streamwire/rsocket/internal/streamid"
	"github.com/streamwire/rsocket/internal/streamtable"
)

// Handler is the user-supplied implementation of the four interaction
// types, plus metadata push. Every method returns a lazily-subscribed
// Publisher; RequestChannel additionally receives the peer's outbound
// payloads as a Publisher of its own.
type Handler interface {
	FireAndForget(p *payload.Payload) reactive.Publisher
	RequestResponse(p *payload.Payload) reactive.Publisher
	RequestStream(p *payload.Payload) reactive.Publisher
	RequestChannel(incoming reactive.Publisher) reactive.Publisher
	MetadataPush(p *payload.Payload) reactive.Publisher
}

// entry is what the connection driver needs from any responder-side
// stream to route an inbound frame to it.
type entry interface {
	handleFrame(frame.Frame)
}

// Responder owns every stream the peer has opened against this
// connection's Handler.
type Responder struct {
	mux     *mux.Mux
	table   *streamtable.Table[entry]
	mtu     int
	sink    errsink.Sink
	handler Handler
}

func New(m *mux.Mux, mtu int, sink errsink.Sink, handler Handler) *Responder {
	return &Responder{
		mux:     m,
		table:   streamtable.New[entry](),
		mtu:     mtu,
		sink:    sink,
		handler: handler,
	}
}

// Accept handles a fresh REQUEST_* frame: f's stream id must not already
// be present in the table (a live id reused by the peer is a protocol
// violation, reported to the caller so it can emit a stream-level ERROR).
func (r *Responder) Accept(f frame.Frame) error {
	id := streamid.Id(f.StreamId())
	switch fr := f.(type) {
	case *frame.RequestFNF:
		return r.acceptFNF(id, fr)
	case *frame.RequestResponse:
		return r.acceptRequestResponse(id, fr)
	case *frame.RequestStream:
		return r.acceptRequestStream(id, fr)
	case *frame.RequestChannel:
		return r.acceptRequestChannel(id, fr)
	default:
		return &rerror.InvalidError{Message: "not a request-initiating frame"}
	}
}

// Dispatch routes an inbound frame to its responder-side stream, if one is
// registered for that id. It reports whether an entry handled the frame.
func (r *Responder) Dispatch(f frame.Frame) bool {
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

// CancelAll tears down every in-flight responder stream; used by the
// connection driver on transport close or fatal local error.
// Request-response and request-stream streams cancel their subscription
// to the handler's output; request-channel streams fail the handler's
// inbound publisher with err.
func (r *Responder) CancelAll(err error) {
	r.table.Each(func(id streamid.Id, e entry) {
		if f, ok := e.(failer); ok {
			f.fail(err)
		}
	})
}

func (r *Responder) insert(id streamid.Id, e entry) bool {
	return r.table.InsertIfAbsent(id, e)
}

func (r *Responder) remove(id streamid.Id) {
	r.table.Delete(id)
}

func validate(mtu int, p *payload.Payload) error {
	if err := payload.Validate(mtu, p); err != nil {
		return &rerror.InvalidError{Message: err.Error()}
	}
	return nil
}

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

// sendError builds and enqueues an ERROR frame for id, reporting any local
// encode/write failure to the error sink rather than to the peer (there's
// nowhere else for it to go).
func (r *Responder) sendError(id streamid.Id, code frame.ErrorCode, message string) {
	f, err := frame.PackError(frame.StreamId(id), code, []byte(message))
	if err != nil {
		r.sink.Accept(err)
		return
	}
	if err := r.mux.Enqueue(f); err != nil {
		r.sink.Accept(err)
	}
}
