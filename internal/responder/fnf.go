package responder

import (
	"github.com/streamwire/rsocket/internal/frame"
	"github.com/streamwire/rsocket/internal/reactive"
	"github.com/streamwire/rsocket/internal/streamid"
)

// acceptFNF invokes the handler and discards whatever it produces; no
// table entry is created since fire-and-forget expects no reply and no
// further frame for this id is meaningful. Handler errors still reach the
// error sink, per the taxonomy's "surface handler errors to the error
// sink" rule for fire-and-forget.
func (r *Responder) acceptFNF(id streamid.Id, fr *frame.RequestFNF) error {
	p := newPayload(fr.Metadata(), fr.Data())
	r.handler.FireAndForget(p).Subscribe(reactive.SubscriberFuncs{
		Err: func(err error) { r.sink.Accept(err) },
	})
	return nil
}
