package requester

import (
	"github.com/streamwire/rsocket/internal/frame"
	"github.com/streamwire/rsocket/internal/payload"
	"github.com/streamwire/rsocket/internal/reactive"
)

// FireAndForget sends p as a REQUEST_FNF frame and completes locally
// without waiting for any response; no table entry is created since no
// reply is ever expected for this id.
func (r *Requester) FireAndForget(p *payload.Payload) reactive.Publisher {
	return reactive.PublisherFunc(func(sub reactive.Subscriber) {
		sub.OnSubscribe(reactive.NoopSubscription{})

		if err := validate(r.mtu, p); err != nil {
			p.Release()
			sub.OnError(err)
			return
		}

		id, err := r.nextId()
		if err != nil {
			p.Release()
			sub.OnError(err)
			return
		}

		f, err := frame.PackRequestFNF(frame.StreamId(id), p.Metadata(), p.Data())
		if err != nil {
			p.Release()
			sub.OnError(err)
			return
		}

		if err := r.mux.Enqueue(f); err != nil {
			p.Release()
			sub.OnError(err)
			return
		}
		p.Release()
		sub.OnComplete()
	})
}
