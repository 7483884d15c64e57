package requester

import (
	"github.com/streamwire/rsocket/internal/frame"
	"github.com/streamwire/rsocket/internal/payload"
	"github.com/streamwire/rsocket/internal/reactive"
)

// MetadataPush sends p's metadata as a connection-level METADATA_PUSH
// frame (stream id 0) and completes locally without waiting for any
// reply; METADATA_PUSH carries no data field, so p.Data() is ignored.
func (r *Requester) MetadataPush(p *payload.Payload) reactive.Publisher {
	return reactive.PublisherFunc(func(sub reactive.Subscriber) {
		sub.OnSubscribe(reactive.NoopSubscription{})

		f, err := frame.PackMetadataPush(p.Metadata())
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
