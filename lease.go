package rsocket

import (
	"github.com/streamwire/rsocket/internal/payload"
	"github.com/streamwire/rsocket/internal/reactive"
)

// LeaseHandler gates requester-side interactions behind whatever lease
// window the peer has most recently granted. The engine consumes this
// predicate; it never computes or tracks the window itself (spec.md §1):
// a caller that wants RSocket lease semantics supplies a LeaseHandler
// that tracks LEASE frames via Config.OnLease and reports the result
// here.
type LeaseHandler interface {
	// UseLease reports whether a requester-side interaction may start
	// right now. It's consulted once per call to a Connection interaction
	// method, when that call builds its Publisher and before anything
	// subscribes to it or any frame is sent.
	UseLease() bool
	// LeaseError is the error delivered to the caller when UseLease
	// returns false.
	LeaseError() error
}

// rejected builds a Publisher that fails immediately with err without
// ever subscribing to anything or touching the wire, for interactions
// that never clear the lease check.
func rejected(err error) reactive.Publisher {
	return reactive.PublisherFunc(func(sub reactive.Subscriber) {
		sub.OnSubscribe(reactive.NoopSubscription{})
		sub.OnError(err)
	})
}

func (c *Connection) checkLease() error {
	if c.cfg.Lease == nil {
		return nil
	}
	if c.cfg.Lease.UseLease() {
		return nil
	}
	return c.cfg.Lease.LeaseError()
}

// FireAndForget issues a fire-and-forget interaction, failing locally
// without sending REQUEST_FNF if a configured LeaseHandler has no
// window left.
func (c *Connection) FireAndForget(p *payload.Payload) reactive.Publisher {
	if err := c.checkLease(); err != nil {
		p.Release()
		return rejected(err)
	}
	return c.requester.FireAndForget(p)
}

// RequestResponse issues a request-response interaction.
func (c *Connection) RequestResponse(p *payload.Payload) reactive.Publisher {
	if err := c.checkLease(); err != nil {
		p.Release()
		return rejected(err)
	}
	return c.requester.RequestResponse(p)
}

// RequestStream issues a request-stream interaction.
func (c *Connection) RequestStream(p *payload.Payload) reactive.Publisher {
	if err := c.checkLease(); err != nil {
		p.Release()
		return rejected(err)
	}
	return c.requester.RequestStream(p)
}

// RequestChannel issues a request-channel interaction, relaying outbound
// to the peer and delivering its inbound to the returned Publisher's
// subscriber.
func (c *Connection) RequestChannel(outbound reactive.Publisher) reactive.Publisher {
	if err := c.checkLease(); err != nil {
		return rejected(err)
	}
	return c.requester.RequestChannel(outbound)
}

// MetadataPush sends a connection-level METADATA_PUSH frame; it carries
// no stream id and expects no reply.
func (c *Connection) MetadataPush(p *payload.Payload) reactive.Publisher {
	if err := c.checkLease(); err != nil {
		p.Release()
		return rejected(err)
	}
	return c.requester.MetadataPush(p)
}
