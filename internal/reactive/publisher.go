package reactive

// Publisher is a lazy asynchronous producer: nothing happens until
// Subscribe is called, and each Subscribe starts an independent, fresh
// interaction (two subscriptions to the same Publisher are two distinct
// requests on the wire).
type Publisher interface {
	Subscribe(Subscriber)
}

// PublisherFunc adapts a plain function to a Publisher.
type PublisherFunc func(Subscriber)

func (f PublisherFunc) Subscribe(s Subscriber) { f(s) }

// NoopSubscription is a Subscription for producers that never honor demand
// or cancellation signals because they have already run to completion
// synchronously by the time OnSubscribe is delivered (e.g. fire-and-forget).
type NoopSubscription struct{}

func (NoopSubscription) Request(uint64) {}
func (NoopSubscription) Cancel()        {}
