// Package reactive implements the minimal reactive-streams-style
// contract the engine needs: a Subscriber that receives payloads under
// explicit credit, and a Subscription the consumer uses to request more
// or cancel. Every stream's subscriber is wrapped to serialize calls
// arriving from more than one goroutine, since handler-produced
// sequences may run on their own goroutines while the connection's
// single dispatch loop delivers inbound frames concurrently.
package reactive

import "github.com/streamwire/rsocket/internal/payload"

// Subscription is how a Subscriber signals demand or gives up on a
// sequence. Request and Cancel must be safe to call from any goroutine,
// any number of times, even after the sequence has terminated.
type Subscription interface {
	// Request signals willingness to accept n further payloads. A
	// Subscriber that never calls Request receives nothing.
	Request(n uint64)
	// Cancel asks the producer to stop; no further OnNext/OnError/
	// OnComplete calls are guaranteed after it returns, though one may
	// already be in flight.
	Cancel()
}

// Subscriber consumes a sequence of payloads. Exactly one of OnError or
// OnComplete is called at most once, terminating the sequence; OnNext
// may be called any number of times before that, never after.
type Subscriber interface {
	OnSubscribe(Subscription)
	OnNext(*payload.Payload)
	OnError(error)
	OnComplete()
}

// SubscriberFuncs adapts plain functions to the Subscriber interface,
// for call sites that only care about a subset of the signals.
type SubscriberFuncs struct {
	Subscribe func(Subscription)
	Next      func(*payload.Payload)
	Err       func(error)
	Complete  func()
}

func (f SubscriberFuncs) OnSubscribe(s Subscription) {
	if f.Subscribe != nil {
		f.Subscribe(s)
	}
}

func (f SubscriberFuncs) OnNext(p *payload.Payload) {
	if f.Next != nil {
		f.Next(p)
	} else {
		p.Release()
	}
}

func (f SubscriberFuncs) OnError(err error) {
	if f.Err != nil {
		f.Err(err)
	}
}

func (f SubscriberFuncs) OnComplete() {
	if f.Complete != nil {
		f.Complete()
	}
}
