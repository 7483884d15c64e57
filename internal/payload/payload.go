// Package payload implements the reference-counted Payload type that
// flows through every operation: data plus optional metadata, released
// exactly once on every exit path from any function that accepts one.
package payload

import (
	"sync/atomic"
)

// Payload is a reference-counted { data, metadata } pair. A nil metadata
// slice means "no metadata field"; a non-nil, possibly zero-length slice
// means "empty metadata" — the two are distinct per the wire format.
//
// A Payload starts with one reference. Retain adds a reference; Release
// drops one. The underlying buffers are only eligible for reuse once the
// reference count reaches zero. Every code path that accepts a Payload
// must either forward it (transferring its one reference) or Release it
// exactly once, including on error paths.
type Payload struct {
	data     []byte
	metadata []byte
	refs     int32
	onFree   func(*Payload)
}

// New wraps data and metadata in a Payload with one reference. onFree, if
// non-nil, is invoked once when the reference count reaches zero, letting
// a pool reclaim the backing buffers.
func New(data, metadata []byte, onFree func(*Payload)) *Payload {
	return &Payload{data: data, metadata: metadata, refs: 1, onFree: onFree}
}

func (p *Payload) Data() []byte     { return p.data }
func (p *Payload) Metadata() []byte { return p.metadata }
func (p *Payload) HasMetadata() bool { return p.metadata != nil }

// Retain adds one reference and returns the same Payload, for call sites
// that fan a payload out to more than one consumer.
func (p *Payload) Retain() *Payload {
	if atomic.AddInt32(&p.refs, 1) <= 1 {
		panic("payload: Retain called after final Release")
	}
	return p
}

// Release drops one reference. Once the count reaches zero the optional
// onFree callback runs; calling Release past that point panics, since it
// indicates a double-release bug at the caller.
func (p *Payload) Release() {
	n := atomic.AddInt32(&p.refs, -1)
	switch {
	case n > 0:
		return
	case n == 0:
		if p.onFree != nil {
			p.onFree(p)
		}
	default:
		panic("payload: Release called more times than Retain/New")
	}
}

// RefCount reports the current reference count. Intended for leak-check
// assertions in tests, not for production control flow.
func (p *Payload) RefCount() int32 {
	return atomic.LoadInt32(&p.refs)
}
