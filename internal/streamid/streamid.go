// Package streamid implements the per-connection stream id allocator:
// client ids are odd, server ids are even, both wrap at 2^31 and skip
// over any id still present in the stream table.
package streamid

import (
	"errors"
	"sync"
)

// Id is a 31-bit RSocket stream id. Id 0 is reserved for connection-level
// frames and is never allocated by this package.
type Id uint32

const maxId = Id(1<<31 - 1)

// ErrExhausted is returned once every id of the allocator's parity has
// been probed and found in use, meaning the id space has wrapped all the
// way around without finding a free slot.
var ErrExhausted = errors.New("streamid: id space exhausted")

// InUse reports whether a candidate id is already occupied by a live
// stream. An Allocator calls this once per probed candidate while holding
// its own lock, so implementations must not themselves call back into
// the Allocator.
type InUse func(Id) bool

// Allocator hands out stream ids of one fixed parity (odd for a client
// connection, even for a server connection), skipping any id currently
// present in the stream table and wrapping at 2^31.
type Allocator struct {
	mu    sync.Mutex
	first Id // 1 for client, 2 for server: the id to restart at after wrapping
	next  Id // the next candidate to try
	max   Id // highest id before wrapping; defaults to maxId
}

// NewClientAllocator returns an allocator that starts at 1 and only ever
// produces odd ids.
func NewClientAllocator() *Allocator {
	return &Allocator{first: 1, next: 1, max: maxId}
}

// NewServerAllocator returns an allocator that starts at 2 and only ever
// produces even, nonzero ids.
func NewServerAllocator() *Allocator {
	return &Allocator{first: 2, next: 2, max: maxId}
}

// Next allocates and returns the next free id of this allocator's parity.
// inUse is consulted, and the candidate advanced by 2 and re-probed, for
// as long as it reports a collision; the whole probe runs under the
// allocator's lock so that allocation and the corresponding stream-table
// insertion can be done as a single critical section by the caller.
func (a *Allocator) Next(inUse InUse) (Id, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := a.next
	for {
		candidate := a.next
		a.next += 2
		if a.next > a.max {
			a.next = a.first
		}
		if inUse == nil || !inUse(candidate) {
			return candidate, nil
		}
		if a.next == start {
			return 0, ErrExhausted
		}
	}
}
