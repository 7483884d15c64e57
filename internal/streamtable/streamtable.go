// Package streamtable implements the concurrent stream_id -> stream
// state mapping every connection keeps: insert on stream creation,
// lookup on every inbound frame dispatch, remove on stream termination.
package streamtable

import (
	"sync"

	"github.com/streamwire/rsocket/internal/streamid"
)

const initCapacity = 128 // matches the teacher's guess at typical concurrent stream count

// Table is a stream id -> T map guarded by a read/write lock, the same
// shape as muxado's stream map, generalized to hold whatever stream
// state object the caller's FSM layer defines.
type Table[T any] struct {
	mu sync.RWMutex
	m  map[streamid.Id]T
}

func New[T any]() *Table[T] {
	return &Table[T]{m: make(map[streamid.Id]T, initCapacity)}
}

func (t *Table[T]) Get(id streamid.Id) (v T, ok bool) {
	t.mu.RLock()
	v, ok = t.m[id]
	t.mu.RUnlock()
	return
}

func (t *Table[T]) Has(id streamid.Id) bool {
	t.mu.RLock()
	_, ok := t.m[id]
	t.mu.RUnlock()
	return ok
}

// Set inserts or overwrites the entry for id.
func (t *Table[T]) Set(id streamid.Id, v T) {
	t.mu.Lock()
	t.m[id] = v
	t.mu.Unlock()
}

// InsertIfAbsent inserts v for id only if no entry exists yet, reporting
// whether the insert happened. Inbound REQUEST_* frames use this to
// detect a peer reusing a stream id that's still live, a protocol
// violation per the connection invariants.
func (t *Table[T]) InsertIfAbsent(id streamid.Id, v T) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.m[id]; ok {
		return false
	}
	t.m[id] = v
	return true
}

func (t *Table[T]) Delete(id streamid.Id) {
	t.mu.Lock()
	delete(t.m, id)
	t.mu.Unlock()
}

func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}

// Each snapshots the table and invokes fn for every entry outside the
// lock, so fn may itself call back into the table (e.g. to delete a
// terminated stream) without deadlocking.
func (t *Table[T]) Each(fn func(streamid.Id, T)) {
	t.mu.RLock()
	snapshot := make(map[streamid.Id]T, len(t.m))
	for k, v := range t.m {
		snapshot[k] = v
	}
	t.mu.RUnlock()

	for id, v := range snapshot {
		fn(id, v)
	}
}
