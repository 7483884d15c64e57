package reactive

import (
	"math"
	"sync/atomic"
)

// maxCredit is the saturating ceiling the spec calls the u63 credit
// counter: outstanding demand never needs to exceed what a single
// REQUEST_N/initial_request_n field can express at the API boundary.
const maxCredit = math.MaxInt64

// Credit is an atomic, saturating outstanding-demand counter: the
// number of further NEXT payloads a stream's peer has been told it may
// send. Add and Take never panic; they clamp at the range [0, maxCredit]
// instead of wrapping.
type Credit struct {
	n int64
}

// Add increases outstanding demand by delta, saturating at maxCredit
// rather than overflowing. delta is a uint32 because it always
// originates from a 32-bit wire field (initial_request_n or REQUEST_N).
func (c *Credit) Add(delta uint32) {
	for {
		cur := atomic.LoadInt64(&c.n)
		next := cur + int64(delta)
		if next < cur || next > maxCredit { // overflow or saturation
			next = maxCredit
		}
		if atomic.CompareAndSwapInt64(&c.n, cur, next) {
			return
		}
	}
}

// Take consumes one unit of credit if available, reporting whether it
// did. A producer must call this (or an equivalent check) before
// emitting each NEXT payload.
func (c *Credit) Take() bool {
	for {
		cur := atomic.LoadInt64(&c.n)
		if cur <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt64(&c.n, cur, cur-1) {
			return true
		}
	}
}

// Load returns the current outstanding demand.
func (c *Credit) Load() int64 {
	return atomic.LoadInt64(&c.n)
}
