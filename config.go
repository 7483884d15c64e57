package rsocket

import (
	"io"
	"sync"
	"time"

	"github.com/streamwire/rsocket/internal/errsink"
	"github.com/streamwire/rsocket/internal/frame"
	"github.com/streamwire/rsocket/log"
)

// OnLeaseFunc is invoked whenever a LEASE frame arrives from the peer,
// carrying the window it just granted. It's informational only — the
// engine doesn't compute or enforce leases itself (spec.md §1); pair it
// with a LeaseHandler on the requester side to act on what it reports.
type OnLeaseFunc func(timeToLiveMillis, numberOfRequests uint32, metadata []byte)

// Config controls a Connection's resource limits and pluggable
// collaborators. The zero value is valid; initDefaults fills in every
// unset field exactly once, mirroring the teacher's
// internal/muxado.Config.initDefaults pattern.
type Config struct {
	// MTU bounds payload size: 0 disables fragmentation support and
	// requires every payload to fit one frame; a positive value is the
	// per-fragment byte budget (fragmentation/reassembly is carried by a
	// future collaborator — see internal/payload.Validate).
	MTU int

	// FrameQueueDepth bounds how many pending writes the send
	// multiplexer buffers on each lane before Enqueue blocks.
	FrameQueueDepth int

	// KeepaliveInterval is how often this side sends a KEEPALIVE frame.
	// Zero disables the keepalive loop entirely.
	KeepaliveInterval time.Duration

	// KeepaliveTolerance is how long to wait past KeepaliveInterval for
	// the peer's liveness before terminating the connection.
	KeepaliveTolerance time.Duration

	// NewFramer builds the Framer used to read/write frames over the
	// transport. Defaults to frame.NewFramer.
	NewFramer func(io.Reader, io.Writer) frame.Framer

	// ErrorSink receives errors that can't be attributed to any single
	// in-flight operation: dropped-frame failures, handler errors from
	// fire-and-forget and metadata push, and multiplexer write failures
	// observed off the caller's goroutine.
	ErrorSink errsink.Sink

	// Logger receives structured lifecycle events (connection
	// established, terminated). Defaults to log.NopLogger.
	Logger log.Logger

	// Lease, if set, gates every requester-side interaction behind
	// UseLease/LeaseError before it's handed to the internal requester.
	Lease LeaseHandler

	// OnLease is invoked for every inbound LEASE frame; see OnLeaseFunc.
	OnLease OnLeaseFunc

	initOnce sync.Once
}

func (c *Config) initDefaults() {
	c.initOnce.Do(func() {
		if c.FrameQueueDepth == 0 {
			c.FrameQueueDepth = 64
		}
		if c.NewFramer == nil {
			c.NewFramer = frame.NewFramer
		}
		if c.ErrorSink == nil {
			c.ErrorSink = errsink.DiscardSink{}
		}
		if c.Logger == nil {
			c.Logger = log.NopLogger{}
		}
	})
}
