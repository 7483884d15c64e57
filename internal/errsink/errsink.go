// Package errsink implements the error sink collaborator: a side
// channel for errors that have nowhere else to surface, such as an
// error signalled by a metadata-push handler or a failure to queue an
// ERROR frame for the peer.
package errsink

import (
	"context"

	"github.com/streamwire/rsocket/log"
)

// Sink accepts errors that aren't attributable to any single pending
// operation a caller is already waiting on.
type Sink interface {
	Accept(error)
}

// LoggingSink reports every accepted error to a log.Logger at error
// level, the same place connection-lifecycle events are already logged.
type LoggingSink struct {
	logger log.Logger
}

func NewLoggingSink(logger log.Logger) *LoggingSink {
	return &LoggingSink{logger: logger}
}

func (s *LoggingSink) Accept(err error) {
	if err == nil {
		return
	}
	s.logger.Log(context.Background(), log.LogLevelError, "unhandled error", map[string]any{"error": err})
}

// DiscardSink silently drops every error; useful as a default when the
// caller hasn't wired a real sink and doesn't want a nil check at every
// call site.
type DiscardSink struct{}

func (DiscardSink) Accept(error) {}

// ChanSink delivers each accepted error on a channel, for tests and for
// callers that want to observe the side channel themselves rather than
// have it logged.
type ChanSink struct {
	C chan error
}

func NewChanSink(buffer int) *ChanSink {
	return &ChanSink{C: make(chan error, buffer)}
}

// Accept delivers err if there's room in the channel, dropping it rather
// than blocking the reporting goroutine when the buffer is full — the
// error sink must never become a second point of backpressure.
func (s *ChanSink) Accept(err error) {
	select {
	case s.C <- err:
	default:
	}
}
