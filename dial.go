package rsocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jpillora/backoff"
)

// ErrDialStopped is returned by DialWithReconnect when ctx is canceled
// while waiting to retry.
var ErrDialStopped = errors.New("rsocket: dial loop stopped")

// Dialer opens a fresh transport for a new Connection. It's called once
// per connection attempt, including every reconnect.
type Dialer func(ctx context.Context) (io.ReadWriteCloser, error)

// ReconnectOptions tunes DialWithReconnect's retry loop. The zero value
// uses the same bounds as the teacher's reconnect loop
// (internal/tunnel/client/reconnecting.go): 500ms up to 30s, doubling,
// no jitter.
type ReconnectOptions struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64

	// OnDisconnect, if set, is called with the error that ended the
	// previous connection before a reconnect attempt is made.
	OnDisconnect func(err error)
}

func (o ReconnectOptions) backoff() *backoff.Backoff {
	b := &backoff.Backoff{
		Min:    o.Min,
		Max:    o.Max,
		Factor: o.Factor,
	}
	if b.Min == 0 {
		b.Min = 500 * time.Millisecond
	}
	if b.Max == 0 {
		b.Max = 30 * time.Second
	}
	if b.Factor == 0 {
		b.Factor = 2
	}
	return b
}

// DialWithReconnect repeatedly dials and runs a Connection, handing each
// live Connection to onConnect as soon as it's established. It only
// retries transport establishment and replaces the Connection outright on
// every reconnect; RSocket-level resume (replaying in-flight streams
// across a reconnect) is a different, out-of-scope collaborator (spec.md
// §1) — every reconnect starts a brand new set of streams.
//
// Every dial error and every disconnect other than a local Close is
// retried after a backoff. It returns nil once a Connection ends with
// ErrClosed, and otherwise only when ctx is canceled: with an error
// wrapping both ErrDialStopped and the context's error if that happens
// while waiting to retry, or with the context's error itself.
func DialWithReconnect(ctx context.Context, dial Dialer, handler Handler, cfg *Config, role Role, opts ReconnectOptions, onConnect func(*Connection)) error {
	boff := opts.backoff()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		transport, err := dial(ctx)
		if err != nil {
			if opts.OnDisconnect != nil {
				opts.OnDisconnect(err)
			}
			if !sleep(ctx, boff.Duration()) {
				return fmt.Errorf("%w: %w", ErrDialStopped, ctx.Err())
			}
			continue
		}
		boff.Reset()

		var conn *Connection
		if role == RoleClient {
			conn = NewClient(transport, handler, cfg)
		} else {
			conn = NewServer(transport, handler, cfg)
		}
		onConnect(conn)

		waitErr := conn.Wait()
		if opts.OnDisconnect != nil {
			opts.OnDisconnect(waitErr)
		}
		if errors.Is(waitErr, ErrClosed) {
			// local, deliberate Close: stop reconnecting.
			return nil
		}

		if !sleep(ctx, boff.Duration()) {
			return fmt.Errorf("%w: %w", ErrDialStopped, ctx.Err())
		}
	}
}

// sleep waits for d or until ctx is canceled, reporting which happened.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
