// Package rsocket implements the RSocket connection engine: the
// per-connection state machine that multiplexes fire-and-forget,
// request/response, request/stream, request/channel, and metadata push
// over one bidirectional byte-framed transport. Every Connection plays
// both roles at once — Requester (it issues interactions of its own) and
// Responder (it dispatches the peer's requests to a user Handler).
//
// Transport establishment, the setup/keepalive/resume handshake, lease
// negotiation, and frame byte-layout are external collaborators; this
// package consumes them through the interfaces in this file and in
// config.go, lease.go, and keepalive.go.
package rsocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/streamwire/rsocket/internal/errsink"
	"github.com/streamwire/rsocket/internal/frame"
	"github.com/streamwire/rsocket/internal/mux"
	"github.com/streamwire/rsocket/internal/payload"
	"github.com/streamwire/rsocket/internal/reactive"
	"github.com/streamwire/rsocket/internal/requester"
	"github.com/streamwire/rsocket/internal/responder"
	"github.com/streamwire/rsocket/internal/rerror"
	"github.com/streamwire/rsocket/internal/streamid"
	"github.com/streamwire/rsocket/log"
)

// Role says which parity of stream id a Connection allocates for its own
// Requester-side interactions: client ids are odd, server ids are even.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// Handler is the user-supplied implementation of the four interaction
// types plus metadata push, invoked whenever the peer opens a stream (or,
// for MetadataPush, sends a connection-level metadata frame) against this
// Connection. It is exactly responder.Handler, re-exported so callers
// don't need to import the internal package.
type Handler = responder.Handler

// ErrClosed is returned by Connection.Wait and surfaced to in-flight
// operations once the Connection has been explicitly disposed.
var ErrClosed = errors.New("rsocket: connection closed")

// Connection owns one RSocket connection's transport, send multiplexer,
// stream tables, and lifecycle. It is grounded on the teacher's session
// struct (internal/muxado/session.go): a reader goroutine pumping inbound
// frames, a writer goroutine (the mux) serializing outbound frames, and a
// CAS-guarded idempotent teardown that cancels every in-flight stream.
type Connection struct {
	cfg       *Config
	role      Role
	transport io.Closer
	framer    frame.Framer
	mux       *mux.Mux
	requester *requester.Requester
	responder *responder.Responder
	handler   Handler
	sink      errsink.Sink
	logger    log.Logger
	keepalive *keepaliveLoop

	closeOnce uint32
	closeMu   sync.Mutex
	closeErr  error
	done      chan struct{}
}

// NewClient builds a Connection that allocates odd stream ids for its own
// Requester-side interactions, the parity an RSocket client uses.
func NewClient(transport io.ReadWriteCloser, handler Handler, cfg *Config) *Connection {
	return newConnection(transport, cfg, RoleClient, handler)
}

// NewServer builds a Connection that allocates even stream ids, the
// parity an RSocket server uses.
func NewServer(transport io.ReadWriteCloser, handler Handler, cfg *Config) *Connection {
	return newConnection(transport, cfg, RoleServer, handler)
}

func newConnection(transport io.ReadWriteCloser, cfg *Config, role Role, handler Handler) *Connection {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.initDefaults()

	var ids *streamid.Allocator
	if role == RoleClient {
		ids = streamid.NewClientAllocator()
	} else {
		ids = streamid.NewServerAllocator()
	}

	framer := cfg.NewFramer(transport, transport)
	m := mux.New(framer, cfg.FrameQueueDepth)

	c := &Connection{
		cfg:       cfg,
		role:      role,
		transport: transport,
		framer:    framer,
		mux:       m,
		requester: requester.New(m, ids, cfg.MTU, cfg.ErrorSink),
		responder: responder.New(m, cfg.MTU, cfg.ErrorSink, handler),
		handler:   handler,
		sink:      cfg.ErrorSink,
		logger:    cfg.Logger,
		done:      make(chan struct{}),
	}

	if cfg.KeepaliveInterval > 0 {
		c.keepalive = newKeepaliveLoop(c, cfg.KeepaliveInterval, cfg.KeepaliveTolerance)
		c.keepalive.start()
	}

	go func() {
		if err := m.Run(); err != nil {
			c.terminate(err)
		}
	}()
	go c.readLoop()

	return c
}

// readLoop pumps inbound frames one at a time; it is the only goroutine
// that dispatches frames, matching spec.md §4.5's "not re-entrant per
// connection" requirement for the driver itself (handler-produced
// sequences still run concurrently on their own goroutines).
func (c *Connection) readLoop() {
	for {
		f, err := c.framer.ReadFrame()
		if err != nil {
			c.terminate(err)
			return
		}
		if err := c.handleFrame(f); err != nil {
			c.terminate(err)
			return
		}
		select {
		case <-c.done:
			return
		default:
		}
	}
}

func (c *Connection) handleFrame(f frame.Frame) error {
	if f.StreamId() == 0 {
		return c.handleConnectionFrame(f)
	}
	return c.handleStreamFrame(f)
}

// handleConnectionFrame dispatches a stream-id-0 frame. Setup/keepalive/
// resume negotiation is an external collaborator's job (spec.md §1); this
// only reacts to the wire-level signals every connection must react to
// regardless of who negotiated them.
func (c *Connection) handleConnectionFrame(f frame.Frame) error {
	switch fr := f.(type) {
	case *frame.Setup:
		// This engine doesn't perform setup itself; by the time a
		// Connection exists the handshake is already done, so a SETUP
		// frame here is the peer re-sending one mid-connection (spec.md
		// §8 scenario 9): a stream-level ERROR on stream 0, then the
		// connection terminates.
		err := &rerror.InvalidError{Message: "SETUP received after connection established"}
		c.sendStreamError(0, err)
		return err
	case *frame.Lease:
		if c.cfg.OnLease != nil {
			c.cfg.OnLease(fr.TimeToLiveMillis(), fr.NumberOfRequests(), fr.Metadata())
		}
		return nil
	case *frame.Keepalive:
		if c.keepalive != nil {
			c.keepalive.onKeepalive(fr)
		}
		return nil
	case *frame.Error:
		return rerror.FromFrame(fr)
	case *frame.MetadataPush:
		c.dispatchMetadataPush(fr)
		return nil
	case *frame.Resume, *frame.ResumeOK:
		// Resume is an out-of-scope collaborator (spec.md §1); frames for
		// it are read but otherwise inert here.
		return nil
	case *frame.Unknown:
		// Forward-compatible extension frame; read-and-drop.
		return nil
	default:
		err := &rerror.InvalidError{Message: fmt.Sprintf("unexpected frame type %s on stream 0", f.Type())}
		c.sendStreamError(0, err)
		return err
	}
}

func (c *Connection) dispatchMetadataPush(fr *frame.MetadataPush) {
	p := payload.New(nil, fr.Metadata(), nil)
	c.handler.MetadataPush(p).Subscribe(reactive.SubscriberFuncs{
		Err: func(err error) { c.sink.Accept(err) },
	})
}

// handleStreamFrame routes a frame addressed to a nonzero stream id: to an
// already-live Requester or Responder stream if one is registered, to a
// freshly-created Responder stream if the frame is a request initiator
// for an unused id, or it's dropped (spec.md §4.5, §9 open question (a):
// REQUEST_N for an unknown id is silently ignored, and that behavior is
// kept for every other non-initiating frame type too).
func (c *Connection) handleStreamFrame(f frame.Frame) error {
	if c.requester.Dispatch(f) {
		return nil
	}
	if c.responder.Dispatch(f) {
		return nil
	}
	if isRequestInitiator(f) {
		if err := c.responder.Accept(f); err != nil {
			c.sendStreamError(f.StreamId(), err)
		}
		return nil
	}
	return nil
}

func isRequestInitiator(f frame.Frame) bool {
	switch f.(type) {
	case *frame.RequestFNF, *frame.RequestResponse, *frame.RequestStream, *frame.RequestChannel:
		return true
	default:
		return false
	}
}

func (c *Connection) sendStreamError(id frame.StreamId, err error) {
	code, msg := rerror.ToWireCode(err)
	ef, perr := frame.PackError(id, code, []byte(msg))
	if perr != nil {
		c.sink.Accept(perr)
		return
	}
	if werr := c.mux.EnqueueAsync(ef); werr != nil {
		c.sink.Accept(werr)
	}
}

// terminate tears the connection down exactly once: every in-flight
// Requester stream is failed with err, every Responder stream is torn
// down (see Responder.CancelAll), the send multiplexer
// and transport are closed, and Wait unblocks. Matches spec.md §4.5's
// idempotent-dispose requirement.
func (c *Connection) terminate(err error) {
	if !atomic.CompareAndSwapUint32(&c.closeOnce, 0, 1) {
		return
	}
	if err == nil {
		err = ErrClosed
	}
	c.closeMu.Lock()
	c.closeErr = err
	c.closeMu.Unlock()

	if c.keepalive != nil {
		c.keepalive.close()
	}
	c.requester.CancelAll(err)
	c.responder.CancelAll(err)
	c.mux.Close(err)
	c.transport.Close()
	c.logger.Log(context.Background(), log.LogLevelInfo, "connection terminated", map[string]any{"error": err})
	close(c.done)
}

// Close disposes the Connection: every pending operation observes
// ErrClosed, and the underlying transport is closed. Calling Close more
// than once is a no-op, matching the dispose contract in spec.md §4.5.
func (c *Connection) Close() error {
	c.terminate(ErrClosed)
	return nil
}

// Wait blocks until the Connection terminates and returns the error that
// caused it to (ErrClosed for a local Close, io.EOF or a transport error
// for a peer/transport failure, or a *rerror.ConnectionError for a
// stream-0 ERROR from the peer).
func (c *Connection) Wait() error {
	<-c.done
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closeErr
}

// Done returns a channel that's closed once the Connection has
// terminated, for callers that want to select on it alongside other work.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}
