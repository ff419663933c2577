// Package session implements the per-connection state machine: the room
// registry, the mailbox-driven engine that owns a session's mutable state,
// and the Socket façade handlers use to act on it.
//
// A session has exactly one mutator of its room set, listener table, frame
// counter and outbound sink: the goroutine running Engine.Listen. Every
// other goroutine — the transport read-loop, a spawned event handler, a
// timer, the Redis adapter, another socket's EmitTo — only ever produces
// Frame values into a channel. This is what lets per-session state stay
// lock-free; only the shared room registry takes a lock.
package session

import (
	"context"
	"sync/atomic"

	"github.com/sio-engine/socketio/internal/logging"
	"github.com/sio-engine/socketio/internal/metrics"
	"github.com/sio-engine/socketio/internal/wire"
	"go.uber.org/zap"
)

// Sink is a session's outbound transport, abstracted so this package never
// has to import a WebSocket library directly. The upgrade package supplies
// the concrete implementation.
type Sink interface {
	// WriteText sends a single Engine.IO/Socket.IO text frame.
	WriteText(frame string) error
	// WriteWSPong sends a WebSocket-layer pong control frame.
	WriteWSPong() error
	// WriteWSPing sends a WebSocket-layer ping control frame.
	WriteWSPing() error
	// Close tears down the transport. Safe to call more than once.
	Close() error
}

// Engine owns one session's mutable state: its room membership, listener
// table, outgoing message counter and sink. It is constructed by the
// upgrade handler once a connection is accepted and driven by a single
// call to Listen from its own goroutine.
type Engine struct {
	sid     string
	version wire.EIOVersion
	sink    Sink

	mailbox chan Frame
	done    chan struct{}

	counter int

	rooms    atomic.Pointer[[]string]
	handlers atomic.Pointer[map[string][]Handler]
}

// NewEngine constructs an engine for sid, joins it to its own sid-room, and
// returns it ready for Listen to be run. mailboxSize bounds the mailbox
// channel; it is the only backpressure knob between producers (the
// transport read-loop, other sockets' EmitTo, the keepalive timer, the
// Redis adapter) and this session.
func NewEngine(sid string, version wire.EIOVersion, sink Sink, mailboxSize int) *Engine {
	e := &Engine{
		sid:     sid,
		version: version,
		sink:    sink,
		mailbox: make(chan Frame, mailboxSize),
		done:    make(chan struct{}),
	}
	rooms := []string{sid}
	handlers := map[string][]Handler{}
	e.rooms.Store(&rooms)
	e.handlers.Store(&handlers)

	joinRoom(sid, sid, e.mailbox)
	metrics.SessionsActive.Inc()
	return e
}

// SID returns the session id this engine owns.
func (e *Engine) SID() string { return e.sid }

// Mailbox returns the send-only end of this engine's mailbox, for the
// transport read-loop and the upgrade handler's keepalive timer to produce
// into.
func (e *Engine) Mailbox() chan<- Frame { return e.mailbox }

// Done is closed once Listen returns.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Socket returns a façade snapshot for this engine. Safe to call from any
// goroutine: the room set it reads is a lock-free atomic snapshot.
func (e *Engine) Socket() Socket {
	rooms := e.rooms.Load()
	return Socket{id: e.sid, mailbox: e.mailbox, rooms: *rooms}
}

// HandlersFor returns the listeners currently registered for event. Safe to
// call from any goroutine.
func (e *Engine) HandlersFor(event string) []Handler {
	handlers := *e.handlers.Load()
	return handlers[event]
}

// Listen is the engine's sole mailbox consumer. It runs until a Close
// message is processed or the mailbox channel is closed, and must be run
// from its own goroutine; it blocks until then.
func (e *Engine) Listen(ctx context.Context) {
	ctx = context.WithValue(ctx, logging.SIDKey, e.sid)
	defer close(e.done)

	for f := range e.mailbox {
		switch f.Kind {
		case KindApplicationMessage:
			e.counter++
			frame := wire.FormatEvent(e.counter, f.Event, f.Payload)
			if err := e.sink.WriteText(frame); err != nil {
				metrics.FramesTotal.WithLabelValues("application_message", "write_error").Inc()
				logging.Warn(ctx, "sink write failed, dropping message", zap.Error(err))
			} else {
				metrics.FramesTotal.WithLabelValues("application_message", "ok").Inc()
			}

		case KindJoin:
			e.addRoom(f.RoomID)

		case KindLeave:
			e.removeRoom(f.RoomID)

		case KindAddListener:
			e.addHandler(f.Event, f.Handler)

		case KindPing:
			if err := e.sink.WriteText(wire.EnginePong); err != nil {
				logging.Warn(ctx, "sink write failed responding to ping", zap.Error(err))
			}

		case KindPong:
			if err := e.sink.WriteText(wire.EnginePing); err != nil {
				logging.Warn(ctx, "sink write failed sending keepalive ping", zap.Error(err))
			}

		case KindWSPing:
			if err := e.sink.WriteWSPong(); err != nil {
				logging.Warn(ctx, "sink write failed responding to ws ping", zap.Error(err))
			}

		case KindWSPong:
			if err := e.sink.WriteWSPing(); err != nil {
				logging.Warn(ctx, "sink write failed sending ws ping", zap.Error(err))
			}

		case KindClose:
			e.teardown(ctx)
			return
		}
	}
	e.teardown(ctx)
}

func (e *Engine) teardown(ctx context.Context) {
	rooms := *e.rooms.Load()
	for _, r := range rooms {
		leaveRoom(r, e.sid)
	}
	if err := e.sink.Close(); err != nil {
		logging.Debug(ctx, "sink close returned error", zap.Error(err))
	}
	metrics.SessionsActive.Dec()
}

func (e *Engine) addRoom(roomID string) {
	cur := *e.rooms.Load()
	if containsString(cur, roomID) {
		return
	}
	next := make([]string, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, roomID)
	e.rooms.Store(&next)
	joinRoom(roomID, e.sid, e.mailbox)
}

func (e *Engine) removeRoom(roomID string) {
	cur := *e.rooms.Load()
	next, removed := removeString(cur, roomID)
	if !removed {
		return
	}
	e.rooms.Store(&next)
	leaveRoom(roomID, e.sid)
}

func (e *Engine) addHandler(event string, h Handler) {
	cur := *e.handlers.Load()
	next := make(map[string][]Handler, len(cur))
	for k, v := range cur {
		next[k] = v
	}
	existing := next[event]
	merged := make([]Handler, len(existing), len(existing)+1)
	copy(merged, existing)
	next[event] = append(merged, h)
	e.handlers.Store(&next)
}
