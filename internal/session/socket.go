package session

import (
	"context"

	"github.com/sio-engine/socketio/internal/adapter"
	"github.com/sio-engine/socketio/internal/logging"
	"github.com/sio-engine/socketio/internal/metrics"
	"go.uber.org/zap"
)

// Socket is the cheap, cloneable handle passed to event handlers. Every
// mutating method is a value receiver: a Socket is just an id plus the
// send-only end of its owning engine's mailbox, so copying one is copying
// two words and a slice header, and handlers may stash it past the call
// that produced it.
//
// On, Join, Leave and Send only ever touch the owning engine's own mailbox.
// EmitTo, BroadcastTo and the package-level Broadcast instead resolve a
// target room through the registry and write directly into each member's
// mailbox: delivery to another socket is still "a mailbox message", just
// not this socket's own.
type Socket struct {
	id      string
	mailbox chan<- Frame
	rooms   []string
}

// ID returns the socket's session id.
func (s Socket) ID() string { return s.id }

// Rooms returns the set of rooms this socket belonged to at the moment this
// façade value was produced. It is a snapshot, not a live view: a handler
// that joins a room after receiving its Socket will not see that room
// reflected here until a new façade is produced for a later event.
func (s Socket) Rooms() []string {
	out := make([]string, len(s.rooms))
	copy(out, s.rooms)
	return out
}

// On registers h to run whenever an event named event arrives on this
// socket. Registration is itself a mailbox message: it is applied by the
// owning engine, never by the calling goroutine directly.
func (s Socket) On(event string, h Handler) {
	s.mailbox <- Frame{Kind: KindAddListener, Event: event, Handler: h}
}

// Join adds this socket to roomID.
func (s Socket) Join(roomID string) {
	s.mailbox <- Frame{Kind: KindJoin, RoomID: roomID}
}

// Leave removes this socket from roomID. Leaving the socket's own sid-room
// is not special-cased: doing so is legal and has the effect of making this
// socket unreachable through emitTo(sid, ...) from then on.
func (s Socket) Leave(roomID string) {
	s.mailbox <- Frame{Kind: KindLeave, RoomID: roomID}
}

// Send emits event/payload on this socket's own outbound sink.
func (s Socket) Send(event, payload string) {
	s.mailbox <- Frame{Kind: KindApplicationMessage, Event: event, Payload: payload}
}

// EmitTo emits event/payload to every socket currently joined to roomID,
// including this one if it is a member.
func (s Socket) EmitTo(roomID, event, payload string) {
	emitToRoom(roomID, event, payload, "")
}

// BroadcastTo emits event/payload to every socket currently joined to
// roomID except this one.
func (s Socket) BroadcastTo(roomID, event, payload string) {
	emitToRoom(roomID, event, payload, s.id)
}

// Broadcast emits event/payload to every socket currently joined to roomID.
// It is the package-level equivalent of EmitTo for callers, such as a
// health check or an admin handler, that hold no socket of their own.
func Broadcast(roomID, event, payload string) {
	emitToRoom(roomID, event, payload, "")
}

// DeliverLocal fans event/payload out to this process's members of roomID
// only; unlike Broadcast, it never consults the installed adapter. The
// Redis adapter's subscribe loop uses this to re-inject bus traffic: running
// it through Broadcast instead would call Incoming a second time and
// republish the same message back onto the bus under this process's own
// sendingID, which the next hop would see as a foreign message and relay
// again, turning a single publish into an unbounded ping-pong across the
// cluster.
func DeliverLocal(roomID, event, payload string) {
	deliverToRoom(roomID, event, payload, "")
}

func emitToRoom(roomID, event, payload, excludeSID string) {
	if a := adapter.Get(); a != nil {
		a.Incoming(roomID, event, payload)
	}
	deliverToRoom(roomID, event, payload, excludeSID)
}

func deliverToRoom(roomID, event, payload, excludeSID string) {
	ctx := context.Background()
	for _, m := range roomMembers(roomID) {
		if excludeSID != "" && m.sid == excludeSID {
			continue
		}
		select {
		case m.mailbox <- Frame{Kind: KindApplicationMessage, Event: event, Payload: payload}:
			metrics.FramesTotal.WithLabelValues("application_message", "ok").Inc()
		default:
			metrics.FramesTotal.WithLabelValues("application_message", "dropped").Inc()
			logging.Warn(ctx, "dropped room message: target mailbox full",
				zap.String("room_id", roomID), zap.String("sid", m.sid), zap.String("event", event))
		}
	}
}
