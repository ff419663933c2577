package session

import (
	"sync"

	"github.com/sio-engine/socketio/internal/metrics"
)

// member is a single room registry entry: a socket id paired with the
// send-only half of that socket's mailbox. The handle stays usable for as
// long as the owning engine is alive; once it exits, leave removes the
// entry and further lookups simply won't find it.
type member struct {
	sid     string
	mailbox chan<- Frame
}

var (
	registryMu sync.RWMutex
	registry   = map[string][]member{}
)

// joinRoom adds sid to roomID's member list, unless it is already present.
// A socket's own sid doubles as a room name: every engine joins it on
// construction, which is what makes emitTo(sid, ...) deliver to exactly one
// socket.
func joinRoom(roomID, sid string, mailbox chan<- Frame) {
	registryMu.Lock()
	defer registryMu.Unlock()

	members := registry[roomID]
	for _, m := range members {
		if m.sid == sid {
			return
		}
	}
	wasEmpty := len(members) == 0
	registry[roomID] = append(members, member{sid: sid, mailbox: mailbox})

	if wasEmpty {
		metrics.RoomsActive.Inc()
	}
	metrics.RoomMembers.WithLabelValues(roomID).Set(float64(len(registry[roomID])))
}

// leaveRoom removes sid from roomID's member list, matching by sid rather
// than by position: the naive approach of comparing against roomID instead
// of sid removes the wrong entry whenever a room has more than one member.
func leaveRoom(roomID, sid string) {
	registryMu.Lock()
	defer registryMu.Unlock()

	members := registry[roomID]
	for i, m := range members {
		if m.sid != sid {
			continue
		}
		members = append(members[:i], members[i+1:]...)
		if len(members) == 0 {
			delete(registry, roomID)
			metrics.RoomsActive.Dec()
			metrics.RoomMembers.DeleteLabelValues(roomID)
		} else {
			registry[roomID] = members
			metrics.RoomMembers.WithLabelValues(roomID).Set(float64(len(members)))
		}
		return
	}
}

// roomMembers returns a snapshot of roomID's current members. The slice is a
// copy: callers may range over it without holding the registry lock.
func roomMembers(roomID string) []member {
	registryMu.RLock()
	defer registryMu.RUnlock()

	src := registry[roomID]
	out := make([]member, len(src))
	copy(out, src)
	return out
}

// RoomSize reports how many sockets are currently joined to roomID.
func RoomSize(roomID string) int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry[roomID])
}

// RoomCount reports how many non-empty rooms currently exist.
func RoomCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// ResetRegistry clears the room registry. Exported for tests; a running
// server never needs to call it.
func ResetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = map[string][]member{}
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func removeString(ss []string, s string) ([]string, bool) {
	for i, v := range ss {
		if v != s {
			continue
		}
		out := make([]string, 0, len(ss)-1)
		out = append(out, ss[:i]...)
		out = append(out, ss[i+1:]...)
		return out, true
	}
	return ss, false
}
