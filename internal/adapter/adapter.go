// Package adapter defines the pluggable relay capability consulted on every
// room-scoped outbound send. At most one adapter is installed
// process-wide; installing a new one replaces any prior one. This package
// is deliberately a leaf: it knows nothing about sessions, rooms, or the
// wire format, only the narrow (roomID, event, payload) shape that gets
// relayed to a cross-process bus.
package adapter

import "sync"

// Adapter relays room-scoped application messages to and from an external
// bus. incoming means "local originator -> bus"; outgoing is reserved for
// "bus -> local". The session package calls only Incoming: the reference
// Redis adapter re-injects bus traffic directly into the room registry, and
// its own Outgoing relays to the bus exactly as Incoming does.
type Adapter interface {
	Incoming(roomID, event, payload string)
	Outgoing(roomID, event, payload string)
}

var (
	mu      sync.RWMutex
	current Adapter
)

// Install replaces the process-wide adapter.
func Install(a Adapter) {
	mu.Lock()
	defer mu.Unlock()
	current = a
}

// Get returns the installed adapter, or nil if none is installed.
func Get() Adapter {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Reset clears the installed adapter. Exposed for tests that need a clean
// process-wide slot between test cases.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	current = nil
}
