// Package socketio is the public embedding surface: a Socket.IO session
// engine mountable as a route inside any gin router. Everything under
// internal/ is plumbing; this file is what an application imports.
package socketio

import (
	"context"

	"github.com/sio-engine/socketio/internal/adapter"
	"github.com/sio-engine/socketio/internal/config"
	"github.com/sio-engine/socketio/internal/health"
	"github.com/sio-engine/socketio/internal/middleware"
	"github.com/sio-engine/socketio/internal/redisadapter"
	"github.com/sio-engine/socketio/internal/session"
	"github.com/sio-engine/socketio/internal/upgrade"
	"github.com/gin-gonic/gin"
)

// Socket is the façade passed to event handlers: a cheap, cloneable handle
// for sending, joining/leaving rooms, and registering listeners.
type Socket = session.Socket

// Handler is invoked once per connection to register that socket's event
// listeners.
type Handler = upgrade.Handler

// EventHandler is a listener registered via Socket.On.
type EventHandler = session.Handler

// Broadcast emits event/payload to every socket currently joined to
// roomID. Use this from outside any specific socket's handler, e.g. an
// admin endpoint or a timer.
func Broadcast(roomID, event, payload string) {
	session.Broadcast(roomID, event, payload)
}

// RoomSize reports how many sockets are currently joined to roomID.
func RoomSize(roomID string) int { return session.RoomSize(roomID) }

// RoomCount reports how many non-empty rooms currently exist.
func RoomCount() int { return session.RoomCount() }

// Server wires the upgrade handler and optional connection rate limiting
// into a gin router. The Redis adapter is installed separately, with
// InstallRedisAdapter.
type Server struct {
	cfg     *config.Config
	limiter *middleware.ConnectionRateLimiter
}

// New builds a Server from validated configuration. Pass a
// *middleware.ConnectionRateLimiter built with
// middleware.NewConnectionRateLimiter, or nil to skip connection rate
// limiting.
func New(cfg *config.Config, limiter *middleware.ConnectionRateLimiter) *Server {
	return &Server{cfg: cfg, limiter: limiter}
}

// Mount registers the socket.io upgrade route and the onConnect handler on
// r at the given gin route pattern (e.g. "/socket.io/*any").
func (s *Server) Mount(r gin.IRoutes, path string, onConnect Handler) {
	opts := upgrade.Options{
		PingIntervalMS:  s.cfg.PingIntervalMS,
		PingTimeoutMS:   s.cfg.PingTimeoutMS,
		MailboxSize:     s.cfg.MailboxSize,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	route := upgrade.Route(opts, onConnect)
	if s.limiter != nil {
		r.GET(path, s.limiter.Middleware(), route)
		return
	}
	r.GET(path, route)
}

// MountHealth registers /health/live and /health/ready on r.
func MountHealth(r gin.IRoutes, pinger health.Pinger) {
	h := health.NewHandler(pinger)
	r.GET("/health/live", h.Liveness)
	r.GET("/health/ready", h.Readiness)
}

// InstallRedisAdapter connects to Redis and installs it as the process-wide
// room-relay adapter, returning the connected adapter so the caller can use
// it as a health.Pinger and close it on shutdown.
func InstallRedisAdapter(ctx context.Context, cfg *config.Config) (*redisadapter.Adapter, error) {
	return redisadapter.Install(ctx, cfg.RedisAddr, "", cfg.RedisChannel, cfg.AdapterQueueSize)
}

// ResetAdapter clears the installed relay adapter, if any. Exposed mainly
// for tests that install and tear down adapters repeatedly within one
// process.
func ResetAdapter() { adapter.Reset() }
