// Package upgrade implements the HTTP-side handshake that bootstraps a
// Socket.IO session: validating the WebSocket upgrade request and handing
// the connection to gorilla/websocket's Upgrader for the handshake and
// frame I/O.
package upgrade

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sio-engine/socketio/internal/logging"
	"github.com/sio-engine/socketio/internal/metrics"
	"github.com/sio-engine/socketio/internal/session"
	"github.com/sio-engine/socketio/internal/sid"
	"github.com/sio-engine/socketio/internal/wire"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// websocketGUID is fixed by RFC 6455 and concatenated with the client's
// Sec-WebSocket-Key before hashing.
const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Handler is invoked once per accepted connection with a façade for the
// new session, to register event listeners. It is a registration hook,
// not a long-lived task: the upgrade handler awaits it before starting the
// session's read-loop.
type Handler func(session.Socket)

// Options configures the upgrade handler.
type Options struct {
	PingIntervalMS  int
	PingTimeoutMS   int
	MailboxSize     int
	ReadBufferSize  int
	WriteBufferSize int
}

// DefaultOptions returns the engine's documented defaults.
func DefaultOptions() Options {
	return Options{
		PingIntervalMS:  25000,
		PingTimeoutMS:   20000,
		MailboxSize:     16,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
}

// Route returns a gin.HandlerFunc implementing the socket.io upgrade
// endpoint: it validates the request, performs the handshake, and spawns
// the session's read-loop and engine goroutines.
func Route(opts Options, onConnect Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		serve(c, opts, onConnect)
	}
}

func serve(c *gin.Context, opts Options, onConnect Handler) {
	req := c.Request
	ctx := req.Context()

	version := wire.ParseEIOVersion(req.URL.Query().Get("EIO"))

	if req.Header.Get("Upgrade") == "" {
		metrics.UpgradesTotal.WithLabelValues("rejected_no_upgrade").Inc()
		body := "polling transport is not implemented; connect with transport=websocket"
		if req.URL.Query().Get("transport") == "polling" {
			body = "polling transport was requested but is not implemented; use transport=websocket"
		}
		c.String(http.StatusBadRequest, body)
		return
	}

	key := req.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		metrics.UpgradesTotal.WithLabelValues("rejected_no_key").Inc()
		c.String(http.StatusBadRequest, "missing Sec-WebSocket-Key")
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  opts.ReadBufferSize,
		WriteBufferSize: opts.WriteBufferSize,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(c.Writer, req, nil)
	if err != nil {
		metrics.UpgradesTotal.WithLabelValues("rejected_hijack_failed").Inc()
		logging.Error(ctx, "failed to upgrade connection", zap.Error(err))
		return
	}

	metrics.UpgradesTotal.WithLabelValues("accepted").Inc()
	spawnSession(ctx, conn, version, opts, onConnect)
}

// acceptKey computes Sec-WebSocket-Accept per RFC 6455 §1.3.
func acceptKey(clientKey string) string {
	h := sha1.New()
	h.Write([]byte(clientKey))
	h.Write([]byte(websocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func spawnSession(ctx context.Context, conn *websocket.Conn, version wire.EIOVersion, opts Options, onConnect Handler) {
	sessionID := sid.New()
	sink := &wsSink{conn: conn}
	engine := session.NewEngine(sessionID, version, sink, opts.MailboxSize)

	handshake := wire.HandshakeData{
		SID:          sessionID,
		Upgrades:     []string{"websocket"},
		PingInterval: opts.PingIntervalMS,
		PingTimeout:  opts.PingTimeoutMS,
	}
	openFrame, err := wire.OpenFrame(handshake)
	if err != nil {
		logging.Error(ctx, "failed to render open frame", zap.Error(err))
		conn.Close()
		return
	}
	connectFrame, err := wire.ConnectFrame(version, sessionID)
	if err != nil {
		logging.Error(ctx, "failed to render connect frame", zap.Error(err))
		conn.Close()
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(openFrame)); err != nil {
		logging.Warn(ctx, "failed to write open frame", zap.Error(err))
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(connectFrame)); err != nil {
		logging.Warn(ctx, "failed to write connect frame", zap.Error(err))
	}

	sessionCtx := context.WithValue(context.Background(), logging.SIDKey, sessionID)
	go engine.Listen(sessionCtx)

	if onConnect != nil {
		onConnect(engine.Socket())
	}

	if version == wire.EIOv4 {
		go runKeepalive(engine, opts.PingIntervalMS)
	}

	go runReadLoop(sessionCtx, conn, engine)
}

func runKeepalive(e *session.Engine, intervalMS int) {
	ticker := time.NewTicker(time.Duration(intervalMS) * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-e.Done():
			return
		case <-ticker.C:
			select {
			case e.Mailbox() <- session.Frame{Kind: session.KindPong}:
			case <-e.Done():
				return
			}
		}
	}
}

func runReadLoop(ctx context.Context, conn *websocket.Conn, e *session.Engine) {
	conn.SetPingHandler(func(string) error {
		select {
		case e.Mailbox() <- session.Frame{Kind: session.KindWSPing}:
		case <-e.Done():
		}
		return nil
	})
	conn.SetPongHandler(func(string) error {
		select {
		case e.Mailbox() <- session.Frame{Kind: session.KindWSPong}:
		case <-e.Done():
		}
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue // binary frames are a documented no-op
		}
		if !dispatch(ctx, e, string(data)) {
			break
		}
	}

	select {
	case e.Mailbox() <- session.Frame{Kind: session.KindClose}:
	case <-e.Done():
	}
}

// dispatch applies the inbound frame dispatch table by prefix. It returns
// false when the session should close.
func dispatch(ctx context.Context, e *session.Engine, msg string) bool {
	switch {
	case msg == wire.EnginePing:
		select {
		case e.Mailbox() <- session.Frame{Kind: session.KindPing}:
		case <-e.Done():
			return false
		}
		return true

	case msg == wire.EnginePong:
		return true // client pong, nothing to do

	case strings.HasPrefix(msg, wire.IOEvent):
		event, payload, err := wire.ParseEvent(msg[len(wire.IOEvent):])
		if err != nil {
			metrics.FramesTotal.WithLabelValues("application_message", "malformed").Inc()
			logging.Warn(ctx, "malformed event frame, closing session", zap.Error(err))
			return false
		}
		for _, h := range e.HandlersFor(event) {
			h := h
			socket := e.Socket()
			go func() {
				defer func() {
					if r := recover(); r != nil {
						logging.Error(ctx, "event handler panicked", zap.Any("panic", r), zap.String("event", event))
					}
				}()
				if err := h(socket, payload); err != nil {
					logging.Warn(ctx, "event handler returned an error", zap.Error(err), zap.String("event", event))
				}
			}()
		}
		return true

	case strings.HasPrefix(msg, wire.IODisconnect):
		logging.Debug(ctx, "received disconnect frame")
		return true

	case strings.HasPrefix(msg, wire.IOConnect):
		logging.Debug(ctx, "received connect echo frame")
		return true

	default:
		logging.Warn(ctx, "fatal protocol violation: unrecognized frame", zap.String("frame", fmt.Sprintf("%.32s", msg)))
		return false
	}
}
