package upgrade

import "github.com/gorilla/websocket"

// wsSink adapts a *websocket.Conn to session.Sink.
type wsSink struct {
	conn *websocket.Conn
}

func (s *wsSink) WriteText(frame string) error {
	return s.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

func (s *wsSink) WriteWSPong() error {
	return s.conn.WriteMessage(websocket.PongMessage, nil)
}

func (s *wsSink) WriteWSPing() error {
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}

func (s *wsSink) Close() error {
	return s.conn.Close()
}
