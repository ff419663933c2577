package socketio

import (
	"bufio"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sio-engine/socketio/internal/config"
	"github.com/gin-gonic/gin"
)

func TestMountPerformsHandshakeAndInvokesOnConnect(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := &config.Config{PingIntervalMS: 25000, PingTimeoutMS: 20000, MailboxSize: 16}
	srv := New(cfg, nil)

	connected := make(chan Socket, 1)
	srv.Mount(r, "/socket.io/", func(s Socket) {
		s.On("chat", func(s Socket, payload string) error {
			s.EmitTo(s.ID(), "echo", payload)
			return nil
		})
		connected <- s
	})
	MountHealth(r, nil)

	ts := httptest.NewServer(r)
	defer ts.Close()

	addr := strings.TrimPrefix(ts.URL, "http://")
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	req := "GET /socket.io/?EIO=4&transport=websocket HTTP/1.1\r\n" +
		"Host: " + addr + "\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n\r\n"
	if _, err := conn.Write([]byte(req)); err != nil {
		t.Fatal(err)
	}

	br := bufio.NewReader(conn)
	statusLine, err := br.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(statusLine, "101") {
		t.Fatalf("expected 101, got %q", statusLine)
	}

	select {
	case s := <-connected:
		if len(s.ID()) != 30 {
			t.Fatalf("expected a 30-char sid, got %q", s.ID())
		}
	case <-time.After(time.Second):
		t.Fatal("onConnect was never invoked")
	}
}

func TestMountHealthLiveness(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	MountHealth(r, nil)

	ts := httptest.NewServer(r)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/health/live")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
