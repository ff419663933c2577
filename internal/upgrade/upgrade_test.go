package upgrade

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/sio-engine/socketio/internal/session"
	"github.com/gin-gonic/gin"
)

func TestAcceptKeyMatchesRFC6455Example(t *testing.T) {
	got := acceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Fatalf("acceptKey() = %q, want %q", got, want)
	}
}

func TestMissingUpgradeHeaderReturns400(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/socket.io/", Route(DefaultOptions(), nil))

	req := httptest.NewRequest(http.MethodGet, "/socket.io/?EIO=4", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestMissingUpgradeHeaderWithPollingTransportMentionsPolling(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/socket.io/", Route(DefaultOptions(), nil))

	req := httptest.NewRequest(http.MethodGet, "/socket.io/?EIO=4&transport=polling", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "polling") {
		t.Fatalf("expected body to mention polling, got %q", w.Body.String())
	}
}

func TestMissingSecWebSocketKeyReturns400(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/socket.io/", Route(DefaultOptions(), nil))

	req := httptest.NewRequest(http.MethodGet, "/socket.io/?EIO=4", nil)
	req.Header.Set("Upgrade", "websocket")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

// TestHandshakeV3SendsOpenThenConnect exercises the real hijack path over a
// TCP loopback connection, mirroring scenario S1: a v3 client gets a bare
// `40` as its second frame.
func TestHandshakeV3SendsOpenThenConnect(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	connected := make(chan session.Socket, 1)
	r.GET("/socket.io/", Route(DefaultOptions(), func(s session.Socket) {
		connected <- s
	}))

	srv := httptest.NewServer(r)
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	req := "GET /socket.io/?EIO=3&transport=websocket HTTP/1.1\r\n" +
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
		t.Fatalf("expected 101 status line, got %q", statusLine)
	}
	tp := textproto.NewReader(br)
	hdr, err := tp.ReadMIMEHeader()
	if err != nil {
		t.Fatal(err)
	}
	if got := hdr.Get("Sec-WebSocket-Accept"); got != "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=" {
		t.Fatalf("unexpected accept key: %q", got)
	}

	frame1, _, err := readFrame(br)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(frame1, "0{") {
		t.Fatalf("expected engine.io open frame, got %q", frame1)
	}

	frame2, _, err := readFrame(br)
	if err != nil {
		t.Fatal(err)
	}
	if frame2 != "40" {
		t.Fatalf("expected bare '40' connect frame for v3, got %q", frame2)
	}

	select {
	case gotSocket := <-connected:
		if len(gotSocket.ID()) != 30 {
			t.Fatalf("expected connect handler to receive a 30-char sid, got %q", gotSocket.ID())
		}
	case <-time.After(time.Second):
		t.Fatal("connect handler was never invoked")
	}
}

// readFrame reads a single unmasked text WebSocket frame (server → client,
// so no masking) off br, returning its payload.
func readFrame(br *bufio.Reader) (string, byte, error) {
	head, err := br.Peek(2)
	if err != nil {
		return "", 0, err
	}
	_ = head
	b0, err := br.ReadByte()
	if err != nil {
		return "", 0, err
	}
	opcode := b0 & 0x0f

	b1, err := br.ReadByte()
	if err != nil {
		return "", 0, err
	}
	length := int64(b1 & 0x7f)
	switch length {
	case 126:
		buf := make([]byte, 2)
		if _, err := br.Read(buf); err != nil {
			return "", 0, err
		}
		length = int64(buf[0])<<8 | int64(buf[1])
	case 127:
		buf := make([]byte, 8)
		if _, err := br.Read(buf); err != nil {
			return "", 0, err
		}
		length = 0
		for _, b := range buf {
			length = length<<8 | int64(b)
		}
	}

	payload := make([]byte, length)
	if _, err := readFull(br, payload); err != nil {
		return "", 0, err
	}
	return string(payload), opcode, nil
}

func readFull(br *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := br.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
