package session

import (
	"context"
	"strings"
	"testing"

	"github.com/sio-engine/socketio/internal/wire"
	"go.uber.org/goleak"
)

func runToClose(t *testing.T, e *Engine, frames ...Frame) *fakeSink {
	t.Helper()
	go e.Listen(context.Background())
	for _, f := range frames {
		e.Mailbox() <- f
	}
	e.Mailbox() <- Frame{Kind: KindClose}
	<-e.Done()
	return nil
}

func TestApplicationMessageFormatsAndIncrementsCounter(t *testing.T) {
	t.Cleanup(ResetRegistry)
	sink := &fakeSink{}
	e := NewEngine("s1", wire.EIOv4, sink, 8)

	go e.Listen(context.Background())
	e.Mailbox() <- Frame{Kind: KindApplicationMessage, Event: "chat", Payload: "hi"}
	e.Mailbox() <- Frame{Kind: KindApplicationMessage, Event: "chat", Payload: "again"}
	e.Mailbox() <- Frame{Kind: KindClose}
	<-e.Done()

	texts := sink.snapshot()
	if len(texts) != 2 {
		t.Fatalf("expected 2 frames written, got %d: %v", len(texts), texts)
	}
	if !strings.HasPrefix(texts[0], `421["chat",`) {
		t.Fatalf("expected counter 1 in first frame, got %q", texts[0])
	}
	if !strings.HasPrefix(texts[1], `422["chat",`) {
		t.Fatalf("expected counter 2 in second frame, got %q", texts[1])
	}
}

func TestPingRespondsWithEnginePong(t *testing.T) {
	t.Cleanup(ResetRegistry)
	sink := &fakeSink{}
	e := NewEngine("s1", wire.EIOv4, sink, 8)

	go e.Listen(context.Background())
	e.Mailbox() <- Frame{Kind: KindPing}
	e.Mailbox() <- Frame{Kind: KindClose}
	<-e.Done()

	texts := sink.snapshot()
	if len(texts) != 1 || texts[0] != wire.EnginePong {
		t.Fatalf("expected a single pong frame, got %v", texts)
	}
}

func TestPongSendsKeepaliveEnginePing(t *testing.T) {
	t.Cleanup(ResetRegistry)
	sink := &fakeSink{}
	e := NewEngine("s1", wire.EIOv4, sink, 8)

	go e.Listen(context.Background())
	e.Mailbox() <- Frame{Kind: KindPong}
	e.Mailbox() <- Frame{Kind: KindClose}
	<-e.Done()

	texts := sink.snapshot()
	if len(texts) != 1 || texts[0] != wire.EnginePing {
		t.Fatalf("expected a single keepalive ping frame, got %v", texts)
	}
}

func TestWSPingAndWSPongRespondOnWSLayer(t *testing.T) {
	t.Cleanup(ResetRegistry)
	sink := &fakeSink{}
	e := NewEngine("s1", wire.EIOv4, sink, 8)

	go e.Listen(context.Background())
	e.Mailbox() <- Frame{Kind: KindWSPing}
	e.Mailbox() <- Frame{Kind: KindWSPong}
	e.Mailbox() <- Frame{Kind: KindClose}
	<-e.Done()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.wsPongs != 1 || sink.wsPings != 1 {
		t.Fatalf("expected one ws pong and one ws ping, got pongs=%d pings=%d", sink.wsPongs, sink.wsPings)
	}
}

func TestCloseTearsDownRoomsAndSink(t *testing.T) {
	t.Cleanup(ResetRegistry)
	sink := &fakeSink{}
	e := NewEngine("s1", wire.EIOv4, sink, 8)

	go e.Listen(context.Background())
	e.Mailbox() <- Frame{Kind: KindJoin, RoomID: "lobby"}
	e.Mailbox() <- Frame{Kind: KindClose}
	<-e.Done()

	if RoomSize("lobby") != 0 {
		t.Fatalf("expected lobby empty after close, got %d members", RoomSize("lobby"))
	}
	if RoomSize("s1") != 0 {
		t.Fatalf("expected own sid-room empty after close, got %d members", RoomSize("s1"))
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if !sink.closed {
		t.Fatal("expected sink to be closed")
	}
}

func TestJoinLeaveBugFixRemovesCorrectMember(t *testing.T) {
	t.Cleanup(ResetRegistry)
	ch1 := make(chan Frame, 4)
	ch2 := make(chan Frame, 4)

	joinRoom("lobby", "s1", ch1)
	joinRoom("lobby", "s2", ch2)
	if RoomSize("lobby") != 2 {
		t.Fatalf("expected 2 members, got %d", RoomSize("lobby"))
	}

	leaveRoom("lobby", "s1")
	members := roomMembers("lobby")
	if len(members) != 1 || members[0].sid != "s2" {
		t.Fatalf("expected only s2 to remain, got %+v", members)
	}
}

func TestEmitToFanoutAndBroadcastToExcludesSender(t *testing.T) {
	t.Cleanup(ResetRegistry)
	ch1 := make(chan Frame, 4)
	ch2 := make(chan Frame, 4)
	joinRoom("lobby", "s1", ch1)
	joinRoom("lobby", "s2", ch2)

	emitToRoom("lobby", "chat", "hi", "")
	select {
	case f := <-ch1:
		if f.Event != "chat" || f.Payload != "hi" {
			t.Fatalf("unexpected frame on ch1: %+v", f)
		}
	default:
		t.Fatal("expected emitTo to deliver to s1")
	}
	select {
	case f := <-ch2:
		if f.Event != "chat" || f.Payload != "hi" {
			t.Fatalf("unexpected frame on ch2: %+v", f)
		}
	default:
		t.Fatal("expected emitTo to deliver to s2")
	}

	emitToRoom("lobby", "chat", "again", "s1")
	select {
	case f := <-ch1:
		t.Fatalf("expected broadcastTo to exclude sender, got %+v", f)
	default:
	}
	select {
	case <-ch2:
	default:
		t.Fatal("expected broadcastTo to still deliver to s2")
	}
}

func TestEngineGoroutineExitsOnClose(t *testing.T) {
	defer goleak.VerifyNone(t)
	t.Cleanup(ResetRegistry)
	sink := &fakeSink{}
	e := NewEngine("s1", wire.EIOv4, sink, 8)
	runToClose(t, e)
}
