package session

import (
	"context"
	"testing"

	"github.com/sio-engine/socketio/internal/wire"
)

func TestSocketMutatingMethodsOnlyEnqueueMailboxMessages(t *testing.T) {
	t.Cleanup(ResetRegistry)
	sink := &fakeSink{}
	e := NewEngine("s1", wire.EIOv4, sink, 8)
	sock := e.Socket()

	sock.Join("lobby")
	sock.Send("chat", "hi")
	sock.Leave("lobby")

	if len(sink.snapshot()) != 0 {
		t.Fatal("expected no direct sink writes before the engine drains its mailbox")
	}

	go e.Listen(context.Background())
	e.Mailbox() <- Frame{Kind: KindClose}
	<-e.Done()

	texts := sink.snapshot()
	if len(texts) != 1 {
		t.Fatalf("expected exactly one application message written, got %v", texts)
	}
}

func TestSocketRoomsIsASnapshot(t *testing.T) {
	t.Cleanup(ResetRegistry)
	sink := &fakeSink{}
	e := NewEngine("s1", wire.EIOv4, sink, 8)

	before := e.Socket()
	if got := before.Rooms(); len(got) != 1 || got[0] != "s1" {
		t.Fatalf("expected initial rooms to be just the sid-room, got %v", got)
	}

	go e.Listen(context.Background())
	e.Mailbox() <- Frame{Kind: KindJoin, RoomID: "lobby"}
	e.Mailbox() <- Frame{Kind: KindClose}
	<-e.Done()

	if got := before.Rooms(); len(got) != 1 {
		t.Fatalf("expected the earlier snapshot to stay frozen, got %v", got)
	}
}

func TestBroadcastPackageFunctionDeliversToAllMembers(t *testing.T) {
	t.Cleanup(ResetRegistry)
	ch1 := make(chan Frame, 4)
	joinRoom("lobby", "s1", ch1)

	Broadcast("lobby", "announce", "hello")

	select {
	case f := <-ch1:
		if f.Event != "announce" || f.Payload != "hello" {
			t.Fatalf("unexpected frame: %+v", f)
		}
	default:
		t.Fatal("expected Broadcast to deliver to lobby member")
	}
}
