package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/laborio/questing-together/internal/storage"
	"github.com/laborio/questing-together/internal/story/content"
	"github.com/laborio/questing-together/internal/story/event"
)

func testEvent(roomID string) event.Event {
	return event.Event{
		RoomID:      roomID,
		Type:        event.TypeSceneAction,
		ActorType:   event.ActorTypePlayer,
		ActorID:     "p1",
		PayloadJSON: []byte(`{}`),
	}
}

func TestAppendAndListEvents(t *testing.T) {
	store := New()
	ctx := context.Background()

	for want := uint64(1); want <= 3; want++ {
		stored, err := store.AppendEvent(ctx, testEvent("room-1"))
		if err != nil {
			t.Fatalf("append event: %v", err)
		}
		if stored.Seq != want {
			t.Fatalf("expected seq %d, got %d", want, stored.Seq)
		}
	}

	events, err := store.ListEvents(ctx, "room-1", 1, 1)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 || events[0].Seq != 2 {
		t.Fatalf("expected one event at seq 2, got %+v", events)
	}

	seq, err := store.GetLatestEventSeq(ctx, "room-1")
	if err != nil {
		t.Fatalf("latest seq: %v", err)
	}
	if seq != 3 {
		t.Fatalf("expected latest seq 3, got %d", seq)
	}
}

func TestAppendValidatesEnvelope(t *testing.T) {
	store := New()
	evt := testEvent("room-1")
	evt.Type = "bogus"
	if _, err := store.AppendEvent(context.Background(), evt); err == nil {
		t.Fatal("expected an invalid event type to be rejected")
	}
}

func TestRoomsAndMembers(t *testing.T) {
	store := New()
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := store.GetRoom(ctx, "room-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.PutRoom(ctx, storage.RoomRecord{ID: "room-1", Name: "Crown", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("put room: %v", err)
	}
	if _, err := store.GetRoom(ctx, "room-1"); err != nil {
		t.Fatalf("get room: %v", err)
	}

	member := storage.MemberRecord{RoomID: "room-1", PlayerID: "p1", Role: content.RoleWarrior, JoinedAt: now}
	if err := store.PutMember(ctx, member); err != nil {
		t.Fatalf("put member: %v", err)
	}
	if err := store.PutMember(ctx, member); !errors.Is(err, storage.ErrMemberExists) {
		t.Fatalf("expected ErrMemberExists, got %v", err)
	}

	members, err := store.ListMembers(ctx, "room-1")
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 1 || members[0].PlayerID != "p1" {
		t.Fatalf("expected one member p1, got %+v", members)
	}
}
