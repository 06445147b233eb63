package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/laborio/questing-together/internal/storage"
	"github.com/laborio/questing-together/internal/story/content"
	"github.com/laborio/questing-together/internal/story/event"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "questing.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testEvent(roomID string) event.Event {
	return event.Event{
		RoomID:      roomID,
		Type:        event.TypeSceneAction,
		ActorType:   event.ActorTypePlayer,
		ActorID:     "p1",
		RequestID:   "req-1",
		PayloadJSON: []byte(`{"scene_id":"gate","step_id":"st1","action_id":"force","player_id":"p1"}`),
	}
}

func TestAppendEventAssignsSequentialSeqs(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for want := uint64(1); want <= 3; want++ {
		stored, err := store.AppendEvent(ctx, testEvent("room-1"))
		if err != nil {
			t.Fatalf("append event %d: %v", want, err)
		}
		if stored.Seq != want {
			t.Fatalf("expected seq %d, got %d", want, stored.Seq)
		}
	}

	// Sequences are scoped per room.
	stored, err := store.AppendEvent(ctx, testEvent("room-2"))
	if err != nil {
		t.Fatalf("append to second room: %v", err)
	}
	if stored.Seq != 1 {
		t.Fatalf("expected fresh room to start at seq 1, got %d", stored.Seq)
	}
}

func TestAppendEventValidatesEnvelope(t *testing.T) {
	store := openTestStore(t)

	evt := testEvent("room-1")
	evt.ActorID = ""
	if _, err := store.AppendEvent(context.Background(), evt); err == nil {
		t.Fatal("expected a player event without an actor id to be rejected")
	}

	evt = testEvent("")
	if _, err := store.AppendEvent(context.Background(), evt); err == nil {
		t.Fatal("expected an event without a room id to be rejected")
	}
}

func TestListEventsOrderAndPaging(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := store.AppendEvent(ctx, testEvent("room-1")); err != nil {
			t.Fatalf("append event: %v", err)
		}
	}

	events, err := store.ListEvents(ctx, "room-1", 0, 0)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}
	for i, evt := range events {
		if evt.Seq != uint64(i+1) {
			t.Fatalf("expected ascending seqs, got %d at index %d", evt.Seq, i)
		}
	}
	if events[0].Type != event.TypeSceneAction || events[0].ActorID != "p1" {
		t.Fatalf("expected envelope round-trip, got %+v", events[0])
	}

	page, err := store.ListEvents(ctx, "room-1", 2, 2)
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(page) != 2 || page[0].Seq != 3 || page[1].Seq != 4 {
		t.Fatalf("expected seqs [3 4], got %+v", page)
	}
}

func TestGetLatestEventSeq(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	seq, err := store.GetLatestEventSeq(ctx, "room-1")
	if err != nil {
		t.Fatalf("latest seq on empty room: %v", err)
	}
	if seq != 0 {
		t.Fatalf("expected 0 for empty journal, got %d", seq)
	}

	if _, err := store.AppendEvent(ctx, testEvent("room-1")); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if _, err := store.AppendEvent(ctx, testEvent("room-1")); err != nil {
		t.Fatalf("append event: %v", err)
	}

	seq, err = store.GetLatestEventSeq(ctx, "room-1")
	if err != nil {
		t.Fatalf("latest seq: %v", err)
	}
	if seq != 2 {
		t.Fatalf("expected latest seq 2, got %d", seq)
	}
}

func TestRoomRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	if _, err := store.GetRoom(ctx, "room-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	room := storage.RoomRecord{ID: "room-1", Name: "The Hollow Crown", CreatedAt: now, UpdatedAt: now}
	if err := store.PutRoom(ctx, room); err != nil {
		t.Fatalf("put room: %v", err)
	}

	got, err := store.GetRoom(ctx, "room-1")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if got.Name != room.Name || !got.CreatedAt.Equal(room.CreatedAt) {
		t.Fatalf("expected round-trip record, got %+v", got)
	}

	// Put is an upsert on name and updated time.
	room.Name = "Renamed"
	room.UpdatedAt = now.Add(time.Minute)
	if err := store.PutRoom(ctx, room); err != nil {
		t.Fatalf("update room: %v", err)
	}
	got, err = store.GetRoom(ctx, "room-1")
	if err != nil {
		t.Fatalf("get updated room: %v", err)
	}
	if got.Name != "Renamed" || !got.UpdatedAt.Equal(room.UpdatedAt) {
		t.Fatalf("expected upsert applied, got %+v", got)
	}
}

func TestMemberSeatIsFirstWins(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	member := storage.MemberRecord{
		RoomID: "room-1", PlayerID: "p1", Name: "Aldric",
		Role: content.RoleWarrior, JoinedAt: now,
	}
	if err := store.PutMember(ctx, member); err != nil {
		t.Fatalf("put member: %v", err)
	}

	member.Role = content.RoleSage
	if err := store.PutMember(ctx, member); !errors.Is(err, storage.ErrMemberExists) {
		t.Fatalf("expected ErrMemberExists, got %v", err)
	}

	got, err := store.GetMember(ctx, "room-1", "p1")
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if got.Role != content.RoleWarrior {
		t.Fatalf("expected the first claim to win, got role %s", got.Role)
	}

	if _, err := store.GetMember(ctx, "room-1", "ghost"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown member, got %v", err)
	}
}

func TestListMembersOrderedByJoin(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	seats := []storage.MemberRecord{
		{RoomID: "room-1", PlayerID: "p3", Role: content.RoleRanger, JoinedAt: base.Add(2 * time.Second)},
		{RoomID: "room-1", PlayerID: "p1", Role: content.RoleWarrior, JoinedAt: base},
		{RoomID: "room-1", PlayerID: "p2", Role: content.RoleSage, JoinedAt: base.Add(time.Second)},
	}
	for _, seat := range seats {
		if err := store.PutMember(ctx, seat); err != nil {
			t.Fatalf("put member %s: %v", seat.PlayerID, err)
		}
	}

	members, err := store.ListMembers(ctx, "room-1")
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 3 {
		t.Fatalf("expected 3 members, got %d", len(members))
	}
	for i, want := range []string{"p1", "p2", "p3"} {
		if members[i].PlayerID != want {
			t.Fatalf("expected join order [p1 p2 p3], got %v at %d", members[i].PlayerID, i)
		}
	}
}
