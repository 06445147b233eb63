// Package memory provides an in-memory Store for tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/laborio/questing-together/internal/storage"
	"github.com/laborio/questing-together/internal/story/event"
)

// Store keeps rooms, members, and event journals in process memory.
type Store struct {
	mu      sync.RWMutex
	rooms   map[string]storage.RoomRecord
	members map[string]map[string]storage.MemberRecord
	events  map[string][]event.Event
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		rooms:   make(map[string]storage.RoomRecord),
		members: make(map[string]map[string]storage.MemberRecord),
		events:  make(map[string][]event.Event),
	}
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

// AppendEvent validates the envelope, assigns the next room sequence, and
// appends the event.
func (s *Store) AppendEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	validated, err := event.ValidateForAppend(evt)
	if err != nil {
		return event.Event{}, err
	}
	evt = validated
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	evt.Seq = uint64(len(s.events[evt.RoomID])) + 1
	s.events[evt.RoomID] = append(s.events[evt.RoomID], evt)
	return evt, nil
}

// ListEvents returns the room's events ordered by sequence ascending.
func (s *Store) ListEvents(ctx context.Context, roomID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []event.Event
	for _, evt := range s.events[roomID] {
		if evt.Seq <= afterSeq {
			continue
		}
		out = append(out, evt)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// GetLatestEventSeq returns the newest sequence number for a room.
func (s *Store) GetLatestEventSeq(ctx context.Context, roomID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.events[roomID])), nil
}

// PutRoom stores a room record.
func (s *Store) PutRoom(ctx context.Context, room storage.RoomRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = room
	return nil
}

// GetRoom retrieves a room record by id.
func (s *Store) GetRoom(ctx context.Context, id string) (storage.RoomRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.RoomRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return storage.RoomRecord{}, storage.ErrNotFound
	}
	return room, nil
}

// ListRooms returns all rooms ordered by id.
func (s *Store) ListRooms(ctx context.Context) ([]storage.RoomRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]storage.RoomRecord, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms, nil
}

// PutMember claims a seat, first-wins per player.
func (s *Store) PutMember(ctx context.Context, member storage.MemberRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	seats := s.members[member.RoomID]
	if seats == nil {
		seats = make(map[string]storage.MemberRecord)
		s.members[member.RoomID] = seats
	}
	if _, taken := seats[member.PlayerID]; taken {
		return storage.ErrMemberExists
	}
	seats[member.PlayerID] = member
	return nil
}

// GetMember retrieves a membership record.
func (s *Store) GetMember(ctx context.Context, roomID, playerID string) (storage.MemberRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.MemberRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	member, ok := s.members[roomID][playerID]
	if !ok {
		return storage.MemberRecord{}, storage.ErrNotFound
	}
	return member, nil
}

// ListMembers returns the room's members ordered by join time, then id.
func (s *Store) ListMembers(ctx context.Context, roomID string) ([]storage.MemberRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make([]storage.MemberRecord, 0, len(s.members[roomID]))
	for _, member := range s.members[roomID] {
		members = append(members, member)
	}
	sort.Slice(members, func(i, j int) bool {
		if !members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].JoinedAt.Before(members[j].JoinedAt)
		}
		return members[i].PlayerID < members[j].PlayerID
	})
	return members, nil
}
