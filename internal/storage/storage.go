// Package storage defines the persistence boundary for rooms and their
// story event journals.
package storage

import (
	"context"
	"time"

	apperrors "github.com/laborio/questing-together/internal/platform/errors"
	"github.com/laborio/questing-together/internal/story/content"
	"github.com/laborio/questing-together/internal/story/event"
)

// ErrNotFound indicates a requested persistence record is missing. Callers
// use this to differentiate legitimate "no such entity" states from transport
// or data corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrMemberExists indicates a join tried to claim a room seat that is
// already taken by another player.
var ErrMemberExists = apperrors.New(apperrors.CodeAlreadyExists, "room member already exists")

// RoomRecord captures the metadata of one play room.
type RoomRecord struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MemberRecord binds a player to a room seat with a fixed role.
type MemberRecord struct {
	RoomID   string
	PlayerID string
	Name     string
	Role     content.Role
	JoinedAt time.Time
}

// EventStore owns the append-only story journal that drives replay; it is
// the source of truth for state reconstruction.
type EventStore interface {
	// AppendEvent atomically appends an event and returns it with its
	// room sequence number set.
	AppendEvent(ctx context.Context, evt event.Event) (event.Event, error)
	// ListEvents returns events ordered by sequence ascending. afterSeq 0
	// reads from the start; limit <= 0 reads to the end.
	ListEvents(ctx context.Context, roomID string, afterSeq uint64, limit int) ([]event.Event, error)
	// GetLatestEventSeq returns the latest sequence for a room, 0 if none.
	GetLatestEventSeq(ctx context.Context, roomID string) (uint64, error)
}

// RoomStore owns room and membership records used by authorization and the
// room API.
type RoomStore interface {
	PutRoom(ctx context.Context, room RoomRecord) error
	GetRoom(ctx context.Context, id string) (RoomRecord, error)
	ListRooms(ctx context.Context) ([]RoomRecord, error)
	// PutMember claims a seat. Returns ErrMemberExists when the player
	// already holds one in the room.
	PutMember(ctx context.Context, member MemberRecord) error
	GetMember(ctx context.Context, roomID, playerID string) (MemberRecord, error)
	ListMembers(ctx context.Context, roomID string) ([]MemberRecord, error)
}

// Store is the composite interface the server wires together.
type Store interface {
	EventStore
	RoomStore
	Close() error
}
