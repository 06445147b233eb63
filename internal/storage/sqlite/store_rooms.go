package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/laborio/questing-together/internal/storage"
	"github.com/laborio/questing-together/internal/story/content"
)

// PutRoom inserts or updates a room record.
func (s *Store) PutRoom(ctx context.Context, room storage.RoomRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO rooms (id, name, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`,
		room.ID, room.Name, toMillis(room.CreatedAt), toMillis(room.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put room: %w", err)
	}
	return nil
}

// GetRoom retrieves a room record by id.
func (s *Store) GetRoom(ctx context.Context, id string) (storage.RoomRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.RoomRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.RoomRecord{}, fmt.Errorf("storage is not configured")
	}

	var room storage.RoomRecord
	var createdAt, updatedAt int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM rooms WHERE id = ?`, id,
	).Scan(&room.ID, &room.Name, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.RoomRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.RoomRecord{}, fmt.Errorf("get room: %w", err)
	}
	room.CreatedAt = fromMillis(createdAt)
	room.UpdatedAt = fromMillis(updatedAt)
	return room, nil
}

// ListRooms returns all rooms ordered by id.
func (s *Store) ListRooms(ctx context.Context) ([]storage.RoomRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, name, created_at, updated_at FROM rooms ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []storage.RoomRecord
	for rows.Next() {
		var room storage.RoomRecord
		var createdAt, updatedAt int64
		if err := rows.Scan(&room.ID, &room.Name, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		room.CreatedAt = fromMillis(createdAt)
		room.UpdatedAt = fromMillis(updatedAt)
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rooms: %w", err)
	}
	return rooms, nil
}

// PutMember claims a seat. The primary key makes the claim first-wins.
func (s *Store) PutMember(ctx context.Context, member storage.MemberRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO room_members (room_id, player_id, name, role, joined_at)
VALUES (?, ?, ?, ?, ?)`,
		member.RoomID, member.PlayerID, member.Name, string(member.Role), toMillis(member.JoinedAt))
	if err != nil {
		if isConstraintError(err) {
			return storage.ErrMemberExists
		}
		return fmt.Errorf("put member: %w", err)
	}
	return nil
}

// GetMember retrieves a membership record.
func (s *Store) GetMember(ctx context.Context, roomID, playerID string) (storage.MemberRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.MemberRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.MemberRecord{}, fmt.Errorf("storage is not configured")
	}

	var member storage.MemberRecord
	var role string
	var joinedAt int64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT room_id, player_id, name, role, joined_at
FROM room_members WHERE room_id = ? AND player_id = ?`, roomID, playerID,
	).Scan(&member.RoomID, &member.PlayerID, &member.Name, &role, &joinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.MemberRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.MemberRecord{}, fmt.Errorf("get member: %w", err)
	}
	member.Role = content.Role(role)
	member.JoinedAt = fromMillis(joinedAt)
	return member, nil
}

// ListMembers returns the room's members ordered by join time.
func (s *Store) ListMembers(ctx context.Context, roomID string) ([]storage.MemberRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT room_id, player_id, name, role, joined_at
FROM room_members WHERE room_id = ? ORDER BY joined_at ASC, player_id ASC`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []storage.MemberRecord
	for rows.Next() {
		var member storage.MemberRecord
		var role string
		var joinedAt int64
		if err := rows.Scan(&member.RoomID, &member.PlayerID, &member.Name, &role, &joinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		member.Role = content.Role(role)
		member.JoinedAt = fromMillis(joinedAt)
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read members: %w", err)
	}
	return members, nil
}
