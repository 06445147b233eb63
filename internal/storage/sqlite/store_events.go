package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/laborio/questing-together/internal/story/event"
)

// AppendEvent atomically allocates the room's next sequence number and
// appends the event. Allocation and insert share one transaction, so two
// concurrent appends can never both claim the same slot.
func (s *Store) AppendEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil || s.sqlDB == nil {
		return event.Event{}, fmt.Errorf("storage is not configured")
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

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return event.Event{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO event_seq (room_id, next_seq) VALUES (?, 1)`,
		evt.RoomID,
	); err != nil {
		return event.Event{}, fmt.Errorf("init event seq: %w", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT next_seq FROM event_seq WHERE room_id = ?`, evt.RoomID,
	).Scan(&seq); err != nil {
		return event.Event{}, fmt.Errorf("get event seq: %w", err)
	}
	evt.Seq = uint64(seq)

	if _, err := tx.ExecContext(ctx,
		`UPDATE event_seq SET next_seq = next_seq + 1 WHERE room_id = ?`, evt.RoomID,
	); err != nil {
		return event.Event{}, fmt.Errorf("increment event seq: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO events (room_id, seq, timestamp, event_type, actor_type, actor_id, request_id, payload_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		evt.RoomID,
		int64(evt.Seq),
		toMillis(evt.Timestamp),
		string(evt.Type),
		string(evt.ActorType),
		evt.ActorID,
		evt.RequestID,
		evt.PayloadJSON,
	); err != nil {
		if isConstraintError(err) {
			// The slot was filled by a racing writer; report the conflict
			// instead of silently reordering the journal.
			return event.Event{}, fmt.Errorf("append event: sequence %d already taken: %w", evt.Seq, err)
		}
		return event.Event{}, fmt.Errorf("append event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return event.Event{}, fmt.Errorf("commit: %w", err)
	}
	return evt, nil
}

// ListEvents returns the room's events ordered by sequence ascending.
func (s *Store) ListEvents(ctx context.Context, roomID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	query := `
SELECT room_id, seq, timestamp, event_type, actor_type, actor_id, request_id, payload_json
FROM events WHERE room_id = ? AND seq > ? ORDER BY seq ASC`
	args := []any{roomID, int64(afterSeq)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var evt event.Event
		var seq, timestamp int64
		var eventType, actorType string
		if err := rows.Scan(&evt.RoomID, &seq, &timestamp, &eventType, &actorType,
			&evt.ActorID, &evt.RequestID, &evt.PayloadJSON); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt.Seq = uint64(seq)
		evt.Timestamp = fromMillis(timestamp)
		evt.Type = event.Type(eventType)
		evt.ActorType = event.ActorType(actorType)
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return events, nil
}

// GetLatestEventSeq returns the newest sequence number for a room, 0 if the
// journal is empty.
func (s *Store) GetLatestEventSeq(ctx context.Context, roomID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var seq int64
	if err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM events WHERE room_id = ?`, roomID,
	).Scan(&seq); err != nil {
		return 0, fmt.Errorf("get latest event seq: %w", err)
	}
	return uint64(seq), nil
}
