// Package event defines the immutable story event journal entries.
//
// Events represent facts that have occurred, not commands/requests. Once a
// validated event is appended to a room's log it is never mutated, and the
// log order (by Seq) is the single source of truth for state reconstruction.
package event

import (
	"strings"
	"time"
)

// Type identifies the type of a story event.
type Type string

const (
	// TypeStoryReset clears all accumulated state back to the start scene.
	TypeStoryReset Type = "story.reset"
	// TypeSceneAction records one player's reaction within a step or round.
	TypeSceneAction Type = "scene.action"
	// TypeTimerStarted records the deadline armed for a timed scene.
	TypeTimerStarted Type = "scene.timer_started"
	// TypeOptionConfirm records one player's vote on a decision option.
	TypeOptionConfirm Type = "scene.option_confirm"
	// TypeSceneResolve records the winning option for a scene.
	TypeSceneResolve Type = "scene.resolve"
	// TypeSceneContinue records one player's continuation acknowledgment.
	TypeSceneContinue Type = "scene.continue"
	// TypeSceneAdvance records the move to the next scene.
	TypeSceneAdvance Type = "scene.advance"
)

// ActorType identifies who or what triggered an event.
type ActorType string

const (
	// ActorTypeSystem indicates the event was synthesized by the gate.
	ActorTypeSystem ActorType = "system"
	// ActorTypePlayer indicates the event was triggered by a player.
	ActorTypePlayer ActorType = "player"
)

// Event is one immutable entry in a room's story journal.
type Event struct {
	// RoomID is the room this event belongs to.
	RoomID string
	// Seq is the event sequence number within the room (starts at 1).
	// Assigned by storage on append.
	Seq uint64
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Type identifies the kind of event.
	Type Type
	// ActorType identifies who triggered the event.
	ActorType ActorType
	// ActorID is the player id when ActorType is player.
	ActorID string
	// RequestID correlates the event with the intent that produced it.
	RequestID string
	// PayloadJSON holds event-specific data as JSON.
	PayloadJSON []byte
}

// IsValid reports whether the event type is usable.
func (t Type) IsValid() bool {
	switch t {
	case TypeStoryReset, TypeSceneAction, TypeTimerStarted, TypeOptionConfirm,
		TypeSceneResolve, TypeSceneContinue, TypeSceneAdvance:
		return true
	}
	return false
}

// Domain returns the domain prefix of the event type (e.g., "scene", "story").
func (t Type) Domain() string {
	for i, c := range t {
		if c == '.' {
			return string(t[:i])
		}
	}
	return string(t)
}

// ValidateForAppend normalizes and checks the envelope before storage.
func ValidateForAppend(evt Event) (Event, error) {
	evt.RoomID = strings.TrimSpace(evt.RoomID)
	if evt.RoomID == "" {
		return Event{}, ErrRoomIDRequired
	}
	if !evt.Type.IsValid() {
		return Event{}, ErrTypeInvalid
	}
	if evt.ActorType != ActorTypeSystem && evt.ActorType != ActorTypePlayer {
		return Event{}, ErrActorTypeInvalid
	}
	if evt.ActorType == ActorTypePlayer && strings.TrimSpace(evt.ActorID) == "" {
		return Event{}, ErrActorIDRequired
	}
	if len(evt.PayloadJSON) == 0 {
		evt.PayloadJSON = []byte("{}")
	}
	return evt, nil
}
