package event

import (
	"encoding/json"
	"errors"
	"time"
)

// Envelope validation errors.
var (
	ErrRoomIDRequired   = errors.New("room id is required")
	ErrTypeInvalid      = errors.New("event type is invalid")
	ErrActorTypeInvalid = errors.New("actor type is invalid")
	ErrActorIDRequired  = errors.New("actor id is required for player events")
)

// ResolutionMode records how a scene's winning option was determined.
type ResolutionMode string

const (
	ResolutionMajority ResolutionMode = "majority"
	ResolutionRandom   ResolutionMode = "random"
	ResolutionCombat   ResolutionMode = "combat"
	ResolutionTimed    ResolutionMode = "timed"
)

// ResetPayload is carried by story.reset events.
type ResetPayload struct {
	Reason string `json:"reason,omitempty"`
}

// ActionPayload is carried by scene.action events. For combat scenes StepID
// is the round id ("1", "2", ...) and ActionID references the combat catalog.
type ActionPayload struct {
	SceneID  string `json:"scene_id"`
	StepID   string `json:"step_id"`
	ActionID string `json:"action_id"`
	PlayerID string `json:"player_id"`
}

// TimerStartedPayload is carried by scene.timer_started events. EndsAtMillis
// is the deadline as Unix milliseconds; expiry is evaluated against it by
// whichever party observes now >= deadline.
type TimerStartedPayload struct {
	SceneID      string `json:"scene_id"`
	Kind         string `json:"kind,omitempty"`
	EndsAtMillis int64  `json:"ends_at_millis"`
}

// EndsAt returns the deadline as a time.
func (p TimerStartedPayload) EndsAt() time.Time {
	return time.UnixMilli(p.EndsAtMillis).UTC()
}

// OptionConfirmPayload is carried by scene.option_confirm events. Destination
// is the option's resolved destination computed by the voting client at the
// moment of voting: nil means no route matched, an empty string means the
// story ends on this option.
type OptionConfirmPayload struct {
	SceneID     string  `json:"scene_id"`
	PlayerID    string  `json:"player_id"`
	OptionID    string  `json:"option_id"`
	Destination *string `json:"destination,omitempty"`
}

// ResolvePayload is carried by scene.resolve events. Seed is recorded only
// for random-mode resolutions so tie-breaks stay auditable.
type ResolvePayload struct {
	SceneID       string         `json:"scene_id"`
	OptionID      string         `json:"option_id"`
	Mode          ResolutionMode `json:"mode"`
	Destination   *string        `json:"destination,omitempty"`
	Seed          int64          `json:"seed,omitempty"`
	CombatOutcome string         `json:"combat_outcome,omitempty"`
}

// ContinuePayload is carried by scene.continue events.
type ContinuePayload struct {
	SceneID  string `json:"scene_id"`
	PlayerID string `json:"player_id"`
}

// AdvancePayload is carried by scene.advance events. It repeats the
// resolution fields so a replica that missed the resolve event can still
// synthesize one during replay.
type AdvancePayload struct {
	SceneID     string         `json:"scene_id"`
	OptionID    string         `json:"option_id,omitempty"`
	Mode        ResolutionMode `json:"mode,omitempty"`
	Destination *string        `json:"destination,omitempty"`
}

// MarshalPayload encodes a payload struct for the event envelope.
func MarshalPayload(payload any) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		// Payload structs contain only marshalable fields.
		panic(err)
	}
	return data
}
