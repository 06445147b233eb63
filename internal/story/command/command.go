// Package command defines player intents and the pure decisions they produce.
package command

import (
	"encoding/json"
	"strings"
)

// Type identifies a player intent.
type Type string

const (
	// TypeTakeAction records a reaction in the current step or round.
	TypeTakeAction Type = "story.take_action"
	// TypeSkipAction records a pass for the current step.
	TypeSkipAction Type = "story.skip_action"
	// TypeCastVote records a vote on the current scene's options.
	TypeCastVote Type = "story.cast_vote"
	// TypeContinue acknowledges a resolved scene.
	TypeContinue Type = "story.continue"
	// TypeFinishTimer requests resolution of a timed scene.
	TypeFinishTimer Type = "story.finish_timer"
	// TypeReset abandons all in-flight state for the room.
	TypeReset Type = "story.reset"
)

// Command is a player intent submitted to the authoritative gate.
type Command struct {
	Type        Type
	RoomID      string
	PlayerID    string
	RequestID   string
	PayloadJSON []byte
}

// TakeActionPayload carries the take-action intent parameters.
type TakeActionPayload struct {
	SceneID  string `json:"scene_id"`
	StepID   string `json:"step_id"`
	ActionID string `json:"action_id"`
}

// SkipActionPayload carries the skip intent parameters.
type SkipActionPayload struct {
	SceneID string `json:"scene_id"`
	StepID  string `json:"step_id"`
}

// CastVotePayload carries the vote intent parameters. Destination is the
// option's resolved destination computed client-side at the moment of voting.
type CastVotePayload struct {
	SceneID     string  `json:"scene_id"`
	OptionID    string  `json:"option_id"`
	Destination *string `json:"destination,omitempty"`
}

// ContinuePayload carries the continue intent parameters.
type ContinuePayload struct {
	SceneID string `json:"scene_id"`
}

// FinishTimerPayload carries the finish-timer intent parameters. Force
// bypasses the deadline check on scenes that allow early termination.
type FinishTimerPayload struct {
	SceneID string `json:"scene_id"`
	Force   bool   `json:"force,omitempty"`
}

// IsValid reports whether the command type is known.
func (t Type) IsValid() bool {
	switch t {
	case TypeTakeAction, TypeSkipAction, TypeCastVote, TypeContinue,
		TypeFinishTimer, TypeReset:
		return true
	}
	return false
}

// Normalize trims identity fields and defaults the payload.
func Normalize(cmd Command) Command {
	cmd.RoomID = strings.TrimSpace(cmd.RoomID)
	cmd.PlayerID = strings.TrimSpace(cmd.PlayerID)
	cmd.RequestID = strings.TrimSpace(cmd.RequestID)
	if len(cmd.PayloadJSON) == 0 {
		cmd.PayloadJSON = []byte("{}")
	}
	return cmd
}

// DecodePayload unmarshals the command payload into target.
func DecodePayload(cmd Command, target any) error {
	return json.Unmarshal(cmd.PayloadJSON, target)
}
