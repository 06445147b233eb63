package httpapi

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/laborio/questing-together/internal/storage"
	"github.com/laborio/questing-together/internal/story/event"
	"github.com/laborio/questing-together/internal/story/state"
	"github.com/laborio/questing-together/internal/story/turns"
)

// EventView is the JSON rendering of one journal entry.
type EventView struct {
	RoomID    string          `json:"room_id"`
	Seq       uint64          `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Type      string          `json:"type"`
	ActorType string          `json:"actor_type"`
	ActorID   string          `json:"actor_id,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEventView renders a stored event.
func NewEventView(evt event.Event) EventView {
	return EventView{
		RoomID:    evt.RoomID,
		Seq:       evt.Seq,
		Timestamp: evt.Timestamp,
		Type:      string(evt.Type),
		ActorType: string(evt.ActorType),
		ActorID:   evt.ActorID,
		RequestID: evt.RequestID,
		Payload:   json.RawMessage(evt.PayloadJSON),
	}
}

// RoomView is the JSON rendering of a room record.
type RoomView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newRoomView(room storage.RoomRecord) RoomView {
	return RoomView{ID: room.ID, Name: room.Name, CreatedAt: room.CreatedAt, UpdatedAt: room.UpdatedAt}
}

// MemberView is the JSON rendering of a claimed seat.
type MemberView struct {
	PlayerID string    `json:"player_id"`
	Name     string    `json:"name,omitempty"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

func newMemberView(member storage.MemberRecord) MemberView {
	return MemberView{
		PlayerID: member.PlayerID,
		Name:     member.Name,
		Role:     string(member.Role),
		JoinedAt: member.JoinedAt,
	}
}

// StateView is the server-rendered reduction of a room's journal, exposed
// for debugging and thin clients.
type StateView struct {
	CurrentSceneID string                       `json:"current_scene_id"`
	SceneSequence  []string                     `json:"scene_sequence"`
	Ended          bool                         `json:"ended"`
	PartyHP        int                          `json:"party_hp"`
	PartyMaxHP     int                          `json:"party_max_hp"`
	GlobalTags     []string                     `json:"global_tags,omitempty"`
	Scenes         map[string]SceneProgressView `json:"scenes"`
	Available      []ActionAvailabilityView     `json:"available_actions,omitempty"`
}

// SceneProgressView summarizes one scene visit.
type SceneProgressView struct {
	Steps           map[string][]ActionRecordView `json:"steps,omitempty"`
	Votes           []VoteView                    `json:"votes,omitempty"`
	Resolution      *ResolutionView               `json:"resolution,omitempty"`
	ContinueAcks    []string                      `json:"continue_acks,omitempty"`
	TimerEndsAt     *time.Time                    `json:"timer_ends_at,omitempty"`
	SceneTags       []string                      `json:"scene_tags,omitempty"`
	UnlockedOptions []string                      `json:"unlocked_options,omitempty"`
	DisabledActions []string                      `json:"disabled_actions,omitempty"`
	Combat          *CombatProgressView           `json:"combat,omitempty"`
}

// ActionRecordView is one recorded reaction.
type ActionRecordView struct {
	ActionID string `json:"action_id"`
	PlayerID string `json:"player_id"`
}

// VoteView is one recorded option confirmation.
type VoteView struct {
	PlayerID    string  `json:"player_id"`
	OptionID    string  `json:"option_id"`
	Destination *string `json:"destination,omitempty"`
}

// ResolutionView is the recorded winning option for a scene.
type ResolutionView struct {
	OptionID    string  `json:"option_id"`
	Mode        string  `json:"mode"`
	Destination *string `json:"destination,omitempty"`
}

// CombatProgressView is the incremental encounter state.
type CombatProgressView struct {
	EnemyHP        int    `json:"enemy_hp"`
	RoundsResolved int    `json:"rounds_resolved"`
	Outcome        string `json:"outcome"`
}

// ActionAvailabilityView is one action the requesting player may take.
type ActionAvailabilityView struct {
	ActionID string `json:"action_id"`
	Role     string `json:"role"`
	Text     string `json:"text,omitempty"`
	Skip     bool   `json:"skip,omitempty"`
}

// newStateView renders a reduced state. available is optional.
func newStateView(st state.State, available []turns.Availability) StateView {
	view := StateView{
		CurrentSceneID: st.CurrentSceneID,
		SceneSequence:  st.SceneSequence,
		Ended:          st.Ended,
		PartyHP:        st.PartyHP,
		PartyMaxHP:     st.PartyMaxHP,
		GlobalTags:     sortedKeys(st.GlobalTags),
		Scenes:         make(map[string]SceneProgressView, len(st.Scenes)),
	}
	for sceneID, progress := range st.Scenes {
		view.Scenes[sceneID] = newSceneProgressView(progress)
	}
	for _, action := range available {
		view.Available = append(view.Available, ActionAvailabilityView{
			ActionID: action.ActionID,
			Role:     string(action.Role),
			Text:     action.Text,
			Skip:     action.Skip,
		})
	}
	return view
}

func newSceneProgressView(progress *state.SceneProgress) SceneProgressView {
	view := SceneProgressView{
		ContinueAcks:    progress.ContinueAcks,
		TimerEndsAt:     progress.TimerEndsAt,
		SceneTags:       sortedKeys(progress.SceneTags),
		UnlockedOptions: sortedKeys(progress.UnlockedOptions),
		DisabledActions: sortedKeys(progress.DisabledActions),
	}
	if len(progress.Steps) > 0 {
		view.Steps = make(map[string][]ActionRecordView, len(progress.Steps))
		for stepID, records := range progress.Steps {
			rendered := make([]ActionRecordView, 0, len(records))
			for _, record := range records {
				rendered = append(rendered, ActionRecordView{ActionID: record.ActionID, PlayerID: record.PlayerID})
			}
			view.Steps[stepID] = rendered
		}
	}
	for _, vote := range progress.Votes {
		view.Votes = append(view.Votes, VoteView{
			PlayerID:    vote.PlayerID,
			OptionID:    vote.OptionID,
			Destination: vote.Destination,
		})
	}
	if progress.Resolution != nil {
		view.Resolution = &ResolutionView{
			OptionID:    progress.Resolution.OptionID,
			Mode:        string(progress.Resolution.Mode),
			Destination: progress.Resolution.Destination,
		}
	}
	if progress.Combat != nil {
		view.Combat = &CombatProgressView{
			EnemyHP:        progress.Combat.EnemyHP,
			RoundsResolved: progress.Combat.RoundsResolved,
			Outcome:        string(progress.Combat.Outcome),
		}
	}
	return view
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
