// Package state reduces an ordered story event log into the current view.
//
// Reduce is a pure fold: the same ordered event list always yields the same
// State, no matter how many times it runs or on which replica. State is
// recomputed from scratch whenever the log changes rather than patched in
// place, so replicas cannot drift from the authoritative projection.
package state

import (
	"time"

	"github.com/laborio/questing-together/internal/story/combat"
	"github.com/laborio/questing-together/internal/story/content"
	"github.com/laborio/questing-together/internal/story/event"
)

// State is the reduction of all events up to now.
type State struct {
	CurrentSceneID string
	// SceneSequence is the ordered visit history. Repeats are legal; the
	// data model does not forbid scene-graph cycles.
	SceneSequence []string
	// Ended is set once a resolution routes to an ending or the party
	// arrives at an ending scene.
	Ended bool
	// PartyHP is the shared party resource, carried across the whole
	// story and clamped to [0, PartyMaxHP].
	PartyHP    int
	PartyMaxHP int
	GlobalTags map[string]bool
	// Scenes holds per-scene progress keyed by scene id. Revisiting a
	// scene through a route cycle starts it fresh.
	Scenes map[string]*SceneProgress
}

// SceneProgress accumulates everything recorded for one scene visit.
type SceneProgress struct {
	SceneID string
	// StepOrder preserves first-seen step (or combat round) order.
	StepOrder []string
	// Steps holds action records per step id, in event order. The order
	// matters for combat run votes and narration.
	Steps map[string][]ActionRecord
	// Votes holds option confirmations in event order, one per player.
	Votes []Vote
	// Resolution is set exactly once per scene visit.
	Resolution *Resolution
	// ContinueAcks holds player ids that acknowledged the resolution.
	ContinueAcks []string
	// TimerEndsAt is the armed deadline for a timed scene, first-wins.
	TimerEndsAt *time.Time
	SceneTags   map[string]bool
	// UnlockedOptions holds option ids revealed by outcomes or unlock rules.
	UnlockedOptions map[string]bool
	// DisabledActions holds action ids removed by prior outcomes.
	DisabledActions map[string]bool
	// Evidence maps evidence id to the distinct players whose actions
	// granted it.
	Evidence map[string]map[string]bool
	// Combat tracks incremental encounter progress for combat scenes.
	Combat *CombatProgress
}

// ActionRecord is one player's recorded reaction in a step or round.
type ActionRecord struct {
	StepID   string
	ActionID string
	PlayerID string
}

// Vote is one player's recorded option confirmation.
type Vote struct {
	PlayerID string
	OptionID string
	// Destination is the client-computed route destination at voting
	// time: nil when no route matched, empty string for an ending.
	Destination *string
}

// Resolution is the recorded winning option for a scene.
type Resolution struct {
	OptionID    string
	Mode        event.ResolutionMode
	Destination *string
}

// CombatProgress is the incremental encounter state for a combat scene.
type CombatProgress struct {
	EnemyHP        int
	RoundsResolved int
	Rounds         []combat.RoundResult
	Outcome        combat.Outcome
}

// New returns the initial state for a story: the start scene, a full party,
// and no accumulated tags.
func New(story *content.Story) State {
	st := State{
		CurrentSceneID: story.StartSceneID,
		SceneSequence:  []string{story.StartSceneID},
		PartyHP:        story.PartyMaxHP,
		PartyMaxHP:     story.PartyMaxHP,
		GlobalTags:     make(map[string]bool),
		Scenes:         make(map[string]*SceneProgress),
	}
	st.enterScene(story, story.StartSceneID)
	return st
}

// Current returns the progress of the current scene.
func (s *State) Current() *SceneProgress {
	return s.Scenes[s.CurrentSceneID]
}

// TakenActionIDs returns the set of action ids recorded for the scene,
// excluding skips.
func (sp *SceneProgress) TakenActionIDs() map[string]bool {
	taken := make(map[string]bool)
	for _, records := range sp.Steps {
		for _, record := range records {
			if record.ActionID != content.SkipActionID {
				taken[record.ActionID] = true
			}
		}
	}
	return taken
}

// StepRecords returns the records for one step id in event order.
func (sp *SceneProgress) StepRecords(stepID string) []ActionRecord {
	return sp.Steps[stepID]
}

// DistinctActors returns the number of distinct players with a record in
// the step.
func (sp *SceneProgress) DistinctActors(stepID string) int {
	players := make(map[string]bool)
	for _, record := range sp.Steps[stepID] {
		players[record.PlayerID] = true
	}
	return len(players)
}

// HasActed reports whether the player already has a record in the step.
func (sp *SceneProgress) HasActed(stepID, playerID string) bool {
	for _, record := range sp.Steps[stepID] {
		if record.PlayerID == playerID {
			return true
		}
	}
	return false
}

// VoteBy returns the player's recorded vote, if any.
func (sp *SceneProgress) VoteBy(playerID string) (Vote, bool) {
	for _, vote := range sp.Votes {
		if vote.PlayerID == playerID {
			return vote, true
		}
	}
	return Vote{}, false
}

// HasContinued reports whether the player already acknowledged continuation.
func (sp *SceneProgress) HasContinued(playerID string) bool {
	for _, id := range sp.ContinueAcks {
		if id == playerID {
			return true
		}
	}
	return false
}

// Rounds returns combat round actions grouped by round in first-seen order.
func (sp *SceneProgress) Rounds() [][]combat.RoundAction {
	rounds := make([][]combat.RoundAction, 0, len(sp.StepOrder))
	for _, stepID := range sp.StepOrder {
		records := sp.Steps[stepID]
		actions := make([]combat.RoundAction, 0, len(records))
		for _, record := range records {
			actions = append(actions, combat.RoundAction{PlayerID: record.PlayerID, ActionID: record.ActionID})
		}
		rounds = append(rounds, actions)
	}
	return rounds
}

// enterScene initializes fresh progress for a scene visit, resetting any
// previous visit so route cycles replay cleanly.
func (s *State) enterScene(story *content.Story, sceneID string) {
	progress := &SceneProgress{
		SceneID:         sceneID,
		Steps:           make(map[string][]ActionRecord),
		SceneTags:       make(map[string]bool),
		UnlockedOptions: make(map[string]bool),
		DisabledActions: make(map[string]bool),
		Evidence:        make(map[string]map[string]bool),
	}
	if scene, ok := story.Scene(sceneID); ok {
		if scene.Mode == content.ModeCombat && scene.Combat != nil {
			progress.Combat = &CombatProgress{
				EnemyHP: scene.Combat.EnemyHP,
				Outcome: combat.OutcomeOngoing,
			}
		}
		if scene.IsEnding {
			s.Ended = true
		}
	}
	s.Scenes[sceneID] = progress
}

// adjustPartyHP applies a delta and clamps to [0, max].
func (s *State) adjustPartyHP(delta int) {
	s.PartyHP += delta
	if s.PartyHP < 0 {
		s.PartyHP = 0
	}
	if s.PartyHP > s.PartyMaxHP {
		s.PartyHP = s.PartyMaxHP
	}
}
