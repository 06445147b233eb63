// Package turns derives step progress and player affordances from reduced
// scene state: which step or round collects actions next, whether it is
// complete, and which actions the local player may still take.
package turns

import (
	"strconv"

	"github.com/laborio/questing-together/internal/story/combat"
	"github.com/laborio/questing-together/internal/story/content"
	"github.com/laborio/questing-together/internal/story/state"
)

// Availability is one action the local player may take right now.
type Availability struct {
	ActionID string
	Role     content.Role
	Text     string
	// Skip marks the no-op affordance, offered once another player has
	// gone first in the step.
	Skip bool
}

// StepComplete reports whether every expected player has a recorded action
// in the step. Distinct actors, not record count: the reducer already drops
// duplicates, but the rule is stated over players either way.
func StepComplete(progress *state.SceneProgress, stepID string, expectedPlayers int) bool {
	return progress.DistinctActors(stepID) >= expectedPlayers
}

// ActiveStep returns the step currently collecting actions: the first step
// with fewer distinct actors than expected players. Once every step is
// complete the last step stays active for display. ok is false for scenes
// without steps.
func ActiveStep(scene *content.Scene, progress *state.SceneProgress, expectedPlayers int) (*content.SceneStep, bool) {
	if len(scene.Steps) == 0 {
		return nil, false
	}
	for i := range scene.Steps {
		if !StepComplete(progress, scene.Steps[i].ID, expectedPlayers) {
			return &scene.Steps[i], true
		}
	}
	return &scene.Steps[len(scene.Steps)-1], true
}

// SceneStepsComplete reports whether every declared step of the scene has
// collected all expected actions. A scene without steps is trivially
// complete; its decision opens immediately.
func SceneStepsComplete(scene *content.Scene, progress *state.SceneProgress, expectedPlayers int) bool {
	for i := range scene.Steps {
		if !StepComplete(progress, scene.Steps[i].ID, expectedPlayers) {
			return false
		}
	}
	return true
}

// ActiveRound returns the 1-based combat round currently collecting actions,
// or the last resolved round once the encounter ended.
func ActiveRound(progress *state.SceneProgress) int {
	cp := progress.Combat
	if cp == nil {
		return 1
	}
	if cp.Outcome != combat.OutcomeOngoing && cp.RoundsResolved > 0 {
		return cp.RoundsResolved
	}
	return cp.RoundsResolved + 1
}

// RoundID is the step id under which a combat round's actions are recorded.
func RoundID(round int) string {
	return strconv.Itoa(round)
}

// AvailableActions returns the actions the player with the given role may
// take in the current scene. Empty once the story ended, the scene resolved,
// the active step completed, or the player already acted in it.
func AvailableActions(story *content.Story, st *state.State, playerID string, role content.Role) []Availability {
	if st.Ended {
		return nil
	}
	progress := st.Current()
	if progress == nil || progress.Resolution != nil {
		return nil
	}
	scene, ok := story.Scene(st.CurrentSceneID)
	if !ok {
		return nil
	}
	if scene.Mode == content.ModeCombat {
		return combatActions(story, scene, progress, playerID, role)
	}
	return stepActions(story, scene, progress, playerID, role)
}

func stepActions(story *content.Story, scene *content.Scene, progress *state.SceneProgress, playerID string, role content.Role) []Availability {
	step, ok := ActiveStep(scene, progress, story.ExpectedPlayers)
	if !ok {
		return nil
	}
	if StepComplete(progress, step.ID, story.ExpectedPlayers) {
		return nil
	}
	if progress.HasActed(step.ID, playerID) {
		return nil
	}

	var available []Availability
	for _, action := range step.Actions {
		if !role.Allows(action.Role) {
			continue
		}
		if progress.DisabledActions[action.ID] {
			continue
		}
		available = append(available, Availability{
			ActionID: action.ID,
			Role:     action.Role,
			Text:     action.Text,
		})
	}
	// One player must go first; only then may the rest sit a step out.
	if len(progress.StepRecords(step.ID)) > 0 {
		available = append(available, Availability{
			ActionID: content.SkipActionID,
			Role:     content.RoleAny,
			Skip:     true,
		})
	}
	return available
}

func combatActions(story *content.Story, scene *content.Scene, progress *state.SceneProgress, playerID string, role content.Role) []Availability {
	if progress.Combat == nil || progress.Combat.Outcome != combat.OutcomeOngoing {
		return nil
	}
	roundID := RoundID(ActiveRound(progress))
	if progress.HasActed(roundID, playerID) {
		return nil
	}

	var available []Availability
	for _, action := range story.CombatActions {
		if !role.Allows(action.Role) {
			continue
		}
		if action.Effect.Run && (scene.Combat == nil || !scene.Combat.AllowRun) {
			continue
		}
		available = append(available, Availability{
			ActionID: action.ID,
			Role:     action.Role,
			Text:     action.Text,
		})
	}
	return available
}
