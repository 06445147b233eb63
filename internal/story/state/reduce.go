package state

import (
	"encoding/json"

	"github.com/laborio/questing-together/internal/story/combat"
	"github.com/laborio/questing-together/internal/story/content"
	"github.com/laborio/questing-together/internal/story/event"
)

// Reduce replays an ordered event log into the current story state.
//
// The reducer never raises: malformed or out-of-order events are dropped,
// because every event in the log already passed the authoritative gate at
// write time. A non-authoritative replica must never crash or diverge on a
// log it didn't originate.
func Reduce(story *content.Story, events []event.Event) State {
	st := New(story)
	for _, evt := range events {
		apply(story, &st, evt)
	}
	return st
}

func apply(story *content.Story, st *State, evt event.Event) {
	switch evt.Type {
	case event.TypeStoryReset:
		*st = New(story)
	case event.TypeSceneAction:
		applyAction(story, st, evt)
	case event.TypeTimerStarted:
		applyTimerStarted(story, st, evt)
	case event.TypeOptionConfirm:
		applyOptionConfirm(st, evt)
	case event.TypeSceneResolve:
		applyResolve(story, st, evt)
	case event.TypeSceneContinue:
		applyContinue(st, evt)
	case event.TypeSceneAdvance:
		applyAdvance(story, st, evt)
	}
}

func applyAction(story *content.Story, st *State, evt event.Event) {
	var payload event.ActionPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return
	}
	if payload.SceneID != st.CurrentSceneID || payload.StepID == "" || payload.PlayerID == "" {
		return
	}
	progress := st.Current()
	if progress == nil || progress.Resolution != nil {
		return
	}
	if progress.HasActed(payload.StepID, payload.PlayerID) {
		return
	}
	scene, ok := story.Scene(payload.SceneID)
	if !ok {
		return
	}
	if progress.Combat != nil && progress.Combat.Outcome != combat.OutcomeOngoing {
		return
	}

	if _, seen := progress.Steps[payload.StepID]; !seen {
		progress.StepOrder = append(progress.StepOrder, payload.StepID)
	}
	progress.Steps[payload.StepID] = append(progress.Steps[payload.StepID], ActionRecord{
		StepID:   payload.StepID,
		ActionID: payload.ActionID,
		PlayerID: payload.PlayerID,
	})

	switch scene.Mode {
	case content.ModeCombat:
		foldCombatRound(story, st, scene, progress, payload.StepID)
	default:
		foldOutcome(story, st, scene, progress, payload)
	}
}

// foldOutcome applies the effect of a recorded non-combat action: evidence
// grants, option unlocks, action disables, tags, and HP delta.
func foldOutcome(story *content.Story, st *State, scene *content.Scene, progress *SceneProgress, payload event.ActionPayload) {
	if payload.ActionID == content.SkipActionID {
		return
	}
	step, ok := scene.Step(payload.StepID)
	if !ok {
		return
	}
	outcome, ok := step.Outcomes[payload.ActionID]
	if !ok {
		return
	}

	for _, evidence := range outcome.Evidence {
		if progress.Evidence[evidence] == nil {
			progress.Evidence[evidence] = make(map[string]bool)
		}
		progress.Evidence[evidence][payload.PlayerID] = true
	}
	for _, optionID := range outcome.UnlockOptions {
		progress.UnlockedOptions[optionID] = true
	}
	for _, actionID := range outcome.DisableActions {
		progress.DisabledActions[actionID] = true
	}
	for _, tag := range outcome.GlobalTags {
		st.GlobalTags[tag] = true
	}
	for _, tag := range outcome.SceneTags {
		progress.SceneTags[tag] = true
	}
	if outcome.HPDelta != 0 {
		st.adjustPartyHP(outcome.HPDelta)
	}

	applyUnlockRules(scene, progress)
}

// applyUnlockRules reveals options whose evidence requirements are met:
// every listed evidence id confirmed by the required number of distinct
// players.
func applyUnlockRules(scene *content.Scene, progress *SceneProgress) {
	for _, rule := range scene.Unlocks {
		if progress.UnlockedOptions[rule.OptionID] {
			continue
		}
		met := true
		for _, evidence := range rule.Evidence {
			if len(progress.Evidence[evidence]) < rule.Confirmations {
				met = false
				break
			}
		}
		if met {
			progress.UnlockedOptions[rule.OptionID] = true
		}
	}
}

// foldCombatRound resolves the round incrementally once every expected
// player has a recorded action in it.
func foldCombatRound(story *content.Story, st *State, scene *content.Scene, progress *SceneProgress, stepID string) {
	if progress.Combat == nil || scene.Combat == nil {
		return
	}
	if progress.DistinctActors(stepID) < story.ExpectedPlayers {
		return
	}

	records := progress.Steps[stepID]
	actions := make([]combat.RoundAction, 0, len(records))
	for _, record := range records {
		actions = append(actions, combat.RoundAction{PlayerID: record.PlayerID, ActionID: record.ActionID})
	}

	progress.Combat.RoundsResolved++
	round := combat.ResolveRound(scene.Combat, story, progress.Combat.RoundsResolved, actions, progress.Combat.EnemyHP, st.PartyHP)
	progress.Combat.Rounds = append(progress.Combat.Rounds, round)
	progress.Combat.EnemyHP = round.EnemyHPAfter
	progress.Combat.Outcome = round.Outcome
	st.PartyHP = round.PartyHPAfter
}

func applyTimerStarted(story *content.Story, st *State, evt event.Event) {
	var payload event.TimerStartedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return
	}
	progress, ok := st.Scenes[payload.SceneID]
	if !ok {
		return
	}
	// First-wins: a timer firing twice stays harmless.
	if progress.TimerEndsAt != nil {
		return
	}
	endsAt := payload.EndsAt()
	progress.TimerEndsAt = &endsAt
}

func applyOptionConfirm(st *State, evt event.Event) {
	var payload event.OptionConfirmPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return
	}
	if payload.SceneID != st.CurrentSceneID || payload.PlayerID == "" {
		return
	}
	progress := st.Current()
	if progress == nil || progress.Resolution != nil {
		return
	}
	if _, voted := progress.VoteBy(payload.PlayerID); voted {
		return
	}
	progress.Votes = append(progress.Votes, Vote{
		PlayerID:    payload.PlayerID,
		OptionID:    payload.OptionID,
		Destination: payload.Destination,
	})
}

func applyResolve(story *content.Story, st *State, evt event.Event) {
	var payload event.ResolvePayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return
	}
	if payload.SceneID != st.CurrentSceneID {
		return
	}
	progress := st.Current()
	if progress == nil || progress.Resolution != nil {
		return
	}
	recordResolution(story, st, progress, payload.OptionID, payload.Mode, payload.Destination)
}

// recordResolution stores the winning option and folds its tag additions
// into the running tag sets.
func recordResolution(story *content.Story, st *State, progress *SceneProgress, optionID string, mode event.ResolutionMode, destination *string) {
	progress.Resolution = &Resolution{
		OptionID:    optionID,
		Mode:        mode,
		Destination: destination,
	}
	scene, ok := story.Scene(progress.SceneID)
	if !ok {
		return
	}
	option, ok := scene.Option(optionID)
	if !ok {
		return
	}
	for _, tag := range option.GlobalTags {
		st.GlobalTags[tag] = true
	}
	for _, tag := range option.SceneTags {
		progress.SceneTags[tag] = true
	}
}

func applyContinue(st *State, evt event.Event) {
	var payload event.ContinuePayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return
	}
	if payload.SceneID != st.CurrentSceneID || payload.PlayerID == "" {
		return
	}
	progress := st.Current()
	if progress == nil || progress.Resolution == nil {
		return
	}
	if progress.HasContinued(payload.PlayerID) {
		return
	}
	progress.ContinueAcks = append(progress.ContinueAcks, payload.PlayerID)
}

func applyAdvance(story *content.Story, st *State, evt event.Event) {
	var payload event.AdvancePayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return
	}
	if payload.SceneID != st.CurrentSceneID {
		return
	}
	progress := st.Current()
	if progress == nil {
		return
	}
	if progress.Resolution == nil {
		if payload.OptionID == "" {
			return
		}
		recordResolution(story, st, progress, payload.OptionID, payload.Mode, payload.Destination)
	}

	destination := payload.Destination
	if destination == nil {
		destination = progress.Resolution.Destination
	}
	if destination == nil {
		// Default to the next scene in definition order.
		next, ok := story.NextScene(st.CurrentSceneID)
		if !ok {
			st.Ended = true
			return
		}
		id := next.ID
		destination = &id
	}
	if *destination == "" {
		st.Ended = true
		return
	}
	if _, ok := story.Scene(*destination); !ok {
		return
	}

	st.CurrentSceneID = *destination
	if st.SceneSequence[len(st.SceneSequence)-1] != *destination {
		st.SceneSequence = append(st.SceneSequence, *destination)
	}
	st.enterScene(story, *destination)
}
