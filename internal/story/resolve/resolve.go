// Package resolve is the decision core of the authoritative writer: it
// validates player intents against the reduced state and derives the system
// events that move a scene through collecting, voting, resolution, and
// advancement.
//
// Decide and FollowUps are pure aside from the injected seed source, so the
// gate can replay them under its room lock and every replica can trust the
// events they produce.
package resolve

import (
	"fmt"
	"time"

	"github.com/laborio/questing-together/internal/platform/errors"
	"github.com/laborio/questing-together/internal/platform/random"
	"github.com/laborio/questing-together/internal/story/combat"
	"github.com/laborio/questing-together/internal/story/command"
	"github.com/laborio/questing-together/internal/story/content"
	"github.com/laborio/questing-together/internal/story/event"
	"github.com/laborio/questing-together/internal/story/state"
	"github.com/laborio/questing-together/internal/story/turns"
)

// Decider validates intents and synthesizes progression events for one story.
type Decider struct {
	Story *content.Story
	// NewSeed supplies entropy for random tie-breaks. The drawn seed is
	// recorded in the resolve payload so the draw stays auditable.
	NewSeed func() int64
}

// NewDecider returns a decider backed by the crypto seed source.
func NewDecider(story *content.Story) *Decider {
	return &Decider{Story: story, NewSeed: func() int64 {
		seed, err := random.NewSeed()
		if err != nil {
			// crypto/rand failing is effectively fatal elsewhere; a clock
			// seed keeps tie-breaks functioning rather than stalling a room.
			return time.Now().UnixNano()
		}
		return seed
	}}
}

func reject(code errors.Code, format string, args ...any) command.Decision {
	return command.Reject(command.Rejection{
		Code:    string(code),
		Message: fmt.Sprintf(format, args...),
	})
}

// Decide validates a single intent against the current state. role is the
// acting player's room role; membership was already checked by the gate.
func (d *Decider) Decide(st *state.State, cmd command.Command, role content.Role, now time.Time) command.Decision {
	cmd = command.Normalize(cmd)
	if !cmd.Type.IsValid() {
		return reject(errors.CodeCommandInvalid, "unknown command type %q", cmd.Type)
	}

	switch cmd.Type {
	case command.TypeReset:
		return command.Accept(d.systemEvent(cmd.RoomID, event.TypeStoryReset, event.ResetPayload{}, cmd.RequestID))
	case command.TypeTakeAction:
		return d.decideTakeAction(st, cmd, role)
	case command.TypeSkipAction:
		return d.decideSkipAction(st, cmd)
	case command.TypeCastVote:
		return d.decideCastVote(st, cmd)
	case command.TypeContinue:
		return d.decideContinue(st, cmd)
	case command.TypeFinishTimer:
		return d.decideFinishTimer(st, cmd, now)
	}
	return reject(errors.CodeCommandInvalid, "unhandled command type %q", cmd.Type)
}

func (d *Decider) decideTakeAction(st *state.State, cmd command.Command, role content.Role) command.Decision {
	var payload command.TakeActionPayload
	if err := command.DecodePayload(cmd, &payload); err != nil {
		return reject(errors.CodeCommandInvalid, "malformed take-action payload: %v", err)
	}
	scene, progress, decision := d.currentScene(st, payload.SceneID)
	if decision != nil {
		return *decision
	}
	if progress.Resolution != nil {
		return reject(errors.CodeAlreadyResolved, "scene %s already resolved", scene.ID)
	}

	if scene.Mode == content.ModeCombat {
		return d.decideCombatAction(st, scene, progress, cmd, payload, role)
	}

	step, ok := turns.ActiveStep(scene, progress, d.Story.ExpectedPlayers)
	if !ok {
		return reject(errors.CodePreconditionNotMet, "scene %s collects no actions", scene.ID)
	}
	if payload.StepID != step.ID {
		return reject(errors.CodePreconditionNotMet, "step %s is not collecting; active step is %s", payload.StepID, step.ID)
	}
	if turns.StepComplete(progress, step.ID, d.Story.ExpectedPlayers) {
		return reject(errors.CodePreconditionNotMet, "step %s already has every player's action", step.ID)
	}
	if progress.HasActed(step.ID, cmd.PlayerID) {
		return command.AcceptNoOp()
	}
	// Resolve the action against the active step, not the whole scene: an
	// id borrowed from another step would count toward this step's quota
	// and leak into the taken-action set that routes branch on.
	action, ok := step.Action(payload.ActionID)
	if !ok {
		return reject(errors.CodeCommandInvalid, "action %s is not declared in step %s of scene %s", payload.ActionID, step.ID, scene.ID)
	}
	if !role.Allows(action.Role) {
		return reject(errors.CodePreconditionNotMet, "action %s requires role %s", action.ID, action.Role)
	}
	if progress.DisabledActions[action.ID] {
		return reject(errors.CodePreconditionNotMet, "action %s was disabled by an earlier outcome", action.ID)
	}

	return command.Accept(d.playerEvent(cmd, event.TypeSceneAction, event.ActionPayload{
		SceneID:  scene.ID,
		StepID:   step.ID,
		ActionID: action.ID,
		PlayerID: cmd.PlayerID,
	}))
}

func (d *Decider) decideCombatAction(st *state.State, scene *content.Scene, progress *state.SceneProgress, cmd command.Command, payload command.TakeActionPayload, role content.Role) command.Decision {
	if progress.Combat == nil {
		return reject(errors.CodeContentIntegrity, "scene %s has no combat state", scene.ID)
	}
	if progress.Combat.Outcome != combat.OutcomeOngoing {
		return reject(errors.CodePreconditionNotMet, "the encounter in %s is over", scene.ID)
	}
	roundID := turns.RoundID(turns.ActiveRound(progress))
	if payload.StepID != roundID {
		return reject(errors.CodePreconditionNotMet, "round %s is not collecting; active round is %s", payload.StepID, roundID)
	}
	if progress.HasActed(roundID, cmd.PlayerID) {
		return command.AcceptNoOp()
	}
	action, ok := d.Story.CombatAction(payload.ActionID)
	if !ok {
		return reject(errors.CodeCommandInvalid, "combat action %s is not in the catalog", payload.ActionID)
	}
	if !role.Allows(action.Role) {
		return reject(errors.CodePreconditionNotMet, "combat action %s requires role %s", action.ID, action.Role)
	}
	if action.Effect.Run && (scene.Combat == nil || !scene.Combat.AllowRun) {
		return reject(errors.CodePreconditionNotMet, "running is not allowed in %s", scene.ID)
	}

	return command.Accept(d.playerEvent(cmd, event.TypeSceneAction, event.ActionPayload{
		SceneID:  scene.ID,
		StepID:   roundID,
		ActionID: action.ID,
		PlayerID: cmd.PlayerID,
	}))
}

func (d *Decider) decideSkipAction(st *state.State, cmd command.Command) command.Decision {
	var payload command.SkipActionPayload
	if err := command.DecodePayload(cmd, &payload); err != nil {
		return reject(errors.CodeCommandInvalid, "malformed skip payload: %v", err)
	}
	scene, progress, decision := d.currentScene(st, payload.SceneID)
	if decision != nil {
		return *decision
	}
	if progress.Resolution != nil {
		return reject(errors.CodeAlreadyResolved, "scene %s already resolved", scene.ID)
	}
	if scene.Mode == content.ModeCombat {
		return reject(errors.CodePreconditionNotMet, "combat rounds cannot be skipped")
	}

	step, ok := turns.ActiveStep(scene, progress, d.Story.ExpectedPlayers)
	if !ok {
		return reject(errors.CodePreconditionNotMet, "scene %s collects no actions", scene.ID)
	}
	if payload.StepID != step.ID {
		return reject(errors.CodePreconditionNotMet, "step %s is not collecting; active step is %s", payload.StepID, step.ID)
	}
	if turns.StepComplete(progress, step.ID, d.Story.ExpectedPlayers) {
		return reject(errors.CodePreconditionNotMet, "step %s already has every player's action", step.ID)
	}
	if progress.HasActed(step.ID, cmd.PlayerID) {
		return command.AcceptNoOp()
	}
	// Someone has to commit to an action before the rest may pass.
	if len(progress.StepRecords(step.ID)) == 0 {
		return reject(errors.CodePreconditionNotMet, "skip requires at least one recorded action in step %s", step.ID)
	}

	return command.Accept(d.playerEvent(cmd, event.TypeSceneAction, event.ActionPayload{
		SceneID:  scene.ID,
		StepID:   step.ID,
		ActionID: content.SkipActionID,
		PlayerID: cmd.PlayerID,
	}))
}

func (d *Decider) decideCastVote(st *state.State, cmd command.Command) command.Decision {
	var payload command.CastVotePayload
	if err := command.DecodePayload(cmd, &payload); err != nil {
		return reject(errors.CodeCommandInvalid, "malformed vote payload: %v", err)
	}
	scene, progress, decision := d.currentScene(st, payload.SceneID)
	if decision != nil {
		return *decision
	}
	if scene.Mode != content.ModeStory {
		return reject(errors.CodePreconditionNotMet, "%s scenes resolve without voting", scene.Mode)
	}
	if progress.Resolution != nil {
		// The decision already fired; a late vote changes nothing.
		return command.AcceptNoOp()
	}
	if !turns.SceneStepsComplete(scene, progress, d.Story.ExpectedPlayers) {
		return reject(errors.CodePreconditionNotMet, "voting opens once every step of %s is complete", scene.ID)
	}
	option, ok := scene.Option(payload.OptionID)
	if !ok {
		return reject(errors.CodeCommandInvalid, "option %s is not declared in scene %s", payload.OptionID, scene.ID)
	}
	if !option.DefaultVisible && !progress.UnlockedOptions[option.ID] {
		return reject(errors.CodePreconditionNotMet, "option %s has not been revealed", option.ID)
	}
	if payload.Destination != nil && *payload.Destination != "" {
		if _, ok := d.Story.Scene(*payload.Destination); !ok {
			return reject(errors.CodeContentIntegrity, "vote destination %s is not a scene", *payload.Destination)
		}
	}
	for _, vote := range progress.Votes {
		if vote.OptionID != option.ID {
			continue
		}
		if !destinationsAgree(vote.Destination, payload.Destination) {
			return reject(errors.CodeContentIntegrity,
				"votes for option %s disagree on destination", option.ID)
		}
	}
	if _, voted := progress.VoteBy(cmd.PlayerID); voted {
		return command.AcceptNoOp()
	}

	return command.Accept(d.playerEvent(cmd, event.TypeOptionConfirm, event.OptionConfirmPayload{
		SceneID:     scene.ID,
		PlayerID:    cmd.PlayerID,
		OptionID:    option.ID,
		Destination: payload.Destination,
	}))
}

func (d *Decider) decideContinue(st *state.State, cmd command.Command) command.Decision {
	var payload command.ContinuePayload
	if err := command.DecodePayload(cmd, &payload); err != nil {
		return reject(errors.CodeCommandInvalid, "malformed continue payload: %v", err)
	}
	scene, progress, decision := d.currentScene(st, payload.SceneID)
	if decision != nil {
		return *decision
	}
	if progress.Resolution == nil {
		return reject(errors.CodePreconditionNotMet, "scene %s has not resolved yet", scene.ID)
	}
	if progress.HasContinued(cmd.PlayerID) {
		return command.AcceptNoOp()
	}

	return command.Accept(d.playerEvent(cmd, event.TypeSceneContinue, event.ContinuePayload{
		SceneID:  scene.ID,
		PlayerID: cmd.PlayerID,
	}))
}

func (d *Decider) decideFinishTimer(st *state.State, cmd command.Command, now time.Time) command.Decision {
	var payload command.FinishTimerPayload
	if err := command.DecodePayload(cmd, &payload); err != nil {
		return reject(errors.CodeCommandInvalid, "malformed finish-timer payload: %v", err)
	}
	scene, progress, decision := d.currentScene(st, payload.SceneID)
	if decision != nil {
		return *decision
	}
	if scene.Mode != content.ModeTimed || scene.Timed == nil {
		return reject(errors.CodePreconditionNotMet, "scene %s is not timed", scene.ID)
	}
	// Double resolution is a hard rejection, not an idempotent no-op.
	if progress.Resolution != nil {
		return reject(errors.CodeAlreadyResolved, "scene %s already resolved", scene.ID)
	}
	if progress.TimerEndsAt == nil {
		return reject(errors.CodePreconditionNotMet, "no timer is armed for scene %s", scene.ID)
	}
	if now.Before(*progress.TimerEndsAt) {
		if !payload.Force {
			return reject(errors.CodePreconditionNotMet, "the timer for %s has not expired", scene.ID)
		}
		if !scene.Timed.AllowEarly {
			return reject(errors.CodePreconditionNotMet, "scene %s does not allow finishing early", scene.ID)
		}
	}

	option, ok := scene.DefaultOption()
	if !ok {
		return reject(errors.CodeContentIntegrity, "scene %s has no default option", scene.ID)
	}
	destination := d.routeDestination(scene, option, st, progress)
	resolvePayload := event.ResolvePayload{
		SceneID:     scene.ID,
		OptionID:    option.ID,
		Mode:        event.ResolutionTimed,
		Destination: destination,
	}
	advancePayload := event.AdvancePayload{
		SceneID:     scene.ID,
		OptionID:    option.ID,
		Mode:        event.ResolutionTimed,
		Destination: destination,
	}
	// Timed scenes have no continuation round: one intent resolves and
	// advances together.
	return command.Accept(
		d.systemEvent(cmd.RoomID, event.TypeSceneResolve, resolvePayload, cmd.RequestID),
		d.systemEvent(cmd.RoomID, event.TypeSceneAdvance, advancePayload, cmd.RequestID),
	)
}

// currentScene resolves the scene an intent targets, rejecting ended stories
// and stale scene ids. The returned decision is non-nil when the intent must
// be declined.
func (d *Decider) currentScene(st *state.State, sceneID string) (*content.Scene, *state.SceneProgress, *command.Decision) {
	if st.Ended {
		decision := reject(errors.CodePreconditionNotMet, "the story has ended")
		return nil, nil, &decision
	}
	if sceneID != st.CurrentSceneID {
		decision := reject(errors.CodeStaleScene, "scene %s is no longer current (current is %s)", sceneID, st.CurrentSceneID)
		return nil, nil, &decision
	}
	scene, ok := d.Story.Scene(sceneID)
	if !ok {
		decision := reject(errors.CodeContentIntegrity, "scene %s is not in the story", sceneID)
		return nil, nil, &decision
	}
	progress := st.Current()
	if progress == nil {
		decision := reject(errors.CodeContentIntegrity, "no progress recorded for scene %s", sceneID)
		return nil, nil, &decision
	}
	return scene, progress, nil
}

func (d *Decider) playerEvent(cmd command.Command, typ event.Type, payload any) event.Event {
	return event.Event{
		RoomID:      cmd.RoomID,
		Type:        typ,
		ActorType:   event.ActorTypePlayer,
		ActorID:     cmd.PlayerID,
		RequestID:   cmd.RequestID,
		PayloadJSON: event.MarshalPayload(payload),
	}
}

func (d *Decider) systemEvent(roomID string, typ event.Type, payload any, requestID string) event.Event {
	return event.Event{
		RoomID:      roomID,
		Type:        typ,
		ActorType:   event.ActorTypeSystem,
		RequestID:   requestID,
		PayloadJSON: event.MarshalPayload(payload),
	}
}

func destinationsAgree(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
