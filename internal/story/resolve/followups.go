package resolve

import (
	"math/rand"
	"sort"
	"time"

	"github.com/laborio/questing-together/internal/story/combat"
	"github.com/laborio/questing-together/internal/story/content"
	"github.com/laborio/questing-together/internal/story/event"
	"github.com/laborio/questing-together/internal/story/routing"
	"github.com/laborio/questing-together/internal/story/state"
	"github.com/laborio/questing-together/internal/story/turns"
)

// FollowUps derives the system events the current state implies: vote
// resolution once every player voted, combat resolution once the encounter
// ended, timer arming once a timed scene finished collecting, and scene
// advancement once every player acknowledged. It returns at most one batch;
// the gate appends it, re-reduces, and asks again until nothing is due.
func (d *Decider) FollowUps(roomID string, st *state.State, now time.Time) []event.Event {
	if st.Ended {
		return nil
	}
	progress := st.Current()
	if progress == nil {
		return nil
	}
	scene, ok := d.Story.Scene(st.CurrentSceneID)
	if !ok {
		return nil
	}

	if progress.Resolution == nil {
		switch scene.Mode {
		case content.ModeCombat:
			return d.combatResolution(roomID, scene, st, progress)
		case content.ModeTimed:
			return d.armTimer(roomID, scene, progress, now)
		default:
			return d.voteResolution(roomID, scene, st, progress)
		}
	}

	// Timed scenes advance in the same intent that resolves them, so a
	// pending resolution here belongs to a story or combat scene waiting
	// on continuation acks.
	if len(progress.ContinueAcks) >= d.Story.ExpectedPlayers {
		return []event.Event{d.systemEvent(roomID, event.TypeSceneAdvance, event.AdvancePayload{
			SceneID:     scene.ID,
			OptionID:    progress.Resolution.OptionID,
			Mode:        progress.Resolution.Mode,
			Destination: progress.Resolution.Destination,
		}, "")}
	}
	return nil
}

// voteResolution fires exactly once, when the distinct vote count reaches
// the expected player count. Ties are broken uniformly at random among the
// tied options with a recorded seed.
func (d *Decider) voteResolution(roomID string, scene *content.Scene, st *state.State, progress *state.SceneProgress) []event.Event {
	if len(progress.Votes) < d.Story.ExpectedPlayers {
		return nil
	}

	counts := make(map[string]int)
	for _, vote := range progress.Votes {
		counts[vote.OptionID]++
	}
	max := 0
	for _, count := range counts {
		if count > max {
			max = count
		}
	}
	var tied []string
	for optionID, count := range counts {
		if count == max {
			tied = append(tied, optionID)
		}
	}
	sort.Strings(tied)

	winner := tied[0]
	mode := event.ResolutionMajority
	var seed int64
	if len(tied) > 1 {
		mode = event.ResolutionRandom
		seed = d.NewSeed()
		rng := rand.New(rand.NewSource(seed))
		winner = tied[rng.Intn(len(tied))]
	}

	// The destination comes from the votes themselves; the decider already
	// rejected votes for the same option with disagreeing destinations.
	var destination *string
	for _, vote := range progress.Votes {
		if vote.OptionID == winner {
			destination = vote.Destination
			break
		}
	}

	return []event.Event{d.systemEvent(roomID, event.TypeSceneResolve, event.ResolvePayload{
		SceneID:     scene.ID,
		OptionID:    winner,
		Mode:        mode,
		Destination: destination,
		Seed:        seed,
	}, "")}
}

// combatResolution maps the encounter outcome onto the scene's fixed option
// ids: victory, defeat, and escape resolve options A, B, and C.
func (d *Decider) combatResolution(roomID string, scene *content.Scene, st *state.State, progress *state.SceneProgress) []event.Event {
	if progress.Combat == nil || progress.Combat.Outcome == combat.OutcomeOngoing {
		return nil
	}

	var optionID string
	switch progress.Combat.Outcome {
	case combat.OutcomeVictory:
		optionID = content.OptionVictory
	case combat.OutcomeDefeat:
		optionID = content.OptionDefeat
	case combat.OutcomeEscape:
		optionID = content.OptionEscape
	default:
		return nil
	}

	var destination *string
	if option, ok := scene.Option(optionID); ok {
		destination = d.routeDestination(scene, option, st, progress)
	}
	return []event.Event{d.systemEvent(roomID, event.TypeSceneResolve, event.ResolvePayload{
		SceneID:       scene.ID,
		OptionID:      optionID,
		Mode:          event.ResolutionCombat,
		Destination:   destination,
		CombatOutcome: string(progress.Combat.Outcome),
	}, "")}
}

// armTimer starts the deadline for a timed scene once its steps are done.
// Expiry itself arrives as a finish-timer intent, from a player or the
// sweep, so firing stays subject to the exactly-once gate.
func (d *Decider) armTimer(roomID string, scene *content.Scene, progress *state.SceneProgress, now time.Time) []event.Event {
	if scene.Timed == nil || progress.TimerEndsAt != nil {
		return nil
	}
	if !turns.SceneStepsComplete(scene, progress, d.Story.ExpectedPlayers) {
		return nil
	}
	endsAt := now.Add(time.Duration(scene.Timed.DurationSeconds) * time.Second)
	return []event.Event{d.systemEvent(roomID, event.TypeTimerStarted, event.TimerStartedPayload{
		SceneID:      scene.ID,
		Kind:         string(scene.Timed.Kind),
		EndsAtMillis: endsAt.UnixMilli(),
	}, "")}
}

// routeDestination evaluates the option's routes against the accumulated
// tag state. nil means no route matched; an empty string means an ending.
func (d *Decider) routeDestination(scene *content.Scene, option *content.SceneOption, st *state.State, progress *state.SceneProgress) *string {
	result := routing.ResolveNextScene(option, st.GlobalTags, progress.SceneTags, progress.TakenActionIDs())
	if !result.Matched {
		return nil
	}
	if result.Ending {
		empty := ""
		return &empty
	}
	return &result.SceneID
}
