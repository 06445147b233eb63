// Package combat simulates turn-based encounters from collected round actions.
//
// The simulation is a pure function of the scene's combat config, the global
// action catalog, and the ordered per-round action records, so the gate and
// every replica derive the same round log and outcome.
package combat

import "github.com/laborio/questing-together/internal/story/content"

// Outcome is the encounter result after a sequence of resolved rounds.
type Outcome string

const (
	// OutcomeOngoing means neither side has won and no escape happened.
	OutcomeOngoing Outcome = "ongoing"
	// OutcomeVictory means the enemy's HP reached zero.
	OutcomeVictory Outcome = "victory"
	// OutcomeDefeat means the party's HP reached zero.
	OutcomeDefeat Outcome = "defeat"
	// OutcomeEscape means enough players voted to run.
	OutcomeEscape Outcome = "escape"
)

// RoundAction is one player's recorded move in a round.
type RoundAction struct {
	PlayerID string
	ActionID string
}

// RoundResult is the resolved effect of one complete round.
type RoundResult struct {
	Round            int
	Damage           int
	Block            int
	EnemyAttackDelta int
	RunVotes         int
	// PartyDamage is the damage the party took this round after block.
	PartyDamage int
	EnemyHPAfter int
	PartyHPAfter int
	Outcome      Outcome
}

// Result is the full simulation output for an encounter.
type Result struct {
	Rounds  []RoundResult
	EnemyHP int
	PartyHP int
	Outcome Outcome
	// CurrentRound is the 1-based round the UI should collect next, or the
	// last resolved round once the encounter ended.
	CurrentRound int
}

// RunThreshold returns the number of run votes needed for the party to
// escape: at least two thirds of the expected players, rounded up.
func RunThreshold(expectedPlayers int) int {
	return (2*expectedPlayers + 2) / 3
}

// ResolveRound resolves a single complete round against the running enemy
// and party HP. It does not check round completeness; callers only pass
// rounds where every expected player has exactly one recorded action.
func ResolveRound(cfg *content.CombatConfig, story *content.Story, round int, actions []RoundAction, enemyHP, partyHP int) RoundResult {
	result := RoundResult{Round: round, Outcome: OutcomeOngoing}

	for _, recorded := range actions {
		action, ok := story.CombatAction(recorded.ActionID)
		if !ok {
			// Unknown ids were already rejected by the gate; a replayed
			// log from a newer catalog just contributes nothing.
			continue
		}
		result.Damage += action.Effect.Damage
		result.Block += action.Effect.Block
		result.EnemyAttackDelta += action.Effect.EnemyAttackDelta
		if action.Effect.Run {
			result.RunVotes++
		}
	}

	if cfg.AllowRun && result.RunVotes >= RunThreshold(story.ExpectedPlayers) {
		result.Outcome = OutcomeEscape
		result.EnemyHPAfter = enemyHP
		result.PartyHPAfter = partyHP
		return result
	}

	effectiveAttack := cfg.EnemyAttack + result.EnemyAttackDelta
	if effectiveAttack < 0 {
		effectiveAttack = 0
	}
	result.PartyDamage = effectiveAttack - result.Block
	if result.PartyDamage < 0 {
		result.PartyDamage = 0
	}

	enemyHP -= result.Damage
	if enemyHP < 0 {
		enemyHP = 0
	}
	partyHP -= result.PartyDamage
	if partyHP < 0 {
		partyHP = 0
	}
	result.EnemyHPAfter = enemyHP
	result.PartyHPAfter = partyHP

	switch {
	case enemyHP == 0:
		result.Outcome = OutcomeVictory
	case partyHP == 0:
		result.Outcome = OutcomeDefeat
	}
	return result
}

// Simulate resolves every complete round in order and reports the encounter
// state. rounds holds the recorded actions per round in collection order;
// only rounds where every expected player acted are resolved.
func Simulate(cfg *content.CombatConfig, story *content.Story, rounds [][]RoundAction, partyHP int) Result {
	result := Result{
		EnemyHP:      cfg.EnemyHP,
		PartyHP:      partyHP,
		Outcome:      OutcomeOngoing,
		CurrentRound: 1,
	}

	for i, actions := range rounds {
		if len(distinctPlayers(actions)) < story.ExpectedPlayers {
			break
		}
		round := ResolveRound(cfg, story, i+1, actions, result.EnemyHP, result.PartyHP)
		result.Rounds = append(result.Rounds, round)
		result.EnemyHP = round.EnemyHPAfter
		result.PartyHP = round.PartyHPAfter
		result.Outcome = round.Outcome
		if round.Outcome != OutcomeOngoing {
			result.CurrentRound = round.Round
			return result
		}
	}

	result.CurrentRound = len(result.Rounds) + 1
	return result
}

func distinctPlayers(actions []RoundAction) map[string]bool {
	players := make(map[string]bool, len(actions))
	for _, action := range actions {
		players[action.PlayerID] = true
	}
	return players
}
