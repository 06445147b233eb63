package combat

import (
	"testing"

	"github.com/laborio/questing-together/internal/story/content"
)

func testStory() *content.Story {
	return &content.Story{
		ExpectedPlayers: 3,
		PartyMaxHP:      20,
		CombatActions: []content.CombatAction{
			{ID: "strike", Role: content.RoleWarrior, Effect: content.CombatEffect{Damage: 4}},
			{ID: "volley", Role: content.RoleRanger, Effect: content.CombatEffect{Damage: 3}},
			{ID: "ward", Role: content.RoleSage, Effect: content.CombatEffect{Block: 3}},
			{ID: "hex", Role: content.RoleSage, Effect: content.CombatEffect{EnemyAttackDelta: -2}},
			{ID: "flee", Role: content.RoleAny, Effect: content.CombatEffect{Run: true}},
		},
	}
}

func testConfig() *content.CombatConfig {
	return &content.CombatConfig{EnemyName: "Warden", EnemyHP: 10, EnemyAttack: 5, AllowRun: true}
}

func round(ids ...string) []RoundAction {
	players := []string{"p1", "p2", "p3"}
	actions := make([]RoundAction, len(ids))
	for i, id := range ids {
		actions[i] = RoundAction{PlayerID: players[i], ActionID: id}
	}
	return actions
}

func TestRunThreshold(t *testing.T) {
	tests := []struct {
		players int
		want    int
	}{
		{3, 2},
		{2, 2},
		{4, 3},
		{6, 4},
	}
	for _, tc := range tests {
		if got := RunThreshold(tc.players); got != tc.want {
			t.Fatalf("threshold for %d players: expected %d, got %d", tc.players, tc.want, got)
		}
	}
}

func TestSimulateVictory(t *testing.T) {
	story := testStory()
	rounds := [][]RoundAction{
		round("strike", "volley", "ward"), // 7 damage, 3 block
		round("strike", "volley", "hex"),  // 7 damage finishes 3 hp
	}

	result := Simulate(testConfig(), story, rounds, 20)
	if result.Outcome != OutcomeVictory {
		t.Fatalf("expected victory, got %s", result.Outcome)
	}
	if result.EnemyHP != 0 {
		t.Fatalf("expected enemy hp 0, got %d", result.EnemyHP)
	}
	// Round 1: attack 5 - block 3 = 2. Round 2: attack 5-2 (hex) - 0 block = 3.
	if result.PartyHP != 15 {
		t.Fatalf("expected party hp 15, got %d", result.PartyHP)
	}
	if result.CurrentRound != 2 {
		t.Fatalf("expected current round to stay at the final round, got %d", result.CurrentRound)
	}
	if len(result.Rounds) != 2 {
		t.Fatalf("expected 2 resolved rounds, got %d", len(result.Rounds))
	}
}

func TestSimulateDefeatClampsAtZero(t *testing.T) {
	story := testStory()
	rounds := [][]RoundAction{
		round("ward", "ward", "ward"), // no damage dealt, 9 block vs 5 attack
		round("hex", "hex", "hex"),    // attack floor at 0
	}

	result := Simulate(testConfig(), story, rounds, 3)
	if result.Outcome != OutcomeOngoing {
		t.Fatalf("expected ongoing, got %s", result.Outcome)
	}
	if result.PartyHP != 3 {
		t.Fatalf("expected untouched party hp, got %d", result.PartyHP)
	}

	brutal := &content.CombatConfig{EnemyName: "Ogre", EnemyHP: 50, EnemyAttack: 9}
	result = Simulate(brutal, story, [][]RoundAction{round("strike", "volley", "volley")}, 3)
	if result.Outcome != OutcomeDefeat {
		t.Fatalf("expected defeat, got %s", result.Outcome)
	}
	if result.PartyHP != 0 {
		t.Fatalf("expected party hp clamped at 0, got %d", result.PartyHP)
	}
}

func TestEscapeThreshold(t *testing.T) {
	story := testStory()

	// Exactly two of three run votes escapes, and no damage applies.
	result := Simulate(testConfig(), story, [][]RoundAction{round("flee", "flee", "ward")}, 10)
	if result.Outcome != OutcomeEscape {
		t.Fatalf("expected escape, got %s", result.Outcome)
	}
	if result.PartyHP != 10 || result.EnemyHP != 10 {
		t.Fatalf("expected escape round to apply no damage, got party=%d enemy=%d", result.PartyHP, result.EnemyHP)
	}

	// One run vote is below the threshold; the round resolves normally.
	result = Simulate(testConfig(), story, [][]RoundAction{round("flee", "ward", "ward")}, 10)
	if result.Outcome != OutcomeOngoing {
		t.Fatalf("expected ongoing with one run vote, got %s", result.Outcome)
	}

	// Running disallowed: the votes count for nothing.
	noRun := &content.CombatConfig{EnemyName: "Warden", EnemyHP: 10, EnemyAttack: 5}
	result = Simulate(noRun, story, [][]RoundAction{round("flee", "flee", "flee")}, 10)
	if result.Outcome != OutcomeOngoing {
		t.Fatalf("expected ongoing when running disallowed, got %s", result.Outcome)
	}
	if result.PartyHP != 5 {
		t.Fatalf("expected full enemy attack without block, got party hp %d", result.PartyHP)
	}
}

func TestIncompleteRoundNotResolved(t *testing.T) {
	story := testStory()
	rounds := [][]RoundAction{
		{{PlayerID: "p1", ActionID: "strike"}, {PlayerID: "p2", ActionID: "volley"}},
	}

	result := Simulate(testConfig(), story, rounds, 20)
	if len(result.Rounds) != 0 {
		t.Fatalf("expected no resolved rounds, got %d", len(result.Rounds))
	}
	if result.CurrentRound != 1 {
		t.Fatalf("expected current round 1, got %d", result.CurrentRound)
	}
	if result.Outcome != OutcomeOngoing {
		t.Fatalf("expected ongoing, got %s", result.Outcome)
	}
}

func TestSimulationStopsAfterOutcome(t *testing.T) {
	story := testStory()
	rounds := [][]RoundAction{
		round("flee", "flee", "flee"),
		round("strike", "strike", "strike"),
	}

	result := Simulate(testConfig(), story, rounds, 20)
	if result.Outcome != OutcomeEscape {
		t.Fatalf("expected escape, got %s", result.Outcome)
	}
	if len(result.Rounds) != 1 {
		t.Fatalf("expected simulation to stop at the escape round, got %d rounds", len(result.Rounds))
	}
}
