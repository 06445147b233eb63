// Package content loads and validates the static story definition.
//
// A Story is loaded once at startup and never mutated afterwards. Every
// scene, step, action, option, and route referenced by the reducer and the
// gate is resolved against this document, so structural validation happens
// here, before any event is processed.
package content

// SceneMode identifies how a scene collects and resolves player input.
type SceneMode string

const (
	// ModeStory collects simultaneous step actions, then a vote.
	ModeStory SceneMode = "story"
	// ModeCombat collects round actions and resolves by simulation.
	ModeCombat SceneMode = "combat"
	// ModeTimed resolves when a content-configured timer expires.
	ModeTimed SceneMode = "timed"
)

// Role identifies which party member may take an action.
type Role string

const (
	RoleWarrior Role = "warrior"
	RoleSage    Role = "sage"
	RoleRanger  Role = "ranger"
	// RoleAny marks an action any party member may take.
	RoleAny Role = "any"
)

// SkipActionID is the reserved id recorded when a player passes their turn.
const SkipActionID = "skip"

// Combat resolution options use fixed ids so routes can branch on outcome.
const (
	OptionVictory = "A"
	OptionDefeat  = "B"
	OptionEscape  = "C"
)

// Story is the root static content document.
type Story struct {
	Title           string         `json:"title"`
	StartSceneID    string         `json:"start_scene_id"`
	ExpectedPlayers int            `json:"expected_players"`
	PartyMaxHP      int            `json:"party_max_hp"`
	Scenes          []Scene        `json:"scenes"`
	CombatActions   []CombatAction `json:"combat_actions"`

	sceneIndex map[string]int
}

// Scene is one beat of the story.
type Scene struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Mode     SceneMode     `json:"mode"`
	IsEnding bool          `json:"is_ending,omitempty"`
	Steps    []SceneStep   `json:"steps,omitempty"`
	Options  []SceneOption `json:"options,omitempty"`
	Unlocks  []UnlockRule  `json:"unlocks,omitempty"`
	Combat   *CombatConfig `json:"combat,omitempty"`
	Timed    *TimedConfig  `json:"timed,omitempty"`
}

// SceneStep is one round of simultaneous player reactions within a
// non-combat scene.
type SceneStep struct {
	ID       string                   `json:"id"`
	Actions  []SceneAction            `json:"actions"`
	Outcomes map[string]ActionOutcome `json:"outcomes"`
}

// SceneAction is an action a role may take in a step.
type SceneAction struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// ActionOutcome is the effect of taking an action.
type ActionOutcome struct {
	Narration      string   `json:"narration,omitempty"`
	Dialogue       string   `json:"dialogue,omitempty"`
	Evidence       []string `json:"evidence,omitempty"`
	UnlockOptions  []string `json:"unlock_options,omitempty"`
	DisableActions []string `json:"disable_actions,omitempty"`
	GlobalTags     []string `json:"global_tags,omitempty"`
	SceneTags      []string `json:"scene_tags,omitempty"`
	HPDelta        int      `json:"hp_delta,omitempty"`
}

// SceneOption is a decision branch players vote on.
type SceneOption struct {
	ID             string     `json:"id"`
	Text           string     `json:"text"`
	DefaultVisible bool       `json:"default_visible,omitempty"`
	IsRisky        bool       `json:"is_risky,omitempty"`
	GlobalTags     []string   `json:"global_tags,omitempty"`
	SceneTags      []string   `json:"scene_tags,omitempty"`
	Routes         []TagRoute `json:"routes"`
}

// TagCondition constrains a route on one tag scope. All listed tags must be
// present, at least one Any tag must be present when Any is non-empty, and
// no None tag may be present.
type TagCondition struct {
	All  []string `json:"all,omitempty"`
	Any  []string `json:"any,omitempty"`
	None []string `json:"none,omitempty"`
}

// TagRoute is a conditional edge to a destination scene. An empty To with
// Ending set means the story ends on this route.
type TagRoute struct {
	To      string        `json:"to,omitempty"`
	Ending  bool          `json:"ending,omitempty"`
	Global  *TagCondition `json:"if_global,omitempty"`
	Scene   *TagCondition `json:"if_scene,omitempty"`
	Actions *TagCondition `json:"if_actions,omitempty"`
}

// UnlockRule reveals a hidden option once every listed evidence id has been
// confirmed by at least Confirmations distinct players.
type UnlockRule struct {
	OptionID      string   `json:"option_id"`
	Evidence      []string `json:"evidence"`
	Confirmations int      `json:"confirmations,omitempty"`
}

// CombatConfig carries enemy stats for a combat scene.
type CombatConfig struct {
	EnemyName   string `json:"enemy_name"`
	EnemyHP     int    `json:"enemy_hp"`
	EnemyAttack int    `json:"enemy_attack"`
	AllowRun    bool   `json:"allow_run,omitempty"`
}

// CombatAction is a combat move available by role, from the global catalog.
type CombatAction struct {
	ID     string       `json:"id"`
	Role   Role         `json:"role"`
	Text   string       `json:"text"`
	Effect CombatEffect `json:"effect"`
}

// CombatEffect describes what a combat action contributes to a round.
type CombatEffect struct {
	Damage           int  `json:"damage,omitempty"`
	Block            int  `json:"block,omitempty"`
	EnemyAttackDelta int  `json:"enemy_attack_delta,omitempty"`
	Run              bool `json:"run,omitempty"`
}

// TimedKind identifies what a timed scene represents.
type TimedKind string

const (
	TimedWait   TimedKind = "wait"
	TimedRest   TimedKind = "rest"
	TimedTravel TimedKind = "travel"
)

// TimedConfig carries wait/rest/travel scene parameters.
type TimedConfig struct {
	Kind            TimedKind `json:"kind"`
	DurationSeconds int       `json:"duration_seconds"`
	AllowEarly      bool      `json:"allow_early,omitempty"`
	StatusText      string    `json:"status_text,omitempty"`
}

// Scene returns the scene with the given id.
func (s *Story) Scene(id string) (*Scene, bool) {
	idx, ok := s.sceneIndex[id]
	if !ok {
		return nil, false
	}
	return &s.Scenes[idx], true
}

// NextScene returns the scene following id in definition order, used as the
// default destination when a resolution carries none.
func (s *Story) NextScene(id string) (*Scene, bool) {
	idx, ok := s.sceneIndex[id]
	if !ok || idx+1 >= len(s.Scenes) {
		return nil, false
	}
	return &s.Scenes[idx+1], true
}

// CombatAction returns the catalog entry with the given id.
func (s *Story) CombatAction(id string) (CombatAction, bool) {
	for _, action := range s.CombatActions {
		if action.ID == id {
			return action, true
		}
	}
	return CombatAction{}, false
}

// Step returns the step with the given id within the scene.
func (sc *Scene) Step(id string) (*SceneStep, bool) {
	for i := range sc.Steps {
		if sc.Steps[i].ID == id {
			return &sc.Steps[i], true
		}
	}
	return nil, false
}

// Option returns the option with the given id within the scene.
func (sc *Scene) Option(id string) (*SceneOption, bool) {
	for i := range sc.Options {
		if sc.Options[i].ID == id {
			return &sc.Options[i], true
		}
	}
	return nil, false
}

// DefaultOption returns the scene's default-visible option.
func (sc *Scene) DefaultOption() (*SceneOption, bool) {
	for i := range sc.Options {
		if sc.Options[i].DefaultVisible {
			return &sc.Options[i], true
		}
	}
	return nil, false
}

// Action returns the action with the given id declared in this step.
func (st *SceneStep) Action(id string) (SceneAction, bool) {
	for _, action := range st.Actions {
		if action.ID == id {
			return action, true
		}
	}
	return SceneAction{}, false
}

// Allows reports whether a role may take an action declared for want.
func (r Role) Allows(want Role) bool {
	return want == RoleAny || r == want
}

// ParseRole parses a player role. RoleAny is not a claimable seat.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleWarrior, RoleSage, RoleRanger:
		return Role(s), true
	}
	return "", false
}
