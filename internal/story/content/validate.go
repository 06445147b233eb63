package content

import (
	"fmt"

	apperrors "github.com/laborio/questing-together/internal/platform/errors"
)

// validate checks the structural invariants of the document. Violations are
// fatal at startup; the reducer and gate assume they cannot occur.
func (s *Story) validate() error {
	if s.StartSceneID == "" {
		return schemaError("start scene id is required", nil)
	}
	if _, ok := s.Scene(s.StartSceneID); !ok {
		return schemaError(fmt.Sprintf("start scene %q does not exist", s.StartSceneID),
			map[string]string{"scene_id": s.StartSceneID})
	}
	if s.ExpectedPlayers <= 0 {
		return schemaError("expected players must be positive", nil)
	}
	if s.PartyMaxHP <= 0 {
		return schemaError("party max hp must be positive", nil)
	}

	combatActionIDs := make(map[string]bool, len(s.CombatActions))
	for _, action := range s.CombatActions {
		if action.ID == "" {
			return schemaError("combat action id is required", nil)
		}
		if combatActionIDs[action.ID] {
			return schemaError(fmt.Sprintf("duplicate combat action id %q", action.ID),
				map[string]string{"action_id": action.ID})
		}
		combatActionIDs[action.ID] = true
		if !validRole(action.Role) {
			return schemaError(fmt.Sprintf("combat action %q has invalid role %q", action.ID, action.Role),
				map[string]string{"action_id": action.ID})
		}
	}

	for i := range s.Scenes {
		if err := s.validateScene(&s.Scenes[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Story) validateScene(sc *Scene) error {
	meta := map[string]string{"scene_id": sc.ID}
	if sc.ID == "" {
		return schemaError("scene id is required", nil)
	}

	switch sc.Mode {
	case ModeStory:
		if sc.Combat != nil || sc.Timed != nil {
			return schemaError(fmt.Sprintf("scene %q carries config for another mode", sc.ID), meta)
		}
	case ModeCombat:
		if sc.Timed != nil {
			return schemaError(fmt.Sprintf("scene %q carries config for another mode", sc.ID), meta)
		}
		if sc.Combat == nil {
			return schemaError(fmt.Sprintf("combat scene %q has no combat config", sc.ID), meta)
		}
		if sc.Combat.EnemyHP <= 0 {
			return schemaError(fmt.Sprintf("combat scene %q enemy hp must be positive", sc.ID), meta)
		}
		if len(s.CombatActions) == 0 {
			return schemaError(fmt.Sprintf("combat scene %q requires a combat action catalog", sc.ID), meta)
		}
	case ModeTimed:
		if sc.Combat != nil {
			return schemaError(fmt.Sprintf("scene %q carries config for another mode", sc.ID), meta)
		}
		if sc.Timed == nil {
			return schemaError(fmt.Sprintf("timed scene %q has no timed config", sc.ID), meta)
		}
		if sc.Timed.DurationSeconds <= 0 {
			return schemaError(fmt.Sprintf("timed scene %q duration must be positive", sc.ID), meta)
		}
	default:
		return schemaError(fmt.Sprintf("scene %q has invalid mode %q", sc.ID, sc.Mode), meta)
	}

	actionIDs := make(map[string]bool)
	stepIDs := make(map[string]bool)
	for _, step := range sc.Steps {
		if step.ID == "" {
			return schemaError(fmt.Sprintf("scene %q has a step without an id", sc.ID), meta)
		}
		if stepIDs[step.ID] {
			return schemaError(fmt.Sprintf("scene %q has duplicate step id %q", sc.ID, step.ID), meta)
		}
		stepIDs[step.ID] = true
		for _, action := range step.Actions {
			if action.ID == "" {
				return schemaError(fmt.Sprintf("scene %q step %q has an action without an id", sc.ID, step.ID), meta)
			}
			if action.ID == SkipActionID {
				return schemaError(fmt.Sprintf("scene %q declares the reserved action id %q", sc.ID, SkipActionID), meta)
			}
			if actionIDs[action.ID] {
				return schemaError(fmt.Sprintf("scene %q has duplicate action id %q", sc.ID, action.ID), meta)
			}
			actionIDs[action.ID] = true
			if !validRole(action.Role) {
				return schemaError(fmt.Sprintf("scene %q action %q has invalid role %q", sc.ID, action.ID, action.Role), meta)
			}
			if _, ok := step.Outcomes[action.ID]; !ok {
				return schemaError(fmt.Sprintf("scene %q step %q is missing an outcome for action %q", sc.ID, step.ID, action.ID), meta)
			}
		}
	}

	optionIDs := make(map[string]bool, len(sc.Options))
	defaultVisible := 0
	for _, option := range sc.Options {
		if option.ID == "" {
			return schemaError(fmt.Sprintf("scene %q has an option without an id", sc.ID), meta)
		}
		if optionIDs[option.ID] {
			return schemaError(fmt.Sprintf("scene %q has duplicate option id %q", sc.ID, option.ID), meta)
		}
		optionIDs[option.ID] = true
		if option.DefaultVisible {
			defaultVisible++
		}
		if len(option.Routes) == 0 {
			return schemaError(fmt.Sprintf("scene %q option %q has no routes", sc.ID, option.ID), meta)
		}
		for _, route := range option.Routes {
			if route.To == "" {
				continue
			}
			if _, ok := s.Scene(route.To); !ok {
				return schemaError(fmt.Sprintf("scene %q option %q routes to unknown scene %q", sc.ID, option.ID, route.To), meta)
			}
		}
	}
	if len(sc.Options) > 0 && defaultVisible != 1 {
		return schemaError(fmt.Sprintf("scene %q must have exactly one default-visible option, has %d", sc.ID, defaultVisible), meta)
	}
	if sc.Mode == ModeStory && !sc.IsEnding && len(sc.Options) == 0 {
		return schemaError(fmt.Sprintf("story scene %q has no options", sc.ID), meta)
	}

	// Outcome references stay within the same scene.
	for _, step := range sc.Steps {
		for actionID, outcome := range step.Outcomes {
			if !actionIDs[actionID] {
				return schemaError(fmt.Sprintf("scene %q step %q has an outcome for unknown action %q", sc.ID, step.ID, actionID), meta)
			}
			for _, disabled := range outcome.DisableActions {
				if !actionIDs[disabled] {
					return schemaError(fmt.Sprintf("scene %q outcome for %q disables unknown action %q", sc.ID, actionID, disabled), meta)
				}
			}
			for _, unlocked := range outcome.UnlockOptions {
				if !optionIDs[unlocked] {
					return schemaError(fmt.Sprintf("scene %q outcome for %q unlocks unknown option %q", sc.ID, actionID, unlocked), meta)
				}
			}
		}
	}

	evidenceIDs := sceneEvidenceIDs(sc)
	for _, rule := range sc.Unlocks {
		if !optionIDs[rule.OptionID] {
			return schemaError(fmt.Sprintf("scene %q unlock rule targets unknown option %q", sc.ID, rule.OptionID), meta)
		}
		if len(rule.Evidence) == 0 {
			return schemaError(fmt.Sprintf("scene %q unlock rule for %q lists no evidence", sc.ID, rule.OptionID), meta)
		}
		for _, evidence := range rule.Evidence {
			if !evidenceIDs[evidence] {
				return schemaError(fmt.Sprintf("scene %q unlock rule for %q references unknown evidence %q", sc.ID, rule.OptionID, evidence), meta)
			}
		}
		if rule.Confirmations <= 0 {
			return schemaError(fmt.Sprintf("scene %q unlock rule for %q requires positive confirmations", sc.ID, rule.OptionID), meta)
		}
	}

	return nil
}

func sceneEvidenceIDs(sc *Scene) map[string]bool {
	ids := make(map[string]bool)
	for _, step := range sc.Steps {
		for _, outcome := range step.Outcomes {
			for _, evidence := range outcome.Evidence {
				ids[evidence] = true
			}
		}
	}
	return ids
}

func validRole(r Role) bool {
	switch r {
	case RoleWarrior, RoleSage, RoleRanger, RoleAny:
		return true
	}
	return false
}

func schemaError(message string, metadata map[string]string) error {
	if metadata == nil {
		return apperrors.New(apperrors.CodeValidationSchema, message)
	}
	return apperrors.WithMetadata(apperrors.CodeValidationSchema, message, metadata)
}
