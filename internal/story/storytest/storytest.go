// Package storytest provides a canonical story document and event builders
// shared by reducer, synchronizer, resolution, and gate tests.
package storytest

import (
	"testing"

	"github.com/laborio/questing-together/internal/story/content"
	"github.com/laborio/questing-together/internal/story/event"
)

// Players used throughout the tests, in role order.
const (
	Warrior = "p-warrior"
	Sage    = "p-sage"
	Ranger  = "p-ranger"
)

// DefaultDoc is a small but complete story: a story scene with evidence
// unlocks and tag routing, a combat scene, a timed scene, and an ending.
const DefaultDoc = `{
  "title": "The Hollow Crown",
  "start_scene_id": "gate",
  "expected_players": 3,
  "party_max_hp": 20,
  "combat_actions": [
    {"id": "strike", "role": "warrior", "text": "Strike", "effect": {"damage": 4}},
    {"id": "volley", "role": "ranger", "text": "Volley", "effect": {"damage": 3}},
    {"id": "ward", "role": "sage", "text": "Ward", "effect": {"block": 3}},
    {"id": "hex", "role": "sage", "text": "Hex", "effect": {"enemy_attack_delta": -2}},
    {"id": "flee", "role": "any", "text": "Flee", "effect": {"run": true}}
  ],
  "scenes": [
    {
      "id": "gate",
      "title": "The Gate",
      "mode": "story",
      "steps": [
        {
          "id": "st1",
          "actions": [
            {"id": "force", "role": "warrior", "text": "Force the gate"},
            {"id": "runes", "role": "sage", "text": "Read the runes"},
            {"id": "scout", "role": "ranger", "text": "Scout the walls"},
            {"id": "listen", "role": "any", "text": "Listen at the door"}
          ],
          "outcomes": {
            "force": {"narration": "The gate gives.", "evidence": ["crest"], "scene_tags": ["forced"], "hp_delta": -1},
            "runes": {"narration": "The runes glow.", "evidence": ["crest", "sigil"], "global_tags": ["lore"]},
            "scout": {"narration": "A crack in the wall.", "evidence": ["sigil"], "disable_actions": ["listen"]},
            "listen": {"narration": "Silence."}
          }
        }
      ],
      "options": [
        {"id": "A", "text": "Enter the keep", "default_visible": true, "routes": [
          {"to": "warden", "if_global": {"none": ["lore"]}},
          {"to": "camp"}
        ]},
        {"id": "B", "text": "Use the hidden crack", "routes": [
          {"to": "camp", "if_actions": {"all": ["scout"]}},
          {"to": "warden"}
        ]}
      ],
      "unlocks": [
        {"option_id": "B", "evidence": ["crest", "sigil"], "confirmations": 2}
      ]
    },
    {
      "id": "warden",
      "title": "The Warden",
      "mode": "combat",
      "combat": {"enemy_name": "Warden", "enemy_hp": 10, "enemy_attack": 5, "allow_run": true},
      "options": [
        {"id": "A", "text": "Press on", "default_visible": true, "routes": [{"to": "camp"}]},
        {"id": "B", "text": "Fall", "routes": [{"ending": true}]},
        {"id": "C", "text": "Flee into the hills", "routes": [{"to": "camp"}]}
      ]
    },
    {
      "id": "camp",
      "title": "Camp",
      "mode": "timed",
      "timed": {"kind": "rest", "duration_seconds": 60, "allow_early": true, "status_text": "The party rests."},
      "options": [
        {"id": "A", "text": "Break camp", "default_visible": true, "routes": [{"to": "crown"}]}
      ]
    },
    {
      "id": "crown",
      "title": "The Hollow Crown",
      "mode": "story",
      "is_ending": true
    }
  ]
}`

// Load parses DefaultDoc, failing the test on schema errors.
func Load(t *testing.T) *content.Story {
	t.Helper()
	story, err := content.Load([]byte(DefaultDoc))
	if err != nil {
		t.Fatalf("load test story: %v", err)
	}
	return story
}

// MustLoad parses an arbitrary story document, failing the test on error.
func MustLoad(t *testing.T, doc string) *content.Story {
	t.Helper()
	story, err := content.Load([]byte(doc))
	if err != nil {
		t.Fatalf("load story: %v", err)
	}
	return story
}

// Action builds a scene.action event.
func Action(room, sceneID, stepID, actionID, playerID string) event.Event {
	return event.Event{
		RoomID:    room,
		Type:      event.TypeSceneAction,
		ActorType: event.ActorTypePlayer,
		ActorID:   playerID,
		PayloadJSON: event.MarshalPayload(event.ActionPayload{
			SceneID:  sceneID,
			StepID:   stepID,
			ActionID: actionID,
			PlayerID: playerID,
		}),
	}
}

// Vote builds a scene.option_confirm event.
func Vote(room, sceneID, playerID, optionID string, destination *string) event.Event {
	return event.Event{
		RoomID:    room,
		Type:      event.TypeOptionConfirm,
		ActorType: event.ActorTypePlayer,
		ActorID:   playerID,
		PayloadJSON: event.MarshalPayload(event.OptionConfirmPayload{
			SceneID:     sceneID,
			PlayerID:    playerID,
			OptionID:    optionID,
			Destination: destination,
		}),
	}
}

// Resolve builds a scene.resolve event.
func Resolve(room, sceneID, optionID string, mode event.ResolutionMode, destination *string) event.Event {
	return event.Event{
		RoomID:    room,
		Type:      event.TypeSceneResolve,
		ActorType: event.ActorTypeSystem,
		PayloadJSON: event.MarshalPayload(event.ResolvePayload{
			SceneID:     sceneID,
			OptionID:    optionID,
			Mode:        mode,
			Destination: destination,
		}),
	}
}

// Continue builds a scene.continue event.
func Continue(room, sceneID, playerID string) event.Event {
	return event.Event{
		RoomID:    room,
		Type:      event.TypeSceneContinue,
		ActorType: event.ActorTypePlayer,
		ActorID:   playerID,
		PayloadJSON: event.MarshalPayload(event.ContinuePayload{
			SceneID:  sceneID,
			PlayerID: playerID,
		}),
	}
}

// Advance builds a scene.advance event.
func Advance(room, sceneID, optionID string, mode event.ResolutionMode, destination *string) event.Event {
	return event.Event{
		RoomID:    room,
		Type:      event.TypeSceneAdvance,
		ActorType: event.ActorTypeSystem,
		PayloadJSON: event.MarshalPayload(event.AdvancePayload{
			SceneID:     sceneID,
			OptionID:    optionID,
			Mode:        mode,
			Destination: destination,
		}),
	}
}

// Reset builds a story.reset event.
func Reset(room string) event.Event {
	return event.Event{
		RoomID:      room,
		Type:        event.TypeStoryReset,
		ActorType:   event.ActorTypeSystem,
		PayloadJSON: event.MarshalPayload(event.ResetPayload{}),
	}
}

// Ptr returns a pointer to the given destination string.
func Ptr(s string) *string {
	return &s
}
