package content

import (
	"encoding/json"
	"fmt"
	"os"

	apperrors "github.com/laborio/questing-together/internal/platform/errors"
)

const (
	defaultExpectedPlayers = 3
	defaultConfirmations   = 2
)

// Load parses and validates a story document from raw JSON.
func Load(data []byte) (*Story, error) {
	var story Story
	if err := json.Unmarshal(data, &story); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidationSchema, "parse story document", err)
	}

	if story.ExpectedPlayers == 0 {
		story.ExpectedPlayers = defaultExpectedPlayers
	}
	for i := range story.Scenes {
		for j := range story.Scenes[i].Unlocks {
			if story.Scenes[i].Unlocks[j].Confirmations == 0 {
				story.Scenes[i].Unlocks[j].Confirmations = defaultConfirmations
			}
		}
	}

	story.sceneIndex = make(map[string]int, len(story.Scenes))
	for i := range story.Scenes {
		id := story.Scenes[i].ID
		if _, dup := story.sceneIndex[id]; dup {
			return nil, apperrors.WithMetadata(apperrors.CodeValidationSchema,
				fmt.Sprintf("duplicate scene id %q", id),
				map[string]string{"scene_id": id})
		}
		story.sceneIndex[id] = i
	}

	if err := story.validate(); err != nil {
		return nil, err
	}
	return &story, nil
}

// LoadFile parses and validates a story document from a file path.
func LoadFile(path string) (*Story, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read story file: %w", err)
	}
	return Load(data)
}
