// Package routing resolves which scene follows a decision option.
//
// Route evaluation is side-effect-free: the chosen option's own tag
// additions are applied to copies of the accumulated tag sets, never to the
// accumulated state itself, so the same resolution can be recomputed by the
// gate and by every replica with identical results.
package routing

import "github.com/laborio/questing-together/internal/story/content"

// Destination is the result of route resolution. Matched is false when no
// route condition held (the caller keeps the current scene — an authoring
// signal, not an error). Ending is true when the matched route ends the
// story; SceneID is set otherwise.
type Destination struct {
	Matched bool
	Ending  bool
	SceneID string
}

// ResolveNextScene evaluates the option's routes in declaration order and
// returns the first match, given the accumulated global/scene tags and the
// set of action ids taken this scene.
func ResolveNextScene(option *content.SceneOption, globalTags, sceneTags map[string]bool, takenActionIDs map[string]bool) Destination {
	global := withTags(globalTags, option.GlobalTags)
	scene := withTags(sceneTags, option.SceneTags)

	for _, route := range option.Routes {
		if !conditionHolds(route.Global, global) {
			continue
		}
		if !conditionHolds(route.Scene, scene) {
			continue
		}
		if !conditionHolds(route.Actions, takenActionIDs) {
			continue
		}
		if route.To == "" {
			return Destination{Matched: true, Ending: true}
		}
		return Destination{Matched: true, SceneID: route.To}
	}
	return Destination{}
}

// conditionHolds evaluates one optional tag condition against a tag set:
// every All tag present, at least one Any tag present when Any is non-empty,
// and no None tag present.
func conditionHolds(cond *content.TagCondition, tags map[string]bool) bool {
	if cond == nil {
		return true
	}
	for _, tag := range cond.All {
		if !tags[tag] {
			return false
		}
	}
	if len(cond.Any) > 0 {
		found := false
		for _, tag := range cond.Any {
			if tags[tag] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, tag := range cond.None {
		if tags[tag] {
			return false
		}
	}
	return true
}

// withTags copies base and adds the option's own tag additions.
func withTags(base map[string]bool, additions []string) map[string]bool {
	copied := make(map[string]bool, len(base)+len(additions))
	for tag := range base {
		copied[tag] = true
	}
	for _, tag := range additions {
		copied[tag] = true
	}
	return copied
}
