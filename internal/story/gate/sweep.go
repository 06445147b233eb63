package gate

import (
	"context"
	"log"
	"time"

	"github.com/laborio/questing-together/internal/story/command"
	"github.com/laborio/questing-together/internal/story/content"
	"github.com/laborio/questing-together/internal/story/event"
	"github.com/laborio/questing-together/internal/story/state"
)

// RunTimerSweep scans rooms on the given interval, arms timers for timed
// scenes no intent will reach, and submits a finish-timer intent for every
// armed deadline that has passed. A timer observed twice is harmless: the
// second submission is rejected as already resolved. Blocks until ctx is
// canceled.
func (g *Gate) RunTimerSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.SweepOnce(ctx)
		}
	}
}

type timerStatus int

const (
	timerIdle timerStatus = iota
	timerUnarmed
	timerDue
)

// SweepOnce fires every due timer it can observe right now, and arms any
// unarmed one whose scene is done collecting. Arming matters for a timed
// opening scene: with no accepted intent to run follow-ups, only the sweep
// ever looks at the room.
func (g *Gate) SweepOnce(ctx context.Context) {
	rooms, err := g.store.ListRooms(ctx)
	if err != nil {
		log.Printf("timer sweep: list rooms: %v", err)
		return
	}

	now := g.now().UTC()
	for _, room := range rooms {
		status, sceneID, err := g.timerStatus(ctx, room.ID, now)
		if err != nil {
			log.Printf("timer sweep: room=%s err=%v", room.ID, err)
			continue
		}
		switch status {
		case timerUnarmed:
			if _, err := g.DeriveFollowUps(ctx, room.ID); err != nil {
				log.Printf("timer sweep: room=%s scene=%s arm err=%v", room.ID, sceneID, err)
			}
		case timerDue:
			decision, err := g.submitSystem(ctx, command.Command{
				Type:        command.TypeFinishTimer,
				RoomID:      room.ID,
				PayloadJSON: event.MarshalPayload(command.FinishTimerPayload{SceneID: sceneID}),
			})
			if err != nil {
				log.Printf("timer sweep: room=%s scene=%s err=%v", room.ID, sceneID, err)
				continue
			}
			if decision.Rejected() {
				// Lost the race to a player or an earlier sweep; nothing to do.
				continue
			}
			log.Printf("timer sweep: room=%s scene=%s resolved", room.ID, sceneID)
		}
	}
}

// timerStatus reports whether the room's current timed scene has an expired
// timer awaiting resolution, or no timer at all yet.
func (g *Gate) timerStatus(ctx context.Context, roomID string, now time.Time) (timerStatus, string, error) {
	events, err := g.store.ListEvents(ctx, roomID, 0, 0)
	if err != nil {
		return timerIdle, "", err
	}
	st := state.Reduce(g.story, events)
	if st.Ended {
		return timerIdle, "", nil
	}
	scene, ok := g.story.Scene(st.CurrentSceneID)
	if !ok || scene.Mode != content.ModeTimed {
		return timerIdle, "", nil
	}
	progress := st.Current()
	if progress == nil || progress.Resolution != nil {
		return timerIdle, "", nil
	}
	if progress.TimerEndsAt == nil {
		return timerUnarmed, scene.ID, nil
	}
	if now.Before(*progress.TimerEndsAt) {
		return timerIdle, "", nil
	}
	return timerDue, scene.ID, nil
}
