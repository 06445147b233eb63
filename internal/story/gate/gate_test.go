package gate_test

import (
	"context"
	"sync"
	"testing"
	"time"

	apperrors "github.com/laborio/questing-together/internal/platform/errors"
	"github.com/laborio/questing-together/internal/storage"
	"github.com/laborio/questing-together/internal/storage/memory"
	"github.com/laborio/questing-together/internal/story/command"
	"github.com/laborio/questing-together/internal/story/content"
	"github.com/laborio/questing-together/internal/story/event"
	"github.com/laborio/questing-together/internal/story/gate"
	"github.com/laborio/questing-together/internal/story/resolve"
	"github.com/laborio/questing-together/internal/story/state"
	"github.com/laborio/questing-together/internal/story/storytest"
)

const room = "room-1"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	gate  *gate.Gate
	store *memory.Store
	clock *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	story := storytest.Load(t)
	store := memory.New()
	clock := &fakeClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}

	decider := resolve.NewDecider(story)
	decider.NewSeed = func() int64 { return 7 }

	g := gate.New(story, store,
		gate.WithClock(clock.Now),
		gate.WithDecider(decider),
	)

	ctx := context.Background()
	if err := store.PutRoom(ctx, storage.RoomRecord{ID: room, Name: "Crown", CreatedAt: clock.Now(), UpdatedAt: clock.Now()}); err != nil {
		t.Fatalf("put room: %v", err)
	}
	seats := []storage.MemberRecord{
		{RoomID: room, PlayerID: storytest.Warrior, Role: content.RoleWarrior, JoinedAt: clock.Now()},
		{RoomID: room, PlayerID: storytest.Sage, Role: content.RoleSage, JoinedAt: clock.Now()},
		{RoomID: room, PlayerID: storytest.Ranger, Role: content.RoleRanger, JoinedAt: clock.Now()},
	}
	for _, seat := range seats {
		if err := store.PutMember(ctx, seat); err != nil {
			t.Fatalf("put member %s: %v", seat.PlayerID, err)
		}
	}
	return &fixture{gate: g, store: store, clock: clock}
}

func (f *fixture) submit(t *testing.T, typ command.Type, playerID string, payload any) command.Decision {
	t.Helper()
	decision, err := f.gate.Submit(context.Background(), command.Command{
		Type:        typ,
		RoomID:      room,
		PlayerID:    playerID,
		PayloadJSON: event.MarshalPayload(payload),
	})
	if err != nil {
		t.Fatalf("submit %s for %s: %v", typ, playerID, err)
	}
	return decision
}

func (f *fixture) mustAccept(t *testing.T, typ command.Type, playerID string, payload any) command.Decision {
	t.Helper()
	decision := f.submit(t, typ, playerID, payload)
	if decision.Rejected() {
		t.Fatalf("submit %s for %s rejected: %+v", typ, playerID, decision.Rejections)
	}
	return decision
}

func (f *fixture) reduce(t *testing.T) state.State {
	t.Helper()
	events, err := f.store.ListEvents(context.Background(), room, 0, 0)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	return state.Reduce(storytest.Load(t), events)
}

func TestSubmitRejectsNonMembers(t *testing.T) {
	f := newFixture(t)

	decision := f.submit(t, command.TypeTakeAction, "stranger",
		command.TakeActionPayload{SceneID: "gate", StepID: "st1", ActionID: "force"})
	if !decision.Rejected() {
		t.Fatal("expected a rejection for a non-member")
	}
	if decision.Rejections[0].Code != string(apperrors.CodeActorNotMember) {
		t.Fatalf("expected authorization code, got %s", decision.Rejections[0].Code)
	}
}

func TestVoteCascadeResolvesAndAdvances(t *testing.T) {
	f := newFixture(t)

	f.mustAccept(t, command.TypeTakeAction, storytest.Warrior,
		command.TakeActionPayload{SceneID: "gate", StepID: "st1", ActionID: "force"})
	f.mustAccept(t, command.TypeTakeAction, storytest.Sage,
		command.TakeActionPayload{SceneID: "gate", StepID: "st1", ActionID: "runes"})
	f.mustAccept(t, command.TypeTakeAction, storytest.Ranger,
		command.TakeActionPayload{SceneID: "gate", StepID: "st1", ActionID: "scout"})

	// The runes outcome set the lore tag, so option A routes to camp.
	vote := command.CastVotePayload{SceneID: "gate", OptionID: "A", Destination: storytest.Ptr("camp")}
	f.mustAccept(t, command.TypeCastVote, storytest.Warrior, vote)
	f.mustAccept(t, command.TypeCastVote, storytest.Sage, vote)

	st := f.reduce(t)
	if st.Current().Resolution != nil {
		t.Fatal("expected no resolution with two of three votes")
	}

	decision := f.mustAccept(t, command.TypeCastVote, storytest.Ranger, vote)
	// The final vote cascades: confirm + resolve.
	var types []event.Type
	for _, evt := range decision.Events {
		types = append(types, evt.Type)
	}
	if len(types) != 2 || types[0] != event.TypeOptionConfirm || types[1] != event.TypeSceneResolve {
		t.Fatalf("expected [option_confirm resolve], got %v", types)
	}

	st = f.reduce(t)
	resolution := st.Scenes["gate"].Resolution
	if resolution == nil || resolution.OptionID != "A" || resolution.Mode != event.ResolutionMajority {
		t.Fatalf("expected majority resolution for A, got %+v", resolution)
	}

	// Continuation acks advance the scene; arriving at the timed camp
	// arms its timer in the same cascade.
	f.mustAccept(t, command.TypeContinue, storytest.Warrior, command.ContinuePayload{SceneID: "gate"})
	f.mustAccept(t, command.TypeContinue, storytest.Sage, command.ContinuePayload{SceneID: "gate"})
	decision = f.mustAccept(t, command.TypeContinue, storytest.Ranger, command.ContinuePayload{SceneID: "gate"})

	types = nil
	for _, evt := range decision.Events {
		types = append(types, evt.Type)
	}
	if len(types) != 3 || types[1] != event.TypeSceneAdvance || types[2] != event.TypeTimerStarted {
		t.Fatalf("expected [continue advance timer_started], got %v", types)
	}

	st = f.reduce(t)
	if st.CurrentSceneID != "camp" {
		t.Fatalf("expected to advance to camp, got %s", st.CurrentSceneID)
	}
	if st.Current().TimerEndsAt == nil {
		t.Fatal("expected the camp timer armed on entry")
	}
}

func TestDuplicateIntentsAreNoOps(t *testing.T) {
	f := newFixture(t)

	f.mustAccept(t, command.TypeTakeAction, storytest.Warrior,
		command.TakeActionPayload{SceneID: "gate", StepID: "st1", ActionID: "force"})
	decision := f.mustAccept(t, command.TypeTakeAction, storytest.Warrior,
		command.TakeActionPayload{SceneID: "gate", StepID: "st1", ActionID: "listen"})
	if !decision.NoOp {
		t.Fatalf("expected duplicate action no-op, got %+v", decision)
	}

	seq, err := f.store.GetLatestEventSeq(context.Background(), room)
	if err != nil {
		t.Fatalf("latest seq: %v", err)
	}
	if seq != 1 {
		t.Fatalf("expected the duplicate to append nothing, got seq %d", seq)
	}
}

func TestCombatEncounterThroughGate(t *testing.T) {
	f := newFixture(t)

	// Reach the warden: avoid the runes so the lore tag stays unset and
	// option A routes to the combat scene.
	f.mustAccept(t, command.TypeTakeAction, storytest.Warrior,
		command.TakeActionPayload{SceneID: "gate", StepID: "st1", ActionID: "force"})
	f.mustAccept(t, command.TypeTakeAction, storytest.Sage,
		command.TakeActionPayload{SceneID: "gate", StepID: "st1", ActionID: "listen"})
	f.mustAccept(t, command.TypeSkipAction, storytest.Ranger,
		command.SkipActionPayload{SceneID: "gate", StepID: "st1"})

	vote := command.CastVotePayload{SceneID: "gate", OptionID: "A", Destination: storytest.Ptr("warden")}
	f.mustAccept(t, command.TypeCastVote, storytest.Warrior, vote)
	f.mustAccept(t, command.TypeCastVote, storytest.Sage, vote)
	f.mustAccept(t, command.TypeCastVote, storytest.Ranger, vote)
	f.mustAccept(t, command.TypeContinue, storytest.Warrior, command.ContinuePayload{SceneID: "gate"})
	f.mustAccept(t, command.TypeContinue, storytest.Sage, command.ContinuePayload{SceneID: "gate"})
	f.mustAccept(t, command.TypeContinue, storytest.Ranger, command.ContinuePayload{SceneID: "gate"})

	st := f.reduce(t)
	if st.CurrentSceneID != "warden" {
		t.Fatalf("expected the warden encounter, got %s", st.CurrentSceneID)
	}

	// Two full rounds of strike+volley+ward fell the 10 HP warden.
	for _, roundID := range []string{"1", "2"} {
		f.mustAccept(t, command.TypeTakeAction, storytest.Warrior,
			command.TakeActionPayload{SceneID: "warden", StepID: roundID, ActionID: "strike"})
		f.mustAccept(t, command.TypeTakeAction, storytest.Ranger,
			command.TakeActionPayload{SceneID: "warden", StepID: roundID, ActionID: "volley"})
		f.mustAccept(t, command.TypeTakeAction, storytest.Sage,
			command.TakeActionPayload{SceneID: "warden", StepID: roundID, ActionID: "ward"})
	}

	st = f.reduce(t)
	resolution := st.Current().Resolution
	if resolution == nil || resolution.OptionID != content.OptionVictory || resolution.Mode != event.ResolutionCombat {
		t.Fatalf("expected an automatic combat victory resolution, got %+v", resolution)
	}
	if st.PartyHP != 15 {
		t.Fatalf("expected party hp 15 after the fight (19 entering, 2 per round), got %d", st.PartyHP)
	}

	// Continuation works the same as after a vote.
	f.mustAccept(t, command.TypeContinue, storytest.Warrior, command.ContinuePayload{SceneID: "warden"})
	f.mustAccept(t, command.TypeContinue, storytest.Sage, command.ContinuePayload{SceneID: "warden"})
	f.mustAccept(t, command.TypeContinue, storytest.Ranger, command.ContinuePayload{SceneID: "warden"})

	st = f.reduce(t)
	if st.CurrentSceneID != "camp" {
		t.Fatalf("expected victory to route to camp, got %s", st.CurrentSceneID)
	}
}

func TestTimerSweepFinishesExpiredScenes(t *testing.T) {
	f := newFixture(t)

	// Jump straight to camp; the submit cascade arms the timer.
	f.mustAccept(t, command.TypeTakeAction, storytest.Warrior,
		command.TakeActionPayload{SceneID: "gate", StepID: "st1", ActionID: "force"})
	f.mustAccept(t, command.TypeTakeAction, storytest.Sage,
		command.TakeActionPayload{SceneID: "gate", StepID: "st1", ActionID: "runes"})
	f.mustAccept(t, command.TypeTakeAction, storytest.Ranger,
		command.TakeActionPayload{SceneID: "gate", StepID: "st1", ActionID: "scout"})
	vote := command.CastVotePayload{SceneID: "gate", OptionID: "A", Destination: storytest.Ptr("camp")}
	f.mustAccept(t, command.TypeCastVote, storytest.Warrior, vote)
	f.mustAccept(t, command.TypeCastVote, storytest.Sage, vote)
	f.mustAccept(t, command.TypeCastVote, storytest.Ranger, vote)
	f.mustAccept(t, command.TypeContinue, storytest.Warrior, command.ContinuePayload{SceneID: "gate"})
	f.mustAccept(t, command.TypeContinue, storytest.Sage, command.ContinuePayload{SceneID: "gate"})
	f.mustAccept(t, command.TypeContinue, storytest.Ranger, command.ContinuePayload{SceneID: "gate"})

	st := f.reduce(t)
	if st.CurrentSceneID != "camp" || st.Current().TimerEndsAt == nil {
		t.Fatalf("expected an armed camp timer, got %+v", st)
	}

	// Before expiry the sweep leaves the room alone.
	before, _ := f.store.GetLatestEventSeq(context.Background(), room)
	f.gate.SweepOnce(context.Background())
	after, _ := f.store.GetLatestEventSeq(context.Background(), room)
	if before != after {
		t.Fatalf("expected no events before expiry, got %d new", after-before)
	}

	// After expiry one sweep resolves and advances; the next finds
	// nothing due.
	f.clock.Advance(2 * time.Minute)
	f.gate.SweepOnce(context.Background())

	st = f.reduce(t)
	if st.CurrentSceneID != "crown" || !st.Ended {
		t.Fatalf("expected the sweep to finish the story at crown, got %+v", st)
	}

	mid, _ := f.store.GetLatestEventSeq(context.Background(), room)
	f.gate.SweepOnce(context.Background())
	final, _ := f.store.GetLatestEventSeq(context.Background(), room)
	if mid != final {
		t.Fatalf("expected the second sweep to append nothing, got %d new", final-mid)
	}
}

func TestTimerSweepArmsTimedOpeningScene(t *testing.T) {
	doc := `{
	  "title": "Vigil",
	  "start_scene_id": "vigil",
	  "expected_players": 3,
	  "party_max_hp": 10,
	  "scenes": [
	    {
	      "id": "vigil",
	      "title": "The Vigil",
	      "mode": "timed",
	      "timed": {"kind": "wait", "duration_seconds": 60},
	      "options": [
	        {"id": "A", "text": "Dawn comes", "default_visible": true, "routes": [{"to": "dawn"}]}
	      ]
	    },
	    {"id": "dawn", "title": "Dawn", "mode": "story", "is_ending": true}
	  ]
	}`
	story := storytest.MustLoad(t, doc)
	store := memory.New()
	clock := &fakeClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
	g := gate.New(story, store, gate.WithClock(clock.Now))

	ctx := context.Background()
	if err := store.PutRoom(ctx, storage.RoomRecord{ID: room, Name: "Vigil", CreatedAt: clock.Now(), UpdatedAt: clock.Now()}); err != nil {
		t.Fatalf("put room: %v", err)
	}

	// No intent can reach a stepless timed opening scene; the sweep arms
	// its timer from the blank journal.
	g.SweepOnce(ctx)

	events, err := store.ListEvents(ctx, room, 0, 0)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 || events[0].Type != event.TypeTimerStarted {
		t.Fatalf("expected the sweep to arm the timer, got %+v", events)
	}
	st := state.Reduce(story, events)
	if st.Current().TimerEndsAt == nil {
		t.Fatal("expected the vigil timer armed")
	}

	// While the timer runs the sweep leaves the room alone.
	g.SweepOnce(ctx)
	if seq, _ := store.GetLatestEventSeq(ctx, room); seq != 1 {
		t.Fatalf("expected no events while the timer runs, got seq %d", seq)
	}

	// Expiry resolves and advances without any player intent.
	clock.Advance(2 * time.Minute)
	g.SweepOnce(ctx)

	events, _ = store.ListEvents(ctx, room, 0, 0)
	st = state.Reduce(story, events)
	if st.CurrentSceneID != "dawn" || !st.Ended {
		t.Fatalf("expected the story to end at dawn, got %+v", st)
	}
}

func TestPublisherReceivesAppendedEvents(t *testing.T) {
	story := storytest.Load(t)
	store := memory.New()
	clock := &fakeClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}

	var mu sync.Mutex
	var published []event.Event
	g := gate.New(story, store,
		gate.WithClock(clock.Now),
		gate.WithPublisher(func(roomID string, events []event.Event) {
			mu.Lock()
			defer mu.Unlock()
			published = append(published, events...)
		}),
	)

	ctx := context.Background()
	if err := store.PutMember(ctx, storage.MemberRecord{
		RoomID: room, PlayerID: storytest.Warrior, Role: content.RoleWarrior, JoinedAt: clock.Now(),
	}); err != nil {
		t.Fatalf("put member: %v", err)
	}

	decision, err := g.Submit(ctx, command.Command{
		Type:     command.TypeTakeAction,
		RoomID:   room,
		PlayerID: storytest.Warrior,
		PayloadJSON: event.MarshalPayload(command.TakeActionPayload{
			SceneID: "gate", StepID: "st1", ActionID: "force",
		}),
	})
	if err != nil || decision.Rejected() {
		t.Fatalf("submit: %v %+v", err, decision.Rejections)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(published) != 1 || published[0].Seq != 1 {
		t.Fatalf("expected the stored event published with its seq, got %+v", published)
	}
}

func TestResetThroughGate(t *testing.T) {
	f := newFixture(t)

	f.mustAccept(t, command.TypeTakeAction, storytest.Warrior,
		command.TakeActionPayload{SceneID: "gate", StepID: "st1", ActionID: "force"})
	f.mustAccept(t, command.TypeReset, storytest.Sage, struct{}{})

	st := f.reduce(t)
	if st.PartyHP != 20 || len(st.Current().Steps) != 0 {
		t.Fatalf("expected a clean slate after reset, got %+v", st)
	}
}
