// Package gate is the authoritative writer for room journals. It serializes
// intents per room, replays the log, runs the decider, appends accepted
// events, derives follow-up system events, and publishes everything that
// was written.
package gate

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/laborio/questing-together/internal/platform/errors"
	"github.com/laborio/questing-together/internal/storage"
	"github.com/laborio/questing-together/internal/story/command"
	"github.com/laborio/questing-together/internal/story/content"
	"github.com/laborio/questing-together/internal/story/event"
	"github.com/laborio/questing-together/internal/story/resolve"
	"github.com/laborio/questing-together/internal/story/state"
)

// maxFollowUps bounds the derivation loop per submit. A single intent can
// cascade at most a handful of system events (resolve, advance, timer arm);
// the bound exists to turn a derivation bug into a visible stall instead of
// an infinite loop.
const maxFollowUps = 8

// Publisher receives events after they are durably appended, in order.
type Publisher func(roomID string, events []event.Event)

// Gate owns the authoritative write path for every room of one story.
type Gate struct {
	story   *content.Story
	decider *resolve.Decider
	store   storage.Store
	publish Publisher
	tracer  trace.Tracer
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Gate.
type Option func(*Gate)

// WithPublisher registers a callback for durably appended events.
func WithPublisher(publish Publisher) Option {
	return func(g *Gate) { g.publish = publish }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithDecider overrides the decider, for tests that pin the tie-break seed.
func WithDecider(decider *resolve.Decider) Option {
	return func(g *Gate) { g.decider = decider }
}

// New returns a gate for the story backed by the given store.
func New(story *content.Story, store storage.Store, opts ...Option) *Gate {
	g := &Gate{
		story:   story,
		decider: resolve.NewDecider(story),
		store:   store,
		tracer:  otel.Tracer("questing/gate"),
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Submit processes one player intent. Rejections are reported in the
// decision, not as errors; errors are reserved for storage failures.
func (g *Gate) Submit(ctx context.Context, cmd command.Command) (command.Decision, error) {
	ctx, span := g.tracer.Start(ctx, "gate.Submit",
		trace.WithAttributes(
			attribute.String("room.id", cmd.RoomID),
			attribute.String("command.type", string(cmd.Type)),
		))
	defer span.End()

	cmd = command.Normalize(cmd)
	member, err := g.store.GetMember(ctx, cmd.RoomID, cmd.PlayerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return command.Reject(command.Rejection{
				Code:    string(apperrors.CodeActorNotMember),
				Message: "player " + cmd.PlayerID + " is not a member of room " + cmd.RoomID,
			}), nil
		}
		return command.Decision{}, err
	}
	return g.submit(ctx, cmd, member.Role)
}

// submitSystem processes a gate-originated intent (timer sweep) without a
// membership check.
func (g *Gate) submitSystem(ctx context.Context, cmd command.Command) (command.Decision, error) {
	return g.submit(ctx, command.Normalize(cmd), content.RoleAny)
}

func (g *Gate) submit(ctx context.Context, cmd command.Command, role content.Role) (command.Decision, error) {
	lock := g.roomLock(cmd.RoomID)
	lock.Lock()
	defer lock.Unlock()

	log, err := g.store.ListEvents(ctx, cmd.RoomID, 0, 0)
	if err != nil {
		return command.Decision{}, err
	}
	st := state.Reduce(g.story, log)

	now := g.now().UTC()
	decision := g.decider.Decide(&st, cmd, role, now)
	if decision.Rejected() {
		return decision, nil
	}

	appended := make([]event.Event, 0, len(decision.Events))
	for _, evt := range decision.Events {
		evt.Timestamp = now
		stored, err := g.store.AppendEvent(ctx, evt)
		if err != nil {
			return command.Decision{}, err
		}
		appended = append(appended, stored)
		log = append(log, stored)
	}

	followUps, err := g.appendFollowUps(ctx, cmd.RoomID, log, now)
	if err != nil {
		return command.Decision{}, err
	}
	appended = append(appended, followUps...)

	if g.publish != nil && len(appended) > 0 {
		g.publish(cmd.RoomID, appended)
	}

	decision.Events = appended
	return decision, nil
}

// appendFollowUps drains the derivation loop. Each appended batch can imply
// the next one: votes imply a resolve, a resolve plus acks implies an
// advance, an advance into a timed scene implies a timer. Re-reduce and ask
// until nothing is due. Callers hold the room lock.
func (g *Gate) appendFollowUps(ctx context.Context, roomID string, log []event.Event, now time.Time) ([]event.Event, error) {
	var appended []event.Event
	for i := 0; i < maxFollowUps; i++ {
		st := state.Reduce(g.story, log)
		derived := g.decider.FollowUps(roomID, &st, now)
		if len(derived) == 0 {
			break
		}
		for _, evt := range derived {
			evt.Timestamp = now
			stored, err := g.store.AppendEvent(ctx, evt)
			if err != nil {
				return appended, err
			}
			appended = append(appended, stored)
			log = append(log, stored)
		}
	}
	return appended, nil
}

// DeriveFollowUps appends whatever system events the room's state already
// implies, without a triggering intent. A timed scene that opens the story
// has no accepted intent to piggyback on; the sweep calls this so its timer
// still arms.
func (g *Gate) DeriveFollowUps(ctx context.Context, roomID string) ([]event.Event, error) {
	lock := g.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	log, err := g.store.ListEvents(ctx, roomID, 0, 0)
	if err != nil {
		return nil, err
	}
	appended, err := g.appendFollowUps(ctx, roomID, log, g.now().UTC())
	if g.publish != nil && len(appended) > 0 {
		g.publish(roomID, appended)
	}
	return appended, err
}

func (g *Gate) roomLock(roomID string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	lock, ok := g.locks[roomID]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[roomID] = lock
	}
	return lock
}
