package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/events"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/rules"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/state"
)

// Journal durably records a session's log. AppendEvents receives each
// transaction before it is committed in memory; an error aborts the commit.
type Journal interface {
	AppendEvents(gameID string, evts []events.GameEvent) error
	TruncateEvents(gameID string, keep int) error
}

// ChangeKind says how a session's log changed
type ChangeKind string

const (
	ChangeCommit ChangeKind = "commit"
	ChangeUndo   ChangeKind = "undo"
)

// Change describes one committed transaction or one undo. For an undo,
// Events are the events that were removed.
type Change struct {
	GameID string
	Kind   ChangeKind
	Events []events.GameEvent
}

// Observer is notified with the new snapshot after every change. The
// snapshot is shared and must not be modified. Observers and bus handlers
// run while the next mutation waits and must not mutate the session.
type Observer interface {
	Observe(snapshot *state.GameState, change Change)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(snapshot *state.GameState, change Change)

// Observe calls f
func (f ObserverFunc) Observe(snapshot *state.GameState, change Change) {
	f(snapshot, change)
}

type options struct {
	logger      zerolog.Logger
	clock       func() time.Time
	bus         *events.EventBus
	observers   []Observer
	journal     Journal
	hitLocation rules.HitLocationFunc
	modifiers   rules.ModifierFunc
	newID       func() string
	sessionID   string
}

// Option configures a Controller
type Option func(*options)

func newOptions(opts []Option) *options {
	o := &options{
		logger: zerolog.Nop(),
		clock:  func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.bus == nil {
		o.bus = events.NewEventBusWithLogger(o.logger)
	}
	return o
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock sets the source of event timestamps
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithEventBus publishes committed events to bus
func WithEventBus(bus *events.EventBus) Option {
	return func(o *options) { o.bus = bus }
}

// WithObserver adds an observer
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// WithJournal persists every transaction to j before it is committed
func WithJournal(j Journal) Option {
	return func(o *options) { o.journal = j }
}

// WithHitLocation replaces the hit location table
func WithHitLocation(fn rules.HitLocationFunc) Option {
	return func(o *options) { o.hitLocation = fn }
}

// WithModifiers replaces the to-hit modifier function
func WithModifiers(fn rules.ModifierFunc) Option {
	return func(o *options) { o.modifiers = fn }
}

// WithIDGenerator sets the generator for session, event and transaction ids
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// WithSessionID fixes the id of a new session
func WithSessionID(id string) Option {
	return func(o *options) { o.sessionID = id }
}
