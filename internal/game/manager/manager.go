// Package manager keeps the live sessions of a process. It serializes
// submissions per session, enforces optimistic concurrency and idempotency
// keys, restores sessions from a durable store and evicts idle ones.
package manager

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/ai"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/encounter"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/events"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/session"
	"github.com/mitchelldurbincs/MekEncounter/internal/monitoring"
)

// AnyVersion skips the optimistic concurrency check of Submit
const AnyVersion = -1

const (
	defaultSessionTTL      = 30 * time.Minute
	defaultFinishedTTL     = 5 * time.Minute
	defaultCleanupInterval = time.Minute
)

// EventStore is the durable side of the manager: it journals every
// transaction and can give back a session's log
type EventStore interface {
	Bind(ctx context.Context) session.Journal
	LoadEvents(ctx context.Context, gameID string) ([]events.GameEvent, error)
}

// SubmitFunc performs one operation on a controller
type SubmitFunc func(c *session.Controller) ([]events.GameEvent, error)

type entry struct {
	mu           sync.Mutex // serializes Submit and RunAITurn
	ctrl         *session.Controller
	createdAt    time.Time
	lastActivity atomic.Int64
}

func (e *entry) touch(now time.Time) {
	e.lastActivity.Store(now.UnixNano())
}

func (e *entry) idleSince() time.Time {
	return time.Unix(0, e.lastActivity.Load())
}

// SessionManager manages all live sessions
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	reserved int

	maxSessions     int
	sessionTTL      time.Duration
	finishedTTL     time.Duration
	cleanupInterval time.Duration
	clock           func() time.Time

	store       EventStore
	subscribers []events.Subscriber
	observers   []session.Observer
	metrics     *monitoring.Metrics
	runner      *ai.Runner
	sessionOpts []session.Option
	idempotency *IdempotencyCache

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// Option configures a SessionManager
type Option func(*SessionManager)

// WithMaxSessions caps the number of live sessions. 0 means unlimited.
func WithMaxSessions(n int) Option {
	return func(m *SessionManager) { m.maxSessions = n }
}

// WithSessionTTL sets how long an unfinished session may stay idle and how
// long a finished one is kept. A non-positive value disables that eviction.
func WithSessionTTL(idle, finished time.Duration) Option {
	return func(m *SessionManager) {
		m.sessionTTL = idle
		m.finishedTTL = finished
	}
}

// WithCleanupInterval sets the period of the background cleanup loop
func WithCleanupInterval(d time.Duration) Option {
	return func(m *SessionManager) {
		if d > 0 {
			m.cleanupInterval = d
		}
	}
}

// WithClock sets the clock used for activity tracking
func WithClock(clock func() time.Time) Option {
	return func(m *SessionManager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithEventStore journals sessions to store and enables Load
func WithEventStore(store EventStore) Option {
	return func(m *SessionManager) { m.store = store }
}

// WithSubscriber subscribes s to the event bus of every session
func WithSubscriber(s events.Subscriber) Option {
	return func(m *SessionManager) {
		if s != nil {
			m.subscribers = append(m.subscribers, s)
		}
	}
}

// WithObserver registers obs on every session
func WithObserver(obs session.Observer) Option {
	return func(m *SessionManager) {
		if obs != nil {
			m.observers = append(m.observers, obs)
		}
	}
}

// WithMetrics records session events, rejections and the live session count
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(m *SessionManager) { m.metrics = metrics }
}

// WithRunner sets the AI runner used by RunAITurn
func WithRunner(r *ai.Runner) Option {
	return func(m *SessionManager) { m.runner = r }
}

// WithSessionOptions adds controller options applied to every session
func WithSessionOptions(opts ...session.Option) Option {
	return func(m *SessionManager) { m.sessionOpts = append(m.sessionOpts, opts...) }
}

// NewSessionManager creates a manager. Call Start to run the cleanup loop.
func NewSessionManager(logger zerolog.Logger, opts ...Option) *SessionManager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &SessionManager{
		sessions:        make(map[string]*entry),
		sessionTTL:      defaultSessionTTL,
		finishedTTL:     defaultFinishedTTL,
		cleanupInterval: defaultCleanupInterval,
		clock:           time.Now,
		ctx:             ctx,
		cancel:          cancel,
		logger:          logger.With().Str("component", "SessionManager").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.idempotency = NewIdempotencyCache(m.clock)
	if m.runner == nil {
		m.runner = ai.NewRunner(logger)
	}
	return m
}

// controllerOptions builds the options of one session. Every session gets its
// own bus so a subscriber sees one session's events in order.
func (m *SessionManager) controllerOptions() []session.Option {
	bus := events.NewEventBusWithLogger(m.logger)
	for _, s := range m.subscribers {
		bus.Subscribe(s)
	}
	opts := []session.Option{
		session.WithLogger(m.logger),
		session.WithEventBus(bus),
	}
	if m.metrics != nil {
		bus.Subscribe(m.metrics.Subscriber())
		opts = append(opts, session.WithObserver(m.metrics.Observer()))
	}
	for _, obs := range m.observers {
		opts = append(opts, session.WithObserver(obs))
	}
	if m.store != nil {
		opts = append(opts, session.WithJournal(m.store.Bind(m.ctx)))
	}
	return append(opts, m.sessionOpts...)
}

// reserve claims a slot under the session cap
func (m *SessionManager) reserve() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := len(m.sessions) + m.reserved
	if m.maxSessions > 0 && current >= m.maxSessions {
		m.logger.Warn().
			Int("current_sessions", current).
			Int("max_sessions", m.maxSessions).
			Msg("Rejecting session - server at capacity")
		return fmt.Errorf("%w: %d/%d sessions active", core.ErrSessionLimit, current, m.maxSessions)
	}
	m.reserved++
	return nil
}

func (m *SessionManager) release() {
	m.mu.Lock()
	m.reserved--
	m.mu.Unlock()
}

// insert adds c unless a session with its id is already live, in which case
// the live entry is returned and added is false
func (m *SessionManager) insert(c *session.Controller) (e *entry, added bool) {
	now := m.clock()

	m.mu.Lock()
	if existing, ok := m.sessions[c.ID()]; ok {
		m.mu.Unlock()
		return existing, false
	}
	e = &entry{ctrl: c, createdAt: now}
	e.touch(now)
	m.sessions[c.ID()] = e
	count := len(m.sessions)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SetActiveSessions(count)
	}
	return e, true
}

// Create starts a new session
func (m *SessionManager) Create(ctx context.Context, cfg encounter.Config, units []encounter.UnitSpec) (*session.Controller, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.reserve(); err != nil {
		return nil, err
	}
	defer m.release()

	c, err := session.CreateSession(cfg, units, m.controllerOptions()...)
	if err != nil {
		m.recordRejection(err)
		return nil, err
	}
	m.insert(c)

	m.logger.Info().
		Str("game_id", c.ID()).
		Int("active_sessions", m.Count()).
		Msg("Session created")
	return c, nil
}

// Load returns a live session, restoring it from the event store if it is
// not in memory
func (m *SessionManager) Load(ctx context.Context, gameID string) (*session.Controller, error) {
	if c, err := m.Get(gameID); err == nil {
		return c, nil
	}
	if m.store == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, gameID)
	}

	evts, err := m.store.LoadEvents(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", gameID, err)
	}
	if len(evts) == 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, gameID)
	}

	if err := m.reserve(); err != nil {
		return nil, err
	}
	defer m.release()

	c, err := session.Restore(gameID, evts, m.controllerOptions()...)
	if err != nil {
		return nil, err
	}

	// a concurrent Load may have won
	if e, added := m.insert(c); !added {
		return e.ctrl, nil
	}

	m.logger.Info().
		Str("game_id", gameID).
		Int("events", len(evts)).
		Msg("Session restored from store")
	return c, nil
}

func (m *SessionManager) lookup(gameID string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.sessions[gameID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, gameID)
	}
	return e, nil
}

// Get returns a live session
func (m *SessionManager) Get(gameID string) (*session.Controller, error) {
	e, err := m.lookup(gameID)
	if err != nil {
		return nil, err
	}
	e.touch(m.clock())
	return e.ctrl, nil
}

// Submit runs fn against a session. expectedSeq is the log length the caller
// last saw; a different length fails with ErrConflict unless it is
// AnyVersion. A non-empty key makes the call idempotent: a repeated key
// returns the first outcome without running fn again.
func (m *SessionManager) Submit(ctx context.Context, gameID string, expectedSeq int, key string, fn SubmitFunc) ([]events.GameEvent, error) {
	e, err := m.lookup(gameID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if cached, ok := m.idempotency.Check(gameID, key); ok {
		m.logger.Debug().
			Str("game_id", gameID).
			Str("idempotency_key", key).
			Msg("Returning cached outcome")
		return cached.Events, cached.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if expectedSeq != AnyVersion {
		if have := e.ctrl.Version(); have != expectedSeq {
			err := fmt.Errorf("%w: expected log length %d, have %d", core.ErrConflict, expectedSeq, have)
			m.recordRejection(err)
			return nil, err
		}
	}

	evts, err := fn(e.ctrl)
	e.touch(m.clock())
	m.recordRejection(err)
	m.idempotency.Store(gameID, key, Outcome{Events: evts, Err: err})
	return evts, err
}

// RunAITurn lets the AI act for side in the current phase of a session
func (m *SessionManager) RunAITurn(ctx context.Context, gameID string, side core.GameSide) (ai.Report, error) {
	e, err := m.lookup(gameID)
	if err != nil {
		return ai.Report{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	report, err := m.runner.RunTurn(ctx, e.ctrl, side)
	e.touch(m.clock())
	if m.metrics != nil {
		for i := 0; i < report.Rejected; i++ {
			m.metrics.RecordRejection(core.ErrValidation)
		}
	}
	return report, err
}

// Remove drops a session from memory. Its journal is kept.
func (m *SessionManager) Remove(gameID string) error {
	m.mu.Lock()
	_, ok := m.sessions[gameID]
	delete(m.sessions, gameID)
	count := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", core.ErrSessionNotFound, gameID)
	}
	m.idempotency.Forget(gameID)
	if m.metrics != nil {
		m.metrics.SetActiveSessions(count)
	}
	m.logger.Info().Str("game_id", gameID).Msg("Session removed")
	return nil
}

// Count returns the number of live sessions
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// IDs returns the ids of the live sessions in sorted order
func (m *SessionManager) IDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

func (m *SessionManager) recordRejection(err error) {
	if m.metrics != nil && err != nil {
		m.metrics.RecordRejection(err)
	}
}

// Start runs the cleanup loop until Close
func (m *SessionManager) Start() {
	m.wg.Add(1)
	go m.runCleanup()
}

// Close stops the cleanup loop
func (m *SessionManager) Close() {
	m.cancel()
	m.wg.Wait()
}

func (m *SessionManager) runCleanup() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.safeCleanup()
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *SessionManager) safeCleanup() {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().
				Interface("panic", r).
				Msg("Session cleanup panicked")
		}
	}()
	m.Cleanup(m.clock())
}

// Cleanup removes finished sessions idle longer than the finished TTL and
// unfinished ones idle longer than the session TTL. It returns the number
// removed.
func (m *SessionManager) Cleanup(now time.Time) int {
	// Phase 1: collect references so session locks are never taken under the manager lock
	m.mu.RLock()
	refs := make(map[string]*entry, len(m.sessions))
	for id, e := range m.sessions {
		refs[id] = e
	}
	m.mu.RUnlock()

	// Phase 2: check each session on its own
	var toDelete []string
	for id, e := range refs {
		idle := now.Sub(e.idleSince())

		reason := ""
		if e.ctrl.IsGameOver() {
			if m.finishedTTL > 0 && idle > m.finishedTTL {
				reason = "finished session TTL expired"
			}
		} else if m.sessionTTL > 0 && idle > m.sessionTTL {
			reason = "session abandoned (no activity)"
		}

		if reason != "" {
			toDelete = append(toDelete, id)
			m.logger.Info().
				Str("game_id", id).
				Str("reason", reason).
				Dur("age", now.Sub(e.createdAt)).
				Dur("inactive", idle).
				Msg("Cleaning up session")
		}
	}
	if len(toDelete) == 0 {
		return 0
	}

	// Phase 3: remove with a single lock, skipping sessions replaced meanwhile
	removed := 0
	m.mu.Lock()
	for _, id := range toDelete {
		if e, ok := m.sessions[id]; ok && e == refs[id] {
			delete(m.sessions, id)
			removed++
		}
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	for _, id := range toDelete {
		m.idempotency.Forget(id)
	}
	if m.metrics != nil {
		m.metrics.SetActiveSessions(remaining)
	}
	m.logger.Info().
		Int("cleaned", removed).
		Int("remaining", remaining).
		Msg("Session cleanup completed")
	return removed
}
