// Package session owns a GameSession and is the only way to change it. Every
// operation validates against the current snapshot, builds one transaction of
// events, appends it atomically and swaps in the reduced snapshot.
package session

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/dice"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/encounter"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/eventlog"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/events"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/mapgen"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/processor"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/rules"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/state"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/states"
)

// GameSession is the identity, configuration and log of one encounter
type GameSession struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Config    encounter.Config
	Roster    []encounter.UnitSpec
	Log       *eventlog.Log
}

// Controller serializes every mutation of one session. Reads share a
// read lock and see the last committed snapshot.
type Controller struct {
	mu        sync.RWMutex
	publishMu sync.Mutex

	session  *GameSession
	snapshot *state.GameState

	machine   *states.Machine
	processor *processor.CombatProcessor
	victory   *rules.VictoryEvaluator
	moves     *rules.LegalMoveCalculator

	opts   *options
	logger zerolog.Logger
}

// CreateSession starts a session: terrain is generated, units without a
// position are deployed, the roster is validated and the GameCreated and
// TurnStarted(1) events are committed as one transaction.
func CreateSession(cfg encounter.Config, units []encounter.UnitSpec, opts ...Option) (*Controller, error) {
	o := newOptions(opts)

	cfg = cfg.Clone()
	if cfg.Seed == 0 {
		seed, err := dice.NewSeed()
		if err != nil {
			return nil, err
		}
		cfg.Seed = seed
	}

	roster := &encounter.Roster{Config: cfg, Units: make([]encounter.UnitSpec, len(units))}
	for i, u := range units {
		roster.Units[i] = u.Clone()
	}
	roster.Normalize()

	var reserved []core.Hex
	for _, u := range roster.Units {
		if u.Position != nil {
			reserved = append(reserved, *u.Position)
		}
	}
	gen := mapgen.NewSeededGenerator(cfg.Seed)
	roster.Config.Blocked = gen.Terrain(roster.Config, reserved)
	deployed, err := gen.Deploy(roster.Config, roster.Units)
	if err != nil {
		return nil, err
	}
	roster.Units = deployed
	if err := encounter.Validate(roster); err != nil {
		return nil, err
	}

	id := o.sessionID
	if id == "" {
		id = o.newID()
	}
	c := newController(id, o)
	c.session.Config = roster.Config
	c.session.Roster = roster.Units
	c.session.CreatedAt = o.clock()

	_, err = c.mutate("", "create", func(t *txn) error {
		t.add(events.GameCreated{Config: roster.Config, Units: roster.Units})
		t.add(events.TurnStarted{Turn: 1})
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info().
		Int("units", len(roster.Units)).
		Int64("seed", cfg.Seed).
		Str("map", mapgen.Describe(roster.Config)).
		Msg("Created game session")
	return c, nil
}

func newController(id string, o *options) *Controller {
	logger := o.logger.With().Str("component", "SessionController").Str("game_id", id).Logger()
	return &Controller{
		session:  &GameSession{ID: id, Log: eventlog.New()},
		snapshot: state.Empty(),
		machine:  states.NewMachine(logger),
		processor: processor.NewCombatProcessor(logger,
			processor.WithHitLocation(o.hitLocation),
			processor.WithModifiers(o.modifiers),
		),
		victory: rules.NewVictoryEvaluator(logger),
		moves:   rules.NewLegalMoveCalculator(),
		opts:    o,
		logger:  logger,
	}
}

// ID returns the session id
func (c *Controller) ID() string {
	return c.session.ID
}

// Bus returns the event bus committed events are published to
func (c *Controller) Bus() *events.EventBus {
	return c.opts.bus
}

// State returns a copy of the current snapshot
func (c *Controller) State() *state.GameState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot.Clone()
}

// Fingerprint returns the fingerprint of the current snapshot
func (c *Controller) Fingerprint() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot.Fingerprint()
}

// Version returns the length of the log, used as an optimistic concurrency token
func (c *Controller) Version() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.Log.Len()
}

// Session returns a copy of the session with its own copy of the log
func (c *Controller) Session() *GameSession {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := *c.session
	out.Config = c.session.Config.Clone()
	out.Roster = slices.Clone(c.session.Roster)
	// the events were validated when they were appended
	out.Log, _ = eventlog.FromEvents(c.session.Log.Events())
	return &out
}

// Events returns a copy of the log
func (c *Controller) Events() []events.GameEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.Log.Events()
}

// IsGameOver reports whether a GameEnded event has been appended
func (c *Controller) IsGameOver() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot.Ended()
}

// GetResult evaluates the victory conditions against the current snapshot
func (c *Controller) GetResult() rules.Result {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.victory.Evaluate(c.snapshot)
}

// CanAdvancePhase reports whether the current phase may be left
func (c *Controller) CanAdvancePhase() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.snapshot.Ended() && c.machine.CanAdvance(c.snapshot)
}

// RollInitiative rolls initiative for the current turn
func (c *Controller) RollInitiative() ([]events.GameEvent, error) {
	return c.mutate("", "roll initiative", func(t *txn) error {
		gs := t.scratch
		if gs.Phase != core.PhaseInitiative {
			return core.PhaseGuardf("initiative is rolled in the %s phase, current phase is %s", core.PhaseInitiative, gs.Phase)
		}
		if gs.InitiativeRolled {
			return core.PhaseGuardf("initiative already rolled for turn %d", gs.Turn)
		}
		t.add(states.RollInitiative(states.NewPhaseContext(gs, t.roller, c.logger)))
		return nil
	})
}

// AdvancePhase leaves the current phase. The guard requires every unit that
// can act to be locked in Movement and attack phases.
func (c *Controller) AdvancePhase() ([]events.GameEvent, error) {
	return c.mutate("", "advance phase", func(t *txn) error {
		payloads, err := c.machine.Advance(states.NewPhaseContext(t.scratch, t.roller, c.logger))
		if err != nil {
			return err
		}
		t.add(payloads...)
		return nil
	})
}

// ApplyMovement moves a unit and locks it for the Movement phase
func (c *Controller) ApplyMovement(unitID string, target core.Hex, facing core.Facing, mt core.MovementType) ([]events.GameEvent, error) {
	return c.mutate(unitID, "move", func(t *txn) error {
		u, err := t.pendingUnit(unitID, core.PhaseMovement)
		if err != nil {
			return err
		}
		return c.declareMovement(t, u, target, facing, mt)
	})
}

// LockMovement commits a unit to standing still. It goes through the same
// validation as ApplyMovement.
func (c *Controller) LockMovement(unitID string) ([]events.GameEvent, error) {
	return c.mutate(unitID, "lock movement", func(t *txn) error {
		u, err := t.pendingUnit(unitID, core.PhaseMovement)
		if err != nil {
			return err
		}
		return c.declareMovement(t, u, u.Position, u.Facing, core.MoveStationary)
	})
}

func (c *Controller) declareMovement(t *txn, u *state.UnitState, target core.Hex, facing core.Facing, mt core.MovementType) error {
	distance, err := c.moves.ValidateMove(t.scratch, u, target, facing, mt)
	if err != nil {
		return err
	}
	t.add(events.MovementDeclared{
		UnitID:       u.ID,
		From:         u.Position,
		To:           target,
		Facing:       facing,
		MovementType: mt,
		Distance:     distance,
		Heat:         rules.MovementHeat(mt, distance),
	})
	return nil
}

// Pass locks a unit without acting in the current lock phase
func (c *Controller) Pass(unitID string) ([]events.GameEvent, error) {
	return c.mutate(unitID, "pass", func(t *txn) error {
		if !t.scratch.Phase.RequiresLock() {
			return core.PhaseGuardf("nothing to pass in the %s phase", t.scratch.Phase)
		}
		if _, err := t.pendingUnit(unitID, t.scratch.Phase); err != nil {
			return err
		}
		t.add(events.UnitPassed{UnitID: unitID})
		return nil
	})
}

// Withdraw takes a unit out of the fight during the Movement phase
func (c *Controller) Withdraw(unitID string) ([]events.GameEvent, error) {
	return c.mutate(unitID, "withdraw", func(t *txn) error {
		if _, err := t.pendingUnit(unitID, core.PhaseMovement); err != nil {
			return err
		}
		t.add(events.UnitWithdrawn{UnitID: unitID})
		return nil
	})
}

// ApplyAttack fires weaponIDs at target. The attack, its damage and any
// destruction are appended as one transaction.
func (c *Controller) ApplyAttack(attackerID, targetID string, weaponIDs []string) ([]events.GameEvent, error) {
	return c.mutate(attackerID, "attack", func(t *txn) error {
		if _, err := t.pendingUnit(attackerID, core.PhaseWeaponAttack); err != nil {
			return err
		}
		payloads, err := c.processor.ResolveAttack(context.Background(), t.scratch, attackerID, targetID, weaponIDs, t.roller)
		if err != nil {
			return err
		}
		t.add(payloads...)
		return nil
	})
}

// ApplyPhysicalAttack punches or kicks an adjacent enemy
func (c *Controller) ApplyPhysicalAttack(attackerID, targetID string, kind core.PhysicalKind) ([]events.GameEvent, error) {
	return c.mutate(attackerID, "physical attack", func(t *txn) error {
		if _, err := t.pendingUnit(attackerID, core.PhasePhysicalAttack); err != nil {
			return err
		}
		payloads, err := c.processor.ResolvePhysical(context.Background(), t.scratch, attackerID, targetID, kind, t.roller)
		if err != nil {
			return err
		}
		t.add(payloads...)
		return nil
	})
}

// Concede ends the game in favour of the other side
func (c *Controller) Concede(side core.GameSide) ([]events.GameEvent, error) {
	return c.mutate("", "concede", func(t *txn) error {
		if !side.Valid() {
			return core.Validationf("invalid side %s", side)
		}
		t.add(events.GameEnded{Winner: side.Opponent(), Reason: rules.ReasonConcede})
		return nil
	})
}

// txn collects the events of one transaction, applying each to a scratch
// state as it is added
type txn struct {
	c       *Controller
	id      string
	scratch *state.GameState
	roller  *dice.Roller
	evts    []events.GameEvent
}

func (t *txn) add(payloads ...events.Payload) {
	for _, p := range payloads {
		evt := events.GameEvent{
			ID:        t.c.opts.newID(),
			GameID:    t.c.session.ID,
			Sequence:  t.scratch.LastSequence + 1,
			Timestamp: t.c.opts.clock(),
			Type:      p.EventType(),
			Turn:      t.scratch.Turn,
			Phase:     t.scratch.Phase,
			TxID:      t.id,
			Payload:   p,
		}
		t.evts = append(t.evts, evt)
		t.scratch = state.Apply(t.scratch, evt)
	}
}

// pendingUnit returns a unit that still owes an action in phase
func (t *txn) pendingUnit(unitID string, phase core.GamePhase) (*state.UnitState, error) {
	gs := t.scratch
	if gs.Phase != phase {
		return nil, core.PhaseGuardf("action belongs to the %s phase, current phase is %s", phase, gs.Phase)
	}
	u, ok := gs.Unit(unitID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnitNotFound, unitID)
	}
	if !u.CanAct() {
		return nil, core.Validationf("unit %s cannot act", unitID)
	}
	if u.Locked() {
		return nil, core.ErrDoubleLock
	}
	return u, nil
}

// mutate runs build against a scratch copy of the snapshot and commits the
// resulting transaction. Victory is evaluated on the scratch state and a
// GameEnded event joins the same transaction. A rejected or failed build
// leaves the session untouched.
//
// Lock order is publishMu then mu. publishMu is held until every bus handler
// and observer has returned, so commits are published in order; mu is
// released before publishing, so handlers may read the session. Handlers must
// not mutate it.
func (c *Controller) mutate(unitID, action string, build func(t *txn) error) ([]events.GameEvent, error) {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	c.mu.Lock()
	locked := true
	defer func() {
		if locked {
			c.mu.Unlock()
		}
	}()

	gs := c.snapshot
	if gs.Ended() {
		return nil, core.WrapActionError(unitID, action, core.ErrTerminalState)
	}

	first := c.session.Log.Len() + 1
	t := &txn{
		c:       c,
		id:      c.opts.newID(),
		scratch: gs,
		roller:  dice.ForSequence(c.session.Config.Seed, first),
	}
	if err := build(t); err != nil {
		err = core.WrapActionError(unitID, action, err)
		c.logger.Debug().
			Err(err).
			Str("unit_id", unitID).
			Str("phase", gs.Phase.String()).
			Str("action", action).
			Msg("Action rejected")
		return nil, err
	}
	if len(t.evts) == 0 {
		return nil, nil
	}

	if !t.scratch.Ended() && t.scratch.Status == core.StatusActive {
		if res := c.victory.Evaluate(t.scratch); res.Over {
			t.add(events.GameEnded{Winner: res.Winner, Reason: res.Reason})
		}
	}

	if j := c.opts.journal; j != nil {
		if err := j.AppendEvents(c.session.ID, t.evts); err != nil {
			c.logger.Error().Err(err).Str("tx_id", t.id).Msg("Journal append failed")
			return nil, core.WrapActionError(unitID, action, fmt.Errorf("journal append: %w", err))
		}
	}
	if err := c.session.Log.AppendTx(t.evts); err != nil {
		c.logger.Error().Err(err).Str("tx_id", t.id).Msg("Log append failed")
		if j := c.opts.journal; j != nil {
			if terr := j.TruncateEvents(c.session.ID, first-1); terr != nil {
				c.logger.Error().Err(terr).Msg("Journal rollback failed")
			}
		}
		return nil, core.WrapActionError(unitID, action, err)
	}

	c.snapshot = t.scratch
	c.session.UpdatedAt = t.evts[len(t.evts)-1].Timestamp
	committed := slices.Clone(t.evts)

	c.logger.Debug().
		Str("tx_id", t.id).
		Str("action", action).
		Int("first_seq", first).
		Int("count", len(committed)).
		Msg("Transaction committed")

	snapshot := c.snapshot
	c.mu.Unlock()
	locked = false

	for _, evt := range committed {
		c.opts.bus.Publish(evt)
	}
	c.notify(snapshot, Change{GameID: c.session.ID, Kind: ChangeCommit, Events: committed})
	return committed, nil
}

func (c *Controller) notify(snapshot *state.GameState, change Change) {
	for _, obs := range c.opts.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error().Interface("panic", r).Str("kind", string(change.Kind)).Msg("Observer panicked")
				}
			}()
			obs.Observe(snapshot, change)
		}()
	}
}
