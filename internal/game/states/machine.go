// Package states implements the phase cycle of a turn. The machine holds no
// session state: it inspects a snapshot and returns the event payloads that
// perform a transition, leaving the append to the caller.
package states

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/events"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/state"
)

// State represents a phase with lifecycle callbacks
type State interface {
	// Phase returns the GamePhase this state represents
	Phase() core.GamePhase

	// Enter returns the payloads appended when the phase begins
	Enter(ctx *PhaseContext) ([]events.Payload, error)

	// Exit returns the payloads appended before the phase is left
	Exit(ctx *PhaseContext) ([]events.Payload, error)

	// Validate is the guard that must pass before the phase can be left
	Validate(ctx *PhaseContext) error
}

// Machine drives the fixed phase cycle
type Machine struct {
	states map[core.GamePhase]State
	logger zerolog.Logger
}

// NewMachine creates a machine with the default phase handlers
func NewMachine(logger zerolog.Logger) *Machine {
	m := &Machine{
		states: make(map[core.GamePhase]State),
		logger: logger.With().Str("component", "phase_machine").Logger(),
	}
	m.registerDefaultStates()
	return m
}

func (m *Machine) registerDefaultStates() {
	m.RegisterState(NewInitiativeState())
	m.RegisterState(NewMovementState())
	m.RegisterState(NewWeaponAttackState())
	m.RegisterState(NewPhysicalAttackState())
	m.RegisterState(NewHeatState())
	m.RegisterState(NewEndState())
}

// RegisterState replaces the handler for a phase
func (m *Machine) RegisterState(s State) {
	m.states[s.Phase()] = s
}

// CanAdvance reports whether the current phase may be left
func (m *Machine) CanAdvance(gs *state.GameState) bool {
	return m.Guard(&PhaseContext{State: gs, Logger: m.logger}) == nil
}

// Guard returns the reason the current phase cannot be left, or nil
func (m *Machine) Guard(ctx *PhaseContext) error {
	gs := ctx.State
	if gs.Ended() {
		return core.ErrTerminalState
	}
	current, ok := m.states[gs.Phase]
	if !ok {
		return fmt.Errorf("no state implementation for phase %s", gs.Phase)
	}
	return current.Validate(ctx)
}

// Advance returns the payloads of one transition in append order:
// exit payloads, PhaseChanged, TurnStarted when the turn wraps, enter payloads.
// A failed guard returns an error wrapping core.ErrPhaseGuard and no payloads.
func (m *Machine) Advance(ctx *PhaseContext) ([]events.Payload, error) {
	if err := m.Guard(ctx); err != nil {
		return nil, err
	}

	gs := ctx.State
	from := gs.Phase
	to := from.Next()
	if !from.CanTransitionTo(to) {
		return nil, fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	target, ok := m.states[to]
	if !ok {
		return nil, fmt.Errorf("no state implementation for phase %s", to)
	}

	var out []events.Payload
	exit, err := m.states[from].Exit(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to exit phase %s: %w", from, err)
	}
	out = append(out, exit...)

	out = append(out, events.PhaseChanged{From: from, To: to})
	if from == core.PhaseEnd {
		out = append(out, events.TurnStarted{Turn: gs.Turn + 1})
	}

	enter, err := target.Enter(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enter phase %s: %w", to, err)
	}
	out = append(out, enter...)

	ctx.Logger.Debug().
		Str("from_phase", from.String()).
		Str("to_phase", to.String()).
		Int("turn", gs.Turn).
		Int("payloads", len(out)).
		Msg("Phase transition prepared")

	return out, nil
}
