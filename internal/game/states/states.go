package states

import (
	"strings"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/events"
)

// InitiativeState rolls initiative on the way out if nobody asked for it yet
type InitiativeState struct{}

func NewInitiativeState() State {
	return &InitiativeState{}
}

func (s *InitiativeState) Phase() core.GamePhase {
	return core.PhaseInitiative
}

func (s *InitiativeState) Enter(ctx *PhaseContext) ([]events.Payload, error) {
	ctx.Logger.Debug().Int("turn", ctx.State.Turn+1).Msg("Entering Initiative phase")
	return nil, nil
}

func (s *InitiativeState) Exit(ctx *PhaseContext) ([]events.Payload, error) {
	if ctx.State.InitiativeRolled {
		return nil, nil
	}
	return []events.Payload{RollInitiative(ctx)}, nil
}

func (s *InitiativeState) Validate(ctx *PhaseContext) error {
	return nil
}

// lockState is shared by the three phases in which every eligible unit must commit
type lockState struct {
	phase core.GamePhase
}

// NewMovementState creates the Movement phase handler
func NewMovementState() State {
	return &lockState{phase: core.PhaseMovement}
}

// NewWeaponAttackState creates the WeaponAttack phase handler
func NewWeaponAttackState() State {
	return &lockState{phase: core.PhaseWeaponAttack}
}

// NewPhysicalAttackState creates the PhysicalAttack phase handler
func NewPhysicalAttackState() State {
	return &lockState{phase: core.PhasePhysicalAttack}
}

func (s *lockState) Phase() core.GamePhase {
	return s.phase
}

func (s *lockState) Enter(ctx *PhaseContext) ([]events.Payload, error) {
	ctx.Logger.Debug().
		Str("phase", s.phase.String()).
		Strs("pending", ctx.State.PendingUnits()).
		Msg("Entering lock phase")
	return nil, nil
}

func (s *lockState) Exit(ctx *PhaseContext) ([]events.Payload, error) {
	return nil, nil
}

// Validate refuses to leave the phase while any unit that can act is unlocked
func (s *lockState) Validate(ctx *PhaseContext) error {
	pending := ctx.State.PendingUnits()
	if len(pending) > 0 {
		return core.PhaseGuardf("%s phase has unlocked units: %s", s.phase, strings.Join(pending, ", "))
	}
	return nil
}

// HeatState dissipates heat for every operational unit on entry
type HeatState struct{}

func NewHeatState() State {
	return &HeatState{}
}

func (s *HeatState) Phase() core.GamePhase {
	return core.PhaseHeat
}

func (s *HeatState) Enter(ctx *PhaseContext) ([]events.Payload, error) {
	var out []events.Payload
	for _, id := range ctx.State.UnitIDs() {
		u := ctx.State.Units[id]
		if !u.Operational() {
			continue
		}
		dissipated := min(u.Heat, u.HeatSinks)
		out = append(out, events.HeatResolved{
			UnitID:     id,
			Previous:   u.Heat,
			Dissipated: dissipated,
			Heat:       u.Heat - dissipated,
		})
	}
	return out, nil
}

func (s *HeatState) Exit(ctx *PhaseContext) ([]events.Payload, error) {
	return nil, nil
}

func (s *HeatState) Validate(ctx *PhaseContext) error {
	return nil
}

// EndState closes the turn
type EndState struct{}

func NewEndState() State {
	return &EndState{}
}

func (s *EndState) Phase() core.GamePhase {
	return core.PhaseEnd
}

func (s *EndState) Enter(ctx *PhaseContext) ([]events.Payload, error) {
	ctx.Logger.Debug().Int("turn", ctx.State.Turn).Msg("Turn ending")
	return nil, nil
}

func (s *EndState) Exit(ctx *PhaseContext) ([]events.Payload, error) {
	return nil, nil
}

func (s *EndState) Validate(ctx *PhaseContext) error {
	return nil
}
