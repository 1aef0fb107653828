package events

import (
	"encoding/json"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/encounter"
)

// Payload is the type-specific body of a GameEvent. The set of payloads is
// closed: only types in this package implement it.
type Payload interface {
	EventType() Type
	sealed()
}

// GameCreated opens every log and carries everything needed to rebuild the session
type GameCreated struct {
	Config encounter.Config     `json:"config"`
	Units  []encounter.UnitSpec `json:"units"`
}

// TurnStarted is appended at creation and on every End to Initiative transition
type TurnStarted struct {
	Turn int `json:"turn"`
}

// PhaseChanged records one step of the phase cycle
type PhaseChanged struct {
	From core.GamePhase `json:"from"`
	To   core.GamePhase `json:"to"`
}

// InitiativeRolled records both rolls and the outcome
type InitiativeRolled struct {
	PlayerRoll   int           `json:"player_roll"`
	OpponentRoll int           `json:"opponent_roll"`
	Rerolls      int           `json:"rerolls"`
	Winner       core.GameSide `json:"winner"`
	FirstMover   core.GameSide `json:"first_mover"`
}

// MovementDeclared moves a unit and locks it for the Movement phase
type MovementDeclared struct {
	UnitID       string            `json:"unit_id"`
	From         core.Hex          `json:"from"`
	To           core.Hex          `json:"to"`
	Facing       core.Facing       `json:"facing"`
	MovementType core.MovementType `json:"movement_type"`
	Distance     int               `json:"distance"`
	Heat         int               `json:"heat"`
}

// UnitPassed locks a unit without acting
type UnitPassed struct {
	UnitID string `json:"unit_id"`
}

// UnitWithdrawn removes a unit from play without destroying it
type UnitWithdrawn struct {
	UnitID string `json:"unit_id"`
}

// AttackResolved is the outcome of one weapon fired at a target
type AttackResolved struct {
	AttackerID   string            `json:"attacker_id"`
	TargetID     string            `json:"target_id"`
	WeaponID     string            `json:"weapon_id"`
	TargetNumber int               `json:"target_number"`
	Roll         int               `json:"roll"`
	Hit          bool              `json:"hit"`
	Range        core.RangeBracket `json:"range"`
	Arc          core.Arc          `json:"arc"`
	Location     core.Location     `json:"location,omitempty"`
	Damage       int               `json:"damage"`
	Heat         int               `json:"heat"`
	AmmoType     string            `json:"ammo_type,omitempty"`
	Modifiers    map[string]int    `json:"modifiers,omitempty"`
}

// PhysicalAttackResolved is the outcome of a punch or kick
type PhysicalAttackResolved struct {
	AttackerID   string            `json:"attacker_id"`
	TargetID     string            `json:"target_id"`
	Kind         core.PhysicalKind `json:"kind"`
	TargetNumber int               `json:"target_number"`
	Roll         int               `json:"roll"`
	Hit          bool              `json:"hit"`
	Arc          core.Arc          `json:"arc"`
	Location     core.Location     `json:"location,omitempty"`
	Damage       int               `json:"damage"`
}

// DamageApplied removes armor then structure at one location.
// Transferred marks damage carried over from a destroyed location.
type DamageApplied struct {
	UnitID      string        `json:"unit_id"`
	Location    core.Location `json:"location"`
	Rear        bool          `json:"rear"`
	Damage      int           `json:"damage"`
	Transferred bool          `json:"transferred,omitempty"`
}

// PilotHit records a wound and the consciousness roll that followed it
type PilotHit struct {
	UnitID       string `json:"unit_id"`
	Wounds       int    `json:"wounds"`
	TargetNumber int    `json:"target_number"`
	Roll         int    `json:"roll"`
	Conscious    bool   `json:"conscious"`
}

// HeatResolved sets a unit's heat after dissipation
type HeatResolved struct {
	UnitID     string `json:"unit_id"`
	Previous   int    `json:"previous"`
	Dissipated int    `json:"dissipated"`
	Heat       int    `json:"heat"`
}

// UnitDestroyed marks a unit as destroyed
type UnitDestroyed struct {
	UnitID string `json:"unit_id"`
	Reason string `json:"reason"`
}

// GameEnded is terminal; nothing that changes combat state may follow it
type GameEnded struct {
	Winner core.GameSide `json:"winner"`
	Reason string        `json:"reason"`
}

// Unknown keeps the raw body of an event type this version does not understand
type Unknown struct {
	TypeName string          `json:"type_name"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

func (GameCreated) EventType() Type            { return TypeGameCreated }
func (TurnStarted) EventType() Type            { return TypeTurnStarted }
func (PhaseChanged) EventType() Type           { return TypePhaseChanged }
func (InitiativeRolled) EventType() Type       { return TypeInitiativeRolled }
func (MovementDeclared) EventType() Type       { return TypeMovementDeclared }
func (UnitPassed) EventType() Type             { return TypeUnitPassed }
func (UnitWithdrawn) EventType() Type          { return TypeUnitWithdrawn }
func (AttackResolved) EventType() Type         { return TypeAttackResolved }
func (PhysicalAttackResolved) EventType() Type { return TypePhysicalAttackResolved }
func (DamageApplied) EventType() Type          { return TypeDamageApplied }
func (PilotHit) EventType() Type               { return TypePilotHit }
func (HeatResolved) EventType() Type           { return TypeHeatResolved }
func (UnitDestroyed) EventType() Type          { return TypeUnitDestroyed }
func (GameEnded) EventType() Type              { return TypeGameEnded }
func (Unknown) EventType() Type                { return TypeUnknown }

func (GameCreated) sealed()            {}
func (TurnStarted) sealed()            {}
func (PhaseChanged) sealed()           {}
func (InitiativeRolled) sealed()       {}
func (MovementDeclared) sealed()       {}
func (UnitPassed) sealed()             {}
func (UnitWithdrawn) sealed()          {}
func (AttackResolved) sealed()         {}
func (PhysicalAttackResolved) sealed() {}
func (DamageApplied) sealed()          {}
func (PilotHit) sealed()               {}
func (HeatResolved) sealed()           {}
func (UnitDestroyed) sealed()          {}
func (GameEnded) sealed()              {}
func (Unknown) sealed()                {}

// UnitID returns the unit an event is about, or "" for game-level events
func UnitID(p Payload) string {
	switch e := p.(type) {
	case MovementDeclared:
		return e.UnitID
	case UnitPassed:
		return e.UnitID
	case UnitWithdrawn:
		return e.UnitID
	case AttackResolved:
		return e.AttackerID
	case PhysicalAttackResolved:
		return e.AttackerID
	case DamageApplied:
		return e.UnitID
	case PilotHit:
		return e.UnitID
	case HeatResolved:
		return e.UnitID
	case UnitDestroyed:
		return e.UnitID
	default:
		return ""
	}
}

// MutatesCombat reports whether an event changes combat state. Only these are
// refused once the game has ended.
func MutatesCombat(t Type) bool {
	switch t {
	case TypeGameCreated, TypeGameEnded, TypeUnknown:
		return false
	default:
		return true
	}
}
