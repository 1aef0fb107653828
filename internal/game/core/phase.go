package core

import "fmt"

// GamePhase represents the current phase of a combat turn
type GamePhase int

const (
	// PhaseInitiative - both sides roll to decide move order
	PhaseInitiative GamePhase = iota

	// PhaseMovement - every operational unit moves or stands still
	PhaseMovement

	// PhaseWeaponAttack - ranged weapon fire is declared and resolved
	PhaseWeaponAttack

	// PhasePhysicalAttack - punches and kicks between adjacent units
	PhasePhysicalAttack

	// PhaseHeat - heat sinks dissipate accumulated heat
	PhaseHeat

	// PhaseEnd - end of turn bookkeeping
	PhaseEnd
)

var phaseNames = [...]string{
	PhaseInitiative:     "Initiative",
	PhaseMovement:       "Movement",
	PhaseWeaponAttack:   "WeaponAttack",
	PhasePhysicalAttack: "PhysicalAttack",
	PhaseHeat:           "Heat",
	PhaseEnd:            "End",
}

// AllPhases returns the phases of one turn in order
func AllPhases() []GamePhase {
	return []GamePhase{PhaseInitiative, PhaseMovement, PhaseWeaponAttack, PhasePhysicalAttack, PhaseHeat, PhaseEnd}
}

// String returns the string representation of a GamePhase
func (p GamePhase) String() string {
	if p.Valid() {
		return phaseNames[p]
	}
	return fmt.Sprintf("Unknown(%d)", int(p))
}

// Valid reports whether p is one of the six phases
func (p GamePhase) Valid() bool {
	return p >= PhaseInitiative && p <= PhaseEnd
}

// Next returns the phase that follows p; End wraps to Initiative
func (p GamePhase) Next() GamePhase {
	if p == PhaseEnd {
		return PhaseInitiative
	}
	return p + 1
}

// RequiresLock returns true if every eligible unit must commit before the phase can end
func (p GamePhase) RequiresLock() bool {
	return p == PhaseMovement || p.IsAttack()
}

// IsAttack returns true for the two attack phases
func (p GamePhase) IsAttack() bool {
	return p == PhaseWeaponAttack || p == PhasePhysicalAttack
}

// CanTransitionTo checks if a transition from this phase to the target phase is allowed
func (p GamePhase) CanTransitionTo(target GamePhase) bool {
	return p.Valid() && p.Next() == target
}

// MarshalText implements encoding.TextMarshaler
func (p GamePhase) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid phase %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (p *GamePhase) UnmarshalText(b []byte) error {
	parsed, err := ParsePhase(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePhase converts a string to a GamePhase
func ParsePhase(s string) (GamePhase, error) {
	for i, name := range phaseNames {
		if name == s {
			return GamePhase(i), nil
		}
	}
	return PhaseInitiative, fmt.Errorf("unknown phase %q", s)
}
