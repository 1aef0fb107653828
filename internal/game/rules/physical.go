package rules

import (
	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/state"
)

// PhysicalDamage returns the damage of a punch (tonnage/10) or kick (tonnage/5), rounded up
func PhysicalDamage(tonnage int, kind core.PhysicalKind) int {
	div := 10
	if kind == core.PhysicalKick {
		div = 5
	}
	return (tonnage + div - 1) / div
}

// PhysicalTargetNumber returns the target number of a punch or kick. Both use
// piloting skill; kicks are two easier.
func PhysicalTargetNumber(attacker, target *state.UnitState, kind core.PhysicalKind) (int, []Modifier) {
	mods := []Modifier{
		{Name: "attacker_movement", Value: AttackerMovementModifier(attacker.MovementType)},
		{Name: "target_movement", Value: TargetMovementModifier(target)},
	}
	if kind == core.PhysicalKick {
		mods = append(mods, Modifier{Name: "kick", Value: -2})
	}
	return TargetNumber(attacker.Piloting, mods), mods
}

// CanStrike reports whether the attacker has the limbs for the physical attack:
// a punch needs one working arm, a kick both legs
func CanStrike(u *state.UnitState, kind core.PhysicalKind) bool {
	if kind == core.PhysicalKick {
		return !u.LocationDestroyed(core.LocLeftLeg) && !u.LocationDestroyed(core.LocRightLeg)
	}
	return !u.LocationDestroyed(core.LocLeftArm) || !u.LocationDestroyed(core.LocRightArm)
}
