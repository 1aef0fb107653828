package rules

import (
	"sort"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/dice"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/encounter"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/state"
)

// Modifier is one named adder to a target number
type Modifier struct {
	Name  string
	Value int
}

// AttackContext is everything a modifier function may look at
type AttackContext struct {
	Attacker    *state.UnitState
	Target      *state.UnitState
	Weapon      encounter.WeaponSpec
	Distance    int
	Range       core.RangeBracket
	HeatEffects bool
}

// ModifierFunc returns the modifiers that apply to one weapon attack
type ModifierFunc func(ctx AttackContext) []Modifier

// NewAttackContext builds the context for firing weapon from attacker at target
func NewAttackContext(gs *state.GameState, attacker, target *state.UnitState, weapon encounter.WeaponSpec) AttackContext {
	d := attacker.Position.DistanceTo(target.Position)
	return AttackContext{
		Attacker:    attacker,
		Target:      target,
		Weapon:      weapon,
		Distance:    d,
		Range:       RangeBracketFor(weapon, d),
		HeatEffects: gs.Config.OptionalRules.HeatEffects,
	}
}

// RangeBracketFor classifies a distance against a weapon's ranges
func RangeBracketFor(w encounter.WeaponSpec, distance int) core.RangeBracket {
	switch {
	case distance <= w.ShortRange:
		return core.RangeShort
	case distance <= w.MediumRange:
		return core.RangeMedium
	case distance <= w.LongRange:
		return core.RangeLong
	default:
		return core.RangeOut
	}
}

// RangeModifier returns the to-hit adder for a range bracket
func RangeModifier(r core.RangeBracket) int {
	switch r {
	case core.RangeMedium:
		return 2
	case core.RangeLong:
		return 4
	default:
		return 0
	}
}

// AttackerMovementModifier returns the to-hit adder for how the attacker moved
func AttackerMovementModifier(mt core.MovementType) int {
	switch mt {
	case core.MoveWalk:
		return 1
	case core.MoveRun:
		return 2
	case core.MoveJump:
		return 3
	default:
		return 0
	}
}

// TargetMovementModifier returns the to-hit adder for the hexes the target moved,
// plus one if it jumped
func TargetMovementModifier(u *state.UnitState) int {
	mod := 0
	switch d := u.Distance; {
	case d <= 2:
		mod = 0
	case d <= 4:
		mod = 1
	case d <= 6:
		mod = 2
	case d <= 9:
		mod = 3
	case d <= 17:
		mod = 4
	case d <= 24:
		mod = 5
	default:
		mod = 6
	}
	if u.MovementType == core.MoveJump {
		mod++
	}
	return mod
}

// HeatToHitModifier returns the to-hit adder from the attacker's heat
func HeatToHitModifier(heat int) int {
	switch {
	case heat >= 24:
		return 4
	case heat >= 17:
		return 3
	case heat >= 13:
		return 2
	case heat >= 8:
		return 1
	default:
		return 0
	}
}

// MinimumRangeModifier returns the penalty for firing inside a weapon's minimum range
func MinimumRangeModifier(w encounter.WeaponSpec, distance int) int {
	if w.MinRange > 0 && distance <= w.MinRange {
		return w.MinRange - distance + 1
	}
	return 0
}

// StandardModifiers is the default ModifierFunc
func StandardModifiers(ctx AttackContext) []Modifier {
	mods := []Modifier{
		{Name: "range", Value: RangeModifier(ctx.Range)},
		{Name: "attacker_movement", Value: AttackerMovementModifier(ctx.Attacker.MovementType)},
		{Name: "target_movement", Value: TargetMovementModifier(ctx.Target)},
	}
	if ctx.HeatEffects {
		mods = append(mods, Modifier{Name: "heat", Value: HeatToHitModifier(ctx.Attacker.Heat)})
	}
	if m := MinimumRangeModifier(ctx.Weapon, ctx.Distance); m > 0 {
		mods = append(mods, Modifier{Name: "minimum_range", Value: m})
	}
	return mods
}

// TargetNumber adds modifiers to a base skill
func TargetNumber(base int, mods []Modifier) int {
	tn := base
	for _, m := range mods {
		tn += m.Value
	}
	return tn
}

// ModifierMap flattens modifiers for an event payload, dropping zeros
func ModifierMap(mods []Modifier) map[string]int {
	out := make(map[string]int)
	for _, m := range mods {
		if m.Value != 0 {
			out[m.Name] += m.Value
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// HitProbability returns P(2d6 >= tn)
func HitProbability(tn int) float64 {
	return dice.ProbabilityAtLeast(tn)
}

// WeaponTargetNumber returns the target number for one weapon, or ok=false if
// the target is out of range
func WeaponTargetNumber(ctx AttackContext, modifiers ModifierFunc) (int, []Modifier, bool) {
	if ctx.Range == core.RangeOut {
		return 0, nil, false
	}
	if modifiers == nil {
		modifiers = StandardModifiers
	}
	mods := modifiers(ctx)
	return TargetNumber(ctx.Attacker.Gunnery, mods), mods, true
}

// ExpectedDamage sums hit probability times damage over the usable weapons
func ExpectedDamage(gs *state.GameState, attacker, target *state.UnitState, weaponIDs []string, modifiers ModifierFunc) float64 {
	total := 0.0
	for _, id := range weaponIDs {
		w, ok := attacker.Weapon(id)
		if !ok || !attacker.WeaponUsable(id) {
			continue
		}
		tn, _, ok := WeaponTargetNumber(NewAttackContext(gs, attacker, target, w), modifiers)
		if !ok {
			continue
		}
		total += HitProbability(tn) * float64(w.Damage)
	}
	return total
}

// HasLineOfSight reports whether no blocked hex lies strictly between from and to
func HasLineOfSight(cfg encounter.Config, from, to core.Hex) bool {
	line := from.Line(to)
	if len(line) <= 2 {
		return true
	}
	blocked := cfg.BlockedSet()
	for _, h := range line[1 : len(line)-1] {
		if blocked[h] {
			return false
		}
	}
	return true
}

// UsableWeapons returns ids of weapons the attacker could fire at target, in weapon order
func UsableWeapons(gs *state.GameState, attacker, target *state.UnitState) []string {
	var out []string
	d := attacker.Position.DistanceTo(target.Position)
	for _, w := range attacker.Weapons {
		if !attacker.WeaponUsable(w.ID) || RangeBracketFor(w, d) == core.RangeOut {
			continue
		}
		out = append(out, w.ID)
	}
	return out
}

// SortByExpectedDamage orders targets by descending expected damage, then id
func SortByExpectedDamage(ids []string, expected map[string]float64) {
	sort.SliceStable(ids, func(i, j int) bool {
		if expected[ids[i]] != expected[ids[j]] {
			return expected[ids[i]] > expected[ids[j]]
		}
		return ids[i] < ids[j]
	})
}
