package processor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/dice"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/events"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/rules"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/state"
)

// Destruction reasons recorded in UnitDestroyed
const (
	ReasonPilotKilled = "pilot killed"
)

// maxPilotWounds kills the pilot
const maxPilotWounds = 6

// consciousnessTN is the 2d6 target to stay conscious after taking the n-th wound
var consciousnessTN = map[int]int{1: 3, 2: 5, 3: 7, 4: 10, 5: 11}

// CombatProcessor turns attack declarations into event payloads. It never
// touches the snapshot it is given: each payload is folded into a scratch
// copy through the reducer, so the damage it computes is the damage replay
// will apply.
type CombatProcessor struct {
	logger      zerolog.Logger
	hitLocation rules.HitLocationFunc
	modifiers   rules.ModifierFunc
}

// Option configures a CombatProcessor
type Option func(*CombatProcessor)

// WithHitLocation replaces the hit location table
func WithHitLocation(fn rules.HitLocationFunc) Option {
	return func(cp *CombatProcessor) {
		if fn != nil {
			cp.hitLocation = fn
		}
	}
}

// WithModifiers replaces the to-hit modifier function
func WithModifiers(fn rules.ModifierFunc) Option {
	return func(cp *CombatProcessor) {
		if fn != nil {
			cp.modifiers = fn
		}
	}
}

// NewCombatProcessor creates a new combat processor
func NewCombatProcessor(logger zerolog.Logger, opts ...Option) *CombatProcessor {
	cp := &CombatProcessor{
		logger:      logger.With().Str("component", "CombatProcessor").Logger(),
		hitLocation: rules.StandardHitLocation,
		modifiers:   rules.StandardModifiers,
	}
	for _, opt := range opts {
		opt(cp)
	}
	return cp
}

// Modifiers returns the to-hit modifier function in use
func (cp *CombatProcessor) Modifiers() rules.ModifierFunc {
	return cp.modifiers
}

// resolution accumulates payloads and keeps the scratch state in step with them
type resolution struct {
	scratch  *state.GameState
	payloads []events.Payload
}

func (r *resolution) emit(p events.Payload) {
	r.payloads = append(r.payloads, p)
	r.scratch = state.Apply(r.scratch, events.GameEvent{
		GameID:   r.scratch.GameID,
		Sequence: r.scratch.LastSequence,
		Type:     p.EventType(),
		Payload:  p,
	})
}

func (r *resolution) unit(id string) *state.UnitState {
	return r.scratch.Units[id]
}

// ResolveAttack fires weaponIDs in order from attacker at target. Every
// weapon produces an AttackResolved; hits are followed by their damage,
// pilot and destruction payloads. On error nothing is returned.
func (cp *CombatProcessor) ResolveAttack(ctx context.Context, gs *state.GameState, attackerID, targetID string, weaponIDs []string, roller *dice.Roller) ([]events.Payload, error) {
	attacker, target, err := cp.combatants(gs, attackerID, targetID)
	if err != nil {
		return nil, err
	}
	if len(weaponIDs) == 0 {
		return nil, core.Validationf("no weapons declared")
	}
	if !rules.HasLineOfSight(gs.Config, attacker.Position, target.Position) {
		return nil, core.Validationf("no line of sight from %s to %s", attacker.Position, target.Position)
	}

	seen := make(map[string]bool, len(weaponIDs))
	for _, id := range weaponIDs {
		if seen[id] {
			return nil, core.Validationf("weapon %s declared twice", id)
		}
		seen[id] = true
		w, ok := attacker.Weapon(id)
		if !ok {
			return nil, core.Validationf("unit %s has no weapon %s", attackerID, id)
		}
		if !attacker.WeaponUsable(id) {
			return nil, core.Validationf("weapon %s is destroyed or out of ammunition", id)
		}
		if rules.RangeBracketFor(w, attacker.Position.DistanceTo(target.Position)) == core.RangeOut {
			return nil, core.Validationf("target %s is out of range of %s", targetID, id)
		}
	}

	res := &resolution{scratch: gs}
	for _, id := range weaponIDs {
		select {
		case <-ctx.Done():
			cp.logger.Warn().Err(ctx.Err()).Msg("Attack resolution interrupted by context cancellation")
			return nil, ctx.Err()
		default:
		}

		w, _ := attacker.Weapon(id)
		att, tgt := res.unit(attackerID), res.unit(targetID)
		actx := rules.NewAttackContext(res.scratch, att, tgt, w)
		tn, mods, _ := rules.WeaponTargetNumber(actx, cp.modifiers)
		roll := roller.Sum2D6()
		arc := rules.AttackArc(att.Position, tgt.Position, tgt.Facing)

		resolved := events.AttackResolved{
			AttackerID:   attackerID,
			TargetID:     targetID,
			WeaponID:     id,
			TargetNumber: tn,
			Roll:         roll,
			Hit:          dice.Succeeds(roll, tn),
			Range:        actx.Range,
			Arc:          arc,
			Heat:         w.Heat,
			AmmoType:     w.AmmoType,
			Modifiers:    rules.ModifierMap(mods),
		}
		if resolved.Hit && tgt.Operational() {
			loc, err := cp.hitLocation(roller.Sum2D6(), arc)
			if err != nil {
				return nil, core.WrapActionError(attackerID, "hit location", err)
			}
			resolved.Location = loc
			resolved.Damage = w.Damage
		}

		cp.logger.Debug().
			Str("attacker_id", attackerID).
			Str("target_id", targetID).
			Str("weapon_id", id).
			Int("target_number", tn).
			Int("roll", roll).
			Bool("hit", resolved.Hit).
			Msg("Weapon attack resolved")

		res.emit(resolved)
		if resolved.Damage > 0 {
			cp.strike(res, targetID, resolved.Location, arc == core.ArcRear, resolved.Damage, roller)
		}
	}
	return res.payloads, nil
}

// ResolvePhysical resolves a punch or kick against an adjacent enemy
func (cp *CombatProcessor) ResolvePhysical(ctx context.Context, gs *state.GameState, attackerID, targetID string, kind core.PhysicalKind, roller *dice.Roller) ([]events.Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	attacker, target, err := cp.combatants(gs, attackerID, targetID)
	if err != nil {
		return nil, err
	}
	if kind != core.PhysicalPunch && kind != core.PhysicalKick {
		return nil, core.Validationf("unknown physical attack %s", kind)
	}
	if !attacker.Position.IsAdjacentTo(target.Position) {
		return nil, core.Validationf("target %s is not adjacent", targetID)
	}
	if !rules.CanStrike(attacker, kind) {
		return nil, core.Validationf("unit %s cannot %s", attackerID, kind)
	}

	tn, _ := rules.PhysicalTargetNumber(attacker, target, kind)
	roll := roller.Sum2D6()
	arc := rules.AttackArc(attacker.Position, target.Position, target.Facing)
	resolved := events.PhysicalAttackResolved{
		AttackerID:   attackerID,
		TargetID:     targetID,
		Kind:         kind,
		TargetNumber: tn,
		Roll:         roll,
		Hit:          dice.Succeeds(roll, tn),
		Arc:          arc,
	}
	if resolved.Hit {
		if kind == core.PhysicalKick {
			resolved.Location = rules.KickLocation(roller.D6())
		} else {
			resolved.Location = rules.PunchLocation(roller.D6())
		}
		resolved.Damage = rules.PhysicalDamage(attacker.Tonnage, kind)
	}

	res := &resolution{scratch: gs}
	res.emit(resolved)
	if resolved.Damage > 0 {
		cp.strike(res, targetID, resolved.Location, arc == core.ArcRear, resolved.Damage, roller)
	}
	return res.payloads, nil
}

func (cp *CombatProcessor) combatants(gs *state.GameState, attackerID, targetID string) (*state.UnitState, *state.UnitState, error) {
	attacker, ok := gs.Unit(attackerID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", core.ErrUnitNotFound, attackerID)
	}
	target, ok := gs.Unit(targetID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", core.ErrUnitNotFound, targetID)
	}
	if !attacker.CanAct() {
		return nil, nil, core.Validationf("unit %s cannot act", attackerID)
	}
	if target.Side == attacker.Side {
		return nil, nil, core.Validationf("unit %s is not an enemy of %s", targetID, attackerID)
	}
	if !target.Operational() {
		return nil, nil, core.Validationf("target %s is out of the fight", targetID)
	}
	return attacker, target, nil
}

// strike applies damage at loc and everything that follows from it
func (cp *CombatProcessor) strike(res *resolution, unitID string, loc core.Location, rear bool, damage int, roller *dice.Roller) {
	cp.applyDamage(res, unitID, loc, rear, damage)

	if loc != core.LocHead || !res.scratch.Config.OptionalRules.PilotDamage {
		return
	}
	if u := res.unit(unitID); u.Operational() {
		cp.woundPilot(res, u, roller)
	}
}

// applyDamage emits DamageApplied for loc and then for each location the
// excess transfers to. Destroying the head or center torso destroys the unit.
func (cp *CombatProcessor) applyDamage(res *resolution, unitID string, loc core.Location, rear bool, damage int) {
	transferred := false
	for damage > 0 {
		u := res.unit(unitID)
		structure, hasLoc := u.Structure[loc]
		if !hasLoc || u.LocationDestroyed(loc) {
			next, ok := loc.TransferLocation()
			if !ok {
				return
			}
			loc, transferred = next, true
			continue
		}

		armorKey := loc
		if rear && loc.HasRearArmor() {
			armorKey = loc.RearArmorKey()
		}
		throughArmor := max(damage-max(u.Armor[armorKey], 0), 0)
		overflow := max(throughArmor-structure, 0)

		res.emit(events.DamageApplied{
			UnitID:      unitID,
			Location:    loc,
			Rear:        rear,
			Damage:      damage - overflow,
			Transferred: transferred,
		})

		u = res.unit(unitID)
		if !u.LocationDestroyed(loc) {
			return
		}
		cp.logger.Debug().Str("unit_id", unitID).Str("location", string(loc)).Msg("Location destroyed")
		if loc.IsVital() {
			res.emit(events.UnitDestroyed{UnitID: unitID, Reason: fmt.Sprintf("%s destroyed", loc)})
			return
		}

		next, ok := loc.TransferLocation()
		if !ok {
			return
		}
		loc, damage, transferred = next, overflow, true
	}
}

func (cp *CombatProcessor) woundPilot(res *resolution, u *state.UnitState, roller *dice.Roller) {
	wounds := u.PilotWounds + 1
	if wounds >= maxPilotWounds {
		res.emit(events.PilotHit{UnitID: u.ID, Wounds: maxPilotWounds})
		res.emit(events.UnitDestroyed{UnitID: u.ID, Reason: ReasonPilotKilled})
		return
	}

	tn := consciousnessTN[wounds]
	roll := roller.Sum2D6()
	hit := events.PilotHit{
		UnitID:       u.ID,
		Wounds:       wounds,
		TargetNumber: tn,
		Roll:         roll,
		Conscious:    u.PilotConscious && dice.Succeeds(roll, tn),
	}
	cp.logger.Debug().
		Str("unit_id", u.ID).
		Int("wounds", wounds).
		Bool("conscious", hit.Conscious).
		Msg("Pilot wounded")
	res.emit(hit)
}
