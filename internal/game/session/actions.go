package session

import (
	"fmt"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/rules"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/state"
)

// TargetOption is one enemy a unit could attack
type TargetOption struct {
	UnitID         string              `json:"unit_id"`
	Distance       int                 `json:"distance"`
	Arc            core.Arc            `json:"arc"`
	Weapons        []string            `json:"weapons,omitempty"`
	HitProbability map[string]float64  `json:"hit_probability,omitempty"`
	ExpectedDamage float64             `json:"expected_damage"`
	Physical       []core.PhysicalKind `json:"physical,omitempty"`
	PhysicalOdds   map[string]float64  `json:"physical_odds,omitempty"`
}

// MoveOption is one hex a unit could end its move on
type MoveOption struct {
	To       core.Hex `json:"to"`
	Distance int      `json:"distance"`
	Heat     int      `json:"heat"`
}

// AvailableActions lists what a unit may legally do
type AvailableActions struct {
	UnitID       string                             `json:"unit_id"`
	Phase        core.GamePhase                     `json:"phase"`
	CanAct       bool                               `json:"can_act"`
	Locked       bool                               `json:"locked"`
	ValidMoves   map[core.MovementType][]MoveOption `json:"valid_moves,omitempty"`
	ValidTargets []TargetOption                     `json:"valid_targets,omitempty"`
}

// GetAvailableActions returns the legal moves and targets of a unit in the
// current snapshot. It never changes the session.
func (c *Controller) GetAvailableActions(unitID string) (AvailableActions, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	gs := c.snapshot
	u, ok := gs.Unit(unitID)
	if !ok {
		return AvailableActions{}, fmt.Errorf("%w: %s", core.ErrUnitNotFound, unitID)
	}

	out := AvailableActions{
		UnitID: unitID,
		Phase:  gs.Phase,
		CanAct: u.CanAct() && !gs.Ended(),
		Locked: u.Locked(),
	}
	if !out.CanAct {
		return out, nil
	}

	out.ValidMoves = make(map[core.MovementType][]MoveOption)
	for _, mt := range []core.MovementType{core.MoveWalk, core.MoveRun, core.MoveJump} {
		if mt == core.MoveJump && u.JumpMP == 0 {
			continue
		}
		reach := c.moves.Reachable(gs, u, mt)
		for _, h := range rules.SortedHexes(reach) {
			out.ValidMoves[mt] = append(out.ValidMoves[mt], MoveOption{
				To:       h,
				Distance: reach[h],
				Heat:     rules.MovementHeat(mt, reach[h]),
			})
		}
	}

	modifiers := c.processor.Modifiers()
	for _, enemy := range gs.UnitsOf(u.Side.Opponent()) {
		if !enemy.Operational() {
			continue
		}
		if opt, ok := c.targetOption(gs, u, enemy, modifiers); ok {
			out.ValidTargets = append(out.ValidTargets, opt)
		}
	}
	return out, nil
}

func (c *Controller) targetOption(gs *state.GameState, u, enemy *state.UnitState, modifiers rules.ModifierFunc) (TargetOption, bool) {
	opt := TargetOption{
		UnitID:   enemy.ID,
		Distance: u.Position.DistanceTo(enemy.Position),
		Arc:      rules.AttackArc(u.Position, enemy.Position, enemy.Facing),
	}

	if rules.HasLineOfSight(gs.Config, u.Position, enemy.Position) {
		opt.Weapons = rules.UsableWeapons(gs, u, enemy)
		if len(opt.Weapons) > 0 {
			opt.HitProbability = make(map[string]float64, len(opt.Weapons))
			for _, id := range opt.Weapons {
				w, _ := u.Weapon(id)
				if tn, _, ok := rules.WeaponTargetNumber(rules.NewAttackContext(gs, u, enemy, w), modifiers); ok {
					opt.HitProbability[id] = rules.HitProbability(tn)
				}
			}
			opt.ExpectedDamage = rules.ExpectedDamage(gs, u, enemy, opt.Weapons, modifiers)
		}
	}

	if opt.Distance == 1 {
		for _, kind := range []core.PhysicalKind{core.PhysicalPunch, core.PhysicalKick} {
			if !rules.CanStrike(u, kind) {
				continue
			}
			if opt.PhysicalOdds == nil {
				opt.PhysicalOdds = make(map[string]float64, 2)
			}
			tn, _ := rules.PhysicalTargetNumber(u, enemy, kind)
			opt.Physical = append(opt.Physical, kind)
			opt.PhysicalOdds[kind.String()] = rules.HitProbability(tn)
		}
	}

	return opt, len(opt.Weapons) > 0 || len(opt.Physical) > 0
}
