package rules

import (
	"slices"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/state"
)

// HeatMovementPenalty returns the MP lost to heat
func HeatMovementPenalty(heat int) int {
	switch {
	case heat >= 25:
		return 5
	case heat >= 20:
		return 4
	case heat >= 15:
		return 3
	case heat >= 10:
		return 2
	case heat >= 5:
		return 1
	default:
		return 0
	}
}

// MovementBudget returns how many hexes a unit may move with the given mode.
// Heat reduces walking and running but not jumping.
func MovementBudget(u *state.UnitState, mt core.MovementType, heatEffects bool) int {
	penalty := 0
	if heatEffects {
		penalty = HeatMovementPenalty(u.Heat)
	}
	switch mt {
	case core.MoveWalk:
		return max(u.WalkMP-penalty, 0)
	case core.MoveRun:
		return max(u.RunMP-penalty, 0)
	case core.MoveJump:
		return u.JumpMP
	default:
		return 0
	}
}

// MovementHeat returns the heat generated by moving
func MovementHeat(mt core.MovementType, distance int) int {
	switch mt {
	case core.MoveWalk:
		return 1
	case core.MoveRun:
		return 2
	case core.MoveJump:
		return max(3, distance)
	default:
		return 0
	}
}

// LegalMoveCalculator computes where units may move
type LegalMoveCalculator struct{}

// NewLegalMoveCalculator creates a new legal move calculator
func NewLegalMoveCalculator() *LegalMoveCalculator {
	return &LegalMoveCalculator{}
}

// Reachable returns every hex the unit may end its move on with the given mode,
// mapped to the number of hexes travelled. Ground movement goes around blocked
// hexes and enemies and may pass through friends; jumps ignore both but must
// land on a free hex. Walk and Run include the start hex at distance 0.
func (lmc *LegalMoveCalculator) Reachable(gs *state.GameState, u *state.UnitState, mt core.MovementType) map[core.Hex]int {
	out := make(map[core.Hex]int)
	if !u.CanAct() {
		return out
	}

	budget := MovementBudget(u, mt, gs.Config.OptionalRules.HeatEffects)
	radius := gs.Config.MapRadius
	blocked := gs.Config.BlockedSet()

	occupant := make(map[core.Hex]*state.UnitState)
	for _, other := range gs.Units {
		if other.ID != u.ID && other.Operational() {
			occupant[other.Position] = other
		}
	}

	switch mt {
	case core.MoveStationary:
		out[u.Position] = 0
		return out

	case core.MoveJump:
		for _, h := range core.HexesWithin(radius) {
			d := u.Position.DistanceTo(h)
			if d == 0 || d > budget || blocked[h] || occupant[h] != nil {
				continue
			}
			out[h] = d
		}
		return out

	case core.MoveWalk, core.MoveRun:
		dist := map[core.Hex]int{u.Position: 0}
		frontier := []core.Hex{u.Position}
		for len(frontier) > 0 {
			var next []core.Hex
			for _, h := range frontier {
				if dist[h] == budget {
					continue
				}
				for _, n := range h.Neighbors() {
					if _, seen := dist[n]; seen || !n.Within(radius) || blocked[n] {
						continue
					}
					if o := occupant[n]; o != nil && o.Side != u.Side {
						continue
					}
					dist[n] = dist[h] + 1
					next = append(next, n)
				}
			}
			frontier = next
		}
		for h, d := range dist {
			if occupant[h] == nil {
				out[h] = d
			}
		}
		return out
	}
	return out
}

// SortedHexes returns the keys of a reachability map in a stable order
func SortedHexes(m map[core.Hex]int) []core.Hex {
	out := make([]core.Hex, 0, len(m))
	for h := range m {
		out = append(out, h)
	}
	slices.SortFunc(out, func(a, b core.Hex) int {
		if a.Q != b.Q {
			return a.Q - b.Q
		}
		return a.R - b.R
	})
	return out
}

// ValidateMove checks a declared move and returns the distance travelled.
// Failures wrap core.ErrValidation.
func (lmc *LegalMoveCalculator) ValidateMove(gs *state.GameState, u *state.UnitState, target core.Hex, facing core.Facing, mt core.MovementType) (int, error) {
	if !facing.Valid() {
		return 0, core.Validationf("facing %d out of range", facing)
	}
	switch mt {
	case core.MoveStationary, core.MoveWalk, core.MoveRun, core.MoveJump:
	default:
		return 0, core.Validationf("movement type %s is not allowed", mt)
	}
	if !target.Within(gs.Config.MapRadius) {
		return 0, core.Validationf("hex %s is off the map", target)
	}
	if mt == core.MoveStationary && target != u.Position {
		return 0, core.Validationf("stationary unit cannot change hex")
	}
	if mt == core.MoveJump && u.JumpMP == 0 {
		return 0, core.Validationf("unit %s has no jump jets", u.ID)
	}

	reachable := lmc.Reachable(gs, u, mt)
	d, ok := reachable[target]
	if !ok {
		if gs.Config.IsBlocked(target) {
			return 0, core.Validationf("hex %s is blocked terrain", target)
		}
		if other, taken := gs.OccupantAt(target); taken && other.ID != u.ID {
			return 0, core.Validationf("hex %s is occupied by %s", target, other.ID)
		}
		return 0, core.Validationf("hex %s is beyond %s budget of %d", target, mt, MovementBudget(u, mt, gs.Config.OptionalRules.HeatEffects))
	}
	return d, nil
}
