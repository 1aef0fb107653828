package mapgen

import (
	"fmt"
	"math/rand"
	"slices"
	"strings"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/encounter"
)

// Vein lengths used when scattering blocked terrain
const (
	MinVeinLength = 2
	MaxVeinLength = 5
)

// Generator handles deployment and terrain generation with deterministic RNG
type Generator struct {
	rng *rand.Rand
}

// NewGenerator creates a new map generator
func NewGenerator(rng *rand.Rand) *Generator {
	return &Generator{rng: rng}
}

// NewSeededGenerator creates a generator whose output depends only on seed
func NewSeededGenerator(seed int64) *Generator {
	return NewGenerator(rand.New(rand.NewSource(seed)))
}

// DeploymentRow reports whether h lies in either side's two deployment rows
func DeploymentRow(radius int, h core.Hex) bool {
	return h.R >= radius-1 || h.R <= -(radius-1)
}

// Terrain returns cfg.Blocked plus generated blocked hexes. Veins of blocked
// hexes are grown from random starts until TerrainDensity of the map is
// blocked. Deployment rows and reserved hexes are never blocked. The result
// is sorted.
func (g *Generator) Terrain(cfg encounter.Config, reserved []core.Hex) []core.Hex {
	blocked := cfg.BlockedSet()
	if cfg.TerrainDensity > 0 {
		all := core.HexesWithin(cfg.MapRadius)
		want := int(cfg.TerrainDensity * float64(len(all)))

		var open []core.Hex
		for _, h := range all {
			if !DeploymentRow(cfg.MapRadius, h) && !slices.Contains(reserved, h) {
				open = append(open, h)
			}
		}
		want = min(want, len(open))

		maxAttempts := want * 10
		for attempts := 0; len(blocked) < want+len(cfg.Blocked) && attempts < maxAttempts; attempts++ {
			h := open[g.rng.Intn(len(open))]
			dir := core.Facing(g.rng.Intn(6))
			length := MinVeinLength + g.rng.Intn(MaxVeinLength-MinVeinLength+1)
			for i := 0; i < length && len(blocked) < want+len(cfg.Blocked); i++ {
				if !h.Within(cfg.MapRadius) || DeploymentRow(cfg.MapRadius, h) || slices.Contains(reserved, h) {
					break
				}
				blocked[h] = true
				h = h.Neighbor(dir)
				// veins wander by at most one facing per step
				dir = (dir + core.Facing(g.rng.Intn(3)-1)).Normalize()
			}
		}
	}

	out := make([]core.Hex, 0, len(blocked))
	for h := range blocked {
		out = append(out, h)
	}
	slices.SortFunc(out, compareHex)
	return out
}

// Deploy places every unit that has no position on its side's edge: Player
// along r = +radius, Opponent along r = -radius, filling inward when a row is
// full. Units are placed in id order from the middle of the row outward and
// face the enemy edge.
func (g *Generator) Deploy(cfg encounter.Config, units []encounter.UnitSpec) ([]encounter.UnitSpec, error) {
	out := make([]encounter.UnitSpec, len(units))
	taken := cfg.BlockedSet()
	for i, u := range units {
		out[i] = u.Clone()
		if u.Position != nil {
			taken[*u.Position] = true
		}
	}

	order := make([]int, 0, len(out))
	for i := range out {
		if out[i].Position == nil {
			order = append(order, i)
		}
	}
	slices.SortFunc(order, func(a, b int) int { return strings.Compare(out[a].ID, out[b].ID) })

	for _, i := range order {
		u := &out[i]
		h, ok := g.slot(cfg.MapRadius, u.Side, taken)
		if !ok {
			return nil, core.Validationf("no room to deploy unit %s", u.ID)
		}
		taken[h] = true
		u.Position = &h
		u.Facing = enemyFacing(u.Side)
	}
	return out, nil
}

func (g *Generator) slot(radius int, side core.GameSide, taken map[core.Hex]bool) (core.Hex, bool) {
	for depth := 0; depth <= radius; depth++ {
		var r int
		switch side {
		case core.SidePlayer:
			r = radius - depth
		case core.SideOpponent:
			r = -(radius - depth)
		default:
			return core.Hex{}, false
		}
		for _, h := range rowFromCenter(radius, r) {
			if !taken[h] {
				return h, true
			}
		}
	}
	return core.Hex{}, false
}

// rowFromCenter lists the hexes of row r ordered by distance from the row's middle
func rowFromCenter(radius, r int) []core.Hex {
	qMin := max(-radius, -r-radius)
	qMax := min(radius, -r+radius)
	row := make([]core.Hex, 0, qMax-qMin+1)
	for q := qMin; q <= qMax; q++ {
		row = append(row, core.NewHex(q, r))
	}
	mid := qMin + qMax
	slices.SortStableFunc(row, func(a, b core.Hex) int {
		return abs(2*a.Q-mid) - abs(2*b.Q-mid)
	})
	return row
}

func enemyFacing(side core.GameSide) core.Facing {
	if side == core.SideOpponent {
		return 2
	}
	return 5
}

func compareHex(a, b core.Hex) int {
	if a.Q != b.Q {
		return a.Q - b.Q
	}
	return a.R - b.R
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Describe returns a one-line summary of a map for logs
func Describe(cfg encounter.Config) string {
	return fmt.Sprintf("radius=%d blocked=%d density=%.2f", cfg.MapRadius, len(cfg.Blocked), cfg.TerrainDensity)
}
