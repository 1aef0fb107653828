package core

import (
	"fmt"
	"math"
)

// Hex represents a position on the hex map in axial coordinates
type Hex struct {
	Q int `json:"q" yaml:"q" mapstructure:"q"`
	R int `json:"r" yaml:"r" mapstructure:"r"`
}

// NewHex creates a new hex with the given axial coordinates
func NewHex(q, r int) Hex {
	return Hex{Q: q, R: r}
}

// S returns the implicit third cube coordinate
func (h Hex) S() int {
	return -h.Q - h.R
}

// Add returns a new hex that is the sum of this hex and another
func (h Hex) Add(other Hex) Hex {
	return Hex{Q: h.Q + other.Q, R: h.R + other.R}
}

// Sub returns a new hex that is the difference between this hex and another
func (h Hex) Sub(other Hex) Hex {
	return Hex{Q: h.Q - other.Q, R: h.R - other.R}
}

// DistanceTo calculates the hex distance to another hex
func (h Hex) DistanceTo(other Hex) int {
	d := h.Sub(other)
	return (abs(d.Q) + abs(d.R) + abs(d.S())) / 2
}

// Within reports whether the hex lies inside a map of the given radius centered on the origin
func (h Hex) Within(radius int) bool {
	return h.DistanceTo(Hex{}) <= radius
}

// Neighbor returns the adjacent hex in the given facing direction
func (h Hex) Neighbor(f Facing) Hex {
	return h.Add(facingVectors[f.Normalize()])
}

// Neighbors returns the six adjacent hexes in facing order
func (h Hex) Neighbors() []Hex {
	out := make([]Hex, 0, 6)
	for f := Facing(0); f < 6; f++ {
		out = append(out, h.Neighbor(f))
	}
	return out
}

// IsAdjacentTo checks if this hex shares an edge with another
func (h Hex) IsAdjacentTo(other Hex) bool {
	return h.DistanceTo(other) == 1
}

// Line returns the hexes on the straight line from h to other, both ends included.
// Ties at hex edges are nudged consistently so the result is deterministic.
func (h Hex) Line(other Hex) []Hex {
	n := h.DistanceTo(other)
	if n == 0 {
		return []Hex{h}
	}
	const eps = 1e-6
	aq, ar := float64(h.Q)+eps, float64(h.R)+eps
	bq, br := float64(other.Q)+eps, float64(other.R)+eps
	out := make([]Hex, 0, n+1)
	for i := 0; i <= n; i++ {
		t := float64(i) / float64(n)
		out = append(out, roundHex(aq+(bq-aq)*t, ar+(br-ar)*t))
	}
	return out
}

// Pixel returns the center of the hex on a pointy-top layout with unit size
func (h Hex) Pixel() (float64, float64) {
	x := math.Sqrt(3)*float64(h.Q) + math.Sqrt(3)/2*float64(h.R)
	y := 1.5 * float64(h.R)
	return x, y
}

// String returns a string representation of the hex
func (h Hex) String() string {
	return fmt.Sprintf("(%d,%d)", h.Q, h.R)
}

// HexesWithin returns every hex of a map with the given radius in a stable order
func HexesWithin(radius int) []Hex {
	if radius < 0 {
		return nil
	}
	out := make([]Hex, 0, 3*radius*(radius+1)+1)
	for q := -radius; q <= radius; q++ {
		rMin := max(-radius, -q-radius)
		rMax := min(radius, -q+radius)
		for r := rMin; r <= rMax; r++ {
			out = append(out, Hex{Q: q, R: r})
		}
	}
	return out
}

func roundHex(q, r float64) Hex {
	s := -q - r
	rq, rr, rs := math.Round(q), math.Round(r), math.Round(s)
	dq, dr, ds := math.Abs(rq-q), math.Abs(rr-r), math.Abs(rs-s)
	switch {
	case dq > dr && dq > ds:
		rq = -rr - rs
	case dr > ds:
		rr = -rq - rs
	}
	return Hex{Q: int(rq), R: int(rr)}
}

// Facing is one of the six hex-side directions, 0 = north-east going clockwise
type Facing int

// facingVectors provides axial offsets for each facing
var facingVectors = [6]Hex{
	{Q: 1, R: -1}, // 0
	{Q: 1, R: 0},  // 1
	{Q: 0, R: 1},  // 2
	{Q: -1, R: 1}, // 3
	{Q: -1, R: 0}, // 4
	{Q: 0, R: -1}, // 5
}

// Valid reports whether the facing is one of the six directions
func (f Facing) Valid() bool {
	return f >= 0 && f < 6
}

// Normalize wraps any integer into 0..5
func (f Facing) Normalize() Facing {
	return ((f % 6) + 6) % 6
}

// Opposite returns the facing pointing the other way
func (f Facing) Opposite() Facing {
	return (f + 3).Normalize()
}

// Vector returns the axial offset one step in this facing
func (f Facing) Vector() Hex {
	return facingVectors[f.Normalize()]
}

// FacingToward returns the facing from one hex that points most directly at another.
// Returns the zero facing when both hexes are equal.
func FacingToward(from, to Hex) Facing {
	if from == to {
		return 0
	}
	fx, fy := from.Pixel()
	tx, ty := to.Pixel()
	want := math.Atan2(ty-fy, tx-fx)

	best := Facing(0)
	bestDiff := math.Inf(1)
	for f := Facing(0); f < 6; f++ {
		vx, vy := f.Vector().Pixel()
		diff := angleBetween(want, math.Atan2(vy, vx))
		if diff < bestDiff-1e-9 {
			best, bestDiff = f, diff
		}
	}
	return best
}

// AngleFrom returns the absolute angle in degrees between the facing and the
// direction from origin to target (0 = dead ahead, 180 = directly behind)
func (f Facing) AngleFrom(origin, target Hex) float64 {
	if origin == target {
		return 0
	}
	ox, oy := origin.Pixel()
	tx, ty := target.Pixel()
	vx, vy := f.Vector().Pixel()
	return angleBetween(math.Atan2(ty-oy, tx-ox), math.Atan2(vy, vx)) * 180 / math.Pi
}

func angleBetween(a, b float64) float64 {
	d := math.Abs(a - b)
	for d > math.Pi {
		d = math.Abs(d - 2*math.Pi)
	}
	return d
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
