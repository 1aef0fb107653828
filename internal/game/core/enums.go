package core

import "fmt"

// GameSide identifies one of the two forces. The zero value means no side,
// used for an unset initiative winner or a drawn game.
type GameSide int

const (
	SideNone GameSide = iota
	SidePlayer
	SideOpponent
)

var sideNames = []string{"None", "Player", "Opponent"}

func (s GameSide) String() string { return nameOf(sideNames, int(s)) }

// Valid reports whether s is Player or Opponent
func (s GameSide) Valid() bool { return s == SidePlayer || s == SideOpponent }

// Opponent returns the other side; SideNone stays SideNone
func (s GameSide) Opponent() GameSide {
	switch s {
	case SidePlayer:
		return SideOpponent
	case SideOpponent:
		return SidePlayer
	default:
		return SideNone
	}
}

func (s GameSide) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *GameSide) UnmarshalText(b []byte) error {
	return parseInto(sideNames, "side", string(b), (*int)(s))
}

// LockState marks whether a unit has committed its action for the current phase
type LockState int

const (
	LockPending LockState = iota
	LockLocked
)

var lockNames = []string{"Pending", "Locked"}

func (l LockState) String() string                 { return nameOf(lockNames, int(l)) }
func (l LockState) MarshalText() ([]byte, error)   { return []byte(l.String()), nil }
func (l *LockState) UnmarshalText(b []byte) error { return parseInto(lockNames, "lock state", string(b), (*int)(l)) }

// GameStatus is Active until a GameEnded event is appended
type GameStatus int

const (
	StatusActive GameStatus = iota
	StatusEnded
)

var statusNames = []string{"Active", "Ended"}

func (s GameStatus) String() string               { return nameOf(statusNames, int(s)) }
func (s GameStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
func (s *GameStatus) UnmarshalText(b []byte) error {
	return parseInto(statusNames, "status", string(b), (*int)(s))
}

// MovementType is the movement mode a unit used this turn
type MovementType int

const (
	MoveNone MovementType = iota
	MoveStationary
	MoveWalk
	MoveRun
	MoveJump
)

var movementNames = []string{"None", "Stationary", "Walk", "Run", "Jump"}

func (m MovementType) String() string               { return nameOf(movementNames, int(m)) }
func (m MovementType) MarshalText() ([]byte, error) { return []byte(m.String()), nil }
func (m *MovementType) UnmarshalText(b []byte) error {
	return parseInto(movementNames, "movement type", string(b), (*int)(m))
}

// ParseMovementType converts a name such as "Walk" to a MovementType
func ParseMovementType(s string) (MovementType, error) {
	var m MovementType
	err := m.UnmarshalText([]byte(s))
	return m, err
}

// RangeBracket classifies the distance between attacker and target for one weapon
type RangeBracket int

const (
	RangeShort RangeBracket = iota
	RangeMedium
	RangeLong
	RangeOut
)

var rangeNames = []string{"Short", "Medium", "Long", "Out"}

func (r RangeBracket) String() string               { return nameOf(rangeNames, int(r)) }
func (r RangeBracket) MarshalText() ([]byte, error) { return []byte(r.String()), nil }
func (r *RangeBracket) UnmarshalText(b []byte) error {
	return parseInto(rangeNames, "range bracket", string(b), (*int)(r))
}

// Arc is the side of the target an attack strikes
type Arc int

const (
	ArcFront Arc = iota
	ArcRear
)

var arcNames = []string{"Front", "Rear"}

func (a Arc) String() string               { return nameOf(arcNames, int(a)) }
func (a Arc) MarshalText() ([]byte, error) { return []byte(a.String()), nil }
func (a *Arc) UnmarshalText(b []byte) error {
	return parseInto(arcNames, "arc", string(b), (*int)(a))
}

// PhysicalKind is the type of physical attack
type PhysicalKind int

const (
	PhysicalPunch PhysicalKind = iota
	PhysicalKick
)

var physicalNames = []string{"Punch", "Kick"}

func (k PhysicalKind) String() string               { return nameOf(physicalNames, int(k)) }
func (k PhysicalKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }
func (k *PhysicalKind) UnmarshalText(b []byte) error {
	return parseInto(physicalNames, "physical attack", string(b), (*int)(k))
}

// ParsePhysicalKind converts "Punch" or "Kick" to a PhysicalKind
func ParsePhysicalKind(s string) (PhysicalKind, error) {
	var k PhysicalKind
	err := k.UnmarshalText([]byte(s))
	return k, err
}

// ParseSide converts "Player" or "Opponent" to a GameSide
func ParseSide(s string) (GameSide, error) {
	var side GameSide
	if err := side.UnmarshalText([]byte(s)); err != nil {
		return SideNone, err
	}
	return side, nil
}

func nameOf(names []string, v int) string {
	if v >= 0 && v < len(names) {
		return names[v]
	}
	return fmt.Sprintf("Unknown(%d)", v)
}

func parseInto(names []string, kind, s string, dst *int) error {
	for i, name := range names {
		if name == s {
			*dst = i
			return nil
		}
	}
	return fmt.Errorf("unknown %s %q", kind, s)
}
