// Package state holds the derived snapshot of a session and the pure reducer
// that builds it from the event log.
package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"maps"
	"slices"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/encounter"
)

// UnitState is the combat state of one unit
type UnitState struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Side      core.GameSide `json:"side"`
	Tonnage   int           `json:"tonnage"`
	Gunnery   int           `json:"gunnery"`
	Piloting  int           `json:"piloting"`
	WalkMP    int           `json:"walk_mp"`
	RunMP     int           `json:"run_mp"`
	JumpMP    int           `json:"jump_mp"`
	HeatSinks int           `json:"heat_sinks"`

	Position     core.Hex          `json:"position"`
	Facing       core.Facing       `json:"facing"`
	Heat         int               `json:"heat"`
	MovementType core.MovementType `json:"movement_type"`
	Distance     int               `json:"distance"`

	Armor              map[core.Location]int  `json:"armor"`
	Structure          map[core.Location]int  `json:"structure"`
	DestroyedLocations []core.Location        `json:"destroyed_locations"`
	DestroyedEquipment []string               `json:"destroyed_equipment"`
	Ammo               map[string]int         `json:"ammo"`
	Weapons            []encounter.WeaponSpec `json:"weapons"`

	PilotWounds    int            `json:"pilot_wounds"`
	PilotConscious bool           `json:"pilot_conscious"`
	Destroyed      bool           `json:"destroyed"`
	Withdrawn      bool           `json:"withdrawn"`
	Lock           core.LockState `json:"lock"`
}

// Operational reports whether the unit is still in the fight
func (u *UnitState) Operational() bool {
	return !u.Destroyed && !u.Withdrawn
}

// CanAct reports whether the unit must commit an action in lock phases
func (u *UnitState) CanAct() bool {
	return u.Operational() && u.PilotConscious
}

// Locked reports whether the unit has committed for the current phase
func (u *UnitState) Locked() bool {
	return u.Lock == core.LockLocked
}

// Weapon returns the weapon with the given id
func (u *UnitState) Weapon(id string) (encounter.WeaponSpec, bool) {
	for _, w := range u.Weapons {
		if w.ID == id {
			return w, true
		}
	}
	return encounter.WeaponSpec{}, false
}

// WeaponUsable reports whether the weapon exists, is intact and has ammunition
func (u *UnitState) WeaponUsable(id string) bool {
	w, ok := u.Weapon(id)
	if !ok || slices.Contains(u.DestroyedEquipment, id) {
		return false
	}
	if w.UsesAmmo() && u.Ammo[w.AmmoType] <= 0 {
		return false
	}
	return true
}

// LocationDestroyed reports whether the location has lost all structure
func (u *UnitState) LocationDestroyed(loc core.Location) bool {
	return slices.Contains(u.DestroyedLocations, loc)
}

// TotalStructure sums remaining structure over all locations
func (u *UnitState) TotalStructure() int {
	total := 0
	for _, v := range u.Structure {
		total += max(v, 0)
	}
	return total
}

// Clone returns a deep copy
func (u *UnitState) Clone() *UnitState {
	out := *u
	out.Armor = maps.Clone(u.Armor)
	out.Structure = maps.Clone(u.Structure)
	out.DestroyedLocations = slices.Clone(u.DestroyedLocations)
	out.DestroyedEquipment = slices.Clone(u.DestroyedEquipment)
	out.Ammo = maps.Clone(u.Ammo)
	out.Weapons = slices.Clone(u.Weapons)
	return &out
}

// GameState is the snapshot derived from a session's event log. It is never
// edited by hand; Apply returns a new value for every event.
type GameState struct {
	GameID           string                `json:"game_id"`
	Status           core.GameStatus       `json:"status"`
	Turn             int                   `json:"turn"`
	Phase            core.GamePhase        `json:"phase"`
	InitiativeRolled bool                  `json:"initiative_rolled"`
	InitiativeWinner core.GameSide         `json:"initiative_winner"`
	FirstMover       core.GameSide         `json:"first_mover"`
	ActivationIndex  int                   `json:"activation_index"`
	Units            map[string]*UnitState `json:"units"`
	Winner           core.GameSide         `json:"winner"`
	EndReason        string                `json:"end_reason,omitempty"`
	LastSequence     int                   `json:"last_sequence"`
	Config           encounter.Config      `json:"config"`
}

// Empty returns the state before any event
func Empty() *GameState {
	return &GameState{
		Phase: core.PhaseInitiative,
		Units: make(map[string]*UnitState),
	}
}

// Clone returns a deep copy
func (s *GameState) Clone() *GameState {
	out := *s
	out.Units = make(map[string]*UnitState, len(s.Units))
	for id, u := range s.Units {
		out.Units[id] = u.Clone()
	}
	out.Config = s.Config.Clone()
	return &out
}

// Ended reports whether a GameEnded event has been applied
func (s *GameState) Ended() bool {
	return s.Status == core.StatusEnded
}

// Unit returns the unit with the given id
func (s *GameState) Unit(id string) (*UnitState, bool) {
	u, ok := s.Units[id]
	return u, ok
}

// UnitIDs returns every unit id in sorted order
func (s *GameState) UnitIDs() []string {
	return slices.Sorted(maps.Keys(s.Units))
}

// UnitsOf returns the units of one side in id order
func (s *GameState) UnitsOf(side core.GameSide) []*UnitState {
	var out []*UnitState
	for _, id := range s.UnitIDs() {
		if u := s.Units[id]; u.Side == side {
			out = append(out, u)
		}
	}
	return out
}

// OperationalCount returns how many units of the side are still in the fight
func (s *GameState) OperationalCount(side core.GameSide) int {
	n := 0
	for _, u := range s.Units {
		if u.Side == side && u.Operational() {
			n++
		}
	}
	return n
}

// OccupantAt returns the operational unit standing on h
func (s *GameState) OccupantAt(h core.Hex) (*UnitState, bool) {
	for _, id := range s.UnitIDs() {
		u := s.Units[id]
		if u.Operational() && u.Position == h {
			return u, true
		}
	}
	return nil, false
}

// PendingUnits returns the ids of units that still owe an action in the current phase
func (s *GameState) PendingUnits() []string {
	var out []string
	for _, id := range s.UnitIDs() {
		u := s.Units[id]
		if u.CanAct() && !u.Locked() {
			out = append(out, id)
		}
	}
	return out
}

// Fingerprint returns a SHA-256 over the canonical JSON form of the state.
// Equal states always produce equal fingerprints.
func (s *GameState) Fingerprint() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
