package encounter

import (
	"maps"
	"slices"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
)

// WeaponSpec describes one mounted weapon as delivered by the construction rules.
// Ranges are inclusive upper bounds in hexes.
type WeaponSpec struct {
	ID          string        `json:"id" yaml:"id" mapstructure:"id" validate:"required"`
	Name        string        `json:"name" yaml:"name" mapstructure:"name"`
	Location    core.Location `json:"location" yaml:"location" mapstructure:"location" validate:"required,location"`
	Damage      int           `json:"damage" yaml:"damage" mapstructure:"damage" validate:"gte=0"`
	Heat        int           `json:"heat" yaml:"heat" mapstructure:"heat" validate:"gte=0"`
	MinRange    int           `json:"min_range" yaml:"min_range" mapstructure:"min_range" validate:"gte=0"`
	ShortRange  int           `json:"short_range" yaml:"short_range" mapstructure:"short_range" validate:"gte=1"`
	MediumRange int           `json:"medium_range" yaml:"medium_range" mapstructure:"medium_range" validate:"gtefield=ShortRange"`
	LongRange   int           `json:"long_range" yaml:"long_range" mapstructure:"long_range" validate:"gtefield=MediumRange"`
	AmmoType    string        `json:"ammo_type,omitempty" yaml:"ammo_type,omitempty" mapstructure:"ammo_type"`
	AmmoPerTon  int           `json:"ammo_per_ton,omitempty" yaml:"ammo_per_ton,omitempty" mapstructure:"ammo_per_ton" validate:"gte=0"`
}

// UsesAmmo reports whether firing the weapon consumes ammunition
func (w WeaponSpec) UsesAmmo() bool {
	return w.AmmoType != ""
}

// UnitSpec is one combat-ready unit of the roster
type UnitSpec struct {
	ID        string                `json:"id" yaml:"id" mapstructure:"id" validate:"required,max=64"`
	Name      string                `json:"name" yaml:"name" mapstructure:"name"`
	Side      core.GameSide         `json:"side" yaml:"side" mapstructure:"side"`
	Tonnage   int                   `json:"tonnage" yaml:"tonnage" mapstructure:"tonnage" validate:"gte=10,lte=200"`
	Gunnery   int                   `json:"gunnery" yaml:"gunnery" mapstructure:"gunnery" validate:"gte=0,lte=8"`
	Piloting  int                   `json:"piloting" yaml:"piloting" mapstructure:"piloting" validate:"gte=0,lte=8"`
	WalkMP    int                   `json:"walk_mp" yaml:"walk_mp" mapstructure:"walk_mp" validate:"gte=0,lte=20"`
	RunMP     int                   `json:"run_mp" yaml:"run_mp" mapstructure:"run_mp" validate:"gte=0,lte=30"`
	JumpMP    int                   `json:"jump_mp" yaml:"jump_mp" mapstructure:"jump_mp" validate:"gte=0,lte=20"`
	HeatSinks int                   `json:"heat_sinks" yaml:"heat_sinks" mapstructure:"heat_sinks" validate:"gte=0"`
	Position  *core.Hex             `json:"position,omitempty" yaml:"position,omitempty" mapstructure:"position"`
	Facing    core.Facing           `json:"facing" yaml:"facing" mapstructure:"facing" validate:"gte=0,lte=5"`
	Armor     map[core.Location]int `json:"armor" yaml:"armor" mapstructure:"armor" validate:"required,dive,gte=0"`
	Structure map[core.Location]int `json:"structure" yaml:"structure" mapstructure:"structure" validate:"required,dive,gte=1"`
	Weapons   []WeaponSpec          `json:"weapons" yaml:"weapons" mapstructure:"weapons" validate:"dive"`
	AmmoTons  map[string]int        `json:"ammo_tons,omitempty" yaml:"ammo_tons,omitempty" mapstructure:"ammo_tons" validate:"dive,gte=0"`
}

// Weapon returns the weapon with the given id
func (u UnitSpec) Weapon(id string) (WeaponSpec, bool) {
	for _, w := range u.Weapons {
		if w.ID == id {
			return w, true
		}
	}
	return WeaponSpec{}, false
}

// StartingAmmo returns shots per ammo type: tons carried times the shots per ton
// of the first weapon using that type
func (u UnitSpec) StartingAmmo() map[string]int {
	out := make(map[string]int, len(u.AmmoTons))
	for ammoType, tons := range u.AmmoTons {
		perTon := 0
		for _, w := range u.Weapons {
			if w.AmmoType == ammoType && w.AmmoPerTon > 0 {
				perTon = w.AmmoPerTon
				break
			}
		}
		out[ammoType] = tons * perTon
	}
	return out
}

// withDefaults fills derived fields
func (u UnitSpec) withDefaults() UnitSpec {
	if u.Name == "" {
		u.Name = u.ID
	}
	if u.RunMP == 0 && u.WalkMP > 0 {
		u.RunMP = (3*u.WalkMP + 1) / 2
	}
	return u
}

// Clone returns a deep copy
func (u UnitSpec) Clone() UnitSpec {
	out := u
	if u.Position != nil {
		p := *u.Position
		out.Position = &p
	}
	out.Armor = maps.Clone(u.Armor)
	out.Structure = maps.Clone(u.Structure)
	out.Weapons = slices.Clone(u.Weapons)
	out.AmmoTons = maps.Clone(u.AmmoTons)
	return out
}
