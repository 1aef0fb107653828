package testutil

import (
	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/encounter"
)

// MediumLaser returns a medium laser mounted at loc
func MediumLaser(id string, loc core.Location) encounter.WeaponSpec {
	return encounter.WeaponSpec{
		ID:          id,
		Name:        "Medium Laser",
		Location:    loc,
		Damage:      5,
		Heat:        3,
		ShortRange:  3,
		MediumRange: 6,
		LongRange:   9,
	}
}

// LRM10 returns an LRM-10 mounted at loc
func LRM10(id string, loc core.Location) encounter.WeaponSpec {
	return encounter.WeaponSpec{
		ID:          id,
		Name:        "LRM 10",
		Location:    loc,
		Damage:      6,
		Heat:        4,
		MinRange:    6,
		ShortRange:  7,
		MediumRange: 14,
		LongRange:   21,
		AmmoType:    "LRM10",
		AmmoPerTon:  12,
	}
}

// StandardArmor returns the armor of a 50 ton test unit
func StandardArmor() map[core.Location]int {
	return map[core.Location]int{
		core.LocHead:                      9,
		core.LocCenterTorso:               20,
		core.LocCenterTorso.RearArmorKey(): 6,
		core.LocLeftTorso:                 15,
		core.LocLeftTorso.RearArmorKey():  5,
		core.LocRightTorso:                15,
		core.LocRightTorso.RearArmorKey(): 5,
		core.LocLeftArm:                   12,
		core.LocRightArm:                  12,
		core.LocLeftLeg:                   16,
		core.LocRightLeg:                  16,
	}
}

// StandardStructure returns the internal structure of a 50 ton unit
func StandardStructure() map[core.Location]int {
	return map[core.Location]int{
		core.LocHead:        3,
		core.LocCenterTorso: 16,
		core.LocLeftTorso:   12,
		core.LocRightTorso:  12,
		core.LocLeftArm:     8,
		core.LocRightArm:    8,
		core.LocLeftLeg:     12,
		core.LocRightLeg:    12,
	}
}

// StandardUnit returns a 50 ton unit with two medium lasers and an LRM 10
func StandardUnit(id string, side core.GameSide, pos core.Hex, facing core.Facing) encounter.UnitSpec {
	p := pos
	return encounter.UnitSpec{
		ID:        id,
		Name:      "Test " + id,
		Side:      side,
		Tonnage:   50,
		Gunnery:   4,
		Piloting:  5,
		WalkMP:    5,
		RunMP:     8,
		JumpMP:    3,
		HeatSinks: 10,
		Position:  &p,
		Facing:    facing,
		Armor:     StandardArmor(),
		Structure: StandardStructure(),
		Weapons: []encounter.WeaponSpec{
			MediumLaser("ml-ra", core.LocRightArm),
			MediumLaser("ml-la", core.LocLeftArm),
			LRM10("lrm", core.LocLeftTorso),
		},
		AmmoTons: map[string]int{"LRM10": 1},
	}
}

// FragileUnit returns a unit with no armor and one point of structure everywhere,
// so any hit destroys the location it strikes
func FragileUnit(id string, side core.GameSide, pos core.Hex, facing core.Facing) encounter.UnitSpec {
	u := StandardUnit(id, side, pos, facing)
	u.Armor = map[core.Location]int{}
	for loc := range u.Structure {
		u.Structure[loc] = 1
	}
	return u
}

// DuelRoster returns one unit per side, three hexes apart and facing each other
func DuelRoster() *encounter.Roster {
	cfg := encounter.DefaultConfig()
	cfg.Seed = 1234
	return &encounter.Roster{
		Config: cfg,
		Units: []encounter.UnitSpec{
			StandardUnit("alpha", core.SidePlayer, core.NewHex(0, 2), 5),
			StandardUnit("bravo", core.SideOpponent, core.NewHex(0, -1), 2),
		},
	}
}

// LanceRoster returns two units per side on an eight hex map
func LanceRoster() *encounter.Roster {
	cfg := encounter.DefaultConfig()
	cfg.Seed = 99
	cfg.TurnLimit = 6
	cfg.VictoryConditions = []encounter.VictoryCondition{encounter.VictoryElimination, encounter.VictoryTurnLimit}
	return &encounter.Roster{
		Config: cfg,
		Units: []encounter.UnitSpec{
			StandardUnit("p1", core.SidePlayer, core.NewHex(-1, 6), 5),
			StandardUnit("p2", core.SidePlayer, core.NewHex(1, 6), 5),
			StandardUnit("o1", core.SideOpponent, core.NewHex(1, -6), 2),
			StandardUnit("o2", core.SideOpponent, core.NewHex(-1, -6), 2),
		},
	}
}

// RosterYAML is a valid roster document used by loader tests
const RosterYAML = `
config:
  map_radius: 6
  turn_limit: 10
  seed: 77
  victory_conditions: [elimination, turn_limit]
  optional_rules:
    heat_effects: true
    pilot_damage: false
units:
  - id: hunchback
    side: Player
    tonnage: 50
    gunnery: 4
    piloting: 5
    walk_mp: 4
    heat_sinks: 13
    position: {q: 0, r: 5}
    facing: 0
    armor: {HEAD: 9, CENTER_TORSO: 26, CENTER_TORSO_REAR: 5, LEFT_TORSO: 20, RIGHT_TORSO: 20, LEFT_ARM: 16, RIGHT_ARM: 16, LEFT_LEG: 20, RIGHT_LEG: 20}
    structure: {HEAD: 3, CENTER_TORSO: 16, LEFT_TORSO: 12, RIGHT_TORSO: 12, LEFT_ARM: 8, RIGHT_ARM: 8, LEFT_LEG: 12, RIGHT_LEG: 12}
    weapons:
      - {id: ac20, name: AC/20, location: RIGHT_TORSO, damage: 20, heat: 7, short_range: 3, medium_range: 6, long_range: 9, ammo_type: AC20, ammo_per_ton: 5}
      - {id: ml1, name: Medium Laser, location: LEFT_ARM, damage: 5, heat: 3, short_range: 3, medium_range: 6, long_range: 9}
    ammo_tons: {AC20: 2}
  - id: jenner
    side: Opponent
    tonnage: 35
    gunnery: 4
    piloting: 5
    walk_mp: 7
    jump_mp: 5
    heat_sinks: 10
    position: {q: 0, r: -5}
    facing: 3
    armor: {HEAD: 6, CENTER_TORSO: 12, LEFT_TORSO: 8, RIGHT_TORSO: 8, LEFT_ARM: 4, RIGHT_ARM: 4, LEFT_LEG: 6, RIGHT_LEG: 6}
    structure: {HEAD: 3, CENTER_TORSO: 11, LEFT_TORSO: 8, RIGHT_TORSO: 8, LEFT_ARM: 6, RIGHT_ARM: 6, LEFT_LEG: 8, RIGHT_LEG: 8}
    weapons:
      - {id: ml1, name: Medium Laser, location: RIGHT_ARM, damage: 5, heat: 3, short_range: 3, medium_range: 6, long_range: 9}
      - {id: ml2, name: Medium Laser, location: LEFT_ARM, damage: 5, heat: 3, short_range: 3, medium_range: 6, long_range: 9}
`
