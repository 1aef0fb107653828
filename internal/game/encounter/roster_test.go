package encounter_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/encounter"
	"github.com/mitchelldurbincs/MekEncounter/internal/testutil"
)

func TestParseRoster(t *testing.T) {
	roster, err := encounter.Parse([]byte(testutil.RosterYAML))
	require.NoError(t, err)
	require.NoError(t, encounter.Validate(roster))

	assert.Equal(t, 6, roster.Config.MapRadius)
	assert.Equal(t, int64(77), roster.Config.Seed)
	assert.True(t, roster.Config.Has(encounter.VictoryTurnLimit))
	assert.False(t, roster.Config.OptionalRules.PilotDamage)

	require.Len(t, roster.Units, 2)
	hunchback := roster.Units[0]
	assert.Equal(t, core.SidePlayer, hunchback.Side)
	assert.Equal(t, 6, hunchback.RunMP, "run MP defaults to ceil(1.5 x walk)")
	assert.Equal(t, "hunchback", hunchback.Name)
	require.NotNil(t, hunchback.Position)
	assert.Equal(t, core.NewHex(0, 5), *hunchback.Position)
	assert.Equal(t, map[string]int{"AC20": 10}, hunchback.StartingAmmo())

	jenner := roster.Units[1]
	assert.Equal(t, core.SideOpponent, jenner.Side)
	assert.Equal(t, 11, jenner.RunMP)
	assert.Equal(t, 5, jenner.JumpMP)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testutil.RosterYAML), 0o644))

	roster, err := encounter.LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, roster.Units, 2)

	_, err = encounter.LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("units: [\n"), 0o644))
	_, err = encounter.LoadFile(bad)
	assert.Error(t, err)
}

func TestValidateRoster(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *encounter.Roster)
	}{
		{"duplicate unit id", func(r *encounter.Roster) { r.Units[1].ID = r.Units[0].ID }},
		{"one side only", func(r *encounter.Roster) { r.Units[1].Side = core.SidePlayer }},
		{"missing side", func(r *encounter.Roster) { r.Units[0].Side = core.SideNone }},
		{"outside map", func(r *encounter.Roster) {
			p := core.NewHex(20, 0)
			r.Units[0].Position = &p
		}},
		{"shared hex", func(r *encounter.Roster) {
			p := *r.Units[1].Position
			r.Units[0].Position = &p
		}},
		{"blocked hex", func(r *encounter.Roster) { r.Config.Blocked = []core.Hex{*r.Units[0].Position} }},
		{"zero structure", func(r *encounter.Roster) { r.Units[0].Structure[core.LocHead] = 0 }},
		{"unknown location", func(r *encounter.Roster) { r.Units[0].Structure["TAIL"] = 4 }},
		{"missing center torso", func(r *encounter.Roster) { delete(r.Units[0].Structure, core.LocCenterTorso) }},
		{"missing head", func(r *encounter.Roster) { delete(r.Units[1].Structure, core.LocHead) }},
		{"arm only", func(r *encounter.Roster) {
			r.Units[1].Structure = map[core.Location]int{core.LocLeftArm: 1}
			r.Units[1].Weapons = r.Units[1].Weapons[1:2]
		}},
		{"duplicate weapon", func(r *encounter.Roster) { r.Units[0].Weapons[1].ID = r.Units[0].Weapons[0].ID }},
		{"weapon range order", func(r *encounter.Roster) { r.Units[0].Weapons[0].MediumRange = 1 }},
		{"weapon location", func(r *encounter.Roster) { r.Units[0].Weapons[0].Location = "POCKET" }},
		{"ammo without shots per ton", func(r *encounter.Roster) { r.Units[0].Weapons[2].AmmoPerTon = 0 }},
		{"bad victory condition", func(r *encounter.Roster) {
			r.Config.VictoryConditions = []encounter.VictoryCondition{"points"}
		}},
		{"tonnage", func(r *encounter.Roster) { r.Units[0].Tonnage = 5 }},
	}

	require.NoError(t, encounter.Validate(testutil.DuelRoster()))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testutil.DuelRoster()
			tt.mutate(r)
			err := encounter.Validate(r)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrValidation), "got %v", err)
		})
	}

	assert.Error(t, encounter.Validate(nil))
}

func TestRosterClone(t *testing.T) {
	r := testutil.DuelRoster()
	c := r.Clone()
	c.Units[0].Armor[core.LocHead] = 0
	c.Units[0].Position.Q = 5
	c.Config.Blocked = append(c.Config.Blocked, core.NewHex(1, 1))

	assert.Equal(t, 9, r.Units[0].Armor[core.LocHead])
	assert.Equal(t, 0, r.Units[0].Position.Q)
	assert.Empty(t, r.Config.Blocked)
}

func TestNormalizeSortsUnits(t *testing.T) {
	r := testutil.DuelRoster()
	r.Units[0], r.Units[1] = r.Units[1], r.Units[0]
	r.Normalize()
	assert.Equal(t, "alpha", r.Units[0].ID)
	assert.Equal(t, "bravo", r.Units[1].ID)
}
