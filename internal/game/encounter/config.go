package encounter

import (
	"slices"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
)

// VictoryCondition names a way the encounter can end
type VictoryCondition string

const (
	// VictoryElimination ends the game when one side has no operational units left
	VictoryElimination VictoryCondition = "elimination"
	// VictoryTurnLimit ends the game at the end of the last allowed turn
	VictoryTurnLimit VictoryCondition = "turn_limit"
)

// OptionalRules toggles rules that can be switched off per encounter
type OptionalRules struct {
	HeatEffects bool `json:"heat_effects" yaml:"heat_effects" mapstructure:"heat_effects"`
	PilotDamage bool `json:"pilot_damage" yaml:"pilot_damage" mapstructure:"pilot_damage"`
}

// Config is the immutable configuration of one encounter
type Config struct {
	MapRadius         int                `json:"map_radius" yaml:"map_radius" mapstructure:"map_radius" validate:"gte=1,lte=64"`
	TurnLimit         int                `json:"turn_limit" yaml:"turn_limit" mapstructure:"turn_limit" validate:"gte=0"`
	Seed              int64              `json:"seed" yaml:"seed" mapstructure:"seed"`
	VictoryConditions []VictoryCondition `json:"victory_conditions" yaml:"victory_conditions" mapstructure:"victory_conditions" validate:"dive,oneof=elimination turn_limit"`
	OptionalRules     OptionalRules      `json:"optional_rules" yaml:"optional_rules" mapstructure:"optional_rules"`
	Blocked           []core.Hex         `json:"blocked,omitempty" yaml:"blocked,omitempty" mapstructure:"blocked"`
	TerrainDensity    float64            `json:"terrain_density" yaml:"terrain_density" mapstructure:"terrain_density" validate:"gte=0,lte=0.5"`
}

// DefaultConfig returns the configuration used when a roster omits one
func DefaultConfig() Config {
	return Config{
		MapRadius:         8,
		TurnLimit:         0,
		VictoryConditions: []VictoryCondition{VictoryElimination},
		OptionalRules:     OptionalRules{HeatEffects: true, PilotDamage: true},
	}
}

// Has reports whether the victory condition is enabled
func (c Config) Has(vc VictoryCondition) bool {
	return slices.Contains(c.VictoryConditions, vc)
}

// IsBlocked reports whether the hex is impassable terrain
func (c Config) IsBlocked(h core.Hex) bool {
	return slices.Contains(c.Blocked, h)
}

// BlockedSet returns the blocked hexes as a set
func (c Config) BlockedSet() map[core.Hex]bool {
	set := make(map[core.Hex]bool, len(c.Blocked))
	for _, h := range c.Blocked {
		set[h] = true
	}
	return set
}

// Clone returns a deep copy
func (c Config) Clone() Config {
	out := c
	out.VictoryConditions = slices.Clone(c.VictoryConditions)
	out.Blocked = slices.Clone(c.Blocked)
	return out
}
