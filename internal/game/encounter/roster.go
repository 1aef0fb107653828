// Package encounter holds the configuration and roster an encounter is created from.
package encounter

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
)

// validatorInstance is shared so struct metadata is cached once
var validatorInstance = validator.New()

func init() {
	_ = validatorInstance.RegisterValidation("location", validateLocation)
}

func validateLocation(fl validator.FieldLevel) bool {
	loc := core.Location(fl.Field().String())
	for _, known := range core.StandardLocations {
		if loc == known {
			return true
		}
	}
	return false
}

// Roster is everything needed to create a session
type Roster struct {
	Config Config     `json:"config" yaml:"config" mapstructure:"config"`
	Units  []UnitSpec `json:"units" yaml:"units" mapstructure:"units" validate:"required,min=2,dive"`
}

// Parse decodes a YAML roster and applies defaults. It does not validate.
func Parse(data []byte) (*Roster, error) {
	roster := &Roster{Config: DefaultConfig()}
	if err := yaml.Unmarshal(data, roster); err != nil {
		return nil, fmt.Errorf("failed to parse roster: %w", err)
	}
	roster.applyDefaults()
	return roster, nil
}

// LoadFile reads, parses and validates a roster file
func LoadFile(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster %s: %w", path, err)
	}
	roster, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := Validate(roster); err != nil {
		return nil, err
	}
	return roster, nil
}

func (r *Roster) applyDefaults() {
	for i := range r.Units {
		r.Units[i] = r.Units[i].withDefaults()
	}
}

// Normalize applies unit defaults and sorts units by id so creation is deterministic
func (r *Roster) Normalize() {
	r.applyDefaults()
	sort.SliceStable(r.Units, func(i, j int) bool { return r.Units[i].ID < r.Units[j].ID })
}

// Clone returns a deep copy
func (r *Roster) Clone() *Roster {
	out := &Roster{Config: r.Config.Clone(), Units: make([]UnitSpec, len(r.Units))}
	for i, u := range r.Units {
		out.Units[i] = u.Clone()
	}
	return out
}

// Validate checks struct tags and the cross-field rules of a roster.
// Every failure wraps core.ErrValidation.
func Validate(r *Roster) error {
	if r == nil {
		return core.Validationf("roster is nil")
	}
	if err := validatorInstance.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return core.Validationf("%s failed on %s", verrs[0].Namespace(), verrs[0].Tag())
		}
		return core.Validationf("%v", err)
	}

	sides := make(map[core.GameSide]int)
	ids := make(map[string]bool, len(r.Units))
	occupied := make(map[core.Hex]string)
	blocked := r.Config.BlockedSet()

	for _, u := range r.Units {
		if ids[u.ID] {
			return core.Validationf("duplicate unit id %q", u.ID)
		}
		ids[u.ID] = true

		if !u.Side.Valid() {
			return core.Validationf("unit %s has no side", u.ID)
		}
		sides[u.Side]++

		if u.RunMP != 0 && u.RunMP < u.WalkMP {
			return core.Validationf("unit %s run MP %d below walk MP %d", u.ID, u.RunMP, u.WalkMP)
		}
		for loc := range u.Structure {
			if !isStandard(loc) {
				return core.Validationf("unit %s has unknown location %s", u.ID, loc)
			}
		}
		// damage transfers inward to the center torso, so every location must exist
		for _, loc := range core.StandardLocations {
			if u.Structure[loc] < 1 {
				return core.Validationf("unit %s needs structure in %s", u.ID, loc)
			}
		}
		for loc := range u.Armor {
			if !isStandard(loc) && !isRearKey(loc) {
				return core.Validationf("unit %s has unknown armor location %s", u.ID, loc)
			}
		}

		weaponIDs := make(map[string]bool, len(u.Weapons))
		for _, w := range u.Weapons {
			if weaponIDs[w.ID] {
				return core.Validationf("unit %s has duplicate weapon id %q", u.ID, w.ID)
			}
			weaponIDs[w.ID] = true
			if _, ok := u.Structure[w.Location]; !ok {
				return core.Validationf("unit %s weapon %s mounted in missing location %s", u.ID, w.ID, w.Location)
			}
			if w.UsesAmmo() && w.AmmoPerTon <= 0 {
				return core.Validationf("unit %s weapon %s uses ammo but has no shots per ton", u.ID, w.ID)
			}
		}

		if u.Position != nil {
			p := *u.Position
			if !p.Within(r.Config.MapRadius) {
				return core.Validationf("unit %s at %s is outside map radius %d", u.ID, p, r.Config.MapRadius)
			}
			if blocked[p] {
				return core.Validationf("unit %s deployed on blocked hex %s", u.ID, p)
			}
			if other, taken := occupied[p]; taken {
				return core.Validationf("units %s and %s share hex %s", other, u.ID, p)
			}
			occupied[p] = u.ID
		}
	}

	if sides[core.SidePlayer] == 0 || sides[core.SideOpponent] == 0 {
		return core.Validationf("both sides need at least one unit")
	}
	return nil
}

func isStandard(loc core.Location) bool {
	for _, known := range core.StandardLocations {
		if loc == known {
			return true
		}
	}
	return false
}

func isRearKey(loc core.Location) bool {
	for _, known := range core.StandardLocations {
		if known.HasRearArmor() && known.RearArmorKey() == loc {
			return true
		}
	}
	return false
}
