package state

import (
	"maps"
	"slices"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/events"
)

// Reduce folds events over initial. A nil initial starts from Empty().
func Reduce(initial *GameState, evts []events.GameEvent) *GameState {
	s := initial
	if s == nil {
		s = Empty()
	}
	for _, evt := range evts {
		s = Apply(s, evt)
	}
	return s
}

// Apply returns the state after one event. The input is never modified:
// the top-level struct and unit map are copied, and each touched unit is
// cloned before it is changed. Unknown event types only advance LastSequence.
func Apply(s *GameState, evt events.GameEvent) *GameState {
	next := *s
	next.Units = maps.Clone(s.Units)
	if next.Units == nil {
		next.Units = make(map[string]*UnitState)
	}
	next.LastSequence = evt.Sequence

	switch p := evt.Payload.(type) {
	case events.GameCreated:
		applyGameCreated(&next, evt.GameID, p)

	case events.TurnStarted:
		next.Turn = p.Turn
		next.Phase = core.PhaseInitiative
		next.InitiativeRolled = false
		next.InitiativeWinner = core.SideNone
		next.FirstMover = core.SideNone
		next.ActivationIndex = 0
		for id := range next.Units {
			u := next.mutable(id)
			u.MovementType = core.MoveNone
			u.Distance = 0
			u.Lock = core.LockPending
		}

	case events.PhaseChanged:
		next.Phase = p.To
		next.ActivationIndex = 0
		for id, u := range next.Units {
			if u.Lock != core.LockPending {
				next.mutable(id).Lock = core.LockPending
			}
		}

	case events.InitiativeRolled:
		next.InitiativeRolled = true
		next.InitiativeWinner = p.Winner
		next.FirstMover = p.FirstMover

	case events.MovementDeclared:
		if u := next.mutable(p.UnitID); u != nil {
			u.Position = p.To
			u.Facing = p.Facing
			u.MovementType = p.MovementType
			u.Distance = p.Distance
			u.Heat += p.Heat
			next.lock(u)
		}

	case events.UnitPassed:
		if u := next.mutable(p.UnitID); u != nil {
			next.lock(u)
		}

	case events.UnitWithdrawn:
		if u := next.mutable(p.UnitID); u != nil {
			u.Withdrawn = true
			next.lock(u)
		}

	case events.AttackResolved:
		if u := next.mutable(p.AttackerID); u != nil {
			u.Heat += p.Heat
			if p.AmmoType != "" && u.Ammo[p.AmmoType] > 0 {
				u.Ammo[p.AmmoType]--
			}
			next.lock(u)
		}

	case events.PhysicalAttackResolved:
		if u := next.mutable(p.AttackerID); u != nil {
			next.lock(u)
		}

	case events.DamageApplied:
		if u := next.mutable(p.UnitID); u != nil {
			applyDamage(u, p)
		}

	case events.PilotHit:
		if u := next.mutable(p.UnitID); u != nil {
			u.PilotWounds = p.Wounds
			u.PilotConscious = p.Conscious
		}

	case events.HeatResolved:
		if u := next.mutable(p.UnitID); u != nil {
			u.Heat = p.Heat
		}

	case events.UnitDestroyed:
		if u := next.mutable(p.UnitID); u != nil {
			u.Destroyed = true
		}

	case events.GameEnded:
		next.Status = core.StatusEnded
		next.Winner = p.Winner
		next.EndReason = p.Reason

	case events.Unknown:
		// forward compatible: newer event types do not change this version's state
	}

	return &next
}

func applyGameCreated(s *GameState, gameID string, p events.GameCreated) {
	s.GameID = gameID
	s.Status = core.StatusActive
	s.Turn = 0
	s.Phase = core.PhaseInitiative
	s.Config = p.Config.Clone()
	s.Units = make(map[string]*UnitState, len(p.Units))
	for _, spec := range p.Units {
		u := &UnitState{
			ID:             spec.ID,
			Name:           spec.Name,
			Side:           spec.Side,
			Tonnage:        spec.Tonnage,
			Gunnery:        spec.Gunnery,
			Piloting:       spec.Piloting,
			WalkMP:         spec.WalkMP,
			RunMP:          spec.RunMP,
			JumpMP:         spec.JumpMP,
			HeatSinks:      spec.HeatSinks,
			Facing:         spec.Facing.Normalize(),
			Armor:          maps.Clone(spec.Armor),
			Structure:      maps.Clone(spec.Structure),
			Ammo:           spec.StartingAmmo(),
			Weapons:        slices.Clone(spec.Weapons),
			PilotConscious: true,
		}
		if u.Armor == nil {
			u.Armor = make(map[core.Location]int)
		}
		if spec.Position != nil {
			u.Position = *spec.Position
		}
		s.Units[u.ID] = u
	}
}

// applyDamage removes armor first, then structure. Damage beyond the
// structure is not kept here; the processor emits it as a separate
// transferred DamageApplied.
func applyDamage(u *UnitState, p events.DamageApplied) {
	armorKey := p.Location
	if p.Rear && p.Location.HasRearArmor() {
		armorKey = p.Location.RearArmorKey()
	}

	remaining := p.Damage
	if armor := u.Armor[armorKey]; armor > 0 {
		absorbed := min(armor, remaining)
		u.Armor[armorKey] = armor - absorbed
		remaining -= absorbed
	}
	if remaining <= 0 {
		return
	}

	structure, ok := u.Structure[p.Location]
	if !ok || structure <= 0 {
		return
	}
	u.Structure[p.Location] = max(structure-remaining, 0)
	if u.Structure[p.Location] > 0 || u.LocationDestroyed(p.Location) {
		return
	}

	u.DestroyedLocations = append(u.DestroyedLocations, p.Location)
	slices.Sort(u.DestroyedLocations)
	for _, w := range u.Weapons {
		if w.Location == p.Location && !slices.Contains(u.DestroyedEquipment, w.ID) {
			u.DestroyedEquipment = append(u.DestroyedEquipment, w.ID)
		}
	}
	slices.Sort(u.DestroyedEquipment)
}

// mutable swaps in a private copy of the unit and returns it
func (s *GameState) mutable(id string) *UnitState {
	u, ok := s.Units[id]
	if !ok {
		return nil
	}
	c := u.Clone()
	s.Units[id] = c
	return c
}

func (s *GameState) lock(u *UnitState) {
	if u.Lock == core.LockLocked {
		return
	}
	u.Lock = core.LockLocked
	s.ActivationIndex++
}
