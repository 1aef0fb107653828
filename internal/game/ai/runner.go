// Package ai plays one side of an encounter through the same calls a human
// client makes. It reads snapshots and available actions and never touches
// the session directly.
package ai

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/events"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/rules"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/session"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/state"
)

const (
	DefaultHeatMargin        = 4
	DefaultMaxCallsPerUnit   = 3
	DefaultPhysicalThreshold = 0.5

	// minCallsPerUnit leaves room for the fallback lock after a rejected choice
	minCallsPerUnit = 2
)

// Client is the part of the session controller the runner drives
type Client interface {
	State() *state.GameState
	GetAvailableActions(unitID string) (session.AvailableActions, error)
	ApplyMovement(unitID string, target core.Hex, facing core.Facing, mt core.MovementType) ([]events.GameEvent, error)
	LockMovement(unitID string) ([]events.GameEvent, error)
	Pass(unitID string) ([]events.GameEvent, error)
	ApplyAttack(attackerID, targetID string, weaponIDs []string) ([]events.GameEvent, error)
	ApplyPhysicalAttack(attackerID, targetID string, kind core.PhysicalKind) ([]events.GameEvent, error)
}

// Decision records one call the runner made for a unit
type Decision struct {
	UnitID string    `json:"unit_id"`
	Action string    `json:"action"`
	Target string    `json:"target,omitempty"`
	Detail string    `json:"detail,omitempty"`
	Hex    *core.Hex `json:"hex,omitempty"`
	Events int       `json:"events"`
	Error  string    `json:"error,omitempty"`
}

// Report summarises one RunTurn call
type Report struct {
	Side      core.GameSide  `json:"side"`
	Phase     core.GamePhase `json:"phase"`
	Decisions []Decision     `json:"decisions"`
	Calls     int            `json:"calls"`
	Rejected  int            `json:"rejected"`
	Skipped   []string       `json:"skipped,omitempty"`
	GameOver  bool           `json:"game_over"`
}

// Runner decides and submits the actions of one side for the current phase
type Runner struct {
	heatMargin        int
	maxCallsPerUnit   int
	physicalThreshold float64
	logger            zerolog.Logger
}

// Option configures a Runner
type Option func(*Runner)

// WithHeatMargin caps the heat a unit may carry into the Heat phase after
// dissipation
func WithHeatMargin(margin int) Option {
	return func(r *Runner) { r.heatMargin = margin }
}

// WithMaxCallsPerUnit bounds the calls made for a single unit per RunTurn.
// Bounds below 2 are raised to 2.
func WithMaxCallsPerUnit(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxCallsPerUnit = max(n, minCallsPerUnit)
		}
	}
}

// WithPhysicalThreshold sets the minimum hit probability for a punch or kick
func WithPhysicalThreshold(p float64) Option {
	return func(r *Runner) { r.physicalThreshold = p }
}

// NewRunner creates a runner with the default heat margin and call bound
func NewRunner(logger zerolog.Logger, opts ...Option) *Runner {
	r := &Runner{
		heatMargin:        DefaultHeatMargin,
		maxCallsPerUnit:   DefaultMaxCallsPerUnit,
		physicalThreshold: DefaultPhysicalThreshold,
		logger:            logger.With().Str("component", "AIRunner").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// action is one candidate call for a unit
type action struct {
	decision Decision
	submit   func() ([]events.GameEvent, error)
}

// RunTurn commits every pending unit of side in the current phase. Phases
// without unit actions are a no-op. A rejected action falls back to locking
// the unit in place; a unit still unlocked after maxCallsPerUnit calls is
// reported as skipped. Any error that is not a rejection is returned.
func (r *Runner) RunTurn(ctx context.Context, c Client, side core.GameSide) (Report, error) {
	gs := c.State()
	report := Report{Side: side, Phase: gs.Phase, GameOver: gs.Ended()}
	if gs.Ended() || !gs.Phase.RequiresLock() {
		return report, nil
	}

	logger := r.logger.With().
		Str("game_id", gs.GameID).
		Str("side", side.String()).
		Str("phase", gs.Phase.String()).
		Int("turn", gs.Turn).
		Logger()

	for _, unitID := range pendingOf(gs, side) {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		locked := false
		for calls := 0; calls < r.maxCallsPerUnit && !locked; calls++ {
			current := c.State()
			if current.Ended() {
				report.GameOver = true
				return report, nil
			}
			u, ok := current.Unit(unitID)
			if !ok || !u.CanAct() || u.Locked() {
				locked = true
				break
			}

			var act action
			if calls == 0 {
				chosen, err := r.decide(c, current, u)
				if err != nil {
					return report, err
				}
				act = chosen
			} else {
				act = fallback(c, current.Phase, unitID)
			}

			evts, err := act.submit()
			report.Calls++
			act.decision.Events = len(evts)
			if err != nil {
				act.decision.Error = err.Error()
				report.Decisions = append(report.Decisions, act.decision)
				if errors.Is(err, core.ErrTerminalState) {
					report.GameOver = true
					return report, nil
				}
				if !core.IsRejection(err) {
					return report, fmt.Errorf("ai %s: %w", unitID, err)
				}
				report.Rejected++
				logger.Warn().Err(err).Str("unit_id", unitID).Str("action", act.decision.Action).Msg("AI action rejected")
				continue
			}

			report.Decisions = append(report.Decisions, act.decision)
			locked = true
			for _, evt := range evts {
				if evt.Type == events.TypeGameEnded {
					report.GameOver = true
				}
			}
			logger.Debug().
				Str("unit_id", unitID).
				Str("action", act.decision.Action).
				Str("target", act.decision.Target).
				Int("events", len(evts)).
				Msg("AI action committed")
		}

		if !locked {
			report.Skipped = append(report.Skipped, unitID)
			logger.Warn().Str("unit_id", unitID).Int("max_calls", r.maxCallsPerUnit).Msg("AI gave up on unit")
		}
		if report.GameOver {
			return report, nil
		}
	}
	return report, nil
}

func pendingOf(gs *state.GameState, side core.GameSide) []string {
	var out []string
	for _, id := range gs.PendingUnits() {
		if gs.Units[id].Side == side {
			out = append(out, id)
		}
	}
	return out
}

func (r *Runner) decide(c Client, gs *state.GameState, u *state.UnitState) (action, error) {
	avail, err := c.GetAvailableActions(u.ID)
	if err != nil {
		return action{}, err
	}
	switch gs.Phase {
	case core.PhaseMovement:
		return r.decideMovement(c, gs, u, avail), nil
	case core.PhaseWeaponAttack:
		return r.decideAttack(c, u, avail), nil
	case core.PhasePhysicalAttack:
		return r.decidePhysical(c, gs, u, avail), nil
	}
	return fallback(c, gs.Phase, u.ID), nil
}

// fallback locks the unit without acting
func fallback(c Client, phase core.GamePhase, unitID string) action {
	if phase == core.PhaseMovement {
		return action{
			decision: Decision{UnitID: unitID, Action: "lock_movement"},
			submit:   func() ([]events.GameEvent, error) { return c.LockMovement(unitID) },
		}
	}
	return action{
		decision: Decision{UnitID: unitID, Action: "pass"},
		submit:   func() ([]events.GameEvent, error) { return c.Pass(unitID) },
	}
}

type moveCandidate struct {
	mt     core.MovementType
	opt    session.MoveOption
	reach  int
	inBand bool
}

// decideMovement approaches the nearest enemy, preferring end hexes within
// the medium range of the unit's longest usable weapon and then the cheapest
// movement mode
func (r *Runner) decideMovement(c Client, gs *state.GameState, u *state.UnitState, avail session.AvailableActions) action {
	enemy := nearestEnemy(gs, u, u.Position)
	if enemy == nil {
		return fallback(c, gs.Phase, u.ID)
	}
	band := preferredRange(u)

	var candidates []moveCandidate
	for mt, opts := range avail.ValidMoves {
		for _, opt := range opts {
			d := opt.To.DistanceTo(enemy.Position)
			candidates = append(candidates, moveCandidate{
				mt:     mt,
				opt:    opt,
				reach:  d,
				inBand: d <= band,
			})
		}
	}
	if len(candidates) == 0 {
		return fallback(c, gs.Phase, u.ID)
	}

	slices.SortFunc(candidates, func(a, b moveCandidate) int {
		if a.inBand != b.inBand {
			if a.inBand {
				return -1
			}
			return 1
		}
		if !a.inBand {
			if n := cmp.Compare(a.reach, b.reach); n != 0 {
				return n
			}
		}
		if n := cmp.Compare(a.opt.Heat, b.opt.Heat); n != 0 {
			return n
		}
		if n := cmp.Compare(a.mt, b.mt); n != 0 {
			return n
		}
		if n := cmp.Compare(a.opt.Distance, b.opt.Distance); n != 0 {
			return n
		}
		if n := cmp.Compare(a.opt.To.Q, b.opt.To.Q); n != 0 {
			return n
		}
		return cmp.Compare(a.opt.To.R, b.opt.To.R)
	})

	best := candidates[0]
	if best.opt.To == u.Position {
		return fallback(c, gs.Phase, u.ID)
	}
	facing := core.FacingToward(best.opt.To, enemy.Position)
	to := best.opt.To
	return action{
		decision: Decision{
			UnitID: u.ID,
			Action: "move",
			Target: enemy.ID,
			Detail: fmt.Sprintf("%s %d hexes", best.mt, best.opt.Distance),
			Hex:    &to,
		},
		submit: func() ([]events.GameEvent, error) {
			return c.ApplyMovement(u.ID, to, facing, best.mt)
		},
	}
}

func nearestEnemy(gs *state.GameState, u *state.UnitState, from core.Hex) *state.UnitState {
	var best *state.UnitState
	bestDist := 0
	for _, enemy := range gs.UnitsOf(u.Side.Opponent()) {
		if !enemy.Operational() {
			continue
		}
		if d := from.DistanceTo(enemy.Position); best == nil || d < bestDist {
			best, bestDist = enemy, d
		}
	}
	return best
}

// preferredRange is the medium range of the longest ranged weapon that can
// still fire, or 1 for a unit that can only close in
func preferredRange(u *state.UnitState) int {
	band := 1
	for _, w := range u.Weapons {
		if u.WeaponUsable(w.ID) && w.MediumRange > band {
			band = w.MediumRange
		}
	}
	return band
}

// decideAttack fires at the target with the highest expected damage, adding
// weapons best first while the heat after dissipation stays within the margin
func (r *Runner) decideAttack(c Client, u *state.UnitState, avail session.AvailableActions) action {
	targets := slices.Clone(avail.ValidTargets)
	targets = slices.DeleteFunc(targets, func(t session.TargetOption) bool { return len(t.Weapons) == 0 })
	if len(targets) == 0 {
		return fallback(c, avail.Phase, u.ID)
	}
	slices.SortStableFunc(targets, func(a, b session.TargetOption) int {
		if n := cmp.Compare(b.ExpectedDamage, a.ExpectedDamage); n != 0 {
			return n
		}
		return cmp.Compare(a.UnitID, b.UnitID)
	})
	target := targets[0]

	ranked := slices.Clone(target.Weapons)
	value := func(id string) float64 {
		w, _ := u.Weapon(id)
		return target.HitProbability[id] * float64(w.Damage)
	}
	slices.SortStableFunc(ranked, func(a, b string) int {
		return cmp.Compare(value(b), value(a))
	})

	heat := u.Heat - u.HeatSinks
	var fire []string
	for _, id := range ranked {
		w, _ := u.Weapon(id)
		if value(id) <= 0 || heat+w.Heat > r.heatMargin {
			continue
		}
		heat += w.Heat
		fire = append(fire, id)
	}
	if len(fire) == 0 {
		act := fallback(c, avail.Phase, u.ID)
		act.decision.Detail = "no weapon within heat margin"
		return act
	}

	return action{
		decision: Decision{
			UnitID: u.ID,
			Action: "attack",
			Target: target.UnitID,
			Detail: fmt.Sprintf("%d weapons, expected %.1f", len(fire), target.ExpectedDamage),
		},
		submit: func() ([]events.GameEvent, error) {
			return c.ApplyAttack(u.ID, target.UnitID, fire)
		},
	}
}

// decidePhysical strikes an adjacent enemy with the attack of highest
// expected damage whose hit probability reaches the threshold
func (r *Runner) decidePhysical(c Client, gs *state.GameState, u *state.UnitState, avail session.AvailableActions) action {
	var (
		bestTarget string
		bestKind   core.PhysicalKind
		bestValue  float64
	)
	for _, t := range avail.ValidTargets {
		for _, kind := range t.Physical {
			p := t.PhysicalOdds[kind.String()]
			if p < r.physicalThreshold {
				continue
			}
			v := p * float64(rules.PhysicalDamage(u.Tonnage, kind))
			if v > bestValue {
				bestTarget, bestKind, bestValue = t.UnitID, kind, v
			}
		}
	}
	if bestTarget == "" {
		return fallback(c, gs.Phase, u.ID)
	}
	return action{
		decision: Decision{
			UnitID: u.ID,
			Action: "physical",
			Target: bestTarget,
			Detail: bestKind.String(),
		},
		submit: func() ([]events.GameEvent, error) {
			return c.ApplyPhysicalAttack(u.ID, bestTarget, bestKind)
		},
	}
}
