package rules

import (
	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/encounter"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/state"
)

// End reasons recorded in GameEnded
const (
	ReasonElimination       = "elimination"
	ReasonMutualDestruction = "mutual destruction"
	ReasonTurnLimit         = "turn limit"
	ReasonConcede           = "concede"
)

// Result is the outcome of a victory check
type Result struct {
	Over   bool          `json:"over"`
	Winner core.GameSide `json:"winner"`
	Reason string        `json:"reason,omitempty"`
}

// Draw reports whether the game ended without a winner
func (r Result) Draw() bool {
	return r.Over && r.Winner == core.SideNone
}

// VictoryEvaluator handles game over detection and winner determination
type VictoryEvaluator struct {
	logger zerolog.Logger
}

// NewVictoryEvaluator creates a new victory evaluator
func NewVictoryEvaluator(logger zerolog.Logger) *VictoryEvaluator {
	return &VictoryEvaluator{
		logger: logger.With().Str("component", "VictoryEvaluator").Logger(),
	}
}

// Evaluate checks the terminal conditions against a snapshot. Elimination
// always applies; the turn limit applies when enabled and is checked once the
// last turn reaches its End phase.
func (ve *VictoryEvaluator) Evaluate(gs *state.GameState) Result {
	if gs.Ended() {
		return Result{Over: true, Winner: gs.Winner, Reason: gs.EndReason}
	}

	players := gs.OperationalCount(core.SidePlayer)
	opponents := gs.OperationalCount(core.SideOpponent)

	var res Result
	switch {
	case players == 0 && opponents == 0:
		res = Result{Over: true, Winner: core.SideNone, Reason: ReasonMutualDestruction}
	case players == 0:
		res = Result{Over: true, Winner: core.SideOpponent, Reason: ReasonElimination}
	case opponents == 0:
		res = Result{Over: true, Winner: core.SidePlayer, Reason: ReasonElimination}
	case ve.turnLimitReached(gs):
		res = Result{Over: true, Winner: core.SideNone, Reason: ReasonTurnLimit}
		if players > opponents {
			res.Winner = core.SidePlayer
		} else if opponents > players {
			res.Winner = core.SideOpponent
		}
	}

	ve.logger.Debug().
		Bool("is_game_over", res.Over).
		Int("player_units", players).
		Int("opponent_units", opponents).
		Int("turn", gs.Turn).
		Msg("Victory check complete")

	if res.Over {
		ve.logger.Info().
			Str("winner", res.Winner.String()).
			Str("reason", res.Reason).
			Msg("Game over determined")
	}
	return res
}

func (ve *VictoryEvaluator) turnLimitReached(gs *state.GameState) bool {
	cfg := gs.Config
	return cfg.Has(encounter.VictoryTurnLimit) &&
		cfg.TurnLimit > 0 &&
		gs.Turn >= cfg.TurnLimit &&
		gs.Phase == core.PhaseEnd
}
