package states

import (
	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/dice"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/state"
)

// PhaseContext gives phase handlers what they need to decide on a transition
type PhaseContext struct {
	// State is the snapshot the transition starts from
	State *state.GameState

	// Roller is the seeded roller of the transaction being built
	Roller *dice.Roller

	// Logger for state-specific logging
	Logger zerolog.Logger
}

// NewPhaseContext creates a phase context
func NewPhaseContext(gs *state.GameState, roller *dice.Roller, logger zerolog.Logger) *PhaseContext {
	return &PhaseContext{
		State:  gs,
		Roller: roller,
		Logger: logger.With().Str("game_id", gs.GameID).Logger(),
	}
}
