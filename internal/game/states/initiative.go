package states

import (
	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/events"
)

// maxInitiativeRerolls bounds the tie-break loop
const maxInitiativeRerolls = 32

// RollInitiative rolls 2d6 per side from the context's seeded roller. Ties
// are re-rolled until the sums differ; if they are still tied after
// maxInitiativeRerolls, the Player side wins. The higher roll wins initiative
// and the loser moves first.
func RollInitiative(ctx *PhaseContext) events.InitiativeRolled {
	var player, opponent, rerolls int
	for {
		player = ctx.Roller.Sum2D6()
		opponent = ctx.Roller.Sum2D6()
		if player != opponent || rerolls >= maxInitiativeRerolls {
			break
		}
		rerolls++
	}

	winner := core.SidePlayer
	if opponent > player {
		winner = core.SideOpponent
	}

	ctx.Logger.Debug().
		Int("player_roll", player).
		Int("opponent_roll", opponent).
		Int("rerolls", rerolls).
		Str("winner", winner.String()).
		Msg("Initiative rolled")

	return events.InitiativeRolled{
		PlayerRoll:   player,
		OpponentRoll: opponent,
		Rerolls:      rerolls,
		Winner:       winner,
		FirstMover:   winner.Opponent(),
	}
}
