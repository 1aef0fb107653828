package states

import (
	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/events"
)

// Transition is one phase change observed in a log
type Transition struct {
	Sequence int
	Turn     int
	From     core.GamePhase
	To       core.GamePhase
}

// Transitions returns every PhaseChanged in the log in order, tagged with the
// turn that was current when it happened
func Transitions(evts []events.GameEvent) []Transition {
	var out []Transition
	turn := 0
	for _, evt := range evts {
		switch p := evt.Payload.(type) {
		case events.TurnStarted:
			turn = p.Turn
		case events.PhaseChanged:
			out = append(out, Transition{Sequence: evt.Sequence, Turn: turn, From: p.From, To: p.To})
		}
	}
	return out
}
