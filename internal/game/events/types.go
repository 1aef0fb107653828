package events

import (
	"time"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
)

// Type identifies the variant of a GameEvent
type Type string

// Event type constants
const (
	TypeGameCreated            Type = "game.created"
	TypeTurnStarted            Type = "turn.started"
	TypePhaseChanged           Type = "phase.changed"
	TypeInitiativeRolled       Type = "initiative.rolled"
	TypeMovementDeclared       Type = "movement.declared"
	TypeUnitPassed             Type = "unit.passed"
	TypeUnitWithdrawn          Type = "unit.withdrawn"
	TypeAttackResolved         Type = "attack.resolved"
	TypePhysicalAttackResolved Type = "physical_attack.resolved"
	TypeDamageApplied          Type = "damage.applied"
	TypePilotHit               Type = "pilot.hit"
	TypeHeatResolved           Type = "heat.resolved"
	TypeUnitDestroyed          Type = "unit.destroyed"
	TypeGameEnded              Type = "game.ended"
	TypeUnknown                Type = "unknown"
)

var knownTypes = []Type{
	TypeGameCreated, TypeTurnStarted, TypePhaseChanged, TypeInitiativeRolled,
	TypeMovementDeclared, TypeUnitPassed, TypeUnitWithdrawn, TypeAttackResolved,
	TypePhysicalAttackResolved, TypeDamageApplied, TypePilotHit, TypeHeatResolved,
	TypeUnitDestroyed, TypeGameEnded,
}

// KnownTypes returns every event type the reducer understands
func KnownTypes() []Type {
	out := make([]Type, len(knownTypes))
	copy(out, knownTypes)
	return out
}

func (t Type) String() string { return string(t) }

// ParseType maps a stored type string to a Type. Strings written by a newer
// version come back as TypeUnknown.
func ParseType(s string) Type {
	for _, t := range knownTypes {
		if string(t) == s {
			return t
		}
	}
	return TypeUnknown
}

// GameEvent is one entry of a session's event log
type GameEvent struct {
	ID        string
	GameID    string
	Sequence  int
	Timestamp time.Time
	Type      Type
	Turn      int
	Phase     core.GamePhase
	TxID      string
	Payload   Payload
}

// EventHandler is a function that processes events
type EventHandler func(GameEvent)

// Subscriber represents an entity that can receive events
type Subscriber interface {
	// ID returns a unique identifier for this subscriber
	ID() string
	// HandleEvent processes an event
	HandleEvent(GameEvent)
	// InterestedIn returns true if the subscriber wants to receive this event type
	InterestedIn(eventType Type) bool
}

// Publisher is the interface for publishing events
type Publisher interface {
	// Publish sends an event to all interested subscribers
	Publish(GameEvent)
}

// Bus is the main event bus interface
type Bus interface {
	Publisher
	// Subscribe adds a new subscriber to the event bus
	Subscribe(Subscriber)
	// Unsubscribe removes a subscriber from the event bus
	Unsubscribe(subscriberID string)
	// SubscribeFunc adds a function handler for specific event types
	SubscribeFunc(eventType Type, handler EventHandler) string
}
