package subscribers

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/events"
)

// LoggerSubscriber logs events to structured logs
type LoggerSubscriber struct {
	id              string
	logger          zerolog.Logger
	logLevel        zerolog.Level
	eventTypeFilter map[events.Type]bool // If non-nil, only log these event types
	devMode         bool                 // If true, log the full event record
}

// NewLoggerSubscriber creates a new logger subscriber
func NewLoggerSubscriber(id string, logger zerolog.Logger, logLevel zerolog.Level) *LoggerSubscriber {
	return &LoggerSubscriber{
		id:       id,
		logger:   logger.With().Str("subscriber", "event_logger").Logger(),
		logLevel: logLevel,
	}
}

// ID returns the subscriber's unique identifier
func (ls *LoggerSubscriber) ID() string {
	return ls.id
}

// SetEventFilter sets which event types to log (nil means log all)
func (ls *LoggerSubscriber) SetEventFilter(eventTypes []events.Type) {
	if len(eventTypes) == 0 {
		ls.eventTypeFilter = nil
		return
	}

	ls.eventTypeFilter = make(map[events.Type]bool)
	for _, eventType := range eventTypes {
		ls.eventTypeFilter[eventType] = true
	}
}

// SetDevMode enables or disables development mode logging
func (ls *LoggerSubscriber) SetDevMode(enabled bool) {
	ls.devMode = enabled
}

// InterestedIn returns true if the subscriber wants to receive this event type
func (ls *LoggerSubscriber) InterestedIn(eventType events.Type) bool {
	if ls.eventTypeFilter == nil {
		return true
	}
	return ls.eventTypeFilter[eventType]
}

// HandleEvent processes an event by logging it
func (ls *LoggerSubscriber) HandleEvent(event events.GameEvent) {
	eventLogger := ls.logger.With().
		Str("event_type", string(event.Type)).
		Str("game_id", event.GameID).
		Int("seq", event.Sequence).
		Int("turn", event.Turn).
		Str("phase", event.Phase.String()).
		Time("timestamp", event.Timestamp).
		Logger()

	var logEvent *zerolog.Event
	switch ls.logLevel {
	case zerolog.DebugLevel:
		logEvent = eventLogger.Debug()
	case zerolog.InfoLevel:
		logEvent = eventLogger.Info()
	case zerolog.WarnLevel:
		logEvent = eventLogger.Warn()
	case zerolog.ErrorLevel:
		logEvent = eventLogger.Error()
	default:
		logEvent = eventLogger.Info()
	}

	// Add event-specific fields based on type
	switch e := event.Payload.(type) {
	case events.GameCreated:
		logEvent.
			Int("units", len(e.Units)).
			Int("map_radius", e.Config.MapRadius).
			Int64("seed", e.Config.Seed)

	case events.PhaseChanged:
		logEvent.
			Str("from_phase", e.From.String()).
			Str("to_phase", e.To.String())

	case events.InitiativeRolled:
		logEvent.
			Int("player_roll", e.PlayerRoll).
			Int("opponent_roll", e.OpponentRoll).
			Str("winner", e.Winner.String())

	case events.MovementDeclared:
		logEvent.
			Str("unit_id", e.UnitID).
			Str("from", e.From.String()).
			Str("to", e.To.String()).
			Str("movement_type", e.MovementType.String()).
			Int("distance", e.Distance)

	case events.AttackResolved:
		logEvent.
			Str("attacker_id", e.AttackerID).
			Str("target_id", e.TargetID).
			Str("weapon_id", e.WeaponID).
			Int("target_number", e.TargetNumber).
			Int("roll", e.Roll).
			Bool("hit", e.Hit)

	case events.PhysicalAttackResolved:
		logEvent.
			Str("attacker_id", e.AttackerID).
			Str("target_id", e.TargetID).
			Str("kind", e.Kind.String()).
			Int("roll", e.Roll).
			Bool("hit", e.Hit)

	case events.DamageApplied:
		logEvent.
			Str("unit_id", e.UnitID).
			Str("location", string(e.Location)).
			Int("damage", e.Damage).
			Bool("transferred", e.Transferred)

	case events.PilotHit:
		logEvent.
			Str("unit_id", e.UnitID).
			Int("wounds", e.Wounds).
			Bool("conscious", e.Conscious)

	case events.UnitDestroyed:
		logEvent.
			Str("unit_id", e.UnitID).
			Str("reason", e.Reason)

	case events.GameEnded:
		logEvent.
			Str("winner", e.Winner.String()).
			Str("reason", e.Reason)

	default:
		if id := events.UnitID(event.Payload); id != "" {
			logEvent.Str("unit_id", id)
		}
	}

	// In dev mode, also log the full event as JSON
	if ls.devMode {
		if jsonData, err := json.Marshal(event); err == nil {
			logEvent.RawJSON("event_data", jsonData)
		}
	}

	logEvent.Msg("Game event")
}
