package subscribers_test

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/events"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/events/subscribers"
)

func newEvent(seq int, payload events.Payload) events.GameEvent {
	return events.GameEvent{
		ID:        "evt",
		GameID:    "test-game-1",
		Sequence:  seq,
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Type:      payload.EventType(),
		Turn:      2,
		Phase:     core.PhaseWeaponAttack,
		TxID:      "tx",
		Payload:   payload,
	}
}

func TestLoggerSubscriber(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).With().Timestamp().Logger()

	logSub := subscribers.NewLoggerSubscriber("test-logger", logger, zerolog.InfoLevel)

	assert.Equal(t, "test-logger", logSub.ID())

	// Interested in everything by default
	assert.True(t, logSub.InterestedIn(events.TypeGameCreated))
	assert.True(t, logSub.InterestedIn(events.TypeTurnStarted))
	assert.True(t, logSub.InterestedIn(events.Type("any.event.type")))
}

func TestLoggerSubscriberEventLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	logSub := subscribers.NewLoggerSubscriber("event-logger", logger, zerolog.InfoLevel)

	testCases := []struct {
		name  string
		event events.GameEvent
		check func(t *testing.T, logLine map[string]interface{})
	}{
		{
			name: "MovementDeclared",
			event: newEvent(5, events.MovementDeclared{
				UnitID:       "alpha",
				From:         core.NewHex(0, 3),
				To:           core.NewHex(1, 1),
				MovementType: core.MoveRun,
				Distance:     2,
			}),
			check: func(t *testing.T, logLine map[string]interface{}) {
				assert.Equal(t, "alpha", logLine["unit_id"])
				assert.Equal(t, "(0,3)", logLine["from"])
				assert.Equal(t, "(1,1)", logLine["to"])
				assert.Equal(t, "Run", logLine["movement_type"])
				assert.Equal(t, float64(2), logLine["distance"])
			},
		},
		{
			name: "AttackResolved",
			event: newEvent(6, events.AttackResolved{
				AttackerID:   "alpha",
				TargetID:     "bravo",
				WeaponID:     "ml-ra",
				TargetNumber: 4,
				Roll:         9,
				Hit:          true,
			}),
			check: func(t *testing.T, logLine map[string]interface{}) {
				assert.Equal(t, "alpha", logLine["attacker_id"])
				assert.Equal(t, "bravo", logLine["target_id"])
				assert.Equal(t, "ml-ra", logLine["weapon_id"])
				assert.Equal(t, float64(4), logLine["target_number"])
				assert.Equal(t, float64(9), logLine["roll"])
				assert.Equal(t, true, logLine["hit"])
			},
		},
		{
			name: "PhysicalAttackResolved",
			event: newEvent(7, events.PhysicalAttackResolved{
				AttackerID: "alpha",
				TargetID:   "bravo",
				Kind:       core.PhysicalKick,
				Roll:       3,
			}),
			check: func(t *testing.T, logLine map[string]interface{}) {
				assert.Equal(t, "Kick", logLine["kind"])
				assert.Equal(t, false, logLine["hit"])
			},
		},
		{
			name: "DamageApplied",
			event: newEvent(8, events.DamageApplied{
				UnitID:      "bravo",
				Location:    core.LocCenterTorso,
				Damage:      5,
				Transferred: true,
			}),
			check: func(t *testing.T, logLine map[string]interface{}) {
				assert.Equal(t, "bravo", logLine["unit_id"])
				assert.Equal(t, "CENTER_TORSO", logLine["location"])
				assert.Equal(t, float64(5), logLine["damage"])
				assert.Equal(t, true, logLine["transferred"])
			},
		},
		{
			name:  "GameEnded",
			event: newEvent(9, events.GameEnded{Winner: core.SidePlayer, Reason: "elimination"}),
			check: func(t *testing.T, logLine map[string]interface{}) {
				assert.Equal(t, "Player", logLine["winner"])
				assert.Equal(t, "elimination", logLine["reason"])
			},
		},
		{
			name:  "UnitPassed",
			event: newEvent(10, events.UnitPassed{UnitID: "charlie"}),
			check: func(t *testing.T, logLine map[string]interface{}) {
				assert.Equal(t, "charlie", logLine["unit_id"])
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			buf.Reset()
			logSub.HandleEvent(tc.event)

			logOutput := buf.String()
			require.NotEmpty(t, logOutput, "Log output should not be empty")

			var logLine map[string]interface{}
			err := json.Unmarshal([]byte(logOutput), &logLine)
			require.NoError(t, err, "Should be able to parse log output as JSON")

			// Common checks
			assert.Equal(t, "info", logLine["level"])
			assert.Equal(t, "Game event", logLine["message"])
			assert.Equal(t, string(tc.event.Type), logLine["event_type"])
			assert.Equal(t, "test-game-1", logLine["game_id"])
			assert.Equal(t, float64(tc.event.Sequence), logLine["seq"])
			assert.Equal(t, "WeaponAttack", logLine["phase"])
			assert.NotContains(t, logLine, "event_data")

			tc.check(t, logLine)
		})
	}
}

func TestLoggerSubscriberWithFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	logSub := subscribers.NewLoggerSubscriber("filtered-logger", logger, zerolog.InfoLevel)
	logSub.SetEventFilter([]events.Type{events.TypeGameCreated, events.TypeGameEnded})

	assert.True(t, logSub.InterestedIn(events.TypeGameCreated))
	assert.True(t, logSub.InterestedIn(events.TypeGameEnded))
	assert.False(t, logSub.InterestedIn(events.TypeTurnStarted))
	assert.False(t, logSub.InterestedIn(events.TypeMovementDeclared))

	bus := events.NewEventBusWithLogger(zerolog.Nop())
	bus.Subscribe(logSub)

	bus.Publish(newEvent(1, events.TurnStarted{Turn: 1}))
	assert.Empty(t, buf.String(), "filtered event should not be logged")

	bus.Publish(newEvent(2, events.GameEnded{Winner: core.SideOpponent, Reason: "concede"}))
	assert.Contains(t, buf.String(), "game.ended")

	// An empty filter logs everything again
	logSub.SetEventFilter(nil)
	assert.True(t, logSub.InterestedIn(events.TypeTurnStarted))
}

func TestLoggerSubscriberLogLevels(t *testing.T) {
	testCases := []struct {
		name     string
		logLevel zerolog.Level
		expected string
	}{
		{"Debug", zerolog.DebugLevel, "debug"},
		{"Info", zerolog.InfoLevel, "info"},
		{"Warn", zerolog.WarnLevel, "warn"},
		{"Error", zerolog.ErrorLevel, "error"},
		{"Trace falls back to info", zerolog.TraceLevel, "info"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)

			logSub := subscribers.NewLoggerSubscriber("level-logger", logger, tc.logLevel)
			logSub.HandleEvent(newEvent(1, events.TurnStarted{Turn: 1}))

			var logLine map[string]interface{}
			require.NoError(t, json.Unmarshal(buf.Bytes(), &logLine))
			assert.Equal(t, tc.expected, logLine["level"])
		})
	}
}

func TestLoggerSubscriberDevelopmentMode(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	logSub := subscribers.NewLoggerSubscriber("dev-logger", logger, zerolog.InfoLevel)
	logSub.SetDevMode(true)

	logSub.HandleEvent(newEvent(4, events.HeatResolved{UnitID: "alpha", Previous: 6, Dissipated: 10, Heat: 0}))

	var logLine map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logLine))

	eventData, ok := logLine["event_data"].(map[string]interface{})
	require.True(t, ok, "event_data should be the event record")
	assert.Equal(t, "heat.resolved", eventData["type"])
	assert.Equal(t, float64(4), eventData["seq"])

	payload, ok := eventData["payload"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(6), payload["previous"])
	assert.Equal(t, "alpha", logLine["unit_id"])
}
