package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
)

// Record is the storage and wire form of a GameEvent
type Record struct {
	ID        string          `json:"id"`
	GameID    string          `json:"game_id"`
	Sequence  int             `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Type      string          `json:"type"`
	Turn      int             `json:"turn"`
	Phase     string          `json:"phase"`
	TxID      string          `json:"tx_id"`
	Payload   json.RawMessage `json:"payload"`
}

// Encode converts an event to its record form
func Encode(evt GameEvent) (Record, error) {
	if evt.Payload == nil {
		return Record{}, fmt.Errorf("event %d has no payload", evt.Sequence)
	}
	var body []byte
	if u, ok := evt.Payload.(Unknown); ok {
		body = u.Raw
		if len(body) == 0 {
			body = []byte("{}")
		}
	} else {
		var err error
		body, err = json.Marshal(evt.Payload)
		if err != nil {
			return Record{}, fmt.Errorf("failed to encode %s payload: %w", evt.Type, err)
		}
	}

	typeName := string(evt.Type)
	if u, ok := evt.Payload.(Unknown); ok && u.TypeName != "" {
		typeName = u.TypeName
	}

	return Record{
		ID:        evt.ID,
		GameID:    evt.GameID,
		Sequence:  evt.Sequence,
		Timestamp: evt.Timestamp.UTC(),
		Type:      typeName,
		Turn:      evt.Turn,
		Phase:     evt.Phase.String(),
		TxID:      evt.TxID,
		Payload:   body,
	}, nil
}

// Decode converts a record back to an event. Unrecognized types decode to an
// Unknown payload; a malformed body for a known type is an error.
func Decode(rec Record) (GameEvent, error) {
	phase, err := core.ParsePhase(rec.Phase)
	if err != nil {
		return GameEvent{}, fmt.Errorf("event %d: %w", rec.Sequence, err)
	}

	evt := GameEvent{
		ID:        rec.ID,
		GameID:    rec.GameID,
		Sequence:  rec.Sequence,
		Timestamp: rec.Timestamp,
		Type:      ParseType(rec.Type),
		Turn:      rec.Turn,
		Phase:     phase,
		TxID:      rec.TxID,
	}

	payload, err := decodePayload(evt.Type, rec.Payload)
	if err != nil {
		return GameEvent{}, fmt.Errorf("event %d (%s): %w", rec.Sequence, rec.Type, err)
	}
	if u, ok := payload.(Unknown); ok {
		u.TypeName = rec.Type
		payload = u
	}
	evt.Payload = payload
	return evt, nil
}

func decodePayload(t Type, body json.RawMessage) (Payload, error) {
	switch t {
	case TypeGameCreated:
		return unmarshal[GameCreated](body)
	case TypeTurnStarted:
		return unmarshal[TurnStarted](body)
	case TypePhaseChanged:
		return unmarshal[PhaseChanged](body)
	case TypeInitiativeRolled:
		return unmarshal[InitiativeRolled](body)
	case TypeMovementDeclared:
		return unmarshal[MovementDeclared](body)
	case TypeUnitPassed:
		return unmarshal[UnitPassed](body)
	case TypeUnitWithdrawn:
		return unmarshal[UnitWithdrawn](body)
	case TypeAttackResolved:
		return unmarshal[AttackResolved](body)
	case TypePhysicalAttackResolved:
		return unmarshal[PhysicalAttackResolved](body)
	case TypeDamageApplied:
		return unmarshal[DamageApplied](body)
	case TypePilotHit:
		return unmarshal[PilotHit](body)
	case TypeHeatResolved:
		return unmarshal[HeatResolved](body)
	case TypeUnitDestroyed:
		return unmarshal[UnitDestroyed](body)
	case TypeGameEnded:
		return unmarshal[GameEnded](body)
	default:
		return Unknown{Raw: bytes.Clone(body)}, nil
	}
}

func unmarshal[T Payload](body json.RawMessage) (Payload, error) {
	var p T
	if len(body) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("malformed payload: %w", err)
	}
	return p, nil
}

// MarshalJSON encodes the event in its record form
func (e GameEvent) MarshalJSON() ([]byte, error) {
	rec, err := Encode(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rec)
}

// UnmarshalJSON decodes the record form
func (e *GameEvent) UnmarshalJSON(data []byte) error {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	evt, err := Decode(rec)
	if err != nil {
		return err
	}
	*e = evt
	return nil
}

// EncodeAll encodes a slice of events
func EncodeAll(evts []GameEvent) ([]Record, error) {
	out := make([]Record, 0, len(evts))
	for _, evt := range evts {
		rec, err := Encode(evt)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
