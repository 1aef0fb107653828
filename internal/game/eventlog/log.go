// Package eventlog is the append-only, gapless event sequence of one session.
//
// A Log is not safe for concurrent use; the owning session serializes access.
package eventlog

import (
	"fmt"
	"slices"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/events"
)

// Log holds events with sequence numbers 1..Len()
type Log struct {
	events []events.GameEvent
	ended  bool
}

// New creates an empty log
func New() *Log {
	return &Log{}
}

// FromEvents builds a log from stored events, checking contiguity and that
// nothing mutating follows a GameEnded event
func FromEvents(evts []events.GameEvent) (*Log, error) {
	l := New()
	for _, evt := range evts {
		if err := l.Append(evt); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Append adds one event. Its sequence must be Len()+1.
func (l *Log) Append(evt events.GameEvent) error {
	if err := l.check(evt, l.Len()+1); err != nil {
		return err
	}
	l.push(evt)
	return nil
}

// AppendTx appends a transaction: contiguous events sharing one TxID. The
// whole batch is validated first so either all events are appended or none.
func (l *Log) AppendTx(evts []events.GameEvent) error {
	if len(evts) == 0 {
		return fmt.Errorf("empty transaction")
	}
	txID := evts[0].TxID
	if txID == "" {
		return fmt.Errorf("transaction id is required")
	}

	ended := l.ended
	next := l.Len() + 1
	for i, evt := range evts {
		if evt.TxID != txID {
			return fmt.Errorf("event %d belongs to transaction %q, expected %q", evt.Sequence, evt.TxID, txID)
		}
		if evt.Sequence != next+i {
			return &core.SequenceError{Expected: next + i, Got: evt.Sequence}
		}
		if evt.Sequence == 1 && evt.Type != events.TypeGameCreated {
			return fmt.Errorf("log must start with %s, got %s", events.TypeGameCreated, evt.Type)
		}
		if ended && events.MutatesCombat(evt.Type) {
			return fmt.Errorf("%w: %s after game end", core.ErrTerminalState, evt.Type)
		}
		if evt.Type == events.TypeGameEnded {
			ended = true
		}
	}

	for _, evt := range evts {
		l.push(evt)
	}
	return nil
}

func (l *Log) check(evt events.GameEvent, want int) error {
	if evt.Sequence != want {
		return &core.SequenceError{Expected: want, Got: evt.Sequence}
	}
	if want == 1 && evt.Type != events.TypeGameCreated {
		return fmt.Errorf("log must start with %s, got %s", events.TypeGameCreated, evt.Type)
	}
	if l.ended && events.MutatesCombat(evt.Type) {
		return fmt.Errorf("%w: %s after game end", core.ErrTerminalState, evt.Type)
	}
	return nil
}

func (l *Log) push(evt events.GameEvent) {
	l.events = append(l.events, evt)
	if evt.Type == events.TypeGameEnded {
		l.ended = true
	}
}

// Len returns the number of events
func (l *Log) Len() int {
	return len(l.events)
}

// LastSequence returns the sequence of the newest event, 0 when empty
func (l *Log) LastSequence() int {
	return len(l.events)
}

// Ended reports whether a GameEnded event has been appended
func (l *Log) Ended() bool {
	return l.ended
}

// Events returns a copy of every event
func (l *Log) Events() []events.GameEvent {
	return slices.Clone(l.events)
}

// Prefix returns a copy of the first n events
func (l *Log) Prefix(n int) ([]events.GameEvent, error) {
	if n < 0 || n > len(l.events) {
		return nil, &core.ReplayCorruptionError{
			Sequence: n,
			Reason:   fmt.Sprintf("sequence out of range 0..%d", len(l.events)),
		}
	}
	return slices.Clone(l.events[:n]), nil
}

// LastTransaction returns the trailing run of events that share the newest TxID
func (l *Log) LastTransaction() []events.GameEvent {
	if len(l.events) == 0 {
		return nil
	}
	txID := l.events[len(l.events)-1].TxID
	start := len(l.events) - 1
	for start > 0 && l.events[start-1].TxID == txID {
		start--
	}
	return slices.Clone(l.events[start:])
}

// TruncateTo drops every event after sequence n
func (l *Log) TruncateTo(n int) error {
	if n < 0 || n > len(l.events) {
		return fmt.Errorf("truncate to %d: log has %d events", n, len(l.events))
	}
	clear(l.events[n:])
	l.events = l.events[:n]
	l.ended = false
	for _, evt := range l.events {
		if evt.Type == events.TypeGameEnded {
			l.ended = true
			break
		}
	}
	return nil
}
