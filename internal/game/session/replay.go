package session

import (
	"errors"
	"fmt"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/eventlog"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/events"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/state"
)

// ReplayToSequence reduces the first n events of the session's log. n = 0
// gives the empty state and n = Len() the live state.
func ReplayToSequence(s *GameSession, n int) (*state.GameState, error) {
	prefix, err := s.Log.Prefix(n)
	if err != nil {
		return nil, err
	}
	return state.Reduce(nil, prefix), nil
}

// ReplayTo reduces the first n events of this session's log
func (c *Controller) ReplayTo(n int) (*state.GameState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ReplayToSequence(c.session, n)
}

// Undo removes the last transaction and rebuilds the snapshot from the
// remaining log. The creation transaction cannot be undone. Undo is allowed
// after the game has ended and reverts the transaction that ended it.
func (c *Controller) Undo() ([]events.GameEvent, error) {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	c.mu.Lock()
	locked := true
	defer func() {
		if locked {
			c.mu.Unlock()
		}
	}()

	last := c.session.Log.LastTransaction()
	if len(last) == 0 || last[0].Sequence == 1 {
		return nil, core.WrapActionError("", "undo", core.ErrNothingToUndo)
	}
	keep := last[0].Sequence - 1

	if j := c.opts.journal; j != nil {
		if err := j.TruncateEvents(c.session.ID, keep); err != nil {
			c.logger.Error().Err(err).Int("keep", keep).Msg("Journal truncate failed")
			return nil, core.WrapActionError("", "undo", fmt.Errorf("journal truncate: %w", err))
		}
	}
	if err := c.session.Log.TruncateTo(keep); err != nil {
		return nil, core.WrapActionError("", "undo", err)
	}

	c.snapshot = state.Reduce(nil, c.session.Log.Events())
	c.session.UpdatedAt = c.opts.clock()

	c.logger.Info().
		Str("tx_id", last[0].TxID).
		Int("removed", len(last)).
		Int("last_seq", keep).
		Msg("Transaction undone")

	snapshot := c.snapshot
	c.mu.Unlock()
	locked = false

	c.notify(snapshot, Change{GameID: c.session.ID, Kind: ChangeUndo, Events: last})
	return last, nil
}

// Restore rebuilds a controller from a persisted log. The log must start with
// GameCreated, be contiguous from 1 and belong to id; anything else is a
// ReplayCorruptionError.
func Restore(id string, evts []events.GameEvent, opts ...Option) (*Controller, error) {
	if len(evts) == 0 {
		return nil, &core.ReplayCorruptionError{Sequence: 0, Reason: "empty log"}
	}
	for _, evt := range evts {
		if evt.Payload == nil {
			return nil, &core.ReplayCorruptionError{Sequence: evt.Sequence, Reason: "missing payload"}
		}
		if evt.Payload.EventType() != evt.Type && evt.Type != events.TypeUnknown {
			return nil, &core.ReplayCorruptionError{
				Sequence: evt.Sequence,
				Reason:   fmt.Sprintf("payload %s does not match type %s", evt.Payload.EventType(), evt.Type),
			}
		}
		if evt.GameID != "" && evt.GameID != id {
			return nil, &core.ReplayCorruptionError{
				Sequence: evt.Sequence,
				Reason:   fmt.Sprintf("event belongs to game %s", evt.GameID),
			}
		}
	}
	created, ok := evts[0].Payload.(events.GameCreated)
	if !ok {
		return nil, &core.ReplayCorruptionError{Sequence: evts[0].Sequence, Reason: "log does not start with " + string(events.TypeGameCreated)}
	}

	log, err := eventlog.FromEvents(evts)
	if err != nil {
		var seqErr *core.SequenceError
		if errors.As(err, &seqErr) {
			return nil, &core.ReplayCorruptionError{Sequence: seqErr.Got, Reason: "sequence gap", Err: err}
		}
		return nil, &core.ReplayCorruptionError{Reason: "invalid log", Err: err}
	}

	o := newOptions(opts)
	c := newController(id, o)
	c.session.Log = log
	c.session.Config = created.Config.Clone()
	c.session.Roster = created.Units
	c.session.CreatedAt = evts[0].Timestamp
	c.session.UpdatedAt = evts[len(evts)-1].Timestamp
	c.snapshot = state.Reduce(nil, log.Events())

	c.logger.Info().
		Int("events", log.Len()).
		Str("phase", c.snapshot.Phase.String()).
		Int("turn", c.snapshot.Turn).
		Bool("ended", c.snapshot.Ended()).
		Msg("Restored game session")
	return c, nil
}
