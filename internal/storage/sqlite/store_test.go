package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/events"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/session"
	"github.com/mitchelldurbincs/MekEncounter/internal/testutil"
)

func openStore(t *testing.T, opts ...Option) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func newJournaledSession(t *testing.T, s *Store, id string) *session.Controller {
	t.Helper()
	r := testutil.DuelRoster()
	c, err := session.CreateSession(r.Config, r.Units,
		session.WithSessionID(id),
		session.WithClock(testutil.FixedClock()),
		session.WithIDGenerator(testutil.SequentialIDs(id)),
		session.WithJournal(s.Bind(context.Background())),
	)
	require.NoError(t, err)
	return c
}

func assertSameLog(t *testing.T, want, got []events.GameEvent) {
	t.Helper()
	require.Len(t, got, len(want))
	wantRecs, err := events.EncodeAll(want)
	require.NoError(t, err)
	gotRecs, err := events.EncodeAll(got)
	require.NoError(t, err)
	for i := range wantRecs {
		assert.Equal(t, wantRecs[i].Sequence, gotRecs[i].Sequence)
		assert.Equal(t, wantRecs[i].TxID, gotRecs[i].TxID)
		assert.Equal(t, wantRecs[i].Type, gotRecs[i].Type)
		assert.Equal(t, wantRecs[i].Phase, gotRecs[i].Phase)
		assert.True(t, wantRecs[i].Timestamp.Equal(gotRecs[i].Timestamp))
		assert.JSONEq(t, string(wantRecs[i].Payload), string(gotRecs[i].Payload))
	}
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}

func TestJournalFollowsSession(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	c := newJournaledSession(t, s, "g1")

	_, err := c.RollInitiative()
	require.NoError(t, err)
	_, err = c.AdvancePhase()
	require.NoError(t, err)

	stored, err := s.LoadEvents(ctx, "g1")
	require.NoError(t, err)
	assertSameLog(t, c.Events(), stored)

	_, err = c.Undo()
	require.NoError(t, err)
	stored, err = s.LoadEvents(ctx, "g1")
	require.NoError(t, err)
	assertSameLog(t, c.Events(), stored)

	restored, err := session.Restore("g1", stored)
	require.NoError(t, err)
	want, err := c.Fingerprint()
	require.NoError(t, err)
	got, err := restored.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestAppendEventsContiguity(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	c := newJournaledSession(t, s, "g1")
	log := c.Events()

	tests := []struct {
		name string
		evts []events.GameEvent
	}{
		{"replays stored sequence", log[:1]},
		{"leaves a gap", []events.GameEvent{withSeq(log[0], 5)}},
		{"not consecutive", []events.GameEvent{withSeq(log[0], 3), withSeq(log[1], 5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.AppendEvents(ctx, "g1", tt.evts)
			assert.ErrorIs(t, err, core.ErrSequence)

			stored, err := s.LoadEvents(ctx, "g1")
			require.NoError(t, err)
			assert.Len(t, stored, len(log), "rejected append must not write")
		})
	}

	t.Run("wrong game", func(t *testing.T) {
		assert.Error(t, s.AppendEvents(ctx, "other", []events.GameEvent{withSeq(log[0], 1)}))
	})

	t.Run("empty batch", func(t *testing.T) {
		assert.NoError(t, s.AppendEvents(ctx, "g1", nil))
	})
}

func withSeq(evt events.GameEvent, seq int) events.GameEvent {
	evt.Sequence = seq
	return evt
}

func TestTruncateEvents(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	c := newJournaledSession(t, s, "g1")
	_, err := c.RollInitiative()
	require.NoError(t, err)
	n := c.Version()

	assert.ErrorIs(t, s.TruncateEvents(ctx, "g1", n+1), core.ErrSequence)
	assert.ErrorIs(t, s.TruncateEvents(ctx, "g1", -1), core.ErrValidation)

	require.NoError(t, s.TruncateEvents(ctx, "g1", 2))
	stored, err := s.LoadEvents(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	// the log continues from the truncation point
	evts := c.Events()
	require.NoError(t, s.AppendEvents(ctx, "g1", evts[2:]))

	require.NoError(t, s.TruncateEvents(ctx, "g1", 0))
	games, err := s.ListGames(ctx)
	require.NoError(t, err)
	assert.Empty(t, games)
}

func TestListEventsPaging(t *testing.T) {
	s, _ := openStore(t, WithPageSize(2))
	ctx := context.Background()
	c := newJournaledSession(t, s, "g1")
	_, err := c.RollInitiative()
	require.NoError(t, err)
	_, err = c.AdvancePhase()
	require.NoError(t, err)
	total := c.Version()
	require.GreaterOrEqual(t, total, 4)

	page, err := s.ListEvents(ctx, "g1", 0, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, 1, page[0].Sequence)

	page, err = s.ListEvents(ctx, "g1", 3, 10)
	require.NoError(t, err)
	assert.Len(t, page, total-3)
	assert.Equal(t, 4, page[0].Sequence)

	all, err := s.LoadEvents(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, all, total)

	none, err := s.LoadEvents(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListGames(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	newJournaledSession(t, s, "g1")
	c2 := newJournaledSession(t, s, "g2")
	_, err := c2.RollInitiative()
	require.NoError(t, err)

	games, err := s.ListGames(ctx)
	require.NoError(t, err)
	require.Len(t, games, 2)

	byID := map[string]GameSummary{}
	for _, g := range games {
		byID[g.GameID] = g
	}
	assert.Equal(t, 2, byID["g1"].LastSeq)
	assert.Equal(t, c2.Version(), byID["g2"].LastSeq)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	s, path := openStore(t)
	c := newJournaledSession(t, s, "g1")
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	stored, err := reopened.LoadEvents(context.Background(), "g1")
	require.NoError(t, err)
	assertSameLog(t, c.Events(), stored)
}

func TestCancelledContext(t *testing.T) {
	s, _ := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ListGames(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.AppendEvents(ctx, "g1", nil), context.Canceled)
}
