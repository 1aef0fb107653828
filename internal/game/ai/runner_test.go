package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/encounter"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/events"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/session"
	"github.com/mitchelldurbincs/MekEncounter/internal/testutil"
)

func newSession(t *testing.T, r *encounter.Roster) *session.Controller {
	t.Helper()
	c, err := session.CreateSession(r.Config, r.Units,
		session.WithSessionID("ai"),
		session.WithClock(testutil.FixedClock()),
		session.WithIDGenerator(testutil.SequentialIDs("id")),
	)
	require.NoError(t, err)
	return c
}

func advanceTo(t *testing.T, c *session.Controller, phase core.GamePhase) {
	t.Helper()
	for i := 0; c.State().Phase != phase; i++ {
		require.Less(t, i, 12)
		if c.State().Phase.RequiresLock() {
			for _, id := range c.State().PendingUnits() {
				_, err := c.Pass(id)
				require.NoError(t, err)
			}
		}
		_, err := c.AdvancePhase()
		require.NoError(t, err)
	}
}

func TestRunTurnNoOpOutsideLockPhases(t *testing.T) {
	c := newSession(t, testutil.DuelRoster())
	r := NewRunner(testutil.NopLogger())

	report, err := r.RunTurn(context.Background(), c, core.SidePlayer)
	require.NoError(t, err)
	assert.Equal(t, core.PhaseInitiative, report.Phase)
	assert.Zero(t, report.Calls)
	assert.Equal(t, 2, c.Version())
}

func TestRunTurnMovement(t *testing.T) {
	t.Run("holds position when already in range", func(t *testing.T) {
		c := newSession(t, testutil.DuelRoster())
		advanceTo(t, c, core.PhaseMovement)

		report, err := NewRunner(testutil.NopLogger()).RunTurn(context.Background(), c, core.SidePlayer)
		require.NoError(t, err)
		require.Len(t, report.Decisions, 1)
		assert.Equal(t, "lock_movement", report.Decisions[0].Action)

		alpha := c.State().Units["alpha"]
		assert.True(t, alpha.Locked())
		assert.Equal(t, core.MoveStationary, alpha.MovementType)
		assert.False(t, c.State().Units["bravo"].Locked(), "other side untouched")
	})

	t.Run("closes to medium range", func(t *testing.T) {
		r := testutil.DuelRoster()
		for i := range r.Units {
			r.Units[i].Weapons = r.Units[i].Weapons[:2]
			r.Units[i].AmmoTons = nil
		}
		r.Units[0].Position = ptr(core.NewHex(0, 6))
		r.Units[1].Position = ptr(core.NewHex(0, -6))
		c := newSession(t, r)
		advanceTo(t, c, core.PhaseMovement)

		report, err := NewRunner(testutil.NopLogger()).RunTurn(context.Background(), c, core.SidePlayer)
		require.NoError(t, err)
		require.Len(t, report.Decisions, 1)
		d := report.Decisions[0]
		assert.Equal(t, "move", d.Action)
		assert.Equal(t, "bravo", d.Target)

		alpha := c.State().Units["alpha"]
		assert.Equal(t, core.MoveRun, alpha.MovementType)
		assert.LessOrEqual(t, alpha.Position.DistanceTo(core.NewHex(0, -6)), 6)
		assert.Equal(t, core.FacingToward(alpha.Position, core.NewHex(0, -6)), alpha.Facing)
	})
}

func TestRunTurnWeaponAttack(t *testing.T) {
	c := newSession(t, testutil.DuelRoster())
	advanceTo(t, c, core.PhaseWeaponAttack)

	report, err := NewRunner(testutil.NopLogger()).RunTurn(context.Background(), c, core.SidePlayer)
	require.NoError(t, err)
	require.Len(t, report.Decisions, 1)
	d := report.Decisions[0]
	assert.Equal(t, "attack", d.Action)
	assert.Equal(t, "bravo", d.Target)
	assert.GreaterOrEqual(t, d.Events, 3)

	var fired []string
	for _, evt := range c.Events() {
		if a, ok := evt.Payload.(events.AttackResolved); ok {
			fired = append(fired, a.WeaponID)
		}
	}
	assert.ElementsMatch(t, []string{"ml-ra", "ml-la", "lrm"}, fired)
}

func TestRunTurnRespectsHeatMargin(t *testing.T) {
	c := newSession(t, testutil.DuelRoster())
	advanceTo(t, c, core.PhaseWeaponAttack)

	r := NewRunner(testutil.NopLogger(), WithHeatMargin(-10))
	report, err := r.RunTurn(context.Background(), c, core.SidePlayer)
	require.NoError(t, err)
	require.Len(t, report.Decisions, 1)
	assert.Equal(t, "pass", report.Decisions[0].Action)
	assert.Equal(t, "no weapon within heat margin", report.Decisions[0].Detail)
	assert.Zero(t, c.State().Units["alpha"].Heat)
}

func TestRunTurnPhysicalAttack(t *testing.T) {
	r := testutil.DuelRoster()
	r.Units[0].Position = ptr(core.NewHex(0, 0))
	c := newSession(t, r)
	advanceTo(t, c, core.PhasePhysicalAttack)

	report, err := NewRunner(testutil.NopLogger()).RunTurn(context.Background(), c, core.SidePlayer)
	require.NoError(t, err)
	require.Len(t, report.Decisions, 1)
	assert.Equal(t, "physical", report.Decisions[0].Action)
	assert.Equal(t, "Kick", report.Decisions[0].Detail)

	report, err = NewRunner(testutil.NopLogger(), WithPhysicalThreshold(1.1)).RunTurn(context.Background(), c, core.SideOpponent)
	require.NoError(t, err)
	require.Len(t, report.Decisions, 1)
	assert.Equal(t, "pass", report.Decisions[0].Action)
}

// stubbornClient rejects every lock so the call bound is reached
type stubbornClient struct {
	*session.Controller
}

func (s stubbornClient) Pass(string) ([]events.GameEvent, error) {
	return nil, core.Validationf("no")
}

func (s stubbornClient) ApplyAttack(string, string, []string) ([]events.GameEvent, error) {
	return nil, core.Validationf("no")
}

func TestRunTurnBoundsCalls(t *testing.T) {
	c := newSession(t, testutil.DuelRoster())
	advanceTo(t, c, core.PhaseWeaponAttack)

	r := NewRunner(testutil.NopLogger(), WithMaxCallsPerUnit(2))
	report, err := r.RunTurn(context.Background(), stubbornClient{c}, core.SidePlayer)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Calls)
	assert.Equal(t, 2, report.Rejected)
	assert.Equal(t, []string{"alpha"}, report.Skipped)
	assert.False(t, c.State().Units["alpha"].Locked())
}

// pickyClient rejects attacks but accepts a pass
type pickyClient struct {
	*session.Controller
}

func (s pickyClient) ApplyAttack(string, string, []string) ([]events.GameEvent, error) {
	return nil, core.Validationf("no")
}

func TestRunTurnFallbackSurvivesSmallBound(t *testing.T) {
	c := newSession(t, testutil.DuelRoster())
	advanceTo(t, c, core.PhaseWeaponAttack)

	r := NewRunner(testutil.NopLogger(), WithMaxCallsPerUnit(1))
	assert.Equal(t, 2, r.maxCallsPerUnit)

	report, err := r.RunTurn(context.Background(), pickyClient{c}, core.SidePlayer)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Calls)
	assert.Equal(t, 1, report.Rejected)
	assert.Empty(t, report.Skipped)
	require.Len(t, report.Decisions, 2)
	assert.Equal(t, "pass", report.Decisions[1].Action)
	assert.True(t, c.State().Units["alpha"].Locked())
}

func TestRunTurnCancelled(t *testing.T) {
	c := newSession(t, testutil.DuelRoster())
	advanceTo(t, c, core.PhaseMovement)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRunner(testutil.NopLogger()).RunTurn(ctx, c, core.SidePlayer)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimulateToCompletion(t *testing.T) {
	c := newSession(t, testutil.LanceRoster())
	r := NewRunner(testutil.NopLogger())
	ctx := context.Background()

	for i := 0; !c.IsGameOver(); i++ {
		require.Less(t, i, 200, "game did not finish")
		for _, side := range []core.GameSide{core.SidePlayer, core.SideOpponent} {
			report, err := r.RunTurn(ctx, c, side)
			require.NoError(t, err)
			assert.Empty(t, report.Skipped)
		}
		if c.IsGameOver() {
			break
		}
		_, err := c.AdvancePhase()
		require.NoError(t, err)
	}

	res := c.GetResult()
	assert.True(t, res.Over)
	assert.LessOrEqual(t, c.State().Turn, 6)

	s := c.Session()
	replayed, err := session.ReplayToSequence(s, s.Log.Len())
	require.NoError(t, err)
	want, err := c.Fingerprint()
	require.NoError(t, err)
	got, err := replayed.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func ptr[T any](v T) *T {
	return &v
}
