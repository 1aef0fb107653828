package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/encounter"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/events"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/rules"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/state"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/states"
	"github.com/mitchelldurbincs/MekEncounter/internal/testutil"
)

func alwaysHit(rules.AttackContext) []rules.Modifier {
	return []rules.Modifier{{Name: "test", Value: -20}}
}

func fixedLocation(loc core.Location) rules.HitLocationFunc {
	return func(int, core.Arc) (core.Location, error) { return loc, nil }
}

func newDuel(t *testing.T, r *encounter.Roster, opts ...Option) *Controller {
	t.Helper()
	base := []Option{
		WithSessionID("duel"),
		WithLogger(testutil.NopLogger()),
		WithClock(testutil.FixedClock()),
		WithIDGenerator(testutil.SequentialIDs("id")),
	}
	c, err := CreateSession(r.Config, r.Units, append(base, opts...)...)
	require.NoError(t, err)
	return c
}

func passAll(t *testing.T, c *Controller) {
	t.Helper()
	for _, id := range c.State().PendingUnits() {
		_, err := c.Pass(id)
		require.NoError(t, err)
	}
}

// advanceTo passes every pending unit and advances until phase is reached
func advanceTo(t *testing.T, c *Controller, phase core.GamePhase) {
	t.Helper()
	for i := 0; c.State().Phase != phase; i++ {
		require.Less(t, i, 12, "phase %s never reached", phase)
		if c.State().Phase.RequiresLock() {
			passAll(t, c)
		}
		_, err := c.AdvancePhase()
		require.NoError(t, err)
	}
}

func assertTransaction(t *testing.T, evts []events.GameEvent, firstSeq int) {
	t.Helper()
	require.NotEmpty(t, evts)
	for i, evt := range evts {
		assert.Equal(t, firstSeq+i, evt.Sequence)
		assert.Equal(t, evts[0].TxID, evt.TxID)
	}
}

func assertReplayMatches(t *testing.T, c *Controller) {
	t.Helper()
	s := c.Session()
	replayed, err := ReplayToSequence(s, s.Log.Len())
	require.NoError(t, err)
	want, err := c.Fingerprint()
	require.NoError(t, err)
	got, err := replayed.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCreateSession(t *testing.T) {
	c := newDuel(t, testutil.DuelRoster())

	evts := c.Events()
	require.Len(t, evts, 2)
	assertTransaction(t, evts, 1)
	assert.Equal(t, events.TypeGameCreated, evts[0].Type)
	assert.Equal(t, events.TurnStarted{Turn: 1}, evts[1].Payload)
	assert.Equal(t, "duel", evts[0].GameID)

	gs := c.State()
	assert.Equal(t, "duel", gs.GameID)
	assert.Equal(t, 1, gs.Turn)
	assert.Equal(t, core.PhaseInitiative, gs.Phase)
	assert.Equal(t, core.StatusActive, gs.Status)
	assert.Len(t, gs.Units, 2)
	assert.Equal(t, 2, c.Version())
	assert.False(t, c.IsGameOver())
	assert.True(t, c.CanAdvancePhase())

	s := c.Session()
	assert.Equal(t, int64(1234), s.Config.Seed)
	assert.False(t, s.CreatedAt.IsZero())
	assert.Equal(t, evts[1].Timestamp, s.UpdatedAt)
}

func TestCreateSessionDeploysAndValidates(t *testing.T) {
	r := testutil.DuelRoster()
	r.Units[0].Position = nil
	c := newDuel(t, r)
	alpha := c.State().Units["alpha"]
	assert.Equal(t, r.Config.MapRadius, alpha.Position.R)

	bad := testutil.DuelRoster()
	bad.Units[1].Side = core.SidePlayer
	_, err := CreateSession(bad.Config, bad.Units)
	assert.ErrorIs(t, err, core.ErrValidation)

	indestructible := testutil.DuelRoster()
	indestructible.Units[1].Structure = map[core.Location]int{core.LocLeftArm: 1}
	indestructible.Units[1].Weapons = indestructible.Units[1].Weapons[1:2]
	_, err = CreateSession(indestructible.Config, indestructible.Units)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestCreateSessionIsDeterministic(t *testing.T) {
	a := newDuel(t, testutil.DuelRoster())
	b := newDuel(t, testutil.DuelRoster())

	for _, c := range []*Controller{a, b} {
		advanceTo(t, c, core.PhaseWeaponAttack)
		_, err := c.ApplyAttack("alpha", "bravo", []string{"ml-ra", "ml-la", "lrm"})
		require.NoError(t, err)
	}

	assert.Equal(t, a.Events(), b.Events())
	fa, err := a.Fingerprint()
	require.NoError(t, err)
	fb, err := b.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
}

func TestRollInitiative(t *testing.T) {
	c := newDuel(t, testutil.DuelRoster())

	evts, err := c.RollInitiative()
	require.NoError(t, err)
	require.Len(t, evts, 1)
	rolled := evts[0].Payload.(events.InitiativeRolled)
	assert.NotEqual(t, rolled.Winner, rolled.FirstMover)

	_, err = c.RollInitiative()
	assert.ErrorIs(t, err, core.ErrPhaseGuard)

	evts, err = c.AdvancePhase()
	require.NoError(t, err)
	require.Len(t, evts, 1, "no second roll on exit")
	assert.Equal(t, events.TypePhaseChanged, evts[0].Type)

	_, err = c.RollInitiative()
	assert.ErrorIs(t, err, core.ErrPhaseGuard)
}

func TestMovement(t *testing.T) {
	c := newDuel(t, testutil.DuelRoster())
	advanceTo(t, c, core.PhaseMovement)
	before := c.Version()

	_, err := c.ApplyMovement("alpha", core.NewHex(0, -6), 5, core.MoveWalk)
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.Equal(t, before, c.Version(), "rejected move appends nothing")

	_, err = c.ApplyMovement("zulu", core.NewHex(0, 1), 5, core.MoveWalk)
	assert.ErrorIs(t, err, core.ErrUnitNotFound)

	evts, err := c.ApplyMovement("alpha", core.NewHex(1, 0), 4, core.MoveRun)
	require.NoError(t, err)
	require.Len(t, evts, 1)
	moved := evts[0].Payload.(events.MovementDeclared)
	assert.Equal(t, core.NewHex(0, 2), moved.From)
	assert.Equal(t, 2, moved.Distance)
	assert.Equal(t, 2, moved.Heat)
	assert.Equal(t, core.PhaseMovement, evts[0].Phase)

	alpha := c.State().Units["alpha"]
	assert.Equal(t, core.NewHex(1, 0), alpha.Position)
	assert.True(t, alpha.Locked())

	_, err = c.ApplyMovement("alpha", core.NewHex(1, 1), 4, core.MoveWalk)
	assert.ErrorIs(t, err, core.ErrDoubleLock)
	_, err = c.LockMovement("alpha")
	assert.ErrorIs(t, err, core.ErrDoubleLock)

	_, err = c.AdvancePhase()
	assert.ErrorIs(t, err, core.ErrPhaseGuard)
	assert.False(t, c.CanAdvancePhase())

	evts, err = c.LockMovement("bravo")
	require.NoError(t, err)
	assert.Equal(t, core.MoveStationary, evts[0].Payload.(events.MovementDeclared).MovementType)
	assert.True(t, c.CanAdvancePhase())

	_, err = c.ApplyAttack("alpha", "bravo", []string{"ml-ra"})
	assert.ErrorIs(t, err, core.ErrPhaseGuard, "attacks wait for their phase")

	assertReplayMatches(t, c)
}

func TestAttackTransactionDestroysUnit(t *testing.T) {
	r := testutil.DuelRoster()
	r.Units[1] = testutil.FragileUnit("bravo", core.SideOpponent, core.NewHex(0, -1), 2)
	bus := events.NewEventBus()
	var published []events.Type
	bus.SubscribeFunc(events.TypeUnitDestroyed, func(evt events.GameEvent) { published = append(published, evt.Type) })
	bus.SubscribeFunc(events.TypeGameEnded, func(evt events.GameEvent) { published = append(published, evt.Type) })

	c := newDuel(t, r,
		WithEventBus(bus),
		WithModifiers(alwaysHit),
		WithHitLocation(fixedLocation(core.LocCenterTorso)),
	)
	advanceTo(t, c, core.PhaseWeaponAttack)
	first := c.Version() + 1

	evts, err := c.ApplyAttack("alpha", "bravo", []string{"ml-ra"})
	require.NoError(t, err)

	assertTransaction(t, evts, first)
	types := make([]events.Type, len(evts))
	for i, evt := range evts {
		types[i] = evt.Type
	}
	assert.Equal(t, []events.Type{
		events.TypeAttackResolved,
		events.TypeDamageApplied,
		events.TypeUnitDestroyed,
		events.TypeGameEnded,
	}, types)
	assert.Equal(t, events.GameEnded{Winner: core.SidePlayer, Reason: rules.ReasonElimination}, evts[3].Payload)
	assert.Equal(t, []events.Type{events.TypeUnitDestroyed, events.TypeGameEnded}, published)

	assert.True(t, c.IsGameOver())
	assert.Equal(t, rules.Result{Over: true, Winner: core.SidePlayer, Reason: rules.ReasonElimination}, c.GetResult())
	assertReplayMatches(t, c)

	// nothing that changes combat may follow
	version := c.Version()
	_, err = c.ApplyAttack("alpha", "bravo", []string{"ml-la"})
	assert.ErrorIs(t, err, core.ErrTerminalState)
	_, err = c.AdvancePhase()
	assert.ErrorIs(t, err, core.ErrTerminalState)
	_, err = c.ApplyMovement("alpha", core.NewHex(0, 1), 5, core.MoveWalk)
	assert.ErrorIs(t, err, core.ErrTerminalState)
	_, err = c.Concede(core.SideOpponent)
	assert.ErrorIs(t, err, core.ErrTerminalState)
	assert.Equal(t, version, c.Version())
	assert.False(t, c.CanAdvancePhase())

	_, err = c.GetAvailableActions("alpha")
	assert.NoError(t, err, "queries still work")
}

func TestAttackFailureLeavesLogUnchanged(t *testing.T) {
	boom := errors.New("hit table offline")
	c := newDuel(t, testutil.DuelRoster(),
		WithModifiers(alwaysHit),
		WithHitLocation(func(int, core.Arc) (core.Location, error) { return "", boom }),
	)
	advanceTo(t, c, core.PhaseWeaponAttack)

	version := c.Version()
	fingerprint, err := c.Fingerprint()
	require.NoError(t, err)

	evts, err := c.ApplyAttack("alpha", "bravo", []string{"ml-ra", "ml-la"})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, evts)
	assert.Equal(t, version, c.Version())

	after, err := c.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fingerprint, after)
	assert.False(t, c.State().Units["alpha"].Locked())
}

func TestUndo(t *testing.T) {
	c := newDuel(t, testutil.DuelRoster())

	_, err := c.Undo()
	assert.ErrorIs(t, err, core.ErrNothingToUndo, "creation cannot be undone")

	advanceTo(t, c, core.PhaseWeaponAttack)
	version := c.Version()
	before, err := c.Fingerprint()
	require.NoError(t, err)

	attack, err := c.ApplyAttack("alpha", "bravo", []string{"ml-ra", "ml-la", "lrm"})
	require.NoError(t, err)

	removed, err := c.Undo()
	require.NoError(t, err)
	assert.Equal(t, attack, removed)
	assert.Equal(t, version, c.Version())

	after, err := c.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// the same declaration after an undo rolls the same dice
	again, err := c.ApplyAttack("alpha", "bravo", []string{"ml-ra", "ml-la", "lrm"})
	require.NoError(t, err)
	require.Len(t, again, len(attack))
	for i := range attack {
		assert.Equal(t, attack[i].Payload, again[i].Payload)
	}
}

func TestUndoRevertsGameEnd(t *testing.T) {
	c := newDuel(t, testutil.DuelRoster())
	_, err := c.Concede(core.SidePlayer)
	require.NoError(t, err)
	assert.Equal(t, core.SideOpponent, c.GetResult().Winner)
	assert.Equal(t, rules.ReasonConcede, c.GetResult().Reason)

	_, err = c.Undo()
	require.NoError(t, err)
	assert.False(t, c.IsGameOver())

	_, err = c.RollInitiative()
	assert.NoError(t, err)
}

func TestWithdrawLastUnitEndsGame(t *testing.T) {
	c := newDuel(t, testutil.DuelRoster())
	advanceTo(t, c, core.PhaseMovement)

	_, err := c.Pass("alpha")
	require.NoError(t, err)
	evts, err := c.Withdraw("bravo")
	require.NoError(t, err)
	require.Len(t, evts, 2)
	assert.Equal(t, events.TypeUnitWithdrawn, evts[0].Type)
	assert.Equal(t, events.GameEnded{Winner: core.SidePlayer, Reason: rules.ReasonElimination}, evts[1].Payload)
}

func TestTurnLimit(t *testing.T) {
	r := testutil.DuelRoster()
	r.Config.TurnLimit = 1
	r.Config.VictoryConditions = append(r.Config.VictoryConditions, encounter.VictoryTurnLimit)
	c := newDuel(t, r)

	advanceTo(t, c, core.PhaseHeat)
	evts, err := c.AdvancePhase()
	require.NoError(t, err)

	last := evts[len(evts)-1]
	assert.Equal(t, events.GameEnded{Winner: core.SideNone, Reason: rules.ReasonTurnLimit}, last.Payload)
	assert.True(t, c.GetResult().Draw())
}

func TestPhaseCycleAcrossTurns(t *testing.T) {
	c := newDuel(t, testutil.DuelRoster())
	advanceTo(t, c, core.PhaseEnd)
	_, err := c.AdvancePhase()
	require.NoError(t, err)
	advanceTo(t, c, core.PhaseEnd)
	_, err = c.AdvancePhase()
	require.NoError(t, err)

	assert.Equal(t, 3, c.State().Turn)

	transitions := states.Transitions(c.Events())
	require.Len(t, transitions, 12)
	for i, tr := range transitions {
		assert.Equal(t, core.AllPhases()[i%6], tr.From)
		assert.Equal(t, tr.From.Next(), tr.To)
	}
	assertReplayMatches(t, c)
}

func TestPhysicalAttack(t *testing.T) {
	r := testutil.DuelRoster()
	r.Units[0] = testutil.StandardUnit("alpha", core.SidePlayer, core.NewHex(0, 0), 5)
	c := newDuel(t, r)
	advanceTo(t, c, core.PhasePhysicalAttack)

	actions, err := c.GetAvailableActions("alpha")
	require.NoError(t, err)
	require.Len(t, actions.ValidTargets, 1)
	assert.Equal(t, []core.PhysicalKind{core.PhysicalPunch, core.PhysicalKick}, actions.ValidTargets[0].Physical)

	evts, err := c.ApplyPhysicalAttack("alpha", "bravo", core.PhysicalKick)
	require.NoError(t, err)
	kick := evts[0].Payload.(events.PhysicalAttackResolved)
	assert.Equal(t, 3, kick.TargetNumber)
	assert.True(t, c.State().Units["alpha"].Locked())

	_, err = c.ApplyPhysicalAttack("alpha", "bravo", core.PhysicalPunch)
	assert.ErrorIs(t, err, core.ErrDoubleLock)
}

func TestGetAvailableActions(t *testing.T) {
	r := testutil.DuelRoster()
	r.Units[1].JumpMP = 0
	c := newDuel(t, r)

	_, err := c.GetAvailableActions("zulu")
	assert.ErrorIs(t, err, core.ErrUnitNotFound)

	actions, err := c.GetAvailableActions("alpha")
	require.NoError(t, err)
	assert.True(t, actions.CanAct)
	assert.Contains(t, actions.ValidMoves, core.MoveJump)
	require.Len(t, actions.ValidTargets, 1)

	target := actions.ValidTargets[0]
	assert.Equal(t, "bravo", target.UnitID)
	assert.Equal(t, 3, target.Distance)
	assert.Equal(t, []string{"ml-ra", "ml-la", "lrm"}, target.Weapons)
	assert.InDelta(t, 33.0/36, target.HitProbability["ml-ra"], 1e-9)
	assert.Empty(t, target.Physical)

	bravo, err := c.GetAvailableActions("bravo")
	require.NoError(t, err)
	assert.NotContains(t, bravo.ValidMoves, core.MoveJump)

	for _, opt := range actions.ValidMoves[core.MoveWalk] {
		_, taken := c.State().OccupantAt(opt.To)
		assert.False(t, taken && opt.To != core.NewHex(0, 2))
		assert.LessOrEqual(t, opt.Distance, 5)
	}
	assert.Equal(t, 2, c.Version(), "queries append nothing")
}

type memJournal struct {
	evts      []events.GameEvent
	appendErr error
}

func (j *memJournal) AppendEvents(_ string, evts []events.GameEvent) error {
	if j.appendErr != nil {
		return j.appendErr
	}
	j.evts = append(j.evts, evts...)
	return nil
}

func (j *memJournal) TruncateEvents(_ string, keep int) error {
	j.evts = j.evts[:keep]
	return nil
}

func TestJournal(t *testing.T) {
	j := &memJournal{}
	c := newDuel(t, testutil.DuelRoster(), WithJournal(j))
	advanceTo(t, c, core.PhaseWeaponAttack)
	_, err := c.ApplyAttack("alpha", "bravo", []string{"ml-ra"})
	require.NoError(t, err)
	assert.Equal(t, c.Events(), j.evts)

	_, err = c.Undo()
	require.NoError(t, err)
	assert.Equal(t, c.Events(), j.evts)

	j.appendErr = errors.New("disk full")
	version := c.Version()
	_, err = c.Pass("alpha")
	assert.ErrorIs(t, err, j.appendErr)
	assert.Equal(t, version, c.Version())
	assert.False(t, c.State().Units["alpha"].Locked())
}

func TestObservers(t *testing.T) {
	var changes []Change
	var last *state.GameState
	obs := ObserverFunc(func(s *state.GameState, change Change) {
		last = s
		changes = append(changes, change)
	})
	panicky := ObserverFunc(func(*state.GameState, Change) { panic("observer bug") })

	c := newDuel(t, testutil.DuelRoster(), WithObserver(panicky), WithObserver(obs))
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeCommit, changes[0].Kind)
	assert.Len(t, changes[0].Events, 2)

	_, err := c.RollInitiative()
	require.NoError(t, err)
	_, err = c.Undo()
	require.NoError(t, err)

	require.Len(t, changes, 3)
	assert.Equal(t, ChangeUndo, changes[2].Kind)
	assert.Equal(t, events.TypeInitiativeRolled, changes[2].Events[0].Type)
	assert.False(t, last.InitiativeRolled)
}

func TestRestore(t *testing.T) {
	c := newDuel(t, testutil.DuelRoster())
	advanceTo(t, c, core.PhaseWeaponAttack)
	_, err := c.ApplyAttack("alpha", "bravo", []string{"ml-ra", "lrm"})
	require.NoError(t, err)

	restored, err := Restore("duel", c.Events(), WithLogger(testutil.NopLogger()))
	require.NoError(t, err)

	want, err := c.Fingerprint()
	require.NoError(t, err)
	got, err := restored.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, c.Session().Config, restored.Session().Config)

	// restored sessions keep playing with the same dice
	a, err := c.Pass("alpha")
	require.NoError(t, err)
	b, err := restored.Pass("alpha")
	require.NoError(t, err)
	assert.Equal(t, a[0].Sequence, b[0].Sequence)
}

func TestRestoreRejectsCorruptLogs(t *testing.T) {
	c := newDuel(t, testutil.DuelRoster())
	_, err := c.RollInitiative()
	require.NoError(t, err)
	evts := c.Events()

	gap := append([]events.GameEvent{}, evts[0], evts[2])
	wrongGame := c.Events()
	wrongGame[1].GameID = "other"
	mismatched := c.Events()
	mismatched[2].Type = events.TypeUnitPassed

	tests := []struct {
		name string
		evts []events.GameEvent
	}{
		{"empty", nil},
		{"gap", gap},
		{"does not start with creation", evts[1:]},
		{"other game", wrongGame},
		{"payload mismatch", mismatched},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Restore("duel", tt.evts)
			assert.ErrorIs(t, err, core.ErrReplayCorruption)
		})
	}
}

func TestReplayToSequence(t *testing.T) {
	c := newDuel(t, testutil.DuelRoster())
	advanceTo(t, c, core.PhaseMovement)
	s := c.Session()

	initial, err := ReplayToSequence(s, 2)
	require.NoError(t, err)
	assert.Equal(t, core.PhaseInitiative, initial.Phase)
	assert.False(t, initial.InitiativeRolled)

	empty, err := ReplayToSequence(s, 0)
	require.NoError(t, err)
	assert.Empty(t, empty.Units)

	_, err = ReplayToSequence(s, s.Log.Len()+1)
	assert.ErrorIs(t, err, core.ErrReplayCorruption)

	viaController, err := c.ReplayTo(2)
	require.NoError(t, err)
	assert.Equal(t, initial, viaController)
}

func TestConcurrentReaders(t *testing.T) {
	c := newDuel(t, testutil.DuelRoster())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = c.State()
				_, _ = c.GetAvailableActions("alpha")
				_ = c.Events()
			}
		}()
	}
	for i := 0; i < 3; i++ {
		advanceTo(t, c, core.PhaseEnd)
		_, err := c.AdvancePhase()
		require.NoError(t, err)
	}
	wg.Wait()
	assertReplayMatches(t, c)
}

func TestHandlersReadWhileNextWriterWaits(t *testing.T) {
	c := newDuel(t, testutil.DuelRoster())

	inHandler := make(chan struct{})
	writerStarted := make(chan struct{})
	seen := make(chan core.GamePhase, 1)
	var once sync.Once
	c.Bus().SubscribeFunc(events.TypePhaseChanged, func(events.GameEvent) {
		once.Do(func() {
			close(inHandler)
			<-writerStarted
			// let the second writer reach the session locks
			time.Sleep(50 * time.Millisecond)
			seen <- c.State().Phase
		})
	})

	advanced := make(chan error, 1)
	locked := make(chan error, 1)
	go func() {
		_, err := c.AdvancePhase()
		advanced <- err
	}()
	<-inHandler
	go func() {
		close(writerStarted)
		_, err := c.LockMovement("alpha")
		locked <- err
	}()

	timeout := time.After(3 * time.Second)
	for _, ch := range []chan error{advanced, locked} {
		select {
		case err := <-ch:
			require.NoError(t, err)
		case <-timeout:
			t.Fatal("session locked up while a handler read the state")
		}
	}
	assert.Equal(t, core.PhaseMovement, <-seen)

	alpha, ok := c.State().Unit("alpha")
	require.True(t, ok)
	assert.True(t, alpha.Locked())
	assertReplayMatches(t, c)
}
