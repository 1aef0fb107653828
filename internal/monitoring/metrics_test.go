package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/events"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/session"
	"github.com/mitchelldurbincs/MekEncounter/internal/testutil"
)

func TestMetricsFromSession(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	bus := events.NewEventBusWithLogger(testutil.NopLogger())
	bus.Subscribe(m.Subscriber())

	r := testutil.DuelRoster()
	c, err := session.CreateSession(r.Config, r.Units,
		session.WithEventBus(bus),
		session.WithObserver(m.Observer()),
	)
	require.NoError(t, err)

	assert.Equal(t, 1.0, promtest.ToFloat64(m.eventsAppended.WithLabelValues(string(events.TypeGameCreated))))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.eventsAppended.WithLabelValues(string(events.TypeTurnStarted))))

	_, err = c.RollInitiative()
	require.NoError(t, err)
	_, err = c.Undo()
	require.NoError(t, err)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.undos))

	_, err = c.Concede(core.SidePlayer)
	require.NoError(t, err)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.gamesEnded.WithLabelValues("concede")))
}

func TestRecordEventAttacks(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordEvent(events.GameEvent{Type: events.TypeAttackResolved, Payload: events.AttackResolved{Hit: true}})
	m.RecordEvent(events.GameEvent{Type: events.TypeAttackResolved, Payload: events.AttackResolved{}})
	m.RecordEvent(events.GameEvent{
		Type:    events.TypePhysicalAttackResolved,
		Payload: events.PhysicalAttackResolved{Kind: core.PhysicalKick, Hit: true},
	})

	assert.Equal(t, 1.0, promtest.ToFloat64(m.attacks.WithLabelValues("weapon", "hit")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.attacks.WithLabelValues("weapon", "miss")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.attacks.WithLabelValues("Kick", "hit")))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.eventsAppended.WithLabelValues(string(events.TypeAttackResolved))))
}

func TestRecordRejection(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	tests := []struct {
		err  error
		kind string
	}{
		{core.Validationf("bad hex"), "validation"},
		{core.WrapActionError("alpha", "move", core.ErrDoubleLock), "double_lock"},
		{core.PhaseGuardf("not yet"), "phase_guard"},
	}
	for _, tt := range tests {
		m.RecordRejection(tt.err)
		assert.Equal(t, 1.0, promtest.ToFloat64(m.rejected.WithLabelValues(tt.kind)), tt.kind)
	}

	m.RecordRejection(nil)
	assert.Equal(t, 3, promtest.CollectAndCount(m.rejected))
}

func TestActiveSessions(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.SetActiveSessions(4)
	assert.Equal(t, 4.0, promtest.ToFloat64(m.activeSessions))
}

func TestGoroutineMonitorSample(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	gm := NewGoroutineMonitor(testutil.NopLogger(), m, time.Second, 10)

	counts := []int{5, 12, 8}
	i := 0
	gm.count = func() int { n := counts[i]; i++; return n }
	gm.baseline, gm.current, gm.peak = 5, 5, 5

	gm.Sample()
	sample := gm.Sample()
	assert.Equal(t, 12, sample.Current)
	assert.Equal(t, 12, sample.Peak)
	assert.Equal(t, 7, sample.Growth)
	assert.False(t, gm.lastAlert.IsZero(), "threshold crossed")

	sample = gm.Sample()
	assert.Equal(t, 8, sample.Current)
	assert.Equal(t, 12, gm.GetMetrics().Peak)
	assert.Equal(t, 8.0, promtest.ToFloat64(m.goroutines))
}
