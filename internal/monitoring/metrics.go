package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/events"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/session"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/state"
)

const namespace = "mekencounter"

// Metrics holds the prometheus collectors of the session engine
type Metrics struct {
	eventsAppended *prometheus.CounterVec
	attacks        *prometheus.CounterVec
	rejected       *prometheus.CounterVec
	gamesEnded     *prometheus.CounterVec
	undos          prometheus.Counter
	activeSessions prometheus.Gauge
	goroutines     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		eventsAppended: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_appended_total",
				Help:      "Events committed to session logs",
			},
			[]string{"type"},
		),
		attacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attacks_total",
				Help:      "Resolved attacks by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_rejected_total",
				Help:      "Rejected actions by error kind",
			},
			[]string{"kind"},
		),
		gamesEnded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "games_ended_total",
				Help:      "Finished games by reason",
			},
			[]string{"reason"},
		),
		undos: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "undos_total",
			Help:      "Transactions removed by undo",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions held in memory",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goroutines",
			Help:      "Goroutines at the last monitor sample",
		}),
	}
	reg.MustRegister(
		m.eventsAppended,
		m.attacks,
		m.rejected,
		m.gamesEnded,
		m.undos,
		m.activeSessions,
		m.goroutines,
	)
	return m
}

// RecordEvent counts one committed event
func (m *Metrics) RecordEvent(evt events.GameEvent) {
	m.eventsAppended.WithLabelValues(string(evt.Type)).Inc()

	switch p := evt.Payload.(type) {
	case events.AttackResolved:
		m.attacks.WithLabelValues("weapon", outcome(p.Hit)).Inc()
	case events.PhysicalAttackResolved:
		m.attacks.WithLabelValues(p.Kind.String(), outcome(p.Hit)).Inc()
	case events.GameEnded:
		m.gamesEnded.WithLabelValues(p.Reason).Inc()
	}
}

func outcome(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

// RecordRejection counts a failed action by its error kind. nil is ignored.
func (m *Metrics) RecordRejection(err error) {
	if err == nil {
		return
	}
	m.rejected.WithLabelValues(core.ErrorKind(err)).Inc()
}

// SetActiveSessions reports the number of sessions in memory
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// Subscriber returns an event bus subscriber that feeds RecordEvent
func (m *Metrics) Subscriber() events.Subscriber {
	return &metricsSubscriber{metrics: m}
}

// Observer returns a session observer that counts undone transactions
func (m *Metrics) Observer() session.Observer {
	return session.ObserverFunc(func(_ *state.GameState, change session.Change) {
		if change.Kind == session.ChangeUndo {
			m.undos.Inc()
		}
	})
}

type metricsSubscriber struct {
	metrics *Metrics
}

func (s *metricsSubscriber) ID() string {
	return "metrics"
}

func (s *metricsSubscriber) HandleEvent(evt events.GameEvent) {
	s.metrics.RecordEvent(evt)
}

func (s *metricsSubscriber) InterestedIn(events.Type) bool {
	return true
}
