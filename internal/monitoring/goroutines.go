package monitoring

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// GoroutineMonitor samples the goroutine count into the goroutines gauge and
// warns when it crosses a threshold
type GoroutineMonitor struct {
	mu             sync.RWMutex
	baseline       int
	current        int
	peak           int
	checkInterval  time.Duration
	alertThreshold int
	lastAlert      time.Time
	alertCooldown  time.Duration
	metrics        *Metrics
	logger         zerolog.Logger
	count          func() int
	now            func() time.Time
}

// NewGoroutineMonitor creates a monitor. metrics may be nil.
func NewGoroutineMonitor(logger zerolog.Logger, metrics *Metrics, interval time.Duration, threshold int) *GoroutineMonitor {
	baseline := runtime.NumGoroutine()
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &GoroutineMonitor{
		baseline:       baseline,
		current:        baseline,
		peak:           baseline,
		checkInterval:  interval,
		alertThreshold: threshold,
		alertCooldown:  5 * time.Minute,
		metrics:        metrics,
		logger:         logger.With().Str("component", "GoroutineMonitor").Logger(),
		count:          runtime.NumGoroutine,
		now:            time.Now,
	}
}

// Run samples until ctx is done
func (gm *GoroutineMonitor) Run(ctx context.Context) {
	gm.logger.Info().Int("baseline", gm.baseline).Msg("Started goroutine monitoring")

	ticker := time.NewTicker(gm.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			gm.Sample()
		case <-ctx.Done():
			return
		}
	}
}

// Sample records the current goroutine count
func (gm *GoroutineMonitor) Sample() GoroutineMetrics {
	current := gm.count()
	now := gm.now()

	gm.mu.Lock()
	gm.current = current
	if current > gm.peak {
		gm.peak = current
	}
	shouldAlert := gm.alertThreshold > 0 &&
		current > gm.alertThreshold &&
		now.Sub(gm.lastAlert) > gm.alertCooldown
	if shouldAlert {
		gm.lastAlert = now
	}
	snapshot := gm.snapshotLocked()
	gm.mu.Unlock()

	if gm.metrics != nil {
		gm.metrics.goroutines.Set(float64(current))
	}

	gm.logger.Debug().
		Int("current", current).
		Int("baseline", snapshot.Baseline).
		Int("peak", snapshot.Peak).
		Msg("Goroutine metrics")

	if shouldAlert {
		gm.logger.Warn().
			Int("current", current).
			Int("threshold", gm.alertThreshold).
			Int("growth", snapshot.Growth).
			Msg("High goroutine count detected - possible leak")
	}
	return snapshot
}

// GetMetrics returns the last sample
func (gm *GoroutineMonitor) GetMetrics() GoroutineMetrics {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	return gm.snapshotLocked()
}

func (gm *GoroutineMonitor) snapshotLocked() GoroutineMetrics {
	return GoroutineMetrics{
		Current:  gm.current,
		Baseline: gm.baseline,
		Peak:     gm.peak,
		Growth:   gm.current - gm.baseline,
	}
}

// GoroutineMetrics contains goroutine statistics
type GoroutineMetrics struct {
	Current  int `json:"current"`
	Baseline int `json:"baseline"`
	Peak     int `json:"peak"`
	Growth   int `json:"growth"`
}
