package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"pricewatch/models"

	"go.uber.org/zap"
)

// ItemSource provides the items a cycle is planned from
type ItemSource interface {
	Snapshot() []models.MonitoredItem
}

// PeriodicRunner runs a refresh cycle every time the waker fires
type PeriodicRunner struct {
	waker    Waker
	runner   CycleRunner
	source   ItemSource
	interval time.Duration
	budget   time.Duration
	running  atomic.Bool
	now      func() time.Time
	logger   *zap.Logger
}

// NewPeriodicRunner creates a runner that refreshes every interval, each
// cycle bounded by budget
func NewPeriodicRunner(waker Waker, runner CycleRunner, source ItemSource, interval, budget time.Duration, logger *zap.Logger) *PeriodicRunner {
	return &PeriodicRunner{
		waker:    waker,
		runner:   runner,
		source:   source,
		interval: interval,
		budget:   budget,
		now:      time.Now,
		logger:   logger,
	}
}

// HandleWake re-arms the next wake and then runs one cycle. It reports
// false when another periodic cycle is still running.
func (r *PeriodicRunner) HandleWake(ctx context.Context) (models.RunResult, bool) {
	// re-arm first so a crash mid-cycle does not strand the schedule
	if err := r.waker.RequestWake(r.interval); err != nil {
		r.logger.Error("Failed to re-arm periodic refresh", zap.Error(err))
	}

	if !r.running.CompareAndSwap(false, true) {
		r.logger.Warn("Skipping wake, previous cycle still running")
		return models.RunResult{}, false
	}
	defer r.running.Store(false)

	cctx, cancel := context.WithTimeout(ctx, r.budget)
	defer cancel()
	return r.runner.RunCycle(cctx, models.TriggerPeriodic, r.source.Snapshot(), nil), true
}

// FirstWake returns how long to wait before the first cycle: the oldest
// monitored item is due interval after it was last checked
func (r *PeriodicRunner) FirstWake() time.Duration {
	var oldest time.Time
	for _, item := range r.source.Snapshot() {
		if !item.IsMonitoring {
			continue
		}
		if oldest.IsZero() || item.LastCheckedAt.Before(oldest) {
			oldest = item.LastCheckedAt
		}
	}
	if oldest.IsZero() {
		return r.interval
	}
	if d := oldest.Add(r.interval).Sub(r.now()); d > 0 {
		return d
	}
	return 0
}

// Start wires the runner to a CronWaker and arms the first wake
func (r *PeriodicRunner) Start(ctx context.Context, w *CronWaker) error {
	w.OnWake(func() {
		if ctx.Err() != nil {
			return
		}
		r.HandleWake(ctx)
	})
	w.Start()

	first := r.FirstWake()
	r.logger.Info("Periodic refresh scheduled",
		zap.Duration("interval", r.interval),
		zap.Duration("budget", r.budget),
		zap.Duration("first_in", first))
	return w.RequestWake(first)
}
