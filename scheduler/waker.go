package scheduler

import (
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// minWakeDelay is the earliest a wake can be scheduled. cron computes the
// first run of an entry after it is added, so a wake due at or before that
// moment would never fire.
const minWakeDelay = time.Second

// Waker arranges for a wake no earlier than notBefore from now
type Waker interface {
	RequestWake(notBefore time.Duration) error
}

// onceSchedule fires a single time at or after at
type onceSchedule struct {
	at time.Time
}

// Next returns at until it has passed, then the zero time, which cron
// treats as never
func (s onceSchedule) Next(t time.Time) time.Time {
	if t.Before(s.at) {
		return s.at
	}
	return time.Time{}
}

// CronWaker implements Waker with one-shot cron entries. Each request
// replaces the pending one.
type CronWaker struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entry   cron.EntryID
	pending time.Time
	onWake  func()
	now     func() time.Time
	logger  *zap.Logger
}

// NewCronWaker creates a stopped waker
func NewCronWaker(logger *zap.Logger) *CronWaker {
	cl := cronLogger{logger.Sugar()}
	return &CronWaker{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		now:    time.Now,
		logger: logger,
	}
}

// OnWake sets the function run on each wake
func (w *CronWaker) OnWake(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onWake = fn
}

// RequestWake replaces any pending wake with one at now+notBefore
func (w *CronWaker) RequestWake(notBefore time.Duration) error {
	if notBefore < minWakeDelay {
		notBefore = minWakeDelay
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.onWake == nil {
		return errors.New("no wake handler registered")
	}
	if w.entry != 0 {
		w.cron.Remove(w.entry)
	}

	at := w.now().Add(notBefore)
	var id cron.EntryID
	id = w.cron.Schedule(onceSchedule{at: at}, cron.FuncJob(func() { w.fire(id) }))
	w.entry = id
	w.pending = at
	w.logger.Info("Next wake requested", zap.Time("not_before", at))
	return nil
}

// Pending returns the time of the pending wake, if any
func (w *CronWaker) Pending() (time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending, w.entry != 0
}

func (w *CronWaker) fire(id cron.EntryID) {
	w.mu.Lock()
	fn := w.onWake
	w.cron.Remove(id)
	if w.entry == id {
		w.entry = 0
		w.pending = time.Time{}
	}
	w.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Start starts the underlying cron scheduler
func (w *CronWaker) Start() {
	w.cron.Start()
}

// Stop stops scheduling and waits for a running wake handler
func (w *CronWaker) Stop() {
	<-w.cron.Stop().Done()
}

// cronLogger routes cron's logging through zap
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
