package resolution

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Outcome summarises one settlement check.
type Outcome struct {
	Checked  int `json:"checked"`
	Resolved int `json:"resolved"`
	// Open is the number of positions still open after the check.
	Open int `json:"open"`
	// Pending counts due positions whose market has not settled yet.
	Pending int `json:"pending"`
}

// Target is a set of open positions the scheduler settles.
type Target interface {
	// PendingEndDates returns the end date of every open position; nil for dateless.
	PendingEndDates(ctx context.Context) ([]*time.Time, error)
	// Check settles due positions. force bypasses the due filter.
	Check(ctx context.Context, force bool) (Outcome, error)
}

// Config holds scheduler timings.
type Config struct {
	// Buffer is added to the earliest end date before checking.
	Buffer time.Duration
	// RetryInterval is the back-off used while due positions remain unsettled.
	RetryInterval time.Duration
}

// Scheduler sleeps until the earliest open position is due, checks, and
// reschedules. It stops itself once nothing is open.
type Scheduler struct {
	name   string
	target Target
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
	kick    chan struct{}

	checkMu sync.Mutex
}

// NewScheduler creates a stopped Scheduler.
func NewScheduler(name string, target Target, cfg Config, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		name:   name,
		target: target,
		cfg:    cfg,
		logger: logger.With(zap.String("scheduler", name)),
		now:    time.Now,
		kick:   make(chan struct{}, 1),
	}
}

// Start launches the scheduler. When already running it only wakes it to
// recompute the next check and returns false.
func (s *Scheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.signal()
		return false
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	s.running = true
	s.stop = stop
	s.done = done
	SchedulerRunning.WithLabelValues(s.name).Set(1)

	go s.run(ctx, stop, done)

	s.logger.Info("resolution-scheduler-started")
	return true
}

// Stop clears the pending wake-up and waits for an in-flight check to
// complete. The check itself is not interrupted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	stop, done := s.stop, s.done
	s.running = false
	s.stop = nil
	s.done = nil
	SchedulerRunning.WithLabelValues(s.name).Set(0)
	s.mu.Unlock()

	close(stop)
	<-done
	s.logger.Info("resolution-scheduler-stopped")
}

// Running reports whether the scheduler is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Kick wakes a running scheduler so it recomputes the next check, e.g.
// after a position with an earlier end date was opened.
func (s *Scheduler) Kick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.signal()
	}
}

// ForceCheckAll checks every open position regardless of end date.
func (s *Scheduler) ForceCheckAll(ctx context.Context) (Outcome, error) {
	return s.check(ctx, true)
}

// signal must be called with mu held.
func (s *Scheduler) signal() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Scheduler) check(ctx context.Context, force bool) (Outcome, error) {
	s.checkMu.Lock()
	defer s.checkMu.Unlock()

	kind := "scheduled"
	if force {
		kind = "forced"
	}
	ChecksTotal.WithLabelValues(s.name, kind).Inc()

	out, err := s.target.Check(ctx, force)
	if err != nil {
		CheckErrorsTotal.WithLabelValues(s.name).Inc()
		return out, err
	}
	ResolvedTotal.WithLabelValues(s.name).Add(float64(out.Resolved))
	return out, nil
}

func (s *Scheduler) run(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	checked := false
	retry := false

	for {
		if stopped(ctx, stop) {
			return
		}
		endDates, err := s.target.PendingEndDates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("resolution-pending-load-failed", zap.Error(err))
			if !s.wait(ctx, stop, s.cfg.RetryInterval) {
				return
			}
			continue
		}

		if len(endDates) == 0 {
			if s.stopIfIdle(done) {
				return
			}
			continue
		}

		now := s.now()
		delay := NextCheckDelay(now, endDates, s.cfg.Buffer)
		switch {
		case retry || (checked && delay == 0):
			delay = s.cfg.RetryInterval
		case !checked && anyDue(endDates, now, s.cfg.Buffer):
			delay = 0
		}
		NextCheckSeconds.WithLabelValues(s.name).Set(delay.Seconds())

		s.logger.Debug("resolution-check-scheduled",
			zap.Int("open", len(endDates)),
			zap.Duration("delay", delay),
			zap.Bool("retry", retry))

		if !s.wait(ctx, stop, delay) {
			return
		}
		if s.kicked() {
			retry = false
			checked = false
			continue
		}

		out, err := s.check(ctx, false)
		checked = true
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("resolution-check-failed", zap.Error(err))
			retry = true
			continue
		}

		s.logger.Info("resolution-check-complete",
			zap.Int("checked", out.Checked),
			zap.Int("resolved", out.Resolved),
			zap.Int("open", out.Open),
			zap.Int("pending", out.Pending))

		retry = out.Pending > 0
	}
}

func anyDue(endDates []*time.Time, now time.Time, buffer time.Duration) bool {
	for _, end := range endDates {
		if IsDue(end, now, buffer) {
			return true
		}
	}
	return false
}

func stopped(ctx context.Context, stop chan struct{}) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// wait sleeps for d or until kicked. Returns false when stopped or ctx is cancelled.
func (s *Scheduler) wait(ctx context.Context, stop chan struct{}, d time.Duration) bool {
	if d <= 0 {
		return !stopped(ctx, stop)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case <-timer.C:
		return true
	case <-s.kick:
		s.markKicked()
		return true
	}
}

func (s *Scheduler) markKicked() {
	// Re-arm so the loop sees the kick after wait returns.
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Scheduler) kicked() bool {
	select {
	case <-s.kick:
		return true
	default:
		return false
	}
}

// stopIfIdle marks the scheduler stopped unless a Start or Kick arrived
// while the empty set was being read. Returns true when stopped.
func (s *Scheduler) stopIfIdle(done chan struct{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.kicked() {
		return false
	}
	if s.done == done {
		s.running = false
		s.stop = nil
		s.done = nil
		SchedulerRunning.WithLabelValues(s.name).Set(0)
		s.logger.Info("resolution-scheduler-idle")
	}
	return true
}
