// Package loop provides the cancellable periodic task handle shared by the
// trading, arbitrage and copy-trading loops.
package loop

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one tick of a loop. Long jobs check StopRequested between steps;
// Stop never cancels ctx, so a started call runs to completion.
type Job func(ctx context.Context)

// State is the loop state machine.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

// Loop runs a Job on a fixed interval. Ticks never overlap: a tick that
// fires while the previous one is still running is skipped.
type Loop struct {
	name     string
	interval time.Duration
	job      Job
	logger   *zap.Logger

	mu      sync.Mutex
	state   State
	cron    *cron.Cron
	stop    chan struct{}
	wg      sync.WaitGroup
	lastRun time.Time

	runMu sync.Mutex
}

// New creates a stopped Loop.
func New(name string, interval time.Duration, job Job, logger *zap.Logger) *Loop {
	return &Loop{
		name:     name,
		interval: interval,
		job:      job,
		logger:   logger.With(zap.String("loop", name)),
		state:    StateStopped,
	}
}

// Name returns the loop name.
func (l *Loop) Name() string {
	return l.name
}

// Interval returns the tick interval.
func (l *Loop) Interval() time.Duration {
	return l.interval
}

// Start schedules the job and runs the first tick immediately.
// Returns false if the loop was already running.
func (l *Loop) Start(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateRunning {
		l.logger.Debug("loop-already-running")
		return false
	}

	stop := make(chan struct{})
	runCtx := context.WithValue(ctx, stopKey{}, (<-chan struct{})(stop))
	cronLogger := NewCronLogger(l.logger)
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	c.Schedule(cron.Every(l.interval), cron.FuncJob(func() { l.tick(runCtx) }))
	c.Start()

	l.cron = c
	l.stop = stop
	l.state = StateRunning
	LoopRunning.WithLabelValues(l.name).Set(1)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.tick(runCtx)
	}()

	l.logger.Info("loop-started", zap.Duration("interval", l.interval))
	return true
}

// Stop removes the schedule, signals StopRequested and waits for an
// in-flight tick to return. Stopping a stopped loop is a no-op.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.state == StateStopped {
		l.mu.Unlock()
		return
	}
	c := l.cron
	stop := l.stop
	l.cron = nil
	l.stop = nil
	l.state = StateStopped
	LoopRunning.WithLabelValues(l.name).Set(0)
	l.mu.Unlock()

	close(stop)
	<-c.Stop().Done()
	l.wg.Wait()

	l.logger.Info("loop-stopped")
}

// Running reports whether the loop is scheduled.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == StateRunning
}

// State returns the current state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// LastRun returns the start time of the most recent tick.
func (l *Loop) LastRun() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastRun
}

// RunNow runs the job synchronously, waiting for any in-flight tick to
// finish first. Used for manual triggers; works whether or not the loop is scheduled.
func (l *Loop) RunNow(ctx context.Context) {
	l.runMu.Lock()
	defer l.runMu.Unlock()
	l.run(ctx, "manual")
}

// Exclusive runs fn serialized with the loop's ticks. Manual triggers that
// need the job's result use it instead of RunNow.
func (l *Loop) Exclusive(ctx context.Context, fn Job) {
	l.runMu.Lock()
	defer l.runMu.Unlock()
	fn(ctx)
}

func (l *Loop) tick(ctx context.Context) {
	if StopRequested(ctx) {
		return
	}
	if !l.runMu.TryLock() {
		TicksTotal.WithLabelValues(l.name, "skipped").Inc()
		l.logger.Debug("loop-tick-skipped")
		return
	}
	defer l.runMu.Unlock()
	l.run(ctx, "scheduled")
}

func (l *Loop) run(ctx context.Context, trigger string) {
	start := time.Now()
	l.mu.Lock()
	l.lastRun = start
	l.mu.Unlock()

	l.job(ctx)

	TicksTotal.WithLabelValues(l.name, trigger).Inc()
	TickDuration.WithLabelValues(l.name).Observe(time.Since(start).Seconds())
}

type stopKey struct{}

// StopRequested reports whether ctx is done or the loop that started the
// current tick has been stopped. Manual runs are only stopped by ctx.
func StopRequested(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	stop, _ := ctx.Value(stopKey{}).(<-chan struct{})
	if stop == nil {
		return false
	}
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// Sleep waits for d. Returns false if ctx is done or the loop is stopped first.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !StopRequested(ctx)
	}
	stop, _ := ctx.Value(stopKey{}).(<-chan struct{})
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}
