package loop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestLoop_StartRunsImmediately(t *testing.T) {
	ran := make(chan struct{}, 1)
	l := New("test-immediate", time.Hour, func(ctx context.Context) {
		select {
		case ran <- struct{}{}:
		default:
		}
	}, zap.NewNop())

	if !l.Start(context.Background()) {
		t.Fatal("expected first Start to return true")
	}
	defer l.Stop()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run on start")
	}
	if l.LastRun().IsZero() {
		t.Error("expected LastRun to be set")
	}
}

func TestLoop_StartIsIdempotent(t *testing.T) {
	l := New("test-idempotent", time.Hour, func(ctx context.Context) {}, zap.NewNop())

	if !l.Start(context.Background()) {
		t.Fatal("expected first Start to return true")
	}
	if l.Start(context.Background()) {
		t.Error("expected second Start to be a no-op")
	}
	if l.State() != StateRunning {
		t.Errorf("State = %s, want running", l.State())
	}

	l.Stop()
	if l.Running() {
		t.Error("expected loop to be stopped")
	}

	// Stopping twice is a no-op.
	l.Stop()

	if !l.Start(context.Background()) {
		t.Error("expected restart after stop to return true")
	}
	l.Stop()
}

func TestLoop_StopLetsInFlightTickComplete(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var ctxErr atomic.Value
	var sawStop atomic.Bool

	l := New("test-stop-in-flight", time.Hour, func(ctx context.Context) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			ctxErr.Store(err)
		}
		sawStop.Store(StopRequested(ctx))
	}, zap.NewNop())

	l.Start(context.Background())
	<-started

	stopped := make(chan struct{})
	go func() {
		l.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned before the in-flight tick completed")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the tick completed")
	}

	if err := ctxErr.Load(); err != nil {
		t.Errorf("in-flight tick saw ctx error %v", err)
	}
	if !sawStop.Load() {
		t.Error("expected StopRequested to report the stop")
	}
}

func TestSleep(t *testing.T) {
	if !Sleep(context.Background(), time.Millisecond) {
		t.Error("expected Sleep to complete on a live context")
	}
	if StopRequested(context.Background()) {
		t.Error("manual context must not report a stop")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if Sleep(ctx, time.Hour) {
		t.Error("expected Sleep to return false on a cancelled context")
	}

	stop := make(chan struct{})
	close(stop)
	stopCtx := context.WithValue(context.Background(), stopKey{}, (<-chan struct{})(stop))
	if Sleep(stopCtx, time.Hour) {
		t.Error("expected Sleep to return false once the loop is stopped")
	}
	if !StopRequested(stopCtx) {
		t.Error("expected StopRequested after stop")
	}
}

func TestLoop_OverlappingTickIsSkipped(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32

	l := New("test-overlap", time.Hour, func(ctx context.Context) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
	}, zap.NewNop())

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		l.tick(ctx)
		close(done)
	}()
	<-started

	l.tick(ctx)
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 while first tick in flight", got)
	}

	close(release)
	<-done

	l.tick(ctx)
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2 after first tick finished", got)
	}
}

func TestLoop_RunNowWhileStopped(t *testing.T) {
	var calls atomic.Int32
	l := New("test-manual", time.Hour, func(ctx context.Context) {
		calls.Add(1)
	}, zap.NewNop())

	l.RunNow(context.Background())
	l.RunNow(context.Background())

	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
	if l.Running() {
		t.Error("RunNow must not start the schedule")
	}
}

func TestLoop_TickAfterCancelDoesNothing(t *testing.T) {
	var calls atomic.Int32
	l := New("test-cancelled-ctx", time.Hour, func(ctx context.Context) {
		calls.Add(1)
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.tick(ctx)

	if calls.Load() != 0 {
		t.Error("expected no run with cancelled context")
	}
}

func TestLoop_ExclusiveWaitsForTick(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var inTick atomic.Bool

	l := New("test-exclusive", time.Hour, func(ctx context.Context) {
		inTick.Store(true)
		close(started)
		<-release
		inTick.Store(false)
	}, zap.NewNop())

	l.Start(context.Background())
	defer l.Stop()
	<-started

	done := make(chan bool, 1)
	go l.Exclusive(context.Background(), func(ctx context.Context) {
		done <- inTick.Load()
	})

	select {
	case <-done:
		t.Fatal("exclusive fn ran while a tick was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case overlapped := <-done:
		if overlapped {
			t.Error("exclusive fn overlapped the tick")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("exclusive fn never ran")
	}
}
