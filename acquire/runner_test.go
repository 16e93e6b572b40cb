package acquire

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"deliverydash/backend"
	"deliverydash/pathdata"
	"deliverydash/timeutil"
)

type fakeSource struct {
	mu          sync.Mutex
	statusCalls int
	trajCalls   int
	statusFn    func(call int) (backend.RequestStatus, error)
	trajFn      func(call int) (*backend.Trajectory, error)
}

func (f *fakeSource) RequestStatus(ctx context.Context, id int64) (backend.RequestStatus, error) {
	f.mu.Lock()
	f.statusCalls++
	n := f.statusCalls
	fn := f.statusFn
	f.mu.Unlock()
	if fn == nil {
		return backend.StatusPending, nil
	}
	return fn(n)
}

func (f *fakeSource) Trajectory(ctx context.Context, id int64) (*backend.Trajectory, error) {
	f.mu.Lock()
	f.trajCalls++
	n := f.trajCalls
	fn := f.trajFn
	f.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("trajectory: %w", backend.ErrNotFound)
	}
	return fn(n)
}

func (f *fakeSource) counts() (status, traj int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls, f.trajCalls
}

type recordingListener struct {
	mu          sync.Mutex
	emits       [][]pathdata.Point
	transitions []string
}

func (l *recordingListener) TrajectoryPoints(activationID string, requestID int64, points []pathdata.Point) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.emits = append(l.emits, points)
}

func (l *recordingListener) AcquisitionChanged(Snapshot) {}

func (l *recordingListener) AcquisitionTransition(activationID string, requestID int64, from, to State, detail string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transitions = append(l.transitions, to.String())
}

func (l *recordingListener) lastEmit() ([]pathdata.Point, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.emits) == 0 {
		return nil, false
	}
	return l.emits[len(l.emits)-1], true
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestRunner(src *fakeSource, maxAttempts int) (*Runner, *recordingListener, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	lis := &recordingListener{}
	r := NewRunner(Config{
		Source:      src,
		Listener:    lis,
		Clock:       clock,
		MaxAttempts: maxAttempts,
		LogFunc:     func(string, ...any) {},
	})
	return r, lis, clock
}

func TestRunner_FoundImmediately(t *testing.T) {
	src := &fakeSource{trajFn: func(int) (*backend.Trajectory, error) {
		return &backend.Trajectory{ID: 1, RequestID: 5, PathData: "x:0,y:0;x:5,y:5;x:10,y:0"}, nil
	}}
	r, lis, clock := newTestRunner(src, 30)
	defer r.Stop()

	r.Activate(5)
	waitFor(t, "FOUND", func() bool { return r.Snapshot().State == Found })

	pts, ok := lis.lastEmit()
	if !ok || len(pts) != 3 {
		t.Fatalf("emitted %v, want 3 points", pts)
	}
	if n := clock.ActiveTickers(); n != 1 {
		t.Errorf("active tickers = %d, want 1 (status only)", n)
	}
	if snap := r.Snapshot(); snap.Trajectory == nil || snap.Trajectory.ID != 1 {
		t.Errorf("trajectory = %+v", snap.Trajectory)
	}
}

func TestRunner_TimesOutAfterMaxRetries(t *testing.T) {
	const maxAttempts = 30
	src := &fakeSource{}
	r, _, clock := newTestRunner(src, maxAttempts)
	defer r.Stop()

	r.Activate(5)
	waitFor(t, "retry loop", func() bool { return r.Snapshot().Retrying })

	for i := 1; i <= maxAttempts; i++ {
		clock.Advance(2 * time.Second)
		want := 1 + i
		waitFor(t, fmt.Sprintf("fetch %d", want), func() bool {
			_, n := src.counts()
			return n == want
		})
	}
	waitFor(t, "TIMED_OUT", func() bool { return r.Snapshot().State == TimedOut })

	for i := 0; i < 5; i++ {
		clock.Advance(2 * time.Second)
	}
	time.Sleep(20 * time.Millisecond)
	if _, n := src.counts(); n != 1+maxAttempts {
		t.Errorf("trajectory fetches = %d, want %d", n, 1+maxAttempts)
	}
	if n := clock.ActiveTickers(); n != 1 {
		t.Errorf("active tickers = %d, want 1", n)
	}
	if snap := r.Snapshot(); snap.Notice.Kind != NoticeTimeout {
		t.Errorf("notice = %v, want timeout", snap.Notice.Kind)
	}
}

func TestRunner_TerminalCancelsSearch(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	r, lis, clock := newTestRunner(&fakeSource{}, 30)
	src := &fakeSource{statusFn: func(int) (backend.RequestStatus, error) {
		if clock.Since(start) >= 15*time.Second {
			return backend.StatusCompleted, nil
		}
		return backend.StatusPending, nil
	}}
	r.cfg.Source = src
	defer r.Stop()

	r.Activate(5)
	waitFor(t, "retry loop", func() bool { return r.Snapshot().Retrying })

	for sec := 1; sec <= 15; sec++ {
		clock.Advance(time.Second)
		wantStatus, wantTraj := 1+sec/5, 1+sec/2
		waitFor(t, fmt.Sprintf("polls at %ds", sec), func() bool {
			s, n := src.counts()
			return s == wantStatus && n == wantTraj
		})
	}
	waitFor(t, "TERMINAL", func() bool { return r.Snapshot().State == Terminal })

	pts, ok := lis.lastEmit()
	if !ok || len(pts) != 0 {
		t.Errorf("last emit = %v, want empty", pts)
	}
	if n := clock.ActiveTickers(); n != 1 {
		t.Errorf("active tickers = %d, want 1", n)
	}
	_, before := src.counts()
	for i := 0; i < 3; i++ {
		clock.Advance(2 * time.Second)
	}
	time.Sleep(20 * time.Millisecond)
	if _, after := src.counts(); after != before {
		t.Errorf("trajectory fetched after terminal: %d -> %d", before, after)
	}
}

func TestRunner_ManualRetry(t *testing.T) {
	src := &fakeSource{}
	r, _, clock := newTestRunner(src, 1)
	defer r.Stop()

	r.Activate(5)
	waitFor(t, "retry loop", func() bool { return r.Snapshot().Retrying })
	clock.Advance(2 * time.Second)
	waitFor(t, "TIMED_OUT", func() bool { return r.Snapshot().State == TimedOut })

	src.mu.Lock()
	src.trajFn = func(int) (*backend.Trajectory, error) {
		return &backend.Trajectory{ID: 2, RequestID: 5, PathData: "x:1,y:2"}, nil
	}
	src.mu.Unlock()

	r.Retry()
	waitFor(t, "FOUND", func() bool { return r.Snapshot().State == Found })
	if pts := r.Snapshot().Points; len(pts) != 1 || pts[0].X != 1 || pts[0].Y != 2 {
		t.Errorf("points = %v", pts)
	}
}

func TestRunner_ReactivateAndStop(t *testing.T) {
	src := &fakeSource{}
	r, _, clock := newTestRunner(src, 30)

	first := r.Activate(5)
	waitFor(t, "retry loop", func() bool { return r.Snapshot().Retrying })
	second := r.Activate(6)
	if first == second {
		t.Fatal("activation IDs should differ")
	}
	waitFor(t, "second activation", func() bool {
		s := r.Snapshot()
		return s.ActivationID == second && s.RequestID == 6
	})

	r.Stop()
	if n := clock.ActiveTickers(); n != 0 {
		t.Errorf("active tickers after Stop = %d, want 0", n)
	}
	if s := r.Snapshot(); s.State != Idle {
		t.Errorf("state after Stop = %v, want IDLE", s.State)
	}
}
