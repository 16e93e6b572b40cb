package acquire

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"deliverydash/backend"
	"deliverydash/pathdata"
)

func findEffect[T Effect](effects []Effect) (T, bool) {
	for _, e := range effects {
		if v, ok := e.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func mustFetchTrajectory(t *testing.T, effects []Effect) uint64 {
	t.Helper()
	f, ok := findEffect[FetchTrajectory](effects)
	if !ok {
		t.Fatalf("no FetchTrajectory in %v", effects)
	}
	return f.Seq
}

func notFound() error {
	return fmt.Errorf("backend GET: %w", backend.ErrNotFound)
}

func traj(path string) *backend.Trajectory {
	return &backend.Trajectory{ID: 1, RequestID: 5, PathData: path}
}

func TestActivateTerminalSkipsSearch(t *testing.T) {
	m := NewMachine(30)
	fs, _ := findEffect[FetchStatus](m.Activate(5))
	effects := m.StatusResult(fs.Seq, backend.StatusCompleted, nil)

	if m.State() != Terminal {
		t.Fatalf("state = %v, want TERMINAL", m.State())
	}
	emit, ok := findEffect[Emit](effects)
	if !ok || len(emit.Points) != 0 || emit.Points == nil {
		t.Errorf("emit = %+v, want empty non-nil points", emit)
	}
	if _, ok := findEffect[FetchTrajectory](effects); ok {
		t.Error("terminal request should not fetch a trajectory")
	}
}

func TestImmediateTrajectoryFound(t *testing.T) {
	m := NewMachine(30)
	fs, _ := findEffect[FetchStatus](m.Activate(5))
	seq := mustFetchTrajectory(t, m.StatusResult(fs.Seq, backend.StatusPending, nil))
	if m.State() != Searching {
		t.Fatalf("state = %v, want SEARCHING_TRAJECTORY", m.State())
	}

	effects := m.TrajectoryResult(seq, traj("x:0,y:0;x:5,y:5;x:10,y:0"), nil)
	if m.State() != Found {
		t.Fatalf("state = %v, want FOUND", m.State())
	}
	emit, _ := findEffect[Emit](effects)
	want := []pathdata.Point{{X: 0, Y: 0}, {X: 5, Y: 5}, {X: 10, Y: 0}}
	if diff := cmp.Diff(want, emit.Points); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}
	if _, ok := findEffect[StartRetry](effects); ok {
		t.Error("found trajectory should not start retry loop")
	}
}

func TestMissStartsRetryOnce(t *testing.T) {
	m := NewMachine(30)
	fs, _ := findEffect[FetchStatus](m.Activate(5))
	seq := mustFetchTrajectory(t, m.StatusResult(fs.Seq, backend.StatusPending, nil))

	effects := m.TrajectoryResult(seq, nil, notFound())
	if _, ok := findEffect[StartRetry](effects); !ok {
		t.Fatal("miss should start retry loop")
	}
	n, _ := findEffect[Notify](effects)
	if n.Notice.Kind != NoticeNotYetComputed {
		t.Errorf("notice = %v, want not_yet_computed", n.Notice.Kind)
	}

	seq = mustFetchTrajectory(t, m.RetryTick())
	effects = m.TrajectoryResult(seq, traj(""), nil)
	if _, ok := findEffect[StartRetry](effects); ok {
		t.Error("retry loop started twice")
	}
	if m.State() != Searching {
		t.Errorf("empty path data: state = %v, want SEARCHING_TRAJECTORY", m.State())
	}
}

func TestTimeoutAfterMaxAttempts(t *testing.T) {
	const max = 30
	m := NewMachine(max)
	fs, _ := findEffect[FetchStatus](m.Activate(5))
	seq := mustFetchTrajectory(t, m.StatusResult(fs.Seq, backend.StatusPending, nil))
	m.TrajectoryResult(seq, nil, notFound())

	fetches := 0
	for i := 1; i <= max; i++ {
		seq = mustFetchTrajectory(t, m.RetryTick())
		fetches++
		effects := m.TrajectoryResult(seq, nil, notFound())
		if i < max && m.State() != Searching {
			t.Fatalf("after %d retries state = %v", i, m.State())
		}
		if i == max {
			if _, ok := findEffect[StopRetry](effects); !ok {
				t.Error("timeout should stop retry loop")
			}
			n, _ := findEffect[Notify](effects)
			if n.Notice.Kind != NoticeTimeout {
				t.Errorf("notice = %v, want timeout", n.Notice.Kind)
			}
		}
	}
	if m.State() != TimedOut {
		t.Fatalf("state = %v, want TIMED_OUT", m.State())
	}
	if fetches != max {
		t.Errorf("retry fetches = %d, want %d", fetches, max)
	}
	if effects := m.RetryTick(); len(effects) != 0 {
		t.Errorf("RetryTick after timeout = %v, want none", effects)
	}
}

func TestTimeoutWaitsForLastFetch(t *testing.T) {
	m := NewMachine(2)
	fs, _ := findEffect[FetchStatus](m.Activate(5))
	seq0 := mustFetchTrajectory(t, m.StatusResult(fs.Seq, backend.StatusPending, nil))
	m.TrajectoryResult(seq0, nil, notFound())

	seq1 := mustFetchTrajectory(t, m.RetryTick())
	seq2 := mustFetchTrajectory(t, m.RetryTick())
	// first retry resolves after the second was issued
	m.TrajectoryResult(seq1, nil, notFound())
	if m.State() != Searching {
		t.Fatalf("state = %v, want SEARCHING_TRAJECTORY while last fetch in flight", m.State())
	}
	m.TrajectoryResult(seq2, traj("x:1,y:1"), nil)
	if m.State() != Found {
		t.Errorf("state = %v, want FOUND", m.State())
	}
}

func TestTransientErrorKeepsRetrying(t *testing.T) {
	m := NewMachine(30)
	fs, _ := findEffect[FetchStatus](m.Activate(5))
	seq := mustFetchTrajectory(t, m.StatusResult(fs.Seq, backend.StatusPending, nil))
	effects := m.TrajectoryResult(seq, nil, errors.New("connection refused"))

	n, _ := findEffect[Notify](effects)
	if n.Notice.Kind != NoticeTransient {
		t.Errorf("notice = %v, want transient", n.Notice.Kind)
	}
	if _, ok := findEffect[StartRetry](effects); !ok {
		t.Error("transient error should still start retry loop")
	}
	if m.State() != Searching {
		t.Errorf("state = %v, want SEARCHING_TRAJECTORY", m.State())
	}
}

func TestStatusErrorOnActivationFallsThrough(t *testing.T) {
	m := NewMachine(30)
	fs, _ := findEffect[FetchStatus](m.Activate(5))
	effects := m.StatusResult(fs.Seq, "", errors.New("timeout"))
	mustFetchTrajectory(t, effects)
	if m.State() != Searching {
		t.Errorf("state = %v, want SEARCHING_TRAJECTORY", m.State())
	}
}

func TestTerminalPrecedenceAfterFound(t *testing.T) {
	m := NewMachine(30)
	fs, _ := findEffect[FetchStatus](m.Activate(5))
	seq := mustFetchTrajectory(t, m.StatusResult(fs.Seq, backend.StatusPending, nil))
	m.TrajectoryResult(seq, traj("x:0,y:0;x:1,y:1"), nil)

	tick, _ := findEffect[FetchStatus](m.StatusTick())
	effects := m.StatusResult(tick.Seq, backend.StatusFailed, nil)
	emit, ok := findEffect[Emit](effects)
	if !ok || len(emit.Points) != 0 {
		t.Errorf("emit = %+v, want empty", emit)
	}
	if m.State() != Terminal {
		t.Errorf("state = %v, want TERMINAL", m.State())
	}
	if len(m.Snapshot().Points) != 0 {
		t.Error("snapshot points should be cleared")
	}
	if effects := m.RetryTick(); len(effects) != 0 {
		t.Errorf("RetryTick after terminal = %v", effects)
	}

	// repeated terminal observations are no-ops
	tick, _ = findEffect[FetchStatus](m.StatusTick())
	if effects := m.StatusResult(tick.Seq, backend.StatusFailed, nil); len(effects) != 0 {
		t.Errorf("second terminal = %v, want none", effects)
	}
}

func TestTerminalDuringSearchStopsRetry(t *testing.T) {
	m := NewMachine(30)
	fs, _ := findEffect[FetchStatus](m.Activate(5))
	seq := mustFetchTrajectory(t, m.StatusResult(fs.Seq, backend.StatusPending, nil))
	m.TrajectoryResult(seq, nil, notFound())
	inflight := mustFetchTrajectory(t, m.RetryTick())

	tick, _ := findEffect[FetchStatus](m.StatusTick())
	effects := m.StatusResult(tick.Seq, backend.StatusCompleted, nil)
	if _, ok := findEffect[StopRetry](effects); !ok {
		t.Error("terminal should stop retry loop")
	}
	// a trajectory that lands after termination is ignored
	if effects := m.TrajectoryResult(inflight, traj("x:1,y:1"), nil); len(effects) != 0 {
		t.Errorf("late trajectory = %v, want none", effects)
	}
	if m.State() != Terminal {
		t.Errorf("state = %v, want TERMINAL", m.State())
	}
}

func TestStaleStatusResultDiscarded(t *testing.T) {
	m := NewMachine(30)
	fs, _ := findEffect[FetchStatus](m.Activate(5))
	seq := mustFetchTrajectory(t, m.StatusResult(fs.Seq, backend.StatusPending, nil))
	m.TrajectoryResult(seq, nil, notFound())

	older, _ := findEffect[FetchStatus](m.StatusTick())
	newer, _ := findEffect[FetchStatus](m.StatusTick())
	m.StatusResult(newer.Seq, backend.StatusPlanning, nil)
	if effects := m.StatusResult(older.Seq, backend.StatusCompleted, nil); len(effects) != 0 {
		t.Errorf("stale status applied: %v", effects)
	}
	if m.State() != Searching {
		t.Errorf("state = %v, want SEARCHING_TRAJECTORY", m.State())
	}
	if m.Snapshot().Status != backend.StatusPlanning {
		t.Errorf("status = %q, want PLANNING", m.Snapshot().Status)
	}
}

func TestStaleTrajectoryResultDiscarded(t *testing.T) {
	m := NewMachine(30)
	fs, _ := findEffect[FetchStatus](m.Activate(5))
	seq := mustFetchTrajectory(t, m.StatusResult(fs.Seq, backend.StatusPending, nil))
	m.TrajectoryResult(seq, nil, notFound())

	s1 := mustFetchTrajectory(t, m.RetryTick())
	s2 := mustFetchTrajectory(t, m.RetryTick())
	m.TrajectoryResult(s2, nil, notFound())
	if effects := m.TrajectoryResult(s1, traj("x:9,y:9"), nil); len(effects) != 0 {
		t.Errorf("stale trajectory applied: %v", effects)
	}
}

func TestManualRetry(t *testing.T) {
	m := NewMachine(1)
	fs, _ := findEffect[FetchStatus](m.Activate(5))
	seq := mustFetchTrajectory(t, m.StatusResult(fs.Seq, backend.StatusPending, nil))
	m.TrajectoryResult(seq, nil, notFound())
	seq = mustFetchTrajectory(t, m.RetryTick())
	m.TrajectoryResult(seq, nil, notFound())
	if m.State() != TimedOut {
		t.Fatalf("state = %v, want TIMED_OUT", m.State())
	}

	seq = mustFetchTrajectory(t, m.ManualRetry())
	if m.State() != Searching || m.Snapshot().Attempts != 0 {
		t.Fatalf("after manual retry: state = %v attempts = %d", m.State(), m.Snapshot().Attempts)
	}
	effects := m.TrajectoryResult(seq, nil, notFound())
	if _, ok := findEffect[StartRetry](effects); !ok {
		t.Error("manual retry miss should restart the loop")
	}

	if effects := NewMachine(30).ManualRetry(); len(effects) != 0 {
		t.Errorf("ManualRetry while idle = %v", effects)
	}
}

func TestReactivateDiscardsOldResults(t *testing.T) {
	m := NewMachine(30)
	fs, _ := findEffect[FetchStatus](m.Activate(5))
	seq := mustFetchTrajectory(t, m.StatusResult(fs.Seq, backend.StatusPending, nil))
	m.TrajectoryResult(seq, nil, notFound())
	old := mustFetchTrajectory(t, m.RetryTick())

	effects := m.Activate(6)
	if _, ok := findEffect[StopRetry](effects); !ok {
		t.Error("reactivation should stop the old retry loop")
	}
	if effects := m.TrajectoryResult(old, traj("x:1,y:1"), nil); len(effects) != 0 {
		t.Errorf("old activation result applied: %v", effects)
	}
	if m.Snapshot().RequestID != 6 || m.State() != AwaitingStatus {
		t.Errorf("snapshot = %+v", m.Snapshot())
	}
}
