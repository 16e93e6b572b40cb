package acquire

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"deliverydash/backend"
	"deliverydash/pathdata"
	"deliverydash/timeutil"
)

// Source answers the two questions the machine polls for. The backend
// client satisfies it through ClientSource.
type Source interface {
	RequestStatus(ctx context.Context, requestID int64) (backend.RequestStatus, error)
	Trajectory(ctx context.Context, requestID int64) (*backend.Trajectory, error)
}

// ClientSource adapts a backend client to Source.
type ClientSource struct {
	Client *backend.Client
}

func (s ClientSource) RequestStatus(ctx context.Context, requestID int64) (backend.RequestStatus, error) {
	req, err := s.Client.GetRequest(ctx, requestID)
	if err != nil {
		return "", err
	}
	return req.Status, nil
}

func (s ClientSource) Trajectory(ctx context.Context, requestID int64) (*backend.Trajectory, error) {
	return s.Client.GetTrajectory(ctx, requestID)
}

// Listener receives runner output. Every call carries the activation ID so
// the receiver can drop output from an activation it has moved past.
type Listener interface {
	TrajectoryPoints(activationID string, requestID int64, points []pathdata.Point)
	AcquisitionChanged(snap Snapshot)
	AcquisitionTransition(activationID string, requestID int64, from, to State, detail string)
}

type LogFunc func(format string, args ...any)

type Config struct {
	Source         Source
	Listener       Listener
	Clock          timeutil.Clock
	StatusInterval time.Duration
	RetryInterval  time.Duration
	MaxAttempts    int
	LogFunc        LogFunc
}

type Runner struct {
	cfg   Config
	logFn LogFunc

	actMu sync.Mutex // serializes Activate/Stop

	mu   sync.Mutex
	act  *activation
	snap Snapshot
}

type activation struct {
	id        string
	requestID int64
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	results   chan func(*Machine) []Effect
	manual    chan struct{}
	machine   *Machine
	retry     timeutil.Ticker
}

func NewRunner(cfg Config) *Runner {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = 5 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 2 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	logFn := cfg.LogFunc
	if logFn == nil {
		logFn = log.Printf
	}
	return &Runner{cfg: cfg, logFn: logFn}
}

// Activate cancels the current activation, if any, and starts acquiring
// the trajectory for requestID. It returns the new activation ID.
func (r *Runner) Activate(requestID int64) string {
	r.actMu.Lock()
	defer r.actMu.Unlock()
	r.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	a := &activation{
		id:        uuid.NewString(),
		requestID: requestID,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		results:   make(chan func(*Machine) []Effect, 16),
		manual:    make(chan struct{}, 1),
		machine:   NewMachine(r.cfg.MaxAttempts),
	}
	r.mu.Lock()
	r.act = a
	r.mu.Unlock()

	go r.run(a)
	return a.id
}

// Stop cancels the current activation and waits for its loop to exit.
func (r *Runner) Stop() {
	r.actMu.Lock()
	defer r.actMu.Unlock()
	r.stopLocked()
}

func (r *Runner) stopLocked() {
	r.mu.Lock()
	a := r.act
	r.act = nil
	r.snap = Snapshot{}
	r.mu.Unlock()
	if a == nil {
		return
	}
	a.cancel()
	<-a.done
	r.logFn("acquire: request %d deactivated", a.requestID)
}

// Retry asks a timed-out activation to search again. It is a no-op in
// any other state.
func (r *Runner) Retry() {
	r.mu.Lock()
	a := r.act
	r.mu.Unlock()
	if a == nil {
		return
	}
	select {
	case a.manual <- struct{}{}:
	default:
	}
}

// Snapshot returns the state of the current activation.
func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.snap
	s.Points = clonePoints(s.Points)
	return s
}

func (r *Runner) run(a *activation) {
	defer close(a.done)

	status := r.cfg.Clock.NewTicker(r.cfg.StatusInterval)
	defer status.Stop()
	defer func() {
		if a.retry != nil {
			a.retry.Stop()
			a.retry = nil
		}
	}()

	r.apply(a, a.machine.Activate(a.requestID))
	for {
		var retryC <-chan time.Time
		if a.retry != nil {
			retryC = a.retry.C()
		}
		select {
		case <-a.ctx.Done():
			return
		case <-status.C():
			r.apply(a, a.machine.StatusTick())
		case <-retryC:
			r.apply(a, a.machine.RetryTick())
		case deliver := <-a.results:
			r.apply(a, deliver(a.machine))
		case <-a.manual:
			r.apply(a, a.machine.ManualRetry())
		}
	}
}

func (r *Runner) apply(a *activation, effects []Effect) {
	if a.ctx.Err() != nil {
		return
	}
	for _, e := range effects {
		switch e := e.(type) {
		case FetchStatus:
			go r.fetchStatus(a, e.Seq)
		case FetchTrajectory:
			go r.fetchTrajectory(a, e.Seq)
		case StartRetry:
			if a.retry == nil {
				a.retry = r.cfg.Clock.NewTicker(r.cfg.RetryInterval)
			}
		case StopRetry:
			if a.retry != nil {
				a.retry.Stop()
				a.retry = nil
			}
		case Emit:
			if r.cfg.Listener != nil {
				r.cfg.Listener.TrajectoryPoints(a.id, a.requestID, e.Points)
			}
		case Notify:
			if e.Notice.Kind == NoticeTransient || e.Notice.Kind == NoticeTimeout {
				r.logFn("acquire: request %d: %s", a.requestID, e.Notice.Message)
			}
		case Transition:
			r.logFn("acquire: request %d %s -> %s (%s)", a.requestID, e.From, e.To, e.Detail)
			if r.cfg.Listener != nil {
				r.cfg.Listener.AcquisitionTransition(a.id, a.requestID, e.From, e.To, e.Detail)
			}
		}
	}

	snap := a.machine.Snapshot()
	snap.ActivationID = a.id
	r.mu.Lock()
	current := r.act == a
	if current {
		r.snap = snap
	}
	r.mu.Unlock()
	if current && r.cfg.Listener != nil {
		r.cfg.Listener.AcquisitionChanged(snap)
	}
}

func (r *Runner) fetchStatus(a *activation, seq uint64) {
	status, err := r.cfg.Source.RequestStatus(a.ctx, a.requestID)
	r.deliver(a, func(m *Machine) []Effect { return m.StatusResult(seq, status, err) })
}

func (r *Runner) fetchTrajectory(a *activation, seq uint64) {
	tr, err := r.cfg.Source.Trajectory(a.ctx, a.requestID)
	r.deliver(a, func(m *Machine) []Effect { return m.TrajectoryResult(seq, tr, err) })
}

func (r *Runner) deliver(a *activation, fn func(*Machine) []Effect) {
	select {
	case a.results <- fn:
	case <-a.ctx.Done():
	}
}
