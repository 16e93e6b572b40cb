// Package live keeps the selected robot's position fresh.
package live

import (
	"context"
	"log"
	"sync"
	"time"

	"deliverydash/backend"
	"deliverydash/pathdata"
	"deliverydash/timeutil"
)

// Source fetches a robot's current position. A nil point with a nil error
// means the robot reported no position.
type Source interface {
	RobotPosition(ctx context.Context, robotID int64) (*pathdata.Point, error)
}

// ClientSource adapts a backend client to Source.
type ClientSource struct {
	Client *backend.Client
}

func (s ClientSource) RobotPosition(ctx context.Context, robotID int64) (*pathdata.Point, error) {
	r, err := s.Client.GetRobot(ctx, robotID)
	if err != nil {
		return nil, err
	}
	return r.Position(), nil
}

// Sink receives positions. It must ignore robots that are no longer selected.
type Sink interface {
	MergePosition(robotID int64, pos *pathdata.Point)
}

type Config struct {
	Source   Source
	Sink     Sink
	Clock    timeutil.Clock
	Interval time.Duration
	LogFunc  func(format string, args ...any)
}

type Updater struct {
	cfg   Config
	logFn func(format string, args ...any)

	mu      sync.Mutex
	gen     uint64
	robotID int64
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(cfg Config) *Updater {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	logFn := cfg.LogFunc
	if logFn == nil {
		logFn = log.Printf
	}
	return &Updater{cfg: cfg, logFn: logFn}
}

// Select starts polling robotID, replacing any previous selection. The
// first fetch happens immediately.
func (u *Updater) Select(robotID int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.cancel != nil {
		u.cancel()
	}
	u.gen++
	u.robotID = robotID
	ctx, cancel := context.WithCancel(context.Background())
	u.cancel = cancel

	ticker := u.cfg.Clock.NewTicker(u.cfg.Interval)
	u.wg.Add(1)
	go u.run(ctx, u.gen, robotID, ticker)
}

// Deselect stops polling without waiting for an in-flight fetch.
func (u *Updater) Deselect() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.gen++
	u.robotID = 0
	if u.cancel != nil {
		u.cancel()
		u.cancel = nil
	}
}

// Stop deselects and waits for every poll loop to exit.
func (u *Updater) Stop() {
	u.Deselect()
	u.wg.Wait()
}

// Selected returns the robot being polled, or 0.
func (u *Updater) Selected() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.robotID
}

func (u *Updater) run(ctx context.Context, gen uint64, robotID int64, ticker timeutil.Ticker) {
	defer u.wg.Done()
	defer ticker.Stop()

	u.poll(ctx, gen, robotID)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			u.poll(ctx, gen, robotID)
		}
	}
}

func (u *Updater) poll(ctx context.Context, gen uint64, robotID int64) {
	pos, err := u.cfg.Source.RobotPosition(ctx, robotID)
	if err != nil {
		if ctx.Err() == nil {
			u.logFn("live: robot %d: %v", robotID, err)
		}
		return
	}
	u.mu.Lock()
	current := u.gen == gen
	u.mu.Unlock()
	if !current {
		return
	}
	u.cfg.Sink.MergePosition(robotID, pos)
}
