// Package acquire reconciles a delivery request's lifecycle with the
// asynchronously planned trajectory for it.
//
// Machine is the transition core: it holds no timers or goroutines and
// answers every input with a list of effects. Runner hosts one Machine
// per activation and turns those effects into fetches and tickers.
package acquire

import (
	"errors"
	"fmt"
	"time"

	"deliverydash/backend"
	"deliverydash/pathdata"
)

type State int

const (
	Idle State = iota
	AwaitingStatus
	Searching
	Found
	TimedOut
	Terminal
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case AwaitingStatus:
		return "AWAITING_STATUS"
	case Searching:
		return "SEARCHING_TRAJECTORY"
	case Found:
		return "FOUND"
	case TimedOut:
		return "TIMED_OUT"
	case Terminal:
		return "TERMINAL"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type NoticeKind int

const (
	NoticeNone NoticeKind = iota
	NoticeNotYetComputed
	NoticeTransient
	NoticeTimeout
	NoticeTerminal
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeNotYetComputed:
		return "not_yet_computed"
	case NoticeTransient:
		return "transient"
	case NoticeTimeout:
		return "timeout"
	case NoticeTerminal:
		return "terminal"
	}
	return "none"
}

func (k NoticeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
}

// Effect is an instruction from the Machine to its host.
type Effect interface {
	effect()
}

type (
	FetchStatus     struct{ Seq uint64 }
	FetchTrajectory struct{ Seq uint64 }
	StartRetry      struct{}
	StopRetry       struct{}
	// Emit replaces the point sequence shown for the request.
	Emit       struct{ Points []pathdata.Point }
	Notify     struct{ Notice Notice }
	Transition struct {
		From, To State
		Detail   string
	}
)

func (FetchStatus) effect()     {}
func (FetchTrajectory) effect() {}
func (StartRetry) effect()      {}
func (StopRetry) effect()       {}
func (Emit) effect()            {}
func (Notify) effect()          {}
func (Transition) effect()      {}

// TrajectoryInfo is the accepted trajectory.
type TrajectoryInfo struct {
	ID           int64     `json:"id"`
	PathData     string    `json:"path_data"`
	CalculatedAt time.Time `json:"calculated_at"`
}

const DefaultMaxAttempts = 30

type Machine struct {
	maxAttempts int

	state     State
	requestID int64
	attempts  int
	retrying  bool

	statusSeq, trajSeq       uint64 // last issued
	appliedStatus, appliedTr uint64 // last applied

	status     backend.RequestStatus
	notice     Notice
	trajectory *TrajectoryInfo
	points     []pathdata.Point
}

func NewMachine(maxAttempts int) *Machine {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Machine{maxAttempts: maxAttempts}
}

func (m *Machine) State() State { return m.state }

// Activate starts acquisition for a request, discarding prior state.
func (m *Machine) Activate(requestID int64) []Effect {
	var effects []Effect
	if m.retrying {
		effects = append(effects, StopRetry{})
	}
	*m = Machine{maxAttempts: m.maxAttempts, requestID: requestID,
		statusSeq: m.statusSeq, trajSeq: m.trajSeq,
		appliedStatus: m.statusSeq, appliedTr: m.trajSeq}
	effects = append(effects, m.moveTo(AwaitingStatus, fmt.Sprintf("request %d", requestID)))
	m.statusSeq++
	return append(effects, FetchStatus{Seq: m.statusSeq})
}

// StatusTick is the periodic status poll.
func (m *Machine) StatusTick() []Effect {
	if m.state == Idle {
		return nil
	}
	m.statusSeq++
	return []Effect{FetchStatus{Seq: m.statusSeq}}
}

// RetryTick is one step of the bounded trajectory retry loop.
func (m *Machine) RetryTick() []Effect {
	if m.state != Searching || !m.retrying || m.attempts >= m.maxAttempts {
		return nil
	}
	m.attempts++
	m.trajSeq++
	return []Effect{FetchTrajectory{Seq: m.trajSeq}}
}

// ManualRetry restarts a timed-out search with a fresh budget.
func (m *Machine) ManualRetry() []Effect {
	if m.state != TimedOut {
		return nil
	}
	m.attempts = 0
	m.notice = Notice{}
	effects := []Effect{m.moveTo(Searching, "manual retry")}
	m.trajSeq++
	return append(effects, FetchTrajectory{Seq: m.trajSeq})
}

// StatusResult applies the outcome of a FetchStatus.
func (m *Machine) StatusResult(seq uint64, status backend.RequestStatus, err error) []Effect {
	if m.state == Idle || seq <= m.appliedStatus {
		return nil
	}
	m.appliedStatus = seq

	if err != nil {
		effects := []Effect{m.notify(NoticeTransient, fmt.Sprintf("status: %v", err))}
		if m.state == AwaitingStatus {
			effects = append(effects, m.beginSearch()...)
		}
		return effects
	}

	m.status = status
	if status.Terminal() {
		if m.state == Terminal {
			return nil
		}
		var effects []Effect
		if m.retrying {
			m.retrying = false
			effects = append(effects, StopRetry{})
		}
		m.points = []pathdata.Point{}
		m.trajectory = nil
		effects = append(effects,
			Emit{Points: []pathdata.Point{}},
			m.moveTo(Terminal, string(status)),
			m.notify(NoticeTerminal, fmt.Sprintf("request %s", status)),
		)
		return effects
	}

	if m.state == AwaitingStatus {
		return m.beginSearch()
	}
	return nil
}

func (m *Machine) beginSearch() []Effect {
	effects := []Effect{m.moveTo(Searching, "initial fetch")}
	m.trajSeq++
	return append(effects, FetchTrajectory{Seq: m.trajSeq})
}

// TrajectoryResult applies the outcome of a FetchTrajectory. A trajectory
// with empty path data counts as not yet computed.
func (m *Machine) TrajectoryResult(seq uint64, tr *backend.Trajectory, err error) []Effect {
	if m.state != Searching || seq <= m.appliedTr {
		return nil
	}
	m.appliedTr = seq

	if err == nil && tr != nil && tr.PathData != "" {
		var effects []Effect
		if m.retrying {
			m.retrying = false
			effects = append(effects, StopRetry{})
		}
		m.points = pathdata.Decode(tr.PathData)
		m.trajectory = &TrajectoryInfo{ID: tr.ID, PathData: tr.PathData, CalculatedAt: tr.CalculatedAt.Time}
		m.notice = Notice{}
		return append(effects,
			Emit{Points: clonePoints(m.points)},
			m.moveTo(Found, fmt.Sprintf("%d points after %d retries", len(m.points), m.attempts)),
		)
	}

	var effects []Effect
	switch {
	case err == nil, errors.Is(err, backend.ErrNotFound):
		effects = append(effects, m.notify(NoticeNotYetComputed, "trajectory not yet computed"))
	default:
		effects = append(effects, m.notify(NoticeTransient, fmt.Sprintf("trajectory: %v", err)))
	}

	if seq == m.trajSeq && m.attempts >= m.maxAttempts {
		m.retrying = false
		return append(effects,
			StopRetry{},
			m.moveTo(TimedOut, fmt.Sprintf("no trajectory after %d retries", m.attempts)),
			m.notify(NoticeTimeout, fmt.Sprintf("trajectory not available after %d attempts", m.attempts)),
		)
	}
	if !m.retrying {
		m.retrying = true
		effects = append(effects, StartRetry{})
	}
	return effects
}

func (m *Machine) moveTo(s State, detail string) Effect {
	from := m.state
	m.state = s
	return Transition{From: from, To: s, Detail: detail}
}

func (m *Machine) notify(kind NoticeKind, msg string) Effect {
	m.notice = Notice{Kind: kind, Message: msg}
	return Notify{Notice: m.notice}
}

// Snapshot is a copy of the machine's observable state.
type Snapshot struct {
	ActivationID string                `json:"activation_id"`
	RequestID    int64                 `json:"request_id"`
	State        State                 `json:"state"`
	Attempts     int                   `json:"attempts"`
	MaxAttempts  int                   `json:"max_attempts"`
	Retrying     bool                  `json:"retrying"`
	Status       backend.RequestStatus `json:"status"`
	Notice       Notice                `json:"notice"`
	Trajectory   *TrajectoryInfo       `json:"trajectory,omitempty"`
	Points       []pathdata.Point      `json:"points"`
}

func (m *Machine) Snapshot() Snapshot {
	s := Snapshot{
		RequestID:   m.requestID,
		State:       m.state,
		Attempts:    m.attempts,
		MaxAttempts: m.maxAttempts,
		Retrying:    m.retrying,
		Status:      m.status,
		Notice:      m.notice,
		Points:      clonePoints(m.points),
	}
	if m.trajectory != nil {
		t := *m.trajectory
		s.Trajectory = &t
	}
	return s
}

func clonePoints(p []pathdata.Point) []pathdata.Point {
	out := make([]pathdata.Point, len(p))
	copy(out, p)
	return out
}
