package engine

import (
	"context"
	"fmt"
	"math"

	"deliverydash/acquire"
	"deliverydash/backend"
	"deliverydash/pathdata"
	"deliverydash/render"
)

// session is the single operator dashboard the service drives.
type session struct {
	user    *backend.User
	robot   *backend.Robot
	mapInfo *render.Map
	mapName string
	request *backend.DeliveryRequest
	target  *pathdata.Point
	points  []pathdata.Point
	acq     acquire.Snapshot
	notice  acquire.Notice
}

// Login verifies credentials against the backend and makes the user the
// acting operator.
func (e *Engine) Login(ctx context.Context, username, password string) (*backend.User, error) {
	u, err := e.client.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.sess.user = u
	e.mu.Unlock()
	e.logFn("engine: operator %s (id %d) logged in", u.Username, u.ID)
	e.recordAction(0, "login", u.Username, "")
	return u, nil
}

// Logout drops the operator and everything selected on their behalf.
func (e *Engine) Logout() {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	e.deselect()
	e.mu.Lock()
	u := e.sess.user
	e.sess.user = nil
	e.mu.Unlock()
	if u != nil {
		e.logFn("engine: operator %s logged out", u.Username)
		e.recordAction(0, "logout", u.Username, "")
	}
}

func (e *Engine) User() *backend.User {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.sess.user == nil {
		return nil
	}
	u := *e.sess.user
	return &u
}

func (e *Engine) Robots(ctx context.Context) ([]backend.Robot, error) {
	robots, err := e.client.ListRobots(ctx)
	if err != nil {
		return nil, fmt.Errorf("list robots: %w", err)
	}
	return robots, nil
}

// SelectRobot loads a robot and its map and starts live position updates.
// A robot the backend cannot return is still selected as a placeholder with
// no position so the operator can see which one was picked.
func (e *Engine) SelectRobot(ctx context.Context, robotID int64) (*backend.Robot, error) {
	if robotID <= 0 {
		return nil, fmt.Errorf("robot id %d: %w", robotID, ErrNoRobot)
	}
	e.opMu.Lock()
	defer e.opMu.Unlock()

	fallback := false
	robot, err := e.client.GetRobot(ctx, robotID)
	if err != nil {
		e.logFn("engine: get robot %d: %v (using placeholder)", robotID, err)
		robot = &backend.Robot{ID: robotID, Name: fmt.Sprintf("Robot-%d", robotID), Status: backend.RobotIdle}
		fallback = true
	}

	var mapName string
	if info, err := e.client.GetRobotMap(ctx, robotID); err != nil {
		e.logFn("engine: map info for robot %d: %v", robotID, err)
	} else {
		mapName = info.Name
	}

	var m *render.Map
	img, err := e.client.GetMapImage(ctx, robotID)
	if err != nil {
		e.logFn("engine: map for robot %d: %v", robotID, err)
	} else {
		b := img.Bounds()
		m = &render.Map{Width: float64(b.Dx()), Height: float64(b.Dy()), Image: img}
	}

	// Stop the previous request's acquisition outside the lock; the runner
	// waits for its loop, which may be delivering into the engine.
	e.runner.Stop()

	e.mu.Lock()
	e.sess.robot = robot
	e.sess.mapInfo = m
	e.sess.mapName = mapName
	e.clearRequestLocked()
	e.version++
	e.mu.Unlock()

	e.updater.Select(robotID)
	e.cacheRobot(robot)

	e.Events.Emit(Event{Type: EventRobotSelected, Payload: RobotSelectedEvent{
		RobotID: robot.ID, Name: robot.Name, Status: string(robot.Status), Fallback: fallback,
	}})
	if m != nil {
		e.Events.Emit(Event{Type: EventMapLoaded, Payload: MapLoadedEvent{RobotID: robotID, Name: mapName, Width: m.Width, Height: m.Height}})
	}
	r := *robot
	return &r, nil
}

func (e *Engine) DeselectRobot() {
	e.opMu.Lock()
	defer e.opMu.Unlock()
	e.deselect()
}

func (e *Engine) deselect() {
	e.updater.Deselect()
	e.runner.Stop()

	e.mu.Lock()
	var robotID int64
	if e.sess.robot != nil {
		robotID = e.sess.robot.ID
	}
	e.sess.robot = nil
	e.sess.mapInfo = nil
	e.sess.mapName = ""
	e.clearRequestLocked()
	e.version++
	e.mu.Unlock()

	if robotID != 0 {
		e.uncacheRobot(robotID)
		e.Events.Emit(Event{Type: EventRobotDeselected, Payload: RobotDeselectedEvent{RobotID: robotID}})
	}
}

func (e *Engine) clearRequestLocked() {
	e.sess.request = nil
	e.sess.target = nil
	e.sess.points = nil
	e.sess.acq = acquire.Snapshot{}
	e.sess.notice = acquire.Notice{}
}

// SubmitRequest creates a delivery request for the selected robot and
// starts acquiring its trajectory. The target must be finite and, when a
// map is loaded, lie on it.
func (e *Engine) SubmitRequest(ctx context.Context, x, y float64) (*backend.DeliveryRequest, error) {
	e.mu.RLock()
	user, robot, m := e.sess.user, e.sess.robot, e.sess.mapInfo
	e.mu.RUnlock()
	if user == nil {
		return nil, ErrNotLoggedIn
	}
	if robot == nil {
		return nil, ErrNoRobot
	}
	if err := validateTarget(x, y, m); err != nil {
		return nil, err
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()

	req, err := e.client.CreateRequest(ctx, user.ID, robot.ID, x, y)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	e.runner.Stop()
	e.mu.Lock()
	if e.sess.robot == nil || e.sess.robot.ID != robot.ID {
		e.mu.Unlock()
		return nil, fmt.Errorf("robot %d deselected while creating request %d: %w", robot.ID, req.ID, ErrNoRobot)
	}
	e.clearRequestLocked()
	e.sess.request = req
	e.sess.target = &pathdata.Point{X: req.TargetX, Y: req.TargetY}
	e.version++
	e.mu.Unlock()

	e.runner.Activate(req.ID)

	e.logFn("engine: request %d created for robot %d target (%g, %g)", req.ID, robot.ID, req.TargetX, req.TargetY)
	e.recordAction(req.ID, "create", user.Username, fmt.Sprintf("robot %d target (%g, %g)", robot.ID, req.TargetX, req.TargetY))
	e.Events.Emit(Event{Type: EventTargetSet, Payload: TargetSetEvent{RequestID: req.ID, Target: &pathdata.Point{X: req.TargetX, Y: req.TargetY}}})
	e.Events.Emit(Event{Type: EventRequestAction, Payload: RequestActionEvent{
		RequestID: req.ID, Action: "create", Status: string(req.Status), Username: user.Username,
	}})
	r := *req
	return &r, nil
}

func validateTarget(x, y float64, m *render.Map) error {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return fmt.Errorf("target (%v, %v): %w", x, y, ErrInvalidTarget)
	}
	if m != nil && (x < 0 || y < 0 || x > m.Width || y > m.Height) {
		return fmt.Errorf("target (%g, %g) outside %g×%g map: %w", x, y, m.Width, m.Height, ErrInvalidTarget)
	}
	return nil
}

func (e *Engine) AcceptRequest(ctx context.Context) (*backend.DeliveryRequest, error) {
	return e.requestAction(ctx, "accept", e.client.AcceptRequest)
}

func (e *Engine) RejectRequest(ctx context.Context) (*backend.DeliveryRequest, error) {
	return e.requestAction(ctx, "reject", e.client.RejectRequest)
}

func (e *Engine) requestAction(ctx context.Context, action string, call func(context.Context, int64) (*backend.DeliveryRequest, error)) (*backend.DeliveryRequest, error) {
	e.mu.RLock()
	user, req := e.sess.user, e.sess.request
	e.mu.RUnlock()
	if user == nil {
		return nil, ErrNotLoggedIn
	}
	if req == nil {
		return nil, ErrNoRequest
	}

	updated, err := call(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("%s request %d: %w", action, req.ID, err)
	}

	e.mu.Lock()
	if e.sess.request != nil && e.sess.request.ID == req.ID && updated.Status != "" {
		e.sess.request.Status = updated.Status
	}
	e.mu.Unlock()

	e.logFn("engine: request %d %s by %s -> %s", req.ID, action, user.Username, updated.Status)
	e.recordAction(req.ID, action, user.Username, string(updated.Status))
	e.Events.Emit(Event{Type: EventRequestAction, Payload: RequestActionEvent{
		RequestID: req.ID, Action: action, Status: string(updated.Status), Username: user.Username,
	}})
	r := *updated
	return &r, nil
}

// RetryTrajectory restarts a timed-out trajectory search. It does nothing
// while the search is still running or after it has finished.
func (e *Engine) RetryTrajectory() error {
	e.mu.RLock()
	req := e.sess.request
	e.mu.RUnlock()
	if req == nil {
		return ErrNoRequest
	}
	e.runner.Retry()
	return nil
}

// ExportTrajectory returns the raw path data of the accepted trajectory.
func (e *Engine) ExportTrajectory() (requestID int64, pathData string, err error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.sess.request == nil {
		return 0, "", ErrNoRequest
	}
	if e.sess.acq.Trajectory == nil || e.sess.acq.RequestID != e.sess.request.ID {
		return e.sess.request.ID, "", ErrNoTrajectory
	}
	return e.sess.request.ID, e.sess.acq.Trajectory.PathData, nil
}

// UserRequests lists the operator's request history.
func (e *Engine) UserRequests(ctx context.Context) ([]backend.DeliveryRequest, error) {
	e.mu.RLock()
	user := e.sess.user
	e.mu.RUnlock()
	if user == nil {
		return nil, ErrNotLoggedIn
	}
	reqs, err := e.client.ListUserRequests(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list requests for user %d: %w", user.ID, err)
	}
	return reqs, nil
}

func (e *Engine) recordAction(requestID int64, action, username, detail string) {
	if e.db == nil {
		return
	}
	if err := e.db.RecordOperatorAction(requestID, action, username, detail); err != nil {
		e.logFn("engine: record %s action: %v", action, err)
	}
}
