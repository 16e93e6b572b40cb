package engine

import (
	"fmt"

	"deliverydash/acquire"
	"deliverydash/backend"
	"deliverydash/pathdata"
	"deliverydash/render"
	"deliverydash/viewport"
)

func (e *Engine) surface() render.Size {
	return render.Size{Width: e.cfg.Surface.Width, Height: e.cfg.Surface.Height}
}

// renderState captures everything the next frame depends on.
func (e *Engine) renderState() (render.State, uint64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := render.State{
		Map:     e.sess.mapInfo,
		Surface: e.surface(),
	}
	if r := e.sess.robot; r != nil {
		s.Robot = &render.Robot{Name: r.Name, Position: r.Position()}
	}
	if len(e.sess.points) > 0 {
		s.Trajectory = append([]pathdata.Point(nil), e.sess.points...)
	}
	if e.sess.target != nil {
		t := *e.sess.target
		s.Target = &t
	}
	return s, e.version
}

// Frame returns the PNG of the current dashboard surface and its frame
// number, rendering it first if the session changed since the last frame.
func (e *Engine) Frame() ([]byte, uint64, error) {
	e.mu.RLock()
	if e.frame != nil && e.frameFor == e.version {
		data, v := e.frame, e.frameVersion
		e.mu.RUnlock()
		return data, v, nil
	}
	e.mu.RUnlock()
	return e.renderFrame()
}

func (e *Engine) renderFrame() ([]byte, uint64, error) {
	state, ver := e.renderState()
	data, err := render.Frame(state, e.renderOpts)
	if err != nil {
		return nil, 0, fmt.Errorf("render frame: %w", err)
	}
	e.mu.Lock()
	if e.frame == nil || ver >= e.frameFor {
		e.frame = data
		e.frameFor = ver
		e.frameVersion++
	}
	fv := e.frameVersion
	e.mu.Unlock()
	return data, fv, nil
}

// Commands returns the draw list for the current session.
func (e *Engine) Commands() []render.Command {
	state, _ := e.renderState()
	return render.Render(state)
}

func (e *Engine) markDirty() {
	select {
	case e.renderCh <- struct{}{}:
	default:
	}
}

// renderLoop coalesces bursts of visual events into one render.
func (e *Engine) renderLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopChan:
			return
		case <-e.renderCh:
			_, v, err := e.renderFrame()
			if err != nil {
				e.logFn("engine: %v", err)
				continue
			}
			e.Events.Emit(Event{Type: EventFrameRendered, Payload: FrameRenderedEvent{Version: v}})
		}
	}
}

// Locate maps a surface pixel back to map meters. inside reports whether
// the pixel falls on the drawn map.
func (e *Engine) Locate(px, py float64) (p pathdata.Point, inside bool, err error) {
	e.mu.RLock()
	m := e.sess.mapInfo
	e.mu.RUnlock()
	if m == nil {
		return pathdata.Point{}, false, ErrNoMap
	}
	size := e.surface()
	t, ok := viewport.Fit(m.Width, m.Height, float64(size.Width), float64(size.Height))
	if !ok {
		return pathdata.Point{}, false, ErrNoMap
	}
	x, y := t.ToWorld(px, py)
	return pathdata.Point{X: x, Y: y}, t.Contains(px, py), nil
}

type RobotView struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Status      string          `json:"status"`
	Position    *pathdata.Point `json:"position"`
	HasPosition bool            `json:"has_position"`
	Readout     string          `json:"readout"`
}

type MapView struct {
	Name   string  `json:"name"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DashboardState is the debug view of the session.
type DashboardState struct {
	User            *backend.User            `json:"user"`
	Robot           *RobotView               `json:"robot"`
	Map             *MapView                 `json:"map"`
	Request         *backend.DeliveryRequest `json:"request"`
	Target          *pathdata.Point          `json:"target"`
	TrajectoryCount int                      `json:"trajectory_count"`
	TrajectoryHead  []pathdata.Point         `json:"trajectory_head"`
	Trajectory      *pathdata.Summary        `json:"trajectory,omitempty"`
	Acquisition     acquire.Snapshot         `json:"acquisition"`
	FrameVersion    uint64                   `json:"frame_version"`
}

func (e *Engine) State() DashboardState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := DashboardState{
		TrajectoryCount: len(e.sess.points),
		TrajectoryHead:  []pathdata.Point{},
		Acquisition:     e.sess.acq,
		FrameVersion:    e.frameVersion,
	}
	if e.sess.user != nil {
		u := *e.sess.user
		s.User = &u
	}
	if r := e.sess.robot; r != nil {
		pos := r.Position()
		view := &RobotView{ID: r.ID, Name: r.Name, Status: string(r.Status), Position: pos, HasPosition: pos != nil, Readout: "—"}
		if pos != nil {
			view.Readout = fmt.Sprintf("X:%.1f Y:%.1f", pos.X, pos.Y)
		}
		s.Robot = view
	}
	if m := e.sess.mapInfo; m != nil {
		s.Map = &MapView{Name: e.sess.mapName, Width: m.Width, Height: m.Height}
	}
	if e.sess.request != nil {
		r := *e.sess.request
		s.Request = &r
	}
	if e.sess.target != nil {
		t := *e.sess.target
		s.Target = &t
	}
	head := e.sess.points
	if len(head) > 3 {
		head = head[:3]
	}
	s.TrajectoryHead = append(s.TrajectoryHead, head...)
	if tr := e.sess.acq.Trajectory; tr != nil {
		summary := pathdata.Summarize(tr.PathData)
		s.Trajectory = &summary
	}
	s.Acquisition.Points = append([]pathdata.Point(nil), e.sess.acq.Points...)
	return s
}
