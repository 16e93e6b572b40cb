package engine

import (
	"context"
	"time"

	"deliverydash/acquire"
	"deliverydash/backend"
	"deliverydash/messaging"
	"deliverydash/pathdata"
	"deliverydash/statecache"
)

const cacheTimeout = 2 * time.Second

// acquisitionListener receives acquisition runner output. Output for any
// request other than the session's current one is dropped.
type acquisitionListener struct{ e *Engine }

func (l acquisitionListener) TrajectoryPoints(activationID string, requestID int64, points []pathdata.Point) {
	e := l.e
	e.mu.Lock()
	if e.sess.request == nil || e.sess.request.ID != requestID {
		e.mu.Unlock()
		return
	}
	e.sess.points = points
	e.version++
	e.mu.Unlock()

	e.Events.Emit(Event{Type: EventTrajectoryUpdated, Payload: TrajectoryUpdatedEvent{RequestID: requestID, Points: len(points)}})
}

func (l acquisitionListener) AcquisitionChanged(snap acquire.Snapshot) {
	e := l.e
	e.mu.Lock()
	if e.sess.request == nil || e.sess.request.ID != snap.RequestID {
		e.mu.Unlock()
		return
	}
	e.sess.acq = snap
	if snap.Status != "" {
		e.sess.request.Status = snap.Status
	}
	noticeChanged := snap.Notice != e.sess.notice
	e.sess.notice = snap.Notice
	e.mu.Unlock()

	e.Events.Emit(Event{Type: EventAcquisitionChanged, Payload: AcquisitionChangedEvent{Snapshot: snap}})
	if noticeChanged && snap.Notice.Kind != acquire.NoticeNone {
		e.Events.Emit(Event{Type: EventNotice, Payload: NoticeEvent{
			RequestID: snap.RequestID, Kind: snap.Notice.Kind.String(), Message: snap.Notice.Message,
		}})
	}
}

func (l acquisitionListener) AcquisitionTransition(activationID string, requestID int64, from, to acquire.State, detail string) {
	e := l.e
	if e.db != nil {
		if err := e.db.AppendAcquisitionLog(activationID, requestID, from.String(), to.String(), detail); err != nil {
			e.logFn("engine: acquisition log: %v", err)
		}
	}

	var points []pathdata.Point
	e.mu.Lock()
	current := e.sess.request != nil && e.sess.request.ID == requestID
	if current && to == acquire.Terminal {
		// the request is over; nothing left to show for it
		e.sess.points = nil
		e.sess.target = nil
		e.version++
	}
	if current {
		points = e.sess.points
	}
	e.mu.Unlock()

	e.enqueue(e.cfg.Messaging.EventsTopic, messaging.MsgAcquisitionTransition, messaging.AcquisitionTransition{
		ActivationID: activationID, RequestID: requestID,
		From: from.String(), To: to.String(), Detail: detail, Points: len(points),
	})

	if !current {
		return
	}
	if to == acquire.Found || to == acquire.Terminal {
		ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
		defer cancel()
		err := e.cache.SetTrajectory(ctx, &statecache.TrajectorySnapshot{
			RequestID: requestID, State: to.String(), Points: points, UpdatedAt: time.Now(),
		})
		if err != nil {
			e.logFn("engine: cache trajectory %d: %v", requestID, err)
		}
	}
	if to == acquire.Terminal {
		e.Events.Emit(Event{Type: EventTargetSet, Payload: TargetSetEvent{RequestID: requestID}})
	}
}

// positionSink merges live position samples into the selected robot.
type positionSink struct{ e *Engine }

func (s positionSink) MergePosition(robotID int64, pos *pathdata.Point) {
	e := s.e
	e.mu.Lock()
	if e.sess.robot == nil || e.sess.robot.ID != robotID {
		e.mu.Unlock()
		return
	}
	if pos == nil {
		e.sess.robot.PositionX, e.sess.robot.PositionY = nil, nil
	} else {
		x, y := pos.X, pos.Y
		e.sess.robot.PositionX, e.sess.robot.PositionY = &x, &y
	}
	robot := *e.sess.robot
	e.version++
	e.mu.Unlock()

	e.cacheRobot(&robot)
	e.enqueue(e.cfg.Messaging.PositionsTopic, messaging.MsgRobotPosition, messaging.RobotPosition{RobotID: robotID, Position: pos})
	e.Events.Emit(Event{Type: EventRobotMoved, Payload: RobotMovedEvent{RobotID: robotID, Position: pos}})
}

func (e *Engine) cacheRobot(r *backend.Robot) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()
	err := e.cache.SetRobotPosition(ctx, &statecache.RobotPosition{
		RobotID: r.ID, Name: r.Name, Status: string(r.Status), Position: r.Position(), UpdatedAt: time.Now(),
	})
	if err != nil {
		e.logFn("engine: cache robot %d: %v", r.ID, err)
	}
}

// uncacheRobot drops the mirrored position of a robot no longer followed.
func (e *Engine) uncacheRobot(robotID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()
	if err := e.cache.RemoveRobot(ctx, robotID); err != nil {
		e.logFn("engine: uncache robot %d: %v", robotID, err)
	}
}

// enqueue stores an outbound message for the drainer. Nothing is queued
// when messaging is disabled.
func (e *Engine) enqueue(topic, msgType string, payload any) {
	if e.db == nil || !e.messagingEnabled() {
		return
	}
	data, err := messaging.NewEnvelope(msgType, e.cfg.Messaging.MQTT.ClientID, payload).Encode()
	if err != nil {
		e.logFn("engine: encode %s: %v", msgType, err)
		return
	}
	if err := e.db.EnqueueOutbox(topic, data, msgType); err != nil {
		e.logFn("engine: enqueue %s: %v", msgType, err)
	}
}
