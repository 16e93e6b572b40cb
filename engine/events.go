package engine

import (
	"deliverydash/acquire"
	"deliverydash/pathdata"
)

const (
	EventRobotSelected EventType = iota + 1
	EventRobotDeselected
	EventRobotMoved
	EventMapLoaded
	EventTargetSet
	EventTrajectoryUpdated
	EventAcquisitionChanged
	EventRequestAction
	EventNotice
	EventFrameRendered
	EventMessagingConnected
	EventMessagingDisconnected
)

// visualEvents change what the map surface shows.
var visualEvents = []EventType{
	EventRobotSelected,
	EventRobotDeselected,
	EventRobotMoved,
	EventMapLoaded,
	EventTargetSet,
	EventTrajectoryUpdated,
}

// --- Event payloads ---

type RobotSelectedEvent struct {
	RobotID  int64  `json:"robot_id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Fallback bool   `json:"fallback"`
}

type RobotDeselectedEvent struct {
	RobotID int64 `json:"robot_id"`
}

type RobotMovedEvent struct {
	RobotID  int64           `json:"robot_id"`
	Position *pathdata.Point `json:"position"`
}

type MapLoadedEvent struct {
	RobotID int64   `json:"robot_id"`
	Name    string  `json:"name"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// TargetSetEvent carries a nil Target when the marker is cleared.
type TargetSetEvent struct {
	RequestID int64           `json:"request_id"`
	Target    *pathdata.Point `json:"target"`
}

type TrajectoryUpdatedEvent struct {
	RequestID int64 `json:"request_id"`
	Points    int   `json:"points"`
}

type AcquisitionChangedEvent struct {
	Snapshot acquire.Snapshot `json:"snapshot"`
}

type RequestActionEvent struct {
	RequestID int64  `json:"request_id"`
	Action    string `json:"action"`
	Status    string `json:"status"`
	Username  string `json:"username"`
}

type NoticeEvent struct {
	RequestID int64  `json:"request_id"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

type FrameRenderedEvent struct {
	Version uint64 `json:"version"`
}

type ConnectionEvent struct {
	Detail string `json:"detail"`
}
