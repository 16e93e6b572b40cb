package backend

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"deliverydash/pathdata"
)

// Timestamp accepts the backend's datetimes, which may omit the zone.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt Timestamp `json:"created_at"`
}

// RobotStatus is open-ended; the backend may add values.
type RobotStatus string

const (
	RobotIdle RobotStatus = "IDLE"
	RobotBusy RobotStatus = "BUSY"
)

type Robot struct {
	ID           int64       `json:"id"`
	Name         string      `json:"name"`
	Status       RobotStatus `json:"status"`
	CurrentMapID int64       `json:"current_map_id"`
	PositionX    *float64    `json:"current_position_x"`
	PositionY    *float64    `json:"current_position_y"`
	CreatedAt    Timestamp   `json:"created_at"`
}

// Position returns nil unless both coordinates are present and finite.
func (r *Robot) Position() *pathdata.Point {
	if r.PositionX == nil || r.PositionY == nil {
		return nil
	}
	x, y := *r.PositionX, *r.PositionY
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return nil
	}
	return &pathdata.Point{X: x, Y: y}
}

type MapInfo struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	FilePath    string `json:"file_path"`
}

type RequestStatus string

const (
	StatusPending    RequestStatus = "PENDING"
	StatusPlanning   RequestStatus = "PLANNING"
	StatusReady      RequestStatus = "READY"
	StatusInProgress RequestStatus = "IN_PROGRESS"
	StatusAccepted   RequestStatus = "ACCEPTED"
	StatusRejected   RequestStatus = "REJECTED"
	StatusCompleted  RequestStatus = "COMPLETED"
	StatusFailed     RequestStatus = "FAILED"
)

// Terminal reports whether no further trajectory can arrive.
func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type DeliveryRequest struct {
	ID        int64         `json:"id"`
	UserID    int64         `json:"user_id"`
	RobotID   int64         `json:"robot_id"`
	TargetX   float64       `json:"target_x"`
	TargetY   float64       `json:"target_y"`
	Status    RequestStatus `json:"status"`
	CreatedAt Timestamp     `json:"created_at"`
}

type Trajectory struct {
	ID           int64     `json:"id"`
	RequestID    int64     `json:"request_id"`
	PathData     string    `json:"path_data"`
	CalculatedAt Timestamp `json:"calculated_at"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type createRequest struct {
	UserID  int64   `json:"user_id"`
	RobotID int64   `json:"robot_id"`
	TargetX float64 `json:"target_x"`
	TargetY float64 `json:"target_y"`
}
