package store

import (
	"time"
)

// AcquisitionEntry is one recorded state transition of the trajectory
// acquisition runner.
type AcquisitionEntry struct {
	ID           int64     `json:"id"`
	ActivationID string    `json:"activation_id"`
	RequestID    int64     `json:"request_id"`
	FromState    string    `json:"from_state"`
	ToState      string    `json:"to_state"`
	Detail       string    `json:"detail"`
	CreatedAt    time.Time `json:"created_at"`
}

func (db *DB) AppendAcquisitionLog(activationID string, requestID int64, from, to, detail string) error {
	_, err := db.Exec(db.Q(`INSERT INTO acquisition_log (activation_id, request_id, from_state, to_state, detail) VALUES (?, ?, ?, ?, ?)`),
		activationID, requestID, from, to, detail)
	return err
}

// ListAcquisitionLog returns a request's transitions in the order they happened.
func (db *DB) ListAcquisitionLog(requestID int64) ([]*AcquisitionEntry, error) {
	rows, err := db.Query(db.Q(`SELECT id, activation_id, request_id, from_state, to_state, detail, created_at FROM acquisition_log WHERE request_id=? ORDER BY id`), requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []*AcquisitionEntry
	for rows.Next() {
		var e AcquisitionEntry
		if err := rows.Scan(&e.ID, &e.ActivationID, &e.RequestID, &e.FromState, &e.ToState, &e.Detail, timeCol{&e.CreatedAt}); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

type OperatorAction struct {
	ID        int64     `json:"id"`
	RequestID int64     `json:"request_id"`
	Action    string    `json:"action"`
	Username  string    `json:"username"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

func (db *DB) RecordOperatorAction(requestID int64, action, username, detail string) error {
	_, err := db.Exec(db.Q(`INSERT INTO operator_actions (request_id, action, username, detail) VALUES (?, ?, ?, ?)`),
		requestID, action, username, detail)
	return err
}

// ListOperatorActions returns the most recent actions first.
func (db *DB) ListOperatorActions(limit int) ([]*OperatorAction, error) {
	rows, err := db.Query(db.Q(`SELECT id, request_id, action, username, detail, created_at FROM operator_actions ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var actions []*OperatorAction
	for rows.Next() {
		var a OperatorAction
		if err := rows.Scan(&a.ID, &a.RequestID, &a.Action, &a.Username, &a.Detail, timeCol{&a.CreatedAt}); err != nil {
			return nil, err
		}
		actions = append(actions, &a)
	}
	return actions, rows.Err()
}
