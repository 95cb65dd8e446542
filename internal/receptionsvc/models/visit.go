package models

import (
	"database/sql"
	"time"
)

const (
	VisitStatusQueued   = "queued"   // checked in, waiting to be claimed
	VisitStatusClaimed  = "claimed"  // bound to a staff member, arrival not verified
	VisitStatusReady    = "ready"    // arrival verified, ready to be seen
	VisitStatusFinished = "finished"
)

// Visit represents one front-desk queue entry.
type Visit struct {
	ID          int64         `json:"id"`
	PatientID   int64         `json:"patient_id"`
	Service     string        `json:"service"` // always "reception" for board visits
	Department  string        `json:"department"`
	QueueNumber sql.NullInt64 `json:"queue_number"`
	Status      string        `json:"status"`
	ClaimedBy   sql.NullInt64 `json:"claimed_by"`
	ClaimedAt   sql.NullTime  `json:"claimed_at"`
	FinishedAt  sql.NullTime  `json:"finished_at"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// BoardCard is the flattened visit+patient row the dashboard board renders.
type BoardCard struct {
	VisitID     int64  `json:"visit_id"`
	PatientName string `json:"patient_name"`
	PatientCode string `json:"patient_code"`
	Department  string `json:"department"`
	QueueNumber int64  `json:"queue_number,omitempty"`
	Status      string `json:"status"`
}
