package comm

import (
	"encoding/json"
	"time"
)

// WSMessage is the envelope used on both websocket and NATS legs.
type WSMessage struct {
	Type     string          `json:"type"` // e.g. "card-moved", "confirm-request"
	Data     json.RawMessage `json:"data"`
	SocketId string          `json:"socketid"`
}

// PatientData carries the display attributes of a resolved patient.
type PatientData struct {
	FullName        string `json:"full_name"`
	Email           string `json:"email"`
	PatientCode     string `json:"patient_code"`
	ProfilePhotoURL string `json:"profile_photo_url,omitempty"`
}

// CardMove tells open dashboards to relocate a visit card between columns.
type CardMove struct {
	VisitID     int64  `json:"visit_id"`
	From        string `json:"from"`
	To          string `json:"to"`
	Action      string `json:"action"` // primary action after the move: "claim", "verify", "finish", ""
	PatientName string `json:"patient_name,omitempty"`
}

// ConfirmRequest asks the operator to accept or reject a resolved identity
// before the claim proceeds. Token ties the eventual response back to the
// scan session that produced it.
type ConfirmRequest struct {
	Token   string      `json:"token"`
	Patient PatientData `json:"patient"`
}

type ConfirmResponse struct {
	Token    string `json:"token"`
	Accepted bool   `json:"accepted"`
}

// ScanControl drives the kiosk scan pipeline from the dashboard:
// begin/cancel a scan for a visit, submit a manual email, finish a visit.
type ScanControl struct {
	VisitID  int64  `json:"visit_id"`
	Email    string `json:"email,omitempty"`     // manual entry
	SourceID string `json:"source_id,omitempty"` // capture source override
}

// ScanStatus is decoder/lookup status text rendered on the dashboard.
type ScanStatus struct {
	Kind    string `json:"kind"` // "info", "error", "not-found"
	Message string `json:"message"`
}

type ServiceHeartbeat struct {
	ID        string    `json:"id"` // service id
	Timestamp time.Time `json:"timestamp"`
}
