package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"

	"github.com/mekdim/clinic-services/internal/comm"
	"github.com/mekdim/clinic-services/internal/receptionsvc/activity"
	"github.com/mekdim/clinic-services/internal/receptionsvc/models"
	"github.com/mekdim/clinic-services/internal/receptionsvc/service"
)

// PatientDirectory is what the lookup and search endpoints need.
type PatientDirectory interface {
	Lookup(ctx context.Context, key string) (*models.Patient, error)
	Search(ctx context.Context, q string, limit int) ([]*models.Patient, error)
}

// VisitFlow is the claim/verify/finish lifecycle plus the board snapshot.
type VisitFlow interface {
	Claim(ctx context.Context, visitID, staffID int64) (*models.Visit, error)
	Verify(ctx context.Context, visitID int64, email, code string) (*models.Visit, *models.Patient, error)
	Finish(ctx context.Context, visitID int64) (*models.Visit, error)
	Board(ctx context.Context) (map[string][]*models.BoardCard, error)
}

type SchedulePreviewer interface {
	Preview(ctx context.Context, vaccineID int64, start time.Time) ([]time.Time, int, error)
}

type ActivityRecorder interface {
	Record(ctx context.Context, e activity.Entry) error
}

type BoardPublisher interface {
	PublishCardMove(m comm.CardMove) error
}

type Handler struct {
	tokenAuth *jwtauth.JWTAuth
	patients  PatientDirectory
	visits    VisitFlow
	vaccines  SchedulePreviewer
	activity  ActivityRecorder
	board     BoardPublisher
}

func NewHandler(patients PatientDirectory, visits VisitFlow, vaccines SchedulePreviewer,
	recorder ActivityRecorder, board BoardPublisher) *Handler {
	return &Handler{
		patients: patients,
		visits:   visits,
		vaccines: vaccines,
		activity: recorder,
		board:    board,
	}
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error"`
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)

	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}

type lookupResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Patient *comm.PatientData `json:"patient,omitempty"`
}

// LookupHandler resolves an email (or patient code) to patient display data.
// A missing record is a definitive negative, not an error status.
func (h *Handler) LookupHandler(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("email")
	if key == "" {
		writeJSON(w, http.StatusBadRequest, lookupResponse{Success: false, Message: "Email required"})
		return
	}

	patient, err := h.patients.Lookup(r.Context(), key)
	if err != nil {
		log.Errorf("Error [PatientService.Lookup] %s", err)
		writeJSON(w, http.StatusInternalServerError, lookupResponse{Success: false, Message: "Lookup failed"})
		return
	}
	if patient == nil {
		writeJSON(w, http.StatusOK, lookupResponse{Success: false, Message: "No patient record exists"})
		return
	}

	writeJSON(w, http.StatusOK, lookupResponse{
		Success: true,
		Patient: &comm.PatientData{
			FullName:        patient.FullName,
			Email:           patient.Email,
			PatientCode:     patient.PatientCode,
			ProfilePhotoURL: patient.ProfilePhotoURL,
		},
	})
}

type searchResult struct {
	Name  string `json:"name"`
	Code  string `json:"code"`
	Email string `json:"email"`
}

// SearchHandler backs the typeahead patient search. Queries shorter than two
// characters return an empty result set.
func (h *Handler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")

	results := []searchResult{}
	if len(q) >= 2 {
		patients, err := h.patients.Search(r.Context(), q, 10)
		if err != nil {
			log.Errorf("Error [PatientService.Search] %s", err)
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"results": results})
			return
		}
		for _, p := range patients {
			results = append(results, searchResult{Name: p.FullName, Code: p.PatientCode, Email: p.Email})
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

type mutationResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func (h *Handler) ClaimHandler(w http.ResponseWriter, r *http.Request) {
	visitID, ok := formVisitID(w, r)
	if !ok {
		return
	}
	staffID := h.staffID(r)

	visit, err := h.visits.Claim(r.Context(), visitID, staffID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrVisitNotFound):
			writeJSON(w, http.StatusNotFound, mutationResponse{Success: false, Message: "Visit not found."})
		case errors.Is(err, service.ErrAlreadyClaimed):
			writeJSON(w, http.StatusConflict, mutationResponse{Success: false, Message: "This visit is already claimed by another staff."})
		default:
			log.Errorf("Error [VisitService.Claim] %s", err)
			writeJSON(w, http.StatusInternalServerError, mutationResponse{Success: false, Message: "Claim failed."})
		}
		return
	}

	h.record(r.Context(), activity.Entry{
		Actor: staffID, Verb: "Claimed", PatientID: visit.PatientID, VisitID: visit.ID,
		Description: "Visit claimed at reception",
	})
	h.publish(comm.CardMove{VisitID: visit.ID, From: "unclaimed", To: "claimed", Action: "verify"})

	writeJSON(w, http.StatusOK, mutationResponse{Success: true, Message: "Patient claimed."})
}

type verifyResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	PatientName string `json:"patient_name,omitempty"`
	VisitID     int64  `json:"visit_id,omitempty"`
}

func (h *Handler) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	visitID, ok := formVisitID(w, r)
	if !ok {
		return
	}
	email := r.PostFormValue("patient_email")
	code := r.PostFormValue("verify_code")
	if email == "" && code == "" {
		writeJSON(w, http.StatusBadRequest, verifyResponse{Success: false, Message: "Missing visit or email."})
		return
	}

	visit, patient, err := h.visits.Verify(r.Context(), visitID, email, code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrVisitNotFound):
			writeJSON(w, http.StatusNotFound, verifyResponse{Success: false, Message: "Reception visit not found."})
		case errors.Is(err, service.ErrPatientMismatch):
			writeJSON(w, http.StatusBadRequest, verifyResponse{Success: false, Message: "Email does not match this patient."})
		case errors.Is(err, service.ErrNotClaimable):
			writeJSON(w, http.StatusConflict, verifyResponse{Success: false, Message: "Please claim this visit first."})
		default:
			log.Errorf("Error [VisitService.Verify] %s", err)
			writeJSON(w, http.StatusInternalServerError, verifyResponse{Success: false, Message: "Verification failed."})
		}
		return
	}

	h.record(r.Context(), activity.Entry{
		Actor: h.staffID(r), Verb: "Verified", PatientID: visit.PatientID, VisitID: visit.ID,
		Description: "Patient arrival verified",
	})
	h.publish(comm.CardMove{VisitID: visit.ID, From: "claimed", To: "claimed", Action: "finish", PatientName: patient.FullName})

	writeJSON(w, http.StatusOK, verifyResponse{
		Success:     true,
		Message:     "Patient verified! Status updated to Ready.",
		PatientName: patient.FullName,
		VisitID:     visit.ID,
	})
}

func (h *Handler) FinishHandler(w http.ResponseWriter, r *http.Request) {
	visitID, ok := formVisitID(w, r)
	if !ok {
		return
	}

	visit, err := h.visits.Finish(r.Context(), visitID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrVisitNotFound):
			writeJSON(w, http.StatusNotFound, mutationResponse{Success: false, Message: "Visit not found."})
		case errors.Is(err, service.ErrNotFinishable):
			writeJSON(w, http.StatusConflict, mutationResponse{Success: false, Message: "Visit is not ready to finish."})
		default:
			log.Errorf("Error [VisitService.Finish] %s", err)
			writeJSON(w, http.StatusInternalServerError, mutationResponse{Success: false, Message: "Finish failed."})
		}
		return
	}

	h.record(r.Context(), activity.Entry{
		Actor: h.staffID(r), Verb: "Finished", PatientID: visit.PatientID, VisitID: visit.ID,
		Description: "Visit finished",
	})
	h.publish(comm.CardMove{VisitID: visit.ID, From: "claimed", To: "finished"})

	writeJSON(w, http.StatusOK, mutationResponse{Success: true, Message: "Visit finished."})
}

type scheduleResponse struct {
	Success    bool     `json:"success"`
	Schedule   []string `json:"schedule,omitempty"`
	TotalDoses int      `json:"total_doses,omitempty"`
}

// ScheduleHandler is an informational preview; any bad input collapses to
// success:false rather than an error status.
func (h *Handler) ScheduleHandler(w http.ResponseWriter, r *http.Request) {
	vaccineID, err := strconv.ParseInt(r.URL.Query().Get("vaccine_id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusOK, scheduleResponse{Success: false})
		return
	}
	start, err := time.Parse("2006-01-02", r.URL.Query().Get("start_date"))
	if err != nil {
		writeJSON(w, http.StatusOK, scheduleResponse{Success: false})
		return
	}

	schedule, totalDoses, err := h.vaccines.Preview(r.Context(), vaccineID, start)
	if err != nil {
		if !errors.Is(err, service.ErrVaccineNotFound) {
			log.Errorf("Error [VaccineService.Preview] %s", err)
		}
		writeJSON(w, http.StatusOK, scheduleResponse{Success: false})
		return
	}

	dates := make([]string, 0, len(schedule))
	for _, d := range schedule {
		dates = append(dates, d.Format("2006-01-02"))
	}

	writeJSON(w, http.StatusOK, scheduleResponse{Success: true, Schedule: dates, TotalDoses: totalDoses})
}

func (h *Handler) BoardHandler(w http.ResponseWriter, r *http.Request) {
	board, err := h.visits.Board(r.Context())
	if err != nil {
		log.Errorf("Error [VisitService.Board] %s", err)
		h.CreateResponse(w, Response{Code: http.StatusInternalServerError, Error: "failed to load board"})
		return
	}

	h.CreateResponse(w, Response{Message: "board snapshot", Code: http.StatusOK, Data: board})
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	rsp := Response{
		Message: "reception service is running at port " + os.Getenv("RECEPTION_SERVICE_PORT"),
		Code:    200,
		Data:    nil,
	}
	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		log.Errorf("Failed to encode health response: %v", err)
	}
}

func formVisitID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	visitID, err := strconv.ParseInt(r.PostFormValue("visit_id"), 10, 64)
	if err != nil || visitID <= 0 {
		writeJSON(w, http.StatusBadRequest, mutationResponse{Success: false, Message: "Missing or invalid visit."})
		return 0, false
	}
	return visitID, true
}

// staffID pulls the staff identifier out of the verified JWT. Zero when the
// claim is absent; the audit entry still records the action.
func (h *Handler) staffID(r *http.Request) int64 {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return 0
	}
	if v, ok := claims["staff_id"].(float64); ok {
		return int64(v)
	}
	return 0
}

// record logs the activity entry; audit failures never fail the request.
func (h *Handler) record(ctx context.Context, e activity.Entry) {
	if h.activity == nil {
		return
	}
	if err := h.activity.Record(ctx, e); err != nil {
		log.Errorf("Error recording activity: %s", err)
	}
}

func (h *Handler) publish(m comm.CardMove) {
	if h.board == nil {
		return
	}
	if err := h.board.PublishCardMove(m); err != nil {
		log.Errorf("Error publishing card move: %s", err)
	}
}
