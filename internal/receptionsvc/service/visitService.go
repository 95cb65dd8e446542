package service

import (
	"context"
	"strings"

	"github.com/mekdim/clinic-services/internal/receptionsvc/models"
	"github.com/mekdim/clinic-services/internal/receptionsvc/store"
)

type VisitService struct {
	visitStore *store.VisitStore
}

func NewVisitService(visitStore *store.VisitStore) *VisitService {
	return &VisitService{visitStore: visitStore}
}

// Claim binds a queued visit to a staff member. The store's guarded update
// decides the winner when two claims race.
func (s *VisitService) Claim(ctx context.Context, visitID, staffID int64) (*models.Visit, error) {
	visit, err := s.visitStore.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if visit == nil {
		return nil, ErrVisitNotFound
	}
	if visit.Status != models.VisitStatusQueued {
		return nil, ErrAlreadyClaimed
	}

	claimed, err := s.visitStore.Claim(ctx, visitID, staffID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrAlreadyClaimed
	}

	return s.visitStore.GetByID(ctx, visitID)
}

// Verify checks the presented identity against the visit's patient and marks
// the visit ready. Either the scanned email or the manually entered patient
// code must match, both case-insensitive.
func (s *VisitService) Verify(ctx context.Context, visitID int64, email, code string) (*models.Visit, *models.Patient, error) {
	visit, err := s.visitStore.GetByID(ctx, visitID)
	if err != nil {
		return nil, nil, err
	}
	if visit == nil {
		return nil, nil, ErrVisitNotFound
	}
	if visit.Status != models.VisitStatusClaimed {
		return nil, nil, ErrNotClaimable
	}

	patient, err := s.visitStore.GetPatientForVisit(ctx, visitID)
	if err != nil {
		return nil, nil, err
	}
	if patient == nil {
		return nil, nil, ErrVisitNotFound
	}

	switch {
	case email != "":
		if !strings.EqualFold(strings.TrimSpace(email), strings.TrimSpace(patient.Email)) {
			return nil, nil, ErrPatientMismatch
		}
	case code != "":
		if !strings.EqualFold(strings.TrimSpace(code), strings.TrimSpace(patient.PatientCode)) {
			return nil, nil, ErrPatientMismatch
		}
	default:
		return nil, nil, ErrPatientMismatch
	}

	ok, err := s.visitStore.MarkReady(ctx, visitID)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrNotClaimable
	}

	visit, err = s.visitStore.GetByID(ctx, visitID)
	return visit, patient, err
}

func (s *VisitService) Finish(ctx context.Context, visitID int64) (*models.Visit, error) {
	visit, err := s.visitStore.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if visit == nil {
		return nil, ErrVisitNotFound
	}

	ok, err := s.visitStore.Finish(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFinishable
	}

	return s.visitStore.GetByID(ctx, visitID)
}

// Board groups today's cards into the three dashboard columns.
func (s *VisitService) Board(ctx context.Context) (map[string][]*models.BoardCard, error) {
	cards, err := s.visitStore.BoardCards(ctx)
	if err != nil {
		return nil, err
	}

	board := map[string][]*models.BoardCard{
		"unclaimed": {},
		"claimed":   {},
		"finished":  {},
	}
	for _, c := range cards {
		switch c.Status {
		case models.VisitStatusQueued:
			board["unclaimed"] = append(board["unclaimed"], c)
		case models.VisitStatusClaimed, models.VisitStatusReady:
			board["claimed"] = append(board["claimed"], c)
		case models.VisitStatusFinished:
			board["finished"] = append(board["finished"], c)
		}
	}

	return board, nil
}
