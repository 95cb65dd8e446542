package service

import (
	"context"
	"regexp"

	"github.com/mekdim/clinic-services/internal/receptionsvc/models"
	"github.com/mekdim/clinic-services/internal/receptionsvc/store"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

type PatientService struct {
	patientStore *store.PatientStore
}

func NewPatientService(patientStore *store.PatientStore) *PatientService {
	return &PatientService{patientStore: patientStore}
}

// Lookup resolves a scanned or typed key to a patient. Email-shaped keys go
// through the email index, anything else is treated as a patient code.
// Returns nil, nil when no record exists.
func (s *PatientService) Lookup(ctx context.Context, key string) (*models.Patient, error) {
	if emailPattern.MatchString(key) {
		return s.patientStore.GetByEmail(ctx, key)
	}
	return s.patientStore.GetByCode(ctx, key)
}

func (s *PatientService) Search(ctx context.Context, q string, limit int) ([]*models.Patient, error) {
	return s.patientStore.Search(ctx, q, limit)
}
