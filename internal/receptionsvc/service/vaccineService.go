package service

import (
	"context"
	"time"

	"github.com/mekdim/clinic-services/internal/receptionsvc/store"
)

type VaccineService struct {
	vaccineStore *store.VaccineStore
}

func NewVaccineService(vaccineStore *store.VaccineStore) *VaccineService {
	return &VaccineService{vaccineStore: vaccineStore}
}

// Preview computes the dose dates for a vaccine series starting at start.
func (s *VaccineService) Preview(ctx context.Context, vaccineID int64, start time.Time) ([]time.Time, int, error) {
	vaccine, err := s.vaccineStore.GetByID(ctx, vaccineID)
	if err != nil {
		return nil, 0, err
	}
	if vaccine == nil {
		return nil, 0, ErrVaccineNotFound
	}

	schedule, err := vaccine.DoseSchedule(start)
	if err != nil {
		return nil, 0, err
	}

	return schedule, vaccine.TotalDoses, nil
}
