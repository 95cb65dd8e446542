package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mekdim/clinic-services/internal/receptionsvc/models"
)

type VaccineStore struct {
	db *pgxpool.Pool
}

func NewVaccineStore(db *pgxpool.Pool) *VaccineStore {
	return &VaccineStore{db: db}
}

func (s *VaccineStore) GetByID(ctx context.Context, vaccineID int64) (*models.Vaccine, error) {
	query := `
		SELECT id, name, total_doses, intervals, created_at, updated_at
		FROM vaccines
		WHERE id = $1
	`

	v := &models.Vaccine{}
	err := s.db.QueryRow(ctx, query, vaccineID).Scan(
		&v.ID,
		&v.Name,
		&v.TotalDoses,
		&v.Intervals,
		&v.CreatedAt,
		&v.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // vaccine not found
		}
		return nil, fmt.Errorf("failed to get vaccine by ID: %w", err)
	}

	return v, nil
}
