package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mekdim/clinic-services/internal/receptionsvc/models"
)

type PatientStore struct {
	db *pgxpool.Pool
}

func NewPatientStore(db *pgxpool.Pool) *PatientStore {
	return &PatientStore{db: db}
}

func (s *PatientStore) GetByEmail(ctx context.Context, email string) (*models.Patient, error) {
	query := `
		SELECT id, full_name, email, patient_code, COALESCE(profile_photo_url, ''), created_at, updated_at
		FROM patients
		WHERE lower(email) = lower($1)
	`
	return s.scanOne(ctx, query, email)
}

func (s *PatientStore) GetByCode(ctx context.Context, code string) (*models.Patient, error) {
	query := `
		SELECT id, full_name, email, patient_code, COALESCE(profile_photo_url, ''), created_at, updated_at
		FROM patients
		WHERE upper(patient_code) = upper($1)
	`
	return s.scanOne(ctx, query, code)
}

func (s *PatientStore) scanOne(ctx context.Context, query string, arg any) (*models.Patient, error) {
	p := &models.Patient{}
	err := s.db.QueryRow(ctx, query, arg).Scan(
		&p.ID,
		&p.FullName,
		&p.Email,
		&p.PatientCode,
		&p.ProfilePhotoURL,
		&p.CreatedAt,
		&p.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // patient not found
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}

	return p, nil
}

// Search matches name or code fragments, most recently registered first.
func (s *PatientStore) Search(ctx context.Context, q string, limit int) ([]*models.Patient, error) {
	query := `
		SELECT id, full_name, email, patient_code, COALESCE(profile_photo_url, ''), created_at, updated_at
		FROM patients
		WHERE full_name ILIKE '%' || $1 || '%' OR patient_code ILIKE '%' || $1 || '%'
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, q, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search patients: %w", err)
	}
	defer rows.Close()

	patients := []*models.Patient{}
	for rows.Next() {
		p := &models.Patient{}
		if err := rows.Scan(
			&p.ID,
			&p.FullName,
			&p.Email,
			&p.PatientCode,
			&p.ProfilePhotoURL,
			&p.CreatedAt,
			&p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan patient row: %w", err)
		}
		patients = append(patients, p)
	}

	return patients, rows.Err()
}
