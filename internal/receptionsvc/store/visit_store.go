package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mekdim/clinic-services/internal/receptionsvc/models"
)

type VisitStore struct {
	db *pgxpool.Pool
}

func NewVisitStore(db *pgxpool.Pool) *VisitStore {
	return &VisitStore{db: db}
}

func (s *VisitStore) GetByID(ctx context.Context, visitID int64) (*models.Visit, error) {
	query := `
		SELECT id, patient_id, service, department, queue_number, status,
		       claimed_by, claimed_at, finished_at, created_at, updated_at
		FROM visits
		WHERE id = $1
	`

	v := &models.Visit{}
	err := s.db.QueryRow(ctx, query, visitID).Scan(
		&v.ID,
		&v.PatientID,
		&v.Service,
		&v.Department,
		&v.QueueNumber,
		&v.Status,
		&v.ClaimedBy,
		&v.ClaimedAt,
		&v.FinishedAt,
		&v.CreatedAt,
		&v.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // visit not found
		}
		return nil, fmt.Errorf("failed to get visit by ID: %w", err)
	}

	return v, nil
}

// GetPatientForVisit returns the patient bound to a reception visit.
func (s *VisitStore) GetPatientForVisit(ctx context.Context, visitID int64) (*models.Patient, error) {
	query := `
		SELECT p.id, p.full_name, p.email, p.patient_code, COALESCE(p.profile_photo_url, ''),
		       p.created_at, p.updated_at
		FROM visits v
		JOIN patients p ON p.id = v.patient_id
		WHERE v.id = $1 AND v.service = 'reception'
	`

	p := &models.Patient{}
	err := s.db.QueryRow(ctx, query, visitID).Scan(
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
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get patient for visit: %w", err)
	}

	return p, nil
}

// Claim binds a queued visit to a staff member. The row lock plus the guarded
// UPDATE make sure a visit is claimed exactly once: a concurrent claim loses
// on rows-affected. The remaining queue of the same department and day is
// renumbered to close the gap.
func (s *VisitStore) Claim(ctx context.Context, visitID, staffID int64) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var status, dept string
	var queueNum *int64
	err = tx.QueryRow(ctx, `
		SELECT status, department, queue_number
		FROM visits
		WHERE id = $1 AND service = 'reception'
		FOR UPDATE
	`, visitID).Scan(&status, &dept, &queueNum)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("lock visit row: %w", err)
	}
	if status != models.VisitStatusQueued {
		return false, nil // already claimed or past claiming
	}

	res, err := tx.Exec(ctx, `
		UPDATE visits
		SET status = $1, claimed_by = $2, claimed_at = now(), queue_number = NULL, updated_at = now()
		WHERE id = $3 AND status = $4
	`, models.VisitStatusClaimed, staffID, visitID, models.VisitStatusQueued)
	if err != nil {
		return false, fmt.Errorf("update visit: %w", err)
	}
	if res.RowsAffected() != 1 {
		return false, nil // another claim won first
	}

	// shift down later arrivals in the same department queue
	if queueNum != nil {
		_, err = tx.Exec(ctx, `
			UPDATE visits
			SET queue_number = queue_number - 1, updated_at = now()
			WHERE service = 'reception'
			  AND department = $1
			  AND status = $2
			  AND queue_number > $3
			  AND created_at::date = current_date
		`, dept, models.VisitStatusQueued, *queueNum)
		if err != nil {
			return false, fmt.Errorf("renumber queue: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}

	return true, nil
}

// MarkReady records a verified arrival on a claimed visit.
func (s *VisitStore) MarkReady(ctx context.Context, visitID int64) (bool, error) {
	res, err := s.db.Exec(ctx, `
		UPDATE visits
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, models.VisitStatusReady, visitID, models.VisitStatusClaimed)
	if err != nil {
		return false, fmt.Errorf("mark visit ready: %w", err)
	}

	return res.RowsAffected() == 1, nil
}

// Finish closes out a claimed or ready visit.
func (s *VisitStore) Finish(ctx context.Context, visitID int64) (bool, error) {
	res, err := s.db.Exec(ctx, `
		UPDATE visits
		SET status = $1, finished_at = now(), updated_at = now()
		WHERE id = $2 AND status IN ($3, $4)
	`, models.VisitStatusFinished, visitID, models.VisitStatusClaimed, models.VisitStatusReady)
	if err != nil {
		return false, fmt.Errorf("finish visit: %w", err)
	}

	return res.RowsAffected() == 1, nil
}

// BoardCards returns today's reception visits joined with patient display
// fields, queue order first.
func (s *VisitStore) BoardCards(ctx context.Context) ([]*models.BoardCard, error) {
	query := `
		SELECT v.id, p.full_name, p.patient_code, v.department,
		       COALESCE(v.queue_number, 0), v.status
		FROM visits v
		JOIN patients p ON p.id = v.patient_id
		WHERE v.service = 'reception' AND v.created_at::date = current_date
		ORDER BY v.queue_number NULLS LAST, v.created_at
	`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get board cards: %w", err)
	}
	defer rows.Close()

	cards := []*models.BoardCard{}
	for rows.Next() {
		c := &models.BoardCard{}
		if err := rows.Scan(
			&c.VisitID,
			&c.PatientName,
			&c.PatientCode,
			&c.Department,
			&c.QueueNumber,
			&c.Status,
		); err != nil {
			return nil, fmt.Errorf("failed to scan board card: %w", err)
		}
		cards = append(cards, c)
	}

	return cards, rows.Err()
}
