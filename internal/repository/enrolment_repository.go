package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/openlms/enrol-audit-api/internal/models"
)

// EnrolmentRepository is a read-only view of the platform's enrolment-state
// table. This service audits that table; it never writes to it.
type EnrolmentRepository struct {
	db *sqlx.DB
}

// NewEnrolmentRepository constructs the repository.
func NewEnrolmentRepository(db *sqlx.DB) *EnrolmentRepository {
	return &EnrolmentRepository{db: db}
}

// FindByID returns the current state of an enrolment. Returns sql.ErrNoRows
// when the enrolment has been removed.
func (r *EnrolmentRepository) FindByID(ctx context.Context, id int64) (*models.Enrolment, error) {
	const query = `SELECT id, course_id, user_id, status, time_created, time_modified FROM enrolments WHERE id = $1`
	var enrolment models.Enrolment
	if err := r.db.GetContext(ctx, &enrolment, query, id); err != nil {
		return nil, err
	}
	return &enrolment, nil
}

// ListAll returns every current enrolment with its timestamps.
func (r *EnrolmentRepository) ListAll(ctx context.Context) ([]models.Enrolment, error) {
	const query = `SELECT id, course_id, user_id, status, time_created, time_modified FROM enrolments ORDER BY id ASC`
	var enrolments []models.Enrolment
	if err := r.db.SelectContext(ctx, &enrolments, query); err != nil {
		return nil, err
	}
	return enrolments, nil
}
