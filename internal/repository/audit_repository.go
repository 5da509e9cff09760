package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openlms/enrol-audit-api/internal/models"
)

// AuditRepository handles persistence of the append-only audit trail.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert appends a single audit row and fills in the generated id.
func (r *AuditRepository) Insert(ctx context.Context, record *models.AuditRecord) error {
	if record.ObservedAt.IsZero() {
		record.ObservedAt = time.Now().UTC()
	}
	const query = `INSERT INTO enrolment_audit (enrolment_id, course_id, user_id, actor_id, change_kind, status, observed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query,
		record.EnrolmentID,
		record.CourseID,
		record.SubjectUserID,
		record.ActorUserID,
		record.ChangeKind,
		record.Status,
		record.ObservedAt,
	).Scan(&record.ID); err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// Count returns the total number of audit rows, INITIAL included. Used as
// the reconciler's has-this-run-before guard.
func (r *AuditRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM enrolment_audit"); err != nil {
		return 0, fmt.Errorf("count audit records: %w", err)
	}
	return total, nil
}

// Latest returns the most recent audit row for an enrolment, ordered by
// (observed_at DESC, id DESC) so same-instant appends resolve to the newest
// insert. Returns sql.ErrNoRows when the enrolment has no rows yet.
func (r *AuditRepository) Latest(ctx context.Context, enrolmentID int64) (*models.AuditRecord, error) {
	const query = `SELECT id, enrolment_id, course_id, user_id, actor_id, change_kind, status, observed_at
        FROM enrolment_audit WHERE enrolment_id = $1 ORDER BY observed_at DESC, id DESC LIMIT 1`
	var record models.AuditRecord
	if err := r.db.GetContext(ctx, &record, query, enrolmentID); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListByChangeKind returns all rows of a given kind ordered by id. The
// reconciler iterates the CREATED rows it just wrote this way.
func (r *AuditRepository) ListByChangeKind(ctx context.Context, kind models.ChangeKind) ([]models.AuditRecord, error) {
	const query = `SELECT id, enrolment_id, course_id, user_id, actor_id, change_kind, status, observed_at
        FROM enrolment_audit WHERE change_kind = $1 ORDER BY id ASC`
	var records []models.AuditRecord
	if err := r.db.SelectContext(ctx, &records, query, kind); err != nil {
		return nil, fmt.Errorf("list audit records by kind: %w", err)
	}
	return records, nil
}

// List returns report rows filtered by the provided criteria. INITIAL
// baseline rows are excluded unconditionally.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditRecordDetail, int, error) {
	base := `FROM enrolment_audit re
LEFT JOIN users u ON u.id = re.user_id
LEFT JOIN users m ON m.id = re.actor_id
LEFT JOIN courses c ON c.id = re.course_id`
	conditions := []string{"re.change_kind <> $1"}
	args := []interface{}{models.ChangeInitial}

	if filter.CourseID > 0 {
		conditions = append(conditions, fmt.Sprintf("re.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.UserID > 0 {
		conditions = append(conditions, fmt.Sprintf("re.user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.FirstName != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(u.firstname) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.FirstName)+"%")
	}
	if filter.LastName != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(u.lastname) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.LastName)+"%")
	}
	if filter.CourseName != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(c.fullname) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.CourseName)+"%")
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("re.observed_at >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("re.observed_at <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	clause := " WHERE " + strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"observed_at": "re.observed_at",
		"user_name":   "u.lastname",
		"course_name": "c.fullname",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "observed_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "re.observed_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT re.id, re.enrolment_id, re.course_id, re.user_id, re.actor_id, re.change_kind, re.status, re.observed_at,
        COALESCE(u.firstname, '') AS user_firstname, COALESCE(u.lastname, '') AS user_lastname,
        COALESCE(m.firstname || ' ' || m.lastname, '') AS actor_name, COALESCE(c.fullname, '') AS course_name
        %s ORDER BY %s %s, re.id %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, order, size, offset)

	var records []models.AuditRecordDetail
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list audit records: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count audit records: %w", err)
	}
	return records, total, nil
}

// DeleteByCourse removes every audit row in a course. Privacy erasure only;
// nothing else deletes from this table.
func (r *AuditRepository) DeleteByCourse(ctx context.Context, courseID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM enrolment_audit WHERE course_id = $1", courseID)
	if err != nil {
		return 0, fmt.Errorf("delete audit records by course: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete audit records by course: %w", err)
	}
	return affected, nil
}

// DeleteByCourseUsers removes a course's audit rows for the given users.
func (r *AuditRepository) DeleteByCourseUsers(ctx context.Context, courseID int64, userIDs []int64) (int64, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(userIDs))
	args := make([]interface{}, 0, len(userIDs)+1)
	args = append(args, courseID)
	for i, id := range userIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}
	query := fmt.Sprintf("DELETE FROM enrolment_audit WHERE course_id = $1 AND user_id IN (%s)", strings.Join(placeholders, ","))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete audit records by course users: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete audit records by course users: %w", err)
	}
	return affected, nil
}
