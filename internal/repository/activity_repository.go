package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openlms/enrol-audit-api/internal/models"
)

// ActivityRepository is a read-only view of the platform's generic activity
// log. Retention policies may have pruned entries, so callers must tolerate
// gaps.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository constructs the repository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

const activityColumns = `id, event_name, object_id, course_id, related_user_id, actor_id, time_created`

// ListByEvent returns all entries for an event name in chronological order.
func (r *ActivityRepository) ListByEvent(ctx context.Context, eventName string) ([]models.ActivityEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM activity_log WHERE event_name = $1 ORDER BY time_created ASC, id ASC`, activityColumns)
	var entries []models.ActivityEntry
	if err := r.db.SelectContext(ctx, &entries, query, eventName); err != nil {
		return nil, fmt.Errorf("list activity entries: %w", err)
	}
	return entries, nil
}

// ListUpdatesBefore returns an enrolment's update entries, oldest first.
// When before is non-nil only entries strictly earlier than it are returned.
func (r *ActivityRepository) ListUpdatesBefore(ctx context.Context, enrolmentID int64, before *time.Time) ([]models.ActivityEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM activity_log WHERE event_name = $1 AND object_id = $2`, activityColumns)
	args := []interface{}{models.ActivityEnrolmentUpdated, enrolmentID}
	if before != nil {
		query += " AND time_created < $3"
		args = append(args, *before)
	}
	query += " ORDER BY time_created ASC, id ASC"

	var entries []models.ActivityEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list update entries: %w", err)
	}
	return entries, nil
}

// LatestActorSince returns the acting user of the most recent update entry
// at or after the given instant, or 0 when the log holds none.
func (r *ActivityRepository) LatestActorSince(ctx context.Context, enrolmentID int64, since time.Time) (int64, error) {
	const query = `SELECT actor_id FROM activity_log
        WHERE event_name = $1 AND object_id = $2 AND time_created >= $3
        ORDER BY time_created DESC, id DESC LIMIT 1`
	var actorID int64
	if err := r.db.GetContext(ctx, &actorID, query, models.ActivityEnrolmentUpdated, enrolmentID, since); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("find latest actor: %w", err)
	}
	return actorID, nil
}
