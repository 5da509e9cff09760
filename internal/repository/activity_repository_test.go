package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/openlms/enrol-audit-api/internal/models"
)

func TestActivityRepositoryListUpdatesBeforeBound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewActivityRepository(db)

	bound := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "event_name", "object_id", "course_id", "related_user_id", "actor_id", "time_created"}).
		AddRow(int64(1), models.ActivityEnrolmentUpdated, int64(7), int64(2), int64(3), int64(4), bound.Add(-time.Hour))

	mock.ExpectQuery(regexp.QuoteMeta("AND time_created < $3")).
		WithArgs(models.ActivityEnrolmentUpdated, int64(7), bound).
		WillReturnRows(rows)

	entries, err := repo.ListUpdatesBefore(context.Background(), 7, &bound)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(4), entries[0].ActorUserID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepositoryListUpdatesBeforeNoBound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewActivityRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY time_created ASC, id ASC")).
		WithArgs(models.ActivityEnrolmentUpdated, int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_name", "object_id", "course_id", "related_user_id", "actor_id", "time_created"}))

	entries, err := repo.ListUpdatesBefore(context.Background(), 7, nil)
	require.NoError(t, err)
	require.Empty(t, entries)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepositoryLatestActorSinceFallsBackToZero(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewActivityRepository(db)

	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY time_created DESC, id DESC LIMIT 1")).
		WithArgs(models.ActivityEnrolmentUpdated, int64(7), since).
		WillReturnRows(sqlmock.NewRows([]string{"actor_id"}))

	actorID, err := repo.LatestActorSince(context.Background(), 7, since)
	require.NoError(t, err)
	require.Zero(t, actorID)
	require.NoError(t, mock.ExpectationsWereMet())
}
