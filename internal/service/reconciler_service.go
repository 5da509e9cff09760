package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/openlms/enrol-audit-api/internal/models"
	"github.com/openlms/enrol-audit-api/pkg/config"
	appErrors "github.com/openlms/enrol-audit-api/pkg/errors"
)

type auditStore interface {
	Insert(ctx context.Context, record *models.AuditRecord) error
	Count(ctx context.Context) (int, error)
	ListByChangeKind(ctx context.Context, kind models.ChangeKind) ([]models.AuditRecord, error)
}

type enrolmentStore interface {
	FindByID(ctx context.Context, id int64) (*models.Enrolment, error)
	ListAll(ctx context.Context) ([]models.Enrolment, error)
}

type activityStore interface {
	ListByEvent(ctx context.Context, eventName string) ([]models.ActivityEntry, error)
	ListUpdatesBefore(ctx context.Context, enrolmentID int64, before *time.Time) ([]models.ActivityEntry, error)
	LatestActorSince(ctx context.Context, enrolmentID int64, since time.Time) (int64, error)
}

// ReconcilerService is the one-shot bootstrap of the audit trail. In backfill
// mode it reconstructs historical rows by fusing the activity log with the
// current enrolment state; in baseline mode it snapshots the present state as
// INITIAL sentinel rows. Either path is guarded by the audit table being
// empty, so a second invocation is a no-op and live traffic is never mixed
// with synthesized history.
type ReconcilerService struct {
	audit      auditStore
	enrolments enrolmentStore
	activity   activityStore
	metrics    *MetricsService
	logger     *zap.Logger
}

// NewReconcilerService constructs ReconcilerService.
func NewReconcilerService(audit auditStore, enrolments enrolmentStore, activity activityStore, metrics *MetricsService, logger *zap.Logger) *ReconcilerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcilerService{audit: audit, enrolments: enrolments, activity: activity, metrics: metrics, logger: logger}
}

// Run executes the bootstrap path selected by mode. It returns the number of
// rows written, zero when the guard fired or mode is off.
func (s *ReconcilerService) Run(ctx context.Context, mode string) (int, error) {
	switch mode {
	case config.BootstrapBaseline:
		return s.Baseline(ctx)
	case config.BootstrapBackfill:
		return s.Backfill(ctx)
	case config.BootstrapOff, "":
		return 0, nil
	default:
		return 0, appErrors.Clone(appErrors.ErrValidation, "unknown bootstrap mode: "+mode)
	}
}

// guard reports whether the audit table already holds rows. Partial writes
// from an aborted run leave the table non-empty on purpose: re-running after
// a mid-phase failure needs manual intervention, not an automatic retry.
func (s *ReconcilerService) guard(ctx context.Context) (bool, error) {
	total, err := s.audit.Count(ctx)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count audit records")
	}
	return total > 0, nil
}

// Baseline writes exactly one INITIAL sentinel row per current enrolment,
// capturing its status at this instant. INITIAL rows never surface in
// reports; they only anchor the recorder's status comparisons.
func (s *ReconcilerService) Baseline(ctx context.Context) (int, error) {
	done, err := s.guard(ctx)
	if err != nil {
		return 0, err
	}
	if done {
		s.logger.Info("audit table already populated, skipping baseline")
		return 0, nil
	}

	enrolments, err := s.enrolments.ListAll(ctx)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrolments")
	}

	written := 0
	for _, enrolment := range enrolments {
		record := &models.AuditRecord{
			EnrolmentID:   enrolment.ID,
			CourseID:      enrolment.CourseID,
			SubjectUserID: enrolment.UserID,
			ActorUserID:   0,
			ChangeKind:    models.ChangeInitial,
			Status:        enrolment.Status,
			ObservedAt:    enrolment.TimeModified,
		}
		if err := s.audit.Insert(ctx, record); err != nil {
			return written, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "baseline write failed")
		}
		written++
	}
	s.metrics.RecordReconcilerRows("baseline", written)
	s.logger.Info("baseline bootstrap complete", zap.Int("rows", written))
	return written, nil
}

// Backfill reconstructs historical audit rows in three ordered phases. Any
// write failure aborts the whole job; the guard is what makes a clean run
// repeatable, not per-row deduplication.
func (s *ReconcilerService) Backfill(ctx context.Context) (int, error) {
	done, err := s.guard(ctx)
	if err != nil {
		return 0, err
	}
	if done {
		s.logger.Info("audit table already populated, skipping backfill")
		return 0, nil
	}

	created, err := s.phaseCreations(ctx)
	if err != nil {
		return created, err
	}
	updated, err := s.phaseUpdates(ctx)
	if err != nil {
		return created + updated, err
	}
	deleted, err := s.phaseDeletions(ctx)
	if err != nil {
		return created + updated + deleted, err
	}

	total := created + updated + deleted
	s.logger.Info("backfill complete",
		zap.Int("created", created),
		zap.Int("updated", updated),
		zap.Int("deleted", deleted))
	return total, nil
}

// phaseCreations emits one CREATED row per enrolment. The creation log entry
// wins when present (it knows the actor and the real creation instant); for
// enrolments the log no longer covers, the state table's timeCreated stands
// in, with an unknown actor and status assumed active.
func (s *ReconcilerService) phaseCreations(ctx context.Context) (int, error) {
	entries, err := s.activity.ListByEvent(ctx, models.ActivityEnrolmentCreated)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read creation log entries")
	}

	logged := make(map[int64]bool, len(entries))
	written := 0
	for _, entry := range entries {
		if logged[entry.EnrolmentID] {
			continue
		}
		logged[entry.EnrolmentID] = true
		record := &models.AuditRecord{
			EnrolmentID:   entry.EnrolmentID,
			CourseID:      entry.CourseID,
			SubjectUserID: entry.RelatedUserID,
			ActorUserID:   entry.ActorUserID,
			ChangeKind:    models.ChangeCreated,
			Status:        models.EnrolmentStatusActive,
			ObservedAt:    entry.TimeCreated,
		}
		if err := s.audit.Insert(ctx, record); err != nil {
			return written, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "creation phase write failed")
		}
		written++
	}

	enrolments, err := s.enrolments.ListAll(ctx)
	if err != nil {
		return written, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrolments")
	}
	for _, enrolment := range enrolments {
		if logged[enrolment.ID] {
			continue
		}
		record := &models.AuditRecord{
			EnrolmentID:   enrolment.ID,
			CourseID:      enrolment.CourseID,
			SubjectUserID: enrolment.UserID,
			ActorUserID:   0,
			ChangeKind:    models.ChangeCreated,
			Status:        models.EnrolmentStatusActive,
			ObservedAt:    enrolment.TimeCreated,
		}
		if err := s.audit.Insert(ctx, record); err != nil {
			return written, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "creation phase write failed")
		}
		written++
	}
	s.metrics.RecordReconcilerRows("creations", written)
	return written, nil
}

// phaseUpdates walks the CREATED rows the previous phase wrote. Only the
// single most recent change can be attributed a real status (the state table
// holds just the current post-state); every earlier update entry gets a
// generic UPDATED row carrying the last known status forward.
func (s *ReconcilerService) phaseUpdates(ctx context.Context) (int, error) {
	createdRows, err := s.audit.ListByChangeKind(ctx, models.ChangeCreated)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list created audit rows")
	}

	written := 0
	for _, row := range createdRows {
		enrolment, err := s.enrolments.FindByID(ctx, row.EnrolmentID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return written, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrolment state")
		}

		lastKnownStatus := row.Status
		var cutoff *time.Time
		if enrolment != nil {
			lastKnownStatus = enrolment.Status
			if !enrolment.TimeModified.Equal(enrolment.TimeCreated) {
				kind := models.ChangeUpdated
				if enrolment.Status != models.EnrolmentStatusActive {
					kind = models.ChangeStatusSuspended
				}
				actorID, err := s.activity.LatestActorSince(ctx, row.EnrolmentID, enrolment.TimeModified)
				if err != nil {
					return written, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve update actor")
				}
				record := &models.AuditRecord{
					EnrolmentID:   row.EnrolmentID,
					CourseID:      row.CourseID,
					SubjectUserID: row.SubjectUserID,
					ActorUserID:   actorID,
					ChangeKind:    kind,
					Status:        enrolment.Status,
					ObservedAt:    enrolment.TimeModified,
				}
				if err := s.audit.Insert(ctx, record); err != nil {
					return written, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "update phase write failed")
				}
				written++
				cutoff = &enrolment.TimeModified
			}
		}

		entries, err := s.activity.ListUpdatesBefore(ctx, row.EnrolmentID, cutoff)
		if err != nil {
			return written, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read update log entries")
		}
		for _, entry := range entries {
			record := &models.AuditRecord{
				EnrolmentID:   row.EnrolmentID,
				CourseID:      row.CourseID,
				SubjectUserID: row.SubjectUserID,
				ActorUserID:   entry.ActorUserID,
				ChangeKind:    models.ChangeUpdated,
				Status:        lastKnownStatus,
				ObservedAt:    entry.TimeCreated,
			}
			if err := s.audit.Insert(ctx, record); err != nil {
				return written, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "update phase write failed")
			}
			written++
		}
	}
	s.metrics.RecordReconcilerRows("updates", written)
	return written, nil
}

// phaseDeletions emits one DELETED row per deletion log entry. The enrolment
// row is long gone, so status active is recorded as a documented
// approximation.
func (s *ReconcilerService) phaseDeletions(ctx context.Context) (int, error) {
	entries, err := s.activity.ListByEvent(ctx, models.ActivityEnrolmentDeleted)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read deletion log entries")
	}

	written := 0
	for _, entry := range entries {
		record := &models.AuditRecord{
			EnrolmentID:   entry.EnrolmentID,
			CourseID:      entry.CourseID,
			SubjectUserID: entry.RelatedUserID,
			ActorUserID:   entry.ActorUserID,
			ChangeKind:    models.ChangeDeleted,
			Status:        models.EnrolmentStatusActive,
			ObservedAt:    entry.TimeCreated,
		}
		if err := s.audit.Insert(ctx, record); err != nil {
			return written, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "deletion phase write failed")
		}
		written++
	}
	s.metrics.RecordReconcilerRows("deletions", written)
	return written, nil
}
