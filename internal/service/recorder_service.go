package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/openlms/enrol-audit-api/internal/models"
	appErrors "github.com/openlms/enrol-audit-api/pkg/errors"
)

type auditWriter interface {
	Insert(ctx context.Context, record *models.AuditRecord) error
	Latest(ctx context.Context, enrolmentID int64) (*models.AuditRecord, error)
}

// RecorderService turns enrolment lifecycle notifications into audit rows.
// One notification, one appended row; write failures propagate to the caller
// so the notification source can decide retry policy.
type RecorderService struct {
	audit     auditWriter
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRecorderService constructs RecorderService.
func NewRecorderService(audit auditWriter, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *RecorderService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecorderService{audit: audit, metrics: metrics, validator: validate, logger: logger}
}

// Record appends the audit row for a lifecycle event and returns it.
func (s *RecorderService) Record(ctx context.Context, event models.LifecycleEvent) (*models.AuditRecord, error) {
	if err := s.validator.Struct(event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lifecycle event")
	}

	observed := event.ObservedAt
	if observed.IsZero() {
		observed = time.Now().UTC()
	}
	if event.Status == "" {
		event.Status = models.EnrolmentStatusActive
	}
	record := &models.AuditRecord{
		EnrolmentID:   event.EnrolmentID,
		CourseID:      event.CourseID,
		SubjectUserID: event.UserID,
		ActorUserID:   event.ActorUserID,
		Status:        event.Status,
		ObservedAt:    observed,
	}

	switch event.Type {
	case models.LifecycleCreated:
		record.ChangeKind = models.ChangeCreated
	case models.LifecycleDeleted:
		record.ChangeKind = models.ChangeDeleted
	case models.LifecycleUpdated:
		kind, err := s.updateKind(ctx, event)
		if err != nil {
			return nil, err
		}
		record.ChangeKind = kind
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown lifecycle event type")
	}

	if err := s.audit.Insert(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append audit record")
	}
	s.metrics.RecordAuditWrite(record.ChangeKind)
	s.logger.Debug("audit record appended",
		zap.Int64("enrolment_id", record.EnrolmentID),
		zap.String("change_kind", string(record.ChangeKind)))
	return record, nil
}

// updateKind classifies an update against the enrolment's latest audit row.
// A status change maps to the matching status kind; an untouched status is a
// generic UPDATED. An enrolment with no prior rows is treated as changed.
func (s *RecorderService) updateKind(ctx context.Context, event models.LifecycleEvent) (models.ChangeKind, error) {
	latest, err := s.audit.Latest(ctx, event.EnrolmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return statusKind(event.Status), nil
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load latest audit record")
	}
	if latest.Status == event.Status {
		return models.ChangeUpdated, nil
	}
	return statusKind(event.Status), nil
}

func statusKind(status models.EnrolmentStatus) models.ChangeKind {
	if status == models.EnrolmentStatusSuspended {
		return models.ChangeStatusSuspended
	}
	return models.ChangeStatusActive
}
