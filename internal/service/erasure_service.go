package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	appErrors "github.com/openlms/enrol-audit-api/pkg/errors"
)

type auditEraser interface {
	DeleteByCourse(ctx context.Context, courseID int64) (int64, error)
	DeleteByCourseUsers(ctx context.Context, courseID int64, userIDs []int64) (int64, error)
}

type reportInvalidator interface {
	Invalidate(ctx context.Context)
}

// EraseUsersRequest scopes a privacy erasure to specific users in a course.
type EraseUsersRequest struct {
	UserIDs []int64 `json:"user_ids" validate:"required,min=1,dive,gt=0"`
}

// ErasureService handles privacy deletion requests. This is the only path
// that removes rows from the otherwise append-only audit trail.
type ErasureService struct {
	audit     auditEraser
	reports   reportInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewErasureService constructs ErasureService.
func NewErasureService(audit auditEraser, reports reportInvalidator, validate *validator.Validate, logger *zap.Logger) *ErasureService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErasureService{audit: audit, reports: reports, validator: validate, logger: logger}
}

// EraseCourse removes every audit row in a course context.
func (s *ErasureService) EraseCourse(ctx context.Context, courseID int64) (int64, error) {
	if courseID <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "course id must be positive")
	}
	affected, err := s.audit.DeleteByCourse(ctx, courseID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to erase course audit records")
	}
	if s.reports != nil {
		s.reports.Invalidate(ctx)
	}
	s.logger.Info("course audit records erased", zap.Int64("course_id", courseID), zap.Int64("rows", affected))
	return affected, nil
}

// EraseCourseUsers removes a course's audit rows for the listed users only.
func (s *ErasureService) EraseCourseUsers(ctx context.Context, courseID int64, req EraseUsersRequest) (int64, error) {
	if courseID <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "course id must be positive")
	}
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid erasure payload")
	}
	affected, err := s.audit.DeleteByCourseUsers(ctx, courseID, req.UserIDs)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to erase user audit records")
	}
	if s.reports != nil {
		s.reports.Invalidate(ctx)
	}
	s.logger.Info("user audit records erased",
		zap.Int64("course_id", courseID),
		zap.Int("users", len(req.UserIDs)),
		zap.Int64("rows", affected))
	return affected, nil
}
