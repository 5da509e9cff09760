package service

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openlms/enrol-audit-api/internal/models"
	appErrors "github.com/openlms/enrol-audit-api/pkg/errors"
)

const reportCachePrefix = "audit:report:"

type reportRepository interface {
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditRecordDetail, int, error)
}

type reportCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// ReportPage is one page of the audit report.
type ReportPage struct {
	Records    []models.AuditRecordDetail `json:"records"`
	Pagination models.Pagination          `json:"pagination"`
}

// ReportService serves the filtered audit report. Baseline sentinel rows are
// excluded at the query level; pages can be cached in Redis for repeat
// browsing of the same filter.
type ReportService struct {
	repo     reportRepository
	cache    reportCache
	metrics  *MetricsService
	cacheTTL time.Duration
	enabled  bool
	logger   *zap.Logger
}

// NewReportService constructs ReportService. Passing a nil cache or
// enabled=false disables caching entirely.
func NewReportService(repo reportRepository, cache reportCache, metrics *MetricsService, cacheTTL time.Duration, enabled bool, logger *zap.Logger) *ReportService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{repo: repo, cache: cache, metrics: metrics, cacheTTL: cacheTTL, enabled: enabled && cache != nil, logger: logger}
}

// List returns one report page for the filter, serving from cache when the
// identical filter was recently requested.
func (s *ReportService) List(ctx context.Context, filter models.AuditFilter) (*ReportPage, error) {
	key := reportCacheKey(filter)
	if s.enabled {
		var cached ReportPage
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			s.metrics.RecordCacheLookup(true)
			return &cached, nil
		}
		s.metrics.RecordCacheLookup(false)
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("report cache get failed", zap.Error(err))
		}
	}

	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit records")
	}
	if records == nil {
		records = []models.AuditRecordDetail{}
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	result := &ReportPage{
		Records:    records,
		Pagination: models.Pagination{Page: page, PageSize: size, TotalCount: total},
	}

	if s.enabled {
		if err := s.cache.Set(ctx, key, result, s.cacheTTL); err != nil {
			s.logger.Warn("report cache set failed", zap.Error(err))
		}
	}
	return result, nil
}

// Invalidate drops all cached report pages. Called after erasure removes
// rows so stale pages never outlive a deletion.
func (s *ReportService) Invalidate(ctx context.Context) {
	if !s.enabled {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, reportCachePrefix+"*"); err != nil {
		s.logger.Warn("report cache invalidation failed", zap.Error(err))
	}
}

func reportCacheKey(filter models.AuditFilter) string {
	payload, err := json.Marshal(filter)
	if err != nil {
		return reportCachePrefix + "unkeyed"
	}
	return fmt.Sprintf("%s%x", reportCachePrefix, sha256.Sum256(payload))
}
