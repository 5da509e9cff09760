package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openlms/enrol-audit-api/internal/models"
	"github.com/openlms/enrol-audit-api/internal/repository"
	appErrors "github.com/openlms/enrol-audit-api/pkg/errors"
	"github.com/openlms/enrol-audit-api/pkg/jobs"
	"github.com/openlms/enrol-audit-api/pkg/storage"
)

const exportJobType = "audit_export"

// exportPageSize bounds how many report rows each fetch pulls while a job
// pages through the full result set.
const exportPageSize = 100

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error)
}

type exportStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

// ExportJobService owns the async export pipeline: it persists job rows,
// dispatches them onto an in-memory worker queue, renders the report and
// hands back signed download tokens.
type ExportJobService struct {
	store    exportJobStore
	reports  reportRepository
	exporter *ExportService
	storage  exportStorage
	signer   *storage.SignedURLSigner
	queue    *jobs.Queue
	metrics  *MetricsService
	basePath string
	logger   *zap.Logger
}

// NewExportJobService constructs the service and its worker queue. basePath
// is the public route prefix download tokens are appended to.
func NewExportJobService(store exportJobStore, reports reportRepository, exporter *ExportService, files exportStorage, signer *storage.SignedURLSigner, metrics *MetricsService, basePath string, queueCfg jobs.QueueConfig, logger *zap.Logger) *ExportJobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ExportJobService{
		store:    store,
		reports:  reports,
		exporter: exporter,
		storage:  files,
		signer:   signer,
		metrics:  metrics,
		basePath: strings.TrimRight(basePath, "/"),
		logger:   logger,
	}
	s.queue = jobs.NewQueue("exports", s.handleJob, queueCfg)
	return s
}

// Start launches the worker queue.
func (s *ExportJobService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the worker queue.
func (s *ExportJobService) Stop() {
	s.queue.Stop()
}

// Enqueue persists a new export job and dispatches it.
func (s *ExportJobService) Enqueue(ctx context.Context, filter models.AuditFilter, format models.ExportFormat, createdBy int64) (*models.ExportJob, error) {
	if format != models.ExportFormatCSV && format != models.ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	job := &models.ExportJob{
		Params:    models.ExportJobParams{Filter: filter, Format: format},
		Status:    models.ExportStatusQueued,
		CreatedBy: createdBy,
	}
	if err := s.store.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: exportJobType}); err != nil {
		s.failJob(ctx, job.ID, "export queue unavailable")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to dispatch export job")
	}
	return job, nil
}

// Status returns the current state of a job.
func (s *ExportJobService) Status(ctx context.Context, id string) (*models.ExportJob, error) {
	job, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	return job, nil
}

// Download validates a signed token and opens the exported file. The caller
// owns closing the returned handle.
func (s *ExportJobService) Download(ctx context.Context, token string) (*os.File, string, error) {
	jobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid download token")
	}
	job, err := s.store.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job.Status != models.ExportStatusFinished {
		return nil, "", appErrors.Clone(appErrors.ErrPreconditionFailed, "export not finished")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export file missing")
	}
	parts := strings.Split(relPath, "/")
	return file, parts[len(parts)-1], nil
}

// Recover re-dispatches jobs that were queued when the process last stopped.
func (s *ExportJobService) Recover(ctx context.Context) error {
	queued, err := s.store.ListQueued(ctx, 100)
	if err != nil {
		return err
	}
	for _, job := range queued {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: exportJobType}); err != nil {
			return err
		}
	}
	if len(queued) > 0 {
		s.logger.Info("recovered queued export jobs", zap.Int("count", len(queued)))
	}
	return nil
}

// Cleanup deletes export files whose download window has passed and clears
// their result URLs.
func (s *ExportJobService) Cleanup(ctx context.Context, olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	finished, err := s.store.ListFinishedBefore(ctx, cutoff, 100)
	if err != nil {
		return err
	}
	for _, job := range finished {
		if job.ResultURL == nil {
			continue
		}
		token := (*job.ResultURL)[strings.LastIndex(*job.ResultURL, "/")+1:]
		_, relPath, _, err := s.signer.Parse(token, true)
		if err != nil {
			s.logger.Warn("skipping cleanup of unparseable result url", zap.String("job_id", job.ID))
			continue
		}
		if err := s.storage.Delete(relPath); err != nil {
			return err
		}
		cleared := ""
		if err := s.store.Update(ctx, job.ID, repository.UpdateExportJobParams{ResultURL: &cleared}); err != nil {
			return err
		}
	}
	return nil
}

// StartCleanupLoop runs Cleanup on a fixed interval until ctx is cancelled.
func (s *ExportJobService) StartCleanupLoop(ctx context.Context, interval, retention time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Cleanup(ctx, retention); err != nil {
					s.logger.Warn("export cleanup failed", zap.Error(err))
				}
			}
		}
	}()
}

func (s *ExportJobService) handleJob(ctx context.Context, job jobs.Job) error {
	row, err := s.store.GetByID(ctx, job.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("export job vanished", zap.String("job_id", job.ID))
			return nil
		}
		return err
	}
	if row.Status == models.ExportStatusFinished {
		return nil
	}

	if err := s.updateProgress(ctx, job.ID, models.ExportStatusProcessing, 10); err != nil {
		return err
	}

	records, err := s.collectRecords(ctx, row.Params.Filter)
	if err != nil {
		s.failJob(ctx, job.ID, "failed to read report rows")
		return err
	}
	if err := s.updateProgress(ctx, job.ID, models.ExportStatusProcessing, 50); err != nil {
		return err
	}

	payload, ext, err := s.exporter.Render(row.Params.Format, s.exporter.BuildDataset(records))
	if err != nil {
		s.failJob(ctx, job.ID, "failed to render export")
		return err
	}

	filename := fmt.Sprintf("%s/audit-report-%s.%s", time.Now().UTC().Format("2006/01/02"), row.ID, ext)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		s.failJob(ctx, job.ID, "failed to store export file")
		return err
	}

	token, _, err := s.signer.Generate(row.ID, relPath)
	if err != nil {
		s.failJob(ctx, job.ID, "failed to sign download url")
		return err
	}

	resultURL := s.basePath + "/" + token
	now := time.Now().UTC()
	finished := models.ExportStatusFinished
	progress := 100
	if err := s.store.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:     &finished,
		Progress:   &progress,
		ResultURL:  &resultURL,
		FinishedAt: &now,
	}); err != nil {
		return err
	}
	s.metrics.RecordExportJob(models.ExportStatusFinished)
	s.logger.Info("export job finished", zap.String("job_id", job.ID), zap.Int("rows", len(records)))
	return nil
}

func (s *ExportJobService) collectRecords(ctx context.Context, filter models.AuditFilter) ([]models.AuditRecordDetail, error) {
	filter.PageSize = exportPageSize
	var all []models.AuditRecordDetail
	for page := 1; ; page++ {
		filter.Page = page
		records, total, err := s.reports.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
		if len(records) < exportPageSize || len(all) >= total {
			return all, nil
		}
	}
}

func (s *ExportJobService) updateProgress(ctx context.Context, id string, status models.ExportStatus, progress int) error {
	return s.store.Update(ctx, id, repository.UpdateExportJobParams{Status: &status, Progress: &progress})
}

func (s *ExportJobService) failJob(ctx context.Context, id, message string) {
	failed := models.ExportStatusFailed
	now := time.Now().UTC()
	if err := s.store.Update(ctx, id, repository.UpdateExportJobParams{
		Status:       &failed,
		ErrorMessage: &message,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Error("failed to mark export job failed", zap.String("job_id", id), zap.Error(err))
	}
	s.metrics.RecordExportJob(models.ExportStatusFailed)
}
