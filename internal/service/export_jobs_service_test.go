package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlms/enrol-audit-api/internal/models"
	"github.com/openlms/enrol-audit-api/internal/repository"
	"github.com/openlms/enrol-audit-api/pkg/jobs"
	pkgstorage "github.com/openlms/enrol-audit-api/pkg/storage"
)

type mockExportStore struct {
	jobs map[string]*models.ExportJob
	seq  int
}

func (m *mockExportStore) Create(ctx context.Context, job *models.ExportJob) error {
	if m.jobs == nil {
		m.jobs = make(map[string]*models.ExportJob)
	}
	if job.ID == "" {
		m.seq++
		job.ID = "job-" + string(rune('0'+m.seq))
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *mockExportStore) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *job
	return &copied, nil
}

func (m *mockExportStore) Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error {
	job, ok := m.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (m *mockExportStore) ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error) {
	var out []models.ExportJob
	for _, job := range m.jobs {
		if job.Status == models.ExportStatusQueued {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (m *mockExportStore) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error) {
	var out []models.ExportJob
	for _, job := range m.jobs {
		if job.Status == models.ExportStatusFinished && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			out = append(out, *job)
		}
	}
	return out, nil
}

func newExportJobService(t *testing.T, store *mockExportStore, repo *mockReportRepo) *ExportJobService {
	t.Helper()
	files, err := pkgstorage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := pkgstorage.NewSignedURLSigner("test-secret", time.Hour)
	return NewExportJobService(store, repo, NewExportService(), files, signer, nil, "/api/v1/export", jobs.QueueConfig{}, nil)
}

func TestExportJobLifecycle(t *testing.T) {
	store := &mockExportStore{}
	repo := &mockReportRepo{records: sampleReportRows(), total: 1}
	svc := newExportJobService(t, store, repo)

	job := &models.ExportJob{
		ID:     "job-a",
		Params: models.ExportJobParams{Filter: models.AuditFilter{CourseID: 2}, Format: models.ExportFormatCSV},
		Status: models.ExportStatusQueued,
	}
	require.NoError(t, store.Create(context.Background(), job))

	require.NoError(t, svc.handleJob(context.Background(), jobs.Job{ID: "job-a", Type: exportJobType}))

	finished, err := svc.Status(context.Background(), "job-a")
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFinished, finished.Status)
	assert.Equal(t, 100, finished.Progress)
	require.NotNil(t, finished.ResultURL)
	assert.Contains(t, *finished.ResultURL, "/api/v1/export/")

	token := (*finished.ResultURL)[len("/api/v1/export/"):]
	file, name, err := svc.Download(context.Background(), token)
	require.NoError(t, err)
	defer file.Close()
	assert.Contains(t, name, "audit-report-job-a.csv")
}

func TestExportJobFailureIsRecorded(t *testing.T) {
	store := &mockExportStore{}
	repo := &mockReportRepo{records: sampleReportRows(), total: 1}
	svc := newExportJobService(t, store, repo)

	job := &models.ExportJob{
		ID:     "job-b",
		Params: models.ExportJobParams{Filter: models.AuditFilter{}, Format: "xlsx"},
		Status: models.ExportStatusQueued,
	}
	require.NoError(t, store.Create(context.Background(), job))

	err := svc.handleJob(context.Background(), jobs.Job{ID: "job-b", Type: exportJobType})
	require.Error(t, err)

	failed, statusErr := svc.Status(context.Background(), "job-b")
	require.NoError(t, statusErr)
	assert.Equal(t, models.ExportStatusFailed, failed.Status)
	require.NotNil(t, failed.ErrorMessage)
}

func TestExportJobFinishedIsNotReprocessed(t *testing.T) {
	store := &mockExportStore{}
	repo := &mockReportRepo{records: sampleReportRows(), total: 1}
	svc := newExportJobService(t, store, repo)

	job := &models.ExportJob{
		ID:     "job-c",
		Params: models.ExportJobParams{Format: models.ExportFormatCSV},
		Status: models.ExportStatusFinished,
	}
	require.NoError(t, store.Create(context.Background(), job))

	require.NoError(t, svc.handleJob(context.Background(), jobs.Job{ID: "job-c", Type: exportJobType}))
	assert.Zero(t, repo.calls)
}

func TestExportJobEnqueueRejectsBadFormat(t *testing.T) {
	svc := newExportJobService(t, &mockExportStore{}, &mockReportRepo{})

	_, err := svc.Enqueue(context.Background(), models.AuditFilter{}, "xlsx", 1)
	require.Error(t, err)
}

func TestExportJobDownloadRejectsTamperedToken(t *testing.T) {
	svc := newExportJobService(t, &mockExportStore{}, &mockReportRepo{})

	_, _, err := svc.Download(context.Background(), "job.123.cGF0aA.deadbeef")
	require.Error(t, err)
}

func TestExportJobCleanupRemovesExpiredFiles(t *testing.T) {
	store := &mockExportStore{}
	repo := &mockReportRepo{records: sampleReportRows(), total: 1}
	svc := newExportJobService(t, store, repo)

	job := &models.ExportJob{
		ID:     "job-d",
		Params: models.ExportJobParams{Format: models.ExportFormatCSV},
		Status: models.ExportStatusQueued,
	}
	require.NoError(t, store.Create(context.Background(), job))
	require.NoError(t, svc.handleJob(context.Background(), jobs.Job{ID: "job-d", Type: exportJobType}))

	// push the finish time into the past so the retention window has lapsed
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.Update(context.Background(), "job-d", repository.UpdateExportJobParams{FinishedAt: &old}))

	require.NoError(t, svc.Cleanup(context.Background(), 24*time.Hour))

	cleaned, err := store.GetByID(context.Background(), "job-d")
	require.NoError(t, err)
	require.NotNil(t, cleaned.ResultURL)
	assert.Empty(t, *cleaned.ResultURL)
}
