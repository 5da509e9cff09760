package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlms/enrol-audit-api/internal/models"
	appErrors "github.com/openlms/enrol-audit-api/pkg/errors"
)

type mockReportRepo struct {
	records []models.AuditRecordDetail
	total   int
	calls   int
}

func (m *mockReportRepo) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditRecordDetail, int, error) {
	m.calls++
	return m.records, m.total, nil
}

type mockReportCache struct {
	values map[string][]byte
}

func (m *mockReportCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockReportCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if m.values == nil {
		m.values = make(map[string][]byte)
	}
	m.values[key] = raw
	return nil
}

func (m *mockReportCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.values = nil
	return nil
}

func sampleReportRows() []models.AuditRecordDetail {
	return []models.AuditRecordDetail{{
		AuditRecord: models.AuditRecord{
			ID: 1, EnrolmentID: 7, CourseID: 2, SubjectUserID: 3, ActorUserID: 4,
			ChangeKind: models.ChangeCreated, Status: models.EnrolmentStatusActive,
			ObservedAt: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC),
		},
		UserFirstName: "Alice", UserLastName: "Archer",
		ActorName: "Bob Builder", CourseName: "Course 101",
	}}
}

func TestReportServiceListServesFromCacheOnRepeat(t *testing.T) {
	repo := &mockReportRepo{records: sampleReportRows(), total: 1}
	cache := &mockReportCache{}
	svc := NewReportService(repo, cache, nil, time.Minute, true, nil)

	filter := models.AuditFilter{CourseID: 2}
	first, err := svc.List(context.Background(), filter)
	require.NoError(t, err)
	require.Len(t, first.Records, 1)
	assert.Equal(t, 1, repo.calls)

	second, err := svc.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.calls)
	assert.Equal(t, first.Pagination, second.Pagination)
	assert.Equal(t, first.Records[0].ID, second.Records[0].ID)
}

func TestReportServiceListWithCacheDisabled(t *testing.T) {
	repo := &mockReportRepo{records: sampleReportRows(), total: 1}
	svc := NewReportService(repo, nil, nil, time.Minute, true, nil)

	filter := models.AuditFilter{CourseID: 2}
	_, err := svc.List(context.Background(), filter)
	require.NoError(t, err)
	_, err = svc.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestReportServiceInvalidateDropsCachedPages(t *testing.T) {
	repo := &mockReportRepo{records: sampleReportRows(), total: 1}
	cache := &mockReportCache{}
	svc := NewReportService(repo, cache, nil, time.Minute, true, nil)

	filter := models.AuditFilter{CourseID: 2}
	_, err := svc.List(context.Background(), filter)
	require.NoError(t, err)
	require.NotEmpty(t, cache.values)

	svc.Invalidate(context.Background())
	assert.Empty(t, cache.values)

	_, err = svc.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestReportServicePaginationDefaults(t *testing.T) {
	repo := &mockReportRepo{records: nil, total: 0}
	svc := NewReportService(repo, nil, nil, time.Minute, false, nil)

	page, err := svc.List(context.Background(), models.AuditFilter{})
	require.NoError(t, err)
	assert.NotNil(t, page.Records)
	assert.Equal(t, 1, page.Pagination.Page)
	assert.Equal(t, 20, page.Pagination.PageSize)
}
