package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlms/enrol-audit-api/internal/models"
	"github.com/openlms/enrol-audit-api/internal/service"
)

type fakeReportRepo struct {
	lastFilter models.AuditFilter
	records    []models.AuditRecordDetail
	total      int
}

func (f *fakeReportRepo) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditRecordDetail, int, error) {
	f.lastFilter = filter
	return f.records, f.total, nil
}

func newReportHandler(repo *fakeReportRepo) *ReportHandler {
	return NewReportHandler(service.NewReportService(repo, nil, nil, time.Minute, false, nil))
}

func TestReportHandlerListParsesFilters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &fakeReportRepo{
		records: []models.AuditRecordDetail{{
			AuditRecord: models.AuditRecord{ID: 1, EnrolmentID: 7, CourseID: 2, ChangeKind: models.ChangeCreated, Status: models.EnrolmentStatusActive},
			CourseName:  "Course 101",
		}},
		total: 1,
	}
	h := newReportHandler(repo)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet,
		"/audit-records?courseId=2&firstname=ali&from=2026-01-01T00:00:00Z&page=2&pageSize=10&sortBy=observed_at&sortOrder=asc", nil)

	h.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), repo.lastFilter.CourseID)
	assert.Equal(t, "ali", repo.lastFilter.FirstName)
	require.NotNil(t, repo.lastFilter.From)
	assert.Equal(t, 2, repo.lastFilter.Page)
	assert.Equal(t, 10, repo.lastFilter.PageSize)
	assert.Equal(t, "asc", repo.lastFilter.SortOrder)

	var envelope struct {
		Data       []models.AuditRecordDetail `json:"data"`
		Pagination *models.Pagination         `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 1)
	require.NotNil(t, envelope.Pagination)
	assert.Equal(t, 1, envelope.Pagination.TotalCount)
}

func TestReportHandlerListRejectsBadCourseID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newReportHandler(&fakeReportRepo{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/audit-records?courseId=abc", nil)

	h.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportHandlerListRejectsBadTimestamp(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newReportHandler(&fakeReportRepo{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/audit-records?from=yesterday", nil)

	h.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
