package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlms/enrol-audit-api/internal/models"
	"github.com/openlms/enrol-audit-api/internal/service"
)

type fakeAuditWriter struct {
	rows   []models.AuditRecord
	nextID int64
}

func (f *fakeAuditWriter) Insert(ctx context.Context, record *models.AuditRecord) error {
	f.nextID++
	record.ID = f.nextID
	f.rows = append(f.rows, *record)
	return nil
}

func (f *fakeAuditWriter) Latest(ctx context.Context, enrolmentID int64) (*models.AuditRecord, error) {
	for i := len(f.rows) - 1; i >= 0; i-- {
		if f.rows[i].EnrolmentID == enrolmentID {
			row := f.rows[i]
			return &row, nil
		}
	}
	return nil, sql.ErrNoRows
}

func TestEventHandlerIngestCreated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	writer := &fakeAuditWriter{}
	h := NewEventHandler(service.NewRecorderService(writer, nil, nil, nil))

	body, _ := json.Marshal(models.LifecycleEvent{
		Type: models.LifecycleCreated, EnrolmentID: 7, CourseID: 2, UserID: 3, ActorUserID: 4,
		Status: models.EnrolmentStatusActive,
	})
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/enrolment-events", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Ingest(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, writer.rows, 1)
	assert.Equal(t, models.ChangeCreated, writer.rows[0].ChangeKind)
}

func TestEventHandlerIngestRejectsMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewEventHandler(service.NewRecorderService(&fakeAuditWriter{}, nil, nil, nil))

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/enrolment-events", bytes.NewReader([]byte("{not json")))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Ingest(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventHandlerIngestRejectsUnknownType(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewEventHandler(service.NewRecorderService(&fakeAuditWriter{}, nil, nil, nil))

	body, _ := json.Marshal(models.LifecycleEvent{
		Type: "archived", EnrolmentID: 7, CourseID: 2, UserID: 3,
	})
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/enrolment-events", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Ingest(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
