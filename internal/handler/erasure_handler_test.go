package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlms/enrol-audit-api/internal/service"
)

type fakeEraser struct {
	courseID int64
	userIDs  []int64
	affected int64
}

func (f *fakeEraser) DeleteByCourse(ctx context.Context, courseID int64) (int64, error) {
	f.courseID = courseID
	return f.affected, nil
}

func (f *fakeEraser) DeleteByCourseUsers(ctx context.Context, courseID int64, userIDs []int64) (int64, error) {
	f.courseID = courseID
	f.userIDs = userIDs
	return f.affected, nil
}

func TestErasureHandlerEraseCourse(t *testing.T) {
	gin.SetMode(gin.TestMode)
	eraser := &fakeEraser{affected: 3}
	h := NewErasureHandler(service.NewErasureService(eraser, nil, nil, nil))

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodDelete, "/privacy/courses/2", nil)
	c.Params = gin.Params{{Key: "courseId", Value: "2"}}

	h.EraseCourse(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), eraser.courseID)
	assert.Contains(t, rec.Body.String(), `"rows_deleted":3`)
}

func TestErasureHandlerEraseCourseRejectsBadID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewErasureHandler(service.NewErasureService(&fakeEraser{}, nil, nil, nil))

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodDelete, "/privacy/courses/zero", nil)
	c.Params = gin.Params{{Key: "courseId", Value: "zero"}}

	h.EraseCourse(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErasureHandlerEraseCourseUsers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	eraser := &fakeEraser{affected: 2}
	h := NewErasureHandler(service.NewErasureService(eraser, nil, nil, nil))

	body, _ := json.Marshal(service.EraseUsersRequest{UserIDs: []int64{3, 4}})
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/privacy/courses/2/erasures", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "courseId", Value: "2"}}

	h.EraseCourseUsers(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{3, 4}, eraser.userIDs)
}

func TestErasureHandlerEraseCourseUsersRejectsEmptyList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewErasureHandler(service.NewErasureService(&fakeEraser{}, nil, nil, nil))

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/privacy/courses/2/erasures", bytes.NewReader([]byte(`{"user_ids":[]}`)))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "courseId", Value: "2"}}

	h.EraseCourseUsers(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
