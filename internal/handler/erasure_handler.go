package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/openlms/enrol-audit-api/internal/service"
	appErrors "github.com/openlms/enrol-audit-api/pkg/errors"
	"github.com/openlms/enrol-audit-api/pkg/response"
)

// ErasureHandler serves privacy deletion requests from the platform's data
// protection tooling.
type ErasureHandler struct {
	erasure *service.ErasureService
}

// NewErasureHandler constructs handler.
func NewErasureHandler(erasure *service.ErasureService) *ErasureHandler {
	return &ErasureHandler{erasure: erasure}
}

type erasureResult struct {
	RowsDeleted int64 `json:"rows_deleted"`
}

// EraseCourse godoc
// @Summary Erase all audit records in a course
// @Tags Privacy
// @Produce json
// @Param courseId path int true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /privacy/courses/{courseId} [delete]
func (h *ErasureHandler) EraseCourse(c *gin.Context) {
	courseID, err := pathInt64(c, "courseId")
	if err != nil {
		response.Error(c, err)
		return
	}
	affected, err := h.erasure.EraseCourse(c.Request.Context(), courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, erasureResult{RowsDeleted: affected}, nil)
}

// EraseCourseUsers godoc
// @Summary Erase a course's audit records for specific users
// @Tags Privacy
// @Accept json
// @Produce json
// @Param courseId path int true "Course ID"
// @Param request body service.EraseUsersRequest true "Users to erase"
// @Success 200 {object} response.Envelope
// @Router /privacy/courses/{courseId}/erasures [post]
func (h *ErasureHandler) EraseCourseUsers(c *gin.Context) {
	courseID, err := pathInt64(c, "courseId")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.EraseUsersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid erasure payload"))
		return
	}
	affected, err := h.erasure.EraseCourseUsers(c.Request.Context(), courseID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, erasureResult{RowsDeleted: affected}, nil)
}

func pathInt64(c *gin.Context, name string) (int64, error) {
	value, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || value <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, name+" must be a positive integer")
	}
	return value, nil
}
