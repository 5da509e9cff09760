package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openlms/enrol-audit-api/internal/models"
	"github.com/openlms/enrol-audit-api/internal/service"
	appErrors "github.com/openlms/enrol-audit-api/pkg/errors"
	"github.com/openlms/enrol-audit-api/pkg/response"
)

// ReportHandler exposes the audit report.
type ReportHandler struct {
	reports *service.ReportService
}

// NewReportHandler constructs handler.
func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// List godoc
// @Summary Browse the enrolment audit report
// @Tags Reports
// @Produce json
// @Param courseId query int false "Course ID"
// @Param userId query int false "User ID"
// @Param firstname query string false "Filter by user first name"
// @Param lastname query string false "Filter by user last name"
// @Param course query string false "Filter by course name"
// @Param from query string false "RFC3339 lower bound"
// @Param to query string false "RFC3339 upper bound"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Param sortBy query string false "observed_at | user_name | course_name"
// @Param sortOrder query string false "asc | desc"
// @Success 200 {object} response.Envelope
// @Router /audit-records [get]
func (h *ReportHandler) List(c *gin.Context) {
	filter, err := parseAuditFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	page, err := h.reports.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, page.Records, &page.Pagination)
}

func parseAuditFilter(c *gin.Context) (models.AuditFilter, error) {
	filter := models.AuditFilter{
		FirstName:  c.Query("firstname"),
		LastName:   c.Query("lastname"),
		CourseName: c.Query("course"),
		SortBy:     c.Query("sortBy"),
		SortOrder:  c.Query("sortOrder"),
	}

	var err error
	if filter.CourseID, err = queryInt64(c, "courseId"); err != nil {
		return filter, err
	}
	if filter.UserID, err = queryInt64(c, "userId"); err != nil {
		return filter, err
	}

	page, err := queryInt64(c, "page")
	if err != nil {
		return filter, err
	}
	filter.Page = int(page)
	size, err := queryInt64(c, "pageSize")
	if err != nil {
		return filter, err
	}
	filter.PageSize = int(size)

	if filter.From, err = queryTime(c, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = queryTime(c, "to"); err != nil {
		return filter, err
	}
	return filter, nil
}

func queryInt64(c *gin.Context, name string) (int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, name+" must be a non-negative integer")
	}
	return value, nil
}

func queryTime(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, name+" must be an RFC3339 timestamp")
	}
	return &value, nil
}
