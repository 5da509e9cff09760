package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/openlms/enrol-audit-api/internal/models"
	"github.com/openlms/enrol-audit-api/internal/service"
	appErrors "github.com/openlms/enrol-audit-api/pkg/errors"
	"github.com/openlms/enrol-audit-api/pkg/response"
)

// ExportHandler exposes async report exports and their downloads.
type ExportHandler struct {
	exports *service.ExportJobService
}

// NewExportHandler constructs handler.
func NewExportHandler(exports *service.ExportJobService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

type createExportRequest struct {
	Filter models.AuditFilter  `json:"filter"`
	Format models.ExportFormat `json:"format"`
}

// Create godoc
// @Summary Queue an audit report export
// @Tags Exports
// @Accept json
// @Produce json
// @Param request body createExportRequest true "Export parameters"
// @Success 202 {object} response.Envelope
// @Router /audit-records/exports [post]
func (h *ExportHandler) Create(c *gin.Context) {
	var req createExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload"))
		return
	}
	var createdBy int64
	if claims := claimsFromContext(c); claims != nil {
		createdBy = claims.UserID
	}
	job, err := h.exports.Enqueue(c.Request.Context(), req.Filter, req.Format, createdBy)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// Status godoc
// @Summary Export job status
// @Tags Exports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /audit-records/exports/{id} [get]
func (h *ExportHandler) Status(c *gin.Context) {
	job, err := h.exports.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Download godoc
// @Summary Download a finished export
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Router /export/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	file, name, err := h.exports.Download(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export file"))
		return
	}

	contentType := "application/octet-stream"
	switch {
	case strings.HasSuffix(name, ".csv"):
		contentType = "text/csv"
	case strings.HasSuffix(name, ".pdf"):
		contentType = "application/pdf"
	}
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
}
