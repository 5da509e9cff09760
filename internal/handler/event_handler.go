package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/openlms/enrol-audit-api/internal/models"
	"github.com/openlms/enrol-audit-api/internal/service"
	appErrors "github.com/openlms/enrol-audit-api/pkg/errors"
	"github.com/openlms/enrol-audit-api/pkg/response"
)

// EventHandler receives enrolment lifecycle notifications from the platform.
type EventHandler struct {
	recorder *service.RecorderService
}

// NewEventHandler constructs handler.
func NewEventHandler(recorder *service.RecorderService) *EventHandler {
	return &EventHandler{recorder: recorder}
}

// Ingest godoc
// @Summary Record an enrolment lifecycle event
// @Tags Events
// @Accept json
// @Produce json
// @Param event body models.LifecycleEvent true "Lifecycle event"
// @Success 201 {object} response.Envelope
// @Router /enrolment-events [post]
func (h *EventHandler) Ingest(c *gin.Context) {
	var event models.LifecycleEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload"))
		return
	}
	record, err := h.recorder.Record(c.Request.Context(), event)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}
