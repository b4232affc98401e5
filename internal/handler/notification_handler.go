package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/acmst-college/admission-api/internal/dto"
	"github.com/acmst-college/admission-api/internal/models"
	"github.com/acmst-college/admission-api/internal/service"
	appErrors "github.com/acmst-college/admission-api/pkg/errors"
	"github.com/acmst-college/admission-api/pkg/response"
)

// NotificationHandler wires the notification queue endpoints.
type NotificationHandler struct {
	service *service.NotificationService
}

// NewNotificationHandler creates a new handler.
func NewNotificationHandler(svc *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: svc}
}

// List godoc
// @Summary List queued notifications
// @Tags Notifications
// @Produce json
// @Param state query string false "Comma separated state filter"
// @Param priority query string false "Priority filter"
// @Param record_id query string false "Record filter"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	query := dto.PendingEmailQuery{
		Priority: models.EmailPriority(c.Query("priority")),
		RecordID: c.Query("record_id"),
	}
	if states := c.Query("state"); states != "" {
		for _, raw := range strings.Split(states, ",") {
			query.States = append(query.States, models.PendingEmailState(strings.TrimSpace(raw)))
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		query.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		query.PageSize = size
	}

	emails, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, emails, nil)
}

// Summary godoc
// @Summary Notification queue counters
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications/summary [get]
func (h *NotificationHandler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Retry godoc
// @Summary Attempt delivery of one queued notification now
// @Tags Notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /notifications/{id}/retry [post]
func (h *NotificationHandler) Retry(c *gin.Context) {
	if err := h.service.Attempt(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Cancel godoc
// @Summary Withdraw a pending notification
// @Tags Notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /notifications/{id} [delete]
func (h *NotificationHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Cancel(c.Request.Context(), c.Param("id"), &claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Reset godoc
// @Summary Re-arm a failed notification for another retry round
// @Tags Notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /notifications/{id}/reset [post]
func (h *NotificationHandler) Reset(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Reset(c.Request.Context(), c.Param("id"), &claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Sweep godoc
// @Summary Run the retry sweep immediately
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications/sweep [post]
func (h *NotificationHandler) Sweep(c *gin.Context) {
	result, err := h.service.RetrySweep(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
