package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/acmst-college/admission-api/internal/dto"
	"github.com/acmst-college/admission-api/internal/models"
	"github.com/acmst-college/admission-api/internal/service"
	appErrors "github.com/acmst-college/admission-api/pkg/errors"
	"github.com/acmst-college/admission-api/pkg/response"
)

// ConditionHandler wires the coordinator condition endpoints.
type ConditionHandler struct {
	service *service.ConditionService
}

// NewConditionHandler creates a new handler.
func NewConditionHandler(svc *service.ConditionService) *ConditionHandler {
	return &ConditionHandler{service: svc}
}

// Create godoc
// @Summary Add a condition to a file under coordinator review
// @Tags Conditions
// @Accept json
// @Produce json
// @Param id path string true "Admission file ID"
// @Param payload body dto.ConditionPayload true "Condition payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admissions/{id}/conditions [post]
func (h *ConditionHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload dto.ConditionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid condition payload"))
		return
	}
	condition, err := h.service.Create(c.Request.Context(), c.Param("id"), claims.UserID, payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, condition)
}

// ListByFile godoc
// @Summary Conditions of one admission file
// @Tags Conditions
// @Produce json
// @Param id path string true "Admission file ID"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id}/conditions [get]
func (h *ConditionHandler) ListByFile(c *gin.Context) {
	conditions, err := h.service.ListByFile(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conditions, nil)
}

// Summary godoc
// @Summary Condition counters for one admission file
// @Tags Conditions
// @Produce json
// @Param id path string true "Admission file ID"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id}/conditions/summary [get]
func (h *ConditionHandler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Complete godoc
// @Summary Mark a condition as fulfilled
// @Description Completes the condition; when it was the last pending one the file advances automatically
// @Tags Conditions
// @Accept json
// @Produce json
// @Param id path string true "Condition ID"
// @Param payload body dto.ResolveConditionRequest false "Resolution notes"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /conditions/{id}/complete [post]
func (h *ConditionHandler) Complete(c *gin.Context) {
	h.resolve(c, h.service.Complete)
}

// Reject godoc
// @Summary Mark a condition as failed
// @Tags Conditions
// @Accept json
// @Produce json
// @Param id path string true "Condition ID"
// @Param payload body dto.ResolveConditionRequest false "Resolution notes"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /conditions/{id}/reject [post]
func (h *ConditionHandler) Reject(c *gin.Context) {
	h.resolve(c, h.service.Reject)
}

// Reset godoc
// @Summary Reopen an overdue condition
// @Description Returns an overdue condition to pending so it can still be fulfilled
// @Tags Conditions
// @Produce json
// @Param id path string true "Condition ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /conditions/{id}/reset [post]
func (h *ConditionHandler) Reset(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	condition, err := h.service.ResetToPending(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, condition, nil)
}

func (h *ConditionHandler) resolve(c *gin.Context, fn func(ctx context.Context, id, userID string, req dto.ResolveConditionRequest) (*models.CoordinatorCondition, error)) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ResolveConditionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid resolution payload"))
			return
		}
	}
	condition, err := fn(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, condition, nil)
}
