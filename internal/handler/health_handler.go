package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/acmst-college/admission-api/internal/dto"
	"github.com/acmst-college/admission-api/internal/service"
	appErrors "github.com/acmst-college/admission-api/pkg/errors"
	"github.com/acmst-college/admission-api/pkg/response"
)

// HealthCheckHandler wires the medical examination endpoints.
type HealthCheckHandler struct {
	service *service.HealthService
}

// NewHealthCheckHandler creates a new handler.
func NewHealthCheckHandler(svc *service.HealthService) *HealthCheckHandler {
	return &HealthCheckHandler{service: svc}
}

// Create godoc
// @Summary Record a medical examination
// @Description Create a draft health check for an admission file under medical review
// @Tags Health Checks
// @Accept json
// @Produce json
// @Param id path string true "Admission file ID"
// @Param payload body dto.HealthCheckRequest true "Examination payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admissions/{id}/health-checks [post]
func (h *HealthCheckHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.HealthCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid examination payload"))
		return
	}
	check, err := h.service.Create(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, check)
}

// ListByFile godoc
// @Summary Health checks of one admission file
// @Tags Health Checks
// @Produce json
// @Param id path string true "Admission file ID"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id}/health-checks [get]
func (h *HealthCheckHandler) ListByFile(c *gin.Context) {
	checks, err := h.service.ListByFile(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, checks, nil)
}

// Get godoc
// @Summary Health check detail
// @Tags Health Checks
// @Produce json
// @Param id path string true "Health check ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /health-checks/{id} [get]
func (h *HealthCheckHandler) Get(c *gin.Context) {
	check, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, check, nil)
}

// Update godoc
// @Summary Update a draft health check
// @Tags Health Checks
// @Accept json
// @Produce json
// @Param id path string true "Health check ID"
// @Param payload body dto.HealthCheckRequest true "Examination payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /health-checks/{id} [put]
func (h *HealthCheckHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.HealthCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid examination payload"))
		return
	}
	check, err := h.service.Update(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, check, nil)
}

// Submit godoc
// @Summary Submit a health check for approval
// @Tags Health Checks
// @Produce json
// @Param id path string true "Health check ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /health-checks/{id}/submit [post]
func (h *HealthCheckHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	check, err := h.service.Submit(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, check, nil)
}

// Approve godoc
// @Summary Approve a health check
// @Description Approves the examination and cascades medical clearance onto the admission file
// @Tags Health Checks
// @Accept json
// @Produce json
// @Param id path string true "Health check ID"
// @Param payload body dto.DecisionRequest false "Decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /health-checks/{id}/approve [post]
func (h *HealthCheckHandler) Approve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.DecisionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
			return
		}
	}
	check, err := h.service.Approve(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, check, nil)
}

// Reset godoc
// @Summary Reopen a rejected health check
// @Description Returns a rejected examination to draft for correction and resubmission
// @Tags Health Checks
// @Produce json
// @Param id path string true "Health check ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /health-checks/{id}/reset [post]
func (h *HealthCheckHandler) Reset(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	check, err := h.service.Reset(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, check, nil)
}

// Reject godoc
// @Summary Reject a health check
// @Tags Health Checks
// @Produce json
// @Param id path string true "Health check ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /health-checks/{id}/reject [post]
func (h *HealthCheckHandler) Reject(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	check, err := h.service.Reject(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, check, nil)
}
