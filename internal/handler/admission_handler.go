package handler

import (
	"context"
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

// AdmissionHandler wires the admission pipeline endpoints.
type AdmissionHandler struct {
	service *service.AdmissionService
}

// NewAdmissionHandler creates a new handler.
func NewAdmissionHandler(svc *service.AdmissionService) *AdmissionHandler {
	return &AdmissionHandler{service: svc}
}

// Create godoc
// @Summary Register admission application
// @Description Create a new admission file in draft state
// @Tags Admissions
// @Accept json
// @Produce json
// @Param payload body dto.CreateAdmissionRequest true "Application payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admissions [post]
func (h *AdmissionHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateAdmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid application payload"))
		return
	}
	file, err := h.service.Create(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, file)
}

// List godoc
// @Summary List admission files
// @Tags Admissions
// @Produce json
// @Param state query string false "Comma separated state filter"
// @Param programId query string false "Program filter"
// @Param batchId query string false "Batch filter"
// @Param coordinatorId query string false "Coordinator filter"
// @Param search query string false "Name, national id or file number search"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admissions [get]
func (h *AdmissionHandler) List(c *gin.Context) {
	query := dto.AdmissionQuery{
		ProgramID:     c.Query("programId"),
		BatchID:       c.Query("batchId"),
		CoordinatorID: c.Query("coordinatorId"),
		Search:        c.Query("search"),
	}
	if states := c.Query("state"); states != "" {
		for _, raw := range strings.Split(states, ",") {
			state := models.AdmissionState(strings.TrimSpace(raw))
			if !state.Valid() {
				response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown state filter: "+raw))
				return
			}
			query.States = append(query.States, state)
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		query.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		query.PageSize = size
	}

	files, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, files, pagination)
}

// Get godoc
// @Summary Admission file detail
// @Tags Admissions
// @Produce json
// @Param id path string true "Admission file ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admissions/{id} [get]
func (h *AdmissionHandler) Get(c *gin.Context) {
	detail, err := h.service.Detail(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Approvals godoc
// @Summary Decision history of an admission file
// @Tags Admissions
// @Produce json
// @Param id path string true "Admission file ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admissions/{id}/approvals [get]
func (h *AdmissionHandler) Approvals(c *gin.Context) {
	records, err := h.service.Approvals(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Update godoc
// @Summary Correct applicant data
// @Description Update applicant data while the file is still editable
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Admission file ID"
// @Param payload body dto.UpdateAdmissionRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admissions/{id} [put]
func (h *AdmissionHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UpdateAdmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid update payload"))
		return
	}
	file, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, file, nil)
}

// Submit godoc
// @Summary Submit application for review
// @Description Validates completeness, assigns the file number and moves the file to ministry review
// @Tags Admissions
// @Produce json
// @Param id path string true "Admission file ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /admissions/{id}/submit [post]
func (h *AdmissionHandler) Submit(c *gin.Context) {
	h.transition(c, h.service.Submit)
}

// MinistryApprove godoc
// @Summary Ministry approval
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Admission file ID"
// @Param payload body dto.DecisionRequest false "Decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admissions/{id}/ministry/approve [post]
func (h *AdmissionHandler) MinistryApprove(c *gin.Context) {
	h.decision(c, h.service.MinistryApprove)
}

// MinistryReject godoc
// @Summary Ministry rejection
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Admission file ID"
// @Param payload body dto.DecisionRequest true "Decision with reason"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admissions/{id}/ministry/reject [post]
func (h *AdmissionHandler) MinistryReject(c *gin.Context) {
	h.decision(c, h.service.MinistryReject)
}

// DispatchToHealth godoc
// @Summary Send file to medical examination
// @Tags Admissions
// @Produce json
// @Param id path string true "Admission file ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admissions/{id}/health/dispatch [post]
func (h *AdmissionHandler) DispatchToHealth(c *gin.Context) {
	h.transition(c, h.service.DispatchToHealth)
}

// HealthApprove godoc
// @Summary Medical clearance
// @Description Approves the medical examination and forwards the file straight to coordinator review
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Admission file ID"
// @Param payload body dto.DecisionRequest false "Decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admissions/{id}/health/approve [post]
func (h *AdmissionHandler) HealthApprove(c *gin.Context) {
	h.decision(c, h.service.HealthApprove)
}

// HealthReject godoc
// @Summary Medical rejection
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Admission file ID"
// @Param payload body dto.DecisionRequest true "Decision with reason"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admissions/{id}/health/reject [post]
func (h *AdmissionHandler) HealthReject(c *gin.Context) {
	h.decision(c, h.service.HealthReject)
}

// ReenterCoordinatorReview godoc
// @Summary Return a conditional file to coordinator review
// @Tags Admissions
// @Produce json
// @Param id path string true "Admission file ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admissions/{id}/coordinator/reenter [post]
func (h *AdmissionHandler) ReenterCoordinatorReview(c *gin.Context) {
	h.transition(c, h.service.ReenterCoordinatorReview)
}

// CoordinatorApprove godoc
// @Summary Coordinator academic approval
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Admission file ID"
// @Param payload body dto.DecisionRequest false "Decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admissions/{id}/coordinator/approve [post]
func (h *AdmissionHandler) CoordinatorApprove(c *gin.Context) {
	h.decision(c, h.service.CoordinatorApprove)
}

// CoordinatorReject godoc
// @Summary Coordinator rejection
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Admission file ID"
// @Param payload body dto.DecisionRequest true "Decision with reason"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admissions/{id}/coordinator/reject [post]
func (h *AdmissionHandler) CoordinatorReject(c *gin.Context) {
	h.decision(c, h.service.CoordinatorReject)
}

// CoordinatorConditional godoc
// @Summary Conditional approval with prerequisites
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Admission file ID"
// @Param payload body dto.ConditionalApprovalRequest true "Level and conditions"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /admissions/{id}/coordinator/conditional [post]
func (h *AdmissionHandler) CoordinatorConditional(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ConditionalApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid conditional approval payload"))
		return
	}
	file, err := h.service.CoordinatorConditional(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, file, nil)
}

// EscalateToManager godoc
// @Summary Forward approved file to manager review
// @Tags Admissions
// @Produce json
// @Param id path string true "Admission file ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admissions/{id}/manager/escalate [post]
func (h *AdmissionHandler) EscalateToManager(c *gin.Context) {
	h.transition(c, h.service.EscalateToManager)
}

// ManagerApprove godoc
// @Summary Final manager approval
// @Description Grants final approval and completes the file, creating the student record
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Admission file ID"
// @Param payload body dto.DecisionRequest false "Decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admissions/{id}/manager/approve [post]
func (h *AdmissionHandler) ManagerApprove(c *gin.Context) {
	h.decision(c, h.service.ManagerApprove)
}

// ManagerReject godoc
// @Summary Manager rejection
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Admission file ID"
// @Param payload body dto.DecisionRequest true "Decision with reason"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admissions/{id}/manager/reject [post]
func (h *AdmissionHandler) ManagerReject(c *gin.Context) {
	h.decision(c, h.service.ManagerReject)
}

// Complete godoc
// @Summary Complete a manager-approved file
// @Description Recovery path when completion during manager approval failed; re-runs final validation and creates the student record
// @Tags Admissions
// @Produce json
// @Param id path string true "Admission file ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /admissions/{id}/complete [post]
func (h *AdmissionHandler) Complete(c *gin.Context) {
	h.transition(c, h.service.Complete)
}

// Cancel godoc
// @Summary Cancel an admission file
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Admission file ID"
// @Param payload body dto.CancelRequest true "Cancellation reason"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admissions/{id}/cancel [post]
func (h *AdmissionHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "cancellation reason required"))
		return
	}
	file, err := h.service.Cancel(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, file, nil)
}

// Revalidate godoc
// @Summary Re-run completeness checks
// @Tags Admissions
// @Produce json
// @Param id path string true "Admission file ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admissions/{id}/revalidate [get]
func (h *AdmissionHandler) Revalidate(c *gin.Context) {
	result, err := h.service.Revalidate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

func (h *AdmissionHandler) transition(c *gin.Context, fn func(ctx context.Context, id, userID string) (*models.AdmissionFile, error)) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	file, err := fn(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, file, nil)
}

func (h *AdmissionHandler) decision(c *gin.Context, fn func(ctx context.Context, id, userID string, req dto.DecisionRequest) (*models.AdmissionFile, error)) {
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
	file, err := fn(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, file, nil)
}
