package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/acmst-college/admission-api/internal/dto"
	"github.com/acmst-college/admission-api/internal/service"
	appErrors "github.com/acmst-college/admission-api/pkg/errors"
	"github.com/acmst-college/admission-api/pkg/response"
)

// WorkflowHandler wires the rule engine configuration endpoints.
type WorkflowHandler struct {
	service *service.WorkflowService
}

// NewWorkflowHandler creates a new handler.
func NewWorkflowHandler(svc *service.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{service: svc}
}

// Create godoc
// @Summary Define a workflow
// @Tags Workflows
// @Accept json
// @Produce json
// @Param payload body dto.CreateWorkflowRequest true "Workflow payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /workflows [post]
func (h *WorkflowHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid workflow payload"))
		return
	}
	workflow, err := h.service.CreateWorkflow(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, workflow)
}

// List godoc
// @Summary List workflows
// @Tags Workflows
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /workflows [get]
func (h *WorkflowHandler) List(c *gin.Context) {
	workflows, err := h.service.ListWorkflows(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, workflows, nil)
}

// SetActive godoc
// @Summary Enable or disable a workflow
// @Tags Workflows
// @Produce json
// @Param id path string true "Workflow ID"
// @Param active query bool true "Desired state"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /workflows/{id}/active [put]
func (h *WorkflowHandler) SetActive(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	active, err := strconv.ParseBool(c.Query("active"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "active must be true or false"))
		return
	}
	if err := h.service.SetWorkflowActive(c.Request.Context(), c.Param("id"), active, claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AddRule godoc
// @Summary Add a rule to a workflow
// @Tags Workflows
// @Accept json
// @Produce json
// @Param id path string true "Workflow ID"
// @Param payload body dto.CreateRuleRequest true "Rule payload"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /workflows/{id}/rules [post]
func (h *WorkflowHandler) AddRule(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid rule payload"))
		return
	}
	rule, err := h.service.AddRule(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, rule)
}

// ListRules godoc
// @Summary Rules of one workflow in priority order
// @Tags Workflows
// @Produce json
// @Param id path string true "Workflow ID"
// @Success 200 {object} response.Envelope
// @Router /workflows/{id}/rules [get]
func (h *WorkflowHandler) ListRules(c *gin.Context) {
	rules, err := h.service.ListRules(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rules, nil)
}

// SetRuleActive godoc
// @Summary Enable or disable a rule
// @Tags Workflows
// @Produce json
// @Param id path string true "Rule ID"
// @Param active query bool true "Desired state"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /rules/{id}/active [put]
func (h *WorkflowHandler) SetRuleActive(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	active, err := strconv.ParseBool(c.Query("active"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "active must be true or false"))
		return
	}
	if err := h.service.SetRuleActive(c.Request.Context(), c.Param("id"), active, claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DeleteRule godoc
// @Summary Delete a rule
// @Tags Workflows
// @Produce json
// @Param id path string true "Rule ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /rules/{id} [delete]
func (h *WorkflowHandler) DeleteRule(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.DeleteRule(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Execute godoc
// @Summary Evaluate active rules against one admission file
// @Tags Workflows
// @Accept json
// @Produce json
// @Param payload body dto.ExecuteWorkflowRequest true "Target file"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /workflows/execute [post]
func (h *WorkflowHandler) Execute(c *gin.Context) {
	var req dto.ExecuteWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid execution payload"))
		return
	}
	if req.AdmissionFileID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "admissionFileId is required"))
		return
	}
	result, err := h.service.Execute(c.Request.Context(), req.AdmissionFileID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ProcessTimeouts godoc
// @Summary Run the timeout sweep immediately
// @Tags Workflows
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /workflows/timeouts/process [post]
func (h *WorkflowHandler) ProcessTimeouts(c *gin.Context) {
	result, err := h.service.ProcessTimeouts(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
