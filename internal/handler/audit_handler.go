package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/acmst-college/admission-api/internal/dto"
	"github.com/acmst-college/admission-api/internal/models"
	"github.com/acmst-college/admission-api/internal/service"
	appErrors "github.com/acmst-college/admission-api/pkg/errors"
	"github.com/acmst-college/admission-api/pkg/response"
)

// AuditHandler wires the audit trail and export endpoints.
type AuditHandler struct {
	service *service.AuditService
	exports *service.ExportService
}

// NewAuditHandler creates a new handler.
func NewAuditHandler(svc *service.AuditService, exports *service.ExportService) *AuditHandler {
	return &AuditHandler{service: svc, exports: exports}
}

// Trail godoc
// @Summary History of one record
// @Tags Audit
// @Produce json
// @Param model path string true "Model name"
// @Param id path string true "Record ID"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /audit/trail/{model}/{id} [get]
func (h *AuditHandler) Trail(c *gin.Context) {
	page, size := paginationParams(c)
	entries, err := h.service.Trail(c.Request.Context(), c.Param("model"), c.Param("id"), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// FileTrail godoc
// @Summary History of one admission file
// @Tags Audit
// @Produce json
// @Param id path string true "Admission file ID"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id}/audit [get]
func (h *AuditHandler) FileTrail(c *gin.Context) {
	page, size := paginationParams(c)
	entries, err := h.service.Trail(c.Request.Context(), "admission_file", c.Param("id"), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// UserActivity godoc
// @Summary Everything one user did
// @Tags Audit
// @Produce json
// @Param id path string true "User ID"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /audit/users/{id} [get]
func (h *AuditHandler) UserActivity(c *gin.Context) {
	page, size := paginationParams(c)
	entries, err := h.service.UserActivity(c.Request.Context(), c.Param("id"), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Query godoc
// @Summary Query the audit trail
// @Tags Audit
// @Produce json
// @Param model query string false "Model filter"
// @Param record_id query string false "Record filter"
// @Param user_id query string false "User filter"
// @Param category query string false "Category filter"
// @Param action query string false "Comma separated action filter"
// @Param from query string false "Range start (RFC3339)"
// @Param to query string false "Range end (RFC3339)"
// @Success 200 {object} response.Envelope
// @Router /audit [get]
func (h *AuditHandler) Query(c *gin.Context) {
	query, err := auditQueryFromRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	entries, err := h.service.Query(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// SecurityViolations godoc
// @Summary Security events within a range
// @Tags Audit
// @Produce json
// @Param from query string false "Range start (RFC3339)"
// @Param to query string false "Range end (RFC3339)"
// @Param limit query int false "Max entries"
// @Success 200 {object} response.Envelope
// @Router /audit/security [get]
func (h *AuditHandler) SecurityViolations(c *gin.Context) {
	from, to, err := rangeParams(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := h.service.SecurityViolations(c.Request.Context(), from, to, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Report godoc
// @Summary Aggregate trail report
// @Tags Audit
// @Produce json
// @Param from query string false "Range start (RFC3339)"
// @Param to query string false "Range end (RFC3339)"
// @Success 200 {object} response.Envelope
// @Router /audit/report [get]
func (h *AuditHandler) Report(c *gin.Context) {
	from, to, err := rangeParams(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	report, err := h.service.Report(c.Request.Context(), dto.AuditReportQuery{From: from, To: to})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Export godoc
// @Summary Export the audit trail to CSV or PDF
// @Tags Audit
// @Produce json
// @Param format query string true "csv or pdf"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /audit/export [post]
func (h *AuditHandler) Export(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query, err := auditQueryFromRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	result, err := h.exports.ExportAuditTrail(c.Request.Context(), query, format, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ExportAdmissions godoc
// @Summary Export admission files to CSV or PDF
// @Tags Audit
// @Produce json
// @Param format query string true "csv or pdf"
// @Param state query string false "Comma separated state filter"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admissions/export [post]
func (h *AuditHandler) ExportAdmissions(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.AdmissionQuery{
		ProgramID:     c.Query("programId"),
		BatchID:       c.Query("batchId"),
		CoordinatorID: c.Query("coordinatorId"),
		Search:        c.Query("search"),
	}
	if states := c.Query("state"); states != "" {
		for _, raw := range strings.Split(states, ",") {
			query.States = append(query.States, models.AdmissionState(strings.TrimSpace(raw)))
		}
	}
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	result, err := h.exports.ExportAdmissions(c.Request.Context(), query, format, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Download godoc
// @Summary Download an exported file
// @Tags Audit
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *AuditHandler) Download(c *gin.Context) {
	_, relPath, _, err := h.exports.ParseToken(c.Param("token"), false)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token"))
		return
	}
	file, err := h.exports.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.ErrNotFound)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	mimeType := "application/octet-stream"
	switch strings.ToLower(filepath.Ext(relPath)) {
	case ".csv":
		mimeType = "text/csv"
	case ".pdf":
		mimeType = "application/pdf"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filepath.Base(relPath)))
	c.DataFromReader(http.StatusOK, info.Size(), mimeType, file, nil)
}

func paginationParams(c *gin.Context) (page, size int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ = strconv.Atoi(c.DefaultQuery("page_size", "50"))
	return page, size
}

func rangeParams(c *gin.Context) (from, to time.Time, err error) {
	if raw := c.Query("from"); raw != "" {
		from, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return from, to, appErrors.Clone(appErrors.ErrValidation, "invalid from timestamp, expected RFC3339")
		}
	}
	if raw := c.Query("to"); raw != "" {
		to, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return from, to, appErrors.Clone(appErrors.ErrValidation, "invalid to timestamp, expected RFC3339")
		}
	}
	return from, to, nil
}

func auditQueryFromRequest(c *gin.Context) (dto.AuditQuery, error) {
	from, to, err := rangeParams(c)
	if err != nil {
		return dto.AuditQuery{}, err
	}
	query := dto.AuditQuery{
		ModelName: c.Query("model"),
		RecordID:  c.Query("record_id"),
		UserID:    c.Query("user_id"),
		Category:  models.AuditCategory(c.Query("category")),
		From:      from,
		To:        to,
	}
	if actions := c.Query("action"); actions != "" {
		for _, raw := range strings.Split(actions, ",") {
			query.Actions = append(query.Actions, models.AuditAction(strings.TrimSpace(raw)))
		}
	}
	query.Page, query.PageSize = paginationParams(c)
	return query, nil
}
