package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/acmst-college/admission-api/internal/middleware"
	"github.com/acmst-college/admission-api/internal/service"
	"github.com/acmst-college/admission-api/pkg/response"
)

// DashboardHandler wires the admission dashboard endpoints.
type DashboardHandler struct {
	service *service.DashboardService
}

// NewDashboardHandler creates a new handler.
func NewDashboardHandler(svc *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{service: svc}
}

// Overview godoc
// @Summary Admission pipeline overview
// @Description Aggregated pipeline, condition and notification counters, served from cache when fresh
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard [get]
func (h *DashboardHandler) Overview(c *gin.Context) {
	overview, cacheHit, err := h.service.Overview(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, overview, nil, middleware.ExtractMeta(c))
}

// Invalidate godoc
// @Summary Drop the cached dashboard snapshot
// @Tags Dashboard
// @Produce json
// @Success 204 {object} response.Envelope
// @Router /dashboard/cache [delete]
func (h *DashboardHandler) Invalidate(c *gin.Context) {
	h.service.Invalidate(c.Request.Context())
	response.NoContent(c)
}
