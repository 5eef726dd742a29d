package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campusops/report-portal/internal/models"
	"github.com/campusops/report-portal/internal/service"
	appErrors "github.com/campusops/report-portal/pkg/errors"
	"github.com/campusops/report-portal/pkg/response"
)

// ReportHandler exposes the report lifecycle endpoints.
type ReportHandler struct {
	reports *service.ReportService
}

// NewReportHandler constructs the report handler.
func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Create handles POST /reports.
func (h *ReportHandler) Create(c *gin.Context) {
	var req service.CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}

	report, err := h.reports.Create(c.Request.Context(), req, claimsFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, report)
}

// Get handles GET /reports/:id.
func (h *ReportHandler) Get(c *gin.Context) {
	report, err := h.reports.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// List handles GET /reports with filtering and pagination.
func (h *ReportHandler) List(c *gin.Context) {
	filter := models.ReportFilter{
		AcademicYear: c.Query("academic_year"),
		Department:   c.Query("department"),
		Page:         queryInt(c, "page", 1),
		PageSize:     queryInt(c, "page_size", 10),
	}
	if raw := c.Query("status"); raw != "" {
		status := models.ReportStatus(raw)
		if !status.Valid() {
			response.Error(c, appErrors.Validation([]string{"status"}))
			return
		}
		filter.Status = &status
	}
	if raw := c.Query("archived"); raw != "" {
		archived, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Validation([]string{"archived"}))
			return
		}
		filter.Archived = &archived
	}

	reports, pagination, err := h.reports.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reports, pagination)
}

// Search handles GET /reports/search?q=...
func (h *ReportHandler) Search(c *gin.Context) {
	reports, pagination, err := h.reports.Search(
		c.Request.Context(),
		c.Query("q"),
		queryInt(c, "page", 1),
		queryInt(c, "page_size", 10),
		claimsFromContext(c),
	)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reports, pagination)
}

// Update handles PUT /reports/:id.
func (h *ReportHandler) Update(c *gin.Context) {
	var req service.UpdateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}

	report, err := h.reports.Update(c.Request.Context(), c.Param("id"), req, claimsFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// AddSection handles POST /reports/:id/sections.
func (h *ReportHandler) AddSection(c *gin.Context) {
	var req service.AddSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}

	report, err := h.reports.AddSection(c.Request.Context(), c.Param("id"), req, claimsFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Submit handles POST /reports/:id/submit.
func (h *ReportHandler) Submit(c *gin.Context) {
	report, err := h.reports.Submit(c.Request.Context(), c.Param("id"), claimsFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Review handles POST /reports/:id/review.
func (h *ReportHandler) Review(c *gin.Context) {
	var req service.ReviewReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}

	report, err := h.reports.Review(c.Request.Context(), c.Param("id"), req, claimsFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Publish handles POST /reports/:id/publish.
func (h *ReportHandler) Publish(c *gin.Context) {
	report, err := h.reports.Publish(c.Request.Context(), c.Param("id"), claimsFromContext(c), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Delete handles DELETE /reports/:id.
func (h *ReportHandler) Delete(c *gin.Context) {
	if err := h.reports.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c), requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
