package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campusops/report-portal/internal/service"
	"github.com/campusops/report-portal/pkg/response"
)

// AnalyticsHandler exposes dashboard-ready analytics endpoints.
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
}

// NewAnalyticsHandler constructs the analytics handler.
func NewAnalyticsHandler(analytics *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// Dashboard returns the headline aggregations.
func (h *AnalyticsHandler) Dashboard(c *gin.Context) {
	year := queryInt(c, "year", time.Now().UTC().Year())

	start := time.Now()
	stats, cacheHit, err := h.analytics.Dashboard(c.Request.Context(), year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil, analyticsMeta(cacheHit, start))
}

// Departments returns per-department outcome metrics.
func (h *AnalyticsHandler) Departments(c *gin.Context) {
	start := time.Now()
	metrics, cacheHit, err := h.analytics.Departments(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, metrics, nil, analyticsMeta(cacheHit, start))
}

// UserActivity returns per-user contribution counts.
func (h *AnalyticsHandler) UserActivity(c *gin.Context) {
	start := time.Now()
	activity, cacheHit, err := h.analytics.UserActivity(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activity, nil, analyticsMeta(cacheHit, start))
}

// CompletionTimes returns creation-to-decision durations per department.
func (h *AnalyticsHandler) CompletionTimes(c *gin.Context) {
	start := time.Now()
	times, cacheHit, err := h.analytics.CompletionTimes(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, times, nil, analyticsMeta(cacheHit, start))
}

// SystemMetrics returns the runtime instrumentation snapshot.
func (h *AnalyticsHandler) SystemMetrics(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.analytics.SystemMetrics(), nil)
}

func analyticsMeta(cacheHit bool, start time.Time) map[string]interface{} {
	return map[string]interface{}{
		"cache_hit":          cacheHit,
		"processing_time_ms": time.Since(start).Milliseconds(),
	}
}
