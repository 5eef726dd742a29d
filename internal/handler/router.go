package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusops/report-portal/internal/middleware"
	"github.com/campusops/report-portal/internal/models"
	"github.com/campusops/report-portal/internal/repository"
	"github.com/campusops/report-portal/internal/service"
)

// Handlers bundles every route handler required by the router.
type Handlers struct {
	Auth        *AuthHandler
	Users       *UserHandler
	Reports     *ReportHandler
	Analytics   *AnalyticsHandler
	Attachments *AttachmentHandler
}

// RegisterRoutes mounts the API surface on the engine under the prefix.
func RegisterRoutes(r *gin.Engine, prefix string, h Handlers, auth *service.AuthService, metrics *service.MetricsService, auditRepo *repository.UserRepository) {
	api := r.Group(prefix)
	if metrics != nil {
		api.Use(middleware.Metrics(metrics))
	}

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", h.Auth.Register)
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/refresh", h.Auth.Refresh)
		authGroup.POST("/logout", middleware.JWT(auth), h.Auth.Logout)
		authGroup.GET("/me", middleware.JWT(auth), h.Auth.Me)
		authGroup.POST("/change-password", middleware.JWT(auth), h.Auth.ChangePassword)
	}

	users := api.Group("/users", middleware.JWT(auth), middleware.RequireRoles(models.RoleAdmin))
	{
		users.GET("", h.Users.List)
		users.GET("/:id", h.Users.Get)
		users.POST("", h.Users.Create)
		users.PUT("/:id", h.Users.Update)
		users.DELETE("/:id", h.Users.Delete)
	}

	reports := api.Group("/reports", middleware.JWT(auth))
	{
		reports.GET("", h.Reports.List)
		reports.GET("/search", h.Reports.Search)
		reports.GET("/:id", h.Reports.Get)
		reports.POST("", h.Reports.Create)
		reports.PUT("/:id", h.Reports.Update)
		reports.POST("/:id/sections", h.Reports.AddSection)
		reports.POST("/:id/submit", h.Reports.Submit)
		reports.POST("/:id/review", middleware.RequireRoles(models.RoleAdmin), h.Reports.Review)
		reports.POST("/:id/publish", middleware.RequireRoles(models.RoleAdmin), h.Reports.Publish)
		reports.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), h.Reports.Delete)

		reports.POST("/:id/attachments", h.Attachments.Upload)
		reports.GET("/:id/attachments/:attachmentId", h.Attachments.Download)
		reports.DELETE("/:id/attachments/:attachmentId", middleware.RequireRoles(models.RoleAdmin), h.Attachments.Delete)
	}

	// Signed URLs carry their own authorization, no JWT required. Downloads
	// are still audited since no service-level trail exists for them.
	if auditRepo != nil {
		api.GET("/files", middleware.Audit(auditRepo, models.AuditActionFileDownload, "files"), h.Attachments.ServeSigned)
	} else {
		api.GET("/files", h.Attachments.ServeSigned)
	}

	analytics := api.Group("/analytics", middleware.JWT(auth))
	{
		analytics.GET("/dashboard", h.Analytics.Dashboard)
		analytics.GET("/departments", h.Analytics.Departments)
		analytics.GET("/user-activity", middleware.RequireRoles(models.RoleAdmin), h.Analytics.UserActivity)
		analytics.GET("/completion-times", middleware.RequireRoles(models.RoleAdmin), h.Analytics.CompletionTimes)
		analytics.GET("/system", middleware.RequireRoles(models.RoleAdmin), h.Analytics.SystemMetrics)
	}

	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
