package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/campusops/report-portal/internal/middleware"
	"github.com/campusops/report-portal/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// requestMeta captures the caller network identity for audit records.
func requestMeta(c *gin.Context) models.LoginRequest {
	return models.LoginRequest{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}
