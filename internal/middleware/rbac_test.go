package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/campusops/report-portal/internal/models"
)

func performWithClaims(t *testing.T, claims *models.JWTClaims, mw gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/protected", func(c *gin.Context) {
		if claims != nil {
			c.Set(ContextUserKey, claims)
		}
	}, mw, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(w, req)
	return w
}

func TestRequireRolesAllowsListedRole(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleAdmin}
	w := performWithClaims(t, claims, RequireRoles(models.RoleAdmin))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireRolesRejectsOtherRole(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleViewer}
	w := performWithClaims(t, claims, RequireRoles(models.RoleAdmin, models.RoleContributor))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireRolesWithoutClaims(t *testing.T) {
	w := performWithClaims(t, nil, RequireRoles(models.RoleAdmin))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequirePermissionGranted(t *testing.T) {
	claims := &models.JWTClaims{
		UserID:      "u1",
		Role:        models.RoleContributor,
		Permissions: models.Permissions{models.PermissionCreate},
	}
	w := performWithClaims(t, claims, RequirePermission(models.PermissionCreate))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequirePermissionDenied(t *testing.T) {
	claims := &models.JWTClaims{
		UserID:      "u1",
		Role:        models.RoleContributor,
		Permissions: models.Permissions{models.PermissionEdit},
	}
	w := performWithClaims(t, claims, RequirePermission(models.PermissionApprove))
	assert.Equal(t, http.StatusForbidden, w.Code)
}
