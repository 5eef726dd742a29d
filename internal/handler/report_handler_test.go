package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusops/report-portal/internal/models"
	"github.com/campusops/report-portal/internal/repository"
	"github.com/campusops/report-portal/internal/service"
	"github.com/campusops/report-portal/pkg/response"
)

type memoryUserRepo struct {
	users         map[string]*models.User
	refreshTokens map[string]*models.RefreshToken
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: map[string]*models.User{}, refreshTokens: map[string]*models.RefreshToken{}}
}

func (r *memoryUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *memoryUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (r *memoryUserRepo) Create(ctx context.Context, user *models.User) error {
	r.users[user.ID] = user
	return nil
}

func (r *memoryUserRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (r *memoryUserRepo) UpdatePassword(ctx context.Context, id, hash string, ts time.Time) error {
	return nil
}

func (r *memoryUserRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	return nil
}

func (r *memoryUserRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	r.refreshTokens[token.Token] = token
	return nil
}

func (r *memoryUserRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	stored, ok := r.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return stored, nil
}

func (r *memoryUserRepo) RevokeRefreshToken(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (r *memoryUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	return nil
}

type memoryReportRepo struct {
	reports map[string]*models.Report
}

func newMemoryReportRepo() *memoryReportRepo {
	return &memoryReportRepo{reports: map[string]*models.Report{}}
}

func (r *memoryReportRepo) Create(ctx context.Context, report *models.Report) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	report.CreatedAt = now
	report.UpdatedAt = now
	stored := *report
	r.reports[report.ID] = &stored
	return nil
}

func (r *memoryReportRepo) GetByID(ctx context.Context, id string) (*models.Report, error) {
	report, ok := r.reports[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *report
	return &copied, nil
}

func (r *memoryReportRepo) Update(ctx context.Context, report *models.Report, expectedVersion int) error {
	stored, ok := r.reports[report.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if stored.Metadata.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	copied := *report
	r.reports[report.ID] = &copied
	return nil
}

func (r *memoryReportRepo) Delete(ctx context.Context, id string) error {
	if _, ok := r.reports[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.reports, id)
	return nil
}

func (r *memoryReportRepo) List(ctx context.Context, filter models.ReportFilter) ([]models.Report, int, error) {
	var out []models.Report
	for _, report := range r.reports {
		if filter.RestrictToUser != "" &&
			!report.Contributors.Contains(filter.RestrictToUser) &&
			!report.Approvers.Contains(filter.RestrictToUser) {
			continue
		}
		out = append(out, *report)
	}
	return out, len(out), nil
}

func (r *memoryReportRepo) Search(ctx context.Context, query, restrictToUser string, page, pageSize int) ([]models.Report, int, error) {
	return nil, 0, nil
}

type noopRenderer struct{}

func (noopRenderer) Render(report *models.Report) ([]byte, error) { return []byte("%PDF-1.4"), nil }

type noopPublisher struct{}

func (noopPublisher) Save(filename string, data []byte) (string, error) { return filename, nil }

type testServer struct {
	engine *gin.Engine
	auth   *service.AuthService
	users  *memoryUserRepo
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := newMemoryUserRepo()
	reports := newMemoryReportRepo()
	logger := zap.NewNop()

	authSvc := service.NewAuthService(users, nil, logger, service.AuthConfig{
		AccessTokenSecret:  "handler-test-secret",
		AccessTokenExpiry:  time.Minute,
		RefreshTokenExpiry: time.Hour,
	})
	reportSvc := service.NewReportService(reports, users, nil, noopRenderer{}, noopPublisher{}, nil, logger, "http://localhost:8080")

	engine := gin.New()
	RegisterRoutes(engine, "/api", Handlers{
		Auth:    NewAuthHandler(authSvc),
		Users:   NewUserHandler(service.NewUserService(nil, nil, logger)),
		Reports: NewReportHandler(reportSvc),
		Analytics: NewAnalyticsHandler(
			service.NewAnalyticsService(nil, nil, nil, logger),
		),
		Attachments: NewAttachmentHandler(nil),
	}, authSvc, nil, nil)

	return &testServer{engine: engine, auth: authSvc, users: users}
}

func (s *testServer) addUser(t *testing.T, role models.UserRole, perms models.Permissions) (*models.User, string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     "handler-user",
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: string(hash),
		Role:         role,
		Permissions:  perms,
		Department:   "Engineering",
		Active:       true,
	}
	s.users.users[user.ID] = user

	login, err := s.auth.Login(context.Background(), models.LoginRequest{Email: user.Email, Password: "secret123"})
	require.NoError(t, err)
	return user, login.AccessToken
}

func (s *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func TestReportEndpointsRequireAuth(t *testing.T) {
	server := newTestServer(t)
	w := server.do(http.MethodGet, "/api/reports", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateAndFetchReport(t *testing.T) {
	server := newTestServer(t)
	_, token := server.addUser(t, models.RoleContributor, models.Permissions{models.PermissionCreate, models.PermissionEdit})

	w := server.do(http.MethodPost, "/api/reports", token, map[string]interface{}{
		"title":        "Annual Report 2025/2026",
		"academicYear": "2025/2026",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	payload, err := json.Marshal(created.Data)
	require.NoError(t, err)
	var report models.Report
	require.NoError(t, json.Unmarshal(payload, &report))
	assert.Equal(t, models.StatusDraft, report.Status)
	assert.NotEmpty(t, report.ID)

	w = server.do(http.MethodGet, "/api/reports/"+report.ID, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateReportWithoutPermission(t *testing.T) {
	server := newTestServer(t)
	_, token := server.addUser(t, models.RoleViewer, models.Permissions{})

	w := server.do(http.MethodPost, "/api/reports", token, map[string]interface{}{
		"title":        "Annual Report 2025/2026",
		"academicYear": "2025/2026",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestReviewRouteRequiresAdminRole(t *testing.T) {
	server := newTestServer(t)
	_, token := server.addUser(t, models.RoleContributor, models.Permissions{models.PermissionCreate, models.PermissionEdit, models.PermissionApprove})

	w := server.do(http.MethodPost, "/api/reports/some-id/review", token, map[string]interface{}{
		"status": "approved",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSubmitAndReviewFlow(t *testing.T) {
	server := newTestServer(t)
	_, contributorToken := server.addUser(t, models.RoleContributor, models.Permissions{models.PermissionCreate, models.PermissionEdit})
	_, adminToken := server.addUser(t, models.RoleAdmin, models.Permissions{models.PermissionApprove})

	w := server.do(http.MethodPost, "/api/reports", contributorToken, map[string]interface{}{
		"title":        "Annual Report 2025/2026",
		"academicYear": "2025/2026",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	payload, _ := json.Marshal(created.Data)
	var report models.Report
	require.NoError(t, json.Unmarshal(payload, &report))

	w = server.do(http.MethodPost, "/api/reports/"+report.ID+"/submit", contributorToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = server.do(http.MethodPost, "/api/reports/"+report.ID+"/review", adminToken, map[string]interface{}{
		"status":   "approved",
		"comments": "Well structured",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var reviewed response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reviewed))
	payload, _ = json.Marshal(reviewed.Data)
	var result models.Report
	require.NoError(t, json.Unmarshal(payload, &result))
	assert.Equal(t, models.StatusApproved, result.Status)
	require.Len(t, result.Approvers, 1)
	assert.Equal(t, models.DecisionApproved, result.Approvers[0].Decision)
}

func TestUserActivityAndCompletionTimesAdminOnly(t *testing.T) {
	server := newTestServer(t)
	_, token := server.addUser(t, models.RoleContributor, models.Permissions{models.PermissionCreate})

	w := server.do(http.MethodGet, "/api/analytics/user-activity", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = server.do(http.MethodGet, "/api/analytics/completion-times", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDeleteReportAdminOnlyRoute(t *testing.T) {
	server := newTestServer(t)
	_, contributorToken := server.addUser(t, models.RoleContributor, models.Permissions{models.PermissionCreate, models.PermissionEdit, models.PermissionDelete})

	w := server.do(http.MethodDelete, "/api/reports/any-id", contributorToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
