package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusops/report-portal/internal/models"
	"github.com/campusops/report-portal/internal/repository"
	appErrors "github.com/campusops/report-portal/pkg/errors"
)

type reportRepoStub struct {
	reports map[string]*models.Report
}

func newReportRepoStub() *reportRepoStub {
	return &reportRepoStub{reports: map[string]*models.Report{}}
}

func (r *reportRepoStub) Create(ctx context.Context, report *models.Report) error {
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

func (r *reportRepoStub) GetByID(ctx context.Context, id string) (*models.Report, error) {
	report, ok := r.reports[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *report
	return &copied, nil
}

func (r *reportRepoStub) Update(ctx context.Context, report *models.Report, expectedVersion int) error {
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

func (r *reportRepoStub) Delete(ctx context.Context, id string) error {
	if _, ok := r.reports[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.reports, id)
	return nil
}

func (r *reportRepoStub) List(ctx context.Context, filter models.ReportFilter) ([]models.Report, int, error) {
	var out []models.Report
	for _, report := range r.reports {
		if filter.RestrictToUser != "" &&
			!report.Contributors.Contains(filter.RestrictToUser) &&
			!report.Approvers.Contains(filter.RestrictToUser) {
			continue
		}
		if filter.Status != nil && report.Status != *filter.Status {
			continue
		}
		out = append(out, *report)
	}
	return out, len(out), nil
}

func (r *reportRepoStub) Search(ctx context.Context, query, restrictToUser string, page, pageSize int) ([]models.Report, int, error) {
	return nil, 0, nil
}

type auditStub struct {
	entries []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.entries = append(a.entries, log)
	return nil
}

type rendererStub struct {
	rendered int
	err      error
}

func (r *rendererStub) Render(report *models.Report) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.rendered++
	return []byte("%PDF-1.4 stub"), nil
}

type publisherStub struct {
	saved map[string][]byte
}

func (p *publisherStub) Save(filename string, data []byte) (string, error) {
	if p.saved == nil {
		p.saved = map[string][]byte{}
	}
	p.saved[filename] = data
	return filename, nil
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{
		UserID:      "admin-1",
		Username:    "admin",
		Role:        models.RoleAdmin,
		Permissions: models.Permissions{models.PermissionCreate, models.PermissionEdit, models.PermissionDelete, models.PermissionApprove},
	}
}

func contributorClaims(id string, perms ...models.Permission) *models.JWTClaims {
	return &models.JWTClaims{
		UserID:      id,
		Username:    "user-" + id,
		Role:        models.RoleContributor,
		Permissions: perms,
		Department:  "Engineering",
	}
}

func newTestReportService(repo *reportRepoStub, audit *auditStub) *ReportService {
	return NewReportService(repo, audit, nil, &rendererStub{}, &publisherStub{}, nil, zap.NewNop(), "http://localhost:8080")
}

func TestReportServiceCreateSeedsCreator(t *testing.T) {
	repo := newReportRepoStub()
	audit := &auditStub{}
	svc := newTestReportService(repo, audit)
	claims := contributorClaims("user-7", models.PermissionCreate, models.PermissionEdit)

	report, err := svc.Create(context.Background(), CreateReportRequest{
		Title:        "Annual Report 2025/2026",
		AcademicYear: "2025/2026",
		Sections:     []models.Section{{Title: "Introduction", Content: "Opening remarks"}},
	}, claims, models.LoginRequest{})

	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, report.Status)
	assert.Equal(t, 1, report.Metadata.Version)
	require.Len(t, report.Contributors, 1)
	assert.Equal(t, "user-7", report.Contributors[0].UserID)
	assert.Equal(t, "creator", report.Contributors[0].Role)
	assert.Equal(t, "Engineering", report.Metadata.Department)
	require.Len(t, report.Sections, 1)
	assert.Equal(t, "user-7", report.Sections[0].ModifiedBy)
	assert.False(t, report.Sections[0].LastModified.IsZero())
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionReportCreate, audit.entries[0].Action)
}

func TestReportServiceCreateRequiresPermission(t *testing.T) {
	svc := newTestReportService(newReportRepoStub(), &auditStub{})
	claims := contributorClaims("user-7", models.PermissionEdit)

	_, err := svc.Create(context.Background(), CreateReportRequest{
		Title:        "Annual Report 2025/2026",
		AcademicYear: "2025/2026",
	}, claims, models.LoginRequest{})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestReportServiceCreatePermissionAppliesToAdmins(t *testing.T) {
	repo := newReportRepoStub()
	svc := newTestReportService(repo, &auditStub{})
	admin := &models.JWTClaims{
		UserID:      "admin-2",
		Username:    "admin-no-create",
		Role:        models.RoleAdmin,
		Permissions: models.Permissions{models.PermissionApprove},
	}

	_, err := svc.Create(context.Background(), CreateReportRequest{
		Title:        "Annual Report 2025/2026",
		AcademicYear: "2025/2026",
	}, admin, models.LoginRequest{})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.reports)
}

func TestReportServiceCreateRejectsUnknownChartKind(t *testing.T) {
	svc := newTestReportService(newReportRepoStub(), &auditStub{})
	claims := contributorClaims("user-7", models.PermissionCreate)

	_, err := svc.Create(context.Background(), CreateReportRequest{
		Title:        "Annual Report 2025/2026",
		AcademicYear: "2025/2026",
		Sections: []models.Section{{
			Title:  "Trends",
			Charts: []models.Chart{{Kind: "sparkline"}},
		}},
	}, claims, models.LoginRequest{})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestReportServiceSubmitOnlyFromDraft(t *testing.T) {
	repo := newReportRepoStub()
	svc := newTestReportService(repo, &auditStub{})
	claims := contributorClaims("user-7", models.PermissionCreate, models.PermissionEdit)

	report, err := svc.Create(context.Background(), CreateReportRequest{
		Title:        "Annual Report 2025/2026",
		AcademicYear: "2025/2026",
	}, claims, models.LoginRequest{})
	require.NoError(t, err)

	submitted, err := svc.Submit(context.Background(), report.ID, claims, models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusReview, submitted.Status)
	assert.Equal(t, 2, submitted.Metadata.Version)

	_, err = svc.Submit(context.Background(), report.ID, claims, models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestReportServiceSubmitRequiresContributor(t *testing.T) {
	repo := newReportRepoStub()
	svc := newTestReportService(repo, &auditStub{})
	owner := contributorClaims("user-7", models.PermissionCreate, models.PermissionEdit)

	report, err := svc.Create(context.Background(), CreateReportRequest{
		Title:        "Annual Report 2025/2026",
		AcademicYear: "2025/2026",
	}, owner, models.LoginRequest{})
	require.NoError(t, err)

	stranger := contributorClaims("user-9", models.PermissionEdit)
	_, err = svc.Submit(context.Background(), report.ID, stranger, models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestReportServiceUpdateIgnoresLifecycleFields(t *testing.T) {
	repo := newReportRepoStub()
	svc := newTestReportService(repo, &auditStub{})
	claims := contributorClaims("user-7", models.PermissionCreate, models.PermissionEdit)

	report, err := svc.Create(context.Background(), CreateReportRequest{
		Title:        "Annual Report 2025/2026",
		AcademicYear: "2025/2026",
	}, claims, models.LoginRequest{})
	require.NoError(t, err)

	newTitle := "Annual Report 2025/2026 (rev A)"
	updated, err := svc.Update(context.Background(), report.ID, UpdateReportRequest{Title: &newTitle}, claims, models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, newTitle, updated.Title)
	// Status and membership remain server-managed.
	assert.Equal(t, models.StatusDraft, updated.Status)
	assert.Len(t, updated.Contributors, 1)
	assert.Equal(t, 2, updated.Metadata.Version)
}

func TestReportServiceUpdateVersionConflict(t *testing.T) {
	repo := newReportRepoStub()
	svc := newTestReportService(repo, &auditStub{})
	claims := contributorClaims("user-7", models.PermissionCreate, models.PermissionEdit)

	report, err := svc.Create(context.Background(), CreateReportRequest{
		Title:        "Annual Report 2025/2026",
		AcademicYear: "2025/2026",
	}, claims, models.LoginRequest{})
	require.NoError(t, err)

	// A concurrent writer bumps the stored version out from under us.
	repo.reports[report.ID].Metadata.Version = 5

	newTitle := "stale write"
	_, err = svc.Update(context.Background(), report.ID, UpdateReportRequest{Title: &newTitle}, claims, models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestReportServiceAddSectionRetriesOnConflict(t *testing.T) {
	repo := newReportRepoStub()
	svc := newTestReportService(repo, &auditStub{})
	claims := contributorClaims("user-7", models.PermissionCreate, models.PermissionEdit)

	report, err := svc.Create(context.Background(), CreateReportRequest{
		Title:        "Annual Report 2025/2026",
		AcademicYear: "2025/2026",
	}, claims, models.LoginRequest{})
	require.NoError(t, err)

	updated, err := svc.AddSection(context.Background(), report.ID, AddSectionRequest{
		Title:   "Finances",
		Content: "Budget summary",
		Charts:  []models.Chart{{Kind: models.ChartBar}},
	}, claims, models.LoginRequest{})
	require.NoError(t, err)
	require.Len(t, updated.Sections, 1)
	assert.Equal(t, "Finances", updated.Sections[0].Title)
	assert.Equal(t, "user-7", updated.Sections[0].ModifiedBy)
}

func TestReportServiceReviewRecordsDecision(t *testing.T) {
	repo := newReportRepoStub()
	svc := newTestReportService(repo, &auditStub{})
	owner := contributorClaims("user-7", models.PermissionCreate, models.PermissionEdit)
	admin := adminClaims()

	report, err := svc.Create(context.Background(), CreateReportRequest{
		Title:        "Annual Report 2025/2026",
		AcademicYear: "2025/2026",
	}, owner, models.LoginRequest{})
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), report.ID, owner, models.LoginRequest{})
	require.NoError(t, err)

	reviewed, err := svc.Review(context.Background(), report.ID, ReviewReportRequest{
		Decision: models.DecisionApproved,
		Comments: "Looks complete",
	}, admin, models.LoginRequest{})
	require.NoError(t, err)

	assert.Equal(t, models.StatusApproved, reviewed.Status)
	require.Len(t, reviewed.Approvers, 1)
	entry := reviewed.Approvers[0]
	assert.Equal(t, admin.UserID, entry.UserID)
	assert.Equal(t, models.DecisionApproved, entry.Decision)
	assert.False(t, entry.Date.Before(reviewed.CreatedAt))
}

func TestReportServiceReviewRequiresAdmin(t *testing.T) {
	repo := newReportRepoStub()
	svc := newTestReportService(repo, &auditStub{})
	owner := contributorClaims("user-7", models.PermissionCreate, models.PermissionEdit, models.PermissionApprove)

	report, err := svc.Create(context.Background(), CreateReportRequest{
		Title:        "Annual Report 2025/2026",
		AcademicYear: "2025/2026",
	}, owner, models.LoginRequest{})
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), report.ID, owner, models.LoginRequest{})
	require.NoError(t, err)

	_, err = svc.Review(context.Background(), report.ID, ReviewReportRequest{Decision: models.DecisionApproved}, owner, models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestReportServiceReviewNeedsOnlyAdminRole(t *testing.T) {
	repo := newReportRepoStub()
	svc := newTestReportService(repo, &auditStub{})
	owner := contributorClaims("user-7", models.PermissionCreate, models.PermissionEdit)
	admin := &models.JWTClaims{
		UserID:      "admin-2",
		Username:    "admin-no-approve",
		Role:        models.RoleAdmin,
		Permissions: models.Permissions{},
	}

	report, err := svc.Create(context.Background(), CreateReportRequest{
		Title:        "Annual Report 2025/2026",
		AcademicYear: "2025/2026",
	}, owner, models.LoginRequest{})
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), report.ID, owner, models.LoginRequest{})
	require.NoError(t, err)

	reviewed, err := svc.Review(context.Background(), report.ID, ReviewReportRequest{Decision: models.DecisionRejected}, admin, models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, reviewed.Status)
}

func TestReportServiceEditPermissionAppliesToAdmins(t *testing.T) {
	repo := newReportRepoStub()
	svc := newTestReportService(repo, &auditStub{})
	owner := contributorClaims("user-7", models.PermissionCreate, models.PermissionEdit)
	admin := &models.JWTClaims{
		UserID:      "admin-2",
		Username:    "admin-no-edit",
		Role:        models.RoleAdmin,
		Permissions: models.Permissions{models.PermissionApprove},
	}

	report, err := svc.Create(context.Background(), CreateReportRequest{
		Title:        "Annual Report 2025/2026",
		AcademicYear: "2025/2026",
	}, owner, models.LoginRequest{})
	require.NoError(t, err)

	title := "Amended title"
	_, err = svc.Update(context.Background(), report.ID, UpdateReportRequest{Title: &title}, admin, models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.Submit(context.Background(), report.ID, admin, models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestReportServicePublishApprovedReport(t *testing.T) {
	repo := newReportRepoStub()
	renderer := &rendererStub{}
	publisher := &publisherStub{}
	svc := NewReportService(repo, &auditStub{}, nil, renderer, publisher, nil, zap.NewNop(), "http://localhost:8080")
	owner := contributorClaims("user-7", models.PermissionCreate, models.PermissionEdit)
	admin := adminClaims()

	report, err := svc.Create(context.Background(), CreateReportRequest{
		Title:        "Annual Report 2025/2026",
		AcademicYear: "2025/2026",
	}, owner, models.LoginRequest{})
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), report.ID, owner, models.LoginRequest{})
	require.NoError(t, err)
	_, err = svc.Review(context.Background(), report.ID, ReviewReportRequest{Decision: models.DecisionApproved}, admin, models.LoginRequest{})
	require.NoError(t, err)

	published, err := svc.Publish(context.Background(), report.ID, admin, models.LoginRequest{})
	require.NoError(t, err)

	assert.Equal(t, models.StatusPublished, published.Status)
	require.NotNil(t, published.PublishedURL)
	assert.Contains(t, *published.PublishedURL, "http://localhost:8080/files/published/")
	assert.Equal(t, 1, renderer.rendered)
	assert.Len(t, publisher.saved, 1)
}

func TestReportServicePublishRequiresApprovedStatus(t *testing.T) {
	repo := newReportRepoStub()
	svc := newTestReportService(repo, &auditStub{})
	owner := contributorClaims("user-7", models.PermissionCreate, models.PermissionEdit)
	admin := adminClaims()

	report, err := svc.Create(context.Background(), CreateReportRequest{
		Title:        "Annual Report 2025/2026",
		AcademicYear: "2025/2026",
	}, owner, models.LoginRequest{})
	require.NoError(t, err)

	_, err = svc.Publish(context.Background(), report.ID, admin, models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestReportServiceDeleteAdminOnly(t *testing.T) {
	repo := newReportRepoStub()
	svc := newTestReportService(repo, &auditStub{})
	owner := contributorClaims("user-7", models.PermissionCreate, models.PermissionEdit, models.PermissionDelete)

	report, err := svc.Create(context.Background(), CreateReportRequest{
		Title:        "Annual Report 2025/2026",
		AcademicYear: "2025/2026",
	}, owner, models.LoginRequest{})
	require.NoError(t, err)

	err = svc.Delete(context.Background(), report.ID, owner, models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	err = svc.Delete(context.Background(), report.ID, adminClaims(), models.LoginRequest{})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), report.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestReportServiceListRestrictsNonAdmins(t *testing.T) {
	repo := newReportRepoStub()
	svc := newTestReportService(repo, &auditStub{})
	owner := contributorClaims("user-7", models.PermissionCreate, models.PermissionEdit)
	other := contributorClaims("user-9", models.PermissionCreate, models.PermissionEdit)

	_, err := svc.Create(context.Background(), CreateReportRequest{Title: "Mine", AcademicYear: "2025/2026"}, owner, models.LoginRequest{})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), CreateReportRequest{Title: "Theirs", AcademicYear: "2025/2026"}, other, models.LoginRequest{})
	require.NoError(t, err)

	mine, pagination, err := svc.List(context.Background(), models.ReportFilter{}, owner)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Mine", mine[0].Title)
	assert.Equal(t, 1, pagination.TotalCount)

	all, _, err := svc.List(context.Background(), models.ReportFilter{}, adminClaims())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
