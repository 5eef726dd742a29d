package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusops/report-portal/internal/models"
	"github.com/campusops/report-portal/internal/repository"
	appErrors "github.com/campusops/report-portal/pkg/errors"
)

const analyticsCachePattern = "analytics:*"

// casRetryLimit bounds the retry loop for embedded-collection appends that
// race with concurrent writers on the same report row.
const casRetryLimit = 3

type reportRepository interface {
	Create(ctx context.Context, report *models.Report) error
	GetByID(ctx context.Context, id string) (*models.Report, error)
	Update(ctx context.Context, report *models.Report, expectedVersion int) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.ReportFilter) ([]models.Report, int, error)
	Search(ctx context.Context, query, restrictToUser string, page, pageSize int) ([]models.Report, int, error)
}

type reportAuditor interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type reportRenderer interface {
	Render(report *models.Report) ([]byte, error)
}

type reportPublisher interface {
	Save(filename string, data []byte) (string, error)
}

// CreateReportRequest is the payload for starting a new report.
type CreateReportRequest struct {
	Title        string                `json:"title" validate:"required,min=3"`
	AcademicYear string                `json:"academicYear" validate:"required"`
	Metadata     models.ReportMetadata `json:"metadata"`
	Sections     []models.Section      `json:"sections" validate:"dive"`
}

// UpdateReportRequest carries the client-writable fields of a report.
// Lifecycle status, contributors and approvers are managed server side
// and never accepted from this payload.
type UpdateReportRequest struct {
	Title        *string                `json:"title"`
	AcademicYear *string                `json:"academicYear"`
	Sections     *models.Sections       `json:"sections"`
	Metadata     *models.ReportMetadata `json:"metadata"`
	Archived     *bool                  `json:"isArchived"`
}

// AddSectionRequest appends a content block to a report.
type AddSectionRequest struct {
	Title   string          `json:"title" validate:"required"`
	Content string          `json:"content"`
	Data    json.RawMessage `json:"data"`
	Charts  []models.Chart  `json:"charts" validate:"dive"`
}

// ReviewReportRequest records an approval decision.
type ReviewReportRequest struct {
	Decision models.ApprovalDecision `json:"status" validate:"required,oneof=approved rejected"`
	Comments string                  `json:"comments"`
}

// ReportService implements the report lifecycle workflows.
type ReportService struct {
	repo      reportRepository
	audit     reportAuditor
	cache     *CacheService
	renderer  reportRenderer
	publisher reportPublisher
	validator *validator.Validate
	logger    *zap.Logger
	baseURL   string
}

// NewReportService constructs a ReportService.
func NewReportService(repo reportRepository, audit reportAuditor, cache *CacheService, renderer reportRenderer, publisher reportPublisher, validate *validator.Validate, logger *zap.Logger, baseURL string) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ReportService{
		repo:      repo,
		audit:     audit,
		cache:     cache,
		renderer:  renderer,
		publisher: publisher,
		validator: validate,
		logger:    logger,
		baseURL:   baseURL,
	}
}

// Create starts a new draft report owned by the caller.
func (s *ReportService) Create(ctx context.Context, req CreateReportRequest, claims *models.JWTClaims, meta models.LoginRequest) (*models.Report, error) {
	if claims == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials")
	}
	if !claims.HasPermission(models.PermissionCreate) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "create permission required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report payload")
	}
	if err := validateSections(req.Sections); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sections := make(models.Sections, len(req.Sections))
	for i, section := range req.Sections {
		section.LastModified = now
		section.ModifiedBy = claims.UserID
		sections[i] = section
	}

	metadata := req.Metadata
	if metadata.Department == "" {
		metadata.Department = claims.Department
	}
	metadata.Version = 1

	report := &models.Report{
		Title:        req.Title,
		AcademicYear: req.AcademicYear,
		Status:       models.StatusDraft,
		Sections:     sections,
		Contributors: models.Contributors{{UserID: claims.UserID, Role: "creator"}},
		Approvers:    models.Approvers{},
		Attachments:  models.Attachments{},
		Metadata:     models.Metadata(metadata),
	}

	if err := s.repo.Create(ctx, report); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report")
	}

	s.invalidateAnalytics(ctx)
	s.recordAudit(ctx, claims.UserID, models.AuditActionReportCreate, report.ID, nil, report, meta)
	return report, nil
}

// Get returns a single report. Viewers see everything; no membership
// restriction is applied to individual fetches.
func (s *ReportService) Get(ctx context.Context, id string) (*models.Report, error) {
	report, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report")
	}
	return report, nil
}

// List returns reports visible to the caller. Non-admin callers only see
// reports where they are a contributor or an approver.
func (s *ReportService) List(ctx context.Context, filter models.ReportFilter, claims *models.JWTClaims) ([]models.Report, *models.Pagination, error) {
	if claims == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials")
	}
	if !claims.IsAdmin() {
		filter.RestrictToUser = claims.UserID
	}

	reports, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reports")
	}

	return reports, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Search performs a full-text search over title and section content, with
// the same membership restriction as List.
func (s *ReportService) Search(ctx context.Context, query string, page, pageSize int, claims *models.JWTClaims) ([]models.Report, *models.Pagination, error) {
	if claims == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials")
	}
	if query == "" {
		return nil, nil, appErrors.Validation([]string{"q"})
	}

	restrict := ""
	if !claims.IsAdmin() {
		restrict = claims.UserID
	}

	reports, total, err := s.repo.Search(ctx, query, restrict, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search reports")
	}

	return reports, paginationFor(page, pageSize, total), nil
}

// Update applies client-writable fields to a report using optimistic
// concurrency. The caller must be an admin or a contributor holding the
// edit permission.
func (s *ReportService) Update(ctx context.Context, id string, req UpdateReportRequest, claims *models.JWTClaims, meta models.LoginRequest) (*models.Report, error) {
	report, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeEdit(report, claims); err != nil {
		return nil, err
	}
	if req.Sections != nil {
		if err := validateSections(*req.Sections); err != nil {
			return nil, err
		}
	}

	before := *report
	now := time.Now().UTC()

	if req.Title != nil {
		report.Title = *req.Title
	}
	if req.AcademicYear != nil {
		report.AcademicYear = *req.AcademicYear
	}
	if req.Sections != nil {
		sections := *req.Sections
		for i := range sections {
			sections[i].LastModified = now
			sections[i].ModifiedBy = claims.UserID
		}
		report.Sections = sections
	}
	if req.Metadata != nil {
		incoming := *req.Metadata
		incoming.Version = report.Metadata.Version
		report.Metadata = models.Metadata(incoming)
	}
	if req.Archived != nil {
		report.Archived = *req.Archived
	}

	if err := s.persist(ctx, report); err != nil {
		return nil, err
	}

	s.invalidateAnalytics(ctx)
	s.recordAudit(ctx, claims.UserID, models.AuditActionReportUpdate, report.ID, &before, report, meta)
	return report, nil
}

// AddSection appends one section to the report, reloading and retrying on
// version conflicts so concurrent appends do not clobber each other.
func (s *ReportService) AddSection(ctx context.Context, id string, req AddSectionRequest, claims *models.JWTClaims, meta models.LoginRequest) (*models.Report, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}
	for _, chart := range req.Charts {
		if !chart.Kind.Valid() {
			return nil, appErrors.Validation([]string{"charts.type"})
		}
	}

	updated, err := s.withRetry(ctx, id, claims, func(report *models.Report) error {
		report.Sections = append(report.Sections, models.Section{
			Title:        req.Title,
			Content:      req.Content,
			Data:         req.Data,
			Charts:       req.Charts,
			LastModified: time.Now().UTC(),
			ModifiedBy:   claims.UserID,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, claims.UserID, models.AuditActionReportUpdate, id, nil, updated, meta)
	return updated, nil
}

// Submit moves a draft report into review.
func (s *ReportService) Submit(ctx context.Context, id string, claims *models.JWTClaims, meta models.LoginRequest) (*models.Report, error) {
	report, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeEdit(report, claims); err != nil {
		return nil, err
	}
	if report.Status != models.StatusDraft {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("report in status %q cannot be submitted", report.Status))
	}

	before := *report
	report.Status = models.StatusReview

	if err := s.persist(ctx, report); err != nil {
		return nil, err
	}

	s.invalidateAnalytics(ctx)
	s.recordAudit(ctx, claims.UserID, models.AuditActionReportSubmit, report.ID, &before, report, meta)
	return report, nil
}

// Review records an approve/reject decision on a report under review.
// Admin only.
func (s *ReportService) Review(ctx context.Context, id string, req ReviewReportRequest, claims *models.JWTClaims, meta models.LoginRequest) (*models.Report, error) {
	if claims == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials")
	}
	if !claims.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}

	report, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if report.Status != models.StatusReview {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("report in status %q cannot be reviewed", report.Status))
	}

	before := *report
	now := time.Now().UTC()

	report.Approvers = append(report.Approvers, models.ApprovalEntry{
		UserID:   claims.UserID,
		Decision: req.Decision,
		Comments: req.Comments,
		Date:     now,
	})
	switch req.Decision {
	case models.DecisionApproved:
		report.Status = models.StatusApproved
	case models.DecisionRejected:
		report.Status = models.StatusRejected
	}

	if err := s.persist(ctx, report); err != nil {
		return nil, err
	}

	s.invalidateAnalytics(ctx)
	s.recordAudit(ctx, claims.UserID, models.AuditActionReportReview, report.ID, &before, report, meta)
	return report, nil
}

// Publish renders an approved report to PDF, stores the snapshot and marks
// the report published. Admin only.
func (s *ReportService) Publish(ctx context.Context, id string, claims *models.JWTClaims, meta models.LoginRequest) (*models.Report, error) {
	if claims == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials")
	}
	if !claims.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}

	report, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if report.Status != models.StatusApproved {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("report in status %q cannot be published", report.Status))
	}

	rendered, err := s.renderer.Render(report)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}

	filename := fmt.Sprintf("published/%s-%d.pdf", report.ID, time.Now().UTC().Unix())
	if _, err := s.publisher.Save(filename, rendered); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store rendered report")
	}

	before := *report
	publishedURL := s.baseURL + "/files/" + filename
	report.Status = models.StatusPublished
	report.PublishedURL = &publishedURL

	if err := s.persist(ctx, report); err != nil {
		return nil, err
	}

	s.invalidateAnalytics(ctx)
	s.recordAudit(ctx, claims.UserID, models.AuditActionReportPublish, report.ID, &before, report, meta)
	return report, nil
}

// Delete removes a report permanently. Admin only.
func (s *ReportService) Delete(ctx context.Context, id string, claims *models.JWTClaims, meta models.LoginRequest) error {
	if claims == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials")
	}
	if !claims.IsAdmin() {
		return appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}

	report, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete report")
	}

	s.invalidateAnalytics(ctx)
	s.recordAudit(ctx, claims.UserID, models.AuditActionReportDelete, id, report, nil, meta)
	return nil
}

// withRetry loads the report, authorizes the caller, applies mutate and
// persists with CAS, retrying on version conflicts.
func (s *ReportService) withRetry(ctx context.Context, id string, claims *models.JWTClaims, mutate func(*models.Report) error) (*models.Report, error) {
	for attempt := 0; attempt < casRetryLimit; attempt++ {
		report, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := s.authorizeEdit(report, claims); err != nil {
			return nil, err
		}
		if err := mutate(report); err != nil {
			return nil, err
		}

		err = s.persistOnce(ctx, report)
		if err == nil {
			s.invalidateAnalytics(ctx)
			return report, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update report")
		}
	}
	return nil, appErrors.Clone(appErrors.ErrConflict, "report was modified concurrently")
}

func (s *ReportService) persist(ctx context.Context, report *models.Report) error {
	if err := s.persistOnce(ctx, report); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return appErrors.Clone(appErrors.ErrConflict, "report was modified concurrently")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update report")
	}
	return nil
}

func (s *ReportService) persistOnce(ctx context.Context, report *models.Report) error {
	expected := report.Metadata.Version
	report.Metadata.Version = expected + 1
	report.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, report, expected); err != nil {
		report.Metadata.Version = expected
		return err
	}
	return nil
}

func (s *ReportService) authorizeEdit(report *models.Report, claims *models.JWTClaims) error {
	if claims == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "missing credentials")
	}
	if !claims.HasPermission(models.PermissionEdit) {
		return appErrors.Clone(appErrors.ErrForbidden, "edit permission required")
	}
	if !claims.IsAdmin() && !report.Contributors.Contains(claims.UserID) {
		return appErrors.Clone(appErrors.ErrForbidden, "not a contributor on this report")
	}
	return nil
}

func (s *ReportService) invalidateAnalytics(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, analyticsCachePattern); err != nil {
		s.logger.Warn("failed to invalidate analytics cache", zap.Error(err))
	}
}

func (s *ReportService) recordAudit(ctx context.Context, actorID, action, resourceID string, before, after interface{}, meta models.LoginRequest) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "reports",
		ResourceID: &resourceID,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if before != nil {
		if raw, err := json.Marshal(before); err == nil {
			entry.OldValues = raw
		}
	}
	if after != nil {
		if raw, err := json.Marshal(after); err == nil {
			entry.NewValues = raw
		}
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record report audit log", zap.Error(err))
	}
}

func validateSections(sections []models.Section) error {
	for _, section := range sections {
		if section.Title == "" {
			return appErrors.Validation([]string{"sections.title"})
		}
		for _, chart := range section.Charts {
			if !chart.Kind.Valid() {
				return appErrors.Validation([]string{"sections.charts.type"})
			}
		}
	}
	return nil
}

func paginationFor(page, pageSize, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	return &models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
		TotalPages: (total + pageSize - 1) / pageSize,
	}
}
