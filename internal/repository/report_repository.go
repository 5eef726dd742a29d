package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusops/report-portal/internal/models"
)

// ErrVersionConflict signals that a compare-and-swap update lost the race:
// the stored document's version no longer matches the one that was read.
var ErrVersionConflict = errors.New("report version conflict")

const reportColumns = `id, academic_year, title, status, sections, contributors, approvers, metadata, attachments, published_url, archived, created_at, updated_at`

// ReportRepository persists report aggregates. Every embedded collection
// lives in a jsonb column so each mutation is a single-row write.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts a new report row with generated defaults.
func (r *ReportRepository) Create(ctx context.Context, report *models.Report) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.Status == "" {
		report.Status = models.StatusDraft
	}
	now := time.Now().UTC()
	if report.CreatedAt.IsZero() {
		report.CreatedAt = now
	}
	report.UpdatedAt = now

	const query = `INSERT INTO reports (id, academic_year, title, status, sections, contributors, approvers, metadata, attachments, published_url, archived, created_at, updated_at)
VALUES (:id, :academic_year, :title, :status, :sections, :contributors, :approvers, :metadata, :attachments, :published_url, :archived, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, report); err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

// GetByID returns a report aggregate by its identifier.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*models.Report, error) {
	query := fmt.Sprintf(`SELECT %s FROM reports WHERE id = $1 LIMIT 1`, reportColumns)
	var report models.Report
	if err := r.db.GetContext(ctx, &report, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get report: %w", err)
	}
	return &report, nil
}

// Update replaces the stored aggregate guarded by the version it was read
// at. The caller must have bumped report.Metadata.Version past
// expectedVersion before calling; a stale expectedVersion yields
// ErrVersionConflict.
func (r *ReportRepository) Update(ctx context.Context, report *models.Report, expectedVersion int) error {
	report.UpdatedAt = time.Now().UTC()

	const query = `UPDATE reports SET
	academic_year = $2, title = $3, status = $4, sections = $5, contributors = $6,
	approvers = $7, metadata = $8, attachments = $9, published_url = $10,
	archived = $11, updated_at = $12
WHERE id = $1 AND (metadata->>'version')::int = $13`
	res, err := r.db.ExecContext(ctx, query,
		report.ID, report.AcademicYear, report.Title, report.Status,
		report.Sections, report.Contributors, report.Approvers,
		report.Metadata, report.Attachments, report.PublishedURL,
		report.Archived, report.UpdatedAt, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update report: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update report rows affected: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// Delete hard-deletes a report row and, with it, every embedded section,
// contributor, approver and attachment record.
func (r *ReportRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete report rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns a page of reports plus the total match count, newest first.
func (r *ReportRepository) List(ctx context.Context, filter models.ReportFilter) ([]models.Report, int, error) {
	baseQuery := `FROM reports WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.AcademicYear != "" {
		conditions = append(conditions, fmt.Sprintf("academic_year = $%d", len(args)+1))
		args = append(args, filter.AcademicYear)
	}
	if filter.Department != "" {
		conditions = append(conditions, fmt.Sprintf("metadata->>'department' = $%d", len(args)+1))
		args = append(args, filter.Department)
	}
	if filter.Archived != nil {
		conditions = append(conditions, fmt.Sprintf("archived = $%d", len(args)+1))
		args = append(args, *filter.Archived)
	}
	if filter.RestrictToUser != "" {
		member, err := membershipJSON(filter.RestrictToUser)
		if err != nil {
			return nil, 0, err
		}
		idx := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(contributors @> $%d::jsonb OR approvers @> $%d::jsonb)", idx, idx))
		args = append(args, member)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", reportColumns, baseQuery, pageSize, offset)

	var reports []models.Report
	if err := r.db.SelectContext(ctx, &reports, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list reports: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count reports: %w", err)
	}

	return reports, total, nil
}

// Search runs a full-text query over title, section titles, section content
// and tags, ranked by the store's default relevance.
func (r *ReportRepository) Search(ctx context.Context, query, restrictToUser string, page, pageSize int) ([]models.Report, int, error) {
	baseQuery := `FROM reports WHERE search_tsv @@ plainto_tsquery('english', $1)`
	args := []interface{}{query}

	if restrictToUser != "" {
		member, err := membershipJSON(restrictToUser)
		if err != nil {
			return nil, 0, err
		}
		baseQuery += " AND (contributors @> $2::jsonb OR approvers @> $2::jsonb)"
		args = append(args, member)
	}

	page, pageSize = normalizePage(page, pageSize)
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf(
		"SELECT %s %s ORDER BY ts_rank(search_tsv, plainto_tsquery('english', $1)) DESC, created_at DESC LIMIT %d OFFSET %d",
		reportColumns, baseQuery, pageSize, offset,
	)

	var reports []models.Report
	if err := r.db.SelectContext(ctx, &reports, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("search reports: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count report search: %w", err)
	}

	return reports, total, nil
}

// membershipJSON builds the jsonb containment argument matching entries
// whose "user" key equals the given id.
func membershipJSON(userID string) (string, error) {
	raw, err := json.Marshal([]map[string]string{{"user": userID}})
	if err != nil {
		return "", fmt.Errorf("marshal membership filter: %w", err)
	}
	return string(raw), nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 10
	}
	return page, pageSize
}
