package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/campusops/report-portal/internal/models"
)

// AnalyticsRepository exposes read-optimised aggregations over the report
// collection. Everything is computed on demand; report volume is
// institution-scale.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository instantiates the repository.
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// TotalReports counts all report rows.
func (r *AnalyticsRepository) TotalReports(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM reports`); err != nil {
		return 0, fmt.Errorf("count reports: %w", err)
	}
	return total, nil
}

// CountByStatus groups report counts by lifecycle status.
func (r *AnalyticsRepository) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	const query = `SELECT status, COUNT(*) AS count FROM reports GROUP BY status`
	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count reports by status: %w", err)
	}
	return counts, nil
}

// CountByDepartment groups report counts by department.
func (r *AnalyticsRepository) CountByDepartment(ctx context.Context) ([]models.DepartmentCount, error) {
	const query = `SELECT metadata->>'department' AS department, COUNT(*) AS count
FROM reports
WHERE metadata->>'department' IS NOT NULL AND metadata->>'department' <> ''
GROUP BY 1`
	var counts []models.DepartmentCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count reports by department: %w", err)
	}
	return counts, nil
}

// MonthlyCreationCounts returns per-month creation counts for the given year.
func (r *AnalyticsRepository) MonthlyCreationCounts(ctx context.Context, year int) ([]models.MonthCount, error) {
	const query = `SELECT EXTRACT(MONTH FROM created_at)::int AS month, COUNT(*) AS count
FROM reports
WHERE EXTRACT(YEAR FROM created_at)::int = $1
GROUP BY 1
ORDER BY 1`
	var counts []models.MonthCount
	if err := r.db.SelectContext(ctx, &counts, query, year); err != nil {
		return nil, fmt.Errorf("monthly creation counts: %w", err)
	}
	return counts, nil
}

// DepartmentMetrics summarises review outcomes per department.
func (r *AnalyticsRepository) DepartmentMetrics(ctx context.Context) ([]models.DepartmentMetrics, error) {
	const query = `SELECT metadata->>'department' AS department,
	COUNT(*) AS total_reports,
	SUM(CASE WHEN status = 'approved' THEN 1 ELSE 0 END) AS approved,
	SUM(CASE WHEN status = 'rejected' THEN 1 ELSE 0 END) AS rejected,
	SUM(CASE WHEN status = 'review' THEN 1 ELSE 0 END) AS pending
FROM reports
WHERE metadata->>'department' IS NOT NULL AND metadata->>'department' <> ''
GROUP BY 1`
	var metrics []models.DepartmentMetrics
	if err := r.db.SelectContext(ctx, &metrics, query); err != nil {
		return nil, fmt.Errorf("department metrics: %w", err)
	}
	return metrics, nil
}

// UserActivity joins per-contributor report counts with user display fields.
func (r *AnalyticsRepository) UserActivity(ctx context.Context) ([]models.UserActivity, error) {
	const query = `SELECT c.entry->>'user' AS user_id, u.username, u.department,
	COUNT(*) AS report_count, MAX(r.updated_at) AS last_activity
FROM reports r
CROSS JOIN LATERAL jsonb_array_elements(r.contributors) AS c(entry)
JOIN users u ON u.id::text = c.entry->>'user'
GROUP BY 1, 2, 3
ORDER BY report_count DESC`
	var activity []models.UserActivity
	if err := r.db.SelectContext(ctx, &activity, query); err != nil {
		return nil, fmt.Errorf("user activity: %w", err)
	}
	return activity, nil
}

// CompletionTimes aggregates, per department, the elapsed time between
// report creation and the last recorded review decision. Only approved and
// published reports with at least one approval entry count.
func (r *AnalyticsRepository) CompletionTimes(ctx context.Context) ([]models.CompletionTime, error) {
	const query = `SELECT metadata->>'department' AS department,
	AVG(EXTRACT(EPOCH FROM ((approvers -> -1 ->> 'date')::timestamptz - created_at))) AS avg_seconds,
	MIN(EXTRACT(EPOCH FROM ((approvers -> -1 ->> 'date')::timestamptz - created_at))) AS min_seconds,
	MAX(EXTRACT(EPOCH FROM ((approvers -> -1 ->> 'date')::timestamptz - created_at))) AS max_seconds
FROM reports
WHERE status IN ('approved', 'published') AND jsonb_array_length(approvers) > 0
GROUP BY 1`
	var times []models.CompletionTime
	if err := r.db.SelectContext(ctx, &times, query); err != nil {
		return nil, fmt.Errorf("completion times: %w", err)
	}
	return times, nil
}
