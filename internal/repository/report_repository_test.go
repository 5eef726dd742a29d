package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusops/report-portal/internal/models"
)

func reportRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "academic_year", "title", "status", "sections", "contributors", "approvers", "metadata", "attachments", "published_url", "archived", "created_at", "updated_at"}).
		AddRow(
			"r1", "2025/2026", "Annual Report", string(models.StatusDraft),
			[]byte(`[{"title":"Introduction","content":"Opening","lastModified":"2026-01-10T00:00:00Z","modifiedBy":"u1"}]`),
			[]byte(`[{"user":"u1","role":"creator"}]`),
			[]byte(`[]`),
			[]byte(`{"institution":{"name":"Campus"},"department":"Engineering","version":1}`),
			[]byte(`[]`),
			nil, false, now, now,
		)
}

func sampleReport() *models.Report {
	return &models.Report{
		ID:           "r1",
		AcademicYear: "2025/2026",
		Title:        "Annual Report",
		Status:       models.StatusDraft,
		Sections:     models.Sections{},
		Contributors: models.Contributors{{UserID: "u1", Role: "creator"}},
		Approvers:    models.Approvers{},
		Attachments:  models.Attachments{},
		Metadata:     models.Metadata{Department: "Engineering", Version: 2},
	}
}

func TestReportGetByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, academic_year, title, status, sections, contributors, approvers, metadata, attachments, published_url, archived, created_at, updated_at FROM reports WHERE id = $1 LIMIT 1")).
		WithArgs("r1").
		WillReturnRows(reportRows(now))

	report, err := repo.GetByID(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "Annual Report", report.Title)
	require.Len(t, report.Sections, 1)
	assert.Equal(t, "Introduction", report.Sections[0].Title)
	assert.True(t, report.Contributors.Contains("u1"))
	assert.Equal(t, 1, report.Metadata.Version)
	assert.Equal(t, "Engineering", report.Metadata.Department)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportCreateDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectExec("INSERT INTO reports").WillReturnResult(sqlmock.NewResult(1, 1))

	report := &models.Report{Title: "Fresh", AcademicYear: "2025/2026"}
	err := repo.Create(context.Background(), report)
	require.NoError(t, err)
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, models.StatusDraft, report.Status)
	assert.False(t, report.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportUpdateGuardsVersion(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectExec("UPDATE reports SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), sampleReport(), 1)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportUpdateVersionConflict(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	// Zero rows affected means the stored version moved on.
	mock.ExpectExec("UPDATE reports SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), sampleReport(), 1)
	require.ErrorIs(t, err, ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportDeleteMissingRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM reports WHERE id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportListRestrictsToMembership(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	now := time.Now()
	member := `[{"user":"u1"}]`
	mock.ExpectQuery(regexp.QuoteMeta("FROM reports WHERE 1=1 AND (contributors @> $1::jsonb OR approvers @> $1::jsonb) ORDER BY created_at DESC LIMIT 10 OFFSET 0")).
		WithArgs(member).
		WillReturnRows(reportRows(now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM reports WHERE 1=1 AND (contributors @> $1::jsonb OR approvers @> $1::jsonb)")).
		WithArgs(member).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	reports, total, err := repo.List(context.Background(), models.ReportFilter{RestrictToUser: "u1"})
	require.NoError(t, err)
	assert.Len(t, reports, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportListFiltersDepartmentFromMetadata(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("metadata->>'department' = $2")).
		WithArgs(models.StatusReview, "Engineering").
		WillReturnRows(reportRows(now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs(models.StatusReview, "Engineering").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	status := models.StatusReview
	_, _, err := repo.List(context.Background(), models.ReportFilter{Status: &status, Department: "Engineering"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportSearchUsesFullText(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("search_tsv @@ plainto_tsquery('english', $1)")).
		WithArgs("budget").
		WillReturnRows(reportRows(now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM reports WHERE search_tsv @@ plainto_tsquery('english', $1)")).
		WithArgs("budget").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	reports, total, err := repo.Search(context.Background(), "budget", "", 1, 10)
	require.NoError(t, err)
	assert.Len(t, reports, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
