package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campusops/report-portal/internal/models"
	appErrors "github.com/campusops/report-portal/pkg/errors"
)

type analyticsRepoStub struct {
	total       int
	byStatus    []models.StatusCount
	byDept      []models.DepartmentCount
	monthly     []models.MonthCount
	deptMetrics []models.DepartmentMetrics
	activity    []models.UserActivity
	completion  []models.CompletionTime
	calls       int
}

func (r *analyticsRepoStub) TotalReports(ctx context.Context) (int, error) {
	r.calls++
	return r.total, nil
}

func (r *analyticsRepoStub) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	return r.byStatus, nil
}

func (r *analyticsRepoStub) CountByDepartment(ctx context.Context) ([]models.DepartmentCount, error) {
	return r.byDept, nil
}

func (r *analyticsRepoStub) MonthlyCreationCounts(ctx context.Context, year int) ([]models.MonthCount, error) {
	return r.monthly, nil
}

func (r *analyticsRepoStub) DepartmentMetrics(ctx context.Context) ([]models.DepartmentMetrics, error) {
	return r.deptMetrics, nil
}

func (r *analyticsRepoStub) UserActivity(ctx context.Context) ([]models.UserActivity, error) {
	return r.activity, nil
}

func (r *analyticsRepoStub) CompletionTimes(ctx context.Context) ([]models.CompletionTime, error) {
	return r.completion, nil
}

type cacheRepoStub struct {
	entries map[string][]byte
}

func newCacheRepoStub() *cacheRepoStub {
	return &cacheRepoStub{entries: map[string][]byte{}}
}

func (c *cacheRepoStub) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *cacheRepoStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return nil
}

func (c *cacheRepoStub) DeleteByPattern(ctx context.Context, pattern string) error {
	c.entries = map[string][]byte{}
	return nil
}

func TestAnalyticsServiceDashboard(t *testing.T) {
	repo := &analyticsRepoStub{
		total: 42,
		byStatus: []models.StatusCount{
			{Status: models.StatusDraft, Count: 10},
			{Status: models.StatusPublished, Count: 32},
		},
		byDept: []models.DepartmentCount{
			{Department: "Engineering", Count: 25},
			{Department: "Science", Count: 17},
		},
		monthly: []models.MonthCount{
			{Month: 1, Count: 4},
			{Month: 6, Count: 9},
		},
	}
	svc := NewAnalyticsService(repo, nil, nil, zap.NewNop())

	stats, cached, err := svc.Dashboard(context.Background(), 2026)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 42, stats.TotalReports)
	assert.Equal(t, 10, stats.StatusData[models.StatusDraft])
	assert.Equal(t, 25, stats.DepartmentData["Engineering"])

	// Twelve buckets, zero-filled for months without reports.
	assert.Equal(t, 4, stats.TrendData[0])
	assert.Equal(t, 9, stats.TrendData[5])
	assert.Equal(t, 0, stats.TrendData[11])
}

func TestAnalyticsServiceDashboardUsesCache(t *testing.T) {
	repo := &analyticsRepoStub{total: 7}
	cache := NewCacheService(newCacheRepoStub(), nil, time.Minute, zap.NewNop(), true)
	svc := NewAnalyticsService(repo, cache, nil, zap.NewNop())

	_, cached, err := svc.Dashboard(context.Background(), 2026)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 1, repo.calls)

	stats, cached, err := svc.Dashboard(context.Background(), 2026)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 7, stats.TotalReports)
	assert.Equal(t, 1, repo.calls)
}

func TestAnalyticsServiceDepartments(t *testing.T) {
	repo := &analyticsRepoStub{
		deptMetrics: []models.DepartmentMetrics{
			{Department: "Engineering", TotalReports: 12, Approved: 8, Rejected: 1, Pending: 3},
		},
	}
	svc := NewAnalyticsService(repo, nil, nil, zap.NewNop())

	metrics, cached, err := svc.Departments(context.Background())
	require.NoError(t, err)
	assert.False(t, cached)
	require.Len(t, metrics, 1)
	assert.Equal(t, 8, metrics[0].Approved)
}

func TestAnalyticsServiceUserActivity(t *testing.T) {
	repo := &analyticsRepoStub{
		activity: []models.UserActivity{
			{UserID: "u1", Username: "alice", ReportCount: 5},
		},
	}
	svc := NewAnalyticsService(repo, nil, nil, zap.NewNop())

	activity, _, err := svc.UserActivity(context.Background())
	require.NoError(t, err)
	require.Len(t, activity, 1)
	assert.Equal(t, 5, activity[0].ReportCount)
}

func TestAnalyticsServiceCompletionTimes(t *testing.T) {
	repo := &analyticsRepoStub{
		completion: []models.CompletionTime{
			{Department: "Engineering", AverageSeconds: 86400, MinSeconds: 3600, MaxSeconds: 172800},
		},
	}
	svc := NewAnalyticsService(repo, nil, nil, zap.NewNop())

	times, _, err := svc.CompletionTimes(context.Background())
	require.NoError(t, err)
	require.Len(t, times, 1)
	assert.Equal(t, float64(86400), times[0].AverageSeconds)
}

func TestMakeAnalyticsCacheKey(t *testing.T) {
	assert.Equal(t, "analytics:dashboard:2026", makeAnalyticsCacheKey("dashboard", "2026"))
	assert.Equal(t, "analytics:dashboard:all", makeAnalyticsCacheKey("dashboard", ""))
}
