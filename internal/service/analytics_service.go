package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campusops/report-portal/internal/models"
)

// AnalyticsRepository describes the persistence layer required by AnalyticsService.
type AnalyticsRepository interface {
	TotalReports(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context) ([]models.StatusCount, error)
	CountByDepartment(ctx context.Context) ([]models.DepartmentCount, error)
	MonthlyCreationCounts(ctx context.Context, year int) ([]models.MonthCount, error)
	DepartmentMetrics(ctx context.Context) ([]models.DepartmentMetrics, error)
	UserActivity(ctx context.Context) ([]models.UserActivity, error)
	CompletionTimes(ctx context.Context) ([]models.CompletionTime, error)
}

// AnalyticsService provides read-optimised access to report aggregations with cache integration.
type AnalyticsService struct {
	repo    AnalyticsRepository
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
}

// NewAnalyticsService constructs an analytics service.
func NewAnalyticsService(repo AnalyticsRepository, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *AnalyticsService {
	return &AnalyticsService{repo: repo, cache: cache, metrics: metrics, logger: logger}
}

// Dashboard returns the headline aggregations. The boolean indicates whether
// data originated from cache.
func (s *AnalyticsService) Dashboard(ctx context.Context, year int) (*models.DashboardStats, bool, error) {
	cacheKey := makeAnalyticsCacheKey("dashboard", fmt.Sprintf("%d", year))
	var cached models.DashboardStats
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err != nil {
			return nil, false, fmt.Errorf("get dashboard cache: %w", err)
		} else if hit {
			return &cached, true, nil
		}
	}

	start := time.Now()

	total, err := s.repo.TotalReports(ctx)
	if err != nil {
		return nil, false, err
	}
	statusData, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, false, err
	}
	departmentData, err := s.repo.CountByDepartment(ctx)
	if err != nil {
		return nil, false, err
	}
	monthly, err := s.repo.MonthlyCreationCounts(ctx, year)
	if err != nil {
		return nil, false, err
	}

	stats := &models.DashboardStats{
		TotalReports:   total,
		StatusData:     make(map[models.ReportStatus]int, len(statusData)),
		DepartmentData: make(map[string]int, len(departmentData)),
	}
	for _, row := range statusData {
		stats.StatusData[row.Status] = row.Count
	}
	for _, row := range departmentData {
		stats.DepartmentData[row.Department] = row.Count
	}
	// Trend is always a full 12-bucket series, months without reports
	// stay at zero.
	for _, bucket := range monthly {
		if bucket.Month >= 1 && bucket.Month <= 12 {
			stats.TrendData[bucket.Month-1] = bucket.Count
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveDBQuery("analytics_dashboard", time.Since(start))
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, stats, 0); err != nil && s.logger != nil {
			s.logger.Warn("cache dashboard", zap.Error(err))
		}
	}
	return stats, false, nil
}

// Departments returns per-department report outcome metrics.
func (s *AnalyticsService) Departments(ctx context.Context) ([]models.DepartmentMetrics, bool, error) {
	cacheKey := makeAnalyticsCacheKey("departments")
	var cached []models.DepartmentMetrics
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err != nil {
			return nil, false, fmt.Errorf("get departments cache: %w", err)
		} else if hit {
			return cached, true, nil
		}
	}

	start := time.Now()
	metrics, err := s.repo.DepartmentMetrics(ctx)
	if err != nil {
		return nil, false, err
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("analytics_departments", time.Since(start))
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, metrics, 0); err != nil && s.logger != nil {
			s.logger.Warn("cache departments", zap.Error(err))
		}
	}
	return metrics, false, nil
}

// UserActivity returns per-user contribution counts.
func (s *AnalyticsService) UserActivity(ctx context.Context) ([]models.UserActivity, bool, error) {
	cacheKey := makeAnalyticsCacheKey("user-activity")
	var cached []models.UserActivity
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err != nil {
			return nil, false, fmt.Errorf("get user activity cache: %w", err)
		} else if hit {
			return cached, true, nil
		}
	}

	start := time.Now()
	activity, err := s.repo.UserActivity(ctx)
	if err != nil {
		return nil, false, err
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("analytics_user_activity", time.Since(start))
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, activity, 0); err != nil && s.logger != nil {
			s.logger.Warn("cache user activity", zap.Error(err))
		}
	}
	return activity, false, nil
}

// CompletionTimes returns per-report creation-to-approval durations.
func (s *AnalyticsService) CompletionTimes(ctx context.Context) ([]models.CompletionTime, bool, error) {
	cacheKey := makeAnalyticsCacheKey("completion-times")
	var cached []models.CompletionTime
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err != nil {
			return nil, false, fmt.Errorf("get completion times cache: %w", err)
		} else if hit {
			return cached, true, nil
		}
	}

	start := time.Now()
	times, err := s.repo.CompletionTimes(ctx)
	if err != nil {
		return nil, false, err
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("analytics_completion_times", time.Since(start))
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, times, 0); err != nil && s.logger != nil {
			s.logger.Warn("cache completion times", zap.Error(err))
		}
	}
	return times, false, nil
}

// SystemMetrics exposes the current runtime metric snapshot.
func (s *AnalyticsService) SystemMetrics() models.AnalyticsSystemMetrics {
	if s.metrics == nil {
		return models.AnalyticsSystemMetrics{GeneratedAt: time.Now().UTC()}
	}
	return s.metrics.Snapshot()
}

func makeAnalyticsCacheKey(parts ...string) string {
	cleaned := make([]string, 0, len(parts)+1)
	cleaned = append(cleaned, "analytics")
	for _, part := range parts {
		if part == "" {
			part = "all"
		}
		cleaned = append(cleaned, part)
	}
	return strings.Join(cleaned, ":")
}
