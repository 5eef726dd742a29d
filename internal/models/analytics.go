package models

import "time"

// DashboardStats is the aggregate shown on the landing dashboard.
type DashboardStats struct {
	TotalReports   int                  `json:"totalReports"`
	StatusData     map[ReportStatus]int `json:"statusData"`
	DepartmentData map[string]int       `json:"departmentData"`
	// TrendData holds per-calendar-month creation counts for the current
	// year; months without reports stay zero.
	TrendData [12]int `json:"trendData"`
}

// StatusCount is one row of the status grouping.
type StatusCount struct {
	Status ReportStatus `db:"status" json:"status"`
	Count  int          `db:"count" json:"count"`
}

// DepartmentCount is one row of the department grouping.
type DepartmentCount struct {
	Department string `db:"department" json:"department"`
	Count      int    `db:"count" json:"count"`
}

// MonthCount is one row of the creation trend grouping.
type MonthCount struct {
	Month int `db:"month" json:"month"`
	Count int `db:"count" json:"count"`
}

// DepartmentMetrics summarises review outcomes per department.
type DepartmentMetrics struct {
	Department   string `db:"department" json:"department"`
	TotalReports int    `db:"total_reports" json:"totalReports"`
	Approved     int    `db:"approved" json:"approved"`
	Rejected     int    `db:"rejected" json:"rejected"`
	Pending      int    `db:"pending" json:"pending"`
}

// UserActivity joins contribution counts with user display fields.
type UserActivity struct {
	UserID       string     `db:"user_id" json:"userId"`
	Username     string     `db:"username" json:"username"`
	Department   string     `db:"department" json:"department"`
	ReportCount  int        `db:"report_count" json:"reportCount"`
	LastActivity *time.Time `db:"last_activity" json:"lastActivity,omitempty"`
}

// CompletionTime holds elapsed seconds between report creation and the
// final review decision, aggregated per department.
type CompletionTime struct {
	Department     string  `db:"department" json:"department"`
	AverageSeconds float64 `db:"avg_seconds" json:"averageCompletionSeconds"`
	MinSeconds     float64 `db:"min_seconds" json:"minCompletionSeconds"`
	MaxSeconds     float64 `db:"max_seconds" json:"maxCompletionSeconds"`
}

// AnalyticsSystemMetrics is a lightweight instrumentation snapshot exposed
// to administrators.
type AnalyticsSystemMetrics struct {
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	DBQueryCount             uint64    `json:"dbQueryCount"`
	AverageDBQueryDurationMs float64   `json:"averageDbQueryDurationMs"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
