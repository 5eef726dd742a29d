package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ReportStatus is the report's lifecycle discriminator.
type ReportStatus string

const (
	StatusDraft     ReportStatus = "draft"
	StatusReview    ReportStatus = "review"
	StatusApproved  ReportStatus = "approved"
	StatusRejected  ReportStatus = "rejected"
	StatusPublished ReportStatus = "published"
)

// Valid reports whether the value is a known lifecycle status.
func (s ReportStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusReview, StatusApproved, StatusRejected, StatusPublished:
		return true
	}
	return false
}

// ApprovalDecision is the outcome recorded by a reviewer.
type ApprovalDecision string

const (
	DecisionPending  ApprovalDecision = "pending"
	DecisionApproved ApprovalDecision = "approved"
	DecisionRejected ApprovalDecision = "rejected"
)

// ChartKind enumerates the supported chart renderings for a section.
type ChartKind string

const (
	ChartBar     ChartKind = "bar"
	ChartLine    ChartKind = "line"
	ChartPie     ChartKind = "pie"
	ChartRadar   ChartKind = "radar"
	ChartScatter ChartKind = "scatter"
)

// Valid reports whether the value is a known chart kind.
func (k ChartKind) Valid() bool {
	switch k {
	case ChartBar, ChartLine, ChartPie, ChartRadar, ChartScatter:
		return true
	}
	return false
}

// Chart is a chart specification embedded in a section. Data and Options
// are opaque JSON payloads consumed by the charting client.
type Chart struct {
	Kind    ChartKind       `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Options json.RawMessage `json:"options,omitempty"`
}

// Section is an ordered, report-owned content block.
type Section struct {
	Title        string          `json:"title"`
	Content      string          `json:"content,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	Charts       []Chart         `json:"charts,omitempty"`
	LastModified time.Time       `json:"lastModified"`
	ModifiedBy   string          `json:"modifiedBy"`
}

// Contributor grants a user editing participation on a report.
type Contributor struct {
	UserID string `json:"user"`
	Role   string `json:"role"`
}

// ApprovalEntry records a review decision on a report.
type ApprovalEntry struct {
	UserID   string           `json:"user"`
	Decision ApprovalDecision `json:"status"`
	Comments string           `json:"comments,omitempty"`
	Date     time.Time        `json:"date"`
}

// Attachment is a stored binary referenced from a report.
type Attachment struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	URL        string    `json:"url"`
	UploadedBy string    `json:"uploadedBy"`
	UploadDate time.Time `json:"uploadDate"`
}

// Institution identifies the reporting organisation.
type Institution struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Contact string `json:"contact,omitempty"`
}

// ReportMetadata groups document metadata including the concurrency version.
type ReportMetadata struct {
	Institution Institution `json:"institution"`
	Department  string      `json:"department"`
	Tags        []string    `json:"tags,omitempty"`
	Version     int         `json:"version"`
}

// JSONB column wrappers. Each embedded collection round-trips through a
// single jsonb column so the aggregate stays one row.

type Sections []Section

func (s Sections) Value() (driver.Value, error) { return jsonbValue(s) }
func (s *Sections) Scan(src interface{}) error  { return jsonbScan(src, s) }

type Contributors []Contributor

func (c Contributors) Value() (driver.Value, error) { return jsonbValue(c) }
func (c *Contributors) Scan(src interface{}) error  { return jsonbScan(src, c) }

// Contains reports whether the given user is listed.
func (c Contributors) Contains(userID string) bool {
	for _, entry := range c {
		if entry.UserID == userID {
			return true
		}
	}
	return false
}

type Approvers []ApprovalEntry

func (a Approvers) Value() (driver.Value, error) { return jsonbValue(a) }
func (a *Approvers) Scan(src interface{}) error  { return jsonbScan(src, a) }

// Contains reports whether the given user recorded an entry.
func (a Approvers) Contains(userID string) bool {
	for _, entry := range a {
		if entry.UserID == userID {
			return true
		}
	}
	return false
}

type Attachments []Attachment

func (a Attachments) Value() (driver.Value, error) { return jsonbValue(a) }
func (a *Attachments) Scan(src interface{}) error  { return jsonbScan(src, a) }

// Metadata is the jsonb-backed ReportMetadata column type.
type Metadata ReportMetadata

func (m Metadata) Value() (driver.Value, error) { return jsonbValue(m) }
func (m *Metadata) Scan(src interface{}) error  { return jsonbScan(src, m) }

func jsonbValue(v interface{}) (driver.Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal jsonb column: %w", err)
	}
	return raw, nil
}

func jsonbScan(src, dest interface{}) error {
	if src == nil {
		return nil
	}
	var raw []byte
	switch value := src.(type) {
	case []byte:
		raw = value
	case string:
		raw = []byte(value)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}

// Report is the unit-of-consistency document: the report row together with
// all embedded sections, contributors, approvers and attachments.
type Report struct {
	ID           string       `db:"id" json:"id"`
	AcademicYear string       `db:"academic_year" json:"academicYear"`
	Title        string       `db:"title" json:"title"`
	Status       ReportStatus `db:"status" json:"status"`
	Sections     Sections     `db:"sections" json:"sections"`
	Contributors Contributors `db:"contributors" json:"contributors"`
	Approvers    Approvers    `db:"approvers" json:"approvers"`
	Metadata     Metadata     `db:"metadata" json:"metadata"`
	Attachments  Attachments  `db:"attachments" json:"attachments"`
	PublishedURL *string      `db:"published_url" json:"publishedUrl,omitempty"`
	Archived     bool         `db:"archived" json:"isArchived"`
	CreatedAt    time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updatedAt"`
}

// CanBeEditedBy applies the contributor-or-admin authorization predicate.
func (r *Report) CanBeEditedBy(claims *JWTClaims) bool {
	if claims == nil {
		return false
	}
	if claims.IsAdmin() {
		return true
	}
	return r.Contributors.Contains(claims.UserID)
}

// ReportFilter captures listing criteria for reports.
type ReportFilter struct {
	Status       *ReportStatus
	AcademicYear string
	Department   string
	Archived     *bool
	// RestrictToUser limits results to reports where the given user is a
	// contributor or approver. Empty means no restriction (admin).
	RestrictToUser string
	Page           int
	PageSize       int
}
