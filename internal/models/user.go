package models

import (
	"database/sql/driver"
	"time"

	"github.com/lib/pq"
)

// UserRole represents the available roles for the access control checks.
type UserRole string

const (
	RoleAdmin       UserRole = "admin"
	RoleContributor UserRole = "contributor"
	RoleViewer      UserRole = "viewer"
)

// Permission is a fine-grained capability token independent of role.
type Permission string

const (
	PermissionCreate  Permission = "create"
	PermissionEdit    Permission = "edit"
	PermissionDelete  Permission = "delete"
	PermissionApprove Permission = "approve"
)

// Permissions is the set of capabilities granted to a user, stored as a
// text array column.
type Permissions []Permission

// Has reports whether the set contains the given permission.
func (p Permissions) Has(perm Permission) bool {
	for _, candidate := range p {
		if candidate == perm {
			return true
		}
	}
	return false
}

// Value implements driver.Valuer.
func (p Permissions) Value() (driver.Value, error) {
	arr := make(pq.StringArray, len(p))
	for i, perm := range p {
		arr[i] = string(perm)
	}
	return arr.Value()
}

// Scan implements sql.Scanner.
func (p *Permissions) Scan(src interface{}) error {
	var arr pq.StringArray
	if err := arr.Scan(src); err != nil {
		return err
	}
	perms := make(Permissions, len(arr))
	for i, raw := range arr {
		perms[i] = Permission(raw)
	}
	*p = perms
	return nil
}

// User represents an application user stored in the users table.
type User struct {
	ID           string      `db:"id" json:"id"`
	Username     string      `db:"username" json:"username"`
	Email        string      `db:"email" json:"email"`
	PasswordHash string      `db:"password_hash" json:"-"`
	Role         UserRole    `db:"role" json:"role"`
	Permissions  Permissions `db:"permissions" json:"permissions"`
	Department   string      `db:"department" json:"department"`
	Active       bool        `db:"active" json:"active"`
	LastLogin    *time.Time  `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role       *UserRole
	Department string
	Active     *bool
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}
