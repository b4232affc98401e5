package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin     UserRole = "SUPERADMIN"
	RoleAdmin          UserRole = "ADMIN"
	RoleOfficer        UserRole = "OFFICER"
	RoleMinistry       UserRole = "MINISTRY"
	RoleHealthExaminer UserRole = "HEALTH_EXAMINER"
	RoleCoordinator    UserRole = "COORDINATOR"
	RoleManager        UserRole = "MANAGER"
)

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserFilter constrains user listing queries.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	SortBy    string
	SortOrder string
	Page      int
	PageSize  int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
