package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleAdmin   UserRole = "admin"
)

func (r UserRole) IsValid() bool {
	return r == RoleStudent || r == RoleAdmin
}

type User struct {
	ID           string   `json:"id" gorm:"primaryKey;size:255"`
	Email        string   `json:"email" gorm:"uniqueIndex;not null;size:255"`
	PasswordHash string   `json:"-" gorm:"size:255"`
	Role         UserRole `json:"role" gorm:"not null;size:20;index"`

	// Profile info
	FirstName *string `json:"first_name" gorm:"size:100"`
	LastName  *string `json:"last_name" gorm:"size:100"`

	// Status
	IsActive    bool       `json:"is_active" gorm:"default:true"`
	LastLoginAt *time.Time `json:"last_login_at"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// DisplayName falls back to the email when no name is set.
func (u *User) DisplayName() string {
	var parts []string
	if u.FirstName != nil && strings.TrimSpace(*u.FirstName) != "" {
		parts = append(parts, strings.TrimSpace(*u.FirstName))
	}
	if u.LastName != nil && strings.TrimSpace(*u.LastName) != "" {
		parts = append(parts, strings.TrimSpace(*u.LastName))
	}
	if len(parts) == 0 {
		return u.Email
	}
	return strings.Join(parts, " ")
}
