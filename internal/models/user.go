package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role is a user's authorization level.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User represents an account holder. Balance is the cash balance in USD.
type User struct {
	Base
	Email       string          `gorm:"uniqueIndex;not null" json:"email"`
	Password    string          `gorm:"not null" json:"-"`
	Role        Role            `gorm:"not null;default:user" json:"role"`
	Balance     decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"balance"`
	IsActive    bool            `gorm:"default:true" json:"is_active"`
	LastLoginAt *time.Time      `json:"last_login_at,omitempty"`
	Holdings    []Holding       `gorm:"foreignKey:UserID" json:"holdings,omitempty"`
}

// IsAdmin reports whether the user may use the back-office.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
