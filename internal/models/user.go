package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User roles. A planner owns an estate plan; an executor account was created
// through an invitation. The role is mutable: a planner can act as an
// executor for someone else without losing planner standing.
const (
	RolePlanner  = "planner"
	RoleExecutor = "executor"
)

// User describes an authenticated account. Executor relationships reference
// users by email, not by foreign key, so one account can serve several
// planners.
type User struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`
	FullName string `json:"full_name"`
	Role     string `gorm:"not null;default:planner" json:"role"`

	IsActive bool `gorm:"default:true" json:"is_active"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `json:"last_login_ip"`

	FailedAttempts int        `gorm:"default:0" json:"-"`
	LockedUntil    *time.Time `json:"-"`

	Sessions []Session `gorm:"foreignKey:UserID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
