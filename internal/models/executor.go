package models

import "time"

// Executor status values. Transitions are one-directional:
// pending -> active (invitation accepted), {pending,active} -> revoked.
// Revoked is terminal; re-inviting requires a fresh Executor row.
const (
	ExecutorStatusPending = "pending"
	ExecutorStatusActive  = "active"
	ExecutorStatusRevoked = "revoked"
)

// Executor represents a trust relationship between a planner and the person
// designated to act on their behalf. The invitee is identified by email until
// the invitation is accepted.
type Executor struct {
	BaseModel

	PlannerID    string `gorm:"type:uuid;not null;uniqueIndex:uniq_executors_planner_active_email;index:idx_executors_planner_email" json:"planner_id"`
	Planner      *User  `gorm:"foreignKey:PlannerID" json:"planner,omitempty"`
	Name         string `gorm:"not null" json:"name"`
	Email        string `gorm:"not null;index:idx_executors_planner_email" json:"email"`
	Relationship string `json:"relationship"`
	Status       string `gorm:"not null;default:pending;index" json:"status"`

	// ActiveEmail mirrors Email while the relationship is live and is nulled
	// on revocation. The (planner_id, active_email) unique index admits at
	// most one non-revoked executor per invited address; NULL rows never
	// collide, so any number of revoked tombstones can share an email.
	ActiveEmail *string `gorm:"uniqueIndex:uniq_executors_planner_active_email" json:"-"`

	ActivatedAt *time.Time `json:"activated_at"`
	RevokedAt   *time.Time `json:"revoked_at"`
}
