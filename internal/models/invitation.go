package models

import "time"

// Invitation is a single-use, time-boxed token binding an executor email to a
// pending relationship. Only a SHA-256 digest of the token is stored.
// Acceptance is recorded via AcceptedAt rather than deleting the row, so a
// consumed token deterministically reports "already accepted"; stale rows are
// purged by the maintenance cleaner.
type Invitation struct {
	BaseModel

	ExecutorID string    `gorm:"type:uuid;not null;uniqueIndex" json:"executor_id"`
	Executor   *Executor `gorm:"foreignKey:ExecutorID;constraint:OnDelete:CASCADE" json:"executor,omitempty"`
	TokenHash  string    `gorm:"not null;uniqueIndex" json:"-"`
	ExpiresAt  time.Time `gorm:"index" json:"expires_at"`

	AcceptedAt *time.Time `json:"accepted_at"`
}
