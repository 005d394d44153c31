package models

import (
	"time"

	"gorm.io/datatypes"
)

// Trigger event types and verification methods.
const (
	TriggerTypeDeath          = "death"
	TriggerTypeIncapacitation = "incapacitation"

	VerificationMethodProfessional = "professional"
)

// TriggerEvent holds the per-(planner, executor) verification record. The
// Triggered flag is the sole authorization gate for executor access and acts
// as a one-way latch: once true it is never reset. Revocation is expressed on
// the Executor row, independent of this flag.
type TriggerEvent struct {
	BaseModel

	PlannerID  string    `gorm:"type:uuid;not null;index:idx_triggers_pair" json:"planner_id"`
	ExecutorID string    `gorm:"type:uuid;not null;index:idx_triggers_pair" json:"executor_id"`
	Executor   *Executor `gorm:"foreignKey:ExecutorID;constraint:OnDelete:CASCADE" json:"executor,omitempty"`

	Type                string         `gorm:"not null;index:idx_triggers_pair" json:"type"`
	VerificationMethod  string         `gorm:"not null" json:"verification_method"`
	VerificationDetails datatypes.JSON `json:"verification_details,omitempty"`

	Triggered   bool       `gorm:"not null;default:false" json:"triggered"`
	TriggeredAt *time.Time `json:"triggered_at"`
}
