// internal/models/schedule.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type DisbursementSchedule struct {
	BaseModel
	OwnerKind           ScheduleOwnerKind `json:"owner_kind" gorm:"type:varchar(10);not null;uniqueIndex:idx_schedule_owner"`
	OwnerID             uuid.UUID         `json:"owner_id" gorm:"type:uuid;not null;uniqueIndex:idx_schedule_owner"`
	Recipient           string            `json:"recipient" gorm:"size:128;not null"`
	EscrowedAmount      int64             `json:"escrowed_amount" gorm:"not null"`
	RemainingEscrow     int64             `json:"remaining_escrow" gorm:"not null"`
	MilestoneCount      int               `json:"milestone_count" gorm:"not null"`
	CompletedMilestones int               `json:"completed_milestones" gorm:"not null;default:0"`
	IsActive            bool              `json:"is_active" gorm:"default:true"`
	CreatedBy           string            `json:"created_by" gorm:"size:128"`

	// Relationships
	Milestones []Milestone `json:"milestones" gorm:"foreignKey:ScheduleID"`
}

type Milestone struct {
	BaseModel
	ScheduleID          uuid.UUID   `json:"schedule_id" gorm:"type:uuid;not null;uniqueIndex:idx_milestone_position"`
	Position            int         `json:"index" gorm:"not null;uniqueIndex:idx_milestone_position"`
	Description         string      `json:"description" gorm:"type:text;not null"`
	PercentageShare     int64       `json:"percentage_share" gorm:"not null"`
	RequiredProofType   BackendType `json:"required_proof_type,omitempty" gorm:"type:varchar(20)"`
	IsCompleted         bool        `json:"is_completed" gorm:"default:false"`
	EvidenceReference   string      `json:"evidence_reference" gorm:"type:text"`
	ProofHash           string      `json:"proof_hash,omitempty" gorm:"size:64"`
	EvidenceSubmittedAt *time.Time  `json:"evidence_submitted_at"`
	EvidenceSubmitter   string      `json:"evidence_submitter,omitempty" gorm:"size:128"`
	CompletionTimestamp *time.Time  `json:"completion_timestamp"`
	ValidatorIdentity   string      `json:"validator_identity,omitempty" gorm:"size:128"`
	DisbursedAmount     int64       `json:"disbursed_amount" gorm:"not null;default:0"`
	RejectionCount      int         `json:"rejection_count" gorm:"not null;default:0"`
}
