// internal/models/proof.go
package models

import (
	"time"
)

// Proof is content addressed: Hash is the primary identifier.
type Proof struct {
	Hash             string      `json:"hash" gorm:"primaryKey;size:64"`
	BackendType      BackendType `json:"backend_type" gorm:"type:varchar(20);not null;index"`
	CircuitName      string      `json:"circuit_name" gorm:"size:100;not null"`
	CircuitVersion   string      `json:"circuit_version" gorm:"size:20;not null"`
	ProofData        []byte      `json:"proof_data" gorm:"not null"`
	PublicInputs     []byte      `json:"public_inputs"`
	PublicInputsHash string      `json:"public_inputs_hash" gorm:"size:64;not null"`
	Complexity       int64       `json:"complexity" gorm:"not null;default:0"`
	Metadata         JSONB       `json:"metadata" gorm:"type:jsonb"`
	Submitter        string      `json:"submitter" gorm:"size:128;not null;index"`
	SubmittedAt      time.Time   `json:"submitted_at" gorm:"not null"`
	Status           ProofStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	VerifiedAt       *time.Time  `json:"verified_at"`
	VerifiedBy       string      `json:"verified_by,omitempty" gorm:"size:128"`
	Cost             int64       `json:"cost" gorm:"not null;default:0"`
	Reason           string      `json:"reason,omitempty" gorm:"type:text"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

type CircuitDescriptor struct {
	BaseModel
	BackendType        BackendType `json:"backend_type" gorm:"type:varchar(20);not null;uniqueIndex:idx_circuit_identity"`
	Name               string      `json:"name" gorm:"size:100;not null;uniqueIndex:idx_circuit_identity"`
	Version            string      `json:"version" gorm:"size:20;not null;uniqueIndex:idx_circuit_identity"`
	IsActive           bool        `json:"is_active" gorm:"default:true;index"`
	MaxProofSize       int         `json:"max_proof_size" gorm:"not null"`
	MaxPublicInputSize int         `json:"max_public_input_size" gorm:"not null"`
	MaxConstraints     int64       `json:"max_constraints" gorm:"not null;default:0"`
	CostCeiling        int64       `json:"cost_ceiling" gorm:"not null"`
	VerifyingKey       []byte      `json:"-" gorm:"not null"`
	Description        string      `json:"description" gorm:"type:text"`
	RegisteredBy       string      `json:"registered_by" gorm:"size:128"`
	DeactivatedAt      *time.Time  `json:"deactivated_at"`
}
