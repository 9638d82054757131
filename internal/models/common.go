// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Basis points denominator: 10000 bps == 100%.
const BasisPoints int64 = 10000

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// BeforeCreate assigns the identifier client-side so the same models work on
// postgres and sqlite.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", value)
	}
}

// StringList is stored as a JSON array so that it round-trips on every driver.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, (*[]string)(l))
	case string:
		return json.Unmarshal([]byte(v), (*[]string)(l))
	default:
		return fmt.Errorf("unsupported StringList source type %T", value)
	}
}

// Enums
type GrantStatus string

const (
	GrantStatusPending   GrantStatus = "pending"
	GrantStatusActive    GrantStatus = "active"
	GrantStatusCompleted GrantStatus = "completed"
	GrantStatusMatured   GrantStatus = "matured"
)

var grantTransitions = map[GrantStatus][]GrantStatus{
	GrantStatusPending: {GrantStatusActive, GrantStatusCompleted},
	GrantStatusActive:  {GrantStatusCompleted, GrantStatusMatured},
}

func (s GrantStatus) IsTerminal() bool {
	return s == GrantStatusCompleted || s == GrantStatusMatured
}

func (s GrantStatus) CanTransition(to GrantStatus) bool {
	for _, next := range grantTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type LoanStatus string

const (
	LoanStatusPending    LoanStatus = "pending"
	LoanStatusActive     LoanStatus = "active"
	LoanStatusRepaid     LoanStatus = "repaid"
	LoanStatusDefaulted  LoanStatus = "defaulted"
	LoanStatusLiquidated LoanStatus = "liquidated"
)

var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanStatusPending:   {LoanStatusActive},
	LoanStatusActive:    {LoanStatusRepaid, LoanStatusDefaulted},
	LoanStatusDefaulted: {LoanStatusLiquidated},
}

func (s LoanStatus) IsTerminal() bool {
	return s == LoanStatusRepaid || s == LoanStatusLiquidated
}

func (s LoanStatus) CanTransition(to LoanStatus) bool {
	for _, next := range loanTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type ProofStatus string

const (
	ProofStatusPending  ProofStatus = "pending"
	ProofStatusVerified ProofStatus = "verified"
	ProofStatusRejected ProofStatus = "rejected"
	ProofStatusExpired  ProofStatus = "expired"
)

func (s ProofStatus) IsTerminal() bool {
	return s != ProofStatusPending
}

func (s ProofStatus) CanTransition(to ProofStatus) bool {
	return s == ProofStatusPending && to != ProofStatusPending
}

type BackendType string

const (
	BackendHeavyCompute BackendType = "heavy_compute"
	BackendLightVerify  BackendType = "light_verify"
)

func (b BackendType) Valid() bool {
	return b == BackendHeavyCompute || b == BackendLightVerify
}

// ScheduleOwnerKind tells which ledger owns a disbursement schedule.
type ScheduleOwnerKind string

const (
	ScheduleOwnerGrant ScheduleOwnerKind = "grant"
	ScheduleOwnerLoan  ScheduleOwnerKind = "loan"
)

type Capability string

const (
	CapabilityGrantManagement     Capability = "grant-management"
	CapabilityMilestoneValidation Capability = "milestone-validation"
	CapabilityProofVerification   Capability = "proof-verification"
	CapabilityProofSubmission     Capability = "proof-submission"
	CapabilityEvidenceSubmission  Capability = "evidence-submission"
	CapabilityPricingAdmin        Capability = "pricing-admin"
	CapabilitySystemAdmin         Capability = "system-admin"
)

func AllCapabilities() []Capability {
	return []Capability{
		CapabilityGrantManagement,
		CapabilityMilestoneValidation,
		CapabilityProofVerification,
		CapabilityProofSubmission,
		CapabilityEvidenceSubmission,
		CapabilityPricingAdmin,
		CapabilitySystemAdmin,
	}
}

type OperatorStatus string

const (
	OperatorStatusActive    OperatorStatus = "active"
	OperatorStatusSuspended OperatorStatus = "suspended"
)
