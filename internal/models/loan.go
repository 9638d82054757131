// internal/models/loan.go
package models

import (
	"time"
)

type Loan struct {
	BaseModel
	BorrowerID         string     `json:"borrower_id" gorm:"size:128;not null;index"`
	Principal          int64      `json:"principal" gorm:"not null"`
	DisbursedAmount    int64      `json:"disbursed_amount" gorm:"not null;default:0"`
	RepaidAmount       int64      `json:"repaid_amount" gorm:"not null;default:0"`
	PrincipalRepaid    int64      `json:"principal_repaid" gorm:"not null;default:0"`
	InterestPaid       int64      `json:"interest_paid" gorm:"not null;default:0"`
	AccruedInterest    int64      `json:"accrued_interest" gorm:"not null;default:0"`
	InterestRateBps    int64      `json:"interest_rate_bps" gorm:"not null"`
	StartTime          time.Time  `json:"start_time" gorm:"not null"`
	MaturityTime       time.Time  `json:"maturity_time" gorm:"not null;index"`
	LastAccrualTime    time.Time  `json:"last_accrual_time"`
	CollateralBatchIDs StringList `json:"collateral_batch_ids" gorm:"type:text"`
	Status             LoanStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	Purpose            string     `json:"purpose" gorm:"type:text"`
	CreatedBy          string     `json:"created_by" gorm:"size:128"`
	DefaultedAt        *time.Time `json:"defaulted_at"`
	LiquidatedAt       *time.Time `json:"liquidated_at"`
	LiquidatedTo       string     `json:"liquidated_to,omitempty" gorm:"size:128"`
	RepaidAt           *time.Time `json:"repaid_at"`
}

// OutstandingPrincipal is the disbursed principal not yet paid back.
func (l *Loan) OutstandingPrincipal() int64 {
	return l.DisbursedAmount - l.PrincipalRepaid
}
