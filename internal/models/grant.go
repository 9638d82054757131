// internal/models/grant.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type Grant struct {
	BaseModel
	CooperativeID        string      `json:"cooperative_id" gorm:"size:128;not null;index"`
	Amount               int64       `json:"amount" gorm:"not null"`
	DisbursedAmount      int64       `json:"disbursed_amount" gorm:"not null;default:0"`
	DAOOwnershipBps      int64       `json:"dao_ownership_bps" gorm:"not null;default:0"`
	RevenueSharePct      int64       `json:"revenue_share_pct" gorm:"not null"`
	StartTime            time.Time   `json:"start_time" gorm:"not null"`
	MaturityTime         time.Time   `json:"maturity_time" gorm:"not null;index"`
	BatchIDs             StringList  `json:"batch_ids" gorm:"type:text"`
	TotalRevenueShared   int64       `json:"total_revenue_shared" gorm:"not null;default:0"`
	MinimumRevenueTarget int64       `json:"minimum_revenue_target" gorm:"not null"`
	Status               GrantStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	Name                 string      `json:"name" gorm:"size:255"`
	Purpose              string      `json:"purpose" gorm:"type:text"`
	Location             string      `json:"location" gorm:"size:255"`
	IsGreenfield         bool        `json:"is_greenfield" gorm:"default:false"`
	ProjectID            *uuid.UUID  `json:"project_id" gorm:"type:uuid;index"`
	CreatedBy            string      `json:"created_by" gorm:"size:128"`
	CompletedAt          *time.Time  `json:"completed_at"`
	Pricing              PricingInfo `json:"pricing" gorm:"embedded;embeddedPrefix:pricing_"`

	// Relationships
	Project *GreenfieldProject `json:"project,omitempty" gorm:"foreignKey:ProjectID"`
}

// Available is the part of the grant not yet released to the cooperative.
func (g *Grant) Available() int64 {
	return g.Amount - g.DisbursedAmount
}

type GreenfieldProject struct {
	BaseModel
	CooperativeID   string     `json:"cooperative_id" gorm:"size:128;not null;index"`
	Name            string     `json:"name" gorm:"size:255;not null"`
	Location        string     `json:"location" gorm:"size:255"`
	Description     string     `json:"description" gorm:"type:text"`
	ExpectedUnits   int64      `json:"expected_units"`
	ExpectedHarvest *time.Time `json:"expected_harvest"`
	FutureBatchID   string     `json:"future_batch_id" gorm:"size:128;index"`
}
