// internal/models/pricing.go
package models

import (
	"time"
)

// PricingInfo is embedded in grants and batch pricing rows.
type PricingInfo struct {
	BasePrice          int64      `json:"base_price" gorm:"not null;default:0"`
	PremiumBps         int64      `json:"premium_bps" gorm:"not null;default:0"`
	GuaranteedMinPrice int64      `json:"guaranteed_min_price" gorm:"not null;default:0"`
	LastUpdate         *time.Time `json:"last_update"`
	IsActive           bool       `json:"is_active" gorm:"default:false"`
}

type CommodityQuote struct {
	BaseModel
	BasePrice  int64     `json:"base_price" gorm:"not null"`
	PremiumBps int64     `json:"premium_bps" gorm:"not null"`
	FairPrice  int64     `json:"fair_price" gorm:"not null"`
	QuotedAt   time.Time `json:"quoted_at" gorm:"not null;index"`
	UpdatedBy  string    `json:"updated_by" gorm:"size:128"`
}

type BatchPricing struct {
	BaseModel
	BatchID string      `json:"batch_id" gorm:"size:128;not null;uniqueIndex"`
	Pricing PricingInfo `json:"pricing" gorm:"embedded"`
}
