// internal/models/inventory.go
package models

import (
	"time"
)

// Batch mirrors the external inventory registry's unit-ownership records.
type Batch struct {
	BaseModel
	BatchID      string     `json:"batch_id" gorm:"size:128;not null;uniqueIndex"`
	OwnerID      string     `json:"owner_id" gorm:"size:128;not null;index"`
	Commodity    string     `json:"commodity" gorm:"size:100"`
	Units        int64      `json:"units" gorm:"not null;default:0"`
	IsFuture     bool       `json:"is_future" gorm:"default:false"`
	ReassignedAt *time.Time `json:"reassigned_at"`
}

// TreasuryAccount holds the pooled capital when custody is kept in-house.
type TreasuryAccount struct {
	BaseModel
	Name    string `json:"name" gorm:"size:100;not null;uniqueIndex"`
	Balance int64  `json:"balance" gorm:"not null;default:0"`
}

type CustodyTransfer struct {
	BaseModel
	Recipient string `json:"recipient" gorm:"size:128;not null;index"`
	Amount    int64  `json:"amount" gorm:"not null"`
	Reference string `json:"reference" gorm:"size:255"`
	Provider  string `json:"provider" gorm:"size:20;not null"`
}
