// internal/models/admin.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type AdminSettings struct {
	BaseModel
	Category    string `json:"category" gorm:"size:50;not null;uniqueIndex:idx_settings_key"`
	Key         string `json:"key" gorm:"size:100;not null;uniqueIndex:idx_settings_key"`
	Value       JSONB  `json:"value" gorm:"type:jsonb;not null"`
	DataType    string `json:"data_type" gorm:"size:20;not null"`
	Description string `json:"description" gorm:"type:text"`
	UpdatedBy   string `json:"updated_by" gorm:"size:128;not null"`
}

type AuditLog struct {
	BaseModel
	Identity     string     `json:"identity" gorm:"size:128;index"`
	Action       string     `json:"action" gorm:"size:100;not null;index"`
	ResourceType string     `json:"resource_type" gorm:"size:50;not null;index"`
	ResourceID   *uuid.UUID `json:"resource_id" gorm:"type:uuid;index"`
	NewValues    JSONB      `json:"new_values" gorm:"type:jsonb"`
	StatusCode   int        `json:"status_code"`
	IPAddress    string     `json:"ip_address" gorm:"size:45"`
	UserAgent    string     `json:"user_agent" gorm:"type:text"`
}

// LedgerEvent is the outbound notification consumed by off-chain observers.
type LedgerEvent struct {
	BaseModel
	EventType  string    `json:"event_type" gorm:"type:varchar(50);not null;index"`
	EntityType string    `json:"entity_type" gorm:"size:50;not null;index"`
	EntityID   string    `json:"entity_id" gorm:"size:128;not null;index"`
	Actor      string    `json:"actor" gorm:"size:128"`
	Fields     JSONB     `json:"fields" gorm:"type:jsonb"`
	OccurredAt time.Time `json:"occurred_at" gorm:"not null;index"`
}
