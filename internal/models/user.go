// internal/models/user.go
package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Operator is an identity known to the identity registry: staff, cooperatives
// and verification agents alike.
type Operator struct {
	BaseModel
	Identity     string         `json:"identity" gorm:"uniqueIndex;size:128;not null"`
	Email        string         `json:"email" gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string         `json:"-" gorm:"size:255;not null"`
	DisplayName  string         `json:"display_name" gorm:"size:255"`
	Capabilities StringList     `json:"capabilities" gorm:"type:text"`
	Status       OperatorStatus `json:"status" gorm:"type:varchar(20);default:'active'"`
	ProfileData  JSONB          `json:"profile_data" gorm:"type:jsonb"`
	LastLoginAt  *time.Time     `json:"last_login_at"`
}

func (o *Operator) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	o.PasswordHash = string(hashedPassword)
	return nil
}

func (o *Operator) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(o.PasswordHash), []byte(password))
}

func (o *Operator) HasCapability(capability Capability) bool {
	for _, c := range o.Capabilities {
		if c == string(capability) {
			return true
		}
	}
	return false
}
