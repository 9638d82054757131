// internal/services/identity_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/coopfund-backend/internal/database"
	"github.com/javajoker/coopfund-backend/internal/models"
	"github.com/javajoker/coopfund-backend/internal/utils"
)

// IdentityService is the operator-table backed IdentityRegistry.
type IdentityService struct {
	db *gorm.DB
}

type CreateOperatorRequest struct {
	Identity     string              `json:"identity" validate:"required,identity"`
	Email        string              `json:"email" validate:"required,email"`
	Password     string              `json:"password" validate:"required,strong_password"`
	DisplayName  string              `json:"display_name,omitempty"`
	Capabilities []models.Capability `json:"capabilities"`
	ProfileData  models.JSONB        `json:"profile_data,omitempty"`
}

func NewIdentityService(db *gorm.DB) *IdentityService {
	return &IdentityService{db: db}
}

func (s *IdentityService) IsAuthorized(ctx context.Context, identity string, capability models.Capability) (bool, error) {
	if identity == "" {
		return false, nil
	}

	var operator models.Operator
	err := database.Conn(ctx, s.db).Where("identity = ?", identity).First(&operator).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("database error: %w", err)
	}

	if operator.Status != models.OperatorStatusActive {
		return false, nil
	}
	return operator.HasCapability(capability), nil
}

// CreateOperator registers a new identity. Only system administrators may
// hand out capabilities.
func (s *IdentityService) CreateOperator(ctx context.Context, actor string, req *CreateOperatorRequest) (*models.Operator, error) {
	if err := authorize(ctx, s, actor, models.CapabilitySystemAdmin); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	caps := make(models.StringList, 0, len(req.Capabilities))
	for _, c := range req.Capabilities {
		if !knownCapability(c) {
			return nil, newError(CodeNotFound, "capability", string(c), "unknown capability")
		}
		caps = append(caps, string(c))
	}

	db := database.Conn(ctx, s.db)

	var count int64
	if err := db.Model(&models.Operator{}).
		Where("identity = ? OR email = ?", req.Identity, req.Email).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if count > 0 {
		return nil, newError(CodeAlreadyExists, "operator", req.Identity, "identity or email already registered")
	}

	operator := &models.Operator{
		Identity:     req.Identity,
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		Capabilities: caps,
		Status:       models.OperatorStatusActive,
		ProfileData:  req.ProfileData,
	}
	if err := operator.SetPassword(req.Password); err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	if err := db.Create(operator).Error; err != nil {
		return nil, fmt.Errorf("failed to create operator: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"identity":     operator.Identity,
		"capabilities": []string(caps),
		"actor":        actor,
	}).Info("Operator registered")

	return operator, nil
}

// SetOperatorStatus suspends or reinstates an identity.
func (s *IdentityService) SetOperatorStatus(ctx context.Context, actor, identity string, status models.OperatorStatus) error {
	if err := authorize(ctx, s, actor, models.CapabilitySystemAdmin); err != nil {
		return err
	}
	if status != models.OperatorStatusActive && status != models.OperatorStatusSuspended {
		return newError(CodeInvalidState, "operator", identity, "unknown status %q", status)
	}

	result := database.Conn(ctx, s.db).Model(&models.Operator{}).
		Where("identity = ?", identity).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update operator: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return newError(CodeNotFound, "operator", identity, "operator not found")
	}
	return nil
}

func (s *IdentityService) GetOperator(ctx context.Context, identity string) (*models.Operator, error) {
	var operator models.Operator
	if err := database.Conn(ctx, s.db).Where("identity = ?", identity).First(&operator).Error; err != nil {
		return nil, notFoundOr(err, "operator", identity)
	}
	return &operator, nil
}

func knownCapability(c models.Capability) bool {
	for _, known := range models.AllCapabilities() {
		if c == known {
			return true
		}
	}
	return false
}
