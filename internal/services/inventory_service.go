// internal/services/inventory_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/coopfund-backend/internal/database"
	"github.com/javajoker/coopfund-backend/internal/models"
	"github.com/javajoker/coopfund-backend/internal/utils"
)

// InventoryService keeps a local batch registry and implements
// InventoryRegistry on top of it.
type InventoryService struct {
	db         *gorm.DB
	identities IdentityRegistry
}

type RegisterBatchRequest struct {
	BatchID   string `json:"batch_id" validate:"required,max=128"`
	OwnerID   string `json:"owner_id" validate:"required,identity"`
	Commodity string `json:"commodity" validate:"required,max=100"`
	Units     int64  `json:"units" validate:"gte=0"`
}

func NewInventoryService(db *gorm.DB, identities IdentityRegistry) *InventoryService {
	return &InventoryService{
		db:         db,
		identities: identities,
	}
}

func (s *InventoryService) BatchExists(ctx context.Context, batchID string) (bool, error) {
	var count int64
	if err := database.Conn(ctx, s.db).Model(&models.Batch{}).
		Where("batch_id = ?", batchID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to look up batch %s: %w", batchID, err)
	}
	return count > 0, nil
}

// ReassignOnLiquidation moves every listed batch to newOwner. A missing batch
// fails the whole call.
func (s *InventoryService) ReassignOnLiquidation(ctx context.Context, batchIDs []string, newOwner string) error {
	if newOwner == "" {
		return errors.New("new owner is required")
	}

	db := database.Conn(ctx, s.db)
	now := time.Now()
	for _, id := range batchIDs {
		result := db.Model(&models.Batch{}).
			Where("batch_id = ?", id).
			Updates(map[string]interface{}{
				"owner_id":      newOwner,
				"reassigned_at": now,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to reassign batch %s: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("batch %s is not registered", id)
		}
	}

	logrus.WithFields(logrus.Fields{
		"batches":   batchIDs,
		"new_owner": newOwner,
	}).Info("Collateral batches reassigned")
	return nil
}

// RegisterFutureBatch reserves a batch id for production that does not exist
// yet. The id is derived from the project so it is stable and unique.
func (s *InventoryService) RegisterFutureBatch(ctx context.Context, owner string, project *models.GreenfieldProject) (string, error) {
	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}
	batch := &models.Batch{
		BatchID:   "future-" + project.ID.String(),
		OwnerID:   owner,
		Commodity: project.Name,
		Units:     project.ExpectedUnits,
		IsFuture:  true,
	}
	if err := database.Conn(ctx, s.db).Create(batch).Error; err != nil {
		return "", fmt.Errorf("failed to register future batch: %w", err)
	}
	return batch.BatchID, nil
}

// RegisterBatch records a physical batch delivered by the cooperative.
func (s *InventoryService) RegisterBatch(ctx context.Context, actor string, req *RegisterBatchRequest) (*models.Batch, error) {
	if err := authorize(ctx, s.identities, actor, models.CapabilityGrantManagement); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	exists, err := s.BatchExists(ctx, req.BatchID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, newError(CodeAlreadyExists, "batch", req.BatchID, "batch already registered")
	}

	batch := &models.Batch{
		BatchID:   req.BatchID,
		OwnerID:   req.OwnerID,
		Commodity: req.Commodity,
		Units:     req.Units,
	}
	if err := database.Conn(ctx, s.db).Create(batch).Error; err != nil {
		return nil, fmt.Errorf("failed to register batch: %w", err)
	}
	return batch, nil
}

func (s *InventoryService) GetBatch(ctx context.Context, batchID string) (*models.Batch, error) {
	var batch models.Batch
	if err := database.Conn(ctx, s.db).Where("batch_id = ?", batchID).First(&batch).Error; err != nil {
		return nil, notFoundOr(err, "batch", batchID)
	}
	return &batch, nil
}
