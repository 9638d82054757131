// internal/services/notification_service.go
package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/coopfund-backend/internal/database"
	"github.com/javajoker/coopfund-backend/internal/models"
	"github.com/javajoker/coopfund-backend/internal/utils"
)

// Event types published to off-chain observers.
const (
	EventGrantCreated         = "grant_created"
	EventGrantStatusChanged   = "grant_status_changed"
	EventLoanCreated          = "loan_created"
	EventLoanDisbursed        = "loan_disbursed"
	EventLoanRepaid           = "loan_repaid"
	EventLoanDefaulted        = "loan_defaulted"
	EventLoanLiquidated       = "loan_liquidated"
	EventScheduleCreated      = "schedule_created"
	EventEvidenceSubmitted    = "evidence_submitted"
	EventMilestoneRejected    = "milestone_rejected"
	EventMilestoneCompleted   = "milestone_completed"
	EventRevenueShareRecorded = "revenue_share_recorded"
	EventProofSubmitted       = "proof_submitted"
	EventProofVerified        = "proof_verified"
	EventCircuitRegistered    = "circuit_registered"
	EventCircuitDeactivated   = "circuit_deactivated"
	EventCircuitReactivated   = "circuit_reactivated"
	EventExpiryWindowChanged  = "expiry_window_changed"
	EventPricingUpdated       = "pricing_updated"
	EventComponentPaused      = "component_paused"
	EventComponentUnpaused    = "component_unpaused"
)

type NotificationService struct {
	db  *gorm.DB
	seq *Sequencer
}

type EventFilter struct {
	utils.PaginationParams
	EntityType string `json:"entity_type,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`
	EventType  string `json:"event_type,omitempty"`
}

func NewNotificationService(db *gorm.DB, seq *Sequencer) *NotificationService {
	return &NotificationService{
		db:  db,
		seq: seq,
	}
}

// Emit records the event in the transaction carried by ctx. A rollback of the
// surrounding operation discards the event with it.
func (s *NotificationService) Emit(ctx context.Context, eventType, entityType, entityID, actor string, fields map[string]interface{}) error {
	event := &models.LedgerEvent{
		EventType:  eventType,
		EntityType: entityType,
		EntityID:   entityID,
		Actor:      actor,
		Fields:     models.JSONB(fields),
		OccurredAt: s.seq.Now(),
	}

	if err := database.Conn(ctx, s.db).Create(event).Error; err != nil {
		return fmt.Errorf("failed to record %s event: %w", eventType, err)
	}

	logrus.WithFields(logrus.Fields{
		"event":       eventType,
		"entity_type": entityType,
		"entity_id":   entityID,
		"actor":       actor,
	}).Info("Ledger event")

	return nil
}

func (s *NotificationService) ListEvents(ctx context.Context, filter EventFilter) ([]models.LedgerEvent, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.LedgerEvent{})

	if filter.EntityType != "" {
		query = query.Where("entity_type = ?", filter.EntityType)
	}
	if filter.EntityID != "" {
		query = query.Where("entity_id = ?", filter.EntityID)
	}
	if filter.EventType != "" {
		query = query.Where("event_type = ?", filter.EventType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}

	var events []models.LedgerEvent
	query = utils.ApplySort(query, filter.PaginationParams, []string{"occurred_at", "created_at", "event_type"})
	query = utils.ApplyPagination(query, filter.PaginationParams)
	if err := query.Find(&events).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch events: %w", err)
	}

	return events, total, nil
}
