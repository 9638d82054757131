// internal/services/grant_service.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/coopfund-backend/internal/config"
	"github.com/javajoker/coopfund-backend/internal/database"
	"github.com/javajoker/coopfund-backend/internal/metrics"
	"github.com/javajoker/coopfund-backend/internal/models"
	"github.com/javajoker/coopfund-backend/internal/utils"
)

// GrantService is the grant ledger. It owns grant records, revenue-share
// accounting and grant status transitions.
type GrantService struct {
	db            *gorm.DB
	cfg           *config.Config
	seq           *Sequencer
	identities    IdentityRegistry
	inventory     InventoryRegistry
	pricing       *PricingService
	pauses        *PauseService
	notifications *NotificationService
	metrics       *metrics.Metrics
}

type CreateGrantRequest struct {
	CooperativeID        string   `json:"cooperative_id" validate:"required,identity"`
	Amount               int64    `json:"amount"`
	BatchIDs             []string `json:"batch_ids"`
	RevenueSharePct      int64    `json:"revenue_share_pct"`
	DurationYears        int      `json:"duration_years" validate:"required,gte=1"`
	Purpose              string   `json:"purpose" validate:"max=4000"`
	Name                 string   `json:"name" validate:"max=255"`
	Location             string   `json:"location" validate:"max=255"`
	DAOOwnershipBps      int64    `json:"dao_ownership_bps"`
	MinimumRevenueTarget int64    `json:"minimum_revenue_target"`
}

type CreateGreenfieldGrantRequest struct {
	CreateGrantRequest
	ProjectName        string     `json:"project_name" validate:"required,max=255"`
	ProjectDescription string     `json:"project_description" validate:"max=4000"`
	ExpectedUnits      int64      `json:"expected_units" validate:"gte=0"`
	ExpectedHarvest    *time.Time `json:"expected_harvest,omitempty"`
}

type RevenueShareResult struct {
	Grant          *models.Grant `json:"grant"`
	RevenueAmount  int64         `json:"revenue_amount"`
	ShareAmount    int64         `json:"share_amount"`
	PreviousStatus string        `json:"previous_status"`
}

func NewGrantService(
	db *gorm.DB,
	cfg *config.Config,
	seq *Sequencer,
	identities IdentityRegistry,
	inventory InventoryRegistry,
	pricing *PricingService,
	pauses *PauseService,
	notifications *NotificationService,
	m *metrics.Metrics,
) *GrantService {
	return &GrantService{
		db:            db,
		cfg:           cfg,
		seq:           seq,
		identities:    identities,
		inventory:     inventory,
		pricing:       pricing,
		pauses:        pauses,
		notifications: notifications,
		metrics:       m,
	}
}

func (s *GrantService) CreateGrant(ctx context.Context, actor string, req *CreateGrantRequest) (*models.Grant, error) {
	if err := authorize(ctx, s.identities, actor, models.CapabilityGrantManagement); err != nil {
		return nil, err
	}

	var grant *models.Grant
	err := s.seq.Atomic(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := s.pauses.ensureRunning(ctx, ComponentGrants); err != nil {
			return err
		}
		if err := s.validateTerms(req); err != nil {
			return err
		}
		if len(req.BatchIDs) == 0 {
			return newError(CodeInvalidBatch, "grant", "", "at least one batch is required")
		}
		for _, id := range req.BatchIDs {
			exists, err := s.inventory.BatchExists(ctx, id)
			if err != nil {
				return err
			}
			if !exists {
				return newError(CodeInvalidBatch, "batch", id, "batch is not registered")
			}
		}

		var err error
		grant, err = s.insertGrant(ctx, tx, actor, req, req.BatchIDs, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return grant, nil
}

// CreateGreenfieldGrant funds production capacity that has no batch yet. It
// records the project and has the inventory registry reserve a future batch
// for it.
func (s *GrantService) CreateGreenfieldGrant(ctx context.Context, actor string, req *CreateGreenfieldGrantRequest) (*models.Grant, error) {
	if err := authorize(ctx, s.identities, actor, models.CapabilityGrantManagement); err != nil {
		return nil, err
	}

	var grant *models.Grant
	err := s.seq.Atomic(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := s.pauses.ensureRunning(ctx, ComponentGrants); err != nil {
			return err
		}
		if err := s.validateTerms(&req.CreateGrantRequest); err != nil {
			return err
		}
		if err := utils.ValidateStruct(req); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}

		project := &models.GreenfieldProject{
			CooperativeID:   req.CooperativeID,
			Name:            req.ProjectName,
			Location:        req.Location,
			Description:     req.ProjectDescription,
			ExpectedUnits:   req.ExpectedUnits,
			ExpectedHarvest: req.ExpectedHarvest,
		}
		project.ID = uuid.New()

		batchID, err := s.inventory.RegisterFutureBatch(ctx, req.CooperativeID, project)
		if err != nil {
			return wrapError(CodeInvalidBatch, "project", project.ID.String(), err, "future batch registration failed")
		}
		project.FutureBatchID = batchID

		if err := tx.Create(project).Error; err != nil {
			return fmt.Errorf("failed to create greenfield project: %w", err)
		}

		grant, err = s.insertGrant(ctx, tx, actor, &req.CreateGrantRequest, []string{batchID}, project)
		return err
	})
	if err != nil {
		return nil, err
	}
	return grant, nil
}

func (s *GrantService) validateTerms(req *CreateGrantRequest) error {
	if req.Amount <= 0 {
		return newError(CodeInvalidAmount, "grant", "", "amount must be positive, got %d", req.Amount)
	}
	if !validBps(req.RevenueSharePct) {
		return newError(CodeInvalidPercentage, "grant", "", "revenue share %d bps outside [0,10000]", req.RevenueSharePct)
	}
	if !validBps(req.DAOOwnershipBps) {
		return newError(CodeInvalidPercentage, "grant", "", "DAO ownership %d bps outside [0,10000]", req.DAOOwnershipBps)
	}
	if req.MinimumRevenueTarget < 0 {
		return newError(CodeInvalidAmount, "grant", "", "minimum revenue target must not be negative")
	}
	if limit := s.cfg.Ledger.MaxGrantDurationYears; limit > 0 && req.DurationYears > limit {
		return newError(CodeInvalidState, "grant", "", "duration %d years exceeds the %d year limit", req.DurationYears, limit)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

func (s *GrantService) insertGrant(ctx context.Context, tx *gorm.DB, actor string, req *CreateGrantRequest, batchIDs []string, project *models.GreenfieldProject) (*models.Grant, error) {
	pricing, err := s.pricing.currentPricing(tx)
	if err != nil {
		return nil, err
	}

	target := req.MinimumRevenueTarget
	if target == 0 {
		target = req.Amount
	}

	now := s.seq.Now()
	grant := &models.Grant{
		CooperativeID:        req.CooperativeID,
		Amount:               req.Amount,
		DAOOwnershipBps:      req.DAOOwnershipBps,
		RevenueSharePct:      req.RevenueSharePct,
		StartTime:            now,
		MaturityTime:         now.AddDate(req.DurationYears, 0, 0),
		BatchIDs:             models.StringList(batchIDs),
		MinimumRevenueTarget: target,
		Status:               models.GrantStatusPending,
		Name:                 req.Name,
		Purpose:              req.Purpose,
		Location:             req.Location,
		CreatedBy:            actor,
		Pricing:              pricing,
	}
	if project != nil {
		grant.IsGreenfield = true
		grant.ProjectID = &project.ID
	}

	if err := tx.Create(grant).Error; err != nil {
		return nil, fmt.Errorf("failed to create grant: %w", err)
	}

	if err := s.notifications.Emit(ctx, EventGrantCreated, "grant", grant.ID.String(), actor, map[string]interface{}{
		"cooperative_id":    grant.CooperativeID,
		"amount":            grant.Amount,
		"revenue_share_pct": grant.RevenueSharePct,
		"maturity_time":     grant.MaturityTime,
		"batch_ids":         []string(grant.BatchIDs),
		"is_greenfield":     grant.IsGreenfield,
	}); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"grant_id":    grant.ID,
		"cooperative": grant.CooperativeID,
		"amount":      grant.Amount,
		"greenfield":  grant.IsGreenfield,
	}).Info("Grant created")

	return grant, nil
}

// RecordRevenueShare books the DAO's share of a reported sale. Reaching the
// revenue target completes the grant; otherwise passing maturity matures it.
func (s *GrantService) RecordRevenueShare(ctx context.Context, actor string, grantID uuid.UUID, revenueAmount int64) (*RevenueShareResult, error) {
	if err := authorize(ctx, s.identities, actor, models.CapabilityGrantManagement); err != nil {
		return nil, err
	}

	var result *RevenueShareResult
	err := s.seq.Atomic(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := s.pauses.ensureRunning(ctx, ComponentGrants); err != nil {
			return err
		}

		grant, err := s.load(tx, grantID)
		if err != nil {
			return err
		}

		switch {
		case grant.Status.IsTerminal():
			return newError(CodeAlreadyTerminal, "grant", grantID.String(), "grant is %s", grant.Status)
		case grant.Status != models.GrantStatusActive:
			return newError(CodeInvalidState, "grant", grantID.String(), "revenue can only be recorded on active grants, grant is %s", grant.Status)
		}
		if revenueAmount <= 0 {
			return newError(CodeInvalidAmount, "grant", grantID.String(), "revenue must be positive, got %d", revenueAmount)
		}

		previous := grant.Status
		share := bpsOf(revenueAmount, grant.RevenueSharePct)
		grant.TotalRevenueShared += share

		now := s.seq.Now()
		if grant.TotalRevenueShared >= grant.MinimumRevenueTarget {
			err = s.transition(ctx, grant, models.GrantStatusCompleted, now)
		} else if !now.Before(grant.MaturityTime) {
			err = s.transition(ctx, grant, models.GrantStatusMatured, now)
		}
		if err != nil {
			return err
		}

		if err := tx.Save(grant).Error; err != nil {
			return fmt.Errorf("failed to update grant: %w", err)
		}

		if err := s.notifications.Emit(ctx, EventRevenueShareRecorded, "grant", grant.ID.String(), actor, map[string]interface{}{
			"revenue_amount":       revenueAmount,
			"share_amount":         share,
			"total_revenue_shared": grant.TotalRevenueShared,
		}); err != nil {
			return err
		}
		if grant.Status != previous {
			if err := s.emitStatusChange(ctx, grant, previous, actor); err != nil {
				return err
			}
		}

		afterCommit(ctx, func() { s.metrics.RevenueShared(share) })
		result = &RevenueShareResult{
			Grant:          grant,
			RevenueAmount:  revenueAmount,
			ShareAmount:    share,
			PreviousStatus: string(previous),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CompleteGrant closes a grant administratively. Terminal grants are returned
// unchanged.
func (s *GrantService) CompleteGrant(ctx context.Context, actor string, grantID uuid.UUID) (*models.Grant, error) {
	if err := authorize(ctx, s.identities, actor, models.CapabilityGrantManagement); err != nil {
		return nil, err
	}

	var grant *models.Grant
	err := s.seq.Atomic(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := s.pauses.ensureRunning(ctx, ComponentGrants); err != nil {
			return err
		}

		var err error
		grant, err = s.load(tx, grantID)
		if err != nil {
			return err
		}
		if grant.Status.IsTerminal() {
			return nil
		}

		previous := grant.Status
		if err := s.transition(ctx, grant, models.GrantStatusCompleted, s.seq.Now()); err != nil {
			return err
		}
		if err := tx.Save(grant).Error; err != nil {
			return fmt.Errorf("failed to update grant: %w", err)
		}
		return s.emitStatusChange(ctx, grant, previous, actor)
	})
	if err != nil {
		return nil, err
	}
	return grant, nil
}

// CheckMaturity matures an active grant whose maturity time has passed. It
// changes nothing before maturity or on terminal grants.
func (s *GrantService) CheckMaturity(ctx context.Context, actor string, grantID uuid.UUID) (*models.Grant, error) {
	if err := authorize(ctx, s.identities, actor, models.CapabilityGrantManagement); err != nil {
		return nil, err
	}

	var grant *models.Grant
	err := s.seq.Atomic(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := s.pauses.ensureRunning(ctx, ComponentGrants); err != nil {
			return err
		}

		var err error
		grant, err = s.load(tx, grantID)
		if err != nil {
			return err
		}
		if grant.Status.IsTerminal() {
			return nil
		}
		if grant.Status != models.GrantStatusActive {
			return newError(CodeInvalidState, "grant", grantID.String(), "grant is %s", grant.Status)
		}

		now := s.seq.Now()
		if now.Before(grant.MaturityTime) {
			return nil
		}

		previous := grant.Status
		if err := s.transition(ctx, grant, models.GrantStatusMatured, now); err != nil {
			return err
		}
		if err := tx.Save(grant).Error; err != nil {
			return fmt.Errorf("failed to update grant: %w", err)
		}
		return s.emitStatusChange(ctx, grant, previous, actor)
	})
	if err != nil {
		return nil, err
	}
	return grant, nil
}

func (s *GrantService) GetGrant(ctx context.Context, grantID uuid.UUID) (*models.Grant, error) {
	var grant models.Grant
	if err := s.db.WithContext(ctx).Preload("Project").First(&grant, "id = ?", grantID).Error; err != nil {
		return nil, notFoundOr(err, "grant", grantID.String())
	}
	return &grant, nil
}

func (s *GrantService) ListGrants(ctx context.Context, params utils.PaginationParams) ([]models.Grant, int64, error) {
	query := utils.ApplyFilters(s.db.WithContext(ctx).Model(&models.Grant{}), params, "cooperative_id")

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count grants: %w", err)
	}

	allowedSortFields := []string{"created_at", "amount", "maturity_time", "status"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var grants []models.Grant
	if err := query.Find(&grants).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch grants: %w", err)
	}
	return grants, total, nil
}

func (s *GrantService) load(tx *gorm.DB, grantID uuid.UUID) (*models.Grant, error) {
	var grant models.Grant
	if err := tx.First(&grant, "id = ?", grantID).Error; err != nil {
		return nil, notFoundOr(err, "grant", grantID.String())
	}
	return &grant, nil
}

// transition is the only place grant status changes.
func (s *GrantService) transition(ctx context.Context, grant *models.Grant, to models.GrantStatus, at time.Time) error {
	if !grant.Status.CanTransition(to) {
		if grant.Status.IsTerminal() {
			return newError(CodeAlreadyTerminal, "grant", grant.ID.String(), "grant is %s", grant.Status)
		}
		return newError(CodeInvalidState, "grant", grant.ID.String(), "cannot move grant from %s to %s", grant.Status, to)
	}
	grant.Status = to
	if to.IsTerminal() {
		grant.CompletedAt = &at
	}
	afterCommit(ctx, func() { s.metrics.GrantTransition(string(to)) })
	return nil
}

func (s *GrantService) emitStatusChange(ctx context.Context, grant *models.Grant, from models.GrantStatus, actor string) error {
	logrus.WithFields(logrus.Fields{
		"grant_id": grant.ID,
		"from":     from,
		"to":       grant.Status,
	}).Info("Grant status changed")

	return s.notifications.Emit(ctx, EventGrantStatusChanged, "grant", grant.ID.String(), actor, map[string]interface{}{
		"from":                 string(from),
		"to":                   string(grant.Status),
		"disbursed_amount":     grant.DisbursedAmount,
		"total_revenue_shared": grant.TotalRevenueShared,
	})
}

// scheduleOwner implementation used by the milestone scheduler.

func (s *GrantService) ownerSnapshot(ctx context.Context, ownerID uuid.UUID) (*ownerSnapshot, error) {
	grant, err := s.load(database.Conn(ctx, s.db), ownerID)
	if err != nil {
		return nil, err
	}
	return &ownerSnapshot{
		Kind:      models.ScheduleOwnerGrant,
		ID:        grant.ID,
		Recipient: grant.CooperativeID,
		Amount:    grant.Amount,
		Disbursed: grant.DisbursedAmount,
		Status:    string(grant.Status),
		Open:      grant.Status == models.GrantStatusPending || grant.Status == models.GrantStatusActive,
		Terminal:  grant.Status.IsTerminal(),
	}, nil
}

// recordDisbursement advances the grant's disbursed amount. The first
// disbursement activates a pending grant.
func (s *GrantService) recordDisbursement(ctx context.Context, ownerID uuid.UUID, amount int64, actor string) error {
	tx := database.Conn(ctx, s.db)
	grant, err := s.load(tx, ownerID)
	if err != nil {
		return err
	}
	if grant.DisbursedAmount+amount > grant.Amount {
		return newError(CodeInsufficientEscrow, "grant", grant.ID.String(),
			"disbursing %d would exceed the grant amount", amount)
	}

	previous := grant.Status
	grant.DisbursedAmount += amount
	if grant.Status == models.GrantStatusPending {
		if err := s.transition(ctx, grant, models.GrantStatusActive, s.seq.Now()); err != nil {
			return err
		}
	}

	if err := tx.Save(grant).Error; err != nil {
		return fmt.Errorf("failed to update grant: %w", err)
	}
	if grant.Status != previous {
		return s.emitStatusChange(ctx, grant, previous, actor)
	}
	return nil
}
