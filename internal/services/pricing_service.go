// internal/services/pricing_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/coopfund-backend/internal/database"
	"github.com/javajoker/coopfund-backend/internal/models"
)

// PricingService turns delivered commodity prices into per-batch guaranteed
// minimum prices.
type PricingService struct {
	db            *gorm.DB
	seq           *Sequencer
	identities    IdentityRegistry
	inventory     InventoryRegistry
	pauses        *PauseService
	notifications *NotificationService
}

type RevenueCheck struct {
	BatchID         string `json:"batch_id"`
	Units           int64  `json:"units"`
	FairMinPrice    int64  `json:"fair_min_price"`
	MinimumRevenue  int64  `json:"minimum_revenue"`
	DeclaredRevenue int64  `json:"declared_revenue"`
}

func NewPricingService(db *gorm.DB, seq *Sequencer, identities IdentityRegistry, inventory InventoryRegistry, pauses *PauseService, notifications *NotificationService) *PricingService {
	return &PricingService{
		db:            db,
		seq:           seq,
		identities:    identities,
		inventory:     inventory,
		pauses:        pauses,
		notifications: notifications,
	}
}

// FairPrice is base * (10000 + premium) / 10000. ok is false when the price
// does not fit in an int64.
func FairPrice(basePrice, premiumBps int64) (int64, bool) {
	return mulDiv(basePrice, models.BasisPoints+premiumBps, models.BasisPoints)
}

func (s *PricingService) UpdateCommodityPricing(ctx context.Context, actor string, basePrice, premiumBps int64) (*models.CommodityQuote, error) {
	if err := authorize(ctx, s.identities, actor, models.CapabilityPricingAdmin); err != nil {
		return nil, err
	}

	var quote *models.CommodityQuote
	err := s.seq.Atomic(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := s.pauses.ensureRunning(ctx, ComponentPricing); err != nil {
			return err
		}
		if basePrice <= 0 {
			return newError(CodeInvalidAmount, "pricing", "commodity", "base price must be positive, got %d", basePrice)
		}
		if !validBps(premiumBps) {
			return newError(CodeInvalidPercentage, "pricing", "commodity", "premium %d bps outside [0,10000]", premiumBps)
		}

		fair, ok := FairPrice(basePrice, premiumBps)
		if !ok {
			return newError(CodeInvalidAmount, "pricing", "commodity", "fair price of base %d at %d bps overflows", basePrice, premiumBps)
		}

		now := s.seq.Now()
		quote = &models.CommodityQuote{
			BasePrice:  basePrice,
			PremiumBps: premiumBps,
			FairPrice:  fair,
			QuotedAt:   now,
			UpdatedBy:  actor,
		}
		if err := tx.Create(quote).Error; err != nil {
			return fmt.Errorf("failed to store commodity quote: %w", err)
		}

		batches := tx.Model(&models.BatchPricing{}).
			Where("is_active = ?", true).
			Updates(map[string]interface{}{
				"base_price":           basePrice,
				"premium_bps":          premiumBps,
				"guaranteed_min_price": quote.FairPrice,
				"last_update":          now,
			})
		if batches.Error != nil {
			return fmt.Errorf("failed to refresh batch pricing: %w", batches.Error)
		}

		grants := tx.Model(&models.Grant{}).
			Where("status IN ?", []models.GrantStatus{models.GrantStatusPending, models.GrantStatusActive}).
			Updates(map[string]interface{}{
				"pricing_base_price":           basePrice,
				"pricing_premium_bps":          premiumBps,
				"pricing_guaranteed_min_price": quote.FairPrice,
				"pricing_last_update":          now,
				"pricing_is_active":            true,
			})
		if grants.Error != nil {
			return fmt.Errorf("failed to refresh grant pricing: %w", grants.Error)
		}

		logrus.WithFields(logrus.Fields{
			"base_price":  basePrice,
			"premium_bps": premiumBps,
			"fair_price":  quote.FairPrice,
			"batches":     batches.RowsAffected,
			"grants":      grants.RowsAffected,
		}).Info("Commodity pricing updated")

		return s.notifications.Emit(ctx, EventPricingUpdated, "pricing", quote.ID.String(), actor, map[string]interface{}{
			"base_price":      basePrice,
			"premium_bps":     premiumBps,
			"fair_price":      quote.FairPrice,
			"batches_updated": batches.RowsAffected,
			"grants_updated":  grants.RowsAffected,
		})
	})
	if err != nil {
		return nil, err
	}
	return quote, nil
}

// SetBatchPricing switches the price guarantee of one batch on or off.
func (s *PricingService) SetBatchPricing(ctx context.Context, actor, batchID string, active bool) (*models.BatchPricing, error) {
	if err := authorize(ctx, s.identities, actor, models.CapabilityPricingAdmin); err != nil {
		return nil, err
	}

	var bp models.BatchPricing
	err := s.seq.Atomic(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := s.pauses.ensureRunning(ctx, ComponentPricing); err != nil {
			return err
		}

		exists, err := s.inventory.BatchExists(ctx, batchID)
		if err != nil {
			return err
		}
		if !exists {
			return newError(CodeInvalidBatch, "batch", batchID, "batch is not registered")
		}

		err = tx.Where("batch_id = ?", batchID).First(&bp).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("database error: %w", err)
		}
		bp.BatchID = batchID
		bp.Pricing.IsActive = active

		if active {
			quote, err := s.latestQuote(tx)
			if err != nil {
				return err
			}
			if quote != nil {
				now := s.seq.Now()
				bp.Pricing.BasePrice = quote.BasePrice
				bp.Pricing.PremiumBps = quote.PremiumBps
				bp.Pricing.GuaranteedMinPrice = quote.FairPrice
				bp.Pricing.LastUpdate = &now
			}
		}

		if err := tx.Save(&bp).Error; err != nil {
			return fmt.Errorf("failed to save batch pricing: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &bp, nil
}

// CalculateFairMinPrice returns max(guaranteed, market) for a batch with an
// active guarantee and the market price otherwise.
func (s *PricingService) CalculateFairMinPrice(ctx context.Context, batchID string, marketPrice int64) (int64, error) {
	if marketPrice < 0 {
		return 0, newError(CodeInvalidAmount, "batch", batchID, "market price must not be negative")
	}

	bp, err := s.GetBatchPricing(ctx, batchID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return marketPrice, nil
		}
		return 0, err
	}

	if !bp.Pricing.IsActive || bp.Pricing.GuaranteedMinPrice <= marketPrice {
		return marketPrice, nil
	}
	return bp.Pricing.GuaranteedMinPrice, nil
}

// ValidateDeclaredRevenue rejects a declared sale revenue below
// units * fair minimum price.
func (s *PricingService) ValidateDeclaredRevenue(ctx context.Context, batchID string, units, declaredRevenue, marketPrice int64) (*RevenueCheck, error) {
	if units <= 0 {
		return nil, newError(CodeInvalidAmount, "batch", batchID, "units sold must be positive")
	}
	if declaredRevenue <= 0 {
		return nil, newError(CodeInvalidAmount, "batch", batchID, "declared revenue must be positive")
	}

	fairMin, err := s.CalculateFairMinPrice(ctx, batchID, marketPrice)
	if err != nil {
		return nil, err
	}

	minimum, ok := mulDiv(units, fairMin, 1)
	if !ok {
		return nil, newError(CodeInvalidAmount, "batch", batchID,
			"%d units at fair minimum %d overflows", units, fairMin)
	}

	check := &RevenueCheck{
		BatchID:         batchID,
		Units:           units,
		FairMinPrice:    fairMin,
		MinimumRevenue:  minimum,
		DeclaredRevenue: declaredRevenue,
	}
	if declaredRevenue < check.MinimumRevenue {
		return check, newError(CodeInvalidAmount, "batch", batchID,
			"declared revenue %d below fair minimum %d", declaredRevenue, check.MinimumRevenue)
	}
	return check, nil
}

func (s *PricingService) GetBatchPricing(ctx context.Context, batchID string) (*models.BatchPricing, error) {
	var bp models.BatchPricing
	if err := database.Conn(ctx, s.db).Where("batch_id = ?", batchID).First(&bp).Error; err != nil {
		return nil, notFoundOr(err, "batch_pricing", batchID)
	}
	return &bp, nil
}

// CurrentQuote returns the most recent commodity quote, or nil before the
// first delivery.
func (s *PricingService) CurrentQuote(ctx context.Context) (*models.CommodityQuote, error) {
	return s.latestQuote(database.Conn(ctx, s.db))
}

// currentPricing is the PricingInfo a new grant starts with.
func (s *PricingService) currentPricing(tx *gorm.DB) (models.PricingInfo, error) {
	quote, err := s.latestQuote(tx)
	if err != nil || quote == nil {
		return models.PricingInfo{}, err
	}
	at := quote.QuotedAt
	return models.PricingInfo{
		BasePrice:          quote.BasePrice,
		PremiumBps:         quote.PremiumBps,
		GuaranteedMinPrice: quote.FairPrice,
		LastUpdate:         &at,
		IsActive:           true,
	}, nil
}

func (s *PricingService) latestQuote(tx *gorm.DB) (*models.CommodityQuote, error) {
	var quote models.CommodityQuote
	err := tx.Order("quoted_at DESC").Order("created_at DESC").First(&quote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load commodity quote: %w", err)
	}
	return &quote, nil
}

