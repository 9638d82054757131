// internal/services/custodian_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/balance"
	"github.com/stripe/stripe-go/v74/transfer"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/javajoker/coopfund-backend/internal/config"
	"github.com/javajoker/coopfund-backend/internal/database"
	"github.com/javajoker/coopfund-backend/internal/models"
	"github.com/javajoker/coopfund-backend/internal/utils"
)

var ErrInsufficientFunds = errors.New("insufficient custodial funds")

// NewCustodian picks the custody driver named in configuration.
func NewCustodian(db *gorm.DB, cfg *config.Config) CapitalCustodian {
	if cfg.Custody.Driver == "stripe" {
		return NewStripeCustodian(db, cfg.Custody)
	}
	return NewTreasuryCustodian(db, cfg.Custody.TreasuryName)
}

// TreasuryCustodian keeps the pooled capital in a local treasury account.
type TreasuryCustodian struct {
	db      *gorm.DB
	account string
}

func NewTreasuryCustodian(db *gorm.DB, account string) *TreasuryCustodian {
	return &TreasuryCustodian{
		db:      db,
		account: account,
	}
}

func (c *TreasuryCustodian) Transfer(ctx context.Context, amount int64, recipient, reference string) error {
	if amount <= 0 {
		return fmt.Errorf("transfer amount must be positive, got %d", amount)
	}

	db := database.Conn(ctx, c.db)

	query := db
	if db.Dialector.Name() == "postgres" {
		query = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var treasury models.TreasuryAccount
	if err := query.Where("name = ?", c.account).First(&treasury).Error; err != nil {
		return fmt.Errorf("treasury account %s unavailable: %w", c.account, err)
	}

	if treasury.Balance < amount {
		return fmt.Errorf("%w: balance %d, requested %d", ErrInsufficientFunds, treasury.Balance, amount)
	}

	if err := db.Model(&treasury).Update("balance", gorm.Expr("balance - ?", amount)).Error; err != nil {
		return fmt.Errorf("failed to debit treasury: %w", err)
	}

	record := &models.CustodyTransfer{
		Recipient: recipient,
		Amount:    amount,
		Reference: reference,
		Provider:  "treasury",
	}
	if err := db.Create(record).Error; err != nil {
		return fmt.Errorf("failed to record transfer: %w", err)
	}

	return nil
}

func (c *TreasuryCustodian) Balance(ctx context.Context) (int64, error) {
	var treasury models.TreasuryAccount
	if err := database.Conn(ctx, c.db).Where("name = ?", c.account).First(&treasury).Error; err != nil {
		return 0, fmt.Errorf("treasury account %s unavailable: %w", c.account, err)
	}
	return treasury.Balance, nil
}

// Deposit credits the treasury, creating the account on first use.
func (c *TreasuryCustodian) Deposit(ctx context.Context, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("deposit amount must be positive, got %d", amount)
	}
	db := database.Conn(ctx, c.db)

	var treasury models.TreasuryAccount
	err := db.Where("name = ?", c.account).First(&treasury).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Create(&models.TreasuryAccount{Name: c.account, Balance: amount}).Error
	}
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	return db.Model(&treasury).Update("balance", gorm.Expr("balance + ?", amount)).Error
}

// StripeCustodian pays recipients out of the platform's Stripe balance into
// their connected accounts. The connected account id is read from the
// operator profile under "stripe_account".
type StripeCustodian struct {
	db       *gorm.DB
	currency string
}

func NewStripeCustodian(db *gorm.DB, cfg config.CustodyConfig) *StripeCustodian {
	// Initialize Stripe
	stripe.Key = cfg.StripeSecretKey

	return &StripeCustodian{
		db:       db,
		currency: cfg.Currency,
	}
}

func (c *StripeCustodian) Transfer(ctx context.Context, amount int64, recipient, reference string) error {
	if amount <= 0 {
		return fmt.Errorf("transfer amount must be positive, got %d", amount)
	}

	db := database.Conn(ctx, c.db)

	var operator models.Operator
	if err := db.Where("identity = ?", recipient).First(&operator).Error; err != nil {
		return fmt.Errorf("recipient %s not registered: %w", recipient, err)
	}
	account, _ := operator.ProfileData["stripe_account"].(string)
	if account == "" {
		return fmt.Errorf("recipient %s has no connected stripe account", recipient)
	}

	params := &stripe.TransferParams{
		Amount:        stripe.Int64(amount),
		Currency:      stripe.String(c.currency),
		Destination:   stripe.String(account),
		TransferGroup: stripe.String(reference),
	}
	// Each call is a new attempt: Stripe replays a cached failure for any
	// reused key, so only the client's own network retries share it.
	attempt := uuid.NewString()
	params.AddMetadata("recipient", recipient)
	params.AddMetadata("reference", reference)
	params.AddMetadata("attempt", attempt)
	params.SetIdempotencyKey(utils.HashParts([]byte(reference), []byte(recipient), []byte(attempt)))

	tr, err := transfer.New(params)
	if err != nil {
		return fmt.Errorf("stripe transfer failed: %w", err)
	}

	record := &models.CustodyTransfer{
		Recipient: recipient,
		Amount:    amount,
		Reference: tr.ID,
		Provider:  "stripe",
	}
	if err := db.Create(record).Error; err != nil {
		// The payout already left; leave a loud trail for reconciliation.
		logrus.WithFields(logrus.Fields{
			"transfer_id": tr.ID,
			"recipient":   recipient,
			"amount":      amount,
		}).WithError(err).Error("Stripe transfer succeeded but could not be recorded")
		return fmt.Errorf("failed to record transfer: %w", err)
	}

	return nil
}

func (c *StripeCustodian) Balance(ctx context.Context) (int64, error) {
	b, err := balance.Get(nil)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch stripe balance: %w", err)
	}

	var total int64
	for _, amt := range b.Available {
		if string(amt.Currency) == c.currency {
			total += amt.Amount
		}
	}
	return total, nil
}
