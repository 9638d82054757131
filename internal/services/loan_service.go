// internal/services/loan_service.go
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

// LoanService is the loan ledger: interest-bearing, time-bound credit with
// default and liquidation.
type LoanService struct {
	db            *gorm.DB
	cfg           *config.Config
	seq           *Sequencer
	identities    IdentityRegistry
	inventory     InventoryRegistry
	custodian     CapitalCustodian
	pauses        *PauseService
	notifications *NotificationService
	metrics       *metrics.Metrics
}

type CreateLoanRequest struct {
	BorrowerID         string   `json:"borrower_id" validate:"required,identity"`
	Principal          int64    `json:"principal"`
	AnnualRateBps      int64    `json:"annual_rate_bps"`
	DurationDays       int      `json:"duration_days" validate:"required,gte=1"`
	CollateralBatchIDs []string `json:"collateral_batch_ids"`
	Purpose            string   `json:"purpose" validate:"max=4000"`
}

// InterestQuote is the amount owed on a loan at a point in time.
type InterestQuote struct {
	LoanID               uuid.UUID `json:"loan_id"`
	AccruedInterest      int64     `json:"accrued_interest"`
	OutstandingPrincipal int64     `json:"outstanding_principal"`
	TotalOutstanding     int64     `json:"total_outstanding"`
	AsOf                 time.Time `json:"as_of"`
}

type RepaymentResult struct {
	Loan          *models.Loan `json:"loan"`
	Amount        int64        `json:"amount"`
	InterestPart  int64        `json:"interest_part"`
	PrincipalPart int64        `json:"principal_part"`
	Outstanding   int64        `json:"outstanding"`
}

func NewLoanService(
	db *gorm.DB,
	cfg *config.Config,
	seq *Sequencer,
	identities IdentityRegistry,
	inventory InventoryRegistry,
	custodian CapitalCustodian,
	pauses *PauseService,
	notifications *NotificationService,
	m *metrics.Metrics,
) *LoanService {
	return &LoanService{
		db:            db,
		cfg:           cfg,
		seq:           seq,
		identities:    identities,
		inventory:     inventory,
		custodian:     custodian,
		pauses:        pauses,
		notifications: notifications,
		metrics:       m,
	}
}

func (s *LoanService) CreateLoan(ctx context.Context, actor string, req *CreateLoanRequest) (*models.Loan, error) {
	if err := authorize(ctx, s.identities, actor, models.CapabilityGrantManagement); err != nil {
		return nil, err
	}

	var loan *models.Loan
	err := s.seq.Atomic(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := s.pauses.ensureRunning(ctx, ComponentLoans); err != nil {
			return err
		}
		if req.Principal <= 0 {
			return newError(CodeInvalidAmount, "loan", "", "principal must be positive, got %d", req.Principal)
		}
		if !validBps(req.AnnualRateBps) {
			return newError(CodeInvalidPercentage, "loan", "", "interest rate %d bps outside [0,10000]", req.AnnualRateBps)
		}
		if limit := s.cfg.Ledger.MaxLoanDurationDays; limit > 0 && req.DurationDays > limit {
			return newError(CodeInvalidState, "loan", "", "duration %d days exceeds the %d day limit", req.DurationDays, limit)
		}
		if err := utils.ValidateStruct(req); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		for _, id := range req.CollateralBatchIDs {
			exists, err := s.inventory.BatchExists(ctx, id)
			if err != nil {
				return err
			}
			if !exists {
				return newError(CodeInvalidBatch, "batch", id, "collateral batch is not registered")
			}
		}

		now := s.seq.Now()
		loan = &models.Loan{
			BorrowerID:         req.BorrowerID,
			Principal:          req.Principal,
			InterestRateBps:    req.AnnualRateBps,
			StartTime:          now,
			MaturityTime:       now.AddDate(0, 0, req.DurationDays),
			LastAccrualTime:    now,
			CollateralBatchIDs: models.StringList(req.CollateralBatchIDs),
			Status:             models.LoanStatusPending,
			Purpose:            req.Purpose,
			CreatedBy:          actor,
		}
		if err := tx.Create(loan).Error; err != nil {
			return fmt.Errorf("failed to create loan: %w", err)
		}

		logrus.WithFields(logrus.Fields{
			"loan_id":   loan.ID,
			"borrower":  loan.BorrowerID,
			"principal": loan.Principal,
			"rate_bps":  loan.InterestRateBps,
		}).Info("Loan created")

		return s.notifications.Emit(ctx, EventLoanCreated, "loan", loan.ID.String(), actor, map[string]interface{}{
			"borrower_id":          loan.BorrowerID,
			"principal":            loan.Principal,
			"interest_rate_bps":    loan.InterestRateBps,
			"maturity_time":        loan.MaturityTime,
			"collateral_batch_ids": []string(loan.CollateralBatchIDs),
		})
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// DisburseLoan releases the whole undisbursed principal in one transfer. Loans
// with a milestone schedule are paid out through the schedule instead.
func (s *LoanService) DisburseLoan(ctx context.Context, actor string, loanID uuid.UUID) (*models.Loan, error) {
	if err := authorize(ctx, s.identities, actor, models.CapabilityGrantManagement); err != nil {
		return nil, err
	}

	var loan *models.Loan
	err := s.seq.Atomic(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := s.pauses.ensureRunning(ctx, ComponentLoans); err != nil {
			return err
		}

		var err error
		loan, err = s.load(tx, loanID)
		if err != nil {
			return err
		}
		if loan.Status.IsTerminal() {
			return newError(CodeAlreadyTerminal, "loan", loanID.String(), "loan is %s", loan.Status)
		}
		if loan.Status != models.LoanStatusPending && loan.Status != models.LoanStatusActive {
			return newError(CodeInvalidState, "loan", loanID.String(), "cannot disburse a %s loan", loan.Status)
		}

		var scheduled int64
		if err := tx.Model(&models.DisbursementSchedule{}).
			Where("owner_kind = ? AND owner_id = ?", models.ScheduleOwnerLoan, loan.ID).
			Count(&scheduled).Error; err != nil {
			return fmt.Errorf("database error: %w", err)
		}
		if scheduled > 0 {
			return newError(CodeInvalidState, "loan", loanID.String(), "loan is disbursed through its milestone schedule")
		}

		amount := loan.Principal - loan.DisbursedAmount
		if amount <= 0 {
			return newError(CodeInvalidAmount, "loan", loanID.String(), "loan is fully disbursed")
		}

		previous := loan.Status
		if err := s.applyDisbursement(ctx, loan, amount); err != nil {
			return err
		}
		if err := tx.Save(loan).Error; err != nil {
			return fmt.Errorf("failed to update loan: %w", err)
		}

		if err := s.notifications.Emit(ctx, EventLoanDisbursed, "loan", loan.ID.String(), actor, map[string]interface{}{
			"amount":           amount,
			"disbursed_amount": loan.DisbursedAmount,
			"status":           string(loan.Status),
			"previous_status":  string(previous),
		}); err != nil {
			return err
		}

		// Funds move last so that a refusal rolls back everything above.
		if err := s.custodian.Transfer(ctx, amount, loan.BorrowerID, "loan:"+loan.ID.String()); err != nil {
			s.metrics.CustodyFailure()
			logrus.WithError(err).WithField("loan_id", loan.ID).Warn("Loan disbursement transfer failed")
			return wrapError(CodeTransferFailed, "loan", loanID.String(), err, "custodian refused transfer of %d", amount)
		}

		afterCommit(ctx, func() { s.metrics.Disbursed(string(models.ScheduleOwnerLoan), amount) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// CalculateInterest quotes interest as of now without storing it.
func (s *LoanService) CalculateInterest(ctx context.Context, loanID uuid.UUID) (*InterestQuote, error) {
	loan, err := s.load(s.db.WithContext(ctx), loanID)
	if err != nil {
		return nil, err
	}
	return s.quote(loan, s.seq.Now())
}

func (s *LoanService) quote(loan *models.Loan, at time.Time) (*InterestQuote, error) {
	accrued, err := interestAsOf(loan, at)
	if err != nil {
		return nil, err
	}
	total, err := totalOutstanding(loan, accrued)
	if err != nil {
		return nil, err
	}
	return &InterestQuote{
		LoanID:               loan.ID,
		AccruedInterest:      accrued,
		OutstandingPrincipal: loan.OutstandingPrincipal(),
		TotalOutstanding:     total,
		AsOf:                 at,
	}, nil
}

// interestAsOf is the stored unpaid interest plus simple interest on the
// outstanding principal since the last accrual.
func interestAsOf(loan *models.Loan, at time.Time) (int64, error) {
	if loan.Status != models.LoanStatusActive && loan.Status != models.LoanStatusDefaulted {
		return loan.AccruedInterest, nil
	}
	fresh, ok := simpleInterest(loan.OutstandingPrincipal(), loan.InterestRateBps, at.Sub(loan.LastAccrualTime))
	if ok {
		var accrued int64
		if accrued, ok = addAmounts(loan.AccruedInterest, fresh); ok {
			return accrued, nil
		}
	}
	return 0, newError(CodeInvalidAmount, "loan", loan.ID.String(), "accrued interest overflows")
}

func totalOutstanding(loan *models.Loan, accrued int64) (int64, error) {
	total, ok := addAmounts(accrued, loan.OutstandingPrincipal())
	if !ok {
		return 0, newError(CodeInvalidAmount, "loan", loan.ID.String(), "outstanding balance overflows")
	}
	return total, nil
}

// accrue folds interest up to at into the stored balance.
func accrue(loan *models.Loan, at time.Time) error {
	accrued, err := interestAsOf(loan, at)
	if err != nil {
		return err
	}
	loan.AccruedInterest = accrued
	if at.After(loan.LastAccrualTime) {
		loan.LastAccrualTime = at
	}
	return nil
}

// RepayLoan applies a payment to accrued interest first and principal after.
func (s *LoanService) RepayLoan(ctx context.Context, actor string, loanID uuid.UUID, amount int64) (*RepaymentResult, error) {
	if err := authorize(ctx, s.identities, actor, models.CapabilityGrantManagement); err != nil {
		return nil, err
	}

	var result *RepaymentResult
	err := s.seq.Atomic(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := s.pauses.ensureRunning(ctx, ComponentLoans); err != nil {
			return err
		}

		loan, err := s.load(tx, loanID)
		if err != nil {
			return err
		}
		if loan.Status.IsTerminal() {
			return newError(CodeAlreadyTerminal, "loan", loanID.String(), "loan is %s", loan.Status)
		}
		if loan.Status != models.LoanStatusActive {
			return newError(CodeInvalidState, "loan", loanID.String(), "repayments are only accepted on active loans, loan is %s", loan.Status)
		}

		now := s.seq.Now()
		if err := accrue(loan, now); err != nil {
			return err
		}
		outstanding, err := totalOutstanding(loan, loan.AccruedInterest)
		if err != nil {
			return err
		}
		if amount <= 0 || amount > outstanding {
			return newError(CodeInvalidAmount, "loan", loanID.String(), "repayment %d outside (0, %d]", amount, outstanding)
		}

		interestPart := amount
		if interestPart > loan.AccruedInterest {
			interestPart = loan.AccruedInterest
		}
		principalPart := amount - interestPart

		loan.AccruedInterest -= interestPart
		loan.InterestPaid += interestPart
		loan.PrincipalRepaid += principalPart
		loan.RepaidAmount += amount
		outstanding -= amount

		if outstanding == 0 {
			if err := s.transition(ctx, loan, models.LoanStatusRepaid); err != nil {
				return err
			}
			loan.RepaidAt = &now
		}

		if err := tx.Save(loan).Error; err != nil {
			return fmt.Errorf("failed to update loan: %w", err)
		}

		if err := s.notifications.Emit(ctx, EventLoanRepaid, "loan", loan.ID.String(), actor, map[string]interface{}{
			"amount":         amount,
			"interest_part":  interestPart,
			"principal_part": principalPart,
			"repaid_amount":  loan.RepaidAmount,
			"outstanding":    outstanding,
			"status":         string(loan.Status),
		}); err != nil {
			return err
		}

		afterCommit(ctx, func() { s.metrics.Repaid(amount) })
		result = &RepaymentResult{
			Loan:          loan,
			Amount:        amount,
			InterestPart:  interestPart,
			PrincipalPart: principalPart,
			Outstanding:   outstanding,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MarkLoanDefaulted is valid only on an active loan past maturity that still
// owes something.
func (s *LoanService) MarkLoanDefaulted(ctx context.Context, actor string, loanID uuid.UUID) (*models.Loan, error) {
	if err := authorize(ctx, s.identities, actor, models.CapabilityGrantManagement); err != nil {
		return nil, err
	}

	var loan *models.Loan
	err := s.seq.Atomic(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := s.pauses.ensureRunning(ctx, ComponentLoans); err != nil {
			return err
		}

		var err error
		loan, err = s.load(tx, loanID)
		if err != nil {
			return err
		}
		if loan.Status.IsTerminal() {
			return newError(CodeAlreadyTerminal, "loan", loanID.String(), "loan is %s", loan.Status)
		}
		if loan.Status != models.LoanStatusActive {
			return newError(CodeInvalidState, "loan", loanID.String(), "only active loans can default, loan is %s", loan.Status)
		}

		now := s.seq.Now()
		if !now.After(loan.MaturityTime) {
			return newError(CodeInvalidState, "loan", loanID.String(), "loan matures at %s", loan.MaturityTime.Format(time.RFC3339))
		}

		if err := accrue(loan, now); err != nil {
			return err
		}
		outstanding, err := totalOutstanding(loan, loan.AccruedInterest)
		if err != nil {
			return err
		}
		if outstanding <= 0 {
			return newError(CodeInvalidState, "loan", loanID.String(), "nothing is outstanding")
		}

		if err := s.transition(ctx, loan, models.LoanStatusDefaulted); err != nil {
			return err
		}
		loan.DefaultedAt = &now
		if err := tx.Save(loan).Error; err != nil {
			return fmt.Errorf("failed to update loan: %w", err)
		}

		logrus.WithFields(logrus.Fields{
			"loan_id":     loan.ID,
			"borrower":    loan.BorrowerID,
			"outstanding": outstanding,
		}).Warn("Loan defaulted")

		return s.notifications.Emit(ctx, EventLoanDefaulted, "loan", loan.ID.String(), actor, map[string]interface{}{
			"outstanding":      outstanding,
			"accrued_interest": loan.AccruedInterest,
			"defaulted_at":     now,
		})
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// LiquidateCollateral hands a defaulted loan's collateral batches to newOwner
// through the inventory registry. An empty newOwner uses the configured
// liquidation owner.
func (s *LoanService) LiquidateCollateral(ctx context.Context, actor string, loanID uuid.UUID, newOwner string) (*models.Loan, error) {
	if err := authorize(ctx, s.identities, actor, models.CapabilityGrantManagement); err != nil {
		return nil, err
	}
	if newOwner == "" {
		newOwner = s.cfg.Custody.LiquidationOwner
	}

	var loan *models.Loan
	err := s.seq.Atomic(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := s.pauses.ensureRunning(ctx, ComponentLoans); err != nil {
			return err
		}

		var err error
		loan, err = s.load(tx, loanID)
		if err != nil {
			return err
		}
		if loan.Status.IsTerminal() {
			return newError(CodeAlreadyTerminal, "loan", loanID.String(), "loan is %s", loan.Status)
		}
		if loan.Status != models.LoanStatusDefaulted {
			return newError(CodeInvalidState, "loan", loanID.String(), "only defaulted loans can be liquidated, loan is %s", loan.Status)
		}

		now := s.seq.Now()
		if err := s.transition(ctx, loan, models.LoanStatusLiquidated); err != nil {
			return err
		}
		loan.LiquidatedAt = &now
		loan.LiquidatedTo = newOwner
		if err := tx.Save(loan).Error; err != nil {
			return fmt.Errorf("failed to update loan: %w", err)
		}

		if err := s.notifications.Emit(ctx, EventLoanLiquidated, "loan", loan.ID.String(), actor, map[string]interface{}{
			"collateral_batch_ids": []string(loan.CollateralBatchIDs),
			"new_owner":            newOwner,
		}); err != nil {
			return err
		}

		if err := s.inventory.ReassignOnLiquidation(ctx, []string(loan.CollateralBatchIDs), newOwner); err != nil {
			return wrapError(CodeInvalidBatch, "loan", loanID.String(), err, "collateral reassignment failed")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

func (s *LoanService) GetLoan(ctx context.Context, loanID uuid.UUID) (*models.Loan, error) {
	return s.load(s.db.WithContext(ctx), loanID)
}

func (s *LoanService) ListLoans(ctx context.Context, params utils.PaginationParams) ([]models.Loan, int64, error) {
	query := utils.ApplyFilters(s.db.WithContext(ctx).Model(&models.Loan{}), params, "borrower_id")

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count loans: %w", err)
	}

	allowedSortFields := []string{"created_at", "principal", "maturity_time", "status"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var loans []models.Loan
	if err := query.Find(&loans).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch loans: %w", err)
	}
	return loans, total, nil
}

func (s *LoanService) load(tx *gorm.DB, loanID uuid.UUID) (*models.Loan, error) {
	var loan models.Loan
	if err := tx.First(&loan, "id = ?", loanID).Error; err != nil {
		return nil, notFoundOr(err, "loan", loanID.String())
	}
	return &loan, nil
}

// transition is the only place loan status changes.
func (s *LoanService) transition(ctx context.Context, loan *models.Loan, to models.LoanStatus) error {
	if !loan.Status.CanTransition(to) {
		if loan.Status.IsTerminal() {
			return newError(CodeAlreadyTerminal, "loan", loan.ID.String(), "loan is %s", loan.Status)
		}
		return newError(CodeInvalidState, "loan", loan.ID.String(), "cannot move loan from %s to %s", loan.Status, to)
	}

	logrus.WithFields(logrus.Fields{
		"loan_id": loan.ID,
		"from":    loan.Status,
		"to":      to,
	}).Info("Loan status changed")

	loan.Status = to
	afterCommit(ctx, func() { s.metrics.LoanTransition(string(to)) })
	return nil
}

// applyDisbursement accrues interest on the old balance before growing it and
// activates a pending loan.
func (s *LoanService) applyDisbursement(ctx context.Context, loan *models.Loan, amount int64) error {
	if loan.DisbursedAmount+amount > loan.Principal {
		return newError(CodeInsufficientEscrow, "loan", loan.ID.String(),
			"disbursing %d would exceed the principal", amount)
	}

	now := s.seq.Now()
	if err := accrue(loan, now); err != nil {
		return err
	}
	loan.DisbursedAmount += amount
	if loan.Status == models.LoanStatusPending {
		loan.LastAccrualTime = now
		return s.transition(ctx, loan, models.LoanStatusActive)
	}
	return nil
}

// scheduleOwner implementation used by the milestone scheduler.

func (s *LoanService) ownerSnapshot(ctx context.Context, ownerID uuid.UUID) (*ownerSnapshot, error) {
	loan, err := s.load(database.Conn(ctx, s.db), ownerID)
	if err != nil {
		return nil, err
	}
	return &ownerSnapshot{
		Kind:      models.ScheduleOwnerLoan,
		ID:        loan.ID,
		Recipient: loan.BorrowerID,
		Amount:    loan.Principal,
		Disbursed: loan.DisbursedAmount,
		Status:    string(loan.Status),
		Open:      loan.Status == models.LoanStatusPending || loan.Status == models.LoanStatusActive,
		Terminal:  loan.Status.IsTerminal(),
	}, nil
}

func (s *LoanService) recordDisbursement(ctx context.Context, ownerID uuid.UUID, amount int64, actor string) error {
	tx := database.Conn(ctx, s.db)
	loan, err := s.load(tx, ownerID)
	if err != nil {
		return err
	}

	if err := s.applyDisbursement(ctx, loan, amount); err != nil {
		return err
	}
	if err := tx.Save(loan).Error; err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	return nil
}
