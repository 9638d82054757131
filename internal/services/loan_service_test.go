// internal/services/loan_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/javajoker/coopfund-backend/internal/models"
)

type LoanServiceTestSuite struct {
	ledgerSuite
}

func TestLoanService(t *testing.T) {
	suite.Run(t, new(LoanServiceTestSuite))
}

const day = 24 * time.Hour

func (s *LoanServiceTestSuite) disbursed(principal, rateBps int64, days int) *models.Loan {
	loan := s.createLoan(principal, rateBps, days)
	loan, err := s.loans.DisburseLoan(s.ctx, adminID, loan.ID)
	s.Require().NoError(err)
	return loan
}

func (s *LoanServiceTestSuite) TestCreateLoan() {
	loan := s.createLoan(1_000_000, 1000, 365)

	s.Equal(models.LoanStatusPending, loan.Status)
	s.Equal(coopID, loan.BorrowerID)
	s.True(loan.MaturityTime.Equal(s.now.AddDate(0, 0, 365)))
	s.Zero(loan.DisbursedAmount)
	s.EqualValues(1, s.eventCount(EventLoanCreated, loan.ID.String()))
}

func (s *LoanServiceTestSuite) TestCreateLoanRejectsBadTerms() {
	tests := []struct {
		name   string
		actor  string
		mutate func(*CreateLoanRequest)
		want   error
	}{
		{"zero principal", adminID, func(r *CreateLoanRequest) { r.Principal = 0 }, ErrInvalidAmount},
		{"rate above 100%", adminID, func(r *CreateLoanRequest) { r.AnnualRateBps = 10001 }, ErrInvalidPercentage},
		{"negative rate", adminID, func(r *CreateLoanRequest) { r.AnnualRateBps = -5 }, ErrInvalidPercentage},
		{"too long", adminID, func(r *CreateLoanRequest) { r.DurationDays = 3651 }, ErrInvalidState},
		{"unknown collateral", adminID, func(r *CreateLoanRequest) { r.CollateralBatchIDs = []string{"batch-404"} }, ErrInvalidBatch},
		{"borrower cannot self-issue", coopID, func(r *CreateLoanRequest) {}, ErrUnauthorized},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			req := &CreateLoanRequest{
				BorrowerID:         coopID,
				Principal:          500_000,
				AnnualRateBps:      800,
				DurationDays:       180,
				CollateralBatchIDs: []string{batchID},
			}
			tt.mutate(req)

			_, err := s.loans.CreateLoan(s.ctx, tt.actor, req)
			s.ErrorIs(err, tt.want)
		})
	}

	_, err := s.loans.CreateLoan(s.ctx, adminID, &CreateLoanRequest{BorrowerID: coopID, Principal: 10})
	s.Require().Error(err)
	s.Empty(CodeOf(err))
}

func (s *LoanServiceTestSuite) TestDisburseLoan() {
	loan := s.disbursed(1_000_000, 1000, 365)

	s.Equal(models.LoanStatusActive, loan.Status)
	s.Equal(int64(1_000_000), loan.DisbursedAmount)
	s.Equal(int64(treasuryBalance-1_000_000), s.treasuryBalance())
	s.EqualValues(1, s.eventCount(EventLoanDisbursed, loan.ID.String()))

	_, err := s.loans.DisburseLoan(s.ctx, adminID, loan.ID)
	s.ErrorIs(err, ErrInvalidAmount)
	s.Equal(int64(treasuryBalance-1_000_000), s.treasuryBalance())
}

func (s *LoanServiceTestSuite) TestScheduledLoanIsNotDisbursedDirectly() {
	loan := s.createLoan(100_000, 500, 90)
	s.schedule(models.ScheduleOwnerLoan, loan.ID, 10000)

	_, err := s.loans.DisburseLoan(s.ctx, adminID, loan.ID)
	s.ErrorIs(err, ErrInvalidState)
}

func (s *LoanServiceTestSuite) TestDisbursementTransferFailure() {
	loan := s.createLoan(treasuryBalance+1, 1000, 365)

	_, err := s.loans.DisburseLoan(s.ctx, adminID, loan.ID)
	s.ErrorIs(err, ErrTransferFailed)
	s.ErrorIs(err, ErrInsufficientFunds)

	stored, err := s.loans.GetLoan(s.ctx, loan.ID)
	s.Require().NoError(err)
	s.Equal(models.LoanStatusPending, stored.Status)
	s.Zero(stored.DisbursedAmount)
	s.Equal(int64(treasuryBalance), s.treasuryBalance())
	s.Zero(s.eventCount(EventLoanDisbursed, loan.ID.String()))

	offline := NewLoanService(s.db, s.cfg, s.seq, s.identities, s.inventory, failingCustodian{}, s.pauses, s.notifications, s.mtrc)
	small := s.createLoan(1000, 1000, 365)
	_, err = offline.DisburseLoan(s.ctx, adminID, small.ID)
	s.ErrorIs(err, ErrTransferFailed)
}

func (s *LoanServiceTestSuite) TestCalculateInterest() {
	pending := s.createLoan(1_000_000, 1000, 730)
	quote, err := s.loans.CalculateInterest(s.ctx, pending.ID)
	s.Require().NoError(err)
	s.Zero(quote.AccruedInterest)

	loan := s.disbursed(1_000_000, 1000, 730)
	s.advance(365 * day)

	quote, err = s.loans.CalculateInterest(s.ctx, loan.ID)
	s.Require().NoError(err)
	s.Equal(int64(100_000), quote.AccruedInterest)
	s.Equal(int64(1_000_000), quote.OutstandingPrincipal)
	s.Equal(int64(1_100_000), quote.TotalOutstanding)
	s.True(quote.AsOf.Equal(s.now))

	// Quoting does not store anything.
	stored, err := s.loans.GetLoan(s.ctx, loan.ID)
	s.Require().NoError(err)
	s.Zero(stored.AccruedInterest)
}

func (s *LoanServiceTestSuite) TestRepayInterestFirst() {
	loan := s.disbursed(1_000_000, 1000, 730)
	s.advance(365 * day)

	res, err := s.loans.RepayLoan(s.ctx, adminID, loan.ID, 150_000)
	s.Require().NoError(err)
	s.Equal(int64(100_000), res.InterestPart)
	s.Equal(int64(50_000), res.PrincipalPart)
	s.Equal(int64(950_000), res.Outstanding)
	s.Equal(models.LoanStatusActive, res.Loan.Status)

	_, err = s.loans.RepayLoan(s.ctx, adminID, loan.ID, 950_001)
	s.ErrorIs(err, ErrInvalidAmount)

	res, err = s.loans.RepayLoan(s.ctx, adminID, loan.ID, 950_000)
	s.Require().NoError(err)
	s.Zero(res.Outstanding)
	s.Equal(models.LoanStatusRepaid, res.Loan.Status)
	s.NotNil(res.Loan.RepaidAt)
	s.Equal(int64(1_100_000), res.Loan.RepaidAmount)

	_, err = s.loans.RepayLoan(s.ctx, adminID, loan.ID, 1)
	s.ErrorIs(err, ErrAlreadyTerminal)
	s.EqualValues(2, s.eventCount(EventLoanRepaid, loan.ID.String()))
}

func (s *LoanServiceTestSuite) TestRepayRequiresActiveLoan() {
	loan := s.createLoan(1000, 1000, 30)

	_, err := s.loans.RepayLoan(s.ctx, adminID, loan.ID, 10)
	s.ErrorIs(err, ErrInvalidState)

	_, err = s.loans.DisburseLoan(s.ctx, adminID, loan.ID)
	s.Require().NoError(err)
	_, err = s.loans.RepayLoan(s.ctx, adminID, loan.ID, 0)
	s.ErrorIs(err, ErrInvalidAmount)
}

func (s *LoanServiceTestSuite) TestDefaultAndLiquidate() {
	loan := s.disbursed(300_000, 1200, 30)

	_, err := s.loans.LiquidateCollateral(s.ctx, adminID, loan.ID, "")
	s.ErrorIs(err, ErrInvalidState)

	_, err = s.loans.MarkLoanDefaulted(s.ctx, adminID, loan.ID)
	s.ErrorIs(err, ErrInvalidState)

	// Maturity itself is not yet past maturity.
	s.advance(30 * day)
	_, err = s.loans.MarkLoanDefaulted(s.ctx, adminID, loan.ID)
	s.ErrorIs(err, ErrInvalidState)

	s.advance(time.Second)
	defaulted, err := s.loans.MarkLoanDefaulted(s.ctx, adminID, loan.ID)
	s.Require().NoError(err)
	s.Equal(models.LoanStatusDefaulted, defaulted.Status)
	s.Positive(defaulted.AccruedInterest)
	s.NotNil(defaulted.DefaultedAt)

	_, err = s.loans.RepayLoan(s.ctx, adminID, loan.ID, 1000)
	s.ErrorIs(err, ErrInvalidState)

	liquidated, err := s.loans.LiquidateCollateral(s.ctx, adminID, loan.ID, "")
	s.Require().NoError(err)
	s.Equal(models.LoanStatusLiquidated, liquidated.Status)
	s.Equal("dao-treasury", liquidated.LiquidatedTo)

	batch, err := s.inventory.GetBatch(s.ctx, batchID)
	s.Require().NoError(err)
	s.Equal("dao-treasury", batch.OwnerID)

	_, err = s.loans.LiquidateCollateral(s.ctx, adminID, loan.ID, "")
	s.ErrorIs(err, ErrAlreadyTerminal)
	_, err = s.loans.MarkLoanDefaulted(s.ctx, adminID, loan.ID)
	s.ErrorIs(err, ErrAlreadyTerminal)

	s.EqualValues(1, s.eventCount(EventLoanDefaulted, loan.ID.String()))
	s.EqualValues(1, s.eventCount(EventLoanLiquidated, loan.ID.String()))
}

func (s *LoanServiceTestSuite) TestLiquidateToNamedOwner() {
	loan := s.disbursed(1000, 1000, 1)
	s.advance(2 * day)
	_, err := s.loans.MarkLoanDefaulted(s.ctx, adminID, loan.ID)
	s.Require().NoError(err)

	_, err = s.loans.LiquidateCollateral(s.ctx, adminID, loan.ID, "coop-neighbour")
	s.Require().NoError(err)

	batch, err := s.inventory.GetBatch(s.ctx, batchID)
	s.Require().NoError(err)
	s.Equal("coop-neighbour", batch.OwnerID)
}

func (s *LoanServiceTestSuite) TestPausedLoans() {
	loan := s.createLoan(1000, 1000, 30)
	s.Require().NoError(s.pauses.Pause(s.ctx, adminID, ComponentLoans))

	_, err := s.loans.DisburseLoan(s.ctx, adminID, loan.ID)
	s.ErrorIs(err, ErrPaused)

	// Reads keep working.
	_, err = s.loans.CalculateInterest(s.ctx, loan.ID)
	s.NoError(err)
}

func (s *LoanServiceTestSuite) TestListLoans() {
	s.createLoan(1000, 100, 30)
	s.createLoan(2000, 100, 30)

	params := pageOf(1, 1)
	loans, total, err := s.loans.ListLoans(s.ctx, params)
	s.Require().NoError(err)
	s.EqualValues(2, total)
	s.Len(loans, 1)

	params.Owner = coopID
	params.Status = string(models.LoanStatusActive)
	_, total, err = s.loans.ListLoans(s.ctx, params)
	s.Require().NoError(err)
	s.Zero(total)
}

func (s *LoanServiceTestSuite) TestInterestNeverDecreases() {
	loan := s.disbursed(750_000, 1250, 365)

	var last int64
	for _, step := range []time.Duration{0, 7 * time.Hour, 45 * day, 200 * day} {
		s.advance(step)
		quote, err := s.loans.CalculateInterest(s.ctx, loan.ID)
		s.Require().NoError(err)
		s.GreaterOrEqual(quote.AccruedInterest, last, "after %s", step)
		s.Equal(quote.OutstandingPrincipal+quote.AccruedInterest, quote.TotalOutstanding)
		last = quote.AccruedInterest
	}
	s.Positive(last)
}
