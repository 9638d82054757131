// internal/services/milestone_service_test.go
package services

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"github.com/javajoker/coopfund-backend/internal/models"
)

type MilestoneServiceTestSuite struct {
	ledgerSuite
}

func TestMilestoneService(t *testing.T) {
	suite.Run(t, new(MilestoneServiceTestSuite))
}

func (s *MilestoneServiceTestSuite) TestCreateScheduleEscrowsUndisbursedAmount() {
	grant := s.createGrant(100000)
	sched := s.schedule(models.ScheduleOwnerGrant, grant.ID, 3000, 7000)

	s.Equal(int64(100000), sched.EscrowedAmount)
	s.Equal(int64(100000), sched.RemainingEscrow)
	s.Equal(coopID, sched.Recipient)
	s.Equal(2, sched.MilestoneCount)
	s.True(sched.IsActive)

	stored, err := s.milestones.GetSchedule(s.ctx, models.ScheduleOwnerGrant, grant.ID)
	s.Require().NoError(err)
	s.Require().Len(stored.Milestones, 2)
	s.Equal(0, stored.Milestones[0].Position)
	s.Equal(int64(3000), stored.Milestones[0].PercentageShare)
	s.Equal(int64(7000), stored.Milestones[1].PercentageShare)
}

func (s *MilestoneServiceTestSuite) TestCreateScheduleRejectsBadShape() {
	grant := s.createGrant(100000)

	tests := []struct {
		name string
		req  *CreateScheduleRequest
		want error
	}{
		{"empty", &CreateScheduleRequest{}, ErrArrayLengthMismatch},
		{"length mismatch", &CreateScheduleRequest{Descriptions: []string{"a", "b"}, Percentages: []int64{10000}}, ErrArrayLengthMismatch},
		{"proof types mismatch", &CreateScheduleRequest{
			Descriptions:       []string{"a"},
			Percentages:        []int64{10000},
			RequiredProofTypes: []models.BackendType{"", models.BackendLightVerify},
		}, ErrArrayLengthMismatch},
		{"sum below 100%", &CreateScheduleRequest{Descriptions: []string{"a", "b"}, Percentages: []int64{5000, 4999}}, ErrInvalidPercentage},
		{"sum above 100%", &CreateScheduleRequest{Descriptions: []string{"a", "b"}, Percentages: []int64{5000, 5001}}, ErrInvalidPercentage},
		{"zero share", &CreateScheduleRequest{Descriptions: []string{"a", "b"}, Percentages: []int64{0, 10000}}, ErrInvalidPercentage},
		{"unknown backend", &CreateScheduleRequest{
			Descriptions:       []string{"a"},
			Percentages:        []int64{10000},
			RequiredProofTypes: []models.BackendType{"quantum"},
		}, ErrUnsupportedCircuit},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.milestones.CreateDisbursementSchedule(s.ctx, adminID, models.ScheduleOwnerGrant, grant.ID, tt.req)
			s.ErrorIs(err, tt.want)
		})
	}
}

func (s *MilestoneServiceTestSuite) TestOneSchedulePerOwner() {
	grant := s.createGrant(100000)
	s.schedule(models.ScheduleOwnerGrant, grant.ID, 10000)

	_, err := s.milestones.CreateDisbursementSchedule(s.ctx, adminID, models.ScheduleOwnerGrant, grant.ID, &CreateScheduleRequest{
		Descriptions: []string{"again"},
		Percentages:  []int64{10000},
	})
	s.ErrorIs(err, ErrAlreadyExists)
}

func (s *MilestoneServiceTestSuite) TestScheduleOnTerminalOwner() {
	grant := s.createGrant(100000)
	_, err := s.grants.CompleteGrant(s.ctx, adminID, grant.ID)
	s.Require().NoError(err)

	_, err = s.milestones.CreateDisbursementSchedule(s.ctx, adminID, models.ScheduleOwnerGrant, grant.ID, &CreateScheduleRequest{
		Descriptions: []string{"late"},
		Percentages:  []int64{10000},
	})
	s.ErrorIs(err, ErrAlreadyTerminal)
}

func (s *MilestoneServiceTestSuite) TestTranchesSumToEscrow() {
	grant := s.createGrant(100000)
	s.schedule(models.ScheduleOwnerGrant, grant.ID, 3333, 3333, 3334)

	// Completion order differs from position order; the last one to
	// complete absorbs the rounding remainder.
	first := s.complete(models.ScheduleOwnerGrant, grant.ID, 2)
	second := s.complete(models.ScheduleOwnerGrant, grant.ID, 0)
	last := s.complete(models.ScheduleOwnerGrant, grant.ID, 1)

	s.Equal(int64(33340), first.Amount)
	s.Equal(int64(33330), second.Amount)
	s.Equal(int64(33330), last.Amount)
	s.Equal(int64(100000), first.Amount+second.Amount+last.Amount)

	s.Zero(last.Schedule.RemainingEscrow)
	s.False(last.Schedule.IsActive)
	s.Equal(3, last.Schedule.CompletedMilestones)

	stored, err := s.grants.GetGrant(s.ctx, grant.ID)
	s.Require().NoError(err)
	s.Equal(int64(100000), stored.DisbursedAmount)
	s.Equal(models.GrantStatusActive, stored.Status)
	s.Equal(int64(treasuryBalance-100000), s.treasuryBalance())
	s.EqualValues(3, s.eventCount(EventMilestoneCompleted, grant.ID.String()))
}

func (s *MilestoneServiceTestSuite) TestRemainderWithUnevenEscrow() {
	grant := s.createGrant(1001)
	s.schedule(models.ScheduleOwnerGrant, grant.ID, 5000, 5000)

	a := s.complete(models.ScheduleOwnerGrant, grant.ID, 0)
	b := s.complete(models.ScheduleOwnerGrant, grant.ID, 1)

	s.Equal(int64(500), a.Amount)
	s.Equal(int64(501), b.Amount)
}

func (s *MilestoneServiceTestSuite) TestCompletedMilestoneIsTerminal() {
	grant := s.createGrant(100000)
	s.schedule(models.ScheduleOwnerGrant, grant.ID, 5000, 5000)
	s.complete(models.ScheduleOwnerGrant, grant.ID, 0)

	_, err := s.milestones.ValidateMilestone(s.ctx, validatorID, models.ScheduleOwnerGrant, grant.ID, 0, true)
	s.ErrorIs(err, ErrAlreadyTerminal)

	_, err = s.milestones.ValidateMilestone(s.ctx, validatorID, models.ScheduleOwnerGrant, grant.ID, 0, false)
	s.ErrorIs(err, ErrAlreadyTerminal)

	_, err = s.milestones.SubmitMilestoneEvidence(s.ctx, coopID, models.ScheduleOwnerGrant, grant.ID, 0, "s3://evidence/again.pdf", "")
	s.ErrorIs(err, ErrAlreadyTerminal)

	stored, err := s.grants.GetGrant(s.ctx, grant.ID)
	s.Require().NoError(err)
	s.Equal(int64(50000), stored.DisbursedAmount)
}

func (s *MilestoneServiceTestSuite) TestApproveRequiresEvidence() {
	grant := s.createGrant(100000)
	s.schedule(models.ScheduleOwnerGrant, grant.ID, 10000)

	_, err := s.milestones.ValidateMilestone(s.ctx, validatorID, models.ScheduleOwnerGrant, grant.ID, 0, true)
	s.ErrorIs(err, ErrInvalidState)
}

func (s *MilestoneServiceTestSuite) TestMilestoneIndexOutOfRange() {
	grant := s.createGrant(100000)
	s.schedule(models.ScheduleOwnerGrant, grant.ID, 10000)

	_, err := s.milestones.ValidateMilestone(s.ctx, validatorID, models.ScheduleOwnerGrant, grant.ID, 1, true)
	s.ErrorIs(err, ErrNotFound)

	_, err = s.milestones.SubmitMilestoneEvidence(s.ctx, coopID, models.ScheduleOwnerGrant, grant.ID, -1, "s3://x", "")
	s.ErrorIs(err, ErrNotFound)
}

func (s *MilestoneServiceTestSuite) TestRejectCountsAndLeavesMilestonePending() {
	grant := s.createGrant(100000)
	s.schedule(models.ScheduleOwnerGrant, grant.ID, 10000)
	_, err := s.milestones.SubmitMilestoneEvidence(s.ctx, coopID, models.ScheduleOwnerGrant, grant.ID, 0, "s3://evidence/blurry.jpg", "")
	s.Require().NoError(err)

	res, err := s.milestones.ValidateMilestone(s.ctx, validatorID, models.ScheduleOwnerGrant, grant.ID, 0, false)
	s.Require().NoError(err)
	s.False(res.Approved)
	s.Equal(1, res.Milestone.RejectionCount)
	s.False(res.Milestone.IsCompleted)

	// Resubmission replaces the evidence and approval goes through.
	s.complete(models.ScheduleOwnerGrant, grant.ID, 0)
	stored, err := s.milestones.GetSchedule(s.ctx, models.ScheduleOwnerGrant, grant.ID)
	s.Require().NoError(err)
	s.Equal(1, stored.Milestones[0].RejectionCount)
	s.True(stored.Milestones[0].IsCompleted)
	s.Equal(validatorID, stored.Milestones[0].ValidatorIdentity)
}

func (s *MilestoneServiceTestSuite) TestEvidenceAuthorization() {
	grant := s.createGrant(100000)
	s.schedule(models.ScheduleOwnerGrant, grant.ID, 10000)

	_, err := s.milestones.SubmitMilestoneEvidence(s.ctx, strangerID, models.ScheduleOwnerGrant, grant.ID, 0, "s3://x", "")
	s.ErrorIs(err, ErrUnauthorized)

	// evidence-submission holders may submit for any schedule
	m, err := s.milestones.SubmitMilestoneEvidence(s.ctx, adminID, models.ScheduleOwnerGrant, grant.ID, 0, "s3://x", "")
	s.Require().NoError(err)
	s.Equal(adminID, m.EvidenceSubmitter)

	_, err = s.milestones.SubmitMilestoneEvidence(s.ctx, coopID, models.ScheduleOwnerGrant, grant.ID, 0, "", "")
	s.ErrorIs(err, ErrInvalidState)
}

func (s *MilestoneServiceTestSuite) TestValidationRequiresCapability() {
	grant := s.createGrant(100000)
	s.schedule(models.ScheduleOwnerGrant, grant.ID, 10000)
	_, err := s.milestones.SubmitMilestoneEvidence(s.ctx, coopID, models.ScheduleOwnerGrant, grant.ID, 0, "s3://x", "")
	s.Require().NoError(err)

	_, err = s.milestones.ValidateMilestone(s.ctx, coopID, models.ScheduleOwnerGrant, grant.ID, 0, true)
	s.ErrorIs(err, ErrUnauthorized)
}

func (s *MilestoneServiceTestSuite) TestTransferFailureRollsBackEverything() {
	grant := s.createGrant(100000)
	s.schedule(models.ScheduleOwnerGrant, grant.ID, 4000, 6000)
	_, err := s.milestones.SubmitMilestoneEvidence(s.ctx, coopID, models.ScheduleOwnerGrant, grant.ID, 0, "s3://x", "")
	s.Require().NoError(err)

	offline := s.milestonesWith(failingCustodian{})
	_, err = offline.ValidateMilestone(s.ctx, validatorID, models.ScheduleOwnerGrant, grant.ID, 0, true)
	s.ErrorIs(err, ErrTransferFailed)

	stored, err := s.milestones.GetSchedule(s.ctx, models.ScheduleOwnerGrant, grant.ID)
	s.Require().NoError(err)
	s.Equal(int64(100000), stored.RemainingEscrow)
	s.Zero(stored.CompletedMilestones)
	s.False(stored.Milestones[0].IsCompleted)
	s.Zero(stored.Milestones[0].DisbursedAmount)

	g, err := s.grants.GetGrant(s.ctx, grant.ID)
	s.Require().NoError(err)
	s.Equal(models.GrantStatusPending, g.Status)
	s.Zero(g.DisbursedAmount)
	s.Zero(s.eventCount(EventMilestoneCompleted, grant.ID.String()))
	s.Zero(s.eventCount(EventGrantStatusChanged, grant.ID.String()))

	// The same milestone goes through once custody is back.
	res, err := s.milestones.ValidateMilestone(s.ctx, validatorID, models.ScheduleOwnerGrant, grant.ID, 0, true)
	s.Require().NoError(err)
	s.Equal(int64(40000), res.Amount)
}

func (s *MilestoneServiceTestSuite) TestRolledBackPayoutRecordsNoMetrics() {
	grant := s.createGrant(100000)
	s.schedule(models.ScheduleOwnerGrant, grant.ID, 4000, 6000)
	_, err := s.milestones.SubmitMilestoneEvidence(s.ctx, coopID, models.ScheduleOwnerGrant, grant.ID, 0, "s3://x", "")
	s.Require().NoError(err)

	offline := s.milestonesWith(failingCustodian{})
	_, err = offline.ValidateMilestone(s.ctx, validatorID, models.ScheduleOwnerGrant, grant.ID, 0, true)
	s.ErrorIs(err, ErrTransferFailed)

	count := func(name string) int {
		n, err := testutil.GatherAndCount(s.reg, name)
		s.Require().NoError(err)
		return n
	}
	s.Zero(count("coopfund_grant_transitions_total"))
	s.Zero(count("coopfund_disbursed_amount_total"))

	_, err = s.milestones.ValidateMilestone(s.ctx, validatorID, models.ScheduleOwnerGrant, grant.ID, 0, true)
	s.Require().NoError(err)
	s.Equal(1, count("coopfund_grant_transitions_total"))
	s.Equal(1, count("coopfund_disbursed_amount_total"))
}

func (s *MilestoneServiceTestSuite) TestInsufficientTreasuryRollsBack() {
	grant := s.createGrant(100000)
	s.schedule(models.ScheduleOwnerGrant, grant.ID, 10000)
	_, err := s.milestones.SubmitMilestoneEvidence(s.ctx, coopID, models.ScheduleOwnerGrant, grant.ID, 0, "s3://x", "")
	s.Require().NoError(err)

	small := NewTreasuryCustodian(s.db, "small-pool")
	s.Require().NoError(small.Deposit(s.ctx, 10))

	_, err = s.milestonesWith(small).ValidateMilestone(s.ctx, validatorID, models.ScheduleOwnerGrant, grant.ID, 0, true)
	s.ErrorIs(err, ErrTransferFailed)
	s.True(errors.Is(err, ErrInsufficientFunds))

	balance, err := small.Balance(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(10), balance)

	var transfers int64
	s.Require().NoError(s.db.Model(&models.CustodyTransfer{}).Count(&transfers).Error)
	s.Zero(transfers)
}

func (s *MilestoneServiceTestSuite) TestRejectedProofStaysRejected() {
	s.registerAttestCircuit()
	grant := s.createGrant(100000)
	_, err := s.milestones.CreateDisbursementSchedule(s.ctx, adminID, models.ScheduleOwnerGrant, grant.ID, &CreateScheduleRequest{
		Descriptions:       []string{"harvest certified"},
		Percentages:        []int64{10000},
		RequiredProofTypes: []models.BackendType{models.BackendLightVerify},
	})
	s.Require().NoError(err)

	// A proof is mandatory for this milestone.
	_, err = s.milestones.SubmitMilestoneEvidence(s.ctx, coopID, models.ScheduleOwnerGrant, grant.ID, 0, "s3://cert.pdf", "")
	s.ErrorIs(err, ErrVerificationFailed)

	proof := s.submitAttestation([]byte("harvest:2025:kg=1200"), false)
	_, err = s.milestones.SubmitMilestoneEvidence(s.ctx, coopID, models.ScheduleOwnerGrant, grant.ID, 0, "s3://cert.pdf", proof.Hash)
	s.Require().NoError(err)

	_, err = s.milestones.ValidateMilestone(s.ctx, validatorID, models.ScheduleOwnerGrant, grant.ID, 0, true)
	s.ErrorIs(err, ErrVerificationFailed)

	stored, err := s.proofs.GetProof(s.ctx, proof.Hash)
	s.Require().NoError(err)
	s.Equal(models.ProofStatusRejected, stored.Status)

	sched, err := s.milestones.GetSchedule(s.ctx, models.ScheduleOwnerGrant, grant.ID)
	s.Require().NoError(err)
	s.False(sched.Milestones[0].IsCompleted)
	s.Equal(int64(100000), sched.RemainingEscrow)

	// Approving again does not re-run the rejected proof.
	_, err = s.milestones.ValidateMilestone(s.ctx, validatorID, models.ScheduleOwnerGrant, grant.ID, 0, true)
	s.ErrorIs(err, ErrVerificationFailed)
	s.EqualValues(1, s.eventCount(EventProofVerified, proof.Hash))
}

func (s *MilestoneServiceTestSuite) TestExpiredProofBlocksMilestone() {
	s.registerAttestCircuit()
	grant := s.createGrant(100000)
	s.schedule(models.ScheduleOwnerGrant, grant.ID, 10000)

	proof := s.submitAttestation([]byte("harvest:2025:kg=900"), true)
	_, err := s.milestones.SubmitMilestoneEvidence(s.ctx, coopID, models.ScheduleOwnerGrant, grant.ID, 0, "s3://cert.pdf", proof.Hash)
	s.Require().NoError(err)

	s.advance(25 * time.Hour)
	_, err = s.milestones.ValidateMilestone(s.ctx, validatorID, models.ScheduleOwnerGrant, grant.ID, 0, true)
	s.ErrorIs(err, ErrProofExpired)

	stored, err := s.proofs.GetProof(s.ctx, proof.Hash)
	s.Require().NoError(err)
	s.Equal(models.ProofStatusExpired, stored.Status)
}

func (s *MilestoneServiceTestSuite) TestVerifiedProofReleasesMilestone() {
	s.registerAttestCircuit()
	grant := s.createGrant(100000)
	s.schedule(models.ScheduleOwnerGrant, grant.ID, 10000)

	proof := s.submitAttestation([]byte("harvest:2025:kg=1500"), true)
	_, err := s.milestones.SubmitMilestoneEvidence(s.ctx, coopID, models.ScheduleOwnerGrant, grant.ID, 0, "s3://cert.pdf", proof.Hash)
	s.Require().NoError(err)

	res, err := s.milestones.ValidateMilestone(s.ctx, validatorID, models.ScheduleOwnerGrant, grant.ID, 0, true)
	s.Require().NoError(err)
	s.Equal(int64(100000), res.Amount)
	s.Equal(proof.Hash, res.Milestone.ProofHash)

	stored, err := s.proofs.GetProof(s.ctx, proof.Hash)
	s.Require().NoError(err)
	s.Equal(models.ProofStatusVerified, stored.Status)
	s.Equal(validatorID, stored.VerifiedBy)
}

func (s *MilestoneServiceTestSuite) TestEvidenceProofMustMatchRequiredBackend() {
	s.registerAttestCircuit()
	grant := s.createGrant(100000)
	_, err := s.milestones.CreateDisbursementSchedule(s.ctx, adminID, models.ScheduleOwnerGrant, grant.ID, &CreateScheduleRequest{
		Descriptions:       []string{"yield computation"},
		Percentages:        []int64{10000},
		RequiredProofTypes: []models.BackendType{models.BackendHeavyCompute},
	})
	s.Require().NoError(err)

	proof := s.submitAttestation([]byte("harvest:2025:kg=1500"), true)
	_, err = s.milestones.SubmitMilestoneEvidence(s.ctx, coopID, models.ScheduleOwnerGrant, grant.ID, 0, "s3://cert.pdf", proof.Hash)
	s.ErrorIs(err, ErrVerificationFailed)

	_, err = s.milestones.SubmitMilestoneEvidence(s.ctx, coopID, models.ScheduleOwnerGrant, grant.ID, 0, "s3://cert.pdf", "no-such-proof")
	s.ErrorIs(err, ErrNotFound)
}

func (s *MilestoneServiceTestSuite) TestLoanScheduleActivatesLoan() {
	loan := s.createLoan(500000, 800, 365)
	s.schedule(models.ScheduleOwnerLoan, loan.ID, 5000, 5000)

	_, err := s.loans.DisburseLoan(s.ctx, adminID, loan.ID)
	s.ErrorIs(err, ErrInvalidState)

	res := s.complete(models.ScheduleOwnerLoan, loan.ID, 0)
	s.Equal(int64(250000), res.Amount)

	stored, err := s.loans.GetLoan(s.ctx, loan.ID)
	s.Require().NoError(err)
	s.Equal(models.LoanStatusActive, stored.Status)
	s.Equal(int64(250000), stored.DisbursedAmount)

	var transfer models.CustodyTransfer
	s.Require().NoError(s.db.Where("recipient = ?", coopID).First(&transfer).Error)
	s.Equal(int64(250000), transfer.Amount)
}

func (s *MilestoneServiceTestSuite) TestPausedMilestones() {
	grant := s.createGrant(100000)
	s.Require().NoError(s.pauses.Pause(s.ctx, adminID, ComponentMilestones))

	_, err := s.milestones.CreateDisbursementSchedule(s.ctx, adminID, models.ScheduleOwnerGrant, grant.ID, &CreateScheduleRequest{
		Descriptions: []string{"a"},
		Percentages:  []int64{10000},
	})
	s.ErrorIs(err, ErrPaused)

	s.Require().NoError(s.pauses.Unpause(s.ctx, adminID, ComponentMilestones))
	s.schedule(models.ScheduleOwnerGrant, grant.ID, 10000)
	_, err = s.milestones.SubmitMilestoneEvidence(s.ctx, coopID, models.ScheduleOwnerGrant, grant.ID, 0, "s3://x", "")
	s.Require().NoError(err)

	s.Require().NoError(s.pauses.Pause(s.ctx, adminID, ComponentMilestones))
	_, err = s.milestones.ValidateMilestone(s.ctx, validatorID, models.ScheduleOwnerGrant, grant.ID, 0, true)
	s.ErrorIs(err, ErrPaused)
}

func (s *MilestoneServiceTestSuite) TestDefaultedLoanBlocksRemainingMilestones() {
	loan := s.createLoan(10000, 800, 30)
	s.schedule(models.ScheduleOwnerLoan, loan.ID, 5000, 5000)
	s.complete(models.ScheduleOwnerLoan, loan.ID, 0)
	treasury := s.treasuryBalance()

	s.advance(31 * day)
	_, err := s.loans.MarkLoanDefaulted(s.ctx, adminID, loan.ID)
	s.Require().NoError(err)

	_, err = s.milestones.SubmitMilestoneEvidence(s.ctx, coopID, models.ScheduleOwnerLoan, loan.ID, 1, "s3://evidence/1.pdf", "")
	s.Require().NoError(err)
	_, err = s.milestones.ValidateMilestone(s.ctx, validatorID, models.ScheduleOwnerLoan, loan.ID, 1, true)
	s.ErrorIs(err, ErrInvalidState)

	stored, err := s.loans.GetLoan(s.ctx, loan.ID)
	s.Require().NoError(err)
	s.Equal(models.LoanStatusDefaulted, stored.Status)
	s.Equal(int64(5000), stored.DisbursedAmount)
	s.Equal(treasury, s.treasuryBalance())

	sched, err := s.milestones.GetSchedule(s.ctx, models.ScheduleOwnerLoan, loan.ID)
	s.Require().NoError(err)
	s.False(sched.Milestones[1].IsCompleted)
	s.Equal(int64(5000), sched.RemainingEscrow)
}

func (s *MilestoneServiceTestSuite) TestQuarterTranchesWithRejectedAttestation() {
	s.registerAttestCircuit()
	grant := s.createGrant(100000)
	s.schedule(models.ScheduleOwnerGrant, grant.ID, 2500, 2500, 2500, 2500)

	res := s.complete(models.ScheduleOwnerGrant, grant.ID, 0)
	s.Equal(int64(25000), res.Amount)

	_, err := s.milestones.ValidateMilestone(s.ctx, validatorID, models.ScheduleOwnerGrant, grant.ID, 0, true)
	s.ErrorIs(err, ErrAlreadyTerminal)

	proof := s.submitAttestation([]byte("harvest:2025:kg=400"), false)
	_, err = s.milestones.SubmitMilestoneEvidence(s.ctx, coopID, models.ScheduleOwnerGrant, grant.ID, 1, "s3://evidence/1.pdf", proof.Hash)
	s.Require().NoError(err)
	_, err = s.milestones.ValidateMilestone(s.ctx, validatorID, models.ScheduleOwnerGrant, grant.ID, 1, true)
	s.ErrorIs(err, ErrVerificationFailed)

	stored, err := s.grants.GetGrant(s.ctx, grant.ID)
	s.Require().NoError(err)
	s.Equal(int64(25000), stored.DisbursedAmount)

	sched, err := s.milestones.GetSchedule(s.ctx, models.ScheduleOwnerGrant, grant.ID)
	s.Require().NoError(err)
	s.True(sched.Milestones[0].IsCompleted)
	s.False(sched.Milestones[1].IsCompleted)
	s.Equal(int64(75000), sched.RemainingEscrow)
}
