// internal/services/suite_test.go
package services

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/javajoker/coopfund-backend/internal/config"
	"github.com/javajoker/coopfund-backend/internal/database"
	"github.com/javajoker/coopfund-backend/internal/metrics"
	"github.com/javajoker/coopfund-backend/internal/models"
	"github.com/javajoker/coopfund-backend/internal/utils"
)

const (
	adminID     = "dao-admin"
	validatorID = "validator-1"
	coopID      = "coop-highland"
	proverID    = "prover-1"
	strangerID  = "stranger"
	pricerID    = "pricing-desk"

	treasuryName    = "dao-pool"
	treasuryBalance = 10_000_000
	batchID         = "batch-001"

	attestCircuit = "harvest-attest"
	attestVersion = "v1"
)

var attesterKey = ed25519.NewKeyFromSeed([]byte("coopfund-test-attester-seed-0001"))

// ledgerSuite wires every ledger component against a private in-memory
// database and a clock the test controls.
type ledgerSuite struct {
	suite.Suite

	ctx  context.Context
	db   *gorm.DB
	cfg  *config.Config
	now  time.Time
	reg  *prometheus.Registry
	mtrc *metrics.Metrics

	seq           *Sequencer
	identities    *IdentityService
	inventory     *InventoryService
	notifications *NotificationService
	pauses        *PauseService
	treasury      *TreasuryCustodian
	pricing       *PricingService
	grants        *GrantService
	loans         *LoanService
	proofs        *ProofService
	milestones    *MilestoneService
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Database: config.DatabaseConfig{
			Driver:     "sqlite",
			SQLitePath: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
			LogLevel:   "silent",
		},
		Custody: config.CustodyConfig{
			Driver:           "treasury",
			TreasuryName:     treasuryName,
			LiquidationOwner: "dao-treasury",
		},
		Proofs: config.ProofsConfig{
			HeavyCompute: config.BackendConfig{
				MaxProofSize:       4096,
				MaxPublicInputSize: 8192,
				ExpiryWindow:       7 * 24 * time.Hour,
				BaseCost:           200000,
				PerByteCost:        16,
			},
			LightVerify: config.BackendConfig{
				MaxProofSize:       128,
				MaxPublicInputSize: 2048,
				ExpiryWindow:       24 * time.Hour,
				BaseCost:           3000,
				PerByteCost:        8,
			},
		},
		Ledger: config.LedgerConfig{
			MaxGrantDurationYears: 30,
			MaxLoanDurationDays:   3650,
		},
	}
}

func (s *ledgerSuite) SetupTest() {
	s.ctx = context.Background()
	s.cfg = testConfig()
	s.now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	db, err := database.Initialize(s.cfg.Database)
	s.Require().NoError(err)
	s.Require().NoError(database.RunMigrations(db))
	s.db = db

	s.reg = prometheus.NewRegistry()
	s.mtrc = metrics.New(s.reg)

	s.seq = NewSequencer(db)
	s.seq.SetClock(func() time.Time { return s.now })
	s.identities = NewIdentityService(db)
	s.inventory = NewInventoryService(db, s.identities)
	s.notifications = NewNotificationService(db, s.seq)
	s.pauses = NewPauseService(db, s.seq, s.identities, s.notifications)
	s.treasury = NewTreasuryCustodian(db, treasuryName)
	s.pricing = NewPricingService(db, s.seq, s.identities, s.inventory, s.pauses, s.notifications)
	s.grants = NewGrantService(db, s.cfg, s.seq, s.identities, s.inventory, s.pricing, s.pauses, s.notifications, s.mtrc)
	s.loans = NewLoanService(db, s.cfg, s.seq, s.identities, s.inventory, s.treasury, s.pauses, s.notifications, s.mtrc)
	s.proofs = NewProofService(db, s.cfg, s.seq, s.identities, s.pauses, s.notifications, s.mtrc)
	s.milestones = s.milestonesWith(s.treasury)

	s.addOperator(adminID, models.AllCapabilities()...)
	s.addOperator(validatorID, models.CapabilityMilestoneValidation)
	s.addOperator(proverID, models.CapabilityProofSubmission, models.CapabilityProofVerification)
	s.addOperator(pricerID, models.CapabilityPricingAdmin)
	s.addOperator(coopID)
	s.addOperator(strangerID)

	s.Require().NoError(s.treasury.Deposit(s.ctx, treasuryBalance))
	s.addBatch(batchID, coopID)
}

func (s *ledgerSuite) TearDownTest() {
	database.Close(s.db)
}

func (s *ledgerSuite) milestonesWith(custodian CapitalCustodian) *MilestoneService {
	return NewMilestoneService(s.db, s.seq, s.identities, custodian, s.grants, s.loans, s.proofs, s.pauses, s.notifications, s.mtrc)
}

func (s *ledgerSuite) addOperator(identity string, caps ...models.Capability) {
	list := make(models.StringList, 0, len(caps))
	for _, c := range caps {
		list = append(list, string(c))
	}
	op := &models.Operator{
		Identity:     identity,
		Email:        identity + "@coopfund.test",
		PasswordHash: "unused",
		Capabilities: list,
		Status:       models.OperatorStatusActive,
	}
	s.Require().NoError(s.db.Create(op).Error)
}

func (s *ledgerSuite) addBatch(id, owner string) {
	s.Require().NoError(s.db.Create(&models.Batch{BatchID: id, OwnerID: owner, Commodity: "coffee", Units: 100}).Error)
}

func (s *ledgerSuite) advance(d time.Duration) {
	s.now = s.now.Add(d)
}

func (s *ledgerSuite) grantRequest(amount int64) *CreateGrantRequest {
	return &CreateGrantRequest{
		CooperativeID:   coopID,
		Amount:          amount,
		BatchIDs:        []string{batchID},
		RevenueSharePct: 2000,
		DurationYears:   5,
		Name:            "Highland drying beds",
	}
}

func (s *ledgerSuite) createGrant(amount int64) *models.Grant {
	grant, err := s.grants.CreateGrant(s.ctx, adminID, s.grantRequest(amount))
	s.Require().NoError(err)
	return grant
}

func (s *ledgerSuite) createLoan(principal, rateBps int64, days int) *models.Loan {
	loan, err := s.loans.CreateLoan(s.ctx, adminID, &CreateLoanRequest{
		BorrowerID:         coopID,
		Principal:          principal,
		AnnualRateBps:      rateBps,
		DurationDays:       days,
		CollateralBatchIDs: []string{batchID},
	})
	s.Require().NoError(err)
	return loan
}

func (s *ledgerSuite) schedule(kind models.ScheduleOwnerKind, ownerID uuid.UUID, pcts ...int64) *models.DisbursementSchedule {
	descriptions := make([]string, len(pcts))
	for i := range pcts {
		descriptions[i] = fmt.Sprintf("stage %d", i+1)
	}
	sched, err := s.milestones.CreateDisbursementSchedule(s.ctx, adminID, kind, ownerID, &CreateScheduleRequest{
		Descriptions: descriptions,
		Percentages:  pcts,
	})
	s.Require().NoError(err)
	return sched
}

// complete submits evidence for a milestone and approves it.
func (s *ledgerSuite) complete(kind models.ScheduleOwnerKind, ownerID uuid.UUID, index int) *MilestoneValidation {
	_, err := s.milestones.SubmitMilestoneEvidence(s.ctx, coopID, kind, ownerID, index, fmt.Sprintf("s3://evidence/%d.pdf", index), "")
	s.Require().NoError(err)
	res, err := s.milestones.ValidateMilestone(s.ctx, validatorID, kind, ownerID, index, true)
	s.Require().NoError(err)
	return res
}

// activeGrant returns a grant activated by a single full disbursement.
func (s *ledgerSuite) activeGrant(amount int64) *models.Grant {
	grant := s.createGrant(amount)
	s.schedule(models.ScheduleOwnerGrant, grant.ID, 10000)
	s.complete(models.ScheduleOwnerGrant, grant.ID, 0)

	grant, err := s.grants.GetGrant(s.ctx, grant.ID)
	s.Require().NoError(err)
	s.Require().Equal(models.GrantStatusActive, grant.Status)
	return grant
}

func (s *ledgerSuite) registerAttestCircuit() *models.CircuitDescriptor {
	circuit, err := s.proofs.RegisterCircuit(s.ctx, adminID, &RegisterCircuitRequest{
		BackendType:        models.BackendLightVerify,
		Name:               attestCircuit,
		Version:            attestVersion,
		MaxProofSize:       64,
		MaxPublicInputSize: 1024,
		CostCeiling:        100000,
		VerifyingKey:       attesterKey.Public().(ed25519.PublicKey),
	})
	s.Require().NoError(err)
	return circuit
}

func (s *ledgerSuite) attestationRequest(inputs, signature []byte) *SubmitProofRequest {
	return &SubmitProofRequest{
		BackendType:      models.BackendLightVerify,
		CircuitName:      attestCircuit,
		CircuitVersion:   attestVersion,
		ProofData:        signature,
		PublicInputs:     inputs,
		PublicInputsHash: utils.HashBytes(inputs),
	}
}

func (s *ledgerSuite) submitAttestation(inputs []byte, valid bool) *models.Proof {
	sig := ed25519.Sign(attesterKey, AttestationMessage(attestCircuit, attestVersion, inputs))
	if !valid {
		sig[0] ^= 0xff
	}
	proof, err := s.proofs.SubmitProof(s.ctx, proverID, s.attestationRequest(inputs, sig))
	s.Require().NoError(err)
	s.Require().Equal(models.ProofStatusPending, proof.Status)
	return proof
}

func (s *ledgerSuite) eventCount(eventType, entityID string) int64 {
	_, total, err := s.notifications.ListEvents(s.ctx, EventFilter{
		PaginationParams: utils.PaginationParams{Page: 1, Limit: 100, Order: "asc"},
		EntityID:         entityID,
		EventType:        eventType,
	})
	s.Require().NoError(err)
	return total
}

func pageOf(page, limit int) utils.PaginationParams {
	return utils.PaginationParams{Page: page, Limit: limit, Sort: "created_at", Order: "desc"}
}

func (s *ledgerSuite) treasuryBalance() int64 {
	balance, err := s.treasury.Balance(s.ctx)
	s.Require().NoError(err)
	return balance
}

// failingCustodian refuses every transfer.
type failingCustodian struct{}

func (failingCustodian) Transfer(ctx context.Context, amount int64, recipient, reference string) error {
	return fmt.Errorf("custodian offline")
}

func (failingCustodian) Balance(ctx context.Context) (int64, error) {
	return 0, nil
}
