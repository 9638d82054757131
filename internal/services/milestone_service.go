// internal/services/milestone_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/coopfund-backend/internal/database"
	"github.com/javajoker/coopfund-backend/internal/metrics"
	"github.com/javajoker/coopfund-backend/internal/models"
)

// ownerSnapshot is the view of a grant or loan the scheduler works with.
type ownerSnapshot struct {
	Kind      models.ScheduleOwnerKind
	ID        uuid.UUID
	Recipient string
	Amount    int64
	Disbursed int64
	Status    string
	Open      bool
	Terminal  bool
}

// scheduleOwner is implemented by the grant and loan ledgers. Both methods
// use the transaction carried by ctx.
type scheduleOwner interface {
	ownerSnapshot(ctx context.Context, ownerID uuid.UUID) (*ownerSnapshot, error)
	recordDisbursement(ctx context.Context, ownerID uuid.UUID, amount int64, actor string) error
}

// MilestoneService releases escrowed capital in tranches as milestones are
// validated.
type MilestoneService struct {
	db            *gorm.DB
	seq           *Sequencer
	identities    IdentityRegistry
	custodian     CapitalCustodian
	proofs        *ProofService
	pauses        *PauseService
	notifications *NotificationService
	metrics       *metrics.Metrics
	owners        map[models.ScheduleOwnerKind]scheduleOwner
}

type CreateScheduleRequest struct {
	Descriptions       []string             `json:"descriptions"`
	Percentages        []int64              `json:"percentages"`
	RequiredProofTypes []models.BackendType `json:"required_proof_types,omitempty"`
}

// MilestoneValidation is the result of ValidateMilestone.
type MilestoneValidation struct {
	Schedule  *models.DisbursementSchedule `json:"schedule"`
	Milestone *models.Milestone            `json:"milestone"`
	Approved  bool                         `json:"approved"`
	Amount    int64                        `json:"amount"`
}

func NewMilestoneService(
	db *gorm.DB,
	seq *Sequencer,
	identities IdentityRegistry,
	custodian CapitalCustodian,
	grants *GrantService,
	loans *LoanService,
	proofs *ProofService,
	pauses *PauseService,
	notifications *NotificationService,
	m *metrics.Metrics,
) *MilestoneService {
	return &MilestoneService{
		db:            db,
		seq:           seq,
		identities:    identities,
		custodian:     custodian,
		proofs:        proofs,
		pauses:        pauses,
		notifications: notifications,
		metrics:       m,
		owners: map[models.ScheduleOwnerKind]scheduleOwner{
			models.ScheduleOwnerGrant: grants,
			models.ScheduleOwnerLoan:  loans,
		},
	}
}

func (s *MilestoneService) owner(kind models.ScheduleOwnerKind) (scheduleOwner, error) {
	owner, ok := s.owners[kind]
	if !ok {
		return nil, newError(CodeNotFound, "schedule", string(kind), "unknown schedule owner kind %q", kind)
	}
	return owner, nil
}

// CreateDisbursementSchedule escrows everything not yet disbursed on the owner
// and splits it into milestones.
func (s *MilestoneService) CreateDisbursementSchedule(ctx context.Context, actor string, kind models.ScheduleOwnerKind, ownerID uuid.UUID, req *CreateScheduleRequest) (*models.DisbursementSchedule, error) {
	if err := authorize(ctx, s.identities, actor, models.CapabilityGrantManagement); err != nil {
		return nil, err
	}

	var schedule *models.DisbursementSchedule
	err := s.seq.Atomic(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := s.pauses.ensureRunning(ctx, ComponentMilestones); err != nil {
			return err
		}
		if err := validateMilestoneShape(ownerID, req); err != nil {
			return err
		}

		owner, err := s.owner(kind)
		if err != nil {
			return err
		}
		snap, err := owner.ownerSnapshot(ctx, ownerID)
		if err != nil {
			return err
		}
		if snap.Terminal {
			return newError(CodeAlreadyTerminal, string(kind), ownerID.String(), "%s is %s", kind, snap.Status)
		}
		if !snap.Open {
			return newError(CodeInvalidState, string(kind), ownerID.String(), "cannot schedule a %s %s", snap.Status, kind)
		}

		var existing int64
		if err := tx.Unscoped().Model(&models.DisbursementSchedule{}).
			Where("owner_kind = ? AND owner_id = ?", kind, ownerID).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("database error: %w", err)
		}
		if existing > 0 {
			return newError(CodeAlreadyExists, string(kind), ownerID.String(), "%s already has a disbursement schedule", kind)
		}

		escrow := snap.Amount - snap.Disbursed
		if escrow <= 0 {
			return newError(CodeInsufficientEscrow, string(kind), ownerID.String(), "nothing left to escrow")
		}

		schedule = &models.DisbursementSchedule{
			OwnerKind:       kind,
			OwnerID:         ownerID,
			Recipient:       snap.Recipient,
			EscrowedAmount:  escrow,
			RemainingEscrow: escrow,
			MilestoneCount:  len(req.Descriptions),
			IsActive:        true,
			CreatedBy:       actor,
		}
		for i, description := range req.Descriptions {
			m := models.Milestone{
				Position:        i,
				Description:     description,
				PercentageShare: req.Percentages[i],
			}
			if len(req.RequiredProofTypes) > 0 {
				m.RequiredProofType = req.RequiredProofTypes[i]
			}
			schedule.Milestones = append(schedule.Milestones, m)
		}
		if err := tx.Create(schedule).Error; err != nil {
			return fmt.Errorf("failed to create schedule: %w", err)
		}

		return s.notifications.Emit(ctx, EventScheduleCreated, string(kind), ownerID.String(), actor, map[string]interface{}{
			"schedule_id":     schedule.ID.String(),
			"escrowed_amount": escrow,
			"milestones":      len(req.Descriptions),
			"percentages":     req.Percentages,
		})
	})
	if err != nil {
		return nil, err
	}
	return schedule, nil
}

func validateMilestoneShape(ownerID uuid.UUID, req *CreateScheduleRequest) error {
	n := len(req.Descriptions)
	if n == 0 || n != len(req.Percentages) {
		return newError(CodeArrayLengthMismatch, "schedule", ownerID.String(),
			"%d descriptions and %d percentages", n, len(req.Percentages))
	}
	if len(req.RequiredProofTypes) > 0 && len(req.RequiredProofTypes) != n {
		return newError(CodeArrayLengthMismatch, "schedule", ownerID.String(),
			"%d descriptions and %d required proof types", n, len(req.RequiredProofTypes))
	}

	var sum int64
	for i, pct := range req.Percentages {
		if pct <= 0 || pct > models.BasisPoints {
			return newError(CodeInvalidPercentage, "schedule", ownerID.String(),
				"milestone %d share %d bps outside (0,10000]", i, pct)
		}
		sum += pct
	}
	if sum != models.BasisPoints {
		return newError(CodeInvalidPercentage, "schedule", ownerID.String(),
			"milestone shares sum to %d bps, want 10000", sum)
	}

	for i, t := range req.RequiredProofTypes {
		if t != "" && !t.Valid() {
			return newError(CodeUnsupportedCircuit, "schedule", ownerID.String(),
				"milestone %d requires unknown backend %q", i, t)
		}
	}
	return nil
}

// SubmitMilestoneEvidence attaches evidence, and optionally a proof, to a
// pending milestone. Resubmission replaces the previous evidence.
func (s *MilestoneService) SubmitMilestoneEvidence(ctx context.Context, actor string, kind models.ScheduleOwnerKind, ownerID uuid.UUID, index int, evidenceRef, proofHash string) (*models.Milestone, error) {
	if err := s.authorizeEvidence(ctx, actor, kind, ownerID); err != nil {
		return nil, err
	}

	var milestone *models.Milestone
	err := s.seq.Atomic(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := s.pauses.ensureRunning(ctx, ComponentMilestones); err != nil {
			return err
		}

		schedule, m, err := s.loadMilestone(tx, kind, ownerID, index)
		if err != nil {
			return err
		}
		milestone = m
		if milestone.IsCompleted {
			return newError(CodeAlreadyTerminal, "milestone", milestoneRef(schedule, index), "milestone already completed")
		}
		if evidenceRef == "" {
			return newError(CodeInvalidState, "milestone", milestoneRef(schedule, index), "evidence reference is required")
		}

		if proofHash == "" && milestone.RequiredProofType != "" {
			return newError(CodeVerificationFailed, "milestone", milestoneRef(schedule, index),
				"milestone requires a %s proof", milestone.RequiredProofType)
		}
		if proofHash != "" {
			var proof models.Proof
			if err := tx.Where("hash = ?", proofHash).First(&proof).Error; err != nil {
				return notFoundOr(err, "proof", proofHash)
			}
			if milestone.RequiredProofType != "" && proof.BackendType != milestone.RequiredProofType {
				return newError(CodeVerificationFailed, "milestone", milestoneRef(schedule, index),
					"proof is %s, milestone requires %s", proof.BackendType, milestone.RequiredProofType)
			}
		}

		now := s.seq.Now()
		milestone.EvidenceReference = evidenceRef
		milestone.ProofHash = proofHash
		milestone.EvidenceSubmittedAt = &now
		milestone.EvidenceSubmitter = actor
		if err := tx.Save(milestone).Error; err != nil {
			return fmt.Errorf("failed to record evidence: %w", err)
		}

		return s.notifications.Emit(ctx, EventEvidenceSubmitted, string(kind), ownerID.String(), actor, map[string]interface{}{
			"schedule_id":  schedule.ID.String(),
			"index":        index,
			"evidence_ref": evidenceRef,
			"proof_hash":   proofHash,
		})
	})
	if err != nil {
		return nil, err
	}
	return milestone, nil
}

// authorizeEvidence admits the schedule recipient or any holder of
// evidence-submission.
func (s *MilestoneService) authorizeEvidence(ctx context.Context, actor string, kind models.ScheduleOwnerKind, ownerID uuid.UUID) error {
	ok, err := s.identities.IsAuthorized(ctx, actor, models.CapabilityEvidenceSubmission)
	if err != nil {
		return wrapError(CodeUnauthorized, "identity", actor, err, "capability check failed")
	}
	if ok {
		return nil
	}

	var schedule models.DisbursementSchedule
	err = s.db.WithContext(ctx).Select("recipient").
		Where("owner_kind = ? AND owner_id = ?", kind, ownerID).
		First(&schedule).Error
	if err == nil && schedule.Recipient == actor {
		return nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("database error: %w", err)
	}
	return newError(CodeUnauthorized, "identity", actor, "not the recipient and missing capability %s", models.CapabilityEvidenceSubmission)
}

// ValidateMilestone approves or rejects a milestone. Approval of a milestone
// backed by a pending proof verifies the proof first; that verification is
// committed on its own, so a rejected proof stays rejected even though the
// milestone is left untouched.
func (s *MilestoneService) ValidateMilestone(ctx context.Context, actor string, kind models.ScheduleOwnerKind, ownerID uuid.UUID, index int, approved bool) (*MilestoneValidation, error) {
	if err := authorize(ctx, s.identities, actor, models.CapabilityMilestoneValidation); err != nil {
		return nil, err
	}

	var result *MilestoneValidation
	err := s.seq.Do(func() error {
		if err := s.pauses.ensureRunning(ctx, ComponentMilestones); err != nil {
			return err
		}

		if approved {
			if err := s.checkMilestoneProof(ctx, actor, kind, ownerID, index); err != nil {
				return err
			}
		}

		return s.seq.inTx(ctx, func(ctx context.Context, tx *gorm.DB) error {
			var err error
			if approved {
				result, err = s.approve(ctx, tx, actor, kind, ownerID, index)
			} else {
				result, err = s.reject(ctx, tx, actor, kind, ownerID, index)
			}
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// checkMilestoneProof makes sure the milestone's proof, if any, is verified.
// Must be called while the sequencer is held.
func (s *MilestoneService) checkMilestoneProof(ctx context.Context, actor string, kind models.ScheduleOwnerKind, ownerID uuid.UUID, index int) error {
	schedule, milestone, err := s.loadMilestone(s.db.WithContext(ctx), kind, ownerID, index)
	if err != nil {
		return err
	}
	ref := milestoneRef(schedule, index)
	if milestone.IsCompleted {
		return newError(CodeAlreadyTerminal, "milestone", ref, "milestone already completed")
	}
	if milestone.ProofHash == "" {
		if milestone.RequiredProofType != "" {
			return newError(CodeVerificationFailed, "milestone", ref, "milestone requires a %s proof", milestone.RequiredProofType)
		}
		return nil
	}

	proof, err := s.proofs.GetProof(ctx, milestone.ProofHash)
	if err != nil {
		return err
	}
	if proof.Status == models.ProofStatusPending {
		if err := s.pauses.ensureRunning(ctx, ComponentProofs); err != nil {
			return err
		}
		err := s.seq.inTx(ctx, func(ctx context.Context, tx *gorm.DB) error {
			verified, _, err := s.proofs.verifyProof(ctx, tx, actor, milestone.ProofHash)
			if err != nil {
				return err
			}
			proof = verified
			return nil
		})
		if err != nil {
			return err
		}
	}

	switch proof.Status {
	case models.ProofStatusVerified:
		return nil
	case models.ProofStatusExpired:
		return newError(CodeProofExpired, "milestone", ref, "proof %s expired", proof.Hash)
	default:
		return newError(CodeVerificationFailed, "milestone", ref, "proof %s was %s: %s", proof.Hash, proof.Status, proof.Reason)
	}
}

func (s *MilestoneService) approve(ctx context.Context, tx *gorm.DB, actor string, kind models.ScheduleOwnerKind, ownerID uuid.UUID, index int) (*MilestoneValidation, error) {
	schedule, milestone, err := s.loadMilestone(tx, kind, ownerID, index)
	if err != nil {
		return nil, err
	}
	ref := milestoneRef(schedule, index)
	if milestone.IsCompleted {
		return nil, newError(CodeAlreadyTerminal, "milestone", ref, "milestone already completed")
	}
	if milestone.EvidenceReference == "" {
		return nil, newError(CodeInvalidState, "milestone", ref, "no evidence submitted")
	}

	owner, err := s.owner(kind)
	if err != nil {
		return nil, err
	}
	snap, err := owner.ownerSnapshot(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if snap.Terminal {
		return nil, newError(CodeAlreadyTerminal, string(kind), ownerID.String(), "%s is %s", kind, snap.Status)
	}
	if !snap.Open {
		return nil, newError(CodeInvalidState, string(kind), ownerID.String(), "cannot disburse on a %s %s", snap.Status, kind)
	}

	// The last milestone to complete takes the remainder so the tranches
	// add up to the escrow exactly.
	amount := bpsOf(schedule.EscrowedAmount, milestone.PercentageShare)
	if schedule.CompletedMilestones == schedule.MilestoneCount-1 {
		amount = schedule.RemainingEscrow
	}
	if amount <= 0 {
		return nil, newError(CodeInvalidAmount, "milestone", ref, "milestone pays out nothing")
	}
	if amount > schedule.RemainingEscrow {
		return nil, newError(CodeInsufficientEscrow, "milestone", ref,
			"tranche %d exceeds remaining escrow %d", amount, schedule.RemainingEscrow)
	}

	now := s.seq.Now()
	milestone.IsCompleted = true
	milestone.CompletionTimestamp = &now
	milestone.ValidatorIdentity = actor
	milestone.DisbursedAmount = amount
	if err := tx.Save(milestone).Error; err != nil {
		return nil, fmt.Errorf("failed to complete milestone: %w", err)
	}

	schedule.RemainingEscrow -= amount
	schedule.CompletedMilestones++
	if schedule.CompletedMilestones == schedule.MilestoneCount {
		schedule.IsActive = false
	}
	if err := tx.Omit("Milestones").Save(schedule).Error; err != nil {
		return nil, fmt.Errorf("failed to update schedule: %w", err)
	}

	if err := owner.recordDisbursement(ctx, ownerID, amount, actor); err != nil {
		return nil, err
	}

	if err := s.notifications.Emit(ctx, EventMilestoneCompleted, string(kind), ownerID.String(), actor, map[string]interface{}{
		"schedule_id":      schedule.ID.String(),
		"index":            index,
		"amount":           amount,
		"remaining_escrow": schedule.RemainingEscrow,
		"proof_hash":       milestone.ProofHash,
	}); err != nil {
		return nil, err
	}

	// Funds move last so that a refusal rolls back everything above.
	if err := s.custodian.Transfer(ctx, amount, schedule.Recipient, "milestone:"+ref); err != nil {
		s.metrics.CustodyFailure()
		logrus.WithError(err).WithField("milestone", ref).Warn("Milestone transfer failed")
		return nil, wrapError(CodeTransferFailed, "milestone", ref, err, "custodian refused transfer of %d", amount)
	}

	afterCommit(ctx, func() {
		s.metrics.MilestoneCompleted()
		s.metrics.Disbursed(string(kind), amount)
	})
	logrus.WithFields(logrus.Fields{
		"owner_kind": kind,
		"owner_id":   ownerID,
		"index":      index,
		"amount":     amount,
		"validator":  actor,
	}).Info("Milestone completed")

	return &MilestoneValidation{Schedule: schedule, Milestone: milestone, Approved: true, Amount: amount}, nil
}

func (s *MilestoneService) reject(ctx context.Context, tx *gorm.DB, actor string, kind models.ScheduleOwnerKind, ownerID uuid.UUID, index int) (*MilestoneValidation, error) {
	schedule, milestone, err := s.loadMilestone(tx, kind, ownerID, index)
	if err != nil {
		return nil, err
	}
	ref := milestoneRef(schedule, index)
	if milestone.IsCompleted {
		return nil, newError(CodeAlreadyTerminal, "milestone", ref, "milestone already completed")
	}

	milestone.RejectionCount++
	if err := tx.Model(milestone).Update("rejection_count", milestone.RejectionCount).Error; err != nil {
		return nil, fmt.Errorf("failed to record rejection: %w", err)
	}

	if err := s.notifications.Emit(ctx, EventMilestoneRejected, string(kind), ownerID.String(), actor, map[string]interface{}{
		"schedule_id":     schedule.ID.String(),
		"index":           index,
		"rejection_count": milestone.RejectionCount,
	}); err != nil {
		return nil, err
	}
	return &MilestoneValidation{Schedule: schedule, Milestone: milestone}, nil
}

// GetSchedule returns the owner's schedule with its milestones in order.
func (s *MilestoneService) GetSchedule(ctx context.Context, kind models.ScheduleOwnerKind, ownerID uuid.UUID) (*models.DisbursementSchedule, error) {
	var schedule models.DisbursementSchedule
	err := database.Conn(ctx, s.db).
		Preload("Milestones", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("owner_kind = ? AND owner_id = ?", kind, ownerID).
		First(&schedule).Error
	if err != nil {
		return nil, notFoundOr(err, "schedule", ownerID.String())
	}
	return &schedule, nil
}

func (s *MilestoneService) loadMilestone(tx *gorm.DB, kind models.ScheduleOwnerKind, ownerID uuid.UUID, index int) (*models.DisbursementSchedule, *models.Milestone, error) {
	var schedule models.DisbursementSchedule
	if err := tx.Where("owner_kind = ? AND owner_id = ?", kind, ownerID).First(&schedule).Error; err != nil {
		return nil, nil, notFoundOr(err, "schedule", ownerID.String())
	}
	if index < 0 || index >= schedule.MilestoneCount {
		return nil, nil, newError(CodeNotFound, "milestone", milestoneRef(&schedule, index),
			"index %d outside [0,%d)", index, schedule.MilestoneCount)
	}

	var milestone models.Milestone
	if err := tx.Where("schedule_id = ? AND position = ?", schedule.ID, index).First(&milestone).Error; err != nil {
		return nil, nil, notFoundOr(err, "milestone", milestoneRef(&schedule, index))
	}
	return &schedule, &milestone, nil
}

func milestoneRef(schedule *models.DisbursementSchedule, index int) string {
	return fmt.Sprintf("%s:%d", schedule.ID, index)
}
