// internal/services/proof_service.go
package services

import (
	"context"
	"errors"
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

// ProofService is the dispatcher: it routes every proof to the backend named
// by its type tag and owns the proof and circuit tables.
type ProofService struct {
	db            *gorm.DB
	seq           *Sequencer
	identities    IdentityRegistry
	pauses        *PauseService
	notifications *NotificationService
	metrics       *metrics.Metrics
	backends      map[models.BackendType]*ProofBackend
}

type SubmitProofRequest struct {
	BackendType      models.BackendType `json:"backend_type" validate:"required"`
	CircuitName      string             `json:"circuit_name" validate:"required,max=100"`
	CircuitVersion   string             `json:"circuit_version" validate:"required,max=20"`
	ProofData        []byte             `json:"proof_data" validate:"required"`
	PublicInputs     []byte             `json:"public_inputs"`
	PublicInputsHash string             `json:"public_inputs_hash" validate:"required,len=64,hexadecimal"`
	Complexity       int64              `json:"complexity" validate:"gte=0"`
	Metadata         models.JSONB       `json:"metadata"`
}

type RegisterCircuitRequest struct {
	BackendType        models.BackendType `json:"backend_type" validate:"required"`
	Name               string             `json:"name" validate:"required,max=100"`
	Version            string             `json:"version" validate:"required,max=20"`
	MaxProofSize       int                `json:"max_proof_size" validate:"gt=0"`
	MaxPublicInputSize int                `json:"max_public_input_size" validate:"gt=0"`
	MaxConstraints     int64              `json:"max_constraints" validate:"gte=0"`
	CostCeiling        int64              `json:"cost_ceiling" validate:"gt=0"`
	VerifyingKey       []byte             `json:"verifying_key" validate:"required"`
	Description        string             `json:"description" validate:"max=2000"`
}

// BatchItemResult reports one entry of a batch verification. ErrorCode is
// empty when the item reached a terminal status without error.
type BatchItemResult struct {
	Hash      string             `json:"hash"`
	Status    models.ProofStatus `json:"status,omitempty"`
	Cost      int64              `json:"cost"`
	Reason    string             `json:"reason,omitempty"`
	ErrorCode ErrorCode          `json:"error_code,omitempty"`
}

// ProofFilter narrows ListProofs. PaginationParams.Owner filters by submitter.
type ProofFilter struct {
	utils.PaginationParams
	BackendType models.BackendType `json:"backend_type,omitempty"`
}

const codeInternal ErrorCode = "INTERNAL"

func NewProofService(
	db *gorm.DB,
	cfg *config.Config,
	seq *Sequencer,
	identities IdentityRegistry,
	pauses *PauseService,
	notifications *NotificationService,
	m *metrics.Metrics,
) *ProofService {
	return &ProofService{
		db:            db,
		seq:           seq,
		identities:    identities,
		pauses:        pauses,
		notifications: notifications,
		metrics:       m,
		backends:      NewProofBackends(cfg.Proofs),
	}
}

// Backend returns the backend registered for t, or nil.
func (s *ProofService) Backend(t models.BackendType) *ProofBackend {
	return s.backends[t]
}

// SubmitProof stores a pending proof and returns it. The proof hash covers
// everything the submitter supplied plus the submission time.
func (s *ProofService) SubmitProof(ctx context.Context, actor string, req *SubmitProofRequest) (*models.Proof, error) {
	if err := authorize(ctx, s.identities, actor, models.CapabilityProofSubmission); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var proof *models.Proof
	err := s.seq.Atomic(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := s.pauses.ensureRunning(ctx, ComponentProofs); err != nil {
			return err
		}
		if s.backends[req.BackendType] == nil {
			return newError(CodeUnsupportedCircuit, "proof", "", "unknown backend %q", req.BackendType)
		}
		if utils.HashBytes(req.PublicInputs) != req.PublicInputsHash {
			return newError(CodeVerificationFailed, "proof", "", "public input integrity hash mismatch")
		}

		now := s.seq.Now()
		hash := utils.HashParts(
			[]byte(req.BackendType),
			[]byte(req.CircuitName),
			[]byte(req.CircuitVersion),
			req.ProofData,
			req.PublicInputs,
			[]byte(actor),
			[]byte(now.Format(time.RFC3339Nano)),
		)

		var count int64
		if err := tx.Model(&models.Proof{}).Where("hash = ?", hash).Count(&count).Error; err != nil {
			return fmt.Errorf("database error: %w", err)
		}
		if count > 0 {
			return newError(CodeAlreadyExists, "proof", hash, "proof already submitted")
		}

		proof = &models.Proof{
			Hash:             hash,
			BackendType:      req.BackendType,
			CircuitName:      req.CircuitName,
			CircuitVersion:   req.CircuitVersion,
			ProofData:        req.ProofData,
			PublicInputs:     req.PublicInputs,
			PublicInputsHash: req.PublicInputsHash,
			Complexity:       req.Complexity,
			Metadata:         req.Metadata,
			Submitter:        actor,
			SubmittedAt:      now,
			Status:           models.ProofStatusPending,
		}
		if err := tx.Create(proof).Error; err != nil {
			return fmt.Errorf("failed to store proof: %w", err)
		}

		return s.notifications.Emit(ctx, EventProofSubmitted, "proof", hash, actor, map[string]interface{}{
			"backend_type":    string(req.BackendType),
			"circuit_name":    req.CircuitName,
			"circuit_version": req.CircuitVersion,
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ProofSubmitted(string(proof.BackendType))
	return proof, nil
}

// VerifyProof moves a pending proof to a terminal status. Rejected and expired
// outcomes are committed and also reported as an error; the returned proof
// is set in both cases.
func (s *ProofService) VerifyProof(ctx context.Context, actor, hash string) (*models.Proof, error) {
	if err := authorize(ctx, s.identities, actor, models.CapabilityProofVerification); err != nil {
		return nil, err
	}

	var (
		proof   *models.Proof
		outcome *Error
	)
	err := s.seq.Atomic(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := s.pauses.ensureRunning(ctx, ComponentProofs); err != nil {
			return err
		}
		var err error
		proof, outcome, err = s.verifyProof(ctx, tx, actor, hash)
		return err
	})
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		return proof, outcome
	}
	return proof, nil
}

// verifyProof runs the verification pipeline for one proof. err aborts the
// surrounding transaction and leaves the proof untouched; outcome is a
// terminal rejection that has already been written through tx.
func (s *ProofService) verifyProof(ctx context.Context, tx *gorm.DB, actor, hash string) (*models.Proof, *Error, error) {
	var proof models.Proof
	if err := tx.Where("hash = ?", hash).First(&proof).Error; err != nil {
		return nil, nil, notFoundOr(err, "proof", hash)
	}
	if proof.Status.IsTerminal() {
		return nil, nil, newError(CodeAlreadyTerminal, "proof", hash, "proof is already %s", proof.Status)
	}

	backend := s.backends[proof.BackendType]
	if backend == nil {
		return nil, nil, newError(CodeUnsupportedCircuit, "proof", hash, "unknown backend %q", proof.BackendType)
	}

	now := s.seq.Now()
	window, err := s.expiryWindow(tx, backend)
	if err != nil {
		return nil, nil, err
	}
	if elapsed := now.Sub(proof.SubmittedAt); elapsed > window {
		outcome := newError(CodeProofExpired, "proof", hash, "submitted %s ago, window is %s", elapsed.Round(time.Second), window)
		return s.finalize(ctx, tx, &proof, models.ProofStatusExpired, 0, outcome.Message, actor, now, 0, outcome)
	}

	if len(proof.ProofData) > backend.Limits.MaxProofSize || len(proof.PublicInputs) > backend.Limits.MaxPublicInputSize {
		outcome := newError(CodePayloadTooLarge, "proof", hash, "payload exceeds %s limits", backend.Type)
		return s.finalize(ctx, tx, &proof, models.ProofStatusRejected, 0, outcome.Message, actor, now, 0, outcome)
	}

	circuit, err := s.activeCircuit(tx, &proof)
	if err != nil {
		return nil, nil, err
	}

	if len(proof.ProofData) > circuit.MaxProofSize || len(proof.PublicInputs) > circuit.MaxPublicInputSize {
		outcome := newError(CodePayloadTooLarge, "proof", hash, "payload exceeds circuit %s@%s limits", circuit.Name, circuit.Version)
		return s.finalize(ctx, tx, &proof, models.ProofStatusRejected, 0, outcome.Message, actor, now, 0, outcome)
	}

	cost := backend.EstimateCost(&proof)
	if cost > circuit.CostCeiling {
		outcome := newError(CodeVerificationFailed, "proof", hash, "estimated cost %d exceeds ceiling %d", cost, circuit.CostCeiling)
		return s.finalize(ctx, tx, &proof, models.ProofStatusRejected, cost, outcome.Message, actor, now, 0, outcome)
	}

	started := time.Now()
	result, err := backend.Verifier.Verify(circuit, &proof)
	elapsed := time.Since(started)
	if err != nil {
		logrus.WithError(err).WithField("proof_hash", hash).Warn("Backend verification error")
		result = &VerificationResult{Reason: "backend error: " + err.Error()}
	}

	if !result.Valid {
		outcome := newError(CodeVerificationFailed, "proof", hash, "%s", result.Reason)
		return s.finalize(ctx, tx, &proof, models.ProofStatusRejected, cost, result.Reason, actor, now, elapsed, outcome)
	}
	return s.finalize(ctx, tx, &proof, models.ProofStatusVerified, cost, result.Reason, actor, now, elapsed, nil)
}

func (s *ProofService) finalize(
	ctx context.Context,
	tx *gorm.DB,
	proof *models.Proof,
	status models.ProofStatus,
	cost int64,
	reason, actor string,
	at time.Time,
	elapsed time.Duration,
	outcome *Error,
) (*models.Proof, *Error, error) {
	if !proof.Status.CanTransition(status) {
		return nil, nil, newError(CodeInvalidState, "proof", proof.Hash, "cannot move %s proof to %s", proof.Status, status)
	}

	proof.Status = status
	proof.Cost = cost
	proof.Reason = reason
	proof.VerifiedAt = &at
	proof.VerifiedBy = actor
	if err := tx.Save(proof).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to update proof: %w", err)
	}

	if err := s.notifications.Emit(ctx, EventProofVerified, "proof", proof.Hash, actor, map[string]interface{}{
		"backend_type": string(proof.BackendType),
		"status":       string(status),
		"cost":         cost,
		"reason":       reason,
	}); err != nil {
		return nil, nil, err
	}

	s.metrics.ObserveVerification(string(proof.BackendType), string(status), elapsed)
	logrus.WithFields(logrus.Fields{
		"proof_hash": proof.Hash,
		"backend":    proof.BackendType,
		"status":     status,
		"cost":       cost,
	}).Info("Proof verification finished")
	return proof, outcome, nil
}

func (s *ProofService) activeCircuit(tx *gorm.DB, proof *models.Proof) (*models.CircuitDescriptor, error) {
	var circuit models.CircuitDescriptor
	err := tx.Where("backend_type = ? AND name = ? AND version = ?", proof.BackendType, proof.CircuitName, proof.CircuitVersion).
		First(&circuit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(CodeUnsupportedCircuit, "proof", proof.Hash,
			"circuit %s@%s is not registered on %s", proof.CircuitName, proof.CircuitVersion, proof.BackendType)
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if !circuit.IsActive {
		return nil, newError(CodeUnsupportedCircuit, "proof", proof.Hash,
			"circuit %s@%s is deactivated", circuit.Name, circuit.Version)
	}
	if circuit.MaxConstraints > 0 && proof.Complexity > circuit.MaxConstraints {
		return nil, newError(CodeUnsupportedCircuit, "proof", proof.Hash,
			"complexity %d exceeds circuit envelope %d", proof.Complexity, circuit.MaxConstraints)
	}
	return &circuit, nil
}

// BatchVerifyProofs verifies each hash in its own transaction. A failing or
// panicking item is reported and does not affect the others.
func (s *ProofService) BatchVerifyProofs(ctx context.Context, actor string, hashes []string, backendType models.BackendType) ([]BatchItemResult, error) {
	if err := authorize(ctx, s.identities, actor, models.CapabilityProofVerification); err != nil {
		return nil, err
	}
	if s.backends[backendType] == nil {
		return nil, newError(CodeUnsupportedCircuit, "backend", string(backendType), "unknown backend")
	}

	results := make([]BatchItemResult, 0, len(hashes))
	err := s.seq.Do(func() error {
		if err := s.pauses.ensureRunning(ctx, ComponentProofs); err != nil {
			return err
		}
		for _, hash := range hashes {
			results = append(results, s.verifyItem(ctx, actor, hash, backendType))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *ProofService) verifyItem(ctx context.Context, actor, hash string, backendType models.BackendType) (res BatchItemResult) {
	res.Hash = hash
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("proof_hash", hash).Errorf("Batch verification item panicked: %v", r)
			res = BatchItemResult{Hash: hash, ErrorCode: codeInternal, Reason: fmt.Sprint(r)}
		}
	}()

	var (
		proof   *models.Proof
		outcome *Error
	)
	err := s.seq.inTx(ctx, func(ctx context.Context, tx *gorm.DB) error {
		var declared models.Proof
		if err := tx.Select("hash", "backend_type").Where("hash = ?", hash).First(&declared).Error; err != nil {
			return notFoundOr(err, "proof", hash)
		}
		if declared.BackendType != backendType {
			return newError(CodeUnsupportedCircuit, "proof", hash, "proof targets %s, batch targets %s", declared.BackendType, backendType)
		}
		var err error
		proof, outcome, err = s.verifyProof(ctx, tx, actor, hash)
		return err
	})
	if err != nil {
		res.ErrorCode = CodeOf(err)
		if res.ErrorCode == "" {
			res.ErrorCode = codeInternal
		}
		res.Reason = err.Error()
		return res
	}

	res.Status = proof.Status
	res.Cost = proof.Cost
	res.Reason = proof.Reason
	if outcome != nil {
		res.ErrorCode = outcome.Code
	}
	return res
}

func (s *ProofService) RegisterCircuit(ctx context.Context, actor string, req *RegisterCircuitRequest) (*models.CircuitDescriptor, error) {
	if err := authorize(ctx, s.identities, actor, models.CapabilitySystemAdmin); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var circuit *models.CircuitDescriptor
	err := s.seq.Atomic(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := s.pauses.ensureRunning(ctx, ComponentProofs); err != nil {
			return err
		}
		backend := s.backends[req.BackendType]
		if backend == nil {
			return newError(CodeUnsupportedCircuit, "circuit", req.Name, "unknown backend %q", req.BackendType)
		}
		if req.MaxProofSize > backend.Limits.MaxProofSize || req.MaxPublicInputSize > backend.Limits.MaxPublicInputSize {
			return newError(CodePayloadTooLarge, "circuit", req.Name, "circuit limits exceed %s limits", backend.Type)
		}
		if err := backend.Verifier.ValidateVerifyingKey(req.VerifyingKey); err != nil {
			return wrapError(CodeUnsupportedCircuit, "circuit", req.Name, err, "verifying key rejected")
		}

		var count int64
		if err := tx.Unscoped().Model(&models.CircuitDescriptor{}).
			Where("backend_type = ? AND name = ? AND version = ?", req.BackendType, req.Name, req.Version).
			Count(&count).Error; err != nil {
			return fmt.Errorf("database error: %w", err)
		}
		if count > 0 {
			return newError(CodeAlreadyExists, "circuit", req.Name+"@"+req.Version, "circuit already registered, reactivate it instead")
		}

		circuit = &models.CircuitDescriptor{
			BackendType:        req.BackendType,
			Name:               req.Name,
			Version:            req.Version,
			IsActive:           true,
			MaxProofSize:       req.MaxProofSize,
			MaxPublicInputSize: req.MaxPublicInputSize,
			MaxConstraints:     req.MaxConstraints,
			CostCeiling:        req.CostCeiling,
			VerifyingKey:       req.VerifyingKey,
			Description:        req.Description,
			RegisteredBy:       actor,
		}
		if err := tx.Create(circuit).Error; err != nil {
			return fmt.Errorf("failed to register circuit: %w", err)
		}

		return s.notifications.Emit(ctx, EventCircuitRegistered, "circuit", circuit.ID.String(), actor, map[string]interface{}{
			"backend_type": string(req.BackendType),
			"name":         req.Name,
			"version":      req.Version,
		})
	})
	if err != nil {
		return nil, err
	}
	return circuit, nil
}

// DeactivateCircuit stops a circuit from accepting verifications. Pending
// proofs against it fail with UnsupportedOrInactiveCircuit from then on.
func (s *ProofService) DeactivateCircuit(ctx context.Context, actor string, circuitID uuid.UUID) (*models.CircuitDescriptor, error) {
	if err := authorize(ctx, s.identities, actor, models.CapabilitySystemAdmin); err != nil {
		return nil, err
	}

	var circuit models.CircuitDescriptor
	err := s.seq.Atomic(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := s.pauses.ensureRunning(ctx, ComponentProofs); err != nil {
			return err
		}
		if err := tx.First(&circuit, "id = ?", circuitID).Error; err != nil {
			return notFoundOr(err, "circuit", circuitID.String())
		}
		if !circuit.IsActive {
			return newError(CodeAlreadyTerminal, "circuit", circuitID.String(), "circuit is already inactive")
		}

		now := s.seq.Now()
		circuit.IsActive = false
		circuit.DeactivatedAt = &now
		if err := tx.Save(&circuit).Error; err != nil {
			return fmt.Errorf("failed to deactivate circuit: %w", err)
		}

		return s.notifications.Emit(ctx, EventCircuitDeactivated, "circuit", circuit.ID.String(), actor, map[string]interface{}{
			"backend_type": string(circuit.BackendType),
			"name":         circuit.Name,
			"version":      circuit.Version,
		})
	})
	if err != nil {
		return nil, err
	}
	return &circuit, nil
}

// ReactivateCircuit lets a deactivated circuit verify proofs again. Proofs
// left pending while it was inactive can then be verified.
func (s *ProofService) ReactivateCircuit(ctx context.Context, actor string, circuitID uuid.UUID) (*models.CircuitDescriptor, error) {
	if err := authorize(ctx, s.identities, actor, models.CapabilitySystemAdmin); err != nil {
		return nil, err
	}

	var circuit models.CircuitDescriptor
	err := s.seq.Atomic(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := s.pauses.ensureRunning(ctx, ComponentProofs); err != nil {
			return err
		}
		if err := tx.First(&circuit, "id = ?", circuitID).Error; err != nil {
			return notFoundOr(err, "circuit", circuitID.String())
		}
		if circuit.IsActive {
			return newError(CodeInvalidState, "circuit", circuitID.String(), "circuit is already active")
		}

		circuit.IsActive = true
		circuit.DeactivatedAt = nil
		if err := tx.Save(&circuit).Error; err != nil {
			return fmt.Errorf("failed to reactivate circuit: %w", err)
		}

		return s.notifications.Emit(ctx, EventCircuitReactivated, "circuit", circuit.ID.String(), actor, map[string]interface{}{
			"backend_type": string(circuit.BackendType),
			"name":         circuit.Name,
			"version":      circuit.Version,
		})
	})
	if err != nil {
		return nil, err
	}
	return &circuit, nil
}

// SetExpiryWindow overrides the configured expiry window of one backend.
func (s *ProofService) SetExpiryWindow(ctx context.Context, actor string, backendType models.BackendType, window time.Duration) error {
	if err := authorize(ctx, s.identities, actor, models.CapabilitySystemAdmin); err != nil {
		return err
	}

	return s.seq.Atomic(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := s.pauses.ensureRunning(ctx, ComponentProofs); err != nil {
			return err
		}
		if s.backends[backendType] == nil {
			return newError(CodeUnsupportedCircuit, "backend", string(backendType), "unknown backend")
		}
		if window < time.Second {
			return newError(CodeInvalidAmount, "backend", string(backendType), "expiry window must be at least one second")
		}

		seconds := int64(window / time.Second)
		if err := saveSetting(tx, settingsCategoryProofExpiry, string(backendType), seconds, "int", actor); err != nil {
			return err
		}
		return s.notifications.Emit(ctx, EventExpiryWindowChanged, "backend", string(backendType), actor, map[string]interface{}{
			"window_seconds": seconds,
		})
	})
}

// ExpiryWindow returns the effective expiry window of a backend.
func (s *ProofService) ExpiryWindow(ctx context.Context, backendType models.BackendType) (time.Duration, error) {
	backend := s.backends[backendType]
	if backend == nil {
		return 0, newError(CodeUnsupportedCircuit, "backend", string(backendType), "unknown backend")
	}
	return s.expiryWindow(database.Conn(ctx, s.db), backend)
}

func (s *ProofService) expiryWindow(tx *gorm.DB, backend *ProofBackend) (time.Duration, error) {
	setting, err := loadSetting(tx, settingsCategoryProofExpiry, string(backend.Type))
	if err != nil {
		return 0, err
	}
	if seconds, ok := settingInt64(setting); ok && seconds > 0 {
		return time.Duration(seconds) * time.Second, nil
	}
	return backend.Limits.ExpiryWindow, nil
}

func (s *ProofService) GetProof(ctx context.Context, hash string) (*models.Proof, error) {
	var proof models.Proof
	if err := database.Conn(ctx, s.db).Where("hash = ?", hash).First(&proof).Error; err != nil {
		return nil, notFoundOr(err, "proof", hash)
	}
	return &proof, nil
}

func (s *ProofService) ListProofs(ctx context.Context, filter ProofFilter) ([]models.Proof, int64, error) {
	var proofs []models.Proof
	var total int64

	query := utils.ApplyFilters(database.Conn(ctx, s.db).Model(&models.Proof{}), filter.PaginationParams, "submitter")
	if filter.BackendType != "" {
		query = query.Where("backend_type = ?", filter.BackendType)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count proofs: %w", err)
	}

	query = utils.ApplySort(query, filter.PaginationParams, []string{"submitted_at", "status", "cost"})
	if err := utils.ApplyPagination(query, filter.PaginationParams).Find(&proofs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list proofs: %w", err)
	}
	return proofs, total, nil
}

// ListCircuits lists circuits of one backend, or of all backends when
// backendType is empty.
func (s *ProofService) ListCircuits(ctx context.Context, backendType models.BackendType, activeOnly bool) ([]models.CircuitDescriptor, error) {
	query := database.Conn(ctx, s.db).Order("backend_type").Order("name").Order("version")
	if backendType != "" {
		query = query.Where("backend_type = ?", backendType)
	}
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var circuits []models.CircuitDescriptor
	if err := query.Find(&circuits).Error; err != nil {
		return nil, fmt.Errorf("failed to list circuits: %w", err)
	}
	return circuits, nil
}
