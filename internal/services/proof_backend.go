// internal/services/proof_backend.go
package services

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"

	"github.com/javajoker/coopfund-backend/internal/config"
	"github.com/javajoker/coopfund-backend/internal/models"
	"github.com/javajoker/coopfund-backend/internal/utils"
)

// VerificationResult is what a backend reports for one proof.
type VerificationResult struct {
	Valid  bool
	Reason string
}

// ProofVerifier checks one proof against one registered circuit. It holds no
// state between calls.
type ProofVerifier interface {
	Verify(circuit *models.CircuitDescriptor, proof *models.Proof) (*VerificationResult, error)
	ValidateVerifyingKey(key []byte) error
}

// ProofBackend pairs a verifier with its own limits.
type ProofBackend struct {
	Type     models.BackendType
	Limits   config.BackendConfig
	Verifier ProofVerifier
}

func NewProofBackends(cfg config.ProofsConfig) map[models.BackendType]*ProofBackend {
	return map[models.BackendType]*ProofBackend{
		models.BackendHeavyCompute: {
			Type:     models.BackendHeavyCompute,
			Limits:   cfg.HeavyCompute,
			Verifier: Groth16Verifier{},
		},
		models.BackendLightVerify: {
			Type:     models.BackendLightVerify,
			Limits:   cfg.LightVerify,
			Verifier: AttestationVerifier{},
		},
	}
}

// EstimateCost is the gas-equivalent charge for verifying p.
func (b *ProofBackend) EstimateCost(p *models.Proof) int64 {
	size := int64(len(p.ProofData) + len(p.PublicInputs))
	return b.Limits.BaseCost + b.Limits.PerByteCost*size
}

// Groth16Verifier checks BN254 Groth16 proofs produced with gnark. The
// circuit's verifying key and the proof use gnark's binary encoding; the
// public inputs are a marshalled public witness.
type Groth16Verifier struct{}

func (Groth16Verifier) ValidateVerifyingKey(key []byte) error {
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(bytes.NewReader(key)); err != nil {
		return fmt.Errorf("failed to deserialize verifying key: %w", err)
	}
	return nil
}

func (Groth16Verifier) Verify(circuit *models.CircuitDescriptor, p *models.Proof) (*VerificationResult, error) {
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(bytes.NewReader(circuit.VerifyingKey)); err != nil {
		return nil, fmt.Errorf("failed to deserialize verifying key: %w", err)
	}

	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(p.ProofData)); err != nil {
		return &VerificationResult{Reason: "malformed proof: " + err.Error()}, nil
	}

	publicWitness, err := witness.New(ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("failed to allocate witness: %w", err)
	}
	if err := publicWitness.UnmarshalBinary(p.PublicInputs); err != nil {
		return &VerificationResult{Reason: "malformed public inputs: " + err.Error()}, nil
	}

	if err := groth16.Verify(proof, vk, publicWitness); err != nil {
		return &VerificationResult{Reason: "pairing check failed: " + err.Error()}, nil
	}
	return &VerificationResult{Valid: true, Reason: "groth16 proof verified"}, nil
}

// AttestationVerifier checks Ed25519 attestations. The circuit's verifying
// key is the attester's public key and the proof is a signature over
// AttestationMessage.
type AttestationVerifier struct{}

var errBadAttesterKey = errors.New("attester key must be a 32 byte ed25519 public key")

func (AttestationVerifier) ValidateVerifyingKey(key []byte) error {
	if len(key) != ed25519.PublicKeySize {
		return errBadAttesterKey
	}
	return nil
}

func (AttestationVerifier) Verify(circuit *models.CircuitDescriptor, p *models.Proof) (*VerificationResult, error) {
	if len(circuit.VerifyingKey) != ed25519.PublicKeySize {
		return nil, errBadAttesterKey
	}
	if len(p.ProofData) != ed25519.SignatureSize {
		return &VerificationResult{Reason: fmt.Sprintf("signature must be %d bytes", ed25519.SignatureSize)}, nil
	}

	msg := AttestationMessage(circuit.Name, circuit.Version, p.PublicInputs)
	if !ed25519.Verify(ed25519.PublicKey(circuit.VerifyingKey), msg, p.ProofData) {
		return &VerificationResult{Reason: "attestation signature does not match"}, nil
	}
	return &VerificationResult{Valid: true, Reason: "attestation verified"}, nil
}

// AttestationMessage binds an attestation to a circuit version and its
// public inputs.
func AttestationMessage(circuitName, circuitVersion string, publicInputs []byte) []byte {
	return []byte(utils.HashParts([]byte("coopfund-attestation"), []byte(circuitName), []byte(circuitVersion), publicInputs))
}
