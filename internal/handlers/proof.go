// internal/handlers/proof.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/coopfund-backend/internal/i18n"
	"github.com/javajoker/coopfund-backend/internal/models"
	"github.com/javajoker/coopfund-backend/internal/services"
	"github.com/javajoker/coopfund-backend/internal/utils"
)

type ProofHandler struct {
	proofService *services.ProofService
}

type BatchVerifyRequest struct {
	Hashes      []string           `json:"hashes" validate:"required,min=1,max=100"`
	BackendType models.BackendType `json:"backend_type" validate:"required"`
}

func NewProofHandler(proofService *services.ProofService) *ProofHandler {
	return &ProofHandler{
		proofService: proofService,
	}
}

// POST /proofs
// proof_data and public_inputs are base64 encoded.
func (h *ProofHandler) SubmitProof(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req services.SubmitProofRequest
	if !bindJSON(c, &req) {
		return
	}

	proof, err := h.proofService.SubmitProof(c.Request.Context(), actor, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyProofSubmitted),
		"hash":    proof.Hash,
		"proof":   proof,
	})
}

// GET /proofs
func (h *ProofHandler) ListProofs(c *gin.Context) {
	filter := services.ProofFilter{
		PaginationParams: utils.GetPaginationParams(c),
		BackendType:      models.BackendType(c.Query("backend_type")),
	}

	proofs, total, err := h.proofService.ListProofs(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(proofs, total, filter.PaginationParams))
}

// GET /proofs/:hash
func (h *ProofHandler) GetProof(c *gin.Context) {
	proof, err := h.proofService.GetProof(c.Request.Context(), c.Param("hash"))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"proof": proof,
	})
}

// POST /proofs/:hash/verify
func (h *ProofHandler) VerifyProof(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}

	proof, err := h.proofService.VerifyProof(c.Request.Context(), actor, c.Param("hash"))
	if err != nil {
		// A rejected or expired proof is committed and returned with the error.
		if proof != nil {
			respondErrorWith(c, err, proof)
			return
		}
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyProofVerified),
		"proof":   proof,
	})
}

// POST /proofs/batch-verify
func (h *ProofHandler) BatchVerify(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req BatchVerifyRequest
	if !bindJSON(c, &req) {
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	results, err := h.proofService.BatchVerifyProofs(c.Request.Context(), actor, req.Hashes, req.BackendType)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"results": results,
	})
}
