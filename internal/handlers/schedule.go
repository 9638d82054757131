// internal/handlers/schedule.go
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/coopfund-backend/internal/i18n"
	"github.com/javajoker/coopfund-backend/internal/models"
	"github.com/javajoker/coopfund-backend/internal/services"
	"github.com/javajoker/coopfund-backend/internal/utils"
)

type ScheduleHandler struct {
	milestoneService *services.MilestoneService
	storageService   *services.StorageService
}

type EvidenceRequest struct {
	EvidenceRef string `json:"evidence_ref"`
	ProofHash   string `json:"proof_hash,omitempty"`
}

type ValidateRequest struct {
	Approved bool `json:"approved"`
}

func NewScheduleHandler(milestoneService *services.MilestoneService, storageService *services.StorageService) *ScheduleHandler {
	return &ScheduleHandler{
		milestoneService: milestoneService,
		storageService:   storageService,
	}
}

func milestoneIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "index"), nil)
		return 0, false
	}
	return index, true
}

// POST /{grants,loans}/:id/schedule
func (h *ScheduleHandler) CreateSchedule(kind models.ScheduleOwnerKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentIdentity(c)
		if !ok {
			return
		}
		ownerID, ok := parseIDParam(c, "id")
		if !ok {
			return
		}

		var req services.CreateScheduleRequest
		if !bindJSON(c, &req) {
			return
		}

		schedule, err := h.milestoneService.CreateDisbursementSchedule(c.Request.Context(), actor, kind, ownerID, &req)
		if err != nil {
			respondError(c, err)
			return
		}

		utils.CreatedResponse(c, gin.H{
			"message":  i18n.T(utils.GetLangFromContext(c), i18n.KeyScheduleCreated),
			"schedule": schedule,
		})
	}
}

// GET /{grants,loans}/:id/schedule
func (h *ScheduleHandler) GetSchedule(kind models.ScheduleOwnerKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, ok := parseIDParam(c, "id")
		if !ok {
			return
		}

		schedule, err := h.milestoneService.GetSchedule(c.Request.Context(), kind, ownerID)
		if err != nil {
			respondError(c, err)
			return
		}

		utils.SuccessResponse(c, gin.H{
			"schedule": schedule,
		})
	}
}

// POST /{grants,loans}/:id/milestones/:index/evidence
func (h *ScheduleHandler) SubmitEvidence(kind models.ScheduleOwnerKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentIdentity(c)
		if !ok {
			return
		}
		ownerID, ok := parseIDParam(c, "id")
		if !ok {
			return
		}
		index, ok := milestoneIndex(c)
		if !ok {
			return
		}

		var req EvidenceRequest
		if !bindJSON(c, &req) {
			return
		}

		milestone, err := h.milestoneService.SubmitMilestoneEvidence(c.Request.Context(), actor, kind, ownerID, index, req.EvidenceRef, req.ProofHash)
		if err != nil {
			respondError(c, err)
			return
		}

		utils.SuccessResponse(c, gin.H{
			"message":   i18n.T(utils.GetLangFromContext(c), i18n.KeyEvidenceSubmitted),
			"milestone": milestone,
		})
	}
}

// POST /{grants,loans}/:id/milestones/:index/validate
func (h *ScheduleHandler) ValidateMilestone(kind models.ScheduleOwnerKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentIdentity(c)
		if !ok {
			return
		}
		ownerID, ok := parseIDParam(c, "id")
		if !ok {
			return
		}
		index, ok := milestoneIndex(c)
		if !ok {
			return
		}

		var req ValidateRequest
		if !bindJSON(c, &req) {
			return
		}

		result, err := h.milestoneService.ValidateMilestone(c.Request.Context(), actor, kind, ownerID, index, req.Approved)
		if err != nil {
			respondError(c, err)
			return
		}

		key := i18n.KeyMilestoneRejected
		if result.Approved {
			key = i18n.KeyMilestoneCompleted
		}
		utils.SuccessResponse(c, gin.H{
			"message": i18n.T(utils.GetLangFromContext(c), key),
			"result":  result,
		})
	}
}

// POST /evidence/upload
// Multipart form: file, owner_kind (grant|loan), owner_id and an optional
// blake2b checksum of the file.
func (h *ScheduleHandler) UploadEvidence(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	lang := utils.GetLangFromContext(c)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationRequired, "file"), nil)
		return
	}
	defer file.Close()

	kind := models.ScheduleOwnerKind(c.PostForm("owner_kind"))
	if kind != models.ScheduleOwnerGrant && kind != models.ScheduleOwnerLoan {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "owner_kind"), nil)
		return
	}
	ownerID := c.PostForm("owner_id")
	if ownerID == "" {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationRequired, "owner_id"), nil)
		return
	}

	upload, err := h.storageService.UploadEvidence(c.Request.Context(), actor, kind, ownerID,
		header.Filename, header.Header.Get("Content-Type"), c.PostForm("blake2b"), file)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":  i18n.T(lang, i18n.KeyFileUploadSuccess),
		"evidence": upload,
	})
}
