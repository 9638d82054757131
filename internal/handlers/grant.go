// internal/handlers/grant.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/coopfund-backend/internal/i18n"
	"github.com/javajoker/coopfund-backend/internal/services"
	"github.com/javajoker/coopfund-backend/internal/utils"
)

type GrantHandler struct {
	grantService   *services.GrantService
	pricingService *services.PricingService
}

// RevenueRequest is the body of POST /grants/:id/revenue. When BatchID is
// set the declared revenue is checked against the batch's fair minimum price
// first.
type RevenueRequest struct {
	RevenueAmount int64  `json:"revenue_amount"`
	BatchID       string `json:"batch_id,omitempty"`
	Units         int64  `json:"units,omitempty"`
	MarketPrice   int64  `json:"market_price,omitempty"`
}

func NewGrantHandler(grantService *services.GrantService, pricingService *services.PricingService) *GrantHandler {
	return &GrantHandler{
		grantService:   grantService,
		pricingService: pricingService,
	}
}

// POST /grants
func (h *GrantHandler) CreateGrant(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req services.CreateGrantRequest
	if !bindJSON(c, &req) {
		return
	}

	grant, err := h.grantService.CreateGrant(c.Request.Context(), actor, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyGrantCreated),
		"grant":   grant,
	})
}

// POST /grants/greenfield
func (h *GrantHandler) CreateGreenfieldGrant(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req services.CreateGreenfieldGrantRequest
	if !bindJSON(c, &req) {
		return
	}

	grant, err := h.grantService.CreateGreenfieldGrant(c.Request.Context(), actor, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyGrantCreated),
		"grant":   grant,
	})
}

// GET /grants
func (h *GrantHandler) ListGrants(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	grants, total, err := h.grantService.ListGrants(c.Request.Context(), params)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(grants, total, params))
}

// GET /grants/:id
func (h *GrantHandler) GetGrant(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	grant, err := h.grantService.GetGrant(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"grant": grant,
	})
}

// POST /grants/:id/revenue
func (h *GrantHandler) RecordRevenue(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req RevenueRequest
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	var check *services.RevenueCheck
	if req.BatchID != "" {
		grant, err := h.grantService.GetGrant(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		if !containsBatch(grant.BatchIDs, req.BatchID) {
			respondError(c, services.ErrInvalidBatch)
			return
		}

		check, err = h.pricingService.ValidateDeclaredRevenue(ctx, req.BatchID, req.Units, req.RevenueAmount, req.MarketPrice)
		if err != nil {
			respondErrorWith(c, err, check)
			return
		}
	}

	result, err := h.grantService.RecordRevenueShare(ctx, actor, id, req.RevenueAmount)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":       i18n.T(utils.GetLangFromContext(c), i18n.KeyGrantRevenueShared),
		"result":        result,
		"revenue_check": check,
	})
}

// POST /grants/:id/complete
func (h *GrantHandler) CompleteGrant(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	grant, err := h.grantService.CompleteGrant(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyGrantCompleted),
		"grant":   grant,
	})
}

// POST /grants/:id/maturity
func (h *GrantHandler) CheckMaturity(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	grant, err := h.grantService.CheckMaturity(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyGrantMaturityChecked),
		"grant":   grant,
	})
}

func containsBatch(batchIDs []string, batchID string) bool {
	for _, id := range batchIDs {
		if id == batchID {
			return true
		}
	}
	return false
}
