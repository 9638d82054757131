// internal/handlers/pricing.go
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/coopfund-backend/internal/i18n"
	"github.com/javajoker/coopfund-backend/internal/services"
	"github.com/javajoker/coopfund-backend/internal/utils"
)

type PricingHandler struct {
	pricingService *services.PricingService
}

type CommodityPricingRequest struct {
	BasePrice  int64 `json:"base_price"`
	PremiumBps int64 `json:"premium_bps"`
}

type BatchPricingRequest struct {
	Active bool `json:"active"`
}

func NewPricingHandler(pricingService *services.PricingService) *PricingHandler {
	return &PricingHandler{
		pricingService: pricingService,
	}
}

// PUT /pricing/commodity
func (h *PricingHandler) UpdateCommodityPricing(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req CommodityPricingRequest
	if !bindJSON(c, &req) {
		return
	}

	quote, err := h.pricingService.UpdateCommodityPricing(c.Request.Context(), actor, req.BasePrice, req.PremiumBps)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyPricingUpdated),
		"quote":   quote,
	})
}

// GET /pricing/commodity
func (h *PricingHandler) GetCommodityPricing(c *gin.Context) {
	quote, err := h.pricingService.CurrentQuote(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"quote": quote,
	})
}

// PUT /pricing/batches/:id
func (h *PricingHandler) SetBatchPricing(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req BatchPricingRequest
	if !bindJSON(c, &req) {
		return
	}

	pricing, err := h.pricingService.SetBatchPricing(c.Request.Context(), actor, c.Param("id"), req.Active)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":       i18n.T(utils.GetLangFromContext(c), i18n.KeyPricingUpdated),
		"batch_pricing": pricing,
	})
}

// GET /pricing/batches/:id/fair-min-price?market_price=
func (h *PricingHandler) GetFairMinPrice(c *gin.Context) {
	batchID := c.Param("id")

	marketPrice, err := strconv.ParseInt(c.DefaultQuery("market_price", "0"), 10, 64)
	if err != nil {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "market_price"), nil)
		return
	}

	price, err := h.pricingService.CalculateFairMinPrice(c.Request.Context(), batchID, marketPrice)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"batch_id":       batchID,
		"market_price":   marketPrice,
		"fair_min_price": price,
	})
}
