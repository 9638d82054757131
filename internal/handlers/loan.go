// internal/handlers/loan.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/coopfund-backend/internal/i18n"
	"github.com/javajoker/coopfund-backend/internal/services"
	"github.com/javajoker/coopfund-backend/internal/utils"
)

type LoanHandler struct {
	loanService *services.LoanService
}

func NewLoanHandler(loanService *services.LoanService) *LoanHandler {
	return &LoanHandler{
		loanService: loanService,
	}
}

// POST /loans
func (h *LoanHandler) CreateLoan(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req services.CreateLoanRequest
	if !bindJSON(c, &req) {
		return
	}

	loan, err := h.loanService.CreateLoan(c.Request.Context(), actor, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyLoanCreated),
		"loan":    loan,
	})
}

// GET /loans
func (h *LoanHandler) ListLoans(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	loans, total, err := h.loanService.ListLoans(c.Request.Context(), params)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(loans, total, params))
}

// GET /loans/:id
func (h *LoanHandler) GetLoan(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	loan, err := h.loanService.GetLoan(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"loan": loan,
	})
}

// GET /loans/:id/interest
func (h *LoanHandler) GetInterest(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	quote, err := h.loanService.CalculateInterest(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"interest": quote,
	})
}

// POST /loans/:id/disburse
func (h *LoanHandler) DisburseLoan(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	loan, err := h.loanService.DisburseLoan(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyLoanDisbursed),
		"loan":    loan,
	})
}

// POST /loans/:id/repay
func (h *LoanHandler) RepayLoan(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		Amount int64 `json:"amount"`
	}
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.loanService.RepayLoan(c.Request.Context(), actor, id, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyLoanRepaid),
		"result":  result,
	})
}

// POST /loans/:id/default
func (h *LoanHandler) MarkDefaulted(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	loan, err := h.loanService.MarkLoanDefaulted(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyLoanDefaulted),
		"loan":    loan,
	})
}

// POST /loans/:id/liquidate
func (h *LoanHandler) LiquidateCollateral(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		NewOwner string `json:"new_owner"`
	}
	// The body is optional; an empty owner falls back to the configured one.
	_ = c.ShouldBindJSON(&req)

	loan, err := h.loanService.LiquidateCollateral(c.Request.Context(), actor, id, req.NewOwner)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyLoanLiquidated),
		"loan":    loan,
	})
}
