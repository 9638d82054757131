// internal/handlers/admin.go
package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/coopfund-backend/internal/i18n"
	"github.com/javajoker/coopfund-backend/internal/models"
	"github.com/javajoker/coopfund-backend/internal/services"
	"github.com/javajoker/coopfund-backend/internal/utils"
)

type AdminHandler struct {
	adminService        *services.AdminService
	proofService        *services.ProofService
	pauseService        *services.PauseService
	identityService     *services.IdentityService
	inventoryService    *services.InventoryService
	notificationService *services.NotificationService
}

type ExpiryWindowRequest struct {
	WindowSeconds int64 `json:"window_seconds" validate:"required,gt=0"`
}

type OperatorStatusRequest struct {
	Status models.OperatorStatus `json:"status" validate:"required"`
}

func NewAdminHandler(
	adminService *services.AdminService,
	proofService *services.ProofService,
	pauseService *services.PauseService,
	identityService *services.IdentityService,
	inventoryService *services.InventoryService,
	notificationService *services.NotificationService,
) *AdminHandler {
	return &AdminHandler{
		adminService:        adminService,
		proofService:        proofService,
		pauseService:        pauseService,
		identityService:     identityService,
		inventoryService:    inventoryService,
		notificationService: notificationService,
	}
}

// GET /admin/dashboard/stats
func (h *AdminHandler) GetDashboardStats(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}

	stats, err := h.adminService.GetDashboardStats(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"stats": stats,
	})
}

// GET /admin/settings
func (h *AdminHandler) GetSettings(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}

	settings, err := h.adminService.GetSettings(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"settings": settings,
	})
}

// GET /admin/audit-logs
func (h *AdminHandler) GetAuditLogs(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}

	filter := services.AuditLogFilter{
		PaginationParams: utils.GetPaginationParams(c),
		Action:           c.Query("action"),
		ResourceType:     c.Query("resource_type"),
	}

	logs, total, err := h.adminService.GetAuditLogs(c.Request.Context(), actor, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(logs, total, filter.PaginationParams))
}

// GET /admin/events
func (h *AdminHandler) GetEvents(c *gin.Context) {
	filter := services.EventFilter{
		PaginationParams: utils.GetPaginationParams(c),
		EntityType:       c.Query("entity_type"),
		EntityID:         c.Query("entity_id"),
		EventType:        c.Query("event_type"),
	}

	events, total, err := h.notificationService.ListEvents(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(events, total, filter.PaginationParams))
}

// POST /admin/circuits
func (h *AdminHandler) RegisterCircuit(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req services.RegisterCircuitRequest
	if !bindJSON(c, &req) {
		return
	}

	circuit, err := h.proofService.RegisterCircuit(c.Request.Context(), actor, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyCircuitRegistered),
		"circuit": circuit,
	})
}

// GET /admin/circuits?backend_type=&active=
func (h *AdminHandler) ListCircuits(c *gin.Context) {
	activeOnly, _ := strconv.ParseBool(c.DefaultQuery("active", "false"))

	circuits, err := h.proofService.ListCircuits(c.Request.Context(), models.BackendType(c.Query("backend_type")), activeOnly)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"circuits": circuits,
	})
}

// DELETE /admin/circuits/:id
func (h *AdminHandler) DeactivateCircuit(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	circuit, err := h.proofService.DeactivateCircuit(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyCircuitDeactivated),
		"circuit": circuit,
	})
}

// POST /admin/circuits/:id/activate
func (h *AdminHandler) ReactivateCircuit(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	circuit, err := h.proofService.ReactivateCircuit(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyCircuitReactivated),
		"circuit": circuit,
	})
}

// GET /admin/backends/:type/expiry
func (h *AdminHandler) GetExpiryWindow(c *gin.Context) {
	backendType := models.BackendType(c.Param("type"))

	window, err := h.proofService.ExpiryWindow(c.Request.Context(), backendType)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"backend_type":   backendType,
		"window_seconds": int64(window / time.Second),
	})
}

// PUT /admin/backends/:type/expiry
func (h *AdminHandler) SetExpiryWindow(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req ExpiryWindowRequest
	if !bindJSON(c, &req) {
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	backendType := models.BackendType(c.Param("type"))
	window := time.Duration(req.WindowSeconds) * time.Second
	if err := h.proofService.SetExpiryWindow(c.Request.Context(), actor, backendType, window); err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":        i18n.T(utils.GetLangFromContext(c), i18n.KeyExpiryWindowUpdated),
		"backend_type":   backendType,
		"window_seconds": req.WindowSeconds,
	})
}

// GET /admin/pause
func (h *AdminHandler) GetPauseStatus(c *gin.Context) {
	status, err := h.pauseService.Status(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"components": status,
	})
}

// POST /admin/pause/:component
func (h *AdminHandler) PauseComponent(c *gin.Context) {
	h.setPaused(c, true)
}

// DELETE /admin/pause/:component
func (h *AdminHandler) UnpauseComponent(c *gin.Context) {
	h.setPaused(c, false)
}

func (h *AdminHandler) setPaused(c *gin.Context, paused bool) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}

	component := services.Component(c.Param("component"))
	ctx := c.Request.Context()

	var err error
	key := i18n.KeyAdminComponentUnpaused
	if paused {
		err = h.pauseService.Pause(ctx, actor, component)
		key = i18n.KeyAdminComponentPaused
	} else {
		err = h.pauseService.Unpause(ctx, actor, component)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":   i18n.T(utils.GetLangFromContext(c), key),
		"component": component,
		"paused":    paused,
	})
}

// POST /admin/operators
func (h *AdminHandler) CreateOperator(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req services.CreateOperatorRequest
	if !bindJSON(c, &req) {
		return
	}

	operator, err := h.identityService.CreateOperator(c.Request.Context(), actor, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message":  i18n.T(utils.GetLangFromContext(c), i18n.KeyAdminOperatorCreated),
		"operator": operator,
	})
}

// PUT /admin/operators/:identity/status
func (h *AdminHandler) SetOperatorStatus(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req OperatorStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	identity := c.Param("identity")
	if err := h.identityService.SetOperatorStatus(c.Request.Context(), actor, identity, req.Status); err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"identity": identity,
		"status":   req.Status,
	})
}

// POST /admin/batches
func (h *AdminHandler) RegisterBatch(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req services.RegisterBatchRequest
	if !bindJSON(c, &req) {
		return
	}

	batch, err := h.inventoryService.RegisterBatch(c.Request.Context(), actor, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyAdminBatchRegistered),
		"batch":   batch,
	})
}
