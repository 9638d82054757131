// internal/router/router.go
package router

import (
	"fmt"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/javajoker/coopfund-backend/internal/config"
	"github.com/javajoker/coopfund-backend/internal/handlers"
	"github.com/javajoker/coopfund-backend/internal/metrics"
	"github.com/javajoker/coopfund-backend/internal/middleware"
	"github.com/javajoker/coopfund-backend/internal/models"
	"github.com/javajoker/coopfund-backend/internal/services"
	"github.com/javajoker/coopfund-backend/internal/utils"
)

// Services holds every ledger component sharing one sequencer.
type Services struct {
	Sequencer     *services.Sequencer
	Identities    *services.IdentityService
	Inventory     *services.InventoryService
	Notifications *services.NotificationService
	Pauses        *services.PauseService
	Custodian     services.CapitalCustodian
	Pricing       *services.PricingService
	Grants        *services.GrantService
	Loans         *services.LoanService
	Proofs        *services.ProofService
	Milestones    *services.MilestoneService
	Storage       *services.StorageService
	Admin         *services.AdminService
	Auth          *services.AuthService
	Metrics       *metrics.Metrics
}

// NewServices wires the ledger components. Metrics are registered on registry.
func NewServices(db *gorm.DB, cfg *config.Config, registry prometheus.Registerer) (*Services, error) {
	storage, err := services.NewStorageService(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	s := &Services{
		Sequencer: services.NewSequencer(db),
		Metrics:   metrics.New(registry),
		Storage:   storage,
		Auth:      services.NewAuthService(db, cfg),
	}
	s.Identities = services.NewIdentityService(db)
	s.Inventory = services.NewInventoryService(db, s.Identities)
	s.Notifications = services.NewNotificationService(db, s.Sequencer)
	s.Pauses = services.NewPauseService(db, s.Sequencer, s.Identities, s.Notifications)
	s.Custodian = services.NewCustodian(db, cfg)
	s.Pricing = services.NewPricingService(db, s.Sequencer, s.Identities, s.Inventory, s.Pauses, s.Notifications)
	s.Grants = services.NewGrantService(db, cfg, s.Sequencer, s.Identities, s.Inventory, s.Pricing, s.Pauses, s.Notifications, s.Metrics)
	s.Loans = services.NewLoanService(db, cfg, s.Sequencer, s.Identities, s.Inventory, s.Custodian, s.Pauses, s.Notifications, s.Metrics)
	s.Proofs = services.NewProofService(db, cfg, s.Sequencer, s.Identities, s.Pauses, s.Notifications, s.Metrics)
	s.Milestones = services.NewMilestoneService(db, s.Sequencer, s.Identities, s.Custodian,
		s.Grants, s.Loans, s.Proofs, s.Pauses, s.Notifications, s.Metrics)
	s.Admin = services.NewAdminService(db, s.Identities, s.Custodian)

	return s, nil
}

func Initialize(db *gorm.DB, cfg *config.Config) (*gin.Engine, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc, err := NewServices(db, cfg, registry)
	if err != nil {
		return nil, err
	}

	return Setup(db, cfg, svc, registry), nil
}

// Setup builds the HTTP engine on top of already wired services.
func Setup(db *gorm.DB, cfg *config.Config, svc *Services, gatherer prometheus.Gatherer) *gin.Engine {
	// Initialize handlers
	authHandler := handlers.NewAuthHandler(svc.Auth)
	grantHandler := handlers.NewGrantHandler(svc.Grants, svc.Pricing)
	loanHandler := handlers.NewLoanHandler(svc.Loans)
	scheduleHandler := handlers.NewScheduleHandler(svc.Milestones, svc.Storage)
	proofHandler := handlers.NewProofHandler(svc.Proofs)
	pricingHandler := handlers.NewPricingHandler(svc.Pricing)
	adminHandler := handlers.NewAdminHandler(svc.Admin, svc.Proofs, svc.Pauses, svc.Identities, svc.Inventory, svc.Notifications)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept-Language"},
		ExposeHeaders:    []string{"X-Total-Count", "X-Page", "X-Per-Page"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.I18nMiddleware())
	r.Use(middleware.GeneralRateLimit())
	r.Use(middleware.AuditLogMiddleware(db))

	// Health check
	r.GET("/health", handlers.Health(db, "1.0.0"))

	if cfg.Server.MetricsEnabled && gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.Use(middleware.AuthRateLimit())
		{
			auth.POST("/login", authHandler.Login)
			auth.GET("/me", middleware.AuthRequired(), authHandler.GetProfile)
		}

		protected := v1.Group("")
		protected.Use(middleware.AuthRequired())

		grants := protected.Group("/grants")
		{
			grants.POST("", grantHandler.CreateGrant)
			grants.POST("/greenfield", grantHandler.CreateGreenfieldGrant)
			grants.GET("", grantHandler.ListGrants)
			grants.GET("/:id", grantHandler.GetGrant)
			grants.POST("/:id/revenue", grantHandler.RecordRevenue)
			grants.POST("/:id/complete", grantHandler.CompleteGrant)
			grants.POST("/:id/maturity", grantHandler.CheckMaturity)
			registerScheduleRoutes(grants, scheduleHandler, models.ScheduleOwnerGrant)
		}

		loans := protected.Group("/loans")
		{
			loans.POST("", loanHandler.CreateLoan)
			loans.GET("", loanHandler.ListLoans)
			loans.GET("/:id", loanHandler.GetLoan)
			loans.GET("/:id/interest", loanHandler.GetInterest)
			loans.POST("/:id/disburse", loanHandler.DisburseLoan)
			loans.POST("/:id/repay", loanHandler.RepayLoan)
			loans.POST("/:id/default", loanHandler.MarkDefaulted)
			loans.POST("/:id/liquidate", loanHandler.LiquidateCollateral)
			registerScheduleRoutes(loans, scheduleHandler, models.ScheduleOwnerLoan)
		}

		protected.POST("/evidence/upload", middleware.UploadRateLimit(), scheduleHandler.UploadEvidence)

		proofs := protected.Group("/proofs")
		{
			proofs.POST("", proofHandler.SubmitProof)
			proofs.GET("", proofHandler.ListProofs)
			proofs.POST("/batch-verify", proofHandler.BatchVerify)
			proofs.GET("/:hash", proofHandler.GetProof)
			proofs.POST("/:hash/verify", proofHandler.VerifyProof)
		}

		pricing := protected.Group("/pricing")
		{
			pricing.GET("/commodity", pricingHandler.GetCommodityPricing)
			pricing.PUT("/commodity", pricingHandler.UpdateCommodityPricing)
			pricing.PUT("/batches/:id", pricingHandler.SetBatchPricing)
			pricing.GET("/batches/:id/fair-min-price", pricingHandler.GetFairMinPrice)
		}

		admin := protected.Group("/admin")
		admin.Use(middleware.RequireCapability(models.CapabilitySystemAdmin))
		{
			admin.GET("/dashboard/stats", adminHandler.GetDashboardStats)
			admin.GET("/settings", adminHandler.GetSettings)
			admin.GET("/audit-logs", adminHandler.GetAuditLogs)
			admin.GET("/events", adminHandler.GetEvents)

			admin.POST("/circuits", adminHandler.RegisterCircuit)
			admin.GET("/circuits", adminHandler.ListCircuits)
			admin.DELETE("/circuits/:id", adminHandler.DeactivateCircuit)
			admin.POST("/circuits/:id/activate", adminHandler.ReactivateCircuit)

			admin.GET("/backends/:type/expiry", adminHandler.GetExpiryWindow)
			admin.PUT("/backends/:type/expiry", adminHandler.SetExpiryWindow)

			admin.GET("/pause", adminHandler.GetPauseStatus)
			admin.POST("/pause/:component", adminHandler.PauseComponent)
			admin.DELETE("/pause/:component", adminHandler.UnpauseComponent)

			admin.POST("/operators", adminHandler.CreateOperator)
			admin.PUT("/operators/:identity/status", adminHandler.SetOperatorStatus)

			admin.POST("/batches", adminHandler.RegisterBatch)
		}
	}

	return r
}

func registerScheduleRoutes(group *gin.RouterGroup, h *handlers.ScheduleHandler, kind models.ScheduleOwnerKind) {
	group.POST("/:id/schedule", h.CreateSchedule(kind))
	group.GET("/:id/schedule", h.GetSchedule(kind))
	group.POST("/:id/milestones/:index/evidence", h.SubmitEvidence(kind))
	group.POST("/:id/milestones/:index/validate", h.ValidateMilestone(kind))
}
