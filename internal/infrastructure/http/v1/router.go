// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"liquimed/internal/core/numerator"
	"liquimed/internal/domain/audit"
	"liquimed/internal/domain/auth"
	"liquimed/internal/domain/exclusion"
	"liquimed/internal/domain/invoicing"
	"liquimed/internal/domain/notify"
	"liquimed/internal/domain/records"
	"liquimed/internal/domain/reports"
	"liquimed/internal/domain/settlement"
	"liquimed/internal/infrastructure/http/v1/handlers"
	"liquimed/internal/infrastructure/http/v1/middleware"
	"liquimed/internal/infrastructure/metrics"
	"liquimed/internal/infrastructure/storage/postgres"
	"liquimed/pkg/logger"
)

// RouterConfig holds the wiring for the billing API.
type RouterConfig struct {
	// Pool is the billing database connection pool (health checks).
	Pool *postgres.Pool

	// TxManager drives transactions over Pool.
	TxManager *postgres.TxManager

	// Source provides clinical line items.
	Source records.Source

	// Numerator generates LQ and VAL document numbers.
	Numerator numerator.Generator

	// Logger for request logging.
	Logger *logger.Logger

	// JWTValidator for token validation.
	JWTValidator middleware.JWTValidator

	// AuthService for authentication endpoints.
	AuthService *auth.Service

	// AuditRecorder persists entity audit trail entries.
	AuditRecorder audit.Recorder

	// Notifier publishes workflow events. Optional.
	Notifier notify.Notifier
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	metrics.Init()

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health and metrics endpoints (no auth)
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Shared repositories and services
	exclusionRepo := postgres.NewExclusionRepo(cfg.TxManager)
	settlementRepo := postgres.NewSettlementRepo(cfg.TxManager)
	invoiceRepo := postgres.NewInvoiceRepo(cfg.TxManager)
	reportRepo := postgres.NewReportRepo(cfg.TxManager)

	recordsService := records.NewService(cfg.Source, exclusionRepo, settlementRepo)
	exclusionService := exclusion.NewService(exclusionRepo, settlementRepo, cfg.TxManager)
	settlementService := settlement.NewService(
		recordsService, settlementRepo, cfg.Numerator, cfg.TxManager,
		cfg.AuditRecorder, cfg.Notifier,
	)
	invoicingService := invoicing.NewService(
		invoiceRepo, settlementRepo, cfg.Numerator, cfg.TxManager,
		cfg.AuditRecorder, cfg.Notifier,
	)
	reportsService := reports.NewService(reportRepo)

	baseHandler := handlers.NewBaseHandler()

	// API v1
	apiV1 := router.Group("/api/v1")
	{
		registerAuthRoutes(apiV1, baseHandler, cfg)

		protected := apiV1.Group("")
		protected.Use(middleware.Auth(cfg.JWTValidator))

		registerBillingRoutes(protected, baseHandler, recordsService, exclusionService)
		registerSettlementRoutes(protected, baseHandler, settlementService)
		registerInvoiceRoutes(protected, baseHandler, invoicingService)
		registerReportRoutes(protected, baseHandler, reportsService)
	}

	return router
}

// registerAuthRoutes registers authentication endpoints.
func registerAuthRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	if cfg.AuthService == nil {
		return
	}

	authHandler := handlers.NewAuthHandler(base, cfg.AuthService)

	publicAuth := rg.Group("/auth")

	protectedAuth := rg.Group("/auth")
	protectedAuth.Use(middleware.Auth(cfg.JWTValidator))

	authHandler.RegisterRoutes(publicAuth, protectedAuth)
}

// registerBillingRoutes registers the line item read side and the
// exclusion ledger.
func registerBillingRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, recordsSvc *records.Service, exclusions *exclusion.Service) {
	handler := handlers.NewBillingHandler(base, recordsSvc, exclusions)

	billing := rg.Group("/billing")
	{
		billing.GET("/line-items", handler.LineItems)
		billing.GET("/exclusions", handler.ListPending)
		billing.PUT("/exclusions", middleware.RequireRole(auth.RoleSettler), handler.SetExclusion)
		billing.POST("/exclusions/release", middleware.RequireRole(auth.RoleSettler), handler.Release)
	}
}

// registerSettlementRoutes registers settlement batch endpoints.
func registerSettlementRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, service *settlement.Service) {
	handler := handlers.NewSettlementHandler(base, service)

	settlements := rg.Group("/settlements")
	{
		settlements.GET("", handler.List)
		settlements.GET("/:id", handler.Get)
		settlements.GET("/by-number/:number", handler.GetByNumber)
		settlements.GET("/:id/export", handler.Export)
		settlements.POST("", middleware.RequireRole(auth.RoleSettler), handler.Settle)
		settlements.POST("/:id/void", middleware.RequireRole(auth.RoleSettler), handler.Void)
	}
}

// registerInvoiceRoutes registers invoice record endpoints.
func registerInvoiceRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, service *invoicing.Service) {
	handler := handlers.NewInvoiceHandler(base, service)

	invoices := rg.Group("/invoices")
	{
		invoices.GET("", handler.List)
		invoices.GET("/:id", handler.Get)
		invoices.POST("", middleware.RequireRole(auth.RoleInvoicer), handler.Create)
		invoices.POST("/:id/void", middleware.RequireRole(auth.RoleInvoicer), handler.Void)
		invoices.POST("/void", middleware.RequireRole(auth.RoleInvoicer), handler.VoidByBatches)
	}
}

// registerReportRoutes registers report endpoints.
func registerReportRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, service *reports.Service) {
	handler := handlers.NewReportsHandler(base, service)

	reportsGroup := rg.Group("/reports")
	{
		reportsGroup.GET("/pending", handler.Pending)
		reportsGroup.GET("/settlements", handler.Settlements)
		reportsGroup.GET("/invoices", handler.Invoices)
	}
}
