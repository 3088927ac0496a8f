// Package main is the entry point for the liquimed billing API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"liquimed/internal/domain/auth"
	"liquimed/internal/domain/notify"
	"liquimed/internal/infrastructure/clinical"
	"liquimed/internal/infrastructure/config"
	v1 "liquimed/internal/infrastructure/http/v1"
	"liquimed/internal/infrastructure/numerator"
	"liquimed/internal/infrastructure/storage/postgres"
	"liquimed/pkg/logger"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: !cfg.IsProduction(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	log.Info("starting liquimed server")

	// --- Billing database ---
	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to billing database", "error", err)
	}
	defer pool.Close()
	log.Info("billing database connection established")

	txManager := postgres.NewTxManager(pool)

	// --- Clinical source (separate server, read-only) ---
	clinicalPoolCfg, err := pgxpool.ParseConfig(cfg.Clinical.URL)
	if err != nil {
		log.Fatalw("invalid clinical database url", "error", err)
	}
	clinicalPoolCfg.MaxConns = cfg.Clinical.MaxConns
	clinicalPool, err := pgxpool.NewWithConfig(ctx, clinicalPoolCfg)
	if err != nil {
		log.Fatalw("failed to connect to clinical database", "error", err)
	}
	defer clinicalPool.Close()

	if err := clinicalPool.Ping(ctx); err != nil {
		log.Fatalw("failed to ping clinical database", "error", err)
	}
	log.Info("clinical database connection established")

	source := clinical.NewSource(clinicalPool)

	// --- Numbering ---
	// The numerator shares the TxManager so strict allocations join the
	// settle/invoice transaction.
	numeratorService := numerator.New(func(ctx context.Context) numerator.Querier {
		return txManager.GetQuerier(ctx)
	})

	// --- Audit trail ---
	auditRepo, err := postgres.NewAuditRepo(txManager)
	if err != nil {
		log.Fatalw("failed to initialize audit repository", "error", err)
	}

	// --- Auth ---
	jwtConfig := auth.DefaultJWTConfig(cfg.Auth.JWTSecret)
	jwtConfig.AccessTokenTTL = cfg.Auth.AccessTokenTTL
	jwtService := auth.NewJWTService(jwtConfig)

	authRepo := postgres.NewAuthRepo(txManager)
	authConfig := auth.DefaultServiceConfig()
	authConfig.RefreshTokenExpiry = cfg.Auth.RefreshTokenTTL
	authService := auth.NewService(authRepo, authRepo, txManager, jwtService, authConfig)

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Pool:          pool,
		TxManager:     txManager,
		Source:        source,
		Numerator:     numeratorService,
		Logger:        log,
		JWTValidator:  jwtService,
		AuthService:   authService,
		AuditRecorder: auditRepo,
		Notifier:      notify.NewLogNotifier(),
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  cfg.App.ReadTimeout,
		WriteTimeout: cfg.App.WriteTimeout,
		IdleTimeout:  cfg.App.WriteTimeout * 2,
	}

	go func() {
		log.Infow("server starting", "port", cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
