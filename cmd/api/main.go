package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "procuretrack/api/swagger" // swagger docs
	"procuretrack/internal/cache"
	"procuretrack/internal/config"
	"procuretrack/internal/database"
	"procuretrack/internal/handler"
	"procuretrack/internal/middleware"
	"procuretrack/internal/repository"
	"procuretrack/internal/scheduler"
	"procuretrack/internal/service"
	"procuretrack/internal/websocket"
	"procuretrack/internal/workflow"
	"procuretrack/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title           ProcureTrack API
// @version         1.0
// @description     Document tracking for school procurement with role-gated state transitions.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.NewLogger(cfg.Env)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	def, err := loadDefinition(cfg.WorkflowDefinitionPath)
	if err != nil {
		return err
	}

	db, err := database.NewConnection(cfg.DSN(), log)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	log.Info("connected to PostgreSQL")

	checks := map[string]handler.HealthCheck{"database": database.Ping(db)}

	var dashboardCache service.DashboardCache
	if cfg.RedisURL != "" {
		rdb, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		redisCache := cache.NewDashboardCache(rdb, cfg.DashboardCacheTTL)
		dashboardCache = redisCache
		checks["redis"] = redisCache.Ping
		log.Info("dashboard cache enabled", zap.Duration("ttl", cfg.DashboardCacheTTL))
	}

	// WebSocket hub
	wsHub := websocket.NewHub(log, cfg.AllowedOrigins())
	go wsHub.Run(ctx)

	// Repository -> Service -> Handler
	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	documentRepo := repository.NewDocumentRepository(db, cfg.LockTimeout)
	auditRepo := repository.NewAuditEntryRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)
	budgetRepo := repository.NewBudgetRepository(db, cfg.LockTimeout)
	inventoryRepo := repository.NewInventoryRepository(db, cfg.LockTimeout)
	delegationRepo := repository.NewDelegationRepository(db)

	effects := service.NewEffectRegistry(def, documentRepo, auditRepo, budgetRepo, inventoryRepo)
	if err := effects.Verify(def); err != nil {
		return fmt.Errorf("workflow handlers: %w", err)
	}

	transitionService := service.NewTransitionService(def, txManager, documentRepo, auditRepo, delegationRepo, effects, wsHub, dashboardCache, log)
	documentService := service.NewDocumentService(def, txManager, documentRepo, auditRepo, budgetRepo, inventoryRepo, wsHub, dashboardCache, log)
	slipService := service.NewSlipService(documentRepo, auditRepo, inventoryRepo, cfg.SchoolName)
	budgetService := service.NewBudgetService(budgetRepo, activityRepo, txManager, dashboardCache, log)
	inventoryService := service.NewInventoryService(inventoryRepo, activityRepo, txManager, dashboardCache, log)
	delegationService := service.NewDelegationService(delegationRepo, userRepo, activityRepo, txManager, log)
	reportService := service.NewReportService(def, documentRepo, budgetRepo, delegationRepo, dashboardCache, cfg.SchoolName, log)
	auditService := service.NewAuditService(activityRepo, auditRepo)
	userService := service.NewUserService(userRepo, activityRepo, txManager, cfg.JWTSecret, cfg.TokenTTL(), log)

	if err := userService.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return err
	}

	digest := scheduler.NewPendingDigest(def, cfg.PendingDigestCron, cfg.PendingStaleAfter, documentRepo, wsHub, log)
	if err := digest.Start(ctx); err != nil {
		return err
	}
	defer digest.Stop()

	auth := middleware.NewAuth(cfg.JWTSecret)
	if err := handler.RegisterValidators(); err != nil {
		return fmt.Errorf("failed to register validators: %w", err)
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.RequestLogger(log), middleware.Recovery(log))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins()
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", middleware.RequestIDHeader}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.ExposeHeaders = []string{"Retry-After", middleware.RequestIDHeader, "Content-Disposition"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, auth)
	})

	root := router.Group("")
	handler.NewHealthHandler(checks).RegisterRoutes(root)
	handler.NewUserHandler(userService, auth).RegisterRoutes(root)
	handler.NewTransitionHandler(transitionService, auth).RegisterRoutes(root)
	handler.NewDocumentHandler(documentService, slipService, auth).RegisterRoutes(root)
	handler.NewBudgetHandler(budgetService, auth).RegisterRoutes(root)
	handler.NewInventoryHandler(inventoryService, auth).RegisterRoutes(root)
	handler.NewDelegationHandler(delegationService, auth).RegisterRoutes(root)
	handler.NewReportHandler(reportService, auth).RegisterRoutes(root)
	handler.NewAuditHandler(auditService, auth).RegisterRoutes(root)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.Int("port", cfg.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loadDefinition(path string) (*workflow.Definition, error) {
	if path == "" {
		return workflow.Default()
	}
	def, err := workflow.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow definition %s: %w", path, err)
	}
	return def, nil
}
