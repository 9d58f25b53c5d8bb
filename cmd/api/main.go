package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/siap-dev/siap-atk-api/api/swagger"
	"github.com/siap-dev/siap-atk-api/internal/handler"
	"github.com/siap-dev/siap-atk-api/internal/middleware"
	"github.com/siap-dev/siap-atk-api/internal/models"
	"github.com/siap-dev/siap-atk-api/internal/repository"
	"github.com/siap-dev/siap-atk-api/internal/service"
	"github.com/siap-dev/siap-atk-api/pkg/cache"
	"github.com/siap-dev/siap-atk-api/pkg/config"
	"github.com/siap-dev/siap-atk-api/pkg/database"
	"github.com/siap-dev/siap-atk-api/pkg/jobs"
	"github.com/siap-dev/siap-atk-api/pkg/logger"
	corsmiddleware "github.com/siap-dev/siap-atk-api/pkg/middleware/cors"
	reqidmiddleware "github.com/siap-dev/siap-atk-api/pkg/middleware/requestid"
	"github.com/siap-dev/siap-atk-api/pkg/storage"
)

// @title SIAP ATK API
// @version 1.0.0
// @description Office supply request approval and stock ledger service
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, catalog caching disabled", "error", err)
		redisClient = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	supplyRepo := repository.NewSupplyRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	mutationRepo := repository.NewMutationRepository(db)
	reportRepo := repository.NewReportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Supplies.CacheTTL, logr, redisClient != nil)

	authSvc := service.NewAuthService(userRepo, validator.New(), logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	requestSvc := service.NewRequestService(requestRepo, supplyRepo, userRepo, metricsSvc, logr)
	stockSvc := service.NewStockService(supplyRepo, mutationRepo, cacheSvc, userRepo, metricsSvc, logr)
	supplySvc := service.NewSupplyService(supplyRepo, cacheSvc, userRepo, cfg.Supplies.CacheTTL, logr)

	// Report pipeline.
	fileStore, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init report storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	exportSvc := service.NewExportService(supplyRepo, mutationRepo, requestRepo, fileStore, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Reports.SignedURLTTL,
	}, logr)
	reportWorker := service.NewReportWorker(reportRepo, exportSvc, cfg.Reports.WorkerRetries, logr)
	reportQueue := jobs.NewQueue("reports", reportWorker.Handle, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		Logger:     logr,
	})
	reportQueue.Start(ctx)
	defer reportQueue.Stop()

	reportSvc := service.NewReportService(reportRepo, reportQueue, exportSvc, logr, service.ReportServiceConfig{
		ResultTTL:       cfg.Reports.SignedURLTTL,
		CleanupInterval: cfg.Reports.CleanupInterval,
		MaxRetries:      cfg.Reports.WorkerRetries,
	})
	reportSvc.RecoverPendingJobs(ctx)
	reportSvc.StartCleanup(ctx)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	requestHandler := handler.NewRequestHandler(requestSvc)
	supplyHandler := handler.NewSupplyHandler(supplySvc, stockSvc)
	reportHandler := handler.NewReportHandler(reportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	requests := api.Group("/office-requests", middleware.JWT(authSvc))
	{
		requests.POST("", middleware.RequireCapability(models.CapabilityRequestCreate), requestHandler.Create)
		requests.GET("", requestHandler.List)
		requests.GET("/:id", requestHandler.Get)
		requests.POST("/:id/approve", middleware.RequireCapability(models.CapabilityRequestApprove), requestHandler.Approve)
		requests.POST("/:id/reject", middleware.RequireCapability(models.CapabilityRequestReject), requestHandler.Reject)
	}

	supplies := api.Group("/supplies", middleware.JWT(authSvc))
	{
		supplies.GET("", supplyHandler.List)
		supplies.GET("/:id", supplyHandler.Get)
		supplies.POST("", middleware.RequireCapability(models.CapabilitySupplyManage), supplyHandler.Create)
		supplies.PUT("/:id", middleware.RequireCapability(models.CapabilitySupplyManage), supplyHandler.Update)
		supplies.POST("/:id/deduct", middleware.RequireCapability(models.CapabilityStockDeduct), supplyHandler.Deduct)
		supplies.POST("/:id/restock", middleware.RequireCapability(models.CapabilityStockRestock), supplyHandler.Restock)
		supplies.GET("/:id/mutations", middleware.RequireCapability(models.CapabilitySupplyManage), supplyHandler.Mutations)
	}

	reports := api.Group("/reports")
	{
		reports.POST("/generate", middleware.JWT(authSvc), middleware.RequireCapability(models.CapabilityReportGenerate), reportHandler.Generate)
		reports.GET("/:id/status", middleware.JWT(authSvc), reportHandler.Status)
		// Download authenticates through the signed token itself.
		reports.GET("/download/:token", reportHandler.Download)
	}

	api.GET("/metrics/snapshot", middleware.JWT(authSvc), middleware.RequireCapability(models.CapabilitySupplyManage), metricsHandler.Snapshot)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("graceful shutdown failed", "error", err)
	}
}
