package main

import (
	"fmt"
	"log"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campusops/report-portal/api/swagger"
	"github.com/campusops/report-portal/internal/handler"
	"github.com/campusops/report-portal/internal/repository"
	"github.com/campusops/report-portal/internal/service"
	"github.com/campusops/report-portal/pkg/cache"
	"github.com/campusops/report-portal/pkg/config"
	"github.com/campusops/report-portal/pkg/database"
	"github.com/campusops/report-portal/pkg/export"
	"github.com/campusops/report-portal/pkg/logger"
	corsmiddleware "github.com/campusops/report-portal/pkg/middleware/cors"
	reqidmiddleware "github.com/campusops/report-portal/pkg/middleware/requestid"
	"github.com/campusops/report-portal/pkg/storage"
)

// @title Annual Report Portal API
// @version 1.0.0
// @description Multi-tenant annual report authoring, review and publication service
// @BasePath /api
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
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if cfg.Analytics.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		} else {
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Analytics.CacheTTL, logr, cacheRepo != nil)

	uploadStore, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init upload storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)

	userRepo := repository.NewUserRepository(db)
	reportRepo := repository.NewReportRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)

	baseURL := fmt.Sprintf("http://localhost:%d", cfg.Port)

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, nil, logr)
	reportSvc := service.NewReportService(reportRepo, userRepo, cacheSvc, export.NewPDFExporter(), uploadStore, nil, logr, baseURL)
	analyticsSvc := service.NewAnalyticsService(analyticsRepo, cacheSvc, metricsSvc, logr)
	attachmentSvc := service.NewAttachmentService(reportSvc, uploadStore, signer, logr, cfg.Uploads.MaxFileSizeBytes, cfg.Uploads.AllowedMIMEs, baseURL)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Published renders are public artifacts served straight from disk.
	// Attachments stay behind the signed /api/files endpoint.
	r.Static("/files/published", filepath.Join(cfg.Uploads.StorageDir, "published"))

	handler.RegisterRoutes(r, cfg.APIPrefix, handler.Handlers{
		Auth:        handler.NewAuthHandler(authSvc),
		Users:       handler.NewUserHandler(userSvc),
		Reports:     handler.NewReportHandler(reportSvc),
		Analytics:   handler.NewAnalyticsHandler(analyticsSvc),
		Attachments: handler.NewAttachmentHandler(attachmentSvc),
	}, authSvc, metricsSvc, userRepo)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
