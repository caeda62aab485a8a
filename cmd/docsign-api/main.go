package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/docsign-api/api/swagger"
	"github.com/noah-isme/docsign-api/internal/handler"
	"github.com/noah-isme/docsign-api/internal/middleware"
	"github.com/noah-isme/docsign-api/internal/repository"
	"github.com/noah-isme/docsign-api/internal/service"
	"github.com/noah-isme/docsign-api/pkg/cache"
	"github.com/noah-isme/docsign-api/pkg/config"
	"github.com/noah-isme/docsign-api/pkg/database"
	"github.com/noah-isme/docsign-api/pkg/export"
	"github.com/noah-isme/docsign-api/pkg/jobs"
	"github.com/noah-isme/docsign-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/docsign-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/docsign-api/pkg/middleware/requestid"
	"github.com/noah-isme/docsign-api/pkg/signtoken"
	"github.com/noah-isme/docsign-api/pkg/storage"
)

// @title DocSign API
// @version 0.1.0
// @description Multi-party document signing and certification service
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
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	blobs, err := storage.NewLocalBlobStore(cfg.Storage.BlobDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init blob store", "error", err)
	}

	documentRepo := repository.NewDocumentRepository(db)
	signatureRepo := repository.NewSignatureRepository(db)
	certificateRepo := repository.NewCertificateRepository(db)
	versionRepo := repository.NewVersionRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()

	notificationSvc := service.NewNotificationService(
		service.LogSender{Logger: logr}, logr, jobs.QueueConfig{
			Workers:    cfg.Notifications.WorkerConcurrency,
			MaxRetries: cfg.Notifications.WorkerRetries,
			RetryDelay: cfg.Notifications.RetryDelay,
		})
	notificationSvc.Start(context.Background())
	defer notificationSvc.Stop()

	authSvc := service.NewAuthService(userRepo, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})

	limits := service.UploadLimits{
		MaxFileSizeBytes: cfg.Uploads.MaxFileSizeBytes,
		AllowedMIMEs:     cfg.Uploads.AllowedMIMEs,
	}
	scanner := service.PassthroughScanner{}

	documentSvc := service.NewDocumentService(
		documentRepo, versionRepo, membershipRepo, blobs, scanner, userRepo, logr, limits)

	signingSvc := service.NewSigningService(
		signatureRepo, documentRepo, membershipRepo,
		signtoken.NewCodec(), blobs, notificationSvc, userRepo, cacheRepo,
		metricsSvc, logr, service.SigningConfig{
			DefaultTokenExpiryDays: cfg.Signing.DefaultTokenExpiryDays,
			StatusCacheTTL:         cfg.Signing.StatusCacheTTL,
		})

	certificateSvc := service.NewCertificateService(
		certificateRepo, documentRepo, signatureRepo, membershipRepo,
		blobs, export.NewCertificatePDFRenderer(), userRepo, metricsSvc,
		logr, service.CertificateConfig{
			IDPrefix:      cfg.Certificates.IDPrefix,
			ValidityYears: cfg.Certificates.ValidityYears,
		})

	versionSvc := service.NewVersionService(
		versionRepo, documentRepo, membershipRepo, blobs, scanner, userRepo, logr, limits)

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
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r, cfg.APIPrefix, handler.Handlers{
		Auth:         handler.NewAuthHandler(authSvc),
		Documents:    handler.NewDocumentHandler(documentSvc),
		Signing:      handler.NewSigningHandler(signingSvc),
		Certificates: handler.NewCertificateHandler(certificateSvc),
		Versions:     handler.NewVersionHandler(versionSvc),
		Metrics:      handler.NewMetricsHandler(metricsSvc),
	}, authSvc)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
