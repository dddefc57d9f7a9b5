package main

import (
	"context"
	"errors"
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

	_ "github.com/ldrseguros/plano-de-saude-sinvest-sub000/api/swagger"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/handler"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/middleware"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/notify"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/repository"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/service"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/cache"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/config"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/database"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/jobs"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/logger"
	corsmiddleware "github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/middleware/cors"
	reqidmiddleware "github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/middleware/requestid"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/storage"
)

// @title Brasil Saúde Leads API
// @version 1.0.0
// @description Lead management and enrollment wizard for health plan subscriptions
// @BasePath /
// @schemes http

const pendingRecoveryAge = time.Minute

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("redis connection failed", "error", err)
	}
	defer redisClient.Close()

	fileStore, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("document storage init failed", "error", err)
	}
	urlSigner := storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL)

	leadRepo := repository.NewLeadRepository(db)
	stepRepo := repository.NewStepRepository(db)
	dependentRepo := repository.NewDependentRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	adminRepo := repository.NewAdminRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	validate := validator.New()

	metricsService := service.NewMetricsService()
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.Progress.CacheTTL, logr, cfg.Progress.CacheEnabled)

	authService := service.NewAuthService(adminRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		Audience:           cfg.JWT.Audience,
		SingleSession:      cfg.JWT.SingleSession,
	})
	adminUserService := service.NewAdminUserService(adminRepo, validate, logr)
	leadService := service.NewLeadService(leadRepo, dependentRepo, activityRepo, validate, logr)
	documentService := service.NewDocumentService(documentRepo, leadRepo, dependentRepo, stepRepo, activityRepo, fileStore, urlSigner, logr)

	channels := []notify.Channel{
		notify.NewEmailChannel(cfg.Notifications.Email, logr),
		notify.NewWhatsAppChannel(cfg.Notifications.WhatsApp, nil, logr),
	}
	notificationService := service.NewNotificationService(
		notificationRepo, leadRepo, dependentRepo, activityRepo, documentService,
		channels, metricsService, cfg.Notifications.SendTimeout, logr,
	)

	queue := jobs.NewQueue("notifications", notificationService.HandleApprovalJob, jobs.QueueConfig{
		Workers:    cfg.Notifications.WorkerConcurrency,
		MaxRetries: cfg.Notifications.WorkerRetries,
		Logger:     logr,
	})
	queue.Start(ctx)
	defer queue.Stop()

	enrollmentService := service.NewEnrollmentService(
		leadRepo, stepRepo, queue, cacheService, cfg.Progress.CacheTTL, validate, logr,
	)

	// Pick up fan-outs that were interrupted before the workers shut down.
	go func() {
		if err := notificationService.RecoverPending(ctx, pendingRecoveryAge, queue); err != nil {
			logr.Sugar().Warnw("pending notification recovery failed", "error", err)
		}
	}()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	handler.RegisterRoutes(r, handler.Handlers{
		Auth:          handler.NewAuthHandler(authService),
		Leads:         handler.NewLeadHandler(leadService),
		Enrollment:    handler.NewEnrollmentHandler(enrollmentService),
		Notifications: handler.NewNotificationHandler(notificationService),
		Documents:     handler.NewDocumentHandler(documentService),
		Admins:        handler.NewAdminUserHandler(adminUserService),
		Metrics:       handler.NewMetricsHandler(metricsService),
	}, authService)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
