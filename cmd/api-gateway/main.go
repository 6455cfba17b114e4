package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	netmail "net/mail"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-admissions-api/api/swagger"
	"github.com/noah-isme/sma-admissions-api/internal/handler"
	"github.com/noah-isme/sma-admissions-api/internal/middleware"
	"github.com/noah-isme/sma-admissions-api/internal/repository"
	"github.com/noah-isme/sma-admissions-api/internal/service"
	"github.com/noah-isme/sma-admissions-api/pkg/cache"
	"github.com/noah-isme/sma-admissions-api/pkg/config"
	"github.com/noah-isme/sma-admissions-api/pkg/database"
	"github.com/noah-isme/sma-admissions-api/pkg/logger"
	"github.com/noah-isme/sma-admissions-api/pkg/mail"
	corsmiddleware "github.com/noah-isme/sma-admissions-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-admissions-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-admissions-api/pkg/storage"
	"github.com/noah-isme/sma-admissions-api/pkg/tracing"
)

// @title SMA Admissions API
// @version 1.0.0
// @description Enquiry, admission and aptitude test registration workflow
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, logr); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	tracer, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracer.Shutdown(shutdownCtx)
	}()

	metrics := service.NewMetricsService()
	validate := validator.New()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, using in-process cache", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}
	verifyCache := service.NewVerificationCache(cacheRepository(redisClient, cfg, logr), metrics, cfg.Cache.VerifyTTL, logr, cfg.Cache.VerifyEnabled)

	store, err := objectStore(cfg)
	if err != nil {
		return fmt.Errorf("object storage: %w", err)
	}
	dispatcher, err := mailDispatcher(cfg, logr)
	if err != nil {
		return fmt.Errorf("mail dispatcher: %w", err)
	}

	applicationRepo := repository.NewApplicationRepository(db)
	attachmentRepo := repository.NewAttachmentRepository(db)
	counterRepo := repository.NewCounterRepository(db)
	orphanRepo := repository.NewOrphanRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	formatter, err := service.NewIdentifierFormatter(cfg.Identifiers)
	if err != nil {
		return fmt.Errorf("identifier config: %w", err)
	}
	allocator := service.NewSequenceAllocator(counterRepo, formatter, metrics, logr)

	notifications := service.NewNotificationService(dispatcher, metrics, logr, service.NotificationConfig{
		SchoolName: cfg.Mail.FromName,
		Timeout:    cfg.Mail.Timeout,
		Workers:    cfg.Mail.Workers,
		Retries:    cfg.Mail.Retries,
		RetryDelay: cfg.Mail.RetryDelay,
	})
	notifications.Start(ctx)
	defer notifications.Stop()

	attachments := service.NewAttachmentService(applicationRepo, attachmentRepo, orphanRepo, store, logr, service.AttachmentServiceConfig{
		MaxFileSize:  cfg.Attachments.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Attachments.AllowedMIMEs,
		Roles:        cfg.Attachments.Roles,
		Timeout:      cfg.Storage.Timeout,
		APIPrefix:    cfg.APIPrefix,
	},
		service.WithAttachmentSigner(storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)),
		service.WithAttachmentAudit(auditRepo),
		service.WithAttachmentMetrics(metrics),
		service.WithAttachmentTracer(tracer.Tracer()),
	)

	applications := service.NewApplicationService(db, applicationRepo, allocator, formatter, attachments, validate, logr,
		service.ApplicationServiceConfig{ExportBatchSize: cfg.ExportBatchSize},
		service.WithApplicationNotifier(notifications),
		service.WithApplicationCache(verifyCache),
		service.WithApplicationAudit(auditRepo),
		service.WithApplicationMetrics(metrics),
		service.WithApplicationTracer(tracer.Tracer()),
	)
	admitCards := service.NewAdmitCardService(applicationRepo, nil, attachments, notifications, validate, logr, cfg.Mail.FromName)
	auth := service.NewAuthService(userRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	sweeper := service.NewOrphanSweeper(orphanRepo, store, metrics, logr, service.OrphanSweeperConfig{
		Interval:    cfg.Orphans.SweepInterval,
		BatchSize:   cfg.Orphans.BatchSize,
		MaxAttempts: cfg.Orphans.MaxAttempts,
		Timeout:     cfg.Storage.Timeout,
	})
	go sweeper.Run(ctx)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(tracing.Middleware(tracer.Tracer()))
	r.Use(middleware.Metrics(metrics))

	checks := map[string]handler.ReadinessCheck{
		"database": func(ctx context.Context) error { return database.Ready(ctx, db) },
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	handler.Routes{
		Prefix:       cfg.APIPrefix,
		Tokens:       auth,
		Audit:        auditRepo,
		Auth:         handler.NewAuthHandler(auth),
		Public:       handler.NewPublicHandler(applications),
		Applications: handler.NewApplicationHandler(applications),
		Attachments:  handler.NewAttachmentHandler(attachments, cfg.Attachments.MaxFileSizeBytes),
		AdmitCards:   handler.NewAdmitCardHandler(admitCards),
		Counters:     handler.NewCounterHandler(applications),
		History:      handler.NewAuditHandler(auditRepo),
		Metrics:      handler.NewMetricsHandler(metrics, checks),
	}.Register(r)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func cacheRepository(client *redis.Client, cfg *config.Config, logr *zap.Logger) service.CacheRepository {
	if client != nil {
		return repository.NewCacheRepository(client, cfg.Cache.Namespace, logr)
	}
	return repository.NewLocalCacheRepository(cfg.Cache.LocalSize, cfg.Cache.VerifyTTL)
}

func objectStore(cfg *config.Config) (storage.ObjectStore, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverHTTP:
		return storage.NewHTTPObjectStore(cfg.Storage.Endpoint, cfg.Storage.BaseURL, cfg.Storage.Token, cfg.Storage.Timeout)
	default:
		return storage.NewLocalStorage(cfg.Storage.Dir, cfg.Storage.BaseURL)
	}
}

func mailDispatcher(cfg *config.Config, logr *zap.Logger) (mail.Dispatcher, error) {
	switch cfg.Mail.Driver {
	case config.MailDriverSendgrid:
		from := netmail.Address{Name: cfg.Mail.FromName, Address: cfg.Mail.FromAddress}
		return mail.NewSendgridDispatcher(cfg.Mail.SendgridAPIKey, from, cfg.Mail.SubjectPrefix)
	default:
		return mail.NewLogDispatcher(logr), nil
	}
}
