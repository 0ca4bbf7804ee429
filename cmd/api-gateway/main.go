package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/qr-attendance-gateway/api/swagger"
	"github.com/noah-isme/qr-attendance-gateway/internal/identity"
	"github.com/noah-isme/qr-attendance-gateway/internal/repository"
	"github.com/noah-isme/qr-attendance-gateway/internal/service"
	"github.com/noah-isme/qr-attendance-gateway/pkg/cache"
	"github.com/noah-isme/qr-attendance-gateway/pkg/config"
	"github.com/noah-isme/qr-attendance-gateway/pkg/database"
	"github.com/noah-isme/qr-attendance-gateway/pkg/logger"
	"github.com/noah-isme/qr-attendance-gateway/pkg/storage"
)

// @title QR Attendance Gateway
// @version 1.0.0
// @description Teacher-facing gateway for QR attendance sessions
// @BasePath /api/v1
// @schemes http https

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := service.NewMetricsService()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	}
	cacheSvc := service.NewCacheService(
		repository.NewCacheRepository(redisClient, "qr:", logr),
		metrics, cfg.Redis.CacheTTL, logr, redisClient != nil,
	)

	var db *sqlx.DB
	var historyRepo *repository.SessionHistoryRepository
	if cfg.History.Enabled {
		db, err = database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			logr.Fatal("failed to connect to postgres", zap.Error(err))
		}
		if err := database.Migrate(ctx, db); err != nil {
			logr.Fatal("failed to migrate session history schema", zap.Error(err))
		}
		historyRepo = repository.NewSessionHistoryRepository(db)
	}
	var history *service.SessionHistoryService
	if historyRepo != nil {
		history = service.NewSessionHistoryService(historyRepo, cfg.History.WorkerRetries, logr)
	} else {
		history = service.NewSessionHistoryService(nil, 0, logr)
	}
	history.Start(ctx)

	college := repository.NewCollegeAPIRepository(cfg.College, nil, logr)
	uploader, localImages, err := newUploader(cfg, college)
	if err != nil {
		logr.Fatal("failed to configure qr image storage", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}

	validate := validator.New()
	loc := cfg.QRSession.Location()
	allocations := service.NewAllocationService(college, cacheSvc, metrics, cfg.Redis.CacheTTL, logr)
	builder := service.NewSessionBuilder(
		college, allocations, service.NewPNGRenderer(cfg.QRSession.ImageSize), uploader, validate,
		service.SessionBuilderConfig{
			JoinOrigin:      cfg.QRSession.JoinOrigin,
			JoinPath:        cfg.QRSession.JoinPath,
			DefaultDuration: cfg.QRSession.DefaultDuration,
			Location:        loc,
		},
		metrics, logr,
	)
	resolver := service.NewSessionResolver(college, validate, loc, metrics, logr)
	controller := service.NewSessionController(builder, resolver, college, history, cacheSvc, metrics,
		service.SessionControllerConfig{PollInterval: cfg.QRSession.PollInterval, IdleTTL: cfg.QRSession.IdleTTL},
		logr,
	)
	exporter := service.NewRosterExportService(controller, loc)

	var reaper *service.WorkspaceReaper
	if localImages != nil {
		reaper, err = service.NewWorkspaceReaper(cfg.QRSession.ReaperSchedule, controller, localImages, cfg.Storage.LocalRetention, logr)
	} else {
		reaper, err = service.NewWorkspaceReaper(cfg.QRSession.ReaperSchedule, controller, nil, 0, logr)
	}
	if err != nil {
		logr.Fatal("invalid reaper schedule", zap.String("schedule", cfg.QRSession.ReaperSchedule), zap.Error(err))
	}
	reaper.Start()

	r := newRouter(cfg, logr, routeDeps{
		metrics:     metrics,
		validator:   identity.NewTokenValidator(cfg.JWT.Secret),
		controller:  controller,
		exporter:    exporter,
		allocations: allocations,
		history:     history,
		localImages: localImages,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown incomplete", zap.Error(err))
	}
	reaper.Stop()
	controller.Shutdown()
	history.Stop()
	closeStores(logr, redisClient, db)
}

// newUploader picks the QR image store. The returned LocalUploader is non-nil
// only for the local driver, whose files the gateway serves and prunes itself.
func newUploader(cfg *config.Config, college *repository.CollegeAPIRepository) (storage.Uploader, *storage.LocalUploader, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverOSS:
		up, err := storage.NewOSSUploader(cfg.Storage)
		if err != nil {
			return nil, nil, err
		}
		return up, nil, nil
	case config.StorageDriverLocal:
		store, err := storage.NewLocalStorage(cfg.Storage.LocalDir)
		if err != nil {
			return nil, nil, err
		}
		signer := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret)
		local := storage.NewLocalUploader(store, signer, cfg.Storage.PublicBaseURL, cfg.Storage.SignedURLGrace)
		return local, local, nil
	case config.StorageDriverCollege, "":
		return college, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func closeStores(logr *zap.Logger, redisClient *redis.Client, db *sqlx.DB) {
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logr.Warn("redis close failed", zap.Error(err))
		}
	}
	if db != nil {
		if err := db.Close(); err != nil {
			logr.Warn("postgres close failed", zap.Error(err))
		}
	}
}
