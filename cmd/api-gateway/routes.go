package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/qr-attendance-gateway/internal/handler"
	"github.com/noah-isme/qr-attendance-gateway/internal/identity"
	"github.com/noah-isme/qr-attendance-gateway/internal/middleware"
	"github.com/noah-isme/qr-attendance-gateway/internal/service"
	"github.com/noah-isme/qr-attendance-gateway/pkg/config"
	"github.com/noah-isme/qr-attendance-gateway/pkg/logger"
	corsmiddleware "github.com/noah-isme/qr-attendance-gateway/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/qr-attendance-gateway/pkg/middleware/requestid"
	"github.com/noah-isme/qr-attendance-gateway/pkg/storage"
)

type routeDeps struct {
	metrics     *service.MetricsService
	validator   *identity.TokenValidator
	controller  *service.SessionController
	exporter    *service.RosterExportService
	allocations *service.AllocationService
	history     *service.SessionHistoryService
	localImages *storage.LocalUploader
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routeDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics, "/metrics", "/health"))

	metricsHandler := handler.NewMetricsHandler(deps.metrics)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if deps.localImages != nil {
		r.GET("/qr-images/:token", handler.NewQRImageHandler(deps.localImages).Serve)
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	auth := []gin.HandlerFunc{middleware.JWT(deps.validator)}
	if !cfg.JWT.Required {
		auth = []gin.HandlerFunc{middleware.OptionalJWT(deps.validator), middleware.RequireCredential()}
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/metrics/summary", metricsHandler.Snapshot)

	teacherScoped := api.Group("")
	teacherScoped.Use(auth...)
	teacherScoped.Use(middleware.Teacher(identity.DefaultResolver(middleware.ContextUserKey)), middleware.WithResponseMeta())

	teacherHandler := handler.NewTeacherHandler(deps.allocations)
	teacherScoped.GET("/teacher/allocations", teacherHandler.Allocations)
	teacherScoped.GET("/teacher/time-slots", teacherHandler.TimeSlots)

	sessions := handler.NewQRSessionHandler(deps.controller, deps.exporter)
	qr := teacherScoped.Group("/qr-sessions")
	qr.PUT("/scope", sessions.SetScope)
	qr.POST("", sessions.Generate)
	qr.POST("/existing/use", sessions.UseExisting)
	qr.GET("/current", sessions.Current)
	qr.POST("/current/stop", sessions.Stop)
	qr.POST("/current/refresh", sessions.Refresh)
	qr.GET("/current/roster/export", sessions.ExportRoster)
	qr.DELETE("/workspace", sessions.Release)
	qr.GET("/history", handler.NewHistoryHandler(deps.history).List)

	return r
}
