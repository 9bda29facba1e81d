package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campusforge/timetable-scheduler/api/swagger"
	internalhandler "github.com/campusforge/timetable-scheduler/internal/handler"
	internalmiddleware "github.com/campusforge/timetable-scheduler/internal/middleware"
	"github.com/campusforge/timetable-scheduler/internal/repository"
	"github.com/campusforge/timetable-scheduler/internal/service"
	"github.com/campusforge/timetable-scheduler/internal/solver"
	"github.com/campusforge/timetable-scheduler/pkg/cache"
	"github.com/campusforge/timetable-scheduler/pkg/config"
	"github.com/campusforge/timetable-scheduler/pkg/database"
	"github.com/campusforge/timetable-scheduler/pkg/jobs"
	"github.com/campusforge/timetable-scheduler/pkg/logger"
	corsmiddleware "github.com/campusforge/timetable-scheduler/pkg/middleware/cors"
	reqidmiddleware "github.com/campusforge/timetable-scheduler/pkg/middleware/requestid"
)

// @title Timetable Scheduler API
// @version 1.0.0
// @description Automated university timetable generation, validation and incremental conflict checking.
// @BasePath /
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	metricsSvc := service.NewMetricsService()
	metricsHandler := internalhandler.NewMetricsHandler(metricsSvc)

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to initialise database", "error", err)
	}
	defer db.Close()

	var cacheRepo service.CacheRepository
	if client, err := cache.NewRedis(cfg.Redis); err != nil {
		logr.Sugar().Warnw("result cache disabled", "error", err)
	} else {
		defer client.Close()
		cacheRepo = repository.NewCacheRepository(client, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Solver.ResultCacheTTL, logr, cacheRepo != nil)

	timetableRepo := repository.NewTimetableRepository(db)
	timetableSvc := service.NewTimetableService(
		timetableRepo,
		cacheSvc,
		metricsSvc,
		logr,
		solver.Params{
			InitialTemperature: cfg.Solver.InitialTemperature,
			CoolingRate:        cfg.Solver.CoolingRate,
			MinTemperature:     cfg.Solver.MinTemperature,
		},
		service.TimeLimits{
			Default: cfg.Solver.DefaultTimeLimit,
			Min:     cfg.Solver.MinTimeLimit,
			Max:     cfg.Solver.MaxTimeLimit,
		},
		cfg.Solver.ResultCacheTTL,
		jobs.QueueConfig{
			Workers:    cfg.Jobs.Workers,
			BufferSize: cfg.Jobs.BufferSize,
			MaxRetries: cfg.Jobs.MaxRetries,
			RetryDelay: cfg.Jobs.RetryDelay,
			Logger:     logr,
		},
	)

	serverCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	timetableSvc.Start(serverCtx)
	defer timetableSvc.Stop()

	timetableHandler := internalhandler.NewTimetableHandler(timetableSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.GET("/metrics/snapshot", metricsHandler.Snapshot)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	timetables := api.Group("/timetables")
	timetables.Use(internalmiddleware.WithResponseMeta())
	timetables.POST("", timetableHandler.Create)
	timetables.GET("/:id", timetableHandler.Result)
	timetables.POST("/validate", timetableHandler.Validate)
	timetables.POST("/:id/check-edit", timetableHandler.CheckEdit)
	timetables.POST("/:id/publish", timetableHandler.Publish)
	timetables.POST("/:id/archive", timetableHandler.Archive)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
