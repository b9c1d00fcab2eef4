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

	_ "github.com/lineup-tv/lineup-api/api/swagger"
	"github.com/lineup-tv/lineup-api/internal/engine"
	"github.com/lineup-tv/lineup-api/internal/handler"
	"github.com/lineup-tv/lineup-api/internal/middleware"
	"github.com/lineup-tv/lineup-api/internal/repository"
	"github.com/lineup-tv/lineup-api/internal/service"
	"github.com/lineup-tv/lineup-api/pkg/cache"
	"github.com/lineup-tv/lineup-api/pkg/config"
	"github.com/lineup-tv/lineup-api/pkg/database"
	"github.com/lineup-tv/lineup-api/pkg/jobs"
	"github.com/lineup-tv/lineup-api/pkg/logger"
	corsmiddleware "github.com/lineup-tv/lineup-api/pkg/middleware/cors"
	reqidmiddleware "github.com/lineup-tv/lineup-api/pkg/middleware/requestid"
	"github.com/lineup-tv/lineup-api/pkg/storage"
)

// @title Lineup TV API
// @version 1.0.0
// @description Channel programming API: media library, programming profiles, lineup generation and scoring analysis.
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	// Redis only backs the analysis cache; the API runs fine without it.
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, analysis cache disabled", "error", err)
		redisClient = nil
	}

	profileRepo := repository.NewProfileRepository(db)
	mediaRepo := repository.NewMediaRepository(db)
	lineupRepo := repository.NewLineupRepository(db)
	jobRepo := repository.NewLineupJobRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsService := service.NewMetricsService()
	cacheEnabled := cfg.Analysis.CacheEnabled && redisClient != nil
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.Analysis.CacheTTL, logr, cacheEnabled)

	validate := validator.New()

	tuning := engine.Tuning{
		Epsilon:           cfg.Engine.Epsilon,
		DurationTolerance: cfg.Engine.DurationTolerance,
		RecencyWindow:     cfg.Engine.RecencyWindow,
		BlockbusterRating: cfg.Engine.BlockbusterRating,
	}

	programmerService := service.NewProgrammerService(
		profileRepo,
		mediaRepo,
		lineupRepo,
		tuning,
		cacheService,
		metricsService,
		validate,
		logr,
		service.ProgrammerConfig{
			ProposalTTL:       cfg.Generator.ProposalTTL,
			DefaultIterations: cfg.Engine.DefaultIterations,
			MaxSyncIterations: cfg.Engine.MaxSyncIterations,
			Parallelism:       cfg.Engine.Parallelism,
			AnalysisCacheTTL:  cfg.Analysis.CacheTTL,
		},
	)
	profileService := service.NewProfileService(profileRepo, cacheService, validate, logr)
	libraryService := service.NewLibraryService(mediaRepo, validate, logr)
	lineupService := service.NewLineupService(lineupRepo, logr)

	exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export storage", "dir", cfg.Exports.StorageDir, "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportService := service.NewExportService(lineupRepo, exportStore, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logr, nil, nil)

	worker := service.NewJobWorker(jobRepo, programmerService, exportService, metricsService, cfg.Generator.WorkerRetries, logr)
	queue := jobs.NewQueue("lineup-jobs", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Generator.WorkerConcurrency,
		MaxRetries: cfg.Generator.WorkerRetries,
		Logger:     logr,
	})
	jobService := service.NewJobService(jobRepo, profileRepo, lineupRepo, queue, exportService, logr, service.JobServiceConfig{
		ResultTTL:       cfg.Exports.SignedURLTTL,
		CleanupInterval: cfg.Exports.CleanupInterval,
		MaxRetries:      cfg.Generator.WorkerRetries,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue.Start(ctx)
	jobService.RecoverPendingJobs(ctx)
	jobService.StartCleanup(ctx)

	programmerHandler := handler.NewProgrammerHandler(programmerService, jobService)
	profileHandler := handler.NewProfileHandler(profileService)
	libraryHandler := handler.NewLibraryHandler(libraryService)
	lineupHandler := handler.NewLineupHandler(lineupService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		api.GET("/stats", metricsHandler.Stats)

		profiles := api.Group("/profiles")
		{
			profiles.GET("", profileHandler.List)
			profiles.POST("", profileHandler.Create)
			profiles.GET("/:id", profileHandler.Get)
			profiles.PUT("/:id", profileHandler.Update)
			profiles.DELETE("/:id", profileHandler.Delete)
		}

		library := api.Group("/library")
		{
			library.GET("", libraryHandler.List)
			library.POST("", libraryHandler.Create)
			library.POST("/import", libraryHandler.Import)
			library.GET("/:id", libraryHandler.Get)
			library.PUT("/:id", libraryHandler.Update)
			library.DELETE("/:id", libraryHandler.Delete)
		}

		lineups := api.Group("/lineups")
		{
			lineups.POST("/generate", programmerHandler.Generate)
			lineups.POST("/save", programmerHandler.Save)
			lineups.POST("/analyze", programmerHandler.Analyze)
			lineups.GET("", lineupHandler.List)
			lineups.GET("/:id", lineupHandler.Get)
			lineups.DELETE("/:id", lineupHandler.Delete)
		}

		api.POST("/jobs/lineups", programmerHandler.EnqueueGeneration)
		api.GET("/jobs/lineups/:id", programmerHandler.JobStatus)

		if cfg.Exports.Enabled {
			lineups.POST("/:id/export", programmerHandler.Export)
			api.GET("/export/:token", programmerHandler.Download)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
	queue.Stop()

	if redisClient != nil {
		_ = redisClient.Close()
	}
	logr.Sugar().Infow("server stopped")
}
