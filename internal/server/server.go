package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/oshitechglobal/creatordeck/internal/config"
	"github.com/oshitechglobal/creatordeck/internal/service"
)

type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	Feed              service.Feed
	AuthService       *service.AuthService
	ContentService    *service.ContentService
	ProgressService   *service.ProgressService
	JobService        *service.JobService
	MonitoringService *service.MonitoringService
	OutboxDispatcher  *service.OutboxDispatcher
	StatsUpdater      *service.StatsUpdater
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Realtime change feed: Redis-backed when configured, process-local
	// otherwise
	var feed service.Feed
	if cfg.Redis.Addr != "" {
		feed, err = service.NewRedisFeed(&cfg.Redis, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize change feed: %w", err)
		}
	} else {
		feed = service.NewLocalFeed()
	}

	// Initialize services
	webhookClient := service.NewWebhookClient(logger)
	monitoringService := service.NewMonitoringService(db, logger)
	contentService := service.NewContentService(db, logger, feed)
	progressService := service.NewProgressService(db, logger, feed, &cfg.Progress)
	monitoringService.Bind(contentService, progressService)
	jobService := service.NewJobService(db, logger, webhookClient, feed, monitoringService, &cfg.Webhooks)
	authService := service.NewAuthService(logger, &cfg.Auth)
	outboxDispatcher := service.NewOutboxDispatcher(db, logger, webhookClient, monitoringService, &cfg.Outbox, &cfg.Webhooks)

	refreshInterval, err := time.ParseDuration(cfg.Dashboard.RefreshInterval)
	if err != nil {
		logger.Warn("Invalid dashboard refresh interval, using 5m",
			zap.String("interval", cfg.Dashboard.RefreshInterval), zap.Error(err))
		refreshInterval = 5 * time.Minute
	}
	statsUpdater := service.NewStatsUpdater(monitoringService, logger, refreshInterval, cfg.Dashboard.RetentionDays)

	// Create router
	router := gin.New()

	// Create server
	srv := &Server{
		Config:            cfg,
		DB:                db,
		Router:            router,
		Logger:            logger,
		Feed:              feed,
		AuthService:       authService,
		ContentService:    contentService,
		ProgressService:   progressService,
		JobService:        jobService,
		MonitoringService: monitoringService,
		OutboxDispatcher:  outboxDispatcher,
		StatsUpdater:      statsUpdater,
	}

	// Setup middleware and routes
	srv.setupMiddleware()
	srv.setupRoutes()

	return srv, nil
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.Router.Use(gin.Recovery())

	// Logger middleware
	s.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	// CORS middleware
	s.Router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Owner resolution
	s.Router.Use(s.AuthService.AuthMiddleware())
}

func (s *Server) setupRoutes() {
	// Health check
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	// API routes
	api := s.Router.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/setup", s.handleAuthSetup)
			auth.POST("/login", s.handleAuthLogin)
		}

		content := api.Group("/content")
		{
			content.GET("", s.handleListContent)
			content.POST("", s.handleCreateContent)
			content.GET("/stages", s.handleStageCounts)
			content.GET("/:id", s.handleGetContent)
			content.PUT("/:id", s.handleUpdateContent)
			content.DELETE("/:id", s.handleDeleteContent)
			content.POST("/:id/move", s.handleMoveContent)
			content.POST("/:id/advance", s.handleAdvanceContent)
		}

		progress := api.Group("/progress")
		{
			progress.GET("", s.handleListProgress)
			progress.POST("", s.handleSaveProgress)
			progress.DELETE("/:id", s.handleDeleteProgress)
			progress.GET("/stats", s.handleProgressStats)
			progress.GET("/growth", s.handleProgressGrowth)
		}

		jobs := api.Group("/jobs/:kind")
		{
			jobs.GET("", s.handleListJobs)
			jobs.POST("", s.handleSubmitJob)
			jobs.GET("/:id", s.handleGetJob)
			jobs.DELETE("/:id", s.handleDeleteJob)
			jobs.POST("/:id/result", s.handleJobResult)
		}

		api.GET("/events", s.handleEvents)
		api.GET("/dashboard", s.handleDashboard)
	}
}

func (s *Server) Start(ctx context.Context) error {
	// Start the change-feed forwarder and background workers
	if err := s.Feed.Start(ctx); err != nil {
		return fmt.Errorf("failed to start change feed: %w", err)
	}
	s.OutboxDispatcher.Start(ctx)
	if s.Config.Dashboard.IsEnabled() {
		s.StatsUpdater.Start(ctx)
	}

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop background workers first
	s.OutboxDispatcher.Stop()
	if s.Config.Dashboard.IsEnabled() {
		s.StatsUpdater.Stop()
	}
	if err := s.Feed.Close(); err != nil {
		s.Logger.Warn("Failed to close change feed", zap.Error(err))
	}

	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}
