package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avocatt/accident-analyzer/config"
	"github.com/avocatt/accident-analyzer/handler"
	"github.com/avocatt/accident-analyzer/middleware"
	"github.com/avocatt/accident-analyzer/pkg/logger"
	"github.com/avocatt/accident-analyzer/service"
	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("configuration loaded successfully")

	// Initialize services
	normalizer := service.NewNormalizer(&cfg.Normalize)
	if err := normalizer.AssertReady(); err != nil {
		slog.Error("normalizer dependencies missing", "error", err)
		os.Exit(1)
	}

	blobs, err := service.NewBlobStore(&cfg.Storage)
	if err != nil {
		slog.Error("failed to initialize blob storage", "error", err)
		os.Exit(1)
	}

	renderer, err := service.NewBriefingRenderer(&cfg.Briefing)
	if err != nil {
		slog.Error("failed to initialize briefing renderer", "error", err)
		os.Exit(1)
	}

	intake := service.NewIntakeValidator(&cfg.Intake)
	inference := service.NewInferenceClient(&cfg.Inference)
	fault := service.NewFaultEngine(&cfg.Fault)
	pipeline := service.NewPipeline(&cfg.Pipeline, normalizer, inference, fault, renderer, blobs)
	store := service.NewSessionStore(&cfg.Store)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(cfg)
	analyzeHandler := handler.NewAnalyzeHandler(intake, pipeline, store)
	briefingHandler := handler.NewBriefingHandler(store, blobs)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New() // Use New() instead of Default() to avoid default middleware
	router.MaxMultipartMemory = int64(cfg.Intake.MaxFileSizeMB) << 20

	// Add custom middleware
	router.Use(middleware.RequestID())                // Request ID for tracing
	router.Use(middleware.Recovery())                 // Panic recovery
	router.Use(middleware.RequestLogger())            // Access logging
	router.Use(corsMiddleware())                      // CORS
	router.Use(middleware.RateLimit(60, time.Minute)) // Rate limiting: 60 requests per minute

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	// Public routes
	api := router.Group("/api")
	{
		api.POST("/auth/login", authHandler.Login)
	}

	// Protected routes
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(&cfg.Auth))
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)
		protected.POST("/analyze", analyzeHandler.Analyze)
		protected.GET("/sessions/:session_id", briefingHandler.Get)
		protected.GET("/sessions/:session_id/status", briefingHandler.GetStatus)
		protected.GET("/briefing/:session_id", briefingHandler.GetHTML)
		protected.GET("/briefing/:session_id/pdf", briefingHandler.GetPDF)
		protected.DELETE("/sessions/:session_id", briefingHandler.Delete)
	}

	// Create server. Uploads plus a full inference round trip can take a
	// while, so the write timeout covers the whole pipeline run.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: time.Duration(cfg.Pipeline.RunTimeout) + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited gracefully")
}

// corsMiddleware handles CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
