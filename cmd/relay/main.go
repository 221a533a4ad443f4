package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httphandlers "peercall/internal/handlers/http"
	"peercall/internal/infrastructure/credentials"
	"peercall/internal/infrastructure/middleware"
	"peercall/internal/infrastructure/monitoring"
	"peercall/internal/infrastructure/push"
	repositories "peercall/internal/infrastructure/repositories"
	"peercall/pkg/config"
	"peercall/pkg/logger"
	"peercall/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/peercall/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Initialize tracing
	tracerProvider, err := tracing.Init(tracing.DefaultConfig())
	if err != nil {
		log.Warnw("failed to initialize tracing", "error", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tracerProvider.Shutdown(ctx)
	}()

	// Initialize repository factory (health checks, history if redis is on)
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	// Initialize monitoring
	collector := monitoring.NewPrometheusCollector()

	// Dependency health checks back the readiness endpoint
	healthChecker := monitoring.NewHealthChecker()
	if client := repoFactory.RedisClient(); client != nil {
		healthChecker.AddRedisCheck(client, cfg.Monitoring.MetricsInterval, 2*time.Second)
	}
	healthChecker.AddRepositoryCheck(repoFactory.CreateHistoryRepository(),
		cfg.Monitoring.MetricsInterval, 2*time.Second)

	checksCtx, stopChecks := context.WithCancel(context.Background())
	defer stopChecks()
	healthChecker.StartBackgroundChecks(checksCtx)

	// Optional FCM fallback delivery for offline recipients
	var fallback push.FallbackSender
	if cfg.Push.FCM.Enabled {
		sender, err := push.NewFCMSender(&push.FCMConfig{
			CredentialsPath: cfg.Push.FCM.CredentialsFile,
			ProjectID:       cfg.Push.FCM.ProjectID,
		}, log)
		if err != nil {
			log.Fatalw("failed to initialize FCM sender", "error", err)
		}
		fallback = sender
		log.Info("FCM fallback delivery enabled")
	}

	// Signal hub
	hub := push.NewHub(fallback, collector, log)
	hub.SetPingInterval(cfg.Push.PingInterval)
	hub.SetPongTimeout(cfg.Push.PongTimeout)
	if cfg.RateLimiting.Enabled && cfg.RateLimiting.WebSocket.MaxMessageSizeBytes > 0 {
		hub.SetMaxMessageSize(cfg.RateLimiting.WebSocket.MaxMessageSizeBytes)
	}

	// Credential mint
	minter := credentials.NewTokenMinter(cfg.Auth.APIKey, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	// HTTP handlers
	tokenHandler := httphandlers.NewTokenHandler(minter)
	notifyHandler := httphandlers.NewNotifyHandler(hub, minter, log)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.RequestLoggingMiddleware(zapLogger))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.ErrorHandlerMiddleware(log))

	router.Use(middleware.OptionalAuthMiddleware(cfg.Auth.JWTSecret))

	tokenHandler.SetupRoutes(router)
	notifyHandler.SetupRoutes(router)

	// Websocket subscription endpoint
	router.GET("/ws", gin.WrapF(hub.HandleWebSocket))

	// Operational endpoints require a valid relay token
	admin := router.Group("/admin")
	admin.Use(middleware.AuthMiddleware(cfg.Auth.JWTSecret))
	admin.GET("/clients", func(c *gin.Context) {
		c.JSON(200, gin.H{"clients": hub.ConnectedClients()})
	})

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
			"clients":   len(hub.ConnectedClients()),
		})
	})
	router.GET("/health/hub", gin.WrapF(hub.HealthCheck))

	// Readiness endpoint
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := healthChecker.GetReadinessStatus(ctx)
		code := 200
		if status.Status != "healthy" {
			code = 503
		}
		c.JSON(code, status)
	})

	// Prometheus metrics endpoint
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting PeerCall relay on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signals or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down PeerCall relay...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	log.Info("PeerCall relay stopped")
}
