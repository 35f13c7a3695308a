package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"duosync/internal/core/domain"
	"duosync/internal/core/services"
	httphandlers "duosync/internal/handlers/http"
	"duosync/internal/infrastructure/control"
	"duosync/internal/infrastructure/middleware"
	"duosync/internal/infrastructure/monitoring"
	repositories "duosync/internal/infrastructure/repositories"
	webrtcinfra "duosync/internal/infrastructure/webrtc"
	"duosync/pkg/config"
	"duosync/pkg/logger"
	"duosync/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/duosync/config.yaml",
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
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "duosync",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}

	identityRepo := repoFactory.CreateIdentityRepository()
	presenceRepo := repoFactory.CreatePresenceRepository()
	mailboxRepo := repoFactory.CreateMailboxRepository()

	healthChecker := monitoring.NewHealthChecker()
	if client := repoFactory.RedisClient(); client != nil {
		healthChecker.AddRedisCheck(client, 2*time.Second)
	}
	healthChecker.AddRegistryCheck(identityRepo, 2*time.Second)

	// Core services.
	qualityService := services.NewQualityService()
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	identityService := services.NewIdentityService(identityRepo, log)
	presenceService := services.NewPresenceService(
		presenceRepo,
		cfg.Presence.HeartbeatInterval,
		cfg.Presence.Lease,
		log,
	)
	signalingService := services.NewSignalingService(mailboxRepo, log)

	broker := control.NewBroker(log)
	engineFactory := webrtcinfra.NewEngineFactory(cfg, qualityService, log)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	// Resolve this device's Duo ID before anything else registers it.
	account := domain.AccountID(cfg.Identity.Account)
	myID, err := identityService.GetOrCreateID(rootCtx, account)
	if err != nil {
		log.Fatalw("failed to resolve local Duo ID", "account", account, "error", err)
	}
	log.Infow("local identity resolved", "duo_id", myID, "device", cfg.Presence.DeviceName)

	sessionService := services.NewSessionService(
		myID,
		cfg.Presence.DeviceName,
		signalingService,
		presenceService,
		engineFactory,
		broker,
		cfg.Session.HeartbeatInterval,
		log,
	)
	libraryService := services.NewLibraryService(
		sessionService,
		broker,
		cfg.Session.SyncSettleDelay,
		cfg.Session.SyncRetryDelay,
		cfg.Session.SyncRetryAttempts,
		log,
	)
	chatService := services.NewChatService(
		sessionService,
		broker,
		cfg.Presence.DeviceName,
		cfg.Session.TypingIdleTimeout,
		log,
	)
	playbackBridge := control.NewPlaybackBridge(broker, log)
	sessionService.Attach(libraryService, chatService, playbackBridge)

	// Metrics: the collector is fed directly by the core services and from
	// the event stream.
	collector := monitoring.NewPrometheusCollector()
	sessionService.SetMetrics(collector)
	libraryService.SetMetrics(collector)
	metricsSub := broker.Subscribe()
	go monitoring.RecordEvents(rootCtx, metricsSub, collector)

	// Go online and start watching the mailbox.
	if err := presenceService.Start(rootCtx, myID, cfg.Presence.DeviceName); err != nil {
		log.Fatalw("failed to publish presence", "error", err)
	}
	go func() {
		if err := sessionService.Run(rootCtx); err != nil && rootCtx.Err() == nil {
			log.Errorw("session watcher stopped", "error", err)
		}
	}()

	wsServer := control.NewWebSocketServer(
		broker,
		sessionService,
		chatService,
		libraryService,
		cfg.Control.PingInterval,
		cfg.Control.PongTimeout,
		cfg.Control.WriteTimeout,
		cfg.RateLimiting.MessagesPerSecond,
		cfg.RateLimiting.MessageBurst,
		log,
	)

	authHandler := httphandlers.NewAuthHandler(authService, cfg.Auth.AccessTokenTTL)
	duoHandler := httphandlers.NewDuoHandler(
		identityService,
		presenceService,
		sessionService,
		libraryService,
		chatService,
	)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	authHandler.SetupRoutes(router)

	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(authService))
	duoHandler.SetupRoutes(api)
	api.GET("/ws", gin.WrapF(wsServer.HandleWebSocket))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
			"duoId":     myID,
			"clients":   wsServer.ClientCount(),
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		status := healthChecker.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Control.Address,
		Handler:      router,
		ReadTimeout:  cfg.Control.ReadTimeout,
		WriteTimeout: cfg.Control.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting duosync control server on %s", cfg.Control.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down duosync...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Control.ShutdownTimeout)
	defer shutdownCancel()

	// End the session cleanly so the partner sees DISCONNECT rather than a
	// transport failure.
	if sessionService.Snapshot().Active() {
		if err := sessionService.Disconnect(shutdownCtx); err != nil {
			log.Warnw("failed to disconnect session", "error", err)
		}
	}

	// Synchronous offline write; a crash would rely on the lease instead.
	if err := presenceService.Stop(shutdownCtx); err != nil {
		log.Warnw("failed to write offline presence", "error", err)
	}

	cancelRoot()
	broker.Unsubscribe(metricsSub)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	}

	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer", "error", err)
	}

	log.Info("duosync stopped")
}
