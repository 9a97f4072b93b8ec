package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/baxterlabs/pipeline-platform/cmd/mainconfig"
	"github.com/baxterlabs/pipeline-platform/internal/api/router"
	appconfig "github.com/baxterlabs/pipeline-platform/internal/config"
	"github.com/baxterlabs/pipeline-platform/internal/nda"
	"github.com/baxterlabs/pipeline-platform/internal/notify"
	"github.com/baxterlabs/pipeline-platform/internal/observability/metrics"
	"github.com/baxterlabs/pipeline-platform/internal/pipeline"
	"github.com/baxterlabs/pipeline-platform/internal/portal"
	"github.com/baxterlabs/pipeline-platform/internal/schedule"
	"github.com/baxterlabs/pipeline-platform/pkg/logging"
)

func main() {
	// Local development convenience; production uses real env vars.
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting pipeline-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	// Postgres
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	store := pipeline.NewStore(pool)

	// Redis backs the cross-tab request-nda lock.
	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	tokenLock := pipeline.NewTokenLock(redisClient, pipeline.DefaultLockTTL)

	// E-signature provider
	var envelopeSender nda.Sender
	if cfg.ESignBaseURL != "" && cfg.ESignAPIKey != "" {
		envelopeSender = nda.NewEnvelopeClient(cfg.ESignBaseURL, cfg.ESignAPIKey,
			nda.WithLogger(logger),
			nda.WithTemplateID(cfg.ESignTemplateID),
			nda.WithHTTPClient(&http.Client{Timeout: cfg.ESignSendTimeout}),
		)
	} else {
		logger.Warn("e-signature provider not configured, NDA sends disabled")
		envelopeSender = nda.NewDisabled(logger)
	}

	// Partner notifications over SES
	var emailSender notify.EmailSender
	if cfg.EmailFromAddress != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		emailSender = notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger)
	}

	// Pipeline service
	serviceOpts := []pipeline.ServiceOption{
		pipeline.WithServiceLogger(logger),
		pipeline.WithTokenLock(tokenLock),
		pipeline.WithEventCanceller(pipeline.NewWidgetAPIClient(cfg.SchedulerAPIKey, pipeline.WithWidgetLogger(logger))),
		pipeline.WithStaleCutoff(cfg.StaleBookingCutoff),
	}
	if emailSender != nil {
		serviceOpts = append(serviceOpts, pipeline.WithEmailSender(emailSender))
	}
	if cfg.PartnerNotifyEmail != "" {
		serviceOpts = append(serviceOpts, pipeline.WithPartnerEmail(cfg.PartnerNotifyEmail))
	}
	service := pipeline.NewService(store, envelopeSender, cfg.SchedulerEmbedURL, serviceOpts...)

	// Metrics
	registry := prometheus.NewRegistry()
	portalMetrics := metrics.NewPortalMetrics(registry)

	// Handlers. The portal reads sessions in-process by default; point
	// PORTAL_SESSION_BASE_URL at another instance to split the deployment.
	var sessionAPI portal.SessionAPI = pipeline.NewSessionGateway(service)
	if cfg.PortalSessionBaseURL != "" {
		sessionAPI = schedule.NewClient(cfg.PortalSessionBaseURL, schedule.WithLogger(logger))
	}
	pipelineHandler := pipeline.NewHandler(service, logger)
	portalHandler := portal.NewHandler(sessionAPI, logger,
		portal.WithHandlerDelays(cfg.ReconcileDelays),
		portal.WithHandlerFallbackDelay(cfg.FallbackRevealDelay),
		portal.WithHandlerMetrics(portalMetrics),
	)

	// Setup router. The portal frontend origin is always allowed.
	origins := cfg.CORSAllowedOrigins
	if cfg.FrontendURL != "" {
		origins = append(origins, cfg.FrontendURL)
	}
	routerCfg := &router.Config{
		Logger:             logger,
		PipelineHandler:    pipelineHandler,
		PortalHandler:      portalHandler,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: origins,
	}
	r := router.New(routerCfg)

	// Background sweep for bookings stuck in discovery_scheduled.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go pipeline.NewSweeper(service, time.Hour, logger).Run(sweepCtx)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stopSweep()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}
