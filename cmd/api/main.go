package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whatsapp-broadcast-platform/config"
	"whatsapp-broadcast-platform/internal/adapter/gateway"
	httpHandler "whatsapp-broadcast-platform/internal/adapter/http/handler"
	pgStorage "whatsapp-broadcast-platform/internal/adapter/storage/postgres"
	redisStorage "whatsapp-broadcast-platform/internal/adapter/storage/redis"
	"whatsapp-broadcast-platform/internal/core/domain"
	"whatsapp-broadcast-platform/internal/core/ports"
	"whatsapp-broadcast-platform/internal/service"
	"whatsapp-broadcast-platform/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting WhatsApp Broadcast Platform")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	tenantRepo := pgStorage.NewTenantRepo(pool)
	channelRepo := pgStorage.NewChannelRepo(pool)
	contactRepo := pgStorage.NewContactRepo(pool)
	templateRepo := pgStorage.NewTemplateRepo(pool)
	campaignRepo := pgStorage.NewCampaignRepo(pool)
	recipientRepo := pgStorage.NewRecipientRepo(pool)
	conversationRepo := pgStorage.NewConversationRepo(pool)
	messageRepo := pgStorage.NewMessageRepo(pool)
	webhookEventRepo := pgStorage.NewWebhookEventRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	dedupCache := redisStorage.NewDedupCache(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize core services
	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}
	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	// BSP gateway client
	bsp := gateway.New(cfg.Gateway.BaseURL, &http.Client{Timeout: cfg.Gateway.Timeout}, log)

	// Initialize business services
	authSvc := service.NewAuthService(tenantRepo, hashSvc, tokenSvc, transactor, log)
	channelSvc := service.NewChannelService(channelRepo, encSvc, cfg.Gateway.DefaultCountryCode, log)
	contactSvc := service.NewContactService(contactRepo, cfg.Gateway.DefaultCountryCode, log)
	campaignSvc := service.NewCampaignService(campaignRepo, recipientRepo, channelRepo, templateRepo, contactRepo, transactor, log)
	dispatchSvc := service.NewDispatchService(
		campaignRepo,
		recipientRepo,
		channelRepo,
		templateRepo,
		contactRepo,
		channelSvc,
		bsp,
		cfg.Gateway,
		cfg.Dispatch,
		log,
	)
	inboxSvc := service.NewInboxService(conversationRepo, messageRepo, contactRepo, channelRepo, channelSvc, bsp, log)
	ingestSvc := service.NewIngestService(
		channelRepo,
		webhookEventRepo,
		contactRepo,
		conversationRepo,
		messageRepo,
		recipientRepo,
		bsp,
		sigSvc,
		dedupCache,
		cfg.Gateway.DefaultCountryCode,
		log,
	)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Load OpenAPI spec for Swagger UI
	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	// In-process dispatch poller. External pollers can drive the dispatch
	// endpoint instead when this is off.
	pollerCtx, stopPoller := context.WithCancel(ctx)
	var poller *service.DispatchPoller
	if cfg.Dispatch.PollerOn {
		poller = service.NewDispatchPoller(campaignRepo, dispatchSvc, cfg.Dispatch, log)
		go poller.Run(pollerCtx)
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:        authSvc,
		ChannelSvc:     channelSvc,
		ContactSvc:     contactSvc,
		CampaignSvc:    campaignSvc,
		DispatchSvc:    dispatchSvc,
		InboxSvc:       inboxSvc,
		IngestSvc:      ingestSvc,
		TemplateRepo:   templateRepo,
		ChannelRepo:    channelRepo,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		DefaultSpeed:   defaultSpeed(cfg.Dispatch.DefaultSpeed),
		WebhookPerMin:  cfg.Webhook.RatePerMinute,
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	// Stop the poller first so no new batches start mid-shutdown; in-flight
	// recipient progress is durable either way.
	stopPoller()
	if poller != nil {
		<-poller.Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// defaultSpeed maps the configured speed to a valid dispatch speed.
func defaultSpeed(s string) domain.DispatchSpeed {
	speed := domain.DispatchSpeed(s)
	if !speed.Valid() {
		return domain.SpeedNormal
	}
	return speed
}
