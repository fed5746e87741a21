package handler

import (
	"whatsapp-broadcast-platform/internal/adapter/http/middleware"
	redisStore "whatsapp-broadcast-platform/internal/adapter/storage/redis"
	"whatsapp-broadcast-platform/internal/core/domain"
	"whatsapp-broadcast-platform/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc        ports.AuthService
	ChannelSvc     ports.ChannelService
	ContactSvc     ports.ContactService
	CampaignSvc    ports.CampaignService
	DispatchSvc    ports.DispatchService
	InboxSvc       ports.InboxService
	IngestSvc      ports.IngestService
	TemplateRepo   ports.TemplateRepository
	ChannelRepo    ports.ChannelRepository
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	DefaultSpeed   domain.DispatchSpeed
	WebhookPerMin  int64
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Swagger documentation
	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// --- Public webhook endpoint (provider-facing, never errs) ---
	webhookHandler := NewWebhookHandler(deps.IngestSvc, deps.ChannelRepo, deps.Logger)
	webhooks := r.Group("/webhooks")
	{
		webhooks.GET("/wa", webhookHandler.Verify)
		webhooks.HEAD("/wa", webhookHandler.Probe)
		if deps.RateLimitStore != nil && deps.WebhookPerMin > 0 {
			webhooks.POST("/wa",
				middleware.WebhookRateLimiter(deps.RateLimitStore, deps.WebhookPerMin, deps.Logger),
				webhookHandler.Receive)
		} else {
			webhooks.POST("/wa", webhookHandler.Receive)
		}
	}

	// API v1 routes
	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	auth := v1.Group("/auth")
	{
		auth.POST("/register", rl("auth_register"), authHandler.Register)
		auth.POST("/login", rl("auth_login"), authHandler.Login)
	}

	// --- JWT-authenticated management routes ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)

	channelHandler := NewChannelHandler(deps.ChannelSvc)
	channels := v1.Group("/channels", jwtAuth)
	{
		channels.POST("", rl("management"), channelHandler.Create)
		channels.GET("", rl("management"), channelHandler.List)
	}

	contactHandler := NewContactHandler(deps.ContactSvc)
	contacts := v1.Group("/contacts", jwtAuth)
	{
		contacts.POST("", rl("management"), contactHandler.Create)
		contacts.POST("/import", rl("contacts_import"), contactHandler.Import)
	}

	templateHandler := NewTemplateHandler(deps.TemplateRepo)
	templates := v1.Group("/templates", jwtAuth)
	{
		templates.POST("", rl("management"), templateHandler.Create)
		templates.GET("", rl("management"), templateHandler.List)
	}

	campaignHandler := NewCampaignHandler(deps.CampaignSvc, deps.DispatchSvc, deps.DefaultSpeed)
	campaigns := v1.Group("/campaigns", jwtAuth)
	{
		campaigns.POST("", rl("management"), campaignHandler.Create)
		campaigns.GET("", rl("management"), campaignHandler.List)
		campaigns.GET("/:id", rl("management"), campaignHandler.Get)
		campaigns.POST("/:id/start", rl("management"), campaignHandler.Start)
		campaigns.POST("/:id/pause", rl("management"), campaignHandler.Pause)
		campaigns.POST("/:id/resume", rl("management"), campaignHandler.Resume)
		campaigns.POST("/:id/cancel", rl("management"), campaignHandler.Cancel)
		campaigns.POST("/:id/retry-failed", rl("management"), campaignHandler.RetryFailed)
		campaigns.POST("/:id/dispatch", rl("campaign_dispatch"), campaignHandler.Dispatch)
	}

	inboxHandler := NewInboxHandler(deps.InboxSvc)
	conversations := v1.Group("/conversations", jwtAuth)
	{
		conversations.GET("", rl("management"), inboxHandler.ListConversations)
		conversations.GET("/:id/messages", rl("management"), inboxHandler.ListMessages)
		conversations.POST("/:id/messages", rl("management"), inboxHandler.SendMessage)
		conversations.POST("/:id/read", rl("management"), inboxHandler.MarkRead)
	}

	return r
}
