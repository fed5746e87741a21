package middleware

import (
	"net/http"
	"strconv"
	"time"

	"whatsapp-broadcast-platform/internal/adapter/http/dto"
	redisStore "whatsapp-broadcast-platform/internal/adapter/storage/redis"
	"whatsapp-broadcast-platform/pkg/apperror"
	"whatsapp-broadcast-platform/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// DefaultRateLimitRules returns the per-endpoint-group limits for the
// management API.
func DefaultRateLimitRules() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		"auth_login":        {Limit: 10, Window: time.Minute},
		"auth_register":     {Limit: 5, Window: time.Hour},
		"management":        {Limit: 120, Window: time.Minute},
		"campaign_dispatch": {Limit: 30, Window: time.Minute},
		"contacts_import":   {Limit: 10, Window: time.Minute},
	}
}

// RateLimiter creates a rate-limiting middleware for a management endpoint
// group. A redis outage degrades open: the request is allowed and a warning
// logged, because throttling is protection, not correctness.
func RateLimiter(store *redisStore.RateLimitStore, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := extractIdentifier(c) + ":" + group

		result, err := store.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			retryAfter := result.ResetAt - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.Error(c, apperror.ErrRateLimitExceeded())
			c.Abort()
			return
		}

		c.Next()
	}
}

// WebhookRateLimiter throttles the public ingestion endpoint per channel.
// A limited delivery is still acknowledged with 200 and an empty ack: the
// provider must never see an error, it only re-delivers on non-2xx. Redis
// being down degrades open like the management limiter.
func WebhookRateLimiter(store *redisStore.RateLimitStore, perMinute int64, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		channelID := c.Query("channel_id")
		if channelID == "" {
			c.Next()
			return
		}

		result, err := store.Allow(c.Request.Context(), "webhook:"+channelID, perMinute, time.Minute)
		if err != nil {
			log.Warn().Err(err).Str("channel_id", channelID).Msg("webhook rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		if !result.Allowed {
			log.Warn().Str("channel_id", channelID).Msg("webhook delivery rate limited")
			c.AbortWithStatusJSON(http.StatusOK, dto.WebhookAck{
				OK:        true,
				RequestID: c.GetString(response.RequestIDKey),
				Accepted:  0,
			})
			return
		}

		c.Next()
	}
}

// extractIdentifier determines the rate limit key source: authenticated
// requests are keyed by tenant, anonymous ones by client IP.
func extractIdentifier(c *gin.Context) string {
	if tid, exists := c.Get(CtxTenantID); exists {
		if id, ok := tid.(interface{ String() string }); ok {
			return id.String()
		}
	}
	return c.ClientIP()
}
