package handler

import (
	"io"
	"net/http"
	"time"

	"whatsapp-broadcast-platform/internal/adapter/http/dto"
	"whatsapp-broadcast-platform/internal/core/ports"
	"whatsapp-broadcast-platform/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WebhookHandler is the public ingestion endpoint. It answers 200 to every
// delivery no matter what happened internally: a non-2xx response makes the
// provider re-deliver and eventually disable the subscription, which is far
// worse than losing one event to a logged failure.
type WebhookHandler struct {
	ingestSvc   ports.IngestService
	channelRepo ports.ChannelRepository
	log         zerolog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(ingestSvc ports.IngestService, channelRepo ports.ChannelRepository, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		ingestSvc:   ingestSvc,
		channelRepo: channelRepo,
		log:         log,
	}
}

// Verify handles GET /webhooks/wa. With hub.mode=subscribe it performs the
// provider's subscription handshake; without it, it answers as a liveness
// probe.
func (h *WebhookHandler) Verify(c *gin.Context) {
	if c.Query("hub.mode") != "subscribe" {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	challenge := c.Query("hub.challenge")
	verifyToken := c.Query("hub.verify_token")

	channelID, err := uuid.Parse(c.Query("channel_id"))
	if err != nil {
		h.log.Warn().Str("channel_id", c.Query("channel_id")).Msg("handshake with invalid channel id")
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	ch, err := h.channelRepo.GetByID(c.Request.Context(), channelID)
	if err != nil || ch == nil {
		h.log.Warn().Err(err).Str("channel_id", channelID.String()).Msg("handshake for unknown channel")
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	if ch.VerifyToken != "" && ch.VerifyToken != verifyToken {
		h.log.Warn().Str("channel_id", channelID.String()).Msg("handshake verify token mismatch")
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	c.String(http.StatusOK, challenge)
}

// Probe handles HEAD /webhooks/wa.
func (h *WebhookHandler) Probe(c *gin.Context) {
	c.Status(http.StatusOK)
}

// Receive handles POST /webhooks/wa. The ingestion pipeline absorbs every
// internal failure, so the only outcomes here are variations of 200.
func (h *WebhookHandler) Receive(c *gin.Context) {
	start := time.Now()
	requestID := c.GetString(response.RequestIDKey)

	ack := func(accepted int) {
		c.JSON(http.StatusOK, dto.WebhookAck{
			OK:        true,
			RequestID: requestID,
			Accepted:  accepted,
			LatencyMS: time.Since(start).Milliseconds(),
		})
	}

	// No channel identifier means a connectivity probe, not a delivery.
	rawChannelID := c.Query("channel_id")
	if rawChannelID == "" {
		ack(0)
		return
	}
	channelID, err := uuid.Parse(rawChannelID)
	if err != nil {
		h.log.Warn().Str("channel_id", rawChannelID).Str("request_id", requestID).Msg("webhook with malformed channel id")
		ack(0)
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.log.Warn().Err(err).Str("request_id", requestID).Msg("webhook body read failed")
		ack(0)
		return
	}

	outcome := h.ingestSvc.Ingest(c.Request.Context(), ports.IngestRequest{
		ChannelID: channelID,
		RequestID: requestID,
		Body:      body,
		Signature: c.GetHeader("X-Hub-Signature-256"),
	})
	if outcome.Dropped != "" {
		h.log.Info().
			Str("request_id", requestID).
			Str("channel_id", channelID.String()).
			Str("reason", outcome.Dropped).
			Msg("webhook delivery dropped")
	}

	ack(outcome.Accepted)
}
