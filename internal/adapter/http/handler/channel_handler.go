package handler

import (
	"whatsapp-broadcast-platform/internal/adapter/http/dto"
	"whatsapp-broadcast-platform/internal/core/domain"
	"whatsapp-broadcast-platform/internal/core/ports"
	"whatsapp-broadcast-platform/pkg/apperror"
	"whatsapp-broadcast-platform/pkg/response"

	"github.com/gin-gonic/gin"
)

// ChannelHandler handles channel management endpoints.
type ChannelHandler struct {
	channelSvc ports.ChannelService
}

// NewChannelHandler creates a new ChannelHandler.
func NewChannelHandler(channelSvc ports.ChannelService) *ChannelHandler {
	return &ChannelHandler{channelSvc: channelSvc}
}

// Create handles POST /api/v1/channels.
func (h *ChannelHandler) Create(c *gin.Context) {
	tid, ok := tenantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.CreateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	// No SanitizeStruct here: the access token and webhook secret are opaque
	// credentials and must not be HTML-escaped.

	ch, err := h.channelSvc.Create(c.Request.Context(), ports.CreateChannelRequest{
		TenantID:       tid,
		Name:           req.Name,
		PhoneNumber:    req.PhoneNumber,
		SubscriptionID: req.SubscriptionID,
		AccessToken:    req.AccessToken,
		WebhookSecret:  req.WebhookSecret,
		VerifyToken:    req.VerifyToken,
		DailySendLimit: req.DailySendLimit,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toChannelResponse(ch))
}

// List handles GET /api/v1/channels.
func (h *ChannelHandler) List(c *gin.Context) {
	tid, ok := tenantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	channels, err := h.channelSvc.List(c.Request.Context(), tid)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.ChannelResponse, 0, len(channels))
	for i := range channels {
		items = append(items, toChannelResponse(&channels[i]))
	}
	response.OK(c, items)
}

func toChannelResponse(ch *domain.Channel) dto.ChannelResponse {
	return dto.ChannelResponse{
		ID:             ch.ID.String(),
		Name:           ch.Name,
		PhoneNumber:    ch.PhoneNumber,
		SubscriptionID: ch.SubscriptionID,
		Status:         string(ch.Status),
		DailySendLimit: ch.DailySendLimit,
		LastWebhookAt:  fmtTimePtr(ch.LastWebhookAt),
		CreatedAt:      fmtTime(ch.CreatedAt),
	}
}
