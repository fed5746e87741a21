package handler

import (
	"whatsapp-broadcast-platform/internal/adapter/http/dto"
	"whatsapp-broadcast-platform/internal/core/domain"
	"whatsapp-broadcast-platform/internal/core/ports"
	"whatsapp-broadcast-platform/pkg/apperror"
	"whatsapp-broadcast-platform/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// InboxHandler handles agent-side conversation endpoints.
type InboxHandler struct {
	inboxSvc ports.InboxService
}

// NewInboxHandler creates a new InboxHandler.
func NewInboxHandler(inboxSvc ports.InboxService) *InboxHandler {
	return &InboxHandler{inboxSvc: inboxSvc}
}

// ListConversations handles GET /api/v1/conversations.
func (h *InboxHandler) ListConversations(c *gin.Context) {
	tid, ok := tenantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	page, pageSize := pagination(c)
	conversations, total, err := h.inboxSvc.ListConversations(c.Request.Context(), tid, page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.ConversationResponse, 0, len(conversations))
	for i := range conversations {
		items = append(items, toConversationResponse(&conversations[i]))
	}
	response.Page(c, items, page, pageSize, total)
}

// ListMessages handles GET /api/v1/conversations/:id/messages.
func (h *InboxHandler) ListMessages(c *gin.Context) {
	tid, ok := tenantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid conversation id"))
		return
	}

	page, pageSize := pagination(c)
	messages, total, err := h.inboxSvc.ListMessages(c.Request.Context(), tid, id, page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.MessageResponse, 0, len(messages))
	for i := range messages {
		items = append(items, toMessageResponse(&messages[i]))
	}
	response.Page(c, items, page, pageSize, total)
}

// SendMessage handles POST /api/v1/conversations/:id/messages.
func (h *InboxHandler) SendMessage(c *gin.Context) {
	tid, ok := tenantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid conversation id"))
		return
	}

	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	msg, err := h.inboxSvc.SendText(c.Request.Context(), tid, id, req.Body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, toMessageResponse(msg))
}

// MarkRead handles POST /api/v1/conversations/:id/read.
func (h *InboxHandler) MarkRead(c *gin.Context) {
	tid, ok := tenantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid conversation id"))
		return
	}

	if err := h.inboxSvc.MarkRead(c.Request.Context(), tid, id); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"read": true})
}

func toConversationResponse(cv *domain.Conversation) dto.ConversationResponse {
	return dto.ConversationResponse{
		ID:            cv.ID.String(),
		ChannelID:     cv.ChannelID.String(),
		ContactID:     cv.ContactID.String(),
		Status:        string(cv.Status),
		UnreadCount:   cv.UnreadCount,
		LastInboundAt: fmtTimePtr(cv.LastInboundAt),
		LastMessageAt: fmtTimePtr(cv.LastMessageAt),
		CreatedAt:     fmtTime(cv.CreatedAt),
	}
}

func toMessageResponse(m *domain.Message) dto.MessageResponse {
	return dto.MessageResponse{
		ID:                m.ID.String(),
		ConversationID:    m.ConversationID.String(),
		Direction:         string(m.Direction),
		Body:              m.Body,
		Status:            string(m.Status),
		ProviderMessageID: m.ProviderMessageID,
		ErrorCode:         m.ErrorCode,
		SentAt:            fmtTimePtr(m.SentAt),
		DeliveredAt:       fmtTimePtr(m.DeliveredAt),
		ReadAt:            fmtTimePtr(m.ReadAt),
		CreatedAt:         fmtTime(m.CreatedAt),
	}
}
