package service

import (
	"context"
	"fmt"
	"time"

	"whatsapp-broadcast-platform/internal/core/domain"
	"whatsapp-broadcast-platform/internal/core/ports"
	"whatsapp-broadcast-platform/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// InboxServiceImpl implements ports.InboxService.
type InboxServiceImpl struct {
	conversationRepo ports.ConversationRepository
	messageRepo      ports.MessageRepository
	contactRepo      ports.ContactRepository
	channelRepo      ports.ChannelRepository
	channelSvc       ports.ChannelService
	gateway          ports.Gateway
	log              zerolog.Logger

	now func() time.Time
}

// NewInboxService creates a new InboxServiceImpl.
func NewInboxService(
	conversationRepo ports.ConversationRepository,
	messageRepo ports.MessageRepository,
	contactRepo ports.ContactRepository,
	channelRepo ports.ChannelRepository,
	channelSvc ports.ChannelService,
	gateway ports.Gateway,
	log zerolog.Logger,
) *InboxServiceImpl {
	return &InboxServiceImpl{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		contactRepo:      contactRepo,
		channelRepo:      channelRepo,
		channelSvc:       channelSvc,
		gateway:          gateway,
		log:              log,
		now:              time.Now,
	}
}

// SendText sends a free-form reply. Free text is only deliverable inside the
// 24-hour window after the customer's last inbound message; outside it the
// provider requires an approved template.
func (s *InboxServiceImpl) SendText(ctx context.Context, tenantID, conversationID uuid.UUID, body string) (*domain.Message, error) {
	if body == "" {
		return nil, apperror.Validation("message body is required")
	}

	conv, err := s.ownedConversation(ctx, tenantID, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.WindowOpen(s.now()) {
		return nil, apperror.ErrServiceWindowClosed()
	}

	channel, err := s.channelRepo.GetByID(ctx, conv.ChannelID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("load channel: %w", err))
	}
	if channel == nil {
		return nil, apperror.ErrChannelNotFound()
	}
	if !channel.SendReady() {
		return nil, apperror.ErrChannelNotConnected()
	}

	contact, err := s.contactRepo.GetByID(ctx, conv.ContactID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("load contact: %w", err))
	}
	if contact == nil {
		return nil, apperror.ErrContactNotFound()
	}

	creds, err := s.channelSvc.SendCredentials(ctx, channel)
	if err != nil {
		return nil, err
	}

	// The row exists queued before the gateway is called, so a failed send
	// still leaves an auditable message. Only the sent transition waits for
	// gateway confirmation.
	now := s.now().UTC()
	msg := &domain.Message{
		ID:             uuid.New(),
		TenantID:       tenantID,
		ConversationID: conversationID,
		Direction:      domain.DirectionOutbound,
		Body:           body,
		Status:         domain.MessageStatusQueued,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("store outbound message: %w", err))
	}

	sendRes, err := s.gateway.SendText(ctx, creds, contact.Phone, body)
	if err != nil {
		detail := err.Error()
		if uerr := s.messageRepo.UpdateStatus(ctx, msg.ID, domain.MessageStatusFailed, s.now().UTC(), nil, &detail); uerr != nil {
			s.log.Error().Err(uerr).Str("message_id", msg.ID.String()).Msg("failed to mark message failed")
		}
		s.log.Warn().Err(err).
			Str("conversation_id", conversationID.String()).
			Msg("inbox send failed")
		return nil, apperror.ErrSendFailed(err)
	}

	sentAt := s.now().UTC()
	if err := s.messageRepo.MarkSent(ctx, msg.ID, sendRes.ProviderMessageID, sentAt); err != nil {
		// The send went out; status webhooks for it would be orphans without
		// the provider ID on the row.
		s.log.Error().Err(err).Str("message_id", msg.ID.String()).Msg("failed to mark message sent")
	}
	msg.Status = domain.MessageStatusSent
	msg.ProviderMessageID = sendRes.ProviderMessageID
	msg.SentAt = &sentAt

	if err := s.conversationRepo.RecordOutbound(ctx, conversationID, now); err != nil {
		s.log.Warn().Err(err).Str("conversation_id", conversationID.String()).Msg("failed to record outbound")
	}

	s.log.Info().
		Str("conversation_id", conversationID.String()).
		Str("provider_message_id", sendRes.ProviderMessageID).
		Msg("inbox message sent")
	return msg, nil
}

// ListConversations fetches the tenant inbox, most recently active first.
func (s *InboxServiceImpl) ListConversations(ctx context.Context, tenantID uuid.UUID, page, pageSize int) ([]domain.Conversation, int64, error) {
	conversations, total, err := s.conversationRepo.List(ctx, tenantID, page, pageSize)
	if err != nil {
		return nil, 0, apperror.ErrDatabaseError(fmt.Errorf("list conversations: %w", err))
	}
	return conversations, total, nil
}

// ListMessages fetches one conversation's messages.
func (s *InboxServiceImpl) ListMessages(ctx context.Context, tenantID, conversationID uuid.UUID, page, pageSize int) ([]domain.Message, int64, error) {
	if _, err := s.ownedConversation(ctx, tenantID, conversationID); err != nil {
		return nil, 0, err
	}
	messages, total, err := s.messageRepo.ListByConversation(ctx, conversationID, page, pageSize)
	if err != nil {
		return nil, 0, apperror.ErrDatabaseError(fmt.Errorf("list messages: %w", err))
	}
	return messages, total, nil
}

// MarkRead zeroes the unread counter.
func (s *InboxServiceImpl) MarkRead(ctx context.Context, tenantID, conversationID uuid.UUID) error {
	if _, err := s.ownedConversation(ctx, tenantID, conversationID); err != nil {
		return err
	}
	if err := s.conversationRepo.MarkRead(ctx, conversationID); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("mark read: %w", err))
	}
	return nil
}

func (s *InboxServiceImpl) ownedConversation(ctx context.Context, tenantID, id uuid.UUID) (*domain.Conversation, error) {
	conv, err := s.conversationRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("load conversation: %w", err))
	}
	if conv == nil || conv.TenantID != tenantID {
		return nil, apperror.ErrConversationNotFound()
	}
	return conv, nil
}
