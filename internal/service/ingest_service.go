package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"whatsapp-broadcast-platform/internal/core/domain"
	"whatsapp-broadcast-platform/internal/core/ports"
	"whatsapp-broadcast-platform/pkg/phone"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const dedupTTL = 24 * time.Hour

// IngestServiceImpl implements ports.IngestService. The pipeline never
// returns an error: every failure mode is absorbed into the audit log and the
// provider is acknowledged with success regardless, because a visible failure
// would trigger its retry storm.
type IngestServiceImpl struct {
	channelRepo      ports.ChannelRepository
	webhookEventRepo ports.WebhookEventRepository
	contactRepo      ports.ContactRepository
	conversationRepo ports.ConversationRepository
	messageRepo      ports.MessageRepository
	recipientRepo    ports.RecipientRepository
	gateway          ports.Gateway
	signature        ports.SignatureVerifier
	dedup            ports.DedupCache
	defaultCC        string
	log              zerolog.Logger

	now func() time.Time
}

// NewIngestService creates a new IngestServiceImpl.
func NewIngestService(
	channelRepo ports.ChannelRepository,
	webhookEventRepo ports.WebhookEventRepository,
	contactRepo ports.ContactRepository,
	conversationRepo ports.ConversationRepository,
	messageRepo ports.MessageRepository,
	recipientRepo ports.RecipientRepository,
	gateway ports.Gateway,
	signature ports.SignatureVerifier,
	dedup ports.DedupCache,
	defaultCountryCode string,
	log zerolog.Logger,
) *IngestServiceImpl {
	return &IngestServiceImpl{
		channelRepo:      channelRepo,
		webhookEventRepo: webhookEventRepo,
		contactRepo:      contactRepo,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		recipientRepo:    recipientRepo,
		gateway:          gateway,
		signature:        signature,
		dedup:            dedup,
		defaultCC:        defaultCountryCode,
		log:              log,
		now:              time.Now,
	}
}

// Ingest runs the pipeline for one raw webhook delivery.
func (s *IngestServiceImpl) Ingest(ctx context.Context, req ports.IngestRequest) ports.IngestOutcome {
	log := s.log.With().
		Str("request_id", req.RequestID).
		Str("channel_id", req.ChannelID.String()).
		Logger()

	channel, err := s.channelRepo.GetByID(ctx, req.ChannelID)
	if err != nil {
		log.Error().Err(err).Msg("channel lookup failed, dropping webhook")
		return ports.IngestOutcome{Dropped: "channel lookup failed"}
	}
	if channel == nil {
		log.Warn().Msg("webhook for unknown channel, dropping")
		return ports.IngestOutcome{Dropped: "unknown channel"}
	}

	if len(req.Body) == 0 || !json.Valid(req.Body) {
		// Providers send connectivity pings in arbitrary formats. Keep the
		// raw body for diagnosis, skip processing.
		log.Info().Str("body", truncate(string(req.Body), 256)).Msg("non-JSON webhook body, skipping")
		return ports.IngestOutcome{Dropped: "invalid body"}
	}

	// Signature verification is warn-only: dropping a real customer message
	// over a misconfigured secret is worse than processing an unsigned one.
	if channel.WebhookSecret != "" {
		if !s.signature.Verify(channel.WebhookSecret, req.Body, req.Signature) {
			log.Warn().Msg("webhook signature verification failed, processing anyway")
		}
	}

	// Audit first: even a crash below leaves a record of the delivery.
	event := &domain.WebhookEvent{
		ID:         uuid.New(),
		ChannelID:  &channel.ID,
		RequestID:  req.RequestID,
		Payload:    string(req.Body),
		ReceivedAt: s.now().UTC(),
	}
	if err := s.webhookEventRepo.Create(ctx, event); err != nil {
		log.Error().Err(err).Msg("failed to persist webhook audit row")
	}

	// Any valid webhook is proof the subscription is live.
	if err := s.channelRepo.MarkConnected(ctx, channel.ID, s.now().UTC()); err != nil {
		log.Warn().Err(err).Msg("failed to mark channel connected")
	}

	events, err := s.gateway.ParseWebhook(req.Body)
	if err != nil {
		s.finishAudit(ctx, event.ID, strPtr(err.Error()), 0, log)
		log.Warn().Err(err).Msg("webhook parse failed")
		return ports.IngestOutcome{Dropped: "unparseable payload"}
	}

	accepted := 0
	var firstErr error
	for _, ev := range events {
		var procErr error
		switch ev.Kind {
		case domain.EventKindInboundMessage:
			procErr = s.processInbound(ctx, channel, ev, log)
		case domain.EventKindStatusUpdate:
			procErr = s.processStatusUpdate(ctx, channel, ev, log)
		}
		if procErr != nil {
			if firstErr == nil {
				firstErr = procErr
			}
			log.Error().Err(procErr).Str("kind", string(ev.Kind)).Msg("webhook event processing failed")
			continue
		}
		accepted++
	}

	var auditErr *string
	if firstErr != nil {
		auditErr = strPtr(firstErr.Error())
	}
	s.finishAudit(ctx, event.ID, auditErr, accepted, log)

	return ports.IngestOutcome{Accepted: accepted}
}

// processInbound runs the three-step upsert chain for a customer message.
// Each step short-circuits on failure.
func (s *IngestServiceImpl) processInbound(ctx context.Context, channel *domain.Channel, ev domain.NormalizedEvent, log zerolog.Logger) error {
	// Fast-path dedup; best effort, the DB unique index is authoritative.
	dedupKey := domain.DedupKey(channel.TenantID, ev.ProviderMessageID)
	if seen, err := s.dedup.Seen(ctx, dedupKey); err == nil && seen {
		log.Debug().Str("provider_message_id", ev.ProviderMessageID).Msg("duplicate inbound message, skipping")
		return nil
	}

	normalized, err := phone.Normalize(ev.FromPhone, s.defaultCC)
	if err != nil {
		return fmt.Errorf("normalize sender phone %q: %w", ev.FromPhone, err)
	}

	at := ev.Timestamp
	if at.IsZero() {
		at = s.now().UTC()
	}

	// Step 1: contact.
	contact, err := s.contactRepo.Upsert(ctx, &domain.Contact{
		ID:                uuid.New(),
		TenantID:          channel.TenantID,
		Phone:             normalized,
		Name:              ev.ContactName,
		LastInteractionAt: &at,
		CreatedAt:         s.now().UTC(),
		UpdatedAt:         s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("upsert contact: %w", err)
	}

	// Step 2: conversation. Inbound always reopens.
	conv, err := s.conversationRepo.GetByChannelContact(ctx, channel.ID, contact.ID)
	if err != nil {
		return fmt.Errorf("find conversation: %w", err)
	}
	if conv == nil {
		conv = &domain.Conversation{
			ID:            uuid.New(),
			TenantID:      channel.TenantID,
			ChannelID:     channel.ID,
			ContactID:     contact.ID,
			Status:        domain.ConversationStatusOpen,
			UnreadCount:   1,
			LastInboundAt: &at,
			LastMessageAt: &at,
			CreatedAt:     s.now().UTC(),
			UpdatedAt:     s.now().UTC(),
		}
		if err := s.conversationRepo.Create(ctx, conv); err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}
	} else if err := s.conversationRepo.RecordInbound(ctx, conv.ID, at); err != nil {
		return fmt.Errorf("record inbound: %w", err)
	}

	// Step 3: idempotent message insert.
	msg := &domain.Message{
		ID:                uuid.New(),
		TenantID:          channel.TenantID,
		ConversationID:    conv.ID,
		Direction:         domain.DirectionInbound,
		Body:              ev.Body,
		Status:            domain.MessageStatusDelivered,
		ProviderMessageID: ev.ProviderMessageID,
		CreatedAt:         s.now().UTC(),
		UpdatedAt:         s.now().UTC(),
	}
	if err := s.messageRepo.Create(ctx, msg); err != nil {
		if errors.Is(err, domain.ErrDuplicateMessage) {
			log.Debug().Str("provider_message_id", ev.ProviderMessageID).Msg("inbound message already stored")
			return nil
		}
		return fmt.Errorf("insert message: %w", err)
	}

	if err := s.dedup.Mark(ctx, dedupKey, dedupTTL); err != nil {
		log.Warn().Err(err).Msg("dedup cache mark failed")
	}

	log.Info().
		Str("conversation_id", conv.ID.String()).
		Str("contact_id", contact.ID.String()).
		Msg("inbound message stored")
	return nil
}

// processStatusUpdate applies one delivery-status event to the outbound
// message and, when it belongs to a campaign send, to the recipient row.
func (s *IngestServiceImpl) processStatusUpdate(ctx context.Context, channel *domain.Channel, ev domain.NormalizedEvent, log zerolog.Logger) error {
	msg, err := s.messageRepo.GetByProviderMessageID(ctx, channel.TenantID, ev.ProviderMessageID, domain.DirectionOutbound)
	if err != nil {
		return fmt.Errorf("find message: %w", err)
	}

	at := ev.Timestamp
	if at.IsZero() {
		at = s.now().UTC()
	}

	if msg == nil {
		// Campaign sends have a recipient row but no conversation message.
		// An update matching neither is an orphan: expected under eventual
		// consistency, never an error, but worth a trace.
		if !s.updateRecipient(ctx, ev, at, log) {
			log.Warn().
				Str("provider_message_id", ev.ProviderMessageID).
				Str("status", string(ev.Status)).
				Msg("orphan status update, no matching message or recipient")
		}
		return nil
	}

	if !domain.Supersedes(ev.Status, msg.Status) {
		log.Debug().
			Str("provider_message_id", ev.ProviderMessageID).
			Str("current", string(msg.Status)).
			Str("incoming", string(ev.Status)).
			Msg("stale status update ignored")
		return nil
	}

	var errCode *string
	if ev.Status == domain.MessageStatusFailed && ev.ErrorCode != "" {
		errCode = strPtr(ev.ErrorCode)
	}
	if err := s.messageRepo.UpdateStatus(ctx, msg.ID, ev.Status, at, errCode, nil); err != nil {
		return fmt.Errorf("update message status: %w", err)
	}

	s.updateRecipient(ctx, ev, at, log)
	return nil
}

// updateRecipient advances campaign recipient delivery markers and reports
// whether any row matched. Best effort: the provider message may not belong
// to a campaign at all, and failed transitions stay with the dispatcher.
func (s *IngestServiceImpl) updateRecipient(ctx context.Context, ev domain.NormalizedEvent, at time.Time, log zerolog.Logger) bool {
	var status domain.RecipientStatus
	switch ev.Status {
	case domain.MessageStatusDelivered:
		status = domain.RecipientStatusDelivered
	case domain.MessageStatusRead:
		status = domain.RecipientStatusRead
	default:
		return false
	}
	n, err := s.recipientRepo.UpdateDeliveryStatus(ctx, ev.ProviderMessageID, status, at)
	if err != nil {
		log.Warn().Err(err).Str("provider_message_id", ev.ProviderMessageID).Msg("recipient delivery update failed")
		return true
	}
	return n > 0
}

func (s *IngestServiceImpl) finishAudit(ctx context.Context, eventID uuid.UUID, procErr *string, accepted int, log zerolog.Logger) {
	if err := s.webhookEventRepo.MarkProcessed(ctx, eventID, procErr, accepted, s.now().UTC()); err != nil {
		log.Warn().Err(err).Msg("failed to finalize webhook audit row")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func strPtr(s string) *string { return &s }
