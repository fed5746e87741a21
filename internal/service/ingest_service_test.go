package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"whatsapp-broadcast-platform/internal/core/domain"
	"whatsapp-broadcast-platform/internal/core/ports"
	"whatsapp-broadcast-platform/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type ingestTestDeps struct {
	svc              *IngestServiceImpl
	channelRepo      *mocks.MockChannelRepository
	webhookEventRepo *mocks.MockWebhookEventRepository
	contactRepo      *mocks.MockContactRepository
	conversationRepo *mocks.MockConversationRepository
	messageRepo      *mocks.MockMessageRepository
	recipientRepo    *mocks.MockRecipientRepository
	gateway          *mocks.MockGateway
	signature        *mocks.MockSignatureVerifier
	dedup            *mocks.MockDedupCache
	ctrl             *gomock.Controller
}

var ingestNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func setupIngestService(t *testing.T) *ingestTestDeps {
	ctrl := gomock.NewController(t)
	d := &ingestTestDeps{
		channelRepo:      mocks.NewMockChannelRepository(ctrl),
		webhookEventRepo: mocks.NewMockWebhookEventRepository(ctrl),
		contactRepo:      mocks.NewMockContactRepository(ctrl),
		conversationRepo: mocks.NewMockConversationRepository(ctrl),
		messageRepo:      mocks.NewMockMessageRepository(ctrl),
		recipientRepo:    mocks.NewMockRecipientRepository(ctrl),
		gateway:          mocks.NewMockGateway(ctrl),
		signature:        mocks.NewMockSignatureVerifier(ctrl),
		dedup:            mocks.NewMockDedupCache(ctrl),
		ctrl:             ctrl,
	}
	d.svc = NewIngestService(
		d.channelRepo, d.webhookEventRepo, d.contactRepo, d.conversationRepo,
		d.messageRepo, d.recipientRepo, d.gateway, d.signature, d.dedup,
		"254", zerolog.Nop(),
	)
	d.svc.now = func() time.Time { return ingestNow }
	return d
}

func ingestChannel() *domain.Channel {
	return &domain.Channel{
		ID:             uuid.New(),
		TenantID:       uuid.New(),
		Status:         domain.ChannelStatusDisconnected,
		AccessTokenEnc: "enc",
		SubscriptionID: "sub_1",
	}
}

// expectIntake wires the steps every accepted delivery goes through:
// channel lookup, audit insert, connectivity stamp.
func (d *ingestTestDeps) expectIntake(ctx context.Context, channel *domain.Channel) {
	d.channelRepo.EXPECT().GetByID(ctx, channel.ID).Return(channel, nil)
	d.webhookEventRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)
	d.channelRepo.EXPECT().MarkConnected(ctx, channel.ID, ingestNow).Return(nil)
}

func TestIngestService_Ingest_InboundMessage(t *testing.T) {
	d := setupIngestService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	channel := ingestChannel()
	body := []byte(`{"entry":[]}`)
	d.expectIntake(ctx, channel)

	ev := domain.NormalizedEvent{
		Kind:              domain.EventKindInboundMessage,
		ProviderMessageID: "wamid.in.1",
		FromPhone:         "254712345678",
		ContactName:       "Alice",
		Body:              "hello",
		Timestamp:         ingestNow.Add(-time.Minute),
	}
	d.gateway.EXPECT().ParseWebhook(body).Return([]domain.NormalizedEvent{ev}, nil)

	dedupKey := domain.DedupKey(channel.TenantID, "wamid.in.1")
	d.dedup.EXPECT().Seen(ctx, dedupKey).Return(false, nil)

	contact := &domain.Contact{ID: uuid.New(), TenantID: channel.TenantID, Phone: "254712345678", Name: "Alice"}
	d.contactRepo.EXPECT().Upsert(ctx, gomock.Any()).Return(contact, nil)

	// No conversation yet: one is opened with the message unread.
	d.conversationRepo.EXPECT().GetByChannelContact(ctx, channel.ID, contact.ID).Return(nil, nil)
	d.conversationRepo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, conv *domain.Conversation) error {
			assert.Equal(t, domain.ConversationStatusOpen, conv.Status)
			assert.Equal(t, 1, conv.UnreadCount)
			assert.Equal(t, channel.TenantID, conv.TenantID)
			require.NotNil(t, conv.LastInboundAt)
			assert.Equal(t, ev.Timestamp, *conv.LastInboundAt)
			return nil
		})

	d.messageRepo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, msg *domain.Message) error {
			assert.Equal(t, domain.DirectionInbound, msg.Direction)
			assert.Equal(t, domain.MessageStatusDelivered, msg.Status)
			assert.Equal(t, "wamid.in.1", msg.ProviderMessageID)
			assert.Equal(t, "hello", msg.Body)
			return nil
		})
	d.dedup.EXPECT().Mark(ctx, dedupKey, dedupTTL).Return(nil)

	d.webhookEventRepo.EXPECT().MarkProcessed(ctx, gomock.Any(), nil, 1, ingestNow).Return(nil)

	outcome := d.svc.Ingest(ctx, ports.IngestRequest{ChannelID: channel.ID, RequestID: "req-1", Body: body})
	assert.Equal(t, 1, outcome.Accepted)
	assert.Empty(t, outcome.Dropped)
}

func TestIngestService_Ingest_InboundReopensConversation(t *testing.T) {
	d := setupIngestService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	channel := ingestChannel()
	body := []byte(`{"entry":[]}`)
	d.expectIntake(ctx, channel)

	ev := domain.NormalizedEvent{
		Kind:              domain.EventKindInboundMessage,
		ProviderMessageID: "wamid.in.2",
		FromPhone:         "0712345678", // local format, normalized on ingest
		Body:              "hi again",
		Timestamp:         ingestNow,
	}
	d.gateway.EXPECT().ParseWebhook(body).Return([]domain.NormalizedEvent{ev}, nil)
	d.dedup.EXPECT().Seen(ctx, gomock.Any()).Return(false, nil)

	contact := &domain.Contact{ID: uuid.New(), TenantID: channel.TenantID, Phone: "254712345678"}
	d.contactRepo.EXPECT().Upsert(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, c *domain.Contact) (*domain.Contact, error) {
			assert.Equal(t, "254712345678", c.Phone)
			return contact, nil
		})

	conv := &domain.Conversation{ID: uuid.New(), TenantID: channel.TenantID, Status: domain.ConversationStatusResolved}
	d.conversationRepo.EXPECT().GetByChannelContact(ctx, channel.ID, contact.ID).Return(conv, nil)
	d.conversationRepo.EXPECT().RecordInbound(ctx, conv.ID, ingestNow).Return(nil)

	d.messageRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)
	d.dedup.EXPECT().Mark(ctx, gomock.Any(), dedupTTL).Return(nil)
	d.webhookEventRepo.EXPECT().MarkProcessed(ctx, gomock.Any(), nil, 1, ingestNow).Return(nil)

	outcome := d.svc.Ingest(ctx, ports.IngestRequest{ChannelID: channel.ID, RequestID: "req-2", Body: body})
	assert.Equal(t, 1, outcome.Accepted)
}

func TestIngestService_Ingest_DuplicateViaCache(t *testing.T) {
	d := setupIngestService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	channel := ingestChannel()
	body := []byte(`{"entry":[]}`)
	d.expectIntake(ctx, channel)

	ev := domain.NormalizedEvent{
		Kind:              domain.EventKindInboundMessage,
		ProviderMessageID: "wamid.dup",
		FromPhone:         "254712345678",
	}
	d.gateway.EXPECT().ParseWebhook(body).Return([]domain.NormalizedEvent{ev}, nil)
	// Cache hit: the whole upsert chain is skipped.
	d.dedup.EXPECT().Seen(ctx, domain.DedupKey(channel.TenantID, "wamid.dup")).Return(true, nil)
	d.webhookEventRepo.EXPECT().MarkProcessed(ctx, gomock.Any(), nil, 1, ingestNow).Return(nil)

	outcome := d.svc.Ingest(ctx, ports.IngestRequest{ChannelID: channel.ID, RequestID: "req-3", Body: body})
	assert.Equal(t, 1, outcome.Accepted)
}

func TestIngestService_Ingest_DuplicateViaUniqueIndex(t *testing.T) {
	d := setupIngestService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	channel := ingestChannel()
	body := []byte(`{"entry":[]}`)
	d.expectIntake(ctx, channel)

	ev := domain.NormalizedEvent{
		Kind:              domain.EventKindInboundMessage,
		ProviderMessageID: "wamid.dup2",
		FromPhone:         "254712345678",
		Timestamp:         ingestNow,
	}
	d.gateway.EXPECT().ParseWebhook(body).Return([]domain.NormalizedEvent{ev}, nil)
	d.dedup.EXPECT().Seen(ctx, gomock.Any()).Return(false, nil)

	contact := &domain.Contact{ID: uuid.New(), TenantID: channel.TenantID}
	d.contactRepo.EXPECT().Upsert(ctx, gomock.Any()).Return(contact, nil)
	conv := &domain.Conversation{ID: uuid.New(), TenantID: channel.TenantID}
	d.conversationRepo.EXPECT().GetByChannelContact(ctx, channel.ID, contact.ID).Return(conv, nil)
	d.conversationRepo.EXPECT().RecordInbound(ctx, conv.ID, ingestNow).Return(nil)
	// The DB unique index catches what the cache missed; treated as success.
	d.messageRepo.EXPECT().Create(ctx, gomock.Any()).Return(domain.ErrDuplicateMessage)
	d.webhookEventRepo.EXPECT().MarkProcessed(ctx, gomock.Any(), nil, 1, ingestNow).Return(nil)

	outcome := d.svc.Ingest(ctx, ports.IngestRequest{ChannelID: channel.ID, RequestID: "req-4", Body: body})
	assert.Equal(t, 1, outcome.Accepted)
}

func TestIngestService_Ingest_StatusUpdateAdvancesLadder(t *testing.T) {
	d := setupIngestService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	channel := ingestChannel()
	body := []byte(`{"entry":[]}`)
	d.expectIntake(ctx, channel)

	at := ingestNow.Add(-30 * time.Second)
	ev := domain.NormalizedEvent{
		Kind:              domain.EventKindStatusUpdate,
		ProviderMessageID: "wamid.out.1",
		Status:            domain.MessageStatusDelivered,
		Timestamp:         at,
	}
	d.gateway.EXPECT().ParseWebhook(body).Return([]domain.NormalizedEvent{ev}, nil)

	msg := &domain.Message{ID: uuid.New(), TenantID: channel.TenantID, Status: domain.MessageStatusSent}
	d.messageRepo.EXPECT().
		GetByProviderMessageID(ctx, channel.TenantID, "wamid.out.1", domain.DirectionOutbound).
		Return(msg, nil)
	d.messageRepo.EXPECT().UpdateStatus(ctx, msg.ID, domain.MessageStatusDelivered, at, nil, nil).Return(nil)
	d.recipientRepo.EXPECT().UpdateDeliveryStatus(ctx, "wamid.out.1", domain.RecipientStatusDelivered, at).Return(int64(1), nil)
	d.webhookEventRepo.EXPECT().MarkProcessed(ctx, gomock.Any(), nil, 1, ingestNow).Return(nil)

	outcome := d.svc.Ingest(ctx, ports.IngestRequest{ChannelID: channel.ID, RequestID: "req-5", Body: body})
	assert.Equal(t, 1, outcome.Accepted)
}

func TestIngestService_Ingest_StaleStatusIgnored(t *testing.T) {
	d := setupIngestService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	channel := ingestChannel()
	body := []byte(`{"entry":[]}`)
	d.expectIntake(ctx, channel)

	// Read already recorded; a late delivered event must not regress it.
	ev := domain.NormalizedEvent{
		Kind:              domain.EventKindStatusUpdate,
		ProviderMessageID: "wamid.out.2",
		Status:            domain.MessageStatusDelivered,
		Timestamp:         ingestNow,
	}
	d.gateway.EXPECT().ParseWebhook(body).Return([]domain.NormalizedEvent{ev}, nil)

	msg := &domain.Message{ID: uuid.New(), TenantID: channel.TenantID, Status: domain.MessageStatusRead}
	d.messageRepo.EXPECT().
		GetByProviderMessageID(ctx, channel.TenantID, "wamid.out.2", domain.DirectionOutbound).
		Return(msg, nil)
	// No UpdateStatus, no recipient update.
	d.webhookEventRepo.EXPECT().MarkProcessed(ctx, gomock.Any(), nil, 1, ingestNow).Return(nil)

	outcome := d.svc.Ingest(ctx, ports.IngestRequest{ChannelID: channel.ID, RequestID: "req-6", Body: body})
	assert.Equal(t, 1, outcome.Accepted)
}

func TestIngestService_Ingest_FailedOverridesLadder(t *testing.T) {
	d := setupIngestService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	channel := ingestChannel()
	body := []byte(`{"entry":[]}`)
	d.expectIntake(ctx, channel)

	ev := domain.NormalizedEvent{
		Kind:              domain.EventKindStatusUpdate,
		ProviderMessageID: "wamid.out.3",
		Status:            domain.MessageStatusFailed,
		ErrorCode:         "131047",
		Timestamp:         ingestNow,
	}
	d.gateway.EXPECT().ParseWebhook(body).Return([]domain.NormalizedEvent{ev}, nil)

	msg := &domain.Message{ID: uuid.New(), TenantID: channel.TenantID, Status: domain.MessageStatusDelivered}
	d.messageRepo.EXPECT().
		GetByProviderMessageID(ctx, channel.TenantID, "wamid.out.3", domain.DirectionOutbound).
		Return(msg, nil)
	errCode := "131047"
	d.messageRepo.EXPECT().UpdateStatus(ctx, msg.ID, domain.MessageStatusFailed, ingestNow, &errCode, nil).Return(nil)
	d.webhookEventRepo.EXPECT().MarkProcessed(ctx, gomock.Any(), nil, 1, ingestNow).Return(nil)

	outcome := d.svc.Ingest(ctx, ports.IngestRequest{ChannelID: channel.ID, RequestID: "req-7", Body: body})
	assert.Equal(t, 1, outcome.Accepted)
}

func TestIngestService_Ingest_OrphanStatusUpdatesRecipient(t *testing.T) {
	d := setupIngestService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	channel := ingestChannel()
	body := []byte(`{"entry":[]}`)
	d.expectIntake(ctx, channel)

	// Campaign sends have a recipient row but no conversation message.
	ev := domain.NormalizedEvent{
		Kind:              domain.EventKindStatusUpdate,
		ProviderMessageID: "wamid.campaign.1",
		Status:            domain.MessageStatusRead,
		Timestamp:         ingestNow,
	}
	d.gateway.EXPECT().ParseWebhook(body).Return([]domain.NormalizedEvent{ev}, nil)
	d.messageRepo.EXPECT().
		GetByProviderMessageID(ctx, channel.TenantID, "wamid.campaign.1", domain.DirectionOutbound).
		Return(nil, nil)
	d.recipientRepo.EXPECT().
		UpdateDeliveryStatus(ctx, "wamid.campaign.1", domain.RecipientStatusRead, ingestNow).
		Return(int64(1), nil)
	d.webhookEventRepo.EXPECT().MarkProcessed(ctx, gomock.Any(), nil, 1, ingestNow).Return(nil)

	outcome := d.svc.Ingest(ctx, ports.IngestRequest{ChannelID: channel.ID, RequestID: "req-8", Body: body})
	assert.Equal(t, 1, outcome.Accepted)
}

func TestIngestService_Ingest_OrphanStatusUpdateLogged(t *testing.T) {
	d := setupIngestService(t)
	defer d.ctrl.Finish()

	var logs bytes.Buffer
	d.svc.log = zerolog.New(&logs)

	ctx := context.Background()
	channel := ingestChannel()
	body := []byte(`{"entry":[]}`)
	d.expectIntake(ctx, channel)

	// Neither a message nor a recipient row matches the provider ID.
	ev := domain.NormalizedEvent{
		Kind:              domain.EventKindStatusUpdate,
		ProviderMessageID: "wamid.ghost.1",
		Status:            domain.MessageStatusDelivered,
		Timestamp:         ingestNow,
	}
	d.gateway.EXPECT().ParseWebhook(body).Return([]domain.NormalizedEvent{ev}, nil)
	d.messageRepo.EXPECT().
		GetByProviderMessageID(ctx, channel.TenantID, "wamid.ghost.1", domain.DirectionOutbound).
		Return(nil, nil)
	d.recipientRepo.EXPECT().
		UpdateDeliveryStatus(ctx, "wamid.ghost.1", domain.RecipientStatusDelivered, ingestNow).
		Return(int64(0), nil)
	d.webhookEventRepo.EXPECT().MarkProcessed(ctx, gomock.Any(), nil, 1, ingestNow).Return(nil)

	outcome := d.svc.Ingest(ctx, ports.IngestRequest{ChannelID: channel.ID, RequestID: "req-14", Body: body})
	assert.Equal(t, 1, outcome.Accepted)
	assert.Contains(t, logs.String(), "orphan status update")
	assert.Contains(t, logs.String(), "wamid.ghost.1")
}

func TestIngestService_Ingest_UnknownChannelDropped(t *testing.T) {
	d := setupIngestService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	id := uuid.New()
	d.channelRepo.EXPECT().GetByID(ctx, id).Return(nil, nil)

	outcome := d.svc.Ingest(ctx, ports.IngestRequest{ChannelID: id, RequestID: "req-9", Body: []byte(`{}`)})
	assert.Equal(t, "unknown channel", outcome.Dropped)
	assert.Zero(t, outcome.Accepted)
}

func TestIngestService_Ingest_NonJSONBodyDropped(t *testing.T) {
	d := setupIngestService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	channel := ingestChannel()
	d.channelRepo.EXPECT().GetByID(ctx, channel.ID).Return(channel, nil)

	outcome := d.svc.Ingest(ctx, ports.IngestRequest{ChannelID: channel.ID, RequestID: "req-10", Body: []byte("PING")})
	assert.Equal(t, "invalid body", outcome.Dropped)
}

func TestIngestService_Ingest_BadSignatureProcessedAnyway(t *testing.T) {
	d := setupIngestService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	channel := ingestChannel()
	channel.WebhookSecret = "secret"
	body := []byte(`{"entry":[]}`)

	d.channelRepo.EXPECT().GetByID(ctx, channel.ID).Return(channel, nil)
	// Verification fails but is warn-only.
	d.signature.EXPECT().Verify("secret", body, "sha256=bad").Return(false)
	d.webhookEventRepo.EXPECT().Create(ctx, gomock.Any()).Return(nil)
	d.channelRepo.EXPECT().MarkConnected(ctx, channel.ID, ingestNow).Return(nil)
	d.gateway.EXPECT().ParseWebhook(body).Return(nil, nil)
	d.webhookEventRepo.EXPECT().MarkProcessed(ctx, gomock.Any(), nil, 0, ingestNow).Return(nil)

	outcome := d.svc.Ingest(ctx, ports.IngestRequest{
		ChannelID: channel.ID, RequestID: "req-11", Body: body, Signature: "sha256=bad",
	})
	assert.Empty(t, outcome.Dropped)
	assert.Zero(t, outcome.Accepted)
}

func TestIngestService_Ingest_UnparseablePayloadAudited(t *testing.T) {
	d := setupIngestService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	channel := ingestChannel()
	body := []byte(`{"unexpected":true}`)
	d.expectIntake(ctx, channel)

	parseErr := errors.New("unrecognized envelope")
	d.gateway.EXPECT().ParseWebhook(body).Return(nil, parseErr)
	d.webhookEventRepo.EXPECT().
		MarkProcessed(ctx, gomock.Any(), gomock.Not(gomock.Nil()), 0, ingestNow).
		Return(nil)

	outcome := d.svc.Ingest(ctx, ports.IngestRequest{ChannelID: channel.ID, RequestID: "req-12", Body: body})
	assert.Equal(t, "unparseable payload", outcome.Dropped)
}

func TestIngestService_Ingest_EventFailureRecordedNotFatal(t *testing.T) {
	d := setupIngestService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	channel := ingestChannel()
	body := []byte(`{"entry":[]}`)
	d.expectIntake(ctx, channel)

	events := []domain.NormalizedEvent{
		{Kind: domain.EventKindInboundMessage, ProviderMessageID: "wamid.a", FromPhone: "254712345678", Timestamp: ingestNow},
		{Kind: domain.EventKindStatusUpdate, ProviderMessageID: "wamid.b", Status: domain.MessageStatusDelivered, Timestamp: ingestNow},
	}
	d.gateway.EXPECT().ParseWebhook(body).Return(events, nil)

	// First event fails at the contact step.
	d.dedup.EXPECT().Seen(ctx, gomock.Any()).Return(false, nil)
	d.contactRepo.EXPECT().Upsert(ctx, gomock.Any()).Return(nil, errors.New("db down"))

	// Second event still processes.
	d.messageRepo.EXPECT().
		GetByProviderMessageID(ctx, channel.TenantID, "wamid.b", domain.DirectionOutbound).
		Return(nil, nil)
	d.recipientRepo.EXPECT().UpdateDeliveryStatus(ctx, "wamid.b", domain.RecipientStatusDelivered, ingestNow).Return(int64(1), nil)

	// Audit row records both the first error and the accepted count.
	d.webhookEventRepo.EXPECT().
		MarkProcessed(ctx, gomock.Any(), gomock.Not(gomock.Nil()), 1, ingestNow).
		Return(nil)

	outcome := d.svc.Ingest(ctx, ports.IngestRequest{ChannelID: channel.ID, RequestID: "req-13", Body: body})
	assert.Equal(t, 1, outcome.Accepted)
	assert.Empty(t, outcome.Dropped)
}
