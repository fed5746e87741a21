package ports

import (
	"context"
	"time"

	"whatsapp-broadcast-platform/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CampaignRepository defines persistence operations for campaigns.
type CampaignRepository interface {
	Create(ctx context.Context, c *domain.Campaign) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)
	List(ctx context.Context, params CampaignListParams) ([]domain.Campaign, int64, error)
	// UpdateStatus transitions lifecycle state; reason and completedAt are
	// only written when non-nil.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.CampaignStatus, reason *domain.PausedReason, completedAt *time.Time) error
	MarkStarted(ctx context.Context, id uuid.UUID, total int, startedAt time.Time) error
	// UpdateCounters rewrites the cached per-status counters.
	UpdateCounters(ctx context.Context, id uuid.UUID, counts domain.RecipientCounts) error
	// ListIDsByStatus returns campaign IDs in the given status, for the poller.
	ListIDsByStatus(ctx context.Context, status domain.CampaignStatus) ([]uuid.UUID, error)
	// SaveSelection persists the chosen contact set of a draft campaign.
	// Queue rows are only materialized from it at start.
	SaveSelection(ctx context.Context, campaignID uuid.UUID, contactIDs []uuid.UUID) error
	// GetSelection returns the persisted contact selection.
	GetSelection(ctx context.Context, campaignID uuid.UUID) ([]uuid.UUID, error)
}

// CampaignListParams holds filter + pagination for listing campaigns.
type CampaignListParams struct {
	TenantID uuid.UUID
	Status   *domain.CampaignStatus
	Page     int
	PageSize int
}

// RecipientRepository owns the durable per-campaign send queue.
type RecipientRepository interface {
	// BulkCreate materializes queue rows when a campaign starts.
	BulkCreate(ctx context.Context, tx pgx.Tx, recipients []domain.Recipient) error
	// ClaimBatch atomically claims up to limit due rows (queued, or failed
	// with an elapsed retry time and attempts left) in FIFO order. Claimed
	// rows carry a lease so overlapping dispatcher invocations cannot
	// double-send; rows whose lease expired are reclaimable.
	ClaimBatch(ctx context.Context, campaignID uuid.UUID, limit int, now time.Time) ([]domain.Recipient, error)
	// MarkSent records gateway confirmation: status, provider message ID,
	// cleared error fields and retry time.
	MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string, sentAt time.Time) error
	// MarkFailed records a failed attempt. A nil nextRetryAt is terminal.
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, nextRetryAt *time.Time, lastError string) error
	// Release clears the claim lease without changing status, for rows the
	// dispatcher claimed but did not get to process.
	Release(ctx context.Context, ids []uuid.UUID) error
	// ResetFailed re-queues failed rows for an explicit retry operation.
	ResetFailed(ctx context.Context, campaignID uuid.UUID) (int64, error)
	// CountByStatus aggregates the queue for counter reconciliation.
	CountByStatus(ctx context.Context, campaignID uuid.UUID) (domain.RecipientCounts, error)
	// UpdateDeliveryStatus advances delivered/read timestamps by provider
	// message ID when status webhooks arrive for campaign sends. Returns the
	// number of rows affected so callers can detect orphan updates.
	UpdateDeliveryStatus(ctx context.Context, providerMessageID string, status domain.RecipientStatus, at time.Time) (int64, error)
}

// ContactRepository defines persistence operations for contacts.
type ContactRepository interface {
	Create(ctx context.Context, c *domain.Contact) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Contact, error)
	GetByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (*domain.Contact, error)
	GetByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]domain.Contact, error)
	// Upsert creates the contact or refreshes last-interaction (and the
	// name, when the stored one is empty). Returns the stored row.
	Upsert(ctx context.Context, c *domain.Contact) (*domain.Contact, error)
}

// ConversationRepository defines persistence operations for conversations.
type ConversationRepository interface {
	Create(ctx context.Context, c *domain.Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	GetByChannelContact(ctx context.Context, channelID, contactID uuid.UUID) (*domain.Conversation, error)
	List(ctx context.Context, tenantID uuid.UUID, page, pageSize int) ([]domain.Conversation, int64, error)
	// RecordInbound advances last_inbound_at/last_message_at, increments the
	// unread counter and forces status back to open.
	RecordInbound(ctx context.Context, id uuid.UUID, at time.Time) error
	RecordOutbound(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkRead(ctx context.Context, id uuid.UUID) error
}

// MessageRepository defines persistence operations for conversation messages.
type MessageRepository interface {
	Create(ctx context.Context, m *domain.Message) error
	GetByProviderMessageID(ctx context.Context, tenantID uuid.UUID, providerMessageID string, direction domain.MessageDirection) (*domain.Message, error)
	ListByConversation(ctx context.Context, conversationID uuid.UUID, page, pageSize int) ([]domain.Message, int64, error)
	// MarkSent records gateway confirmation for a queued outbound message:
	// status, provider message ID and sent timestamp.
	MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string, sentAt time.Time) error
	// UpdateStatus applies a delivery-ladder transition with its timestamp
	// and optional error fields.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.MessageStatus, at time.Time, errorCode, errorDetail *string) error
}

// ChannelRepository defines persistence operations for channels.
type ChannelRepository interface {
	Create(ctx context.Context, ch *domain.Channel) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]domain.Channel, error)
	// MarkConnected flips status to connected and stamps last_webhook_at.
	MarkConnected(ctx context.Context, id uuid.UUID, at time.Time) error
}

// WebhookEventRepository is the append-only webhook audit log.
type WebhookEventRepository interface {
	Create(ctx context.Context, e *domain.WebhookEvent) error
	// MarkProcessed flips the processing outcome after handling.
	MarkProcessed(ctx context.Context, id uuid.UUID, processErr *string, eventCount int, at time.Time) error
}

// TenantRepository defines persistence for tenants and their users.
type TenantRepository interface {
	CreateTenant(ctx context.Context, tx pgx.Tx, t *domain.Tenant) error
	CreateUser(ctx context.Context, tx pgx.Tx, u *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
}

// TemplateRepository defines persistence operations for message templates.
type TemplateRepository interface {
	Create(ctx context.Context, t *domain.Template) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Template, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]domain.Template, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
