package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"whatsapp-broadcast-platform/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ConversationRepo implements ports.ConversationRepository.
type ConversationRepo struct {
	pool Pool
}

// NewConversationRepo creates a new ConversationRepo.
func NewConversationRepo(pool Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

const conversationColumns = `id, tenant_id, channel_id, contact_id, status, unread_count,
		last_inbound_at, last_message_at, created_at, updated_at`

// Create inserts a new conversation.
func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation) error {
	query := `INSERT INTO conversations (` + conversationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		c.ID, c.TenantID, c.ChannelID, c.ContactID, c.Status, c.UnreadCount,
		c.LastInboundAt, c.LastMessageAt, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// GetByID fetches a conversation by UUID.
func (r *ConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	return scanConversationOrNil(r.pool.QueryRow(ctx, query, id))
}

// GetByChannelContact fetches the conversation between one channel and one
// contact, if any.
func (r *ConversationRepo) GetByChannelContact(ctx context.Context, channelID, contactID uuid.UUID) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations
		WHERE channel_id = $1 AND contact_id = $2`
	return scanConversationOrNil(r.pool.QueryRow(ctx, query, channelID, contactID))
}

// List fetches a tenant's conversations, most recently active first.
func (r *ConversationRepo) List(ctx context.Context, tenantID uuid.UUID, page, pageSize int) ([]domain.Conversation, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM conversations WHERE tenant_id = $1`, tenantID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count conversations: %w", err)
	}

	query := `SELECT ` + conversationColumns + ` FROM conversations
		WHERE tenant_id = $1
		ORDER BY last_message_at DESC NULLS LAST, created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, tenantID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, 0, err
		}
		conversations = append(conversations, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate conversation rows: %w", err)
	}
	return conversations, total, nil
}

// RecordInbound advances the inbound markers, increments the unread counter
// and forces the conversation back to open.
func (r *ConversationRepo) RecordInbound(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE conversations SET status = $1, unread_count = unread_count + 1,
		last_inbound_at = $2, last_message_at = $2, updated_at = now()
		WHERE id = $3`

	tag, err := r.pool.Exec(ctx, query, domain.ConversationStatusOpen, at, id)
	if err != nil {
		return fmt.Errorf("record inbound: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation not found: %s", id)
	}
	return nil
}

// RecordOutbound advances the last-message marker.
func (r *ConversationRepo) RecordOutbound(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE conversations SET last_message_at = $1, updated_at = now() WHERE id = $2`

	tag, err := r.pool.Exec(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("record outbound: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation not found: %s", id)
	}
	return nil
}

// MarkRead zeroes the unread counter.
func (r *ConversationRepo) MarkRead(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE conversations SET unread_count = 0, updated_at = now() WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark conversation read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversation not found: %s", id)
	}
	return nil
}

func scanConversationOrNil(row pgx.Row) (*domain.Conversation, error) {
	c, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	err := row.Scan(
		&c.ID, &c.TenantID, &c.ChannelID, &c.ContactID, &c.Status, &c.UnreadCount,
		&c.LastInboundAt, &c.LastMessageAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	return c, nil
}
