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

// MessageRepo implements ports.MessageRepository.
type MessageRepo struct {
	pool Pool
}

// NewMessageRepo creates a new MessageRepo.
func NewMessageRepo(pool Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

const messageColumns = `id, tenant_id, conversation_id, direction, body, status,
		provider_message_id, error_code, error_detail,
		sent_at, delivered_at, read_at, created_at, updated_at`

// Create inserts a conversation message. The partial unique index on
// (tenant_id, provider_message_id, direction) makes redelivered inbound
// webhooks a no-op; a conflicting insert returns domain.ErrDuplicateMessage.
// Queued outbound rows have no provider message ID yet and always insert.
func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	query := `INSERT INTO messages (` + messageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	if m.ProviderMessageID != "" {
		query += ` ON CONFLICT (tenant_id, provider_message_id, direction) DO NOTHING`
	}

	tag, err := r.pool.Exec(ctx, query,
		m.ID, m.TenantID, m.ConversationID, m.Direction, m.Body, m.Status,
		m.ProviderMessageID, m.ErrorCode, m.ErrorDetail,
		m.SentAt, m.DeliveredAt, m.ReadAt, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicateMessage
	}
	return nil
}

// GetByProviderMessageID fetches a message by its gateway identifier.
func (r *MessageRepo) GetByProviderMessageID(ctx context.Context, tenantID uuid.UUID, providerMessageID string, direction domain.MessageDirection) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages
		WHERE tenant_id = $1 AND provider_message_id = $2 AND direction = $3`

	m, err := scanMessage(r.pool.QueryRow(ctx, query, tenantID, providerMessageID, direction))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// ListByConversation fetches messages of one conversation, newest first.
func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID uuid.UUID, page, pageSize int) ([]domain.Message, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = $1`, conversationID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	query := `SELECT ` + messageColumns + ` FROM messages
		WHERE conversation_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, conversationID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate message rows: %w", err)
	}
	return messages, total, nil
}

// MarkSent records gateway confirmation for a queued outbound message,
// attaching the provider identifier that later status webhooks correlate on.
func (r *MessageRepo) MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string, sentAt time.Time) error {
	query := `UPDATE messages SET status = $1, provider_message_id = $2, sent_at = $3, updated_at = now()
		WHERE id = $4`

	tag, err := r.pool.Exec(ctx, query, domain.MessageStatusSent, providerMessageID, sentAt, id)
	if err != nil {
		return fmt.Errorf("mark message sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message not found: %s", id)
	}
	return nil
}

// UpdateStatus applies one delivery-ladder transition with its timestamp and
// optional error fields. The milestone timestamp matching the new status is
// stamped alongside.
func (r *MessageRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.MessageStatus, at time.Time, errorCode, errorDetail *string) error {
	var stampColumn string
	switch status {
	case domain.MessageStatusSent:
		stampColumn = "sent_at"
	case domain.MessageStatusDelivered:
		stampColumn = "delivered_at"
	case domain.MessageStatusRead:
		stampColumn = "read_at"
	}

	query := `UPDATE messages SET status = $1, error_code = $2, error_detail = $3, updated_at = now() WHERE id = $4`
	args := []any{status, errorCode, errorDetail, id}
	if stampColumn != "" {
		query = fmt.Sprintf(`UPDATE messages SET status = $1, error_code = $2, error_detail = $3,
			%s = $4, updated_at = now() WHERE id = $5`, stampColumn)
		args = []any{status, errorCode, errorDetail, at, id}
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update message status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message not found: %s", id)
	}
	return nil
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	m := &domain.Message{}
	err := row.Scan(
		&m.ID, &m.TenantID, &m.ConversationID, &m.Direction, &m.Body, &m.Status,
		&m.ProviderMessageID, &m.ErrorCode, &m.ErrorDetail,
		&m.SentAt, &m.DeliveredAt, &m.ReadAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan message: %w", err)
	}
	return m, nil
}
