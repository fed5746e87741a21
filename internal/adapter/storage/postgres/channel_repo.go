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

// ChannelRepo implements ports.ChannelRepository.
type ChannelRepo struct {
	pool Pool
}

// NewChannelRepo creates a new ChannelRepo.
func NewChannelRepo(pool Pool) *ChannelRepo {
	return &ChannelRepo{pool: pool}
}

const channelColumns = `id, tenant_id, name, phone_number, subscription_id,
		access_token_enc, webhook_secret, verify_token, status, daily_send_limit,
		last_webhook_at, created_at, updated_at`

// Create inserts a new channel.
func (r *ChannelRepo) Create(ctx context.Context, ch *domain.Channel) error {
	query := `INSERT INTO channels (` + channelColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.pool.Exec(ctx, query,
		ch.ID, ch.TenantID, ch.Name, ch.PhoneNumber, ch.SubscriptionID,
		ch.AccessTokenEnc, ch.WebhookSecret, ch.VerifyToken, ch.Status, ch.DailySendLimit,
		ch.LastWebhookAt, ch.CreatedAt, ch.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}
	return nil
}

// GetByID fetches a channel by UUID.
func (r *ChannelRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels WHERE id = $1`

	ch, err := scanChannel(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ch, nil
}

// List fetches all channels of a tenant.
func (r *ChannelRepo) List(ctx context.Context, tenantID uuid.UUID) ([]domain.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels WHERE tenant_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var channels []domain.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, *ch)
	}
	return channels, rows.Err()
}

// MarkConnected flips the channel to connected and stamps the webhook time.
// Receiving a valid webhook is proof of connectivity.
func (r *ChannelRepo) MarkConnected(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE channels SET status = $1, last_webhook_at = $2, updated_at = now() WHERE id = $3`

	tag, err := r.pool.Exec(ctx, query, domain.ChannelStatusConnected, at, id)
	if err != nil {
		return fmt.Errorf("mark channel connected: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("channel not found: %s", id)
	}
	return nil
}

func scanChannel(row pgx.Row) (*domain.Channel, error) {
	ch := &domain.Channel{}
	err := row.Scan(
		&ch.ID, &ch.TenantID, &ch.Name, &ch.PhoneNumber, &ch.SubscriptionID,
		&ch.AccessTokenEnc, &ch.WebhookSecret, &ch.VerifyToken, &ch.Status, &ch.DailySendLimit,
		&ch.LastWebhookAt, &ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan channel: %w", err)
	}
	return ch, nil
}
