package postgres

import (
	"context"
	"fmt"
	"time"

	"whatsapp-broadcast-platform/internal/core/domain"

	"github.com/google/uuid"
)

// WebhookEventRepo is the append-only webhook audit log.
type WebhookEventRepo struct {
	pool Pool
}

// NewWebhookEventRepo creates a new WebhookEventRepo.
func NewWebhookEventRepo(pool Pool) *WebhookEventRepo {
	return &WebhookEventRepo{pool: pool}
}

// Create appends the raw delivery before any processing so that a crash or
// parse failure still leaves an audit row.
func (r *WebhookEventRepo) Create(ctx context.Context, e *domain.WebhookEvent) error {
	query := `INSERT INTO webhook_events
		(id, channel_id, request_id, payload, processed, process_error, event_count, received_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.ChannelID, e.RequestID, e.Payload, e.Processed, e.ProcessErr,
		e.EventCount, e.ReceivedAt, e.ProcessedAt)
	if err != nil {
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}

// MarkProcessed records the processing outcome of one delivery.
func (r *WebhookEventRepo) MarkProcessed(ctx context.Context, id uuid.UUID, processErr *string, eventCount int, at time.Time) error {
	query := `UPDATE webhook_events SET processed = true, process_error = $1,
		event_count = $2, processed_at = $3
		WHERE id = $4`

	tag, err := r.pool.Exec(ctx, query, processErr, eventCount, at, id)
	if err != nil {
		return fmt.Errorf("mark webhook event processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("webhook event not found: %s", id)
	}
	return nil
}
