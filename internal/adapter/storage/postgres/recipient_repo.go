package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"whatsapp-broadcast-platform/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RecipientRepo implements ports.RecipientRepository over the campaign
// recipient queue table.
type RecipientRepo struct {
	pool Pool
}

// NewRecipientRepo creates a new RecipientRepo.
func NewRecipientRepo(pool Pool) *RecipientRepo {
	return &RecipientRepo{pool: pool}
}

const recipientColumns = `id, campaign_id, contact_id, phone, variables, status, attempts,
		next_retry_at, last_error, provider_message_id, claimed_at,
		sent_at, delivered_at, read_at, created_at, updated_at`

// BulkCreate materializes queue rows when a campaign starts. Runs inside the
// caller's transaction so the status flip and the queue appear atomically.
func (r *RecipientRepo) BulkCreate(ctx context.Context, tx pgx.Tx, recipients []domain.Recipient) error {
	query := `INSERT INTO campaign_recipients (` + recipientColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	for i := range recipients {
		rec := &recipients[i]
		vars, err := json.Marshal(rec.Variables)
		if err != nil {
			return fmt.Errorf("marshal recipient variables: %w", err)
		}
		_, err = tx.Exec(ctx, query,
			rec.ID, rec.CampaignID, rec.ContactID, rec.Phone, vars, rec.Status, rec.Attempts,
			rec.NextRetryAt, rec.LastError, rec.ProviderMessageID, rec.ClaimedAt,
			rec.SentAt, rec.DeliveredAt, rec.ReadAt, rec.CreatedAt, rec.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert recipient: %w", err)
		}
	}
	return nil
}

// ClaimBatch claims up to limit due rows in FIFO order and returns them. Due
// means queued, or failed with an elapsed retry time and attempts left. The
// claim stamp acts as a lease: rows claimed within the lease window are
// invisible to other invocations, rows with an expired lease are reclaimable.
// FOR UPDATE SKIP LOCKED keeps concurrent invocations from serializing on the
// same rows.
func (r *RecipientRepo) ClaimBatch(ctx context.Context, campaignID uuid.UUID, limit int, now time.Time) ([]domain.Recipient, error) {
	query := `UPDATE campaign_recipients SET claimed_at = $1, updated_at = $1
		WHERE id IN (
			SELECT id FROM campaign_recipients
			WHERE campaign_id = $2
			  AND (claimed_at IS NULL OR claimed_at < $3)
			  AND (
				status = 'queued'
				OR (status = 'failed' AND next_retry_at IS NOT NULL AND next_retry_at <= $1 AND attempts < $4)
			  )
			ORDER BY created_at, id
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + recipientColumns

	rows, err := r.pool.Query(ctx, query,
		now, campaignID, now.Add(-domain.ClaimLease), domain.MaxSendAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("claim recipient batch: %w", err)
	}
	defer rows.Close()

	var claimed []domain.Recipient
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claimed rows: %w", err)
	}
	return claimed, nil
}

// MarkSent records gateway confirmation for one row.
func (r *RecipientRepo) MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string, sentAt time.Time) error {
	query := `UPDATE campaign_recipients SET status = $1, provider_message_id = $2, sent_at = $3,
		last_error = NULL, next_retry_at = NULL, claimed_at = NULL, updated_at = now()
		WHERE id = $4`

	tag, err := r.pool.Exec(ctx, query, domain.RecipientStatusSent, providerMessageID, sentAt, id)
	if err != nil {
		return fmt.Errorf("mark recipient sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("recipient not found: %s", id)
	}
	return nil
}

// MarkFailed records a failed attempt. A nil nextRetryAt leaves the row
// terminally failed.
func (r *RecipientRepo) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, nextRetryAt *time.Time, lastError string) error {
	query := `UPDATE campaign_recipients SET status = $1, attempts = $2, next_retry_at = $3,
		last_error = $4, claimed_at = NULL, updated_at = now()
		WHERE id = $5`

	tag, err := r.pool.Exec(ctx, query, domain.RecipientStatusFailed, attempts, nextRetryAt, lastError, id)
	if err != nil {
		return fmt.Errorf("mark recipient failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("recipient not found: %s", id)
	}
	return nil
}

// Release clears the claim lease for rows the dispatcher claimed but never
// processed (budget exhaustion, pause mid-batch).
func (r *RecipientRepo) Release(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE campaign_recipients SET claimed_at = NULL, updated_at = now() WHERE id = ANY($1)`
	if _, err := r.pool.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("release recipients: %w", err)
	}
	return nil
}

// ResetFailed re-queues failed rows for an explicit retry operation and
// returns how many were reset.
func (r *RecipientRepo) ResetFailed(ctx context.Context, campaignID uuid.UUID) (int64, error) {
	query := `UPDATE campaign_recipients SET status = $1, attempts = 0, next_retry_at = NULL,
		last_error = NULL, claimed_at = NULL, updated_at = now()
		WHERE campaign_id = $2 AND status = $3`

	tag, err := r.pool.Exec(ctx, query, domain.RecipientStatusQueued, campaignID, domain.RecipientStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("reset failed recipients: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountByStatus aggregates the queue in one scan for counter reconciliation.
func (r *RecipientRepo) CountByStatus(ctx context.Context, campaignID uuid.UUID) (domain.RecipientCounts, error) {
	query := `SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'queued'),
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'delivered'),
			COUNT(*) FILTER (WHERE status = 'read'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'skipped'),
			COUNT(*) FILTER (WHERE status = 'failed' AND next_retry_at IS NOT NULL AND attempts < $1)
		FROM campaign_recipients WHERE campaign_id = $2`

	var counts domain.RecipientCounts
	err := r.pool.QueryRow(ctx, query, domain.MaxSendAttempts, campaignID).Scan(
		&counts.Total, &counts.Queued, &counts.Sent, &counts.Delivered,
		&counts.Read, &counts.Failed, &counts.Skipped, &counts.PendingRetries,
	)
	if err != nil {
		return domain.RecipientCounts{}, fmt.Errorf("count recipients: %w", err)
	}
	return counts, nil
}

// UpdateDeliveryStatus advances the delivered/read markers by provider
// message ID and reports how many rows matched. Affecting zero rows is not an
// error: the provider message may belong to an inbox send rather than a
// campaign, which the caller detects through the count.
func (r *RecipientRepo) UpdateDeliveryStatus(ctx context.Context, providerMessageID string, status domain.RecipientStatus, at time.Time) (int64, error) {
	var query string
	switch status {
	case domain.RecipientStatusDelivered:
		query = `UPDATE campaign_recipients SET status = $1, delivered_at = $2, updated_at = now()
			WHERE provider_message_id = $3 AND status = 'sent'`
	case domain.RecipientStatusRead:
		query = `UPDATE campaign_recipients SET status = $1, read_at = $2, updated_at = now()
			WHERE provider_message_id = $3 AND status IN ('sent', 'delivered')`
	default:
		return 0, fmt.Errorf("unsupported delivery status: %s", status)
	}

	tag, err := r.pool.Exec(ctx, query, status, at, providerMessageID)
	if err != nil {
		return 0, fmt.Errorf("update recipient delivery status: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRecipient(row pgx.Row) (*domain.Recipient, error) {
	rec := &domain.Recipient{}
	var vars []byte
	err := row.Scan(
		&rec.ID, &rec.CampaignID, &rec.ContactID, &rec.Phone, &vars, &rec.Status, &rec.Attempts,
		&rec.NextRetryAt, &rec.LastError, &rec.ProviderMessageID, &rec.ClaimedAt,
		&rec.SentAt, &rec.DeliveredAt, &rec.ReadAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan recipient: %w", err)
	}
	if len(vars) > 0 {
		if err := json.Unmarshal(vars, &rec.Variables); err != nil {
			return nil, fmt.Errorf("unmarshal recipient variables: %w", err)
		}
	}
	return rec, nil
}
