package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"whatsapp-broadcast-platform/internal/core/domain"
	"whatsapp-broadcast-platform/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CampaignRepo implements ports.CampaignRepository.
type CampaignRepo struct {
	pool Pool
}

// NewCampaignRepo creates a new CampaignRepo.
func NewCampaignRepo(pool Pool) *CampaignRepo {
	return &CampaignRepo{pool: pool}
}

const campaignColumns = `id, tenant_id, channel_id, template_id, name, status, paused_reason,
		variable_defaults, total_recipients, sent_count, delivered_count, read_count, failed_count,
		scheduled_at, started_at, completed_at, created_at, updated_at`

// Create inserts a new campaign.
func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	defaults, err := json.Marshal(c.VariableDefaults)
	if err != nil {
		return fmt.Errorf("marshal variable defaults: %w", err)
	}

	query := `INSERT INTO campaigns (` + campaignColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err = r.pool.Exec(ctx, query,
		c.ID, c.TenantID, c.ChannelID, c.TemplateID, c.Name, c.Status, c.PausedReason,
		defaults, c.TotalRecipients, c.SentCount, c.DeliveredCount, c.ReadCount, c.FailedCount,
		c.ScheduledAt, c.StartedAt, c.CompletedAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

// GetByID fetches a campaign by UUID.
func (r *CampaignRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`
	return scanCampaign(r.pool.QueryRow(ctx, query, id))
}

// List fetches campaigns with filtering and pagination, newest first.
func (r *CampaignRepo) List(ctx context.Context, params ports.CampaignListParams) ([]domain.Campaign, int64, error) {
	conditions := []string{"tenant_id = $1"}
	args := []any{params.TenantID}
	argIdx := 2

	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM campaigns %s", where)
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT %s FROM campaigns %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		campaignColumns, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []domain.Campaign
	for rows.Next() {
		c, err := scanCampaignRow(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate campaign rows: %w", err)
	}
	return campaigns, total, nil
}

// UpdateStatus transitions the campaign lifecycle state. The paused reason
// is always overwritten (cleared on resume); completed_at only when set.
func (r *CampaignRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.CampaignStatus, reason *domain.PausedReason, completedAt *time.Time) error {
	query := `UPDATE campaigns SET status = $1, paused_reason = $2,
		completed_at = COALESCE($3, completed_at), updated_at = now()
		WHERE id = $4`

	tag, err := r.pool.Exec(ctx, query, status, reason, completedAt, id)
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("campaign not found: %s", id)
	}
	return nil
}

// MarkStarted stamps the start of a run and the materialized total.
func (r *CampaignRepo) MarkStarted(ctx context.Context, id uuid.UUID, total int, startedAt time.Time) error {
	query := `UPDATE campaigns SET status = $1, total_recipients = $2, started_at = $3, updated_at = now()
		WHERE id = $4`

	tag, err := r.pool.Exec(ctx, query, domain.CampaignStatusRunning, total, startedAt, id)
	if err != nil {
		return fmt.Errorf("mark campaign started: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("campaign not found: %s", id)
	}
	return nil
}

// UpdateCounters rewrites the cached per-status counters from a queue scan.
func (r *CampaignRepo) UpdateCounters(ctx context.Context, id uuid.UUID, counts domain.RecipientCounts) error {
	// delivered/read recipients were sent as well: sent_count is cumulative.
	query := `UPDATE campaigns SET total_recipients = $1, sent_count = $2,
		delivered_count = $3, read_count = $4, failed_count = $5, updated_at = now()
		WHERE id = $6`

	sent := counts.Sent + counts.Delivered + counts.Read
	_, err := r.pool.Exec(ctx, query,
		counts.Total, sent, counts.Delivered+counts.Read, counts.Read, counts.Failed, id)
	if err != nil {
		return fmt.Errorf("update campaign counters: %w", err)
	}
	return nil
}

// ListIDsByStatus returns campaign IDs in the given status.
func (r *CampaignRepo) ListIDsByStatus(ctx context.Context, status domain.CampaignStatus) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM campaigns WHERE status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("list campaigns by status: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan campaign id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveSelection stores the chosen contact set of a draft campaign.
func (r *CampaignRepo) SaveSelection(ctx context.Context, campaignID uuid.UUID, contactIDs []uuid.UUID) error {
	query := `INSERT INTO campaign_contacts (campaign_id, contact_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`

	for _, contactID := range contactIDs {
		if _, err := r.pool.Exec(ctx, query, campaignID, contactID); err != nil {
			return fmt.Errorf("save campaign selection: %w", err)
		}
	}
	return nil
}

// GetSelection returns the persisted contact selection of a campaign.
func (r *CampaignRepo) GetSelection(ctx context.Context, campaignID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT contact_id FROM campaign_contacts WHERE campaign_id = $1`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("get campaign selection: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan contact id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanCampaign(row pgx.Row) (*domain.Campaign, error) {
	c, err := scanCampaignRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func scanCampaignRow(row pgx.Row) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	var defaults []byte
	err := row.Scan(
		&c.ID, &c.TenantID, &c.ChannelID, &c.TemplateID, &c.Name, &c.Status, &c.PausedReason,
		&defaults, &c.TotalRecipients, &c.SentCount, &c.DeliveredCount, &c.ReadCount, &c.FailedCount,
		&c.ScheduledAt, &c.StartedAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan campaign: %w", err)
	}
	if len(defaults) > 0 {
		if err := json.Unmarshal(defaults, &c.VariableDefaults); err != nil {
			return nil, fmt.Errorf("unmarshal variable defaults: %w", err)
		}
	}
	return c, nil
}
