package postgres

import (
	"context"
	"errors"
	"fmt"

	"whatsapp-broadcast-platform/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ContactRepo implements ports.ContactRepository.
type ContactRepo struct {
	pool Pool
}

// NewContactRepo creates a new ContactRepo.
func NewContactRepo(pool Pool) *ContactRepo {
	return &ContactRepo{pool: pool}
}

const contactColumns = `id, tenant_id, phone, name, last_interaction_at, created_at, updated_at`

// Create inserts a new contact.
func (r *ContactRepo) Create(ctx context.Context, c *domain.Contact) error {
	query := `INSERT INTO contacts (` + contactColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		c.ID, c.TenantID, c.Phone, c.Name, c.LastInteractionAt, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}
	return nil
}

// GetByID fetches a contact by UUID.
func (r *ContactRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1`
	return scanContactOrNil(r.pool.QueryRow(ctx, query, id))
}

// GetByPhone fetches a contact by its normalized phone within a tenant.
func (r *ContactRepo) GetByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (*domain.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE tenant_id = $1 AND phone = $2`
	return scanContactOrNil(r.pool.QueryRow(ctx, query, tenantID, phone))
}

// GetByIDs fetches multiple contacts of one tenant. IDs not found are simply
// absent from the result.
func (r *ContactRepo) GetByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]domain.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE tenant_id = $1 AND id = ANY($2)`

	rows, err := r.pool.Query(ctx, query, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("get contacts by ids: %w", err)
	}
	defer rows.Close()

	var contacts []domain.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *c)
	}
	return contacts, rows.Err()
}

// Upsert creates the contact or refreshes last-interaction on conflict. The
// stored name is only replaced when it is empty: an operator-entered name
// wins over the provider profile name. Returns the stored row.
func (r *ContactRepo) Upsert(ctx context.Context, c *domain.Contact) (*domain.Contact, error) {
	query := `INSERT INTO contacts (` + contactColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, phone) DO UPDATE SET
			name = CASE WHEN contacts.name = '' THEN EXCLUDED.name ELSE contacts.name END,
			last_interaction_at = EXCLUDED.last_interaction_at,
			updated_at = now()
		RETURNING ` + contactColumns

	stored, err := scanContact(r.pool.QueryRow(ctx, query,
		c.ID, c.TenantID, c.Phone, c.Name, c.LastInteractionAt, c.CreatedAt, c.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("upsert contact: %w", err)
	}
	return stored, nil
}

func scanContactOrNil(row pgx.Row) (*domain.Contact, error) {
	c, err := scanContact(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func scanContact(row pgx.Row) (*domain.Contact, error) {
	c := &domain.Contact{}
	err := row.Scan(&c.ID, &c.TenantID, &c.Phone, &c.Name, &c.LastInteractionAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan contact: %w", err)
	}
	return c, nil
}
