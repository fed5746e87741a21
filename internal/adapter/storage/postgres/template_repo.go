package postgres

import (
	"context"
	"errors"
	"fmt"

	"whatsapp-broadcast-platform/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TemplateRepo implements ports.TemplateRepository.
type TemplateRepo struct {
	pool Pool
}

// NewTemplateRepo creates a new TemplateRepo.
func NewTemplateRepo(pool Pool) *TemplateRepo {
	return &TemplateRepo{pool: pool}
}

const templateColumns = `id, tenant_id, name, language, body, status, created_at, updated_at`

// Create inserts a new template.
func (r *TemplateRepo) Create(ctx context.Context, t *domain.Template) error {
	query := `INSERT INTO templates (` + templateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		t.ID, t.TenantID, t.Name, t.Language, t.Body, t.Status, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

// GetByID fetches a template by UUID.
func (r *TemplateRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE id = $1`

	t := &domain.Template{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.TenantID, &t.Name, &t.Language, &t.Body, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

// List fetches all templates of a tenant.
func (r *TemplateRepo) List(ctx context.Context, tenantID uuid.UUID) ([]domain.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE tenant_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []domain.Template
	for rows.Next() {
		t := domain.Template{}
		if err := rows.Scan(&t.ID, &t.TenantID, &t.Name, &t.Language, &t.Body, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}
