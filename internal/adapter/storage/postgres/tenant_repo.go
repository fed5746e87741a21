package postgres

import (
	"context"
	"errors"
	"fmt"

	"whatsapp-broadcast-platform/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// TenantRepo implements ports.TenantRepository.
type TenantRepo struct {
	pool Pool
}

// NewTenantRepo creates a new TenantRepo.
func NewTenantRepo(pool Pool) *TenantRepo {
	return &TenantRepo{pool: pool}
}

// CreateTenant inserts a tenant inside the caller's transaction. Tenant and
// first user are created atomically at signup.
func (r *TenantRepo) CreateTenant(ctx context.Context, tx pgx.Tx, t *domain.Tenant) error {
	query := `INSERT INTO tenants (id, name, created_at) VALUES ($1, $2, $3)`

	if _, err := tx.Exec(ctx, query, t.ID, t.Name, t.CreatedAt); err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

// CreateUser inserts a user inside the caller's transaction.
func (r *TenantRepo) CreateUser(ctx context.Context, tx pgx.Tx, u *domain.User) error {
	query := `INSERT INTO users (id, tenant_id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := tx.Exec(ctx, query, u.ID, u.TenantID, u.Email, u.PasswordHash, u.CreatedAt); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByEmail fetches a user for login. Returns nil when not found.
func (r *TenantRepo) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT id, tenant_id, email, password_hash, created_at FROM users WHERE email = $1`

	u := &domain.User{}
	err := r.pool.QueryRow(ctx, query, email).Scan(
		&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}
