package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is one workspace. All entities are scoped to a tenant.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// User is an operator account within a tenant. Role management is handled
// elsewhere; here a user is only an authentication principal.
type User struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
