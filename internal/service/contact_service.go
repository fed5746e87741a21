package service

import (
	"context"
	"fmt"
	"time"

	"whatsapp-broadcast-platform/internal/core/domain"
	"whatsapp-broadcast-platform/internal/core/ports"
	"whatsapp-broadcast-platform/pkg/apperror"
	"whatsapp-broadcast-platform/pkg/phone"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ContactServiceImpl implements ports.ContactService.
type ContactServiceImpl struct {
	contactRepo ports.ContactRepository
	defaultCC   string
	log         zerolog.Logger
}

// NewContactService creates a new ContactServiceImpl.
func NewContactService(contactRepo ports.ContactRepository, defaultCountryCode string, log zerolog.Logger) *ContactServiceImpl {
	return &ContactServiceImpl{
		contactRepo: contactRepo,
		defaultCC:   defaultCountryCode,
		log:         log,
	}
}

// Create stores one contact with a normalized phone.
func (s *ContactServiceImpl) Create(ctx context.Context, tenantID uuid.UUID, rawPhone, name string) (*domain.Contact, error) {
	normalized, err := phone.Normalize(rawPhone, s.defaultCC)
	if err != nil {
		return nil, apperror.ErrInvalidPhone(rawPhone)
	}

	existing, err := s.contactRepo.GetByPhone(ctx, tenantID, normalized)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("check existing contact: %w", err))
	}
	if existing != nil {
		return nil, apperror.ErrContactExists()
	}

	now := time.Now().UTC()
	contact := &domain.Contact{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Phone:     normalized,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.contactRepo.Create(ctx, contact); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create contact: %w", err))
	}
	return contact, nil
}

// Import bulk-creates contacts. Rows with invalid phones are skipped and
// reported, never aborting the rest of the batch; duplicates refresh the
// stored row via upsert.
func (s *ContactServiceImpl) Import(ctx context.Context, tenantID uuid.UUID, rows []ports.ContactImportRow) (*domain.ContactImportResult, error) {
	if len(rows) == 0 {
		return nil, apperror.Validation("no rows to import")
	}

	result := &domain.ContactImportResult{Total: len(rows)}
	now := time.Now().UTC()

	for i, row := range rows {
		normalized, err := phone.Normalize(row.Phone, s.defaultCC)
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: invalid phone %q", i+1, row.Phone))
			continue
		}

		_, err = s.contactRepo.Upsert(ctx, &domain.Contact{
			ID:        uuid.New(),
			TenantID:  tenantID,
			Phone:     normalized,
			Name:      row.Name,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		result.Imported++
	}

	s.log.Info().
		Str("tenant_id", tenantID.String()).
		Int("total", result.Total).
		Int("imported", result.Imported).
		Int("skipped", result.Skipped).
		Msg("contact import finished")
	return result, nil
}
