package service

import (
	"context"
	"errors"
	"testing"

	"whatsapp-broadcast-platform/internal/core/domain"
	"whatsapp-broadcast-platform/internal/core/ports"
	"whatsapp-broadcast-platform/internal/core/ports/mocks"
	"whatsapp-broadcast-platform/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type contactTestDeps struct {
	svc         *ContactServiceImpl
	contactRepo *mocks.MockContactRepository
	ctrl        *gomock.Controller
}

func setupContactService(t *testing.T) *contactTestDeps {
	ctrl := gomock.NewController(t)
	d := &contactTestDeps{
		contactRepo: mocks.NewMockContactRepository(ctrl),
		ctrl:        ctrl,
	}
	d.svc = NewContactService(d.contactRepo, "254", zerolog.Nop())
	return d
}

func TestContactService_Create_NormalizesPhone(t *testing.T) {
	d := setupContactService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tenantID := uuid.New()

	d.contactRepo.EXPECT().GetByPhone(ctx, tenantID, "254712345678").Return(nil, nil)
	d.contactRepo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, c *domain.Contact) error {
			assert.Equal(t, "254712345678", c.Phone)
			assert.Equal(t, "Alice", c.Name)
			return nil
		})

	contact, err := d.svc.Create(ctx, tenantID, "0712 345 678", "Alice")
	require.NoError(t, err)
	assert.Equal(t, "254712345678", contact.Phone)
}

func TestContactService_Create_InvalidPhone(t *testing.T) {
	d := setupContactService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.Create(context.Background(), uuid.New(), "not-a-phone", "Bob")
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "CNT_002", appErr.Code)
}

func TestContactService_Create_Duplicate(t *testing.T) {
	d := setupContactService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tenantID := uuid.New()
	existing := &domain.Contact{ID: uuid.New(), TenantID: tenantID, Phone: "254712345678"}
	d.contactRepo.EXPECT().GetByPhone(ctx, tenantID, "254712345678").Return(existing, nil)

	_, err := d.svc.Create(ctx, tenantID, "0712345678", "Alice")
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "CNT_003", appErr.Code)
}

func TestContactService_Import_SkipsInvalidRows(t *testing.T) {
	d := setupContactService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tenantID := uuid.New()

	// Valid rows upsert, invalid ones are skipped without aborting.
	d.contactRepo.EXPECT().Upsert(ctx, gomock.Any()).Return(&domain.Contact{}, nil).Times(2)

	result, err := d.svc.Import(ctx, tenantID, []ports.ContactImportRow{
		{Phone: "0712345678", Name: "Alice"},
		{Phone: "garbage", Name: "Nobody"},
		{Phone: "+254733000111", Name: "Bob"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "row 2")
}

func TestContactService_Import_UpsertFailureCountsAsSkipped(t *testing.T) {
	d := setupContactService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tenantID := uuid.New()
	d.contactRepo.EXPECT().Upsert(ctx, gomock.Any()).Return(nil, errors.New("db down"))

	result, err := d.svc.Import(ctx, tenantID, []ports.ContactImportRow{{Phone: "0712345678"}})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Imported)
	assert.Equal(t, 1, result.Skipped)
}

func TestContactService_Import_EmptyRejected(t *testing.T) {
	d := setupContactService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.Import(context.Background(), uuid.New(), nil)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VAL_001", appErr.Code)
}
