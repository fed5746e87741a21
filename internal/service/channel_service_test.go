package service

import (
	"context"
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

type channelTestDeps struct {
	svc         *ChannelServiceImpl
	channelRepo *mocks.MockChannelRepository
	encSvc      *mocks.MockEncryptionService
	ctrl        *gomock.Controller
}

func setupChannelService(t *testing.T) *channelTestDeps {
	ctrl := gomock.NewController(t)
	d := &channelTestDeps{
		channelRepo: mocks.NewMockChannelRepository(ctrl),
		encSvc:      mocks.NewMockEncryptionService(ctrl),
		ctrl:        ctrl,
	}
	d.svc = NewChannelService(d.channelRepo, d.encSvc, "254", zerolog.Nop())
	return d
}

func TestChannelService_Create_EncryptsToken(t *testing.T) {
	d := setupChannelService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tenantID := uuid.New()

	d.encSvc.EXPECT().Encrypt("plain-token").Return("enc-token", nil)
	d.channelRepo.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, ch *domain.Channel) error {
			assert.Equal(t, "enc-token", ch.AccessTokenEnc)
			assert.Equal(t, "254700111222", ch.PhoneNumber)
			// Channels start disconnected; the first webhook flips them.
			assert.Equal(t, domain.ChannelStatusDisconnected, ch.Status)
			return nil
		})

	channel, err := d.svc.Create(ctx, ports.CreateChannelRequest{
		TenantID:       tenantID,
		Name:           "Support line",
		PhoneNumber:    "0700111222",
		SubscriptionID: "sub_1",
		AccessToken:    "plain-token",
	})
	require.NoError(t, err)
	assert.Equal(t, tenantID, channel.TenantID)
}

func TestChannelService_Create_MissingToken(t *testing.T) {
	d := setupChannelService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.Create(context.Background(), ports.CreateChannelRequest{
		TenantID: uuid.New(), Name: "x", PhoneNumber: "0700111222", SubscriptionID: "sub_1",
	})
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VAL_001", appErr.Code)
}

func TestChannelService_SendCredentials_Decrypts(t *testing.T) {
	d := setupChannelService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	channel := &domain.Channel{AccessTokenEnc: "enc-token", SubscriptionID: "sub_1"}
	d.encSvc.EXPECT().Decrypt("enc-token").Return("plain-token", nil)

	creds, err := d.svc.SendCredentials(ctx, channel)
	require.NoError(t, err)
	assert.Equal(t, "plain-token", creds.AccessToken)
	assert.Equal(t, "sub_1", creds.SubscriptionID)
}

func TestChannelService_SendCredentials_Missing(t *testing.T) {
	d := setupChannelService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.SendCredentials(context.Background(), &domain.Channel{SubscriptionID: "sub_1"})
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "CHN_003", appErr.Code)
}
