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

// ChannelServiceImpl implements ports.ChannelService. Access tokens are
// encrypted before persistence and only decrypted at send time.
type ChannelServiceImpl struct {
	channelRepo ports.ChannelRepository
	encSvc      ports.EncryptionService
	defaultCC   string
	log         zerolog.Logger
}

// NewChannelService creates a new ChannelServiceImpl.
func NewChannelService(channelRepo ports.ChannelRepository, encSvc ports.EncryptionService, defaultCountryCode string, log zerolog.Logger) *ChannelServiceImpl {
	return &ChannelServiceImpl{
		channelRepo: channelRepo,
		encSvc:      encSvc,
		defaultCC:   defaultCountryCode,
		log:         log,
	}
}

// Create registers a new outbound identity. The channel starts disconnected
// and flips to connected when the first webhook arrives.
func (s *ChannelServiceImpl) Create(ctx context.Context, req ports.CreateChannelRequest) (*domain.Channel, error) {
	if req.Name == "" {
		return nil, apperror.Validation("channel name is required")
	}
	if req.SubscriptionID == "" {
		return nil, apperror.Validation("subscription id is required")
	}
	if req.AccessToken == "" {
		return nil, apperror.Validation("access token is required")
	}
	normalized, err := phone.Normalize(req.PhoneNumber, s.defaultCC)
	if err != nil {
		return nil, apperror.ErrInvalidPhone(req.PhoneNumber)
	}

	tokenEnc, err := s.encSvc.Encrypt(req.AccessToken)
	if err != nil {
		return nil, apperror.ErrEncryptionFailure(fmt.Errorf("encrypt access token: %w", err))
	}

	now := time.Now().UTC()
	channel := &domain.Channel{
		ID:             uuid.New(),
		TenantID:       req.TenantID,
		Name:           req.Name,
		PhoneNumber:    normalized,
		SubscriptionID: req.SubscriptionID,
		AccessTokenEnc: tokenEnc,
		WebhookSecret:  req.WebhookSecret,
		VerifyToken:    req.VerifyToken,
		Status:         domain.ChannelStatusDisconnected,
		DailySendLimit: req.DailySendLimit,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.channelRepo.Create(ctx, channel); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create channel: %w", err))
	}

	s.log.Info().
		Str("channel_id", channel.ID.String()).
		Str("tenant_id", req.TenantID.String()).
		Msg("channel registered")
	return channel, nil
}

// List fetches all channels of a tenant.
func (s *ChannelServiceImpl) List(ctx context.Context, tenantID uuid.UUID) ([]domain.Channel, error) {
	channels, err := s.channelRepo.List(ctx, tenantID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("list channels: %w", err))
	}
	return channels, nil
}

// SendCredentials decrypts the channel's gateway credentials.
func (s *ChannelServiceImpl) SendCredentials(ctx context.Context, ch *domain.Channel) (ports.Credentials, error) {
	if ch.AccessTokenEnc == "" || ch.SubscriptionID == "" {
		return ports.Credentials{}, apperror.ErrChannelMissingCredentials()
	}
	token, err := s.encSvc.Decrypt(ch.AccessTokenEnc)
	if err != nil {
		return ports.Credentials{}, apperror.ErrEncryptionFailure(fmt.Errorf("decrypt access token: %w", err))
	}
	return ports.Credentials{
		AccessToken:    token,
		SubscriptionID: ch.SubscriptionID,
	}, nil
}
