package service

import (
	"context"
	"fmt"
	"time"

	"whatsapp-broadcast-platform/internal/core/domain"
	"whatsapp-broadcast-platform/internal/core/ports"
	"whatsapp-broadcast-platform/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CampaignServiceImpl implements ports.CampaignService.
type CampaignServiceImpl struct {
	campaignRepo  ports.CampaignRepository
	recipientRepo ports.RecipientRepository
	channelRepo   ports.ChannelRepository
	templateRepo  ports.TemplateRepository
	contactRepo   ports.ContactRepository
	transactor    ports.DBTransactor
	log           zerolog.Logger
}

// NewCampaignService creates a new CampaignServiceImpl.
func NewCampaignService(
	campaignRepo ports.CampaignRepository,
	recipientRepo ports.RecipientRepository,
	channelRepo ports.ChannelRepository,
	templateRepo ports.TemplateRepository,
	contactRepo ports.ContactRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *CampaignServiceImpl {
	return &CampaignServiceImpl{
		campaignRepo:  campaignRepo,
		recipientRepo: recipientRepo,
		channelRepo:   channelRepo,
		templateRepo:  templateRepo,
		contactRepo:   contactRepo,
		transactor:    transactor,
		log:           log,
	}
}

// Create validates references and stores a draft campaign with its contact
// selection. Queue rows are only materialized at start.
func (s *CampaignServiceImpl) Create(ctx context.Context, req ports.CreateCampaignRequest) (*domain.Campaign, error) {
	if req.Name == "" {
		return nil, apperror.Validation("campaign name is required")
	}
	if len(req.ContactIDs) == 0 {
		return nil, apperror.ErrNoRecipients()
	}

	channel, err := s.channelRepo.GetByID(ctx, req.ChannelID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("load channel: %w", err))
	}
	if channel == nil || channel.TenantID != req.TenantID {
		return nil, apperror.ErrChannelNotFound()
	}
	if channel.DailySendLimit > 0 && len(req.ContactIDs) > channel.DailySendLimit {
		return nil, apperror.Validation(fmt.Sprintf(
			"recipient count %d exceeds the channel's daily send limit of %d",
			len(req.ContactIDs), channel.DailySendLimit))
	}

	tpl, err := s.templateRepo.GetByID(ctx, req.TemplateID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("load template: %w", err))
	}
	if tpl == nil || tpl.TenantID != req.TenantID {
		return nil, apperror.Validation("template not found")
	}
	if tpl.Status != domain.TemplateStatusApproved {
		return nil, apperror.ErrTemplateNotApproved(string(tpl.Status))
	}

	contacts, err := s.contactRepo.GetByIDs(ctx, req.TenantID, req.ContactIDs)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("load contacts: %w", err))
	}
	if len(contacts) == 0 {
		return nil, apperror.ErrNoRecipients()
	}

	now := time.Now().UTC()
	status := domain.CampaignStatusDraft
	if req.ScheduledAt != nil {
		status = domain.CampaignStatusScheduled
	}
	campaign := &domain.Campaign{
		ID:               uuid.New(),
		TenantID:         req.TenantID,
		ChannelID:        req.ChannelID,
		TemplateID:       req.TemplateID,
		Name:             req.Name,
		Status:           status,
		VariableDefaults: req.VariableDefaults,
		TotalRecipients:  len(contacts),
		ScheduledAt:      req.ScheduledAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.campaignRepo.Create(ctx, campaign); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create campaign: %w", err))
	}

	ids := make([]uuid.UUID, 0, len(contacts))
	for _, c := range contacts {
		ids = append(ids, c.ID)
	}
	if err := s.campaignRepo.SaveSelection(ctx, campaign.ID, ids); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("save selection: %w", err))
	}

	s.log.Info().
		Str("campaign_id", campaign.ID.String()).
		Str("tenant_id", req.TenantID.String()).
		Int("recipients", len(contacts)).
		Msg("campaign created")

	return campaign, nil
}

// Get fetches one campaign, scoped to the tenant.
func (s *CampaignServiceImpl) Get(ctx context.Context, tenantID, id uuid.UUID) (*domain.Campaign, error) {
	return s.ownedCampaign(ctx, tenantID, id)
}

// List fetches a page of the tenant's campaigns.
func (s *CampaignServiceImpl) List(ctx context.Context, params ports.CampaignListParams) ([]domain.Campaign, int64, error) {
	campaigns, total, err := s.campaignRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.ErrDatabaseError(fmt.Errorf("list campaigns: %w", err))
	}
	return campaigns, total, nil
}

// Start materializes recipient queue rows from the stored selection and
// moves the campaign to running, atomically.
func (s *CampaignServiceImpl) Start(ctx context.Context, tenantID, id uuid.UUID) (*domain.Campaign, error) {
	campaign, err := s.ownedCampaign(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !campaign.CanTransition(domain.CampaignStatusRunning) {
		return nil, apperror.ErrInvalidTransition(string(campaign.Status), string(domain.CampaignStatusRunning))
	}
	// A paused campaign resumes through Resume; its queue already exists.
	if campaign.Status == domain.CampaignStatusPaused {
		return nil, apperror.ErrInvalidTransition(string(campaign.Status), string(domain.CampaignStatusRunning))
	}

	contactIDs, err := s.campaignRepo.GetSelection(ctx, id)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("load selection: %w", err))
	}
	contacts, err := s.contactRepo.GetByIDs(ctx, tenantID, contactIDs)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("load contacts: %w", err))
	}
	if len(contacts) == 0 {
		return nil, apperror.ErrNoRecipients()
	}

	now := time.Now().UTC()
	recipients := make([]domain.Recipient, 0, len(contacts))
	for _, c := range contacts {
		recipients = append(recipients, domain.Recipient{
			ID:         uuid.New(),
			CampaignID: id,
			ContactID:  c.ID,
			Phone:      c.Phone,
			Status:     domain.RecipientStatusQueued,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.recipientRepo.BulkCreate(ctx, dbTx, recipients); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("materialize recipients: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	if err := s.campaignRepo.MarkStarted(ctx, id, len(recipients), now); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("mark started: %w", err))
	}

	s.log.Info().
		Str("campaign_id", id.String()).
		Int("recipients", len(recipients)).
		Msg("campaign started")

	campaign.Status = domain.CampaignStatusRunning
	campaign.TotalRecipients = len(recipients)
	campaign.StartedAt = &now
	return campaign, nil
}

// Pause stops dispatching. The dispatcher observes the status on its next
// recheck; up to a few in-flight sends may still complete.
func (s *CampaignServiceImpl) Pause(ctx context.Context, tenantID, id uuid.UUID) error {
	reason := domain.PausedReasonManual
	return s.transition(ctx, tenantID, id, domain.CampaignStatusPaused, &reason, nil)
}

// Resume puts a paused campaign back to running.
func (s *CampaignServiceImpl) Resume(ctx context.Context, tenantID, id uuid.UUID) error {
	return s.transition(ctx, tenantID, id, domain.CampaignStatusRunning, nil, nil)
}

// Cancel terminally stops the campaign. Already-sent messages stay sent.
func (s *CampaignServiceImpl) Cancel(ctx context.Context, tenantID, id uuid.UUID) error {
	now := time.Now().UTC()
	return s.transition(ctx, tenantID, id, domain.CampaignStatusCancelled, nil, &now)
}

// RetryFailed re-queues failed recipients and returns how many were reset.
func (s *CampaignServiceImpl) RetryFailed(ctx context.Context, tenantID, id uuid.UUID) (int64, error) {
	campaign, err := s.ownedCampaign(ctx, tenantID, id)
	if err != nil {
		return 0, err
	}
	if campaign.Status == domain.CampaignStatusCancelled {
		return 0, apperror.ErrInvalidTransition(string(campaign.Status), string(domain.CampaignStatusRunning))
	}

	n, err := s.recipientRepo.ResetFailed(ctx, id)
	if err != nil {
		return 0, apperror.ErrDatabaseError(fmt.Errorf("reset failed recipients: %w", err))
	}
	if n == 0 {
		return 0, nil
	}

	// A done campaign with fresh queue rows goes back to running so the
	// poller picks it up. Done->running is the one reverse edge RetryFailed
	// is allowed to take.
	if campaign.Status == domain.CampaignStatusDone || campaign.Status == domain.CampaignStatusPaused {
		if err := s.campaignRepo.UpdateStatus(ctx, id, domain.CampaignStatusRunning, nil, nil); err != nil {
			return n, apperror.ErrDatabaseError(fmt.Errorf("restart campaign: %w", err))
		}
	}

	s.log.Info().
		Str("campaign_id", id.String()).
		Int64("requeued", n).
		Msg("failed recipients requeued")
	return n, nil
}

func (s *CampaignServiceImpl) transition(ctx context.Context, tenantID, id uuid.UUID, target domain.CampaignStatus, reason *domain.PausedReason, completedAt *time.Time) error {
	campaign, err := s.ownedCampaign(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if !campaign.CanTransition(target) {
		return apperror.ErrInvalidTransition(string(campaign.Status), string(target))
	}
	if err := s.campaignRepo.UpdateStatus(ctx, id, target, reason, completedAt); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("update status: %w", err))
	}
	s.log.Info().
		Str("campaign_id", id.String()).
		Str("from", string(campaign.Status)).
		Str("to", string(target)).
		Msg("campaign transitioned")
	return nil
}

func (s *CampaignServiceImpl) ownedCampaign(ctx context.Context, tenantID, id uuid.UUID) (*domain.Campaign, error) {
	campaign, err := s.campaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("load campaign: %w", err))
	}
	if campaign == nil || campaign.TenantID != tenantID {
		return nil, apperror.ErrCampaignNotFound()
	}
	return campaign, nil
}
