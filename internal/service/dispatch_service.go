package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"whatsapp-broadcast-platform/config"
	"whatsapp-broadcast-platform/internal/core/domain"
	"whatsapp-broadcast-platform/internal/core/ports"
	"whatsapp-broadcast-platform/pkg/apperror"
	"whatsapp-broadcast-platform/pkg/phone"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Backoff parameters for retryable send failures.
const (
	backoffBase = 2000 * time.Millisecond
	backoffCap  = 30000 * time.Millisecond
	// statusRecheckEvery is how often the campaign status is re-read
	// mid-batch to observe an external pause or cancel.
	statusRecheckEvery = 10
)

// DispatchServiceImpl implements ports.DispatchService. One invocation claims
// a batch of due recipients, sends them strictly sequentially with pacing,
// and reconciles campaign counters at the end. All progress is durable per
// recipient: the processor is stateless across invocations and safe to
// re-invoke from a poller until the queue drains.
type DispatchServiceImpl struct {
	campaignRepo  ports.CampaignRepository
	recipientRepo ports.RecipientRepository
	channelRepo   ports.ChannelRepository
	templateRepo  ports.TemplateRepository
	contactRepo   ports.ContactRepository
	channelSvc    ports.ChannelService
	gateway       ports.Gateway
	gatewayCfg    config.GatewayConfig
	budget        time.Duration
	log           zerolog.Logger

	// Injectable for tests; default to the real clock.
	now   func() time.Time
	sleep func(time.Duration)
}

// NewDispatchService creates a new DispatchServiceImpl.
func NewDispatchService(
	campaignRepo ports.CampaignRepository,
	recipientRepo ports.RecipientRepository,
	channelRepo ports.ChannelRepository,
	templateRepo ports.TemplateRepository,
	contactRepo ports.ContactRepository,
	channelSvc ports.ChannelService,
	gateway ports.Gateway,
	gatewayCfg config.GatewayConfig,
	dispatchCfg config.DispatchConfig,
	log zerolog.Logger,
) *DispatchServiceImpl {
	return &DispatchServiceImpl{
		campaignRepo:  campaignRepo,
		recipientRepo: recipientRepo,
		channelRepo:   channelRepo,
		templateRepo:  templateRepo,
		contactRepo:   contactRepo,
		channelSvc:    channelSvc,
		gateway:       gateway,
		gatewayCfg:    gatewayCfg,
		budget:        dispatchCfg.Budget,
		log:           log,
		now:           time.Now,
		sleep:         time.Sleep,
	}
}

// ProcessBatch runs one dispatcher invocation for the campaign.
func (s *DispatchServiceImpl) ProcessBatch(ctx context.Context, campaignID uuid.UUID, speed domain.DispatchSpeed) (*ports.BatchResult, error) {
	if !speed.Valid() {
		return nil, apperror.Validation(fmt.Sprintf("unknown dispatch speed %q", speed))
	}

	// Preconditions. A failure here returns a zero-progress result error and
	// leaves the campaign untouched; the caller retries once configuration
	// is fixed.
	campaign, err := s.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("load campaign: %w", err))
	}
	if campaign == nil {
		return nil, apperror.ErrCampaignNotFound()
	}
	if campaign.Status != domain.CampaignStatusRunning {
		return nil, apperror.ErrCampaignNotRunning(string(campaign.Status))
	}

	channel, err := s.channelRepo.GetByID(ctx, campaign.ChannelID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("load channel: %w", err))
	}
	if channel == nil {
		return nil, apperror.ErrChannelNotFound()
	}
	if !channel.SendReady() {
		if channel.Status != domain.ChannelStatusConnected {
			return nil, apperror.ErrChannelNotConnected()
		}
		return nil, apperror.ErrChannelMissingCredentials()
	}

	tpl, err := s.templateRepo.GetByID(ctx, campaign.TemplateID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("load template: %w", err))
	}
	if tpl == nil || tpl.Status != domain.TemplateStatusApproved {
		status := "missing"
		if tpl != nil {
			status = string(tpl.Status)
		}
		return nil, apperror.ErrTemplateNotApproved(status)
	}

	creds, err := s.channelSvc.SendCredentials(ctx, channel)
	if err != nil {
		return nil, err
	}

	start := s.now()
	deadline := start.Add(s.budget)

	batch, err := s.recipientRepo.ClaimBatch(ctx, campaignID, speed.BatchSize(), start)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("claim batch: %w", err))
	}

	names, err := s.contactNames(ctx, campaign.TenantID, batch)
	if err != nil {
		s.releaseClaims(ctx, batch, 0)
		return nil, apperror.ErrDatabaseError(fmt.Errorf("load contacts: %w", err))
	}

	result := &ports.BatchResult{CampaignID: campaignID}

	for i := range batch {
		rec := &batch[i]

		// External pause or cancel should stop the batch promptly.
		if i > 0 && i%statusRecheckEvery == 0 {
			current, err := s.campaignRepo.GetByID(ctx, campaignID)
			if err == nil && current != nil && current.Status != domain.CampaignStatusRunning {
				s.log.Info().
					Str("campaign_id", campaignID.String()).
					Str("status", string(current.Status)).
					Int("processed", result.Processed).
					Msg("campaign no longer running, stopping batch")
				s.releaseClaims(ctx, batch, i)
				break
			}
		}

		if s.now().After(deadline) {
			s.log.Info().
				Str("campaign_id", campaignID.String()).
				Int("processed", result.Processed).
				Msg("execution budget exhausted, stopping batch")
			s.releaseClaims(ctx, batch, i)
			break
		}

		paced := s.processRecipient(ctx, rec, campaign, tpl, creds, names[rec.ContactID], result)
		if result.PausedReason != nil {
			// Auth failure: the campaign was paused, nothing after this
			// recipient can succeed.
			s.releaseClaims(ctx, batch, i+1)
			break
		}
		if i < len(batch)-1 && !paced {
			s.sleep(speed.SendDelay())
		}
	}

	// Reconciliation runs even after an auth-pause: counters must reflect
	// whatever the batch managed to do.
	if err := s.reconcile(ctx, campaign, result); err != nil {
		s.log.Error().Err(err).Str("campaign_id", campaignID.String()).Msg("counter reconciliation failed")
	}

	s.log.Info().
		Str("campaign_id", campaignID.String()).
		Int("processed", result.Processed).
		Int("success", result.Success).
		Int("failed", result.Failed).
		Int("retry_scheduled", result.RetryScheduled).
		Bool("finished", result.Finished).
		Msg("batch processed")

	return result, nil
}

// processRecipient executes the per-recipient send algorithm. It returns true
// when it already slept (rate-limit pacing), so the caller skips the fixed
// inter-send delay.
func (s *DispatchServiceImpl) processRecipient(
	ctx context.Context,
	rec *domain.Recipient,
	campaign *domain.Campaign,
	tpl *domain.Template,
	creds ports.Credentials,
	contactName string,
	result *ports.BatchResult,
) bool {
	result.Processed++

	normalized, err := phone.Normalize(rec.Phone, s.gatewayCfg.DefaultCountryCode)
	if err != nil {
		s.markTerminal(ctx, rec, result, "", fmt.Sprintf("invalid phone %q", rec.Phone))
		return false
	}

	variables := domain.MergeVariables(campaign.VariableDefaults, rec.Variables, contactName)

	sendRes, err := s.gateway.SendTemplate(ctx, creds, normalized, tpl, variables)
	if err == nil {
		if err := s.recipientRepo.MarkSent(ctx, rec.ID, sendRes.ProviderMessageID, s.now().UTC()); err != nil {
			s.log.Error().Err(err).Str("recipient_id", rec.ID.String()).Msg("failed to mark recipient sent")
		}
		result.Success++
		return false
	}

	var sendErr *domain.SendError
	if !errors.As(err, &sendErr) {
		sendErr = &domain.SendError{Category: domain.SendErrorUnknown, Detail: err.Error()}
	}

	switch sendErr.Category {
	case domain.SendErrorAuth:
		// Every subsequent send would fail identically. Fail this recipient
		// terminally and pause the whole campaign for the operator.
		s.markTerminal(ctx, rec, result, sendErr.Code, sendErr.Error())
		reason := domain.PausedReasonTokenInvalid
		if err := s.campaignRepo.UpdateStatus(ctx, campaign.ID, domain.CampaignStatusPaused, &reason, nil); err != nil {
			s.log.Error().Err(err).Str("campaign_id", campaign.ID.String()).Msg("failed to pause campaign on auth error")
		}
		result.PausedReason = &reason
		s.log.Warn().
			Str("campaign_id", campaign.ID.String()).
			Str("channel_id", campaign.ChannelID.String()).
			Msg("gateway rejected credentials, campaign paused")
		return false

	case domain.SendErrorRateLimit:
		// Throttle the whole batch, then let the recipient retry in a later
		// invocation. Provider throttling is not the recipient's fault, so
		// the attempt counter stays put: repeated 429s can never exhaust a
		// row into a terminal failure.
		delay := backoffDelay(rec.Attempts + 1)
		retryAt := s.now().Add(delay).UTC()
		s.markRetry(ctx, rec, result, rec.Attempts, &retryAt, sendErr.Error())
		result.RateLimited = true
		s.log.Warn().
			Str("campaign_id", campaign.ID.String()).
			Dur("backoff", delay).
			Msg("gateway rate limit hit, slowing batch")
		s.sleep(delay)
		return true

	case domain.SendErrorTemporary:
		if rec.Attempts < domain.MaxSendAttempts-1 {
			retryAt := s.now().Add(backoffDelay(rec.Attempts + 1)).UTC()
			s.markRetry(ctx, rec, result, rec.Attempts+1, &retryAt, sendErr.Error())
			return false
		}
		s.markTerminal(ctx, rec, result, sendErr.Code, sendErr.Error())
		return false

	default: // recipient errors and unknown are terminal
		s.markTerminal(ctx, rec, result, sendErr.Code, sendErr.Error())
		return false
	}
}

func (s *DispatchServiceImpl) markTerminal(ctx context.Context, rec *domain.Recipient, result *ports.BatchResult, code, detail string) {
	if err := s.recipientRepo.MarkFailed(ctx, rec.ID, rec.Attempts+1, nil, detail); err != nil {
		s.log.Error().Err(err).Str("recipient_id", rec.ID.String()).Msg("failed to mark recipient failed")
	}
	result.Failed++
	result.Errors = append(result.Errors, ports.BatchError{
		Phone: rec.Phone,
		Error: detail,
		Code:  code,
	})
}

func (s *DispatchServiceImpl) markRetry(ctx context.Context, rec *domain.Recipient, result *ports.BatchResult, attempts int, retryAt *time.Time, detail string) {
	if err := s.recipientRepo.MarkFailed(ctx, rec.ID, attempts, retryAt, detail); err != nil {
		s.log.Error().Err(err).Str("recipient_id", rec.ID.String()).Msg("failed to schedule recipient retry")
	}
	result.RetryScheduled++
}

// releaseClaims clears the lease on batch rows from index from onward so the
// next invocation can claim them without waiting for lease expiry.
func (s *DispatchServiceImpl) releaseClaims(ctx context.Context, batch []domain.Recipient, from int) {
	if from >= len(batch) {
		return
	}
	ids := make([]uuid.UUID, 0, len(batch)-from)
	for _, rec := range batch[from:] {
		ids = append(ids, rec.ID)
	}
	if err := s.recipientRepo.Release(ctx, ids); err != nil {
		s.log.Warn().Err(err).Int("count", len(ids)).Msg("failed to release claimed recipients")
	}
}

// reconcile rewrites campaign counters from a queue scan and transitions the
// campaign to done once the queue is drained.
func (s *DispatchServiceImpl) reconcile(ctx context.Context, campaign *domain.Campaign, result *ports.BatchResult) error {
	counts, err := s.recipientRepo.CountByStatus(ctx, campaign.ID)
	if err != nil {
		return fmt.Errorf("count recipients: %w", err)
	}

	if err := s.campaignRepo.UpdateCounters(ctx, campaign.ID, counts); err != nil {
		return fmt.Errorf("update counters: %w", err)
	}

	if counts.Drained() && result.PausedReason == nil {
		completedAt := s.now().UTC()
		if err := s.campaignRepo.UpdateStatus(ctx, campaign.ID, domain.CampaignStatusDone, nil, &completedAt); err != nil {
			return fmt.Errorf("complete campaign: %w", err)
		}
		result.Finished = true
		s.log.Info().
			Str("campaign_id", campaign.ID.String()).
			Int("total", counts.Total).
			Int("failed", counts.Failed).
			Msg("campaign completed")
	}
	return nil
}

// contactNames resolves display names for the batch in one query.
func (s *DispatchServiceImpl) contactNames(ctx context.Context, tenantID uuid.UUID, batch []domain.Recipient) (map[uuid.UUID]string, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(batch))
	for _, rec := range batch {
		ids = append(ids, rec.ContactID)
	}
	contacts, err := s.contactRepo.GetByIDs(ctx, tenantID, ids)
	if err != nil {
		return nil, err
	}
	names := make(map[uuid.UUID]string, len(contacts))
	for _, c := range contacts {
		names[c.ID] = c.Name
	}
	return names, nil
}

// backoffDelay computes the exponential retry delay for the given attempt
// number (1-based): base doubling per attempt, capped, with ±20% jitter to
// avoid synchronized retry storms.
func backoffDelay(attempt int) time.Duration {
	d := backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= backoffCap {
			d = backoffCap
			break
		}
	}
	jitter := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(d) * jitter)
}
