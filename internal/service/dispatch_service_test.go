package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"whatsapp-broadcast-platform/config"
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

type dispatchTestDeps struct {
	svc           *DispatchServiceImpl
	campaignRepo  *mocks.MockCampaignRepository
	recipientRepo *mocks.MockRecipientRepository
	channelRepo   *mocks.MockChannelRepository
	templateRepo  *mocks.MockTemplateRepository
	contactRepo   *mocks.MockContactRepository
	channelSvc    *mocks.MockChannelService
	gateway       *mocks.MockGateway
	ctrl          *gomock.Controller

	slept []time.Duration
}

var dispatchNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func setupDispatchService(t *testing.T) *dispatchTestDeps {
	ctrl := gomock.NewController(t)
	d := &dispatchTestDeps{
		campaignRepo:  mocks.NewMockCampaignRepository(ctrl),
		recipientRepo: mocks.NewMockRecipientRepository(ctrl),
		channelRepo:   mocks.NewMockChannelRepository(ctrl),
		templateRepo:  mocks.NewMockTemplateRepository(ctrl),
		contactRepo:   mocks.NewMockContactRepository(ctrl),
		channelSvc:    mocks.NewMockChannelService(ctrl),
		gateway:       mocks.NewMockGateway(ctrl),
		ctrl:          ctrl,
	}
	d.svc = NewDispatchService(
		d.campaignRepo, d.recipientRepo, d.channelRepo, d.templateRepo,
		d.contactRepo, d.channelSvc, d.gateway,
		config.GatewayConfig{DefaultCountryCode: "254"},
		config.DispatchConfig{Budget: 140 * time.Second},
		zerolog.Nop(),
	)
	// Deterministic clock, recorded sleeps.
	d.svc.now = func() time.Time { return dispatchNow }
	d.svc.sleep = func(dur time.Duration) { d.slept = append(d.slept, dur) }
	return d
}

func runningCampaign() *domain.Campaign {
	return &domain.Campaign{
		ID:         uuid.New(),
		TenantID:   uuid.New(),
		ChannelID:  uuid.New(),
		TemplateID: uuid.New(),
		Name:       "June promo",
		Status:     domain.CampaignStatusRunning,
	}
}

func readyChannel(campaign *domain.Campaign) *domain.Channel {
	return &domain.Channel{
		ID:             campaign.ChannelID,
		TenantID:       campaign.TenantID,
		Status:         domain.ChannelStatusConnected,
		AccessTokenEnc: "enc_token",
		SubscriptionID: "sub_1",
	}
}

func approvedTemplate(campaign *domain.Campaign) *domain.Template {
	return &domain.Template{
		ID:       campaign.TemplateID,
		TenantID: campaign.TenantID,
		Name:     "promo",
		Body:     "Hi {{contact_name}}!",
		Status:   domain.TemplateStatusApproved,
	}
}

func queuedRecipients(campaign *domain.Campaign, n int) ([]domain.Recipient, []domain.Contact) {
	recipients := make([]domain.Recipient, 0, n)
	contacts := make([]domain.Contact, 0, n)
	for i := 0; i < n; i++ {
		contactID := uuid.New()
		recipients = append(recipients, domain.Recipient{
			ID:         uuid.New(),
			CampaignID: campaign.ID,
			ContactID:  contactID,
			Phone:      "254712345678",
			Status:     domain.RecipientStatusQueued,
		})
		contacts = append(contacts, domain.Contact{
			ID:       contactID,
			TenantID: campaign.TenantID,
			Phone:    "254712345678",
			Name:     "Alice",
		})
	}
	return recipients, contacts
}

// expectPreconditions wires the happy-path precondition lookups.
func (d *dispatchTestDeps) expectPreconditions(ctx context.Context, campaign *domain.Campaign) ports.Credentials {
	channel := readyChannel(campaign)
	creds := ports.Credentials{AccessToken: "token", SubscriptionID: "sub_1"}
	d.campaignRepo.EXPECT().GetByID(ctx, campaign.ID).Return(campaign, nil)
	d.channelRepo.EXPECT().GetByID(ctx, campaign.ChannelID).Return(channel, nil)
	d.templateRepo.EXPECT().GetByID(ctx, campaign.TemplateID).Return(approvedTemplate(campaign), nil)
	d.channelSvc.EXPECT().SendCredentials(ctx, channel).Return(creds, nil)
	return creds
}

func TestDispatchService_ProcessBatch_Success(t *testing.T) {
	d := setupDispatchService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	campaign := runningCampaign()
	creds := d.expectPreconditions(ctx, campaign)
	recipients, contacts := queuedRecipients(campaign, 2)

	d.recipientRepo.EXPECT().ClaimBatch(ctx, campaign.ID, 20, dispatchNow).Return(recipients, nil)
	d.contactRepo.EXPECT().GetByIDs(ctx, campaign.TenantID, gomock.Any()).Return(contacts, nil)

	vars := map[string]string{domain.VarContactName: "Alice"}
	d.gateway.EXPECT().SendTemplate(ctx, creds, "254712345678", gomock.Any(), vars).
		Return(&ports.SendResult{ProviderMessageID: "wamid.1"}, nil)
	d.recipientRepo.EXPECT().MarkSent(ctx, recipients[0].ID, "wamid.1", dispatchNow).Return(nil)
	d.gateway.EXPECT().SendTemplate(ctx, creds, "254712345678", gomock.Any(), vars).
		Return(&ports.SendResult{ProviderMessageID: "wamid.2"}, nil)
	d.recipientRepo.EXPECT().MarkSent(ctx, recipients[1].ID, "wamid.2", dispatchNow).Return(nil)

	counts := domain.RecipientCounts{Total: 10, Queued: 8, Sent: 2}
	d.recipientRepo.EXPECT().CountByStatus(ctx, campaign.ID).Return(counts, nil)
	d.campaignRepo.EXPECT().UpdateCounters(ctx, campaign.ID, counts).Return(nil)

	result, err := d.svc.ProcessBatch(ctx, campaign.ID, domain.SpeedNormal)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 2, result.Success)
	assert.Equal(t, 0, result.Failed)
	assert.False(t, result.Finished)
	// One inter-send pause between the two sends, none after the last.
	assert.Equal(t, []time.Duration{1500 * time.Millisecond}, d.slept)
}

func TestDispatchService_ProcessBatch_AuthErrorPausesCampaign(t *testing.T) {
	d := setupDispatchService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	campaign := runningCampaign()
	creds := d.expectPreconditions(ctx, campaign)
	recipients, contacts := queuedRecipients(campaign, 3)

	d.recipientRepo.EXPECT().ClaimBatch(ctx, campaign.ID, 20, dispatchNow).Return(recipients, nil)
	d.contactRepo.EXPECT().GetByIDs(ctx, campaign.TenantID, gomock.Any()).Return(contacts, nil)

	d.gateway.EXPECT().SendTemplate(ctx, creds, "254712345678", gomock.Any(), gomock.Any()).
		Return(nil, &domain.SendError{Category: domain.SendErrorAuth, Code: "190", Detail: "token expired"})
	// The first recipient fails terminally and the campaign is paused.
	d.recipientRepo.EXPECT().MarkFailed(ctx, recipients[0].ID, 1, nil, gomock.Any()).Return(nil)
	reason := domain.PausedReasonTokenInvalid
	d.campaignRepo.EXPECT().UpdateStatus(ctx, campaign.ID, domain.CampaignStatusPaused, &reason, nil).Return(nil)
	// The untouched claims are handed back for the next invocation.
	d.recipientRepo.EXPECT().Release(ctx, []uuid.UUID{recipients[1].ID, recipients[2].ID}).Return(nil)

	// Counters still reconcile after an auth pause.
	counts := domain.RecipientCounts{Total: 3, Queued: 2, Failed: 1}
	d.recipientRepo.EXPECT().CountByStatus(ctx, campaign.ID).Return(counts, nil)
	d.campaignRepo.EXPECT().UpdateCounters(ctx, campaign.ID, counts).Return(nil)

	result, err := d.svc.ProcessBatch(ctx, campaign.ID, domain.SpeedNormal)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Failed)
	require.NotNil(t, result.PausedReason)
	assert.Equal(t, domain.PausedReasonTokenInvalid, *result.PausedReason)
	assert.False(t, result.Finished)
	assert.Empty(t, d.slept)
}

func TestDispatchService_ProcessBatch_RateLimitSlowsBatch(t *testing.T) {
	d := setupDispatchService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	campaign := runningCampaign()
	creds := d.expectPreconditions(ctx, campaign)
	recipients, contacts := queuedRecipients(campaign, 1)

	d.recipientRepo.EXPECT().ClaimBatch(ctx, campaign.ID, 20, dispatchNow).Return(recipients, nil)
	d.contactRepo.EXPECT().GetByIDs(ctx, campaign.TenantID, gomock.Any()).Return(contacts, nil)

	d.gateway.EXPECT().SendTemplate(ctx, creds, "254712345678", gomock.Any(), gomock.Any()).
		Return(nil, &domain.SendError{Category: domain.SendErrorRateLimit, Code: "429", Detail: "too many requests"})
	// Retry scheduled with a future retry time and the attempt counter
	// untouched: throttling does not consume the retry budget.
	d.recipientRepo.EXPECT().
		MarkFailed(ctx, recipients[0].ID, 0, gomock.Not(gomock.Nil()), gomock.Any()).
		Return(nil)

	counts := domain.RecipientCounts{Total: 1, Failed: 1, PendingRetries: 1}
	d.recipientRepo.EXPECT().CountByStatus(ctx, campaign.ID).Return(counts, nil)
	d.campaignRepo.EXPECT().UpdateCounters(ctx, campaign.ID, counts).Return(nil)

	result, err := d.svc.ProcessBatch(ctx, campaign.ID, domain.SpeedNormal)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RetryScheduled)
	assert.True(t, result.RateLimited)
	assert.False(t, result.Finished)
	// The whole batch backs off once.
	require.Len(t, d.slept, 1)
	assert.GreaterOrEqual(t, d.slept[0], 1600*time.Millisecond) // base 2s with -20% jitter floor
}

func TestDispatchService_ProcessBatch_RateLimitNeverExhaustsRecipient(t *testing.T) {
	d := setupDispatchService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	campaign := runningCampaign()
	creds := d.expectPreconditions(ctx, campaign)
	recipients, contacts := queuedRecipients(campaign, 1)
	// One transient failure away from the cap. A 429 here must not push the
	// row over it and strand a scheduled retry that can never fire.
	recipients[0].Status = domain.RecipientStatusFailed
	recipients[0].Attempts = domain.MaxSendAttempts - 1

	d.recipientRepo.EXPECT().ClaimBatch(ctx, campaign.ID, 20, dispatchNow).Return(recipients, nil)
	d.contactRepo.EXPECT().GetByIDs(ctx, campaign.TenantID, gomock.Any()).Return(contacts, nil)

	d.gateway.EXPECT().SendTemplate(ctx, creds, "254712345678", gomock.Any(), gomock.Any()).
		Return(nil, &domain.SendError{Category: domain.SendErrorRateLimit, Code: "429", Detail: "too many requests"})
	d.recipientRepo.EXPECT().
		MarkFailed(ctx, recipients[0].ID, domain.MaxSendAttempts-1, gomock.Not(gomock.Nil()), gomock.Any()).
		Return(nil)

	counts := domain.RecipientCounts{Total: 1, Failed: 1, PendingRetries: 1}
	d.recipientRepo.EXPECT().CountByStatus(ctx, campaign.ID).Return(counts, nil)
	d.campaignRepo.EXPECT().UpdateCounters(ctx, campaign.ID, counts).Return(nil)

	result, err := d.svc.ProcessBatch(ctx, campaign.ID, domain.SpeedNormal)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RetryScheduled)
	assert.Equal(t, 0, result.Failed)
	// The retry still counts as pending, so the campaign stays running.
	assert.False(t, result.Finished)
}

func TestDispatchService_ProcessBatch_TemporaryErrorSchedulesRetry(t *testing.T) {
	d := setupDispatchService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	campaign := runningCampaign()
	creds := d.expectPreconditions(ctx, campaign)
	recipients, contacts := queuedRecipients(campaign, 1)

	d.recipientRepo.EXPECT().ClaimBatch(ctx, campaign.ID, 20, dispatchNow).Return(recipients, nil)
	d.contactRepo.EXPECT().GetByIDs(ctx, campaign.TenantID, gomock.Any()).Return(contacts, nil)

	d.gateway.EXPECT().SendTemplate(ctx, creds, "254712345678", gomock.Any(), gomock.Any()).
		Return(nil, &domain.SendError{Category: domain.SendErrorTemporary, Detail: "gateway timeout"})
	d.recipientRepo.EXPECT().
		MarkFailed(ctx, recipients[0].ID, 1, gomock.Not(gomock.Nil()), gomock.Any()).
		Return(nil)

	counts := domain.RecipientCounts{Total: 1, Failed: 1, PendingRetries: 1}
	d.recipientRepo.EXPECT().CountByStatus(ctx, campaign.ID).Return(counts, nil)
	d.campaignRepo.EXPECT().UpdateCounters(ctx, campaign.ID, counts).Return(nil)

	result, err := d.svc.ProcessBatch(ctx, campaign.ID, domain.SpeedNormal)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RetryScheduled)
	assert.Equal(t, 0, result.Failed)
	assert.False(t, result.RateLimited)
}

func TestDispatchService_ProcessBatch_TemporaryErrorExhaustsAttempts(t *testing.T) {
	d := setupDispatchService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	campaign := runningCampaign()
	creds := d.expectPreconditions(ctx, campaign)
	recipients, contacts := queuedRecipients(campaign, 1)
	recipients[0].Attempts = domain.MaxSendAttempts - 1 // final attempt

	d.recipientRepo.EXPECT().ClaimBatch(ctx, campaign.ID, 20, dispatchNow).Return(recipients, nil)
	d.contactRepo.EXPECT().GetByIDs(ctx, campaign.TenantID, gomock.Any()).Return(contacts, nil)

	d.gateway.EXPECT().SendTemplate(ctx, creds, "254712345678", gomock.Any(), gomock.Any()).
		Return(nil, &domain.SendError{Category: domain.SendErrorTemporary, Detail: "gateway timeout"})
	// No retry time: the recipient is terminally failed.
	d.recipientRepo.EXPECT().MarkFailed(ctx, recipients[0].ID, domain.MaxSendAttempts, nil, gomock.Any()).Return(nil)

	counts := domain.RecipientCounts{Total: 1, Failed: 1}
	d.recipientRepo.EXPECT().CountByStatus(ctx, campaign.ID).Return(counts, nil)
	d.campaignRepo.EXPECT().UpdateCounters(ctx, campaign.ID, counts).Return(nil)
	completedAt := dispatchNow
	d.campaignRepo.EXPECT().UpdateStatus(ctx, campaign.ID, domain.CampaignStatusDone, nil, &completedAt).Return(nil)

	result, err := d.svc.ProcessBatch(ctx, campaign.ID, domain.SpeedNormal)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, result.RetryScheduled)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "254712345678", result.Errors[0].Phone)
	// Drained queue (failures included) completes the campaign.
	assert.True(t, result.Finished)
}

func TestDispatchService_ProcessBatch_InvalidPhoneIsTerminal(t *testing.T) {
	d := setupDispatchService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	campaign := runningCampaign()
	d.expectPreconditions(ctx, campaign)
	recipients, contacts := queuedRecipients(campaign, 1)
	recipients[0].Phone = "not-a-phone"

	d.recipientRepo.EXPECT().ClaimBatch(ctx, campaign.ID, 20, dispatchNow).Return(recipients, nil)
	d.contactRepo.EXPECT().GetByIDs(ctx, campaign.TenantID, gomock.Any()).Return(contacts, nil)
	d.recipientRepo.EXPECT().MarkFailed(ctx, recipients[0].ID, 1, nil, gomock.Any()).Return(nil)

	counts := domain.RecipientCounts{Total: 1, Failed: 1}
	d.recipientRepo.EXPECT().CountByStatus(ctx, campaign.ID).Return(counts, nil)
	d.campaignRepo.EXPECT().UpdateCounters(ctx, campaign.ID, counts).Return(nil)
	completedAt := dispatchNow
	d.campaignRepo.EXPECT().UpdateStatus(ctx, campaign.ID, domain.CampaignStatusDone, nil, &completedAt).Return(nil)

	result, err := d.svc.ProcessBatch(ctx, campaign.ID, domain.SpeedNormal)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, result.Success)
}

func TestDispatchService_ProcessBatch_EmptyQueueCompletes(t *testing.T) {
	d := setupDispatchService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	campaign := runningCampaign()
	d.expectPreconditions(ctx, campaign)

	d.recipientRepo.EXPECT().ClaimBatch(ctx, campaign.ID, 50, dispatchNow).Return(nil, nil)

	counts := domain.RecipientCounts{Total: 100, Sent: 95, Failed: 5}
	d.recipientRepo.EXPECT().CountByStatus(ctx, campaign.ID).Return(counts, nil)
	d.campaignRepo.EXPECT().UpdateCounters(ctx, campaign.ID, counts).Return(nil)
	completedAt := dispatchNow
	d.campaignRepo.EXPECT().UpdateStatus(ctx, campaign.ID, domain.CampaignStatusDone, nil, &completedAt).Return(nil)

	result, err := d.svc.ProcessBatch(ctx, campaign.ID, domain.SpeedFast)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.True(t, result.Finished)
}

func TestDispatchService_ProcessBatch_PendingRetriesBlockCompletion(t *testing.T) {
	d := setupDispatchService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	campaign := runningCampaign()
	d.expectPreconditions(ctx, campaign)

	// Nothing is due right now, but a failed row still has a retry
	// scheduled: the campaign must stay running.
	d.recipientRepo.EXPECT().ClaimBatch(ctx, campaign.ID, 20, dispatchNow).Return(nil, nil)
	counts := domain.RecipientCounts{Total: 10, Sent: 9, Failed: 1, PendingRetries: 1}
	d.recipientRepo.EXPECT().CountByStatus(ctx, campaign.ID).Return(counts, nil)
	d.campaignRepo.EXPECT().UpdateCounters(ctx, campaign.ID, counts).Return(nil)

	result, err := d.svc.ProcessBatch(ctx, campaign.ID, domain.SpeedNormal)
	require.NoError(t, err)
	assert.False(t, result.Finished)
}

func TestDispatchService_ProcessBatch_MidBatchPauseStopsProcessing(t *testing.T) {
	d := setupDispatchService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	campaign := runningCampaign()
	creds := d.expectPreconditions(ctx, campaign)
	recipients, contacts := queuedRecipients(campaign, 11)

	d.recipientRepo.EXPECT().ClaimBatch(ctx, campaign.ID, 20, dispatchNow).Return(recipients, nil)
	d.contactRepo.EXPECT().GetByIDs(ctx, campaign.TenantID, gomock.Any()).Return(contacts, nil)

	// First ten sends succeed, then the status recheck observes a pause.
	d.gateway.EXPECT().SendTemplate(ctx, creds, "254712345678", gomock.Any(), gomock.Any()).
		Return(&ports.SendResult{ProviderMessageID: "wamid.ok"}, nil).Times(10)
	d.recipientRepo.EXPECT().MarkSent(ctx, gomock.Any(), "wamid.ok", dispatchNow).Return(nil).Times(10)

	paused := runningCampaign()
	paused.ID = campaign.ID
	paused.Status = domain.CampaignStatusPaused
	d.campaignRepo.EXPECT().GetByID(ctx, campaign.ID).Return(paused, nil)
	d.recipientRepo.EXPECT().Release(ctx, []uuid.UUID{recipients[10].ID}).Return(nil)

	counts := domain.RecipientCounts{Total: 11, Sent: 10, Queued: 1}
	d.recipientRepo.EXPECT().CountByStatus(ctx, campaign.ID).Return(counts, nil)
	d.campaignRepo.EXPECT().UpdateCounters(ctx, campaign.ID, counts).Return(nil)

	result, err := d.svc.ProcessBatch(ctx, campaign.ID, domain.SpeedNormal)
	require.NoError(t, err)
	assert.Equal(t, 10, result.Processed)
	assert.Equal(t, 10, result.Success)
	assert.False(t, result.Finished)
}

func TestDispatchService_ProcessBatch_BudgetExhaustedReleasesClaims(t *testing.T) {
	d := setupDispatchService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	campaign := runningCampaign()
	d.expectPreconditions(ctx, campaign)
	recipients, contacts := queuedRecipients(campaign, 2)

	d.svc.budget = -time.Second // deadline already passed when the loop starts

	d.recipientRepo.EXPECT().ClaimBatch(ctx, campaign.ID, 20, dispatchNow).Return(recipients, nil)
	d.contactRepo.EXPECT().GetByIDs(ctx, campaign.TenantID, gomock.Any()).Return(contacts, nil)
	d.recipientRepo.EXPECT().Release(ctx, []uuid.UUID{recipients[0].ID, recipients[1].ID}).Return(nil)

	counts := domain.RecipientCounts{Total: 2, Queued: 2}
	d.recipientRepo.EXPECT().CountByStatus(ctx, campaign.ID).Return(counts, nil)
	d.campaignRepo.EXPECT().UpdateCounters(ctx, campaign.ID, counts).Return(nil)

	result, err := d.svc.ProcessBatch(ctx, campaign.ID, domain.SpeedNormal)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.False(t, result.Finished)
}

func TestDispatchService_ProcessBatch_NotRunning(t *testing.T) {
	d := setupDispatchService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	campaign := runningCampaign()
	campaign.Status = domain.CampaignStatusPaused
	d.campaignRepo.EXPECT().GetByID(ctx, campaign.ID).Return(campaign, nil)

	_, err := d.svc.ProcessBatch(ctx, campaign.ID, domain.SpeedNormal)
	require.Error(t, err)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "CMP_002", appErr.Code)
}

func TestDispatchService_ProcessBatch_CampaignNotFound(t *testing.T) {
	d := setupDispatchService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	id := uuid.New()
	d.campaignRepo.EXPECT().GetByID(ctx, id).Return(nil, nil)

	_, err := d.svc.ProcessBatch(ctx, id, domain.SpeedNormal)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "CMP_001", appErr.Code)
}

func TestDispatchService_ProcessBatch_ChannelNotConnected(t *testing.T) {
	d := setupDispatchService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	campaign := runningCampaign()
	channel := readyChannel(campaign)
	channel.Status = domain.ChannelStatusDisconnected

	d.campaignRepo.EXPECT().GetByID(ctx, campaign.ID).Return(campaign, nil)
	d.channelRepo.EXPECT().GetByID(ctx, campaign.ChannelID).Return(channel, nil)

	_, err := d.svc.ProcessBatch(ctx, campaign.ID, domain.SpeedNormal)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "CHN_002", appErr.Code)
}

func TestDispatchService_ProcessBatch_ChannelMissingCredentials(t *testing.T) {
	d := setupDispatchService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	campaign := runningCampaign()
	channel := readyChannel(campaign)
	channel.AccessTokenEnc = ""

	d.campaignRepo.EXPECT().GetByID(ctx, campaign.ID).Return(campaign, nil)
	d.channelRepo.EXPECT().GetByID(ctx, campaign.ChannelID).Return(channel, nil)

	_, err := d.svc.ProcessBatch(ctx, campaign.ID, domain.SpeedNormal)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "CHN_003", appErr.Code)
}

func TestDispatchService_ProcessBatch_TemplateNotApproved(t *testing.T) {
	d := setupDispatchService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	campaign := runningCampaign()
	tpl := approvedTemplate(campaign)
	tpl.Status = domain.TemplateStatusPending

	d.campaignRepo.EXPECT().GetByID(ctx, campaign.ID).Return(campaign, nil)
	d.channelRepo.EXPECT().GetByID(ctx, campaign.ChannelID).Return(readyChannel(campaign), nil)
	d.templateRepo.EXPECT().GetByID(ctx, campaign.TemplateID).Return(tpl, nil)

	_, err := d.svc.ProcessBatch(ctx, campaign.ID, domain.SpeedNormal)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "CMP_005", appErr.Code)
}

func TestDispatchService_ProcessBatch_InvalidSpeed(t *testing.T) {
	d := setupDispatchService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.ProcessBatch(context.Background(), uuid.New(), domain.DispatchSpeed("ludicrous"))
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VAL_001", appErr.Code)
}

func TestDispatchService_ProcessBatch_UntypedSendErrorIsTerminal(t *testing.T) {
	d := setupDispatchService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	campaign := runningCampaign()
	creds := d.expectPreconditions(ctx, campaign)
	recipients, contacts := queuedRecipients(campaign, 1)

	d.recipientRepo.EXPECT().ClaimBatch(ctx, campaign.ID, 20, dispatchNow).Return(recipients, nil)
	d.contactRepo.EXPECT().GetByIDs(ctx, campaign.TenantID, gomock.Any()).Return(contacts, nil)

	d.gateway.EXPECT().SendTemplate(ctx, creds, "254712345678", gomock.Any(), gomock.Any()).
		Return(nil, errors.New("connection reset"))
	d.recipientRepo.EXPECT().MarkFailed(ctx, recipients[0].ID, 1, gomock.Nil(), "unknown: connection reset").Return(nil)

	counts := domain.RecipientCounts{Total: 1, Failed: 1}
	d.recipientRepo.EXPECT().CountByStatus(ctx, campaign.ID).Return(counts, nil)
	d.campaignRepo.EXPECT().UpdateCounters(ctx, campaign.ID, counts).Return(nil)
	completedAt := dispatchNow
	d.campaignRepo.EXPECT().UpdateStatus(ctx, campaign.ID, domain.CampaignStatusDone, nil, &completedAt).Return(nil)

	result, err := d.svc.ProcessBatch(ctx, campaign.ID, domain.SpeedNormal)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
}

func TestBackoffDelay(t *testing.T) {
	for attempt, base := range map[int]time.Duration{
		1: 2 * time.Second,
		2: 4 * time.Second,
		3: 8 * time.Second,
		9: 30 * time.Second, // capped
	} {
		d := backoffDelay(attempt)
		assert.GreaterOrEqual(t, d, time.Duration(float64(base)*0.8), "attempt %d", attempt)
		assert.LessOrEqual(t, d, time.Duration(float64(base)*1.2), "attempt %d", attempt)
	}
}
