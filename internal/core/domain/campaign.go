package domain

import (
	"time"

	"github.com/google/uuid"
)

// CampaignStatus represents the lifecycle state of a broadcast campaign.
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusRunning   CampaignStatus = "running"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusDone      CampaignStatus = "done"
	CampaignStatusCancelled CampaignStatus = "cancelled"
)

// PausedReason explains why a campaign was paused automatically.
type PausedReason string

const (
	// PausedReasonTokenInvalid is set when the gateway rejects the channel
	// credentials mid-batch. The campaign must not resume until the operator
	// reconfigures the channel.
	PausedReasonTokenInvalid PausedReason = "TOKEN_INVALID"
	PausedReasonManual       PausedReason = "MANUAL"
)

// Campaign is a template broadcast to a set of contacts over one channel.
// The counters are a cache derived from the recipient queue; the queue rows
// are the source of truth and the dispatcher rewrites the counters after
// every batch.
type Campaign struct {
	ID               uuid.UUID         `json:"id"`
	TenantID         uuid.UUID         `json:"tenant_id"`
	ChannelID        uuid.UUID         `json:"channel_id"`
	TemplateID       uuid.UUID         `json:"template_id"`
	Name             string            `json:"name"`
	Status           CampaignStatus    `json:"status"`
	PausedReason     *PausedReason     `json:"paused_reason,omitempty"`
	VariableDefaults map[string]string `json:"variable_defaults,omitempty"`
	TotalRecipients  int               `json:"total_recipients"`
	SentCount        int               `json:"sent_count"`
	DeliveredCount   int               `json:"delivered_count"`
	ReadCount        int               `json:"read_count"`
	FailedCount      int               `json:"failed_count"`
	ScheduledAt      *time.Time        `json:"scheduled_at,omitempty"`
	StartedAt        *time.Time        `json:"started_at,omitempty"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// IsTerminal returns true if the campaign can no longer change state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignStatusDone || c.Status == CampaignStatusCancelled
}

// campaignTransitions lists the allowed status transitions.
var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignStatusDraft:     {CampaignStatusScheduled, CampaignStatusRunning, CampaignStatusCancelled},
	CampaignStatusScheduled: {CampaignStatusRunning, CampaignStatusCancelled},
	CampaignStatusRunning:   {CampaignStatusPaused, CampaignStatusDone, CampaignStatusCancelled},
	CampaignStatusPaused:    {CampaignStatusRunning, CampaignStatusCancelled},
}

// CanTransition reports whether moving from the current status to target is
// a legal lifecycle transition.
func (c *Campaign) CanTransition(target CampaignStatus) bool {
	for _, s := range campaignTransitions[c.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// DispatchSpeed selects the batch size and inter-send pacing for a dispatch
// invocation.
type DispatchSpeed string

const (
	SpeedSlow   DispatchSpeed = "slow"
	SpeedNormal DispatchSpeed = "normal"
	SpeedFast   DispatchSpeed = "fast"
)

// BatchSize returns how many recipients one dispatch invocation may claim.
func (s DispatchSpeed) BatchSize() int {
	switch s {
	case SpeedSlow:
		return 10
	case SpeedFast:
		return 50
	default:
		return 20
	}
}

// SendDelay returns the fixed pause between consecutive sends.
func (s DispatchSpeed) SendDelay() time.Duration {
	switch s {
	case SpeedSlow:
		return 3000 * time.Millisecond
	case SpeedFast:
		return 800 * time.Millisecond
	default:
		return 1500 * time.Millisecond
	}
}

// Valid reports whether the speed is one of the known tiers.
func (s DispatchSpeed) Valid() bool {
	return s == SpeedSlow || s == SpeedNormal || s == SpeedFast
}
