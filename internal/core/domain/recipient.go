package domain

import (
	"time"

	"github.com/google/uuid"
)

// MaxSendAttempts bounds retries for transient send failures. A recipient
// that fails this many times stays failed with no retry scheduled.
const MaxSendAttempts = 3

// ClaimLease is how long a dispatcher invocation owns a claimed recipient
// before an overlapping invocation may re-claim it.
const ClaimLease = 5 * time.Minute

// RecipientStatus is the queue state of one campaign recipient.
type RecipientStatus string

const (
	RecipientStatusQueued    RecipientStatus = "queued"
	RecipientStatusSent      RecipientStatus = "sent"
	RecipientStatusDelivered RecipientStatus = "delivered"
	RecipientStatusRead      RecipientStatus = "read"
	RecipientStatusFailed    RecipientStatus = "failed"
	RecipientStatusSkipped   RecipientStatus = "skipped"
)

// Recipient is one durable queue row of a campaign. ProviderMessageID is set
// if and only if the gateway confirmed a send for this row at least once;
// send/failed transitions are owned exclusively by the dispatcher.
type Recipient struct {
	ID                uuid.UUID         `json:"id"`
	CampaignID        uuid.UUID         `json:"campaign_id"`
	ContactID         uuid.UUID         `json:"contact_id"`
	Phone             string            `json:"phone"`
	Variables         map[string]string `json:"variables,omitempty"`
	Status            RecipientStatus   `json:"status"`
	Attempts          int               `json:"attempts"`
	NextRetryAt       *time.Time        `json:"next_retry_at,omitempty"`
	LastError         *string           `json:"last_error,omitempty"`
	ProviderMessageID *string           `json:"provider_message_id,omitempty"`
	ClaimedAt         *time.Time        `json:"claimed_at,omitempty"`
	SentAt            *time.Time        `json:"sent_at,omitempty"`
	DeliveredAt       *time.Time        `json:"delivered_at,omitempty"`
	ReadAt            *time.Time        `json:"read_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// RetryEligible reports whether a failed recipient may still be re-sent.
func (r *Recipient) RetryEligible(now time.Time) bool {
	return r.Status == RecipientStatusFailed &&
		r.NextRetryAt != nil &&
		!r.NextRetryAt.After(now) &&
		r.Attempts < MaxSendAttempts
}

// RecipientCounts aggregates queue rows by status for counter reconciliation.
type RecipientCounts struct {
	Total     int
	Queued    int
	Sent      int
	Delivered int
	Read      int
	Failed    int
	Skipped   int
	// PendingRetries is the number of failed rows that still have a retry
	// scheduled. The campaign only completes once this reaches zero.
	PendingRetries int
}

// Drained reports whether nothing is left for the dispatcher to do.
func (c RecipientCounts) Drained() bool {
	return c.Queued == 0 && c.PendingRetries == 0
}
