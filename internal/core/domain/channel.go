package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChannelStatus reflects whether the BSP subscription is known to be live.
// Receiving any valid webhook is itself proof of connectivity, so the
// ingestion pipeline flips disconnected channels back to connected.
type ChannelStatus string

const (
	ChannelStatusConnected    ChannelStatus = "connected"
	ChannelStatusDisconnected ChannelStatus = "disconnected"
)

// Channel is one outbound WhatsApp identity of a tenant: a phone number
// registered with the BSP, plus the credentials to send through it.
// AccessTokenEnc is AES-GCM encrypted at rest.
type Channel struct {
	ID             uuid.UUID     `json:"id"`
	TenantID       uuid.UUID     `json:"tenant_id"`
	Name           string        `json:"name"`
	PhoneNumber    string        `json:"phone_number"`
	SubscriptionID string        `json:"subscription_id"` // provider-side webhook subscription
	AccessTokenEnc string        `json:"-"`
	WebhookSecret  string        `json:"-"` // HMAC secret for webhook signatures, may be empty
	VerifyToken    string        `json:"-"` // GET handshake verify token, may be empty
	Status         ChannelStatus `json:"status"`
	// DailySendLimit is the rolling 24h tier ceiling. Planning aid consumed
	// at campaign creation; the dispatcher does not enforce it.
	DailySendLimit int        `json:"daily_send_limit"`
	LastWebhookAt  *time.Time `json:"last_webhook_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// SendReady reports whether the channel can be dispatched through.
func (ch *Channel) SendReady() bool {
	return ch.Status == ChannelStatusConnected &&
		ch.AccessTokenEnc != "" &&
		ch.SubscriptionID != ""
}
