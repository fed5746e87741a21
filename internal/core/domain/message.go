package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicateMessage is returned when a message with the same provider
// message ID was already stored for the tenant. Webhook redelivery hits this
// path; callers treat it as success.
var ErrDuplicateMessage = errors.New("duplicate message")

// MessageDirection distinguishes customer messages from our sends.
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

// MessageStatus is the delivery ladder of one conversation message.
type MessageStatus string

const (
	MessageStatusQueued    MessageStatus = "queued"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

// statusRank orders the delivery ladder. Failed sits outside the ladder and
// is handled separately in Supersedes.
var statusRank = map[MessageStatus]int{
	MessageStatusQueued:    0,
	MessageStatusSent:      1,
	MessageStatusDelivered: 2,
	MessageStatusRead:      3,
}

// Supersedes reports whether incoming may replace current. Provider events
// arrive at-least-once and out of order, so only strictly-later ladder
// positions apply. A failed event always overrides: a terminal failure must
// not be masked by a stale delivered/read that arrived late.
func Supersedes(incoming, current MessageStatus) bool {
	if incoming == MessageStatusFailed {
		return true
	}
	if current == MessageStatusFailed {
		return false
	}
	return statusRank[incoming] > statusRank[current]
}

// Message is one conversation-level message, inbound or outbound.
// ProviderMessageID is the gateway-issued identifier; unique per tenant, it
// is the idempotency key that correlates async status events with sends.
type Message struct {
	ID                uuid.UUID        `json:"id"`
	TenantID          uuid.UUID        `json:"tenant_id"`
	ConversationID    uuid.UUID        `json:"conversation_id"`
	Direction         MessageDirection `json:"direction"`
	Body              string           `json:"body"`
	Status            MessageStatus    `json:"status"`
	ProviderMessageID string           `json:"provider_message_id"`
	ErrorCode         *string          `json:"error_code,omitempty"`
	ErrorDetail       *string          `json:"error_detail,omitempty"`
	SentAt            *time.Time       `json:"sent_at,omitempty"`
	DeliveredAt       *time.Time       `json:"delivered_at,omitempty"`
	ReadAt            *time.Time       `json:"read_at,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// DedupKey builds the cache key used for fast-path webhook deduplication.
func DedupKey(tenantID uuid.UUID, providerMessageID string) string {
	return tenantID.String() + ":" + providerMessageID
}

// ServiceWindow is the period after a customer's last inbound message during
// which free-form text replies are allowed. Outside it, only approved
// templates may be sent.
const ServiceWindow = 24 * time.Hour
