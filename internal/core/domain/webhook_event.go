package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEvent is the append-only audit record of one raw webhook delivery.
// It exists for observability and replay, not business logic; the only
// mutation after insert is flipping the processed/error outcome.
type WebhookEvent struct {
	ID          uuid.UUID  `json:"id"`
	ChannelID   *uuid.UUID `json:"channel_id,omitempty"`
	RequestID   string     `json:"request_id"`
	Payload     string     `json:"payload"`
	Processed   bool       `json:"processed"`
	ProcessErr  *string    `json:"process_error,omitempty"`
	EventCount  int        `json:"event_count"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// EventKind distinguishes the two normalized webhook event shapes.
type EventKind string

const (
	EventKindInboundMessage EventKind = "inbound_message"
	EventKindStatusUpdate   EventKind = "status_update"
)

// NormalizedEvent is the gateway-parsed form of one provider event. A single
// webhook body may carry any mixture of kinds.
type NormalizedEvent struct {
	Kind              EventKind
	ProviderMessageID string
	// Inbound message fields.
	FromPhone   string
	ContactName string
	Body        string
	// Status update fields.
	Status    MessageStatus
	ErrorCode string
	Timestamp time.Time
}
