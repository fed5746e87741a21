package domain

import (
	"time"

	"github.com/google/uuid"
)

// Contact is an addressable customer of one tenant. Phone is stored in the
// provider-normalized form and is unique per tenant.
type Contact struct {
	ID                uuid.UUID  `json:"id"`
	TenantID          uuid.UUID  `json:"tenant_id"`
	Phone             string     `json:"phone"`
	Name              string     `json:"name"`
	LastInteractionAt *time.Time `json:"last_interaction_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// ConversationStatus tracks whether a conversation needs human attention.
type ConversationStatus string

const (
	ConversationStatusOpen     ConversationStatus = "open"
	ConversationStatusResolved ConversationStatus = "resolved"
)

// Conversation groups messages between one channel and one contact. An
// inbound message always forces the status back to open: the customer is
// re-engaging and the thread must re-surface in the inbox.
type Conversation struct {
	ID            uuid.UUID          `json:"id"`
	TenantID      uuid.UUID          `json:"tenant_id"`
	ChannelID     uuid.UUID          `json:"channel_id"`
	ContactID     uuid.UUID          `json:"contact_id"`
	Status        ConversationStatus `json:"status"`
	UnreadCount   int                `json:"unread_count"`
	LastInboundAt *time.Time         `json:"last_inbound_at,omitempty"`
	LastMessageAt *time.Time         `json:"last_message_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// WindowOpen reports whether free-form replies are permitted at now, i.e.
// the customer wrote within the 24-hour service window.
func (c *Conversation) WindowOpen(now time.Time) bool {
	return c.LastInboundAt != nil && now.Sub(*c.LastInboundAt) < ServiceWindow
}

// ContactImportResult reports a bulk import outcome per row.
type ContactImportResult struct {
	Total    int      `json:"total"`
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}
