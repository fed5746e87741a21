package dto

// RegisterRequest is the request body for workspace registration.
type RegisterRequest struct {
	TenantName string `json:"tenant_name" binding:"required,min=1,max=100"`
	Email      string `json:"email" binding:"required,email,max=255"`
	Password   string `json:"password" binding:"required,min=8,max=128"`
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RegisterResponse is the response body for successful registration.
type RegisterResponse struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// CreateChannelRequest is the request body for channel registration.
// AccessToken travels in plaintext only on this request; it is encrypted
// before persistence and never returned.
type CreateChannelRequest struct {
	Name           string `json:"name" binding:"required,min=1,max=100"`
	PhoneNumber    string `json:"phone_number" binding:"required,max=20"`
	SubscriptionID string `json:"subscription_id" binding:"required,safe_id,max=100"`
	AccessToken    string `json:"access_token" binding:"required,max=512"`
	WebhookSecret  string `json:"webhook_secret,omitempty" binding:"max=255"`
	VerifyToken    string `json:"verify_token,omitempty" binding:"max=255"`
	DailySendLimit int    `json:"daily_send_limit,omitempty" binding:"omitempty,gt=0"`
}

// ChannelResponse is the channel representation. Credentials are omitted.
type ChannelResponse struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	PhoneNumber    string  `json:"phone_number"`
	SubscriptionID string  `json:"subscription_id"`
	Status         string  `json:"status"`
	DailySendLimit int     `json:"daily_send_limit"`
	LastWebhookAt  *string `json:"last_webhook_at,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

// CreateContactRequest is the request body for creating a single contact.
type CreateContactRequest struct {
	Phone string `json:"phone" binding:"required,max=20"`
	Name  string `json:"name" binding:"required,min=1,max=100"`
}

// ContactRow is one row of a bulk contact import.
type ContactRow struct {
	Phone string `json:"phone" binding:"required,max=20"`
	Name  string `json:"name" binding:"max=100"`
}

// ImportContactsRequest is the request body for bulk import.
type ImportContactsRequest struct {
	Contacts []ContactRow `json:"contacts" binding:"required,min=1,max=10000,dive"`
}

// ContactResponse is the contact representation.
type ContactResponse struct {
	ID        string `json:"id"`
	Phone     string `json:"phone"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// ImportResultResponse reports a bulk import outcome.
type ImportResultResponse struct {
	Total    int      `json:"total"`
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// CreateTemplateRequest is the request body for recording a template.
// Status mirrors the provider-side approval verdict; syncing approval is an
// operator action, so the field is writable here.
type CreateTemplateRequest struct {
	Name     string `json:"name" binding:"required,safe_id,max=100"`
	Language string `json:"language" binding:"required,min=2,max=10"`
	Body     string `json:"body" binding:"required,max=1024"`
	Status   string `json:"status,omitempty" binding:"omitempty,oneof=pending approved rejected"`
}

// TemplateResponse is the template representation.
type TemplateResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Language  string `json:"language"`
	Body      string `json:"body"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// CreateCampaignRequest is the request body for campaign creation.
type CreateCampaignRequest struct {
	Name             string            `json:"name" binding:"required,min=1,max=200"`
	ChannelID        string            `json:"channel_id" binding:"required,uuid"`
	TemplateID       string            `json:"template_id" binding:"required,uuid"`
	ContactIDs       []string          `json:"contact_ids" binding:"required,min=1,dive,uuid"`
	VariableDefaults map[string]string `json:"variable_defaults,omitempty"`
	ScheduledAt      *string           `json:"scheduled_at,omitempty"` // RFC3339
}

// DispatchRequest selects the pacing for one dispatcher invocation.
type DispatchRequest struct {
	Speed string `json:"speed,omitempty" binding:"omitempty,oneof=slow normal fast"`
}

// CampaignResponse is the campaign representation with its counters.
type CampaignResponse struct {
	ID               string            `json:"id"`
	ChannelID        string            `json:"channel_id"`
	TemplateID       string            `json:"template_id"`
	Name             string            `json:"name"`
	Status           string            `json:"status"`
	PausedReason     *string           `json:"paused_reason,omitempty"`
	VariableDefaults map[string]string `json:"variable_defaults,omitempty"`
	TotalRecipients  int               `json:"total_recipients"`
	SentCount        int               `json:"sent_count"`
	DeliveredCount   int               `json:"delivered_count"`
	ReadCount        int               `json:"read_count"`
	FailedCount      int               `json:"failed_count"`
	ScheduledAt      *string           `json:"scheduled_at,omitempty"`
	StartedAt        *string           `json:"started_at,omitempty"`
	CompletedAt      *string           `json:"completed_at,omitempty"`
	CreatedAt        string            `json:"created_at"`
}

// RetryFailedResponse reports how many failed recipients were re-queued.
type RetryFailedResponse struct {
	Requeued int64 `json:"requeued"`
}

// SendMessageRequest is the request body for an inbox free-form reply.
type SendMessageRequest struct {
	Body string `json:"body" binding:"required,min=1,max=4096"`
}

// MessageResponse is the message representation.
type MessageResponse struct {
	ID                string  `json:"id"`
	ConversationID    string  `json:"conversation_id"`
	Direction         string  `json:"direction"`
	Body              string  `json:"body"`
	Status            string  `json:"status"`
	ProviderMessageID string  `json:"provider_message_id,omitempty"`
	ErrorCode         *string `json:"error_code,omitempty"`
	SentAt            *string `json:"sent_at,omitempty"`
	DeliveredAt       *string `json:"delivered_at,omitempty"`
	ReadAt            *string `json:"read_at,omitempty"`
	CreatedAt         string  `json:"created_at"`
}

// ConversationResponse is the conversation representation.
type ConversationResponse struct {
	ID            string  `json:"id"`
	ChannelID     string  `json:"channel_id"`
	ContactID     string  `json:"contact_id"`
	Status        string  `json:"status"`
	UnreadCount   int     `json:"unread_count"`
	LastInboundAt *string `json:"last_inbound_at,omitempty"`
	LastMessageAt *string `json:"last_message_at,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// WebhookAck is the body behind the unconditional 200 on the ingestion
// endpoint. It intentionally skips the standard envelope: the provider only
// checks the status code, and the ack must never leak internal failures.
type WebhookAck struct {
	OK        bool   `json:"ok"`
	RequestID string `json:"request_id"`
	Accepted  int    `json:"accepted"`
	LatencyMS int64  `json:"latency_ms"`
}
