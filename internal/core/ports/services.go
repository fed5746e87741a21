package ports

import (
	"context"
	"time"

	"whatsapp-broadcast-platform/internal/core/domain"

	"github.com/google/uuid"
)

// --- Gateway (BSP boundary) ---

// SendResult is the gateway's confirmation of an accepted send.
type SendResult struct {
	ProviderMessageID string
}

// Credentials are the decrypted per-channel send credentials.
type Credentials struct {
	AccessToken    string
	SubscriptionID string
}

// Gateway is the opaque BSP capability. Implementations must return
// *domain.SendError for every failed call so the dispatcher can switch on
// the typed category instead of parsing response strings.
type Gateway interface {
	SendTemplate(ctx context.Context, creds Credentials, recipient string, tpl *domain.Template, variables map[string]string) (*SendResult, error)
	SendText(ctx context.Context, creds Credentials, recipient string, body string) (*SendResult, error)
	// ParseWebhook normalizes one raw webhook body into events. A body that
	// is valid JSON but carries nothing recognizable yields an empty slice,
	// not an error.
	ParseWebhook(payload []byte) ([]domain.NormalizedEvent, error)
}

// --- Dispatch ---

// BatchResult is the outcome of one dispatcher invocation.
type BatchResult struct {
	CampaignID     uuid.UUID            `json:"campaign_id"`
	Processed      int                  `json:"processed"`
	Success        int                  `json:"success"`
	Failed         int                  `json:"failed"`
	RetryScheduled int                  `json:"retry_scheduled"`
	Finished       bool                 `json:"finished"`
	RateLimited    bool                 `json:"rate_limited"`
	Errors         []BatchError         `json:"errors,omitempty"`
	PausedReason   *domain.PausedReason `json:"paused_reason,omitempty"`
}

// BatchError records one per-recipient failure inside a batch.
type BatchError struct {
	Phone string `json:"phone"`
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// DispatchService is the batch processor. Idempotent and resumable: safe to
// invoke repeatedly from a poller until the queue drains.
type DispatchService interface {
	ProcessBatch(ctx context.Context, campaignID uuid.UUID, speed domain.DispatchSpeed) (*BatchResult, error)
}

// --- Campaign lifecycle ---

// CreateCampaignRequest holds validated input for campaign creation.
type CreateCampaignRequest struct {
	TenantID         uuid.UUID
	ChannelID        uuid.UUID
	TemplateID       uuid.UUID
	Name             string
	ContactIDs       []uuid.UUID
	VariableDefaults map[string]string
	ScheduledAt      *time.Time
}

// CampaignService drives the campaign lifecycle.
type CampaignService interface {
	Create(ctx context.Context, req CreateCampaignRequest) (*domain.Campaign, error)
	Get(ctx context.Context, tenantID, id uuid.UUID) (*domain.Campaign, error)
	List(ctx context.Context, params CampaignListParams) ([]domain.Campaign, int64, error)
	// Start materializes recipient rows and moves the campaign to running.
	Start(ctx context.Context, tenantID, id uuid.UUID) (*domain.Campaign, error)
	Pause(ctx context.Context, tenantID, id uuid.UUID) error
	Resume(ctx context.Context, tenantID, id uuid.UUID) error
	Cancel(ctx context.Context, tenantID, id uuid.UUID) error
	// RetryFailed resets retryable failed recipients back to queued.
	RetryFailed(ctx context.Context, tenantID, id uuid.UUID) (int64, error)
}

// --- Webhook ingestion ---

// IngestRequest is one raw webhook delivery handed to the pipeline.
type IngestRequest struct {
	ChannelID uuid.UUID
	RequestID string
	Body      []byte
	Signature string // X-Hub-Signature-256 header value, may be empty
}

// IngestOutcome summarizes what the pipeline did with one delivery.
type IngestOutcome struct {
	Accepted int    // normalized events accepted for processing
	Dropped  string // non-empty reason when the body was not processed
}

// IngestService is the webhook ingestion pipeline. It never returns an
// error to its caller: every internal failure is absorbed into the audit
// log so the provider is always acknowledged with success.
type IngestService interface {
	Ingest(ctx context.Context, req IngestRequest) IngestOutcome
}

// --- Inbox ---

// InboxService handles agent-side conversation operations.
type InboxService interface {
	// SendText sends a free-form reply within the 24-hour service window.
	SendText(ctx context.Context, tenantID, conversationID uuid.UUID, body string) (*domain.Message, error)
	ListConversations(ctx context.Context, tenantID uuid.UUID, page, pageSize int) ([]domain.Conversation, int64, error)
	ListMessages(ctx context.Context, tenantID, conversationID uuid.UUID, page, pageSize int) ([]domain.Message, int64, error)
	MarkRead(ctx context.Context, tenantID, conversationID uuid.UUID) error
}

// --- Contacts ---

// ContactImportRow is one row of a bulk import.
type ContactImportRow struct {
	Phone string
	Name  string
}

// ContactService manages the tenant address book.
type ContactService interface {
	Create(ctx context.Context, tenantID uuid.UUID, phone, name string) (*domain.Contact, error)
	Import(ctx context.Context, tenantID uuid.UUID, rows []ContactImportRow) (*domain.ContactImportResult, error)
}

// --- Channels ---

// CreateChannelRequest holds validated input for channel registration.
type CreateChannelRequest struct {
	TenantID       uuid.UUID
	Name           string
	PhoneNumber    string
	SubscriptionID string
	AccessToken    string // plaintext, encrypted before persistence
	WebhookSecret  string
	VerifyToken    string
	DailySendLimit int
}

// ChannelService manages outbound identities.
type ChannelService interface {
	Create(ctx context.Context, req CreateChannelRequest) (*domain.Channel, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]domain.Channel, error)
	// SendCredentials decrypts the channel's gateway credentials.
	SendCredentials(ctx context.Context, ch *domain.Channel) (Credentials, error)
}

// --- Auth & crypto ---

// EncryptionService handles AES-256-GCM encryption of channel credentials.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureVerifier checks provider webhook signatures (HMAC-SHA256).
type SignatureVerifier interface {
	Verify(secret string, body []byte, signature string) bool
}

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService handles JWT token operations for the management API.
type TokenService interface {
	Generate(userID, tenantID uuid.UUID) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
}

// RegisterRequest holds input for workspace registration.
type RegisterRequest struct {
	TenantName string
	Email      string
	Password   string
}

// AuthService defines authentication business logic.
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*domain.User, error)
	Login(ctx context.Context, email, password string) (string, time.Time, error) // token, expiry
}

// DedupCache is the fast-path provider_message_id dedup check in front of
// the database lookup. Best effort: a cache miss falls through to the DB.
type DedupCache interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string, ttl time.Duration) error
}
