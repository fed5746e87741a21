package integration

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"whatsapp-broadcast-platform/internal/core/domain"
	"whatsapp-broadcast-platform/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// In-memory repository implementations backing the end-to-end tests. They
// mirror the postgres repos' semantics closely enough for the properties
// under test: FIFO claiming with leases, idempotent message insert, and
// conditional state transitions.

// --- Transactor ---

// fakeTx satisfies pgx.Tx for code paths that only Commit or Rollback.
type fakeTx struct {
	pgx.Tx
}

func (fakeTx) Commit(ctx context.Context) error   { return nil }
func (fakeTx) Rollback(ctx context.Context) error { return nil }

type inMemoryTransactor struct{}

func newInMemoryTransactor() *inMemoryTransactor { return &inMemoryTransactor{} }

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return fakeTx{}, nil
}

// --- Tenant repo ---

type inMemoryTenantRepo struct {
	mu      sync.RWMutex
	tenants map[uuid.UUID]*domain.Tenant
	users   map[uuid.UUID]*domain.User
}

func newInMemoryTenantRepo() *inMemoryTenantRepo {
	return &inMemoryTenantRepo{
		tenants: make(map[uuid.UUID]*domain.Tenant),
		users:   make(map[uuid.UUID]*domain.User),
	}
}

func (r *inMemoryTenantRepo) CreateTenant(ctx context.Context, tx pgx.Tx, t *domain.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants[t.ID] = t
	return nil
}

func (r *inMemoryTenantRepo) CreateUser(ctx context.Context, tx pgx.Tx, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return fmt.Errorf("email already exists")
		}
	}
	r.users[u.ID] = u
	return nil
}

func (r *inMemoryTenantRepo) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// --- Channel repo ---

type inMemoryChannelRepo struct {
	mu       sync.RWMutex
	channels map[uuid.UUID]*domain.Channel
}

func newInMemoryChannelRepo() *inMemoryChannelRepo {
	return &inMemoryChannelRepo{channels: make(map[uuid.UUID]*domain.Channel)}
}

func (r *inMemoryChannelRepo) Create(ctx context.Context, ch *domain.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *ch
	r.channels[ch.ID] = &cp
	return nil
}

func (r *inMemoryChannelRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[id]
	if !ok {
		return nil, nil
	}
	cp := *ch
	return &cp, nil
}

func (r *inMemoryChannelRepo) List(ctx context.Context, tenantID uuid.UUID) ([]domain.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Channel
	for _, ch := range r.channels {
		if ch.TenantID == tenantID {
			out = append(out, *ch)
		}
	}
	return out, nil
}

func (r *inMemoryChannelRepo) MarkConnected(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[id]
	if !ok {
		return fmt.Errorf("channel not found")
	}
	ch.Status = domain.ChannelStatusConnected
	ch.LastWebhookAt = &at
	return nil
}

// --- Contact repo ---

type inMemoryContactRepo struct {
	mu       sync.RWMutex
	contacts map[uuid.UUID]*domain.Contact
}

func newInMemoryContactRepo() *inMemoryContactRepo {
	return &inMemoryContactRepo{contacts: make(map[uuid.UUID]*domain.Contact)}
}

func (r *inMemoryContactRepo) Create(ctx context.Context, c *domain.Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.contacts {
		if existing.TenantID == c.TenantID && existing.Phone == c.Phone {
			return fmt.Errorf("duplicate key value violates unique constraint")
		}
	}
	cp := *c
	r.contacts[c.ID] = &cp
	return nil
}

func (r *inMemoryContactRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contacts[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *inMemoryContactRepo) GetByPhone(ctx context.Context, tenantID uuid.UUID, phone string) (*domain.Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.contacts {
		if c.TenantID == tenantID && c.Phone == phone {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryContactRepo) GetByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]domain.Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Contact
	for _, id := range ids {
		if c, ok := r.contacts[id]; ok && c.TenantID == tenantID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *inMemoryContactRepo) Upsert(ctx context.Context, c *domain.Contact) (*domain.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.contacts {
		if existing.TenantID == c.TenantID && existing.Phone == c.Phone {
			existing.LastInteractionAt = c.LastInteractionAt
			if existing.Name == "" && c.Name != "" {
				existing.Name = c.Name
			}
			existing.UpdatedAt = c.UpdatedAt
			cp := *existing
			return &cp, nil
		}
	}
	cp := *c
	r.contacts[c.ID] = &cp
	out := cp
	return &out, nil
}

// --- Template repo ---

type inMemoryTemplateRepo struct {
	mu        sync.RWMutex
	templates map[uuid.UUID]*domain.Template
}

func newInMemoryTemplateRepo() *inMemoryTemplateRepo {
	return &inMemoryTemplateRepo{templates: make(map[uuid.UUID]*domain.Template)}
}

func (r *inMemoryTemplateRepo) Create(ctx context.Context, t *domain.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.templates[t.ID] = &cp
	return nil
}

func (r *inMemoryTemplateRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *inMemoryTemplateRepo) List(ctx context.Context, tenantID uuid.UUID) ([]domain.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Template
	for _, t := range r.templates {
		if t.TenantID == tenantID {
			out = append(out, *t)
		}
	}
	return out, nil
}

// --- Campaign repo ---

type inMemoryCampaignRepo struct {
	mu         sync.RWMutex
	campaigns  map[uuid.UUID]*domain.Campaign
	selections map[uuid.UUID][]uuid.UUID
}

func newInMemoryCampaignRepo() *inMemoryCampaignRepo {
	return &inMemoryCampaignRepo{
		campaigns:  make(map[uuid.UUID]*domain.Campaign),
		selections: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (r *inMemoryCampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.campaigns[c.ID] = &cp
	return nil
}

func (r *inMemoryCampaignRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *inMemoryCampaignRepo) List(ctx context.Context, params ports.CampaignListParams) ([]domain.Campaign, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var all []domain.Campaign
	for _, c := range r.campaigns {
		if c.TenantID != params.TenantID {
			continue
		}
		if params.Status != nil && c.Status != *params.Status {
			continue
		}
		all = append(all, *c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := int64(len(all))
	start := (params.Page - 1) * params.PageSize
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + params.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r *inMemoryCampaignRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.CampaignStatus, reason *domain.PausedReason, completedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return fmt.Errorf("campaign not found")
	}
	c.Status = status
	c.PausedReason = reason
	if completedAt != nil {
		c.CompletedAt = completedAt
	}
	return nil
}

func (r *inMemoryCampaignRepo) MarkStarted(ctx context.Context, id uuid.UUID, total int, startedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return fmt.Errorf("campaign not found")
	}
	c.Status = domain.CampaignStatusRunning
	c.TotalRecipients = total
	c.StartedAt = &startedAt
	return nil
}

func (r *inMemoryCampaignRepo) UpdateCounters(ctx context.Context, id uuid.UUID, counts domain.RecipientCounts) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return fmt.Errorf("campaign not found")
	}
	c.TotalRecipients = counts.Total
	c.SentCount = counts.Sent + counts.Delivered + counts.Read
	c.DeliveredCount = counts.Delivered + counts.Read
	c.ReadCount = counts.Read
	c.FailedCount = counts.Failed
	return nil
}

func (r *inMemoryCampaignRepo) ListIDsByStatus(ctx context.Context, status domain.CampaignStatus) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []uuid.UUID
	for _, c := range r.campaigns {
		if c.Status == status {
			out = append(out, c.ID)
		}
	}
	return out, nil
}

func (r *inMemoryCampaignRepo) SaveSelection(ctx context.Context, campaignID uuid.UUID, contactIDs []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selections[campaignID] = append([]uuid.UUID(nil), contactIDs...)
	return nil
}

func (r *inMemoryCampaignRepo) GetSelection(ctx context.Context, campaignID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]uuid.UUID(nil), r.selections[campaignID]...), nil
}

// --- Recipient repo ---

type inMemoryRecipientRepo struct {
	mu         sync.Mutex
	recipients map[uuid.UUID]*domain.Recipient
	order      []uuid.UUID // insertion order, for FIFO claiming
}

func newInMemoryRecipientRepo() *inMemoryRecipientRepo {
	return &inMemoryRecipientRepo{recipients: make(map[uuid.UUID]*domain.Recipient)}
}

func (r *inMemoryRecipientRepo) BulkCreate(ctx context.Context, tx pgx.Tx, recipients []domain.Recipient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range recipients {
		cp := recipients[i]
		r.recipients[cp.ID] = &cp
		r.order = append(r.order, cp.ID)
	}
	return nil
}

func (r *inMemoryRecipientRepo) ClaimBatch(ctx context.Context, campaignID uuid.UUID, limit int, now time.Time) ([]domain.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Recipient
	for _, id := range r.order {
		if len(out) >= limit {
			break
		}
		rec := r.recipients[id]
		if rec.CampaignID != campaignID {
			continue
		}
		if rec.ClaimedAt != nil && now.Sub(*rec.ClaimedAt) < domain.ClaimLease {
			continue
		}
		due := rec.Status == domain.RecipientStatusQueued || rec.RetryEligible(now)
		if !due {
			continue
		}
		claimed := now
		rec.ClaimedAt = &claimed
		out = append(out, *rec)
	}
	return out, nil
}

func (r *inMemoryRecipientRepo) MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string, sentAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recipients[id]
	if !ok {
		return fmt.Errorf("recipient not found")
	}
	rec.Status = domain.RecipientStatusSent
	rec.ProviderMessageID = &providerMessageID
	rec.SentAt = &sentAt
	rec.NextRetryAt = nil
	rec.LastError = nil
	rec.ClaimedAt = nil
	return nil
}

func (r *inMemoryRecipientRepo) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, nextRetryAt *time.Time, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recipients[id]
	if !ok {
		return fmt.Errorf("recipient not found")
	}
	rec.Status = domain.RecipientStatusFailed
	rec.Attempts = attempts
	rec.NextRetryAt = nextRetryAt
	rec.LastError = &lastError
	rec.ClaimedAt = nil
	return nil
}

func (r *inMemoryRecipientRepo) Release(ctx context.Context, ids []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if rec, ok := r.recipients[id]; ok {
			rec.ClaimedAt = nil
		}
	}
	return nil
}

func (r *inMemoryRecipientRepo) ResetFailed(ctx context.Context, campaignID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, rec := range r.recipients {
		if rec.CampaignID == campaignID && rec.Status == domain.RecipientStatusFailed {
			rec.Status = domain.RecipientStatusQueued
			rec.Attempts = 0
			rec.NextRetryAt = nil
			rec.LastError = nil
			rec.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}

func (r *inMemoryRecipientRepo) CountByStatus(ctx context.Context, campaignID uuid.UUID) (domain.RecipientCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var counts domain.RecipientCounts
	for _, rec := range r.recipients {
		if rec.CampaignID != campaignID {
			continue
		}
		counts.Total++
		switch rec.Status {
		case domain.RecipientStatusQueued:
			counts.Queued++
		case domain.RecipientStatusSent:
			counts.Sent++
		case domain.RecipientStatusDelivered:
			counts.Delivered++
		case domain.RecipientStatusRead:
			counts.Read++
		case domain.RecipientStatusFailed:
			counts.Failed++
			if rec.NextRetryAt != nil && rec.Attempts < domain.MaxSendAttempts {
				counts.PendingRetries++
			}
		case domain.RecipientStatusSkipped:
			counts.Skipped++
		}
	}
	return counts, nil
}

func (r *inMemoryRecipientRepo) UpdateDeliveryStatus(ctx context.Context, providerMessageID string, status domain.RecipientStatus, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if status != domain.RecipientStatusDelivered && status != domain.RecipientStatusRead {
		return 0, fmt.Errorf("unsupported delivery status: %s", status)
	}
	var n int64
	for _, rec := range r.recipients {
		if rec.ProviderMessageID == nil || *rec.ProviderMessageID != providerMessageID {
			continue
		}
		switch status {
		case domain.RecipientStatusDelivered:
			if rec.Status == domain.RecipientStatusSent {
				rec.Status = status
				rec.DeliveredAt = &at
				n++
			}
		case domain.RecipientStatusRead:
			if rec.Status == domain.RecipientStatusSent || rec.Status == domain.RecipientStatusDelivered {
				rec.Status = status
				rec.ReadAt = &at
				n++
			}
		}
		return n, nil
	}
	return 0, nil
}

// forceRetryDue moves every scheduled retry of the campaign into the past so
// a test does not have to wait out the real backoff.
func (r *inMemoryRecipientRepo) forceRetryDue(campaignID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	past := time.Now().Add(-time.Minute)
	for _, rec := range r.recipients {
		if rec.CampaignID == campaignID && rec.NextRetryAt != nil {
			rec.NextRetryAt = &past
		}
	}
}

// byCampaign returns copies of all recipients of one campaign, insertion order.
func (r *inMemoryRecipientRepo) byCampaign(campaignID uuid.UUID) []domain.Recipient {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Recipient
	for _, id := range r.order {
		rec := r.recipients[id]
		if rec.CampaignID == campaignID {
			out = append(out, *rec)
		}
	}
	return out
}

// --- Conversation repo ---

type inMemoryConversationRepo struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]*domain.Conversation
}

func newInMemoryConversationRepo() *inMemoryConversationRepo {
	return &inMemoryConversationRepo{conversations: make(map[uuid.UUID]*domain.Conversation)}
}

func (r *inMemoryConversationRepo) Create(ctx context.Context, c *domain.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.conversations[c.ID] = &cp
	return nil
}

func (r *inMemoryConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conversations[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *inMemoryConversationRepo) GetByChannelContact(ctx context.Context, channelID, contactID uuid.UUID) (*domain.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.conversations {
		if c.ChannelID == channelID && c.ContactID == contactID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryConversationRepo) List(ctx context.Context, tenantID uuid.UUID, page, pageSize int) ([]domain.Conversation, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var all []domain.Conversation
	for _, c := range r.conversations {
		if c.TenantID == tenantID {
			all = append(all, *c)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		li, lj := all[i].LastMessageAt, all[j].LastMessageAt
		if li == nil || lj == nil {
			return lj == nil
		}
		return li.After(*lj)
	})
	total := int64(len(all))
	start := (page - 1) * pageSize
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r *inMemoryConversationRepo) RecordInbound(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok {
		return fmt.Errorf("conversation not found")
	}
	c.Status = domain.ConversationStatusOpen
	c.UnreadCount++
	c.LastInboundAt = &at
	c.LastMessageAt = &at
	return nil
}

func (r *inMemoryConversationRepo) RecordOutbound(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok {
		return fmt.Errorf("conversation not found")
	}
	c.LastMessageAt = &at
	return nil
}

func (r *inMemoryConversationRepo) MarkRead(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok {
		return fmt.Errorf("conversation not found")
	}
	c.UnreadCount = 0
	return nil
}

// --- Message repo ---

type inMemoryMessageRepo struct {
	mu       sync.Mutex
	messages map[uuid.UUID]*domain.Message
	order    []uuid.UUID
}

func newInMemoryMessageRepo() *inMemoryMessageRepo {
	return &inMemoryMessageRepo{messages: make(map[uuid.UUID]*domain.Message)}
}

func (r *inMemoryMessageRepo) Create(ctx context.Context, m *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ProviderMessageID != "" {
		for _, existing := range r.messages {
			if existing.TenantID == m.TenantID && existing.ProviderMessageID == m.ProviderMessageID {
				return domain.ErrDuplicateMessage
			}
		}
	}
	cp := *m
	r.messages[m.ID] = &cp
	r.order = append(r.order, m.ID)
	return nil
}

func (r *inMemoryMessageRepo) GetByProviderMessageID(ctx context.Context, tenantID uuid.UUID, providerMessageID string, direction domain.MessageDirection) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.TenantID == tenantID && m.ProviderMessageID == providerMessageID && m.Direction == direction {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryMessageRepo) ListByConversation(ctx context.Context, conversationID uuid.UUID, page, pageSize int) ([]domain.Message, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []domain.Message
	for _, id := range r.order {
		if m := r.messages[id]; m.ConversationID == conversationID {
			all = append(all, *m)
		}
	}
	total := int64(len(all))
	start := (page - 1) * pageSize
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r *inMemoryMessageRepo) MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string, sentAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return fmt.Errorf("message not found")
	}
	m.Status = domain.MessageStatusSent
	m.ProviderMessageID = providerMessageID
	m.SentAt = &sentAt
	return nil
}

func (r *inMemoryMessageRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.MessageStatus, at time.Time, errorCode, errorDetail *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return fmt.Errorf("message not found")
	}
	m.Status = status
	switch status {
	case domain.MessageStatusSent:
		m.SentAt = &at
	case domain.MessageStatusDelivered:
		m.DeliveredAt = &at
	case domain.MessageStatusRead:
		m.ReadAt = &at
	}
	if errorCode != nil {
		m.ErrorCode = errorCode
	}
	if errorDetail != nil {
		m.ErrorDetail = errorDetail
	}
	return nil
}

// countByProviderID counts stored messages with the given provider id across
// tenants, for idempotency assertions.
func (r *inMemoryMessageRepo) countByProviderID(providerMessageID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if m.ProviderMessageID == providerMessageID {
			n++
		}
	}
	return n
}

// --- Webhook event repo ---

type inMemoryWebhookEventRepo struct {
	mu     sync.Mutex
	events map[uuid.UUID]*domain.WebhookEvent
}

func newInMemoryWebhookEventRepo() *inMemoryWebhookEventRepo {
	return &inMemoryWebhookEventRepo{events: make(map[uuid.UUID]*domain.WebhookEvent)}
}

func (r *inMemoryWebhookEventRepo) Create(ctx context.Context, e *domain.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.events[e.ID] = &cp
	return nil
}

func (r *inMemoryWebhookEventRepo) MarkProcessed(ctx context.Context, id uuid.UUID, processErr *string, eventCount int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return fmt.Errorf("webhook event not found")
	}
	e.Processed = processErr == nil
	e.ProcessErr = processErr
	e.EventCount = eventCount
	e.ProcessedAt = &at
	return nil
}

func (r *inMemoryWebhookEventRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// --- Fake gateway ---

// fakeGateway is a scripted ports.Gateway. Sends succeed with sequential
// provider ids unless a failure is scripted for the phone; webhook parsing
// delegates to the real Cloud-API parser.
type fakeGateway struct {
	mu       sync.Mutex
	seq      int
	failures map[string]*domain.SendError // phone -> scripted error
	sends    map[string]int               // phone -> send count
	parser   ports.Gateway
}

func newFakeGateway(parser ports.Gateway) *fakeGateway {
	return &fakeGateway{
		failures: make(map[string]*domain.SendError),
		sends:    make(map[string]int),
		parser:   parser,
	}
}

func (g *fakeGateway) failWith(phone string, category domain.SendErrorCategory) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[phone] = &domain.SendError{Category: category, Detail: "scripted failure"}
}

func (g *fakeGateway) sendCount(phone string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sends[phone]
}

func (g *fakeGateway) send(recipient string) (*ports.SendResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sends[recipient]++
	if sendErr, ok := g.failures[recipient]; ok {
		return nil, sendErr
	}
	g.seq++
	return &ports.SendResult{ProviderMessageID: fmt.Sprintf("wamid.fake.%04d", g.seq)}, nil
}

func (g *fakeGateway) SendTemplate(ctx context.Context, creds ports.Credentials, recipient string, tpl *domain.Template, variables map[string]string) (*ports.SendResult, error) {
	if !strings.HasPrefix(creds.AccessToken, "token-") {
		return nil, &domain.SendError{Category: domain.SendErrorAuth, Detail: "bad token"}
	}
	return g.send(recipient)
}

func (g *fakeGateway) SendText(ctx context.Context, creds ports.Credentials, recipient string, body string) (*ports.SendResult, error) {
	if !strings.HasPrefix(creds.AccessToken, "token-") {
		return nil, &domain.SendError{Category: domain.SendErrorAuth, Detail: "bad token"}
	}
	return g.send(recipient)
}

func (g *fakeGateway) ParseWebhook(payload []byte) ([]domain.NormalizedEvent, error) {
	return g.parser.ParseWebhook(payload)
}
