package postgres

import (
	"context"
	"testing"
	"time"

	"whatsapp-broadcast-platform/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMessage(tenantID uuid.UUID) *domain.Message {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Message{
		ID:                uuid.New(),
		TenantID:          tenantID,
		ConversationID:    uuid.New(),
		Direction:         domain.DirectionInbound,
		Body:              "hello",
		Status:            domain.MessageStatusDelivered,
		ProviderMessageID: "wamid.inbound-1",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func messageCols() []string {
	return []string{"id", "tenant_id", "conversation_id", "direction", "body", "status",
		"provider_message_id", "error_code", "error_detail",
		"sent_at", "delivered_at", "read_at", "created_at", "updated_at"}
}

func messageRow(m *domain.Message) *pgxmock.Rows {
	return pgxmock.NewRows(messageCols()).AddRow(
		m.ID, m.TenantID, m.ConversationID, m.Direction, m.Body, m.Status,
		m.ProviderMessageID, m.ErrorCode, m.ErrorDetail,
		m.SentAt, m.DeliveredAt, m.ReadAt, m.CreatedAt, m.UpdatedAt,
	)
}

func TestMessageRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewMessageRepo(mock)
	m := newTestMessage(uuid.New())

	mock.ExpectExec("INSERT INTO messages").
		WithArgs(
			m.ID, m.TenantID, m.ConversationID, m.Direction, m.Body, m.Status,
			m.ProviderMessageID, m.ErrorCode, m.ErrorDetail,
			m.SentAt, m.DeliveredAt, m.ReadAt, m.CreatedAt, m.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Create(context.Background(), m)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepo_Create_Duplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewMessageRepo(mock)
	m := newTestMessage(uuid.New())

	// ON CONFLICT DO NOTHING: zero rows affected means redelivery.
	mock.ExpectExec("INSERT INTO messages").
		WithArgs(
			m.ID, m.TenantID, m.ConversationID, m.Direction, m.Body, m.Status,
			m.ProviderMessageID, m.ErrorCode, m.ErrorDetail,
			m.SentAt, m.DeliveredAt, m.ReadAt, m.CreatedAt, m.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err = repo.Create(context.Background(), m)
	assert.ErrorIs(t, err, domain.ErrDuplicateMessage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepo_Create_QueuedOutboundSkipsConflictClause(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewMessageRepo(mock)
	m := newTestMessage(uuid.New())
	m.Direction = domain.DirectionOutbound
	m.Status = domain.MessageStatusQueued
	m.ProviderMessageID = "" // not confirmed yet

	// No ON CONFLICT suffix: without a provider ID there is nothing to
	// deduplicate on, and the insert must not be swallowed as a duplicate.
	mock.ExpectExec(`(?s)INSERT INTO messages.+VALUES.+\$14\)$`).
		WithArgs(
			m.ID, m.TenantID, m.ConversationID, m.Direction, m.Body, m.Status,
			m.ProviderMessageID, m.ErrorCode, m.ErrorDetail,
			m.SentAt, m.DeliveredAt, m.ReadAt, m.CreatedAt, m.UpdatedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Create(context.Background(), m)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepo_MarkSent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewMessageRepo(mock)
	id := uuid.New()
	sentAt := time.Now().UTC()

	mock.ExpectExec("UPDATE messages SET status .+ provider_message_id").
		WithArgs(domain.MessageStatusSent, "wamid.reply-1", sentAt, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = repo.MarkSent(context.Background(), id, "wamid.reply-1", sentAt)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepo_GetByProviderMessageID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewMessageRepo(mock)
	m := newTestMessage(uuid.New())

	mock.ExpectQuery("SELECT .+ FROM messages WHERE tenant_id").
		WithArgs(m.TenantID, m.ProviderMessageID, m.Direction).
		WillReturnRows(messageRow(m))

	result, err := repo.GetByProviderMessageID(context.Background(), m.TenantID, m.ProviderMessageID, m.Direction)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, m.ID, result.ID)
	assert.Equal(t, m.Body, result.Body)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepo_GetByProviderMessageID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewMessageRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM messages WHERE tenant_id").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(messageCols()))

	result, err := repo.GetByProviderMessageID(context.Background(), uuid.New(), "wamid.missing", domain.DirectionOutbound)
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepo_ListByConversation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewMessageRepo(mock)
	m := newTestMessage(uuid.New())

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(m.ConversationID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery("SELECT .+ FROM messages WHERE conversation_id").
		WithArgs(m.ConversationID, 50, 0).
		WillReturnRows(messageRow(m))

	messages, total, err := repo.ListByConversation(context.Background(), m.ConversationID, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, messages, 1)
	assert.Equal(t, m.ID, messages[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepo_UpdateStatus_WithMilestone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewMessageRepo(mock)
	id := uuid.New()
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE messages SET status .+ read_at").
		WithArgs(domain.MessageStatusRead, (*string)(nil), (*string)(nil), at, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = repo.UpdateStatus(context.Background(), id, domain.MessageStatusRead, at, nil, nil)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepo_UpdateStatus_Failed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewMessageRepo(mock)
	id := uuid.New()
	code := "131026"
	detail := "message undeliverable"

	mock.ExpectExec("UPDATE messages SET status").
		WithArgs(domain.MessageStatusFailed, &code, &detail, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = repo.UpdateStatus(context.Background(), id, domain.MessageStatusFailed, time.Now(), &code, &detail)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
