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

func newTestConversation(tenantID uuid.UUID) *domain.Conversation {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Conversation{
		ID:        uuid.New(),
		TenantID:  tenantID,
		ChannelID: uuid.New(),
		ContactID: uuid.New(),
		Status:    domain.ConversationStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func conversationCols() []string {
	return []string{"id", "tenant_id", "channel_id", "contact_id", "status", "unread_count",
		"last_inbound_at", "last_message_at", "created_at", "updated_at"}
}

func conversationRow(c *domain.Conversation) *pgxmock.Rows {
	return pgxmock.NewRows(conversationCols()).AddRow(
		c.ID, c.TenantID, c.ChannelID, c.ContactID, c.Status, c.UnreadCount,
		c.LastInboundAt, c.LastMessageAt, c.CreatedAt, c.UpdatedAt,
	)
}

func TestConversationRepo_GetByChannelContact(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewConversationRepo(mock)
	c := newTestConversation(uuid.New())

	mock.ExpectQuery("SELECT .+ FROM conversations WHERE channel_id").
		WithArgs(c.ChannelID, c.ContactID).
		WillReturnRows(conversationRow(c))

	result, err := repo.GetByChannelContact(context.Background(), c.ChannelID, c.ContactID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, c.ID, result.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepo_GetByChannelContact_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewConversationRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM conversations WHERE channel_id").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(conversationCols()))

	result, err := repo.GetByChannelContact(context.Background(), uuid.New(), uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepo_RecordInbound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewConversationRepo(mock)
	id := uuid.New()
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE conversations SET status").
		WithArgs(domain.ConversationStatusOpen, at, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = repo.RecordInbound(context.Background(), id, at)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepo_RecordOutbound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewConversationRepo(mock)
	id := uuid.New()
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE conversations SET last_message_at").
		WithArgs(at, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = repo.RecordOutbound(context.Background(), id, at)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepo_MarkRead(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewConversationRepo(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE conversations SET unread_count").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = repo.MarkRead(context.Background(), id)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContactRepo_Upsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewContactRepo(mock)
	now := time.Now().UTC().Truncate(time.Microsecond)
	c := &domain.Contact{
		ID:                uuid.New(),
		TenantID:          uuid.New(),
		Phone:             "254712345678",
		Name:              "Amina",
		LastInteractionAt: &now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	cols := []string{"id", "tenant_id", "phone", "name", "last_interaction_at", "created_at", "updated_at"}
	mock.ExpectQuery("INSERT INTO contacts .+ ON CONFLICT").
		WithArgs(c.ID, c.TenantID, c.Phone, c.Name, c.LastInteractionAt, c.CreatedAt, c.UpdatedAt).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			c.ID, c.TenantID, c.Phone, c.Name, c.LastInteractionAt, c.CreatedAt, c.UpdatedAt))

	stored, err := repo.Upsert(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, c.ID, stored.ID)
	assert.Equal(t, "Amina", stored.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContactRepo_GetByPhone_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewContactRepo(mock)

	cols := []string{"id", "tenant_id", "phone", "name", "last_interaction_at", "created_at", "updated_at"}
	mock.ExpectQuery("SELECT .+ FROM contacts WHERE tenant_id").
		WithArgs(pgxmock.AnyArg(), "254700000000").
		WillReturnRows(pgxmock.NewRows(cols))

	result, err := repo.GetByPhone(context.Background(), uuid.New(), "254700000000")
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}
