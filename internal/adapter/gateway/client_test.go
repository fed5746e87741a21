package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"whatsapp-broadcast-platform/internal/core/domain"
	"whatsapp-broadcast-platform/internal/core/ports"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCreds = ports.Credentials{AccessToken: "tok-123", SubscriptionID: "5550001"}

func testTemplate() *domain.Template {
	return &domain.Template{
		Name:     "order_update",
		Language: "en",
		Body:     "Hi {{contact_name}}, your order {{order_id}} shipped.",
		Status:   domain.TemplateStatusApproved,
	}
}

func newServerClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, srv.Client(), zerolog.Nop()), srv
}

func TestSendTemplate_Success(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody sendRequest

	client, _ := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.ABC123"}]}`))
	})

	vars := map[string]string{"contact_name": "Alice", "order_id": "O-42"}
	result, err := client.SendTemplate(context.Background(), testCreds, "254712345678", testTemplate(), vars)
	require.NoError(t, err)
	assert.Equal(t, "wamid.ABC123", result.ProviderMessageID)

	assert.Equal(t, "/5550001/messages", gotPath)
	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "template", gotBody.Type)
	assert.Equal(t, "254712345678", gotBody.To)
	require.Len(t, gotBody.Template.Components, 1)
	params := gotBody.Template.Components[0].Parameters
	require.Len(t, params, 2)
	// Positional parameters follow body placeholder order.
	assert.Equal(t, "Alice", params[0].Text)
	assert.Equal(t, "O-42", params[1].Text)
}

func TestSendText_Success(t *testing.T) {
	client, _ := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body sendRequest
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, "text", body.Type)
		assert.Equal(t, "hello there", body.Text.Body)
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.TXT1"}]}`))
	})

	result, err := client.SendText(context.Background(), testCreds, "254712345678", "hello there")
	require.NoError(t, err)
	assert.Equal(t, "wamid.TXT1", result.ProviderMessageID)
}

func sendAndExtract(t *testing.T, client *Client) *domain.SendError {
	t.Helper()
	_, err := client.SendTemplate(context.Background(), testCreds, "254712345678", testTemplate(), nil)
	require.Error(t, err)
	var sendErr *domain.SendError
	require.True(t, errors.As(err, &sendErr), "gateway must return *domain.SendError, got %T", err)
	return sendErr
}

func TestSend_ErrorCategories(t *testing.T) {
	cases := []struct {
		name     string
		status   int
		body     string
		category domain.SendErrorCategory
	}{
		{"401 is auth", http.StatusUnauthorized, `{"error":{"message":"Invalid OAuth access token","code":190}}`, domain.SendErrorAuth},
		{"403 is auth", http.StatusForbidden, `{"error":{"message":"denied","code":10}}`, domain.SendErrorAuth},
		{"400 with expired token code is auth", http.StatusBadRequest, `{"error":{"message":"Error validating access token","code":190}}`, domain.SendErrorAuth},
		{"429 is rate limit", http.StatusTooManyRequests, `{"error":{"message":"Too many requests","code":130429}}`, domain.SendErrorRateLimit},
		{"invalid recipient is terminal", http.StatusBadRequest, `{"error":{"message":"Recipient not available","code":131026}}`, domain.SendErrorRecipient},
		{"unapproved template is terminal", http.StatusNotFound, `{"error":{"message":"Template name does not exist","code":132001}}`, domain.SendErrorRecipient},
		{"500 is temporary", http.StatusInternalServerError, `{"error":{"message":"Service unavailable","code":1}}`, domain.SendErrorTemporary},
		{"unclassified 400 is unknown", http.StatusBadRequest, `{"error":{"message":"weird","code":99999}}`, domain.SendErrorUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			sendErr := sendAndExtract(t, client)
			assert.Equal(t, tc.category, sendErr.Category)
		})
	}
}

func TestSend_NetworkFailureIsTemporary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on
	client := New(srv.URL, http.DefaultClient, zerolog.Nop())

	sendErr := sendAndExtract(t, client)
	assert.Equal(t, domain.SendErrorTemporary, sendErr.Category)
	assert.Equal(t, "network", sendErr.Code)
}

func TestSend_SuccessWithoutMessageIDIsUnknown(t *testing.T) {
	client, _ := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"messages":[]}`))
	})
	sendErr := sendAndExtract(t, client)
	assert.Equal(t, domain.SendErrorUnknown, sendErr.Category)
}

func TestPlaceholderNames(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, placeholderNames("x {{a}} y {{b}}"))
	assert.Nil(t, placeholderNames("no placeholders"))
	assert.Equal(t, []string{"one"}, placeholderNames("{{one}} {{broken"))
}
