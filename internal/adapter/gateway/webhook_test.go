package gateway

import (
	"testing"
	"time"

	"whatsapp-broadcast-platform/internal/core/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newParser() *Client {
	return New("http://unused", nil, zerolog.Nop())
}

const inboundPayload = `{
  "entry": [{
    "changes": [{
      "value": {
        "contacts": [{"wa_id": "254712345678", "profile": {"name": "Alice"}}],
        "messages": [{
          "id": "wamid.IN1",
          "from": "254712345678",
          "timestamp": "1700000000",
          "type": "text",
          "text": {"body": "hi, is this still available?"}
        }]
      }
    }]
  }]
}`

const statusPayload = `{
  "entry": [{
    "changes": [{
      "value": {
        "statuses": [
          {"id": "wamid.OUT1", "status": "delivered", "timestamp": "1700000100"},
          {"id": "wamid.OUT2", "status": "failed", "timestamp": "1700000200",
           "errors": [{"code": 131026, "title": "unreachable"}]}
        ]
      }
    }]
  }]
}`

func TestParseWebhook_InboundMessage(t *testing.T) {
	events, err := newParser().ParseWebhook([]byte(inboundPayload))
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, domain.EventKindInboundMessage, ev.Kind)
	assert.Equal(t, "wamid.IN1", ev.ProviderMessageID)
	assert.Equal(t, "254712345678", ev.FromPhone)
	assert.Equal(t, "Alice", ev.ContactName)
	assert.Equal(t, "hi, is this still available?", ev.Body)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), ev.Timestamp)
}

func TestParseWebhook_StatusUpdates(t *testing.T) {
	events, err := newParser().ParseWebhook([]byte(statusPayload))
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, domain.EventKindStatusUpdate, events[0].Kind)
	assert.Equal(t, domain.MessageStatusDelivered, events[0].Status)
	assert.Empty(t, events[0].ErrorCode)

	assert.Equal(t, domain.MessageStatusFailed, events[1].Status)
	assert.Equal(t, "131026", events[1].ErrorCode)
}

func TestParseWebhook_MixedStream(t *testing.T) {
	mixed := `{
	  "entry": [{
	    "changes": [{
	      "value": {
	        "messages": [{"id": "wamid.M1", "from": "254700000001", "text": {"body": "x"}}],
	        "statuses": [{"id": "wamid.S1", "status": "read", "timestamp": "1700000300"}]
	      }
	    }]
	  }]
	}`
	events, err := newParser().ParseWebhook([]byte(mixed))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventKindInboundMessage, events[0].Kind)
	assert.Equal(t, domain.EventKindStatusUpdate, events[1].Kind)
}

func TestParseWebhook_UnknownShapesAreSkipped(t *testing.T) {
	// Valid JSON carrying nothing recognizable: empty events, no error.
	events, err := newParser().ParseWebhook([]byte(`{"object":"whatsapp_business_account","hello":"world"}`))
	require.NoError(t, err)
	assert.Empty(t, events)

	// Unknown status values are dropped, known ones kept.
	payload := `{"entry":[{"changes":[{"value":{"statuses":[
	  {"id":"wamid.A","status":"warehouse_scanned","timestamp":"1"},
	  {"id":"wamid.B","status":"sent","timestamp":"1"}
	]}}]}]}`
	events, err = newParser().ParseWebhook([]byte(payload))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "wamid.B", events[0].ProviderMessageID)
}

func TestParseWebhook_MalformedJSON(t *testing.T) {
	_, err := newParser().ParseWebhook([]byte(`this is not json`))
	assert.Error(t, err)
}
