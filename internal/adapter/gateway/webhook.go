package gateway

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"whatsapp-broadcast-platform/internal/core/domain"
)

// Webhook wire shapes (Cloud-API style): entry[].changes[].value carries
// either inbound messages[] or delivery statuses[], or both.

type webhookBody struct {
	Entry []struct {
		Changes []struct {
			Value webhookValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type webhookValue struct {
	Contacts []struct {
		WaID    string `json:"wa_id"`
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	} `json:"contacts"`
	Messages []struct {
		ID        string `json:"id"`
		From      string `json:"from"`
		Timestamp string `json:"timestamp"`
		Type      string `json:"type"`
		Text      struct {
			Body string `json:"body"`
		} `json:"text"`
	} `json:"messages"`
	Statuses []struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
		Errors    []struct {
			Code  int    `json:"code"`
			Title string `json:"title"`
		} `json:"errors"`
	} `json:"statuses"`
}

// ParseWebhook normalizes one raw webhook body. Unrecognized structures
// inside valid JSON are skipped, not failed: providers mix test payloads and
// new event types into production streams.
func (c *Client) ParseWebhook(payload []byte) ([]domain.NormalizedEvent, error) {
	var body webhookBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode webhook body: %w", err)
	}

	var events []domain.NormalizedEvent
	for _, entry := range body.Entry {
		for _, change := range entry.Changes {
			v := change.Value

			names := map[string]string{}
			for _, contact := range v.Contacts {
				names[contact.WaID] = contact.Profile.Name
			}

			for _, m := range v.Messages {
				if m.ID == "" || m.From == "" {
					continue
				}
				events = append(events, domain.NormalizedEvent{
					Kind:              domain.EventKindInboundMessage,
					ProviderMessageID: m.ID,
					FromPhone:         m.From,
					ContactName:       names[m.From],
					Body:              m.Text.Body,
					Timestamp:         parseEpoch(m.Timestamp),
				})
			}

			for _, s := range v.Statuses {
				if s.ID == "" {
					continue
				}
				status, ok := mapStatus(s.Status)
				if !ok {
					continue
				}
				ev := domain.NormalizedEvent{
					Kind:              domain.EventKindStatusUpdate,
					ProviderMessageID: s.ID,
					Status:            status,
					Timestamp:         parseEpoch(s.Timestamp),
				}
				if len(s.Errors) > 0 {
					ev.ErrorCode = strconv.Itoa(s.Errors[0].Code)
				}
				events = append(events, ev)
			}
		}
	}
	return events, nil
}

func mapStatus(s string) (domain.MessageStatus, bool) {
	switch s {
	case "sent":
		return domain.MessageStatusSent, true
	case "delivered":
		return domain.MessageStatusDelivered, true
	case "read":
		return domain.MessageStatusRead, true
	case "failed":
		return domain.MessageStatusFailed, true
	default:
		return "", false
	}
}

func parseEpoch(s string) time.Time {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil || secs <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(secs, 0).UTC()
}
