// Package gateway implements the BSP (WhatsApp Business API) client. All
// send failures leave this package as *domain.SendError with a typed
// category; callers never inspect HTTP responses themselves.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"whatsapp-broadcast-platform/internal/core/domain"
	"whatsapp-broadcast-platform/internal/core/ports"

	"github.com/rs/zerolog"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the BSP's Cloud-API-style HTTP surface.
type Client struct {
	baseURL    string
	httpClient HTTPClient
	log        zerolog.Logger
}

// New creates a gateway client.
func New(baseURL string, httpClient HTTPClient, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		log:        log,
	}
}

// --- wire types ---

type sendRequest struct {
	MessagingProduct string        `json:"messaging_product"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Template         *wireTemplate `json:"template,omitempty"`
	Text             *wireText     `json:"text,omitempty"`
}

type wireTemplate struct {
	Name       string          `json:"name"`
	Language   wireLanguage    `json:"language"`
	Components []wireComponent `json:"components,omitempty"`
}

type wireLanguage struct {
	Code string `json:"code"`
}

type wireComponent struct {
	Type       string          `json:"type"`
	Parameters []wireParameter `json:"parameters"`
}

type wireParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type wireText struct {
	Body string `json:"body"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *wireError `json:"error"`
}

type wireError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Subcode int    `json:"error_subcode"`
}

// SendTemplate pushes one templated message through the BSP.
func (c *Client) SendTemplate(ctx context.Context, creds ports.Credentials, recipient string, tpl *domain.Template, variables map[string]string) (*ports.SendResult, error) {
	body := sendRequest{
		MessagingProduct: "whatsapp",
		To:               recipient,
		Type:             "template",
		Template: &wireTemplate{
			Name:     tpl.Name,
			Language: wireLanguage{Code: tpl.Language},
		},
	}
	if params := templateParameters(tpl, variables); len(params) > 0 {
		body.Template.Components = []wireComponent{{Type: "body", Parameters: params}}
	}
	return c.send(ctx, creds, body)
}

// SendText pushes one free-form text message through the BSP.
func (c *Client) SendText(ctx context.Context, creds ports.Credentials, recipient string, text string) (*ports.SendResult, error) {
	return c.send(ctx, creds, sendRequest{
		MessagingProduct: "whatsapp",
		To:               recipient,
		Type:             "text",
		Text:             &wireText{Body: text},
	})
}

func (c *Client) send(ctx context.Context, creds ports.Credentials, payload sendRequest) (*ports.SendResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, &domain.SendError{Category: domain.SendErrorUnknown, Detail: fmt.Sprintf("encode request: %v", err)}
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, creds.SubscriptionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, &domain.SendError{Category: domain.SendErrorUnknown, Detail: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &domain.SendError{Category: domain.SendErrorTemporary, Detail: fmt.Sprintf("read response: %v", err)}
	}

	var parsed sendResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil && resp.StatusCode < 300 {
		return nil, &domain.SendError{Category: domain.SendErrorUnknown, Detail: "unparseable success response"}
	}

	if resp.StatusCode >= 300 || parsed.Error != nil {
		sendErr := categorize(resp.StatusCode, parsed.Error)
		c.log.Debug().
			Int("status", resp.StatusCode).
			Str("category", string(sendErr.Category)).
			Str("to", payload.To).
			Msg("gateway send rejected")
		return nil, sendErr
	}

	if len(parsed.Messages) == 0 || parsed.Messages[0].ID == "" {
		return nil, &domain.SendError{Category: domain.SendErrorUnknown, Detail: "success response without message id"}
	}

	return &ports.SendResult{ProviderMessageID: parsed.Messages[0].ID}, nil
}

// templateParameters renders the variable map into positional body
// parameters, ordered by the placeholder positions in the template body.
func templateParameters(tpl *domain.Template, variables map[string]string) []wireParameter {
	names := placeholderNames(tpl.Body)
	params := make([]wireParameter, 0, len(names))
	for _, name := range names {
		params = append(params, wireParameter{Type: "text", Text: variables[name]})
	}
	return params
}

// placeholderNames extracts {{name}} placeholders in order of appearance.
func placeholderNames(body string) []string {
	var names []string
	for {
		start := strings.Index(body, "{{")
		if start < 0 {
			break
		}
		rest := body[start+2:]
		end := strings.Index(rest, "}}")
		if end < 0 {
			break
		}
		names = append(names, rest[:end])
		body = rest[end+2:]
	}
	return names
}

// transportError classifies connection-level failures.
func transportError(err error) *domain.SendError {
	category := domain.SendErrorTemporary
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		return &domain.SendError{Category: category, Code: "timeout", Detail: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return &domain.SendError{Category: category, Code: "timeout", Detail: err.Error()}
	default:
		return &domain.SendError{Category: category, Code: "network", Detail: err.Error()}
	}
}
