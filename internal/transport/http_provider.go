package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ignite/broadcast-engine/internal/pkg/httpretry"
)

// HTTPProvider sends through a generic JSON email provider API
// (POST {base_url}/emails with a bearer key, response {"id": "..."}).
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  httpretry.HTTPDoer
}

// NewHTTPProvider creates the provider adapter. A nil client gets a
// retrying client with sane defaults.
func NewHTTPProvider(baseURL, apiKey string, client httpretry.HTTPDoer) *HTTPProvider {
	if client == nil {
		client = httpretry.NewRetryClient(nil, 3)
	}
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

type providerResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Send posts the message to the provider and returns its message id.
func (p *HTTPProvider) Send(ctx context.Context, msg Message) (*Result, error) {
	payload := map[string]interface{}{
		"from":    formatFrom(msg),
		"to":      msg.To,
		"subject": msg.Subject,
		"html":    msg.HTML,
	}
	if len(msg.Tags) > 0 {
		tags := make([]map[string]string, 0, len(msg.Tags))
		for name, value := range msg.Tags {
			tags = append(tags, map[string]string{"name": name, "value": value})
		}
		payload["tags"] = tags
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport call: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var pr providerResponse
		reason := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &pr) == nil && pr.Message != "" {
			reason = pr.Message
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, reason)
	}

	var pr providerResponse
	if err := json.Unmarshal(respBody, &pr); err != nil {
		return nil, fmt.Errorf("decoding provider response: %w", err)
	}
	if pr.ID == "" {
		return nil, fmt.Errorf("provider response missing message id")
	}
	return &Result{ProviderID: pr.ID}, nil
}

func formatFrom(msg Message) string {
	if msg.FromName != "" {
		return fmt.Sprintf("%s <%s>", msg.FromName, msg.From)
	}
	return msg.From
}
