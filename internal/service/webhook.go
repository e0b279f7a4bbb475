package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// WebhookClient posts JSON payloads to the external automation endpoints.
// Every body carries the owner id placed there by the caller plus a
// sent_at timestamp added here.
type WebhookClient struct {
	logger *zap.Logger
	client *http.Client
}

func NewWebhookClient(logger *zap.Logger) *WebhookClient {
	return &WebhookClient{
		logger: logger,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Post sends payload to url and returns the response body. Non-2xx
// statuses are errors; the body is still captured for debugging.
func (c *WebhookClient) Post(ctx context.Context, url string, payload map[string]interface{}) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook URL not configured")
	}

	body := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["sent_at"] = time.Now().UTC().Format(time.RFC3339)

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return respBody, fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
