// Package gateway holds clients for the external services the engine talks
// to: the SMS delivery gateway and the workflow executor.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/reachforge/lead-engine/internal/config"
	"github.com/reachforge/lead-engine/internal/pkg/httpretry"
)

// SMSClient sends outbound messages through the SMS gateway API. It
// satisfies the transport interface the escalation engine sends through.
type SMSClient struct {
	baseURL    string
	apiKey     string
	fromNumber string
	httpClient httpretry.HTTPDoer
}

// NewSMSClient creates an SMS gateway client from config.
func NewSMSClient(cfg config.GatewayConfig) *SMSClient {
	return &SMSClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		fromNumber: cfg.FromNumber,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: 30 * time.Second,
		}, cfg.MaxRetries),
	}
}

type sendRequest struct {
	To   string `json:"to"`
	From string `json:"from"`
	Body string `json:"body"`
}

type sendResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Send delivers one SMS and returns the gateway's message ID.
func (c *SMSClient) Send(ctx context.Context, to, message string) (string, error) {
	payload := sendRequest{
		To:   to,
		From: c.fromNumber,
		Body: message,
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/v1/messages", payload)
	if err != nil {
		return "", fmt.Errorf("sending message: %w", err)
	}

	var resp sendResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parsing send response: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("gateway rejected message: %s", resp.Error)
	}

	return resp.ID, nil
}

// doRequest makes an HTTP request to the gateway API with Bearer auth.
func (c *SMSClient) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	fullURL := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
