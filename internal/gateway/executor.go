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

// ExecutorClient calls the external workflow executor that runs stage
// transition workflows. Local stage updates only happen after the executor
// confirms, so a failed call here leaves leads due for the next pass.
type ExecutorClient struct {
	baseURL    string
	apiKey     string
	httpClient httpretry.HTTPDoer
}

// NewExecutorClient creates a workflow executor client from config.
func NewExecutorClient(cfg config.ExecutorConfig) *ExecutorClient {
	return &ExecutorClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: 60 * time.Second,
		}, cfg.MaxRetries),
	}
}

type transitionRequest struct {
	TeamID  string   `json:"team_id"`
	ToStage string   `json:"to_stage"`
	LeadIDs []string `json:"lead_ids"`
}

type transitionResponse struct {
	Accepted int    `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// RequestTransitions asks the executor to run the transition workflow for a
// batch of leads moving to the same target stage.
func (c *ExecutorClient) RequestTransitions(ctx context.Context, teamID, toStage string, leadIDs []string) error {
	if len(leadIDs) == 0 {
		return nil
	}

	payload := transitionRequest{
		TeamID:  teamID,
		ToStage: toStage,
		LeadIDs: leadIDs,
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling transition request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transitions", bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("executor error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var tr transitionResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return fmt.Errorf("parsing executor response: %w", err)
	}
	if tr.Error != "" {
		return fmt.Errorf("executor rejected transitions: %s", tr.Error)
	}
	if tr.Accepted != len(leadIDs) {
		return fmt.Errorf("executor accepted %d of %d transitions", tr.Accepted, len(leadIDs))
	}

	return nil
}
