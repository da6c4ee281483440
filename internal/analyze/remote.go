package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RemoteAnalyzer talks to an external proofreading engine over HTTP.
//
// Protocol: POST {endpoint}/lint with {"text":..., "mode":"plain"|"markdown"}
// returning {"findings":[{"start","end","category","suggestions"}...]}.
// Initialization probes GET {endpoint}/ready until the engine reports ready.
type RemoteAnalyzer struct {
	endpoint string
	client   *http.Client
}

// NewRemoteAnalyzer creates a client for the engine at endpoint.
func NewRemoteAnalyzer(endpoint string, timeout time.Duration) *RemoteAnalyzer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RemoteAnalyzer{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Initialize probes the engine's readiness endpoint.
func (r *RemoteAnalyzer) Initialize(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"/ready", nil)
	if err != nil {
		return fmt.Errorf("build readiness request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("analyzer readiness probe: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("analyzer not ready: status %d", resp.StatusCode)
	}
	return nil
}

type lintRequest struct {
	Text string `json:"text"`
	Mode string `json:"mode"`
}

type lintResponse struct {
	Findings []Finding `json:"findings"`
}

// Lint sends text to the engine and returns its findings.
func (r *RemoteAnalyzer) Lint(ctx context.Context, text string, mode Mode) ([]Finding, error) {
	body, err := json.Marshal(lintRequest{Text: text, Mode: mode.String()})
	if err != nil {
		return nil, fmt.Errorf("encode lint request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/lint", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build lint request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lint call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("lint call: status %d", resp.StatusCode)
	}

	var out lintResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode lint response: %w", err)
	}
	return out.Findings, nil
}
