package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/transflow/riskd/internal/circuitbreaker"
)

const breakerKey = "ml-service"

// Client scores transactions against an external model service over HTTP.
// Calls are guarded by a circuit breaker so a dead provider is skipped
// cheaply instead of burning the scoring deadline on every transaction.
type Client struct {
	baseURL string
	version string
	http    *http.Client
	breaker *circuitbreaker.Breaker
}

// NewClient creates a scoring client for the given service URL.
func NewClient(baseURL, version string, timeout time.Duration, breaker *circuitbreaker.Breaker) *Client {
	return &Client{
		baseURL: baseURL,
		version: version,
		http:    &http.Client{Timeout: timeout},
		breaker: breaker,
	}
}

func (c *Client) Version() string { return c.version }

// CircuitState reports the breaker state for the scoring service,
// for health reporting.
func (c *Client) CircuitState() circuitbreaker.State {
	return c.breaker.State(breakerKey)
}

type scoreRequest struct {
	Features Features `json:"features"`
	Version  string   `json:"model_version,omitempty"`
}

type scoreResponse struct {
	FraudProbability float64 `json:"fraud_probability"`
}

// Score posts the feature vector to the model service.
func (c *Client) Score(ctx context.Context, f Features) (float64, error) {
	if !c.breaker.Allow(breakerKey) {
		return 0, fmt.Errorf("%w: circuit open", ErrUnavailable)
	}

	body, err := json.Marshal(scoreRequest{Features: f, Version: c.version})
	if err != nil {
		return 0, fmt.Errorf("encode features: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.RecordFailure(breakerKey)
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		c.breaker.RecordFailure(breakerKey)
		return 0, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out scoreResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out); err != nil {
		c.breaker.RecordFailure(breakerKey)
		return 0, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if out.FraudProbability < 0 || out.FraudProbability > 1 {
		c.breaker.RecordFailure(breakerKey)
		return 0, fmt.Errorf("%w: probability %f out of range", ErrUnavailable, out.FraudProbability)
	}

	c.breaker.RecordSuccess(breakerKey)
	return out.FraudProbability, nil
}
