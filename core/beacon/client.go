package beacon

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config defines the HTTP client settings for a remote beacon.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client fetches beacon values from a remote node's /v1/beacon endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Response is the JSON body served for a beacon round.
type Response struct {
	Round uint64 `json:"round"`
	Value string `json:"value"`
}

// NewClient constructs a client with sane defaults.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("beacon: base url required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

// Value implements lottery.Oracle. The returned bytes include the header.
func (c *Client) Value(ctx context.Context, round uint64) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("beacon: client not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/v1/beacon/%d", c.baseURL, round), nil)
	if err != nil {
		return nil, fmt.Errorf("beacon: request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("beacon: call: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusTooEarly:
		return nil, fmt.Errorf("%w: round %d", ErrRoundNotAvailable, round)
	default:
		return nil, fmt.Errorf("beacon: unexpected status %d", resp.StatusCode)
	}
	var payload Response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("beacon: decode: %w", err)
	}
	if payload.Round != round {
		return nil, fmt.Errorf("beacon: asked for round %d, got %d", round, payload.Round)
	}
	value, err := hex.DecodeString(strings.TrimPrefix(payload.Value, "0x"))
	if err != nil {
		return nil, fmt.Errorf("beacon: decode value: %w", err)
	}
	return value, nil
}
