package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"lottochain/history"
	"lottochain/observability"
)

const (
	indexerComponent = "audit"
	indexerRoute     = "/v2/transactions"
	defaultPageLimit = 1000
	defaultTimeout   = 30 * time.Second
	maxPages         = 10_000
)

// TransactionQuery narrows the application calls fetched from a source. Zero
// values do not filter.
type TransactionQuery struct {
	AppID    uint64
	Method   string
	MinRound uint64
	MaxRound uint64
}

// Source returns confirmed application calls in confirmation order.
type Source interface {
	Transactions(ctx context.Context, q TransactionQuery) ([]history.IndexerTransaction, error)
}

// ClientConfig configures an IndexerClient.
type ClientConfig struct {
	BaseURL string
	// RequestsPerSecond paces page requests. Zero disables pacing.
	RequestsPerSecond float64
	PageLimit         int
	Timeout           time.Duration
	HTTPClient        *http.Client
}

// IndexerClient reads transaction history from an indexer-compatible
// endpoint, following next tokens until the result set is exhausted.
type IndexerClient struct {
	baseURL    string
	pageLimit  int
	limiter    *rate.Limiter
	httpClient *http.Client
}

// NewIndexerClient validates cfg and builds a client.
func NewIndexerClient(cfg ClientConfig) (*IndexerClient, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("audit: indexer url required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("audit: indexer url: %w", err)
	}
	limit := cfg.PageLimit
	if limit <= 0 || limit > defaultPageLimit {
		limit = defaultPageLimit
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &IndexerClient{
		baseURL:    strings.TrimRight(base, "/"),
		pageLimit:  limit,
		limiter:    limiter,
		httpClient: client,
	}, nil
}

// Transactions implements Source.
func (c *IndexerClient) Transactions(ctx context.Context, q TransactionQuery) ([]history.IndexerTransaction, error) {
	params := url.Values{}
	params.Set("tx-type", "appl")
	params.Set("limit", strconv.Itoa(c.pageLimit))
	if q.AppID != 0 {
		params.Set("application-id", strconv.FormatUint(q.AppID, 10))
	}
	if q.Method != "" {
		params.Set("method", q.Method)
	}
	if q.MinRound != 0 {
		params.Set("min-round", strconv.FormatUint(q.MinRound, 10))
	}
	if q.MaxRound != 0 {
		params.Set("max-round", strconv.FormatUint(q.MaxRound, 10))
	}

	var out []history.IndexerTransaction
	for page := 0; page < maxPages; page++ {
		resp, err := c.page(ctx, params)
		if err != nil {
			return nil, err
		}
		for _, txn := range resp.Transactions {
			if q.Method == "" || txn.Method() == q.Method {
				out = append(out, txn)
			}
		}
		if resp.NextToken == "" || len(resp.Transactions) == 0 {
			return out, nil
		}
		params.Set("next", resp.NextToken)
	}
	return nil, fmt.Errorf("audit: indexer returned more than %d pages", maxPages)
}

func (c *IndexerClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	reservation := c.limiter.Reserve()
	delay := reservation.Delay()
	if delay == 0 {
		return nil
	}
	observability.HTTP().RecordThrottle(indexerComponent, "rate_limit")
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		reservation.Cancel()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *IndexerClient) page(ctx context.Context, params url.Values) (*history.IndexerResponse, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+indexerRoute+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("audit: request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.HTTP().Observe(indexerComponent, indexerRoute, 0, time.Since(start))
		return nil, fmt.Errorf("audit: indexer call: %w", err)
	}
	defer resp.Body.Close()
	observability.HTTP().Observe(indexerComponent, indexerRoute, resp.StatusCode, time.Since(start))
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("audit: indexer returned status %d", resp.StatusCode)
	}
	var body history.IndexerResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("audit: decode indexer page: %w", err)
	}
	return &body, nil
}

// StoreSource reads a local history store directly.
type StoreSource struct {
	Store *history.Store
}

// Transactions implements Source.
func (s StoreSource) Transactions(ctx context.Context, q TransactionQuery) ([]history.IndexerTransaction, error) {
	if s.Store == nil {
		return nil, fmt.Errorf("audit: nil history store")
	}
	query := history.Query{
		AppID:    q.AppID,
		TxType:   "appl",
		Method:   q.Method,
		MinRound: q.MinRound,
		MaxRound: q.MaxRound,
		Limit:    history.MaxLimit,
	}
	var out []history.IndexerTransaction
	for {
		rows, next, err := s.Store.Query(ctx, query)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			out = append(out, row.Indexer())
		}
		if next == "" {
			return out, nil
		}
		query.Next = next
	}
}
