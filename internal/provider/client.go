package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/quantfold/screener/pkg/config"
	"github.com/quantfold/screener/pkg/logger"
	"github.com/quantfold/screener/pkg/redis"
)

// Client is the rate-limited quote provider client. Each fetch runs with a
// fixed timeout, classifies the response, and retries transient failures with
// linear backoff. Per-symbol failures always degrade to ErrNoData; an error
// is only returned for transport-level problems (see Ping).
type Client struct {
	apiKey  string
	baseURL string

	httpClient *http.Client
	limiter    *rate.Limiter

	// Optional cross-process budget. Nil when Redis is disabled.
	sharedLimiter *redis.RateLimiter
	sharedCfg     redis.RateLimitConfig

	maxRetries int
	retryDelay time.Duration

	counters CallCounter
	logger   *logger.Logger

	// Injectable for tests; defaults to time.Sleep.
	sleep func(time.Duration)
}

// New creates a provider client from config.
func New(cfg *config.Config, log *logger.Logger) *Client {
	return &Client{
		apiKey:  cfg.Provider.APIKey,
		baseURL: cfg.Provider.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Provider.RequestTimeout,
		},
		limiter:    rate.NewLimiter(rate.Limit(cfg.Provider.RequestsPerSecond), cfg.Provider.RequestsPerSecond),
		maxRetries: cfg.Provider.MaxRetries,
		retryDelay: cfg.Provider.RetryDelay,
		logger:     log.WithField("module", "provider"),
		sleep:      time.Sleep,
	}
}

// WithSharedLimiter attaches a Redis-backed rate budget shared across
// processes. A disabled Redis client passes every request through.
func (c *Client) WithSharedLimiter(limiter *redis.RateLimiter, cfg redis.RateLimitConfig) *Client {
	c.sharedLimiter = limiter
	c.sharedCfg = cfg
	return c
}

// WithCounters attaches shared call/retry counters (one per batch run).
func (c *Client) WithCounters(counters CallCounter) *Client {
	c.counters = counters
	return c
}

// Ping verifies the provider endpoint is reachable. The batch collector calls
// it before fanning out; a failure here fails the whole phase.
func (c *Client) Ping(ctx context.Context) error {
	u := fmt.Sprintf("%s/v1/marketstatus/now", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create ping request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return fmt.Errorf("provider unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// envelope is the common provider response wrapper.
type envelope struct {
	Status  string          `json:"status"`
	Results json.RawMessage `json:"results"`
}

// fetch issues one request with retry. Returns the raw results payload, or
// ErrNoData after classification/exhaustion. Never returns any other error
// kind; per-symbol trouble is absorbed here.
func (c *Client) fetch(ctx context.Context, fullURL string) (json.RawMessage, error) {
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if c.counters != nil {
				c.counters.IncRetries()
			}
			// Linear backoff: delay * attempt number.
			c.sleep(c.retryDelay * time.Duration(attempt))
		}

		if err := c.wait(ctx); err != nil {
			return nil, ErrNoData
		}
		if c.counters != nil {
			c.counters.IncCalls()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, ErrNoData
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("User-Agent", "screener/2.0")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Timeout or connection error: retryable.
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			if readErr != nil {
				continue
			}
			var env envelope
			if err := json.Unmarshal(body, &env); err != nil {
				return nil, ErrNoData
			}
			if env.Status != "OK" {
				// Provider answered cleanly but has nothing for us.
				return nil, ErrNoData
			}
			return env.Results, nil

		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			continue

		default:
			// 404 and other 4xx: fatal for this symbol, no retry.
			return nil, ErrNoData
		}
	}

	return nil, ErrNoData
}

// wait blocks on the in-process limiter and, when configured, on the shared
// Redis budget.
func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if c.sharedLimiter != nil {
		if err := c.sharedLimiter.Wait(ctx, c.sharedCfg); err != nil {
			return err
		}
	}
	return nil
}

// GetReference fetches the prior-session OHLCV aggregate for a symbol.
func (c *Client) GetReference(ctx context.Context, symbol string) (*ReferenceBar, error) {
	if symbol == "" {
		return nil, ErrNoData
	}
	u := fmt.Sprintf("%s/v2/aggs/ticker/%s/prev", c.baseURL, url.PathEscape(symbol))

	results, err := c.fetch(ctx, u)
	if err != nil {
		return nil, err
	}

	var bars []struct {
		Open   float64 `json:"o"`
		High   float64 `json:"h"`
		Low    float64 `json:"l"`
		Close  float64 `json:"c"`
		Volume float64 `json:"v"`
	}
	if err := json.Unmarshal(results, &bars); err != nil || len(bars) == 0 {
		return nil, ErrNoData
	}

	b := bars[0]
	return &ReferenceBar{
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: b.Volume,
	}, nil
}

// GetCompany fetches company reference data for a symbol.
func (c *Client) GetCompany(ctx context.Context, symbol string) (*CompanyInfo, error) {
	if symbol == "" {
		return nil, ErrNoData
	}
	u := fmt.Sprintf("%s/v3/reference/tickers/%s", c.baseURL, url.PathEscape(symbol))

	results, err := c.fetch(ctx, u)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Name                        string  `json:"name"`
		MarketCap                   float64 `json:"market_cap"`
		ShareClassSharesOutstanding float64 `json:"share_class_shares_outstanding"`
		WeightedSharesOutstanding   float64 `json:"weighted_shares_outstanding"`
	}
	if err := json.Unmarshal(results, &payload); err != nil {
		return nil, ErrNoData
	}

	shares := payload.ShareClassSharesOutstanding
	if shares == 0 {
		shares = payload.WeightedSharesOutstanding
	}

	return &CompanyInfo{
		Name:              payload.Name,
		MarketCap:         payload.MarketCap,
		SharesOutstanding: shares,
	}, nil
}

// GetLastTrade fetches the most recent trade price for a symbol.
func (c *Client) GetLastTrade(ctx context.Context, symbol string) (*LastTrade, error) {
	if symbol == "" {
		return nil, ErrNoData
	}
	u := fmt.Sprintf("%s/v2/last/trade/%s", c.baseURL, url.PathEscape(symbol))

	results, err := c.fetch(ctx, u)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Price float64 `json:"p"`
	}
	if err := json.Unmarshal(results, &payload); err != nil || payload.Price <= 0 {
		return nil, ErrNoData
	}

	return &LastTrade{Price: payload.Price}, nil
}
