// Package fetcher pulls one symbol's daily price history and metadata from
// the external market-data provider and normalizes it into the raw-series
// shape. The fetcher never retries internally; retry policy belongs to the
// worker via the typed FetchError's retryable bit.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/Awannaphasch2016/dr-daily-report/internal/domain"
)

// ProviderSeries is the raw provider response before normalization.
type ProviderSeries struct {
	Symbol   string                 `json:"symbol"`
	Bars     []ProviderBar          `json:"bars"`
	Metadata map[string]interface{} `json:"meta"`
}

// ProviderBar is one observation as returned by the provider. Values are
// unvalidated: non-finite floats are possible and are scrubbed downstream.
type ProviderBar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Client is the HTTP client for the market-data provider. Requests are rate
// limited (the provider throttles aggressively) and go through a circuit
// breaker so a provider outage fails fast instead of burning the run budget.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	log        zerolog.Logger
}

// NewClient creates a new provider client.
func NewClient(baseURL, apiKey string, log zerolog.Logger) *Client {
	componentLog := log.With().Str("client", "market_provider").Logger()

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "market_provider",
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			componentLog.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Provider circuit breaker state change")
		},
	})

	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(rate.Limit(5), 10), // 5 req/s sustained, burst 10
		breaker:    breaker,
		log:        componentLog,
	}
}

// FetchDailyHistory requests the trailing daily OHLCV history for a symbol.
// All failure modes map to a typed FetchError; the caller decides retries.
func (c *Client) FetchDailyHistory(ctx context.Context, symbol string, days int) (*ProviderSeries, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, domain.NewFetchError(domain.FetchTimeout, symbol, err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doFetch(ctx, symbol, days)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, domain.NewFetchError(domain.FetchTransport, symbol, err)
		}
		var fe *domain.FetchError
		if errors.As(err, &fe) {
			return nil, err
		}
		return nil, domain.NewFetchError(domain.FetchTransport, symbol, err)
	}

	return result.(*ProviderSeries), nil
}

func (c *Client) doFetch(ctx context.Context, symbol string, days int) (*ProviderSeries, error) {
	endpoint := fmt.Sprintf("%s/v1/history/daily?%s", c.baseURL, url.Values{
		"symbol": {symbol},
		"days":   {strconv.Itoa(days)},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, domain.NewFetchError(domain.FetchTransport, symbol, err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded || isTimeout(err) {
			return nil, domain.NewFetchError(domain.FetchTimeout, symbol, err)
		}
		return nil, domain.NewFetchError(domain.FetchTransport, symbol, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, domain.NewFetchError(domain.FetchRateLimit, symbol,
			fmt.Errorf("provider returned 429"))
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.NewFetchError(domain.FetchEmpty, symbol,
			fmt.Errorf("provider has no data for symbol"))
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, domain.NewFetchError(domain.FetchTransport, symbol,
			fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(body)))
	}

	var series ProviderSeries
	if err := json.NewDecoder(resp.Body).Decode(&series); err != nil {
		return nil, domain.NewFetchError(domain.FetchTransport, symbol,
			fmt.Errorf("failed to decode provider response: %w", err))
	}

	c.log.Debug().
		Str("symbol", symbol).
		Int("bars", len(series.Bars)).
		Msg("Fetched daily history")

	return &series, nil
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
