// Package cftc fetches Commitments of Traders reports from the CFTC public
// reporting (Socrata) API.
package cftc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/roll-pressure/internal/market"
)

const (
	// DisaggregatedFuturesOnly is the Socrata dataset id of the disaggregated report.
	DisaggregatedFuturesOnly = "72hh-3qpy"

	queryDateLayout = "2006-01-02T15:04:05.000"
	pageLimit       = 50000
)

// Client interface for testability
type Client interface {
	FetchReports(ctx context.Context, mkt string, start, end time.Time) ([]Report, error)
}

// RequestObserver is notified with the outcome of every HTTP attempt.
type RequestObserver func(status string)

type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	dataset    string
	appToken   string
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	retryCount int
	retryDelay time.Duration
	observe    RequestObserver
	logger     *zap.Logger
}

type Options struct {
	BaseURL         string
	Dataset         string
	AppToken        string
	RatePerSecond   int
	Timeout         time.Duration
	RetryDelay      time.Duration
	RetryCount      int
	BreakerFailures int
	BreakerTimeout  time.Duration
	Observer        RequestObserver
}

func NewClient(opts Options, logger *zap.Logger) *HTTPClient {
	transport := &http.Transport{
		MaxIdleConns:    10,
		MaxConnsPerHost: 4,
		IdleConnTimeout: 90 * time.Second,
	}

	if opts.Dataset == "" {
		opts.Dataset = DisaggregatedFuturesOnly
	}
	if opts.RatePerSecond < 1 {
		opts.RatePerSecond = 1
	}
	if opts.BreakerFailures < 1 {
		opts.BreakerFailures = 5
	}
	if opts.Observer == nil {
		opts.Observer = func(string) {}
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "cftc",
		Timeout: opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(opts.BreakerFailures)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &HTTPClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		baseURL:    opts.BaseURL,
		dataset:    opts.Dataset,
		appToken:   opts.AppToken,
		limiter:    rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.RatePerSecond*2),
		breaker:    breaker,
		retryCount: opts.RetryCount,
		retryDelay: opts.RetryDelay,
		observe:    opts.Observer,
		logger:     logger,
	}
}

// QueryURL builds the Socrata query for one market and an inclusive date range.
func (c *HTTPClient) QueryURL(spec market.Spec, start, end time.Time) string {
	where := fmt.Sprintf("report_date_as_yyyy_mm_dd between '%s' and '%s' AND cftc_contract_market_code='%s'",
		start.Format(queryDateLayout), end.Format(queryDateLayout), spec.CFTCCode)

	q := url.Values{}
	q.Set("$where", where)
	q.Set("$order", "report_date_as_yyyy_mm_dd ASC")
	q.Set("$limit", fmt.Sprint(pageLimit))

	return fmt.Sprintf("%s/resource/%s.json?%s", c.baseURL, c.dataset, q.Encode())
}

func (c *HTTPClient) FetchReports(ctx context.Context, mkt string, start, end time.Time) ([]Report, error) {
	spec, err := market.Lookup(mkt)
	if err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, c.QueryURL(spec, start, end))
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.observe("circuit_open")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return nil, err
	}

	reports := result.([]Report)
	if len(reports) == 0 {
		return nil, ErrNotFound
	}
	return reports, nil
}

func (c *HTTPClient) fetch(ctx context.Context, u string) ([]Report, error) {
	// Wait for rate limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	c.logger.Debug("requesting", zap.String("url", u))

	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<(attempt-1)) // Exponential backoff
			c.logger.Debug("retrying request", zap.Int("attempt", attempt), zap.Duration("delay", delay))

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Accept", "application/json")
		if c.appToken != "" {
			req.Header.Set("X-App-Token", c.appToken)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.observe("transport_error")
			lastErr = err
			continue
		}

		// Read body before closing for error messages
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if readErr != nil {
			c.observe("transport_error")
			lastErr = readErr
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			c.observe("not_found")
			return nil, ErrNotFound
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			c.observe("auth_failed")
			return nil, ErrAuthFailed
		case resp.StatusCode == http.StatusTooManyRequests:
			c.observe("rate_limited")
			lastErr = ErrRateLimited
			continue
		case resp.StatusCode >= 500:
			c.observe("server_error")
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			continue
		case resp.StatusCode != http.StatusOK:
			c.observe("client_error")
			return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
		}

		var reports []Report
		if err := json.Unmarshal(body, &reports); err != nil {
			c.observe("decode_error")
			return nil, fmt.Errorf("decoding response: %w", err)
		}

		c.observe("success")
		return reports, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
