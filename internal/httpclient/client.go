// CrossWatch - cross-provider media library synchronization engine
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crosswatch-sync/crosswatch

// Package httpclient implements the instrumented HTTP session shared by
// every ProviderAdapter: labeled endpoints, 429-aware exponential backoff,
// rate-limit header parsing, and a circuit breaker per adapter instance.
//
// Grounded on internal/sync's circuit_breaker.go (gobreaker wiring,
// castResult generic helper, state-to-metric mapping) and plex.go
// (doRequestWithRateLimit exponential backoff), generalized from a single
// hard-coded Plex client into a provider-agnostic client usable by any
// adapter.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/crosswatch-sync/crosswatch/internal/logging"
	"github.com/crosswatch-sync/crosswatch/internal/metrics"
)

// RetryableStatus is the default set of HTTP statuses that trigger a retry,
// per spec §4.2 (retry_on={429,500,502,503,504}).
var RetryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Options configures a Client.
type Options struct {
	Provider   string        // used for metric/log labels and the breaker name
	Instance   string        // named credential profile, for metric labels
	Timeout    time.Duration // per-request timeout, default 15s per §5
	MaxRetries int           // default 5
	BackoffBase time.Duration // default 500ms per §4.2
	RateLimitPerSecond float64 // x/time/rate QPS cap, 0 disables limiting
	RateLimitBurst     int
	Transport  http.RoundTripper
}

func (o *Options) applyDefaults() {
	if o.Timeout == 0 {
		o.Timeout = 15 * time.Second
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 5
	}
	if o.BackoffBase == 0 {
		o.BackoffBase = 500 * time.Millisecond
	}
	if o.Instance == "" {
		o.Instance = "default"
	}
}

// Client is the per-adapter-instance instrumented HTTP session.
type Client struct {
	opts    Options
	http    *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[*http.Response]
}

// New constructs a Client for one provider instance.
func New(opts Options) *Client {
	opts.applyDefaults()

	var limiter *rate.Limiter
	if opts.RateLimitPerSecond > 0 {
		burst := opts.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitPerSecond), burst)
	}

	cbName := fmt.Sprintf("%s:%s", opts.Provider, opts.Instance)
	metrics.CircuitBreakerState.WithLabelValues(opts.Provider, opts.Instance).Set(0)

	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(opts.Provider, opts.Instance).Set(metrics.StateToFloat(stateToString(to)))
			logging.ForProvider(opts.Provider).Info().
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("circuit breaker state transition")
		},
	})

	return &Client{
		opts: opts,
		http: &http.Client{Timeout: opts.Timeout, Transport: opts.Transport},
		limiter: limiter,
		cb:      cb,
	}
}

func stateToString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Request describes one outbound call before retries/backoff are applied.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// RequestWithRetries executes req, retrying on RetryableStatus with
// exponential backoff (base*2^i) clamped by a Retry-After header (seconds
// or HTTP-date) when present, per spec §4.2. On final failure it returns
// the last response; on network error it returns the error. The call is
// routed through the rate limiter then the circuit breaker.
func (c *Client) RequestWithRetries(ctx context.Context, r Request) (*http.Response, error) {
	label := c.Label(r.Method, r.URL, nil)
	maxRetries := c.opts.MaxRetries

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		start := time.Now()
		resp, err := c.cb.Execute(func() (*http.Response, error) {
			return c.do(ctx, r)
		})
		elapsed := time.Since(start)

		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return nil, fmt.Errorf("%s: circuit open: %w", label, err)
			}
			metrics.HTTPRetries.WithLabelValues(c.opts.Provider, label, "network_error").Inc()
			if attempt == maxRetries {
				return nil, fmt.Errorf("%s: %w", label, err)
			}
			if !sleepBackoff(ctx, backoffDelay(c.opts.BackoffBase, attempt, nil)) {
				return nil, ctx.Err()
			}
			continue
		}

		metrics.HTTPRequestDuration.WithLabelValues(c.opts.Provider, label, statusClass(resp.StatusCode)).Observe(elapsed.Seconds())

		if !RetryableStatus[resp.StatusCode] {
			return resp, nil
		}
		if attempt == maxRetries {
			return resp, nil
		}

		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		_ = body

		metrics.HTTPRetries.WithLabelValues(c.opts.Provider, label, "status_code").Inc()
		logging.ForProvider(c.opts.Provider).Warn().
			Int("status", resp.StatusCode).Int("attempt", attempt+1).Msg("retrying request")

		if !sleepBackoff(ctx, backoffDelay(c.opts.BackoffBase, attempt, retryAfter)) {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%s: unreachable retry loop exit", label)
}

func (c *Client) do(ctx context.Context, r Request) (*http.Response, error) {
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "crosswatch/1.0")
	req.Header.Set("Accept", "application/json")
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return c.http.Do(req)
}

// backoffDelay computes base*2^attempt, clamped to retryAfter when present.
func backoffDelay(base time.Duration, attempt int, retryAfter *time.Duration) time.Duration {
	delay := base * time.Duration(1<<uint(attempt))
	if retryAfter != nil && *retryAfter > 0 {
		return *retryAfter
	}
	return delay
}

func sleepBackoff(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// parseRetryAfter parses a Retry-After header as either delay-seconds or an
// HTTP-date, per RFC 9110 §10.2.3.
func parseRetryAfter(v string) *time.Duration {
	if v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		d := time.Duration(secs) * time.Second
		return &d
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return &d
	}
	return nil
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
