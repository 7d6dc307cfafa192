// Package rest is the shared HTTP core of the market-data clients: one rate
// limiter per backend, a 10 second per-request timeout, and a bounded retry
// budget with exponential backoff. Throttling responses count against the
// budget and are reported as rate-limited fetch errors once it runs out.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
)

const (
	defaultMinInterval = 350 * time.Millisecond
	defaultTimeout     = 10 * time.Second
	defaultMaxRetries  = 3
	defaultBackoffBase = 2 * time.Second

	// When the upstream's remaining-request header drops this low, sleep one
	// backoff interval before the next call instead of running into a 429.
	remainingThreshold = 2
)

// Config tunes one backend's request policy. Zero values use the defaults.
type Config struct {
	Source      string // backend name, used in errors and logs
	MinInterval time.Duration
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
}

// Client issues rate-limited, retried JSON requests against one backend.
type Client struct {
	source      string
	http        *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	backoffBase time.Duration
	log         zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = defaultMinInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	return &Client{
		source:      cfg.Source,
		http:        &http.Client{Timeout: cfg.Timeout},
		limiter:     rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.BackoffBase,
		log:         log.With().Str("client", cfg.Source).Logger(),
	}
}

// GetJSON fetches url and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	return c.doJSON(ctx, http.MethodGet, url, headers, nil, out)
}

// PostJSON sends body as JSON to url and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}
	return c.doJSON(ctx, http.MethodPost, url, headers, payload, out)
}

func (c *Client) doJSON(ctx context.Context, method, url string, headers map[string]string, body []byte, out any) error {
	var lastErr error
	rateLimited := false

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.backoffBase << (attempt - 1)
			c.log.Warn().Int("attempt", attempt).Dur("backoff", backoff).
				Str("url", url).Msg("Retrying request")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		retryable, err := c.attempt(ctx, method, url, headers, body, out, &rateLimited)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}

	return &domain.FetchError{Source: c.source, RateLimited: rateLimited, Err: lastErr}
}

// attempt runs one request. It reports whether the failure is worth retrying.
func (c *Client) attempt(ctx context.Context, method, url string, headers map[string]string, body []byte, out any, rateLimited *bool) (bool, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return false, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	c.observeRemaining(ctx, resp)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		*rateLimited = true
		return true, fmt.Errorf("upstream throttled (%d)", resp.StatusCode)
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("upstream error (%d)", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return false, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}
	return false, nil
}

// observeRemaining waits one backoff interval when the upstream says we are
// close to its request quota. Cancelling the context cuts the wait short.
func (c *Client) observeRemaining(ctx context.Context, resp *http.Response) {
	raw := resp.Header.Get("X-RateLimit-Remaining")
	if raw == "" {
		return
	}
	remaining, err := strconv.Atoi(raw)
	if err != nil || remaining > remainingThreshold {
		return
	}
	c.log.Warn().Int("remaining", remaining).Msg("Approaching upstream quota, backing off")
	timer := time.NewTimer(c.backoffBase)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
