// Package fetch performs the actual HTTP requests, presenting whatever
// identity the worker currently wears. A NoopFetcher backs dry runs.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/quietriver/chaff/internal/ratelimit"
)

// Fetcher issues one request to target under the given identity.
// Implementations must be safe for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, target string, id Identity) error
}

// HTTPFetcher is the production Fetcher: rate-limited per host, bounded by
// a per-request timeout, body discarded. Responses are never parsed; only
// the request itself matters.
type HTTPFetcher struct {
	client  *http.Client
	limiter ratelimit.Limiter
	timeout time.Duration
	logger  *slog.Logger
}

// NewHTTP builds an HTTPFetcher. The limiter gates requests by hostname;
// pass ratelimit.NoopLimiter{} to disable.
func NewHTTP(limiter ratelimit.Limiter, timeout time.Duration, logger *slog.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		limiter: limiter,
		timeout: timeout,
		logger:  logger,
	}
}

// Fetch issues a GET to target. Non-2xx statuses are not errors: a 404 from
// a support site is still a perfectly good signal to anyone watching.
func (f *HTTPFetcher) Fetch(ctx context.Context, target string, id Identity) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("fetch: parse %q: %w", target, err)
	}
	if err := f.limiter.Wait(ctx, u.Hostname()); err != nil {
		return fmt.Errorf("fetch: rate limit wait for %s: %w", u.Hostname(), err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("fetch: build request: %w", err)
	}
	id.Apply(req.Header)

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch: %s: %w", u.Hostname(), err)
	}
	defer resp.Body.Close()

	// Drain a bounded amount so keep-alive connections get reused.
	_, _ = io.CopyN(io.Discard, resp.Body, 64<<10)

	f.logger.Debug("fetched", "host", u.Hostname(), "status", resp.StatusCode)
	return nil
}

// NoopFetcher logs the request it would have made and succeeds. Used by
// --dry-run so the full pipeline can be observed offline.
type NoopFetcher struct {
	Logger *slog.Logger
}

// Fetch logs and returns nil.
func (n NoopFetcher) Fetch(_ context.Context, target string, id Identity) error {
	n.Logger.Info("dry-run fetch", "url", target, "user_agent", id.UserAgent)
	return nil
}
