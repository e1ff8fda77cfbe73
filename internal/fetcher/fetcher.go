// File: internal/fetcher/fetcher.go
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/karstyne/leadscout/api/schemas"
	"github.com/karstyne/leadscout/internal/config"
	"github.com/karstyne/leadscout/internal/shaper"
)

// Fetcher retrieves page content for candidates using request plans produced
// by the shaper. It does not retry on its own; classifying a failure as
// retryable and deciding whether to retry is the orchestrator's job.
type Fetcher struct {
	cfg    config.NetworkConfig
	shaper *shaper.Shaper
	logger *zap.Logger

	// direct is the shared client for proxyless requests. Proxied requests
	// get a per-proxy client built on demand.
	direct *http.Client
}

// New creates a Fetcher.
func New(cfg config.NetworkConfig, sh *shaper.Shaper, logger *zap.Logger) *Fetcher {
	log := logger.Named("fetcher")
	return &Fetcher{
		cfg:    cfg,
		shaper: sh,
		logger: log,
		direct: newClient(cfg, nil, log),
	}
}

// Fetch retrieves full page content for a candidate. The returned content
// always carries the candidate; on failure FetchSucceeded is false, the error
// classifies the failure (schemas.ErrFetchTerminal or
// schemas.ErrFetchRetryable), and the candidate is kept, not dropped.
func (f *Fetcher) Fetch(ctx context.Context, candidate schemas.SearchCandidate) (schemas.FetchedContent, error) {
	content := schemas.FetchedContent{
		Candidate: candidate,
		FetchedAt: time.Now().UTC(),
	}

	if err := f.shaper.Throttle(ctx, candidate.URL); err != nil {
		return content, fmt.Errorf("%w: throttle interrupted: %w", schemas.ErrFetchRetryable, err)
	}

	plan := f.shaper.PrepareRequest(candidate.URL)
	if plan.Pause > 0 {
		// Simulated scroll/read pause. Timing only; nothing observable.
		select {
		case <-ctx.Done():
			return content, fmt.Errorf("%w: %w", schemas.ErrFetchRetryable, ctx.Err())
		case <-time.After(plan.Pause):
		}
	}

	client := f.direct
	proxyAddr := ""
	if plan.ProxyURL != nil {
		client = newClient(f.cfg, plan.ProxyURL, f.logger)
		defer client.CloseIdleConnections()
		proxyAddr = plan.Proxy.Address
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, candidate.URL, nil)
	if err != nil {
		f.shaper.RecordResponse(candidate.URL, 0, proxyAddr, false)
		return content, fmt.Errorf("%w: building request: %w", schemas.ErrFetchTerminal, err)
	}
	req.Header = plan.Headers.Clone()

	resp, err := client.Do(req)
	if err != nil {
		f.shaper.RecordResponse(candidate.URL, 0, proxyAddr, false)
		return content, classifyTransportError(err)
	}
	defer resp.Body.Close()

	content.HTTPStatus = resp.StatusCode
	f.shaper.RecordResponse(candidate.URL, resp.StatusCode, proxyAddr, resp.StatusCode < 400)

	switch {
	case resp.StatusCode >= 500:
		return content, fmt.Errorf("%w: server returned %d", schemas.ErrFetchRetryable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return content, fmt.Errorf("%w: server returned %d", schemas.ErrFetchTerminal, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return content, fmt.Errorf("%w: reading body: %w", schemas.ErrFetchRetryable, err)
	}

	page, err := extractPageContent(string(body))
	if err != nil {
		return content, fmt.Errorf("%w: parsing html: %w", schemas.ErrFetchTerminal, err)
	}

	content.RawHTML = string(body)
	content.RawText = page.Text
	content.Title = page.Title
	content.MetaDescription = page.MetaDescription
	content.FetchSucceeded = true

	f.logger.Debug("Fetched candidate",
		zap.String("url", candidate.URL),
		zap.Int("status", resp.StatusCode),
		zap.Int("text_chars", len(content.RawText)),
	)
	return content, nil
}

// newClient builds an http.Client with the redirect cap applied.
func newClient(cfg config.NetworkConfig, proxyURL *url.URL, logger *zap.Logger) *http.Client {
	return &http.Client{
		Transport: newTransport(transportConfig{
			ignoreTLSErrors: cfg.IgnoreTLSErrors,
			proxyURL:        proxyURL,
			logger:          logger,
		}),
		Timeout: cfg.FetchTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", cfg.MaxRedirects)
			}
			return nil
		},
	}
}

// classifyTransportError maps connection-level failures onto the retryable /
// terminal split. Timeouts and resets are worth retrying; anything structural
// about the request is not.
func classifyTransportError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return fmt.Errorf("%w: timeout: %w", schemas.ErrFetchRetryable, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return fmt.Errorf("%w: timeout: %w", schemas.ErrFetchRetryable, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: cancelled: %w", schemas.ErrFetchRetryable, err)
	}
	return fmt.Errorf("%w: %w", schemas.ErrFetchRetryable, err)
}
