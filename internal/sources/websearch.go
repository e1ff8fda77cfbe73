package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/karstyne/leadscout/api/schemas"
	"github.com/karstyne/leadscout/internal/config"
)

// WebSearchConnector queries the Brave web search API.
type WebSearchConnector struct {
	cfg    config.SourceConfig
	client *http.Client
	logger *zap.Logger
}

func NewWebSearch(cfg config.SourceConfig, client *http.Client, logger *zap.Logger) *WebSearchConnector {
	return &WebSearchConnector{cfg: cfg, client: client, logger: logger.Named("source.websearch")}
}

func (c *WebSearchConnector) Name() string { return SourceWebSearch }

type braveSearchResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

func (c *WebSearchConnector) Search(ctx context.Context, keywords []string, limit int) ([]schemas.SearchCandidate, error) {
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("websearch: missing API key: %w", schemas.ErrAuthFailed)
	}

	// Brave caps count at 20 per request.
	count := limit
	if count > 20 {
		count = 20
	}
	q := url.Values{}
	q.Set("q", strings.Join(keywords, " "))
	q.Set("count", strconv.Itoa(count))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("websearch: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("websearch: %v: %w", err, schemas.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, classifyStatus("websearch", resp.StatusCode)
	}

	var payload braveSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("websearch: decode: %v: %w", err, schemas.ErrMalformedResponse)
	}

	now := time.Now()
	candidates := make([]schemas.SearchCandidate, 0, len(payload.Web.Results))
	for _, r := range payload.Web.Results {
		if r.URL == "" {
			continue
		}
		candidates = append(candidates, schemas.SearchCandidate{
			Title:        r.Title,
			URL:          r.URL,
			Snippet:      r.Description,
			SourceID:     SourceWebSearch,
			DiscoveredAt: now,
		})
		if len(candidates) >= limit {
			break
		}
	}

	c.logger.Debug("Web search complete.", zap.Int("candidates", len(candidates)))
	return candidates, nil
}
