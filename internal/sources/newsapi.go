package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/karstyne/leadscout/api/schemas"
	"github.com/karstyne/leadscout/internal/config"
)

// NewsAPIConnector queries the NewsAPI "everything" endpoint. Keywords are
// OR-joined into a single query so one call covers the whole keyword set.
type NewsAPIConnector struct {
	cfg    config.SourceConfig
	client *http.Client
	logger *zap.Logger
}

func NewNewsAPI(cfg config.SourceConfig, client *http.Client, logger *zap.Logger) *NewsAPIConnector {
	return &NewsAPIConnector{cfg: cfg, client: client, logger: logger.Named("source.newsapi")}
}

func (c *NewsAPIConnector) Name() string { return SourceNewsAPI }

type newsAPIResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Articles []struct {
		Title       string    `json:"title"`
		URL         string    `json:"url"`
		Description string    `json:"description"`
		PublishedAt time.Time `json:"publishedAt"`
	} `json:"articles"`
}

func (c *NewsAPIConnector) Search(ctx context.Context, keywords []string, limit int) ([]schemas.SearchCandidate, error) {
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("newsapi: missing API key: %w", schemas.ErrAuthFailed)
	}

	q := url.Values{}
	q.Set("q", strings.Join(keywords, " OR "))
	q.Set("pageSize", fmt.Sprintf("%d", limit))
	q.Set("sortBy", "publishedAt")
	q.Set("language", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("newsapi: build request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newsapi: %v: %w", err, schemas.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, classifyStatus("newsapi", resp.StatusCode)
	}

	var payload newsAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("newsapi: decode: %v: %w", err, schemas.ErrMalformedResponse)
	}
	if payload.Status != "ok" {
		return nil, fmt.Errorf("newsapi: provider error %q: %w", payload.Message, schemas.ErrUnavailable)
	}

	candidates := make([]schemas.SearchCandidate, 0, len(payload.Articles))
	for _, a := range payload.Articles {
		if a.URL == "" {
			continue
		}
		discovered := a.PublishedAt
		if discovered.IsZero() {
			discovered = time.Now()
		}
		candidates = append(candidates, schemas.SearchCandidate{
			Title:        a.Title,
			URL:          a.URL,
			Snippet:      a.Description,
			SourceID:     SourceNewsAPI,
			DiscoveredAt: discovered,
		})
		if len(candidates) >= limit {
			break
		}
	}

	c.logger.Debug("News search complete.", zap.Int("candidates", len(candidates)))
	return candidates, nil
}
