// Package sources provides the pluggable search connectors that feed the
// pipeline with raw candidates. Each connector maps its provider's failure
// modes onto the shared error taxonomy so the orchestrator can decide whether
// to skip the source or fail the run.
package sources

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/karstyne/leadscout/api/schemas"
	"github.com/karstyne/leadscout/internal/config"
)

// SourceIDs as they appear in a ScrapingConfig's EnabledSources list.
const (
	SourceNewsAPI   = "newsapi"
	SourceWebSearch = "websearch"
	SourceRSS       = "rss"
)

const searchTimeout = 15 * time.Second

// Build returns one connector per source that is both enabled in the runtime
// configuration and requested by the scrape config. Unknown source IDs are
// logged and skipped rather than failing the run.
func Build(cfg config.SourcesConfig, requested []string, logger *zap.Logger) []schemas.SourceConnector {
	client := &http.Client{Timeout: searchTimeout}
	var out []schemas.SourceConnector
	for _, id := range requested {
		switch id {
		case SourceNewsAPI:
			if cfg.NewsAPI.Enabled {
				out = append(out, NewNewsAPI(cfg.NewsAPI, client, logger))
			}
		case SourceWebSearch:
			if cfg.WebSearch.Enabled {
				out = append(out, NewWebSearch(cfg.WebSearch, client, logger))
			}
		case SourceRSS:
			if cfg.RSS.Enabled {
				out = append(out, NewRSS(cfg.RSS, client, logger))
			}
		default:
			logger.Warn("Unknown source ID requested, skipping.", zap.String("source", id))
		}
	}
	return out
}

// classifyStatus maps provider HTTP statuses onto the shared taxonomy.
func classifyStatus(source string, status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%s: status %d: %w", source, status, schemas.ErrRateLimited)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%s: status %d: %w", source, status, schemas.ErrAuthFailed)
	default:
		return fmt.Errorf("%s: status %d: %w", source, status, schemas.ErrUnavailable)
	}
}
