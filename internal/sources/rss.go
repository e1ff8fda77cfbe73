package sources

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/karstyne/leadscout/api/schemas"
	"github.com/karstyne/leadscout/internal/config"
)

const maxFeedBytes = 2 << 20

// RSSConnector polls a configured set of RSS 2.0 / Atom 1.0 feeds and
// keyword-filters the items. A feed that fails is skipped; the search only
// errors when every configured feed fails.
type RSSConnector struct {
	cfg    config.SourceConfig
	client *http.Client
	logger *zap.Logger
}

func NewRSS(cfg config.SourceConfig, client *http.Client, logger *zap.Logger) *RSSConnector {
	return &RSSConnector{cfg: cfg, client: client, logger: logger.Named("source.rss")}
}

func (c *RSSConnector) Name() string { return SourceRSS }

func (c *RSSConnector) Search(ctx context.Context, keywords []string, limit int) ([]schemas.SearchCandidate, error) {
	if len(c.cfg.FeedURLs) == 0 {
		return nil, fmt.Errorf("rss: no feed URLs configured: %w", schemas.ErrUnavailable)
	}

	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}

	var (
		candidates []schemas.SearchCandidate
		failures   int
		lastErr    error
	)
	for _, feedURL := range c.cfg.FeedURLs {
		entries, err := c.fetchFeed(ctx, feedURL)
		if err != nil {
			failures++
			lastErr = err
			c.logger.Warn("Feed fetch failed, skipping.", zap.String("feed", feedURL), zap.Error(err))
			continue
		}
		for _, e := range entries {
			if e.Link == "" || !matchesAny(e, lowered) {
				continue
			}
			candidates = append(candidates, schemas.SearchCandidate{
				Title:        e.Title,
				URL:          e.Link,
				Snippet:      e.Description,
				SourceID:     SourceRSS,
				DiscoveredAt: e.publishedOrNow(),
			})
			if len(candidates) >= limit {
				return candidates, nil
			}
		}
	}

	if failures == len(c.cfg.FeedURLs) {
		return nil, fmt.Errorf("rss: all %d feeds failed: %w", failures, lastErr)
	}
	return candidates, nil
}

func matchesAny(e feedEntry, loweredKeywords []string) bool {
	haystack := strings.ToLower(e.Title + " " + e.Description)
	for _, k := range loweredKeywords {
		if strings.Contains(haystack, k) {
			return true
		}
	}
	return false
}

func (c *RSSConnector) fetchFeed(ctx context.Context, feedURL string) ([]feedEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, schemas.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, classifyStatus("rss", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return parseFeed(data)
}

// feedEntry is the format-neutral view of one feed item.
type feedEntry struct {
	Title       string
	Link        string
	Description string
	Published   string
}

func (e feedEntry) publishedOrNow() time.Time {
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC3339} {
		if t, err := time.Parse(layout, e.Published); err == nil {
			return t
		}
	}
	return time.Now()
}

// parseFeed auto-detects RSS 2.0 vs Atom 1.0 from the root element.
func parseFeed(data []byte) ([]feedEntry, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty feed: %w", schemas.ErrMalformedResponse)
	}
	switch detectFeedFormat(trimmed) {
	case "rss":
		return parseRSSFeed(data)
	case "atom":
		return parseAtomFeed(data)
	default:
		return nil, fmt.Errorf("unknown feed format: %w", schemas.ErrMalformedResponse)
	}
}

func detectFeedFormat(data []byte) string {
	d := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := d.Token()
		if err != nil {
			return ""
		}
		if se, ok := tok.(xml.StartElement); ok {
			switch strings.ToLower(se.Name.Local) {
			case "rss", "rdf":
				return "rss"
			case "feed":
				return "atom"
			default:
				return ""
			}
		}
	}
}

type rssRoot struct {
	Channel struct {
		Items []struct {
			Title       string `xml:"title"`
			Link        string `xml:"link"`
			Description string `xml:"description"`
			PubDate     string `xml:"pubDate"`
		} `xml:"item"`
	} `xml:"channel"`
}

func parseRSSFeed(data []byte) ([]feedEntry, error) {
	var root rssRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse rss: %v: %w", err, schemas.ErrMalformedResponse)
	}
	entries := make([]feedEntry, 0, len(root.Channel.Items))
	for _, item := range root.Channel.Items {
		entries = append(entries, feedEntry{
			Title:       strings.TrimSpace(item.Title),
			Link:        strings.TrimSpace(item.Link),
			Description: strings.TrimSpace(item.Description),
			Published:   strings.TrimSpace(item.PubDate),
		})
	}
	return entries, nil
}

type atomRoot struct {
	Entries []struct {
		Title string `xml:"title"`
		Links []struct {
			Rel  string `xml:"rel,attr"`
			Href string `xml:"href,attr"`
		} `xml:"link"`
		Summary   string `xml:"summary"`
		Published string `xml:"published"`
		Updated   string `xml:"updated"`
	} `xml:"entry"`
}

func parseAtomFeed(data []byte) ([]feedEntry, error) {
	var root atomRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse atom: %v: %w", err, schemas.ErrMalformedResponse)
	}
	entries := make([]feedEntry, 0, len(root.Entries))
	for _, e := range root.Entries {
		var link string
		for _, l := range e.Links {
			if l.Rel == "" || l.Rel == "alternate" {
				link = l.Href
				break
			}
		}
		if link == "" && len(e.Links) > 0 {
			link = e.Links[0].Href
		}
		published := e.Published
		if published == "" {
			published = e.Updated
		}
		entries = append(entries, feedEntry{
			Title:       strings.TrimSpace(e.Title),
			Link:        strings.TrimSpace(link),
			Description: strings.TrimSpace(e.Summary),
			Published:   strings.TrimSpace(published),
		})
	}
	return entries, nil
}
