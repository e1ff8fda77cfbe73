// File: internal/dedup/dedup.go
package dedup

import (
	"sync"

	"go.uber.org/zap"

	"github.com/karstyne/leadscout/api/schemas"
)

// Deduplicator drops candidates whose normalized URL has been seen before.
// First seen wins. It is safe for concurrent use; the pipeline runs one
// pre-fetch pass and one final pass through the same instance so both passes
// share a single seen-set.
type Deduplicator struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	logger *zap.Logger
}

// New creates an empty deduplicator.
func New(logger *zap.Logger) *Deduplicator {
	return &Deduplicator{
		seen:   make(map[string]struct{}),
		logger: logger.Named("dedup"),
	}
}

// Admit records the URL and reports whether it was seen for the first time.
func (d *Deduplicator) Admit(rawURL string) bool {
	key := NormalizeURL(rawURL)
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.seen[key]; dup {
		return false
	}
	d.seen[key] = struct{}{}
	return true
}

// FilterCandidates returns the candidates whose URLs survive deduplication,
// preserving input order.
func (d *Deduplicator) FilterCandidates(candidates []schemas.SearchCandidate) []schemas.SearchCandidate {
	kept := make([]schemas.SearchCandidate, 0, len(candidates))
	for _, c := range candidates {
		if d.Admit(c.URL) {
			kept = append(kept, c)
		} else {
			d.logger.Debug("Dropping duplicate candidate", zap.String("url", c.URL))
		}
	}
	return kept
}

// FilterLeads drops leads whose source URL collides with one already emitted.
// Two different connectors can return distinct URLs that normalize
// identically; this is the final pass that catches them after extraction.
func (d *Deduplicator) FilterLeads(leads []schemas.VerifiedLead) []schemas.VerifiedLead {
	byKey := make(map[string]struct{}, len(leads))
	kept := make([]schemas.VerifiedLead, 0, len(leads))
	for _, l := range leads {
		key := NormalizeURL(l.SourceURL)
		if _, dup := byKey[key]; dup {
			d.logger.Debug("Dropping duplicate lead", zap.String("url", l.SourceURL))
			continue
		}
		byKey[key] = struct{}{}
		kept = append(kept, l)
	}
	return kept
}
