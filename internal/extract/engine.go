// Package extract derives structured lead fields from fetched page text. The
// pattern path is deterministic and always runs; the AI path only fills
// user-defined custom fields and degrades silently when the provider fails.
package extract

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/karstyne/leadscout/api/schemas"
	"github.com/karstyne/leadscout/internal/config"
)

// Pattern confidence weights. The proportional block spreads its weight over
// projectType, timeline, roomCount and squareFootage.
const (
	confCompany      = 20
	confLocation     = 15
	confBudget       = 20
	confContact      = 15
	confProportional = 20

	longTextBonusAt   = 500
	longerTextBonusAt = 2000

	descriptionMaxLen = 300
)

// Engine is the extraction engine. It is safe for concurrent use; the only
// shared mutable state is the AI response cache.
type Engine struct {
	cfg      config.ExtractionConfig
	provider schemas.TextCompletionProvider
	cache    *promptCache
	logger   *zap.Logger
	now      func() time.Time
}

// Option adjusts an Engine, mainly for tests.
type Option func(*Engine)

// WithClock overrides the time source used for timeline-year validation.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an Engine. provider may be nil when AI extraction is disabled;
// the pattern path never consults it.
func New(cfg config.ExtractionConfig, provider schemas.TextCompletionProvider, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		provider: provider,
		cache:    newPromptCache(),
		logger:   logger.Named("extract"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract derives structured fields from one candidate's content. It never
// returns an error: empty or missing content yields the full unknown sentinel
// set, and an AI path failure leaves the pattern fields untouched.
func (e *Engine) Extract(ctx context.Context, content schemas.FetchedContent, scrape schemas.ScrapingConfig) schemas.ExtractedFields {
	text := content.RawText
	searchable := strings.TrimSpace(content.Title + " " + content.MetaDescription + " " + content.Candidate.Snippet + " " + text)

	fields := schemas.ExtractedFields{BudgetRange: schemas.BudgetUnknown}
	if searchable != "" {
		fields.Company = extractCompany(searchable)
		fields.Location = extractLocation(searchable)
		fields.ProjectType = extractProjectType(searchable)
		fields.BudgetAmount, fields.BudgetRange = extractBudget(searchable)
		fields.TimelineYear = extractTimeline(searchable, e.now().Year())
		fields.RoomCount = extractCount(searchable, roomCountRe, 10_000)
		fields.SquareFootage = extractCount(searchable, squareFootageRe, 100_000_000)
		fields.EmployeeCount = extractCount(searchable, employeeCountRe, 1_000_000)
		fields.Contacts = extractContacts(searchable, fields.Company.Value, e.cfg.DefaultRegion)

		industry, hits := classifyIndustry(searchable)
		fields.IndustryType = schemas.SomeString(industry)
		fields.Keywords = keywordSet(hits, fields.ProjectType)
		fields.Description = buildDescription(content)
	}
	fields.PatternConfidence = patternConfidence(fields, len(text))

	if scrape.UseAIExtraction && len(scrape.CustomFields) > 0 && e.provider != nil {
		fields.CustomValues = e.extractCustomFields(ctx, text, scrape.CustomFields)
	}
	return fields
}

// patternConfidence is the weighted completeness score, capped at 100.
func patternConfidence(f schemas.ExtractedFields, textLen int) int {
	score := 0
	if f.Company.Known {
		score += confCompany
	}
	if f.Location.Known {
		score += confLocation
	}
	if f.BudgetAmount.Known {
		score += confBudget
	}
	if len(f.Contacts) > 0 {
		score += confContact
	}
	detail := 0
	if f.ProjectType.Known {
		detail++
	}
	if f.TimelineYear.Known {
		detail++
	}
	if f.RoomCount.Known {
		detail++
	}
	if f.SquareFootage.Known {
		detail++
	}
	score += confProportional * detail / 4

	switch {
	case textLen >= longerTextBonusAt:
		score += 10
	case textLen >= longTextBonusAt:
		score += 5
	}
	if score > 100 {
		score = 100
	}
	return score
}

func keywordSet(industryHits []string, projectType schemas.OptString) []string {
	seen := make(map[string]struct{}, len(industryHits)+1)
	var out []string
	add := func(kw string) {
		if kw == "" {
			return
		}
		if _, dup := seen[kw]; dup {
			return
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	for _, kw := range industryHits {
		add(kw)
	}
	if projectType.Known {
		add(projectType.Value)
	}
	return out
}

func buildDescription(content schemas.FetchedContent) string {
	desc := content.MetaDescription
	if desc == "" {
		desc = content.Candidate.Snippet
	}
	if desc == "" {
		desc = content.RawText
	}
	if len(desc) > descriptionMaxLen {
		cut := strings.LastIndexByte(desc[:descriptionMaxLen], ' ')
		if cut < descriptionMaxLen/2 {
			cut = descriptionMaxLen
		}
		desc = desc[:cut]
	}
	return strings.TrimSpace(desc)
}
