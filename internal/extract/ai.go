package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/nyaruka/phonenumbers"
	"go.uber.org/zap"

	"github.com/karstyne/leadscout/api/schemas"
)

// promptCache memoizes provider responses keyed by a hash of the prompt, so
// repeat calls for similar content are free. Safe for concurrent use.
type promptCache struct {
	mu      sync.RWMutex
	entries map[string]string
}

func newPromptCache() *promptCache {
	return &promptCache{entries: make(map[string]string)}
}

func (c *promptCache) get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *promptCache) put(key, value string) {
	c.mu.Lock()
	c.entries[key] = value
	c.mu.Unlock()
}

// extractCustomFields resolves each visible custom field through the text
// completion provider. Every failure path yields "field absent"; the pattern
// fields are never touched from here.
func (e *Engine) extractCustomFields(ctx context.Context, text string, specs []schemas.CustomFieldSpec) map[string]schemas.CustomValue {
	truncated := text
	if max := e.cfg.AI.MaxChars; max > 0 && len(truncated) > max {
		truncated = truncated[:max]
	}

	out := make(map[string]schemas.CustomValue, len(specs))
	for _, spec := range specs {
		if !spec.Visible {
			continue
		}
		value := e.resolveField(ctx, truncated, spec)
		out[spec.Key] = value
	}
	return out
}

func (e *Engine) resolveField(ctx context.Context, text string, spec schemas.CustomFieldSpec) schemas.CustomValue {
	absent := schemas.CustomValue{Kind: spec.DataType}

	prompt := buildPrompt(text, spec)
	key := promptKey(prompt)

	raw, cached := e.cache.get(key)
	if !cached {
		callCtx, cancel := context.WithTimeout(ctx, e.aiTimeout())
		defer cancel()

		var err error
		raw, err = e.provider.Complete(callCtx, prompt)
		if err != nil {
			e.logger.Debug("Custom field extraction degraded.",
				zap.String("field", spec.Key), zap.Error(err))
			return absent
		}
		e.cache.put(key, raw)
	}

	coerced, ok := coerceValue(raw, spec.DataType)
	if !ok {
		return absent
	}
	return schemas.CustomValue{Raw: coerced, Kind: spec.DataType, Known: true}
}

func (e *Engine) aiTimeout() time.Duration {
	if e.cfg.AI.APITimeout > 0 {
		return e.cfg.AI.APITimeout
	}
	return 8 * time.Second
}

func buildPrompt(text string, spec schemas.CustomFieldSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extract a single value from the text below.\n")
	if spec.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", spec.Category)
	}
	fmt.Fprintf(&b, "Field: %s\n", spec.DisplayName)
	fmt.Fprintf(&b, "Description: %s\n", spec.Description)
	fmt.Fprintf(&b, "Expected type: %s\n", spec.DataType)
	b.WriteString("Answer with only the value, no explanation. If the text does not contain it, answer NONE.\n\nText:\n")
	b.WriteString(text)
	return b.String()
}

func promptKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

var (
	numericTokenRe = regexp.MustCompile(`-?[\d][\d,]*(?:\.\d+)?`)
	dateTokenRe    = regexp.MustCompile(`\b(?:\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4}|(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4})\b`)
)

var booleanVocabulary = map[string]string{
	"yes": "true", "y": "true", "true": "true",
	"no": "false", "n": "false", "false": "false",
}

// coerceValue maps a raw provider answer onto the declared field type. A
// value that fails coercion is absent, never an error.
func coerceValue(raw string, kind schemas.CustomFieldType) (string, bool) {
	raw = strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `"'`))
	if raw == "" || strings.EqualFold(raw, "none") || strings.EqualFold(raw, "unknown") {
		return "", false
	}

	switch kind {
	case schemas.FieldTypeText:
		return raw, true

	case schemas.FieldTypeNumber, schemas.FieldTypeCurrency:
		m := numericTokenRe.FindString(raw)
		if m == "" {
			return "", false
		}
		return strings.ReplaceAll(m, ",", ""), true

	case schemas.FieldTypeDate:
		m := dateTokenRe.FindString(raw)
		if m == "" {
			return "", false
		}
		return m, true

	case schemas.FieldTypeBoolean:
		v, ok := booleanVocabulary[strings.ToLower(strings.TrimRight(raw, "."))]
		return v, ok

	case schemas.FieldTypeEmail:
		m := emailRe.FindString(raw)
		if m == "" {
			return "", false
		}
		return m, true

	case schemas.FieldTypePhone:
		num, err := phonenumbers.Parse(raw, "US")
		if err != nil || !phonenumbers.IsPossibleNumber(num) {
			return "", false
		}
		return phonenumbers.Format(num, phonenumbers.E164), true

	case schemas.FieldTypeURL:
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "", false
		}
		return u.String(), true
	}
	return "", false
}
