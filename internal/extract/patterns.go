package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/karstyne/leadscout/api/schemas"
)

// Pattern rules per field, tried in order; the first structurally valid match
// wins. Validity filters are the union of every variant's checks: matches
// that are pure numbers, stop-words, or outside plausible length bounds are
// rejected and the next rule is tried.

const (
	companyMinLen = 2
	companyMaxLen = 60
)

// entitySuffixes are the business-entity cues used both for company matching
// and for the plausibility check in verification.
var entitySuffixes = []string{
	"Inc", "LLC", "Corp", "Corporation", "Company", "Co", "Ltd", "Group",
	"Holdings", "Partners", "Enterprises", "Associates", "Builders",
	"Construction", "Development", "Developers", "Properties", "Realty",
}

var companyRules = []*regexp.Regexp{
	// "Acme Construction Corp announced ..." - capitalized run ending in an
	// entity suffix.
	regexp.MustCompile(`\b([A-Z][\w&'.-]*(?:\s+[A-Z][\w&'.-]*){0,5}\s+(?:Inc|LLC|Corp|Corporation|Company|Co|Ltd|Group|Holdings|Partners|Enterprises|Associates|Builders)\.?)(?:\s|,|$)`),
	// "developed by Skyline Partners", "a project of Meridian Group"
	regexp.MustCompile(`(?:developed by|built by|a project of|owned by|announced by)\s+([A-Z][\w&'.-]*(?:\s+[A-Z][\w&'.-]*){0,5})`),
}

var companyStopWords = map[string]struct{}{
	"the": {}, "this": {}, "new": {}, "contact": {}, "click": {},
	"home": {}, "news": {}, "article": {}, "page": {}, "more": {},
}

var pureNumberRe = regexp.MustCompile(`^[\d\s,.$%-]+$`)

func validCompany(name string) bool {
	name = strings.TrimSpace(strings.TrimSuffix(name, "."))
	if len(name) < companyMinLen || len(name) > companyMaxLen {
		return false
	}
	if pureNumberRe.MatchString(name) {
		return false
	}
	if _, stop := companyStopWords[strings.ToLower(name)]; stop {
		return false
	}
	return true
}

func extractCompany(text string) schemas.OptString {
	for _, rule := range companyRules {
		for _, m := range rule.FindAllStringSubmatch(text, 5) {
			candidate := strings.TrimSpace(strings.TrimSuffix(m[1], "."))
			if validCompany(candidate) {
				return schemas.SomeString(candidate)
			}
		}
	}
	return schemas.OptString{}
}

var locationRules = []*regexp.Regexp{
	regexp.MustCompile(`\b(?:located in|headquartered in|based in)\s+((?:(?:downtown|uptown|midtown|greater|central)\s+)?[A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+){0,2}(?:,\s*[A-Z]{2})?)`),
	regexp.MustCompile(`\bin\s+((?:(?:downtown|uptown|midtown|greater|central)\s+)?[A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+){0,2}(?:,\s*[A-Z]{2})?)`),
}

// locationStopWords filter month names and sentence-position false positives
// from the bare "in <Capitalized>" rule.
var locationStopWords = map[string]struct{}{
	"january": {}, "february": {}, "march": {}, "april": {}, "may": {},
	"june": {}, "july": {}, "august": {}, "september": {}, "october": {},
	"november": {}, "december": {}, "addition": {}, "order": {}, "fact": {},
	"general": {}, "particular": {}, "total": {}, "response": {},
	"contact": {}, "the": {},
}

func extractLocation(text string) schemas.OptString {
	for _, rule := range locationRules {
		for _, m := range rule.FindAllStringSubmatch(text, 10) {
			loc := strings.TrimSpace(m[1])
			if len(loc) < 3 || len(loc) > 60 {
				continue
			}
			first := strings.ToLower(strings.Fields(loc)[0])
			if _, stop := locationStopWords[first]; stop {
				continue
			}
			last := strings.ToLower(loc[strings.LastIndexByte(loc, ' ')+1:])
			if _, stop := locationStopWords[last]; stop {
				continue
			}
			return schemas.SomeString(loc)
		}
	}
	return schemas.OptString{}
}

// projectTypePhrases is an ordered lexicon; longer, more specific phrases
// come before their generic substrings.
var projectTypePhrases = []string{
	"luxury apartment complex",
	"apartment complex",
	"mixed use development",
	"mixed-use development",
	"senior living facility",
	"assisted living facility",
	"student housing",
	"condominium tower",
	"office tower",
	"office building",
	"office park",
	"shopping center",
	"retail center",
	"distribution center",
	"data center",
	"medical center",
	"hotel and resort",
	"hotel",
	"resort",
	"warehouse",
	"hospital",
	"school",
	"university campus",
	"stadium",
	"factory",
	"manufacturing plant",
	"parking garage",
	"subdivision",
	"townhomes",
}

func extractProjectType(text string) schemas.OptString {
	lower := strings.ToLower(text)
	for _, phrase := range projectTypePhrases {
		if strings.Contains(lower, phrase) {
			return schemas.SomeString(phrase)
		}
	}
	return schemas.OptString{}
}

var budgetRe = regexp.MustCompile(`\$\s*([\d][\d,]*(?:\.\d+)?)\s*(thousand|million|billion|[kmb]\b)?`)

// extractBudget matches the first dollar amount and applies the magnitude cue
// that follows it, if any.
func extractBudget(text string) (schemas.OptFloat, schemas.BudgetRange) {
	lower := strings.ToLower(text)
	m := budgetRe.FindStringSubmatch(lower)
	if m == nil {
		return schemas.OptFloat{}, schemas.BudgetUnknown
	}
	raw := strings.ReplaceAll(m[1], ",", "")
	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return schemas.OptFloat{}, schemas.BudgetUnknown
	}
	switch m[2] {
	case "thousand", "k":
		amount *= 1_000
	case "million", "m":
		amount *= 1_000_000
	case "billion", "b":
		amount *= 1_000_000_000
	}
	return schemas.SomeFloat(amount), schemas.BucketForAmount(amount)
}

var yearRe = regexp.MustCompile(`\b(20\d{2})\b`)

// extractTimeline accepts only a four-digit year inside
// [currentYear, currentYear+10]; anything else stays unknown.
func extractTimeline(text string, currentYear int) schemas.OptInt {
	for _, m := range yearRe.FindAllStringSubmatch(text, 10) {
		year, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if year >= currentYear && year <= currentYear+10 {
			return schemas.SomeInt(year)
		}
	}
	return schemas.OptInt{}
}

var (
	roomCountRe     = regexp.MustCompile(`(?i)\b([\d,]+)[\s-]*(?:guest rooms|rooms?|keys|units|beds)\b`)
	squareFootageRe = regexp.MustCompile(`(?i)\b([\d,]+)\s*(?:square[\s-]*(?:feet|foot)|sq\.?\s*ft\.?|sf)\b`)
	employeeCountRe = regexp.MustCompile(`(?i)\b([\d,]+)\s*(?:employees|staff|workers|(?:new\s+)?jobs)\b`)
)

func extractCount(text string, re *regexp.Regexp, max int) schemas.OptInt {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return schemas.OptInt{}
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil || n <= 0 || n > max {
		return schemas.OptInt{}
	}
	return schemas.SomeInt(n)
}

// industryTable maps categories to keyword sets, scanned in fixed priority
// order; the first category with a hit wins. Anything unmatched is mixed_use.
var industryTable = []struct {
	category string
	keywords []string
}{
	{"healthcare", []string{"hospital", "medical", "clinic", "healthcare", "health system", "surgery center"}},
	{"education", []string{"school", "university", "college", "campus", "classroom", "dormitory"}},
	{"hospitality", []string{"hotel", "resort", "casino", "hospitality", "motel", "lodge"}},
	{"residential", []string{"apartment", "condominium", "condo", "housing", "residential", "multifamily", "townhome", "single-family"}},
	{"commercial", []string{"office", "corporate", "commercial", "business park", "headquarters"}},
	{"retail", []string{"retail", "shopping", "mall", "store", "restaurant", "grocery"}},
	{"industrial", []string{"warehouse", "factory", "industrial", "manufacturing", "distribution", "logistics", "plant"}},
	{"infrastructure", []string{"bridge", "highway", "transit", "airport", "infrastructure", "rail", "utility", "water treatment"}},
}

const industryDefault = "mixed_use"

// classifyIndustry returns the category and the keywords that matched.
func classifyIndustry(text string) (string, []string) {
	lower := strings.ToLower(text)
	for _, row := range industryTable {
		var hits []string
		for _, kw := range row.keywords {
			if strings.Contains(lower, kw) {
				hits = append(hits, kw)
			}
		}
		if len(hits) > 0 {
			return row.category, hits
		}
	}
	return industryDefault, nil
}

// hasEntityCue reports whether the name carries a business-entity suffix.
func hasEntityCue(name string) bool {
	for _, suffix := range entitySuffixes {
		if strings.HasSuffix(name, " "+suffix) || strings.HasSuffix(name, " "+suffix+".") ||
			strings.Contains(name, " "+suffix+" ") {
			return true
		}
	}
	return false
}
