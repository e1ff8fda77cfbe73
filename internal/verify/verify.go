// Package verify cross-validates extracted fields and produces the final
// confidence score. Checks are independent and additive; they record issues
// and recommendations but never delete or correct a field.
package verify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"go.uber.org/zap"

	"github.com/karstyne/leadscout/api/schemas"
)

// Check weights. The ordering of checks is fixed so runs are bit-comparable.
const (
	weightCompany   = 15
	weightContacts  = 20
	weightLocation  = 10
	weightProject   = 15
	weightCrossRef  = 10
	issuePenalty    = 5
	recommendBonus  = 2
	verifyThreshold = 70
)

// budgetBand is the plausible budget range for a project-type keyword.
type budgetBand struct {
	keyword  string
	min, max float64
}

// budgetBands are scanned in order; the first keyword contained in the
// project type wins. Anything unmatched falls back to the default band.
var budgetBands = []budgetBand{
	{"hotel", 1_000_000, 500_000_000},
	{"resort", 5_000_000, 2_000_000_000},
	{"hospital", 10_000_000, 2_000_000_000},
	{"apartment", 1_000_000, 1_000_000_000},
	{"condominium", 1_000_000, 1_000_000_000},
	{"office", 500_000, 1_500_000_000},
	{"warehouse", 500_000, 500_000_000},
	{"school", 1_000_000, 500_000_000},
	{"stadium", 50_000_000, 5_000_000_000},
	{"retail", 100_000, 500_000_000},
}

var defaultBand = budgetBand{min: 10_000, max: 5_000_000_000}

var placeholderTokens = []string{"test", "example", "sample", "lorem", "placeholder", "acme inc"}

var (
	pureNumberRe   = regexp.MustCompile(`^[\d\s,.$%-]+$`)
	nameShapeRe    = regexp.MustCompile(`^[A-Z][a-zA-Z]+(?: [A-Z][a-zA-Z]+)+$`)
	emailShapeRe   = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	addressLikeRe  = regexp.MustCompile(`\d+\s+\w+|,\s*[A-Z]{2}\b`)
	companyShapeRe = regexp.MustCompile(`^[\w&'.,-]+(?:\s+[\w&'.,-]+)*$`)
)

// geoCues mark a location string as plausibly geographic.
var geoCues = []string{
	"downtown", "uptown", "midtown", "north", "south", "east", "west",
	"city", "county", "valley", "beach", "heights", "park", "district",
	"street", "avenue", "boulevard", "road",
}

// knownCities is a small lexicon backing the geographic-cue check for bare
// city names.
var knownCities = []string{
	"manhattan", "brooklyn", "chicago", "houston", "phoenix", "dallas",
	"austin", "denver", "seattle", "boston", "atlanta", "miami",
	"angeles", "francisco", "diego", "vegas", "york", "orleans", "portland",
	"nashville", "charlotte", "columbus", "detroit", "toronto", "london",
}

// Verifier scores extracted leads. It is stateless and safe for concurrent
// use.
type Verifier struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Verifier {
	return &Verifier{logger: logger.Named("verify")}
}

// Verify runs the check sequence over one extracted record and returns the
// lead with its final confidence. It never rejects a lead outright; a low
// score only flips Verified to false.
func (v *Verifier) Verify(extracted schemas.ExtractedFields, candidate schemas.SearchCandidate) schemas.VerifiedLead {
	lead := schemas.VerifiedLead{
		ID:        uuid.New(),
		Extracted: extracted,
		SourceURL: candidate.URL,
	}
	running := extracted.PatternConfidence

	running += v.checkCompany(extracted, &lead)
	running += v.checkContacts(extracted, &lead)
	running += v.checkLocation(extracted, &lead)
	running += v.checkProject(extracted, &lead)
	running += v.checkCrossReference(extracted, candidate, &lead)

	final := running - issuePenalty*len(lead.Issues) + recommendBonus*len(lead.Recommendations)
	if final < 0 {
		final = 0
	}
	if final > 100 {
		final = 100
	}
	lead.FinalConfidence = final
	lead.Verified = final >= verifyThreshold
	return lead
}

func (v *Verifier) checkCompany(f schemas.ExtractedFields, lead *schemas.VerifiedLead) int {
	if !f.Company.Known {
		lead.Issues = append(lead.Issues, "company name could not be extracted")
		return 0
	}
	name := f.Company.Value
	lower := strings.ToLower(name)
	if len(name) < 2 || len(name) > 60 || !companyShapeRe.MatchString(name) || pureNumberRe.MatchString(name) {
		lead.Issues = append(lead.Issues, fmt.Sprintf("company name %q has implausible format", name))
		return 0
	}
	for _, tok := range placeholderTokens {
		if strings.Contains(lower, tok) {
			lead.Issues = append(lead.Issues, fmt.Sprintf("company name %q contains placeholder token %q", name, tok))
			return 0
		}
	}
	if !hasEntityCue(name) {
		lead.Issues = append(lead.Issues, fmt.Sprintf("company name %q has no Inc/LLC/Corp style entity suffix", name))
		return 0
	}
	return weightCompany
}

// checkContacts contributes proportionally to the fraction of contacts that
// pass syntactic validation.
func (v *Verifier) checkContacts(f schemas.ExtractedFields, lead *schemas.VerifiedLead) int {
	if len(f.Contacts) == 0 {
		lead.Recommendations = append(lead.Recommendations, "no contact information found; consider a deeper page crawl")
		return 0
	}
	valid := 0
	for _, c := range f.Contacts {
		if contactValid(c) {
			valid++
		} else {
			lead.Issues = append(lead.Issues, fmt.Sprintf("contact %q failed validation", contactLabel(c)))
		}
	}
	return weightContacts * valid / len(f.Contacts)
}

func contactValid(c schemas.ContactCandidate) bool {
	if c.Name != "" && !nameShapeRe.MatchString(c.Name) {
		return false
	}
	if c.Email != "" && !emailShapeRe.MatchString(c.Email) {
		return false
	}
	if c.Phone != "" {
		num, err := phonenumbers.Parse(c.Phone, "US")
		if err != nil || !phonenumbers.IsPossibleNumber(num) {
			return false
		}
	}
	return c.HasIdentity()
}

func contactLabel(c schemas.ContactCandidate) string {
	switch {
	case c.Name != "":
		return c.Name
	case c.Email != "":
		return c.Email
	default:
		return c.Phone
	}
}

func (v *Verifier) checkLocation(f schemas.ExtractedFields, lead *schemas.VerifiedLead) int {
	if !f.Location.Known {
		lead.Recommendations = append(lead.Recommendations, "no location found; lead cannot be routed regionally")
		return 0
	}
	loc := strings.ToLower(f.Location.Value)
	if addressLikeRe.MatchString(f.Location.Value) {
		return weightLocation
	}
	for _, cue := range geoCues {
		if strings.Contains(loc, cue) {
			return weightLocation
		}
	}
	for _, city := range knownCities {
		if strings.Contains(loc, city) {
			return weightLocation
		}
	}
	lead.Issues = append(lead.Issues, fmt.Sprintf("location %q lacks a geographic cue", f.Location.Value))
	return 0
}

// checkProject validates the budget against the project type's plausible
// band. Out-of-band budgets are flagged but retained as-is.
func (v *Verifier) checkProject(f schemas.ExtractedFields, lead *schemas.VerifiedLead) int {
	if !f.BudgetAmount.Known {
		if f.ProjectType.Known {
			lead.Recommendations = append(lead.Recommendations, "project type known but budget missing; consider financial sources")
		}
		return 0
	}
	band := defaultBand
	if f.ProjectType.Known {
		lower := strings.ToLower(f.ProjectType.Value)
		for _, b := range budgetBands {
			if strings.Contains(lower, b.keyword) {
				band = b
				break
			}
		}
	}
	if f.BudgetAmount.Value < band.min || f.BudgetAmount.Value > band.max {
		lead.Issues = append(lead.Issues, fmt.Sprintf(
			"budget %.0f outside plausible band [%.0f, %.0f] for project type", f.BudgetAmount.Value, band.min, band.max))
		return 0
	}
	return weightProject
}

// checkCrossReference counts three consistency signals; two of three passing
// earns the bonus.
func (v *Verifier) checkCrossReference(f schemas.ExtractedFields, candidate schemas.SearchCandidate, lead *schemas.VerifiedLead) int {
	passed := 0

	if f.Company.Known {
		sourceText := strings.ToLower(candidate.Title + " " + candidate.Snippet)
		if strings.Contains(sourceText, strings.ToLower(f.Company.Value)) {
			passed++
		}
	}
	if f.Company.Known && f.ProjectType.Known && projectCompatibleWithCompany(f.Company.Value, f.ProjectType.Value) {
		passed++
	}
	if f.Company.Known {
		for _, c := range f.Contacts {
			if c.Company != "" && strings.EqualFold(c.Company, f.Company.Value) {
				passed++
				break
			}
		}
	}

	if passed >= 2 {
		return weightCrossRef
	}
	if passed == 0 && f.Company.Known {
		lead.Recommendations = append(lead.Recommendations, "company not corroborated by source title, naming cues, or contacts")
	}
	return 0
}

// companyCueCompat maps company-name cue words to the project-type keywords
// they are compatible with; scanned in order, first cue found in the name
// decides. A nil type list means compatible with anything; a company with no
// recognized cue is also compatible with anything.
var companyCueCompat = []struct {
	cue   string
	types []string
}{
	{"construction", nil}, // general contractors build anything
	{"builders", nil},
	{"development", nil},
	{"hotels", []string{"hotel", "resort"}},
	{"hospitality", []string{"hotel", "resort"}},
	{"homes", []string{"apartment", "condominium", "townhome", "subdivision", "housing"}},
	{"realty", nil},
	{"properties", nil},
}

func projectCompatibleWithCompany(company, projectType string) bool {
	lowerCompany := strings.ToLower(company)
	lowerType := strings.ToLower(projectType)
	for _, row := range companyCueCompat {
		if !strings.Contains(lowerCompany, row.cue) {
			continue
		}
		if row.types == nil {
			return true
		}
		for _, t := range row.types {
			if strings.Contains(lowerType, t) {
				return true
			}
		}
		return false
	}
	return true
}

// hasEntityCue reports whether the company name carries a business-entity
// suffix such as Inc, LLC or Corp.
func hasEntityCue(name string) bool {
	suffixes := []string{
		"Inc", "LLC", "Corp", "Corporation", "Company", "Co", "Ltd", "Group",
		"Holdings", "Partners", "Enterprises", "Associates", "Builders",
		"Construction", "Development", "Developers", "Properties", "Realty",
	}
	trimmed := strings.TrimSuffix(name, ".")
	for _, s := range suffixes {
		if strings.HasSuffix(trimmed, " "+s) || strings.Contains(trimmed, " "+s+" ") {
			return true
		}
	}
	return false
}
