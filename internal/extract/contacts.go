package extract

import (
	"regexp"
	"sort"
	"strings"

	"github.com/nyaruka/phonenumbers"

	"github.com/karstyne/leadscout/api/schemas"
)

// Contact confidence weights. A candidate with at least two of name, email
// and phone earns the pairing bonus; the total is capped at 100. Orphan
// candidates (a bare email or phone with no associated name) are floored to
// a fixed low confidence instead.
const (
	weightName       = 40
	weightEmail      = 35
	weightPhone      = 25
	weightTitle      = 15
	weightPairBonus  = 20
	orphanConfidence = 20
	maxConfidence    = 100

	// nameWindow bounds how far back from an email/phone we look for the
	// owning name.
	nameWindow = 120
)

var (
	emailRe = regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`)
	// phoneRe over-matches on purpose; candidates are validated with the
	// phone number library before they are kept.
	phoneRe = regexp.MustCompile(`\+?\(?\d{1,4}\)?[\s.-]?\(?\d{2,4}\)?[\s.-]?\d{3,4}[\s.-]?\d{0,4}`)
	// personNameRe matches 2-4 capitalized-initial words.
	personNameRe = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,3})\b`)
	titleRe      = regexp.MustCompile(`,\s*((?:[A-Z][a-zA-Z]*\s*){0,3}(?:Director|Manager|President|Officer|Engineer|Principal|Partner|Supervisor|Coordinator|VP|CEO|CFO|COO))\b`)
)

// nameStopTokens reject capitalized sequences that are not personal names.
var nameStopTokens = map[string]struct{}{
	"contact": {}, "email": {}, "phone": {}, "call": {}, "visit": {},
	"inc": {}, "llc": {}, "corp": {}, "corporation": {}, "company": {},
	"group": {}, "towers": {}, "center": {}, "tower": {}, "plaza": {},
	"street": {}, "avenue": {}, "park": {},
	// job-title words so "Project Director" is never mistaken for a name
	"director": {}, "manager": {}, "president": {}, "officer": {},
	"engineer": {}, "principal": {}, "partner": {}, "project": {},
	"senior": {}, "chief": {}, "vice": {}, "executive": {},
	"sales": {}, "marketing": {}, "operations": {},
}

type namedMatch struct {
	value string
	start int
	end   int
}

// extractContacts harvests every email and phone number in the text, then
// associates each with the nearest preceding personal-name match. Emails and
// phones within the name window of the same name merge into one candidate.
func extractContacts(text, company, defaultRegion string) []schemas.ContactCandidate {
	emails := findMatches(text, emailRe)
	phones := findPhones(text, regionOrDefault(defaultRegion))
	if len(emails) == 0 && len(phones) == 0 {
		return nil
	}
	names := findNames(text)

	byName := make(map[string]*schemas.ContactCandidate)
	var ordered []*schemas.ContactCandidate

	attach := func(m namedMatch, setField func(c *schemas.ContactCandidate)) {
		name := nearestPrecedingName(names, m.start)
		if name == "" {
			c := &schemas.ContactCandidate{}
			setField(c)
			ordered = append(ordered, c)
			return
		}
		c, ok := byName[name]
		if !ok {
			c = &schemas.ContactCandidate{Name: name, Title: titleAfterName(text, names, name)}
			byName[name] = c
			ordered = append(ordered, c)
		}
		setField(c)
	}

	for _, e := range emails {
		e := e
		attach(e, func(c *schemas.ContactCandidate) {
			if c.Email == "" {
				c.Email = e.value
			}
		})
	}
	for _, p := range phones {
		p := p
		attach(p, func(c *schemas.ContactCandidate) {
			if c.Phone == "" {
				c.Phone = p.value
			}
		})
	}

	out := make([]schemas.ContactCandidate, 0, len(ordered))
	for _, c := range ordered {
		if !c.HasIdentity() {
			continue
		}
		c.Company = matchContactCompany(c.Email, company)
		c.Confidence = scoreContact(*c)
		out = append(out, *c)
	}
	return out
}

// scoreContact computes the weighted confidence sum.
func scoreContact(c schemas.ContactCandidate) int {
	identities := 0
	score := 0
	if c.Name != "" {
		score += weightName
		identities++
	}
	if c.Email != "" {
		score += weightEmail
		identities++
	}
	if c.Phone != "" {
		score += weightPhone
		identities++
	}
	if c.Title != "" {
		score += weightTitle
	}
	if identities >= 2 {
		score += weightPairBonus
	}
	if score > maxConfidence {
		score = maxConfidence
	}
	// A bare email or phone with no name is kept, but at low confidence.
	if c.Name == "" && identities == 1 {
		return orphanConfidence
	}
	return score
}

func findMatches(text string, re *regexp.Regexp) []namedMatch {
	var out []namedMatch
	for _, loc := range re.FindAllStringIndex(text, 20) {
		out = append(out, namedMatch{value: text[loc[0]:loc[1]], start: loc[0], end: loc[1]})
	}
	return out
}

// findPhones keeps only candidates the phone number library considers
// possible for the configured region, formatted E.164.
func findPhones(text, region string) []namedMatch {
	var out []namedMatch
	seen := make(map[string]struct{})
	for _, loc := range phoneRe.FindAllStringIndex(text, 20) {
		raw := strings.TrimSpace(text[loc[0]:loc[1]])
		num, err := phonenumbers.Parse(raw, region)
		if err != nil || !phonenumbers.IsPossibleNumber(num) {
			continue
		}
		formatted := phonenumbers.Format(num, phonenumbers.E164)
		if _, dup := seen[formatted]; dup {
			continue
		}
		seen[formatted] = struct{}{}
		out = append(out, namedMatch{value: formatted, start: loc[0], end: loc[1]})
	}
	return out
}

func findNames(text string) []namedMatch {
	var out []namedMatch
	for _, loc := range personNameRe.FindAllStringIndex(text, 30) {
		candidate := text[loc[0]:loc[1]]
		if !plausiblePersonName(candidate) {
			continue
		}
		out = append(out, namedMatch{value: candidate, start: loc[0], end: loc[1]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

func plausiblePersonName(candidate string) bool {
	for _, tok := range strings.Fields(candidate) {
		if _, stop := nameStopTokens[strings.ToLower(tok)]; stop {
			return false
		}
	}
	return true
}

// nearestPrecedingName returns the closest name ending before pos, within the
// association window.
func nearestPrecedingName(names []namedMatch, pos int) string {
	best := ""
	for _, n := range names {
		if n.end > pos {
			break
		}
		if pos-n.end <= nameWindow {
			best = n.value
		}
	}
	return best
}

func titleAfterName(text string, names []namedMatch, name string) string {
	for _, n := range names {
		if n.value != name {
			continue
		}
		tail := text[n.end:]
		if len(tail) > 80 {
			tail = tail[:80]
		}
		if m := titleRe.FindStringSubmatch(tail); m != nil {
			return strings.TrimSpace(m[1])
		}
		return ""
	}
	return ""
}

// matchContactCompany sets the contact's company when the email domain
// plainly belongs to the extracted company.
func matchContactCompany(email, company string) string {
	if email == "" || company == "" {
		return ""
	}
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return ""
	}
	domain := strings.ToLower(email[at+1:])
	first := strings.ToLower(strings.Fields(company)[0])
	if len(first) >= 3 && strings.Contains(domain, first) {
		return company
	}
	return ""
}

func regionOrDefault(region string) string {
	if region == "" {
		return "US"
	}
	return region
}
