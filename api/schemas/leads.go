package schemas

import (
	"time"

	"github.com/google/uuid"
)

// OptString is an optional string field. Known=false means "unknown": the
// field contributes zero to confidence arithmetic and is omitted from output.
// Using an explicit option type instead of a sentinel string keeps downstream
// code from ever branching on a magic value.
type OptString struct {
	Value string `json:"value,omitempty"`
	Known bool   `json:"known"`
}

// SomeString builds a known OptString.
func SomeString(v string) OptString { return OptString{Value: v, Known: true} }

// OptFloat is an optional numeric field.
type OptFloat struct {
	Value float64 `json:"value,omitempty"`
	Known bool    `json:"known"`
}

// SomeFloat builds a known OptFloat.
func SomeFloat(v float64) OptFloat { return OptFloat{Value: v, Known: true} }

// OptInt is an optional integer field.
type OptInt struct {
	Value int  `json:"value,omitempty"`
	Known bool `json:"known"`
}

// SomeInt builds a known OptInt.
func SomeInt(v int) OptInt { return OptInt{Value: v, Known: true} }

// BudgetRange buckets a budget amount into a fixed band.
type BudgetRange string

const (
	BudgetUnknown   BudgetRange = "unknown"
	BudgetUnder10K  BudgetRange = "under_10k"
	Budget10K50K    BudgetRange = "10k_50k"
	Budget50K100K   BudgetRange = "50k_100k"
	Budget100K500K  BudgetRange = "100k_500k"
	Budget500K1M    BudgetRange = "500k_1m"
	Budget1M5M      BudgetRange = "1m_5m"
	Budget5M10M     BudgetRange = "5m_10m"
	BudgetOver10M   BudgetRange = "over_10m"
)

// budgetThresholds is the single, monotonic bucket table. A bucket covers
// [lower, next lower); amounts at or above the last threshold fall into
// BudgetOver10M.
var budgetThresholds = []struct {
	lower float64
	rng   BudgetRange
}{
	{0, BudgetUnder10K},
	{10_000, Budget10K50K},
	{50_000, Budget50K100K},
	{100_000, Budget100K500K},
	{500_000, Budget500K1M},
	{1_000_000, Budget1M5M},
	{5_000_000, Budget5M10M},
	{10_000_000, BudgetOver10M},
}

// BucketForAmount maps a budget amount to its range. Exact boundary values
// belong to the higher bucket: 10,000 is "10k_50k", 9,999 is "under_10k".
func BucketForAmount(amount float64) BudgetRange {
	if amount < 0 {
		return BudgetUnknown
	}
	rng := BudgetUnder10K
	for _, t := range budgetThresholds {
		if amount >= t.lower {
			rng = t.rng
		}
	}
	return rng
}

// ContactCandidate is a person harvested from page text. Name, email and phone
// are independently optional, but a candidate carrying none of the three is
// invalid and is discarded before it reaches a lead.
type ContactCandidate struct {
	Name       string `json:"name,omitempty"`
	Title      string `json:"title,omitempty"`
	Company    string `json:"company,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Confidence int    `json:"confidence"`
}

// HasIdentity reports whether the candidate carries at least one of name,
// email or phone.
func (c ContactCandidate) HasIdentity() bool {
	return c.Name != "" || c.Email != "" || c.Phone != ""
}

// CustomValue is the typed result of a user-defined extraction field.
// Known=false means the provider returned nothing usable.
type CustomValue struct {
	Raw   string          `json:"raw,omitempty"`
	Kind  CustomFieldType `json:"kind"`
	Known bool            `json:"known"`
}

// ExtractedFields is the structured record derived from one page of text.
type ExtractedFields struct {
	Company       OptString          `json:"company"`
	Location      OptString          `json:"location"`
	ProjectType   OptString          `json:"project_type"`
	IndustryType  OptString          `json:"industry_type"`
	BudgetAmount  OptFloat           `json:"budget_amount"`
	BudgetRange   BudgetRange        `json:"budget_range"`
	TimelineYear  OptInt             `json:"timeline_year"`
	RoomCount     OptInt             `json:"room_count"`
	SquareFootage OptInt             `json:"square_footage"`
	EmployeeCount OptInt             `json:"employee_count"`
	Contacts      []ContactCandidate `json:"contacts"`
	Description   string             `json:"description"`
	Keywords      []string           `json:"keywords"`
	CustomValues  map[string]CustomValue `json:"custom_values,omitempty"`

	// PatternConfidence is the completeness score (0-100) produced by the
	// deterministic extraction path, before verification adjustments.
	PatternConfidence int `json:"pattern_confidence"`
}

// VerifiedLead is the unit handed across the persistence boundary.
type VerifiedLead struct {
	ID              uuid.UUID       `json:"id"`
	Extracted       ExtractedFields `json:"extracted"`
	SourceURL       string          `json:"source_url"`
	FinalConfidence int             `json:"final_confidence"`
	Verified        bool            `json:"verified"`
	Issues          []string        `json:"issues"`
	Recommendations []string        `json:"recommendations"`
}

// RunState tracks the orchestrator's progress through one scraping run.
type RunState string

const (
	RunIdle          RunState = "idle"
	RunSearching     RunState = "searching"
	RunEnriching     RunState = "enriching"
	RunExtracting    RunState = "extracting"
	RunVerifying     RunState = "verifying"
	RunDeduplicating RunState = "deduplicating"
	RunCompleted     RunState = "completed"
	RunFailed        RunState = "failed"
)

// RunError records one recovered per-candidate or per-source problem. These
// never fail the run; they are reported in the summary.
type RunError struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// RunSummary reports what one run did. A run that found zero candidates is
// distinguishable from one that found candidates but extracted nothing via
// the counts.
type RunSummary struct {
	RunID           uuid.UUID  `json:"run_id"`
	TotalCandidates int        `json:"total_candidates"`
	Fetched         int        `json:"fetched"`
	Extracted       int        `json:"extracted"`
	Verified        int        `json:"verified"`
	Errors          []RunError `json:"errors"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     time.Time  `json:"completed_at"`
}
