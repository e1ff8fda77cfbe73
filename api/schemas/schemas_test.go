package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketForAmount(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		amount float64
		want   BudgetRange
	}{
		{"zero", 0, BudgetUnder10K},
		{"just under first boundary", 9_999, BudgetUnder10K},
		{"exactly 10k", 10_000, Budget10K50K},
		{"exactly 50k", 50_000, Budget50K100K},
		{"just under 100k", 99_999.99, Budget50K100K},
		{"exactly 100k", 100_000, Budget100K500K},
		{"exactly 500k", 500_000, Budget500K1M},
		{"exactly 1m", 1_000_000, Budget1M5M},
		{"exactly 5m", 5_000_000, Budget5M10M},
		{"exactly 10m", 10_000_000, BudgetOver10M},
		{"45 million", 45_000_000, BudgetOver10M},
		{"negative is unknown", -1, BudgetUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, BucketForAmount(tc.amount))
		})
	}
}

func TestScrapingConfigValidate(t *testing.T) {
	t.Parallel()

	valid := ScrapingConfig{
		Keywords:         []string{"hotel construction"},
		EnabledSources:   []string{"newsapi"},
		MaxResultsPerRun: 25,
	}
	require.NoError(t, valid.Validate())

	testCases := []struct {
		name    string
		mutate  func(c *ScrapingConfig)
		wantErr string
	}{
		{
			name:    "empty keywords",
			mutate:  func(c *ScrapingConfig) { c.Keywords = nil },
			wantErr: "at least one keyword",
		},
		{
			name:    "blank keyword",
			mutate:  func(c *ScrapingConfig) { c.Keywords = []string{""} },
			wantErr: "empty keyword",
		},
		{
			name:    "no sources",
			mutate:  func(c *ScrapingConfig) { c.EnabledSources = nil },
			wantErr: "source must be enabled",
		},
		{
			name:    "zero max results",
			mutate:  func(c *ScrapingConfig) { c.MaxResultsPerRun = 0 },
			wantErr: "max_results_per_run",
		},
		{
			name: "duplicate custom field key",
			mutate: func(c *ScrapingConfig) {
				c.CustomFields = []CustomFieldSpec{
					{Key: "permit", DataType: FieldTypeText},
					{Key: "permit", DataType: FieldTypeNumber},
				}
			},
			wantErr: "duplicate custom field key",
		},
		{
			name: "unknown data type",
			mutate: func(c *ScrapingConfig) {
				c.CustomFields = []CustomFieldSpec{{Key: "x", DataType: "geo"}}
			},
			wantErr: "unknown data type",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid
			cfg.CustomFields = nil
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestContactCandidateHasIdentity(t *testing.T) {
	t.Parallel()

	assert.False(t, ContactCandidate{Title: "CEO", Company: "Acme"}.HasIdentity())
	assert.True(t, ContactCandidate{Email: "a@b.com"}.HasIdentity())
	assert.True(t, ContactCandidate{Phone: "+15551234567"}.HasIdentity())
	assert.True(t, ContactCandidate{Name: "Sarah Johnson"}.HasIdentity())
}
