package schemas

import "fmt"

// CustomFieldType enumerates the value types a user-defined extraction field
// can declare. The extraction engine coerces raw provider output into one of
// these; a value that fails coercion is treated as absent.
type CustomFieldType string

const (
	FieldTypeText     CustomFieldType = "text"
	FieldTypeNumber   CustomFieldType = "number"
	FieldTypeCurrency CustomFieldType = "currency"
	FieldTypeDate     CustomFieldType = "date"
	FieldTypeBoolean  CustomFieldType = "boolean"
	FieldTypeEmail    CustomFieldType = "email"
	FieldTypePhone    CustomFieldType = "phone"
	FieldTypeURL      CustomFieldType = "url"
)

// ValidFieldType reports whether t is one of the supported custom field types.
func ValidFieldType(t CustomFieldType) bool {
	switch t {
	case FieldTypeText, FieldTypeNumber, FieldTypeCurrency, FieldTypeDate,
		FieldTypeBoolean, FieldTypeEmail, FieldTypePhone, FieldTypeURL:
		return true
	}
	return false
}

// CustomFieldSpec describes a user-defined extraction target. The Description
// is natural language; it becomes part of the prompt sent to the text
// completion provider.
type CustomFieldSpec struct {
	Key         string          `json:"key" mapstructure:"key"`
	DisplayName string          `json:"display_name" mapstructure:"display_name"`
	Description string          `json:"description" mapstructure:"description"`
	DataType    CustomFieldType `json:"data_type" mapstructure:"data_type"`
	Category    string          `json:"category" mapstructure:"category"`
	Visible     bool            `json:"visible" mapstructure:"visible"`
}

// ScrapingConfig describes a single scraping run: what to search for, where,
// and how much. It is immutable for the duration of the run.
type ScrapingConfig struct {
	Keywords         []string          `json:"keywords" mapstructure:"keywords"`
	EnabledSources   []string          `json:"enabled_sources" mapstructure:"enabled_sources"`
	MaxResultsPerRun int               `json:"max_results_per_run" mapstructure:"max_results_per_run"`
	UseAIExtraction  bool              `json:"use_ai_extraction" mapstructure:"use_ai_extraction"`
	CustomFields     []CustomFieldSpec `json:"custom_fields" mapstructure:"custom_fields"`
}

// Validate checks the run configuration before any source is queried.
func (c *ScrapingConfig) Validate() error {
	if len(c.Keywords) == 0 {
		return fmt.Errorf("scraping config: at least one keyword is required")
	}
	for _, k := range c.Keywords {
		if k == "" {
			return fmt.Errorf("scraping config: empty keyword")
		}
	}
	if len(c.EnabledSources) == 0 {
		return fmt.Errorf("scraping config: at least one source must be enabled")
	}
	if c.MaxResultsPerRun <= 0 {
		return fmt.Errorf("scraping config: max_results_per_run must be a positive integer, got %d", c.MaxResultsPerRun)
	}
	seen := make(map[string]struct{}, len(c.CustomFields))
	for _, f := range c.CustomFields {
		if f.Key == "" {
			return fmt.Errorf("scraping config: custom field with empty key")
		}
		if _, dup := seen[f.Key]; dup {
			return fmt.Errorf("scraping config: duplicate custom field key %q", f.Key)
		}
		seen[f.Key] = struct{}{}
		if !ValidFieldType(f.DataType) {
			return fmt.Errorf("scraping config: custom field %q has unknown data type %q", f.Key, f.DataType)
		}
	}
	return nil
}
