package prompt

import "time"

// Category is the closed set of template purposes.
type Category string

const (
	CategoryAnalysis       Category = "analysis"
	CategoryEnhancement    Category = "enhancement"
	CategorySummarization  Category = "summarization"
	CategoryExtraction     Category = "extraction"
	CategoryClassification Category = "classification"
	CategoryGeneration     Category = "generation"
	CategoryCustom         Category = "custom"
)

// ValidCategories is the membership set for Category.
var ValidCategories = map[Category]bool{
	CategoryAnalysis: true, CategoryEnhancement: true, CategorySummarization: true,
	CategoryExtraction: true, CategoryClassification: true, CategoryGeneration: true,
	CategoryCustom: true,
}

// Variable declares one named, typed, optionally-validated template parameter.
type Variable struct {
	Name              string `json:"name"`
	Description       string `json:"description,omitempty"`
	Required          bool   `json:"required"`
	Default           string `json:"default,omitempty"`
	ValidationPattern string `json:"validation_pattern,omitempty"`
}

// ModelOverride carries per-model call options.
type ModelOverride struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// Template is a named, validated, variable-parameterised prompt string.
type Template struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Category    Category `json:"category"`
	Text        string   `json:"template"`
	Variables   []Variable `json:"variables"`
	Tags        []string   `json:"tags,omitempty"`
	Author      string     `json:"author,omitempty"`
	Version     string     `json:"version,omitempty"`

	ModelOverrides map[string]ModelOverride `json:"model_overrides,omitempty"`

	UsageCount     int        `json:"usage_count"`
	LastUsed       *time.Time `json:"last_used,omitempty"`
	AvgQualityScore float64   `json:"avg_quality_score,omitempty"`
	SuccessRate     float64   `json:"success_rate,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListFilter narrows List results.
type ListFilter struct {
	Category Category
	Tags     []string
	SortKey  string // "name", "usage_count", "created_at"
}

// ExecutionLog is what log_execution(ctx) records against a template's
// running usage stats.
type ExecutionLog struct {
	Success      bool
	QualityScore float64
}

// ExportPayload is the on-disk shape of export()/import().
type ExportPayload struct {
	ExportVersion   string     `json:"export_version"`
	ExportTimestamp time.Time  `json:"export_timestamp"`
	Templates       []Template `json:"templates"`
}
