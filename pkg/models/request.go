package models

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// ── Enumerations ─────────────────────────────────────────────

// DatasetType discriminates the two request variants.
type DatasetType string

const (
	DatasetTabular DatasetType = "tabular"
	DatasetQA      DatasetType = "qa"
)

// OutputFormat selects the persisted file layout.
type OutputFormat string

const (
	FormatCSV  OutputFormat = "csv"
	FormatJSON OutputFormat = "json"
)

// DType is the declared type of a tabular column.
type DType string

const (
	DTypeInt      DType = "int"
	DTypeFloat    DType = "float"
	DTypeStr      DType = "str"
	DTypeBool     DType = "bool"
	DTypeDatetime DType = "datetime"
)

// IsNumeric reports whether the column carries int or float values.
func (d DType) IsNumeric() bool {
	return d == DTypeInt || d == DTypeFloat
}

// Complexity levels accepted by QA requests.
const (
	ComplexityBeginner     = "beginner"
	ComplexityIntermediate = "intermediate"
	ComplexityAdvanced     = "advanced"
)

// Domain names with dedicated guardrail and coverage tables.
const (
	DomainGeneral    = "general"
	DomainHealthcare = "healthcare"
	DomainFinance    = "finance"
	DomainTechnology = "technology"
)

// Request size limits.
const (
	MaxRows    = 1000
	MaxQAPairs = 500
)

// ── Column Definition ────────────────────────────────────────

// ColumnDefinition describes one column of a tabular request.
type ColumnDefinition struct {
	Name        string   `json:"name" yaml:"name" validate:"required,max=128"`
	DType       DType    `json:"dtype" yaml:"dtype" validate:"required,oneof=int float str bool datetime"`
	Description string   `json:"description,omitempty" yaml:"description"`
	Validation  string   `json:"validation,omitempty" yaml:"validation" validate:"max=512"`
	Options     []string `json:"options,omitempty" yaml:"options"`
}

// ── Generation Request ───────────────────────────────────────

// GenerationRequest is either a *TabularRequest or a *QARequest.
// Callers dispatch on DatasetType() or with a type switch.
type GenerationRequest interface {
	DatasetType() DatasetType
	// Count is the number of items requested.
	Count() int
	Format() OutputFormat
	// DomainName is the guardrail domain the request is checked against.
	DomainName() string
	Validate() error

	isGenerationRequest()
}

// TabularRequest asks for rows matching a column schema.
type TabularRequest struct {
	Columns      []ColumnDefinition `json:"columns" yaml:"columns" validate:"required,min=1,max=100,dive"`
	NumRows      int                `json:"num_rows" yaml:"num_rows" validate:"min=1,max=1000"`
	UseCase      string             `json:"use_case" yaml:"use_case" validate:"max=2000"`
	Description  string             `json:"description,omitempty" yaml:"description" validate:"max=4000"`
	OutputFormat OutputFormat       `json:"output_format,omitempty" yaml:"output_format" validate:"omitempty,oneof=csv json"`
	Domain       string             `json:"domain,omitempty" yaml:"domain" validate:"max=64"`
}

func (r *TabularRequest) DatasetType() DatasetType { return DatasetTabular }
func (r *TabularRequest) Count() int               { return r.NumRows }
func (r *TabularRequest) isGenerationRequest()     {}

// Format returns the requested output format, csv when unset.
func (r *TabularRequest) Format() OutputFormat {
	if r.OutputFormat == "" {
		return FormatCSV
	}
	return r.OutputFormat
}

// DomainName returns the explicit domain, or one inferred from the use case.
func (r *TabularRequest) DomainName() string {
	if d := strings.TrimSpace(strings.ToLower(r.Domain)); d != "" {
		return d
	}
	return InferDomain(r.UseCase + " " + r.Description)
}

// Validate checks field constraints and column name uniqueness.
func (r *TabularRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	seen := make(map[string]bool, len(r.Columns))
	for _, c := range r.Columns {
		if seen[c.Name] {
			return fmt.Errorf("duplicate column name %q", c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}

// QARequest asks for question/answer pairs about a domain.
type QARequest struct {
	Domain       string       `json:"domain" yaml:"domain" validate:"required,max=64"`
	Complexity   string       `json:"complexity,omitempty" yaml:"complexity" validate:"omitempty,oneof=beginner intermediate advanced"`
	NumPairs     int          `json:"num_pairs" yaml:"num_pairs" validate:"min=1,max=500"`
	Context      string       `json:"context,omitempty" yaml:"context" validate:"max=4000"`
	Constraints  []string     `json:"constraints,omitempty" yaml:"constraints" validate:"max=50"`
	OutputFormat OutputFormat `json:"output_format,omitempty" yaml:"output_format" validate:"omitempty,oneof=csv json"`
}

func (r *QARequest) DatasetType() DatasetType { return DatasetQA }
func (r *QARequest) Count() int               { return r.NumPairs }
func (r *QARequest) Validate() error          { return validate.Struct(r) }
func (r *QARequest) isGenerationRequest()     {}

// Format returns the requested output format, json when unset.
func (r *QARequest) Format() OutputFormat {
	if r.OutputFormat == "" {
		return FormatJSON
	}
	return r.OutputFormat
}

// DomainName returns the lower-cased request domain.
func (r *QARequest) DomainName() string {
	return strings.TrimSpace(strings.ToLower(r.Domain))
}

// ComplexityLevel returns the complexity, intermediate when unset.
func (r *QARequest) ComplexityLevel() string {
	if r.Complexity == "" {
		return ComplexityIntermediate
	}
	return r.Complexity
}

// QAColumns is the fixed column layout used when a QA dataset is written as CSV.
var QAColumns = []ColumnDefinition{
	{Name: "question", DType: DTypeStr},
	{Name: "answer", DType: DTypeStr},
}

// InferDomain maps free text to a guardrail domain by keyword.
func InferDomain(text string) string {
	t := strings.ToLower(text)
	switch {
	case containsAny(t, "healthcare", "medical", "patient", "clinical", "diagnosis"):
		return DomainHealthcare
	case containsAny(t, "finance", "financial", "bank", "transaction", "payment", "loan"):
		return DomainFinance
	default:
		return DomainGeneral
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
