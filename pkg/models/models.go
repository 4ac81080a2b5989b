package models

import (
	"time"
)

// EnvelopeVersion tags every metadata block so consumers can tell which
// report layout produced a file.
const EnvelopeVersion = "1.0.0"

// ── Items ────────────────────────────────────────────────────

// Item is one untyped record produced by the generator. Its shape is expected,
// but never guaranteed, to match the request.
type Item map[string]interface{}

// ── Validation ───────────────────────────────────────────────

// VerdictReason explains why an item failed validation.
type VerdictReason string

const (
	ReasonNone         VerdictReason = ""
	ReasonMissingField VerdictReason = "missing_field"
	ReasonTypeCoercion VerdictReason = "type_coercion"
	ReasonRuleFailed   VerdictReason = "rule_failed"
	ReasonMalformed    VerdictReason = "malformed"
)

// ColumnFailure records one failing column of a tabular row.
type ColumnFailure struct {
	Column string        `json:"column"`
	Reason VerdictReason `json:"reason"`
	Detail string        `json:"detail,omitempty"`
}

// Verdict is the outcome of validating a single item.
type Verdict struct {
	Valid    bool            `json:"valid"`
	Reason   VerdictReason   `json:"reason,omitempty"`
	Column   string          `json:"column,omitempty"` // first failing column (tabular)
	Detail   string          `json:"detail,omitempty"`
	Failures []ColumnFailure `json:"failures,omitempty"`
	Coerced  Item            `json:"-"` // typed copy of a valid tabular row
}

// ── Progress ─────────────────────────────────────────────────

// Progress is a point-in-time view of a request's counters.
type Progress struct {
	Total                     int     `json:"total"`
	Completed                 int     `json:"completed"`
	Valid                     int     `json:"valid"`
	Invalid                   int     `json:"invalid"`
	ProgressPercent           int     `json:"progress"`
	ElapsedSeconds            float64 `json:"elapsed_seconds"`
	EstimatedRemainingSeconds float64 `json:"estimated_remaining"`
}

// ── Quality ──────────────────────────────────────────────────

// DistributionStats summarizes one numeric column.
type DistributionStats struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// QualityReport holds the statistics computed over an accepted dataset.
// Tabular datasets fill the completeness, validity, distribution and
// specificity fields; QA datasets fill the question/answer fields.
type QualityReport struct {
	CompletenessScore  float64                      `json:"completeness_score"`
	MissingValues      map[string]int               `json:"missing_values,omitempty"`
	Validity           map[string]int               `json:"validity,omitempty"`
	Distributions      map[string]DistributionStats `json:"distributions,omitempty"`
	UseCaseSpecificity float64                      `json:"use_case_specificity,omitempty"`

	QuestionUniqueness    float64 `json:"question_uniqueness,omitempty"`
	DomainCoverage        float64 `json:"domain_coverage,omitempty"`
	AnswerCompleteness    float64 `json:"answer_completeness,omitempty"`
	AverageQuestionLength float64 `json:"average_question_length,omitempty"`
	AverageAnswerLength   float64 `json:"average_answer_length,omitempty"`
}

// ── Guardrails ───────────────────────────────────────────────

// Severity grades a flagged item.
type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// FlaggedItem is an item that matched one or more content-safety rules.
type FlaggedItem struct {
	Index    int      `json:"index"`
	Item     Item     `json:"item"`
	Issues   []string `json:"issues"`
	Severity Severity `json:"severity"`
}

// SafetyReport is the ContentSafety result for a dataset.
type SafetyReport struct {
	SafetyScore     float64       `json:"safety_score"`
	Passed          bool          `json:"passed"`
	Flagged         []FlaggedItem `json:"flagged"`
	Domain          string        `json:"domain"`
	ChecksPerformed []string      `json:"checks_performed"`
	TotalItems      int           `json:"total_items"`
	FlaggedItems    int           `json:"flagged_items"`
}

// Violation is one (item, rule) pair that broke an ethics rule.
type Violation struct {
	Index         int    `json:"index"`
	Rule          string `json:"rule"`
	OffendingData Item   `json:"offending_data"`
}

// ComplianceReport is the EthicalCompliance result for a dataset.
type ComplianceReport struct {
	ComplianceScore float64     `json:"compliance_score"`
	Violations      []Violation `json:"violations"`
	TotalItems      int         `json:"total_items"`
	ViolationCount  int         `json:"violation_count"`
	Domain          string      `json:"domain"`
}

// GuardrailPolicy decides whether findings block a request.
type GuardrailPolicy string

const (
	PolicyReportOnly GuardrailPolicy = "report_only"
	PolicyFailClosed GuardrailPolicy = "fail_closed"
)

// GuardrailReport combines both guardrail checks.
type GuardrailReport struct {
	Safety     SafetyReport     `json:"content_safety"`
	Compliance ComplianceReport `json:"ethical_compliance"`
	Policy     GuardrailPolicy  `json:"policy"`
	Blocked    bool             `json:"blocked"`
}

// ── Business Value / Efficiency ──────────────────────────────

// TimeSavings estimates manual effort replaced by generation.
type TimeSavings struct {
	EstimatedManualTimeHours float64 `json:"estimated_manual_time_hours"`
	QualityAdjustedTimeHours float64 `json:"quality_adjusted_time_hours"`
	TimeSavingsPercent       int     `json:"time_savings_percent"`
}

// CostBenefit converts time savings into money.
type CostBenefit struct {
	EstimatedCostSavings float64 `json:"estimated_cost_savings"`
	ROIPerItem           float64 `json:"roi_per_item"`
}

// BusinessValueReport is derived from quality and rejection data.
type BusinessValueReport struct {
	PotentialUseCases []string    `json:"potential_use_cases"`
	TimeSavings       TimeSavings `json:"time_savings"`
	CostBenefit       CostBenefit `json:"cost_benefit"`
}

// ResourceUsage holds illustrative, non-measured estimates.
type ResourceUsage struct {
	CPUSeconds float64 `json:"cpu_seconds"`
	MemoryMB   float64 `json:"memory_mb"`
	EnergyKWh  float64 `json:"energy_kwh"`
}

// EfficiencyReport describes generation throughput.
type EfficiencyReport struct {
	TotalTimeSeconds     float64       `json:"total_time_seconds"`
	ItemsPerSecond       float64       `json:"items_per_second"`
	GenerationEfficiency float64       `json:"generation_efficiency"`
	ResourceUtilization  ResourceUsage `json:"resource_utilization"`
}

// ── Envelope ─────────────────────────────────────────────────

// Metadata accompanies every generated dataset.
type Metadata struct {
	GeneratedAt   time.Time           `json:"generated_at"`
	Version       string              `json:"version"`
	RequestID     string              `json:"request_id"`
	DatasetType   DatasetType         `json:"dataset_type"`
	Domain        string              `json:"domain"`
	Requested     int                 `json:"requested"`
	Accepted      int                 `json:"accepted"`
	Dropped       int                 `json:"dropped"`
	Regenerations int                 `json:"regenerations"`
	Quality       QualityReport       `json:"quality_report"`
	BusinessValue BusinessValueReport `json:"business_value"`
	Efficiency    EfficiencyReport    `json:"efficiency"`
	Guardrails    GuardrailReport     `json:"guardrails"`
	Columns       []ColumnDefinition  `json:"columns,omitempty"`
	Progress      Progress            `json:"progress"`
}

// Envelope is the final artifact handed to persistence.
type Envelope struct {
	Data     []Item   `json:"data"`
	Metadata Metadata `json:"metadata"`
}

// ── Model Provider ───────────────────────────────────────────

// ModelProvider configures one upstream generative model endpoint.
type ModelProvider struct {
	Name      string                 `json:"name" yaml:"name"`
	Kind      string                 `json:"kind" yaml:"kind"` // openai, azure-openai, anthropic, ollama, gemini
	Endpoint  string                 `json:"endpoint,omitempty" yaml:"endpoint"`
	Models    []string               `json:"models" yaml:"models"`
	APIKey    string                 `json:"-" yaml:"api_key"`
	IsDefault bool                   `json:"is_default" yaml:"is_default"`
	Config    map[string]interface{} `json:"config,omitempty" yaml:"config"`
}

// ── Runs ─────────────────────────────────────────────────────

// RunStatus tracks a generation request through its lifecycle.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is the stored record of one generation request.
type Run struct {
	ID                string       `json:"id"`
	DatasetType       DatasetType  `json:"dataset_type"`
	Domain            string       `json:"domain"`
	Format            OutputFormat `json:"format"`
	Status            RunStatus    `json:"status"`
	Requested         int          `json:"requested"`
	Accepted          int          `json:"accepted"`
	Dropped           int          `json:"dropped"`
	FilePath          string       `json:"file_path,omitempty"`
	Error             string       `json:"error,omitempty"`
	ErrorKind         string       `json:"error_kind,omitempty"`
	CompletenessScore float64      `json:"completeness_score"`
	SafetyScore       float64      `json:"safety_score"`
	ComplianceScore   float64      `json:"compliance_score"`
	Progress          Progress     `json:"progress"`
	CreatedAt         time.Time    `json:"created_at"`
	CompletedAt       *time.Time   `json:"completed_at,omitempty"`
}

// Run event types.
const (
	EventRunCompleted = "run_completed"
	EventRunFailed    = "run_failed"
)

// RunEvent is the payload posted to webhooks when a run finishes.
type RunEvent struct {
	Type      string    `json:"type"`
	Run       Run       `json:"run"`
	Timestamp time.Time `json:"timestamp"`
}

// ── Feedback ─────────────────────────────────────────────────

// Feedback is a user's rating of a generated dataset.
type Feedback struct {
	ID           string    `json:"id"`
	DatasetID    string    `json:"dataset_id" validate:"required"`
	Rating       int       `json:"rating" validate:"min=1,max=5"`
	Comments     string    `json:"comments,omitempty" validate:"max=4000"`
	Improvements string    `json:"improvements,omitempty" validate:"max=4000"`
	CreatedAt    time.Time `json:"timestamp"`
}

// Validate checks rating bounds and required fields.
func (f *Feedback) Validate() error { return validate.Struct(f) }

// FeedbackReport aggregates stored feedback.
type FeedbackReport struct {
	Count              int         `json:"count"`
	AverageRating      float64     `json:"average_rating"`
	RatingDistribution map[int]int `json:"rating_distribution"`
	RecentImprovements []string    `json:"recent_improvements"`
}
