// Package analytics derives business value and efficiency reports for a
// finished dataset.
package analytics

import (
	"math"
	"strings"
	"time"

	"github.com/vaisu-bhut/GeniQ/pkg/models"
)

// ValueConfig holds the effort and cost assumptions.
type ValueConfig struct {
	TabularSecondsPerItem float64 `yaml:"tabular_seconds_per_item"`
	QASecondsPerItem      float64 `yaml:"qa_seconds_per_item"`
	HourlyRate            float64 `yaml:"hourly_rate"`
}

// DefaultValueConfig returns the built-in estimates.
func DefaultValueConfig() ValueConfig {
	return ValueConfig{TabularSecondsPerItem: 120, QASecondsPerItem: 180, HourlyRate: 50}
}

// Outcome summarizes what the pipeline produced.
type Outcome struct {
	DatasetType models.DatasetType
	UseCase     string
	Requested   int
	Accepted    int
	Dropped     int
	Quality     models.QualityReport
}

// ── Business Value ──────────────────────────────────────────

// Estimator computes BusinessValueReports. It is immutable.
type Estimator struct {
	cfg ValueConfig
}

// NewEstimator creates an estimator over cfg.
func NewEstimator(cfg ValueConfig) *Estimator {
	return &Estimator{cfg: cfg}
}

// Estimate returns use cases, time savings and cost benefit for o.
func (e *Estimator) Estimate(o Outcome) models.BusinessValueReport {
	ts := e.timeSavings(o)
	rep := models.BusinessValueReport{
		PotentialUseCases: useCases(o),
		TimeSavings:       ts,
		CostBenefit: models.CostBenefit{
			EstimatedCostSavings: math.Round(ts.QualityAdjustedTimeHours * e.cfg.HourlyRate),
		},
	}
	if o.Accepted > 0 {
		saved := ts.EstimatedManualTimeHours - ts.QualityAdjustedTimeHours
		rep.CostBenefit.ROIPerItem = round(saved*e.cfg.HourlyRate/float64(o.Accepted), 2)
	}
	return rep
}

func (e *Estimator) timeSavings(o Outcome) models.TimeSavings {
	base := e.cfg.TabularSecondsPerItem
	if o.DatasetType == models.DatasetQA {
		base = e.cfg.QASecondsPerItem
	}
	manual := base * float64(o.Accepted)

	validity := 1.0
	if o.Requested > 0 {
		validity = 1 - float64(o.Dropped)/float64(o.Requested)
	}
	completeness := o.Quality.CompletenessScore
	if o.DatasetType == models.DatasetQA {
		// QA reports carry no cell completeness, which counts as complete.
		completeness = 1.0
	}
	factor := 0.3*completeness + 0.7*validity

	return models.TimeSavings{
		EstimatedManualTimeHours: round(manual/3600, 1),
		QualityAdjustedTimeHours: round(manual*factor/3600, 1),
		TimeSavingsPercent:       int(math.Round((1 - factor) * 100)),
	}
}

func useCases(o Outcome) []string {
	out := make([]string, 0, 3)
	q := o.Quality
	if o.DatasetType == models.DatasetQA {
		if q.DomainCoverage > 0.7 {
			out = append(out, "Chatbot training", "Knowledge base")
		}
		if q.AnswerCompleteness > 0.8 {
			out = append(out, "FAQ generation")
		}
		return out
	}
	if _, ok := q.Distributions["age"]; ok {
		out = append(out, "Customer segmentation")
	}
	if _, ok := q.Distributions["price"]; ok {
		out = append(out, "Pricing analysis")
	}
	if strings.Contains(strings.ToLower(o.UseCase), "diagnosis") {
		out = append(out, "Medical research")
	}
	return out
}

// ── Efficiency ──────────────────────────────────────────────

// MinElapsed floors elapsed time so rates stay finite.
const MinElapsed = time.Millisecond

// TargetSecondsPerItem is the throughput the efficiency score is measured against.
const TargetSecondsPerItem = 0.5

// Efficiency reports throughput for items produced over elapsed. The
// resource figures are illustrative estimates, not measurements.
func Efficiency(items int, elapsed time.Duration) models.EfficiencyReport {
	if elapsed < MinElapsed {
		elapsed = MinElapsed
	}
	secs := elapsed.Seconds()
	n := float64(items)
	return models.EfficiencyReport{
		TotalTimeSeconds:     round(secs, 2),
		ItemsPerSecond:       round(n/secs, 2),
		GenerationEfficiency: math.Min(1, TargetSecondsPerItem*n/secs),
		ResourceUtilization: models.ResourceUsage{
			CPUSeconds: secs * 0.8,
			MemoryMB:   n * 0.5,
			EnergyKWh:  secs * 0.0001,
		},
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
