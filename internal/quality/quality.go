// Package quality computes dataset statistics over an accepted dataset:
// completeness, per-column validity, numeric distributions and use-case
// specificity for tabular data; uniqueness, domain coverage and answer
// completeness for QA data.
package quality

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cast"

	"github.com/vaisu-bhut/GeniQ/pkg/models"
)

// Config holds the keyword tables and thresholds used for scoring.
type Config struct {
	// DomainKeywords maps a QA domain to the keywords counted for coverage.
	DomainKeywords map[string][]string
	// TransactionalUseCases marks a use case as transactional.
	TransactionalUseCases []string
	NameColumnHints       []string
	EmailColumnHints      []string
	AmountColumnHints     []string
	// MinCompleteAnswer is the exclusive rune count above which an answer
	// counts as complete.
	MinCompleteAnswer int
}

// DefaultConfig returns the built-in keyword tables.
func DefaultConfig() Config {
	return Config{
		DomainKeywords: map[string][]string{
			models.DomainHealthcare: {"patient", "treatment", "diagnosis", "medical"},
			models.DomainFinance:    {"stock", "investment", "loan", "interest"},
			models.DomainTechnology: {"software", "code", "algorithm", "system"},
		},
		TransactionalUseCases: []string{"purchase", "transaction", "payment", "order", "sales", "billing"},
		NameColumnHints:       []string{"name"},
		EmailColumnHints:      []string{"email", "e_mail", "mail"},
		AmountColumnHints:     []string{"amount", "price", "total", "cost"},
		MinCompleteAnswer:     15,
	}
}

// Analyzer is immutable after construction and safe for concurrent use.
type Analyzer struct {
	cfg Config
}

// New copies cfg into a new Analyzer.
func New(cfg Config) *Analyzer {
	kw := make(map[string][]string, len(cfg.DomainKeywords))
	for d, words := range cfg.DomainKeywords {
		kw[strings.ToLower(d)] = append([]string(nil), words...)
	}
	cfg.DomainKeywords = kw
	cfg.TransactionalUseCases = append([]string(nil), cfg.TransactionalUseCases...)
	cfg.NameColumnHints = append([]string(nil), cfg.NameColumnHints...)
	cfg.EmailColumnHints = append([]string(nil), cfg.EmailColumnHints...)
	cfg.AmountColumnHints = append([]string(nil), cfg.AmountColumnHints...)
	return &Analyzer{cfg: cfg}
}

// Analyze dispatches on the request variant. validity holds per-column
// first-candidate failure counts and is ignored for QA requests.
func (a *Analyzer) Analyze(req models.GenerationRequest, data []models.Item, validity map[string]int) models.QualityReport {
	switch r := req.(type) {
	case *models.TabularRequest:
		return a.Tabular(data, r.Columns, r.UseCase, validity)
	case *models.QARequest:
		return a.QA(data, r.DomainName())
	}
	return models.QualityReport{}
}

// ── Tabular ──────────────────────────────────────────────────

// Tabular scores a tabular dataset.
func (a *Analyzer) Tabular(data []models.Item, cols []models.ColumnDefinition, useCase string, validity map[string]int) models.QualityReport {
	rep := models.QualityReport{
		CompletenessScore: 1.0,
		MissingValues:     make(map[string]int, len(cols)),
		Validity:          make(map[string]int, len(cols)),
		Distributions:     make(map[string]models.DistributionStats),
	}

	missing := 0
	for _, c := range cols {
		n := 0
		for _, row := range data {
			if v, ok := row[c.Name]; !ok || v == nil {
				n++
			}
		}
		rep.MissingValues[c.Name] = n
		missing += n
		rep.Validity[c.Name] = validity[c.Name]
	}
	if cells := len(data) * len(cols); cells > 0 {
		rep.CompletenessScore = 1 - float64(missing)/float64(cells)
	}

	for _, c := range cols {
		if !c.DType.IsNumeric() {
			continue
		}
		var values []float64
		for _, row := range data {
			if f, err := cast.ToFloat64E(row[c.Name]); err == nil && row[c.Name] != nil {
				values = append(values, f)
			}
		}
		if len(values) > 0 {
			rep.Distributions[c.Name] = describe(values)
		}
	}

	rep.UseCaseSpecificity = a.specificity(cols, useCase)
	return rep
}

// describe returns min, max, mean and sample standard deviation.
func describe(values []float64) models.DistributionStats {
	s := models.DistributionStats{Min: values[0], Max: values[0]}
	var sum float64
	for _, v := range values {
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Mean = sum / float64(len(values))
	if len(values) < 2 {
		return s
	}
	var sq float64
	for _, v := range values {
		d := v - s.Mean
		sq += d * d
	}
	s.Std = math.Sqrt(sq / float64(len(values)-1))
	return s
}

func (a *Analyzer) specificity(cols []models.ColumnDefinition, useCase string) float64 {
	score := 0.5
	if a.hasColumn(cols, a.cfg.NameColumnHints) && a.hasColumn(cols, a.cfg.EmailColumnHints) {
		score += 0.3
	}
	if containsAny(strings.ToLower(useCase), a.cfg.TransactionalUseCases) && a.hasColumn(cols, a.cfg.AmountColumnHints) {
		score += 0.2
	}
	return math.Min(1.0, score)
}

func (a *Analyzer) hasColumn(cols []models.ColumnDefinition, hints []string) bool {
	for _, c := range cols {
		if containsAny(strings.ToLower(c.Name), hints) {
			return true
		}
	}
	return false
}

// ── QA ───────────────────────────────────────────────────────

// QA scores a question/answer dataset. Empty datasets score zero.
func (a *Analyzer) QA(data []models.Item, domain string) models.QualityReport {
	var rep models.QualityReport
	if len(data) == 0 {
		return rep
	}

	questions := make([]string, len(data))
	answers := make([]string, len(data))
	for i, pair := range data {
		questions[i] = cast.ToString(pair["question"])
		answers[i] = cast.ToString(pair["answer"])
	}
	n := float64(len(data))

	distinct := make(map[string]struct{}, len(questions))
	var qLen, aLen, complete int
	for i := range questions {
		distinct[questions[i]] = struct{}{}
		qLen += utf8.RuneCountInString(questions[i])
		l := utf8.RuneCountInString(answers[i])
		aLen += l
		if l > a.cfg.MinCompleteAnswer {
			complete++
		}
	}

	rep.QuestionUniqueness = float64(len(distinct)) / n
	rep.DomainCoverage = a.coverage(questions, domain)
	rep.AnswerCompleteness = float64(complete) / n
	rep.AverageQuestionLength = float64(qLen) / n
	rep.AverageAnswerLength = float64(aLen) / n
	return rep
}

// coverage sums, over the domain's keywords, the questions mentioning each
// keyword, normalized by question count.
func (a *Analyzer) coverage(questions []string, domain string) float64 {
	if len(questions) == 0 {
		return 0
	}
	hits := 0
	for _, kw := range a.cfg.DomainKeywords[strings.ToLower(domain)] {
		for _, q := range questions {
			if strings.Contains(strings.ToLower(q), kw) {
				hits++
			}
		}
	}
	return float64(hits) / float64(len(questions))
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
