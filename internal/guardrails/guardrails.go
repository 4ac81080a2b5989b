// Package guardrails provides the dataset guardrail engine.
// It scans accepted items with two independent checks:
//
//   - content safety: PII patterns, a domain-keyed sensitive set, blocked
//     terms and value plausibility, scored by the share of flagged items
//   - ethical compliance: a domain → rule-set table where every rule is a
//     pluggable Rule object, scored by violations per item
//
// Findings are reported; whether they block a request is decided by Policy.
package guardrails

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"

	"github.com/vaisu-bhut/GeniQ/internal/metrics"
	"github.com/vaisu-bhut/GeniQ/pkg/models"
)

// ── Rules ───────────────────────────────────────────────────

// Issue is one finding produced by a Rule.
type Issue struct {
	Rule    string
	Message string
}

// Subject is an item prepared for scanning.
type Subject struct {
	Index int
	Item  models.Item
	Text  string // deterministic stringification, see Stringify
}

// NewSubject stringifies item once for all rules.
func NewSubject(index int, item models.Item) Subject {
	return Subject{Index: index, Item: item, Text: Stringify(item)}
}

// Rule evaluates one item and returns its findings, if any.
type Rule interface {
	Name() string
	Evaluate(s Subject) []Issue
}

// PatternRule reports Message when any of its patterns matches.
type PatternRule struct {
	RuleName string
	Message  string
	Patterns []*regexp.Regexp
}

func (r *PatternRule) Name() string { return r.RuleName }

func (r *PatternRule) Evaluate(s Subject) []Issue {
	for _, re := range r.Patterns {
		if re.MatchString(s.Text) {
			return []Issue{{Rule: r.RuleName, Message: r.Message}}
		}
	}
	return nil
}

// RequiredFormatRule passes when Required matches, or when the Trigger
// language that demands the format is absent.
type RequiredFormatRule struct {
	RuleName string
	Message  string
	Required *regexp.Regexp
	Trigger  *regexp.Regexp
}

func (r *RequiredFormatRule) Name() string { return r.RuleName }

func (r *RequiredFormatRule) Evaluate(s Subject) []Issue {
	if r.Required.MatchString(s.Text) || !r.Trigger.MatchString(s.Text) {
		return nil
	}
	return []Issue{{Rule: r.RuleName, Message: r.Message}}
}

// Stringify renders an item with keys in sorted order so scans are
// deterministic.
func Stringify(item models.Item) string {
	keys := make([]string, 0, len(item))
	for k := range item {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		v, err := cast.ToStringE(item[k])
		if err != nil {
			v = fmt.Sprint(item[k])
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
	}
	b.WriteString("}")
	return b.String()
}

func mustPatterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile("(?i)" + e)
	}
	return out
}

// ── Engine ──────────────────────────────────────────────────

// Options configures the guardrail engine.
type Options struct {
	Policy models.GuardrailPolicy
	// MaxViolationRate is the highest violations-per-item ratio tolerated
	// under the fail-closed policy.
	MaxViolationRate float64
}

// Engine runs both checks and applies the blocking policy.
type Engine struct {
	Safety *ContentSafety
	Ethics *EthicalCompliance
	opts   Options
}

// NewEngine creates an engine over the given checks.
func NewEngine(safety *ContentSafety, ethics *EthicalCompliance, opts Options) *Engine {
	if opts.Policy == "" {
		opts.Policy = models.PolicyReportOnly
	}
	return &Engine{Safety: safety, Ethics: ethics, opts: opts}
}

// NewDefaultEngine wires the built-in rule tables.
func NewDefaultEngine(opts Options) *Engine {
	return NewEngine(NewContentSafety(DefaultPIIRules(), DefaultDomainRules(), DefaultModerationRules()...),
		NewEthicalCompliance(DefaultRuleSets()), opts)
}

// Policy returns the configured blocking policy.
func (e *Engine) Policy() models.GuardrailPolicy { return e.opts.Policy }

// Evaluate scans data for domain and returns the combined report.
func (e *Engine) Evaluate(data []models.Item, domain string) models.GuardrailReport {
	rep := models.GuardrailReport{
		Safety:     e.Safety.Check(data, domain),
		Compliance: e.Ethics.Validate(data, domain),
		Policy:     e.opts.Policy,
	}
	rep.Blocked = e.blocks(rep)

	d := rep.Safety.Domain
	metrics.GuardrailFlags.WithLabelValues("content_safety", d).Add(float64(rep.Safety.FlaggedItems))
	metrics.GuardrailFlags.WithLabelValues("ethical_compliance", d).Add(float64(rep.Compliance.ViolationCount))

	if rep.Safety.FlaggedItems > 0 || rep.Compliance.ViolationCount > 0 {
		log.Warn().
			Str("domain", d).
			Int("flagged", rep.Safety.FlaggedItems).
			Int("violations", rep.Compliance.ViolationCount).
			Bool("blocked", rep.Blocked).
			Msg("🛡️ Guardrail findings")
	}
	return rep
}

func (e *Engine) blocks(rep models.GuardrailReport) bool {
	if e.opts.Policy != models.PolicyFailClosed {
		return false
	}
	if !rep.Safety.Passed {
		return true
	}
	if rep.Compliance.TotalItems == 0 {
		return false
	}
	rate := float64(rep.Compliance.ViolationCount) / float64(rep.Compliance.TotalItems)
	return rate > e.opts.MaxViolationRate
}
