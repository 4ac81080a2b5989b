package guardrails

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// Bound is the plausible range of a numeric field. Open excludes the limits.
type Bound struct {
	Min, Max float64
	Open     bool
}

func (b Bound) contains(v float64) bool {
	if b.Open {
		return v > b.Min && v < b.Max
	}
	return v >= b.Min && v <= b.Max
}

// PlausibilityRule flags numeric fields whose value falls outside the range
// a generated record could realistically hold. Field names match
// case-insensitively; non-numeric values are ignored.
type PlausibilityRule struct {
	RuleName string
	Bounds   map[string]Bound
}

func (r *PlausibilityRule) Name() string { return r.RuleName }

func (r *PlausibilityRule) Evaluate(s Subject) []Issue {
	keys := make([]string, 0, len(s.Item))
	for k := range s.Item {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var issues []Issue
	for _, k := range keys {
		b, ok := r.Bounds[strings.ToLower(k)]
		if !ok {
			continue
		}
		if _, isBool := s.Item[k].(bool); isBool {
			continue
		}
		v, err := cast.ToFloat64E(s.Item[k])
		if err != nil || b.contains(v) {
			continue
		}
		issues = append(issues, Issue{
			Rule:    r.RuleName,
			Message: fmt.Sprintf("Implausible %s value", strings.ToLower(k)),
		})
	}
	return issues
}

// DefaultModerationRules returns the checks applied in every domain: blocked
// terms and implausible amounts or ages.
func DefaultModerationRules() []Rule {
	return []Rule{
		&PatternRule{
			RuleName: "blocked_terms",
			Message:  "Blocked term detected",
			Patterns: mustPatterns(`\b(?:fuck|shit|kill|bomb|terrorist)(?:s|ed|ing)?\b`),
		},
		&PlausibilityRule{
			RuleName: "plausibility",
			Bounds: map[string]Bound{
				"amount": {Min: -1_000_000, Max: 1_000_000},
				"age":    {Min: 0, Max: 120, Open: true},
			},
		},
	}
}

// moderationIssues runs the moderation rules over s.
func moderationIssues(rules []Rule, s Subject) []string {
	var out []string
	for _, r := range rules {
		for _, is := range r.Evaluate(s) {
			out = append(out, is.Message)
		}
	}
	return out
}
