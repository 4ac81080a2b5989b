package guardrails

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/vaisu-bhut/GeniQ/pkg/models"
)

const domainIssue = "Domain-specific sensitive information detected"

// DefaultPIIRules returns the built-in PII detectors, one per PII type.
func DefaultPIIRules() []Rule {
	pii := []struct {
		name    string
		pattern string
	}{
		{"ssn", `\b\d{3}-\d{2}-\d{4}\b`},
		{"email", `\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`},
		{"phone", `\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`},
		{"credit_card", `\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`},
		{"address", `\b\d+\s+[a-z\s]+(?:street|st|avenue|ave|road|rd|boulevard|blvd|drive|dr|lane|ln|way|place|pl|court|ct)\b`},
	}
	rules := make([]Rule, len(pii))
	for i, p := range pii {
		rules[i] = &PatternRule{
			RuleName: p.name,
			Message:  fmt.Sprintf("Potential %s detected", strings.ToUpper(p.name)),
			Patterns: mustPatterns(p.pattern),
		}
	}
	return rules
}

// DefaultDomainRules returns the domain-keyed sensitive pattern sets.
func DefaultDomainRules() map[string][]Rule {
	return map[string][]Rule{
		models.DomainHealthcare: {&PatternRule{
			RuleName: "healthcare_sensitive",
			Message:  domainIssue,
			Patterns: mustPatterns(
				`\b(patient|medical record|diagnosis|treatment|prescription|medication)\b`,
				`\b\d{10,}\b`, // medical record numbers
			),
		}},
		models.DomainFinance: {&PatternRule{
			RuleName: "finance_sensitive",
			Message:  domainIssue,
			Patterns: mustPatterns(
				`\b(account number|routing number|swift code|iban)\b`,
				`\b\d{8,}\b`, // account numbers
			),
		}},
	}
}

// ContentSafety flags items containing PII, domain-sensitive data, blocked
// terms or implausible values.
type ContentSafety struct {
	pii        []Rule
	domain     map[string][]Rule
	moderation []Rule
}

// NewContentSafety copies the rule tables into a new checker. Moderation
// rules apply in every domain.
func NewContentSafety(pii []Rule, domain map[string][]Rule, moderation ...Rule) *ContentSafety {
	d := make(map[string][]Rule, len(domain))
	for k, v := range domain {
		d[strings.ToLower(k)] = append([]Rule(nil), v...)
	}
	return &ContentSafety{
		pii:        append([]Rule(nil), pii...),
		domain:     d,
		moderation: append([]Rule(nil), moderation...),
	}
}

// Check scans every item. safety_score = 100 * (1 - flagged/total), clamped
// to [0,100]; 100 when there are no items.
func (c *ContentSafety) Check(data []models.Item, domain string) models.SafetyReport {
	domain = strings.ToLower(domain)
	domainRules := c.domain[domain]

	rep := models.SafetyReport{
		SafetyScore: 100,
		Flagged:     make([]models.FlaggedItem, 0),
		Domain:      domain,
		TotalItems:  len(data),
	}
	rep.ChecksPerformed = c.checksPerformed(domain, domainRules)

	for i, item := range data {
		s := NewSubject(i, item)
		issues := make([]string, 0)
		for _, r := range c.pii {
			for _, is := range r.Evaluate(s) {
				issues = append(issues, is.Message)
			}
		}
		issues = append(issues, moderationIssues(c.moderation, s)...)
		// Domain findings are reported at most once per item.
		for _, r := range domainRules {
			if found := r.Evaluate(s); len(found) > 0 {
				issues = append(issues, domainIssue)
				break
			}
		}
		issues = dedupe(issues)
		if len(issues) == 0 {
			continue
		}
		sev := models.SeverityMedium
		if len(issues) > 2 {
			sev = models.SeverityHigh
		}
		rep.Flagged = append(rep.Flagged, models.FlaggedItem{Index: i, Item: item, Issues: issues, Severity: sev})
	}

	rep.FlaggedItems = len(rep.Flagged)
	rep.SafetyScore = SafetyScore(rep.FlaggedItems, rep.TotalItems)
	rep.Passed = rep.FlaggedItems == 0
	return rep
}

// SafetyScore returns 100 * (1 - flagged/total) clamped to [0,100].
func SafetyScore(flagged, total int) float64 {
	if total <= 0 {
		return 100
	}
	return math.Max(0, math.Min(100, 100*(1-float64(flagged)/float64(total))))
}

func (c *ContentSafety) checksPerformed(domain string, domainRules []Rule) []string {
	checks := make([]string, 0, len(c.pii)+len(domainRules)+len(c.moderation)+1)
	label := domain
	if len(domainRules) == 0 {
		label = "default"
	}
	checks = append(checks, fmt.Sprintf("Using %s safety configuration", label))
	for _, r := range c.pii {
		checks = append(checks, "pii:"+r.Name())
	}
	for _, r := range domainRules {
		checks = append(checks, "domain:"+r.Name())
	}
	for _, r := range c.moderation {
		checks = append(checks, "moderation:"+r.Name())
	}
	return checks
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// sortedDomains is used for stable listings of configured domains.
func sortedDomains[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Domains lists the domains with dedicated sensitive-pattern sets.
func (c *ContentSafety) Domains() []string { return sortedDomains(c.domain) }
