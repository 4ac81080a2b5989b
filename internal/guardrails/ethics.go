package guardrails

import (
	"math"
	"regexp"
	"strings"

	"github.com/vaisu-bhut/GeniQ/pkg/models"
)

// EthicsRule is one textual rule checked by one or more Rule objects.
// The rule is violated when any check reports an issue.
type EthicsRule struct {
	Text   string
	Checks []Rule
}

var (
	ssnPattern        = `\b\d{3}-\d{2}-\d{4}\b`
	creditCardPattern = `\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`
	addressPattern    = `\b\d+\s+[a-z\s]+(?:street|st|avenue|ave|road|rd|boulevard|blvd|drive|dr|lane|ln|way|place|pl|court|ct)\b`
)

// DefaultRuleSets returns the built-in domain → rule-set table.
func DefaultRuleSets() map[string][]EthicsRule {
	prohibited := func(name string, exprs ...string) []Rule {
		return []Rule{&PatternRule{RuleName: name, Message: name, Patterns: mustPatterns(exprs...)}}
	}

	return map[string][]EthicsRule{
		models.DomainHealthcare: {
			{
				Text: "No real patient identifiers",
				Checks: prohibited("patient_identifiers",
					`\b[a-z]{2}\d{6}\b`, // medical record numbers
					ssnPattern,
					`\b[a-z]+\s+\d{6,}\b`, // name + number
				),
			},
			{
				Text: "Diagnosis codes must be ICD-10 compliant",
				Checks: []Rule{&RequiredFormatRule{
					RuleName: "icd10_format",
					Message:  "diagnosis without an ICD-10 code",
					Required: regexp.MustCompile(`(?i)\b[a-z]\d{2}(?:\.\d{1,4})?\b`),
					Trigger:  regexp.MustCompile(`(?i)\b(diagnosis|diagnosed|condition|disease|syndrome)\b`),
				}},
			},
			{
				Text: "Drug names must be generic",
				Checks: prohibited("brand_drug_names",
					`\b(advil|motrin|tylenol|aleve|bayer|excedrin)\b`,
					`\b(vicodin|oxycontin|percocet|xanax|valium|adderall)\b`,
					`\b(lipitor|zoloft|prozac|nexium|plavix|ozempic|humira)\b`,
				),
			},
		},
		models.DomainFinance: {
			{
				Text:   "No real account numbers",
				Checks: prohibited("account_numbers", creditCardPattern, `\b\d{8,12}\b`),
			},
			{
				Text: "Transaction amounts below $10,000",
				Checks: prohibited("high_amounts",
					`\$\s?\d{5,}`,
					`\$\s?\d{2,3},\d{3}\b`,
					`\$\s?\d{1,3}(?:,\d{3}){2,}`,
					`\b\d{5,}(?:\.\d+)?\s*(?:dollars|usd)\b`,
				),
			},
			{
				Text: "Fake bank names only",
				Checks: prohibited("real_bank_names",
					`\b(jp ?morgan|chase bank|goldman sachs|morgan stanley|bank of america|wells fargo)\b`,
					`\b(citibank|citigroup|hsbc|barclays|deutsche bank|capital one|u\.?s\. bank)\b`,
				),
			},
		},
		models.DomainGeneral: {
			{
				Text:   "No real personal information",
				Checks: prohibited("personal_information", ssnPattern, creditCardPattern),
			},
			{
				Text: "No real company names",
				Checks: prohibited("company_names",
					`\b(apple|google|microsoft|amazon|facebook|meta platforms|tesla|netflix|uber|airbnb)\b`,
					`\b(jp ?morgan|goldman sachs|morgan stanley|bank of america|wells fargo)\b`,
				),
			},
			{
				Text:   "No real addresses",
				Checks: prohibited("addresses", addressPattern),
			},
		},
	}
}

// EthicalCompliance enforces the domain rule sets.
type EthicalCompliance struct {
	sets map[string][]EthicsRule
}

// NewEthicalCompliance copies the rule-set table into a new checker.
func NewEthicalCompliance(sets map[string][]EthicsRule) *EthicalCompliance {
	s := make(map[string][]EthicsRule, len(sets))
	for k, v := range sets {
		s[strings.ToLower(k)] = append([]EthicsRule(nil), v...)
	}
	return &EthicalCompliance{sets: s}
}

// RulesFor returns the rule set for domain, falling back to general.
func (e *EthicalCompliance) RulesFor(domain string) []EthicsRule {
	if rules, ok := e.sets[strings.ToLower(domain)]; ok {
		return rules
	}
	return e.sets[models.DomainGeneral]
}

// Validate records one violation per (item, rule) pair.
// compliance_score = clamp(1 - violations/items, 0, 1); 1.0 with no items.
func (e *EthicalCompliance) Validate(data []models.Item, domain string) models.ComplianceReport {
	rules := e.RulesFor(domain)
	rep := models.ComplianceReport{
		ComplianceScore: 1.0,
		Violations:      make([]models.Violation, 0),
		TotalItems:      len(data),
		Domain:          strings.ToLower(domain),
	}

	for i, item := range data {
		s := NewSubject(i, item)
		for _, rule := range rules {
			if violates(rule, s) {
				rep.Violations = append(rep.Violations, models.Violation{Index: i, Rule: rule.Text, OffendingData: item})
			}
		}
	}

	rep.ViolationCount = len(rep.Violations)
	rep.ComplianceScore = ComplianceScore(rep.ViolationCount, rep.TotalItems)
	return rep
}

// ComplianceScore returns 1 - violations/total clamped to [0,1].
func ComplianceScore(violations, total int) float64 {
	if total <= 0 {
		return 1.0
	}
	return math.Max(0, math.Min(1, 1-float64(violations)/float64(total)))
}

func violates(rule EthicsRule, s Subject) bool {
	for _, c := range rule.Checks {
		if len(c.Evaluate(s)) > 0 {
			return true
		}
	}
	return false
}
