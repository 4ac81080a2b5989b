// Package prompt builds generator prompts for batch generation and for
// single-item regeneration.
package prompt

import (
	"fmt"
	"strings"

	"github.com/vaisu-bhut/GeniQ/pkg/models"
)

// Batch returns the prompt that asks for a whole dataset.
func Batch(req models.GenerationRequest) string {
	switch r := req.(type) {
	case *models.TabularRequest:
		return tabular(r, r.NumRows)
	case *models.QARequest:
		return qa(r, r.NumPairs)
	}
	return ""
}

// Single returns the prompt that asks for exactly one replacement item.
func Single(req models.GenerationRequest) string {
	switch r := req.(type) {
	case *models.TabularRequest:
		return tabular(r, 1)
	case *models.QARequest:
		return qa(r, 1)
	}
	return ""
}

func tabular(r *models.TabularRequest, rows int) string {
	var cols strings.Builder
	for _, c := range r.Columns {
		fmt.Fprintf(&cols, "- %s (%s): %s.", c.Name, c.DType, c.Description)
		if c.Validation != "" {
			fmt.Fprintf(&cols, " Validation: %s.", c.Validation)
		}
		if len(c.Options) > 0 {
			fmt.Fprintf(&cols, " Allowed values: %s.", strings.Join(c.Options, ", "))
		}
		cols.WriteString("\n")
	}
	example := exampleObject(r.Columns)

	var b strings.Builder
	b.WriteString("Generate a synthetic dataset with these specifications:\n")
	fmt.Fprintf(&b, "Use Case: %s\n", r.UseCase)
	if r.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", r.Description)
	}
	fmt.Fprintf(&b, "Number of Rows: %d\n\n", rows)
	b.WriteString("Columns:\n")
	b.WriteString(cols.String())
	b.WriteString("\nCRITICAL OUTPUT REQUIREMENTS:\n")
	fmt.Fprintf(&b, "1. Generate exactly %d %s\n", rows, plural(rows, "row", "rows"))
	fmt.Fprintf(&b, "2. Output ONLY a JSON array with this EXACT structure: [%s]\n", example)
	b.WriteString("3. Ensure all values match the specified data types:\n")
	b.WriteString("   - int: whole numbers only (e.g., 25, 30, 45)\n")
	b.WriteString("   - float: decimal numbers (e.g., 50000.0, 75000.5)\n")
	b.WriteString("   - str: text strings (e.g., \"John Doe\", \"Engineer\")\n")
	b.WriteString("   - bool: true/false values only\n")
	b.WriteString("   - datetime: ISO 8601 strings (e.g., \"2024-01-15T09:30:00Z\")\n")
	b.WriteString("4. Do NOT include any explanations, markdown, code blocks, or extra text\n")
	b.WriteString("5. The response must start with [ and end with ]\n")
	b.WriteString("6. Each object must contain ALL the specified columns\n")
	b.WriteString("7. Every value must pass its column's validation rule\n")
	b.WriteString("8. Use fictional people, companies, and addresses only\n")
	if rows > 1 {
		b.WriteString("9. Ensure data diversity and realism\n")
	}
	return b.String()
}

func qa(r *models.QARequest, pairs int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate %d question-answer %s with these specifications:\n", pairs, plural(pairs, "pair", "pairs"))
	fmt.Fprintf(&b, "Domain: %s\n", r.Domain)
	fmt.Fprintf(&b, "Complexity: %s\n", r.ComplexityLevel())
	if r.Context != "" {
		fmt.Fprintf(&b, "Context: %s\n", r.Context)
	}
	if len(r.Constraints) > 0 {
		fmt.Fprintf(&b, "Constraints: %s\n", strings.Join(r.Constraints, "; "))
	}
	b.WriteString("\nCRITICAL OUTPUT REQUIREMENTS:\n")
	b.WriteString("1. Output STRICTLY as a JSON array: [{\"question\": \"...\", \"answer\": \"...\"}]\n")
	b.WriteString("2. Do NOT include any explanations, markdown, or code blocks\n")
	b.WriteString("3. Each question and answer must be longer than 5 characters\n")
	b.WriteString("4. Answers should be accurate and comprehensive\n")
	b.WriteString("5. The response must start with [ and end with ]\n")
	b.WriteString("6. Do not include real personal data, account numbers, or patient identifiers\n")
	if pairs > 1 {
		b.WriteString("7. Ensure questions are diverse and cover different aspects of the domain\n")
	}
	return b.String()
}

func exampleObject(cols []models.ColumnDefinition) string {
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		var v string
		switch {
		case len(c.Options) > 0:
			v = fmt.Sprintf("%q", c.Options[0])
		case c.DType == models.DTypeInt:
			v = "25"
		case c.DType == models.DTypeFloat:
			v = "50000.0"
		case c.DType == models.DTypeBool:
			v = "true"
		case c.DType == models.DTypeDatetime:
			v = `"2024-01-15T09:30:00Z"`
		default:
			v = `"John Doe"`
		}
		parts = append(parts, fmt.Sprintf("%q: %s", c.Name, v))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
