// Package validation gates generator output: tabular rows are checked for
// presence, dtype coercion, categorical options and rule expressions; QA pairs
// for non-trivial question and answer strings.
package validation

import (
	"fmt"
	"unicode/utf8"

	"github.com/spf13/cast"

	"github.com/vaisu-bhut/GeniQ/internal/rules"
	"github.com/vaisu-bhut/GeniQ/pkg/models"
)

// MinQALength is the exclusive lower bound on question and answer length.
const MinQALength = 5

// Validator checks single items. Safe for concurrent use.
type Validator struct {
	rules *rules.Cache
}

// New creates a Validator backed by the given compile cache.
// A nil cache gets a private one.
func New(cache *rules.Cache) *Validator {
	if cache == nil {
		cache = rules.NewCache()
	}
	return &Validator{rules: cache}
}

// Validate dispatches on the request variant.
func (v *Validator) Validate(req models.GenerationRequest, item models.Item) models.Verdict {
	switch r := req.(type) {
	case *models.TabularRequest:
		return v.ValidateRow(item, r.Columns)
	case *models.QARequest:
		return v.ValidateQA(item)
	}
	return models.Verdict{Reason: models.ReasonMalformed, Detail: fmt.Sprintf("unsupported request %T", req)}
}

// ValidateRow checks every column so per-column failure counts are exact.
// The verdict names the first failing column; a valid verdict carries the
// coerced row.
func (v *Validator) ValidateRow(row models.Item, cols []models.ColumnDefinition) models.Verdict {
	if row == nil {
		return models.Verdict{Reason: models.ReasonMalformed, Detail: "row is not an object"}
	}

	var failures []models.ColumnFailure
	coerced := make(models.Item, len(cols))
	for _, col := range cols {
		val, fail := v.checkColumn(row, col)
		if fail != nil {
			failures = append(failures, *fail)
			continue
		}
		coerced[col.Name] = val
	}

	if len(failures) > 0 {
		first := failures[0]
		return models.Verdict{
			Reason:   first.Reason,
			Column:   first.Column,
			Detail:   first.Detail,
			Failures: failures,
		}
	}
	return models.Verdict{Valid: true, Coerced: coerced}
}

func (v *Validator) checkColumn(row models.Item, col models.ColumnDefinition) (interface{}, *models.ColumnFailure) {
	raw, ok := row[col.Name]
	if !ok || raw == nil {
		return nil, &models.ColumnFailure{Column: col.Name, Reason: models.ReasonMissingField, Detail: "value missing"}
	}

	val, err := Coerce(col.DType, raw)
	if err != nil {
		return nil, &models.ColumnFailure{Column: col.Name, Reason: models.ReasonTypeCoercion, Detail: err.Error()}
	}

	if len(col.Options) > 0 && !inOptions(val, col.Options) {
		return nil, &models.ColumnFailure{Column: col.Name, Reason: models.ReasonRuleFailed,
			Detail: fmt.Sprintf("%v is not one of the allowed options", val)}
	}

	if col.Validation != "" {
		expr, err := v.rules.Compile(col.Validation)
		if err != nil {
			return nil, &models.ColumnFailure{Column: col.Name, Reason: models.ReasonRuleFailed, Detail: err.Error()}
		}
		ok, err := expr.Eval(val)
		if err != nil {
			return nil, &models.ColumnFailure{Column: col.Name, Reason: models.ReasonRuleFailed, Detail: err.Error()}
		}
		if !ok {
			return nil, &models.ColumnFailure{Column: col.Name, Reason: models.ReasonRuleFailed,
				Detail: fmt.Sprintf("%v does not satisfy %q", val, col.Validation)}
		}
	}
	return val, nil
}

func inOptions(val interface{}, options []string) bool {
	s := cast.ToString(val)
	for _, o := range options {
		if o == s {
			return true
		}
	}
	return false
}

// ValidateQA passes iff question and answer are strings longer than MinQALength.
func (v *Validator) ValidateQA(item models.Item) models.Verdict {
	if item == nil {
		return models.Verdict{Reason: models.ReasonMalformed, Detail: "pair is not an object"}
	}
	for _, key := range []string{"question", "answer"} {
		raw, ok := item[key]
		if !ok || raw == nil {
			return models.Verdict{Reason: models.ReasonMissingField, Column: key, Detail: "value missing"}
		}
		s, ok := raw.(string)
		if !ok {
			return models.Verdict{Reason: models.ReasonTypeCoercion, Column: key, Detail: fmt.Sprintf("%T is not a string", raw)}
		}
		if utf8.RuneCountInString(s) <= MinQALength {
			return models.Verdict{Reason: models.ReasonRuleFailed, Column: key, Detail: "too short"}
		}
	}
	return models.Verdict{Valid: true, Coerced: models.Item{
		"question": item["question"],
		"answer":   item["answer"],
	}}
}
