package validation

import (
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/vaisu-bhut/GeniQ/pkg/models"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		dtype models.DType
		in    interface{}
		want  interface{}
		ok    bool
	}{
		{models.DTypeInt, 42.0, int64(42), true},
		{models.DTypeInt, "42", int64(42), true},
		{models.DTypeInt, " 7 ", int64(7), true},
		{models.DTypeInt, 12.5, nil, false},
		{models.DTypeInt, "twelve", nil, false},
		{models.DTypeInt, true, nil, false},
		{models.DTypeInt, 9.223372036854776e18, nil, false},
		{models.DTypeInt, -9.223372036854776e18, int64(math.MinInt64), true},
		{models.DTypeInt, 9.223372036854775e18, int64(9223372036854774784), true},
		{models.DTypeFloat, "3.14", 3.14, true},
		{models.DTypeFloat, 2, 2.0, true},
		{models.DTypeFloat, "abc", nil, false},
		{models.DTypeBool, "YES", true, true},
		{models.DTypeBool, "0", false, true},
		{models.DTypeBool, false, false, true},
		{models.DTypeBool, "maybe", nil, false},
		{models.DTypeBool, 1.0, nil, false},
		{models.DTypeBool, 0, nil, false},
		{models.DTypeStr, 12, "12", true},
		{models.DTypeStr, "x", "x", true},
		{models.DTypeDatetime, "2024-01-15", "2024-01-15T00:00:00Z", true},
		{models.DTypeDatetime, "not a date", nil, false},
		{models.DTypeInt, nil, nil, false},
	}
	for _, tt := range tests {
		got, err := Coerce(tt.dtype, tt.in)
		if !tt.ok {
			assert.Error(t, err, "Coerce(%s, %v)", tt.dtype, tt.in)
			continue
		}
		require.NoError(t, err, "Coerce(%s, %v)", tt.dtype, tt.in)
		assert.Equal(t, tt.want, got, "Coerce(%s, %v)", tt.dtype, tt.in)
	}
}

func TestValidateRow(t *testing.T) {
	v := New(nil)
	cols := []models.ColumnDefinition{
		{Name: "age", DType: models.DTypeInt, Validation: "value>=18 and value<=35"},
		{Name: "tier", DType: models.DTypeStr, Options: []string{"gold", "silver"}},
	}

	ok := v.ValidateRow(models.Item{"age": "25", "tier": "gold"}, cols)
	require.True(t, ok.Valid)
	assert.Equal(t, int64(25), ok.Coerced["age"])

	tests := []struct {
		name   string
		row    models.Item
		column string
		reason models.VerdictReason
		fails  int
	}{
		{"missing", models.Item{"tier": "gold"}, "age", models.ReasonMissingField, 1},
		{"null", models.Item{"age": nil, "tier": "gold"}, "age", models.ReasonMissingField, 1},
		{"coercion", models.Item{"age": "old", "tier": "gold"}, "age", models.ReasonTypeCoercion, 1},
		{"rule", models.Item{"age": 50, "tier": "gold"}, "age", models.ReasonRuleFailed, 1},
		{"option", models.Item{"age": 20, "tier": "bronze"}, "tier", models.ReasonRuleFailed, 1},
		{"both", models.Item{"age": 50, "tier": "bronze"}, "age", models.ReasonRuleFailed, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.ValidateRow(tt.row, cols)
			assert.False(t, got.Valid)
			assert.Equal(t, tt.column, got.Column)
			assert.Equal(t, tt.reason, got.Reason)
			assert.Len(t, got.Failures, tt.fails)
		})
	}
}

func TestValidateRowBadExpressionFailsClosed(t *testing.T) {
	v := New(nil)
	cols := []models.ColumnDefinition{{Name: "x", DType: models.DTypeInt, Validation: "__import__('os')"}}
	got := v.ValidateRow(models.Item{"x": 1}, cols)
	assert.False(t, got.Valid)
	assert.Equal(t, models.ReasonRuleFailed, got.Reason)
}

func TestValidateQA(t *testing.T) {
	v := New(nil)
	assert.True(t, v.ValidateQA(models.Item{"question": "What is a loan?", "answer": "Borrowed money."}).Valid)

	bad := []models.Item{
		{"question": "What is a loan?"},
		{"question": "Short", "answer": "Long enough answer"},
		{"question": 12345678, "answer": "Long enough answer"},
		nil,
	}
	for _, item := range bad {
		assert.False(t, v.ValidateQA(item).Valid, "ValidateQA(%v)", item)
	}

	req := &models.QARequest{Domain: "finance", NumPairs: 1}
	assert.True(t, v.Validate(req, models.Item{"question": "What is APR?", "answer": "Annual rate."}).Valid)
}

// A row passes iff the value is present, coercible and the rule holds.
func TestValidateRowProperty(t *testing.T) {
	v := New(nil)
	cols := []models.ColumnDefinition{{Name: "n", DType: models.DTypeInt, Validation: "value % 3 == 0"}}

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(-10000, 10000).Draw(t, "n")
		asString := rapid.Bool().Draw(t, "asString")
		var raw interface{} = n
		if asString {
			raw = strconv.Itoa(n)
		}
		got := v.ValidateRow(models.Item{"n": raw}, cols)
		if want := n%3 == 0; got.Valid != want {
			t.Fatalf("ValidateRow(%v).Valid = %v, want %v", raw, got.Valid, want)
		}
	})
}
