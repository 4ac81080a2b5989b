package quality

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaisu-bhut/GeniQ/pkg/models"
)

func TestTabularReport(t *testing.T) {
	a := New(DefaultConfig())
	cols := []models.ColumnDefinition{
		{Name: "customer_name", DType: models.DTypeStr},
		{Name: "email", DType: models.DTypeStr},
		{Name: "amount", DType: models.DTypeFloat},
		{Name: "age", DType: models.DTypeInt},
	}
	data := []models.Item{
		{"customer_name": "Ann", "email": "a@x.test", "amount": 10.0, "age": int64(20)},
		{"customer_name": "Bob", "email": "b@x.test", "amount": 20.0, "age": int64(30)},
		{"customer_name": "Cy", "amount": 30.0, "age": int64(40)},
	}

	rep := a.Tabular(data, cols, "Customer purchase history", map[string]int{"age": 2})

	assert.InDelta(t, 1-1.0/12, rep.CompletenessScore, 1e-9)
	assert.Equal(t, 1, rep.MissingValues["email"])
	assert.Equal(t, 2, rep.Validity["age"])
	assert.Equal(t, 0, rep.Validity["amount"])
	assert.Equal(t, 1.0, rep.UseCaseSpecificity)

	age := rep.Distributions["age"]
	assert.Equal(t, 20.0, age.Min)
	assert.Equal(t, 40.0, age.Max)
	assert.Equal(t, 30.0, age.Mean)
	assert.InDelta(t, 10.0, age.Std, 1e-9)
	_, ok := rep.Distributions["email"]
	assert.False(t, ok)
}

func TestTabularEmptyAndSingle(t *testing.T) {
	a := New(DefaultConfig())
	cols := []models.ColumnDefinition{{Name: "x", DType: models.DTypeInt}}

	rep := a.Tabular(nil, cols, "", nil)
	assert.Equal(t, 1.0, rep.CompletenessScore)
	assert.Empty(t, rep.Distributions)
	assert.Equal(t, 0.5, rep.UseCaseSpecificity)

	rep = a.Tabular([]models.Item{{"x": int64(4)}}, cols, "", nil)
	assert.Equal(t, 0.0, rep.Distributions["x"].Std)
}

func TestSpecificity(t *testing.T) {
	a := New(DefaultConfig())
	nameEmail := []models.ColumnDefinition{{Name: "name", DType: models.DTypeStr}, {Name: "email", DType: models.DTypeStr}}
	assert.InDelta(t, 0.8, a.Tabular(nil, nameEmail, "marketing", nil).UseCaseSpecificity, 1e-9)

	price := []models.ColumnDefinition{{Name: "unit_price", DType: models.DTypeFloat}}
	assert.InDelta(t, 0.7, a.Tabular(nil, price, "Online orders", nil).UseCaseSpecificity, 1e-9)
	assert.InDelta(t, 0.5, a.Tabular(nil, price, "inventory", nil).UseCaseSpecificity, 1e-9)
}

func TestQADomainCoverage(t *testing.T) {
	a := New(DefaultConfig())
	data := make([]models.Item, 10)
	for i := range data {
		q := fmt.Sprintf("What is question number %d about?", i)
		if i < 2 {
			q = fmt.Sprintf("How does a loan work, case %d?", i)
		}
		data[i] = models.Item{"question": q, "answer": "A sufficiently long answer."}
	}

	rep := a.QA(data, "finance")
	assert.InDelta(t, 0.2, rep.DomainCoverage, 1e-9)
	assert.Equal(t, 1.0, rep.QuestionUniqueness)
	assert.Equal(t, 1.0, rep.AnswerCompleteness)
}

func TestQAMetrics(t *testing.T) {
	a := New(DefaultConfig())
	data := []models.Item{
		{"question": "What is a stock?", "answer": "Equity."},
		{"question": "What is a stock?", "answer": "A share of ownership."},
	}
	rep := a.QA(data, "Finance")
	assert.Equal(t, 0.5, rep.QuestionUniqueness)
	assert.Equal(t, 0.5, rep.AnswerCompleteness)
	assert.Equal(t, 1.0, rep.DomainCoverage)
	assert.Equal(t, 16.0, rep.AverageQuestionLength)

	empty := a.QA(nil, "finance")
	assert.Zero(t, empty.DomainCoverage)
	assert.Zero(t, empty.QuestionUniqueness)

	assert.Zero(t, a.QA(data, "astrology").DomainCoverage)
}

func TestConfigIsCopied(t *testing.T) {
	cfg := DefaultConfig()
	a := New(cfg)
	cfg.DomainKeywords["finance"][0] = "zzz"
	cfg.DomainKeywords["space"] = []string{"rocket"}

	rep := a.QA([]models.Item{{"question": "Buy a stock?", "answer": "maybe"}}, "finance")
	require.Equal(t, 1.0, rep.DomainCoverage)
	assert.Zero(t, a.QA([]models.Item{{"question": "rocket?", "answer": "yes"}}, "space").DomainCoverage)
}
