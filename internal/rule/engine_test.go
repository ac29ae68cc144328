package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/model"
)

func bankFields() FieldTypes {
	return FieldTypes{
		Numeric: []string{"amount", "balance"},
		Text:    []string{"type", "description"},
	}
}

func depositLine() model.DecodedLine {
	return model.DecodedLine{
		LineNumber: 2,
		RawText:    "2024-03-01,deposit,100.00,100.00",
		Columns: map[string]string{
			"date": "2024-03-01", "type": "deposit", "amount": "100.00", "balance": "100.00",
		},
	}
}

func depositRule() model.Rule {
	return model.Rule{
		Name:   "deposit to cash",
		Filter: []model.FilterExpression{{Field: "type", Op: model.FilterEquals, Value: "deposit"}},
		Result: []model.ResultTemplate{
			{
				Reason: model.Literal("income"),
				Type:   model.Literal("account"),
				Asset:  model.Literal("EUR"),
				Amount: model.FromColumn("amount"),
			},
		},
	}
}

func TestEvaluateFirstMatchWins(t *testing.T) {
	catchAll := model.Rule{
		Name:   "catch all",
		Filter: []model.FilterExpression{{Field: "type", Op: model.FilterContainsIgnoreCase, Value: ""}},
		Result: []model.ResultTemplate{
			{
				Reason: model.Literal("other"),
				Type:   model.Literal("account"),
				Asset:  model.Literal("EUR"),
				Amount: model.FromColumn("amount"),
			},
		},
	}

	engine := NewEngine([]model.Rule{depositRule(), catchAll}, bankFields())
	transfers, err := engine.Evaluate(depositLine())
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, model.ReasonIncome, transfers[0].Reason)
	assert.Equal(t, int64(10000), transfers[0].Amount)
}

func TestEvaluateNoMatch(t *testing.T) {
	engine := NewEngine([]model.Rule{depositRule()}, bankFields())

	line := depositLine()
	line.Columns["type"] = "mystery"

	transfers, err := engine.Evaluate(line)
	require.NoError(t, err)
	assert.Nil(t, transfers)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	engine := NewEngine([]model.Rule{depositRule()}, bankFields())

	first, err := engine.Evaluate(depositLine())
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := engine.Evaluate(depositLine())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestFilterOperators(t *testing.T) {
	line := depositLine()

	tests := []struct {
		name   string
		filter model.FilterExpression
		want   bool
	}{
		{name: "gt true", filter: model.FilterExpression{Field: "amount", Op: model.FilterGreaterThan, Value: "50"}, want: true},
		{name: "gt false", filter: model.FilterExpression{Field: "amount", Op: model.FilterGreaterThan, Value: "100"}, want: false},
		{name: "lt true", filter: model.FilterExpression{Field: "amount", Op: model.FilterLessThan, Value: "200"}, want: true},
		{name: "eq case sensitive", filter: model.FilterExpression{Field: "type", Op: model.FilterEquals, Value: "Deposit"}, want: false},
		{name: "ieq", filter: model.FilterExpression{Field: "type", Op: model.FilterEqualsIgnoreCase, Value: "Deposit"}, want: true},
		{name: "contains", filter: model.FilterExpression{Field: "type", Op: model.FilterContains, Value: "pos"}, want: true},
		{name: "icontains", filter: model.FilterExpression{Field: "type", Op: model.FilterContainsIgnoreCase, Value: "DEPO"}, want: true},
		{name: "missing column", filter: model.FilterExpression{Field: "nope", Op: model.FilterEquals, Value: "x"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(nil, bankFields())
			got, err := engine.predicate(tt.filter, line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNumericFilterOnTextFieldFails(t *testing.T) {
	engine := NewEngine([]model.Rule{{
		Name:   "bad",
		Filter: []model.FilterExpression{{Field: "type", Op: model.FilterGreaterThan, Value: "1"}},
		Result: depositRule().Result,
	}}, bankFields())

	_, err := engine.Evaluate(depositLine())
	assert.Error(t, err)
}

func TestCopyInverseField(t *testing.T) {
	tmpl := model.ResultTemplate{
		Reason: model.Literal("tax"),
		Type:   model.Literal("statement"),
		Asset:  model.Literal("USD"),
		Amount: model.FromColumnInverse("amount"),
	}

	line := model.DecodedLine{Columns: map[string]string{"amount": "-7.50"}}
	transfer, err := Instantiate(tmpl, line)
	require.NoError(t, err)
	assert.Equal(t, int64(750), transfer.Amount)
}

func TestInstantiateDataAndTags(t *testing.T) {
	tmpl := model.ResultTemplate{
		Reason: model.Literal("trade"),
		Type:   model.Literal("stock"),
		Asset:  model.FromColumn("isin"),
		Amount: model.FromColumn("amount"),
		Tags:   []string{"broker"},
		Data:   map[string]model.FieldSource{"security": model.FromColumn("security")},
	}

	line := model.DecodedLine{Columns: map[string]string{
		"isin": "US0378331005", "amount": "-355.00", "security": "Apple Inc",
	}}

	transfer, err := Instantiate(tmpl, line)
	require.NoError(t, err)
	assert.Equal(t, "US0378331005", transfer.Asset)
	assert.Equal(t, []string{"broker"}, transfer.Tags)
	assert.Equal(t, model.String("Apple Inc"), transfer.Data["security"])
}

func TestEditorElementCarriesFieldOptions(t *testing.T) {
	engine := NewEngine(nil, bankFields())
	line := depositLine()

	q := engine.EditorElement("seg-1", []model.DecodedLine{line}, nil)
	require.NotNil(t, q)
	assert.Equal(t, model.ElementRuleEditor, q.Element.Type)
	assert.Equal(t, []string{"amount", "balance"}, q.Element.NumericFields)
	assert.Equal(t, []string{"type", "description"}, q.Element.TextFields)
	require.Len(t, q.Element.Lines, 1)
	assert.Equal(t, line.Columns, q.Element.Lines[0].Columns)
}
