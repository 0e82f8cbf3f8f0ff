package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAggregation(t *testing.T) {
	tests := []struct {
		name      string
		expr      string
		wantNum   AggTerm
		wantDen   *AggTerm
		wantScale float64
	}{
		{name: "sum", expr: "SUM(net_value)", wantNum: AggTerm{AggSum, "net_value"}},
		{name: "lower case", expr: "sum( net_value )", wantNum: AggTerm{AggSum, "net_value"}},
		{name: "count star", expr: "COUNT(*)", wantNum: AggTerm{AggCount, "*"}},
		{name: "count distinct", expr: "COUNT(DISTINCT invoice_key)", wantNum: AggTerm{AggCountDistinct, "invoice_key"}},
		{name: "average", expr: "AVG(net_value)", wantNum: AggTerm{AggAvg, "net_value"}},
		{
			name:    "ratio",
			expr:    "SUM(margin_amount) / SUM(net_value)",
			wantNum: AggTerm{AggSum, "margin_amount"},
			wantDen: &AggTerm{AggSum, "net_value"},
		},
		{
			name:      "scaled ratio in parens",
			expr:      "(SUM(margin_amount) / SUM(net_value)) * 100",
			wantNum:   AggTerm{AggSum, "margin_amount"},
			wantDen:   &AggTerm{AggSum, "net_value"},
			wantScale: 100,
		},
		{
			name:      "scaled ratio without parens",
			expr:      "SUM(scheme_cost) / SUM(trade_value) * 100",
			wantNum:   AggTerm{AggSum, "scheme_cost"},
			wantDen:   &AggTerm{AggSum, "trade_value"},
			wantScale: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg, err := ParseAggregation(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.wantNum, agg.Numerator)
			assert.Equal(t, tt.wantDen, agg.Denominator)
			assert.Equal(t, tt.wantScale, agg.Scale)
		})
	}
}

func TestParseAggregation_Rejects(t *testing.T) {
	for _, expr := range []string{
		"",
		"net_value",
		"SUM(net_value); DROP TABLE x",
		"SUM(a) / SUM(b) / SUM(c)",
		"SUM(DISTINCT net_value)",
		"SUM(*)",
		"COUNT(DISTINCT *)",
		"SUM(net_value) * 100",
		"MEDIAN(net_value)",
		"SUM(net_value + 1)",
	} {
		t.Run(expr, func(t *testing.T) {
			_, err := ParseAggregation(expr)
			assert.Error(t, err)
		})
	}
}

func TestAggregation_ColumnsAndString(t *testing.T) {
	agg, err := ParseAggregation("(SUM(margin_amount) / COUNT(*)) * 100")
	require.NoError(t, err)

	assert.True(t, agg.IsRatio())
	assert.Equal(t, []string{"margin_amount"}, agg.Columns())
	assert.Equal(t, "(SUM(margin_amount) / COUNT(*)) * 100", agg.String())
}
