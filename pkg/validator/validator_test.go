package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/catalog"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

func loadNestle(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.LoadFile("nestle", "../../catalogs/nestle.yaml")
	require.NoError(t, err)
	return cat
}

func intPtr(n int) *int { return &n }

func validationErrors(t *testing.T, err error) *ValidationErrors {
	t.Helper()
	require.Error(t, err)
	var verrs *ValidationErrors
	require.True(t, errors.As(err, &verrs), "expected *ValidationErrors, got %T", err)
	return verrs
}

func kinds(verrs *ValidationErrors) []apperrors.Kind {
	out := make([]apperrors.Kind, len(verrs.Errors))
	for i, e := range verrs.Errors {
		out[i] = e.Kind
	}
	return out
}

func TestValidate_AcceptsRankingIntent(t *testing.T) {
	cat := loadNestle(t)
	q := &models.SemanticQuery{
		Intent:           models.IntentRanking,
		PrimaryMetric:    "secondary_sales_value",
		SecondaryMetrics: []string{"secondary_sales_volume"},
		GroupBy:          []string{"brand_name"},
		Filters: []models.Filter{
			{Dimension: "state_name", Operator: models.OpIn, Values: []string{"Karnataka", "Kerala"}},
			{Dimension: "year", Operator: models.OpEq, Values: []string{"2024"}},
			{Dimension: "return_flag", Operator: models.OpEq, Values: []string{"false"}},
		},
		TimeWindow: &models.TimeWindow{Kind: models.WindowLastNWeeks, N: 6},
		Sort:       &models.Sort{By: "secondary_sales_volume", Direction: models.SortDesc},
		Limit:      intPtr(5),
	}

	out, err := Validate(cat, q, Options{})
	require.NoError(t, err)
	assert.Same(t, q, out)
}

func TestValidate_IncompatibleDimension(t *testing.T) {
	cat := loadNestle(t)

	// invoice_count does not allow product dimensions.
	q := &models.SemanticQuery{
		PrimaryMetric: "invoice_count",
		GroupBy:       []string{"state_name", "brand_name"},
	}
	_, err := Validate(cat, q, Options{})

	verrs := validationErrors(t, err)
	require.Len(t, verrs.Errors, 1)
	assert.ErrorIs(t, err, apperrors.ErrIncompatibleDimension)
	assert.Equal(t, "group_by[1]", verrs.Errors[0].Field)
	assert.Equal(t, "brand_name", verrs.Errors[0].Identifier)
}

func TestValidate_SecondaryMetricNarrowsCategories(t *testing.T) {
	cat := loadNestle(t)
	q := &models.SemanticQuery{
		PrimaryMetric:    "secondary_sales_value",
		SecondaryMetrics: []string{"margin_percentage"},
		GroupBy:          []string{"retailer_name"},
	}

	_, err := Validate(cat, q, Options{})
	verrs := validationErrors(t, err)
	assert.Equal(t, []apperrors.Kind{apperrors.KindIncompatibleDimension}, kinds(verrs))
	assert.Contains(t, verrs.Errors[0].Message, "margin_percentage")
}

func TestValidate_AccumulatesInOrder(t *testing.T) {
	cat := loadNestle(t)
	q := &models.SemanticQuery{
		Intent:        "forecast",
		PrimaryMetric: "net_trade_sales",
		GroupBy:       []string{"outlet_class", "brand_name", "brand_name"},
		Filters: []models.Filter{
			{Dimension: "zone", Operator: models.OpEq, Values: []string{"Z1"}},
			{Dimension: "year", Operator: models.OpEq, Values: []string{"twenty"}},
		},
		TimeWindow: &models.TimeWindow{Kind: "last_n_fortnights", N: 2},
		Limit:      intPtr(0),
	}

	_, err := Validate(cat, q, Options{})
	verrs := validationErrors(t, err)

	assert.Equal(t, []apperrors.Kind{
		apperrors.KindInvalidIntent,
		apperrors.KindUnknownMetric,
		apperrors.KindUnknownDimension,
		apperrors.KindIncompatibleDimension,
		apperrors.KindUnknownDimension,
		apperrors.KindAmbiguousFilterValue,
		apperrors.KindInvalidTimeWindow,
		apperrors.KindInvalidIntent,
	}, kinds(verrs))

	assert.ErrorIs(t, err, apperrors.ErrUnknownMetric)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTimeWindow)
	assert.ErrorIs(t, err, apperrors.ErrAmbiguousFilterValue)
	assert.Contains(t, err.Error(), "8 problems")
}

func TestValidate_FilterValues(t *testing.T) {
	cat := loadNestle(t)

	tests := []struct {
		name   string
		filter models.Filter
		field  string
	}{
		{"eq with two values", models.Filter{Dimension: "state_name", Operator: models.OpEq, Values: []string{"a", "b"}}, "filters[0].values"},
		{"in without values", models.Filter{Dimension: "state_name", Operator: models.OpIn}, "filters[0].values"},
		{"between with one value", models.Filter{Dimension: "year", Operator: models.OpBetween, Values: []string{"2023"}}, "filters[0].values"},
		{"reversed between", models.Filter{Dimension: "year", Operator: models.OpBetween, Values: []string{"2024", "2020"}}, "filters[0].values"},
		{"unknown operator", models.Filter{Dimension: "state_name", Operator: "like", Values: []string{"K%"}}, "filters[0].operator"},
		{"integer type", models.Filter{Dimension: "year", Operator: models.OpEq, Values: []string{"2024.5"}}, "filters[0].values[0]"},
		{"boolean type", models.Filter{Dimension: "return_flag", Operator: models.OpEq, Values: []string{"maybe"}}, "filters[0].values[0]"},
		{"boolean range", models.Filter{Dimension: "return_flag", Operator: models.OpGt, Values: []string{"true"}}, "filters[0].operator"},
		{"not an allowed value", models.Filter{Dimension: "channel_name", Operator: models.OpEq, Values: []string{"Wholesale"}}, "filters[0].values[0]"},
		{"empty value", models.Filter{Dimension: "state_name", Operator: models.OpEq, Values: []string{"  "}}, "filters[0].values[0]"},
		{"nul byte", models.Filter{Dimension: "state_name", Operator: models.OpEq, Values: []string{"Kar\x00nataka"}}, "filters[0].values[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &models.SemanticQuery{PrimaryMetric: "secondary_sales_value", Filters: []models.Filter{tt.filter}}
			_, err := Validate(cat, q, Options{})
			verrs := validationErrors(t, err)
			require.Len(t, verrs.Errors, 1, err.Error())
			assert.Equal(t, apperrors.KindAmbiguousFilterValue, verrs.Errors[0].Kind)
			assert.Equal(t, tt.field, verrs.Errors[0].Field)
			assert.False(t, verrs.SecurityRelevant())
		})
	}
}

func TestValidate_InjectionIsSecurityRelevant(t *testing.T) {
	cat := loadNestle(t)
	q := &models.SemanticQuery{
		PrimaryMetric: "secondary_sales_value",
		Filters: []models.Filter{
			{Dimension: "brand_name", Operator: models.OpIn, Values: []string{"Maggi", "' OR '1'='1"}},
		},
	}

	_, err := Validate(cat, q, Options{})
	verrs := validationErrors(t, err)
	assert.True(t, verrs.SecurityRelevant())
	require.Len(t, verrs.Injection, 1)
	assert.Equal(t, "filters[0].values[1]", verrs.Injection[0].Field)
	assert.ErrorIs(t, err, apperrors.ErrAmbiguousFilterValue)
}

func TestValidate_FilterNeedsJoinableDimension(t *testing.T) {
	cat := loadNestle(t)

	// Filters may use a category the metric cannot be grouped by.
	q := &models.SemanticQuery{
		PrimaryMetric: "invoice_count",
		Filters:       []models.Filter{{Dimension: "brand_name", Operator: models.OpEq, Values: []string{"Maggi"}}},
	}
	_, err := Validate(cat, q, Options{})
	assert.NoError(t, err)
}

func TestValidate_TimeWindows(t *testing.T) {
	cat := loadNestle(t)

	valid := []models.TimeWindow{
		{Kind: models.WindowLastNDays, N: 30},
		{Kind: models.WindowLastNMonths, N: 3},
		{Kind: models.WindowThisMonth},
		{Kind: models.WindowThisQuarter},
		{Kind: models.WindowCustom, Start: "2024-01-01", End: "2024-01-01"},
	}
	for _, tw := range valid {
		q := &models.SemanticQuery{PrimaryMetric: "secondary_sales_value", TimeWindow: &tw}
		_, err := Validate(cat, q, Options{})
		assert.NoError(t, err, tw.Kind)
	}

	invalid := []models.TimeWindow{
		{Kind: models.WindowLastNWeeks},
		{Kind: models.WindowLastNDays, N: 400},
		{Kind: models.WindowThisYear, N: 2},
		{Kind: models.WindowCustom, Start: "2024-02-01", End: "2024-01-01"},
		{Kind: models.WindowCustom, Start: "01/02/2024", End: "2024-03-01"},
		{Kind: models.WindowThisMonth, Start: "2024-01-01"},
		{Kind: "yesterday"},
	}
	for _, tw := range invalid {
		q := &models.SemanticQuery{PrimaryMetric: "secondary_sales_value", TimeWindow: &tw}
		_, err := Validate(cat, q, Options{})
		assert.ErrorIs(t, err, apperrors.ErrInvalidTimeWindow, "%+v", tw)
	}
}

func TestValidate_Sort(t *testing.T) {
	cat := loadNestle(t)

	base := func(s *models.Sort) *models.SemanticQuery {
		return &models.SemanticQuery{
			PrimaryMetric: "secondary_sales_value",
			GroupBy:       []string{"brand_name"},
			Sort:          s,
		}
	}

	for _, s := range []*models.Sort{
		{Direction: models.SortDesc},
		{By: "brand_name", Direction: models.SortAsc},
		{By: "secondary_sales_value"},
	} {
		_, err := Validate(cat, base(s), Options{})
		assert.NoError(t, err)
	}

	_, err := Validate(cat, base(&models.Sort{By: "state_name"}), Options{})
	assert.ErrorIs(t, err, apperrors.ErrUnknownDimension)

	_, err = Validate(cat, base(&models.Sort{By: "discount_amount"}), Options{})
	assert.ErrorIs(t, err, apperrors.ErrUnknownMetric)

	_, err = Validate(cat, base(&models.Sort{Direction: "sideways"}), Options{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidIntent)
}

func TestValidate_Limit(t *testing.T) {
	cat := loadNestle(t)
	q := &models.SemanticQuery{PrimaryMetric: "secondary_sales_value", Limit: intPtr(50)}

	_, err := Validate(cat, q, Options{MaxLimit: 100})
	assert.NoError(t, err)

	_, err = Validate(cat, q, Options{MaxLimit: 10})
	assert.ErrorIs(t, err, apperrors.ErrInvalidIntent)
}

func TestValidate_SecondaryMetrics(t *testing.T) {
	cat := loadNestle(t)
	q := &models.SemanticQuery{
		PrimaryMetric:    "secondary_sales_value",
		SecondaryMetrics: []string{"secondary_sales_value", "cases_sold"},
	}

	_, err := Validate(cat, q, Options{})
	verrs := validationErrors(t, err)
	assert.Equal(t, []apperrors.Kind{apperrors.KindIncompatibleMetric, apperrors.KindUnknownMetric}, kinds(verrs))
}

func TestValidate_NilQuery(t *testing.T) {
	_, err := Validate(loadNestle(t), nil, Options{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidIntent)
}

func TestValidate_DoesNotModifyInput(t *testing.T) {
	cat := loadNestle(t)
	q := &models.SemanticQuery{
		PrimaryMetric: "secondary_sales_value",
		GroupBy:       []string{"brand_name"},
		Filters:       []models.Filter{{Dimension: "state_name", Operator: models.OpEq, Values: []string{"Goa"}}},
	}
	before := q.Clone()

	_, err := Validate(cat, q, Options{})
	require.NoError(t, err)
	assert.Equal(t, before, q)
}
