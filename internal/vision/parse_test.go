package vision

import (
	"testing"

	"inventaire-ai/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResultsFencedArray(t *testing.T) {
	reply := "Here is what I found:\n```json\n" +
		`[{"name":"hammer","category_id":"T01","quantity":1,"condition":"used",` +
		`"unit_price":12.5,"new_price":30,"confidence":92,"bounding_box":[100,200,800,900]}]` +
		"\n```\n"

	results, err := ParseResults(reply)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "hammer", r.NameOr(""))
	assert.Equal(t, "T01", r.CategoryIDOr(""))
	assert.Equal(t, 1, r.QuantityOr(0))
	assert.Equal(t, models.ConditionUsed, r.ConditionOr(""))
	assert.True(t, r.UnitPriceOr(decimal.Zero).Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, 92, r.ConfidenceOr(0))
	require.NotNil(t, r.Box)
	assert.Equal(t, models.BoundingBox{YMin: 100, XMin: 200, YMax: 800, XMax: 900}, *r.Box)
}

func TestParseResultsSingleObject(t *testing.T) {
	results, err := ParseResults(`{"name":"chair","confidence":70}`)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "chair", results[0].NameOr(""))
}

func TestParseResultsLooseTypes(t *testing.T) {
	reply := `[{"name":"lamp","quantity":"2","unit_price":"15,50","confidence":"88.0",` +
		`"category_id":3,"bounding_box":"[10, 20, 30, 40]","condition":"Used"}]`

	results, err := ParseResults(reply)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, 2, r.QuantityOr(0))
	assert.True(t, r.UnitPriceOr(decimal.Zero).Equal(decimal.RequireFromString("15.5")))
	assert.Equal(t, 88, r.ConfidenceOr(0))
	assert.Equal(t, "3", r.CategoryIDOr(""))
	assert.Equal(t, models.ConditionUsed, r.ConditionOr(""))
	require.NotNil(t, r.Box)
	assert.Equal(t, 10, r.Box.YMin)
}

func TestParseResultsMissingFieldsStayNil(t *testing.T) {
	results, err := ParseResults(`[{"name":"table"}]`)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Nil(t, r.Quantity)
	assert.Nil(t, r.Confidence)
	assert.Nil(t, r.UnitPrice)
	assert.Nil(t, r.Box)
	assert.Equal(t, 1, r.QuantityOr(1))
}

func TestParseResultsMalformedValueDoesNotSinkObject(t *testing.T) {
	results, err := ParseResults(`[{"name":"sofa","unit_price":"n/a","quantity":1}]`)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Nil(t, results[0].UnitPrice)
	assert.Equal(t, 1, results[0].QuantityOr(0))
}

func TestParseResultsUnknownCondition(t *testing.T) {
	results, err := ParseResults(`[{"name":"vase","condition":"mint"}]`)
	require.NoError(t, err)
	assert.Equal(t, models.ConditionUnknown, results[0].ConditionOr(""))
}

func TestParseResultsNoJSON(t *testing.T) {
	_, err := ParseResults("I could not identify anything.")
	assert.Error(t, err)
}

func TestParseResultsMultipleObjects(t *testing.T) {
	reply := `[{"name":"fork"},{"name":"knife"},{"name":"spoon"}]`
	results, err := ParseResults(reply)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "knife", results[1].NameOr(""))
}
