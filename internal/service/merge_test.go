package service

import (
	"path/filepath"
	"testing"

	"inventaire-ai/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestMergeRecomputesTotal(t *testing.T) {
	e, _ := newTestEngine(testConfig(), &stubAnalyzer{})
	l := e.store.NewLedger(filepath.Join(t.TempDir(), "x.csv"))
	l.AppendRecord(&models.Record{SourceFile: "a.jpg"})

	res := det("crate", 90)
	qty := 4
	res.Quantity = &qty
	res.UnitPrice = price("7.25")

	affected, err := e.MergeResults(l, l.Records[0], []models.ObjectResult{res}, "")
	require.NoError(t, err)
	require.Len(t, affected, 1)

	assert.True(t, affected[0].TotalPrice.Equal(decimal.RequireFromString("29.00")))
}

func TestMergeTotalIsZeroForZeroQuantity(t *testing.T) {
	e, _ := newTestEngine(testConfig(), &stubAnalyzer{})
	l := e.store.NewLedger(filepath.Join(t.TempDir(), "x.csv"))
	l.AppendRecord(&models.Record{SourceFile: "a.jpg"})

	res := det("crate", 90)
	qty := 0
	res.Quantity = &qty
	res.UnitPrice = price("9.99")

	affected, err := e.MergeResults(l, l.Records[0], []models.ObjectResult{res}, "")
	require.NoError(t, err)
	assert.True(t, affected[0].TotalPrice.IsZero())
}

func TestMergeTotalSurvivesLargeValues(t *testing.T) {
	e, _ := newTestEngine(testConfig(), &stubAnalyzer{})
	l := e.store.NewLedger(filepath.Join(t.TempDir(), "x.csv"))
	l.AppendRecord(&models.Record{SourceFile: "a.jpg"})

	res := det("pallet", 90)
	qty := 100000
	res.Quantity = &qty
	res.UnitPrice = price("19999.99")

	affected, err := e.MergeResults(l, l.Records[0], []models.ObjectResult{res}, "")
	require.NoError(t, err)
	assert.True(t, affected[0].TotalPrice.Equal(decimal.RequireFromString("1999999000.00")))
}

func TestMergeSplitsMultipleResults(t *testing.T) {
	e, _ := newTestEngine(testConfig(), &stubAnalyzer{})
	l := e.store.NewLedger(filepath.Join(t.TempDir(), "x.csv"))
	l.AppendRecord(&models.Record{SourceFile: "a.jpg"})
	l.AppendRecord(&models.Record{SourceFile: "b.jpg"})

	results := []models.ObjectResult{det("fork", 90), det("knife", 85), det("spoon", 80)}
	affected, err := e.MergeResults(l, l.Records[0], results, MultiScanProvenance)
	require.NoError(t, err)
	require.Len(t, affected, 3)

	seen := map[int64]bool{}
	for _, r := range affected {
		assert.Equal(t, "a.jpg", r.SourceFile, "split rows stay bound to the same photo")
		assert.False(t, seen[r.ID], "ids must be distinct")
		seen[r.ID] = true
	}

	// New rows continue past the highest existing id, not past the photo's.
	assert.Equal(t, int64(3), affected[1].ID)
	assert.Equal(t, int64(4), affected[2].ID)

	assert.Empty(t, affected[0].Comment, "the updated row carries no provenance")
	assert.Contains(t, affected[1].Comment, MultiScanProvenance)
	assert.Contains(t, affected[2].Comment, MultiScanProvenance)

	assert.Len(t, l.Siblings("a.jpg"), 3)
}

func TestMergeSplitRowsInheritUpdatedFields(t *testing.T) {
	e, _ := newTestEngine(testConfig(), &stubAnalyzer{})
	l := e.store.NewLedger(filepath.Join(t.TempDir(), "x.csv"))
	l.AppendRecord(&models.Record{SourceFile: "a.jpg"})

	first := det("fork", 90)
	cond := models.ConditionUsed
	first.Condition = &cond
	first.UnitPrice = price("3.00")

	// The second detection carries a name only.
	name := "knife"
	second := models.ObjectResult{Name: &name}

	affected, err := e.MergeResults(l, l.Records[0], []models.ObjectResult{first, second}, "")
	require.NoError(t, err)
	require.Len(t, affected, 2)

	row := affected[1]
	assert.Equal(t, "knife", row.Name)
	assert.Equal(t, models.ConditionUsed, row.Condition, "absent fields come from the updated first row")
	assert.True(t, row.UnitPrice.Equal(decimal.RequireFromString("3.00")))
	assert.Equal(t, 1, row.Quantity)
	assert.Equal(t, 90, row.Confidence)
	assert.True(t, row.TotalPrice.Equal(decimal.RequireFromString("3.00")))
}

func TestMergeAppliesPresentFieldsOnly(t *testing.T) {
	e, _ := newTestEngine(testConfig(), &stubAnalyzer{})
	l := e.store.NewLedger(filepath.Join(t.TempDir(), "x.csv"))
	l.AppendRecord(&models.Record{
		SourceFile: "a.jpg",
		Name:       "old name",
		Quantity:   3,
		UnitPrice:  decimal.RequireFromString("5.00"),
		Condition:  models.ConditionUsed,
		Confidence: 60,
	})

	name := "corrected name"
	res := models.ObjectResult{Name: &name}

	affected, err := e.MergeResults(l, l.Records[0], []models.ObjectResult{res}, "")
	require.NoError(t, err)

	r := affected[0]
	assert.Equal(t, "corrected name", r.Name)
	assert.Equal(t, 3, r.Quantity, "absent fields keep their values")
	assert.Equal(t, models.ConditionUsed, r.Condition)
	assert.Equal(t, 60, r.Confidence)
	assert.True(t, r.TotalPrice.Equal(decimal.RequireFromString("15.00")))
}

func TestMergeResolvesCategoryName(t *testing.T) {
	e, _ := newTestEngine(testConfig(), &stubAnalyzer{})
	l := e.store.NewLedger(filepath.Join(t.TempDir(), "x.csv"))
	l.AppendRecord(&models.Record{SourceFile: "a.jpg"})

	res := det("hammer", 90)
	catID := "T01"
	res.CategoryID = &catID

	affected, err := e.MergeResults(l, l.Records[0], []models.ObjectResult{res}, "")
	require.NoError(t, err)
	assert.Equal(t, "T01", affected[0].CategoryID)
	assert.Equal(t, "Tools", affected[0].Category)
}

func TestMergeEmptyResultsFallsBackToSentinel(t *testing.T) {
	e, _ := newTestEngine(testConfig(), &stubAnalyzer{})
	l := e.store.NewLedger(filepath.Join(t.TempDir(), "x.csv"))
	l.AppendRecord(&models.Record{SourceFile: "a.jpg"})

	affected, err := e.MergeResults(l, l.Records[0], nil, "")
	require.NoError(t, err)
	assert.Equal(t, models.ErrorResultName, affected[0].Name)
}
