package service

import (
	"inventaire-ai/internal/models"
	"inventaire-ai/internal/store"
	"inventaire-ai/internal/util"
)

// MultiScanProvenance is stamped into the comment of rows created by a
// multi-object rescan, so a reviewer can tell detected splits from rows a
// human entered.
const MultiScanProvenance = "added by multi-object rescan"

// MergeResults folds detections into the ledger. The first result updates
// the given record in place; every further result becomes a new row cloned
// from the freshly updated record, with a fresh id, so fields a detection
// does not carry inherit the first result's values. Only fields present in
// a result overwrite a record. The ledger is persisted before returning.
// The returned slice holds every affected record, the updated one first.
func (e *Engine) MergeResults(l *store.Ledger, rec *models.Record, results []models.ObjectResult, provenance string) ([]*models.Record, error) {
	if len(results) == 0 {
		results = []models.ObjectResult{models.ErrorResult()}
	}

	e.applyResult(rec, results[0])
	util.RecordsMergedTotal.Inc()
	affected := []*models.Record{rec}

	for _, res := range results[1:] {
		row := rec.Clone()
		row.ID = 0
		row.Thumbnail = ""
		e.applyResult(row, res)
		if provenance != "" {
			row.Comment = appendNote(row.Comment, provenance)
		}
		l.AppendRecord(row)
		util.RecordsSplitTotal.Inc()
		affected = append(affected, row)
	}

	if err := e.save(l); err != nil {
		return affected, err
	}
	return affected, nil
}

// applyResult overwrites only the fields the detection actually carries,
// then re-derives the total.
func (e *Engine) applyResult(rec *models.Record, res models.ObjectResult) {
	rec.Name = res.NameOr(rec.Name)
	rec.CategoryID = res.CategoryIDOr(rec.CategoryID)
	rec.Category = e.cats.DisplayName(rec.CategoryID)
	rec.Quantity = res.QuantityOr(rec.Quantity)
	rec.Condition = res.ConditionOr(rec.Condition)
	rec.UnitPrice = res.UnitPriceOr(rec.UnitPrice)
	rec.NewPrice = res.NewPriceOr(rec.NewPrice)
	rec.Confidence = res.ConfidenceOr(rec.Confidence)
	if res.Box != nil {
		b := *res.Box
		rec.Box = &b
	}
	rec.RecomputeTotal()
}
