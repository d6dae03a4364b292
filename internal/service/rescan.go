package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"inventaire-ai/internal/models"
	"inventaire-ai/internal/progress"
	"inventaire-ai/internal/store"
	"inventaire-ai/internal/util"
	"inventaire-ai/internal/vision"

	"go.uber.org/zap"
)

// ProcessPendingRemarks re-analyzes every record carrying an operator
// remark in pending_remark: the remark steers the model, present fields of
// the reply overwrite the record, and the remark is archived into
// processed_remark. A remark is consumed only when its re-analysis
// succeeds; on failure the record keeps both its fields and the remark, so
// the next pass retries it. Records whose photo is gone keep their remark
// pending too. The ledger is saved after every record. Returns the number
// of remarks applied.
func (e *Engine) ProcessPendingRemarks(ctx context.Context, l *store.Ledger, dir string) (int, error) {
	ctx, span := util.StartSpan(ctx, "engine.ProcessPendingRemarks")
	defer span.End()

	var pending []*models.Record
	for _, r := range l.Records {
		if r.PendingRemark == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, r.SourceFile)); err != nil {
			e.logger.Warn("Remark skipped, photo missing",
				zap.String("file", r.SourceFile))
			continue
		}
		pending = append(pending, r)
	}

	done := 0
	for i, rec := range pending {
		if err := ctx.Err(); err != nil {
			return done, err
		}

		remark := rec.PendingRemark
		results, err := e.analyzeFile(ctx, filepath.Join(dir, rec.SourceFile), vision.Request{
			Hint:       remark,
			Previous:   rec,
			Categories: e.cats.PromptContext(),
		})
		if err != nil {
			e.logger.Warn("Remark rescan failed, remark kept for retry",
				zap.String("file", rec.SourceFile), zap.Error(err))
			e.events.Publish(progress.Event{Stage: progress.StageRescan, File: rec.SourceFile, Err: err})
			continue
		}

		rec.ProcessedRemark = appendRemark(rec.ProcessedRemark, remark)
		rec.PendingRemark = ""
		if _, err := e.MergeResults(l, rec, results[:1], ""); err != nil {
			return done, fmt.Errorf("failed to apply remark for %s: %w", rec.SourceFile, err)
		}
		done++

		e.events.Publish(progress.Event{
			Stage: progress.StageRescan,
			File:  rec.SourceFile,
			Done:  i + 1,
			Total: len(pending),
		})
	}
	return done, nil
}

func appendRemark(archive, remark string) string {
	if archive == "" {
		return remark
	}
	return archive + " | " + remark
}
