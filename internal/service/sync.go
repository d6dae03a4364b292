package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"inventaire-ai/internal/models"
	"inventaire-ai/internal/progress"
	"inventaire-ai/internal/scanner"
	"inventaire-ai/internal/store"
	"inventaire-ai/internal/util"
	"inventaire-ai/internal/vision"

	"go.uber.org/zap"
)

// ScanOptions tunes a batch pass over a target directory.
type ScanOptions struct {
	// TargetName is the object every photo in the lot is expected to show.
	// When set, analyzed files are renamed to "<quantity>_<target>".
	TargetName string
	// Context overrides the folder's context.txt note.
	Context string
}

// Reconcile brings the ledger in line with the directory: every image with
// no row gets a placeholder at confidence zero. Existing rows are never
// touched, so reconciliation is idempotent. Each placeholder is persisted
// as soon as it is appended, so an interrupt mid-discovery loses nothing.
func (e *Engine) Reconcile(l *store.Ledger, images []string) (int, error) {
	have := make(map[string]bool)
	for _, r := range l.Records {
		have[r.SourceFile] = true
	}

	added := 0
	for _, img := range images {
		name := filepath.Base(img)
		if have[name] {
			continue
		}
		have[name] = true
		l.AppendRecord(&models.Record{
			SourceFile: name,
			Confidence: models.ConfidenceUnanalyzed,
		})
		added++
		if err := e.save(l); err != nil {
			return added, err
		}
	}

	if added > 0 {
		e.logger.Info("New images discovered", zap.Int("count", added), zap.String("ledger", l.Path))
	}
	return added, nil
}

// NeedsAnalysis reports whether the batch pass should analyze this record:
// it has no usable result yet and its source file still exists.
func (e *Engine) NeedsAnalysis(r *models.Record, dir string) bool {
	if r.Analyzed() {
		return false
	}
	_, err := os.Stat(filepath.Join(dir, r.SourceFile))
	return err == nil
}

// ProcessAll runs the full batch pass: reconcile, then analyze every record
// that needs it in stable filename order. The ledger is saved after every
// row so an interrupt loses at most the row in flight. Cancellation is
// honored between rows.
func (e *Engine) ProcessAll(ctx context.Context, target *scanner.Target, opts ScanOptions) error {
	ctx, span := util.StartSpan(ctx, "engine.ProcessAll")
	defer span.End()

	l, err := e.loadOrCreate(target.LedgerPath())
	if err != nil {
		return err
	}
	if _, err := e.Reconcile(l, target.Images); err != nil {
		return err
	}

	folderContext := opts.Context
	if folderContext == "" {
		folderContext = readFolderContext(target.Dir)
	}

	pending := e.pendingRecords(l, target.Dir)
	e.events.Publish(progress.Event{Stage: progress.StageDiscovery, Total: len(pending),
		Message: fmt.Sprintf("%d images to analyze", len(pending))})

	for i, rec := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.processRecord(ctx, l, rec, target.Dir, folderContext, opts)
		e.events.Publish(progress.Event{
			Stage: progress.StageAnalysis,
			File:  rec.SourceFile,
			Done:  i + 1,
			Total: len(pending),
		})
	}
	return nil
}

func (e *Engine) loadOrCreate(path string) (*store.Ledger, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return e.store.NewLedger(path), nil
	}
	return e.store.Load(path)
}

// pendingRecords returns the records the batch pass still has to analyze,
// in stable filename order.
func (e *Engine) pendingRecords(l *store.Ledger, dir string) []*models.Record {
	var pending []*models.Record
	for _, r := range l.Records {
		if e.NeedsAnalysis(r, dir) {
			pending = append(pending, r)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].SourceFile != pending[j].SourceFile {
			return pending[i].SourceFile < pending[j].SourceFile
		}
		return pending[i].ID < pending[j].ID
	})
	return pending
}

// processRecord analyzes one photo and folds the outcome into the ledger.
// Failures degrade to the error sentinel; they never abort the batch.
func (e *Engine) processRecord(ctx context.Context, l *store.Ledger, rec *models.Record, dir, folderContext string, opts ScanOptions) {
	path := filepath.Join(dir, rec.SourceFile)

	if err := e.images.CompressInPlace(path); err != nil {
		e.logger.Warn("Compression failed", zap.String("file", rec.SourceFile), zap.Error(err))
	}

	results, err := e.analyzeFile(ctx, path, vision.Request{
		Target:     opts.TargetName,
		Categories: e.cats.PromptContext(),
		Context:    folderContext,
	})
	if err != nil {
		e.logger.Warn("Analysis failed", zap.String("file", rec.SourceFile), zap.Error(err))
		results = []models.ObjectResult{models.ErrorResult()}
	}

	snapshot := rec.Clone()
	affected, err := e.MergeResults(l, rec, results, "")
	if err != nil {
		e.events.Publish(progress.Event{Stage: progress.StageAnalysis, File: rec.SourceFile, Err: err})
		return
	}

	quarantined, err := e.applyLowConfidence(l, affected, dir)
	if err != nil {
		e.events.Publish(progress.Event{Stage: progress.StageAnalysis, File: rec.SourceFile, Err: err})
	}
	if quarantined {
		e.revertUpdate(l, rec, snapshot, affected)
		if err := e.save(l); err != nil {
			e.events.Publish(progress.Event{Stage: progress.StageAnalysis, File: rec.SourceFile, Err: err})
		}
		return
	}

	if e.cfg.Ledger.IncludeThumbnail && rec.Thumbnail == "" {
		if thumb, err := e.images.ThumbnailBase64(path); err == nil {
			rec.Thumbnail = thumb
		} else {
			e.logger.Warn("Thumbnail failed", zap.String("file", rec.SourceFile), zap.Error(err))
		}
	}

	if opts.TargetName != "" && rec.Analyzed() && rec.Name != models.ErrorResultName {
		if err := e.renameForTarget(l, rec, dir, opts.TargetName); err != nil {
			e.logger.Warn("Rename failed", zap.String("file", rec.SourceFile), zap.Error(err))
		}
	}

	if err := e.save(l); err != nil {
		e.events.Publish(progress.Event{Stage: progress.StageAnalysis, File: rec.SourceFile, Err: err})
	}
}

// analyzeFile encodes the image and calls the model. Failures are returned
// to the caller: the batch pass degrades them to the error sentinel, the
// remark rescan leaves the record untouched and retryable.
func (e *Engine) analyzeFile(ctx context.Context, path string, req vision.Request) ([]models.ObjectResult, error) {
	payload, err := e.images.EncodeJPEG(path, e.cfg.Image.CompressionInitialMaxDim, e.cfg.Image.CompressionStartQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", path, err)
	}
	req.Image = payload

	results, err := e.analyzer.Analyze(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("analysis returned no detections for %s", path)
	}
	return results, nil
}

// renameForTarget renames the analyzed file to "<quantity>_<target><ext>"
// and repoints every sibling row at the new name.
func (e *Engine) renameForTarget(l *store.Ledger, rec *models.Record, dir, targetName string) error {
	ext := filepath.Ext(rec.SourceFile)
	newName := fmt.Sprintf("%d_%s%s", rec.Quantity, sanitizeFilename(targetName), ext)
	if newName == rec.SourceFile {
		return nil
	}

	oldPath := filepath.Join(dir, rec.SourceFile)
	newPath := uniquePath(filepath.Join(dir, newName))
	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("failed to rename %s: %w", rec.SourceFile, err)
	}

	newName = filepath.Base(newPath)
	for _, sib := range l.Siblings(rec.SourceFile) {
		sib.SourceFile = newName
	}
	rec.SourceFile = newName
	return nil
}

// applyLowConfidence enforces the configured policy on freshly merged
// records whose confidence sits below the reliability threshold. Error
// sentinels are exempt: they already mean "needs a human". Returns true
// when the photo was quarantined, which tells the caller to revert the
// ledger update for this pass.
func (e *Engine) applyLowConfidence(l *store.Ledger, recs []*models.Record, dir string) (bool, error) {
	threshold := e.cfg.Analysis.ReliabilityThreshold
	action := models.ParseLowConfidenceAction(e.cfg.Analysis.LowConfidenceAction)

	for _, r := range recs {
		if !r.Analyzed() || r.Confidence >= threshold || r.Name == models.ErrorResultName {
			continue
		}

		act := action
		if act == models.ActionAsk {
			if e.Prompter != nil {
				act = e.Prompter(r)
			} else {
				act = models.ActionQuarantine
			}
		}
		util.LowConfidenceTotal.WithLabelValues(string(act)).Inc()

		switch act {
		case models.ActionQuarantine:
			if err := e.quarantine(l, r, dir); err != nil {
				return false, err
			}
			return true, nil
		case models.ActionFlag:
			e.logger.Info("Low confidence result kept",
				zap.String("file", r.SourceFile), zap.Int("confidence", r.Confidence))
		}
	}
	return false, nil
}

// revertUpdate undoes the merge for a quarantined photo: split rows are
// dropped and the primary record returns to its pre-merge state, keeping
// only the quarantine note. The row stays a placeholder, so the photo
// re-enters the needs-analysis set as soon as it comes back from manual
// review.
func (e *Engine) revertUpdate(l *store.Ledger, rec, snapshot *models.Record, affected []*models.Record) {
	for _, extra := range affected[1:] {
		l.DeleteRecord(extra.ID)
	}
	snapshot.ID = rec.ID
	snapshot.Comment = rec.Comment
	*rec = *snapshot
}

// quarantine moves the record's photo into the manual-review folder. All
// sibling rows are annotated so the review queue explains where the file
// went.
func (e *Engine) quarantine(l *store.Ledger, rec *models.Record, dir string) error {
	reviewDir := filepath.Join(dir, e.cfg.Folders.ManualReview)
	if err := os.MkdirAll(reviewDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", reviewDir, err)
	}

	src := filepath.Join(dir, rec.SourceFile)
	dst := uniquePath(filepath.Join(reviewDir, rec.SourceFile))
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to quarantine %s: %w", rec.SourceFile, err)
	}
	e.logger.Info("Image moved to manual review",
		zap.String("file", rec.SourceFile), zap.Int("confidence", rec.Confidence))

	note := fmt.Sprintf("moved to %s (confidence %d)", e.cfg.Folders.ManualReview, rec.Confidence)
	for _, sib := range l.Siblings(rec.SourceFile) {
		sib.Comment = appendNote(sib.Comment, note)
	}
	return nil
}

// readFolderContext returns the trimmed content of the directory's
// context.txt (or the older instructions.txt), or empty when there is none.
func readFolderContext(dir string) string {
	for _, name := range []string{"context.txt", "instructions.txt"} {
		if data, err := os.ReadFile(filepath.Join(dir, name)); err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return ""
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	if strings.Contains(existing, note) {
		return existing
	}
	return existing + " | " + note
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-")
	return replacer.Replace(name)
}

func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
