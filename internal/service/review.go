package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"inventaire-ai/internal/geometry"
	"inventaire-ai/internal/models"
	"inventaire-ai/internal/store"
	"inventaire-ai/internal/util"
	"inventaire-ai/internal/vision"

	"go.uber.org/zap"
)

// ErrQueueEmpty means every file in the ledger is either fully validated or
// gone from disk.
var ErrQueueEmpty = errors.New("review queue is empty")

// Navigator walks the review queue: one photo at a time, least-confident
// first. Every mutation autosaves the ledger, so closing the program at any
// point loses nothing.
type Navigator struct {
	engine *Engine
	ledger *store.Ledger
	dir    string

	queue   []string
	pos     int
	current int64

	// Wrap makes Next and Prev cycle past the queue ends instead of
	// stopping there.
	Wrap bool
}

// NewNavigator builds a navigator over the ledger's unresolved files.
func (e *Engine) NewNavigator(l *store.Ledger, dir string) (*Navigator, error) {
	n := &Navigator{engine: e, ledger: l, dir: dir, Wrap: true}
	n.resync()
	if len(n.queue) == 0 {
		return nil, ErrQueueEmpty
	}
	n.selectFirstSibling()
	return n, nil
}

// photoPath locates a photo for review: the processed folder is checked
// first, then the working directory. Empty when the file is gone from both.
func (n *Navigator) photoPath(file string) string {
	if file == "" {
		return ""
	}
	processed := filepath.Join(n.dir, n.engine.cfg.Folders.Processed, file)
	if _, err := os.Stat(processed); err == nil {
		return processed
	}
	root := filepath.Join(n.dir, file)
	if _, err := os.Stat(root); err == nil {
		return root
	}
	return ""
}

// resync rebuilds the queue from the ledger: distinct source files still
// present on disk with at least one non-validated record, sorted by their
// lowest confidence so the shakiest results come up first.
func (n *Navigator) resync() {
	var files []string
	for _, f := range n.ledger.SourceFiles() {
		if n.ledger.MinConfidence(f) >= models.ConfidenceValidated {
			continue
		}
		if n.photoPath(f) == "" {
			continue
		}
		files = append(files, f)
	}
	sort.SliceStable(files, func(i, j int) bool {
		ci, cj := n.ledger.MinConfidence(files[i]), n.ledger.MinConfidence(files[j])
		if ci != cj {
			return ci < cj
		}
		return files[i] < files[j]
	})

	// Keep position on the same file when it survived the rebuild.
	currentFile := ""
	if n.pos < len(n.queue) {
		currentFile = n.queue[n.pos]
	}
	n.queue = files
	n.pos = 0
	for i, f := range files {
		if f == currentFile {
			n.pos = i
			break
		}
	}
}

// Len returns the number of files left to review.
func (n *Navigator) Len() int {
	return len(n.queue)
}

// CurrentFile returns the photo under review, or "" when the queue is done.
func (n *Navigator) CurrentFile() string {
	if n.pos >= len(n.queue) {
		return ""
	}
	return n.queue[n.pos]
}

// CurrentPath returns the absolute path of the photo under review.
func (n *Navigator) CurrentPath() string {
	return n.photoPath(n.CurrentFile())
}

// Current returns the selected record, or nil when the queue is done.
func (n *Navigator) Current() *models.Record {
	return n.ledger.RecordByID(n.current)
}

// Siblings returns every record of the current photo, ordered by id.
func (n *Navigator) Siblings() []*models.Record {
	return n.ledger.Siblings(n.CurrentFile())
}

// SelectSibling switches the selection to another record of the same photo.
func (n *Navigator) SelectSibling(id int64) error {
	for _, r := range n.Siblings() {
		if r.ID == id {
			n.current = id
			return nil
		}
	}
	return fmt.Errorf("record %d does not belong to %s", id, n.CurrentFile())
}

func (n *Navigator) selectFirstSibling() {
	sibs := n.Siblings()
	n.current = 0
	for _, r := range sibs {
		if r.Confidence < models.ConfidenceValidated {
			n.current = r.ID
			return
		}
	}
	if len(sibs) > 0 {
		n.current = sibs[0].ID
	}
}

// Next advances to the following photo. At the end it wraps when Wrap is
// set, otherwise it stays put and reports false.
func (n *Navigator) Next() bool {
	if len(n.queue) == 0 {
		return false
	}
	if n.pos+1 >= len(n.queue) {
		if !n.Wrap {
			return false
		}
		n.pos = 0
	} else {
		n.pos++
	}
	n.selectFirstSibling()
	return true
}

// Prev steps back to the previous photo, wrapping like Next.
func (n *Navigator) Prev() bool {
	if len(n.queue) == 0 {
		return false
	}
	if n.pos == 0 {
		if !n.Wrap {
			return false
		}
		n.pos = len(n.queue) - 1
	} else {
		n.pos--
	}
	n.selectFirstSibling()
	return true
}

// Apply mutates the selected record and autosaves. The total price is
// re-derived so quantity and price edits can never leave it stale.
func (n *Navigator) Apply(mutate func(r *models.Record)) error {
	rec := n.Current()
	if rec == nil {
		return ErrQueueEmpty
	}
	mutate(rec)
	rec.RecomputeTotal()
	return n.engine.save(n.ledger)
}

// Comment replaces the selected record's comment.
func (n *Navigator) Comment(text string) error {
	return n.Apply(func(r *models.Record) { r.Comment = text })
}

// Validate confirms the selected record and moves on: first to the next
// unvalidated sibling of the same photo, then to the next photo.
func (n *Navigator) Validate() error {
	rec := n.Current()
	if rec == nil {
		return ErrQueueEmpty
	}
	rec.Confidence = models.ConfidenceValidated
	rec.RecomputeTotal()
	util.RecordsValidatedTotal.Inc()
	if err := n.engine.save(n.ledger); err != nil {
		return err
	}

	for _, sib := range n.Siblings() {
		if sib.Confidence < models.ConfidenceValidated {
			n.current = sib.ID
			return nil
		}
	}
	n.resync()
	if len(n.queue) == 0 {
		return nil
	}
	n.selectFirstSibling()
	return nil
}

// Delete removes the selected record. Remaining siblings keep the photo in
// the queue; deleting the last record retires the file from review.
func (n *Navigator) Delete() error {
	rec := n.Current()
	if rec == nil {
		return ErrQueueEmpty
	}
	n.ledger.DeleteRecord(rec.ID)
	util.RecordsDeletedTotal.Inc()
	if err := n.engine.save(n.ledger); err != nil {
		return err
	}
	n.resync()
	n.selectFirstSibling()
	return nil
}

// Retake sends the photo back to be shot again: the file moves to the
// retake folder (with the unclear object's box burned in when requested)
// and every record of the photo is removed. If the move fails nothing is
// deleted.
func (n *Navigator) Retake(burnBox bool) error {
	rec := n.Current()
	if rec == nil {
		return ErrQueueEmpty
	}
	file := n.CurrentFile()
	src := n.photoPath(file)
	if src == "" {
		src = filepath.Join(n.dir, file)
	}

	if burnBox {
		if err := n.engine.images.BurnBox(src, rec.Box); err != nil {
			n.engine.logger.Warn("Box burn-in failed, moving photo as is", zap.Error(err))
		}
	}

	retakeDir := filepath.Join(n.dir, n.engine.cfg.Folders.Retake)
	if err := os.MkdirAll(retakeDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", retakeDir, err)
	}
	dst := uniquePath(filepath.Join(retakeDir, file))
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to move %s to retake folder: %w", file, err)
	}

	for _, sib := range n.ledger.Siblings(file) {
		n.ledger.DeleteRecord(sib.ID)
	}
	util.RetakesTotal.Inc()
	if err := n.engine.save(n.ledger); err != nil {
		return err
	}
	n.resync()
	n.selectFirstSibling()
	return nil
}

// Rotate turns the photo a quarter turn and keeps every sibling's bounding
// box aligned with the rotated pixels.
func (n *Navigator) Rotate(dir geometry.Direction) error {
	file := n.CurrentFile()
	if file == "" {
		return ErrQueueEmpty
	}
	if err := n.engine.images.Rotate(n.photoPath(file), dir); err != nil {
		return err
	}
	for _, sib := range n.ledger.Siblings(file) {
		if sib.Box != nil {
			b := geometry.RotateBox(*sib.Box, dir)
			sib.Box = &b
		}
	}
	return n.engine.save(n.ledger)
}

// RescanImage re-analyzes the whole photo with an optional operator hint
// and merges the outcome into the selected record.
func (n *Navigator) RescanImage(ctx context.Context, hint string) error {
	rec := n.Current()
	if rec == nil {
		return ErrQueueEmpty
	}
	results, err := n.engine.analyzeFile(ctx, n.CurrentPath(), vision.Request{
		Hint:       hint,
		Previous:   rec,
		Categories: n.engine.cats.PromptContext(),
	})
	if err != nil {
		return err
	}
	_, err = n.engine.MergeResults(n.ledger, rec, results[:1], "")
	return err
}

// RescanRegion re-analyzes just the given pixel region. A box detected
// inside the crop is mapped back onto the full frame before merging.
func (n *Navigator) RescanRegion(ctx context.Context, region models.Rect, hint string) error {
	rec := n.Current()
	if rec == nil {
		return ErrQueueEmpty
	}
	path := n.CurrentPath()

	payload, crop, err := n.engine.images.CropJPEG(path, region)
	if err != nil {
		return err
	}
	origW, origH, err := n.engine.images.Dimensions(path)
	if err != nil {
		return err
	}

	results, err := n.engine.analyzer.Analyze(ctx, vision.Request{
		Image:      payload,
		Hint:       hint,
		Previous:   rec,
		Categories: n.engine.cats.PromptContext(),
	})
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("region analysis returned no detections for %s", path)
	}

	res := results[0]
	if res.Box != nil {
		mapped, err := geometry.MapCropToOriginal(*res.Box, crop, origW, origH)
		if err == nil {
			res.Box = &mapped
		} else {
			res.Box = nil
		}
	}
	_, err = n.engine.MergeResults(n.ledger, rec, []models.ObjectResult{res}, "")
	return err
}

// RescanMulti re-analyzes the photo asking for every object. The first
// detection updates the selected record; the rest become new rows carrying
// the multi-scan provenance note.
func (n *Navigator) RescanMulti(ctx context.Context, hint string) error {
	rec := n.Current()
	if rec == nil {
		return ErrQueueEmpty
	}
	results, err := n.engine.analyzeFile(ctx, n.CurrentPath(), vision.Request{
		Hint:       hint,
		Previous:   rec,
		Multi:      true,
		Categories: n.engine.cats.PromptContext(),
	})
	if err != nil {
		return err
	}
	_, err = n.engine.MergeResults(n.ledger, rec, results, MultiScanProvenance)
	return err
}
