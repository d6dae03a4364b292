package service

import (
	"inventaire-ai/config"
	"inventaire-ai/internal/geometry"
	"inventaire-ai/internal/models"
	"inventaire-ai/internal/progress"
	"inventaire-ai/internal/store"
	"inventaire-ai/internal/util"
	"inventaire-ai/internal/vision"

	"go.uber.org/zap"
)

// ImagePipeline is the slice of image operations the engine needs. It is
// satisfied by imageops.Ops and narrow enough to stub in tests.
type ImagePipeline interface {
	ThumbnailBase64(path string) (string, error)
	EncodeJPEG(path string, maxDim, quality int) ([]byte, error)
	CompressInPlace(path string) error
	CropJPEG(path string, r models.Rect) ([]byte, models.Rect, error)
	BurnBox(path string, box *models.BoundingBox) error
	Rotate(path string, dir geometry.Direction) error
	Dimensions(path string) (int, int, error)
}

// Prompter decides what to do with a low-confidence result when the
// configured action is "ask". A nil Prompter falls back to quarantine.
type Prompter func(r *models.Record) models.LowConfidenceAction

// Engine drives the reconciliation pipeline: discovering new photos,
// analyzing them, merging results into the ledger and keeping the file on
// disk current after every mutation.
type Engine struct {
	store    *store.Store
	images   ImagePipeline
	analyzer vision.Analyzer
	events   *progress.Publisher
	cfg      *config.Config
	cats     store.Categories
	logger   *zap.Logger

	// Prompter handles "ask"-mode low-confidence decisions. Optional.
	Prompter Prompter
}

func NewEngine(st *store.Store, images ImagePipeline, analyzer vision.Analyzer, events *progress.Publisher, cfg *config.Config, cats store.Categories) *Engine {
	if events == nil {
		events = progress.NewPublisher()
	}
	return &Engine{
		store:    st,
		images:   images,
		analyzer: analyzer,
		events:   events,
		cfg:      cfg,
		cats:     cats,
		logger:   util.GetLogger(),
	}
}

// Categories exposes the loaded category lookup for UIs.
func (e *Engine) Categories() store.Categories {
	return e.cats
}

func (e *Engine) save(l *store.Ledger) error {
	return e.store.Save(l)
}
