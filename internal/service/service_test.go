package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"inventaire-ai/config"
	"inventaire-ai/internal/geometry"
	"inventaire-ai/internal/models"
	"inventaire-ai/internal/scanner"
	"inventaire-ai/internal/store"
	"inventaire-ai/internal/vision"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type stubImages struct {
	rotated int
	burned  int
}

func (s *stubImages) ThumbnailBase64(string) (string, error)      { return "dGh1bWI=", nil }
func (s *stubImages) EncodeJPEG(string, int, int) ([]byte, error) { return []byte("jpeg"), nil }
func (s *stubImages) CompressInPlace(string) error                { return nil }
func (s *stubImages) CropJPEG(path string, r models.Rect) ([]byte, models.Rect, error) {
	return []byte("crop"), r, nil
}
func (s *stubImages) BurnBox(string, *models.BoundingBox) error { s.burned++; return nil }
func (s *stubImages) Rotate(string, geometry.Direction) error   { s.rotated++; return nil }
func (s *stubImages) Dimensions(string) (int, int, error)       { return 1000, 800, nil }

type stubAnalyzer struct {
	calls   int
	respond func(req vision.Request) ([]models.ObjectResult, error)
}

func (s *stubAnalyzer) Analyze(_ context.Context, req vision.Request) ([]models.ObjectResult, error) {
	s.calls++
	if s.respond != nil {
		return s.respond(req)
	}
	return []models.ObjectResult{det("item", 90)}, nil
}

// det builds a detection with the pointer fields populated.
func det(name string, confidence int) models.ObjectResult {
	qty := 1
	return models.ObjectResult{Name: &name, Confidence: &confidence, Quantity: &qty}
}

func decimalFrom(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func testConfig() *config.Config {
	return &config.Config{
		Ledger: config.LedgerConfig{Separator: ",", DecimalSeparator: "."},
		Image:  config.ImageConfig{CompressionInitialMaxDim: 2000, CompressionStartQuality: 85},
		Analysis: config.AnalysisConfig{
			ReliabilityThreshold: 85,
			LowConfidenceAction:  "flag",
		},
		Folders: config.FolderConfig{
			Processed:    "processed",
			ManualReview: "manual_review",
			Retake:       "a_refaire",
		},
	}
}

func newTestEngine(cfg *config.Config, analyzer vision.Analyzer) (*Engine, *stubImages) {
	images := &stubImages{}
	st := store.NewStore(cfg.Ledger)
	e := NewEngine(st, images, analyzer, nil, cfg, store.Categories{"T01": "Tools"})
	return e, images
}

func newTestTarget(t *testing.T, names ...string) *scanner.Target {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644))
	}
	images, err := scanner.ListImages(dir)
	require.NoError(t, err)
	return &scanner.Target{Dir: dir, Images: images}
}

func addImage(t *testing.T, target *scanner.Target, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(target.Dir, name), []byte("x"), 0o644))
	images, err := scanner.ListImages(target.Dir)
	require.NoError(t, err)
	target.Images = images
}
