package imageops

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"inventaire-ai/config"
	"inventaire-ai/internal/geometry"
	"inventaire-ai/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOps() *Ops {
	return New(config.ImageConfig{
		ThumbnailMaxWidth:        100,
		ThumbnailMaxHeight:       100,
		ThumbnailJPEGQuality:     70,
		CompressionMaxKB:         50,
		CompressionInitialMaxDim: 400,
		CompressionStartQuality:  85,
		CompressionQualityStep:   10,
		CompressionMinQuality:    20,
	})
}

// writeJPEG creates a noisy gradient image so JPEG compression has real
// work to do.
func writeJPEG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8((x * 7) % 256),
				G: uint8((y * 13) % 256),
				B: uint8((x*y + x) % 256),
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}))
	path := filepath.Join(dir, "test.jpg")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestThumbnailBase64(t *testing.T) {
	ops := testOps()
	path := writeJPEG(t, t.TempDir(), 640, 480)

	thumb, err := ops.ThumbnailBase64(path)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(thumb)
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.LessOrEqual(t, cfg.Width, 100)
	assert.LessOrEqual(t, cfg.Height, 100)
}

func TestCompressInPlaceShrinksFile(t *testing.T) {
	ops := testOps()
	path := writeJPEG(t, t.TempDir(), 1200, 900)

	before, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, before.Size(), int64(50*1024), "fixture must start over budget")

	require.NoError(t, ops.CompressInPlace(path))

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.LessOrEqual(t, after.Size(), int64(50*1024))

	// The result must still be a readable image.
	_, _, err = ops.Dimensions(path)
	assert.NoError(t, err)
}

func TestCompressInPlaceLeavesSmallFilesAlone(t *testing.T) {
	ops := testOps()
	dir := t.TempDir()
	path := writeJPEG(t, dir, 60, 60)

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, ops.CompressInPlace(path))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRotateSwapsDimensions(t *testing.T) {
	ops := testOps()
	path := writeJPEG(t, t.TempDir(), 300, 200)

	require.NoError(t, ops.Rotate(path, geometry.RotateLeft))

	w, h, err := ops.Dimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 200, w)
	assert.Equal(t, 300, h)
}

func TestRotateRejectsUnknownDirection(t *testing.T) {
	ops := testOps()
	path := writeJPEG(t, t.TempDir(), 50, 50)
	assert.Error(t, ops.Rotate(path, geometry.Direction("upside-down")))
}

func TestCropJPEG(t *testing.T) {
	ops := testOps()
	path := writeJPEG(t, t.TempDir(), 400, 300)

	raw, crop, err := ops.CropJPEG(path, models.Rect{X: 100, Y: 50, Width: 200, Height: 100})
	require.NoError(t, err)
	assert.Equal(t, models.Rect{X: 100, Y: 50, Width: 200, Height: 100}, crop)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Width)
	assert.Equal(t, 100, cfg.Height)
}

func TestCropJPEGClampsToBounds(t *testing.T) {
	ops := testOps()
	path := writeJPEG(t, t.TempDir(), 400, 300)

	_, crop, err := ops.CropJPEG(path, models.Rect{X: 350, Y: 250, Width: 200, Height: 200})
	require.NoError(t, err)
	assert.Equal(t, models.Rect{X: 350, Y: 250, Width: 50, Height: 50}, crop)

	_, _, err = ops.CropJPEG(path, models.Rect{X: 500, Y: 500, Width: 10, Height: 10})
	assert.Error(t, err, "region fully outside the image must fail")
}

func TestBurnBoxKeepsImageReadable(t *testing.T) {
	ops := testOps()
	path := writeJPEG(t, t.TempDir(), 200, 200)

	box := &models.BoundingBox{YMin: 250, XMin: 250, YMax: 750, XMax: 750}
	require.NoError(t, ops.BurnBox(path, box))

	w, h, err := ops.Dimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 200, w)
	assert.Equal(t, 200, h)
}

func TestBurnBoxNilIsNoOp(t *testing.T) {
	ops := testOps()
	path := writeJPEG(t, t.TempDir(), 50, 50)

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, ops.BurnBox(path, nil))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()
	free := filepath.Join(dir, "a.jpg")
	assert.Equal(t, free, UniquePath(free))

	require.NoError(t, os.WriteFile(free, []byte("x"), 0o644))
	assert.Equal(t, filepath.Join(dir, "a_1.jpg"), UniquePath(free))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_1.jpg"), []byte("x"), 0o644))
	assert.Equal(t, filepath.Join(dir, "a_2.jpg"), UniquePath(free))
}
