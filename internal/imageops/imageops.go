package imageops

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"inventaire-ai/config"
	"inventaire-ai/internal/geometry"
	"inventaire-ai/internal/models"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// Ops bundles the image manipulations the pipeline needs. All operations
// work on files in place so the directory stays the single source of truth.
type Ops struct {
	cfg config.ImageConfig
}

func New(cfg config.ImageConfig) *Ops {
	return &Ops{cfg: cfg}
}

// ThumbnailBase64 renders a small JPEG preview of the image encoded as
// base64, suitable for embedding in a ledger cell.
func (o *Ops) ThumbnailBase64(path string) (string, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	thumb := imaging.Fit(img, o.cfg.ThumbnailMaxWidth, o.cfg.ThumbnailMaxHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(o.cfg.ThumbnailJPEGQuality)); err != nil {
		return "", fmt.Errorf("failed to encode thumbnail for %s: %w", path, err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// EncodeJPEG re-encodes the file at the requested quality and maximum
// dimension, returning the bytes. Used to keep analysis payloads small.
func (o *Ops) EncodeJPEG(path string, maxDim, quality int) ([]byte, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	img = fitWithin(img, maxDim)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return buf.Bytes(), nil
}

// CompressInPlace rewrites the file as a JPEG under the configured size
// budget. It first caps the dimensions, then walks the quality down in
// steps, and as a last resort keeps shrinking the image by 20% until the
// budget is met or the image would drop below 300px on its long side.
func (o *Ops) CompressInPlace(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	budget := int64(o.cfg.CompressionMaxKB) * 1024
	if info.Size() <= budget {
		return nil
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	img = fitWithin(img, o.cfg.CompressionInitialMaxDim)

	var buf bytes.Buffer
	for quality := o.cfg.CompressionStartQuality; quality >= o.cfg.CompressionMinQuality; quality -= o.cfg.CompressionQualityStep {
		buf.Reset()
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return fmt.Errorf("failed to encode %s: %w", path, err)
		}
		if int64(buf.Len()) <= budget {
			return os.WriteFile(path, buf.Bytes(), 0o644)
		}
	}

	// Minimum quality still over budget: shrink until it fits.
	for longSide(img) >= 300 {
		img = imaging.Resize(img, img.Bounds().Dx()*4/5, 0, imaging.Lanczos)
		buf.Reset()
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(o.cfg.CompressionMinQuality)); err != nil {
			return fmt.Errorf("failed to encode %s: %w", path, err)
		}
		if int64(buf.Len()) <= budget {
			break
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Rotate turns the image file a quarter turn in place.
func (o *Ops) Rotate(path string, dir geometry.Direction) error {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	switch dir {
	case geometry.RotateLeft:
		img = imaging.Rotate90(img)
	case geometry.RotateRight:
		img = imaging.Rotate270(img)
	default:
		return fmt.Errorf("unknown rotation %q", dir)
	}
	if err := imaging.Save(img, path, imaging.JPEGQuality(90)); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// CropJPEG extracts the pixel rectangle as JPEG bytes, leaving the file
// untouched. The caller gets the rect back clamped to the image bounds so
// detections inside the crop can be mapped to the full frame.
func (o *Ops) CropJPEG(path string, r models.Rect) ([]byte, models.Rect, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, models.Rect{}, fmt.Errorf("failed to open %s: %w", path, err)
	}

	bounds := img.Bounds()
	rect := image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height).Intersect(bounds)
	if rect.Empty() {
		return nil, models.Rect{}, fmt.Errorf("crop region outside image %s", path)
	}
	cropped := imaging.Crop(img, rect)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, cropped, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, models.Rect{}, fmt.Errorf("failed to encode crop of %s: %w", path, err)
	}
	clamped := models.Rect{X: rect.Min.X, Y: rect.Min.Y, Width: rect.Dx(), Height: rect.Dy()}
	return buf.Bytes(), clamped, nil
}

// BurnBox draws the normalized bounding box onto the image in red and saves
// it back. Used before moving a photo to the retake folder so the retaker
// sees which object was unclear.
func (o *Ops) BurnBox(path string, box *models.BoundingBox) error {
	if box == nil {
		return nil
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}

	canvas := imaging.Clone(img)
	w, h := canvas.Bounds().Dx(), canvas.Bounds().Dy()
	x0 := box.XMin * w / models.BoxScale
	y0 := box.YMin * h / models.BoxScale
	x1 := box.XMax * w / models.BoxScale
	y1 := box.YMax * h / models.BoxScale
	drawRect(canvas, x0, y0, x1, y1, 3, color.NRGBA{R: 255, A: 255})

	if err := imaging.Save(canvas, path, imaging.JPEGQuality(90)); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// Dimensions returns the pixel size of the image file.
func (o *Ops) Dimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}

// UniquePath returns path itself if nothing exists there, otherwise the
// first "<name>_N<ext>" variant that is free.
func UniquePath(path string) string {
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

func fitWithin(img image.Image, maxDim int) image.Image {
	if maxDim <= 0 || longSide(img) <= maxDim {
		return img
	}
	if img.Bounds().Dx() >= img.Bounds().Dy() {
		return imaging.Resize(img, maxDim, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, maxDim, imaging.Lanczos)
}

func longSide(img image.Image) int {
	return max(img.Bounds().Dx(), img.Bounds().Dy())
}

func drawRect(img *image.NRGBA, x0, y0, x1, y1, thickness int, c color.NRGBA) {
	for t := 0; t < thickness; t++ {
		for x := x0; x <= x1; x++ {
			img.SetNRGBA(x, y0+t, c)
			img.SetNRGBA(x, y1-t, c)
		}
		for y := y0; y <= y1; y++ {
			img.SetNRGBA(x0+t, y, c)
			img.SetNRGBA(x1-t, y, c)
		}
	}
}
