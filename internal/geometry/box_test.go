package geometry

import (
	"testing"

	"inventaire-ai/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotateLeftThenRightIsIdentity(t *testing.T) {
	box := models.BoundingBox{YMin: 100, XMin: 200, YMax: 400, XMax: 700}

	rotated := RotateBox(box, RotateLeft)
	back := RotateBox(rotated, RotateRight)

	assert.Equal(t, box, back)
}

func TestRotateLeftFourTimesRoundTrips(t *testing.T) {
	box := models.BoundingBox{YMin: 50, XMin: 120, YMax: 330, XMax: 980}

	result := box
	for i := 0; i < 4; i++ {
		result = RotateBox(result, RotateLeft)
	}

	assert.Equal(t, box, result)
}

func TestRotateRightFourTimesRoundTrips(t *testing.T) {
	box := models.BoundingBox{YMin: 0, XMin: 0, YMax: 1000, XMax: 1000}

	result := box
	for i := 0; i < 4; i++ {
		result = RotateBox(result, RotateRight)
	}

	assert.Equal(t, box, result)
}

func TestRotateLeftKnownValues(t *testing.T) {
	// A box hugging the top-left corner moves to the bottom-left under a
	// counter-clockwise rotation.
	box := models.BoundingBox{YMin: 0, XMin: 0, YMax: 100, XMax: 200}

	rotated := RotateBox(box, RotateLeft)

	assert.Equal(t, models.BoundingBox{YMin: 800, XMin: 0, YMax: 1000, XMax: 100}, rotated)
}

func TestRotateKeepsMinMaxOrder(t *testing.T) {
	box := models.BoundingBox{YMin: 10, XMin: 20, YMax: 990, XMax: 30}

	for _, dir := range []Direction{RotateLeft, RotateRight} {
		r := RotateBox(box, dir)
		assert.LessOrEqual(t, r.YMin, r.YMax)
		assert.LessOrEqual(t, r.XMin, r.XMax)
	}
}

func TestMapCropToOriginal(t *testing.T) {
	// Crop covering the right half of a 2000x1000 image; a box spanning the
	// whole crop must map to the right half of the original.
	local := models.BoundingBox{YMin: 0, XMin: 0, YMax: 1000, XMax: 1000}
	crop := models.Rect{X: 1000, Y: 0, Width: 1000, Height: 1000}

	mapped, err := MapCropToOriginal(local, crop, 2000, 1000)
	require.NoError(t, err)

	assert.Equal(t, models.BoundingBox{YMin: 0, XMin: 500, YMax: 1000, XMax: 1000}, mapped)
}

func TestMapCropToOriginalCenteredBox(t *testing.T) {
	// A centered box inside a centered crop stays centered in the original.
	local := models.BoundingBox{YMin: 250, XMin: 250, YMax: 750, XMax: 750}
	crop := models.Rect{X: 250, Y: 250, Width: 500, Height: 500}

	mapped, err := MapCropToOriginal(local, crop, 1000, 1000)
	require.NoError(t, err)

	assert.Equal(t, models.BoundingBox{YMin: 375, XMin: 375, YMax: 625, XMax: 625}, mapped)
}

func TestMapCropToOriginalRejectsDegenerateInput(t *testing.T) {
	local := models.BoundingBox{YMin: 0, XMin: 0, YMax: 1000, XMax: 1000}

	_, err := MapCropToOriginal(local, models.Rect{Width: 0, Height: 100}, 1000, 1000)
	assert.Error(t, err)

	_, err = MapCropToOriginal(local, models.Rect{Width: 100, Height: 100}, 0, 1000)
	assert.Error(t, err)
}
