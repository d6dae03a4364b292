// Package geometry remaps normalized bounding boxes through the image edits
// the review workflow performs (90-degree rotations, targeted crop rescans)
// so annotations stay attached to the objects they describe.
package geometry

import (
	"fmt"

	"inventaire-ai/internal/models"
)

// Direction of a 90-degree rotation as seen by the user.
type Direction string

const (
	// RotateLeft is 90 degrees counter-clockwise.
	RotateLeft Direction = "left"
	// RotateRight is 90 degrees clockwise.
	RotateRight Direction = "right"
)

// RotateBox transforms a normalized box through a 90-degree rotation of its
// image. The min/max pairs are re-sorted after the transform so a sign
// inversion can never produce an inside-out box.
func RotateBox(b models.BoundingBox, dir Direction) models.BoundingBox {
	var newYMin, newXMin, newYMax, newXMax int

	if dir == RotateLeft {
		// counter-clockwise: x' = y, y' = scale - x
		newYMin = models.BoxScale - b.XMax
		newXMin = b.YMin
		newYMax = models.BoxScale - b.XMin
		newXMax = b.YMax
	} else {
		// clockwise: x' = scale - y, y' = x
		newYMin = b.XMin
		newXMin = models.BoxScale - b.YMax
		newYMax = b.XMax
		newXMax = models.BoxScale - b.YMin
	}

	return models.BoundingBox{
		YMin: min(newYMin, newYMax),
		XMin: min(newXMin, newXMax),
		YMax: max(newYMin, newYMax),
		XMax: max(newXMin, newXMax),
	}
}

// MapCropToOriginal maps a box detected on a cropped sub-region back into
// the full image's normalized space. The local box is normalized to the crop;
// the crop rectangle and original size are in pixels.
func MapCropToOriginal(local models.BoundingBox, crop models.Rect, origWidth, origHeight int) (models.BoundingBox, error) {
	if crop.Width <= 0 || crop.Height <= 0 {
		return models.BoundingBox{}, fmt.Errorf("invalid crop %dx%d", crop.Width, crop.Height)
	}
	if origWidth <= 0 || origHeight <= 0 {
		return models.BoundingBox{}, fmt.Errorf("invalid original size %dx%d", origWidth, origHeight)
	}

	// Denormalize to crop pixels, offset by the crop origin, renormalize
	// against the original dimensions.
	localYMin := float64(local.YMin) / models.BoxScale * float64(crop.Height)
	localXMin := float64(local.XMin) / models.BoxScale * float64(crop.Width)
	localYMax := float64(local.YMax) / models.BoxScale * float64(crop.Height)
	localXMax := float64(local.XMax) / models.BoxScale * float64(crop.Width)

	return models.BoundingBox{
		YMin: int((localYMin + float64(crop.Y)) / float64(origHeight) * models.BoxScale),
		XMin: int((localXMin + float64(crop.X)) / float64(origWidth) * models.BoxScale),
		YMax: int((localYMax + float64(crop.Y)) / float64(origHeight) * models.BoxScale),
		XMax: int((localXMax + float64(crop.X)) / float64(origWidth) * models.BoxScale),
	}, nil
}
