package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BoxScale is the fixed normalized coordinate space for bounding boxes.
// Boxes are stored as integers on a 0..1000 grid regardless of pixel
// dimensions, so transforms are resolution independent.
const BoxScale = 1000

// BoundingBox locates a detected object within its source image, normalized
// to the BoxScale space and relative to the image's current orientation.
// The wire order is [y_min, x_min, y_max, x_max].
type BoundingBox struct {
	YMin int
	XMin int
	YMax int
	XMax int
}

// String renders the box in its ledger/JSON form `[ymin, xmin, ymax, xmax]`.
func (b BoundingBox) String() string {
	return fmt.Sprintf("[%d, %d, %d, %d]", b.YMin, b.XMin, b.YMax, b.XMax)
}

// ParseBoundingBox reads a `[ymin, xmin, ymax, xmax]` string. Empty input
// yields nil without error; malformed input yields an error so callers can
// drop the box while keeping the rest of the row.
func ParseBoundingBox(s string) (*BoundingBox, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var vals []int
	if err := json.Unmarshal([]byte(s), &vals); err != nil {
		return nil, fmt.Errorf("invalid bounding box %q: %w", s, err)
	}
	if len(vals) != 4 {
		return nil, fmt.Errorf("invalid bounding box %q: want 4 coordinates, got %d", s, len(vals))
	}
	return &BoundingBox{YMin: vals[0], XMin: vals[1], YMax: vals[2], XMax: vals[3]}, nil
}

// Rect is a pixel-space rectangle, used for interactive crop regions.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}
