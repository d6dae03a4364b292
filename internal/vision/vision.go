package vision

import (
	"context"

	"inventaire-ai/internal/models"
)

// Request is one analysis call: an image plus whatever context narrows the
// answer down. All context fields are optional.
type Request struct {
	// Image is the JPEG payload sent to the model.
	Image []byte
	// Target names the object the operator expects in the photo, e.g. the
	// item a folder was labelled with.
	Target string
	// Hint is a free-form operator remark ("it is the blue one, not the bag").
	Hint string
	// Previous carries the current record values when refining an earlier
	// analysis, so the model corrects instead of starting over.
	Previous *models.Record
	// Multi asks for every distinct object in the frame instead of the
	// single most prominent one.
	Multi bool
	// Categories is the rendered id/name table the model must pick from.
	Categories string
	// Context is the folder-level note (context.txt) describing the lot.
	Context string
}

// Analyzer turns a photo into detected objects. Implementations must be
// safe for concurrent use.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) ([]models.ObjectResult, error)
}
