package models

import (
	"github.com/shopspring/decimal"
)

// Condition values for an identified object.
const (
	ConditionNew     = "new"
	ConditionUsed    = "used"
	ConditionUnknown = "unknown"
)

// ErrorResultName marks a record produced by a failed analysis call. Such
// records are merged like any other result so a bad photo never aborts a
// batch; they stay at confidence 0 and surface at the front of the review
// queue.
const ErrorResultName = "Error"

// Confidence bounds. A record at ConfidenceValidated has been confirmed by a
// human and is excluded from the review queue.
const (
	ConfidenceUnanalyzed = 0
	ConfidenceValidated  = 100
)

// LowConfidenceAction selects what the merge engine does with results whose
// confidence falls below the configured reliability threshold.
type LowConfidenceAction string

const (
	// ActionFlag merges and saves the result anyway; the low confidence
	// score itself flags the record for review.
	ActionFlag LowConfidenceAction = "flag"
	// ActionQuarantine moves the source image to the manual-review folder
	// and skips the ledger update for that file in this pass.
	ActionQuarantine LowConfidenceAction = "move"
	// ActionAsk delegates the decision to a caller-supplied prompter.
	ActionAsk LowConfidenceAction = "ask"
)

// ParseLowConfidenceAction maps a config string onto a known action,
// defaulting to quarantine (the historical behavior).
func ParseLowConfidenceAction(s string) LowConfidenceAction {
	switch LowConfidenceAction(s) {
	case ActionFlag, ActionQuarantine, ActionAsk:
		return LowConfidenceAction(s)
	default:
		return ActionQuarantine
	}
}

// Record is one row of the ledger: a single detected object.
//
// ID is the stable identity for all cross-references (review queue, sibling
// lookup, box ownership). Row position in the ledger is storage order only
// and must never be used as identity.
type Record struct {
	ID              int64
	SourceFile      string
	Name            string
	Category        string
	CategoryID      string
	Condition       string
	Quantity        int
	UnitPrice       decimal.Decimal
	NewPrice        decimal.Decimal
	TotalPrice      decimal.Decimal
	Confidence      int
	Box             *BoundingBox
	Comment         string
	Thumbnail       string
	PendingRemark   string
	ProcessedRemark string

	// Extra holds user-configured and unknown columns, preserved verbatim
	// across load/save but never interpreted.
	Extra map[string]string
}

// RecomputeTotal re-derives total_price from the record's own quantity and
// unit price. Every mutation that touches either operand must call this;
// total_price is never edited independently.
func (r *Record) RecomputeTotal() {
	r.TotalPrice = r.UnitPrice.Mul(decimal.NewFromInt(int64(r.Quantity)))
}

// Analyzed reports whether this record already carries a usable analysis
// result. Sync skips analyzed records, which is what makes re-running a scan
// over a grown folder incremental.
func (r *Record) Analyzed() bool {
	return r.Name != "" && r.Confidence > ConfidenceUnanalyzed
}

// Clone returns a deep copy, including the Extra map and bounding box.
func (r *Record) Clone() *Record {
	c := *r
	if r.Box != nil {
		b := *r.Box
		c.Box = &b
	}
	if r.Extra != nil {
		c.Extra = make(map[string]string, len(r.Extra))
		for k, v := range r.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

// ObjectResult is one detected object from the vision model. Fields are
// pointers because the upstream response is a partial JSON object: merge
// logic pattern-matches on presence instead of trusting zero values.
type ObjectResult struct {
	Name       *string
	Category   *string
	CategoryID *string
	Quantity   *int
	Condition  *string
	UnitPrice  *decimal.Decimal
	NewPrice   *decimal.Decimal
	Confidence *int
	Box        *BoundingBox
}

// NameOr returns the detected name or the given default.
func (o *ObjectResult) NameOr(def string) string {
	if o.Name != nil && *o.Name != "" {
		return *o.Name
	}
	return def
}

// QuantityOr returns the detected quantity or the given default.
func (o *ObjectResult) QuantityOr(def int) int {
	if o.Quantity != nil {
		return *o.Quantity
	}
	return def
}

// ConfidenceOr returns the reported confidence or the given default.
func (o *ObjectResult) ConfidenceOr(def int) int {
	if o.Confidence != nil {
		return *o.Confidence
	}
	return def
}

// UnitPriceOr returns the estimated unit price or the given default.
func (o *ObjectResult) UnitPriceOr(def decimal.Decimal) decimal.Decimal {
	if o.UnitPrice != nil {
		return *o.UnitPrice
	}
	return def
}

// NewPriceOr returns the estimated as-new price or the given default.
func (o *ObjectResult) NewPriceOr(def decimal.Decimal) decimal.Decimal {
	if o.NewPrice != nil {
		return *o.NewPrice
	}
	return def
}

// ConditionOr returns the detected condition or the given default.
func (o *ObjectResult) ConditionOr(def string) string {
	if o.Condition != nil && *o.Condition != "" {
		return *o.Condition
	}
	return def
}

// CategoryIDOr returns the detected category id, falling back to the plain
// category field, then the default. Records store the id canonically;
// display names resolve through the categories lookup.
func (o *ObjectResult) CategoryIDOr(def string) string {
	if o.CategoryID != nil && *o.CategoryID != "" {
		return *o.CategoryID
	}
	if o.Category != nil && *o.Category != "" {
		return *o.Category
	}
	return def
}

// ErrorResult is the sentinel merged in place of a failed analysis call.
func ErrorResult() ObjectResult {
	name := ErrorResultName
	cat := ConditionUnknown
	qty := 0
	conf := 0
	return ObjectResult{
		Name:       &name,
		Category:   &cat,
		CategoryID: &cat,
		Quantity:   &qty,
		Confidence: &conf,
	}
}
