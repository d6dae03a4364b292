package vision

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"inventaire-ai/internal/models"

	"github.com/shopspring/decimal"
)

// rawObject mirrors the JSON the model is asked for, but every value is
// kept loose: numbers arrive as strings, prices with comma decimals, boxes
// as arrays or strings. Coercion happens field by field so one malformed
// value never sinks the whole detection.
type rawObject struct {
	Name       *string         `json:"name"`
	Category   *string         `json:"category"`
	CategoryID json.RawMessage `json:"category_id"`
	Quantity   json.RawMessage `json:"quantity"`
	Condition  *string         `json:"condition"`
	UnitPrice  json.RawMessage `json:"unit_price"`
	NewPrice   json.RawMessage `json:"new_price"`
	Confidence json.RawMessage `json:"confidence"`
	Box        json.RawMessage `json:"bounding_box"`
}

// ParseResults extracts detections from a model reply. The reply may wrap
// the JSON in markdown fences and may be a single object or an array.
func ParseResults(text string) ([]models.ObjectResult, error) {
	payload := stripFences(text)
	if payload == "" {
		return nil, fmt.Errorf("model reply contained no JSON")
	}

	var raws []rawObject
	if strings.HasPrefix(payload, "{") {
		var single rawObject
		if err := json.Unmarshal([]byte(payload), &single); err != nil {
			return nil, fmt.Errorf("failed to parse model reply: %w", err)
		}
		raws = []rawObject{single}
	} else {
		if err := json.Unmarshal([]byte(payload), &raws); err != nil {
			return nil, fmt.Errorf("failed to parse model reply: %w", err)
		}
	}

	results := make([]models.ObjectResult, 0, len(raws))
	for _, raw := range raws {
		results = append(results, raw.toResult())
	}
	return results, nil
}

// stripFences isolates the JSON body from a reply that may surround it with
// ```json fences or prose.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "```"); i >= 0 {
		text = text[i+3:]
		text = strings.TrimPrefix(text, "json")
		if j := strings.Index(text, "```"); j >= 0 {
			text = text[:j]
		}
	}
	text = strings.TrimSpace(text)

	// Fall back to the outermost bracket pair when prose surrounds the JSON.
	start := strings.IndexAny(text, "[{")
	if start < 0 {
		return ""
	}
	var end int
	if text[start] == '[' {
		end = strings.LastIndex(text, "]")
	} else {
		end = strings.LastIndex(text, "}")
	}
	if end <= start {
		return ""
	}
	return text[start : end+1]
}

func (r rawObject) toResult() models.ObjectResult {
	out := models.ObjectResult{
		Name:      r.Name,
		Category:  r.Category,
		Condition: normalizeCondition(r.Condition),
	}
	if id := asString(r.CategoryID); id != nil {
		out.CategoryID = id
	}
	out.Quantity = asInt(r.Quantity)
	out.Confidence = asInt(r.Confidence)
	out.UnitPrice = asPrice(r.UnitPrice)
	out.NewPrice = asPrice(r.NewPrice)
	out.Box = asBox(r.Box)
	return out
}

func normalizeCondition(c *string) *string {
	if c == nil {
		return nil
	}
	v := strings.ToLower(strings.TrimSpace(*c))
	switch v {
	case models.ConditionNew, models.ConditionUsed:
		return &v
	case "":
		return nil
	default:
		unknown := models.ConditionUnknown
		return &unknown
	}
}

// asString accepts both a JSON string and a bare number for id-like fields.
func asString(raw json.RawMessage) *string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		s = n.String()
		return &s
	}
	return nil
}

func asInt(raw json.RawMessage) *int {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		v := int(n)
		return &v
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return &v
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			v := int(f)
			return &v
		}
	}
	return nil
}

func asPrice(raw json.RawMessage) *decimal.Decimal {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if d, err := decimal.NewFromString(n.String()); err == nil {
			return &d
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
		s = strings.TrimSuffix(s, "€")
		s = strings.TrimSpace(s)
		if d, err := decimal.NewFromString(s); err == nil {
			return &d
		}
	}
	return nil
}

func asBox(raw json.RawMessage) *models.BoundingBox {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var coords []float64
	if err := json.Unmarshal(raw, &coords); err == nil && len(coords) == 4 {
		return &models.BoundingBox{
			YMin: int(coords[0]), XMin: int(coords[1]),
			YMax: int(coords[2]), XMax: int(coords[3]),
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if box, err := models.ParseBoundingBox(s); err == nil {
			return box
		}
	}
	return nil
}
