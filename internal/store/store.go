package store

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"inventaire-ai/config"
	"inventaire-ai/internal/models"
	"inventaire-ai/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// utf8BOM keeps the file openable in spreadsheet programs.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrCorruptLedger wraps load failures caused by an unreadable file.
var ErrCorruptLedger = errors.New("corrupt ledger file")

// Store owns serialization of ledgers to delimited text files. It carries
// the file-format knobs so no other component needs them.
type Store struct {
	separator        rune
	decimalSeparator string
	includeThumbnail bool
	customColumns    []string
	logger           *zap.Logger
}

// NewStore creates a ledger store with the given file-format configuration.
func NewStore(cfg config.LedgerConfig) *Store {
	sep := ','
	if cfg.Separator != "" {
		sep = []rune(cfg.Separator)[0]
	}
	dec := cfg.DecimalSeparator
	if dec == "" {
		dec = "."
	}
	return &Store{
		separator:        sep,
		decimalSeparator: dec,
		includeThumbnail: cfg.IncludeThumbnail,
		customColumns:    cfg.CustomColumns,
		logger:           util.GetLogger(),
	}
}

// Columns returns the configured column order: the fixed schema (thumbnail
// column only when embedding is enabled) followed by custom columns.
func (s *Store) Columns() []string {
	cols := make([]string, 0, len(knownOrder)+len(s.customColumns))
	for _, c := range knownOrder {
		if c == ColThumbnail && !s.includeThumbnail {
			continue
		}
		cols = append(cols, c)
	}
	return append(cols, s.customColumns...)
}

// NewLedger creates an empty ledger bound to a path.
func (s *Store) NewLedger(path string) *Ledger {
	return &Ledger{Path: path, Columns: s.Columns()}
}

// Load reads a ledger file, repairing what it can: legacy headers are mapped
// onto the canonical schema, a missing id column is backfilled with
// sequential ids (and the migration persisted immediately), comma-decimal
// prices are normalized, and unparsable numerics coerce to zero. Unknown
// columns are preserved, never dropped.
func (s *Store) Load(path string) (*Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger %s: %w", path, err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = s.separator
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptLedger, path, err)
	}

	ledger := s.NewLedger(path)
	if len(rows) == 0 {
		return ledger, nil
	}

	header := make([]string, len(rows[0]))
	hasID := false
	for i, name := range rows[0] {
		header[i] = canonicalHeader(strings.TrimSpace(name))
		if header[i] == ColID {
			hasID = true
		}
	}

	// Unknown headers ride along after the configured columns.
	known := make(map[string]bool, len(ledger.Columns))
	for _, c := range ledger.Columns {
		known[c] = true
	}
	for _, name := range header {
		if name != "" && !known[name] {
			known[name] = true
			ledger.Columns = append(ledger.Columns, name)
		}
	}

	for _, row := range rows[1:] {
		ledger.Records = append(ledger.Records, s.decodeRecord(header, row))
	}

	migrated := false
	if !hasID {
		s.logger.Info("Legacy ledger detected, backfilling ids", zap.String("path", path))
		for i, r := range ledger.Records {
			r.ID = int64(i + 1)
		}
		migrated = true
	} else {
		// Rows whose id failed to parse get fresh ids at the tail of the
		// sequence so identity stays unique.
		for _, r := range ledger.Records {
			if r.ID == 0 {
				r.ID = ledger.NextID()
				migrated = true
			}
		}
	}
	if migrated {
		if err := s.Save(ledger); err != nil {
			return nil, fmt.Errorf("failed to persist id migration: %w", err)
		}
	}

	return ledger, nil
}

// Save writes the whole ledger atomically: encode to a temporary file in the
// same directory, then replace the destination. If the in-place replace
// fails (the destination can be locked open by a spreadsheet program on some
// platforms), fall back to remove-then-rename; if that also fails the error
// is surfaced loudly — the caller keeps the in-memory state and can retry.
func (s *Store) Save(l *Ledger) error {
	var buf bytes.Buffer
	buf.Write(utf8BOM)

	w := csv.NewWriter(&buf)
	w.Comma = s.separator
	if err := w.Write(l.Columns); err != nil {
		return fmt.Errorf("failed to encode header: %w", err)
	}
	for _, r := range l.Records {
		if err := w.Write(s.encodeRecord(l.Columns, r)); err != nil {
			return fmt.Errorf("failed to encode record %d: %w", r.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	dir := filepath.Dir(l.Path)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(l.Path), uuid.NewString()[:8]))
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		util.LedgerSaveFailures.Inc()
		return fmt.Errorf("failed to write temporary ledger: %w", err)
	}

	if err := os.Rename(tmp, l.Path); err != nil {
		if rmErr := os.Remove(l.Path); rmErr != nil && !os.IsNotExist(rmErr) {
			_ = os.Remove(tmp)
			util.LedgerSaveFailures.Inc()
			return fmt.Errorf("failed to replace ledger %s (is it open in another program?): %w", l.Path, err)
		}
		if err := os.Rename(tmp, l.Path); err != nil {
			_ = os.Remove(tmp)
			util.LedgerSaveFailures.Inc()
			return fmt.Errorf("failed to replace ledger %s: %w", l.Path, err)
		}
	}
	return nil
}

func (s *Store) decodeRecord(header, row []string) *models.Record {
	get := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	r := &models.Record{}
	for i, col := range header {
		val := get(i)
		switch col {
		case ColID:
			r.ID = coerceInt64(val)
		case ColSourceFile:
			if r.SourceFile == "" {
				r.SourceFile = val
			}
		case ColName:
			r.Name = val
		case ColCategory:
			r.Category = val
		case ColCategoryID:
			r.CategoryID = val
		case ColCondition:
			r.Condition = val
		case ColQuantity:
			r.Quantity = int(coerceInt64(val))
		case ColUnitPrice:
			r.UnitPrice = s.coercePrice(val)
		case ColNewPrice:
			r.NewPrice = s.coercePrice(val)
		case ColTotalPrice:
			r.TotalPrice = s.coercePrice(val)
		case ColConfidence:
			r.Confidence = int(coerceInt64(val))
		case ColBox:
			box, err := models.ParseBoundingBox(val)
			if err != nil {
				s.logger.Warn("Dropping unreadable bounding box", zap.String("value", val))
				break
			}
			r.Box = box
		case ColComment:
			r.Comment = val
		case ColThumbnail:
			r.Thumbnail = val
		case ColPendingRemark:
			r.PendingRemark = val
		case ColProcessedRemark:
			r.ProcessedRemark = val
		case "":
			// Unnamed column, nothing to key it by.
		default:
			if r.Extra == nil {
				r.Extra = make(map[string]string)
			}
			r.Extra[col] = get(i)
		}
	}
	return r
}

func (s *Store) encodeRecord(columns []string, r *models.Record) []string {
	row := make([]string, len(columns))
	for i, col := range columns {
		switch col {
		case ColID:
			row[i] = strconv.FormatInt(r.ID, 10)
		case ColSourceFile:
			row[i] = r.SourceFile
		case ColName:
			row[i] = r.Name
		case ColCategory:
			row[i] = r.Category
		case ColCategoryID:
			row[i] = r.CategoryID
		case ColCondition:
			row[i] = r.Condition
		case ColQuantity:
			row[i] = strconv.Itoa(r.Quantity)
		case ColUnitPrice:
			row[i] = s.formatPrice(r.UnitPrice)
		case ColNewPrice:
			row[i] = s.formatPrice(r.NewPrice)
		case ColTotalPrice:
			row[i] = s.formatPrice(r.TotalPrice)
		case ColConfidence:
			row[i] = strconv.Itoa(r.Confidence)
		case ColBox:
			if r.Box != nil {
				row[i] = r.Box.String()
			}
		case ColComment:
			row[i] = r.Comment
		case ColThumbnail:
			row[i] = r.Thumbnail
		case ColPendingRemark:
			row[i] = r.PendingRemark
		case ColProcessedRemark:
			row[i] = r.ProcessedRemark
		default:
			row[i] = r.Extra[col]
		}
	}
	return row
}

// formatPrice renders two decimal places with the configured separator.
func (s *Store) formatPrice(d decimal.Decimal) string {
	out := d.StringFixed(2)
	if s.decimalSeparator != "." {
		out = strings.Replace(out, ".", s.decimalSeparator, 1)
	}
	return out
}

// coercePrice accepts either decimal separator; anything unparsable is 0.
func (s *Store) coercePrice(val string) decimal.Decimal {
	if val == "" {
		return decimal.Zero
	}
	val = strings.Replace(val, ",", ".", 1)
	d, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func coerceInt64(val string) int64 {
	if val == "" {
		return 0
	}
	if n, err := strconv.ParseInt(val, 10, 64); err == nil {
		return n
	}
	// Legacy exports rendered integers as floats ("3.0").
	if f, err := strconv.ParseFloat(strings.Replace(val, ",", ".", 1), 64); err == nil {
		return int64(f)
	}
	return 0
}
