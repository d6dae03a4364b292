package store

import (
	"sort"

	"inventaire-ai/internal/models"
)

// Ledger is the in-memory tabular record: one Record per detected object.
// All mutation goes through these methods so the total-price and identity
// invariants hold no matter which actor (batch pass or interactive review)
// is writing.
type Ledger struct {
	Path    string
	Columns []string
	Records []*models.Record
}

// MaxID returns the highest live record id, or 0 for an empty ledger.
func (l *Ledger) MaxID() int64 {
	var maxID int64
	for _, r := range l.Records {
		if r.ID > maxID {
			maxID = r.ID
		}
	}
	return maxID
}

// NextID returns the id to assign to a newly created record: one past the
// highest id still alive in the ledger.
func (l *Ledger) NextID() int64 {
	return l.MaxID() + 1
}

// RecordByID returns the live record with the given id, or nil.
func (l *Ledger) RecordByID(id int64) *models.Record {
	for _, r := range l.Records {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// AppendRecord adds a record, assigning a fresh id when none is set and
// re-deriving the total price.
func (l *Ledger) AppendRecord(r *models.Record) {
	if r.ID == 0 {
		r.ID = l.NextID()
	}
	r.RecomputeTotal()
	l.Records = append(l.Records, r)
}

// UpsertRecord replaces the record with the same id, or appends when the id
// is unknown. The total price is re-derived either way.
func (l *Ledger) UpsertRecord(r *models.Record) {
	r.RecomputeTotal()
	for i, existing := range l.Records {
		if existing.ID == r.ID {
			l.Records[i] = r
			return
		}
	}
	l.Records = append(l.Records, r)
}

// DeleteRecord removes the record with the given id and reports whether it
// existed.
func (l *Ledger) DeleteRecord(id int64) bool {
	for i, r := range l.Records {
		if r.ID == id {
			l.Records = append(l.Records[:i], l.Records[i+1:]...)
			return true
		}
	}
	return false
}

// Siblings returns all records sharing a source file, ordered by id.
func (l *Ledger) Siblings(sourceFile string) []*models.Record {
	var out []*models.Record
	for _, r := range l.Records {
		if r.SourceFile == sourceFile {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SourceFiles returns the distinct source files in ledger order.
func (l *Ledger) SourceFiles() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range l.Records {
		if r.SourceFile == "" || seen[r.SourceFile] {
			continue
		}
		seen[r.SourceFile] = true
		out = append(out, r.SourceFile)
	}
	return out
}

// HasSourceFile reports whether any record references the given file.
func (l *Ledger) HasSourceFile(sourceFile string) bool {
	for _, r := range l.Records {
		if r.SourceFile == sourceFile {
			return true
		}
	}
	return false
}

// MinConfidence returns the lowest confidence among a file's records.
// Missing files report the validated score so they sort last.
func (l *Ledger) MinConfidence(sourceFile string) int {
	minConf := models.ConfidenceValidated
	found := false
	for _, r := range l.Records {
		if r.SourceFile != sourceFile {
			continue
		}
		if !found || r.Confidence < minConf {
			minConf = r.Confidence
		}
		found = true
	}
	return minConf
}
