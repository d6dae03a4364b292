package store

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Categories is the id -> display-name lookup. Records store the category
// id canonically; UIs resolve names through this table.
type Categories map[string]string

// LoadCategories reads an optional categories.csv (columns: id,name). A
// missing file is not an error — the lookup is just empty and ids display
// as themselves.
func LoadCategories(path string) (Categories, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Categories{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read categories %s: %w", path, err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse categories %s: %w", path, err)
	}
	if len(rows) == 0 {
		return Categories{}, nil
	}

	idIdx, nameIdx := -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "id":
			idIdx = i
		case "name", "nom":
			nameIdx = i
		}
	}
	if idIdx < 0 || nameIdx < 0 {
		return nil, fmt.Errorf("categories %s: missing id/name columns", path)
	}

	cats := Categories{}
	for _, row := range rows[1:] {
		if idIdx < len(row) && nameIdx < len(row) {
			id := strings.TrimSpace(row[idIdx])
			if id != "" {
				cats[id] = strings.TrimSpace(row[nameIdx])
			}
		}
	}
	return cats, nil
}

// DisplayName resolves an id to its name, falling back to the raw value so
// legacy rows holding a bare name still display.
func (c Categories) DisplayName(id string) string {
	if name, ok := c[id]; ok && name != "" {
		return name
	}
	return id
}

// IDForName reverses the lookup; unknown names return themselves.
func (c Categories) IDForName(name string) string {
	for id, n := range c {
		if n == name {
			return id
		}
	}
	return name
}

// PromptContext renders the table for injection into an analysis prompt.
func (c Categories) PromptContext() string {
	if len(c) == 0 {
		return ""
	}
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	b.WriteString("Known categories (id: name):\n")
	for _, id := range ids {
		fmt.Fprintf(&b, "- %s: %s\n", id, c[id])
	}
	return b.String()
}
