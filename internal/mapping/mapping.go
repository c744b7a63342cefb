// Package mapping implements the mapping table loader (C1): parses
// "KEY = VALUE" translation files with reserved sentinel keys, per
// spec.md §4.1.
package mapping

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rajaro/RecordManager-Finna/internal/document"
)

// Table is a loaded mapping table: raw key/value entries plus any of the
// three reserved sentinels that were present. A Table's state can be
// swapped out from under readers by Registry's hot-reload, so every
// accessor and the swap itself go through mu.
type Table struct {
	mu sync.RWMutex

	values        map[string]string
	hasDefault    bool
	defaultValue  string
	hasEmpty      bool
	emptyValue    string
	hasEmptyArr   bool
	emptyArrValue string
}

// Load reads path and parses it into a Table per spec.md §4.1: blank lines
// and lines starting with ";" are skipped; "KEY = VALUE" assigns a mapping;
// "KEY =" (empty RHS) maps KEY to ""; a line lacking "=" is a parse error.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mapping: open %s: %w", path, err)
	}
	return parseTable(path, bytes.NewReader(data))
}

func parseTable(path string, r io.Reader) (*Table, error) {
	t := &Table{values: make(map[string]string)}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, ";") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx < 0 {
			return nil, fmt.Errorf("mapping: %s:%d: missing '=' delimiter", path, lineNo)
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		t.set(key, value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("mapping: read %s: %w", path, err)
	}
	return t, nil
}

// replaceFrom swaps t's state for other's, in place, so callers already
// holding a *Table pick up a hot-reloaded table without re-fetching it.
func (t *Table) replaceFrom(other *Table) {
	t.mu.Lock()
	defer t.mu.Unlock()
	other.mu.RLock()
	defer other.mu.RUnlock()
	t.values = other.values
	t.hasDefault = other.hasDefault
	t.defaultValue = other.defaultValue
	t.hasEmpty = other.hasEmpty
	t.emptyValue = other.emptyValue
	t.hasEmptyArr = other.hasEmptyArr
	t.emptyArrValue = other.emptyArrValue
}

func (t *Table) set(key, value string) {
	switch key {
	case "##default":
		t.hasDefault = true
		t.defaultValue = value
	case "##empty":
		t.hasEmpty = true
		t.emptyValue = value
	case "##emptyarray":
		t.hasEmptyArr = true
		t.emptyArrValue = value
	default:
		t.values[key] = value
	}
}

// Lookup maps a single value, falling back to ##default when present.
// ok is false when there is neither a direct match nor a default.
func (t *Table) Lookup(value string) (mapped string, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lookupLocked(value)
}

func (t *Table) lookupLocked(value string) (mapped string, ok bool) {
	if v, found := t.values[value]; found {
		return v, true
	}
	if t.hasDefault {
		return t.defaultValue, true
	}
	return "", false
}

// MapScalar applies the table to a scalar field per spec.md §4.2 step 7.
// present reports whether the field should be set at all in the document.
func (t *Table) MapScalar(value string, wasPresent bool) (mapped string, present bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if wasPresent && value != "" {
		if v, ok := t.lookupLocked(value); ok {
			return v, true
		}
		return "", false
	}
	if t.hasEmpty {
		return t.emptyValue, true
	}
	return "", false
}

// MapList applies the table to a list field per spec.md §4.2 step 7,
// deduplicating and reindexing the result afterward.
func (t *Table) MapList(values []string, wasPresent bool) (mapped []string, present bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if wasPresent && len(values) > 0 {
		out := make([]string, 0, len(values))
		for _, v := range values {
			if mv, ok := t.lookupLocked(v); ok {
				out = append(out, mv)
			}
		}
		out = document.DedupList(out, false)
		return out, len(out) > 0
	}
	if t.hasEmptyArr {
		return []string{t.emptyArrValue}, true
	}
	return nil, false
}
