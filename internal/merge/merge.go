// Package merge implements the merge engine (C3): combines projected
// documents for a dedup group into one merged document, per spec.md §4.3.
package merge

import (
	"strings"

	"github.com/rajaro/RecordManager-Finna/internal/document"
	"github.com/rajaro/RecordManager-Finna/internal/sourceconfig"
)

// Engine folds child documents into a group accumulator under the merge
// policy from spec.md §4.3.
type Engine struct {
	mergedFields map[string]struct{}
}

// New builds an Engine with the given multiplicity-field list (field names
// ending in "_mv" are always treated as multiplicity fields regardless of
// this list).
func New(mergedFields []string) *Engine {
	set := make(map[string]struct{}, len(mergedFields))
	for _, f := range mergedFields {
		set[f] = struct{}{}
	}
	return &Engine{mergedFields: set}
}

func (e *Engine) isMultiplicity(field string) bool {
	if strings.HasSuffix(field, "_mv") {
		return true
	}
	_, ok := e.mergedFields[field]
	return ok
}

// Group accumulates merged state across a dedup group's live members.
type Group struct {
	Doc         document.Doc
	LocalIDs    []string
	seenChecked map[string]struct{}
}

// NewGroup starts an empty accumulator.
func NewGroup() *Group {
	return &Group{Doc: document.Doc{}, seenChecked: make(map[string]struct{})}
}

// Merge folds childID's projected doc into g, per spec.md §4.3.
func (e *Engine) Merge(g *Group, childID string, child document.Doc) {
	first := len(g.LocalIDs) == 0

	for field, value := range child {
		switch {
		case e.isMultiplicity(field):
			existing := g.Doc.GetList(field)
			g.Doc.SetList(field, append(existing, toList(value)...))
		case field == document.FieldAllFields:
			existing, _ := g.Doc[document.FieldAllFields].(string)
			incoming := scalarString(value)
			if existing == "" {
				g.Doc[document.FieldAllFields] = incoming
			} else if incoming != "" {
				g.Doc[document.FieldAllFields] = existing + " " + incoming
			}
		case isChecked(field):
			if _, seen := g.seenChecked[field]; !seen {
				g.Doc[field] = value
				g.seenChecked[field] = struct{}{}
			}
		default:
			if field == document.FieldID || field == document.FieldFullRecord {
				continue
			}
			if first {
				if _, exists := g.Doc[field]; !exists {
					g.Doc[field] = value
				}
			}
		}
	}

	g.LocalIDs = append(g.LocalIDs, childID)
	g.Doc.SetList(document.FieldLocalIDsStrMV, append([]string(nil), g.LocalIDs...))
}

func isChecked(field string) bool {
	_, ok := sourceconfig.CheckedFields[field]
	return ok
}

func toList(v interface{}) []string {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	}
	return nil
}

func scalarString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []string:
		return strings.Join(t, " ")
	}
	return ""
}

// Finalize deduplicates multiplicity fields and allfields case-insensitively,
// per spec.md §4.7 step 4 ("after the group ... case-insensitively
// deduplicate"). It returns nothing; IsEmpty reports whether the resulting
// document has any content besides local_ids_str_mv.
func (e *Engine) Finalize(g *Group) {
	for field, v := range g.Doc {
		if lst, ok := v.([]string); ok {
			g.Doc[field] = document.DedupList(lst, true)
		}
	}
	if s, ok := g.Doc[document.FieldAllFields].(string); ok {
		words := strings.Fields(s)
		g.Doc[document.FieldAllFields] = strings.Join(document.DedupList(words, true), " ")
	}
}

// IsEmpty reports whether the finalized merged document carries no
// meaningful content (spec.md §4.7 step 4: "If the merged doc is empty,
// delete dedup_key").
func (g *Group) IsEmpty() bool {
	for field, v := range g.Doc {
		if field == document.FieldLocalIDsStrMV {
			continue
		}
		if !document.IsEmptyValue(v) {
			return false
		}
	}
	return true
}
