// Package storetest provides an in-memory store.Store implementation for
// exercising the projector, merge engine, and pipeline driver without a
// real Mongo deployment.
package storetest

import (
	"context"
	"sort"
	"time"

	"github.com/rajaro/RecordManager-Finna/internal/metadata"
	"github.com/rajaro/RecordManager-Finna/internal/store"
	"github.com/rajaro/RecordManager-Finna/internal/storerecord"
)

// Store is an in-memory store.Store.
type Store struct {
	Records_   []*storerecord.Record
	Locations_ map[string][]store.Location
	aux        map[string][]auxRow
}

type auxRow struct {
	key   string
	count int64
}

// New builds an empty fake store.
func New() *Store {
	return &Store{Locations_: make(map[string][]store.Location), aux: make(map[string][]auxRow)}
}

// Add inserts records for use by tests.
func (s *Store) Add(recs ...*storerecord.Record) { s.Records_ = append(s.Records_, recs...) }

func matches(r *storerecord.Record, f store.RecordFilter) bool {
	if f.SingleID != "" {
		return r.ID == f.SingleID
	}
	if f.SourceID != "" && r.SourceID != f.SourceID {
		return false
	}
	if f.SkipUpdateNeeded && r.UpdateNeeded {
		return false
	}
	if f.RequireDedupKey && r.DedupKey == "" {
		return false
	}
	if f.ExcludeDedupKey && r.DedupKey != "" {
		return false
	}
	if f.UpdatedFrom != nil && r.Updated.Before(*f.UpdatedFrom) {
		return false
	}
	return true
}

type sliceCursor struct {
	items []*storerecord.Record
	idx   int
}

func (c *sliceCursor) Next(ctx context.Context) bool { c.idx++; return c.idx <= len(c.items) }
func (c *sliceCursor) Err() error                     { return nil }
func (c *sliceCursor) Close(ctx context.Context) error { return nil }
func (c *sliceCursor) Decode() (*storerecord.Record, error) { return c.items[c.idx-1], nil }

func (s *Store) Records(ctx context.Context, filter store.RecordFilter) (store.RecordCursor, error) {
	var out []*storerecord.Record
	for _, r := range s.Records_ {
		if matches(r, filter) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Updated.Before(out[j].Updated) })
	return &sliceCursor{items: out}, nil
}

func (s *Store) RecordByLinkingID(ctx context.Context, sourceID, linkingID string) (*storerecord.Record, bool, error) {
	for _, r := range s.Records_ {
		if r.SourceID == sourceID && r.LinkingID == linkingID {
			return r, true, nil
		}
	}
	return nil, false, nil
}

type fakeComponentCursor struct {
	items []*storerecord.Record
	idx   int
}

func (c *fakeComponentCursor) Next(ctx context.Context) bool { c.idx++; return c.idx <= len(c.items) }
func (c *fakeComponentCursor) Close(ctx context.Context) error { return nil }
func (c *fakeComponentCursor) Decode() (metadata.RawComponent, error) {
	r := c.items[c.idx-1]
	return metadata.RawComponent{ID: r.ID, Metadata: r.RawMetadata}, nil
}

func (s *Store) ComponentsOf(ctx context.Context, sourceID, linkingID string) (metadata.ComponentCursor, error) {
	var out []*storerecord.Record
	for _, r := range s.Records_ {
		if r.SourceID == sourceID && r.HostRecordID == linkingID && !r.Deleted {
			out = append(out, r)
		}
	}
	return &fakeComponentCursor{items: out}, nil
}

func (s *Store) RecordsByDedupKey(ctx context.Context, dedupKey string) (store.RecordCursor, error) {
	var out []*storerecord.Record
	for _, r := range s.Records_ {
		if r.DedupKey == dedupKey {
			out = append(out, r)
		}
	}
	return &sliceCursor{items: out}, nil
}

func (s *Store) AnyLiveRecordWithDedupKey(ctx context.Context, dedupKey, excludeID string) (bool, error) {
	for _, r := range s.Records_ {
		if r.DedupKey == dedupKey && !r.Deleted && r.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

type locCursor struct {
	items []store.Location
	idx   int
}

func (c *locCursor) Next(ctx context.Context) bool   { c.idx++; return c.idx <= len(c.items) }
func (c *locCursor) Close(ctx context.Context) error { return nil }
func (c *locCursor) Decode() (store.Location, error) { return c.items[c.idx-1], nil }

func (s *Store) Locations(ctx context.Context, place string) (store.LocationCursor, error) {
	return &locCursor{items: s.Locations_[place]}, nil
}

func (s *Store) LatestUpdated(ctx context.Context, sourceID string) (time.Time, bool, error) {
	var latest time.Time
	found := false
	for _, r := range s.Records_ {
		if sourceID != "" && r.SourceID != sourceID {
			continue
		}
		if !found || r.Updated.After(latest) {
			latest = r.Updated
			found = true
		}
	}
	return latest, found, nil
}

func (s *Store) DedupAuxExists(ctx context.Context, name string) (bool, error) {
	_, ok := s.aux[name]
	return ok, nil
}

func (s *Store) BuildDedupAux(ctx context.Context, filter store.RecordFilter, name string, matchEmptyFilterAsAll bool) error {
	counts := make(map[string]int64)
	empty := filter.SourceID == "" && filter.SingleID == "" && filter.UpdatedFrom == nil && !filter.RequireDedupKey && !filter.ExcludeDedupKey && !filter.SkipUpdateNeeded
	for _, r := range s.Records_ {
		if empty && !matchEmptyFilterAsAll {
			continue
		}
		if !matches(r, filter) {
			continue
		}
		if r.DedupKey == "" {
			continue
		}
		counts[r.DedupKey]++
	}
	var rows []auxRow
	for k, c := range counts {
		rows = append(rows, auxRow{key: k, count: c})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].key < rows[j].key })
	s.aux[name] = rows
	return nil
}

type auxCursor struct {
	items []auxRow
	idx   int
}

func (c *auxCursor) Next(ctx context.Context) bool   { c.idx++; return c.idx <= len(c.items) }
func (c *auxCursor) Close(ctx context.Context) error { return nil }
func (c *auxCursor) Decode() (string, int64, error) {
	row := c.items[c.idx-1]
	return row.key, row.count, nil
}

func (s *Store) DedupAuxKeys(ctx context.Context, name string) (store.KeyCountCursor, error) {
	return &auxCursor{items: s.aux[name]}, nil
}

func (s *Store) DropStaleAux(ctx context.Context, keep string) error {
	for name := range s.aux {
		if name != keep {
			delete(s.aux, name)
		}
	}
	return nil
}
