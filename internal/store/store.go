// Package store defines the record-store contract consumed by the pipeline
// driver (C7) and the record projector (C2). spec.md §6 treats the record
// store as a black box; this package gives it a concrete, Mongo-shaped
// interface (collections, cursors, map/reduce) so the rest of the pipeline
// can be built and tested against either the real driver or an in-memory
// fake.
package store

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rajaro/RecordManager-Finna/internal/metadata"
	"github.com/rajaro/RecordManager-Finna/internal/storerecord"
)

// RecordCursor enumerates storerecord.Record values. Implementations over
// the real driver must disable server-side cursor timeouts (spec.md §9,
// "cursor-long-life flag") so multi-hour passes survive.
type RecordCursor interface {
	Next(ctx context.Context) bool
	Decode() (*storerecord.Record, error)
	Err() error
	Close(ctx context.Context) error
}

// KeyCountCursor enumerates the auxiliary dedup-group collection's rows
// (dedup_key -> member count), spec.md §3.
type KeyCountCursor interface {
	Next(ctx context.Context) bool
	Decode() (key string, count int64, err error)
	Close(ctx context.Context) error
}

// Location is one row of the "location" collection consulted by the
// geocoding step (spec.md §4.2 step 13).
type Location struct {
	Place      string
	Importance int
	LonLat     string // "lon lat", pre-formatted as the backend expects it
}

// LocationCursor enumerates Location rows ordered by Importance ascending.
type LocationCursor interface {
	Next(ctx context.Context) bool
	Decode() (Location, error)
	Close(ctx context.Context) error
}

// RecordFilter composes the query predicates spec.md §4.7 builds for each
// pass. A nil pointer/empty string means "no constraint on that field".
type RecordFilter struct {
	SourceID        string
	SingleID        string
	UpdatedFrom     *time.Time
	RequireDedupKey bool
	ExcludeDedupKey bool
	SkipUpdateNeeded bool // true => add update_needed = false to the query
}

// Key returns a stable identifier for the filter's shape, used to derive
// the auxiliary collection's content-addressed name (spec.md §4.7 step 2).
func (f RecordFilter) Key() string {
	h := md5.New()
	fmt.Fprintf(h, "source=%s;single=%s;dedupReq=%v;dedupExc=%v;skipUN=%v;from=%v",
		f.SourceID, f.SingleID, f.RequireDedupKey, f.ExcludeDedupKey, f.SkipUpdateNeeded, f.UpdatedFrom)
	return hex.EncodeToString(h.Sum(nil))
}

// Store is the record-store contract. See spec.md §6 for the required
// capabilities.
type Store interface {
	// Records opens a cursor over records matching filter.
	Records(ctx context.Context, filter RecordFilter) (RecordCursor, error)
	// RecordByLinkingID looks up the host record referenced by a
	// component part (spec.md §4.2 step 5).
	RecordByLinkingID(ctx context.Context, sourceID, linkingID string) (*storerecord.Record, bool, error)
	// ComponentsOf enumerates live component-part siblings of a host
	// record (spec.md §4.2 step 3).
	ComponentsOf(ctx context.Context, sourceID, linkingID string) (metadata.ComponentCursor, error)
	// RecordsByDedupKey enumerates every record sharing a dedup_key
	// (spec.md §4.7 step 4).
	RecordsByDedupKey(ctx context.Context, dedupKey string) (RecordCursor, error)
	// AnyLiveRecordWithDedupKey reports whether a live (non-deleted)
	// record other than excludeID holds dedupKey as its dedup_key
	// (spec.md §4.7 Phase B's orphan-merged-doc cleanup check).
	AnyLiveRecordWithDedupKey(ctx context.Context, dedupKey, excludeID string) (bool, error)
	// Locations looks up geocoding candidates for place, ordered by
	// importance ascending (spec.md §4.2 step 13).
	Locations(ctx context.Context, place string) (LocationCursor, error)

	// LatestUpdated returns the newest "updated" timestamp among records
	// of sourceID (all records when sourceID is empty), used as the auxiliary
	// collection's cache-busting suffix (spec.md §4.7 step 2).
	LatestUpdated(ctx context.Context, sourceID string) (time.Time, bool, error)
	// DedupAuxExists reports whether the named auxiliary collection
	// already exists.
	DedupAuxExists(ctx context.Context, name string) (bool, error)
	// BuildDedupAux runs the map/reduce that (re)builds the named
	// auxiliary collection (spec.md §4.7 step 3).
	BuildDedupAux(ctx context.Context, filter RecordFilter, name string, matchEmptyFilterAsAll bool) error
	// DedupAuxKeys opens a cursor over the named auxiliary collection.
	DedupAuxKeys(ctx context.Context, name string) (KeyCountCursor, error)
	// DropStaleAux drops every "mr_record_*" collection except keep
	// (spec.md §3 auxiliary-collection invariant, §9).
	DropStaleAux(ctx context.Context, keep string) error
}

// AuxCollectionName derives the content-addressed auxiliary collection
// name per spec.md §4.7 step 2 / §3: "mr_record_<md5(query)>[_<fromDate>]_<lastRecordEpoch>".
func AuxCollectionName(filterKey, fromDate string, lastRecordEpoch int64) string {
	if fromDate != "" {
		return fmt.Sprintf("mr_record_%s_%s_%d", filterKey, fromDate, lastRecordEpoch)
	}
	return fmt.Sprintf("mr_record_%s_%d", filterKey, lastRecordEpoch)
}
