// Package watermark implements the per-mode "last successful indexing
// instant" store (C6), persisted in the record store's "state" collection,
// per spec.md §4.6.
package watermark

import (
	"context"
	"fmt"
	"time"
)

// GlobalKey is the watermark key for the merged-records pass.
const GlobalKey = "Last Index Update"

// SourceKey returns the watermark key for an individual-records pass
// against one data source.
func SourceKey(sourceID string) string {
	return fmt.Sprintf("Last Index Update %s", sourceID)
}

// Store persists and reads watermark instants. Implementations must only
// write on full-pass success (spec.md §3 invariant 5, §4.6).
type Store interface {
	Read(ctx context.Context, key string) (time.Time, bool, error)
	Write(ctx context.Context, key string, instant time.Time) error
}

// stateDoc is the document shape stored in the "state" collection,
// upserted by _id = key.
type stateDoc struct {
	ID    string    `bson:"_id"`
	Value time.Time `bson:"value"`
}
