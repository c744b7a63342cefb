package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/rajaro/RecordManager-Finna/internal/apperr"
	"github.com/rajaro/RecordManager-Finna/internal/store"
)

// DeleteDataSource implements spec.md §4.7 deleteDataSource(sourceId):
// delete-by-query "id:<sourceId>.*" followed by a long-timeout commit.
func (d *Driver) DeleteDataSource(ctx context.Context, sourceID string) error {
	query := fmt.Sprintf("id:%s.*", sourceID)
	if err := d.transport.DeleteByQuery(ctx, query); err != nil {
		return apperr.Wrap(apperr.CodeTransport, apperr.SeverityFatal, "pipeline", "DeleteDataSource", err)
	}
	if err := d.transport.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.CodeTransport, apperr.SeverityFatal, "pipeline", "DeleteDataSource", err)
	}
	return d.transport.Await(ctx)
}

// OptimizeIndex implements spec.md §4.7 optimizeIndex().
func (d *Driver) OptimizeIndex(ctx context.Context) error {
	if err := d.transport.Optimize(ctx); err != nil {
		return apperr.Wrap(apperr.CodeTransport, apperr.SeverityFatal, "pipeline", "OptimizeIndex", err)
	}
	return nil
}

// FieldCount is one row of CountValues' tally, sorted descending by Count.
type FieldCount struct {
	Value string
	Count int
}

// CountValues implements spec.md §4.7 countValues(sourceId, field): no
// search-backend calls, just enumerate live records for sourceID, project,
// and tally the given field's values.
func (d *Driver) CountValues(ctx context.Context, sourceID, field string) ([]FieldCount, error) {
	filter := store.RecordFilter{SourceID: sourceID}
	cursor, err := d.store.Records(ctx, filter)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStore, apperr.SeverityFatal, "pipeline", "CountValues", err)
	}
	defer cursor.Close(ctx)

	tally := make(map[string]int)
	for cursor.Next(ctx) {
		rec, err := cursor.Decode()
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeStore, apperr.SeverityFatal, "pipeline", "CountValues", err)
		}
		if rec.Deleted {
			continue
		}
		result, err := d.projector.Project(ctx, rec)
		if err != nil {
			return nil, err
		}
		if result.Skip {
			continue
		}
		for _, v := range result.Doc.GetList(field) {
			tally[v]++
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, apperr.Wrap(apperr.CodeStore, apperr.SeverityFatal, "pipeline", "CountValues", err)
	}

	out := make([]FieldCount, 0, len(tally))
	for v, c := range tally {
		out = append(out, FieldCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out, nil
}
