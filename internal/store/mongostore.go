package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rajaro/RecordManager-Finna/internal/metadata"
	"github.com/rajaro/RecordManager-Finna/internal/storerecord"
)

// MongoStore implements Store against a go.mongodb.org/mongo-driver client,
// following the collection layout of spec.md §6: "record", "state", and
// transient "mr_record_*" auxiliary collections.
type MongoStore struct {
	db *mongo.Database
}

// NewMongoStore wraps an already-connected database handle.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

func (s *MongoStore) records() *mongo.Collection  { return s.db.Collection("record") }
func (s *MongoStore) locations() *mongo.Collection { return s.db.Collection("location") }

func buildFilterDoc(f RecordFilter) bson.M {
	q := bson.M{}
	if f.SingleID != "" {
		q["_id"] = f.SingleID
		return q
	}
	if f.SourceID != "" {
		q["source_id"] = f.SourceID
	}
	if f.SkipUpdateNeeded {
		q["update_needed"] = false
	}
	if f.RequireDedupKey {
		q["dedup_key"] = bson.M{"$exists": true, "$ne": ""}
	}
	if f.ExcludeDedupKey {
		q["$or"] = []bson.M{
			{"dedup_key": bson.M{"$exists": false}},
			{"dedup_key": ""},
		}
	}
	if f.UpdatedFrom != nil {
		q["updated"] = bson.M{"$gte": *f.UpdatedFrom}
	}
	return q
}

type mongoRecordCursor struct {
	cur *mongo.Cursor
}

func (c *mongoRecordCursor) Next(ctx context.Context) bool { return c.cur.Next(ctx) }
func (c *mongoRecordCursor) Err() error                     { return c.cur.Err() }
func (c *mongoRecordCursor) Close(ctx context.Context) error { return c.cur.Close(ctx) }
func (c *mongoRecordCursor) Decode() (*storerecord.Record, error) {
	var r storerecord.Record
	if err := c.cur.Decode(&r); err != nil {
		return nil, fmt.Errorf("store: decode record: %w", err)
	}
	return &r, nil
}

func (s *MongoStore) Records(ctx context.Context, filter RecordFilter) (RecordCursor, error) {
	// NoCursorTimeout preserves the original "immortal cursor" semantics
	// (spec.md §9) across multi-hour enumeration passes.
	opts := options.Find().SetNoCursorTimeout(true).SetSort(bson.D{{Key: "updated", Value: 1}})
	cur, err := s.records().Find(ctx, buildFilterDoc(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("store: find records: %w", err)
	}
	return &mongoRecordCursor{cur: cur}, nil
}

func (s *MongoStore) RecordByLinkingID(ctx context.Context, sourceID, linkingID string) (*storerecord.Record, bool, error) {
	var r storerecord.Record
	err := s.records().FindOne(ctx, bson.M{"source_id": sourceID, "linking_id": linkingID}).Decode(&r)
	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: find host by linking_id: %w", err)
	}
	return &r, true, nil
}

type componentCursor struct {
	cur *mongo.Cursor
}

func (c *componentCursor) Next(ctx context.Context) bool { return c.cur.Next(ctx) }
func (c *componentCursor) Close(ctx context.Context) error { return c.cur.Close(ctx) }
func (c *componentCursor) Decode() (metadata.RawComponent, error) {
	var raw struct {
		ID       string `bson:"_id"`
		Metadata []byte `bson:"original_data"`
	}
	if err := c.cur.Decode(&raw); err != nil {
		return metadata.RawComponent{}, fmt.Errorf("store: decode component: %w", err)
	}
	return metadata.RawComponent{ID: raw.ID, Metadata: raw.Metadata}, nil
}

func (s *MongoStore) ComponentsOf(ctx context.Context, sourceID, linkingID string) (metadata.ComponentCursor, error) {
	opts := options.Find().SetNoCursorTimeout(true)
	filter := bson.M{"source_id": sourceID, "host_record_id": linkingID, "deleted": false}
	cur, err := s.records().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("store: find components: %w", err)
	}
	return &componentCursor{cur: cur}, nil
}

func (s *MongoStore) RecordsByDedupKey(ctx context.Context, dedupKey string) (RecordCursor, error) {
	opts := options.Find().SetNoCursorTimeout(true)
	cur, err := s.records().Find(ctx, bson.M{"dedup_key": dedupKey}, opts)
	if err != nil {
		return nil, fmt.Errorf("store: find by dedup_key: %w", err)
	}
	return &mongoRecordCursor{cur: cur}, nil
}

type locationCursor struct {
	cur *mongo.Cursor
}

func (c *locationCursor) Next(ctx context.Context) bool   { return c.cur.Next(ctx) }
func (c *locationCursor) Close(ctx context.Context) error { return c.cur.Close(ctx) }
func (c *locationCursor) Decode() (Location, error) {
	var raw struct {
		Place      string  `bson:"place"`
		Importance int     `bson:"importance"`
		Lon        float64 `bson:"lon"`
		Lat        float64 `bson:"lat"`
	}
	if err := c.cur.Decode(&raw); err != nil {
		return Location{}, fmt.Errorf("store: decode location: %w", err)
	}
	return Location{Place: raw.Place, Importance: raw.Importance, LonLat: fmt.Sprintf("%g %g", raw.Lon, raw.Lat)}, nil
}

func (s *MongoStore) AnyLiveRecordWithDedupKey(ctx context.Context, dedupKey, excludeID string) (bool, error) {
	count, err := s.records().CountDocuments(ctx, bson.M{
		"dedup_key": dedupKey,
		"deleted":   false,
		"_id":       bson.M{"$ne": excludeID},
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("store: any live record with dedup_key: %w", err)
	}
	return count > 0, nil
}

func (s *MongoStore) Locations(ctx context.Context, place string) (LocationCursor, error) {
	opts := options.Find().SetSort(bson.D{{Key: "importance", Value: 1}})
	cur, err := s.locations().Find(ctx, bson.M{"place": strings.ToUpper(strings.TrimSpace(place))}, opts)
	if err != nil {
		return nil, fmt.Errorf("store: find location: %w", err)
	}
	return &locationCursor{cur: cur}, nil
}

func (s *MongoStore) LatestUpdated(ctx context.Context, sourceID string) (time.Time, bool, error) {
	q := bson.M{}
	if sourceID != "" {
		q["source_id"] = sourceID
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "updated", Value: -1}})
	var raw struct {
		Updated time.Time `bson:"updated"`
	}
	err := s.records().FindOne(ctx, q, opts).Decode(&raw)
	if err == mongo.ErrNoDocuments {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("store: latest updated: %w", err)
	}
	return raw.Updated, true, nil
}

func (s *MongoStore) DedupAuxExists(ctx context.Context, name string) (bool, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.M{"name": name})
	if err != nil {
		return false, fmt.Errorf("store: list collections: %w", err)
	}
	return len(names) > 0, nil
}

// BuildDedupAux runs a server-side map/reduce emitting (dedup_key, 1) under
// filter and reducing by sum, replacing the named collection, per spec.md
// §4.7 step 3. When filter reduces to an empty query document, the
// matchEmptyFilterAsAll flag pins the §9 open question: false (the
// default) treats the pass as matching nothing; true treats it as "all
// records".
func (s *MongoStore) BuildDedupAux(ctx context.Context, filter RecordFilter, name string, matchEmptyFilterAsAll bool) error {
	query := buildFilterDoc(filter)
	if len(query) == 0 && !matchEmptyFilterAsAll {
		// Pinned open-question behavior (spec.md §9): an empty filter
		// matches nothing unless explicitly opted in.
		query = bson.M{"_id": bson.M{"$exists": false}}
	}

	mapFn := `function() { if (this.dedup_key) { emit(this.dedup_key, 1); } }`
	reduceFn := `function(key, values) { return Array.sum(values); }`

	cmd := bson.D{
		{Key: "mapReduce", Value: "record"},
		{Key: "map", Value: mapFn},
		{Key: "reduce", Value: reduceFn},
		{Key: "query", Value: query},
		{Key: "out", Value: bson.M{"replace": name}},
	}
	if err := s.db.RunCommand(ctx, cmd).Err(); err != nil {
		return fmt.Errorf("store: build dedup aux %s: %w", name, err)
	}
	return nil
}

type keyCountCursor struct {
	cur *mongo.Cursor
}

func (c *keyCountCursor) Next(ctx context.Context) bool   { return c.cur.Next(ctx) }
func (c *keyCountCursor) Close(ctx context.Context) error { return c.cur.Close(ctx) }
func (c *keyCountCursor) Decode() (string, int64, error) {
	var raw struct {
		ID    string  `bson:"_id"`
		Value float64 `bson:"value"`
	}
	if err := c.cur.Decode(&raw); err != nil {
		return "", 0, fmt.Errorf("store: decode aux row: %w", err)
	}
	return raw.ID, int64(raw.Value), nil
}

func (s *MongoStore) DedupAuxKeys(ctx context.Context, name string) (KeyCountCursor, error) {
	opts := options.Find().SetNoCursorTimeout(true)
	cur, err := s.db.Collection(name).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("store: find aux keys: %w", err)
	}
	return &keyCountCursor{cur: cur}, nil
}

func (s *MongoStore) DropStaleAux(ctx context.Context, keep string) error {
	names, err := s.db.ListCollectionNames(ctx, bson.M{"name": bson.M{"$regex": "^mr_record_"}})
	if err != nil {
		return fmt.Errorf("store: list aux collections: %w", err)
	}
	for _, n := range names {
		if n == keep {
			continue
		}
		if err := s.db.Collection(n).Drop(ctx); err != nil {
			return fmt.Errorf("store: drop stale aux %s: %w", n, err)
		}
	}
	return nil
}
