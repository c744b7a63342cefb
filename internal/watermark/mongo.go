package watermark

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store against the "state" collection.
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore wraps the given database's "state" collection.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection("state")}
}

func (s *MongoStore) Read(ctx context.Context, key string) (time.Time, bool, error) {
	var doc stateDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("watermark: read %s: %w", key, err)
	}
	return doc.Value, true, nil
}

func (s *MongoStore) Write(ctx context.Context, key string, instant time.Time) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$set": bson.M{"value": instant}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("watermark: write %s: %w", key, err)
	}
	return nil
}
