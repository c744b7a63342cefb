// Package storerecord defines the record shape read from the authoritative
// record store (spec.md §3).
package storerecord

import "time"

// Record is one bibliographic record as stored in the "record" collection.
type Record struct {
	ID            string    `bson:"_id"`
	SourceID      string    `bson:"source_id"`
	Format        string    `bson:"format"`
	OAIID         string    `bson:"oai_id"`
	LinkingID     string    `bson:"linking_id"`
	HostRecordID  string    `bson:"host_record_id"`
	DedupKey      string    `bson:"dedup_key"`
	Key           string    `bson:"key"`
	Updated       time.Time `bson:"updated"`
	Created       time.Time `bson:"created"`
	Date          time.Time `bson:"date"`
	Deleted       bool      `bson:"deleted"`
	UpdateNeeded  bool      `bson:"update_needed"`
	RawMetadata   []byte    `bson:"original_data"`
}

// IsComponentPart reports whether the record represents a subunit of a
// host record (spec.md GLOSSARY: "Component part").
func (r *Record) IsComponentPart() bool {
	return r.HostRecordID != ""
}

// HasDedupKey reports whether the record participates in a dedup group.
func (r *Record) HasDedupKey() bool {
	return r.DedupKey != ""
}
