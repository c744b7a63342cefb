package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordFilterKeyIsStableForIdenticalFilters(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := RecordFilter{SourceID: "alma", UpdatedFrom: &from, SkipUpdateNeeded: true}
	b := RecordFilter{SourceID: "alma", UpdatedFrom: &from, SkipUpdateNeeded: true}

	assert.Equal(t, a.Key(), b.Key())
}

func TestRecordFilterKeyDiffersWhenFieldsDiffer(t *testing.T) {
	base := RecordFilter{SourceID: "alma", SkipUpdateNeeded: true}
	other := RecordFilter{SourceID: "alma", SkipUpdateNeeded: false}

	assert.NotEqual(t, base.Key(), other.Key())
}

func TestRecordFilterKeyDistinguishesDedupConstraints(t *testing.T) {
	require := RecordFilter{RequireDedupKey: true}
	exclude := RecordFilter{ExcludeDedupKey: true}

	assert.NotEqual(t, require.Key(), exclude.Key())
}

func TestAuxCollectionNameWithoutFromDate(t *testing.T) {
	name := AuxCollectionName("abc123", "", 1700000000)
	assert.Equal(t, "mr_record_abc123_1700000000", name)
}

func TestAuxCollectionNameWithFromDate(t *testing.T) {
	name := AuxCollectionName("abc123", "2026-01-01T00:00:00Z", 1700000000)
	assert.Equal(t, "mr_record_abc123_2026-01-01T00:00:00Z_1700000000", name)
}
