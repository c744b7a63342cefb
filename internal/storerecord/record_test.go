package storerecord

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsComponentPartReflectsHostRecordID(t *testing.T) {
	host := &Record{ID: "h1"}
	assert.False(t, host.IsComponentPart())

	component := &Record{ID: "c1", HostRecordID: "h1"}
	assert.True(t, component.IsComponentPart())
}

func TestHasDedupKeyReflectsDedupKey(t *testing.T) {
	assert.False(t, (&Record{}).HasDedupKey())
	assert.True(t, (&Record{DedupKey: "dk1"}).HasDedupKey())
}
