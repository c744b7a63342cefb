package sourceconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRequiresInstitutionAndFormat(t *testing.T) {
	ds := &DataSource{SourceID: "alma"}
	err := ds.Normalize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "institution is required")

	ds = &DataSource{SourceID: "alma", Institution: "MyUni"}
	err = ds.Normalize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "format is required")
}

func TestNormalizeFillsDefaults(t *testing.T) {
	ds := &DataSource{SourceID: "alma", Institution: "MyUni", Format: "marc21"}
	require.NoError(t, ds.Normalize())

	assert.Equal(t, "alma", ds.IDPrefix)
	assert.Equal(t, ComponentPartsAsIs, ds.ComponentParts)
	assert.True(t, ds.IndexMergedPartsValue())
}

func TestNormalizeDoesNotOverrideExplicitValues(t *testing.T) {
	f := false
	ds := &DataSource{
		SourceID: "alma", Institution: "MyUni", Format: "marc21",
		IDPrefix: "custom", ComponentParts: ComponentPartsMergeAll, IndexMergedParts: &f,
	}
	require.NoError(t, ds.Normalize())

	assert.Equal(t, "custom", ds.IDPrefix)
	assert.Equal(t, ComponentPartsMergeAll, ds.ComponentParts)
	assert.False(t, ds.IndexMergedPartsValue())
}

func TestFormatSetsClassification(t *testing.T) {
	fs := DefaultFormatSets()
	fs.Build()

	assert.True(t, fs.IsJournal("Journal"))
	assert.False(t, fs.IsJournal("eJournal"))
	assert.True(t, fs.IsAllJournal("Journal"))
	assert.True(t, fs.IsAllJournal("eJournal"))
	assert.True(t, fs.IsAllArticle("Article"))
	assert.True(t, fs.IsAllArticle("eArticle"))
	assert.False(t, fs.IsAllArticle("Book"))
}

func TestFormatSetsBuildIsIdempotent(t *testing.T) {
	fs := FormatSets{JournalFormats: []string{"Journal", "Serial"}}
	fs.Build()
	fs.JournalFormats = append(fs.JournalFormats, "Ignored")
	fs.Build()

	assert.True(t, fs.IsJournal("Serial"))
	assert.False(t, fs.IsJournal("Ignored"))
}

func TestCheckedFieldsContainsFirstWriterWinsFields(t *testing.T) {
	_, ok := CheckedFields["title"]
	assert.True(t, ok)
	_, ok = CheckedFields["collection"]
	assert.False(t, ok)
}
