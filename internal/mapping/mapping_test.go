package mapping

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTable(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "format_map.properties")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadParsesEntriesAndSentinels(t *testing.T) {
	path := writeTable(t, "; comment\n\nBook = Book\nSerial = Journal\n##default = Other\n")
	table, err := Load(path)
	require.NoError(t, err)

	v, ok := table.Lookup("Book")
	assert.True(t, ok)
	assert.Equal(t, "Book", v)

	v, ok = table.Lookup("Unmapped")
	assert.True(t, ok, "##default should catch unmapped values")
	assert.Equal(t, "Other", v)
}

func TestLoadRejectsLineWithoutDelimiter(t *testing.T) {
	path := writeTable(t, "not-a-mapping-line\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestMapScalarAbsentFieldUsesEmptySentinel(t *testing.T) {
	path := writeTable(t, "##empty = Unknown\n")
	table, err := Load(path)
	require.NoError(t, err)

	mapped, present := table.MapScalar("", false)
	assert.True(t, present)
	assert.Equal(t, "Unknown", mapped)
}

func TestMapScalarNoDefaultDropsUnmapped(t *testing.T) {
	path := writeTable(t, "Book = Book\n")
	table, err := Load(path)
	require.NoError(t, err)

	_, present := table.MapScalar("Thesis", true)
	assert.False(t, present, "a value with no mapping and no default should be dropped")
}

func TestMapListDedupsAndDropsUnmapped(t *testing.T) {
	path := writeTable(t, "eng = English\nfre = French\n")
	table, err := Load(path)
	require.NoError(t, err)

	mapped, present := table.MapList([]string{"eng", "ger", "fre", "eng"}, true)
	assert.True(t, present)
	assert.Equal(t, []string{"English", "French"}, mapped)
}

func TestMapListAbsentFieldUsesEmptyArraySentinel(t *testing.T) {
	path := writeTable(t, "##emptyarray = Unknown\n")
	table, err := Load(path)
	require.NoError(t, err)

	mapped, present := table.MapList(nil, false)
	assert.True(t, present)
	assert.Equal(t, []string{"Unknown"}, mapped)
}

func TestEmptyAndEmptyArraySentinelsAreIndependent(t *testing.T) {
	path := writeTable(t, "##empty = UnknownScalar\n##emptyarray = UnknownList\n")
	table, err := Load(path)
	require.NoError(t, err)

	scalar, present := table.MapScalar("", false)
	assert.True(t, present)
	assert.Equal(t, "UnknownScalar", scalar)

	list, present := table.MapList(nil, false)
	assert.True(t, present)
	assert.Equal(t, []string{"UnknownList"}, list)
}
