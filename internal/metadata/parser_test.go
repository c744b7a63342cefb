package metadata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeComponentCursor struct {
	items []RawComponent
	idx   int
	closed bool
}

func (c *fakeComponentCursor) Next(ctx context.Context) bool {
	if c.idx >= len(c.items) {
		return false
	}
	c.idx++
	return true
}

func (c *fakeComponentCursor) Decode() (RawComponent, error) {
	return c.items[c.idx-1], nil
}

func (c *fakeComponentCursor) Close(ctx context.Context) error {
	c.closed = true
	return nil
}

func TestGenericParserToMapCollapsesSingleValuedFields(t *testing.T) {
	p, err := GenericFactory{}.NewParser("generic", []byte("title=Moby Dick\nauthor=Melville\n"), "oai1", "s1")
	require.NoError(t, err)

	doc, err := p.ToMap()
	require.NoError(t, err)
	assert.Equal(t, "Moby Dick", doc["title"])
	assert.Equal(t, "Melville", doc["author"])
}

func TestGenericParserToMapKeepsRepeatedFieldsAsSlice(t *testing.T) {
	p, err := GenericFactory{}.NewParser("generic", []byte("topic=whaling\ntopic=revenge\n"), "oai1", "s1")
	require.NoError(t, err)

	doc, err := p.ToMap()
	require.NoError(t, err)
	assert.Equal(t, []string{"whaling", "revenge"}, doc["topic"])
}

func TestGenericParserIgnoresBlankLinesAndLinesWithoutEquals(t *testing.T) {
	p, err := GenericFactory{}.NewParser("generic", []byte("title=Moby Dick\n\nnot a field\n"), "oai1", "s1")
	require.NoError(t, err)

	doc, err := p.ToMap()
	require.NoError(t, err)
	assert.Len(t, doc, 1)
}

func TestGenericParserContainerAndTitleAccessors(t *testing.T) {
	raw := []byte("title=Chapter One\ncontainer_title=Moby Dick\ncontainer_volume=1\n")
	p, err := GenericFactory{}.NewParser("generic", raw, "oai1", "s1")
	require.NoError(t, err)

	assert.Equal(t, "Chapter One", p.Title())
	assert.Equal(t, "Moby Dick", p.ContainerTitle())
	assert.Equal(t, "1", p.ContainerVolume())
	assert.Equal(t, "", p.ContainerIssue())
}

func TestGenericParserMergeComponentPartsAccumulatesContents(t *testing.T) {
	p, err := GenericFactory{}.NewParser("generic", []byte("title=Host\n"), "oai1", "s1")
	require.NoError(t, err)

	cursor := &fakeComponentCursor{items: []RawComponent{
		{ID: "c1", Metadata: []byte("chapter one")},
		{ID: "c2", Metadata: []byte("chapter two")},
	}}

	count, err := p.(*GenericParser).MergeComponentParts(context.Background(), cursor)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.True(t, cursor.closed)

	doc, err := p.ToMap()
	require.NoError(t, err)
	assert.Equal(t, []string{"chapter one", "chapter two"}, doc["contents"])
}

func TestGenericParserToXMLProducesOneFieldElementPerValue(t *testing.T) {
	p, err := GenericFactory{}.NewParser("generic", []byte("title=Moby Dick\ntopic=whaling\ntopic=sea\n"), "oai1", "s1")
	require.NoError(t, err)

	xmlOut, err := p.ToXML()
	require.NoError(t, err)
	assert.Contains(t, xmlOut, `name="title"`)
	assert.Contains(t, xmlOut, "Moby Dick")
	assert.Contains(t, xmlOut, "whaling")
	assert.Contains(t, xmlOut, "sea")
}

func TestNoopTransformerReturnsEmptyDoc(t *testing.T) {
	doc, err := NoopTransformer{}.Transform(context.Background(), "<x/>", nil)
	require.NoError(t, err)
	assert.Empty(t, doc)
}
