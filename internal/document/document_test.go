package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetListSetList(t *testing.T) {
	d := Doc{"topic": "history"}
	assert.Equal(t, []string{"history"}, d.GetList("topic"))
	assert.Nil(t, d.GetList("missing"))

	d.SetList("topic", []string{"a", "b"})
	assert.Equal(t, []string{"a", "b"}, d["topic"])

	d.SetList("topic", nil)
	_, ok := d["topic"]
	assert.False(t, ok, "setting an empty list should remove the field")
}

func TestIsEmptyValue(t *testing.T) {
	cases := []struct {
		name string
		v    interface{}
		want bool
	}{
		{"nil", nil, true},
		{"empty string", "", true},
		{"zero string", "0", false},
		{"empty list", []string{}, true},
		{"non-empty list", []string{"x"}, false},
		{"int is not empty", 0, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, IsEmptyValue(c.v))
		})
	}
}

func TestStripEmpty(t *testing.T) {
	d := Doc{
		"title":  "Moby Dick",
		"author": "",
		"topic":  []string{},
		"pages":  "0",
	}
	d.StripEmpty()
	assert.Equal(t, Doc{"title": "Moby Dick", "pages": "0"}, d)
}

func TestDedupList(t *testing.T) {
	in := []string{"A", "b", "a", "C", "B"}
	require.Equal(t, []string{"A", "b", "C"}, DedupList(in, true))
	require.Equal(t, []string{"A", "b", "a", "C", "B"}, DedupList(in, false))
}

func TestCloneIsIndependent(t *testing.T) {
	d := Doc{"title": "x", "topic": []string{"a", "b"}}
	clone := d.Clone()
	clone["topic"].([]string)[0] = "z"
	assert.Equal(t, "a", d["topic"].([]string)[0], "cloning must copy list slices")
}
