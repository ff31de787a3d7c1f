package fs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lautarocerruti/nachos-go/internal/fs"
)

func TestDirectoryAddFindRemove(t *testing.T) {
	d := fs.NewDirectory()
	d.SetInitialValue(4)

	ok, grew := d.Add("foo", 10, false)
	require.True(t, ok)
	require.False(t, grew, "a free slot exists, no growth needed")
	assert.Equal(t, 10, d.Find("foo"))
	assert.Equal(t, -1, d.Find("bar"))

	ok, _ = d.Add("foo", 11, false)
	assert.False(t, ok, "duplicate name must be rejected")

	assert.True(t, d.Remove("foo"))
	assert.Equal(t, -1, d.Find("foo"))
	assert.False(t, d.Remove("foo"), "removing twice reports not-found")
}

func TestDirectoryGrowsPastInitialSize(t *testing.T) {
	d := fs.NewDirectory()
	d.SetInitialValue(1)

	ok, grew := d.Add("a", 1, false)
	require.True(t, ok)
	require.False(t, grew)

	ok, grew = d.Add("b", 2, false)
	require.True(t, ok)
	require.True(t, grew, "table had no free slot, so Add appended one")
}

func TestDirectoryIsEmptyAndList(t *testing.T) {
	d := fs.NewDirectory()
	d.SetInitialValue(3)
	assert.True(t, d.IsEmpty())

	d.Add("a", 5, false)
	d.Add("b", 6, true)
	assert.False(t, d.IsEmpty())

	entries := d.List()
	assert.Len(t, entries, 2)
}
