package fs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lautarocerruti/nachos-go/internal/fs"
)

func TestPathMergeRelativeAndAbsolute(t *testing.T) {
	root := fs.ParsePath("/")
	p := root.Merge("a").Merge("b")
	assert.Equal(t, []string{"a", "b"}, p.List())
	assert.Equal(t, "/a/b", p.String())

	abs := p.Merge("/x/y")
	assert.Equal(t, []string{"x", "y"}, abs.List())
}

func TestPathMergeDotDot(t *testing.T) {
	p := fs.ParsePath("/a/b/c").Merge("../d")
	assert.Equal(t, []string{"a", "b", "d"}, p.List())
}

func TestPathSplit(t *testing.T) {
	p := fs.ParsePath("/a/b/c")
	last := p.Split()
	assert.Equal(t, "c", last)
	assert.Equal(t, "/a/b", p.String())

	root := fs.ParsePath("/")
	assert.Equal(t, "", root.Split())
}
