package bitmap_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lautarocerruti/nachos-go/internal/bitmap"
)

func TestFindMarksLowestClear(t *testing.T) {
	b := bitmap.New(8)
	b.Mark(0)
	b.Mark(1)
	idx := b.Find()
	assert.Equal(t, 2, idx)
	assert.True(t, b.Test(2))
}

func TestFindExhausted(t *testing.T) {
	b := bitmap.New(2)
	require.Equal(t, 0, b.Find())
	require.Equal(t, 1, b.Find())
	assert.Equal(t, -1, b.Find())
}

func TestCountClear(t *testing.T) {
	b := bitmap.New(10)
	for i := 0; i < 3; i++ {
		b.Mark(i)
	}
	assert.Equal(t, 7, b.CountClear())
}

func TestWriteBackFetchFromRoundtrip(t *testing.T) {
	b := bitmap.New(100)
	for i := 0; i < 100; i += 3 {
		b.Mark(i)
	}
	var buf bytes.Buffer
	require.NoError(t, b.WriteBack(&buf))

	b2 := bitmap.New(100)
	require.NoError(t, b2.FetchFrom(&buf))
	for i := 0; i < 100; i++ {
		assert.Equal(t, b.Test(i), b2.Test(i), "bit %d", i)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	b := bitmap.New(4)
	b.Mark(1)
	clone := b.Clone()
	clone.Mark(2)
	assert.False(t, b.Test(2))
	assert.True(t, clone.Test(2))
}
