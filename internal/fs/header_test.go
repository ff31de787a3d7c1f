package fs_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lautarocerruti/nachos-go/internal/bitmap"
	"github.com/lautarocerruti/nachos-go/internal/disk"
	"github.com/lautarocerruti/nachos-go/internal/fs"
)

func TestFileHeaderAllocateDeallocateRoundTrip(t *testing.T) {
	freeMap := bitmap.New(200)
	before := freeMap.CountClear()

	h := fs.NewFileHeader()
	require.True(t, h.Allocate(freeMap, 10000), "allocate a file big enough to need both indirection levels")
	require.Less(t, freeMap.CountClear(), before, "allocation should consume sectors")

	h.Deallocate(freeMap)
	require.Equal(t, before, freeMap.CountClear(), "deallocate must return every sector, including indirection blocks")
}

func TestFileHeaderAllocateTooBig(t *testing.T) {
	freeMap := bitmap.New(200)
	h := fs.NewFileHeader()
	require.False(t, h.Allocate(freeMap, fs.MaxFileSize+1))
}

func TestFileHeaderPersistenceWithIndirection(t *testing.T) {
	d := disk.New(200)
	freeMap := bitmap.New(200)

	freeMap.Mark(10) // the header's own sector, so no data sector lands on it

	h := fs.NewFileHeader()
	require.True(t, h.Allocate(freeMap, 5000))
	require.NoError(t, h.WriteBack(d, 10))

	for i := 0; i < h.FileLength(); i += disk.SectorSize {
		sector := h.ByteToSector(i)
		buf := make([]byte, disk.SectorSize)
		for j := range buf {
			buf[j] = byte(i + j)
		}
		require.NoError(t, d.WriteSector(sector, buf))
	}

	loaded := fs.NewFileHeader()
	require.NoError(t, loaded.FetchFrom(d, 10))
	require.Equal(t, h.FileLength(), loaded.FileLength())
	require.Equal(t, h.Sectors(), loaded.Sectors())
	require.Equal(t, h.IndirectionSectors(), loaded.IndirectionSectors())
}

func TestFileHeaderExtendNoOpAndGrowth(t *testing.T) {
	freeMap := bitmap.New(200)
	h := fs.NewFileHeader()
	require.True(t, h.Allocate(freeMap, 100))

	require.True(t, h.Extend(freeMap, 0), "Extend(0) is a no-op")
	require.Equal(t, 100, h.FileLength())

	require.True(t, h.Extend(freeMap, 5000))
	require.Equal(t, 5100, h.FileLength())

	offset := 4500
	sector := h.ByteToSector(offset)
	require.GreaterOrEqual(t, sector, 0)
	require.Less(t, sector, 200)
}

func TestFileHeaderExtendWithinTrailingSectorIsIdempotent(t *testing.T) {
	freeMap := bitmap.New(200)
	h := fs.NewFileHeader()
	require.True(t, h.Allocate(freeMap, 10))
	before := freeMap.CountClear()

	require.True(t, h.Extend(freeMap, 50), "still fits in the one already-allocated sector")
	require.Equal(t, before, freeMap.CountClear(), "no new sector should have been allocated")
	require.Equal(t, 60, h.FileLength())
}
