package disk_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lautarocerruti/nachos-go/internal/disk"
)

func TestMemDiskWriteReadRoundTrip(t *testing.T) {
	d := disk.New(4)
	assert.Equal(t, 4, d.NumSectors())

	buf := make([]byte, disk.SectorSize)
	for i := range buf {
		buf[i] = byte(i)
	}
	require.NoError(t, d.WriteSector(2, buf))

	got := make([]byte, disk.SectorSize)
	require.NoError(t, d.ReadSector(2, got))
	assert.Equal(t, buf, got)
}

func TestMemDiskStartsZeroed(t *testing.T) {
	d := disk.New(1)
	got := make([]byte, disk.SectorSize)
	require.NoError(t, d.ReadSector(0, got))
	for _, b := range got {
		assert.Zero(t, b)
	}
}

func TestMemDiskOutOfRangeSectorFails(t *testing.T) {
	d := disk.New(2)
	buf := make([]byte, disk.SectorSize)
	assert.Error(t, d.ReadSector(-1, buf))
	assert.Error(t, d.ReadSector(2, buf))
	assert.Error(t, d.WriteSector(2, buf))
}

func TestMemDiskSectorsAreIndependent(t *testing.T) {
	d := disk.New(2)
	a := make([]byte, disk.SectorSize)
	a[0] = 0xAA
	require.NoError(t, d.WriteSector(0, a))

	b := make([]byte, disk.SectorSize)
	require.NoError(t, d.ReadSector(1, b))
	assert.Zero(t, b[0], "writing sector 0 must not touch sector 1")
}
