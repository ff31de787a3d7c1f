// Package fs implements the multi-user-safe filesystem core: a two-level
// indirection FileHeader, a flat-table Directory, reader/writer FileLock,
// the FileTable/DirectoryTable open-handle bookkeeping, and the
// FileSystem façade tying them together. Grounded throughout on
// filesys/file_header.cc, filesys/filelock.cc, filesys/file_table.cc,
// filesys/directory_table.cc and filesys/file_system.cc.
package fs

import (
	"encoding/binary"

	"github.com/lautarocerruti/nachos-go/internal/bitmap"
	"github.com/lautarocerruti/nachos-go/internal/disk"
)

// headerFixedFields is the byte size of everything in a RawFileHeader
// sector except the direct block table: numBytes, numSectors, fiQuantity,
// siQuantity, firstIndirection, secondIndirection, each a 4-byte field.
const headerFixedFields = 6 * 4

const (
	// NumDirect is how many data sectors fit directly in a header sector
	// alongside its fixed fields.
	NumDirect = (disk.SectorSize - headerFixedFields) / 4
	// NumDirect2 is how many sector numbers fit in one indirection block.
	NumDirect2 = disk.SectorSize / 4

	noIndirection = -1
)

// MaxFileSize is the largest file the two levels of indirection can
// address: direct blocks, plus one first-indirection block, plus
// NumDirect2 second-indirection blocks each pointing at NumDirect2 data
// sectors.
const MaxFileSize = (NumDirect + NumDirect2 + NumDirect2*NumDirect2) * disk.SectorSize

func divRoundUp(n, d int) int { return (n + d - 1) / d }

// FileHeader is the on-disk inode. Unlike a single-level design, it
// upgrades from direct-only to first-indirection to second-indirection as
// the file grows, so small files pay no indirection cost at all.
type FileHeader struct {
	numBytes           int
	numSectors         int
	fiQuantity         int
	siQuantity         int
	firstIndirection   int
	secondIndirection  int
	dataSectors        [NumDirect]uint32
	firstInd           [NumDirect2]uint32
	secondInd          [NumDirect2]uint32   // sectors holding each second-indirection block
	secondIndArray     [][NumDirect2]uint32 // in-memory contents of those blocks
}

// NewFileHeader returns an empty header with no indirection allocated.
func NewFileHeader() *FileHeader {
	return &FileHeader{firstIndirection: noIndirection, secondIndirection: noIndirection}
}

// Allocate reserves fileSize bytes' worth of data sectors (and whatever
// indirection sectors that requires) out of freeMap, atomically: either
// every sector the file will ever need is marked in freeMap and Allocate
// returns true, or nothing is marked and it returns false.
func (h *FileHeader) Allocate(freeMap *bitmap.Bitmap, fileSize int) bool {
	if fileSize > MaxFileSize {
		return false
	}
	h.numBytes = fileSize
	h.numSectors = divRoundUp(fileSize, disk.SectorSize)

	fhSectorsToAllocate := 0
	fiQuantity, siQuantity := 0, 0
	remaining := h.numSectors - NumDirect
	if remaining > 0 {
		fhSectorsToAllocate++
		fiQuantity = min(remaining, NumDirect2)
		remaining -= NumDirect2
		if remaining > 0 {
			fhSectorsToAllocate++
			siQuantity = remaining
			fhSectorsToAllocate += divRoundUp(remaining, NumDirect2)
		}
	}

	if freeMap.CountClear() < h.numSectors+fhSectorsToAllocate {
		return false
	}

	remaining = h.numSectors
	direct := min(remaining, NumDirect)
	for i := 0; i < direct; i++ {
		h.dataSectors[i] = uint32(freeMap.Find())
	}
	remaining -= NumDirect
	if remaining > 0 {
		h.firstIndirection = freeMap.Find()
		h.fiQuantity = fiQuantity
		for i := 0; i < fiQuantity; i++ {
			h.firstInd[i] = uint32(freeMap.Find())
		}
		remaining -= NumDirect2

		if remaining > 0 {
			h.secondIndirection = freeMap.Find()
			h.siQuantity = siQuantity
			i := 0
			for remaining > 0 {
				h.secondInd[i] = uint32(freeMap.Find())
				var block [NumDirect2]uint32
				n := min(remaining, NumDirect2)
				for j := 0; j < n; j++ {
					block[j] = uint32(freeMap.Find())
				}
				h.secondIndArray = append(h.secondIndArray, block)
				remaining -= NumDirect2
				i++
			}
		}
	}
	return true
}

// Extend grows the file by extendSize bytes, allocating additional
// sectors (and upgrading direct-only headers into first- or
// second-indirection layout as needed) out of freeMap. A zero-size extend
// changes nothing; an extend that fits within the file's already-allocated
// trailing sector just bumps numBytes.
func (h *FileHeader) Extend(freeMap *bitmap.Bitmap, extendSize int) bool {
	if extendSize == 0 {
		return true
	}
	if h.numBytes+extendSize > MaxFileSize {
		return false
	}
	if extendSize <= h.numSectors*disk.SectorSize-h.numBytes {
		h.numBytes += extendSize
		return true
	}

	sectorsToAllocate := divRoundUp(h.numBytes+extendSize, disk.SectorSize) - h.numSectors
	totalSectors := sectorsToAllocate + h.numSectors
	headerSectorsToAllocate := 0

	if h.firstIndirection == noIndirection && totalSectors > NumDirect {
		headerSectorsToAllocate++
	}
	if totalSectors > NumDirect+NumDirect2 {
		if h.secondIndirection == noIndirection {
			headerSectorsToAllocate += divRoundUp(totalSectors-(NumDirect+NumDirect2), NumDirect2) + 1
		} else {
			headerSectorsToAllocate += divRoundUp(totalSectors-(NumDirect+NumDirect2), NumDirect2) -
				divRoundUp(h.siQuantity, NumDirect2)
		}
	}

	if freeMap.CountClear() < sectorsToAllocate+headerSectorsToAllocate {
		return false
	}

	remaining := sectorsToAllocate

	if h.numSectors < NumDirect {
		for i := h.numSectors; i < NumDirect && remaining != 0; i++ {
			h.dataSectors[i] = uint32(freeMap.Find())
			remaining--
		}
	}

	if remaining != 0 && h.numSectors < NumDirect+NumDirect2 {
		if h.firstIndirection == noIndirection {
			h.firstIndirection = freeMap.Find()
		}
		for i := h.fiQuantity; i < NumDirect2 && remaining != 0; i++ {
			h.firstInd[i] = uint32(freeMap.Find())
			remaining--
			h.fiQuantity++
		}
	}

	if remaining != 0 {
		if h.secondIndirection == noIndirection {
			h.secondIndirection = freeMap.Find()
		}
		index := h.siQuantity / NumDirect2

		if len(h.secondIndArray) == index+1 {
			for i := h.siQuantity % NumDirect2; i < NumDirect2 && remaining != 0; i++ {
				h.secondIndArray[index][i] = uint32(freeMap.Find())
				h.siQuantity++
				remaining--
			}
			index++
		}

		for remaining > 0 {
			var block [NumDirect2]uint32
			h.secondInd[index] = uint32(freeMap.Find())
			n := min(remaining, NumDirect2)
			for i := 0; i < n; i++ {
				block[i] = uint32(freeMap.Find())
				h.siQuantity++
			}
			h.secondIndArray = append(h.secondIndArray, block)
			remaining -= n
			index++
		}
	}

	h.numBytes += extendSize
	h.numSectors = divRoundUp(h.numBytes, disk.SectorSize)
	return true
}

// Deallocate frees every data and indirection sector this header owns,
// resetting it to an empty header.
func (h *FileHeader) Deallocate(freeMap *bitmap.Bitmap) {
	direct := min(h.numSectors, NumDirect)
	for i := 0; i < direct; i++ {
		freeMap.Clear(int(h.dataSectors[i]))
	}

	if h.firstIndirection != noIndirection {
		for i := 0; i < h.fiQuantity; i++ {
			freeMap.Clear(int(h.firstInd[i]))
		}
		freeMap.Clear(h.firstIndirection)
	}

	if h.secondIndirection != noIndirection {
		index := 0
		for i := 0; i < h.siQuantity; i++ {
			pos := i % NumDirect2
			freeMap.Clear(int(h.secondIndArray[index][pos]))
			if (i+1)%NumDirect2 == 0 {
				freeMap.Clear(int(h.secondInd[index]))
				index++
			}
		}
		if h.siQuantity%NumDirect2 != 0 {
			freeMap.Clear(int(h.secondInd[index]))
		}
		freeMap.Clear(h.secondIndirection)
	}

	h.numBytes, h.numSectors, h.fiQuantity, h.siQuantity = 0, 0, 0, 0
	h.firstIndirection, h.secondIndirection = noIndirection, noIndirection
	h.secondIndArray = nil
}

func encodeIndirectionBlock(block [NumDirect2]uint32) []byte {
	buf := make([]byte, disk.SectorSize)
	for i, s := range block {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], s)
	}
	return buf
}

func decodeIndirectionBlock(buf []byte) [NumDirect2]uint32 {
	var block [NumDirect2]uint32
	for i := range block {
		block[i] = binary.LittleEndian.Uint32(buf[i*4 : i*4+4])
	}
	return block
}

func (h *FileHeader) encode() []byte {
	buf := make([]byte, disk.SectorSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.numBytes))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.numSectors))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(h.fiQuantity))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(h.siQuantity))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(int32(h.firstIndirection)))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(int32(h.secondIndirection)))
	for i := 0; i < NumDirect; i++ {
		off := headerFixedFields + i*4
		binary.LittleEndian.PutUint32(buf[off:off+4], h.dataSectors[i])
	}
	return buf
}

func (h *FileHeader) decode(buf []byte) {
	h.numBytes = int(binary.LittleEndian.Uint32(buf[0:4]))
	h.numSectors = int(binary.LittleEndian.Uint32(buf[4:8]))
	h.fiQuantity = int(binary.LittleEndian.Uint32(buf[8:12]))
	h.siQuantity = int(binary.LittleEndian.Uint32(buf[12:16]))
	h.firstIndirection = int(int32(binary.LittleEndian.Uint32(buf[16:20])))
	h.secondIndirection = int(int32(binary.LittleEndian.Uint32(buf[20:24])))
	for i := 0; i < NumDirect; i++ {
		off := headerFixedFields + i*4
		h.dataSectors[i] = binary.LittleEndian.Uint32(buf[off : off+4])
	}
}

// FetchFrom reads the header sector, and any first-/second-indirection
// blocks it references, off d.
func (h *FileHeader) FetchFrom(d disk.SynchDisk, sector int) error {
	buf := make([]byte, disk.SectorSize)
	if err := d.ReadSector(sector, buf); err != nil {
		return err
	}
	h.decode(buf)

	if h.firstIndirection == noIndirection {
		return nil
	}
	fbuf := make([]byte, disk.SectorSize)
	if err := d.ReadSector(h.firstIndirection, fbuf); err != nil {
		return err
	}
	h.firstInd = decodeIndirectionBlock(fbuf)

	if h.secondIndirection == noIndirection {
		return nil
	}
	sbuf := make([]byte, disk.SectorSize)
	if err := d.ReadSector(h.secondIndirection, sbuf); err != nil {
		return err
	}
	h.secondInd = decodeIndirectionBlock(sbuf)

	h.secondIndArray = h.secondIndArray[:0]
	for i, read := 0, 0; read < h.siQuantity; i, read = i+1, read+NumDirect2 {
		ibuf := make([]byte, disk.SectorSize)
		if err := d.ReadSector(int(h.secondInd[i]), ibuf); err != nil {
			return err
		}
		h.secondIndArray = append(h.secondIndArray, decodeIndirectionBlock(ibuf))
	}
	return nil
}

// WriteBack writes the header sector, and any first-/second-indirection
// blocks it references, back to d.
func (h *FileHeader) WriteBack(d disk.SynchDisk, sector int) error {
	if err := d.WriteSector(sector, h.encode()); err != nil {
		return err
	}
	if h.firstIndirection == noIndirection {
		return nil
	}
	if err := d.WriteSector(h.firstIndirection, encodeIndirectionBlock(h.firstInd)); err != nil {
		return err
	}
	if h.secondIndirection == noIndirection {
		return nil
	}
	if err := d.WriteSector(h.secondIndirection, encodeIndirectionBlock(h.secondInd)); err != nil {
		return err
	}
	for i, wrote := 0, 0; wrote < h.siQuantity; i, wrote = i+1, wrote+NumDirect2 {
		if err := d.WriteSector(int(h.secondInd[i]), encodeIndirectionBlock(h.secondIndArray[i])); err != nil {
			return err
		}
	}
	return nil
}

// sectorAt dispatches index (a 0-based sector-within-file index) to the
// direct, first-, or second-indirection table.
func (h *FileHeader) sectorAt(index int) int {
	if index < NumDirect {
		return int(h.dataSectors[index])
	}
	index -= NumDirect
	if index < NumDirect2 {
		return int(h.firstInd[index])
	}
	index -= NumDirect2
	tab := index / NumDirect2
	return int(h.secondIndArray[tab][index%NumDirect2])
}

// ByteToSector translates a byte offset within the file to the disk
// sector storing it.
func (h *FileHeader) ByteToSector(offset int) int {
	return h.sectorAt(offset / disk.SectorSize)
}

// FileLength returns the file's size in bytes.
func (h *FileHeader) FileLength() int { return h.numBytes }

// Sectors returns every data sector (not indirection-block sectors)
// referenced by this header, in file order. Used by FileSystem.Check to
// walk both indirection levels instead of assuming a direct-only layout.
func (h *FileHeader) Sectors() []int {
	out := make([]int, h.numSectors)
	for i := range out {
		out[i] = h.sectorAt(i)
	}
	return out
}

// IndirectionSectors returns the sectors occupied by this header's own
// indirection blocks (not its data), for the freemap consistency check.
func (h *FileHeader) IndirectionSectors() []int {
	var out []int
	if h.firstIndirection == noIndirection {
		return out
	}
	out = append(out, h.firstIndirection)
	if h.secondIndirection == noIndirection {
		return out
	}
	out = append(out, h.secondIndirection)
	for i, counted := 0, 0; counted < h.siQuantity; i, counted = i+1, counted+NumDirect2 {
		out = append(out, int(h.secondInd[i]))
	}
	return out
}
