// Package exec reads the user-executable format the paging core demand-
// loads from: a small header naming the code, initialized-data, and
// uninitialized-data segments, followed by the segment bytes themselves
//. It is the out-of-core counterpart to
// the reference's Executable wrapper over an OpenFile.
package exec

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic identifies a valid executable header.
const Magic = 0x03130713

// segment describes one contiguous region of an executable's virtual
// address layout.
type segment struct {
	Addr uint32
	Size uint32
}

// header is the on-disk layout exec files begin with.
type header struct {
	Magic        uint32
	Code         segment
	InitData     segment
	UninitData   segment
}

const headerSize = 4 + 4*6

// Reader implements vm.Executable by reading segments on demand from an
// underlying io.ReaderAt (an open file, a fd.File, or an in-memory
// buffer in tests).
type Reader struct {
	src    io.ReaderAt
	header header
}

// NewReader parses the header at the start of src and validates its magic
// number.
func NewReader(src io.ReaderAt) (*Reader, error) {
	buf := make([]byte, headerSize)
	if _, err := src.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("exec: reading header: %w", err)
	}
	h := header{
		Magic:      binary.LittleEndian.Uint32(buf[0:4]),
		Code:       segment{binary.LittleEndian.Uint32(buf[4:8]), binary.LittleEndian.Uint32(buf[8:12])},
		InitData:   segment{binary.LittleEndian.Uint32(buf[12:16]), binary.LittleEndian.Uint32(buf[16:20])},
		UninitData: segment{binary.LittleEndian.Uint32(buf[20:24]), binary.LittleEndian.Uint32(buf[24:28])},
	}
	if h.Magic != Magic {
		return nil, fmt.Errorf("exec: bad magic %#x", h.Magic)
	}
	return &Reader{src: src, header: h}, nil
}

func (r *Reader) CodeAddr() uint32      { return r.header.Code.Addr }
func (r *Reader) CodeSize() uint32      { return r.header.Code.Size }
func (r *Reader) InitDataAddr() uint32  { return r.header.InitData.Addr }
func (r *Reader) InitDataSize() uint32  { return r.header.InitData.Size }
func (r *Reader) UninitDataSize() uint32 { return r.header.UninitData.Size }

// ReadCodeBlock reads n bytes of the code segment starting at offset into
// dst.
func (r *Reader) ReadCodeBlock(dst []byte, n int, offset uint32) (int, error) {
	return r.src.ReadAt(dst[:n], int64(headerSize)+int64(offset))
}

// ReadDataBlock reads n bytes of the initialized-data segment starting at
// offset into dst.
func (r *Reader) ReadDataBlock(dst []byte, n int, offset uint32) (int, error) {
	return r.src.ReadAt(dst[:n], int64(headerSize)+int64(r.header.Code.Size)+int64(offset))
}

// Build assembles a well-formed executable image in memory from raw code
// and initialized-data bytes, for tests and the `selftest` CLI that need a
// synthetic program without a real MIPS toolchain. codeAddr/initDataAddr
// are virtual addresses; uninitDataSize is BSS-only (zero-filled, no
// stored bytes).
func Build(codeAddr uint32, code []byte, initDataAddr uint32, initData []byte, uninitDataSize uint32) []byte {
	buf := make([]byte, headerSize+len(code)+len(initData))
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint32(buf[4:8], codeAddr)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(code)))
	binary.LittleEndian.PutUint32(buf[12:16], initDataAddr)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(initData)))
	binary.LittleEndian.PutUint32(buf[20:24], 0)
	binary.LittleEndian.PutUint32(buf[24:28], uninitDataSize)
	copy(buf[headerSize:], code)
	copy(buf[headerSize+len(code):], initData)
	return buf
}
