package fs

import "github.com/lautarocerruti/nachos-go/internal/disk"

// OpenFile is an in-memory handle onto an on-disk file: the header sector,
// its cached FileHeader, the shared FileLock (nil for the two bootstrap
// files fs manages directly), the path it was opened through, and a
// sequential read/write cursor. It implements fd.File so a thread's
// descriptor table can hold it interchangeably with a console handle.
type OpenFile struct {
	fs     *FileSystem
	sector int
	header *FileHeader
	lock   *FileLock
	path   Path
	offset int
}

// Length returns the file's current size in bytes.
func (f *OpenFile) Length() int { return f.header.FileLength() }

// Sector returns the header sector identifying this file.
func (f *OpenFile) Sector() int { return f.sector }

// ReadAt copies into buf the file bytes starting at offset, returning how
// many bytes were actually available (short of len(buf) at end of file).
func (f *OpenFile) ReadAt(buf []byte, offset int) (int, error) {
	length := f.header.FileLength()
	if offset >= length {
		return 0, nil
	}
	n := len(buf)
	if offset+n > length {
		n = length - offset
	}
	if n <= 0 {
		return 0, nil
	}

	firstSector := offset / disk.SectorSize
	lastSector := (offset + n - 1) / disk.SectorSize
	numSectors := lastSector - firstSector + 1
	tmp := make([]byte, numSectors*disk.SectorSize)
	for i := 0; i < numSectors; i++ {
		sector := f.header.sectorAt(firstSector + i)
		if err := f.fs.disk.ReadSector(sector, tmp[i*disk.SectorSize:(i+1)*disk.SectorSize]); err != nil {
			return 0, err
		}
	}
	start := offset % disk.SectorSize
	copy(buf[:n], tmp[start:start+n])
	return n, nil
}

// WriteAt copies buf into the file starting at offset, extending the
// file's allocation through the owning FileSystem first if offset+len(buf)
// exceeds its current length.
func (f *OpenFile) WriteAt(buf []byte, offset int) (int, error) {
	n := len(buf)
	if n == 0 {
		return 0, nil
	}
	length := f.header.FileLength()
	if offset+n > length {
		if err := f.fs.extend(f, offset+n-length); err != nil {
			return 0, err
		}
	}

	firstSector := offset / disk.SectorSize
	lastSector := (offset + n - 1) / disk.SectorSize
	numSectors := lastSector - firstSector + 1
	tmp := make([]byte, numSectors*disk.SectorSize)

	firstMod := offset % disk.SectorSize
	lastMod := (offset + n - 1) % disk.SectorSize
	if firstMod != 0 {
		if err := f.fs.disk.ReadSector(f.header.sectorAt(firstSector), tmp[:disk.SectorSize]); err != nil {
			return 0, err
		}
	}
	if lastMod != disk.SectorSize-1 {
		if err := f.fs.disk.ReadSector(f.header.sectorAt(lastSector), tmp[(numSectors-1)*disk.SectorSize:]); err != nil {
			return 0, err
		}
	}
	copy(tmp[firstMod:firstMod+n], buf)

	for i := 0; i < numSectors; i++ {
		sector := f.header.sectorAt(firstSector + i)
		if err := f.fs.disk.WriteSector(sector, tmp[i*disk.SectorSize:(i+1)*disk.SectorSize]); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// Read implements fd.File: a sequential read from the handle's own
// cursor, serialized against writers through the shared FileLock.
func (f *OpenFile) Read(buf []byte) (int, error) {
	if f.lock != nil {
		f.lock.ReadAcquire()
		defer f.lock.ReadRelease()
	}
	n, err := f.ReadAt(buf, f.offset)
	f.offset += n
	return n, err
}

// Write implements fd.File: a sequential write from the handle's own
// cursor, serialized against readers and other writers through the shared
// FileLock, extending the file as needed.
func (f *OpenFile) Write(buf []byte) (int, error) {
	if f.lock != nil {
		f.lock.WriteAcquire()
		defer f.lock.WriteRelease()
	}
	n, err := f.WriteAt(buf, f.offset)
	f.offset += n
	return n, err
}

// Close implements fd.File, returning the handle's reference to the
// FileSystem façade so Close can unlink a file whose Remove was deferred.
func (f *OpenFile) Close() error {
	return f.fs.closeFile(f)
}
