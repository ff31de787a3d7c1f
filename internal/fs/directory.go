package fs

import (
	"encoding/binary"
	"strings"
)

// NameMax is the longest name an entry can hold.
const NameMax = 23

// dirEntrySize is the on-disk size of one DirectoryEntry: inUse(1) +
// isDir(1) + sector(4) + name(NameMax+1, NUL-terminated).
const dirEntrySize = 1 + 1 + 4 + (NameMax + 1)

// DirectoryEntry names one child of a directory: either a plain file or a
// nested directory, both identified by the sector of their FileHeader.
type DirectoryEntry struct {
	InUse  bool
	IsDir  bool
	Sector int
	Name   string
}

func encodeDirEntry(e DirectoryEntry) []byte {
	buf := make([]byte, dirEntrySize)
	if e.InUse {
		buf[0] = 1
	}
	if e.IsDir {
		buf[1] = 1
	}
	binary.LittleEndian.PutUint32(buf[2:6], uint32(e.Sector))
	copy(buf[6:6+NameMax], e.Name)
	return buf
}

func decodeDirEntry(buf []byte) DirectoryEntry {
	name := string(buf[6 : 6+NameMax])
	if i := strings.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return DirectoryEntry{
		InUse:  buf[0] != 0,
		IsDir:  buf[1] != 0,
		Sector: int(binary.LittleEndian.Uint32(buf[2:6])),
		Name:   name,
	}
}

// fileReadWriter is the narrow collaborator Directory persists through: an
// OpenFile, exposing byte-offset I/O and the current file length.
type fileReadWriter interface {
	Length() int
	ReadAt(buf []byte, offset int) (int, error)
	WriteAt(buf []byte, offset int) (int, error)
}

// Directory is a flat table of entries backed by an ordinary file, sized
// at creation and grown (via FileSystem.Create calling FileHeader.Extend)
// when no free slot remains. Grounded on the Directory usage throughout
// filesys/file_system.cc.
type Directory struct {
	entries []DirectoryEntry
}

// NewDirectory returns an empty, unsized Directory; call SetInitialValue
// or FetchFrom before using it.
func NewDirectory() *Directory { return &Directory{} }

// SetInitialValue sizes a freshly created directory to n empty entries.
func (d *Directory) SetInitialValue(n int) {
	d.entries = make([]DirectoryEntry, n)
}

// FetchFrom reads every entry out of f's full contents.
func (d *Directory) FetchFrom(f fileReadWriter) error {
	n := f.Length() / dirEntrySize
	buf := make([]byte, n*dirEntrySize)
	if n > 0 {
		if _, err := f.ReadAt(buf, 0); err != nil {
			return err
		}
	}
	d.entries = make([]DirectoryEntry, n)
	for i := 0; i < n; i++ {
		d.entries[i] = decodeDirEntry(buf[i*dirEntrySize : (i+1)*dirEntrySize])
	}
	return nil
}

// WriteBack writes every entry back to f, in full.
func (d *Directory) WriteBack(f fileReadWriter) error {
	buf := make([]byte, len(d.entries)*dirEntrySize)
	for i, e := range d.entries {
		copy(buf[i*dirEntrySize:(i+1)*dirEntrySize], encodeDirEntry(e))
	}
	if len(buf) == 0 {
		return nil
	}
	_, err := f.WriteAt(buf, 0)
	return err
}

// FindIndex returns the table index of name, or -1 if absent.
func (d *Directory) FindIndex(name string) int {
	for i, e := range d.entries {
		if e.InUse && e.Name == name {
			return i
		}
	}
	return -1
}

// Find returns the header sector of name, or -1 if absent.
func (d *Directory) Find(name string) int {
	i := d.FindIndex(name)
	if i < 0 {
		return -1
	}
	return d.entries[i].Sector
}

// Add inserts name into the first free slot, appending a new slot if none
// is free. ok is false if name already exists; grew is true if the table
// had to grow, meaning the caller must Extend the backing file by one
// entry's worth of bytes before the next WriteBack.
func (d *Directory) Add(name string, sector int, isDir bool) (ok, grew bool) {
	if d.FindIndex(name) != -1 {
		return false, false
	}
	for i := range d.entries {
		if !d.entries[i].InUse {
			d.entries[i] = DirectoryEntry{InUse: true, IsDir: isDir, Sector: sector, Name: name}
			return true, false
		}
	}
	d.entries = append(d.entries, DirectoryEntry{InUse: true, IsDir: isDir, Sector: sector, Name: name})
	return true, true
}

// Remove clears name's entry. Reports whether name was found.
func (d *Directory) Remove(name string) bool {
	i := d.FindIndex(name)
	if i < 0 {
		return false
	}
	d.entries[i] = DirectoryEntry{}
	return true
}

// IsEmpty reports whether every entry is unused.
func (d *Directory) IsEmpty() bool {
	for _, e := range d.entries {
		if e.InUse {
			return false
		}
	}
	return true
}

// List returns every in-use entry.
func (d *Directory) List() []DirectoryEntry {
	var out []DirectoryEntry
	for _, e := range d.entries {
		if e.InUse {
			out = append(out, e)
		}
	}
	return out
}

// Entries returns the full backing table, including unused slots, for
// FileSystem.Check's consistency scan.
func (d *Directory) Entries() []DirectoryEntry { return d.entries }
