package fs

import (
	"fmt"

	"github.com/lautarocerruti/nachos-go/internal/bitmap"
	"github.com/lautarocerruti/nachos-go/internal/disk"
	"github.com/lautarocerruti/nachos-go/internal/kthread"
)

// FreeMapSector and DirectorySector are the well-known sectors holding
// the free-sector bitmap's and root directory's FileHeaders, located
// before any name lookup is possible. Grounded on file_system.cc's
// FREE_MAP_SECTOR/DIRECTORY_SECTOR.
const (
	FreeMapSector   = 0
	DirectorySector = 1

	// InitialDirEntries sizes a freshly created directory (root at
	// format time, or any Mkdir).
	InitialDirEntries = 16
)

// fileIOAdapter turns sequential byte-offset access to an OpenFile into
// an io.Reader/io.Writer, for bitmap.Bitmap.FetchFrom/WriteBack.
type fileIOAdapter struct {
	f   *OpenFile
	off int
}

func (a *fileIOAdapter) Write(p []byte) (int, error) {
	n, err := a.f.WriteAt(p, a.off)
	a.off += n
	return n, err
}

func (a *fileIOAdapter) Read(p []byte) (int, error) {
	n, err := a.f.ReadAt(p, a.off)
	a.off += n
	return n, err
}

// FileSystem is the façade bundling the two bootstrap files (kept open
// for the kernel's whole lifetime), the open-file/open-directory tables,
// and the lock serializing the free-sector bitmap. Grounded on
// filesys/file_system.cc.
type FileSystem struct {
	disk disk.SynchDisk

	freeMapFile   *OpenFile
	directoryFile *OpenFile

	fileTable   *FileTable
	dirTable    *DirectoryTable
	freemapLock *kthread.Lock

	gate  *kthread.Gate
	sched *kthread.Scheduler
}

// New mounts a filesystem on d. If format is true, d is treated as blank
// and initialized with an empty root directory and a free map in which
// only the two bootstrap headers and the sectors of the free-map and
// root-directory files are marked; otherwise the existing bitmap and
// root directory headers are simply opened.
func New(d disk.SynchDisk, gate *kthread.Gate, sched *kthread.Scheduler, format bool) (*FileSystem, error) {
	fsys := &FileSystem{
		disk:        d,
		fileTable:   NewFileTable(gate, sched),
		dirTable:    NewDirectoryTable(gate, sched),
		freemapLock: kthread.NewLock("fs.freemap", gate, sched),
		gate:        gate,
		sched:       sched,
	}

	freeMapFileSize := divRoundUp(d.NumSectors(), 8)

	if !format {
		mapH := NewFileHeader()
		if err := mapH.FetchFrom(d, FreeMapSector); err != nil {
			return nil, err
		}
		dirH := NewFileHeader()
		if err := dirH.FetchFrom(d, DirectorySector); err != nil {
			return nil, err
		}
		fsys.freeMapFile = &OpenFile{fs: fsys, sector: FreeMapSector, header: mapH}
		fsys.directoryFile = &OpenFile{fs: fsys, sector: DirectorySector, header: dirH}
		return fsys, nil
	}

	freeMap := bitmap.New(d.NumSectors())
	freeMap.Mark(FreeMapSector)
	freeMap.Mark(DirectorySector)

	mapH := NewFileHeader()
	if !mapH.Allocate(freeMap, freeMapFileSize) {
		return nil, fmt.Errorf("fs: format: not enough space for the free-sector bitmap")
	}
	dirH := NewFileHeader()
	if !dirH.Allocate(freeMap, InitialDirEntries*dirEntrySize) {
		return nil, fmt.Errorf("fs: format: not enough space for the root directory")
	}

	if err := mapH.WriteBack(d, FreeMapSector); err != nil {
		return nil, err
	}
	if err := dirH.WriteBack(d, DirectorySector); err != nil {
		return nil, err
	}

	fsys.freeMapFile = &OpenFile{fs: fsys, sector: FreeMapSector, header: mapH}
	fsys.directoryFile = &OpenFile{fs: fsys, sector: DirectorySector, header: dirH}

	if err := freeMap.WriteBack(&fileIOAdapter{f: fsys.freeMapFile}); err != nil {
		return nil, err
	}

	dir := NewDirectory()
	dir.SetInitialValue(InitialDirEntries)
	if err := dir.WriteBack(fsys.directoryFile); err != nil {
		return nil, err
	}

	return fsys, nil
}

// InitThreadCWD sets t's current working directory to the root, opening
// it in the directory table. Must be called once per thread that will
// touch the filesystem, mirroring file_system.cc's firstThreadStart.
func (fsys *FileSystem) InitThreadCWD(t *kthread.Thread) {
	fsys.dirTable.LockAcquire()
	defer fsys.dirTable.LockRelease()
	t.CWDLock = fsys.dirTable.OpenDirectory(DirectorySector)
	t.CWD = "/"
}

// findPath walks from the root directory, resolving each component of
// path in turn; ok is false if any component is missing.
func (fsys *FileSystem) findPath(path Path) (DirectoryEntry, bool) {
	entry := DirectoryEntry{InUse: true, IsDir: true, Sector: DirectorySector}
	dir := NewDirectory()
	for _, part := range path.List() {
		file, err := fsys.openFileAt(entry.Sector)
		if err != nil {
			return DirectoryEntry{}, false
		}
		if err := dir.FetchFrom(file); err != nil {
			return DirectoryEntry{}, false
		}
		idx := dir.FindIndex(part)
		if idx < 0 {
			return DirectoryEntry{}, false
		}
		entry = dir.Entries()[idx]
	}
	return entry, true
}

// openFileAt returns an internal, lockless handle onto sector's header —
// used for directory lookups and bookkeeping, never handed to user code.
func (fsys *FileSystem) openFileAt(sector int) (*OpenFile, error) {
	h := NewFileHeader()
	if err := h.FetchFrom(fsys.disk, sector); err != nil {
		return nil, err
	}
	return &OpenFile{fs: fsys, sector: sector, header: h}, nil
}

// extend grows f by delta bytes under freemapLock, used when a user
// Write runs past the file's current length. Create/Mkdir grow the
// directory file directly against an already-fetched freeMap instead, to
// avoid re-acquiring freemapLock while already holding it.
func (fsys *FileSystem) extend(f *OpenFile, delta int) error {
	fsys.freemapLock.Acquire()
	defer fsys.freemapLock.Release()

	freeMap := bitmap.New(fsys.disk.NumSectors())
	if err := freeMap.FetchFrom(&fileIOAdapter{f: fsys.freeMapFile}); err != nil {
		return err
	}
	if !f.header.Extend(freeMap, delta) {
		return fmt.Errorf("fs: extend: no space for %d additional bytes", delta)
	}
	if err := f.header.WriteBack(fsys.disk, f.sector); err != nil {
		return err
	}
	return freeMap.WriteBack(&fileIOAdapter{f: fsys.freeMapFile})
}

// Create makes a new file or, if isDir, a new empty directory, of
// initialSize bytes, resolving name against t's current directory.
func (fsys *FileSystem) Create(t *kthread.Thread, name string, initialSize int, isDir bool) error {
	if initialSize >= MaxFileSize {
		return fmt.Errorf("fs: create %q: size %d exceeds the maximum file size", name, initialSize)
	}

	path := ParsePath(t.CWD).Merge(name)
	file := path.Split()
	if file == "" {
		return fmt.Errorf("fs: create: empty name")
	}
	if len(file) > NameMax {
		return fmt.Errorf("fs: create %q: name too long", file)
	}

	fsys.dirTable.LockAcquire()
	entry, ok := fsys.findPath(path)
	if !ok || !entry.IsDir {
		fsys.dirTable.LockRelease()
		return fmt.Errorf("fs: create %q: parent directory not found", name)
	}
	dirLock := fsys.dirTable.OpenDirectory(entry.Sector)
	fsys.dirTable.LockRelease()

	dirLock.Acquire()
	defer func() {
		fsys.dirTable.LockAcquire()
		dirLock.Release()
		fsys.dirTable.CloseDirectory(entry.Sector)
		fsys.dirTable.LockRelease()
	}()

	dirFile, err := fsys.openFileAt(entry.Sector)
	if err != nil {
		return err
	}
	dir := NewDirectory()
	if err := dir.FetchFrom(dirFile); err != nil {
		return err
	}
	if dir.Find(file) != -1 {
		return fmt.Errorf("fs: create %q: already exists", name)
	}

	fsys.freemapLock.Acquire()
	defer fsys.freemapLock.Release()

	freeMap := bitmap.New(fsys.disk.NumSectors())
	if err := freeMap.FetchFrom(&fileIOAdapter{f: fsys.freeMapFile}); err != nil {
		return err
	}

	sector := freeMap.Find()
	if sector == -1 {
		return fmt.Errorf("fs: create %q: no free sector for its header", name)
	}

	_, grew := dir.Add(file, sector, isDir)
	if grew {
		if !dirFile.header.Extend(freeMap, dirEntrySize) {
			return fmt.Errorf("fs: create %q: no room to extend the directory", name)
		}
	}

	h := NewFileHeader()
	if !h.Allocate(freeMap, initialSize) {
		return fmt.Errorf("fs: create %q: no space for its data", name)
	}

	if err := dirFile.header.WriteBack(fsys.disk, dirFile.sector); err != nil {
		return err
	}
	if err := h.WriteBack(fsys.disk, sector); err != nil {
		return err
	}
	if err := dir.WriteBack(dirFile); err != nil {
		return err
	}
	if err := freeMap.WriteBack(&fileIOAdapter{f: fsys.freeMapFile}); err != nil {
		return err
	}

	if isDir {
		childDir := NewDirectory()
		childDir.SetInitialValue(initialSize / dirEntrySize)
		childFile, err := fsys.openFileAt(sector)
		if err != nil {
			return err
		}
		if err := childDir.WriteBack(childFile); err != nil {
			return err
		}
	}
	return nil
}

// Mkdir creates an empty directory, resolving name against t's current
// directory.
func (fsys *FileSystem) Mkdir(t *kthread.Thread, name string) error {
	return fsys.Create(t, name, InitialDirEntries*dirEntrySize, true)
}

// Open returns a handle onto the plain file name, resolved against t's
// current directory. Fails if name is missing, names a directory, or has
// a removal pending (it was removed while other handles were still open).
func (fsys *FileSystem) Open(t *kthread.Thread, name string) (*OpenFile, error) {
	path := ParsePath(t.CWD).Merge(name)

	fsys.dirTable.LockAcquire()
	entry, ok := fsys.findPath(path)
	if !ok || entry.IsDir {
		fsys.dirTable.LockRelease()
		return nil, fmt.Errorf("fs: open %q: not found", name)
	}

	parentPath := path
	parentPath.Split()
	parentEntry, ok := fsys.findPath(parentPath)
	if !ok {
		fsys.dirTable.LockRelease()
		return nil, fmt.Errorf("fs: open %q: parent directory not found", name)
	}
	dirLock := fsys.dirTable.OpenDirectory(parentEntry.Sector)
	fsys.dirTable.LockRelease()

	dirLock.Acquire()
	defer func() {
		fsys.dirTable.LockAcquire()
		dirLock.Release()
		fsys.dirTable.CloseDirectory(parentEntry.Sector)
		fsys.dirTable.LockRelease()
	}()

	fsys.fileTable.LockAcquire()
	fl := fsys.fileTable.OpenFile(entry.Sector)
	fsys.fileTable.LockRelease()
	if fl == nil {
		return nil, fmt.Errorf("fs: open %q: removal pending", name)
	}

	h := NewFileHeader()
	if err := h.FetchFrom(fsys.disk, entry.Sector); err != nil {
		return nil, err
	}
	return &OpenFile{fs: fsys, sector: entry.Sector, header: h, lock: fl, path: path}, nil
}

// closeFile is OpenFile.Close's implementation: it decrements f's open
// count and, if that was the last handle and a Remove was pending,
// unlinks the file from disk.
func (fsys *FileSystem) closeFile(f *OpenFile) error {
	if f.lock == nil {
		return nil // an internal handle (freeMapFile/directoryFile); never closed
	}

	parentPath := f.path
	parentPath.Split()
	parentEntry, ok := fsys.findPath(parentPath)
	if !ok {
		return fmt.Errorf("fs: close: parent directory vanished")
	}

	fsys.dirTable.LockAcquire()
	dirLock := fsys.dirTable.OpenDirectory(parentEntry.Sector)
	fsys.dirTable.LockRelease()
	dirLock.Acquire()
	defer func() {
		dirLock.Release()
		fsys.dirTable.LockAcquire()
		fsys.dirTable.CloseDirectory(parentEntry.Sector)
		fsys.dirTable.LockRelease()
	}()

	fsys.fileTable.LockAcquire()
	defer fsys.fileTable.LockRelease()
	shouldRemove := fsys.fileTable.CloseFile(f.sector)
	if !shouldRemove {
		return nil
	}
	return fsys.diskDelete(f.path)
}

// diskDelete removes file from its parent directory, deallocates its
// header's sectors, and frees its own header sector, all under
// freemapLock so the bitmap edit is atomic with the directory edit.
func (fsys *FileSystem) diskDelete(path Path) error {
	p := path
	name := p.Split()
	parentEntry, ok := fsys.findPath(p)
	if !ok {
		return fmt.Errorf("fs: delete %q: parent directory vanished", name)
	}

	fsys.freemapLock.Acquire()
	defer fsys.freemapLock.Release()

	dirFile, err := fsys.openFileAt(parentEntry.Sector)
	if err != nil {
		return err
	}
	dir := NewDirectory()
	if err := dir.FetchFrom(dirFile); err != nil {
		return err
	}
	sector := dir.Find(name)
	if sector < 0 {
		return fmt.Errorf("fs: delete %q: not found", name)
	}
	dir.Remove(name)
	if err := dir.WriteBack(dirFile); err != nil {
		return err
	}

	h := NewFileHeader()
	if err := h.FetchFrom(fsys.disk, sector); err != nil {
		return err
	}
	freeMap := bitmap.New(fsys.disk.NumSectors())
	if err := freeMap.FetchFrom(&fileIOAdapter{f: fsys.freeMapFile}); err != nil {
		return err
	}
	h.Deallocate(freeMap)
	freeMap.Clear(sector)
	return freeMap.WriteBack(&fileIOAdapter{f: fsys.freeMapFile})
}

// Remove deletes name, resolved against t's current directory. A
// directory is only removed if every entry is unused and no thread holds
// it open; the directory's table lock is held across the whole
// check-then-delete, closing a race where a concurrent Create could land
// between the emptiness scan and the unlink.
func (fsys *FileSystem) Remove(t *kthread.Thread, name string) error {
	path := ParsePath(t.CWD).Merge(name)

	fsys.dirTable.LockAcquire()
	entry, ok := fsys.findPath(path)
	if !ok {
		fsys.dirTable.LockRelease()
		return fmt.Errorf("fs: remove %q: not found", name)
	}

	parentPath := path
	parentPath.Split()
	parentEntry, ok := fsys.findPath(parentPath)
	if !ok {
		fsys.dirTable.LockRelease()
		return fmt.Errorf("fs: remove %q: parent directory not found", name)
	}
	parentLock := fsys.dirTable.OpenDirectory(parentEntry.Sector)
	fsys.dirTable.LockRelease()

	parentLock.Acquire()
	defer func() {
		fsys.dirTable.LockAcquire()
		parentLock.Release()
		fsys.dirTable.CloseDirectory(parentEntry.Sector)
		fsys.dirTable.LockRelease()
	}()

	if entry.IsDir {
		fsys.dirTable.LockAcquire()
		childLock := fsys.dirTable.OpenDirectory(entry.Sector)
		fsys.dirTable.LockRelease()

		childLock.Acquire()
		defer func() {
			fsys.dirTable.LockAcquire()
			childLock.Release()
			fsys.dirTable.CloseDirectory(entry.Sector)
			fsys.dirTable.LockRelease()
		}()

		childFile, err := fsys.openFileAt(entry.Sector)
		if err != nil {
			return err
		}
		childDir := NewDirectory()
		if err := childDir.FetchFrom(childFile); err != nil {
			return err
		}
		if !childDir.IsEmpty() {
			return fmt.Errorf("fs: remove %q: directory not empty", name)
		}

		fsys.dirTable.LockAcquire()
		sole := fsys.dirTable.SoleOpener(entry.Sector)
		fsys.dirTable.LockRelease()
		if !sole {
			return fmt.Errorf("fs: remove %q: directory busy", name)
		}
		return fsys.diskDelete(path)
	}

	fsys.fileTable.LockAcquire()
	immediate := fsys.fileTable.SetRemove(entry.Sector)
	fsys.fileTable.LockRelease()
	if immediate {
		return fsys.diskDelete(path)
	}
	return nil
}

// Chdir changes t's current working directory to name, resolved against
// its current one. Fails if name does not name a directory.
func (fsys *FileSystem) Chdir(t *kthread.Thread, name string) error {
	newPath := ParsePath(t.CWD).Merge(name)

	fsys.dirTable.LockAcquire()
	entry, ok := fsys.findPath(newPath)
	if !ok || !entry.IsDir {
		fsys.dirTable.LockRelease()
		return fmt.Errorf("fs: chdir %q: not a directory", name)
	}
	oldEntry, oldOK := fsys.findPath(ParsePath(t.CWD))
	newLock := fsys.dirTable.OpenDirectory(entry.Sector)
	if oldOK {
		fsys.dirTable.CloseDirectory(oldEntry.Sector)
	}
	fsys.dirTable.LockRelease()

	t.CWDLock = newLock
	t.CWD = newPath.String()
	return nil
}

// List returns every in-use entry of t's current directory.
func (fsys *FileSystem) List(t *kthread.Thread) ([]DirectoryEntry, error) {
	if t.CWDLock != nil {
		t.CWDLock.Acquire()
		defer t.CWDLock.Release()
	}
	entry, ok := fsys.findPath(ParsePath(t.CWD))
	if !ok {
		return nil, fmt.Errorf("fs: list: current directory vanished")
	}
	file, err := fsys.openFileAt(entry.Sector)
	if err != nil {
		return nil, err
	}
	dir := NewDirectory()
	if err := dir.FetchFrom(file); err != nil {
		return nil, err
	}
	return dir.List(), nil
}

// Check walks the whole directory tree and both FileHeader indirection
// levels, cross-checking every referenced sector against a freshly built
// shadow bitmap and against the on-disk free map. Unlike the check this
// is grounded on, it does not assume a direct-only header layout.
func (fsys *FileSystem) Check() error {
	shadow := bitmap.New(fsys.disk.NumSectors())
	shadow.Mark(FreeMapSector)
	shadow.Mark(DirectorySector)

	markSectors := func(label string, sectors []int) error {
		for _, s := range sectors {
			if s < 0 || s >= fsys.disk.NumSectors() {
				return fmt.Errorf("fs: check: %s: sector %d out of range", label, s)
			}
			if shadow.Test(s) {
				return fmt.Errorf("fs: check: %s: sector %d already in use", label, s)
			}
			shadow.Mark(s)
		}
		return nil
	}
	checkHeader := func(h *FileHeader, label string) error {
		if err := markSectors(label, h.IndirectionSectors()); err != nil {
			return err
		}
		return markSectors(label, h.Sectors())
	}

	mapH := NewFileHeader()
	if err := mapH.FetchFrom(fsys.disk, FreeMapSector); err != nil {
		return err
	}
	if err := checkHeader(mapH, "freemap header"); err != nil {
		return err
	}

	dirH := NewFileHeader()
	if err := dirH.FetchFrom(fsys.disk, DirectorySector); err != nil {
		return err
	}
	if err := checkHeader(dirH, "root directory header"); err != nil {
		return err
	}

	var walk func(sector int, label string) error
	walk = func(sector int, label string) error {
		dirFile, err := fsys.openFileAt(sector)
		if err != nil {
			return err
		}
		dir := NewDirectory()
		if err := dir.FetchFrom(dirFile); err != nil {
			return err
		}
		seen := make(map[string]bool)
		for _, e := range dir.Entries() {
			if !e.InUse {
				continue
			}
			if len(e.Name) > NameMax {
				return fmt.Errorf("fs: check: %s: name %q too long", label, e.Name)
			}
			if seen[e.Name] {
				return fmt.Errorf("fs: check: %s: repeated name %q", label, e.Name)
			}
			seen[e.Name] = true

			if err := markSectors(fmt.Sprintf("%s/%s header", label, e.Name), []int{e.Sector}); err != nil {
				return err
			}
			h := NewFileHeader()
			if err := h.FetchFrom(fsys.disk, e.Sector); err != nil {
				return err
			}
			if err := checkHeader(h, fmt.Sprintf("%s/%s", label, e.Name)); err != nil {
				return err
			}
			if e.IsDir {
				if err := walk(e.Sector, label+"/"+e.Name); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(DirectorySector, ""); err != nil {
		return err
	}

	freeMap := bitmap.New(fsys.disk.NumSectors())
	if err := freeMap.FetchFrom(&fileIOAdapter{f: fsys.freeMapFile}); err != nil {
		return err
	}
	for i := 0; i < fsys.disk.NumSectors(); i++ {
		if freeMap.Test(i) != shadow.Test(i) {
			return fmt.Errorf("fs: check: bitmap inconsistent at sector %d", i)
		}
	}
	return nil
}
