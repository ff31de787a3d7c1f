package fs

import "github.com/lautarocerruti/nachos-go/internal/kthread"

// fileTableEntry tracks one currently-open file by header sector.
type fileTableEntry struct {
	opened   int
	toRemove bool
	lock     *FileLock
}

// FileTable tracks every currently-open file, keyed by header sector, so
// concurrent opens of the same file share one FileLock and a pending
// Remove is deferred until the last Close. A Go map replaces the source's
// linked list; any associative container keyed by sector suffices.
// Grounded on filesys/file_table.cc.
type FileTable struct {
	lock    *kthread.Lock
	entries map[int]*fileTableEntry
	gate    *kthread.Gate
	sched   *kthread.Scheduler
}

// NewFileTable returns an empty FileTable.
func NewFileTable(gate *kthread.Gate, sched *kthread.Scheduler) *FileTable {
	return &FileTable{
		lock:    kthread.NewLock("fs.fileTable", gate, sched),
		entries: make(map[int]*fileTableEntry),
		gate:    gate,
		sched:   sched,
	}
}

// LockAcquire guards the short bookkeeping window around lookup/insert of
// entries; it does not serialize the I/O done through the returned
// FileLock.
func (t *FileTable) LockAcquire() { t.lock.Acquire() }

// LockRelease releases LockAcquire.
func (t *FileTable) LockRelease() { t.lock.Release() }

// OpenFile returns sector's shared FileLock, creating an entry on first
// open and bumping its open count otherwise. Returns nil if sector has a
// deletion pending (SetRemove was called and nothing has closed it yet).
func (t *FileTable) OpenFile(sector int) *FileLock {
	e, ok := t.entries[sector]
	if !ok {
		e = &fileTableEntry{opened: 1, lock: NewFileLock(t.gate, t.sched)}
		t.entries[sector] = e
		return e.lock
	}
	if e.toRemove {
		return nil
	}
	e.opened++
	return e.lock
}

// CloseFile decrements sector's open count, removing its entry on the
// last close. Reports whether the caller must now unlink the on-disk
// file (a Remove arrived while it was still open).
func (t *FileTable) CloseFile(sector int) bool {
	e, ok := t.entries[sector]
	if !ok {
		panic("fs: CloseFile on a sector with no open entry")
	}
	if e.opened > 1 {
		e.opened--
		return false
	}
	delete(t.entries, sector)
	return e.toRemove
}

// SetRemove marks sector for deletion once its last open handle closes.
// Returns true if sector is not currently open at all, meaning the caller
// should unlink it immediately instead.
func (t *FileTable) SetRemove(sector int) bool {
	e, ok := t.entries[sector]
	if !ok {
		return true
	}
	e.toRemove = true
	return false
}

// dirTableEntry tracks one currently-open directory by header sector.
type dirTableEntry struct {
	opened int
	lock   *kthread.Lock
}

// DirectoryTable is FileTable's simpler sibling: no reader/writer
// distinction, just one Lock per open directory serializing structural
// changes (Create/Remove of its children) against concurrent opens of
// that same directory. Grounded on filesys/directory_table.cc.
type DirectoryTable struct {
	lock    *kthread.Lock
	entries map[int]*dirTableEntry
	gate    *kthread.Gate
	sched   *kthread.Scheduler
}

// NewDirectoryTable returns an empty DirectoryTable.
func NewDirectoryTable(gate *kthread.Gate, sched *kthread.Scheduler) *DirectoryTable {
	return &DirectoryTable{
		lock:    kthread.NewLock("fs.dirTable", gate, sched),
		entries: make(map[int]*dirTableEntry),
		gate:    gate,
		sched:   sched,
	}
}

// LockAcquire guards the bookkeeping window around lookup/insert/remove
// of entries.
func (t *DirectoryTable) LockAcquire() { t.lock.Acquire() }

// LockRelease releases LockAcquire.
func (t *DirectoryTable) LockRelease() { t.lock.Release() }

// OpenDirectory returns sector's shared Lock, creating an entry on first
// open and bumping its open count otherwise.
func (t *DirectoryTable) OpenDirectory(sector int) *kthread.Lock {
	e, ok := t.entries[sector]
	if !ok {
		e = &dirTableEntry{opened: 1, lock: kthread.NewLock("fs.dirEntry", t.gate, t.sched)}
		t.entries[sector] = e
		return e.lock
	}
	e.opened++
	return e.lock
}

// CloseDirectory decrements sector's open count, removing its entry on
// the last close.
func (t *DirectoryTable) CloseDirectory(sector int) {
	e, ok := t.entries[sector]
	if !ok {
		panic("fs: CloseDirectory on a sector with no open entry")
	}
	if e.opened > 1 {
		e.opened--
		return
	}
	delete(t.entries, sector)
}

// CanRemove reports whether sector has no open references at all.
func (t *DirectoryTable) CanRemove(sector int) bool {
	_, ok := t.entries[sector]
	return !ok
}

// SoleOpener reports whether sector's only open reference is the caller's
// own (it necessarily holds one, from having called OpenDirectory to
// reach this check) — i.e. no other thread has it open concurrently.
func (t *DirectoryTable) SoleOpener(sector int) bool {
	e, ok := t.entries[sector]
	if !ok {
		return true
	}
	return e.opened <= 1
}
