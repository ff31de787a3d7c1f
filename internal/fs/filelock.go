package fs

import "github.com/lautarocerruti/nachos-go/internal/kthread"

// FileLock is a reader/writer lock with writer priority and bounded
// reader starvation, grounded on filesys/filelock.cc. Writers serialize
// fully against everyone through the turnstile and room semaphores;
// readers only contend on the turnstile long enough to confirm no writer
// is queued ahead of them, then share room with every other reader.
type FileLock struct {
	readersLock *kthread.Lock
	room        *kthread.Semaphore
	turnstile   *kthread.Semaphore
	readers     int
}

// NewFileLock returns an unheld FileLock.
func NewFileLock(gate *kthread.Gate, sched *kthread.Scheduler) *FileLock {
	return &FileLock{
		readersLock: kthread.NewLock("fs.filelock.readers", gate, sched),
		room:        kthread.NewSemaphore("fs.filelock.room", 1, gate, sched),
		turnstile:   kthread.NewSemaphore("fs.filelock.turnstile", 1, gate, sched),
	}
}

// WriteAcquire blocks until no reader or writer holds the file.
func (l *FileLock) WriteAcquire() {
	l.turnstile.P()
	l.room.P()
}

// WriteRelease releases a held write acquisition.
func (l *FileLock) WriteRelease() {
	l.turnstile.V()
	l.room.V()
}

// ReadAcquire blocks only while a writer is queued on the turnstile, then
// joins the current group of readers.
func (l *FileLock) ReadAcquire() {
	l.turnstile.P()
	l.turnstile.V()
	l.readersLock.Acquire()
	l.readers++
	if l.readers == 1 {
		l.room.P()
	}
	l.readersLock.Release()
}

// ReadRelease leaves the current group of readers, releasing room to a
// waiting writer once the last reader has left.
func (l *FileLock) ReadRelease() {
	l.readersLock.Acquire()
	l.readers--
	if l.readers == 0 {
		l.room.V()
	}
	l.readersLock.Release()
}
