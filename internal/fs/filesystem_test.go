package fs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lautarocerruti/nachos-go/internal/disk"
	"github.com/lautarocerruti/nachos-go/internal/fs"
	"github.com/lautarocerruti/nachos-go/internal/kthread"
)

func newTestScheduler(t *testing.T) (*kthread.Gate, *kthread.Scheduler, *kthread.Thread) {
	t.Helper()
	gate := kthread.NewGate()
	sched := kthread.NewScheduler(gate, nil)
	main := sched.NewThread("main", kthread.DefaultPriority, true)
	sched.Boot(main)
	return gate, sched, main
}

func newTestFileSystem(t *testing.T) (*fs.FileSystem, *kthread.Gate, *kthread.Scheduler, *kthread.Thread) {
	t.Helper()
	gate, sched, main := newTestScheduler(t)
	d := disk.New(512)
	fsys, err := fs.New(d, gate, sched, true)
	require.NoError(t, err)
	fsys.InitThreadCWD(main)
	return fsys, gate, sched, main
}

func TestFileSystemCreateOpenWriteReadRoundTrip(t *testing.T) {
	fsys, _, _, main := newTestFileSystem(t)

	require.NoError(t, fsys.Create(main, "hello", 0, false))

	f, err := fsys.Open(main, "hello")
	require.NoError(t, err)

	want := []byte("the quick brown fox jumps over the lazy dog, repeated to span multiple sectors. ")
	for len(want) < 400 {
		want = append(want, want...)
	}
	n, err := f.Write(want)
	require.NoError(t, err)
	assert.Equal(t, len(want), n)
	require.NoError(t, f.Close())

	f2, err := fsys.Open(main, "hello")
	require.NoError(t, err)
	got := make([]byte, len(want))
	n, err = f2.Read(got)
	require.NoError(t, err)
	assert.Equal(t, len(want), n)
	assert.Equal(t, want, got)
	require.NoError(t, f2.Close())

	assert.NoError(t, fsys.Check())
}

func TestFileSystemMkdirChdirNestedCreate(t *testing.T) {
	fsys, _, _, main := newTestFileSystem(t)

	require.NoError(t, fsys.Mkdir(main, "sub"))
	require.NoError(t, fsys.Chdir(main, "sub"))
	assert.Equal(t, "/sub", main.CWD)

	require.NoError(t, fsys.Create(main, "inner", 10, false))
	entries, err := fsys.List(main)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "inner", entries[0].Name)

	require.NoError(t, fsys.Chdir(main, ".."))
	assert.Equal(t, "/", main.CWD)

	entries, err = fsys.List(main)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "sub", entries[0].Name)

	assert.NoError(t, fsys.Check())
}

func TestFileSystemCreateDuplicateFails(t *testing.T) {
	fsys, _, _, main := newTestFileSystem(t)
	require.NoError(t, fsys.Create(main, "dup", 0, false))
	assert.Error(t, fsys.Create(main, "dup", 0, false))
}

func TestFileSystemRemoveNonEmptyDirectoryFails(t *testing.T) {
	fsys, _, _, main := newTestFileSystem(t)
	require.NoError(t, fsys.Mkdir(main, "sub"))
	require.NoError(t, fsys.Chdir(main, "sub"))
	require.NoError(t, fsys.Create(main, "f", 0, false))
	require.NoError(t, fsys.Chdir(main, ".."))

	assert.Error(t, fsys.Remove(main, "sub"))
}

// TestFileSystemCreateRemoveRace reproduces the create/remove race: thread A
// opens a file, thread B removes it while A still has it open. Remove
// must succeed immediately (the unlink is deferred), A's read afterward
// must still see the original bytes, and only A's Close actually unlinks
// the file from disk.
func TestFileSystemCreateRemoveRace(t *testing.T) {
	fsys, gate, sched, main := newTestFileSystem(t)

	content := []byte("race condition payload, thread A must still see this after remove")
	require.NoError(t, fsys.Create(main, "race", len(content), false))
	f, err := fsys.Open(main, "race")
	require.NoError(t, err)
	_, err = f.Write(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	aOpened := kthread.NewSemaphore("aOpened", 0, gate, sched)
	bRemoved := kthread.NewSemaphore("bRemoved", 0, gate, sched)

	var readBack []byte
	var readErr, closeErr, removeErr error

	threadA := sched.NewThread("A", kthread.DefaultPriority, true)
	threadA.Fork(func(any) {
		fsys.InitThreadCWD(threadA)
		handle, err := fsys.Open(threadA, "race")
		require.NoError(t, err)
		aOpened.V()
		bRemoved.P()

		readBack = make([]byte, len(content))
		_, readErr = handle.Read(readBack)
		closeErr = handle.Close()
	}, nil)

	threadB := sched.NewThread("B", kthread.DefaultPriority, true)
	threadB.Fork(func(any) {
		fsys.InitThreadCWD(threadB)
		aOpened.P()
		removeErr = fsys.Remove(threadB, "race")
		bRemoved.V()
	}, nil)

	threadA.Join()
	threadB.Join()

	require.NoError(t, removeErr, "Remove on an open file must succeed, deferring the unlink")
	require.NoError(t, readErr, "A's read after B's Remove must still see intact data")
	assert.Equal(t, content, readBack)
	require.NoError(t, closeErr)

	_, err = fsys.Open(main, "race")
	assert.Error(t, err, "after A's Close, the file must be physically gone")
	assert.NoError(t, fsys.Check())
}
