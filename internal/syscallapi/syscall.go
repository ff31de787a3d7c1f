// Package syscallapi translates the user-visible syscall surface into
// calls on kthread/vm/fs/console. This is external glue kept out of the
// core: there is no real exception-vector trampoline or MIPS decode here,
// just the dispatch a simulated syscall instruction would invoke once it
// has already decoded the syscall number and its four argument registers.
package syscallapi

import (
	"fmt"

	"github.com/lautarocerruti/nachos-go/internal/kernel"
	"github.com/lautarocerruti/nachos-go/internal/kthread"
	"github.com/lautarocerruti/nachos-go/internal/vm"
)

// Syscall numbers.
const (
	SysHalt = iota
	SysExit
	SysExec
	SysJoin
	SysCreate
	SysRemove
	SysOpen
	SysClose
	SysRead
	SysWrite
	SysPs
)

const maxNameLen = 256

// Dispatch executes syscall num for thread t against kernel k, with
// arguments a0-a3 holding whatever the ABI places in the first four
// argument registers (user addresses for buffers/strings, plain integers
// otherwise). It returns the value to place in the syscall's result
// register, or a user-facing error (mapped to -1 at the caller's
// boundary).
func Dispatch(k *kernel.Kernel, t *kthread.Thread, num int, a0, a1, a2, a3 uint64) (uint64, error) {
	switch num {
	case SysHalt:
		k.Halt()
		return 0, nil

	case SysExit:
		t.Finish(int(int32(a0)))
		return 0, nil // unreachable: Finish never returns

	case SysExec:
		name, _, err := vm.ReadStringFromUser(k.Machine, int(a0), maxNameLen)
		if err != nil {
			return 0, fmt.Errorf("syscallapi: exec: reading name: %w", err)
		}
		joinable := a2 != 0
		spaceID, err := k.Exec(name, joinable)
		if err != nil {
			return 0, err
		}
		return uint64(spaceID), nil

	case SysJoin:
		status, err := k.Join(int(a0))
		if err != nil {
			return 0, err
		}
		return uint64(uint32(status)), nil

	case SysCreate:
		name, _, err := vm.ReadStringFromUser(k.Machine, int(a0), maxNameLen)
		if err != nil {
			return 0, fmt.Errorf("syscallapi: create: reading name: %w", err)
		}
		if err := k.FS.Create(t, name, 0, false); err != nil {
			return 0, err
		}
		return 0, nil

	case SysRemove:
		name, _, err := vm.ReadStringFromUser(k.Machine, int(a0), maxNameLen)
		if err != nil {
			return 0, fmt.Errorf("syscallapi: remove: reading name: %w", err)
		}
		if err := k.FS.Remove(t, name); err != nil {
			return 0, err
		}
		return 0, nil

	case SysOpen:
		name, _, err := vm.ReadStringFromUser(k.Machine, int(a0), maxNameLen)
		if err != nil {
			return 0, fmt.Errorf("syscallapi: open: reading name: %w", err)
		}
		fd, err := openFD(t, func() (fdCloser, error) { return k.FS.Open(t, name) })
		if err != nil {
			return 0, err
		}
		return uint64(fd), nil

	case SysClose:
		fd := int(a0)
		f, err := fdAt(t, fd)
		if err != nil {
			return 0, err
		}
		t.FDs[fd] = nil
		return 0, f.Close()

	case SysRead:
		fd := int(a2)
		size := int(a1)
		f, err := fdAt(t, fd)
		if err != nil {
			return 0, err
		}
		buf := make([]byte, size)
		n, err := f.Read(buf)
		if err != nil {
			return 0, fmt.Errorf("syscallapi: read: %w", err)
		}
		if err := vm.WriteBufferToUser(k.Machine, buf[:n], int(a0), n); err != nil {
			return 0, fmt.Errorf("syscallapi: read: copying to user: %w", err)
		}
		return uint64(n), nil

	case SysWrite:
		fd := int(a2)
		size := int(a1)
		f, err := fdAt(t, fd)
		if err != nil {
			return 0, err
		}
		buf := make([]byte, size)
		if err := vm.ReadBufferFromUser(k.Machine, int(a0), buf, size); err != nil {
			return 0, fmt.Errorf("syscallapi: write: copying from user: %w", err)
		}
		n, err := f.Write(buf)
		if err != nil {
			return 0, fmt.Errorf("syscallapi: write: %w", err)
		}
		return uint64(n), nil

	case SysPs:
		return uint64(k.Sched.Count()), nil

	default:
		return 0, fmt.Errorf("syscallapi: unknown syscall number %d", num)
	}
}

// fdCloser is the narrow interface fd.File satisfies, named locally to
// avoid importing internal/fd just for this signature.
type fdCloser interface {
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
	Close() error
}

// openFD installs the handle returned by open into t's first free
// descriptor slot (0 and 1 are reserved for console I/O), returning the
// slot index.
func openFD(t *kthread.Thread, open func() (fdCloser, error)) (int, error) {
	slot := -1
	for i := 2; i < kthread.NumFDs; i++ {
		if t.FDs[i] == nil {
			slot = i
			break
		}
	}
	if slot == -1 {
		return 0, fmt.Errorf("syscallapi: open: descriptor table full")
	}
	f, err := open()
	if err != nil {
		return 0, err
	}
	t.FDs[slot] = f
	return slot, nil
}

// fdAt resolves fd against t's descriptor table, rejecting out-of-range
// and unassigned slots.
func fdAt(t *kthread.Thread, fd int) (fdCloser, error) {
	if fd < 0 || fd >= kthread.NumFDs {
		return nil, fmt.Errorf("syscallapi: descriptor %d out of range", fd)
	}
	f, ok := t.FDs[fd].(fdCloser)
	if !ok {
		return nil, fmt.Errorf("syscallapi: descriptor %d not open", fd)
	}
	return f, nil
}
