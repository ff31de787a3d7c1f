// Package kernel bundles every subsystem (scheduler, filesystem, paging,
// console, disk) into one value that syscallapi dispatches against,
// replacing scattered file-scope globals with an
// explicit, passed-around struct.
package kernel

import (
	"fmt"
	"io"

	"github.com/lautarocerruti/nachos-go/internal/bitmap"
	"github.com/lautarocerruti/nachos-go/internal/console"
	"github.com/lautarocerruti/nachos-go/internal/disk"
	"github.com/lautarocerruti/nachos-go/internal/exec"
	"github.com/lautarocerruti/nachos-go/internal/fd"
	"github.com/lautarocerruti/nachos-go/internal/fs"
	"github.com/lautarocerruti/nachos-go/internal/kthread"
	"github.com/lautarocerruti/nachos-go/internal/vm"
)

// Config turns the reference's five compile-time switches, plus disk and
// physical-memory geometry, into runtime fields.
type Config struct {
	SemaphoreTest bool
	UseTLB        bool
	DemandLoading bool
	Swap          bool
	UseLRU        bool

	NumSectors   int
	NumPhysPages int
	StackSize    int
}

// DefaultConfig returns the default geometry; cmd/nachos uses it for its
// flag defaults.
func DefaultConfig() Config {
	return Config{
		NumSectors:   512,
		NumPhysPages: 64,
		StackSize:    1024,
	}
}

// process is Exec/Join's bookkeeping for one running user program.
type process struct {
	thread *kthread.Thread
	space  *vm.AddressSpace
}

// Kernel bundles every subsystem a syscall or CLI command needs, wiring an
// equivalent set of singletons (scheduler, console, disk) together at boot
// before handing off to the first thread.
type Kernel struct {
	Config Config
	Log    *SugaredLogger

	Gate  *kthread.Gate
	Sched *kthread.Scheduler
	Disk  disk.SynchDisk
	FS    *fs.FileSystem

	Console   *console.SynchConsole
	Frames    *bitmap.Bitmap
	Coremap   *vm.Coremap
	Machine   Machine
	SwapOpen  func(spaceID int, size int) (vm.SwapFile, error)
	ExecOpen  func(name string) (vm.Executable, io.Closer, error)

	processes map[int]*process
}

// Machine is the narrow slice of vm.Machine plus vm.ByteMachine that the
// syscall layer and kernel bootstrap need, satisfied by *machine.Fake.
type Machine interface {
	vm.Machine
	vm.ByteMachine
	SetCurrent(space *vm.AddressSpace)
}

// New wires every subsystem together. format lays down a fresh filesystem
// on d; otherwise d is assumed to already hold one.
func New(cfg Config, d disk.SynchDisk, m Machine, dev console.Device, log *SugaredLogger, format bool) (*Kernel, error) {
	if cfg.DemandLoading && !cfg.UseTLB {
		return nil, fmt.Errorf("kernel: demand loading requires UseTLB: a miss must raise a fault the TLB path services, not fail silently against a static page table")
	}

	gate := kthread.NewGate()
	sched := kthread.NewScheduler(gate, log)

	fsys, err := fs.New(d, gate, sched, format)
	if err != nil {
		return nil, fmt.Errorf("kernel: mounting filesystem: %w", err)
	}

	frames := bitmap.New(cfg.NumPhysPages)
	coremap := vm.NewCoremap(frames, cfg.UseLRU)

	synchConsole := console.New(dev, gate, sched)

	k := &Kernel{
		Config:    cfg,
		Log:       log,
		Gate:      gate,
		Sched:     sched,
		Disk:      d,
		FS:        fsys,
		Console:   synchConsole,
		Frames:    frames,
		Coremap:   coremap,
		Machine:   m,
		processes: make(map[int]*process),
	}
	k.SwapOpen = k.openSwapFile
	k.ExecOpen = k.openExecutable
	return k, nil
}

// execReaderAt adapts fs.OpenFile's byte-offset ReadAt onto io.ReaderAt, so
// exec.NewReader can read a user program straight out of the filesystem.
type execReaderAt struct{ f *fs.OpenFile }

func (r execReaderAt) ReadAt(p []byte, off int64) (int, error) {
	n, err := r.f.ReadAt(p, int(off))
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

// openExecutable opens name on the filesystem and wraps it as a
// vm.Executable; the returned io.Closer closes the underlying file handle
// once the address space has finished loading it.
func (k *Kernel) openExecutable(name string) (vm.Executable, io.Closer, error) {
	f, err := k.FS.Open(k.Sched.Current(), name)
	if err != nil {
		return nil, nil, err
	}
	r, err := exec.NewReader(execReaderAt{f: f})
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return r, f, nil
}

// swapFileAdapter turns an fs.OpenFile into a vm.SwapFile (int64 offsets
// instead of fs's native int offsets).
type swapFileAdapter struct{ f *fs.OpenFile }

func (s swapFileAdapter) ReadAt(dst []byte, offset int64) (int, error) {
	return s.f.ReadAt(dst, int(offset))
}
func (s swapFileAdapter) WriteAt(src []byte, offset int64) (int, error) {
	return s.f.WriteAt(src, int(offset))
}
func (s swapFileAdapter) Close() error { return s.f.Close() }

// openSwapFile creates a per-process swap file named after its space id,
// grounded on address_space.cc's "swap.N" naming. It fails if a file of
// that name already exists.
func (k *Kernel) openSwapFile(spaceID int, size int) (vm.SwapFile, error) {
	t := k.Sched.Current()
	name := fmt.Sprintf("swap.%d", spaceID)
	if err := k.FS.Create(t, name, size, false); err != nil {
		return nil, fmt.Errorf("kernel: creating swap file %s: %w", name, err)
	}
	f, err := k.FS.Open(t, name)
	if err != nil {
		return nil, fmt.Errorf("kernel: opening swap file %s: %w", name, err)
	}
	return swapFileAdapter{f: f}, nil
}

// Exec loads name as a new user program, running under a fresh Thread
// (joinable when joinable is true) and AddressSpace, and returns its
// space id. Grounded on
// userprog/exception.cc's SC_Exec handling plus address_space.cc
// construction.
func (k *Kernel) Exec(name string, joinable bool) (int, error) {
	execu, closer, err := k.ExecOpen(name)
	if err != nil {
		return 0, fmt.Errorf("kernel: exec %q: %w", name, err)
	}
	defer closer.Close()

	vmCfg := vm.Config{
		UseTLB:        k.Config.UseTLB,
		DemandLoading: k.Config.DemandLoading,
		Swap:          k.Config.Swap,
		UseLRU:        k.Config.UseLRU,
	}

	t := k.Sched.NewThread(name, kthread.DefaultPriority, joinable)
	k.FS.InitThreadCWD(t)
	t.FDs[0] = fd.ConsoleIn{Console: k.Console}
	t.FDs[1] = fd.ConsoleOut{Console: k.Console}

	as, err := vm.NewAddressSpace(vmCfg, execu, k.Machine, k.Coremap, k.Frames, t.SpaceID(), k.Config.StackSize, k.SwapOpen)
	if err != nil {
		return 0, fmt.Errorf("kernel: exec %q: %w", name, err)
	}
	t.Space = as
	k.processes[t.SpaceID()] = &process{thread: t, space: as}

	t.Fork(func(any) {
		k.Machine.SetCurrent(as)
		as.RestoreState()
		as.InitRegisters()
	}, nil)

	return t.SpaceID(), nil
}

// Join blocks until spaceID's thread finishes, returning its exit status.
// Fails if spaceID names no process this Kernel started.
func (k *Kernel) Join(spaceID int) (int, error) {
	p, ok := k.processes[spaceID]
	if !ok {
		return 0, fmt.Errorf("kernel: join: no such process %d", spaceID)
	}
	status := p.thread.Join()
	if err := p.space.Close(); err != nil {
		k.Log.Debugf("kernel: closing address space %d: %v", spaceID, err)
	}
	delete(k.processes, spaceID)
	return status, nil
}

// InitMainThread wires t (normally the bootstrap thread booted directly
// onto the scheduler, before any Exec) with a root CWD and console
// descriptors, the same setup Exec gives every forked thread.
func (k *Kernel) InitMainThread(t *kthread.Thread) {
	k.FS.InitThreadCWD(t)
	t.FDs[0] = fd.ConsoleIn{Console: k.Console}
	t.FDs[1] = fd.ConsoleOut{Console: k.Console}
}

// Halt logs a halt request together with the number of threads still
// live; it does not stop those threads and does not panic.
func (k *Kernel) Halt() {
	k.Log.Debugf("kernel: halt requested, %d thread(s) still live", k.Sched.Count())
}
