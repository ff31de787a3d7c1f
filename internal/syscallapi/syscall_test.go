package syscallapi_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lautarocerruti/nachos-go/internal/console"
	"github.com/lautarocerruti/nachos-go/internal/disk"
	"github.com/lautarocerruti/nachos-go/internal/exec"
	"github.com/lautarocerruti/nachos-go/internal/kernel"
	"github.com/lautarocerruti/nachos-go/internal/kthread"
	"github.com/lautarocerruti/nachos-go/internal/machine"
	"github.com/lautarocerruti/nachos-go/internal/syscallapi"
	"github.com/lautarocerruti/nachos-go/internal/vm"
)

// newRunningThread boots a kernel and installs an address space directly
// on its machine (bypassing Exec's Fork/dispatch dance, which this test
// has no need to drive), so user-memory syscall arguments (names,
// buffers) can be written/read through vm.WriteStringToUser/
// ReadBufferFromUser exactly as a real syscall would see them.
func newRunningThread(t *testing.T) (*kernel.Kernel, *kthread.Thread) {
	t.Helper()
	log := kernel.NewLogger(zap.NewNop())
	d := disk.New(512)
	m := machine.New(64, false)
	dev := console.NewFakeDevice(nil)

	k, err := kernel.New(kernel.DefaultConfig(), d, m, dev, log, true)
	require.NoError(t, err)

	boot := k.Sched.NewThread("boot", kthread.DefaultPriority, true)
	k.Sched.Boot(boot)
	k.InitMainThread(boot)

	code := []byte{0}
	img := exec.Build(0, code, uint32(len(code)), nil, 0)
	reader, err := exec.NewReader(byteReaderAt(img))
	require.NoError(t, err)

	as, err := vm.NewAddressSpace(vm.Config{}, reader, m, k.Coremap, k.Frames, boot.SpaceID(), k.Config.StackSize, nil)
	require.NoError(t, err)
	m.SetCurrent(as)
	as.RestoreState()
	boot.Space = as

	return k, boot
}

type byteReaderAt []byte

func (b byteReaderAt) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, b[off:])
	if n < len(p) {
		return n, fmt.Errorf("short read")
	}
	return n, nil
}

// newDemandPagedRunningThread is newRunningThread's counterpart for the
// production-mandated paging config: demand loading requires a TLB, so
// every page starts non-resident and a syscall argument landing on one
// must fault it in through machine.Fake before Dispatch sees the bytes.
func newDemandPagedRunningThread(t *testing.T) (*kernel.Kernel, *kthread.Thread) {
	t.Helper()
	log := kernel.NewLogger(zap.NewNop())
	d := disk.New(512)
	m := machine.New(8, true)
	dev := console.NewFakeDevice(nil)

	cfg := kernel.DefaultConfig()
	cfg.NumPhysPages = 8
	cfg.UseTLB = true
	cfg.DemandLoading = true

	k, err := kernel.New(cfg, d, m, dev, log, true)
	require.NoError(t, err)

	boot := k.Sched.NewThread("boot", kthread.DefaultPriority, true)
	k.Sched.Boot(boot)
	k.InitMainThread(boot)

	code := make([]byte, 4*vm.PageSize)
	img := exec.Build(0, code, uint32(len(code)), nil, 0)
	reader, err := exec.NewReader(byteReaderAt(img))
	require.NoError(t, err)

	as, err := vm.NewAddressSpace(vm.Config{UseTLB: true, DemandLoading: true}, reader, m, k.Coremap, k.Frames, boot.SpaceID(), k.Config.StackSize, nil)
	require.NoError(t, err)
	m.SetCurrent(as)
	as.RestoreState()
	boot.Space = as

	return k, boot
}

// TestDispatchServicesPageFaultsOnDemandPagedArguments drives SysCreate,
// SysOpen, and SysWrite against a demand-loaded, TLB-backed address space
// where every page starts non-resident, proving a syscall argument that
// lands on a not-yet-resident page faults in through Dispatch instead of
// exhausting vm.NumberOfTries and failing.
func TestDispatchServicesPageFaultsOnDemandPagedArguments(t *testing.T) {
	k, boot := newDemandPagedRunningThread(t)

	const nameAddr = 3 * vm.PageSize
	require.NoError(t, vm.WriteStringToUser(k.Machine, "paged", nameAddr))

	_, err := syscallapi.Dispatch(k, boot, syscallapi.SysCreate, nameAddr, 0, 0, 0)
	require.NoError(t, err)

	fdv, err := syscallapi.Dispatch(k, boot, syscallapi.SysOpen, nameAddr, 0, 0, 0)
	require.NoError(t, err)
	fd := int(fdv)
	assert.GreaterOrEqual(t, fd, 2)

	const bufAddr = 0
	payload := "hello from a faulted-in page"
	require.NoError(t, vm.WriteBufferToUser(k.Machine, []byte(payload), bufAddr, len(payload)))

	n, err := syscallapi.Dispatch(k, boot, syscallapi.SysWrite, bufAddr, uint64(len(payload)), uint64(fd), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(payload)), n)

	_, err = syscallapi.Dispatch(k, boot, syscallapi.SysClose, uint64(fd), 0, 0, 0)
	require.NoError(t, err)
}

func TestDispatchPsReturnsLiveThreadCount(t *testing.T) {
	k, boot := newRunningThread(t)
	v, err := syscallapi.Dispatch(k, boot, syscallapi.SysPs, 0, 0, 0, 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, int(v), 1)
}

func TestDispatchCreateOpenWriteReadClose(t *testing.T) {
	k, boot := newRunningThread(t)

	const nameAddr = 0
	require.NoError(t, vm.WriteStringToUser(k.Machine, "greeting", nameAddr))

	_, err := syscallapi.Dispatch(k, boot, syscallapi.SysCreate, nameAddr, 0, 0, 0)
	require.NoError(t, err)

	fdv, err := syscallapi.Dispatch(k, boot, syscallapi.SysOpen, nameAddr, 0, 0, 0)
	require.NoError(t, err)
	fd := int(fdv)
	assert.GreaterOrEqual(t, fd, 2)

	const bufAddr = 64
	payload := "hello nachos"
	require.NoError(t, vm.WriteBufferToUser(k.Machine, []byte(payload), bufAddr, len(payload)))

	n, err := syscallapi.Dispatch(k, boot, syscallapi.SysWrite, bufAddr, uint64(len(payload)), uint64(fd), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(payload)), n)

	_, err = syscallapi.Dispatch(k, boot, syscallapi.SysClose, uint64(fd), 0, 0, 0)
	require.NoError(t, err)

	fdv2, err := syscallapi.Dispatch(k, boot, syscallapi.SysOpen, nameAddr, 0, 0, 0)
	require.NoError(t, err)
	fd2 := int(fdv2)

	const readAddr = 256
	n2, err := syscallapi.Dispatch(k, boot, syscallapi.SysRead, readAddr, uint64(len(payload)), uint64(fd2), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(payload)), n2)

	got, _, err := vm.ReadStringFromUser(k.Machine, readAddr, len(payload)+1)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	_, err = syscallapi.Dispatch(k, boot, syscallapi.SysClose, uint64(fd2), 0, 0, 0)
	require.NoError(t, err)
}

func TestDispatchCloseUnknownDescriptorFails(t *testing.T) {
	k, boot := newRunningThread(t)
	_, err := syscallapi.Dispatch(k, boot, syscallapi.SysClose, 17, 0, 0, 0)
	assert.Error(t, err)
}

func TestDispatchUnknownSyscallFails(t *testing.T) {
	k, boot := newRunningThread(t)
	_, err := syscallapi.Dispatch(k, boot, 999, 0, 0, 0, 0)
	assert.Error(t, err)
}

func TestDispatchHalt(t *testing.T) {
	k, boot := newRunningThread(t)
	_, err := syscallapi.Dispatch(k, boot, syscallapi.SysHalt, 0, 0, 0, 0)
	assert.NoError(t, err)
}
