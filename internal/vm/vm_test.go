package vm_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lautarocerruti/nachos-go/internal/bitmap"
	"github.com/lautarocerruti/nachos-go/internal/exec"
	"github.com/lautarocerruti/nachos-go/internal/machine"
	"github.com/lautarocerruti/nachos-go/internal/vm"
)

func buildTestExecutable(t *testing.T) *exec.Reader {
	t.Helper()
	code := []byte("ABCDEFGH")
	data := []byte("XY")
	img := exec.Build(0, code, uint32(len(code)), data, 0)
	r, err := exec.NewReader(bytes.NewReader(img))
	require.NoError(t, err)
	return r
}

func TestAddressSpaceEagerLoad(t *testing.T) {
	exeReader := buildTestExecutable(t)
	m := machine.New(8, false)
	frames := bitmap.New(8)

	as, err := vm.NewAddressSpace(vm.Config{}, exeReader, m, nil, frames, 1, vm.PageSize, nil)
	require.NoError(t, err)

	mem := m.MainMemory()
	want := "ABCDEFGHXY"
	for i := 0; i < len(want); i++ {
		addr := as.Translate(i)
		assert.Equal(t, want[i], mem[addr], "byte %d", i)
	}

	require.NoError(t, as.Close())
	assert.Equal(t, 8, frames.CountClear(), "all frames freed on close")
}

func TestAddressSpaceDemandLoadPageFault(t *testing.T) {
	exeReader := buildTestExecutable(t)
	m := machine.New(4, false)
	frames := bitmap.New(4)
	coremap := vm.NewCoremap(frames, false)

	cfg := vm.Config{DemandLoading: true}
	as, err := vm.NewAddressSpace(cfg, exeReader, m, coremap, frames, 1, vm.PageSize, nil)
	require.NoError(t, err)

	for vpn := 0; vpn < as.NumPages(); vpn++ {
		assert.False(t, as.PageTableEntry(vpn).Valid)
	}

	require.NoError(t, as.HandlePageFault(0))
	entry := as.PageTableEntry(0)
	assert.True(t, entry.Valid)

	mem := m.MainMemory()
	base := entry.PhysicalPage * vm.PageSize
	assert.Equal(t, []byte("ABCDEFGH"), mem[base:base+8])
	assert.Equal(t, []byte("XY"), mem[base+8:base+10])
}

func TestCoremapFIFOVictimAndClear(t *testing.T) {
	frames := bitmap.New(2)
	cm := vm.NewCoremap(frames, false)

	evicted := 0
	evict := func(victimFrame int, owner *vm.AddressSpace) {
		evicted++
		cm.ClearPageIndex(victimFrame)
	}

	f0, ok := cm.ReplacePage(nil, evict)
	require.True(t, ok)
	f1, ok := cm.ReplacePage(nil, evict)
	require.True(t, ok)
	assert.NotEqual(t, f0, f1)
	assert.Equal(t, 0, evicted, "no eviction needed while frames are free")

	// Third request must evict, since both frames are taken.
	_, ok = cm.ReplacePage(nil, evict)
	require.True(t, ok)
	assert.Equal(t, 1, evicted)
}

func TestCoremapReplacePageFailsWhenExhaustedWithoutSwap(t *testing.T) {
	frames := bitmap.New(1)
	cm := vm.NewCoremap(frames, false)

	_, ok := cm.ReplacePage(nil, nil)
	require.True(t, ok)

	_, ok = cm.ReplacePage(nil, nil)
	assert.False(t, ok, "exhaustion without an evict hook must fail, not panic")
}

// TestTLBMissServicesPageFaultAndRetries drives a real TLB miss through
// vm.ReadBufferFromUser against a demand-loaded, TLB-backed address space,
// the production configuration where USE_TLB is required alongside demand
// loading: the miss must fault the page in and retry rather than failing
// after NumberOfTries identical misses.
func TestTLBMissServicesPageFaultAndRetries(t *testing.T) {
	exeReader := buildTestExecutable(t)
	m := machine.New(4, true)
	frames := bitmap.New(4)
	coremap := vm.NewCoremap(frames, false)

	cfg := vm.Config{UseTLB: true, DemandLoading: true}
	as, err := vm.NewAddressSpace(cfg, exeReader, m, coremap, frames, 1, vm.PageSize, nil)
	require.NoError(t, err)
	m.SetCurrent(as)
	as.RestoreState()

	for vpn := 0; vpn < as.NumPages(); vpn++ {
		assert.False(t, as.PageTableEntry(vpn).Valid)
	}

	got := make([]byte, 10)
	require.NoError(t, vm.ReadBufferFromUser(m, 0, got, 10))
	assert.Equal(t, []byte("ABCDEFGHXY"), got)
	assert.True(t, as.PageTableEntry(0).Valid, "a serviced TLB miss must leave the page table entry valid")
}
