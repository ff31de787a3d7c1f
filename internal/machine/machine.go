// Package machine provides a fake CPU/MMU implementing the narrow
// vm.Machine and vm.ByteMachine collaborator interfaces, standing in for
// the out-of-scope MIPS simulator. It is deliberately simple:
// enough to drive address-space construction, demand loading, and transfer
// retries in tests and the `selftest` CLI without simulating an instruction
// set.
package machine

import (
	"sync"

	"github.com/lautarocerruti/nachos-go/internal/vm"
)

// Fake is an in-memory stand-in for the reference machine/MMU.
type Fake struct {
	mu sync.Mutex

	mem       []byte
	tlb       []vm.TranslationEntry
	pageTable []vm.TranslationEntry
	current   *vm.AddressSpace
	useTLB    bool
	registers [vm.NumRegs]uint64
}

// New returns a Fake machine with numPhysPages*vm.PageSize bytes of main
// memory. When useTLB is true, TLB() returns a live vm.TLBSize-entry
// slice; otherwise it returns nil and translation goes through the page
// table installed by SetPageTable.
func New(numPhysPages int, useTLB bool) *Fake {
	m := &Fake{
		mem:    make([]byte, numPhysPages*vm.PageSize),
		useTLB: useTLB,
	}
	if useTLB {
		m.tlb = make([]vm.TranslationEntry, vm.TLBSize)
		for i := range m.tlb {
			m.tlb[i].PhysicalPage = -1
		}
	}
	return m
}

func (m *Fake) MainMemory() []byte { return m.mem }

func (m *Fake) TLB() []vm.TranslationEntry { return m.tlb }

func (m *Fake) SetPageTable(pt []vm.TranslationEntry) {
	m.mu.Lock()
	m.pageTable = pt
	m.mu.Unlock()
}

// SetCurrent records which address space is presently "running", so
// AddressSpace.SwapPage knows whether to flush TLB entries immediately.
func (m *Fake) SetCurrent(space *vm.AddressSpace) {
	m.mu.Lock()
	m.current = space
	m.mu.Unlock()
}

func (m *Fake) CurrentSpace(space *vm.AddressSpace) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current == space
}

func (m *Fake) WriteRegister(r int, value uint64) {
	m.mu.Lock()
	m.registers[r] = value
	m.mu.Unlock()
}

func (m *Fake) ReadRegister(r int) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registers[r]
}

// lookup finds the physical address for a virtual one, consulting the TLB
// when in use or the directly-installed page table otherwise. ok is false
// on a miss (TLB mode only); callers retry or fault per vm.ByteMachine's
// contract.
func (m *Fake) lookup(addr int) (phys int, ok bool) {
	vpn := addr / vm.PageSize
	offset := addr % vm.PageSize

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.useTLB {
		for _, e := range m.tlb {
			if e.Valid && e.VirtualPage == vpn {
				return e.PhysicalPage*vm.PageSize + offset, true
			}
		}
		return 0, false
	}

	if vpn < 0 || vpn >= len(m.pageTable) || !m.pageTable[vpn].Valid {
		return 0, false
	}
	return m.pageTable[vpn].PhysicalPage*vm.PageSize + offset, true
}

// LoadTLBEntry installs e at slot i. serviceFault calls this immediately
// after a page fault has been serviced; also exposed for tests that want
// to install a translation directly.
func (m *Fake) LoadTLBEntry(i int, e vm.TranslationEntry) {
	m.mu.Lock()
	m.tlb[i] = e
	m.mu.Unlock()
}

func (m *Fake) ReadMem(addr int, size int) (int, bool) {
	phys, ok := m.lookup(addr)
	if !ok {
		if !m.serviceFault(addr) {
			return 0, false
		}
		phys, ok = m.lookup(addr)
		if !ok {
			return 0, false
		}
	}
	v := 0
	for i := 0; i < size; i++ {
		v |= int(m.mem[phys+i]) << (8 * i)
	}
	return v, true
}

func (m *Fake) WriteMem(addr int, size int, value int) bool {
	phys, ok := m.lookup(addr)
	if !ok {
		if !m.serviceFault(addr) {
			return false
		}
		phys, ok = m.lookup(addr)
		if !ok {
			return false
		}
	}
	for i := 0; i < size; i++ {
		m.mem[phys+i] = byte(value >> (8 * i))
	}
	vpn := addr / vm.PageSize
	m.mu.Lock()
	if m.useTLB {
		for i := range m.tlb {
			if m.tlb[i].Valid && m.tlb[i].VirtualPage == vpn {
				m.tlb[i].Dirty = true
			}
		}
	} else {
		m.pageTable[vpn].Dirty = true
	}
	m.mu.Unlock()
	return true
}

// serviceFault asks the currently installed address space to service a
// miss at addr. When the page is already resident, this is a soft TLB
// miss (e.g. a conflict eviction from a prior access) and only the TLB
// entry needs reloading from the page table; only a not-yet-resident page
// goes through AddressSpace.HandlePageFault's full allocate/load path, the
// same distinction a real exception handler draws before deciding whether
// to run fault recovery at all. Returns false if there is no current
// address space to fault against, or if the fault itself could not be
// serviced (e.g. physical memory exhausted with swap disabled) — in which
// case the caller's retry will miss again and report ok=false up to
// vm.ByteMachine's contract.
func (m *Fake) serviceFault(addr int) bool {
	m.mu.Lock()
	space := m.current
	useTLB := m.useTLB
	m.mu.Unlock()
	if space == nil {
		return false
	}

	vpn := addr / vm.PageSize
	if vpn < 0 || vpn >= space.NumPages() {
		return false
	}
	entry := space.PageTableEntry(vpn)
	if !entry.Valid {
		if err := space.HandlePageFault(vpn); err != nil {
			return false
		}
		entry = space.PageTableEntry(vpn)
	}

	if useTLB {
		// Carry dirty/use bits into the page table before a slot is reused.
		space.SaveState()
		m.mu.Lock()
		slot := vpn % len(m.tlb)
		m.mu.Unlock()
		m.LoadTLBEntry(slot, entry)
	}
	return true
}
