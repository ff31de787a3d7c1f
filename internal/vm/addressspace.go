package vm

import (
	"fmt"

	"github.com/lautarocerruti/nachos-go/internal/bitmap"
)

// Config controls the paging build-time switches, turned into a runtime
// struct instead of preprocessor defines.
type Config struct {
	UseTLB        bool
	DemandLoading bool
	Swap          bool
	UseLRU        bool
}

// AddressSpace is one user process's virtual memory (component I),
// grounded on userprog/address_space.cc.
type AddressSpace struct {
	cfg Config

	pageTable []TranslationEntry
	numPages  int

	executable Executable
	machine    Machine
	coremap    *Coremap
	frames     *bitmap.Bitmap // shared free-physical-frame bitmap, only used when !DemandLoading

	swapFile SwapFile
	openSwap func(spaceID int, size int) (SwapFile, error)
	spaceID  int
}

// NewAddressSpace builds a page table for exe, sized to hold its code,
// initialized data, and a fixed user stack, per §4.I. When demand loading
// is disabled, frames are allocated and the code/data segments are copied
// in immediately; when swap is enabled, a backing swap file is created.
func NewAddressSpace(cfg Config, exe Executable, machine Machine, coremap *Coremap, frames *bitmap.Bitmap, spaceID int, stackSize int, openSwap func(spaceID int, size int) (SwapFile, error)) (*AddressSpace, error) {
	size := int(exe.CodeSize()) + int(exe.InitDataSize()) + stackSize
	numPages := (size + PageSize - 1) / PageSize
	size = numPages * PageSize

	if !cfg.DemandLoading && numPages > frames.CountClear() {
		return nil, fmt.Errorf("vm: address space needs %d pages, only %d physical frames free", numPages, frames.CountClear())
	}

	as := &AddressSpace{
		cfg:        cfg,
		pageTable:  make([]TranslationEntry, numPages),
		numPages:   numPages,
		executable: exe,
		machine:    machine,
		coremap:    coremap,
		frames:     frames,
		spaceID:    spaceID,
		openSwap:   openSwap,
	}

	for i := range as.pageTable {
		as.pageTable[i] = TranslationEntry{VirtualPage: i}
		if cfg.DemandLoading {
			as.pageTable[i].PhysicalPage = invalidPhysicalPage
			as.pageTable[i].Valid = false
		} else {
			as.pageTable[i].PhysicalPage = frames.Find()
			as.pageTable[i].Valid = true
		}
	}

	if cfg.Swap {
		sf, err := openSwap(spaceID, size)
		if err != nil {
			return nil, fmt.Errorf("vm: creating swap file: %w", err)
		}
		as.swapFile = sf
	}

	if !cfg.DemandLoading {
		mem := machine.MainMemory()
		for i := range as.pageTable {
			base := as.pageTable[i].PhysicalPage * PageSize
			clear(mem[base : base+PageSize])
		}
		if err := as.copyInSegments(); err != nil {
			return nil, err
		}
	}

	return as, nil
}

// copyInSegments loads code and initialized-data into already-allocated
// frames, used only when demand loading is disabled.
func (as *AddressSpace) copyInSegments() error {
	mem := as.machine.MainMemory()
	codeSize := int(as.executable.CodeSize())
	if codeSize > 0 {
		virt := as.executable.CodeAddr()
		for i := 0; i < codeSize; i++ {
			addr := as.Translate(int(virt) + i)
			if _, err := as.executable.ReadCodeBlock(mem[addr:addr+1], 1, uint32(i)); err != nil {
				return err
			}
		}
	}
	initSize := int(as.executable.InitDataSize())
	if initSize > 0 {
		virt := as.executable.InitDataAddr()
		for i := 0; i < initSize; i++ {
			addr := as.Translate(int(virt) + i)
			if _, err := as.executable.ReadDataBlock(mem[addr:addr+1], 1, uint32(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// NumPages returns the number of virtual pages in this address space.
func (as *AddressSpace) NumPages() int { return as.numPages }

// PageTableEntry returns a copy of the vpn'th page table entry.
func (as *AddressSpace) PageTableEntry(vpn int) TranslationEntry { return as.pageTable[vpn] }

// Translate converts a virtual address to a physical one, for in-kernel
// use only (it does not service page faults).
func (as *AddressSpace) Translate(virtAddr int) int {
	vpn := virtAddr / PageSize
	offset := virtAddr % PageSize
	return as.pageTable[vpn].PhysicalPage*PageSize + offset
}

// InitRegisters zeroes the user register file and sets PC/NextPC/SP for a
// freshly loaded program, per §4.I.
func (as *AddressSpace) InitRegisters() {
	for i := 0; i < NumRegs; i++ {
		as.machine.WriteRegister(i, 0)
	}
	as.machine.WriteRegister(RegPC, 0)
	as.machine.WriteRegister(RegNextPC, 4)
	as.machine.WriteRegister(RegSP, uint64(as.numPages*PageSize-16))
}

// SaveState synchronizes every live TLB entry back into the page table,
// which matters only when swap is enabled.
func (as *AddressSpace) SaveState() {
	if !as.cfg.Swap {
		return
	}
	for i := 0; i < TLBSize; i++ {
		as.syncTLBEntry(i)
	}
}

// RestoreState prepares the MMU to run this address space: invalidating
// the TLB so every access faults in fresh translations (UseTLB), or
// binding the MMU directly to this page table otherwise.
func (as *AddressSpace) RestoreState() {
	if as.cfg.UseTLB {
		tlb := as.machine.TLB()
		for i := range tlb {
			tlb[i].Valid = false
		}
		return
	}
	as.machine.SetPageTable(as.pageTable)
}

func (as *AddressSpace) syncTLBEntry(entry int) {
	tlb := as.machine.TLB()
	if tlb == nil || !tlb[entry].Valid {
		return
	}
	vpn := tlb[entry].VirtualPage
	as.pageTable[vpn].Dirty = tlb[entry].Dirty
	as.pageTable[vpn].Use = tlb[entry].Use
	tlb[entry].Valid = false
}

// HandlePageFault services a TLB miss on vpn: it obtains a physical frame
// from the coremap (evicting a victim if necessary), loads the page's
// contents from swap or from the executable, and marks the entry valid.
func (as *AddressSpace) HandlePageFault(vpn int) error {
	if vpn < 0 || vpn >= as.numPages {
		return fmt.Errorf("vm: page fault on out-of-range vpn %d", vpn)
	}

	var evict func(victimFrame int, owner *AddressSpace)
	if as.cfg.Swap {
		evict = func(victimFrame int, owner *AddressSpace) {
			if owner != nil {
				owner.swapOutFrame(victimFrame)
			}
		}
	}
	frame, ok := as.coremap.ReplacePage(as, evict)
	if !ok {
		return fmt.Errorf("vm: no free physical frame for vpn %d and swap is disabled", vpn)
	}

	if as.pageTable[vpn].IsInSwap {
		if err := as.loadFromSwap(vpn, frame); err != nil {
			return err
		}
	} else {
		as.loadFromExecutable(vpn, frame)
	}
	as.coremap.UpdateTimers(frame)
	return nil
}

// loadFromExecutable fills frame with vpn's code/data bytes (zero-filling
// whatever portion is BSS or stack), grounded on AddressSpace::LoadPage.
func (as *AddressSpace) loadFromExecutable(vpn, frame int) {
	mem := as.machine.MainMemory()
	physBase := frame * PageSize
	clear(mem[physBase : physBase+PageSize])

	vpnByte := vpn * PageSize
	codeSize := int(as.executable.CodeSize())
	initDataSize := int(as.executable.InitDataSize())
	initDataAddr := int(as.executable.InitDataAddr())

	read := 0
	if codeSize > 0 && vpnByte < codeSize {
		toRead := codeSize - vpnByte
		if toRead > PageSize {
			toRead = PageSize
		}
		as.executable.ReadCodeBlock(mem[physBase:physBase+toRead], toRead, uint32(vpnByte))
		read += toRead
	}
	if initDataSize > 0 && vpnByte+read < initDataAddr+initDataSize && read != PageSize {
		remaining := PageSize - read
		available := initDataAddr + initDataSize - (vpnByte + read)
		toRead := remaining
		if available < toRead {
			toRead = available
		}
		var dataOffset int
		if read > 0 {
			dataOffset = 0
		} else {
			dataOffset = vpnByte - codeSize
		}
		as.executable.ReadDataBlock(mem[physBase+read:physBase+read+toRead], toRead, uint32(dataOffset))
	}

	as.pageTable[vpn].Valid = true
	as.pageTable[vpn].IsInSwap = false
	as.pageTable[vpn].Dirty = false
	as.pageTable[vpn].Use = false
	as.pageTable[vpn].PhysicalPage = frame
}

func (as *AddressSpace) loadFromSwap(vpn, frame int) error {
	mem := as.machine.MainMemory()
	physBase := frame * PageSize
	if _, err := as.swapFile.ReadAt(mem[physBase:physBase+PageSize], int64(vpn*PageSize)); err != nil {
		return fmt.Errorf("vm: reading swapped page %d: %w", vpn, err)
	}
	as.pageTable[vpn].Valid = true
	as.pageTable[vpn].PhysicalPage = frame
	return nil
}

// swapOutFrame evicts the page currently occupying one of this address
// space's frames: invalidates it, flushes any matching TLB entry if this
// is the running space, and writes it back to swap if dirty.
func (as *AddressSpace) swapOutFrame(frame int) {
	vpn := -1
	for i, e := range as.pageTable {
		if e.PhysicalPage == frame {
			vpn = i
			break
		}
	}
	if vpn == -1 {
		panic("vm: coremap victim frame not owned by the address space it claims to belong to")
	}
	as.SwapPage(vpn)
}

// SwapPage evicts vpn's frame: marks it invalid, frees it in the coremap,
// flushes a matching TLB entry if this space is currently running, and
// writes the page back to swap if it was dirty.
func (as *AddressSpace) SwapPage(vpn int) {
	frame := as.pageTable[vpn].PhysicalPage
	as.pageTable[vpn].Valid = false
	as.coremap.ClearPageIndex(frame)

	if as.machine.CurrentSpace(as) {
		tlb := as.machine.TLB()
		for i := range tlb {
			if tlb[i].PhysicalPage == frame {
				as.syncTLBEntry(i)
			}
		}
	}

	if as.pageTable[vpn].Dirty {
		mem := as.machine.MainMemory()
		physBase := frame * PageSize
		as.swapFile.WriteAt(mem[physBase:physBase+PageSize], int64(vpn*PageSize))
		as.pageTable[vpn].IsInSwap = true
	}
	as.pageTable[vpn].PhysicalPage = invalidPhysicalPage
}

// Close releases every resource this address space owns. When demand
// loading is off, frames were taken directly from the shared bitmap and
// are freed the same way. When demand loading is on, frames were taken
// through the coremap (even without swap enabled), so teardown asks it to
// clear anything still owned by this space; with swap additionally
// enabled, the swap file is closed too.
func (as *AddressSpace) Close() error {
	if !as.cfg.DemandLoading {
		for _, e := range as.pageTable {
			if e.Valid {
				as.frames.Clear(e.PhysicalPage)
			}
		}
		return nil
	}
	as.coremap.Clear(as)
	if as.cfg.Swap {
		return as.swapFile.Close()
	}
	return nil
}
