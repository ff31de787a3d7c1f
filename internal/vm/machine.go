package vm

// Machine is the narrow slice of the (out-of-core) CPU/MMU simulator that
// the paging core needs: raw access to main memory and, when a software
// TLB is in use, to its entries. Kept as an interface so vm never imports
// a concrete machine package, preferring index/handle indirection over a
// direct dependency.
type Machine interface {
	// MainMemory returns the full backing array of simulated physical
	// memory, indexed by byte address.
	MainMemory() []byte

	// TLB returns the live TLB entry slice (length TLBSize) when a
	// software TLB is enabled, or nil otherwise. Entries are mutated
	// in place by AddressSpace.RestoreState, SaveState and SwapPage.
	TLB() []TranslationEntry

	// SetPageTable installs pageTable as the MMU's page-table pointer,
	// used when UseTLB is disabled and translation goes straight
	// through the page table.
	SetPageTable(pageTable []TranslationEntry)

	// CurrentSpace reports whether space is the address space the
	// machine is presently executing, used to decide whether a swapped
	// page's TLB entries need flushing immediately.
	CurrentSpace(space *AddressSpace) bool

	// WriteRegister sets CPU register r.
	WriteRegister(r int, value uint64)
}

// Register indices InitRegisters writes, mirroring the reference MIPS
// register file layout.
const (
	RegPC     = 34 // PCReg
	RegNextPC = 35 // NextPCReg
	RegSP     = 29 // StackReg
	NumRegs   = 40
)

// Executable is the narrow reader of a loaded user program the paging core
// consumes for demand loading, grounded on the reference's Executable
// wrapper over an OpenFile.
type Executable interface {
	CodeAddr() uint32
	CodeSize() uint32
	InitDataAddr() uint32
	InitDataSize() uint32

	ReadCodeBlock(dst []byte, n int, offset uint32) (int, error)
	ReadDataBlock(dst []byte, n int, offset uint32) (int, error)
}

// SwapFile is the narrow per-process backing store an AddressSpace pages
// to when swap is enabled.
type SwapFile interface {
	ReadAt(dst []byte, offset int64) (int, error)
	WriteAt(src []byte, offset int64) (int, error)
	Close() error
}
