// Package vm implements per-process address spaces: page tables, demand
// loading from an executable, a shared physical-frame coremap with FIFO or
// LRU victim selection, TLB synchronization, and swap-file paging. It
// depends only on narrow collaborator interfaces (Machine, Executable,
// SwapFile) so it never imports the concrete machine, exec, or fs packages
// that satisfy them.
package vm

// PageSize is the size, in bytes, of one virtual or physical page. By
// convention it equals the disk sector size, so a swapped-out page occupies
// exactly one sector-aligned region of a swap file.
const PageSize = 128

// TLBSize is the number of hardware TLB entries the Machine collaborator
// exposes when UseTLB is enabled.
const TLBSize = 4

// NumberOfTries bounds how many times a user/kernel transfer retries a byte
// after a TLB miss before giving up (§4.J).
const NumberOfTries = 3

// TranslationEntry is one page-table (and TLB) entry.
type TranslationEntry struct {
	VirtualPage  int
	PhysicalPage int
	Valid        bool
	ReadOnly     bool
	Use          bool
	Dirty        bool
	IsInSwap     bool
}

// invalidPhysicalPage marks a TranslationEntry with no backing frame,
// analogous to the reference's UINT_MAX sentinel.
const invalidPhysicalPage = -1
