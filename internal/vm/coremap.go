package vm

import (
	"sync"

	"github.com/lautarocerruti/nachos-go/internal/bitmap"
)

// Coremap maps each physical frame to its owning AddressSpace (or none),
// grounded on the reference's lib/coremap.cc. It serializes allocation and
// victim selection with a single mutex, standing in for the reference's
// "disable interrupts around a short critical section".
//
// It allocates out of the same free-frame Bitmap the non-demand-loading
// construction path uses directly, rather than a private one, so both
// allocation strategies stay consistent about which frames are free.
type Coremap struct {
	mu       sync.Mutex
	owners   []*AddressSpace
	timers   []uint64
	frames   *bitmap.Bitmap
	useLRU   bool
	nextFIFO int
}

// NewCoremap returns a Coremap managing the frames in the given shared
// bitmap. frames.NumBits() determines the number of physical frames.
func NewCoremap(frames *bitmap.Bitmap, useLRU bool) *Coremap {
	n := frames.NumBits()
	return &Coremap{
		owners: make([]*AddressSpace, n),
		timers: make([]uint64, n),
		frames: frames,
		useLRU: useLRU,
	}
}

// NumFrames returns the total number of physical frames managed.
func (c *Coremap) NumFrames() int { return len(c.owners) }

// ReplacePage returns a free frame for newSpace, evicting a victim page if
// none is free. evict is called, with the coremap's internal lock
// released, to let the victim's owning AddressSpace write the page back to
// swap and invalidate its page-table entry; ReplacePage retries the free
// search afterward. evict must be nil when swap is disabled: with no
// backing store to evict to, exhausting physical frames is reported back
// to the caller as ok=false (a resource exhaustion error, not a kernel
// invariant violation) rather than something to page around.
func (c *Coremap) ReplacePage(newSpace *AddressSpace, evict func(victimFrame int, owner *AddressSpace)) (frame int, ok bool) {
	c.mu.Lock()
	frame = c.frames.Find()
	if frame == -1 {
		if evict == nil {
			c.mu.Unlock()
			return -1, false
		}
		victim := c.pickVictim()
		owner := c.owners[victim]
		c.mu.Unlock()

		evict(victim, owner)

		c.mu.Lock()
		frame = c.frames.Find()
		if frame == -1 {
			c.mu.Unlock()
			return -1, false
		}
	}
	c.owners[frame] = newSpace
	c.timers[frame] = 0
	c.mu.Unlock()
	return frame, true
}

// pickVictim selects a frame to evict. Caller must hold c.mu.
func (c *Coremap) pickVictim() int {
	if c.useLRU {
		victim, max := 0, c.timers[0]
		for i, t := range c.timers {
			if t > max {
				victim, max = i, t
			}
		}
		return victim
	}
	v := c.nextFIFO % len(c.owners)
	c.nextFIFO++
	return v
}

// UpdateTimers advances every frame's age by one and resets used's age to
// zero, the LRU bookkeeping the reference calls on every access.
func (c *Coremap) UpdateTimers(used int) {
	if !c.useLRU {
		return
	}
	c.mu.Lock()
	for i := range c.timers {
		c.timers[i]++
	}
	c.timers[used] = 0
	c.mu.Unlock()
}

// Clear frees every frame owned by space, used at process teardown.
func (c *Coremap) Clear(space *AddressSpace) {
	c.mu.Lock()
	for i, owner := range c.owners {
		if owner == space {
			c.owners[i] = nil
			c.frames.Clear(i)
		}
	}
	c.mu.Unlock()
}

// ClearPageIndex frees a single frame, used when a page is explicitly
// swapped out.
func (c *Coremap) ClearPageIndex(frame int) {
	c.mu.Lock()
	c.owners[frame] = nil
	c.frames.Clear(frame)
	c.mu.Unlock()
}
