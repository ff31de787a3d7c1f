package kthread

import "fmt"

// Lock is a mutual-exclusion lock with one-level priority donation
// (component C), grounded on the reference's lock.cc: Acquire donates the
// caller's priority to the current holder when the caller is higher
// priority, and Release restores whatever priority the holder had before
// any donation. Donation is shallow by design: a chain of
// three or more nested locks does not propagate a boost past the
// immediate holder.
type Lock struct {
	name  string
	sched *Scheduler
	sem   *Semaphore

	mu          *Gate // reuses the kernel gate for the holder/basePriority bookkeeping below
	holder      *Thread
	basePrio    Priority
	hasBasePrio bool
}

// NewLock returns an unheld lock.
func NewLock(name string, gate *Gate, sched *Scheduler) *Lock {
	return &Lock{
		name:  name,
		sched: sched,
		sem:   NewSemaphore(name+".sem", 1, gate, sched),
		mu:    gate,
	}
}

// IsHeldByCurrentThread reports whether the calling thread holds the lock.
func (l *Lock) IsHeldByCurrentThread() bool {
	old := l.mu.SetLevel(Off)
	defer l.mu.SetLevel(old)
	return l.holder == l.sched.Current()
}

// Acquire blocks until the lock is free, then takes it. If the lock is
// currently held by a lower-priority thread, that holder's priority is
// temporarily raised to the caller's.
func (l *Lock) Acquire() {
	self := l.sched.Current()

	old := l.mu.SetLevel(Off)
	holder := l.holder
	if holder != nil && self.Priority() > holder.Priority() {
		if !l.hasBasePrio {
			l.basePrio = holder.Priority()
			l.hasBasePrio = true
		}
		l.sched.TransferPriority(holder, self.Priority())
	}
	l.mu.SetLevel(old)

	l.sem.P()

	old = l.mu.SetLevel(Off)
	if l.holder != nil {
		panic(fmt.Sprintf("kthread: lock %q acquired while already held", l.name))
	}
	l.holder = self
	l.mu.SetLevel(old)
}

// Release gives up the lock, restoring the holder's pre-donation priority
// if one was recorded.
func (l *Lock) Release() {
	old := l.mu.SetLevel(Off)
	if l.holder != l.sched.Current() {
		l.mu.SetLevel(old)
		panic(fmt.Sprintf("kthread: lock %q released by non-holder", l.name))
	}
	holder := l.holder
	l.holder = nil
	restore, hadDonation := l.basePrio, l.hasBasePrio
	l.hasBasePrio = false
	l.mu.SetLevel(old)

	if hadDonation {
		l.sched.TransferPriority(holder, restore)
	}
	l.sem.V()
}
