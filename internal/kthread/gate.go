// Package kthread implements the kernel's thread and synchronization core:
// the interrupt gate, semaphores, locks with priority donation, condition
// variables, the rendezvous channel, and the cooperative scheduler itself.
// These are kept in one package because the reference design treats them as
// a single tightly coupled subsystem: a Lock is a Semaphore plus
// a hook into the Scheduler, a Condition is a queue of per-waiter
// Semaphores, and the Scheduler is what every blocking primitive ultimately
// parks against.
package kthread

import "sync"

// Level mirrors the NACHOS IntStatus enum: interrupts are either enabled
// (on) or disabled (off). Disabling interrupts is the sole atomicity
// mechanism the reference kernel uses to protect short critical sections
// (ready queues, semaphore counters) on its single CPU.
type Level bool

const (
	On  Level = true
	Off Level = false
)

// Gate is the interrupt gate (component A). In this Go rewrite, goroutines
// -- not a single hardware thread of control -- execute kernel code, so
// "interrupts disabled" is realized as a real mutual-exclusion lock: while
// off, at most one goroutine is inside the critical section the gate
// guards. This preserves the atomicity the reference design relies on
// without pretending to single-step a simulated CPU.
type Gate struct {
	mu    sync.Mutex
	level Level
	ticks uint64
}

// NewGate returns a Gate with interrupts initially enabled.
func NewGate() *Gate {
	return &Gate{level: On}
}

// SetLevel changes the interrupt level and returns the previous one, in the
// exact call/return shape of the reference `interrupt->SetLevel`. Not
// reentrant: a goroutine must not call SetLevel(Off) twice without an
// intervening SetLevel(On), same restriction the reference places on
// disabling an already-disabled CPU.
func (g *Gate) SetLevel(l Level) Level {
	switch l {
	case Off:
		g.mu.Lock()
		prev := g.level
		g.level = Off
		return prev
	case On:
		prev := g.level
		g.level = On
		g.mu.Unlock()
		return prev
	default:
		panic("kthread: invalid interrupt level")
	}
}

// Level reports the current interrupt level without changing it.
func (g *Gate) Level() Level {
	return g.level
}

// Tick advances the simulated timer by one tick and returns the new count.
// The scheduler never reads the count (there is no quantum-based
// preemption); it is exposed for callers that count ticks in tests.
func (g *Gate) Tick() uint64 {
	g.mu.Lock()
	g.ticks++
	t := g.ticks
	g.mu.Unlock()
	return t
}

// Ticks returns the number of timer ticks delivered so far.
func (g *Gate) Ticks() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ticks
}
