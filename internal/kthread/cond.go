package kthread

// Condition is a Mesa-semantics condition variable (component D) built on
// the classic per-waiter-private-semaphore technique: Wait creates a
// fresh, zero-valued Semaphore, enqueues it, releases the associated Lock,
// and P's on its own semaphore; Signal V's the oldest queued semaphore.
// Because semantics are Mesa (not Hoare), a woken waiter only gets a
// chance to recheck its condition -- it does not resume atomically inside
// the critical section -- so callers must always wait in a loop.
type Condition struct {
	name  string
	gate  *Gate
	sched *Scheduler

	waiters []*Semaphore
}

// NewCondition returns an empty condition variable associated with no lock
// in particular; the caller passes the guarding Lock to each Wait call,
// matching the reference API where a Condition is reusable across locks.
func NewCondition(name string, gate *Gate, sched *Scheduler) *Condition {
	return &Condition{name: name, gate: gate, sched: sched}
}

// Wait atomically releases lock and blocks the calling thread, which must
// hold lock, until a matching Signal or Broadcast wakes it; lock is
// reacquired before Wait returns. Callers must recheck their predicate in
// a loop, per Mesa semantics.
func (c *Condition) Wait(lock *Lock) {
	priv := NewSemaphore(c.name+".waiter", 0, c.gate, c.sched)

	old := c.gate.SetLevel(Off)
	c.waiters = append(c.waiters, priv)
	c.gate.SetLevel(old)

	lock.Release()
	priv.P()
	lock.Acquire()
}

// Signal wakes at most one waiting thread, if any are waiting.
func (c *Condition) Signal() {
	old := c.gate.SetLevel(Off)
	var woken *Semaphore
	if len(c.waiters) > 0 {
		woken = c.waiters[0]
		c.waiters = c.waiters[1:]
	}
	c.gate.SetLevel(old)
	if woken != nil {
		woken.V()
	}
}

// Broadcast wakes every currently waiting thread.
func (c *Condition) Broadcast() {
	old := c.gate.SetLevel(Off)
	all := c.waiters
	c.waiters = nil
	c.gate.SetLevel(old)
	for _, w := range all {
		w.V()
	}
}
