package kthread

// Semaphore is a classic counting semaphore (component B): P blocks while
// the count is zero, V increments and wakes the longest-waiting blocked
// thread. The reference implementation protects the count by disabling
// interrupts for the duration of P/V; here a Gate plays that role, and is
// released before a P call actually parks the calling thread, since
// parking blocks on a channel receive and holding the gate across that
// would wedge every other thread in the kernel.
type Semaphore struct {
	name  string
	gate  *Gate
	sched *Scheduler

	value   int
	waiters []*Thread // FIFO
}

// NewSemaphore returns a semaphore with the given initial value.
func NewSemaphore(name string, initial int, gate *Gate, sched *Scheduler) *Semaphore {
	if initial < 0 {
		panic("kthread: semaphore initial value must be non-negative")
	}
	return &Semaphore{name: name, value: initial, gate: gate, sched: sched}
}

// P decrements the semaphore, blocking the calling thread if the value is
// already zero.
func (s *Semaphore) P() {
	old := s.gate.SetLevel(Off)
	for s.value == 0 {
		self := s.sched.Current()
		s.waiters = append(s.waiters, self)
		self.setState(Blocked)
		s.gate.SetLevel(old)
		self.sched.parkSelfAndSwitch(self)
		old = s.gate.SetLevel(Off)
	}
	s.value--
	s.gate.SetLevel(old)
}

// V increments the semaphore, waking the longest-waiting thread if any.
func (s *Semaphore) V() {
	old := s.gate.SetLevel(Off)
	s.value++
	var woken *Thread
	if len(s.waiters) > 0 {
		woken = s.waiters[0]
		s.waiters = s.waiters[1:]
	}
	s.gate.SetLevel(old)
	if woken != nil {
		s.sched.ReadyToRun(woken)
	}
}

// Value returns the current count, for diagnostics and tests only.
func (s *Semaphore) Value() int {
	old := s.gate.SetLevel(Off)
	v := s.value
	s.gate.SetLevel(old)
	return v
}
