package kthread

import (
	"fmt"
	"sort"
	"sync"
)

// Logger is the narrow logging interface the scheduler (and the rest of
// kthread) needs; kernel.Kernel supplies a zap-backed implementation, tests
// can pass nil (logging becomes a no-op).
type Logger interface {
	Debugf(format string, args ...any)
}

// Scheduler holds one FIFO ready queue per priority level and drives the
// cooperative baton hand-off between Thread goroutines.
type Scheduler struct {
	mu      sync.Mutex
	ready   [numPriorities][]*Thread
	current *Thread
	notify  *sync.Cond

	gate        *Gate
	nextSpaceID int
	threads     map[int]*Thread // live, non-reaped threads, keyed by SpaceID; for Ps

	log Logger
}

// NewScheduler constructs an empty scheduler bound to gate, the interrupt
// gate every blocking primitive it creates threads for will share. Call
// Boot with the initial (already-running) thread before forking any
// others.
func NewScheduler(gate *Gate, log Logger) *Scheduler {
	s := &Scheduler{gate: gate, threads: make(map[int]*Thread)}
	s.notify = sync.NewCond(&s.mu)
	s.log = log
	return s
}

func (s *Scheduler) debugf(format string, args ...any) {
	if s.log != nil {
		s.log.Debugf(format, args...)
	}
}

// NewThread allocates a Thread bound to this scheduler, not yet started.
func (s *Scheduler) NewThread(name string, priority Priority, joinable bool) *Thread {
	if priority < MinPriority || priority > MaxPriority {
		panic(fmt.Sprintf("kthread: priority %d out of range", priority))
	}
	s.mu.Lock()
	s.nextSpaceID++
	id := s.nextSpaceID
	s.mu.Unlock()

	t := &Thread{
		name:     name,
		spaceID:  id,
		priority: priority,
		joinable: joinable,
		sched:    s,
		resume:   make(chan struct{}, 1),
		state:    Blocked,
	}
	if joinable {
		t.exitSem = NewSemaphore(name+".exit", 0, s.gate, s)
	}
	s.mu.Lock()
	s.threads[id] = t
	s.mu.Unlock()
	return t
}

// Boot installs t as the currently running thread without going through
// Fork/dispatch; used once, for the bootstrap ("main") thread that is
// already executing when the kernel starts.
func (s *Scheduler) Boot(t *Thread) {
	s.mu.Lock()
	s.current = t
	t.state = Running
	s.mu.Unlock()
}

// Current returns the thread presently holding the CPU.
func (s *Scheduler) Current() *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// ReadyToRun enqueues t at its own priority level.
func (s *Scheduler) ReadyToRun(t *Thread) {
	s.mu.Lock()
	t.state = Ready
	p := t.priority
	s.ready[p] = append(s.ready[p], t)
	s.notify.Broadcast()
	s.mu.Unlock()
}

// TransferPriority dequeues t from its current ready-queue level (if it is
// ready) and re-enqueues it at p, updating t.priority -- the hook priority
// donation (component C) uses to raise or restore a lock holder's
// priority.
func (s *Scheduler) TransferPriority(t *Thread, p Priority) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.state == Ready {
		old := t.priority
		q := s.ready[old]
		for i, c := range q {
			if c == t {
				s.ready[old] = append(q[:i], q[i+1:]...)
				break
			}
		}
		s.ready[p] = append(s.ready[p], t)
	}
	t.priority = p
}

// pickNext pops the highest-priority ready thread, blocking (releasing and
// re-acquiring s.mu via the condition variable) until one exists.
func (s *Scheduler) pickNext() *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		for p := MaxPriority; p >= MinPriority; p-- {
			q := s.ready[p]
			if len(q) > 0 {
				t := q[0]
				s.ready[p] = q[1:]
				return t
			}
		}
		s.notify.Wait()
	}
}

// dispatch makes next the running thread and releases its baton. Caller
// must not hold s.mu.
func (s *Scheduler) dispatch(next *Thread) {
	s.mu.Lock()
	s.current = next
	next.state = Running
	s.mu.Unlock()
	next.resume <- struct{}{}
}

// parkSelfAndSwitch hands the CPU to the next ready thread and blocks self
// until it is rescheduled. The caller is responsible for having already set
// self's state (Ready, via ReadyToRun, or Blocked directly) before calling.
func (s *Scheduler) parkSelfAndSwitch(self *Thread) {
	next := s.pickNext()
	s.dispatch(next)
	<-self.resume
}

// reap removes t from the live-thread table. Safe to call more than once.
func (s *Scheduler) reap(t *Thread) {
	s.mu.Lock()
	delete(s.threads, t.spaceID)
	s.mu.Unlock()
}

// ThreadInfo is a snapshot of one live thread, used by the Ps syscall and
// the `ps` CLI command.
type ThreadInfo struct {
	SpaceID  int
	Name     string
	Priority Priority
	State    State
}

// Ps lists every live (non-reaped) thread, sorted by space id, matching the
// `allprocs` table walk a process-listing syscall performs.
func (s *Scheduler) Ps() []ThreadInfo {
	s.mu.Lock()
	out := make([]ThreadInfo, 0, len(s.threads))
	for _, t := range s.threads {
		out = append(out, ThreadInfo{
			SpaceID:  t.spaceID,
			Name:     t.name,
			Priority: t.Priority(),
			State:    t.State(),
		})
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SpaceID < out[j].SpaceID })
	return out
}

// Count returns the number of live threads (backs the Ps syscall's return
// value).
func (s *Scheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.threads)
}
