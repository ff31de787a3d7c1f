package kthread

// Channel is a single-slot rendezvous channel (component E), grounded on
// the reference channel.cc: Send and Receive each block until paired with
// a matching partner, and a value handed to Send is delivered to exactly
// one Receive -- unlike a buffered queue, no value is ever dropped for
// lack of a reader. The three condition variables mirror the reference's
// three-wait-queue protocol: one for a Send waiting on a slot, one for a
// Receive waiting on a value, and one for the sender waiting for its value
// to actually be picked up before returning.
type Channel struct {
	name string
	lock *Lock

	hasValue bool
	value    any
	taken    bool

	slotFree *Condition // signaled when value has been consumed, freeing the slot for the next Send
	hasValueC *Condition // signaled when a value becomes available for Receive
	takenC   *Condition // signaled when a receiver has taken the current value
}

// NewChannel returns an empty rendezvous channel.
func NewChannel(name string, gate *Gate, sched *Scheduler) *Channel {
	lock := NewLock(name+".lock", gate, sched)
	return &Channel{
		name:      name,
		lock:      lock,
		slotFree:  NewCondition(name+".slotFree", gate, sched),
		hasValueC: NewCondition(name+".hasValue", gate, sched),
		takenC:    NewCondition(name+".taken", gate, sched),
	}
}

// Send blocks until a Receive has taken v.
func (c *Channel) Send(v any) {
	c.lock.Acquire()
	for c.hasValue {
		c.slotFree.Wait(c.lock)
	}
	c.value = v
	c.hasValue = true
	c.taken = false
	c.hasValueC.Signal()

	for !c.taken {
		c.takenC.Wait(c.lock)
	}
	c.hasValue = false
	c.slotFree.Signal()
	c.lock.Release()
}

// Receive blocks until a Send makes a value available, then returns it.
func (c *Channel) Receive() any {
	c.lock.Acquire()
	for !c.hasValue || c.taken {
		c.hasValueC.Wait(c.lock)
	}
	v := c.value
	c.taken = true
	c.takenC.Signal()
	c.lock.Release()
	return v
}
