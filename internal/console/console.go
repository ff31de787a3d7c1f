// Package console implements SynchConsole (component O), a thread-safe
// blocking wrapper over an asynchronous byte-at-a-time console device. The
// device itself is out of scope and is consumed only through
// the narrow Device interface.
package console

import "github.com/lautarocerruti/nachos-go/internal/kthread"

// Device is the narrow async console collaborator: PutChar/GetChar start
// an operation that later signals completion by calling the handler
// registered at construction. Grounded on userprog/synch_console.cc's
// `Console`.
type Device interface {
	PutChar(b byte)
	GetChar() byte
}

// SynchConsole serializes readers and writers separately with a Lock each,
// and blocks on a Semaphore per byte until the device signals completion,
// grounded on synch_console.cc.
type SynchConsole struct {
	device Device

	writeDone *kthread.Semaphore
	readAvail *kthread.Semaphore
	lockWrite *kthread.Lock
	lockRead  *kthread.Lock
}

// New returns a SynchConsole wrapping device. The caller must arrange for
// the device's completion handlers to call ReadAvail/WriteDone.
func New(device Device, gate *kthread.Gate, sched *kthread.Scheduler) *SynchConsole {
	return &SynchConsole{
		device:    device,
		writeDone: kthread.NewSemaphore("console.writeDone", 0, gate, sched),
		readAvail: kthread.NewSemaphore("console.readAvail", 0, gate, sched),
		lockWrite: kthread.NewLock("console.write", gate, sched),
		lockRead:  kthread.NewLock("console.read", gate, sched),
	}
}

// ReadAvail is the device's read-completion callback.
func (c *SynchConsole) ReadAvail() { c.readAvail.V() }

// WriteDone is the device's write-completion callback.
func (c *SynchConsole) WriteDone() { c.writeDone.V() }

// Write blocks until every byte of buf has been written to the device.
func (c *SynchConsole) Write(buf []byte) {
	c.lockWrite.Acquire()
	for _, b := range buf {
		c.device.PutChar(b)
		c.writeDone.P()
	}
	c.lockWrite.Release()
}

// Read blocks until n bytes have been read from the device into buf.
func (c *SynchConsole) Read(buf []byte, n int) {
	c.lockRead.Acquire()
	for i := 0; i < n; i++ {
		c.readAvail.P()
		buf[i] = c.device.GetChar()
	}
	c.lockRead.Release()
}
