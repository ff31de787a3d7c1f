package console

import "sync"

// completer is the subset of SynchConsole a FakeDevice needs to signal
// completion; kept as an interface so FakeDevice does not import the
// concrete SynchConsole type it is attached to.
type completer interface {
	ReadAvail()
	WriteDone()
}

// FakeDevice is an in-memory stand-in for the out-of-scope console
// hardware: GetChar pops from a preloaded input queue, PutChar appends to
// an output buffer. Since there is no real interrupt source, Attach
// signals read availability once per preloaded input byte, and PutChar
// signals its own completion synchronously through the attached
// SynchConsole.
type FakeDevice struct {
	mu     sync.Mutex
	input  []byte
	output []byte
	synch  completer
}

// NewFakeDevice returns a device preloaded with input to be read.
func NewFakeDevice(input []byte) *FakeDevice {
	return &FakeDevice{input: append([]byte(nil), input...)}
}

// Attach records the SynchConsole this device reports completions to and
// signals ReadAvail once for every preloaded input byte; must be called
// once, before any PutChar/GetChar.
func (d *FakeDevice) Attach(c completer) {
	d.mu.Lock()
	n := len(d.input)
	d.mu.Unlock()
	d.synch = c
	for i := 0; i < n; i++ {
		c.ReadAvail()
	}
}

// Output returns everything written so far.
func (d *FakeDevice) Output() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.output...)
}

func (d *FakeDevice) PutChar(b byte) {
	d.mu.Lock()
	d.output = append(d.output, b)
	d.mu.Unlock()
	d.synch.WriteDone()
}

func (d *FakeDevice) GetChar() byte {
	d.mu.Lock()
	var b byte
	if len(d.input) > 0 {
		b = d.input[0]
		d.input = d.input[1:]
	}
	d.mu.Unlock()
	return b
}
