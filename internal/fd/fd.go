// Package fd defines File, the narrow interface a thread's per-descriptor
// table holds regardless of whether the descriptor names the console or an
// open disk file.
package fd

import "github.com/lautarocerruti/nachos-go/internal/console"

// File is what a file descriptor slot holds.
type File interface {
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
	Close() error
}

// ConsoleIn is the fixed descriptor-0 handle: console input.
type ConsoleIn struct{ Console *console.SynchConsole }

func (c ConsoleIn) Read(buf []byte) (int, error) {
	c.Console.Read(buf, len(buf))
	return len(buf), nil
}
func (c ConsoleIn) Write([]byte) (int, error) { return 0, errNotWritable }
func (c ConsoleIn) Close() error              { return nil }

// ConsoleOut is the fixed descriptor-1 handle: console output.
type ConsoleOut struct{ Console *console.SynchConsole }

func (c ConsoleOut) Read([]byte) (int, error) { return 0, errNotReadable }
func (c ConsoleOut) Write(buf []byte) (int, error) {
	c.Console.Write(buf)
	return len(buf), nil
}
func (c ConsoleOut) Close() error { return nil }

type fdError string

func (e fdError) Error() string { return string(e) }

const (
	errNotWritable = fdError("fd: console input is not writable")
	errNotReadable = fdError("fd: console output is not readable")
)
