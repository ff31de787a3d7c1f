package fd_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lautarocerruti/nachos-go/internal/console"
	"github.com/lautarocerruti/nachos-go/internal/fd"
	"github.com/lautarocerruti/nachos-go/internal/kthread"
)

func newTestConsole(t *testing.T, input []byte) *console.SynchConsole {
	t.Helper()
	gate := kthread.NewGate()
	sched := kthread.NewScheduler(gate, nil)
	main := sched.NewThread("main", kthread.DefaultPriority, true)
	sched.Boot(main)

	dev := console.NewFakeDevice(input)
	c := console.New(dev, gate, sched)
	dev.Attach(c)
	return c
}

func TestConsoleInReadsFromConsole(t *testing.T) {
	in := fd.ConsoleIn{Console: newTestConsole(t, []byte("xy"))}
	buf := make([]byte, 2)
	n, err := in.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte("xy"), buf)
}

func TestConsoleInIsNotWritable(t *testing.T) {
	in := fd.ConsoleIn{Console: newTestConsole(t, nil)}
	_, err := in.Write([]byte("x"))
	assert.Error(t, err)
}

func TestConsoleOutWritesToConsole(t *testing.T) {
	gate := kthread.NewGate()
	sched := kthread.NewScheduler(gate, nil)
	main := sched.NewThread("main", kthread.DefaultPriority, true)
	sched.Boot(main)
	dev := console.NewFakeDevice(nil)
	c := console.New(dev, gate, sched)
	dev.Attach(c)

	out := fd.ConsoleOut{Console: c}
	n, err := out.Write([]byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte("hi"), dev.Output())
}

func TestConsoleOutIsNotReadable(t *testing.T) {
	out := fd.ConsoleOut{Console: newTestConsole(t, nil)}
	_, err := out.Read(make([]byte, 1))
	assert.Error(t, err)
}
