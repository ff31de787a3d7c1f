package kernel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lautarocerruti/nachos-go/internal/console"
	"github.com/lautarocerruti/nachos-go/internal/disk"
	"github.com/lautarocerruti/nachos-go/internal/exec"
	"github.com/lautarocerruti/nachos-go/internal/kernel"
	"github.com/lautarocerruti/nachos-go/internal/machine"
)

func newTestKernel(t *testing.T) *kernel.Kernel {
	t.Helper()
	log := kernel.NewLogger(zap.NewNop())
	d := disk.New(512)
	m := machine.New(64, false)
	dev := console.NewFakeDevice(nil)

	k, err := kernel.New(kernel.DefaultConfig(), d, m, dev, log, true)
	require.NoError(t, err)
	return k
}

func TestKernelNewMountsAFreshFilesystem(t *testing.T) {
	k := newTestKernel(t)
	main := k.Sched.NewThread("main", 15, true)
	k.Sched.Boot(main)
	k.InitMainThread(main)
	assert.NoError(t, k.FS.Check())
}

func TestKernelExecJoinRunsAProgramToCompletion(t *testing.T) {
	k := newTestKernel(t)
	main := k.Sched.NewThread("main", 15, true)
	k.Sched.Boot(main)
	k.InitMainThread(main)

	code := []byte{1, 2, 3, 4}
	img := exec.Build(0, code, uint32(len(code)), nil, 0)
	require.NoError(t, k.FS.Create(main, "prog", len(img), false))
	f, err := k.FS.Open(main, "prog")
	require.NoError(t, err)
	_, err = f.Write(img)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	spaceID, err := k.Exec("prog", true)
	require.NoError(t, err)

	status, err := k.Join(spaceID)
	require.NoError(t, err)
	assert.Equal(t, 0, status)
}

func TestKernelJoinUnknownSpaceIDFails(t *testing.T) {
	k := newTestKernel(t)
	main := k.Sched.NewThread("main", 15, true)
	k.Sched.Boot(main)
	k.InitMainThread(main)

	_, err := k.Join(999)
	assert.Error(t, err)
}

func TestKernelHaltDoesNotPanicWithLiveThreads(t *testing.T) {
	k := newTestKernel(t)
	main := k.Sched.NewThread("main", 15, true)
	k.Sched.Boot(main)
	k.InitMainThread(main)
	k.Halt()
}
