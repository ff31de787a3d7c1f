package kthread_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lautarocerruti/nachos-go/internal/kthread"
)

// newTestScheduler boots a scheduler with a running "main" thread, the same
// bootstrap shape kernel.New performs, so tests can Fork worker threads and
// call Join from the main goroutine.
func newTestScheduler(t *testing.T) (*kthread.Gate, *kthread.Scheduler, *kthread.Thread) {
	t.Helper()
	gate := kthread.NewGate()
	sched := kthread.NewScheduler(gate, nil)
	main := sched.NewThread("main", kthread.DefaultPriority, true)
	sched.Boot(main)
	return gate, sched, main
}

func TestSemaphoreProducerConsumer(t *testing.T) {
	gate, sched, main := newTestScheduler(t)
	sem := kthread.NewSemaphore("test", 0, gate, sched)

	const n = 10
	produced := make([]int, 0, n)

	consumer := sched.NewThread("consumer", kthread.DefaultPriority, true)
	consumer.Fork(func(any) {
		for i := 0; i < n; i++ {
			sem.P()
			produced = append(produced, i)
		}
	}, nil)

	producer := sched.NewThread("producer", kthread.DefaultPriority, false)
	producer.Fork(func(any) {
		for i := 0; i < n; i++ {
			sem.V()
		}
	}, nil)

	_ = main
	consumer.Join()
	require.Len(t, produced, n)
	assert.Equal(t, 0, sem.Value())
}
