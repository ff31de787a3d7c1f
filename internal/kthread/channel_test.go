package kthread_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lautarocerruti/nachos-go/internal/kthread"
)

// TestChannelRendezvous checks that a Send must not return until a
// matching Receive has taken the value, so a single-element handoff never
// drops a message even though the channel has no backing buffer.
func TestChannelRendezvous(t *testing.T) {
	gate, sched, _ := newTestScheduler(t)
	ch := kthread.NewChannel("test", gate, sched)

	var got any

	receiver := sched.NewThread("receiver", kthread.DefaultPriority, true)
	receiver.Fork(func(any) {
		got = ch.Receive()
	}, nil)

	sender := sched.NewThread("sender", kthread.DefaultPriority, false)
	sender.Fork(func(any) {
		ch.Send(99)
	}, nil)

	receiver.Join()
	require.NotNil(t, got)
	assert.Equal(t, 99, got)
}

// TestChannelMultipleSendersReceivers pairs several senders with several
// receivers and checks every value sent is received exactly once.
func TestChannelMultipleSendersReceivers(t *testing.T) {
	gate, sched, _ := newTestScheduler(t)
	ch := kthread.NewChannel("test", gate, sched)

	const n = 5
	results := make(chan int, n)

	receivers := make([]*kthread.Thread, n)
	for i := 0; i < n; i++ {
		r := sched.NewThread("receiver", kthread.DefaultPriority, true)
		r.Fork(func(any) {
			v := ch.Receive().(int)
			results <- v
		}, nil)
		receivers[i] = r
	}

	for i := 0; i < n; i++ {
		i := i
		s := sched.NewThread("sender", kthread.DefaultPriority, false)
		s.Fork(func(any) {
			ch.Send(i)
		}, nil)
	}

	for _, r := range receivers {
		r.Join()
	}
	close(results)

	seen := make(map[int]bool)
	for v := range results {
		seen[v] = true
	}
	assert.Len(t, seen, n)
}
