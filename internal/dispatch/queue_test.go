package dispatch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueDeliversInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []int

	q := NewQueue(16, func(v int) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	}, nil)

	for i := 0; i < 10; i++ {
		require.True(t, q.Handle(i))
	}
	q.Close()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
	assert.Equal(t, uint64(10), q.Delivered())
	assert.Equal(t, uint64(0), q.Dropped())
}

func TestQueueDropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	q := NewQueue(2, func(int) {
		once.Do(func() { close(started) })
		<-release
	}, nil)

	dropped := 0
	q.OnDrop = func(int) { dropped++ }

	require.True(t, q.Handle(0))
	<-started // worker holds event 0; the buffer is empty again

	assert.True(t, q.Handle(1))
	assert.True(t, q.Handle(2))
	assert.False(t, q.Handle(3))
	assert.False(t, q.Handle(4))

	close(release)
	q.Close()

	assert.Equal(t, uint64(2), q.Dropped())
	assert.Equal(t, 2, dropped)
	assert.Equal(t, uint64(3), q.Delivered())
}

func TestQueueHandleAfterClose(t *testing.T) {
	q := NewQueue(4, func(int) {}, nil)
	q.Close()
	q.Close()

	assert.False(t, q.Handle(1))
	assert.Equal(t, uint64(1), q.Dropped())
}

func TestQueueRecoversHandlerPanic(t *testing.T) {
	n := 0
	q := NewQueue(4, func(v int) {
		if v == 0 {
			panic("bad event")
		}
		n++
	}, nil)

	q.Handle(0)
	q.Handle(1)
	q.Close()

	assert.Equal(t, uint64(1), q.Panics())
	assert.Equal(t, uint64(1), q.Delivered())
	assert.Equal(t, 1, n)
}

func TestQueueDefaultSize(t *testing.T) {
	q := NewQueue(0, func(int) {}, nil)
	defer q.Close()
	assert.Equal(t, DefaultQueueSize, q.Cap())
}
