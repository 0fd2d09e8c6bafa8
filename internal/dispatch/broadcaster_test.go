package dispatch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishOrder(t *testing.T) {
	var b Broadcaster[int]
	var got []string

	b.Subscribe(func(v int) { got = append(got, "a") })
	b.Subscribe(func(v int) { got = append(got, "b") })
	b.Subscribe(func(v int) { got = append(got, "c") })

	require.NoError(t, b.Publish(1))
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestPublishNoSubscribers(t *testing.T) {
	b := NewBroadcaster[string]()
	assert.NoError(t, b.Publish("x"))
	assert.Equal(t, 0, b.Len())
}

func TestDuplicateSubscribers(t *testing.T) {
	b := NewBroadcaster[int]()
	n := 0
	fn := func(int) { n++ }

	b.Subscribe(fn)
	b.Subscribe(fn)
	require.NoError(t, b.Publish(0))
	assert.Equal(t, 2, n)
}

func TestSubscribeNil(t *testing.T) {
	b := NewBroadcaster[int]()
	assert.Nil(t, b.Subscribe(nil))
	assert.Equal(t, 0, b.Len())
}

func TestUnsubscribe(t *testing.T) {
	b := NewBroadcaster[int]()
	var got []int

	s1 := b.Subscribe(func(v int) { got = append(got, 1) })
	b.Subscribe(func(v int) { got = append(got, 2) })
	b.Unsubscribe(s1)
	b.Unsubscribe(s1)
	b.Unsubscribe(nil)
	b.Unsubscribe(&Subscription{id: 999})

	require.NoError(t, b.Publish(0))
	assert.Equal(t, []int{2}, got)
	assert.Equal(t, 1, b.Len())
}

func TestPanicIsIsolated(t *testing.T) {
	b := NewBroadcaster[int]()
	after := 0

	b.Subscribe(func(int) { panic("boom") })
	b.Subscribe(func(int) { after++ })

	err := b.Publish(0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSubscriberPanic)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 1, after)
}

func TestUnsubscribeDuringPublish(t *testing.T) {
	b := NewBroadcaster[int]()
	var got []string

	var second *Subscription
	b.Subscribe(func(int) {
		got = append(got, "first")
		b.Unsubscribe(second)
	})
	second = b.Subscribe(func(int) { got = append(got, "second") })

	require.NoError(t, b.Publish(0))
	assert.Equal(t, []string{"first", "second"}, got, "the snapshot taken at publish still includes second")

	got = nil
	require.NoError(t, b.Publish(0))
	assert.Equal(t, []string{"first"}, got)
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	b := NewBroadcaster[int]()
	var mu sync.Mutex
	total := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := b.Subscribe(func(int) {
				mu.Lock()
				total++
				mu.Unlock()
			})
			b.Unsubscribe(sub)
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = b.Publish(j)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, b.Len())
}
