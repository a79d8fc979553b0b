package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversInOrder(t *testing.T) {
	b := NewBus(nil)
	defer b.Close()

	var (
		mu  sync.Mutex
		got []uint64
	)
	b.Subscribe(func(ev Event) {
		mu.Lock()
		got = append(got, ev.Seq)
		mu.Unlock()
	})

	const n = 500
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < n; j++ {
				b.Publish(Event{})
			}
		}()
	}
	wg.Wait()
	b.Sync()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 4*n)
	for i, seq := range got {
		assert.Equal(t, uint64(i+1), seq)
	}
}

func TestBusSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewBus(nil)
	defer b.Close()

	release := make(chan struct{})
	var count int
	b.Subscribe(func(Event) {
		<-release
		count++
	})
	for i := 0; i < 100; i++ {
		b.Publish(Event{})
	}
	close(release)
	b.Sync()
	assert.Equal(t, 100, count)
}

func TestBusUnsubscribeAndPanics(t *testing.T) {
	b := NewBus(nil)
	defer b.Close()

	var calls int
	cancel := b.Subscribe(func(Event) { calls++; panic("boom") })
	b.Publish(Event{})
	b.Sync()
	cancel()
	b.Publish(Event{})
	b.Sync()
	assert.Equal(t, 1, calls)
}
