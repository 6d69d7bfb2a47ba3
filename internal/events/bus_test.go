package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPublishFansOut(t *testing.T) {
	b := NewBus()
	ch1, cancel1 := b.Subscribe(4)
	ch2, cancel2 := b.Subscribe(4)
	defer cancel1()
	defer cancel2()

	b.Publish(Event{Type: AgentCreated, AgentID: "a1", Slot: 2})

	for _, ch := range []<-chan Event{ch1, ch2} {
		ev := <-ch
		assert.Equal(t, AgentCreated, ev.Type)
		assert.Equal(t, "a1", ev.AgentID)
		assert.Equal(t, 2, ev.Slot)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestPerAgentOrderPreserved(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe(16)
	defer cancel()

	b.Publish(Event{Type: AgentCreated, AgentID: "a1"})
	b.Publish(Event{Type: AgentNavigated, AgentID: "a1", URL: "https://example.com"})
	b.Publish(Event{Type: AgentLoaded, AgentID: "a1"})

	want := []Type{AgentCreated, AgentNavigated, AgentLoaded}
	for _, w := range want {
		ev := <-ch
		assert.Equal(t, w, ev.Type)
	}
}

func TestSlowSubscriberDropsNotBlocks(t *testing.T) {
	b := NewBus()
	_, cancel := b.Subscribe(1)
	defer cancel()

	b.Publish(Event{Type: AgentStatus, AgentID: "a1"})
	b.Publish(Event{Type: AgentStatus, AgentID: "a1"})
	b.Publish(Event{Type: AgentStatus, AgentID: "a1"})

	assert.Equal(t, uint64(2), b.Dropped())
}

func TestCancelDetachesAndCloses(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe(1)

	cancel()
	cancel() // safe twice

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.SubscriberCount())

	b.Publish(Event{Type: AgentStatus})
	assert.Equal(t, uint64(0), b.Dropped())
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	b := NewBus()

	var drainers sync.WaitGroup
	cancels := make([]func(), 0, 4)
	for n := 0; n < 4; n++ {
		ch, cancel := b.Subscribe(512)
		cancels = append(cancels, cancel)
		drainers.Add(1)
		go func(ch <-chan Event) {
			defer drainers.Done()
			for range ch {
			}
		}(ch)
	}
	require.Equal(t, 4, b.SubscriberCount())

	var pubs sync.WaitGroup
	for n := 0; n < 4; n++ {
		pubs.Add(1)
		go func() {
			defer pubs.Done()
			for i := 0; i < 50; i++ {
				b.Publish(Event{Type: AgentStatus, AgentID: "a"})
			}
		}()
	}
	pubs.Wait()

	for _, cancel := range cancels {
		cancel()
	}
	drainers.Wait()
	assert.Equal(t, 0, b.SubscriberCount())
}
