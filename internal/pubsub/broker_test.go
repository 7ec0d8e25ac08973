package pubsub

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(b *Broker) (func() []Event, func()) {
	var (
		mu     sync.Mutex
		events []Event
	)
	unsub := b.Subscribe(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	return func() []Event {
		mu.Lock()
		defer mu.Unlock()
		return append([]Event(nil), events...)
	}, unsub
}

func TestBroker_DeliversToAllSubscribers(t *testing.T) {
	b := NewBroker(8, nil)
	defer b.Close()

	first, _ := collect(b)
	second, _ := collect(b)

	b.Publish(TypePageContent, PageContentChange{PageID: "p1", SectionID: "s1", Action: "update"})

	require.Eventually(t, func() bool {
		return len(first()) == 1 && len(second()) == 1
	}, time.Second, 5*time.Millisecond)

	ev := first()[0]
	assert.Equal(t, TypePageContent, ev.Type)
	assert.Equal(t, PageContentChange{PageID: "p1", SectionID: "s1", Action: "update"}, ev.Data)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestBroker_NoReplay(t *testing.T) {
	b := NewBroker(8, nil)
	defer b.Close()

	b.Publish(TypePages, nil)
	events, _ := collect(b)
	b.Publish(TypePages, "after")

	require.Eventually(t, func() bool { return len(events()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "after", events()[0].Data)
}

func TestBroker_Unsubscribe(t *testing.T) {
	b := NewBroker(8, nil)
	defer b.Close()

	events, unsub := collect(b)
	assert.Equal(t, 1, b.SubscriberCount())

	unsub()
	unsub()
	assert.Equal(t, 0, b.SubscriberCount())

	b.Publish(TypePages, nil)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, events())
}

func TestBroker_SlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	b := NewBroker(1, nil)
	defer b.Close()

	release := make(chan struct{})
	b.Subscribe(func(Event) { <-release })
	fast, _ := collect(b)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(TypePageContent, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	close(release)

	require.Eventually(t, func() bool { return len(fast()) > 0 }, time.Second, 5*time.Millisecond)
}

func TestBroker_PanickingHandlerIsContained(t *testing.T) {
	b := NewBroker(8, nil)
	defer b.Close()

	var calls atomic.Int32
	b.Subscribe(func(Event) {
		calls.Add(1)
		panic("bad subscriber")
	})

	b.Publish(TypePages, nil)
	b.Publish(TypePages, nil)

	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestBroker_Close(t *testing.T) {
	b := NewBroker(8, nil)
	_, unsub := collect(b)

	b.Close()
	b.Close()
	assert.Equal(t, 0, b.SubscriberCount())

	assert.NotPanics(t, func() {
		b.Publish(TypePages, nil)
		unsub()
	})

	var called atomic.Bool
	b.Subscribe(func(Event) { called.Store(true) })
	b.Publish(TypePages, nil)
	time.Sleep(10 * time.Millisecond)
	assert.False(t, called.Load())
}
