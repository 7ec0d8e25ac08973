// Package pubsub is the change-propagation channel between the admin editor
// and everything that renders content.
//
// Publish never blocks: each subscriber owns a bounded buffer drained by its
// own goroutine, and a delivery that does not fit is dropped and counted.
// Events carry a type tag and an opaque payload. There is no replay; a
// subscriber only sees events published after it subscribed.
package pubsub

import (
	"context"
	"sync"
	"time"

	"github.com/conneroisu/trattoria/internal/logging"
	"github.com/conneroisu/trattoria/internal/metrics"
)

// Event types published by this service.
const (
	// TypePageContent is published after any section write.
	TypePageContent = "page-content"
	// TypePages is published after pages are created, updated, deleted or
	// re-provisioned.
	TypePages = "pages"
)

// Event is one change notification.
type Event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// PageContentChange is the payload of a TypePageContent event.
type PageContentChange struct {
	PageID    string `json:"pageId"`
	SectionID string `json:"sectionId,omitempty"`
	Action    string `json:"action"`
}

// PagesChange is the payload of a TypePages event.
type PagesChange struct {
	Slugs  []string `json:"slugs"`
	Action string   `json:"action"`
}

// Publisher is the write side of the channel.
type Publisher interface {
	Publish(eventType string, data interface{})
}

// Handler receives events on the subscriber's own goroutine.
type Handler func(Event)

// DefaultBufferSize is the per-subscriber queue length.
const DefaultBufferSize = 64

// Broker fans events out to subscribers.
type Broker struct {
	subscribers map[uint64]*subscriber
	nextID      uint64
	bufferSize  int
	closed      bool
	logger      logging.Logger
	mutex       sync.RWMutex
	wg          sync.WaitGroup
}

type subscriber struct {
	ch   chan Event
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// NewBroker creates a broker. A non-positive bufferSize uses DefaultBufferSize.
func NewBroker(bufferSize int, logger logging.Logger) *Broker {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Broker{
		subscribers: make(map[uint64]*subscriber),
		bufferSize:  bufferSize,
		logger:      logger.WithComponent("pubsub"),
	}
}

// Publish delivers an event to every current subscriber without blocking.
func (b *Broker) Publish(eventType string, data interface{}) {
	ev := Event{Type: eventType, Data: data, Timestamp: time.Now().UTC()}

	b.mutex.RLock()
	defer b.mutex.RUnlock()

	if b.closed {
		return
	}

	metrics.EventsPublishedTotal.WithLabelValues(eventType).Inc()
	for id, sub := range b.subscribers {
		select {
		case sub.ch <- ev:
		default:
			metrics.EventsDroppedTotal.Inc()
			b.logger.Debug(context.Background(), "Dropped event for slow subscriber", "subscriber", id, "type", eventType)
		}
	}
}

// Subscribe registers handler and returns a function that removes it. The
// unsubscribe function is idempotent. Subscribing to a closed broker returns
// a no-op unsubscribe and the handler is never called.
func (b *Broker) Subscribe(handler Handler) (unsubscribe func()) {
	b.mutex.Lock()
	if b.closed {
		b.mutex.Unlock()
		return func() {}
	}
	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan Event, b.bufferSize)}
	b.subscribers[id] = sub
	b.wg.Add(1)
	b.mutex.Unlock()

	metrics.Subscribers.Inc()

	go func() {
		defer b.wg.Done()
		for ev := range sub.ch {
			b.dispatch(handler, ev)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mutex.Lock()
			if _, ok := b.subscribers[id]; ok {
				delete(b.subscribers, id)
				metrics.Subscribers.Dec()
			}
			b.mutex.Unlock()
			sub.close()
		})
	}
}

func (b *Broker) dispatch(handler Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error(context.Background(), nil, "Subscriber panicked", "type", ev.Type, "panic", r)
		}
	}()
	handler(ev)
}

// SubscriberCount returns the number of live subscribers.
func (b *Broker) SubscriberCount() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.subscribers)
}

// Close stops delivery, closes every subscriber and waits for their
// goroutines to drain.
func (b *Broker) Close() {
	b.mutex.Lock()
	if b.closed {
		b.mutex.Unlock()
		return
	}
	b.closed = true
	subs := b.subscribers
	b.subscribers = make(map[uint64]*subscriber)
	b.mutex.Unlock()

	for _, sub := range subs {
		sub.close()
		metrics.Subscribers.Dec()
	}
	b.wg.Wait()
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(string, interface{}) {}
