package events

import (
	"sync"
)

// Wildcard subscribes to every kind
const Wildcard = "*"

// Subscriber is an interface for event subscribers
type Subscriber interface {
	OnEvent(event Event)
}

// SubscriberFunc adapts a function to Subscriber
type SubscriberFunc func(Event)

// OnEvent calls f(event)
func (f SubscriberFunc) OnEvent(event Event) { f(event) }

type subscription struct {
	id  uint64
	sub Subscriber
}

// EventBus routes events to subscribers by kind. It implements Sink.
type EventBus struct {
	subscribers map[string][]subscription
	nextID      uint64
	mu          sync.RWMutex
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]subscription),
	}
}

// Subscribe subscribes to one event kind (or Wildcard). The returned
// function removes the subscription.
func (eb *EventBus) Subscribe(kind string, subscriber Subscriber) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.nextID++
	id := eb.nextID
	eb.subscribers[kind] = append(eb.subscribers[kind], subscription{id: id, sub: subscriber})

	return func() { eb.unsubscribe(kind, id) }
}

func (eb *EventBus) unsubscribe(kind string, id uint64) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.subscribers[kind]
	for i, s := range subs {
		if s.id == id {
			eb.subscribers[kind] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
}

func (eb *EventBus) snapshot(kind string) []Subscriber {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	specific := eb.subscribers[kind]
	wildcard := eb.subscribers[Wildcard]
	subs := make([]Subscriber, 0, len(specific)+len(wildcard))
	for _, s := range specific {
		subs = append(subs, s.sub)
	}
	for _, s := range wildcard {
		subs = append(subs, s.sub)
	}
	return subs
}

// Emit delivers an event synchronously: kind subscribers first, then
// wildcard subscribers. Events reach each subscriber in emission order.
func (eb *EventBus) Emit(event Event) {
	for _, sub := range eb.snapshot(event.Kind()) {
		sub.OnEvent(event)
	}
}
