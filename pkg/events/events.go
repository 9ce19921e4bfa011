package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quarterdeck/captain/pkg/types"
)

// Broker fans captain lifecycle events out to its subscribers: the
// /events websocket handlers and anything else that wants to watch
// chores move. Publishing never blocks the scheduler; slow subscribers
// miss events instead.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *types.Event
	stopCh      chan struct{}
}

// Subscriber is a channel receiving published events.
type Subscriber chan *types.Event

// NewBroker creates an event broker. Call Start before publishing.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *types.Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker. Events published afterwards are discarded.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe registers a new subscriber channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[sub] {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish hands an event to the distribution loop. Missing ids and
// timestamps are filled in.
func (b *Broker) Publish(event *types.Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

// PublishChore publishes a chore lifecycle event.
func (b *Broker) PublishChore(eventType types.EventType, chore types.Chore, message string) {
	b.Publish(&types.Event{
		Type:    eventType,
		ChoreID: chore.ID,
		Sailor:  chore.Sailor,
		UID:     chore.Owner,
		Message: message,
	})
}

// PublishSailor publishes a sailor lifecycle event.
func (b *Broker) PublishSailor(eventType types.EventType, name, message string) {
	b.Publish(&types.Event{
		Type:    eventType,
		Sailor:  name,
		Message: message,
	})
}

// PublishUser publishes a user administration event.
func (b *Broker) PublishUser(eventType types.EventType, uid, message string) {
	b.Publish(&types.Event{
		Type:    eventType,
		UID:     uid,
		Message: message,
	})
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *types.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}
