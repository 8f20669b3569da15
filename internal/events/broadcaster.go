package events

import (
	"sync"

	"github.com/AaronLay10/pcassist/internal/metrics"
)

// subscriberBuffer is how many events a slow subscriber may fall behind
// before it starts missing them.
const subscriberBuffer = 64

// Subscriber represents a channel that receives events.
type Subscriber chan Event

// Broadcaster manages live event subscribers (websocket clients, tests).
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]struct{}
}

var broadcaster = &Broadcaster{
	subscribers: make(map[Subscriber]struct{}),
}

// Subscribe adds a new subscriber and returns its channel.
func Subscribe() Subscriber {
	ch := make(Subscriber, subscriberBuffer)
	broadcaster.mu.Lock()
	broadcaster.subscribers[ch] = struct{}{}
	broadcaster.mu.Unlock()
	metrics.EventSubscribers.Inc()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
// Unsubscribing twice, or after CloseAllSubscribers, is a no-op.
func Unsubscribe(sub Subscriber) {
	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()
	if _, ok := broadcaster.subscribers[sub]; !ok {
		return
	}
	delete(broadcaster.subscribers, sub)
	close(sub)
	metrics.EventSubscribers.Dec()
}

// broadcast hands e to every subscriber without blocking. A subscriber whose
// buffer is full misses the event; the gap shows in the sequence numbers.
func broadcast(e Event) {
	broadcaster.mu.RLock()
	defer broadcaster.mu.RUnlock()

	for sub := range broadcaster.subscribers {
		select {
		case sub <- e:
		default:
			metrics.EventDrops.Inc()
		}
	}
}

// CloseAllSubscribers removes and closes every subscriber. Used on shutdown
// so websocket writers stop.
func CloseAllSubscribers() {
	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()
	for sub := range broadcaster.subscribers {
		close(sub)
	}
	metrics.EventSubscribers.Sub(float64(len(broadcaster.subscribers)))
	broadcaster.subscribers = make(map[Subscriber]struct{})
}

// SubscriberCount returns the current number of subscribers.
func SubscriberCount() int {
	broadcaster.mu.RLock()
	defer broadcaster.mu.RUnlock()
	return len(broadcaster.subscribers)
}

// RecentEvents returns the last n events, oldest first. n <= 0 returns all
// buffered events.
func RecentEvents(n int) []Event {
	return buffer.Last(n)
}
