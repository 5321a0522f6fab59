// Package bus provides the event coordination substrate that decouples
// detection from remediation. Producers (monitors) and consumers (fix engines,
// dashboards, metrics) share one explicitly constructed Bus instance; nothing
// in this package relies on global state.
package bus

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Event is the envelope delivered to subscribers and retained in history.
type Event struct {
	// Name identifies the event kind (e.g. "issue.detected").
	Name string `json:"name"`
	// Payload is the event data; convenience emitters fix its shape per kind.
	Payload interface{} `json:"payload"`
	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"timestamp"`
}

// Handler consumes one event. Handlers run synchronously on the emitter's
// goroutine, in subscription order; long blocking work in a handler delays
// delivery to every other subscriber of the same emission.
type Handler func(Event)

// subscription ties a handler to a subscriber identity for cleanup.
type subscription struct {
	subscriberID string
	handler      Handler
}

// Config holds bus configuration.
type Config struct {
	// HistoryCap is the maximum number of events retained per event name.
	// Oldest entries are evicted once the cap is exceeded. Default: 100.
	HistoryCap int
}

// DefaultConfig returns default bus configuration.
func DefaultConfig() *Config {
	return &Config{
		HistoryCap: 100,
	}
}

// Bus is a synchronous publish/subscribe coordinator with bounded per-name
// event history. Dispatch is synchronous and ordered; a faulty subscriber is
// isolated (its panic becomes a system.error event) and never prevents
// delivery to later subscribers.
type Bus struct {
	mu         sync.Mutex
	subs       map[string][]*subscription
	history    map[string][]Event
	historyCap int
}

// New creates an event bus.
func New(cfg *Config) *Bus {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = 100
	}
	return &Bus{
		subs:       make(map[string][]*subscription),
		history:    make(map[string][]Event),
		historyCap: cfg.HistoryCap,
	}
}

// Emit publishes an event: it timestamps the payload, records it into the
// bounded history, then invokes all current subscribers for that name
// synchronously, in subscription order, before returning. Subscribers added
// during delivery do not receive the in-flight emission.
func (b *Bus) Emit(name string, payload interface{}) {
	event := Event{
		Name:      name,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	b.mu.Lock()
	entries := append(b.history[name], event)
	if len(entries) > b.historyCap {
		// Evict oldest; copy down so the backing array doesn't pin evicted entries
		copy(entries, entries[len(entries)-b.historyCap:])
		entries = entries[:b.historyCap]
	}
	b.history[name] = entries

	// Snapshot the subscriber list so handlers can subscribe/unsubscribe
	// without deadlocking, and so delivery order is fixed at emission time.
	targets := make([]*subscription, len(b.subs[name]))
	copy(targets, b.subs[name])
	b.mu.Unlock()

	log.Printf("event: %s (%d subscribers)", name, len(targets))

	for _, sub := range targets {
		b.deliver(sub, event)
	}
}

// deliver invokes one handler, converting a panic into a system.error event so
// one faulty subscriber cannot break delivery to others or crash the emitter.
func (b *Bus) deliver(sub *subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("subscriber %s panicked handling %s: %v", sub.subscriberID, event.Name, r)
			// A panicking system.error handler is logged only; re-emitting
			// would recurse.
			if event.Name != EventSystemError {
				b.EmitSystemError(sub.subscriberID, fmt.Sprintf("subscriber panic handling %s: %v", event.Name, r))
			}
		}
	}()
	sub.handler(event)
}

// Subscribe registers a handler for an event name under a subscriber identity.
// The same subscriber may register for many names, and many subscribers may
// register for one name; delivery follows subscription order.
func (b *Bus) Subscribe(subscriberID, name string, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[name] = append(b.subs[name], &subscription{
		subscriberID: subscriberID,
		handler:      handler,
	})
}

// Unsubscribe removes all of a subscriber's registrations for one event name.
func (b *Bus) Unsubscribe(subscriberID, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[name] = removeSubscriber(b.subs[name], subscriberID)
	if len(b.subs[name]) == 0 {
		delete(b.subs, name)
	}
}

// UnsubscribeAll removes every registration of a subscriber, across all event
// names, atomically.
func (b *Bus) UnsubscribeAll(subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for name, subs := range b.subs {
		remaining := removeSubscriber(subs, subscriberID)
		if len(remaining) == 0 {
			delete(b.subs, name)
		} else {
			b.subs[name] = remaining
		}
	}
}

func removeSubscriber(subs []*subscription, subscriberID string) []*subscription {
	remaining := subs[:0]
	for _, s := range subs {
		if s.subscriberID != subscriberID {
			remaining = append(remaining, s)
		}
	}
	return remaining
}

// WaitFor blocks until the next occurrence of the named event and returns it.
// If timeout is positive and elapses first, it returns a timeout error; if the
// context is cancelled first, it returns the context error. Exactly one
// outcome is reported.
func (b *Bus) WaitFor(ctx context.Context, name string, timeout time.Duration) (Event, error) {
	waiterID := fmt.Sprintf("waiter-%s-%d", name, time.Now().UnixNano())
	ch := make(chan Event, 1)
	b.Subscribe(waiterID, name, func(e Event) {
		select {
		case ch <- e:
		default: // already resolved by an earlier emission
		}
	})
	defer b.Unsubscribe(waiterID, name)

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case e := <-ch:
		return e, nil
	case <-timer:
		return Event{}, fmt.Errorf("timed out after %v waiting for event %q", timeout, name)
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// History returns a copy of the retained events for one name, oldest first.
// The log is capped (oldest-evicted); it is a diagnostic window, not storage.
func (b *Bus) History(name string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := make([]Event, len(b.history[name]))
	copy(entries, b.history[name])
	return entries
}

// AllHistory returns a copy of the retained events for every name.
func (b *Bus) AllHistory() map[string][]Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	all := make(map[string][]Event, len(b.history))
	for name, entries := range b.history {
		cp := make([]Event, len(entries))
		copy(cp, entries)
		all[name] = cp
	}
	return all
}

// SubscriberCount returns the number of handlers registered for a name.
func (b *Bus) SubscriberCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[name])
}
