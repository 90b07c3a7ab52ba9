// Package events carries controller notifications to the registry and the UI.
package events

import (
	"sync"

	"chipchip/internal/models"
)

// Kind identifies what changed
type Kind int

const (
	// SessionChanged carries a snapshot of a session whose messages changed
	SessionChanged Kind = iota
	// SessionRemoved is emitted after a session was deleted
	SessionRemoved
	// SessionRenamed is emitted after a session name changed
	SessionRenamed
	// ActiveChanged is emitted when the visible transcript switches session
	ActiveChanged
	// StateChanged is emitted when the sending state toggles
	StateChanged
)

func (k Kind) String() string {
	switch k {
	case SessionChanged:
		return "session_changed"
	case SessionRemoved:
		return "session_removed"
	case SessionRenamed:
		return "session_renamed"
	case ActiveChanged:
		return "active_changed"
	case StateChanged:
		return "state_changed"
	default:
		return "unknown"
	}
}

// Event is a single notification
type Event struct {
	Kind      Kind
	SessionID string
	// Session is set for SessionChanged
	Session models.Session
	Loading bool
}

// Bus delivers events synchronously to subscribers in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscriber
}

type subscriber struct {
	id int
	fn func(Event)
}

// NewBus creates a bus with no subscribers
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn and returns a function that removes it
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscriber{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish calls every subscriber with e before returning
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	subs := append([]subscriber(nil), b.subs...)
	b.mu.RUnlock()

	for _, s := range subs {
		s.fn(e)
	}
}
