package httpapi

import (
	"sync"
)

// BusEvent is what WebSocket subscribers receive.
type BusEvent struct {
	Type   string `json:"type"`
	Player string `json:"player_id"`
	Data   any    `json:"data"`
}

// Bus fans processed events out to WebSocket subscribers. Publish
// never blocks; slow subscribers miss events.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan BusEvent]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[chan BusEvent]struct{})}
}

func (b *Bus) Subscribe() chan BusEvent {
	ch := make(chan BusEvent, 100)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Bus) Unsubscribe(ch chan BusEvent) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(evt BusEvent) {
	b.mu.RLock()
	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.RUnlock()
}
