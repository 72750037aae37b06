package services

import (
	"sync"

	"github.com/lookout/backend/internal/domain"
)

// EventBus fans monitor events out to in-process subscribers (the
// websocket stream). Publishing never blocks: a subscriber that falls
// behind loses events rather than stalling the coordinator.
type EventBus struct {
	mu     sync.Mutex
	subs   map[int]chan domain.MonitorEvent
	nextID int
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]chan domain.MonitorEvent)}
}

func (b *EventBus) Subscribe() (int, <-chan domain.MonitorEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan domain.MonitorEvent, 32)
	b.subs[id] = ch
	return id, ch
}

func (b *EventBus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		close(ch)
		delete(b.subs, id)
	}
}

func (b *EventBus) Publish(event domain.MonitorEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
