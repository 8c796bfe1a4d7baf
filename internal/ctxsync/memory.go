package ctxsync

import (
	"context"
	"sync"
)

const memoryBuffer = 64

// MemoryBus is an in-process Transport. A subscriber that falls behind
// by more than its buffer loses messages.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[int]chan Message
	next int
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[int]chan Message)}
}

func (b *MemoryBus) Publish(ctx context.Context, msg Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, handler func(Message)) error {
	ch := make(chan Message, memoryBuffer)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()

	for {
		select {
		case msg := <-ch:
			handler(msg)
		case <-ctx.Done():
			return nil
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (b *MemoryBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
