// Package events holds the in-process publish/subscribe primitives shared by
// presence, conversations and notifications, and the crew event envelope that
// travels over the broker.
package events

import (
	"sync"
	"sync/atomic"
)

// CancelFunc removes a subscription. Calling it more than once is a no-op.
type CancelFunc func()

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// Hub fans values out to callbacks registered per key.
// Callbacks run on the publisher's goroutine, outside the hub lock.
type Hub[T any] struct {
	mu     sync.RWMutex
	subs   map[string][]subscriber[T]
	nextID atomic.Uint64
}

func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: map[string][]subscriber[T]{}}
}

func (h *Hub[T]) Subscribe(key string, fn func(T)) CancelFunc {
	id := h.nextID.Add(1)
	h.mu.Lock()
	h.subs[key] = append(h.subs[key], subscriber[T]{id: id, fn: fn})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(key, id) })
	}
}

func (h *Hub[T]) remove(key string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.subs[key]
	for i, s := range list {
		if s.id == id {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(h.subs, key)
		return
	}
	h.subs[key] = list
}

// Publish delivers v to every subscriber of key and returns how many were called.
func (h *Hub[T]) Publish(key string, v T) int {
	h.mu.RLock()
	list := make([]subscriber[T], len(h.subs[key]))
	copy(list, h.subs[key])
	h.mu.RUnlock()

	for _, s := range list {
		s.fn(v)
	}
	return len(list)
}

func (h *Hub[T]) Subscribers(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[key])
}
