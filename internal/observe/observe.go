// Package observe is a small publish/subscribe helper used by the stateful
// services so screens and the CLI can follow state changes.
package observe

import "sync"

type Broadcaster[T any] struct {
	lock sync.RWMutex
	next int
	subs map[int]func(T)
}

// Subscribe registers fn and returns a function that removes it again.
func (b *Broadcaster[T]) Subscribe(fn func(T)) func() {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.subs == nil {
		b.subs = make(map[int]func(T))
	}
	id := b.next
	b.next++
	b.subs[id] = fn

	return func() {
		b.lock.Lock()
		defer b.lock.Unlock()
		delete(b.subs, id)
	}
}

// Publish calls every subscriber with v. Subscribers run outside the lock so
// they may subscribe or unsubscribe from inside the callback.
func (b *Broadcaster[T]) Publish(v T) {
	b.lock.RLock()
	subs := make([]func(T), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.lock.RUnlock()

	for _, fn := range subs {
		fn(v)
	}
}
