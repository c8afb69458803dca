package app

import (
	"context"
	"sync"
)

// keyedMutex 每個聊天室一把鎖, entries are dropped once nobody holds or waits on them
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

// Lock returns the matching unlock func
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// roomClock hands out strictly increasing creation times per room.
// Callers hold the room's keyedMutex.
type roomClock struct {
	mu   sync.Mutex
	last map[string]int64
	seed func(ctx context.Context, roomID string) (int64, error)
}

func newRoomClock(seed func(ctx context.Context, roomID string) (int64, error)) *roomClock {
	return &roomClock{last: make(map[string]int64), seed: seed}
}

// Next max(now, last+1)
func (c *roomClock) Next(ctx context.Context, roomID string, now int64) (int64, error) {
	c.mu.Lock()
	last, ok := c.last[roomID]
	c.mu.Unlock()

	if !ok && c.seed != nil {
		seeded, err := c.seed(ctx, roomID)
		if err != nil {
			return 0, err
		}
		last = seeded
	}

	next := now
	if next <= last {
		next = last + 1
	}

	c.mu.Lock()
	if cur := c.last[roomID]; cur >= next {
		next = cur + 1
	}
	c.last[roomID] = next
	c.mu.Unlock()
	return next, nil
}
