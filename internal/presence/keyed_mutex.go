package presence

import (
	"sync"

	"github.com/google/uuid"
)

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// keyedMutex hands out one mutex per key and forgets it once nobody holds or
// waits for it.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*keyedEntry
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[uuid.UUID]*keyedEntry)}
}

func (k *keyedMutex) Lock(key uuid.UUID) func() {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
