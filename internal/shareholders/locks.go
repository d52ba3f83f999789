package shareholders

import (
	"sort"
	"sync"
)

// KeyedMutex serializes read-then-write sequences per shareholder id.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *KeyedMutex) get(id string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[id]
	if !ok {
		m = &sync.Mutex{}
		k.locks[id] = m
	}
	return m
}

// Lock acquires the locks for all ids in sorted order and returns the release
// function. Sorting keeps concurrent multi-id callers from deadlocking.
func (k *KeyedMutex) Lock(ids ...string) (unlock func()) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	held := make([]*sync.Mutex, 0, len(sorted))
	for i, id := range sorted {
		if i > 0 && sorted[i-1] == id {
			continue
		}
		m := k.get(id)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
