package service

import (
	"sort"
	"sync"
)

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// KeyLock provides mutual exclusion per string key. Keys are acquired in
// sorted order so callers holding overlapping key sets cannot deadlock.
type KeyLock struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

func NewKeyLock() *KeyLock {
	return &KeyLock{entries: make(map[string]*lockEntry)}
}

// Lock acquires every key and returns the matching release func. Idle keys
// are dropped from the table once their last holder releases.
func (l *KeyLock) Lock(keys ...string) (unlock func()) {
	uniq := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		uniq = append(uniq, k)
	}
	sort.Strings(uniq)

	held := make([]*lockEntry, 0, len(uniq))
	for _, k := range uniq {
		l.mu.Lock()
		e, ok := l.entries[k]
		if !ok {
			e = &lockEntry{}
			l.entries[k] = e
		}
		e.refs++
		l.mu.Unlock()

		e.mu.Lock()
		held = append(held, e)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
		}
		l.mu.Lock()
		for _, k := range uniq {
			if e, ok := l.entries[k]; ok {
				e.refs--
				if e.refs == 0 {
					delete(l.entries, k)
				}
			}
		}
		l.mu.Unlock()
	}
}
