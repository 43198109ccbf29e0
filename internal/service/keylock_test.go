package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeyLockMutualExclusion(t *testing.T) {
	l := NewKeyLock()
	var active, maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("e:doc@hillvalley.edu")
			defer unlock()
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, 1, maxActive)
}

func TestKeyLockDistinctKeysDoNotBlock(t *testing.T) {
	l := NewKeyLock()
	unlockA := l.Lock("e:a")

	done := make(chan struct{})
	go func() {
		unlockB := l.Lock("e:b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("independent key blocked")
	}
	unlockA()
}

func TestKeyLockOverlappingSetsNoDeadlock(t *testing.T) {
	l := NewKeyLock()
	var wg sync.WaitGroup
	// opposite declaration order; sorted acquisition prevents deadlock
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock := l.Lock("e:x", "p:y")
			unlock()
		}()
		go func() {
			defer wg.Done()
			unlock := l.Lock("p:y", "e:x")
			unlock()
		}()
	}
	doneCh := make(chan struct{})
	go func() { wg.Wait(); close(doneCh) }()
	select {
	case <-doneCh:
	case <-time.After(5 * time.Second):
		t.Fatal("deadlock between overlapping key sets")
	}
}

func TestKeyLockReleasesIdleEntries(t *testing.T) {
	l := NewKeyLock()
	unlock := l.Lock("e:a", "p:b")
	unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	require.Empty(t, l.entries)
}

func TestKeyLockDuplicateKeys(t *testing.T) {
	l := NewKeyLock()
	// a probe with equal email and phone keys must not self-deadlock
	unlock := l.Lock("e:a", "e:a")
	unlock()
}
