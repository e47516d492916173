package internal

import (
	"sync"
	"testing"
	"time"
)

func TestKeyedMutex(t *testing.T) {
	k := NewKeyedMutex[int64]()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock(1)
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Errorf("KeyedMutex allowed %d holders at once", maxSeen)
	}
	if len(k.locks) != 0 {
		t.Errorf("KeyedMutex leaked %d entries", len(k.locks))
	}
}

func TestKeyedMutex_DistinctKeysDoNotBlock(t *testing.T) {
	k := NewKeyedMutex[string]()
	unlockA := k.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := k.Lock("b")
		unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Lock(\"b\") blocked behind Lock(\"a\")")
	}
}
