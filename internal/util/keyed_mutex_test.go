package util

import (
	"sync"
	"testing"
)

func TestKeyedMutexReleasesEntries(t *testing.T) {
	k := NewKeyedMutex()
	for i := 0; i < 100; i++ {
		unlock := k.Lock(GenerateRandomID("s_", 8))
		unlock()
	}
	if n := k.Len(); n != 0 {
		t.Errorf("entries after unlock = %d, want 0", n)
	}
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	k := NewKeyedMutex()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("owner")
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
	if n := k.Len(); n != 0 {
		t.Errorf("entries after contention = %d, want 0", n)
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	k := NewKeyedMutex()
	unlockA := k.Lock("a")
	done := make(chan struct{})
	go func() {
		unlock := k.Lock("b")
		unlock()
		close(done)
	}()
	<-done
	if n := k.Len(); n != 1 {
		t.Errorf("entries while a is held = %d, want 1", n)
	}
	unlockA()
}
