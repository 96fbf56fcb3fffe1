package lock

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	m := NewKeyedMutex()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.With("sync_queue", func() {
				v := counter
				counter = v + 1
			})
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	m := NewKeyedMutex()

	m.Lock("a")
	done := make(chan struct{})
	go func() {
		m.Lock("b")
		m.Unlock("b")
		close(done)
	}()
	<-done
	m.Unlock("a")
}

func TestDirLocker_ExcludesOtherHolders(t *testing.T) {
	dir := t.TempDir()
	a, b := NewDirLocker(dir), NewDirLocker(dir)
	defer a.Close()
	defer b.Close()

	var errs []error
	a.OnError = func(_ string, err error) { errs = append(errs, err) }

	a.Lock("sync_queue")
	acquired := make(chan struct{})
	go func() {
		b.Lock("sync_queue")
		close(acquired)
		b.Unlock("sync_queue")
	}()

	select {
	case <-acquired:
		t.Fatal("second locker acquired a held key")
	case <-time.After(50 * time.Millisecond):
	}

	a.Unlock("sync_queue")
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second locker never acquired the released key")
	}
	if len(errs) != 0 {
		t.Errorf("OnError called: %v", errs)
	}

	if _, err := os.Stat(filepath.Join(dir, "sync_queue.lock")); err != nil {
		t.Errorf("lock file missing: %v", err)
	}
}

func TestDirLocker_IndependentKeys(t *testing.T) {
	dir := t.TempDir()
	a, b := NewDirLocker(dir), NewDirLocker(dir)
	defer a.Close()
	defer b.Close()

	a.Lock("sync_queue")
	done := make(chan struct{})
	go func() {
		b.Lock("meal_entries")
		b.Unlock("meal_entries")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("unrelated key blocked")
	}
	a.Unlock("sync_queue")
}

func TestDirLocker_ReportsUnusableDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	l := NewDirLocker(file)

	var got error
	l.OnError = func(_ string, err error) { got = err }
	l.Lock("k")
	l.Unlock("k")

	if got == nil {
		t.Fatal("OnError not called for a lock dir that is a file")
	}
}
