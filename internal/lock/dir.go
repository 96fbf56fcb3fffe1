package lock

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

// Locker serializes access to a named resource.
type Locker interface {
	Lock(key string)
	Unlock(key string)
}

// DirLocker is a KeyedMutex that also holds flock(2) on dir/<key>.lock,
// so separate processes sharing a store serialize on the same keys.
type DirLocker struct {
	dir   string
	local *KeyedMutex

	mu    sync.Mutex
	files map[string]*os.File

	// OnError is called when the file lock cannot be taken. The key is
	// then only held within this process.
	OnError func(key string, err error)
}

func NewDirLocker(dir string) *DirLocker {
	return &DirLocker{
		dir:   dir,
		local: NewKeyedMutex(),
		files: make(map[string]*os.File),
	}
}

func (l *DirLocker) Lock(key string) {
	l.local.Lock(key)

	f, err := l.file(key)
	if err == nil {
		err = flock(f, syscall.LOCK_EX)
	}
	if err != nil && l.OnError != nil {
		l.OnError(key, err)
	}
}

func (l *DirLocker) Unlock(key string) {
	l.mu.Lock()
	f := l.files[key]
	l.mu.Unlock()

	if f != nil {
		_ = flock(f, syscall.LOCK_UN)
	}
	l.local.Unlock(key)
}

// Close releases the lock files. Keys must not be held.
func (l *DirLocker) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for key, f := range l.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(l.files, key)
	}
	return errors.Join(errs...)
}

func (l *DirLocker) file(key string) (*os.File, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if f, ok := l.files[key]; ok {
		return f, nil
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(l.dir, url.PathEscape(key)+".lock"), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	l.files[key] = f
	return f, nil
}

func flock(f *os.File, how int) error {
	for {
		err := syscall.Flock(int(f.Fd()), how)
		if !errors.Is(err, syscall.EINTR) {
			return err
		}
	}
}
