package netmon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nutriai/mealsync/internal/ports"
)

// DefaultDebounceDelay coalesces bursts of file events.
const DefaultDebounceDelay = 100 * time.Millisecond

// FlagFile reports online while a flag file exists. Touching the file
// brings the device online and removing it takes it offline, which lets
// scripts and tests simulate connectivity.
type FlagFile struct {
	notifier
	path     string
	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

func NewFlagFile(path string, debounce time.Duration, logger ports.Logger) *FlagFile {
	if debounce <= 0 {
		debounce = DefaultDebounceDelay
	}
	return &FlagFile{
		notifier: newNotifier(fileExists(path), "flagfile", logger),
		path:     path,
		debounce: debounce,
	}
}

// Run watches the flag file's directory until ctx is done.
func (f *FlagFile) Run(ctx context.Context) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}

	// The file may have changed between construction and Add.
	f.set(fileExists(f.path))

	name := filepath.Base(f.path)
	for {
		select {
		case <-ctx.Done():
			f.stopTimer()
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) == 0 {
				continue
			}
			f.schedule()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("flag file watcher error", ports.Err(err))
		}
	}
}

func (f *FlagFile) schedule() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(f.debounce, func() {
		f.set(fileExists(f.path))
	})
}

func (f *FlagFile) stopTimer() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.timer != nil {
		f.timer.Stop()
	}
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
