package worker

import (
	"context"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// pollFallback is the sleep used when filesystem notification is
// unavailable or fails mid-wait.
const pollFallback = 2 * time.Second

// DirectoryWatcher blocks until something changes in a directory. The
// fsnotify implementation closes the start-then-recheck race; the polling
// fallback simply sleeps.
type DirectoryWatcher interface {
	WaitForChange(ctx context.Context, dir string) error
}

// FSWatcher waits on fsnotify events, degrading to a sleep on any notifier
// error.
type FSWatcher struct{}

// WaitForChange starts the watch, re-checks the directory to close the race
// between the empty scan and the watch registration, then blocks until an
// event arrives or ctx ends.
func (FSWatcher) WaitForChange(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return sleep(ctx, pollFallback)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return sleep(ctx, pollFallback)
	}

	// A file may have appeared before the watch was established.
	if entries, err := os.ReadDir(dir); err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				return nil
			}
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case _, ok := <-watcher.Events:
		if !ok {
			return sleep(ctx, pollFallback)
		}
		return nil
	case <-watcher.Errors:
		return sleep(ctx, pollFallback)
	}
}

// PollWatcher is the documented fallback: a fixed sleep per wait.
type PollWatcher struct {
	Interval time.Duration
}

func (p PollWatcher) WaitForChange(ctx context.Context, _ string) error {
	interval := p.Interval
	if interval <= 0 {
		interval = pollFallback
	}
	return sleep(ctx, interval)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
