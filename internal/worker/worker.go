// Package worker is the queue-draining side of sichter: a single sequential
// loop that claims the state tree via a PID lock, waits for queue changes,
// and runs each job through the processor. There is at most one live worker
// per state tree; a second instance exits cleanly.
package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/heimgewebe/sichter/internal/eventlog"
	"github.com/heimgewebe/sichter/internal/paths"
	"github.com/heimgewebe/sichter/internal/policy"
	"github.com/heimgewebe/sichter/internal/publish"
	"github.com/heimgewebe/sichter/internal/queue"
)

// Config holds worker configuration.
type Config struct {
	Paths     paths.Paths
	Publisher publish.Publisher
	Watcher   DirectoryWatcher
}

// Worker owns the main loop.
type Worker struct {
	cfg       Config
	paths     paths.Paths
	log       *eventlog.Log
	queue     *queue.Queue
	policy    *policy.Store
	processor *Processor
	watcher   DirectoryWatcher
}

// New creates a worker. Publisher defaults to the git/gh CLI, Watcher to
// fsnotify with a sleep fallback.
func New(cfg Config) (*Worker, error) {
	if err := cfg.Paths.Ensure(); err != nil {
		return nil, fmt.Errorf("ensure state tree: %w", err)
	}
	if cfg.Publisher == nil {
		cfg.Publisher = publish.NewCLI("")
	}
	if cfg.Watcher == nil {
		cfg.Watcher = FSWatcher{}
	}

	log := eventlog.New(cfg.Paths.Events)
	store := policy.NewStore(cfg.Paths.PolicyFile(), log)
	return &Worker{
		cfg:       cfg,
		paths:     cfg.Paths,
		log:       log,
		queue:     queue.New(cfg.Paths.Queue, log),
		policy:    store,
		processor: NewProcessor(log, store, cfg.Publisher),
		watcher:   cfg.Watcher,
	}, nil
}

// Run blocks until ctx is cancelled. ErrAlreadyRunning means another live
// worker holds the lock; callers treat it as a clean exit (code 0).
func (w *Worker) Run(ctx context.Context) error {
	logger, closeLog, err := newRunLogger(w.paths.Logs)
	if err != nil {
		return err
	}
	defer closeLog()
	w.processor.logger = logger

	pidFile := w.paths.PIDFile()
	if err := acquirePIDLock(pidFile); err != nil {
		logger.Printf("%v", err)
		return err
	}
	defer releasePIDLock(pidFile)

	logger.Printf("worker started (pid=%d)", os.Getpid())
	w.appendEvent(eventlog.Event{Type: "start", Message: fmt.Sprintf("worker started (pid=%d)", os.Getpid())})

	defer func() {
		logger.Printf("worker stopping")
		w.appendEvent(eventlog.Event{Type: "stop", Message: "worker stopped"})
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		files, err := w.queue.List()
		if err != nil {
			logger.Printf("queue scan: %v", err)
			if err := sleep(ctx, pollFallback); err != nil {
				return nil
			}
			continue
		}

		if len(files) == 0 {
			if err := w.watcher.WaitForChange(ctx, w.paths.Queue); err != nil {
				if ctx.Err() != nil {
					return nil
				}
			}
			continue
		}

		for _, path := range files {
			if ctx.Err() != nil {
				return nil
			}
			w.processFile(ctx, path)
		}
	}
}

// processFile runs one queue file through the processor. The file is
// unlinked regardless of outcome: a job file existing means the job is not
// terminal, and every disposition here is terminal.
func (w *Worker) processFile(ctx context.Context, path string) {
	defer w.queue.Remove(path)

	name := filepath.Base(path)
	job, err := queue.Read(path)
	if err != nil {
		w.processor.logger.Printf("job %s: %v", name, err)
		w.appendEvent(eventlog.Event{Type: "error", Message: fmt.Sprintf("job %s failed: %v", name, err)})
		return
	}

	if err := w.processor.Process(ctx, job); err != nil {
		w.processor.logger.Printf("job %s: %v", name, err)
		w.appendEvent(eventlog.Event{Type: "error", Message: fmt.Sprintf("job %s failed: %v", job.JobID, err)})
	}
}

func (w *Worker) appendEvent(ev eventlog.Event) {
	if err := w.log.Append(ev); err != nil {
		fmt.Fprintf(os.Stderr, "worker: event append failed: %v\n", err)
	}
}
