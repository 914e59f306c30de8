package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/heimgewebe/sichter/internal/paths"
	"github.com/heimgewebe/sichter/internal/worker"
)

var (
	workerPoll     bool
	workerInterval time.Duration
)

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().BoolVar(&workerPoll, "poll", false, "poll the queue instead of using filesystem notification")
	workerCmd.Flags().DurationVar(&workerInterval, "poll-interval", 2*time.Second, "polling interval when --poll is set")
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the queue worker",
	Long:  "Drains the job queue sequentially. At most one worker runs per state tree; a second instance exits cleanly without touching the queue.",
	RunE:  runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg := worker.Config{Paths: paths.Resolve()}
	if workerPoll {
		cfg.Watcher = worker.PollWatcher{Interval: workerInterval}
	}

	w, err := worker.New(cfg)
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nshutting down worker...")
		cancel()
	}()

	if err := w.Run(ctx); err != nil {
		if errors.Is(err, worker.ErrAlreadyRunning) {
			// At-most-one semantics: the live worker wins, we leave quietly.
			return nil
		}
		return err
	}
	return nil
}
