package worker

import (
	"context"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// hookTimeout bounds the optional post-run hook.
const hookTimeout = 30 * time.Second

// runPostHook executes hooks/post-run relative to the working directory
// when present. The hook is advisory: timeouts and failures are logged and
// swallowed, never surfaced to the job.
func runPostHook(logger *log.Logger) {
	hook := filepath.Join("hooks", "post-run")
	info, err := os.Stat(hook)
	if err != nil || info.IsDir() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, hook)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		logger.Printf("post-run hook: %v", err)
	}
}
