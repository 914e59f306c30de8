package worker

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// newRunLogger creates the per-run log file logs/worker-<UTC ts>.log and a
// logger writing to both the file and stdout. The returned closer is
// best-effort.
func newRunLogger(dir string) (*log.Logger, func(), error) {
	name := fmt.Sprintf("worker-%s.log", time.Now().UTC().Format("20060102-150405"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, nil, fmt.Errorf("create worker log: %w", err)
	}
	logger := log.New(io.MultiWriter(os.Stdout, f), "", log.LstdFlags|log.LUTC)
	return logger, func() { _ = f.Close() }, nil
}
