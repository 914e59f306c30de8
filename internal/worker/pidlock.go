package worker

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// ErrAlreadyRunning signals that another live worker owns the state tree.
// Callers exit with code 0 and must not touch the queue or the PID file.
var ErrAlreadyRunning = errors.New("another worker is active")

// acquirePIDLock enforces at-most-one worker per state tree. An existing
// file naming a live process yields ErrAlreadyRunning; a stale or malformed
// file is replaced with the current PID.
func acquirePIDLock(path string) error {
	if data, err := os.ReadFile(path); err == nil {
		pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
		if err == nil && pid > 0 && processAlive(pid) {
			return fmt.Errorf("%w (pid=%d)", ErrAlreadyRunning, pid)
		}
		_ = os.Remove(path)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600)
}

// releasePIDLock removes the lock; called on every exit path.
func releasePIDLock(path string) {
	_ = os.Remove(path)
}

// processAlive probes a PID with signal 0. Permission errors mean the
// process exists under another user.
func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
