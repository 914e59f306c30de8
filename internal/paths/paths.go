// Package paths resolves the sichter state and config directory layout.
// State follows the XDG base directory convention: queue, events, and logs
// live under $XDG_STATE_HOME/sichter, the policy file under
// $XDG_CONFIG_HOME/sichter.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// dirPerm is the permission for sichter-managed directories.
const dirPerm = 0o750

// Paths holds the resolved directory layout.
type Paths struct {
	State  string // state root
	Queue  string // one job file per queued job
	Events string // daily-rotated JSONL event files
	Logs   string // free-form worker logs
	Config string // policy.yml lives here
}

// Resolve builds the layout from the environment.
// SICHTER_STATE_HOME overrides the state root entirely; otherwise
// XDG_STATE_HOME (default ~/.local/state) is used. Config always follows
// XDG_CONFIG_HOME (default ~/.config).
func Resolve() Paths {
	state := os.Getenv("SICHTER_STATE_HOME")
	if state == "" {
		base := os.Getenv("XDG_STATE_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				home = "."
			}
			base = filepath.Join(home, ".local", "state")
		}
		state = filepath.Join(base, "sichter")
	}

	config := os.Getenv("XDG_CONFIG_HOME")
	if config == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		config = filepath.Join(home, ".config")
	}

	return Paths{
		State:  state,
		Queue:  filepath.Join(state, "queue"),
		Events: filepath.Join(state, "events"),
		Logs:   filepath.Join(state, "logs"),
		Config: filepath.Join(config, "sichter"),
	}
}

// Ensure creates all required directories. Idempotent.
func (p Paths) Ensure() error {
	for _, dir := range []string{p.State, p.Queue, p.Events, p.Logs, p.Config} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// PIDFile returns the worker PID lock path.
func (p Paths) PIDFile() string {
	return filepath.Join(p.State, "worker.pid")
}

// PolicyFile returns the active policy path: the user copy if it exists,
// otherwise the repo-default config/policy.yml relative to the working
// directory.
func (p Paths) PolicyFile() string {
	user := filepath.Join(p.Config, "policy.yml")
	if _, err := os.Stat(user); err == nil {
		return user
	}
	if _, err := os.Stat(filepath.Join("config", "policy.yml")); err == nil {
		return filepath.Join("config", "policy.yml")
	}
	return user
}

// Ready reports which state directories are missing. An empty slice means
// the tree is complete.
func (p Paths) Ready() []string {
	var missing []string
	for _, dir := range []string{p.Queue, p.Events, p.Logs} {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			missing = append(missing, dir)
		}
	}
	return missing
}
