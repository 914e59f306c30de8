// Package systemd probes user-unit state for dashboards. The probe is a
// bounded subprocess call; any failure degrades to an empty result so the
// overview renders "unknown" instead of erroring.
package systemd

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"
)

// WorkerUnit is the sichter worker's user unit.
const WorkerUnit = "sichter-worker.service"

// showTimeout bounds the systemctl invocation.
const showTimeout = 3 * time.Second

// showProperties are the fields requested from systemctl show.
var showProperties = strings.Join([]string{
	"ActiveState",
	"SubState",
	"ExecMainStartTimestamp",
	"ActiveEnterTimestamp",
	"InactiveExitTimestamp",
	"MainPID",
}, ",")

// Show runs `systemctl --user show <unit>` with a hard timeout and parses
// the key=value output. Missing systemctl, timeouts, and non-zero exits all
// return an empty map.
func Show(ctx context.Context, unit string) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, showTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "systemctl", "--user", "show", unit, "--property", showProperties)
	cmd.Env = append(os.Environ(), "SYSTEMD_PAGER=")
	out, err := cmd.Output()
	if err != nil {
		return map[string]string{}
	}

	result := make(map[string]string)
	for _, line := range strings.Split(string(out), "\n") {
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		result[key] = value
	}
	return result
}

// WorkerState summarizes the worker unit for /overview.
type WorkerState struct {
	ActiveState string `json:"activeState"`
	SubState    string `json:"subState"`
	MainPID     string `json:"mainPID,omitempty"`
	Since       string `json:"since,omitempty"`
	LastExit    string `json:"lastExit,omitempty"`
}

// Worker probes the worker unit. systemd timestamps are human-readable
// strings; they pass through unparsed.
func Worker(ctx context.Context) WorkerState {
	props := Show(ctx, WorkerUnit)
	state := WorkerState{
		ActiveState: props["ActiveState"],
		SubState:    props["SubState"],
		MainPID:     props["MainPID"],
		LastExit:    props["InactiveExitTimestamp"],
	}
	if state.ActiveState == "" {
		state.ActiveState = "unknown"
	}
	if state.SubState == "" {
		state.SubState = "unknown"
	}
	if since := props["ActiveEnterTimestamp"]; since != "" {
		state.Since = since
	} else {
		state.Since = props["ExecMainStartTimestamp"]
	}
	return state
}
