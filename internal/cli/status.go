package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/aquasecurity/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/heimgewebe/sichter/internal/eventlog"
	"github.com/heimgewebe/sichter/internal/paths"
	"github.com/heimgewebe/sichter/internal/queue"
	"github.com/heimgewebe/sichter/internal/systemd"
)

var statusEvents int

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().IntVar(&statusEvents, "events", 10, "number of recent events to show")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show worker, queue, and recent events",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	p := paths.Resolve()

	ws := systemd.Worker(cmd.Context())
	fmt.Fprintf(os.Stdout, "worker: %s/%s", ws.ActiveState, ws.SubState)
	if ws.MainPID != "" && ws.MainPID != "0" {
		fmt.Fprintf(os.Stdout, " (pid %s)", ws.MainPID)
	}
	fmt.Fprintln(os.Stdout)

	snap := queue.New(p.Queue, nil).Snapshot(10)
	fmt.Fprintf(os.Stdout, "queue: %d pending\n\n", snap.Size)
	if len(snap.Items) > 0 {
		t := table.New(os.Stdout)
		t.SetHeaders("JOB", "TYPE", "MODE", "REPO", "AGE")
		for _, item := range snap.Items {
			age := ""
			if ts, err := time.Parse(time.RFC3339, item.EnqueuedAt); err == nil {
				age = humanize.Time(ts)
			}
			t.AddRow(item.ID, item.Type, item.Mode, item.Repo, age)
		}
		t.Render()
		fmt.Fprintln(os.Stdout)
	}

	records := eventlog.New(p.Events).Tail(statusEvents, 0)
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no events")
		return nil
	}
	t := table.New(os.Stdout)
	t.SetHeaders("WHEN", "TYPE", "DETAIL")
	for _, rec := range records {
		when := rec.TS
		if ts, err := time.Parse(time.RFC3339, rec.TS); err == nil {
			when = humanize.Time(ts)
		}
		t.AddRow(when, rec.Type, eventDetail(rec))
	}
	t.Render()
	return nil
}

// eventDetail picks the most telling field of an event for the table.
func eventDetail(rec eventlog.Record) string {
	for _, key := range []string{"repo", "message", "job_id", "detail", "url"} {
		if v, ok := rec.Payload[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
