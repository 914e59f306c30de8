package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/heimgewebe/sichter/internal/eventlog"
	"github.com/heimgewebe/sichter/internal/paths"
	"github.com/heimgewebe/sichter/internal/policy"
	"github.com/heimgewebe/sichter/internal/queue"
)

var (
	sweepMode     string
	sweepRepo     string
	sweepOmnipull bool
)

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepMode, "mode", queue.ModeChanged, "job mode: all | changed | deep | light")
	sweepCmd.Flags().StringVar(&sweepRepo, "repo", "", "restrict the sweep to one org/name repository")
	sweepCmd.Flags().BoolVar(&sweepOmnipull, "on-omnipull", false, "sweep was triggered by omnipull; honor policy sweep_on_omnipull")
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Enqueue a sweep job locally",
	Long:  "Writes a sweep job straight into the queue directory, bypassing the API. Useful from cron and git hooks on the same host.",
	RunE:  runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	p := paths.Resolve()
	if err := p.Ensure(); err != nil {
		return fmt.Errorf("ensure state tree: %w", err)
	}

	log := eventlog.New(p.Events)

	if sweepOmnipull {
		values, err := policy.NewStore(p.PolicyFile(), log).Load()
		if err == nil && !values.SweepOnOmnipull() {
			fmt.Fprintln(os.Stderr, "sweep_on_omnipull disabled by policy, skipping")
			return nil
		}
	}

	q := queue.New(p.Queue, log)

	job := &queue.Job{
		Type: queue.TypeSweep,
		Mode: sweepMode,
		Repo: sweepRepo,
	}
	if sweepRepo != "" {
		job.Type = queue.TypeRepository
	}
	if err := q.Enqueue(job); err != nil {
		return fmt.Errorf("enqueue sweep: %w", err)
	}

	summary := map[string]any{
		"enqueued": job.JobID,
		"mode":     job.Mode,
		"queue":    q.Dir(),
	}
	if sweepRepo != "" {
		summary["repo"] = sweepRepo
	}
	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}
