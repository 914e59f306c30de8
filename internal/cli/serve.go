package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/heimgewebe/sichter/internal/paths"
	"github.com/heimgewebe/sichter/internal/server"
)

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8714", "HTTP listen address")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the control API",
	Long:  "Runs the sichter HTTP API: job submission, policy read/write, event tailing, and the live event stream. Gated by X-API-Key and a per-client rate limit.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	srv, err := server.New(server.Config{
		Addr:  serveAddr,
		Paths: paths.Resolve(),
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nshutting down API...")
		cancel()
	}()

	fmt.Fprintf(os.Stderr, "sichter API listening on %s\n", serveAddr)
	return srv.Start(ctx)
}
