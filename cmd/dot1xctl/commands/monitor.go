package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// monitorCmd polls the introspection endpoint at a fixed interval and prints
// the snapshot whenever it changes. The daemon's control surface is a plain
// JSON endpoint rather than a generated streaming RPC, so polling stands in
// for a push-based event stream.
func monitorCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Poll supplicant session state until interrupted",
		Long:  "Polls the dot1x-authenticatord introspection endpoint and prints the snapshot whenever it changes, until interrupted (Ctrl+C).",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			var last string
			for {
				sessions, err := fetchSessions()
				if err != nil {
					return fmt.Errorf("fetch sessions: %w", err)
				}

				out, err := formatSessions(sessions, outputFormat)
				if err != nil {
					return fmt.Errorf("format sessions: %w", err)
				}

				if out != last {
					fmt.Print(out)
					last = out
				}

				select {
				case <-ctx.Done():
					if errors.Is(ctx.Err(), context.Canceled) {
						return nil
					}
					return ctx.Err()
				case <-ticker.C:
				}
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "poll interval")

	return cmd
}
