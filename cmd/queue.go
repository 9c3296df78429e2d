package cmd

import (
	"context"
	"fmt"

	"docmender/internal/adapter/outbound/natsqueue"

	"github.com/spf13/cobra"
)

// newQueueCmd creates and returns the queue command group.
func newQueueCmd() *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the correction queue",
	}

	queueCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show correction queue depth",
		Long: `Show how many correction jobs are visible, in flight, and delayed.

Connects to the configured NATS JetStream deployment and reads the
consumer state for the correction stream.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runQueueStats(cmd)
		},
	})

	return queueCmd
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newQueueCmd())
}

func runQueueStats(cmd *cobra.Command) error {
	ctx := context.Background()

	queue, err := natsqueue.NewJetStreamQueue(cfg.NATS, cfg.Queue)
	if err != nil {
		return err
	}
	if err := queue.Connect(ctx); err != nil {
		return err
	}
	defer func() { _ = queue.Disconnect() }()

	stats, err := queue.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read queue stats: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Stream:   %s\n", cfg.Queue.Stream)
	fmt.Fprintf(out, "Visible:  %d\n", stats.Visible)
	fmt.Fprintf(out, "InFlight: %d\n", stats.InFlight)
	fmt.Fprintf(out, "Delayed:  %d\n", stats.Delayed)
	return nil
}
