package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Salamek/netkeeper/internal/logs"
)

const followPollWait = 2 * time.Second

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the current run log",
		Long: "Show the current run log by reading the netkeeper.log pointer in the\n" +
			"log directory. Works whether or not the daemon is running.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logPath := cfg.CurrentLogPath()
			stdout := cmd.OutOrStdout()

			// --lines 0 means the whole file, so start reading at byte zero
			// instead of tailing from the end.
			opts := logs.TailOptions{Offset: -1, Limit: lines}
			if lines <= 0 {
				opts.Offset = 0
			}

			result, err := logs.Tail(cmd.Context(), logPath, opts)
			if err != nil {
				return fmt.Errorf("read log: %w", err)
			}
			printed := len(result.Lines)
			for _, line := range result.Lines {
				fmt.Fprintln(stdout, line)
			}
			if !follow {
				if printed == 0 {
					fmt.Fprintln(stdout, "No log entries available")
				}
				return nil
			}

			offset := result.Offset
			for {
				next, err := logs.Tail(cmd.Context(), logPath, logs.TailOptions{Offset: offset, Wait: followPollWait})
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return fmt.Errorf("follow log: %w", err)
				}
				for _, line := range next.Lines {
					fmt.Fprintln(stdout, line)
				}
				offset = next.Offset
			}
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 40, "Number of trailing lines to show (0 for the whole file)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	return cmd
}
