package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Salamek/netkeeper/internal/ipc"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent ticks and incidents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.History(limit)
				if err != nil {
					return fmt.Errorf("query history: %w", err)
				}
				if jsonOut {
					return writeJSON(cmd, resp)
				}

				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)

				for _, line := range renderSectionHeader("Ticks", colorize) {
					fmt.Fprintln(stdout, line)
				}
				if len(resp.Ticks) == 0 {
					fmt.Fprintln(stdout, "No ticks recorded")
				} else {
					rows := make([][]string, 0, len(resp.Ticks))
					for _, tick := range resp.Ticks {
						rows = append(rows, []string{
							strconv.FormatUint(tick.Seq, 10),
							tick.StartedAt.Local().Format("2006-01-02 15:04:05"),
							strconv.Itoa(tick.FailPct),
							yesNo(tick.Breached),
							formatDuration(time.Duration(tick.ElapsedMS) * time.Millisecond),
						})
					}
					fmt.Fprintln(stdout, renderTable([]string{"Seq", "Time", "Fail %", "Breached", "Elapsed"}, rows, 1, 3, 5))
				}

				fmt.Fprintln(stdout)
				for _, line := range renderSectionHeader("Incidents", colorize) {
					fmt.Fprintln(stdout, line)
				}
				if len(resp.Incidents) == 0 {
					fmt.Fprintln(stdout, "No incidents recorded")
					return nil
				}
				rows := make([][]string, 0, len(resp.Incidents))
				for _, inc := range resp.Incidents {
					rows = append(rows, []string{
						shortIncidentID(inc.ID),
						strconv.FormatUint(inc.TickSeq, 10),
						inc.CreatedAt.Local().Format("2006-01-02 15:04:05"),
						humanizeLabel(rebootLabel(inc)),
						yesNo(inc.ModemAlive),
						formatDuration(time.Duration(inc.WaitElapsedMS) * time.Millisecond),
						servicesCell(inc.Services),
					})
				}
				fmt.Fprintln(stdout, renderTable([]string{"Incident", "Tick", "Time", "Reboot", "Restored", "Wait", "Services"}, rows, 2, 6))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum rows per table")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the raw history response as JSON")
	return cmd
}

func shortIncidentID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func rebootLabel(inc ipc.IncidentSummary) string {
	switch {
	case inc.RebootSkipped:
		return "skipped"
	case inc.RebootRequested:
		return "requested"
	default:
		return "failed"
	}
}

func servicesCell(services []ipc.ServiceRestart) string {
	if len(services) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(services))
	for _, svc := range services {
		if svc.OK {
			parts = append(parts, svc.Name)
		} else {
			parts = append(parts, svc.Name+" (failed)")
		}
	}
	return strings.Join(parts, ", ")
}
