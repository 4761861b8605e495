package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Salamek/netkeeper/internal/ipc"
	"github.com/Salamek/netkeeper/internal/recovery"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon state and the latest tick",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stdout := cmd.OutOrStdout()
			socket := ctx.socketPath()

			client, err := ipc.Dial(socket)
			if err != nil {
				// Status is a query, not a health check: a daemon that
				// is not running is an answer, not a failure.
				if daemonDown(err) {
					if jsonOut {
						return writeJSON(cmd, map[string]any{"running": false, "socket_path": socket})
					}
					fmt.Fprintln(stdout, "Daemon is not running")
					return nil
				}
				return wrapDialError(err, socket)
			}
			defer client.Close()

			resp, err := client.Status()
			if err != nil {
				return fmt.Errorf("query status: %w", err)
			}
			if jsonOut {
				return writeJSON(cmd, resp)
			}

			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout, daemonStateLine(resp, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Config", statusInfo, configDetail(resp), colorize))
			fmt.Fprintln(stdout, renderStatusLine("Socket", statusInfo, resp.SocketPath, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Journal", statusInfo, resp.JournalPath, colorize))
			fmt.Fprintln(stdout, linkWatchLine(resp.Link, colorize))
			for _, line := range dependencyLines(resp.Dependencies, colorize) {
				fmt.Fprintln(stdout, line)
			}

			fmt.Fprintln(stdout)
			for _, line := range renderSectionHeader("Last Tick", colorize) {
				fmt.Fprintln(stdout, line)
			}
			tick := resp.LatestTick
			if tick == nil {
				fmt.Fprintln(stdout, "No ticks completed yet")
				return nil
			}

			tickDetail := fmt.Sprintf("#%d at %s (took %s)",
				tick.Seq, tick.Start.Local().Format("2006-01-02 15:04:05"), formatDuration(tick.Elapsed))
			fmt.Fprintln(stdout, renderStatusLine("Tick", statusInfo, tickDetail, colorize))
			fmt.Fprintln(stdout, failureLine(tick, colorize))
			if tick.Recovered != nil {
				fmt.Fprintln(stdout, recoveryLine(tick.Recovered, colorize))
			}

			rows := make([][]string, 0, len(tick.Results))
			for _, result := range tick.Results {
				state := "OK"
				latency := "-"
				if result.OK {
					latency = formatDuration(result.Latency)
				} else {
					state = "FAIL"
				}
				rows = append(rows, []string{result.Target, state, strconv.Itoa(result.Attempts), latency, result.Err})
			}
			fmt.Fprintln(stdout, renderTable([]string{"Target", "State", "Attempts", "Latency", "Error"}, rows, 3, 4))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the raw status response as JSON")
	return cmd
}

func daemonStateLine(resp *ipc.StatusResponse, colorize bool) string {
	if !resp.Running {
		return renderStatusLine("Status", statusWarn, "Not running", colorize)
	}
	uptime := time.Duration(resp.UptimeSeconds) * time.Second
	return renderStatusLine("Status", statusOK, fmt.Sprintf("Running (pid %d, up %s)", resp.PID, formatDuration(uptime)), colorize)
}

func configDetail(resp *ipc.StatusResponse) string {
	detail := strings.TrimSpace(resp.ConfigPath)
	if detail == "" {
		detail = "built-in defaults"
	}
	if profile := strings.TrimSpace(resp.Profile); profile != "" {
		detail = fmt.Sprintf("%s (%s profile)", detail, humanizeLabel(profile))
	}
	return detail
}

func linkWatchLine(link ipc.LinkStatus, colorize bool) string {
	if strings.TrimSpace(link.Interface) == "" {
		return renderStatusLine("Link Watch", statusInfo, "Disabled", colorize)
	}
	if !link.Active {
		return renderStatusLine("Link Watch", statusWarn, fmt.Sprintf("%s (netlink unavailable)", link.Interface), colorize)
	}
	return renderStatusLine("Link Watch", statusOK, fmt.Sprintf("%s (%d events)", link.Interface, link.Events), colorize)
}

func dependencyLines(deps []ipc.DependencyStatus, colorize bool) []string {
	lines := make([]string, 0, len(deps))
	for _, dep := range deps {
		label := humanizeLabel(dep.Name)
		if dep.Available {
			message := "Ready"
			if dep.Command != "" {
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			lines = append(lines, renderStatusLine(label, statusOK, message, colorize))
			continue
		}
		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(label, kind, detail, colorize))
	}
	return lines
}

func failureLine(tick *ipc.TickOutcome, colorize bool) string {
	detail := fmt.Sprintf("%d%% of %d targets failing", tick.FailPct, len(tick.Results))
	if tick.Breached {
		return renderStatusLine("Failures", statusWarn, detail+" (threshold breached)", colorize)
	}
	if tick.FailPct > 0 {
		return renderStatusLine("Failures", statusInfo, detail, colorize)
	}
	return renderStatusLine("Failures", statusOK, detail, colorize)
}

func recoveryLine(report *recovery.Report, colorize bool) string {
	switch {
	case report.Succeeded():
		detail := fmt.Sprintf("Connectivity restored after %s", formatDuration(report.WaitElapsed))
		if report.RebootSkipped {
			detail += " (reboot skipped)"
		}
		return renderStatusLine("Recovery", statusOK, detail, colorize)
	case report.Err != "":
		return renderStatusLine("Recovery", statusError, report.Err, colorize)
	default:
		return renderStatusLine("Recovery", statusWarn, fmt.Sprintf("Connectivity still down after %s", formatDuration(report.WaitElapsed)), colorize)
	}
}
