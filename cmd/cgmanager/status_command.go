package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"cgmanager/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and engine status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, status)
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderStatus(status, colorize) {
					fmt.Fprintln(out, line)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderStatus(status *ipc.StatusResponse, colorize bool) []string {
	lines := renderSectionHeader("Daemon", colorize)
	lines = append(lines,
		renderStatusLine("Running", statusOK, "pid "+strconv.Itoa(status.PID), colorize),
		renderStatusLine("Started", statusInfo, status.StartedAt, colorize),
		renderStatusLine("Database", statusInfo, status.DatabasePath, colorize),
		renderStatusLine("Socket", statusInfo, status.SocketPath, colorize),
	)
	if status.APIBind != "" {
		lines = append(lines, renderStatusLine("API", statusInfo, status.APIBind, colorize))
	} else {
		lines = append(lines, renderStatusLine("API", statusWarn, "disabled", colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Engine", colorize)...)
	if status.Engine.Connected {
		lines = append(lines, renderStatusLine("Connection", statusOK, status.Engine.Address, colorize))
	} else {
		lines = append(lines, renderStatusLine("Connection", statusError, "not connected to "+status.Engine.Address, colorize))
	}
	lines = append(lines,
		renderStatusLine("Channels", statusInfo, strconv.Itoa(status.Channels), colorize),
		renderStatusLine("Effects", statusInfo, strconv.Itoa(status.Effects), colorize),
		renderStatusLine("Routes", statusInfo, strconv.Itoa(status.Routes), colorize),
	)

	mediaKind := statusInfo
	mediaMsg := fmt.Sprintf("%d items", status.Media.Count)
	if status.Media.LastRefresh != "" {
		mediaMsg += ", refreshed " + status.Media.LastRefresh
	} else {
		mediaKind = statusWarn
		mediaMsg += ", never refreshed"
	}
	lines = append(lines, renderStatusLine("Media", mediaKind, mediaMsg, colorize))
	return lines
}
