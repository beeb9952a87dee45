package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"cgmanager/internal/api"
	"cgmanager/internal/ipc"
)

func newChannelsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "channels",
		Short: "Show the layer layout of every managed channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Channels()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Channels)
				}
				if len(resp.Channels) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No channels configured")
					return nil
				}
				printTable(cmd,
					[]string{"Channel", "Layer", "Group", "Effect", "Type", "Active"},
					channelRows(resp.Channels),
					[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignLeft, alignLeft})
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// channelRows lists every group bottom to top with its effects. Groups
// without effects still get a row so the stacking order stays visible.
func channelRows(channels []api.Channel) [][]string {
	var rows [][]string
	for _, ch := range channels {
		channel := strconv.Itoa(ch.ID)
		if ch.Pending {
			channel += "*"
		}
		for _, g := range ch.Groups {
			if len(g.Effects) == 0 {
				rows = append(rows, []string{channel, "", g.Name, "", "", ""})
				continue
			}
			for _, e := range g.Effects {
				rows = append(rows, []string{channel, formatLayers(e.Layers), g.Name, e.ID, e.Type, yesNo(e.Active)})
			}
		}
	}
	return rows
}

func formatLayers(layers []int) string {
	parts := make([]string, 0, len(layers))
	for _, l := range layers {
		if l == 0 {
			parts = append(parts, "-")
			continue
		}
		parts = append(parts, strconv.Itoa(l))
	}
	return strings.Join(parts, ",")
}
