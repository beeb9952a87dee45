package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"cgmanager/internal/api"
	"cgmanager/internal/ipc"
)

func newMediaCommand(ctx *commandContext) *cobra.Command {
	var (
		asJSON    bool
		refresh   bool
		mediaType string
		prefix    string
	)

	cmd := &cobra.Command{
		Use:   "media",
		Short: "List the media catalogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				if refresh {
					result, err := client.RefreshMedia()
					if err != nil {
						return err
					}
					if !asJSON {
						fmt.Fprintf(out, "Refreshed: %d items, %d removed, %d unparsable\n", result.Items, result.Removed, result.Skipped)
					}
				}
				resp, err := client.Media(ipc.MediaRequest{Type: mediaType, Prefix: prefix})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Items)
				}
				if len(resp.Items) == 0 {
					fmt.Fprintln(out, "No media found")
					return nil
				}
				printTable(cmd,
					[]string{"ID", "Type", "Size", "Frames", "FPS", "Duration"},
					mediaRows(resp.Items),
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight})
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Rescan the engine's media listing first")
	cmd.Flags().StringVar(&mediaType, "type", "", "Only list media of this type (movie, still, audio)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Only list media whose id starts with this prefix")
	return cmd
}

func mediaRows(items []api.MediaItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		fps := ""
		if item.FrameRate > 0 {
			fps = strconv.FormatFloat(item.FrameRate, 'f', 2, 64)
		}
		duration := ""
		if item.DurationMS > 0 {
			duration = (time.Duration(item.DurationMS) * time.Millisecond).Round(10 * time.Millisecond).String()
		}
		rows = append(rows, []string{
			item.ID,
			item.Type,
			humanize.Bytes(uint64(max(item.Size, 0))),
			strconv.FormatInt(item.Frames, 10),
			fps,
			duration,
		})
	}
	return rows
}
