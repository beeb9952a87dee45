package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"cgmanager/internal/api"
	"cgmanager/internal/eventstream"
	"cgmanager/internal/ipc"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var (
		asJSON  bool
		apiBind string
		channel int
		kinds   []string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow effect and reconcile events from the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			bind := strings.TrimSpace(apiBind)
			if bind == "" {
				err := ctx.withClient(func(client *ipc.Client) error {
					status, err := client.Status()
					if err != nil {
						return err
					}
					bind = status.APIBind
					return nil
				})
				if err != nil {
					return err
				}
			}
			stream, err := eventstream.NewClient(bind)
			if err != nil {
				return fmt.Errorf("event stream: %w (set paths.api_bind)", err)
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			seen := 0
			err = stream.Stream(runCtx, eventstream.Filter{Channel: channel, Kinds: kinds}, func(ev api.Event) bool {
				if asJSON {
					data, err := json.Marshal(ev)
					if err == nil {
						fmt.Fprintln(out, string(data))
					}
				} else {
					fmt.Fprintln(out, formatEvent(ev))
				}
				seen++
				return limit <= 0 || seen < limit
			})
			if err != nil && runCtx.Err() == nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print each event as a JSON line")
	cmd.Flags().StringVar(&apiBind, "api", "", "Daemon HTTP address (defaults to the bind the daemon reports)")
	cmd.Flags().IntVar(&channel, "channel", 0, "Only show events for this channel")
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "Only show these event kinds (repeatable)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Exit after this many events")
	return cmd
}

func formatEvent(ev api.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-20s ch=%d", ev.Time, ev.Kind, ev.Channel)
	if ev.EffectID != "" {
		fmt.Fprintf(&b, " effect=%s", ev.EffectID)
		if ev.Effect != "" {
			fmt.Fprintf(&b, " (%s)", ev.Effect)
		}
	}
	if ev.Group != "" {
		fmt.Fprintf(&b, " group=%s", ev.Group)
	}
	if len(ev.Layers) > 0 {
		fmt.Fprintf(&b, " layers=%s", formatLayers(ev.Layers))
	}
	if ev.Swaps > 0 || ev.Clears > 0 {
		fmt.Fprintf(&b, " swaps=%d clears=%d", ev.Swaps, ev.Clears)
	}
	return b.String()
}
