package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"cgmanager/internal/api"
	"cgmanager/internal/ipc"
)

func newRoutesCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List and toggle stored routes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Routes()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Routes)
				}
				if len(resp.Routes) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No routes stored")
					return nil
				}
				printTable(cmd,
					[]string{"ID", "Name", "Source", "Destination", "Enabled", "Active"},
					routeRows(resp.Routes),
					nil)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	cmd.AddCommand(newRouteToggleCommand(ctx, "enable", true))
	cmd.AddCommand(newRouteToggleCommand(ctx, "disable", false))
	return cmd
}

func newRouteToggleCommand(ctx *commandContext, verb string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <route-id>",
		Short: fmt.Sprintf("%s a stored route", capitalize(verb)),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RouteToggle(args[0], enabled)
				if err != nil {
					return err
				}
				state := "inactive"
				if resp.Route.Active {
					state = "active"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Route %s %sd (%s)\n", resp.Route.ID, verb, state)
				return nil
			})
		},
	}
}

func routeRows(routes []api.Route) [][]string {
	rows := make([][]string, 0, len(routes))
	for _, r := range routes {
		source := strconv.Itoa(r.SourceChannel)
		if r.SourceLayer > 0 {
			source += "-" + strconv.Itoa(r.SourceLayer)
		}
		rows = append(rows, []string{
			r.ID,
			r.Name,
			source,
			fmt.Sprintf("%d/%s", r.DestChannel, r.DestGroup),
			yesNo(r.Enabled),
			yesNo(r.Active),
		})
	}
	return rows
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
