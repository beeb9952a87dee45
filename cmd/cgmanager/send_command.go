package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cgmanager/internal/ipc"
)

func newSendCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "send <amcp command...>",
		Short: "Send a raw AMCP command to the engine",
		Example: "  cgmanager send VERSION\n" +
			"  cgmanager send 'PLAY 1-10 AMB LOOP'",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := strings.Join(args, " ")
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Send(command)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Responses)
				}
				out := cmd.OutOrStdout()
				failed := 0
				for _, r := range resp.Responses {
					status := strings.TrimSpace(strings.Join([]string{r.Command, r.Status}, " "))
					fmt.Fprintf(out, "%d %s\n", r.Code, status)
					for _, line := range r.Data {
						fmt.Fprintf(out, "  %s\n", line)
					}
					if r.Code >= 400 {
						failed++
					}
				}
				if failed > 0 {
					return fmt.Errorf("engine rejected %d of %d lines", failed, len(resp.Responses))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
