package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	statusadapter "github.com/bnema/forum-agent/internal/adapters/render/status"
)

const quietAfter = 30 * time.Minute

func newStatusCmd(a *app) *cobra.Command {
	var addr string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show diagnostics of the running agent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			diag, err := a.adminClient(addr).Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetch status: %w", err)
			}

			if jsonOutput {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(diag)
			}

			output, err := a.statusRenderer(diag, statusadapter.RenderOptions{
				Now:        a.now(),
				QuietAfter: quietAfter,
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), output)
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Admin API address of the running agent (default admin.listen)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the raw diagnostics as JSON")

	return cmd
}
