package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newBrowseCmd(a *app) *cobra.Command {
	var addr string
	var local bool

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Run one browse cycle now",
		Long:  "browse asks the running agent to read the latest threads and maybe reply to one. With --local the cycle runs in this process instead.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			run := func(ctx context.Context) error {
				if local {
					return a.browseLocal(ctx)
				}
				resp, err := a.adminClient(addr).TriggerBrowse(ctx, true)
				if err != nil {
					return err
				}
				if resp.Error != "" {
					return errors.New(resp.Error)
				}
				return nil
			}

			work := func(ctx context.Context) (string, error) {
				return "", run(ctx)
			}
			if err := runCycle(ctx, cmd.ErrOrStderr(), "browse", work); err != nil {
				return fmt.Errorf("browse: %w", err)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "browse cycle finished")
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Admin API address of the running agent (default admin.listen)")
	cmd.Flags().BoolVar(&local, "local", false, "Run the cycle in this process instead of the running agent")

	return cmd
}

func (a *app) browseLocal(ctx context.Context) error {
	rt := a.newAgent()
	defer a.stopAgent(rt)

	job, err := rt.supervisor.TriggerBrowse()
	if err != nil {
		return err
	}
	return job.Wait(ctx)
}
