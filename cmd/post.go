package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	statusadapter "github.com/bnema/forum-agent/internal/adapters/render/status"
	"github.com/bnema/forum-agent/internal/domain"
)

func newPostCmd(a *app) *cobra.Command {
	var addr string
	var local bool
	var force bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Run one proactive post cycle now",
		Long:  "post asks the running agent to draft and maybe publish a new thread. --force skips the enabled flag and the probability roll; rate limits and dedup still apply.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			var result domain.PostResult
			run := func(ctx context.Context) error {
				var err error
				if local {
					result, err = a.postLocal(ctx, force)
					return err
				}
				result, err = a.postRemote(ctx, addr, force)
				return err
			}

			var err error
			if jsonOutput {
				err = run(ctx)
			} else {
				err = runCycle(ctx, cmd.ErrOrStderr(), "post", func(ctx context.Context) (string, error) {
					err := run(ctx)
					return string(result.Status), err
				})
			}
			if err != nil && result.Status == "" {
				return fmt.Errorf("post: %w", err)
			}

			if jsonOutput {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				if encErr := encoder.Encode(result); encErr != nil {
					return encErr
				}
			} else if _, printErr := fmt.Fprintln(cmd.OutOrStdout(), statusadapter.RenderPostResult(result)); printErr != nil {
				return printErr
			}
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Admin API address of the running agent (default admin.listen)")
	cmd.Flags().BoolVar(&local, "local", false, "Run the cycle in this process instead of the running agent")
	cmd.Flags().BoolVar(&force, "force", false, "Bypass the enabled flag and the probability gate")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")

	return cmd
}

func (a *app) postRemote(ctx context.Context, addr string, force bool) (domain.PostResult, error) {
	resp, err := a.adminClient(addr).TriggerPost(ctx, force, true)
	if err != nil {
		return domain.PostResult{}, err
	}
	if resp.Result != nil {
		if resp.Error != "" {
			return *resp.Result, errors.New(resp.Error)
		}
		return *resp.Result, nil
	}
	if resp.Error != "" {
		return domain.Failed(resp.Error), errors.New(resp.Error)
	}
	return domain.PostResult{}, fmt.Errorf("job %s returned no result", resp.JobID)
}

func (a *app) postLocal(ctx context.Context, force bool) (domain.PostResult, error) {
	rt := a.newAgent()
	defer a.stopAgent(rt)

	job, err := rt.supervisor.TriggerPost(force)
	if err != nil {
		return domain.PostResult{}, err
	}
	return job.Wait(ctx)
}
