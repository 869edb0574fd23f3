package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bnema/forum-agent/internal/adapters/admin"
	"github.com/bnema/forum-agent/internal/logging"
	"github.com/bnema/forum-agent/internal/version"
)

func newServeCmd(a *app) *cobra.Command {
	var listen string
	var noAdmin bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if listen == "" {
				listen = a.cfg.Admin.Listen
			}
			return a.serve(ctx, listen, !noAdmin)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Admin API listen address (default admin.listen)")
	cmd.Flags().BoolVar(&noAdmin, "no-admin", false, "Do not start the admin API")

	return cmd
}

func (a *app) serve(ctx context.Context, listen string, withAdmin bool) error {
	rt := a.newAgent()

	if err := rt.supervisor.Start(ctx); err != nil {
		return err
	}
	defer a.stopAgent(rt)

	a.logger.WithFields(logging.Fields{
		"version":  version.Version,
		"api_base": a.cfg.Forum.APIBase,
	}).Info("agent running")

	if !withAdmin {
		<-ctx.Done()
		return nil
	}

	gin.SetMode(gin.ReleaseMode)
	server := admin.NewServer(admin.Deps{
		Supervisor: rt.supervisor,
		Journal:    rt.journal,
		Metrics:    rt.metrics.Handler(),
		Middleware: []gin.HandlerFunc{rt.metrics.Middleware()},
		Logger:     a.logger,
		Version:    version.Version,
	})

	// The admin API failing to bind takes the whole agent down.
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.ListenAndServe(groupCtx, listen)
	})

	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("admin api: %w", err)
	}
	return nil
}
