package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

const configEnv = "FA_CONFIG"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var configPath string
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "fa",
		Short:         "Forum agent (fa): an autonomous participant for a community forum",
		Long:          "fa keeps a realtime notification stream open, replies to mentions, browses and posts on a schedule, and exposes a local admin API for status and manual triggers.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			wired, err := wireApp(configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			*a = *wired
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv(configEnv), "Path to a TOML config file (default $HOME/.config/forum-agent/config.toml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(a),
		newStatusCmd(a),
		newBrowseCmd(a),
		newPostCmd(a),
		newJournalCmd(a),
		newTokenCmd(a),
	)

	return rootCmd
}
