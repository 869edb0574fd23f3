package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newTokenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the forum token in the secret store",
	}

	cmd.AddCommand(newTokenSetCmd(a), newTokenClearCmd(a))
	return cmd
}

func newTokenSetCmd(a *app) *cobra.Command {
	var value string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store the forum token (from --value or the first line of stdin)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			token := strings.TrimSpace(value)
			if token == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read token from stdin: %w", err)
				}
				token = strings.TrimSpace(line)
			}
			if token == "" {
				return fmt.Errorf("token is empty")
			}

			if err := a.secretStore.Put(cmd.Context(), a.cfg.Forum.TokenRef, token); err != nil {
				return fmt.Errorf("store token: %w", err)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "token stored under %s\n", a.cfg.Forum.TokenRef)
			return err
		},
	}

	cmd.Flags().StringVar(&value, "value", "", "Token value; read from stdin when omitted")
	return cmd
}

func newTokenClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored forum token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.secretStore.Delete(cmd.Context(), a.cfg.Forum.TokenRef); err != nil {
				return fmt.Errorf("clear token: %w", err)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "token removed from %s\n", a.cfg.Forum.TokenRef)
			return err
		},
	}
}
