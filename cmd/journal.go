package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bnema/forum-agent/internal/adapters/admin"
	statusadapter "github.com/bnema/forum-agent/internal/adapters/render/status"
	"github.com/bnema/forum-agent/internal/domain"
)

func newJournalCmd(a *app) *cobra.Command {
	var limit int
	var kind string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent journal entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 1 || limit > 500 {
				return fmt.Errorf("--limit must be between 1 and 500")
			}

			entries, err := a.journal.Recent(cmd.Context(), domain.JournalKind(strings.TrimSpace(kind)), limit)
			if err != nil {
				return fmt.Errorf("read journal: %w", err)
			}

			if jsonOutput {
				out := make([]admin.JournalEntry, 0, len(entries))
				for _, entry := range entries {
					out = append(out, admin.NewJournalEntry(entry))
				}
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(out)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), statusadapter.RenderJournal(entries, a.now()))
			return err
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of entries to show (1-500)")
	cmd.Flags().StringVar(&kind, "type", "", "Only show entries of this kind (mentioned, replied, auto_reply, browsed, created, ...)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print entries as JSON, newest first")

	return cmd
}
