package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ideaflow/api/internal/app"
	"ideaflow/api/internal/config"
	"ideaflow/api/internal/logging"
	"ideaflow/api/internal/rbac"
	"ideaflow/api/internal/store"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest-merges",
	Short: "Print likely duplicate pairs among pending ideas",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		db, st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
		service := app.New(cfg, st, app.Dependencies{Users: st, Logger: logger})
		operator := app.Actor{ID: "cli", Name: "cli", Role: rbac.RoleAdmin}

		pending, err := st.ListIdeas(ctx, store.IdeaFilter{Statuses: []string{store.StatusPending}})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "IDEA\tCANDIDATE\tSCORE\tTITLE")
		for _, idea := range pending {
			matches, err := service.SuggestMerges(ctx, operator, idea.ID)
			if err != nil {
				return fmt.Errorf("suggest merges for %s: %w", idea.ID, err)
			}
			for _, m := range matches {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", idea.ID, m.ID, m.Score, m.Title)
			}
		}
		return w.Flush()
	},
}
