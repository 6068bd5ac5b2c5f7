package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"clinic_reviews/internal/app"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print collection counts and average scores",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := setup()
			if err != nil {
				return err
			}
			defer d.close()

			st, err := app.NewQueryService(d.repo, d.cache, d.cfg.CacheTTLSec).Stats(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		},
	}
}
