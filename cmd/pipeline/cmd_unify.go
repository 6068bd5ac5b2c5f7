package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"clinic_reviews/internal/adapters/observability"
	"clinic_reviews/internal/app"
)

func newUnifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unify",
		Short: "Derive canonical reviews from pending raw reviews",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := setup()
			if err != nil {
				return err
			}
			defer d.close()

			sum, err := app.NewUnifier(d.repo, d.score).Run(cmd.Context(), app.UnifyOptions{
				EstablishmentIDs: targetIDs(d.score),
				Quick:            flagQuick,
				Force:            flagNoIncremental,
			})
			if err != nil {
				return err
			}
			if flagQuick {
				log.Info().Int("pending", sum.Pending).Msg("unify pending")
				return nil
			}
			observability.ObserveStage("unify", "ok", sum.Written)
			return nil
		},
	}
}
