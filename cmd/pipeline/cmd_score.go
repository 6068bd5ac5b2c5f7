package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"clinic_reviews/internal/adapters/observability"
	"clinic_reviews/internal/scoring"
)

func newScoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score",
		Short: "Recompute establishment scores from the enriched corpus",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := setup()
			if err != nil {
				return err
			}
			defer d.close()

			runner := scoring.NewRunner(d.repo, d.cache, d.score, d.cfg.Workers)
			sum, err := runner.Run(cmd.Context(), scoring.RunOptions{
				EstablishmentIDs: flagEstablishments,
				Quick:            flagQuick,
			})
			if err != nil {
				observability.ObserveScoringRun("aborted")
				return err
			}
			if flagQuick {
				log.Info().Int("pending", sum.Pending).Msg("score pending")
				return nil
			}
			observability.ObserveScoringRun("completed")
			observability.ObserveStage("score", "ok", sum.Updated)
			observability.ObserveStage("score", "failed", len(sum.Failures))
			// partial failures are reported in the run summary, exit stays 0
			return nil
		},
	}
}
