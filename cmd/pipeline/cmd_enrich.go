package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"clinic_reviews/internal/adapters/observability"
	"clinic_reviews/internal/adapters/oracle"
	"clinic_reviews/internal/app"
)

func newEnrichCmd() *cobra.Command {
	var attributes string

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Run pending unified reviews through the sentiment oracle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			group, err := app.ParseAttributeGroup(attributes)
			if err != nil {
				return err
			}
			d, err := setup()
			if err != nil {
				return err
			}
			defer d.close()

			client, err := oracle.New(d.cfg.OracleBase, d.cfg.OracleKey, d.cfg.OracleModel, 2)
			if err != nil {
				return err
			}
			enricher := app.NewEnricher(d.repo, client, d.cache, d.score, d.cfg.Workers, d.cfg.CacheTTLSec)
			sum, err := enricher.Run(cmd.Context(), app.EnrichOptions{
				EstablishmentIDs: targetIDs(d.score),
				Quick:            flagQuick,
				Force:            flagNoIncremental,
				Group:            group,
			})
			if err != nil {
				return err
			}
			if flagQuick {
				log.Info().Int("pending", sum.Pending).Msg("enrich pending")
				return nil
			}
			observability.ObserveStage("enrich", "ok", sum.Enriched)
			observability.ObserveStage("enrich", "skipped", sum.Skipped)
			observability.ObserveStage("enrich", "failed", sum.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&attributes, "attributes", "all", "oracle verdict group to refresh: all|sentiment|complaint|response")
	return cmd
}
