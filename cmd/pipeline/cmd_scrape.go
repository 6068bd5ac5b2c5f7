package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"clinic_reviews/internal/adapters/apify"
	"clinic_reviews/internal/adapters/observability"
	"clinic_reviews/internal/app"
)

func newScrapeCmd() *cobra.Command {
	var seedPath string

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Pull reviews from both platforms into raw storage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := setup()
			if err != nil {
				return err
			}
			defer d.close()
			ctx := cmd.Context()

			if seedPath != "" {
				n, err := app.SeedEstablishments(ctx, d.repo, seedPath)
				if err != nil {
					return err
				}
				log.Info().Int("establishments", n).Str("roster", seedPath).Msg("roster seeded")
			}

			client, err := apify.New(d.cfg.ApifyBase, d.cfg.ApifyToken, 2)
			if err != nil {
				return err
			}
			sum, err := app.NewScraper(d.repo, client, d.cfg.Workers).Run(ctx, app.ScrapeOptions{
				EstablishmentIDs: targetIDs(d.score),
			})
			if err != nil {
				return err
			}
			observability.ObserveStage("scrape", "ok", sum.MapsReviews+sum.TrustpilotReviews)
			observability.ObserveStage("scrape", "failed", len(sum.Failures))
			return nil
		},
	}
	cmd.Flags().StringVar(&seedPath, "seed", "", "CSV roster to upsert establishments from before scraping")
	return cmd
}
