package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"clinic_reviews/internal/adapters/observability"
	redisad "clinic_reviews/internal/adapters/redis"
	"clinic_reviews/internal/domain"
	"clinic_reviews/internal/scoring"
	"clinic_reviews/internal/shared"
	mysqlrepo "clinic_reviews/internal/storage/mysql"
)

// flags shared by the stage subcommands
var (
	flagConfig         string
	flagEstablishments []int64
	flagQuick          bool
	flagNoIncremental  bool
	flagPublishedAfter string
)

// deps is everything a subcommand needs, wired once per invocation.
type deps struct {
	cfg   shared.Config
	score scoring.Config
	repo  domain.Repository
	cache domain.Cache
	ops   *observability.OpsServer
	db    *sql.DB
}

func (d *deps) close() {
	if d.ops != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.ops.Shutdown(ctx)
	}
	if d.db != nil {
		_ = d.db.Close()
	}
}

func setup() (*deps, error) {
	cfg := shared.Load()
	log.Logger = observability.NewLogger(cfg.AppEnv)

	if flagConfig == "" {
		flagConfig = cfg.ConfigPath
	}
	score, err := scoring.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagPublishedAfter != "" {
		score.PublishedAfter = flagPublishedAfter
		if err := score.Validate(); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}

	ops := observability.StartOps(cfg.OpsAddr, observability.MetricsHandler(observability.InitRegistry()))

	return &deps{
		cfg:   cfg,
		score: score,
		repo:  mysqlrepo.New(db),
		cache: redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB),
		ops:   ops,
		db:    db,
	}, nil
}

// targetIDs resolves the establishment filter: CLI flag first, then the
// config's target list, empty meaning all.
func targetIDs(score scoring.Config) []int64 {
	if len(flagEstablishments) > 0 {
		return flagEstablishments
	}
	return score.TargetEstablishments
}

func main() {
	root := &cobra.Command{
		Use:           "pipeline",
		Short:         "Clinic review pipeline: scrape, unify, enrich, score",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "scoring/pipeline config file (default from PIPELINE_CONFIG)")
	root.PersistentFlags().Int64SliceVar(&flagEstablishments, "establishments", nil, "restrict the run to these establishment ids")
	root.PersistentFlags().BoolVar(&flagQuick, "quick", false, "report pending work without processing")
	root.PersistentFlags().BoolVar(&flagNoIncremental, "no-incremental", false, "reprocess records the stage already handled")
	root.PersistentFlags().StringVar(&flagPublishedAfter, "published-after", "", "only consider reviews published after this RFC3339 time")

	root.AddCommand(newScrapeCmd(), newUnifyCmd(), newEnrichCmd(), newScoreCmd(), newStatsCmd())

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("pipeline failed")
		os.Exit(1)
	}
}
