package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"clinic_reviews/internal/domain"
)

// QueryService serves the read side (stats command, ops endpoints) with a
// cache in front of the repository. Cache failures degrade to direct reads.
type QueryService struct {
	repo   domain.Repository
	cache  domain.Cache
	ttlSec int
}

func NewQueryService(repo domain.Repository, cache domain.Cache, cacheTTLSec int) *QueryService {
	return &QueryService{repo: repo, cache: cache, ttlSec: cacheTTLSec}
}

// Score returns the stored score record for one establishment.
func (q *QueryService) Score(ctx context.Context, establishmentID int64) (domain.EstablishmentScore, error) {
	key := fmt.Sprintf("score:%d", establishmentID)

	var s domain.EstablishmentScore
	if hit, err := q.cache.Get(ctx, key, &s); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	} else if hit {
		return s, nil
	}

	s, err := q.repo.GetScore(ctx, establishmentID)
	if err != nil {
		return domain.EstablishmentScore{}, err
	}
	if err := q.cache.Set(ctx, key, s, q.ttlSec); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return s, nil
}

// Stats bundles everything the stats command prints.
type Stats struct {
	Counts   map[string]int64     `json:"counts"`
	Averages domain.ScoreAverages `json:"averages"`
}

func (q *QueryService) Stats(ctx context.Context) (Stats, error) {
	const key = "stats:overview"

	var st Stats
	if hit, err := q.cache.Get(ctx, key, &st); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	} else if hit {
		return st, nil
	}

	counts, err := q.repo.CollectionCounts(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("collection counts: %w", err)
	}
	avgs, err := q.repo.AverageScores(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("average scores: %w", err)
	}
	st = Stats{Counts: counts, Averages: avgs}
	if err := q.cache.Set(ctx, key, st, q.ttlSec); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return st, nil
}
