package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"clinic_reviews/internal/domain"
	"clinic_reviews/internal/scoring"
)

// Unifier turns pending raw reviews into canonical unified reviews. The
// mapping is pure, so the whole stage is a select + transform + batched insert.
type Unifier struct {
	repo     domain.Repository
	selector *Selector
	cfg      scoring.Config
}

func NewUnifier(repo domain.Repository, cfg scoring.Config) *Unifier {
	return &Unifier{repo: repo, selector: NewSelector(repo), cfg: cfg}
}

type UnifyOptions struct {
	EstablishmentIDs []int64
	// Quick reports the pending count without writing anything.
	Quick bool
	// Force reprocesses raw reviews that already have a unified counterpart.
	Force bool
}

type UnifySummary struct {
	Selected int
	Written  int
	Pending  int
}

func (u *Unifier) Run(ctx context.Context, opts UnifyOptions) (UnifySummary, error) {
	filter := domain.SelectFilter{
		EstablishmentIDs: opts.EstablishmentIDs,
		PublishedAfter:   u.cfg.PublishedAfterTime(),
		Force:            opts.Force,
	}

	if opts.Quick {
		n, err := u.selector.CountPendingUnification(ctx, filter)
		if err != nil {
			return UnifySummary{}, fmt.Errorf("count pending: %w", err)
		}
		if n > u.cfg.Processing.BatchSize {
			n = u.cfg.Processing.BatchSize
		}
		return UnifySummary{Pending: n}, nil
	}

	raws, err := u.selector.PendingUnification(ctx, filter)
	if err != nil {
		return UnifySummary{}, fmt.Errorf("select pending: %w", err)
	}

	summary := UnifySummary{Selected: len(raws)}
	batch := u.cfg.Processing.BatchSize
	for start := 0; start < len(raws); start += batch {
		end := start + batch
		if end > len(raws) {
			end = len(raws)
		}
		unified := make([]domain.UnifiedReview, 0, end-start)
		for _, r := range raws[start:end] {
			unified = append(unified, UnifyReview(r))
		}
		if err := u.repo.InsertUnified(ctx, unified); err != nil {
			return summary, fmt.Errorf("insert unified batch: %w", err)
		}
		summary.Written += len(unified)
	}

	log.Info().
		Int("selected", summary.Selected).
		Int("written", summary.Written).
		Msg("unify finished")
	return summary, nil
}
