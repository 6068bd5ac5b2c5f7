package app

import (
	"context"
	"sort"
	"time"

	"clinic_reviews/internal/domain"
)

// Selector picks each stage's minimal correct input set: records that exist
// upstream with no downstream counterpart yet, or — when filters are given —
// an explicitly forced subset. Output order is deterministic (publication
// timestamp ascending, ties broken by review id) so repeated runs over
// unchanged data produce diffable logs.
type Selector struct {
	repo domain.Repository
}

func NewSelector(repo domain.Repository) *Selector { return &Selector{repo: repo} }

// PendingUnification returns raw reviews not yet unified.
func (s *Selector) PendingUnification(ctx context.Context, f domain.SelectFilter) ([]domain.RawReview, error) {
	rs, err := s.repo.SelectUnunified(ctx, f)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rs, func(i, j int) bool {
		return lessByPublished(rs[i].PublishedAt, rs[i].ID, rs[j].PublishedAt, rs[j].ID)
	})
	return capped(rs, f.Limit), nil
}

// PendingEnrichment returns unified reviews with no enrichment record.
func (s *Selector) PendingEnrichment(ctx context.Context, f domain.SelectFilter) ([]domain.UnifiedReview, error) {
	rs, err := s.repo.SelectUnenriched(ctx, f)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rs, func(i, j int) bool {
		return lessByPublished(rs[i].PublishedAt, rs[i].ReviewID, rs[j].PublishedAt, rs[j].ReviewID)
	})
	return capped(rs, f.Limit), nil
}

// CountPendingUnification and CountPendingEnrichment back the quick mode:
// same selection, counts only, no per-item work.
func (s *Selector) CountPendingUnification(ctx context.Context, f domain.SelectFilter) (int, error) {
	return s.repo.CountUnunified(ctx, f)
}

func (s *Selector) CountPendingEnrichment(ctx context.Context, f domain.SelectFilter) (int, error) {
	return s.repo.CountUnenriched(ctx, f)
}

// lessByPublished orders oldest-published first; records without a timestamp
// sort last, and ids break every tie.
func lessByPublished(ta *time.Time, ia int64, tb *time.Time, ib int64) bool {
	switch {
	case ta == nil && tb == nil:
		return ia < ib
	case ta == nil:
		return false
	case tb == nil:
		return true
	case ta.Equal(*tb):
		return ia < ib
	default:
		return ta.Before(*tb)
	}
}

func capped[T any](rs []T, limit int) []T {
	if limit > 0 && len(rs) > limit {
		return rs[:limit]
	}
	return rs
}
