package app

import (
	"context"
	"encoding/json"
	"sync"

	"clinic_reviews/internal/domain"
)

// fakeRepo is an in-memory Repository good enough for the stage services.
type fakeRepo struct {
	mu sync.Mutex

	establishments []domain.Establishment
	raw            []domain.RawReview
	ununified      []domain.RawReview
	unified        []domain.UnifiedReview
	unenriched     []domain.UnifiedReview
	enriched       map[int64]domain.EnrichedReview
	markedFailed   []int64
	scrapeInfo     map[int64]map[domain.Platform]int

	insertUnifiedCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		enriched:   map[int64]domain.EnrichedReview{},
		scrapeInfo: map[int64]map[domain.Platform]int{},
	}
}

func (f *fakeRepo) UpsertEstablishment(_ context.Context, e domain.Establishment) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.establishments {
		if existing.GoogleURL == e.GoogleURL {
			return existing.ID, nil
		}
	}
	e.ID = int64(len(f.establishments) + 1)
	f.establishments = append(f.establishments, e)
	return e.ID, nil
}

func (f *fakeRepo) ListEstablishments(_ context.Context, ids []int64) ([]domain.Establishment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(ids) == 0 {
		return append([]domain.Establishment(nil), f.establishments...), nil
	}
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []domain.Establishment
	for _, e := range f.establishments {
		if want[e.ID] {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateScrapeInfo(_ context.Context, id int64, p domain.Platform, total int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scrapeInfo[id] == nil {
		f.scrapeInfo[id] = map[domain.Platform]int{}
	}
	f.scrapeInfo[id][p] = total
	return nil
}

func (f *fakeRepo) UpsertRawReviews(_ context.Context, rs []domain.RawReview) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw = append(f.raw, rs...)
	return nil
}

func (f *fakeRepo) SelectUnunified(_ context.Context, _ domain.SelectFilter) ([]domain.RawReview, error) {
	return append([]domain.RawReview(nil), f.ununified...), nil
}

func (f *fakeRepo) CountUnunified(_ context.Context, _ domain.SelectFilter) (int, error) {
	return len(f.ununified), nil
}

func (f *fakeRepo) InsertUnified(_ context.Context, rs []domain.UnifiedReview) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unified = append(f.unified, rs...)
	f.insertUnifiedCalls++
	return nil
}

func (f *fakeRepo) SelectUnenriched(_ context.Context, _ domain.SelectFilter) ([]domain.UnifiedReview, error) {
	return append([]domain.UnifiedReview(nil), f.unenriched...), nil
}

func (f *fakeRepo) CountUnenriched(_ context.Context, _ domain.SelectFilter) (int, error) {
	return len(f.unenriched), nil
}

func (f *fakeRepo) UpsertEnriched(_ context.Context, rs []domain.EnrichedReview) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rs {
		f.enriched[r.ReviewID] = r
	}
	return nil
}

func (f *fakeRepo) MarkEnrichmentFailed(_ context.Context, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedFailed = append(f.markedFailed, ids...)
	return nil
}

func (f *fakeRepo) GetEnriched(_ context.Context, reviewID int64) (domain.EnrichedReview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.enriched[reviewID]
	if !ok {
		return domain.EnrichedReview{}, domain.ErrNotFound
	}
	return r, nil
}

func (f *fakeRepo) ForEachEnriched(_ context.Context, _ domain.SelectFilter, fn func(domain.EnrichedReview) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.enriched {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeRepo) ListRatingObservations(_ context.Context, _ int64) ([]domain.RatingObservation, error) {
	return nil, nil
}

func (f *fakeRepo) ReplaceScore(_ context.Context, _ domain.EstablishmentScore) error { return nil }

func (f *fakeRepo) GetScore(_ context.Context, _ int64) (domain.EstablishmentScore, error) {
	return domain.EstablishmentScore{}, domain.ErrNotFound
}

func (f *fakeRepo) CollectionCounts(_ context.Context) (map[string]int64, error) {
	return map[string]int64{"raw_reviews": int64(len(f.raw))}, nil
}

func (f *fakeRepo) AverageScores(_ context.Context) (domain.ScoreAverages, error) {
	return domain.ScoreAverages{}, nil
}

// fakeCache round-trips values through JSON like the redis adapter does.
type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
	gets int
	sets int
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string][]byte{}} }

func (c *fakeCache) Get(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	b, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *fakeCache) Set(_ context.Context, key string, v any, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.data[key] = b
	return nil
}

func (c *fakeCache) Del(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// fakeOracle counts calls and delegates to overridable funcs.
type fakeOracle struct {
	mu             sync.Mutex
	sentimentCalls int
	complaintCalls int
	responseCalls  int

	scoreFn    func(reviews []domain.ReviewText, attributes []string) (map[int64]map[string]int, error)
	complainFn func(reviews []domain.ReviewText) (map[int64]bool, error)
	assessFn   func(pairs []domain.ReviewResponse) (map[int64]bool, error)
}

func (o *fakeOracle) ScoreSentiment(_ context.Context, reviews []domain.ReviewText, attributes []string) (map[int64]map[string]int, error) {
	o.mu.Lock()
	o.sentimentCalls++
	o.mu.Unlock()
	if o.scoreFn == nil {
		return map[int64]map[string]int{}, nil
	}
	return o.scoreFn(reviews, attributes)
}

func (o *fakeOracle) ClassifyComplaints(_ context.Context, reviews []domain.ReviewText) (map[int64]bool, error) {
	o.mu.Lock()
	o.complaintCalls++
	o.mu.Unlock()
	if o.complainFn == nil {
		return map[int64]bool{}, nil
	}
	return o.complainFn(reviews)
}

func (o *fakeOracle) AssessResponses(_ context.Context, pairs []domain.ReviewResponse) (map[int64]bool, error) {
	o.mu.Lock()
	o.responseCalls++
	o.mu.Unlock()
	if o.assessFn == nil {
		return map[int64]bool{}, nil
	}
	return o.assessFn(pairs)
}

// fakeScraper serves canned actor payloads.
type fakeScraper struct {
	mapsItems map[string][]map[string]any
	tpItems   map[string][]map[string]any
	mapsErr   error
}

func (s *fakeScraper) ScrapeMapsReviews(_ context.Context, googleURL string) ([]map[string]any, error) {
	if s.mapsErr != nil {
		return nil, s.mapsErr
	}
	return s.mapsItems[googleURL], nil
}

func (s *fakeScraper) ScrapeTrustpilotReviews(_ context.Context, dom string) ([]map[string]any, error) {
	return s.tpItems[dom], nil
}
