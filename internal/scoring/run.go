package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"clinic_reviews/internal/domain"
)

// Runner recomputes establishment scores from the enriched corpus. Each run:
// one corpus-wide pass to gather samples and fix the priors, then a bounded
// worker pool scoring establishments independently, each ending in one atomic
// score replace.
type Runner struct {
	repo    domain.Repository
	cache   domain.Cache // optional; score views are evicted on write
	cfg     Config
	workers int

	// overridable for deterministic tests
	now      func() time.Time
	newRunID func() string
}

func NewRunner(repo domain.Repository, cache domain.Cache, cfg Config, workers int) *Runner {
	if workers <= 0 {
		workers = 4
	}
	return &Runner{
		repo:     repo,
		cache:    cache,
		cfg:      cfg,
		workers:  workers,
		now:      func() time.Time { return time.Now().UTC() },
		newRunID: uuid.NewString,
	}
}

type RunOptions struct {
	// EstablishmentIDs restricts the run; overrides target_establishments
	// from the config. Empty means all known establishments.
	EstablishmentIDs []int64
	// Quick reports how many establishments would be scored without
	// computing or writing anything, capped at processing.batch_size.
	Quick bool
}

type Failure struct {
	EstablishmentID int64
	Reason          string
}

// Summary is the structured end-of-run report. Partial failures live in
// Failures; they never turn the run itself into an error.
type Summary struct {
	RunID     string
	Processed int
	Updated   int
	Skipped   int
	Pending   int
	Failures  []Failure
}

// estSample accumulates one establishment's attribute observations during the
// gather pass.
type estSample struct {
	attrObs    map[string][]int
	reviews    int
	complaints int
	// first malformed observation found; poisons the whole establishment
	malformed error
}

func (r *Runner) Run(ctx context.Context, opts RunOptions) (Summary, error) {
	sum := Summary{RunID: r.newRunID()}
	logger := log.With().Str("run_id", sum.RunID).Logger()

	targets, err := r.targets(ctx, opts)
	if err != nil {
		return sum, fmt.Errorf("resolve establishments: %w", err)
	}

	// Quick mode only counts targets, the corpus gather is skipped entirely.
	if opts.Quick {
		if limit := r.cfg.Processing.BatchSize; len(targets) > limit {
			targets = targets[:limit]
		}
		sum.Pending = len(targets)
		logger.Info().Int("pending", sum.Pending).Msg("quick scoring run, nothing written")
		return sum, nil
	}

	samples, err := r.gather(ctx)
	if err != nil {
		return sum, fmt.Errorf("gather enriched corpus: %w", err)
	}

	// Priors are fixed before any establishment is adjusted. Establishments
	// with malformed samples are left out so bad data cannot leak into the
	// corpus-wide anchor.
	clean := make(map[int64]map[string][]int, len(samples))
	for id, s := range samples {
		if s.malformed == nil {
			clean[id] = s.attrObs
		}
	}
	priors := ComputePriors(clean)

	sem := semaphore.NewWeighted(int64(r.workers))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, id := range targets {
		id := id
		if err := sem.Acquire(ctx, 1); err != nil {
			// in-flight workers still append to the summary
			wg.Wait()
			return sum, err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			updated, err := r.scoreOne(ctx, id, samples[id], priors, sum.RunID)

			mu.Lock()
			defer mu.Unlock()
			sum.Processed++
			switch {
			case err != nil:
				sum.Failures = append(sum.Failures, Failure{EstablishmentID: id, Reason: err.Error()})
				logger.Warn().Int64("est_id", id).Err(err).Msg("establishment skipped")
			case updated:
				sum.Updated++
			default:
				sum.Skipped++
			}
		}()
	}
	wg.Wait()

	sort.Slice(sum.Failures, func(i, j int) bool {
		return sum.Failures[i].EstablishmentID < sum.Failures[j].EstablishmentID
	})
	logger.Info().
		Int("processed", sum.Processed).
		Int("updated", sum.Updated).
		Int("skipped", sum.Skipped).
		Int("failed", len(sum.Failures)).
		Msg("scoring run complete")
	return sum, nil
}

// gather streams the enriched corpus once, grouping observations per
// establishment and deriving the online_communication attribute from the
// complaint/response flags.
func (r *Runner) gather(ctx context.Context) (map[int64]*estSample, error) {
	f := domain.SelectFilter{PublishedAfter: r.cfg.PublishedAfterTime()}
	samples := map[int64]*estSample{}

	err := r.repo.ForEachEnriched(ctx, f, func(er domain.EnrichedReview) error {
		if er.Status == domain.EnrichmentFailed {
			return nil
		}
		s := samples[er.EstablishmentID]
		if s == nil {
			s = &estSample{attrObs: map[string][]int{}}
			samples[er.EstablishmentID] = s
		}
		s.reviews++
		if er.IsComplaint {
			s.complaints++
		}
		for attr, score := range er.Scores {
			if score < 0 || score > 3 {
				if s.malformed == nil {
					s.malformed = fmt.Errorf("review %d: %s score %d outside 0..3",
						er.ReviewID, attr, score)
				}
				continue
			}
			s.attrObs[attr] = append(s.attrObs[attr], score)
		}
		if obs, ok := onlineCommunicationObservation(er, r.cfg.OnlineCommunicationRules); ok {
			s.attrObs[domain.AttrOnlineCommunication] = append(s.attrObs[domain.AttrOnlineCommunication], obs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// deterministic observation order regardless of row order
	for _, s := range samples {
		for _, obs := range s.attrObs {
			sort.Ints(obs)
		}
	}
	return samples, nil
}

// onlineCommunicationObservation applies the rule table. Non-complaints carry
// no observation: the attribute is not applicable, never a zero.
func onlineCommunicationObservation(er domain.EnrichedReview, rules OnlineCommunicationRules) (int, bool) {
	if !er.IsComplaint {
		return 0, false
	}
	if !er.HasResponse {
		return rules.ComplaintNoResponse, true
	}
	if er.HasConstructiveResponse != nil && *er.HasConstructiveResponse {
		return rules.ComplaintResponseGood, true
	}
	return rules.ComplaintResponsePoor, true
}

func (r *Runner) targets(ctx context.Context, opts RunOptions) ([]int64, error) {
	ids := opts.EstablishmentIDs
	if len(ids) == 0 {
		ids = r.cfg.TargetEstablishments
	}
	ests, err := r.repo.ListEstablishments(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(ests))
	for _, e := range ests {
		out = append(out, e.ID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// scoreOne computes and atomically replaces one establishment's score record.
// Returns updated=false when the establishment has nothing to score.
func (r *Runner) scoreOne(ctx context.Context, id int64, s *estSample, priors map[string]Prior, runID string) (bool, error) {
	if s != nil && s.malformed != nil {
		return false, fmt.Errorf("malformed sample: %w", s.malformed)
	}

	ratings, err := r.repo.ListRatingObservations(ctx, id)
	if err != nil {
		return false, fmt.Errorf("list ratings: %w", err)
	}
	if s == nil && len(ratings) == 0 {
		return false, nil
	}

	score := domain.EstablishmentScore{
		EstablishmentID: id,
		Attributes:      map[string]domain.AttributeScore{},
		RunID:           runID,
		ScoredAt:        r.now(),
	}

	if raw, weighted, ok := starAverages(ratings, r.cfg.ReviewerWeights); ok {
		score.RawAverageRating = ptr(round(raw, 3))
		score.WeightedAverageRating = ptr(round(weighted, 3))
	}
	score.TotalReviewsAnalyzed = len(ratings)

	if s != nil {
		if s.reviews > score.TotalReviewsAnalyzed {
			score.TotalReviewsAnalyzed = s.reviews
		}
		npsByAttr := map[string]float64{}
		for attr, obs := range s.attrObs {
			if len(obs) == 0 {
				continue
			}
			adj, _ := Adjusted(obs, priors[attr], r.cfg.Bayesian.PriorWeight)
			nps, _ := NPS(obs, r.cfg.NPS.ThresholdLow, r.cfg.NPS.ThresholdHigh)
			nps = round(nps, 2)
			score.Attributes[attr] = domain.AttributeScore{
				RawMean:    round(rawMean(obs), 3),
				Adjusted:   round(adj, 4),
				NPS:        nps,
				SampleSize: len(obs),
			}
			npsByAttr[attr] = nps
		}

		if v, ok := Composite(npsByAttr, r.cfg.ServiceQualityWeights); ok {
			score.ServiceQuality = ptr(round(v, 2))
		}
		if v, ok := Composite(npsByAttr, r.cfg.CommunicationWeights); ok {
			score.Communication = ptr(round(v, 2))
		}
		if v, ok := npsByAttr[domain.AttrOnlineCommunication]; ok {
			score.OnlineCommunication = ptr(v)
		}
		if v, ok := npsByAttr[domain.AttrAffordability]; ok {
			score.Affordability = ptr(v)
		}
		if v, ok := npsByAttr[domain.AttrRecommendation]; ok {
			score.Recommendation = ptr(v)
		}
		if s.reviews > 0 {
			score.ComplaintRate = ptr(round(float64(s.complaints)/float64(s.reviews), 3))
		}
	}

	if err := r.repo.ReplaceScore(ctx, score); err != nil {
		return false, fmt.Errorf("replace score: %w", err)
	}
	if r.cache != nil {
		_ = r.cache.Del(ctx, fmt.Sprintf("score:%d", id))
		_ = r.cache.Del(ctx, "stats:overview")
	}
	return true, nil
}

// starAverages computes the raw and reviewer-weighted means of the normalized
// star ratings. Local Guide and verified reviews weigh more.
func starAverages(obs []domain.RatingObservation, w ReviewerWeights) (raw, weighted float64, ok bool) {
	if len(obs) == 0 {
		return 0, 0, false
	}
	var sum, wSum, wTotal float64
	for _, o := range obs {
		sum += o.Rating
		rw := w.Default
		switch {
		case o.Platform == domain.PlatformMaps && o.IsLocalGuide:
			rw = w.MapsLocalGuide
		case o.Platform == domain.PlatformTrustpilot && o.Verified:
			rw = w.TrustpilotVerified
		}
		wSum += o.Rating * rw
		wTotal += rw
	}
	return sum / float64(len(obs)), wSum / wTotal, true
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

func ptr[T any](v T) *T { return &v }
