package app

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"clinic_reviews/internal/domain"
	"clinic_reviews/internal/scoring"
)

// AttributeGroup selects which oracle verdicts an enrichment run refreshes.
type AttributeGroup string

const (
	GroupAll       AttributeGroup = "all"
	GroupSentiment AttributeGroup = "sentiment"
	GroupComplaint AttributeGroup = "complaint"
	GroupResponse  AttributeGroup = "response"
)

func ParseAttributeGroup(s string) (AttributeGroup, error) {
	switch AttributeGroup(s) {
	case GroupAll, GroupSentiment, GroupComplaint, GroupResponse:
		return AttributeGroup(s), nil
	case "":
		return GroupAll, nil
	}
	return "", fmt.Errorf("unknown attribute group %q", s)
}

// Enricher sends pending unified reviews through the oracle in batches and
// stores the verdicts. Oracle answers are cached by content hash so re-runs
// after partial failures do not repay completed calls.
type Enricher struct {
	repo    domain.Repository
	oracle  domain.OracleClient
	cache   domain.Cache
	cfg     scoring.Config
	workers int64
	ttlSec  int

	now func() time.Time
}

func NewEnricher(repo domain.Repository, oracle domain.OracleClient, cache domain.Cache, cfg scoring.Config, workers, cacheTTLSec int) *Enricher {
	if workers < 1 {
		workers = 1
	}
	return &Enricher{
		repo:    repo,
		oracle:  oracle,
		cache:   cache,
		cfg:     cfg,
		workers: int64(workers),
		ttlSec:  cacheTTLSec,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type EnrichOptions struct {
	EstablishmentIDs []int64
	Quick            bool
	// Force reprocesses reviews that already have an enrichment record,
	// recomputing only the selected group and keeping the rest.
	Force bool
	Group AttributeGroup
}

type EnrichSummary struct {
	Selected int
	Enriched int
	// Skipped counts reviews below the minimum length; they get an empty
	// record so the watermark still advances.
	Skipped int
	Failed  int
	Pending int
}

// oracleVerdict is the cached per-review answer, keyed by text hash.
type oracleVerdict struct {
	Scores      map[string]int `json:"scores"`
	IsComplaint bool           `json:"is_complaint"`
}

func (e *Enricher) Run(ctx context.Context, opts EnrichOptions) (EnrichSummary, error) {
	if opts.Group == "" {
		opts.Group = GroupAll
	}
	filter := domain.SelectFilter{
		EstablishmentIDs: opts.EstablishmentIDs,
		PublishedAfter:   e.cfg.PublishedAfterTime(),
		Force:            opts.Force,
	}

	if opts.Quick {
		n, err := e.repo.CountUnenriched(ctx, filter)
		if err != nil {
			return EnrichSummary{}, fmt.Errorf("count pending: %w", err)
		}
		if n > e.cfg.Processing.BatchSize {
			n = e.cfg.Processing.BatchSize
		}
		return EnrichSummary{Pending: n}, nil
	}

	pending, err := NewSelector(e.repo).PendingEnrichment(ctx, filter)
	if err != nil {
		return EnrichSummary{}, fmt.Errorf("select pending: %w", err)
	}

	summary := EnrichSummary{Selected: len(pending)}

	// Short reviews carry no usable signal; record them once and move on.
	workable := pending[:0:0]
	var short []domain.EnrichedReview
	for _, r := range pending {
		if textLen(r.Text) < e.cfg.Processing.MinReviewLength {
			short = append(short, e.emptyRecord(r))
			continue
		}
		workable = append(workable, r)
	}
	if len(short) > 0 {
		if err := e.repo.UpsertEnriched(ctx, short); err != nil {
			return summary, fmt.Errorf("store short reviews: %w", err)
		}
		summary.Skipped = len(short)
	}

	var (
		mu        sync.Mutex
		sem       = semaphore.NewWeighted(e.workers)
		wg        sync.WaitGroup
		runErr    error
		runErrMu  sync.Mutex
		batchSize = e.cfg.Processing.SentimentBatchSize
	)
	setRunErr := func(err error) {
		runErrMu.Lock()
		if runErr == nil {
			runErr = err
		}
		runErrMu.Unlock()
	}
	aborted := func() bool {
		runErrMu.Lock()
		defer runErrMu.Unlock()
		return runErr != nil
	}

	for start := 0; start < len(workable); start += batchSize {
		if aborted() {
			break
		}
		end := start + batchSize
		if end > len(workable) {
			end = len(workable)
		}
		batch := workable[start:end]
		if err := sem.Acquire(ctx, 1); err != nil {
			setRunErr(err)
			break
		}
		wg.Add(1)
		go func(batch []domain.UnifiedReview) {
			defer sem.Release(1)
			defer wg.Done()
			enriched, failed, err := e.enrichBatch(ctx, batch, opts)
			mu.Lock()
			summary.Enriched += enriched
			summary.Failed += failed
			mu.Unlock()
			if err != nil {
				setRunErr(err)
			}
		}(batch)
	}
	wg.Wait()

	log.Info().
		Int("selected", summary.Selected).
		Int("enriched", summary.Enriched).
		Int("skipped_short", summary.Skipped).
		Int("failed", summary.Failed).
		Str("group", string(opts.Group)).
		Msg("enrich finished")
	return summary, runErr
}

// enrichBatch processes one oracle batch. Rate limiting is returned to abort
// the run (records stay pending); other oracle failures mark the unanswered
// reviews failed and the run continues.
func (e *Enricher) enrichBatch(ctx context.Context, batch []domain.UnifiedReview, opts EnrichOptions) (enriched, failed int, err error) {
	records := make(map[int64]*domain.EnrichedReview, len(batch))
	byID := make(map[int64]domain.UnifiedReview, len(batch))
	for _, r := range batch {
		byID[r.ReviewID] = r
		rec := e.baseRecord(ctx, r, opts.Force)
		records[r.ReviewID] = rec
	}

	misses, err := e.fillFromCache(ctx, batch, records)
	if err != nil {
		// cache trouble is never fatal, just slower
		log.Warn().Err(err).Msg("oracle cache read failed, treating all as misses")
		misses = batch
	}

	if opts.Group == GroupAll || opts.Group == GroupSentiment || opts.Group == GroupComplaint {
		if err := e.askOracle(ctx, misses, records, opts.Group); err != nil {
			if errors.Is(err, domain.ErrOracleRateLimited) {
				return 0, 0, err
			}
			return e.failMisses(ctx, err, misses, records)
		}
	}

	if opts.Group == GroupAll || opts.Group == GroupResponse {
		if err := e.assessResponses(ctx, byID, records); err != nil {
			if errors.Is(err, domain.ErrOracleRateLimited) {
				return 0, 0, err
			}
			log.Warn().Err(err).Msg("response assessment failed, verdicts left unset")
		}
	}

	out := make([]domain.EnrichedReview, 0, len(records))
	for _, rec := range records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReviewID < out[j].ReviewID })
	if err := e.repo.UpsertEnriched(ctx, out); err != nil {
		return 0, 0, fmt.Errorf("store enriched batch: %w", err)
	}
	return len(out), 0, nil
}

// failMisses handles a permanent oracle failure: records already answered
// from the cache are stored as usual, only the reviews the failed call was
// actually asked about get the failed tombstone.
func (e *Enricher) failMisses(ctx context.Context, cause error, misses []domain.UnifiedReview, records map[int64]*domain.EnrichedReview) (enriched, failed int, err error) {
	missed := make(map[int64]bool, len(misses))
	for _, r := range misses {
		missed[r.ReviewID] = true
	}
	hits := make([]domain.EnrichedReview, 0, len(records)-len(misses))
	for id, rec := range records {
		if !missed[id] {
			hits = append(hits, *rec)
		}
	}
	if len(hits) > 0 {
		sort.Slice(hits, func(i, j int) bool { return hits[i].ReviewID < hits[j].ReviewID })
		if err := e.repo.UpsertEnriched(ctx, hits); err != nil {
			return 0, 0, fmt.Errorf("store cached verdicts: %w", err)
		}
	}
	ids := reviewIDs(misses)
	if merr := e.repo.MarkEnrichmentFailed(ctx, ids); merr != nil {
		log.Error().Err(merr).Msg("mark enrichment failed")
	}
	log.Warn().Err(cause).Ints64("review_ids", ids).Msg("oracle batch failed")
	return len(hits), len(misses), nil
}

// baseRecord starts from the stored record on forced re-runs so untouched
// groups survive, otherwise from a fresh one.
func (e *Enricher) baseRecord(ctx context.Context, r domain.UnifiedReview, force bool) *domain.EnrichedReview {
	if force {
		if existing, err := e.repo.GetEnriched(ctx, r.ReviewID); err == nil {
			existing.Status = domain.EnrichmentOK
			existing.ProcessedAt = e.now()
			return &existing
		}
	}
	rec := e.emptyRecord(r)
	return &rec
}

func (e *Enricher) emptyRecord(r domain.UnifiedReview) domain.EnrichedReview {
	return domain.EnrichedReview{
		ReviewID:        r.ReviewID,
		EstablishmentID: r.EstablishmentID,
		Platform:        r.Platform,
		Scores:          map[string]int{},
		HasResponse:     r.OwnerResponse != nil,
		ReviewLength:    textLen(r.Text),
		Status:          domain.EnrichmentOK,
		PublishedAt:     r.PublishedAt,
		ProcessedAt:     e.now(),
	}
}

// fillFromCache applies cached verdicts and returns the reviews still needing
// an oracle call.
func (e *Enricher) fillFromCache(ctx context.Context, batch []domain.UnifiedReview, records map[int64]*domain.EnrichedReview) ([]domain.UnifiedReview, error) {
	var misses []domain.UnifiedReview
	for _, r := range batch {
		var v oracleVerdict
		hit, err := e.cache.Get(ctx, verdictKey(r.Text), &v)
		if err != nil {
			return nil, err
		}
		if !hit {
			misses = append(misses, r)
			continue
		}
		rec := records[r.ReviewID]
		rec.Scores = v.Scores
		if rec.Scores == nil {
			rec.Scores = map[string]int{}
		}
		rec.IsComplaint = v.IsComplaint
	}
	return misses, nil
}

func (e *Enricher) askOracle(ctx context.Context, misses []domain.UnifiedReview, records map[int64]*domain.EnrichedReview, group AttributeGroup) error {
	if len(misses) == 0 {
		return nil
	}
	texts := make([]domain.ReviewText, 0, len(misses))
	for _, r := range misses {
		texts = append(texts, domain.ReviewText{ID: r.ReviewID, Text: deref(r.Text)})
	}

	if group == GroupAll || group == GroupSentiment {
		scores, err := e.oracle.ScoreSentiment(ctx, texts, domain.SentimentAttributes)
		if err != nil {
			return fmt.Errorf("score sentiment: %w", err)
		}
		for id, s := range scores {
			if rec, ok := records[id]; ok {
				rec.Scores = s
				if rec.Scores == nil {
					rec.Scores = map[string]int{}
				}
			}
		}
	}
	if group == GroupAll || group == GroupComplaint {
		flags, err := e.oracle.ClassifyComplaints(ctx, texts)
		if err != nil {
			return fmt.Errorf("classify complaints: %w", err)
		}
		for id, isComplaint := range flags {
			if rec, ok := records[id]; ok {
				rec.IsComplaint = isComplaint
			}
		}
	}

	// Cache the combined verdict only after a full-group run, otherwise a
	// partial answer would mask the missing half on the next pass.
	if group == GroupAll {
		for _, r := range misses {
			rec := records[r.ReviewID]
			v := oracleVerdict{Scores: rec.Scores, IsComplaint: rec.IsComplaint}
			if err := e.cache.Set(ctx, verdictKey(r.Text), v, e.ttlSec); err != nil {
				log.Warn().Err(err).Int64("review_id", r.ReviewID).Msg("oracle cache write failed")
			}
		}
	}
	return nil
}

func (e *Enricher) assessResponses(ctx context.Context, byID map[int64]domain.UnifiedReview, records map[int64]*domain.EnrichedReview) error {
	var pairs []domain.ReviewResponse
	for id, rec := range records {
		r := byID[id]
		if !rec.IsComplaint || r.OwnerResponse == nil {
			continue
		}
		key := responseKey(r.Text, r.OwnerResponse)
		var constructive bool
		hit, err := e.cache.Get(ctx, key, &constructive)
		if err == nil && hit {
			rec.HasConstructiveResponse = &constructive
			continue
		}
		pairs = append(pairs, domain.ReviewResponse{ID: id, Text: deref(r.Text), Response: *r.OwnerResponse})
	}
	if len(pairs) == 0 {
		return nil
	}

	verdicts, err := e.oracle.AssessResponses(ctx, pairs)
	if err != nil {
		return fmt.Errorf("assess responses: %w", err)
	}
	for id, constructive := range verdicts {
		rec, ok := records[id]
		if !ok {
			continue
		}
		c := constructive
		rec.HasConstructiveResponse = &c
		r := byID[id]
		if err := e.cache.Set(ctx, responseKey(r.Text, r.OwnerResponse), constructive, e.ttlSec); err != nil {
			log.Warn().Err(err).Int64("review_id", id).Msg("response cache write failed")
		}
	}
	return nil
}

func verdictKey(text *string) string {
	return "oracle:verdict:" + contentHash(deref(text))
}

func responseKey(text, response *string) string {
	return "oracle:response:" + contentHash(deref(text)+"\x00"+deref(response))
}

func contentHash(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func textLen(s *string) int {
	if s == nil {
		return 0
	}
	return len([]rune(*s))
}

func reviewIDs(rs []domain.UnifiedReview) []int64 {
	ids := make([]int64, 0, len(rs))
	for _, r := range rs {
		ids = append(ids, r.ReviewID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
