package domain

import (
	"context"
	"time"
)

// SelectFilter narrows a stage's input set. Zero value selects everything
// still pending for the stage.
type SelectFilter struct {
	EstablishmentIDs []int64
	PublishedAfter   *time.Time
	// Limit caps the batch; 0 means no cap.
	Limit int
	// Force disables the incremental watermark and reselects records the
	// stage has already processed.
	Force bool
}

type Repository interface {
	// Establishments
	UpsertEstablishment(ctx context.Context, e Establishment) (int64, error)
	ListEstablishments(ctx context.Context, ids []int64) ([]Establishment, error)
	UpdateScrapeInfo(ctx context.Context, id int64, p Platform, totalReviews int) error

	// Raw reviews
	UpsertRawReviews(ctx context.Context, rs []RawReview) error

	// Unification stage
	SelectUnunified(ctx context.Context, f SelectFilter) ([]RawReview, error)
	CountUnunified(ctx context.Context, f SelectFilter) (int, error)
	InsertUnified(ctx context.Context, rs []UnifiedReview) error

	// Enrichment stage
	SelectUnenriched(ctx context.Context, f SelectFilter) ([]UnifiedReview, error)
	CountUnenriched(ctx context.Context, f SelectFilter) (int, error)
	UpsertEnriched(ctx context.Context, rs []EnrichedReview) error
	MarkEnrichmentFailed(ctx context.Context, reviewIDs []int64) error
	GetEnriched(ctx context.Context, reviewID int64) (EnrichedReview, error)

	// Scoring stage
	ForEachEnriched(ctx context.Context, f SelectFilter, fn func(EnrichedReview) error) error
	ListRatingObservations(ctx context.Context, establishmentID int64) ([]RatingObservation, error)
	ReplaceScore(ctx context.Context, s EstablishmentScore) error

	// Stats
	GetScore(ctx context.Context, establishmentID int64) (EstablishmentScore, error)
	CollectionCounts(ctx context.Context) (map[string]int64, error)
	AverageScores(ctx context.Context) (ScoreAverages, error)
}

// ScraperClient calls the third-party scraping actors. Payloads stay opaque;
// the unifier owns interpretation.
type ScraperClient interface {
	ScrapeMapsReviews(ctx context.Context, googleURL string) ([]map[string]any, error)
	ScrapeTrustpilotReviews(ctx context.Context, domain string) ([]map[string]any, error)
}

// ReviewText is the oracle's view of one review.
type ReviewText struct {
	ID   int64
	Text string
}

// ReviewResponse pairs a complaint with its owner response for assessment.
type ReviewResponse struct {
	ID       int64
	Text     string
	Response string
}

// OracleClient is the sentiment-extraction model boundary. Implementations
// return typed failures (rate-limited, malformed, content-filtered) that the
// enrichment service maps to skip-and-log behavior.
type OracleClient interface {
	ScoreSentiment(ctx context.Context, reviews []ReviewText, attributes []string) (map[int64]map[string]int, error)
	ClassifyComplaints(ctx context.Context, reviews []ReviewText) (map[int64]bool, error)
	AssessResponses(ctx context.Context, pairs []ReviewResponse) (map[int64]bool, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}
