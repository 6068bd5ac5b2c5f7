package domain

import "time"

// AttributeScore is the per-attribute slice of an establishment's score record.
type AttributeScore struct {
	RawMean    float64 `json:"raw_mean"`
	Adjusted   float64 `json:"adjusted"`
	NPS        float64 `json:"nps"`
	SampleSize int     `json:"n"`
}

// EstablishmentScore is the externally consumed artifact of a scoring run.
// Nil pointer fields mean "withheld": the underlying sample was empty.
type EstablishmentScore struct {
	EstablishmentID       int64
	TotalReviewsAnalyzed  int
	RawAverageRating      *float64
	WeightedAverageRating *float64
	Attributes            map[string]AttributeScore
	ServiceQuality        *float64
	Communication         *float64
	OnlineCommunication   *float64
	Affordability         *float64
	Recommendation        *float64
	ComplaintRate         *float64
	RunID                 string
	ScoredAt              time.Time
}

// ScoreAverages aggregates stored scores across establishments for the stats
// command.
type ScoreAverages struct {
	Establishments       int64
	WithScores           int64
	AvgRawRating         *float64
	AvgWeightedRating    *float64
	AvgServiceQuality    *float64
	AvgCommunication     *float64
	AvgAffordability     *float64
	AvgRecommendation    *float64
	LastScoredAt         *time.Time
}

// RatingObservation feeds the supplemental star-rating averages.
type RatingObservation struct {
	Rating       float64
	Platform     Platform
	IsLocalGuide bool
	Verified     bool
}
