package domain

import "time"

// The nine sentiment dimensions. The first eight come straight from the
// enrichment oracle; online_communication is derived from the complaint and
// owner-response flags at scoring time.
const (
	AttrTreatmentSatisfaction = "treatment_satisfaction"
	AttrPostOp                = "post_op"
	AttrStaffSatisfaction     = "staff_satisfaction"
	AttrFacility              = "facility"
	AttrOnsiteCommunication   = "onsite_communication"
	AttrScheduling            = "scheduling"
	AttrAffordability         = "affordability"
	AttrRecommendation        = "recommendation"
	AttrOnlineCommunication   = "online_communication"
)

// SentimentAttributes lists the oracle-scored dimensions in storage order.
var SentimentAttributes = []string{
	AttrTreatmentSatisfaction,
	AttrPostOp,
	AttrStaffSatisfaction,
	AttrFacility,
	AttrOnsiteCommunication,
	AttrScheduling,
	AttrAffordability,
	AttrRecommendation,
}

type EnrichmentStatus string

const (
	EnrichmentOK     EnrichmentStatus = "ok"
	EnrichmentFailed EnrichmentStatus = "failed"
)

// EnrichedReview carries the oracle's ordinal verdicts for one unified review.
// A missing key in Scores means "attribute not mentioned" — it never counts as
// a zero observation.
type EnrichedReview struct {
	ReviewID        int64
	EstablishmentID int64
	Platform        Platform
	Scores          map[string]int // attribute -> 0..3
	IsComplaint     bool
	HasResponse     bool
	// Set only when the review is a complaint with an owner response and the
	// oracle assessed the response.
	HasConstructiveResponse *bool
	ReviewLength            int
	Status                  EnrichmentStatus
	PublishedAt             *time.Time
	ProcessedAt             time.Time
}
