package domain

import "time"

type Platform string

const (
	PlatformMaps       Platform = "maps"
	PlatformTrustpilot Platform = "trustpilot"
)

// RawReview is one scraped review, kept verbatim. Immutable once written;
// re-scraping the same (platform, source_id) only refreshes metadata.
type RawReview struct {
	ID              int64
	EstablishmentID int64
	Platform        Platform
	SourceID        *string
	Author          *string
	Rating          *float64 // platform-native scale
	Title           *string
	Text            *string
	Lang            *string
	PublishedAt     *time.Time
	RawJSON         []byte
}

// UnifiedReview is the canonical form derived deterministically from exactly
// one RawReview. Rating is normalized to the common 0..5 scale.
type UnifiedReview struct {
	ReviewID        int64
	EstablishmentID int64
	Platform        Platform
	Rating          *float64
	Title           *string
	Text            *string
	Lang            *string
	PublishedAt     *time.Time
	IsLocalGuide    bool
	Verified        bool
	OwnerResponse   *string
}
