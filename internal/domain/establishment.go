package domain

import "time"

type Establishment struct {
	ID                     int64
	DisplayName            string
	GoogleURL              string
	Website                string
	TrustpilotDomain       *string
	MapsLastScraped        *time.Time
	TrustpilotLastScraped  *time.Time
	MapsTotalReviews       int
	TrustpilotTotalReviews int
}
