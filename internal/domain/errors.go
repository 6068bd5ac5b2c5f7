package domain

import "errors"

var ErrNotFound = errors.New("not found")

// Oracle failure classes. Rate limiting is transient and aborts the stage;
// the other two are permanent for the affected reviews.
var (
	ErrOracleRateLimited     = errors.New("oracle rate limited")
	ErrOracleMalformed       = errors.New("oracle returned malformed verdict")
	ErrOracleContentFiltered = errors.New("oracle refused content")
)
