package cftc

import "errors"

var (
	ErrNotFound    = errors.New("no reports found for this market/date range")
	ErrRateLimited = errors.New("rate limited by CFTC API")
	ErrAuthFailed  = errors.New("authentication failed (check CFTC app token)")
	ErrUnavailable = errors.New("CFTC API unavailable (circuit open)")
)
