package ratelimit

import "errors"

var (
	ErrInvalidConfig     = errors.New("ratelimit.invalid_config")
	ErrInvalidTokenCount = errors.New("ratelimit.invalid_token_count")
	ErrRateLimited       = errors.New("ratelimit.rate_limited")
)
