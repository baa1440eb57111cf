package rate

import "errors"

var (
	// ErrRateLimited reports an exhausted budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps counter read and write failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
