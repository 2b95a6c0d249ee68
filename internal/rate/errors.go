package rate

import "errors"

var (
	// ErrRateLimited is an exported constant or variable used by the limiter.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable is an exported constant or variable used by the limiter.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
