package http

import "golang.org/x/time/rate"

// newRateLimiter returns a per-connection limiter allowing perSecond frames
// with the given burst. A non-positive rate disables limiting.
func newRateLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
