// Package resilience bounds and repeats provider operations.
//
// Retry re-runs a failing lifecycle step with exponential backoff,
// WithTimeout races a step against a deadline, and RateLimiter throttles
// operator-triggered lifecycle requests on the admin API.
package resilience
