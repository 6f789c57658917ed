// Package ratelimit paces outbound requests.
//
// Two tools live here:
//
// Limiter, a global request-rate gate. TokenBucket wraps
// golang.org/x/time/rate; Unlimited is used when no rate is configured.
//
// Jitter, the randomized delay each pagination worker waits before a page
// fetch. It keeps workers under informal per-IP limits without
// synchronizing their bursts.
package ratelimit
