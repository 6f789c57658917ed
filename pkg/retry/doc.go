// Package retry provides backoff strategies and a retry loop for the
// crawler's slow-path waits: the proxy supply loop's idle backoff and the
// resolve phase's throttled-response retry.
//
// Basic usage:
//
//	err := retry.Do(func() error {
//		return resolve(ctx)
//	}, &retry.Config{
//		MaxAttempts: 3,
//		Backoff:     &retry.ConstantBackoff{Delay: 10 * time.Second},
//		RetryIf:     isThrottled,
//		Context:     ctx,
//		Logger:      log,
//	})
//
// Wait is a context-aware sleep used wherever the crawler pauses.
package retry
