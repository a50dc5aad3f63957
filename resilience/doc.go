// Package resilience provides admission control and retry helpers.
//
//   - Bulkhead: caps concurrent work, optionally waiting for a slot
//   - RateLimiter: token bucket; Limiters keeps one bucket per key
//   - Retry: retries with exponential backoff and jitter
//
// The upload handlers use a Bulkhead to cap in-flight uploads, Limiters to
// rate-limit clients and RetryFunc to remove files after a failed request:
//
//	bh := resilience.NewBulkhead(resilience.BulkheadConfig{Name: "upload", MaxConcurrent: 64})
//	release, err := bh.Acquire(ctx)
//	if err != nil {
//	    return err
//	}
//	defer release()
package resilience
