package httpupload

import (
	"time"

	"github.com/kbukum/gridstore/logger"
	"github.com/kbukum/gridstore/resilience"
	"github.com/kbukum/gridstore/util"
)

// Default limits.
const (
	DefaultMaxFileSize  = 32 * 1024 * 1024
	DefaultMaxFieldSize = 1024 * 1024
)

// Option configures an Uploader.
type Option func(*Uploader)

// WithMaxFileSize limits each file part, e.g. "16MB". Unparseable values
// keep the default.
func WithMaxFileSize(size string) Option {
	return func(u *Uploader) {
		u.maxFileSize = util.ParseSize(size, DefaultMaxFileSize)
	}
}

// WithMaxFieldSize limits each non-file form value.
func WithMaxFieldSize(size string) Option {
	return func(u *Uploader) {
		u.maxFieldSize = util.ParseSize(size, DefaultMaxFieldSize)
	}
}

// WithRemoveOnError removes the files already stored for a request when a
// later part fails.
func WithRemoveOnError() Option {
	return func(u *Uploader) {
		u.removeOnError = true
	}
}

// WithRemoveRetry retries each removal up to attempts times with
// exponential backoff. It only matters with WithRemoveOnError.
func WithRemoveRetry(attempts int) Option {
	return func(u *Uploader) {
		u.removeRetry.MaxAttempts = attempts
	}
}

// WithConcurrencyLimit caps the requests processed at once. A request that
// finds no slot within wait is rejected with 503.
func WithConcurrencyLimit(limit int, wait time.Duration) Option {
	return func(u *Uploader) {
		if limit <= 0 {
			u.slots = nil
			return
		}
		u.slots = resilience.NewBulkhead(resilience.BulkheadConfig{
			Name:          "httpupload",
			MaxConcurrent: limit,
			MaxWait:       wait,
		})
	}
}

// WithRateLimit limits each client address to rate requests per second
// with bursts of up to burst. Requests over the limit get 429.
func WithRateLimit(rate float64, burst int) Option {
	return func(u *Uploader) {
		if rate <= 0 {
			u.limiters = nil
			return
		}
		u.limiters = resilience.NewLimiters(resilience.RateLimiterConfig{Rate: rate, Burst: burst}, resilience.DefaultIdleTTL)
	}
}

// WithLogger sets the logger. The default is the global logger tagged
// "httpupload".
func WithLogger(l *logger.Logger) Option {
	return func(u *Uploader) {
		if l != nil {
			u.log = l
		}
	}
}
