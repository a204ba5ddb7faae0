// Package retry wraps a single network operation in a bounded attempt
// loop with exponential backoff and jitter. Eligibility is decided on
// the classified error, and the classified error is what callers see on
// exhaustion; raw transport errors never escape this package.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/ignite/conversion-relay/internal/ads"
	"github.com/ignite/conversion-relay/internal/pkg/logger"
)

// Config controls one wrapped operation. It is threaded explicitly so
// tests can inject tight delays; there is no package-level state.
type Config struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultConfig returns the production settings: 3 retries (4 total
// attempts), 1s base delay, 30s cap.
func DefaultConfig() Config {
	return Config{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	return c
}

// Do invokes op until it succeeds, fails non-retryably, or the attempt
// budget runs out. The wrapped call must be safe to repeat; the upstream
// partial-failure semantics make batch uploads so. The returned error is
// always a classified *ads.Error.
func Do(ctx context.Context, cfg Config, op func(context.Context) error) error {
	cfg = cfg.withDefaults()

	var last *ads.Error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(cfg, attempt-1, last.RetryAfter)
			logger.Debug("retrying operation",
				"attempt", attempt,
				"max_retries", cfg.MaxRetries,
				"delay", delay.String(),
				"last_error", last.Error())

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return last
			}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}

		last = classify(err)
		if !shouldRetry(last, attempt, cfg.MaxRetries) {
			return last
		}
	}
	return last
}

// classify normalizes any error into the typed taxonomy. Errors already
// classified by the API client pass through unchanged.
func classify(err error) *ads.Error {
	var ae *ads.Error
	if errors.As(err, &ae) {
		return ae
	}
	return ads.ClassifyTransport(err)
}

// retryableTransportCodes are connection-level failures worth retrying.
var retryableTransportCodes = map[string]bool{
	"ECONNRESET":   true,
	"ECONNREFUSED": true,
	"ETIMEDOUT":    true,
	"EPIPE":        true,
	"ENOTFOUND":    true,
	"EAI_AGAIN":    true,
}

// shouldRetry applies the eligibility policy: never past the budget,
// always for rate limits, never for caller mistakes (auth/validation),
// and for API errors only on 5xx/429 statuses or transient transport
// codes.
func shouldRetry(e *ads.Error, attempt, maxRetries int) bool {
	if attempt >= maxRetries {
		return false
	}
	switch e.Kind {
	case ads.KindRateLimit:
		return true
	case ads.KindAuthentication, ads.KindValidation:
		return false
	}
	if e.HTTPCode == 429 || e.HTTPCode >= 500 {
		return true
	}
	return retryableTransportCodes[e.APICode]
}

// backoffDelay computes the wait before retry number attempt+1. A server
// hint wins (capped at MaxDelay); otherwise exponential backoff
// BaseDelay*2^attempt with ±25% jitter, clamped to [BaseDelay, MaxDelay].
func backoffDelay(cfg Config, attempt int, hint time.Duration) time.Duration {
	if hint > 0 {
		if hint > cfg.MaxDelay {
			return cfg.MaxDelay
		}
		return hint
	}

	exp := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))
	jittered := exp * (0.75 + rand.Float64()*0.5)

	d := time.Duration(jittered)
	if d < cfg.BaseDelay {
		d = cfg.BaseDelay
	}
	if d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	return d
}
