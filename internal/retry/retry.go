package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Adda-Baaj/jist-harvester/internal/domain"
	"github.com/Adda-Baaj/jist-harvester/internal/logger"
)

// ErrExhausted wraps the last failure once the retry ceiling is reached.
var ErrExhausted = errors.New("retry ceiling exceeded")

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Classifier reports whether an error may be retried.
type Classifier func(error) bool

// Policy is a bounded, fixed-delay retry policy.
// An operation runs at most MaxRetries+1 times.
type Policy struct {
	Name              string
	MaxRetries        int
	Delay             time.Duration
	RateLimitCooldown time.Duration
	Retryable         Classifier
	Sleep             Sleeper
	Log               logger.Logger
}

// FetchPolicy returns the policy used for feed and article fetches:
// decode failures and rate-limited responses are retried, everything else is not.
func FetchPolicy(maxRetries int, delay, rateLimitCooldown time.Duration) Policy {
	return Policy{
		Name:              "fetch",
		MaxRetries:        maxRetries,
		Delay:             delay,
		RateLimitCooldown: rateLimitCooldown,
		Retryable:         IsTransient,
	}
}

// IsTransient reports whether err is a decode failure or a rate-limit response.
func IsTransient(err error) bool {
	return errors.Is(err, domain.ErrDecodeFailure) || errors.Is(err, domain.ErrRateLimited)
}

// Do runs op until it succeeds, returns a non-retryable error, or the ceiling is hit.
// It returns the number of attempts made.
func (p Policy) Do(ctx context.Context, op func(attempt int) error) (int, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	log := logger.Ensure(p.Log)
	retryable := p.Retryable
	if retryable == nil {
		retryable = func(error) bool { return false }
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		lastErr = op(attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if !retryable(lastErr) {
			return attempt, lastErr
		}
		if attempt > p.MaxRetries {
			log.WarnObj("retry ceiling exceeded", "retry_exhausted", map[string]any{
				"policy":   p.Name,
				"attempts": attempt,
				"error":    lastErr.Error(),
			})
			return attempt, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, lastErr)
		}

		wait := p.Delay
		if errors.Is(lastErr, domain.ErrRateLimited) {
			wait += p.RateLimitCooldown
		}
		log.DebugObj("retrying after transient failure", "retry_wait", map[string]any{
			"policy":  p.Name,
			"attempt": attempt,
			"wait_ms": wait.Milliseconds(),
			"error":   lastErr.Error(),
		})
		if err := sleep(ctx, wait); err != nil {
			return attempt, fmt.Errorf("retry cancelled: %w", err)
		}
	}
}
