package unillm

import (
	"context"
	"log/slog"
	"time"

	"github.com/hpn/hpn-unillm/internal/domain"
)

// withRetry runs fn until it succeeds, fails with a non-retryable error, or
// the policy's attempts are spent. It returns the number of sends made and,
// on exhaustion, the last error unchanged.
func (f *Facade) withRetry(ctx context.Context, cfg ProviderConfig, op string, fn func(ctx context.Context) error) (int, error) {
	policy := cfg.EffectiveRetry()
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		f.logger.Debug("attempting request",
			slog.String("op", op),
			slog.String("provider", string(cfg.Kind)),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", policy.MaxAttempts),
		)

		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				f.logger.Info("request succeeded after retry",
					slog.String("op", op),
					slog.String("provider", string(cfg.Kind)),
					slog.Int("attempt", attempt),
				)
			}
			return attempt, nil
		}
		lastErr = err

		if !domain.IsRetryable(err) {
			f.logger.Debug("non-retryable error",
				slog.String("op", op),
				slog.String("provider", string(cfg.Kind)),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			return attempt, err
		}

		if attempt == policy.MaxAttempts {
			break
		}

		delay := backoff(policy, attempt, domain.RetryAfter(err))
		f.logger.Warn("retryable error, backing off",
			slog.String("op", op),
			slog.String("provider", string(cfg.Kind)),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)

		if err := f.sleep(ctx, delay); err != nil {
			return attempt, domain.NewTransportError("backoff", err, false)
		}
	}

	f.logger.Error("max attempts exhausted",
		slog.String("op", op),
		slog.String("provider", string(cfg.Kind)),
		slog.Int("max_attempts", policy.MaxAttempts),
		slog.String("error", lastErr.Error()),
	)
	return policy.MaxAttempts, lastErr
}

// backoff is the wait after the given failed attempt: the exponential delay,
// raised to the provider's Retry-After hint, capped by MaxBackoff.
func backoff(policy RetryPolicy, attempt int, hint time.Duration) time.Duration {
	d := policy.Delay(attempt)
	if hint > d {
		d = hint
	}
	if policy.MaxBackoff > 0 && d > policy.MaxBackoff {
		d = policy.MaxBackoff
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
