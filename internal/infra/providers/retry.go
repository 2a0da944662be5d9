package providers

import (
	"context"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel"
)

const maxBackoff = 30 * time.Second

// retry runs fn up to attempts times with exponential backoff and full jitter.
// Only errors accepted by retryable are retried; ctx bounds the whole loop.
func retry[T any](ctx context.Context, attempts int, delay time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	meter := otel.Meter("viruslens/providers")
	attemptCounter, _ := meter.Int64Counter("viruslens_provider_http_attempts_total")
	retryCounter, _ := meter.Int64Counter("viruslens_provider_http_retries_total")

	cur := delay
	var lastErr error
	for i := 0; i < attempts; i++ {
		v, err := fn()
		attemptCounter.Add(ctx, 1)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if i == attempts-1 || !retryable(err) {
			break
		}
		if cur > maxBackoff {
			cur = maxBackoff
		}
		sleep := time.Duration(rand.Int63n(int64(cur) + 1))
		retryCounter.Add(ctx, 1)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(sleep):
		}
		cur *= 2
	}
	return zero, lastErr
}
