package llm

import (
	"context"
	"time"
)

// backoff returns the delay before retry attempt n (1-based).
func backoff(attempt int) time.Duration {
	return time.Duration(100*(1<<(attempt-1))) * time.Millisecond
}

// withRetries runs call up to maxRetries+1 times. retryable decides whether an
// error is worth another attempt; context errors always stop the loop.
func withRetries(ctx context.Context, maxRetries int, retryable func(error) bool, call func() (string, error)) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff(attempt)):
			case <-ctx.Done():
				return "", ErrTimeout
			}
		}

		out, err := call()
		if err == nil {
			return out, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", ErrTimeout
		}
		if !retryable(err) {
			break
		}
	}
	return "", lastErr
}
