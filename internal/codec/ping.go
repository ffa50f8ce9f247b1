package codec

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// WaitReady probes p up to attempts times, sleeping interval between
// failures. It is the only place codec calls are retried.
func WaitReady(ctx context.Context, p Pinger, attempts int, interval time.Duration, log *slog.Logger) error {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = p.Ping(ctx)
		if lastErr == nil {
			log.Info("codec service available", slog.Int("attempt", attempt))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("codec service not ready",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.String("error", lastErr.Error()))
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("codec service unavailable after %d attempts: %w", attempts, lastErr)
}
