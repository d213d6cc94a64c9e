package session

import (
	"context"
	"log/slog"
	"time"
)

// DefaultTTLInterval is how often the TTL worker sweeps for idle sessions.
const DefaultTTLInterval = time.Minute

// StartTTLWorker runs a background goroutine that periodically evicts
// sessions idle for longer than ttl.
func StartTTLWorker(ctx context.Context, r *Registry, ttl, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTTLInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case now := <-ticker.C:
				if n := r.EvictIdle(now, ttl); n > 0 {
					slog.Info("TTL worker cleanup completed", "evicted", n, "remaining", r.Len())
				}
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
