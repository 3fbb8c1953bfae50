package service

import (
	"context"
	"log/slog"
	"time"
)

// RunTokenSweeper calls CleanupExpiredTokens every interval until ctx is
// cancelled. A failed sweep is logged and retried on the next tick.
func RunTokenSweeper(ctx context.Context, auth *AuthService, interval time.Duration, log *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := auth.CleanupExpiredTokens(ctx); err != nil && ctx.Err() == nil {
				log.Error("token sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}
