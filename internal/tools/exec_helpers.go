package tools

import (
	"context"
	"time"
)

// withTimeout derives a child context bounded by d, for tools that shell
// out to a subprocess with a fixed wall-clock budget (Grep, VCS).
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, d)
}
