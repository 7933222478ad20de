package notify

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitedNotifier wraps a notifier with a token bucket so a burst of
// finishing tasks cannot flood the delivery channel. Sends over the limit
// are dropped, not queued.
type RateLimitedNotifier struct {
	inner   Notifier
	limiter *rate.Limiter
}

// NewRateLimitedNotifier allows at most one notification per interval with
// the given burst.
func NewRateLimitedNotifier(inner Notifier, interval time.Duration, burst int) *RateLimitedNotifier {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedNotifier{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Every(interval), burst),
	}
}

func (r *RateLimitedNotifier) Send(ctx context.Context, title, body string) error {
	if !r.limiter.Allow() {
		return nil
	}
	return r.inner.Send(ctx, title, body)
}
