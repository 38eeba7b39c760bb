package fetcher

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RequestBudget paces outbound requests across all fetch workers.
type RequestBudget struct {
	limiter *rate.Limiter
}

// NewRequestBudget allows perSecond requests per second with the given burst.
// perSecond <= 0 means unlimited.
func NewRequestBudget(perSecond float64, burst int) *RequestBudget {
	if perSecond <= 0 {
		return &RequestBudget{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst < 1 {
		burst = 1
	}
	return &RequestBudget{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (b *RequestBudget) Unlimited() bool {
	return b == nil || b.limiter == nil || b.limiter.Limit() == rate.Inf
}

// Acquire blocks until one request may be sent or ctx is done.
func (b *RequestBudget) Acquire(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("Acquire: nil context")
	}
	if b.Unlimited() {
		return ctx.Err()
	}
	return b.limiter.Wait(ctx)
}
