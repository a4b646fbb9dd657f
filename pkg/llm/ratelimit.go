package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to a Generator. Waiting honours the caller's
// context, so a cancelled run never reaches the backend.
type RateLimited struct {
	next    Generator
	limiter *rate.Limiter
}

// NewRateLimited allows rpm requests per minute with the given burst. A
// non-positive rpm disables limiting.
func NewRateLimited(next Generator, rpm, burst int) *RateLimited {
	limit := rate.Inf
	if rpm > 0 {
		limit = rate.Limit(rpm) / 60.0
	}
	if burst <= 0 {
		burst = 1
	}

	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (g *RateLimited) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for model rate limit: %w", err)
	}

	return g.next.Generate(ctx, req)
}
