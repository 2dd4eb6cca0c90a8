package llmrouter

import (
	"context"

	"golang.org/x/time/rate"
)

// throttledProvider wraps a Provider with an outbound call limiter so a
// misbehaving personality loop (or a burst of Discord messages) can't
// exceed a provider's own rate limit and trigger a hard failure upstream
// instead of a queued wait.
type throttledProvider struct {
	Provider
	limiter *rate.Limiter
}

// withThrottle wraps p with a token-bucket limiter allowing burst requests
// immediately and refilling at ratePerSecond thereafter.
func withThrottle(p Provider, ratePerSecond float64, burst int) Provider {
	if ratePerSecond <= 0 {
		return p
	}
	return &throttledProvider{Provider: p, limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

func (t *throttledProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.Provider.Chat(ctx, req)
}

func (t *throttledProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.Provider.ChatStream(ctx, req, onChunk)
}
