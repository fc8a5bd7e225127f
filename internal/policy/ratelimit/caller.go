package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/leadgraph-enricher/internal/metrics"
)

// DefaultSpacing is the minimum gap between consecutive call starts.
const DefaultSpacing = time.Second

// CallResult is the outcome of one sequential call.
type CallResult[R any] struct {
	Index   int
	Value   R
	Err     error
	Started time.Time
}

// Caller issues calls one at a time with at least spacing between starts. The
// limiter holds the only shared state: when the next call may begin.
type Caller struct {
	limiter *rate.Limiter
	spacing time.Duration
	logger  *zap.Logger
}

// NewCaller creates a Caller. A non-positive spacing falls back to DefaultSpacing.
func NewCaller(spacing time.Duration, logger *zap.Logger) *Caller {
	if spacing <= 0 {
		spacing = DefaultSpacing
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Caller{
		limiter: rate.NewLimiter(rate.Every(spacing), 1),
		spacing: spacing,
		logger:  logger,
	}
}

// Spacing returns the configured start-to-start gap.
func (c *Caller) Spacing() time.Duration {
	return c.spacing
}

// Call runs items through call in order. A failed call is logged and leaves a
// zero Value; it never stops the sequence or shortens the spacing. When ctx is
// done the remaining items fail with ctx's error.
func Call[T, R any](ctx context.Context, c *Caller, items []T, call func(ctx context.Context, item T) (R, error)) []CallResult[R] {
	results := make([]CallResult[R], len(items))
	for i, item := range items {
		results[i].Index = i
		waitStart := time.Now()
		if err := c.limiter.Wait(ctx); err != nil {
			for j := i; j < len(items); j++ {
				results[j].Index = j
				results[j].Err = fmt.Errorf("sequential call not started: %w", err)
			}
			c.logger.Warn("sequential calls stopped", zap.Int("remaining", len(items)-i), zap.Error(err))
			break
		}
		wait := time.Since(waitStart)
		results[i].Started = time.Now()
		value, err := safeCall(ctx, item, call)
		if err != nil {
			metrics.ObserveGeneration("error", wait)
			c.logger.Warn("sequential call failed", zap.Int("index", i), zap.Error(err))
			results[i].Err = err
			continue
		}
		metrics.ObserveGeneration("ok", wait)
		results[i].Value = value
	}
	return results
}

func safeCall[T, R any](ctx context.Context, item T, call func(ctx context.Context, item T) (R, error)) (value R, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero R
			value, err = zero, fmt.Errorf("call panicked: %v", r)
		}
	}()
	return call(ctx, item)
}
