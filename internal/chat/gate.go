package chat

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gated bounds the number of in-flight Complete calls across all rollouts
// sharing it. The gate guards only the adapter-call boundary, so
// orchestrator work between calls overlaps freely.
type Gated struct {
	inner Client
	sem   *semaphore.Weighted
}

// NewGated wraps inner with an admission gate of the given capacity.
// A non-positive limit means no gating.
func NewGated(inner Client, limit int64) *Gated {
	if limit <= 0 {
		return &Gated{inner: inner}
	}
	return &Gated{inner: inner, sem: semaphore.NewWeighted(limit)}
}

func (g *Gated) Complete(ctx context.Context, req *Request) (*Completion, error) {
	if g.sem != nil {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer g.sem.Release(1)
	}
	return g.inner.Complete(ctx, req)
}
