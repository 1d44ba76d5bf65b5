package cache

import (
	"context"
	"time"
)

// SummaryCache keeps generated shift narratives keyed by a digest of the
// shift inputs.
type SummaryCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, text string, ttl time.Duration) error
}

type NoopSummaryCache struct{}

func (NoopSummaryCache) Get(_ context.Context, _ string) (string, bool, error) {
	return "", false, nil
}

func (NoopSummaryCache) Set(_ context.Context, _ string, _ string, _ time.Duration) error {
	return nil
}
