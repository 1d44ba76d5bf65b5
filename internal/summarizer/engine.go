package summarizer

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"fuelshift/backend/internal/cache"
	"fuelshift/backend/internal/domain"
)

// Engine wraps a Summarizer with a deadline, a result cache and request
// collapsing for identical inputs.
type Engine struct {
	client   Summarizer
	cache    cache.SummaryCache
	cacheTTL time.Duration
	timeout  time.Duration
	group    singleflight.Group
	logger   *zap.Logger
}

func NewEngine(client Summarizer, cacheStore cache.SummaryCache, cacheTTL time.Duration, timeout time.Duration, logger *zap.Logger) *Engine {
	if client == nil {
		client = Noop{}
	}
	if cacheStore == nil {
		cacheStore = cache.NoopSummaryCache{}
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		client:   client,
		cache:    cacheStore,
		cacheTTL: cacheTTL,
		timeout:  timeout,
		logger:   logger,
	}
}

// Summarize returns the narrative for req. Every failure is reported as an
// error wrapping ErrUnavailable.
func (e *Engine) Summarize(ctx context.Context, req domain.SummaryRequest) (string, error) {
	key := SnapshotKey(req)
	if text, ok, err := e.cache.Get(ctx, key); err == nil && ok {
		return text, nil
	} else if err != nil {
		e.logger.Warn("summary cache read failed", zap.Error(err))
	}

	// The shared call outlives any single caller that gives up early.
	flightCtx := context.WithoutCancel(ctx)
	resultChan := e.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(flightCtx, e.timeout)
		defer cancel()

		text, err := e.client.Summarize(callCtx, req)
		if err != nil {
			return "", err
		}
		if err := e.cache.Set(callCtx, key, text, e.cacheTTL); err != nil {
			e.logger.Warn("summary cache write failed", zap.Error(err))
		}
		return text, nil
	})

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	case res := <-resultChan:
		if res.Err != nil {
			if errors.Is(res.Err, ErrUnavailable) {
				return "", res.Err
			}
			return "", fmt.Errorf("%w: %v", ErrUnavailable, res.Err)
		}
		return res.Val.(string), nil
	}
}

// SnapshotKey identifies the figures a narrative was written for. The shift
// ID is ignored so a retry with unchanged figures is served from cache.
func SnapshotKey(req domain.SummaryRequest) string {
	req.ShiftID = ""
	payload, _ := json.Marshal(req)
	hash := sha1.Sum(payload)
	return hex.EncodeToString(hash[:])
}
