package pipeline

import (
	"context"
	"time"

	"github.com/opensource-finance/sentinel/internal/cache"
	"github.com/opensource-finance/sentinel/internal/domain"
)

// Checkpointer records the state of a run after each stage. Runs never
// resume from a checkpoint; the record exists for inspection.
type Checkpointer interface {
	Save(ctx context.Context, runKey string, state domain.PipelineState) error
	Load(ctx context.Context, runKey string) (*domain.PipelineState, error)
}

// CacheCheckpointer keeps checkpoints in a domain.Cache.
type CacheCheckpointer struct {
	cache domain.Cache
	ttl   time.Duration
}

// NewCacheCheckpointer creates a checkpointer. A zero ttl defaults to one hour.
func NewCacheCheckpointer(c domain.Cache, ttl time.Duration) *CacheCheckpointer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CacheCheckpointer{cache: c, ttl: ttl}
}

func checkpointKey(runKey string) string {
	return "run:" + runKey
}

// Save overwrites the checkpoint of runKey.
func (c *CacheCheckpointer) Save(ctx context.Context, runKey string, state domain.PipelineState) error {
	return cache.SetJSON(ctx, c.cache, checkpointKey(runKey), state, c.ttl)
}

// Load returns the last checkpoint of runKey, or nil when there is none.
func (c *CacheCheckpointer) Load(ctx context.Context, runKey string) (*domain.PipelineState, error) {
	var state domain.PipelineState
	ok, err := cache.GetJSON(ctx, c.cache, checkpointKey(runKey), &state)
	if err != nil || !ok {
		return nil, err
	}
	return &state, nil
}
