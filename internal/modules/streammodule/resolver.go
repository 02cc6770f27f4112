package streammodule

import (
	"context"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/semaphore"

	"github.com/mantonx/tunecast/internal/cache"
)

// Resolver caches resolved streams and runs the extraction cascade on misses.
// Concurrent resolutions of the same ID share one extraction; distinct IDs
// are bounded by a semaphore so a burst cannot fork unbounded subprocesses.
type Resolver struct {
	cache      *cache.TTL[*StreamInfo]
	extractors []Extractor
	sem        *semaphore.Weighted
	logger     hclog.Logger
}

// NewResolver creates a resolver with the given strategy order.
func NewResolver(streamCache *cache.TTL[*StreamInfo], extractors []Extractor, maxConcurrent int64, logger hclog.Logger) *Resolver {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Resolver{
		cache:      streamCache,
		extractors: extractors,
		sem:        semaphore.NewWeighted(maxConcurrent),
		logger:     logger.Named("resolver"),
	}
}

// Resolve returns the stream info for a video ID, from cache when fresh.
func (r *Resolver) Resolve(ctx context.Context, videoID string) (*StreamInfo, error) {
	return r.cache.GetOrCompute(ctx, videoID, func(ctx context.Context) (*StreamInfo, error) {
		return r.extract(ctx, videoID)
	})
}

// Invalidate drops the cached entry so the next Resolve re-extracts. Used
// when the upstream rejects a cached URL before its TTL lapses.
func (r *Resolver) Invalidate(videoID string) {
	r.cache.Invalidate(videoID)
}

// Prefetch warms the cache in the background. Errors are logged only.
func (r *Resolver) Prefetch(ctx context.Context, videoID string) {
	go func() {
		if _, err := r.Resolve(ctx, videoID); err != nil {
			r.logger.Debug("prefetch failed", "video_id", videoID, "error", err)
		}
	}()
}

func (r *Resolver) extract(ctx context.Context, videoID string) (*StreamInfo, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)

	attempts := make(map[string]error, len(r.extractors))
	for _, ex := range r.extractors {
		info, err := ex.Extract(ctx, videoID)
		if err == nil {
			r.logger.Debug("stream resolved", "video_id", videoID, "strategy", ex.Name())
			return info, nil
		}
		attempts[ex.Name()] = err
		r.logger.Warn("extraction strategy failed", "video_id", videoID, "strategy", ex.Name(), "error", err)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, &ExtractionError{VideoID: videoID, Attempts: attempts}
}
