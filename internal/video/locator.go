package video

import (
	"context"
	"errors"

	"github.com/suPer8Hu/learning-buddy/internal/logger"
)

var ErrInvalidRange = errors.New("invalid time range")

// ChunkCache holds a video's full chunk list. A miss is (nil, false, nil).
type ChunkCache interface {
	GetChunks(ctx context.Context, videoID string) ([]ContentChunk, bool, error)
	SetChunks(ctx context.Context, videoID string, chunks []ContentChunk) error
	Invalidate(ctx context.Context, videoID string) error
}

// Locator answers timestamp queries, via the cache when one is set.
type Locator struct {
	repo  *Repo
	cache ChunkCache
	log   *logger.Logger
}

func NewLocator(repo *Repo, cache ChunkCache, log *logger.Logger) *Locator {
	if log == nil {
		log = logger.NewNop()
	}
	return &Locator{repo: repo, cache: cache, log: log}
}

// cachedChunks returns ok=false when the cache is absent or failing.
func (l *Locator) cachedChunks(ctx context.Context, videoID string) ([]ContentChunk, bool) {
	if l.cache == nil {
		return nil, false
	}
	chunks, hit, err := l.cache.GetChunks(ctx, videoID)
	if err != nil {
		l.log.Warn("chunk cache get failed", "video_id", videoID, "error", err)
		return nil, false
	}
	if hit {
		return chunks, true
	}
	chunks, err = l.repo.ListChunks(ctx, videoID)
	if err != nil {
		l.log.Warn("chunk list load failed", "video_id", videoID, "error", err)
		return nil, false
	}
	if err := l.cache.SetChunks(ctx, videoID, chunks); err != nil {
		l.log.Warn("chunk cache set failed", "video_id", videoID, "error", err)
	}
	return chunks, true
}

// FindChunk returns the chunk covering t, or nil when no chunk does.
func (l *Locator) FindChunk(ctx context.Context, videoID string, t int) (*ContentChunk, error) {
	if chunks, ok := l.cachedChunks(ctx, videoID); ok {
		var best *ContentChunk
		for i := range chunks {
			c := chunks[i]
			if c.Covers(t) && (best == nil || c.StartTime > best.StartTime) {
				best = &c
			}
		}
		return best, nil
	}
	return l.repo.FindChunk(ctx, videoID, t)
}

// FindSurrounding returns chunks starting in [low, high], ascending.
func (l *Locator) FindSurrounding(ctx context.Context, videoID string, low, high int) ([]ContentChunk, error) {
	if low > high {
		return nil, ErrInvalidRange
	}
	if chunks, ok := l.cachedChunks(ctx, videoID); ok {
		out := []ContentChunk{}
		for _, c := range chunks {
			if c.StartTime >= low && c.StartTime <= high {
				out = append(out, c)
			}
		}
		return out, nil
	}
	return l.repo.FindSurrounding(ctx, videoID, low, high)
}

func (l *Locator) ReplaceChunks(ctx context.Context, videoID string, chunks []ContentChunk) error {
	if err := l.repo.ReplaceChunks(ctx, videoID, chunks); err != nil {
		return err
	}
	if l.cache != nil {
		if err := l.cache.Invalidate(ctx, videoID); err != nil {
			l.log.Warn("chunk cache invalidate failed", "video_id", videoID, "error", err)
		}
	}
	return nil
}

func (l *Locator) ListVideos(ctx context.Context) ([]VideoSummary, error) {
	return l.repo.ListVideos(ctx)
}
