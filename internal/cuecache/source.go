package cuecache

import (
	"context"
	"log/slog"
	"time"

	"github.com/nugget/dictation/internal/media"
)

// Fetcher is the live cue source a [Source] falls back to.
type Fetcher interface {
	FetchCues(ctx context.Context, videoID string) (*media.Result, error)
}

// Source serves cues from the cache and fetches through next on a miss.
// Cache failures are logged and never fail a request.
type Source struct {
	store  *Store
	next   Fetcher
	ttl    time.Duration
	logger *slog.Logger
}

// NewSource wraps next with store. A non-positive ttl keeps entries
// until they are purged.
func NewSource(store *Store, next Fetcher, ttl time.Duration, logger *slog.Logger) *Source {
	return &Source{store: store, next: next, ttl: ttl, logger: logger}
}

// FetchCues returns cached cues for videoID when fresh, otherwise
// fetches them through the wrapped source and stores the result.
func (s *Source) FetchCues(ctx context.Context, videoID string) (*media.Result, error) {
	id, err := media.ExtractVideoID(videoID)
	if err != nil {
		return nil, err
	}

	cached, err := s.store.Get(id, s.ttl)
	if err != nil {
		s.logger.Warn("cue cache read failed", "video_id", id, "error", err)
	}
	if cached != nil {
		s.logger.Debug("cue cache hit", "video_id", id, "cues", len(cached.Cues))
		return cached, nil
	}

	res, err := s.next.FetchCues(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.store.Put(res); err != nil {
		s.logger.Warn("cue cache write failed", "video_id", id, "error", err)
	}
	return res, nil
}
