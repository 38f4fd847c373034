// Package practice assembles dictation decks from a cue source and
// grades attempts against them.
package practice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/nugget/dictation/internal/captions"
	"github.com/nugget/dictation/internal/media"
	"github.com/nugget/dictation/internal/scoring"
)

// CueSource provides raw cues for a video.
type CueSource interface {
	FetchCues(ctx context.Context, videoID string) (*media.Result, error)
}

// Notifier receives practice events. Implementations must not block for
// long; delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// Event types published to a [Notifier].
const (
	EventSubtitlesLoaded = "subtitles_loaded"
	EventAttemptScored   = "attempt_scored"
)

// Event describes something that happened during practice.
type Event struct {
	Type    string    `json:"type"`
	VideoID string    `json:"video_id"`
	Count   int       `json:"count,omitempty"`
	Attempt *Attempt  `json:"attempt,omitempty"`
	Time    time.Time `json:"time"`
}

// Attempt identifies a graded segment in an [EventAttemptScored] event.
type Attempt struct {
	Index int `json:"index"`
	Score int `json:"score"`
}

// Deck is the practice material for one video.
type Deck struct {
	VideoID  string             `json:"videoId"`
	Title    string             `json:"title,omitempty"`
	Segments []captions.Segment `json:"subtitles"`
	Count    int                `json:"count"`
}

// Config tunes a [Service].
type Config struct {
	// MinSegmentSeconds is the short-cue merge threshold.
	MinSegmentSeconds float64

	// FetchesPerMinute limits how often the cue source is called.
	// Zero disables throttling.
	FetchesPerMinute int

	// FetchBurst is the number of fetches allowed back to back.
	FetchBurst int
}

// Service loads decks and scores attempts. It holds no per-session
// state; every Load runs the pipeline afresh.
type Service struct {
	source   CueSource
	notifier Notifier
	limiter  *rate.Limiter
	opts     captions.Options
	logger   *slog.Logger
}

// NewService creates a practice service. notifier may be nil.
func NewService(source CueSource, notifier Notifier, cfg Config, logger *slog.Logger) *Service {
	s := &Service{
		source:   source,
		notifier: notifier,
		opts:     captions.Options{MinDuration: cfg.MinSegmentSeconds},
		logger:   logger,
	}
	if cfg.FetchesPerMinute > 0 {
		burst := max(1, cfg.FetchBurst)
		s.limiter = rate.NewLimiter(rate.Limit(float64(cfg.FetchesPerMinute)/60), burst)
	}
	return s
}

// Load fetches and normalizes captions for videoID.
func (s *Service) Load(ctx context.Context, videoID string) (*Deck, error) {
	id, err := media.ExtractVideoID(videoID)
	if err != nil {
		return nil, err
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, captions.NoCaptions("fetch throttled", err)
		}
	}

	s.logger.Info("fetching transcript", "video_id", id)

	res, err := s.source.FetchCues(ctx, id)
	if err != nil {
		s.logger.Warn("transcript fetch failed", "video_id", id, "error", err)
		return nil, err
	}

	out, err := captions.Normalize(res.Cues, s.opts)
	s.logger.Info("transcript normalized",
		"video_id", id,
		"fetched", out.Counts.Raw,
		"after_deduplication", out.Counts.Deduplicated,
		"after_merging_short", out.Counts.Merged,
		"after_removing_reveals", out.Counts.Cleaned,
	)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, Event{Type: EventSubtitlesLoaded, VideoID: id, Count: len(out.Segments)})

	return &Deck{
		VideoID:  id,
		Title:    res.Title,
		Segments: out.Segments,
		Count:    len(out.Segments),
	}, nil
}

// Check grades attempt against the segment at index.
func (s *Service) Check(ctx context.Context, deck *Deck, index int, attempt string) (scoring.Evaluation, error) {
	if index < 0 || index >= len(deck.Segments) {
		return scoring.Evaluation{}, fmt.Errorf("segment %d out of range (deck has %d)", index, len(deck.Segments))
	}
	ev := scoring.Evaluate(deck.Segments[index].Text, attempt)

	s.logger.Debug("attempt scored", "video_id", deck.VideoID, "index", index, "score", ev.Score)
	s.notify(ctx, Event{
		Type:    EventAttemptScored,
		VideoID: deck.VideoID,
		Attempt: &Attempt{Index: index, Score: ev.Score},
	})

	return ev, nil
}

func (s *Service) notify(ctx context.Context, ev Event) {
	if s.notifier == nil {
		return
	}
	ev.Time = time.Now().UTC()
	s.notifier.Notify(ctx, ev)
}
