// Package cuecache keeps raw caption cues per video in SQLite so that
// repeat practice sessions do not re-run yt-dlp. Only the source's raw
// cues are cached; normalization always runs again on the way out, so
// changes to the pipeline apply to cached videos too.
package cuecache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nugget/dictation/internal/captions"
	"github.com/nugget/dictation/internal/media"

	_ "github.com/mattn/go-sqlite3"
)

// Store is a cue cache backed by SQLite. All public methods are safe for
// concurrent use (SQLite serializes writes).
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates a cache at the given database path using the cgo SQLite
// driver in WAL mode with a busy timeout, so concurrent prefetch writes
// wait instead of failing. The schema is created automatically on first
// use.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore wraps an already-open database. The caller keeps ownership
// of db unless the store was created by [Open].
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cue_cache (
		video_id   TEXT PRIMARY KEY,
		title      TEXT NOT NULL DEFAULT '',
		channel    TEXT NOT NULL DEFAULT '',
		duration   REAL NOT NULL DEFAULT 0,
		cues_json  TEXT NOT NULL,
		fetched_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get returns the cached result for videoID. A missing entry, or one
// older than maxAge when maxAge is positive, returns nil and a nil
// error.
func (s *Store) Get(videoID string, maxAge time.Duration) (*media.Result, error) {
	var (
		res       media.Result
		cuesJSON  string
		fetchedAt string
	)
	err := s.db.QueryRow(
		`SELECT video_id, title, channel, duration, cues_json, fetched_at
		 FROM cue_cache WHERE video_id = ?`,
		videoID,
	).Scan(&res.VideoID, &res.Title, &res.Channel, &res.Duration, &cuesJSON, &fetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", videoID, err)
	}

	if maxAge > 0 {
		ts, err := time.Parse(time.RFC3339, fetchedAt)
		if err != nil || s.now().Sub(ts) > maxAge {
			return nil, nil
		}
	}

	var cues []captions.RawCue
	if err := json.Unmarshal([]byte(cuesJSON), &cues); err != nil {
		return nil, fmt.Errorf("decode cues for %s: %w", videoID, err)
	}
	res.Cues = cues
	return &res, nil
}

// Put upserts a fetched result. Existing entries are overwritten and
// the fetched_at timestamp is refreshed.
func (s *Store) Put(res *media.Result) error {
	cuesJSON, err := json.Marshal(res.Cues)
	if err != nil {
		return fmt.Errorf("encode cues for %s: %w", res.VideoID, err)
	}

	_, err = s.db.Exec(
		`INSERT INTO cue_cache (video_id, title, channel, duration, cues_json, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (video_id) DO UPDATE
		 SET title = excluded.title, channel = excluded.channel,
		     duration = excluded.duration, cues_json = excluded.cues_json,
		     fetched_at = excluded.fetched_at`,
		res.VideoID, res.Title, res.Channel, res.Duration, string(cuesJSON),
		s.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("put %s: %w", res.VideoID, err)
	}
	return nil
}

// Delete removes a cached entry. No error is returned if the entry does
// not exist.
func (s *Store) Delete(videoID string) error {
	if _, err := s.db.Exec(`DELETE FROM cue_cache WHERE video_id = ?`, videoID); err != nil {
		return fmt.Errorf("delete %s: %w", videoID, err)
	}
	return nil
}

// Purge removes every entry fetched more than olderThan ago and reports
// how many were deleted.
func (s *Store) Purge(olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan).UTC().Format(time.RFC3339)
	result, err := s.db.Exec(`DELETE FROM cue_cache WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	return result.RowsAffected()
}

// Count returns the number of cached videos.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM cue_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}
