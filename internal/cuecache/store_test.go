package cuecache

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nugget/dictation/internal/captions"
	"github.com/nugget/dictation/internal/media"

	_ "modernc.org/sqlite"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func sampleResult(id string) *media.Result {
	return &media.Result{
		VideoID:  id,
		Title:    "Sample",
		Channel:  "Channel",
		Duration: 120,
		Cues: []captions.RawCue{
			{Text: "hello", Start: 0, Duration: 1.25},
			{Text: "world", Start: 1.25, Duration: 2},
		},
	}
}

func TestGetMissing(t *testing.T) {
	s := testStore(t)

	got, err := s.Get("dQw4w9WgXcQ", 0)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got != nil {
		t.Errorf("Get() = %+v, want nil for missing entry", got)
	}
}

func TestPutAndGet(t *testing.T) {
	s := testStore(t)

	if err := s.Put(sampleResult("dQw4w9WgXcQ")); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	got, err := s.Get("dQw4w9WgXcQ", time.Hour)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got == nil {
		t.Fatal("Get() = nil, want cached entry")
	}
	want := sampleResult("dQw4w9WgXcQ")
	if got.Title != want.Title || got.Channel != want.Channel || got.Duration != want.Duration {
		t.Errorf("metadata = %+v, want %+v", got, want)
	}
	if len(got.Cues) != 2 || got.Cues[1] != want.Cues[1] {
		t.Errorf("cues = %+v, want %+v", got.Cues, want.Cues)
	}
}

func TestPutUpsert(t *testing.T) {
	s := testStore(t)

	first := sampleResult("dQw4w9WgXcQ")
	if err := s.Put(first); err != nil {
		t.Fatalf("Put(first) error: %v", err)
	}
	second := sampleResult("dQw4w9WgXcQ")
	second.Title = "Renamed"
	second.Cues = second.Cues[:1]
	if err := s.Put(second); err != nil {
		t.Fatalf("Put(second) error: %v", err)
	}

	got, err := s.Get("dQw4w9WgXcQ", 0)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Title != "Renamed" || len(got.Cues) != 1 {
		t.Errorf("Get() = %+v, want updated entry", got)
	}
	if n, _ := s.Count(); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestGetExpired(t *testing.T) {
	s := testStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if err := s.Put(sampleResult("dQw4w9WgXcQ")); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	now = now.Add(2 * time.Hour)

	if got, _ := s.Get("dQw4w9WgXcQ", time.Hour); got != nil {
		t.Error("Get() returned an entry older than maxAge")
	}
	if got, _ := s.Get("dQw4w9WgXcQ", 3*time.Hour); got == nil {
		t.Error("Get() missed an entry within maxAge")
	}
	if got, _ := s.Get("dQw4w9WgXcQ", 0); got == nil {
		t.Error("Get() with zero maxAge should ignore age")
	}
}

func TestDeleteAndPurge(t *testing.T) {
	s := testStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	for _, id := range []string{"aaaaaaaaaaa", "bbbbbbbbbbb"} {
		if err := s.Put(sampleResult(id)); err != nil {
			t.Fatalf("Put(%s) error: %v", id, err)
		}
	}
	now = now.Add(48 * time.Hour)
	if err := s.Put(sampleResult("ccccccccccc")); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	if err := s.Delete("aaaaaaaaaaa"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if err := s.Delete("missing0000"); err != nil {
		t.Errorf("Delete(missing) error: %v", err)
	}

	purged, err := s.Purge(24 * time.Hour)
	if err != nil {
		t.Fatalf("Purge() error: %v", err)
	}
	if purged != 1 {
		t.Errorf("Purge() = %d, want 1", purged)
	}
	if n, _ := s.Count(); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestOpen_FileBacked(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cues.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open(%q): %v", dbPath, err)
	}
	if err := s.Put(sampleResult("dQw4w9WgXcQ")); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	s.Close()

	reopened, err := Open(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { reopened.Close() })

	if got, _ := reopened.Get("dQw4w9WgXcQ", 0); got == nil {
		t.Error("entry did not survive reopen")
	}
}

type countingFetcher struct {
	calls atomic.Int32
	err   error
}

func (f *countingFetcher) FetchCues(_ context.Context, id string) (*media.Result, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return sampleResult(id), nil
}

func TestSource_MissThenHit(t *testing.T) {
	next := &countingFetcher{}
	src := NewSource(testStore(t), next, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))

	for i := 0; i < 3; i++ {
		res, err := src.FetchCues(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
		if err != nil {
			t.Fatalf("FetchCues() error: %v", err)
		}
		if res.VideoID != "dQw4w9WgXcQ" || len(res.Cues) != 2 {
			t.Errorf("FetchCues() = %+v", res)
		}
	}
	if got := next.calls.Load(); got != 1 {
		t.Errorf("live fetches = %d, want 1", got)
	}
}

func TestSource_ErrorsNotCached(t *testing.T) {
	next := &countingFetcher{err: captions.NoCaptions("yt-dlp failed", errors.New("boom"))}
	src := NewSource(testStore(t), next, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))

	for i := 0; i < 2; i++ {
		if _, err := src.FetchCues(context.Background(), "dQw4w9WgXcQ"); captions.ReasonOf(err) != captions.ReasonNoCaptions {
			t.Fatalf("FetchCues() error = %v", err)
		}
	}
	if got := next.calls.Load(); got != 2 {
		t.Errorf("live fetches = %d, want 2", got)
	}
}

func TestSource_InvalidID(t *testing.T) {
	next := &countingFetcher{}
	src := NewSource(testStore(t), next, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if _, err := src.FetchCues(context.Background(), ""); captions.ReasonOf(err) != captions.ReasonMissingID {
		t.Errorf("error = %v, want missing_identifier", err)
	}
	if next.calls.Load() != 0 {
		t.Error("live source called for missing ID")
	}
}
