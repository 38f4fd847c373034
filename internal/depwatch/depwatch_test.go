package depwatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testBackoff returns a fast schedule for tests.
func testBackoff() Backoff {
	return Backoff{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		MaxRetries:   5,
		PollInterval: 5 * time.Millisecond,
		ProbeTimeout: 100 * time.Millisecond,
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDefaultBackoff(t *testing.T) {
	b := Backoff{}.withDefaults()
	if b != DefaultBackoff() {
		t.Errorf("zero Backoff with defaults = %+v, want %+v", b, DefaultBackoff())
	}

	custom := Backoff{MaxRetries: 2}.withDefaults()
	if custom.MaxRetries != 2 || custom.PollInterval != DefaultBackoff().PollInterval {
		t.Errorf("partial Backoff = %+v", custom)
	}
}

func TestWatcher_ImmediateSuccess(t *testing.T) {
	t.Parallel()
	m := NewManager(testLogger())
	w := m.Watch(context.Background(), "yt-dlp", func(context.Context) error { return nil }, testBackoff())
	defer w.Stop()

	waitFor(t, "ready", w.IsReady)
	if s := w.Status(); s.Name != "yt-dlp" || s.LastError != "" || s.LastCheck.IsZero() {
		t.Errorf("status = %+v", s)
	}
}

func TestWatcher_BackoffThenSuccess(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	probe := func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("not yet")
		}
		return nil
	}

	m := NewManager(testLogger())
	w := m.Watch(context.Background(), "flaky", probe, testBackoff())
	defer w.Stop()

	waitFor(t, "ready after retries", w.IsReady)
	if calls.Load() < 3 {
		t.Errorf("probe calls = %d, want >= 3", calls.Load())
	}
}

func TestWatcher_GoesDownAndRecovers(t *testing.T) {
	t.Parallel()
	var failing atomic.Bool
	probe := func(context.Context) error {
		if failing.Load() {
			return errors.New("yt-dlp: exit status 1")
		}
		return nil
	}

	m := NewManager(testLogger())
	w := m.Watch(context.Background(), "yt-dlp", probe, testBackoff())
	defer w.Stop()

	waitFor(t, "initial ready", w.IsReady)

	failing.Store(true)
	waitFor(t, "down", func() bool { return !w.IsReady() })
	if s := w.Status(); s.LastError != "yt-dlp: exit status 1" {
		t.Errorf("LastError = %q", s.LastError)
	}

	failing.Store(false)
	waitFor(t, "recovered", w.IsReady)
}

func TestWatcher_ProbeTimeout(t *testing.T) {
	t.Parallel()
	probe := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	b := testBackoff()
	b.ProbeTimeout = 5 * time.Millisecond
	b.MaxRetries = 1

	m := NewManager(testLogger())
	w := m.Watch(context.Background(), "hang", probe, b)
	defer w.Stop()

	waitFor(t, "first check", func() bool { return !w.Status().LastCheck.IsZero() })
	if w.IsReady() {
		t.Error("hanging probe reported ready")
	}
}

func TestWatcher_ContextCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(testLogger())
	w := m.Watch(ctx, "x", func(context.Context) error { return errors.New("down") }, testBackoff())

	cancel()
	select {
	case <-w.done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not exit after cancellation")
	}
}

func TestManager_StatusAndStop(t *testing.T) {
	t.Parallel()
	m := NewManager(testLogger())
	ctx := context.Background()
	m.Watch(ctx, "yt-dlp-release", func(context.Context) error { return errors.New("outdated") }, testBackoff())
	m.Watch(ctx, "yt-dlp", func(context.Context) error { return nil }, testBackoff())

	waitFor(t, "both checked", func() bool {
		for _, s := range m.Status() {
			if s.LastCheck.IsZero() {
				return false
			}
		}
		return len(m.Status()) == 2
	})

	got := m.Status()
	if got[0].Name != "yt-dlp" || got[1].Name != "yt-dlp-release" {
		t.Errorf("status not sorted by name: %+v", got)
	}
	m.Stop()
}

func TestManager_NilStatus(t *testing.T) {
	var m *Manager
	if got := m.Status(); got != nil {
		t.Errorf("nil Manager Status() = %v", got)
	}
}

func TestWatch_PanicsWithoutProbe(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Watch with nil probe did not panic")
		}
	}()
	NewManager(testLogger()).Watch(context.Background(), "x", nil, Backoff{})
}
