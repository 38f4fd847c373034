// Package media fetches caption tracks via yt-dlp.
//
// The [Client] shells out to yt-dlp for one video at a time, bounded by
// a timeout and an output ceiling, and parses the downloaded WebVTT
// track into raw cues with [ParseVTT]. Every per-request artifact lives
// in its own temporary directory that is removed before the call
// returns.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/dictation/internal/captions"
)

const (
	// DefaultTimeout bounds a single yt-dlp invocation.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxOutputBytes caps both the captured process output and
	// the subtitle file read from disk.
	DefaultMaxOutputBytes = 10_000_000

	// maxStderrDetail limits how much of yt-dlp's stderr is carried in
	// an error.
	maxStderrDetail = 500

	// waitDelay is how long to wait for output pipes to close after
	// the process is killed.
	waitDelay = 2 * time.Second
)

// Config holds settings for the caption client.
type Config struct {
	// YtDlpPath is the path to the yt-dlp binary. If empty, the binary
	// is located via exec.LookPath.
	YtDlpPath string

	// CookiesFile is an optional path to a Netscape-format cookie file
	// for accessing auth-required content.
	CookiesFile string

	// Language is the subtitle language code (default "en").
	Language string

	// Timeout bounds each yt-dlp run. Default: 30s.
	Timeout time.Duration

	// MaxOutputBytes caps process output and subtitle file size.
	// Default: 10 MB.
	MaxOutputBytes int64

	// TempDir is the parent for per-request work directories. Empty
	// means the system default.
	TempDir string
}

// Client retrieves caption tracks.
type Client struct {
	cfg    Config
	logger *slog.Logger
}

// Result holds the fetched cues and associated metadata.
type Result struct {
	VideoID  string            `json:"video_id"`
	Title    string            `json:"title,omitempty"`
	Channel  string            `json:"channel,omitempty"`
	Duration float64           `json:"duration,omitempty"`
	Cues     []captions.RawCue `json:"cues"`
}

// New creates a caption client. The yt-dlp binary path is resolved via
// Config.YtDlpPath or exec.LookPath.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = DefaultMaxOutputBytes
	}

	if cfg.YtDlpPath == "" {
		if p, err := exec.LookPath("yt-dlp"); err == nil {
			cfg.YtDlpPath = p
		}
	}

	return &Client{cfg: cfg, logger: logger}
}

// YtDlpPath returns the resolved yt-dlp binary path, or "" when none
// was found.
func (c *Client) YtDlpPath() string {
	return c.cfg.YtDlpPath
}

// ytdlpJSON is the subset of yt-dlp --print-json output we parse.
type ytdlpJSON struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Channel  string  `json:"channel"`
	Uploader string  `json:"uploader"`
	Duration float64 `json:"duration"`
}

// FetchCues downloads the caption track for videoID and parses it.
// The identifier is validated before any process is started. Every
// failure after validation is reported as a [captions.ReasonNoCaptions]
// error; nothing is retried.
func (c *Client) FetchCues(ctx context.Context, videoID string) (*Result, error) {
	id, err := ExtractVideoID(videoID)
	if err != nil {
		return nil, err
	}
	if c.cfg.YtDlpPath == "" {
		return nil, captions.NoCaptions("yt-dlp not found (install yt-dlp or set media.yt_dlp_path)", nil)
	}

	tmpDir, err := os.MkdirTemp(c.cfg.TempDir, "dictation-"+uuid.NewString()+"-*")
	if err != nil {
		return nil, captions.NoCaptions("create work directory", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			c.logger.Warn("failed to remove work directory", "dir", tmpDir, "error", err)
		}
	}()

	meta, err := c.runYtDlp(ctx, id, tmpDir)
	if err != nil {
		return nil, captions.NoCaptions("yt-dlp failed", err)
	}

	raw, err := c.readSubtitles(tmpDir, id)
	if err != nil {
		return nil, captions.NoCaptions("no English subtitles found for this video", err)
	}

	cues := ParseVTT(raw)
	if len(cues) == 0 {
		return nil, captions.NoCaptions("subtitle track contained no cues", nil)
	}

	c.logger.Debug("caption track parsed", "video_id", id, "cues", len(cues), "bytes", len(raw))

	return &Result{
		VideoID:  id,
		Title:    meta.Title,
		Channel:  firstNonEmpty(meta.Channel, meta.Uploader),
		Duration: meta.Duration,
		Cues:     cues,
	}, nil
}

// Version reports the installed yt-dlp version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	if c.cfg.YtDlpPath == "" {
		return "", fmt.Errorf("yt-dlp not found")
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, c.cfg.YtDlpPath, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("yt-dlp --version: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// runYtDlp executes yt-dlp and returns parsed metadata. Output beyond
// MaxOutputBytes aborts the process.
func (c *Client) runYtDlp(ctx context.Context, id, tmpDir string) (*ytdlpJSON, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	args := []string{
		"--write-sub",
		"--write-auto-sub",
		"--sub-lang", c.cfg.Language,
		"--sub-format", "vtt",
		"--skip-download",
		"--print-json",
		"--no-warnings",
		"-o", filepath.Join(tmpDir, "%(id)s"),
		WatchURL(id),
	}

	if c.cfg.CookiesFile != "" {
		args = append([]string{"--cookies", c.cfg.CookiesFile}, args...)
	}

	c.logger.Info("running yt-dlp",
		"video_id", id,
		"language", c.cfg.Language,
		"timeout", c.cfg.Timeout,
	)

	cmd := exec.CommandContext(ctx, c.cfg.YtDlpPath, args...)
	// yt-dlp may leave helper processes holding the pipes after a kill.
	cmd.WaitDelay = waitDelay

	stdout := &cappedBuffer{limit: c.cfg.MaxOutputBytes, onExceed: cancel}
	stderr := &cappedBuffer{limit: c.cfg.MaxOutputBytes, onExceed: cancel}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	runErr := cmd.Run()

	switch {
	case stdout.exceeded || stderr.exceeded:
		return nil, fmt.Errorf("output exceeded %d bytes", c.cfg.MaxOutputBytes)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return nil, fmt.Errorf("timed out after %s", c.cfg.Timeout)
	case runErr != nil:
		errOutput := stderr.String()
		if len(errOutput) > maxStderrDetail {
			errOutput = errOutput[:maxStderrDetail]
		}
		return nil, fmt.Errorf("%w: %s", runErr, strings.TrimSpace(errOutput))
	}

	c.logger.Debug("yt-dlp finished", "video_id", id, "elapsed", time.Since(start))

	var meta ytdlpJSON
	if err := json.Unmarshal(firstLine(stdout.Bytes()), &meta); err != nil {
		c.logger.Warn("unparseable yt-dlp metadata", "video_id", id, "error", err)
	}
	return &meta, nil
}

// readSubtitles returns the content of the first .vtt file in tmpDir.
// yt-dlp writes manual subtitles in preference to auto-generated ones
// when both exist.
func (c *Client) readSubtitles(tmpDir, videoID string) (string, error) {
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return "", fmt.Errorf("read work directory: %w", err)
	}

	var vttFiles []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".vtt") {
			vttFiles = append(vttFiles, filepath.Join(tmpDir, e.Name()))
		}
	}
	if len(vttFiles) == 0 {
		return "", fmt.Errorf("no .vtt files found for %s", videoID)
	}
	sort.Strings(vttFiles)

	f, err := os.Open(vttFiles[0])
	if err != nil {
		return "", fmt.Errorf("open subtitle file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, c.cfg.MaxOutputBytes+1))
	if err != nil {
		return "", fmt.Errorf("read subtitle file: %w", err)
	}
	if int64(len(data)) > c.cfg.MaxOutputBytes {
		return "", fmt.Errorf("subtitle file exceeds %d bytes", c.cfg.MaxOutputBytes)
	}
	return string(data), nil
}

// cappedBuffer collects output up to limit bytes. Once the limit is
// crossed it stops storing, records the overflow, and calls onExceed
// once so the producer can be stopped.
type cappedBuffer struct {
	buf      bytes.Buffer
	limit    int64
	exceeded bool
	onExceed func()
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.exceeded {
		return len(p), nil
	}
	if int64(b.buf.Len()+len(p)) > b.limit {
		b.exceeded = true
		if b.onExceed != nil {
			b.onExceed()
		}
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) Bytes() []byte  { return b.buf.Bytes() }
func (b *cappedBuffer) String() string { return b.buf.String() }

// firstLine returns data up to the first newline.
func firstLine(data []byte) []byte {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return data[:i]
	}
	return data
}

// firstNonEmpty returns the first non-empty string from the arguments.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
