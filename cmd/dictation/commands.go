package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/atotto/clipboard"
	"golang.org/x/sync/errgroup"

	"github.com/nugget/dictation/internal/captions"
	"github.com/nugget/dictation/internal/httpkit"
	"github.com/nugget/dictation/internal/media"
	"github.com/nugget/dictation/internal/practice"
	"github.com/nugget/dictation/internal/scoring"
	"github.com/nugget/dictation/internal/updatecheck"
)

// readClipboard is swapped out in tests.
var readClipboard = clipboard.ReadAll

// githubAPIURL overrides the GitHub API endpoint used by doctor. Empty
// means api.github.com.
var githubAPIURL = ""

// runFetch prints the practice segments for one video. With no input
// the clipboard is read, so a copied YouTube URL can be used directly.
func runFetch(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt, input string) error {
	if input == "" {
		text, err := readClipboard()
		if err != nil {
			return fmt.Errorf("no video given and clipboard unavailable: %w", err)
		}
		input = strings.TrimSpace(text)
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(stderr, cfg)

	st, err := newStack(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	svc := practice.NewService(st.source, nil, practiceConfig(cfg), logger)
	deck, err := svc.Load(ctx, input)
	if err != nil {
		return err
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(deck)
	}

	if deck.Title != "" {
		fmt.Fprintf(stdout, "%s (%s)\n\n", deck.Title, deck.VideoID)
	}
	for _, seg := range deck.Segments {
		fmt.Fprintf(stdout, "[%s] %s\n", clock(seg.Start), seg.Text)
	}
	fmt.Fprintf(stdout, "\n%d segments\n", deck.Count)
	return nil
}

// clock formats seconds as MM:SS.s.
func clock(sec float64) string {
	m := int(sec) / 60
	return fmt.Sprintf("%02d:%04.1f", m, sec-float64(m*60))
}

// runPrefetch fetches and caches several videos in parallel. A channel
// reference expands to the channel's recent uploads. Every video is
// attempted; failures are reported per video and summarized in the
// returned error.
func runPrefetch(ctx context.Context, stdout, stderr io.Writer, configPath string, refs []string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(stderr, cfg)

	inputs, err := expandChannels(ctx, stdout, refs)
	if err != nil {
		return err
	}

	st, err := newStack(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	if st.store == nil {
		logger.Warn("cue cache disabled; prefetch only checks availability")
	}

	svc := practice.NewService(st.source, nil, practiceConfig(cfg), logger)

	type outcome struct {
		count int
		err   error
	}
	results := make([]outcome, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, cfg.Media.Concurrency))
	for i, in := range inputs {
		g.Go(func() error {
			deck, err := svc.Load(gctx, in)
			if err != nil {
				results[i] = outcome{err: err}
				return nil
			}
			results[i] = outcome{count: deck.Count}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i, in := range inputs {
		r := results[i]
		if r.err != nil {
			failed++
			reason := captions.ReasonOf(r.err)
			fmt.Fprintf(stdout, "✗ %s: %s (%v)\n", in, reason, r.err)
			continue
		}
		fmt.Fprintf(stdout, "✓ %s: %d segments\n", in, r.count)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d videos failed", failed, len(inputs))
	}
	return nil
}

// expandChannels replaces each channel reference in refs with the IDs
// of its listed uploads.
func expandChannels(ctx context.Context, stdout io.Writer, refs []string) ([]string, error) {
	var client *http.Client
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if !media.IsChannelRef(ref) {
			out = append(out, ref)
			continue
		}
		if client == nil {
			client = httpkit.NewClient()
		}
		ch, err := media.ChannelUploads(ctx, client, ref)
		if err != nil {
			return nil, fmt.Errorf("list channel %s: %w", ref, err)
		}
		fmt.Fprintf(stdout, "%s: %d uploads\n", orDash(ch.Title), len(ch.Uploads))
		for _, u := range ch.Uploads {
			out = append(out, u.VideoID)
		}
	}
	return out, nil
}

// runScore grades attempt against reference.
func runScore(stdout io.Writer, outputFmt, reference, attempt string) error {
	ev := scoring.Evaluate(reference, attempt)
	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ev)
	}

	fmt.Fprintf(stdout, "Score: %d\n", ev.Score)
	fmt.Fprintf(stdout, "  matched %d of %d words, %d extra\n", ev.Matched, ev.ReferenceWords, ev.Extra)
	if len(ev.Missing) > 0 {
		fmt.Fprintf(stdout, "  missing: %s\n", strings.Join(ev.Missing, ", "))
	}
	return nil
}

// doctorReport is the outcome of [runDoctor].
type doctorReport struct {
	ConfigPath    string             `json:"config_path,omitempty"`
	YtDlpPath     string             `json:"yt_dlp_path,omitempty"`
	YtDlpVersion  string             `json:"yt_dlp_version,omitempty"`
	LatestVersion string             `json:"latest_version,omitempty"`
	ReleaseURL    string             `json:"release_url,omitempty"`
	Status        updatecheck.Status `json:"status"`
	CacheEntries  *int               `json:"cache_entries,omitempty"`
	Problems      []string           `json:"problems,omitempty"`
}

// runDoctor checks that yt-dlp is installed and current. yt-dlp breaks
// whenever YouTube changes its player, so an outdated binary is the
// most common cause of no_captions_found.
func runDoctor(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(stderr, cfg)

	st, err := newStack(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	report := doctorReport{ConfigPath: cfgPath, YtDlpPath: st.client.YtDlpPath(), Status: updatecheck.StatusUnknown}

	if report.YtDlpPath == "" {
		report.Problems = append(report.Problems, "yt-dlp not found in PATH")
	} else if v, err := st.client.Version(ctx); err != nil {
		report.Problems = append(report.Problems, err.Error())
	} else {
		report.YtDlpVersion = v
	}

	checker, err := updatecheck.NewChecker(httpkit.NewClient(), cfg.Updates.GitHubToken, githubAPIURL, logger)
	if err != nil {
		return err
	}
	if rel, err := checker.Latest(ctx); err != nil {
		report.Problems = append(report.Problems, fmt.Sprintf("release check: %v", err))
	} else {
		report.LatestVersion = rel.Tag
		report.ReleaseURL = rel.URL
		if report.YtDlpVersion != "" {
			report.Status = updatecheck.Compare(report.YtDlpVersion, rel.Tag)
		}
	}

	if st.store != nil {
		if n, err := st.store.Count(); err != nil {
			report.Problems = append(report.Problems, fmt.Sprintf("cue cache: %v", err))
		} else {
			report.CacheEntries = &n
		}
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printDoctor(stdout, report)
	}

	if report.YtDlpVersion == "" {
		return errors.New("yt-dlp is not usable")
	}
	return nil
}

func printDoctor(w io.Writer, r doctorReport) {
	if r.ConfigPath != "" {
		fmt.Fprintf(w, "config:     %s\n", r.ConfigPath)
	} else {
		fmt.Fprintln(w, "config:     (defaults)")
	}
	fmt.Fprintf(w, "yt-dlp:     %s\n", orDash(r.YtDlpPath))
	fmt.Fprintf(w, "installed:  %s\n", orDash(r.YtDlpVersion))
	fmt.Fprintf(w, "latest:     %s\n", orDash(r.LatestVersion))
	fmt.Fprintf(w, "status:     %s\n", r.Status)
	if r.Status == updatecheck.StatusOutdated {
		fmt.Fprintf(w, "            run `yt-dlp -U` or see %s\n", r.ReleaseURL)
	}
	if r.CacheEntries != nil {
		fmt.Fprintf(w, "cache:      %d videos\n", *r.CacheEntries)
	}
	for _, p := range r.Problems {
		fmt.Fprintf(w, "  ! %s\n", p)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
