// Package updatecheck compares the installed yt-dlp with its latest
// GitHub release. YouTube changes break old yt-dlp builds regularly, so
// an outdated binary is the usual cause of sudden fetch failures.
package updatecheck

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	gogithub "github.com/google/go-github/v69/github"
)

// Repository coordinates of yt-dlp.
const (
	Owner = "yt-dlp"
	Repo  = "yt-dlp"
)

// Status is the outcome of [Compare].
type Status string

const (
	StatusCurrent  Status = "current"
	StatusOutdated Status = "outdated"
	StatusUnknown  Status = "unknown"
)

// Release is the subset of a GitHub release that matters here.
type Release struct {
	Tag string `json:"tag"`
	URL string `json:"url"`
}

// Checker queries GitHub for yt-dlp releases.
type Checker struct {
	gh     *gogithub.Client
	logger *slog.Logger
}

// NewChecker creates a Checker. token is optional and only raises the
// API rate limit. A non-empty baseURL points the client at another API
// root, which tests use.
func NewChecker(httpClient *http.Client, token, baseURL string, logger *slog.Logger) (*Checker, error) {
	gh := gogithub.NewClient(httpClient)
	if token != "" {
		gh = gh.WithAuthToken(token)
	}
	if baseURL != "" {
		u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("updatecheck: parse base url: %w", err)
		}
		gh.BaseURL = u
	}
	return &Checker{gh: gh, logger: logger}, nil
}

// Latest returns the newest published yt-dlp release.
func (c *Checker) Latest(ctx context.Context) (*Release, error) {
	rel, resp, err := c.gh.Repositories.GetLatestRelease(ctx, Owner, Repo)
	if err != nil {
		return nil, fmt.Errorf("updatecheck: latest release: %w", err)
	}
	c.checkRateLimit(resp)
	return &Release{Tag: rel.GetTagName(), URL: rel.GetHTMLURL()}, nil
}

func (c *Checker) checkRateLimit(resp *gogithub.Response) {
	if resp == nil {
		return
	}
	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 10 {
		c.logger.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset", resp.Rate.Reset.Time,
		)
	}
}

// Compare reports whether installed is at least latest. Both are
// dotted numeric versions such as "2024.12.13"; a leading "v" and
// surrounding space are ignored. Anything unparseable is unknown.
func Compare(installed, latest string) Status {
	a, okA := parseVersion(installed)
	b, okB := parseVersion(latest)
	if !okA || !okB {
		return StatusUnknown
	}
	for i := 0; i < max(len(a), len(b)); i++ {
		var x, y int
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		switch {
		case x > y:
			return StatusCurrent
		case x < y:
			return StatusOutdated
		}
	}
	return StatusCurrent
}

func parseVersion(v string) ([]int, bool) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if v == "" {
		return nil, false
	}
	fields := strings.Split(v, ".")
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return nil, false
		}
		out = append(out, n)
	}
	return out, true
}
