package media

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/nugget/dictation/internal/captions"
)

// videoIDRe matches a bare YouTube video identifier.
var videoIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// pathIDPrefixes are the youtube.com path forms that carry the video ID
// as their next segment.
var pathIDPrefixes = []string{"/embed/", "/shorts/", "/live/", "/v/"}

// ExtractVideoID returns the 11-character video ID from a YouTube URL
// (watch, youtu.be, embed, shorts, live) or from a bare ID. Empty input
// is a [captions.ReasonMissingID] error; anything unrecognised is a
// [captions.ReasonInvalidID] error.
func ExtractVideoID(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", captions.MissingID()
	}
	if videoIDRe.MatchString(input) {
		return input, nil
	}

	raw := input
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "", captions.InvalidID(input)
	}

	host := strings.ToLower(u.Hostname())
	for _, p := range []string{"www.", "m.", "music."} {
		host = strings.TrimPrefix(host, p)
	}

	var id string
	switch host {
	case "youtu.be":
		id = firstSegment(u.Path)
	case "youtube.com", "youtube-nocookie.com":
		if u.Path == "/watch" {
			id = u.Query().Get("v")
			break
		}
		for _, prefix := range pathIDPrefixes {
			if rest, ok := strings.CutPrefix(u.Path, prefix); ok {
				id = firstSegment(rest)
				break
			}
		}
	}

	if !videoIDRe.MatchString(id) {
		return "", captions.InvalidID(input)
	}
	return id, nil
}

// WatchURL returns the canonical watch page URL for a video ID.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + url.QueryEscape(id)
}

// firstSegment returns the first non-empty path segment of p.
func firstSegment(p string) string {
	p = strings.TrimPrefix(p, "/")
	seg, _, _ := strings.Cut(p, "/")
	return seg
}
