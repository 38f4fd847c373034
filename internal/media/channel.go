package media

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/nugget/dictation/internal/httpkit"
)

// maxFeedBytes caps channel page and feed downloads.
const maxFeedBytes = 1 << 20

// Channel is a YouTube channel's recent uploads, newest first, as
// listed by its Atom feed.
type Channel struct {
	Title   string   `json:"title"`
	Uploads []Upload `json:"uploads"`
}

// Upload is one video in a channel feed.
type Upload struct {
	VideoID   string    `json:"video_id"`
	Title     string    `json:"title"`
	Published time.Time `json:"published"`
}

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string     `xml:"id"`
	VideoID   string     `xml:"http://www.youtube.com/xml/schemas/2015 videoId"`
	Title     string     `xml:"title"`
	Links     []atomLink `xml:"link"`
	Published string     `xml:"published"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

var (
	// channelIDRe matches a bare channel ID.
	channelIDRe = regexp.MustCompile(`^UC[A-Za-z0-9_-]{22}$`)

	// ytChannelIDRe matches channel IDs in page HTML.
	ytChannelIDRe = regexp.MustCompile(`"channelId"\s*:\s*"(UC[a-zA-Z0-9_-]+)"`)

	// ytCanonicalRe matches canonical URLs with channel IDs.
	ytCanonicalRe = regexp.MustCompile(`<link\s+rel="canonical"\s+href="https://www\.youtube\.com/channel/(UC[a-zA-Z0-9_-]+)"`)
)

// ChannelFeedURL returns the uploads feed for a channel ID.
func ChannelFeedURL(channelID string) string {
	return "https://www.youtube.com/feeds/videos.xml?channel_id=" + url.QueryEscape(channelID)
}

// IsChannelRef reports whether input names a channel rather than a
// video: a bare UC… ID, a /channel/ or /@handle URL, or a feed URL.
func IsChannelRef(input string) bool {
	input = strings.TrimSpace(input)
	if channelIDRe.MatchString(input) || strings.Contains(input, "/feeds/videos.xml") {
		return true
	}
	u, err := url.Parse(input)
	if err != nil || !isYouTubeHost(u.Hostname()) {
		return false
	}
	return strings.HasPrefix(u.Path, "/channel/UC") || strings.HasPrefix(u.Path, "/@")
}

// ChannelUploads resolves ref to a channel feed and lists its uploads.
// Entries whose video ID cannot be determined are skipped.
func ChannelUploads(ctx context.Context, httpClient *http.Client, ref string) (*Channel, error) {
	feedURL, err := resolveChannelFeed(ctx, httpClient, strings.TrimSpace(ref))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/atom+xml, application/xml, text/xml")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch channel feed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, maxFeedBytes)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("channel feed returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read channel feed: %w", err)
	}
	return parseChannelFeed(body)
}

func parseChannelFeed(data []byte) (*Channel, error) {
	var af atomFeed
	if err := xml.Unmarshal(data, &af); err != nil || af.XMLName.Local != "feed" {
		return nil, fmt.Errorf("not an Atom feed")
	}

	ch := &Channel{Title: af.Title, Uploads: []Upload{}}
	for _, e := range af.Entries {
		id := entryVideoID(e)
		if id == "" {
			continue
		}
		pub, _ := time.Parse(time.RFC3339, e.Published)
		ch.Uploads = append(ch.Uploads, Upload{VideoID: id, Title: e.Title, Published: pub})
	}
	return ch, nil
}

// entryVideoID takes the yt:videoId element, then the yt:video:ID entry
// ID, then the alternate link.
func entryVideoID(e atomEntry) string {
	for _, cand := range []string{e.VideoID, strings.TrimPrefix(e.ID, "yt:video:")} {
		if videoIDRe.MatchString(cand) {
			return cand
		}
	}
	for _, l := range e.Links {
		if l.Rel != "" && l.Rel != "alternate" {
			continue
		}
		if id, err := ExtractVideoID(l.Href); err == nil {
			return id
		}
	}
	return ""
}

// isYouTubeHost reports whether host is a known YouTube hostname.
func isYouTubeHost(host string) bool {
	switch strings.ToLower(host) {
	case "youtube.com", "www.youtube.com", "m.youtube.com":
		return true
	}
	return false
}

// resolveChannelFeed converts a channel reference to its Atom feed URL.
// @handle URLs require fetching the channel page to find the ID.
func resolveChannelFeed(ctx context.Context, httpClient *http.Client, ref string) (string, error) {
	if strings.Contains(ref, "/feeds/videos.xml") {
		return ref, nil
	}
	if channelIDRe.MatchString(ref) {
		return ChannelFeedURL(ref), nil
	}

	parsed, err := url.Parse(ref)
	if err != nil || !isYouTubeHost(parsed.Hostname()) {
		return "", fmt.Errorf("%q is not a YouTube channel", ref)
	}

	if rest, ok := strings.CutPrefix(parsed.Path, "/channel/"); ok {
		return ChannelFeedURL(firstSegment(rest)), nil
	}
	if !strings.HasPrefix(parsed.Path, "/@") {
		return "", fmt.Errorf("%q is not a YouTube channel", ref)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch channel page: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, maxFeedBytes)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("channel page returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return "", fmt.Errorf("read channel page: %w", err)
	}

	if id := channelIDFromPage(string(body)); id != "" {
		return ChannelFeedURL(id), nil
	}
	return "", fmt.Errorf("could not extract channel ID from %s; pass the channel ID instead", ref)
}

// channelIDFromPage prefers the canonical link over embedded JSON.
func channelIDFromPage(html string) string {
	if m := ytCanonicalRe.FindStringSubmatch(html); len(m) == 2 {
		return m[1]
	}
	if m := ytChannelIDRe.FindStringSubmatch(html); len(m) == 2 {
		return m[1]
	}
	return ""
}
