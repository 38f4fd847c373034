package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const channelAtom = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns="http://www.w3.org/2005/Atom">
  <title>Test Channel</title>
  <entry>
    <id>yt:video:dQw4w9WgXcQ</id>
    <yt:videoId>dQw4w9WgXcQ</yt:videoId>
    <title>First Video</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=dQw4w9WgXcQ"/>
    <published>2026-02-20T12:00:00+00:00</published>
  </entry>
  <entry>
    <id>yt:video:9bZkp7q19f0</id>
    <title>No videoId element</title>
    <published>2026-02-18T08:00:00+00:00</published>
  </entry>
  <entry>
    <id>urn:other</id>
    <title>Link only</title>
    <link href="https://youtu.be/jNQXAC9IVRw"/>
  </entry>
  <entry>
    <id>urn:junk</id>
    <title>Not a video</title>
    <link href="https://example.com/post"/>
  </entry>
</feed>`

func TestParseChannelFeed(t *testing.T) {
	ch, err := parseChannelFeed([]byte(channelAtom))
	if err != nil {
		t.Fatalf("parseChannelFeed() error: %v", err)
	}
	if ch.Title != "Test Channel" {
		t.Errorf("Title = %q", ch.Title)
	}

	want := []string{"dQw4w9WgXcQ", "9bZkp7q19f0", "jNQXAC9IVRw"}
	if len(ch.Uploads) != len(want) {
		t.Fatalf("uploads = %+v, want %v", ch.Uploads, want)
	}
	for i, id := range want {
		if ch.Uploads[i].VideoID != id {
			t.Errorf("upload %d = %q, want %q", i, ch.Uploads[i].VideoID, id)
		}
	}
	if ch.Uploads[0].Published.IsZero() || ch.Uploads[0].Title != "First Video" {
		t.Errorf("upload 0 = %+v", ch.Uploads[0])
	}
}

func TestParseChannelFeed_Malformed(t *testing.T) {
	for _, data := range []string{"not xml", `<rss version="2.0"><channel/></rss>`} {
		if _, err := parseChannelFeed([]byte(data)); err == nil {
			t.Errorf("parseChannelFeed(%q) should fail", data)
		}
	}
}

func TestChannelUploads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feeds/videos.xml" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(channelAtom))
	}))
	defer srv.Close()

	ch, err := ChannelUploads(context.Background(), srv.Client(), srv.URL+"/feeds/videos.xml?channel_id=UCxyz")
	if err != nil {
		t.Fatalf("ChannelUploads() error: %v", err)
	}
	if len(ch.Uploads) != 3 {
		t.Errorf("uploads = %+v", ch.Uploads)
	}
}

func TestChannelUploads_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := ChannelUploads(context.Background(), srv.Client(), srv.URL+"/feeds/videos.xml")
	if err == nil || !strings.Contains(err.Error(), "HTTP 404") {
		t.Errorf("error = %v, want HTTP 404", err)
	}
}

func TestIsChannelRef(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"UCuAXFkgsw1L7xaCfnd5JJOw", true},
		{"https://www.youtube.com/channel/UCuAXFkgsw1L7xaCfnd5JJOw", true},
		{"https://www.youtube.com/@somehandle", true},
		{"https://www.youtube.com/feeds/videos.xml?channel_id=UCx", true},
		{"dQw4w9WgXcQ", false},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", false},
		{"https://example.com/@someone", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsChannelRef(tt.in); got != tt.want {
			t.Errorf("IsChannelRef(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestResolveChannelFeed(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"UCuAXFkgsw1L7xaCfnd5JJOw", "https://www.youtube.com/feeds/videos.xml?channel_id=UCuAXFkgsw1L7xaCfnd5JJOw"},
		{"https://www.youtube.com/channel/UCtest123abc/videos", "https://www.youtube.com/feeds/videos.xml?channel_id=UCtest123abc"},
		{"https://www.youtube.com/feeds/videos.xml?channel_id=UCx", "https://www.youtube.com/feeds/videos.xml?channel_id=UCx"},
	}
	for _, tt := range tests {
		got, err := resolveChannelFeed(context.Background(), http.DefaultClient, tt.in)
		if err != nil {
			t.Errorf("resolveChannelFeed(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("resolveChannelFeed(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, err := resolveChannelFeed(context.Background(), http.DefaultClient, "https://example.com/feed"); err == nil {
		t.Error("non-YouTube URL should be rejected")
	}
}

func TestChannelIDFromPage(t *testing.T) {
	canonical := `<html><head>
	<link rel="canonical" href="https://www.youtube.com/channel/UCabc123xyz">
	</head></html>`
	if got := channelIDFromPage(canonical); got != "UCabc123xyz" {
		t.Errorf("canonical = %q", got)
	}

	embedded := `<script>"channelId":"UCjson456def"</script>`
	if got := channelIDFromPage(embedded); got != "UCjson456def" {
		t.Errorf("embedded = %q", got)
	}

	if got := channelIDFromPage("<html></html>"); got != "" {
		t.Errorf("empty page = %q", got)
	}
}
