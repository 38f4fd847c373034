// Package web provides the server-rendered dictation interface.
package web

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/nugget/dictation/internal/practice"
	"github.com/nugget/dictation/internal/scoring"
)

//go:embed intro.md
var introMarkdown []byte

//go:embed static/*
var staticFiles embed.FS

// Practice loads decks and grades attempts. [*practice.Service]
// satisfies it.
type Practice interface {
	Load(ctx context.Context, videoID string) (*practice.Deck, error)
	Check(ctx context.Context, deck *practice.Deck, index int, attempt string) (scoring.Evaluation, error)
}

// Config holds the dependencies of a [WebServer].
type Config struct {
	Practice  Practice
	PublicURL string
	Logger    *slog.Logger
}

// WebServer renders the HTML pages.
type WebServer struct {
	practice  Practice
	publicURL string
	intro     template.HTML
	templates map[string]*template.Template
	logger    *slog.Logger
}

// NewWebServer parses templates and renders the landing page intro.
// It panics on template errors so that startup fails fast.
func NewWebServer(cfg Config) *WebServer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WebServer{
		practice:  cfg.Practice,
		publicURL: cfg.PublicURL,
		intro:     renderMarkdown(introMarkdown),
		templates: loadTemplates(),
		logger:    logger,
	}
}

// RegisterRoutes adds the UI routes to mux.
func (s *WebServer) RegisterRoutes(mux *http.ServeMux) {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(subFS))))
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /practice", s.handlePracticeRedirect)
	mux.HandleFunc("GET /practice/{videoId}", s.handleDeck)
	mux.HandleFunc("POST /practice/{videoId}/{index}", s.handleAttempt)
}

// renderMarkdown converts embedded markdown to HTML. Raw HTML in the
// source is escaped by goldmark's default renderer.
func renderMarkdown(src []byte) template.HTML {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Typographer),
	)
	var buf bytes.Buffer
	if err := md.Convert(src, &buf); err != nil {
		panic(err)
	}
	return template.HTML(buf.String()) //nolint:gosec // embedded at build time
}
