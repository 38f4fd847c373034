package web

import (
	"embed"
	"fmt"
	"html/template"
	"math"
	"net/http"
	"strings"

	"github.com/nugget/dictation/internal/captions"
)

//go:embed templates/*.html
var templateFiles embed.FS

// templateFuncs provides helper functions available in all templates.
var templateFuncs = template.FuncMap{
	"timestamp":    formatTimestamp,
	"segmentEmbed": segmentEmbed,
	"scoreClass":   scoreClass,
	"join":         strings.Join,
}

// loadTemplates parses the layout and each page template. Each page
// template is a clone of the layout with the page-specific blocks
// overridden. Panics on syntax errors so that startup fails fast.
func loadTemplates() map[string]*template.Template {
	layout := template.Must(
		template.New("layout.html").Funcs(templateFuncs).ParseFS(templateFiles, "templates/layout.html"),
	)

	pages := []string{"index.html", "deck.html", "result.html", "error.html"}
	result := make(map[string]*template.Template, len(pages))

	for _, page := range pages {
		t := template.Must(layout.Clone())
		template.Must(t.ParseFS(templateFiles, "templates/"+page))
		result[page] = t
	}

	return result
}

// render executes a named template with the given status. If the
// request has the HX-Request header (htmx partial), only the "content"
// block is rendered.
func (s *WebServer) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	t, ok := s.templates[name]
	if !ok {
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	block := "layout.html"
	if r.Header.Get("HX-Request") == "true" {
		block = "content"
	}

	if err := t.ExecuteTemplate(w, block, data); err != nil {
		s.logger.Error("template render failed", "template", name, "block", block, "error", err)
	}
}

// segmentEmbed returns a player URL that plays only seg. The embed
// player takes whole seconds.
func segmentEmbed(base string, seg captions.Segment) string {
	start := int(math.Floor(seg.Start))
	end := int(math.Ceil(seg.End()))
	if end <= start {
		end = start + 1
	}
	return fmt.Sprintf("%s?start=%d&end=%d&rel=0", base, start, end)
}

// scoreClass buckets a score for styling.
func scoreClass(score int) string {
	switch {
	case score >= 90:
		return "good"
	case score >= 60:
		return "fair"
	default:
		return "poor"
	}
}
