package web

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nugget/dictation/internal/buildinfo"
	"github.com/nugget/dictation/internal/captions"
	"github.com/nugget/dictation/internal/media"
	"github.com/nugget/dictation/internal/practice"
	"github.com/nugget/dictation/internal/scoring"
)

// IndexData is the template context for the landing page.
type IndexData struct {
	Version string
	Intro   template.HTML
}

// DeckData is the template context for the practice page.
type DeckData struct {
	Version   string
	Deck      *practice.Deck
	ShareURL  string
	EmbedBase string
}

// ResultData is the template context for a graded attempt.
type ResultData struct {
	Version    string
	VideoID    string
	Segment    captions.Segment
	Attempt    string
	Evaluation scoring.Evaluation
	Next       int
	HasNext    bool
}

// ErrorData is the template context for the error page.
type ErrorData struct {
	Version string
	Status  int
	Reason  captions.Reason
	Message string
	Details string
}

func (s *WebServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "index.html", IndexData{
		Version: buildinfo.Version,
		Intro:   s.intro,
	})
}

// handlePracticeRedirect turns a pasted URL from the landing form into
// the canonical practice path.
func (s *WebServer) handlePracticeRedirect(w http.ResponseWriter, r *http.Request) {
	id, err := media.ExtractVideoID(r.URL.Query().Get("url"))
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, "/practice/"+url.PathEscape(id), http.StatusSeeOther)
}

func (s *WebServer) handleDeck(w http.ResponseWriter, r *http.Request) {
	deck, err := s.practice.Load(r.Context(), r.PathValue("videoId"))
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	s.render(w, r, http.StatusOK, "deck.html", DeckData{
		Version:   buildinfo.Version,
		Deck:      deck,
		ShareURL:  s.publicURL + "/practice/" + deck.VideoID,
		EmbedBase: "https://www.youtube-nocookie.com/embed/" + url.PathEscape(deck.VideoID),
	})
}

// handleAttempt grades the submitted form against one segment. The deck
// is reloaded per request; the cue cache keeps that cheap.
func (s *WebServer) handleAttempt(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		s.renderStatus(w, r, http.StatusBadRequest, "", "Invalid segment index", err.Error())
		return
	}

	deck, err := s.practice.Load(r.Context(), r.PathValue("videoId"))
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	attempt := r.PostFormValue("attempt")
	ev, err := s.practice.Check(r.Context(), deck, index, attempt)
	if err != nil {
		s.renderStatus(w, r, http.StatusBadRequest, "", "Invalid segment index", err.Error())
		return
	}

	s.render(w, r, http.StatusOK, "result.html", ResultData{
		Version:    buildinfo.Version,
		VideoID:    deck.VideoID,
		Segment:    deck.Segments[index],
		Attempt:    attempt,
		Evaluation: ev,
		Next:       index + 1,
		HasNext:    index+1 < deck.Count,
	})
}

// renderError maps err to a status and renders the error page.
func (s *WebServer) renderError(w http.ResponseWriter, r *http.Request, err error) {
	var ce *captions.Error
	if !errors.As(err, &ce) {
		s.logger.Error("practice page failed", "path", r.URL.Path, "error", err)
		s.renderStatus(w, r, http.StatusInternalServerError, "", "Something went wrong", err.Error())
		return
	}

	switch ce.Reason {
	case captions.ReasonMissingID:
		s.renderStatus(w, r, http.StatusBadRequest, ce.Reason, "Missing video", "Paste a YouTube link or video ID.")
	case captions.ReasonInvalidID:
		s.renderStatus(w, r, http.StatusBadRequest, ce.Reason, "Not a YouTube video", ce.Detail)
	default:
		s.logger.Warn("practice deck unavailable", "path", r.URL.Path, "error", err)
		s.renderStatus(w, r, http.StatusNotFound, ce.Reason, "No English subtitles found for this video", ce.Detail)
	}
}

func (s *WebServer) renderStatus(w http.ResponseWriter, r *http.Request, status int, reason captions.Reason, msg, details string) {
	s.render(w, r, status, "error.html", ErrorData{
		Version: buildinfo.Version,
		Status:  status,
		Reason:  reason,
		Message: msg,
		Details: details,
	})
}

// formatTimestamp renders seconds as M:SS.s or H:MM:SS.s.
func formatTimestamp(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	tenths := int(sec*10 + 0.5)
	h := tenths / 36000
	m := tenths / 600 % 60
	ss := tenths % 600
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d.%d", h, m, ss/10, ss%10)
	}
	return fmt.Sprintf("%d:%02d.%d", m, ss/10, ss%10)
}
