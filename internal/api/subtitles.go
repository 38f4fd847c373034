package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/skip2/go-qrcode"

	"github.com/nugget/dictation/internal/media"
	"github.com/nugget/dictation/internal/scoring"
)

// maxScoreBody bounds POST /api/score request bodies.
const maxScoreBody = 64 << 10

// handleSubtitles returns the normalized deck for ?videoId=.
func (s *Server) handleSubtitles(w http.ResponseWriter, r *http.Request) {
	deck, err := s.practice.Load(r.Context(), r.URL.Query().Get("videoId"))
	if err != nil {
		s.logger.Warn("subtitles request failed",
			"video_id", r.URL.Query().Get("videoId"),
			"error", err,
			"request_id", RequestID(r.Context()),
		)
		s.errorResponse(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, deck, s.logger)
}

// ScoreRequest is the body of POST /api/score.
type ScoreRequest struct {
	Reference string `json:"reference"`
	Attempt   string `json:"attempt"`
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxScoreBody)).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, errorBody{Error: "invalid JSON body", Details: err.Error()}, s.logger)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, scoring.Evaluate(req.Reference, req.Attempt), s.logger)
}

// handleQR renders a PNG QR code linking to the practice page for
// ?videoId=, so a session started on a desktop can move to a phone.
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	id, err := media.ExtractVideoID(r.URL.Query().Get("videoId"))
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	size := 256
	if v, err := strconv.Atoi(r.URL.Query().Get("size")); err == nil && v >= 64 && v <= 1024 {
		size = v
	}

	png, err := qrcode.Encode(s.publicURL+"/practice/"+id, qrcode.Medium, size)
	if err != nil {
		s.logger.Error("qr encode failed", "video_id", id, "error", err)
		http.Error(w, "qr encode failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := w.Write(png); err != nil {
		s.logger.Debug("failed to write QR response", "error", err)
	}
}
