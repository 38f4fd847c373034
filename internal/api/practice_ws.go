package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/dictation/internal/captions"
	"github.com/nugget/dictation/internal/practice"
	"github.com/nugget/dictation/internal/scoring"
)

const (
	wsReadLimit    = 64 << 10
	wsIdleTimeout  = 10 * time.Minute
	wsWriteTimeout = 10 * time.Second
)

// Message types exchanged on /api/practice/ws.
const (
	msgDeck    = "deck"
	msgAttempt = "attempt"
	msgResult  = "result"
	msgError   = "error"
)

type wsDeck struct {
	Type string         `json:"type"`
	Deck *practice.Deck `json:"deck"`
}

type wsAttempt struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Text  string `json:"text"`
}

type wsResult struct {
	Type       string             `json:"type"`
	Index      int                `json:"index"`
	Evaluation scoring.Evaluation `json:"evaluation"`
}

type wsError struct {
	Type   string          `json:"type"`
	Reason captions.Reason `json:"reason,omitempty"`
	Error  string          `json:"error"`
}

// handlePracticeWS runs one practice session over a WebSocket. The deck
// is loaded once per connection; every attempt is graded against it.
func (s *Server) handlePracticeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)

	ctx := r.Context()
	logger := s.logger.With("request_id", RequestID(ctx))

	deck, err := s.practice.Load(ctx, r.URL.Query().Get("videoId"))
	if err != nil {
		_, body := failure(err)
		s.writeWS(conn, wsError{Type: msgError, Reason: body.Reason, Error: body.Error})
		s.closeWS(conn, websocket.ClosePolicyViolation, string(body.Reason))
		return
	}
	if err := s.writeWS(conn, wsDeck{Type: msgDeck, Deck: deck}); err != nil {
		return
	}
	logger.Info("practice session started", "video_id", deck.VideoID, "segments", deck.Count)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))

		var msg wsAttempt
		if err := conn.ReadJSON(&msg); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				logger.Debug("practice session read ended", "video_id", deck.VideoID, "error", err)
			}
			return
		}

		if msg.Type != msgAttempt {
			if err := s.writeWS(conn, wsError{Type: msgError, Error: "unknown message type " + msg.Type}); err != nil {
				return
			}
			continue
		}

		ev, err := s.practice.Check(ctx, deck, msg.Index, msg.Text)
		if err != nil {
			if err := s.writeWS(conn, wsError{Type: msgError, Error: err.Error()}); err != nil {
				return
			}
			continue
		}
		if err := s.writeWS(conn, wsResult{Type: msgResult, Index: msg.Index, Evaluation: ev}); err != nil {
			return
		}
	}
}

func (s *Server) writeWS(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(v); err != nil {
		s.logger.Debug("websocket write failed", "error", err)
		return err
	}
	return nil
}

func (s *Server) closeWS(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout))
}
