package server

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/iksnae/chatrelay/internal"
	"github.com/iksnae/chatrelay/internal/relay"
)

type streamRequest struct {
	Message   string  `json:"message"`
	HistoryID *flexID `json:"history_id"`
}

// handleStream runs one relay cycle and streams its events as NDJSON.
// Without a history_id the caller's current session is selected or created.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	var req streamRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, r, http.StatusBadRequest, msgMissingData)
		return
	}

	var sessionID int64
	if req.HistoryID != nil {
		sessionID = int64(*req.HistoryID)
	} else {
		sess, err := s.store.SelectOrCreate(r.Context(), owner, 0)
		if err != nil {
			writeStoreError(w, r, err, msgNotFound)
			return
		}
		sessionID = sess.ID
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	res, err := s.relay.Run(r.Context(), relay.Request{
		SessionID: sessionID,
		Owner:     owner,
		Input:     req.Message,
	}, relay.NewNDJSONWriter(w))
	if err != nil {
		// Nothing has been written yet, so a plain JSON error still fits.
		switch {
		case errors.Is(err, internal.ErrNotFound):
			writeError(w, r, http.StatusNotFound, msgNotFound)
		case internal.IsValidation(err):
			writeError(w, r, http.StatusBadRequest, err.Error())
		default:
			requestLogger(r).Error("stream setup failed", zap.Error(err))
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	requestLogger(r).Info("stream finished",
		zap.Int64("session_id", sessionID),
		zap.Stringer("state", res.State),
		zap.Int("length", len(res.Text)),
		zap.Int("tool_calls", res.ToolCalls),
		zap.Error(res.Err),
	)
}
