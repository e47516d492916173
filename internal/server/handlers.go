package server

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/iksnae/chatrelay/internal"
	"github.com/iksnae/chatrelay/internal/export"
)

// owner resolves the caller, answering 401 when that is impossible.
func (s *Server) owner(w http.ResponseWriter, r *http.Request) (internal.OwnerKey, bool) {
	owner, err := s.resolver.Resolve(w, r)
	if err == nil {
		err = owner.Validate()
	}
	if err != nil {
		requestLogger(r).Warn("identity rejected", zap.Error(err))
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return internal.OwnerKey{}, false
	}
	return owner, true
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	sessions, err := s.store.ListSessions(r.Context(), owner)
	if err != nil {
		writeStoreError(w, r, err, msgNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"sessions": sessions})
}

type historyRequest struct {
	HistoryID *flexID `json:"history_id"`
	Title     *string `json:"title"`
}

func (s *Server) handleSelectSession(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	var req historyRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	var requested int64
	if req.HistoryID != nil {
		requested = int64(*req.HistoryID)
	}
	sess, err := s.store.SelectOrCreate(r.Context(), owner, requested)
	if err != nil {
		writeStoreError(w, r, err, msgNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"session": sess})
}

func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	sess, reused, err := s.store.CreateOrReuse(r.Context(), owner)
	if err != nil {
		writeStoreError(w, r, err, msgNotFound)
		return
	}
	writeStatus(w, r, statusSuccess, map[string]any{"session": sess, "reused": reused})
}

func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	var req historyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.HistoryID == nil || req.Title == nil || strings.TrimSpace(*req.Title) == "" {
		writeError(w, r, http.StatusBadRequest, msgMissingData)
		return
	}
	if err := s.store.Rename(r.Context(), owner, int64(*req.HistoryID), *req.Title); err != nil {
		writeStoreError(w, r, err, msgNotFound)
		return
	}
	writeStatus(w, r, statusSuccess, nil)
}

func (s *Server) handlePinSession(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	var req historyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.HistoryID == nil {
		writeError(w, r, http.StatusBadRequest, msgMissingData)
		return
	}
	pinned, err := s.store.TogglePin(r.Context(), owner, int64(*req.HistoryID))
	if err != nil {
		writeStoreError(w, r, err, msgNotFound)
		return
	}
	writeStatus(w, r, statusSuccess, map[string]any{"pinned": pinned})
}

func (s *Server) handleReorderSessions(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	var req struct {
		OrderedIDs []flexID `json:"ordered_ids"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OrderedIDs == nil {
		writeError(w, r, http.StatusBadRequest, msgMissingData)
		return
	}
	ids := make([]int64, len(req.OrderedIDs))
	for i, id := range req.OrderedIDs {
		ids[i] = int64(id)
	}
	if err := s.store.Reorder(r.Context(), owner, ids); err != nil {
		writeStoreError(w, r, err, msgNotFound)
		return
	}
	writeStatus(w, r, statusSuccess, nil)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	var req historyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.HistoryID == nil {
		writeError(w, r, http.StatusBadRequest, msgMissingData)
		return
	}
	if err := s.store.Delete(r.Context(), owner, int64(*req.HistoryID)); err != nil {
		writeStoreError(w, r, err, msgNotFound)
		return
	}
	writeStatus(w, r, statusSuccess, nil)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	var req struct {
		MessageID *flexID `json:"message_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.MessageID == nil {
		writeError(w, r, http.StatusBadRequest, msgMissingData)
		return
	}
	messageID := int64(*req.MessageID)

	sessionID, err := s.store.MessageSession(r.Context(), owner, messageID)
	if err != nil {
		writeStoreError(w, r, err, msgMessageNotFound)
		return
	}
	deleted, err := s.store.DeleteTurn(r.Context(), sessionID, messageID)
	if err != nil {
		writeStoreError(w, r, err, msgMessageNotFound)
		return
	}
	requestLogger(r).Info("turn deleted",
		zap.Int64("session_id", sessionID), zap.Int64("message_id", messageID), zap.Int64("deleted", deleted))
	writeStatus(w, r, statusSuccess, map[string]any{"deleted": deleted})
}

// messageView is a message as shown in the chat view. Tool output is
// reduced to its length.
type messageView struct {
	ID        int64         `json:"id"`
	Role      internal.Role `json:"role"`
	Sequence  int64         `json:"sequence"`
	Content   string        `json:"content"`
	Length    int           `json:"length,omitempty"`
	CreatedAt string        `json:"created_at"`
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, msgMissingData)
		return
	}
	t, err := s.store.Transcript(r.Context(), owner, id)
	if err != nil {
		writeStoreError(w, r, err, msgNotFound)
		return
	}

	views := make([]messageView, len(t.Messages))
	for i, m := range t.Messages {
		v := messageView{
			ID:        m.ID,
			Role:      m.Role,
			Sequence:  m.Sequence,
			Content:   m.Content,
			CreatedAt: m.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		}
		if m.Role == internal.RoleTool {
			v.Content = ""
			v.Length = len(m.Content)
		}
		views[i] = v
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"session": t.Session, "messages": views})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, msgMissingData)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "md"
	}
	exporter, err := export.NewExporter(format)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	t, err := s.store.Transcript(r.Context(), owner, id)
	if err != nil {
		writeStoreError(w, r, err, msgNotFound)
		return
	}

	w.Header().Set("Content-Type", exporter.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="session-%d.%s"`, t.Session.ID, exporter.Extension()))
	if err := exporter.Export(t, w); err != nil {
		requestLogger(r).Warn("export failed",
			zap.Error(&internal.ExportError{Format: format, Path: r.URL.Path, Err: err}))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sessions, messages, err := internal.PingDatabase(r.Context(), s.store.DB())
	if err != nil {
		requestLogger(r).Error("health check failed", zap.Error(err))
		writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": statusError})
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"status": "ok", "sessions": sessions, "messages": messages})
}
