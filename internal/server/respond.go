package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/iksnae/chatrelay/internal"
)

const (
	statusSuccess = "success"
	statusFailed  = "failed"
	statusError   = "error"

	msgInvalidJSON     = "Invalid JSON"
	msgMissingData     = "Missing data"
	msgNotFound        = "not found or unauthorized"
	msgMessageNotFound = "Message not found or unauthorized"
	msgNotHuman        = "Can only delete HUMAN messages"

	maxBodyBytes = 1 << 20
)

// writeJSON encodes value as JSON into w with the given status code.
// Encoding errors mean the client is gone and are only logged.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		requestLogger(r).Warn("writing JSON response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, map[string]string{"error": msg})
}

func writeStatus(w http.ResponseWriter, r *http.Request, status string, extra map[string]any) {
	body := map[string]any{"status": status}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, r, http.StatusOK, body)
}

func writeFailed(w http.ResponseWriter, r *http.Request, msg string) {
	writeStatus(w, r, statusFailed, map[string]any{"message": msg})
}

// writeStoreError maps a store error onto the status response: missing or
// foreign rows are "failed", rejected input is a 400, anything else is "error".
func writeStoreError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	switch {
	case errors.Is(err, internal.ErrNotFound):
		writeFailed(w, r, notFound)
	case errors.Is(err, internal.ErrNotHuman):
		writeFailed(w, r, msgNotHuman)
	case internal.IsValidation(err):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		requestLogger(r).Error("request failed", zap.Error(err))
		writeJSON(w, r, http.StatusInternalServerError, map[string]string{"status": statusError, "message": "internal error"})
	}
}

// decodeBody reads a JSON request body into v, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, msgInvalidJSON)
		return false
	}
	return true
}

// flexID is a row id sent either as a JSON number or a numeric string.
// Anything unparsable decodes to zero, which never matches a row.
type flexID int64

func (f *flexID) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		if v, err := n.Int64(); err == nil {
			*f = flexID(v)
			return nil
		}
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		*f = flexID(v)
		return nil
	}
	*f = 0
	return nil
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}
