package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/webitel/im-presence-service/internal/domain/model"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeError maps domain sentinels onto HTTP status codes. Storage is checked
// first, so a token rejected because of an outage maps to 503, not 401.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, model.ErrStorage):
		logger.Warn("[REST] storage failure", "err", err)
		writeMessage(w, http.StatusServiceUnavailable, "Service unavailable")
	case errors.Is(err, model.ErrAuthentication):
		writeMessage(w, http.StatusUnauthorized, "Authentication error")
	case errors.Is(err, model.ErrInvalidEvent):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "Not found")
	default:
		logger.Error("[REST] unhandled error", "err", err)
		writeMessage(w, http.StatusInternalServerError, "Internal error")
	}
}
